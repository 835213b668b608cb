package main

import (
	"errors"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/shootingstick/ss"
	"github.com/shootingstick/ss/internal/config"
	"github.com/shootingstick/ss/internal/logging"
)

var (
	cfgFile string
	version = "0.1.0"
)

func main() {
	rootCmd := &cobra.Command{
		Use:           "shootingstick",
		Short:         "Document store with CouchDB-style views",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
	}

	setupFlags(rootCmd)
	rootCmd.AddCommand(
		newServeCommand(),
		newUpdateCommand(),
		newImportCommand(),
		newQueryCommand(),
		newDumpCommand(),
		newCollateCommand(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("data-dir", defaults.GetString("data.dir"), "Directory holding one subdirectory per database")
	cmd.PersistentFlags().String("view-root", defaults.GetString("views.root"), "Directory holding <design>/views/<view>/map.js scripts")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().Int("batch-size", defaults.GetInt("update.batch_size"), "Index actions per view flush")
	cmd.PersistentFlags().Int("parallelism", defaults.GetInt("update.parallelism"), "Views updated concurrently by the update command")
	cmd.PersistentFlags().Duration("script-timeout", defaults.GetDuration("script.timeout"), "Time limit per map function call")
	cmd.PersistentFlags().String("compression", defaults.GetString("store.compression"), "Compression of large documents (zstd, lz4, none)")

	bindFlag(cmd, "data.dir", "data-dir")
	bindFlag(cmd, "views.root", "view-root")
	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "update.batch_size", "batch-size")
	bindFlag(cmd, "update.parallelism", "parallelism")
	bindFlag(cmd, "script.timeout", "script-timeout")
	bindFlag(cmd, "store.compression", "compression")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("shootingstick")
		viper.AddConfigPath(".")
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

// environment is what every command needs: configuration, a logger and the
// catalog of databases.
type environment struct {
	cfg     config.AppConfig
	logger  *zap.Logger
	catalog *ss.Catalog
}

func openEnvironment() (*environment, error) {
	cfg, err := config.Load(viper.GetViper())
	if err != nil {
		return nil, err
	}
	logger, err := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		return nil, err
	}
	opt := cfg.StoreOptions()
	opt.Logger = logger
	catalog := ss.NewCatalog(ss.CatalogOptions{
		DataDir: cfg.DataDir,
		Options: opt,
	})
	return &environment{cfg: cfg, logger: logger, catalog: catalog}, nil
}

func (env *environment) Close() error {
	err := env.catalog.Close()
	_ = env.logger.Sync()
	return err
}
