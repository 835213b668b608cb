package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/shootingstick/ss"
)

func newUpdateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "update [db...]",
		Short: "Bring every view of the given databases (default: all) up to date",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runUpdate(ctx, args)
		},
	}
}

func runUpdate(ctx context.Context, names []string) error {
	env, err := openEnvironment()
	if err != nil {
		return err
	}
	defer env.Close()

	if len(names) == 0 {
		names, err = env.catalog.Names()
		if err != nil {
			return err
		}
	}

	targets, err := collectViewTargets(env.catalog, names)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(env.cfg.UpdateParallelism)
	for _, tg := range targets {
		g.Go(func() error {
			key := tg.key()
			v, err := tg.db.View(tg.design, tg.view)
			if err != nil {
				return fmt.Errorf("%s/%s: %w", tg.name, key, err)
			}
			st, err := v.Update(ctx)
			if err != nil {
				return fmt.Errorf("%s/%s: %w", tg.name, key, err)
			}
			env.logger.Info("updated",
				zap.String("db", tg.name),
				zap.String("view", key),
				zap.Int("processed", st.Processed),
				zap.Int("failed", st.Failed),
				zap.Uint64("hwm", st.HighWaterMark))
			return nil
		})
	}
	return g.Wait()
}

type viewTarget struct {
	name   string
	db     *ss.DB
	design string
	view   string
}

func (tg viewTarget) key() string { return tg.design + "/" + tg.view }

// collectViewTargets opens every database and lists its views up front, so a
// bad name fails the command before any update starts.
func collectViewTargets(catalog *ss.Catalog, names []string) ([]viewTarget, error) {
	var targets []viewTarget
	for _, name := range names {
		db, err := catalog.Database(name)
		if err != nil {
			return nil, err
		}
		views, err := db.ViewNames()
		if err != nil {
			return nil, err
		}
		for _, key := range views {
			design, view, _ := strings.Cut(key, "/")
			targets = append(targets, viewTarget{name: name, db: db, design: design, view: view})
		}
	}
	return targets, nil
}
