package main

import (
	"bufio"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shootingstick/ss"
)

func newDumpCommand() *cobra.Command {
	var records, heads, views bool
	cmd := &cobra.Command{
		Use:   "dump <db>",
		Short: "Print the contents of a database for debugging",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := ss.DumpHeaders | ss.DumpStats
			if records {
				flags |= ss.DumpRecords
			}
			if heads {
				flags |= ss.DumpHeads
			}
			if views {
				flags |= ss.DumpViewRows
			}
			return runDump(args[0], flags)
		},
	}
	cmd.Flags().BoolVar(&records, "records", true, "Include every record of the log")
	cmd.Flags().BoolVar(&heads, "heads", false, "Include the current oid of every document")
	cmd.Flags().BoolVar(&views, "views", false, "Include the rows of every view")
	return cmd
}

func runDump(dbName string, flags ss.DumpFlags) error {
	env, err := openEnvironment()
	if err != nil {
		return err
	}
	defer env.Close()

	db, err := env.catalog.Database(dbName)
	if err != nil {
		return err
	}
	if flags.Contains(ss.DumpViewRows) {
		names, err := db.ViewNames()
		if err != nil {
			return err
		}
		for _, key := range names {
			design, name, _ := strings.Cut(key, "/")
			if _, err := db.View(design, name); err != nil {
				return err
			}
		}
	}

	w := bufio.NewWriter(os.Stdout)
	defer w.Flush()
	return db.Dump(w, flags)
}
