package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/shootingstick/ss"
	"github.com/shootingstick/ss/value"
)

func newImportCommand() *cobra.Command {
	var bulk bool
	var batch int
	cmd := &cobra.Command{
		Use:   "import <db> <file>",
		Short: "Load documents from a JSON array or newline-delimited JSON file (- for stdin)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd.Context(), args[0], args[1], bulk, batch)
		},
	}
	cmd.Flags().BoolVar(&bulk, "bulk", false, "Write with revision checks and fresh revisions instead of inserting documents as given")
	cmd.Flags().IntVar(&batch, "batch", 1000, "Documents per transaction")
	return cmd
}

func runImport(ctx context.Context, dbName, path string, bulk bool, batch int) error {
	env, err := openEnvironment()
	if err != nil {
		return err
	}
	defer env.Close()

	db, err := env.catalog.Database(dbName)
	if err != nil {
		return err
	}

	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}

	var total, rejected int
	pending := make([]ss.Document, 0, batch)
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		if bulk {
			results, err := db.BulkWrite(ctx, pending)
			if err != nil {
				return err
			}
			for _, res := range results {
				if !res.OK {
					rejected++
					env.logger.Warn("document rejected", zap.String("id", res.ID), zap.String("error", res.Error), zap.String("reason", res.Reason))
				}
			}
		} else if err := db.Insert(ctx, pending); err != nil {
			return err
		}
		total += len(pending)
		pending = pending[:0]
		return nil
	}

	err = decodeDocuments(r, func(d ss.Document) error {
		pending = append(pending, d)
		if len(pending) >= batch {
			return flush()
		}
		return nil
	})
	if err != nil {
		return err
	}
	if err := flush(); err != nil {
		return err
	}
	env.logger.Info("import finished", zap.String("db", dbName), zap.Int("documents", total), zap.Int("rejected", rejected))
	return nil
}

// decodeDocuments accepts either one JSON array of documents or a stream of
// documents (newline-delimited or concatenated).
func decodeDocuments(r io.Reader, f func(ss.Document) error) error {
	br := bufio.NewReader(r)
	dec := json.NewDecoder(br)
	dec.UseNumber()

	first, err := peekNonSpace(br)
	if errors.Is(err, io.EOF) {
		return nil
	} else if err != nil {
		return err
	}
	if first == '[' {
		if _, err := dec.Token(); err != nil {
			return err
		}
	}
	for dec.More() {
		v, err := value.DecodeJSON(dec)
		if err != nil {
			return err
		}
		obj, ok := v.(value.Object)
		if !ok {
			return fmt.Errorf("document must be a JSON object, got %s", value.KindOf(v))
		}
		if err := f(ss.DocumentFromObject(obj)); err != nil {
			return err
		}
	}
	return nil
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
			continue
		}
		return b, br.UnreadByte()
	}
}
