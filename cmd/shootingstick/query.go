package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shootingstick/ss"
)

func newQueryCommand() *cobra.Command {
	var params []string
	cmd := &cobra.Command{
		Use:   "query <db> <design/view>",
		Short: "Print the rows of a view, one JSON object per line",
		Example: `  shootingstick query scripts date/date -p startkey='[1937,1]' -p endkey='[1937,12]'
  shootingstick query scripts tags/tags -p key='["drama"]' -p include_docs=true`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runQuery(cmd.Context(), args[0], args[1], params)
		},
	}
	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "Query parameter as name=value (CouchDB syntax, JSON keys)")
	return cmd
}

func runQuery(ctx context.Context, dbName, viewName string, params []string) error {
	design, name, ok := strings.Cut(viewName, "/")
	if !ok {
		return fmt.Errorf("view must be given as design/view, got %q", viewName)
	}
	q := url.Values{}
	for _, p := range params {
		k, v, ok := strings.Cut(p, "=")
		if !ok {
			return fmt.Errorf("parameter must be name=value, got %q", p)
		}
		q.Add(k, v)
	}
	opt, err := ss.ParseQueryOptions(q)
	if err != nil {
		return err
	}

	env, err := openEnvironment()
	if err != nil {
		return err
	}
	defer env.Close()

	db, err := env.catalog.Database(dbName)
	if err != nil {
		return err
	}
	v, err := db.View(design, name)
	if err != nil {
		return err
	}
	rows, err := v.Query(ctx, opt)
	if err != nil {
		return err
	}
	defer rows.Close()

	w := bufio.NewWriter(os.Stdout)
	defer w.Flush()
	for rows.Next() {
		line, err := json.Marshal(rows.Row())
		if err != nil {
			return err
		}
		w.Write(line)
		w.WriteByte('\n')
	}
	return rows.Err()
}
