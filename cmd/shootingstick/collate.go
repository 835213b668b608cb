package main

import (
	"bufio"
	"bytes"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/shootingstick/ss/collation"
	"github.com/shootingstick/ss/value"
)

// collateSamples are printed when no input is given.
var collateSamples = []string{
	`["A","B","C"]`, `{"A":3,"B":12}`, `"Hello"`, `["A"]`,
	`"Sam"`, `"Smoo"`, `"Andy"`, `"andy"`, `"Andrew"`, `"andover"`, `"123"`, `"~"`,
	`{"A":3,"B":12,"C":0}`,
	`100`, `0.00001`, `3.0001`, `1125899906842624`, `-1000000`, `-12`, `-3`, `3.001`,
	`0.001`, `5`, `4`, `3.1`, `-0.0001`, `3.01`, `3.00001`,
	`{"A":13,"B":9}`, `{"A":13,"B":1}`, `[]`, `null`, `true`, `false`,
}

func newCollateCommand() *cobra.Command {
	var showKeys bool
	cmd := &cobra.Command{
		Use:   "collate [file]",
		Short: "Sort JSON values (one per line) in view collation order",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var lines []string
			switch {
			case len(args) == 0:
				lines = collateSamples
			case args[0] == "-":
				l, err := readLines(os.Stdin)
				if err != nil {
					return err
				}
				lines = l
			default:
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				l, err := readLines(f)
				if err != nil {
					return err
				}
				lines = l
			}
			return runCollate(cmd.OutOrStdout(), lines, showKeys)
		},
	}
	cmd.Flags().BoolVar(&showKeys, "keys", false, "Print the hex sort key next to each value")
	return cmd
}

type collated struct {
	line string
	key  []byte
}

func runCollate(w io.Writer, lines []string, showKeys bool) error {
	items := make([]collated, 0, len(lines))
	for _, line := range lines {
		v, err := value.ParseJSON([]byte(line))
		if err != nil {
			return fmt.Errorf("%s: %w", line, err)
		}
		key, err := collation.SortKey(v)
		if err != nil {
			return fmt.Errorf("%s: %w", line, err)
		}
		out, err := value.ToJSON(v)
		if err != nil {
			return err
		}
		items = append(items, collated{string(out), key})
	}
	slices.SortStableFunc(items, func(a, b collated) int {
		return bytes.Compare(a.key, b.key)
	})
	for _, it := range items {
		if showKeys {
			fmt.Fprintf(w, "%s\t%s\n", hex.EncodeToString(it.key), it.line)
		} else {
			fmt.Fprintln(w, it.line)
		}
	}
	return nil
}

func readLines(r io.Reader) ([]string, error) {
	var lines []string
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16<<20)
	for sc.Scan() {
		if line := strings.TrimSpace(sc.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	return lines, sc.Err()
}
