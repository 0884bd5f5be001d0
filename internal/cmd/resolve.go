package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/charmbracelet/log"
	"github.com/s-hammon/p"
	"github.com/s-hammon/pescan"
	"github.com/s-hammon/pescan/internal/recipe"
	"github.com/spf13/cobra"
)

type resolved struct {
	Name  string `json:"name"`
	Kind  string `json:"kind"`
	Value string `json:"value,omitempty"`
	Error string `json:"error,omitempty"`
}

func newResolveCmd() *cobra.Command {
	var (
		src    sourceOptions
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "resolve <recipe.yaml>",
		Short: "resolve every signature of a recipe against an image",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			set, err := recipe.LoadFile(args[0])
			if err != nil {
				return err
			}

			img, label, err := src.load(cmd.Context())
			if err != nil {
				return err
			}

			results := recipe.Resolve(img, set)
			failed := 0
			for _, r := range results {
				if r.Err != nil {
					failed++
					log.Debug("signature failed", "name", r.Name, "err", r.Err)
				}
			}

			out := cmd.OutOrStdout()
			if asJSON {
				err = writeJSON(out, results)
			} else {
				printHeader(out, img, label)
				writeTable(out, results)
			}
			if err != nil {
				return err
			}

			if failed > 0 {
				return fmt.Errorf("%w: %d of %d signatures failed", pescan.ErrNotFound, failed, len(results))
			}
			return nil
		},
	}

	src.register(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print results as JSON")
	return cmd
}

func formatValue(r recipe.Result) string {
	if r.Signed() {
		return p.Format("%d", int64(r.Value))
	}
	return p.Format("%#x", r.Value)
}

func writeTable(w io.Writer, results []recipe.Result) {
	width := 0
	for _, r := range results {
		width = max(width, len(r.Name))
	}

	for _, r := range results {
		if r.Err != nil {
			fmt.Fprintf(w, "%-*s  error: %v\n", width, r.Name, r.Err)
			continue
		}
		fmt.Fprintf(w, "%-*s  %s\n", width, r.Name, formatValue(r))
	}
}

func writeJSON(w io.Writer, results []recipe.Result) error {
	out := make([]resolved, 0, len(results))
	for _, r := range results {
		rr := resolved{Name: r.Name, Kind: r.Kind}
		if r.Err != nil {
			rr.Error = r.Err.Error()
		} else {
			rr.Value = formatValue(r)
		}
		out = append(out, rr)
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
