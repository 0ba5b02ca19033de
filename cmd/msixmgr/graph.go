package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/peitaosu/msix-packaging/pkg/pipeline"
	"github.com/peitaosu/msix-packaging/pkg/pipeline/handlers"
)

func graphCmd() *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:       "graph [add|remove]",
		Short:     "Print the handler routing tables",
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{string(pipeline.FamilyAdd), string(pipeline.FamilyRemove)},
		RunE: func(cmd *cobra.Command, args []string) error {
			tables := []*pipeline.Table{handlers.AddTable(), handlers.RemoveTable()}
			if len(args) == 1 {
				if args[0] == string(pipeline.FamilyAdd) {
					tables = tables[:1]
				} else {
					tables = tables[1:]
				}
			}

			w := cmd.OutOrStdout()
			for i, t := range tables {
				if i > 0 {
					fmt.Fprintln(w)
				}
				switch strings.ToLower(format) {
				case "dot":
					src, err := t.DOT()
					if err != nil {
						return err
					}
					fmt.Fprint(w, src)
				case "text", "":
					fmt.Fprint(w, renderText(t))
				default:
					return fmt.Errorf("unknown format %q: use text or dot", format)
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&format, "format", "text", "output format: text or dot")
	return cmd
}

// renderText produces the human-readable summary of one table, in walk
// order.
func renderText(t *pipeline.Table) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Table: %s  (%d handlers, start %s)\n", t.Family(), t.Len(), t.Start())

	names := t.Names()
	maxLen := len("handler")
	for _, n := range names {
		if len(n) > maxLen {
			maxLen = len(n)
		}
	}

	fmt.Fprintf(&sb, "\nRoutes:\n")
	for _, n := range names {
		r, _ := t.Route(n)
		next := string(r.Next)
		if next == "" {
			next = "(end)"
		}
		if r.OnError != "" {
			fmt.Fprintf(&sb, "  %-*s  →  %s  [on error → %s]\n", maxLen, n, next, r.OnError)
		} else {
			fmt.Fprintf(&sb, "  %-*s  →  %s\n", maxLen, n, next)
		}
	}
	return sb.String()
}
