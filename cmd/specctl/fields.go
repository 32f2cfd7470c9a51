package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/NuvoWindows/window-quote-whatsapp-bot/internal/specification"
)

var priorityNames = map[int]string{
	specification.PriorityCritical:   "critical",
	specification.PriorityImportant:  "important",
	specification.PriorityEfficiency: "efficiency",
	specification.PriorityOptional:   "optional",
}

// FieldsCmd prints the window field table.
func FieldsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "fields",
		Short: "List the specification fields in priority order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "FIELD\tLABEL\tPRIORITY\tTYPE\tDEFAULT\tOPTIONS")
			for _, f := range specification.DefaultFields() {
				def := "-"
				if f.HasDefault() {
					def = fmt.Sprint(f.Default)
				}
				opts := "-"
				if len(f.Options) > 0 {
					opts = strings.Join(f.Options, ",")
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n", f.Name, f.Label, priorityNames[f.Priority], f.Type, def, opts)
			}
			return w.Flush()
		},
	}
}
