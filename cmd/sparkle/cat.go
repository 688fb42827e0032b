package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/spf13/cobra"

	"github.com/sparklehq/sparkle/internal/types"
)

var catCmd = &cobra.Command{
	Use:   "cat <id>",
	Short: "Print an item as rendered markdown",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		var agg types.Aggregate
		if err := c.post("/api/getItemDetails", map[string]string{"itemId": args[0]}, &agg); err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(agg)
		}
		fmt.Print(renderItemMarkdown(agg))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(catCmd)
}

func renderItemMarkdown(agg types.Aggregate) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s — %s\n\n", agg.ItemID, agg.Tagline)
	fmt.Fprintf(&b, "**Status:** %s", agg.Status)
	if agg.Ignored {
		b.WriteString(" (ignored)")
	}
	b.WriteString("\n\n")

	if agg.TakenBy != nil {
		fmt.Fprintf(&b, "**Taken by:** %s <%s>\n\n", agg.TakenBy.Name, agg.TakenBy.Email)
	}
	if len(agg.Dependencies) > 0 {
		fmt.Fprintf(&b, "**Depends on:** %s\n\n", strings.Join(agg.Dependencies, ", "))
	}
	if len(agg.Dependents) > 0 {
		fmt.Fprintf(&b, "**Needed by:** %s\n\n", strings.Join(agg.Dependents, ", "))
	}
	if len(agg.Entries) > 0 {
		b.WriteString("## Entries\n\n")
		for _, e := range agg.Entries {
			fmt.Fprintf(&b, "- *%s* (%s): %s\n", e.Person.Name, e.Person.Timestamp, e.Text)
		}
		b.WriteString("\n")
	}

	out, err := glamour.Render(b.String(), "auto")
	if err != nil {
		return b.String()
	}
	return out
}
