package main

import (
	"fmt"
	"net/url"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/sparklehq/sparkle/internal/types"
)

var (
	findColorComplete   = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	findColorIncomplete = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	findColorIgnored    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

var findItemCmd = &cobra.Command{
	Use:   "find-item [query]",
	Short: "List items, optionally filtered by tagline substring",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pending, _ := cmd.Flags().GetBool("pending")

		c, err := newClient()
		if err != nil {
			return err
		}

		var items []types.Aggregate
		if pending {
			err = c.get("/api/pendingWork", &items)
		} else {
			query := ""
			if len(args) == 1 {
				query = args[0]
			}
			err = c.get("/api/allItems?search="+url.QueryEscape(query), &items)
		}
		if err != nil {
			return err
		}

		if jsonOutput {
			return printJSON(items)
		}
		for _, agg := range items {
			fmt.Println(formatItemLine(agg))
		}
		return nil
	},
}

func formatItemLine(agg types.Aggregate) string {
	style := findColorIncomplete
	switch {
	case agg.Ignored:
		style = findColorIgnored
	case agg.Status == types.StatusCompleted:
		style = findColorComplete
	}
	return fmt.Sprintf("%s  %s  %s", agg.ItemID, style.Render(agg.Status), agg.Tagline)
}

func init() {
	findItemCmd.Flags().Bool("pending", false, "only list actionable items (not completed, not ignored, not blocked)")
	rootCmd.AddCommand(findItemCmd)
}
