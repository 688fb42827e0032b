package main

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sparklehq/sparkle/internal/graph"
)

var dagCmd = &cobra.Command{
	Use:   "graph <id>",
	Short: "Show an item's dependency neighbourhood",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		var nodes []graph.Node
		if err := c.get("/api/dag?referenceId="+url.QueryEscape(args[0]), &nodes); err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(nodes)
		}
		for _, n := range nodes {
			indent := strings.Repeat("  ", n.Depth)
			if n.NeededBy == nil {
				fmt.Printf("%s: %s\n", n.ItemID, n.Tagline)
			} else {
				fmt.Printf("%slinked via %s -> %s: %s (%s)\n", indent, *n.NeededBy, n.ItemID, n.Tagline, n.Status)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(dagCmd)
}
