package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sparklehq/sparkle/internal/sparkleapi"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <id>",
	Short: "Print an item's audit trail (as JSON with --json)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		var trail []sparkleapi.AuditEntry
		if err := c.post("/api/getItemAuditTrail", map[string]string{"itemId": args[0]}, &trail); err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(trail)
		}
		for _, e := range trail {
			fmt.Printf("%-14s %-12s %-20s %s\n", e.Filename, e.RelativeAge, e.Person, e.Description)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)
}
