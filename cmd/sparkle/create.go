package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sparklehq/sparkle/internal/types"
)

var createItemCmd = &cobra.Command{
	Use:   "create-item <tagline...>",
	Short: "Create a new item",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		status, _ := cmd.Flags().GetString("status")

		c, err := newClient()
		if err != nil {
			return err
		}
		var agg types.Aggregate
		body := map[string]string{"tagline": strings.Join(args, " "), "status": status}
		if err := c.post("/api/createItem", body, &agg); err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(agg)
		}
		fmt.Println(agg.ItemID)
		return nil
	},
}

var addEntryCmd = &cobra.Command{
	Use:   "add-entry <id> <text...>",
	Short: "Append a chronological note to an item",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		body := map[string]string{"itemId": args[0], "text": strings.Join(args[1:], " ")}
		return c.post("/api/addEntry", body, nil)
	},
}

var alterCmd = &cobra.Command{
	Use:   "alter <id> <tagline...>",
	Short: "Change an item's tagline",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		body := map[string]string{"itemId": args[0], "tagline": strings.Join(args[1:], " ")}
		return c.post("/api/alterTagline", body, nil)
	},
}

func init() {
	createItemCmd.Flags().String("status", "", "initial status (defaults to \"incomplete\")")
	rootCmd.AddCommand(createItemCmd, addEntryCmd, alterCmd)
}
