package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var statusesCmd = &cobra.Command{
	Use:   "statuses",
	Short: "List the statuses items can have",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		var names []string
		if err := c.get("/api/allowedStatuses", &names); err != nil {
			return err
		}
		if jsonOutput {
			return printJSON(names)
		}
		for _, n := range names {
			fmt.Println(n)
		}
		return nil
	},
}

var addStatusCmd = &cobra.Command{
	Use:   "add-status <name>",
	Short: "Register a new custom status",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		return c.post("/api/updateStatuses", map[string]string{"name": args[0]}, nil)
	},
}

func init() {
	rootCmd.AddCommand(statusesCmd, addStatusCmd)
}
