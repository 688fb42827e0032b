package main

import (
	"strings"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status <id> <status> [note...]",
	Short: "Transition an item to a new status",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		body := map[string]string{"itemId": args[0], "status": args[1], "text": strings.Join(args[2:], " ")}
		return c.post("/api/updateStatus", body, nil)
	},
}

var dependsOnCmd = &cobra.Command{
	Use:   "depends-on <id> <neededId>",
	Short: "Record that id needs neededId completed first",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		body := map[string]string{"itemId": args[0], "neededId": args[1]}
		return c.post("/api/addDependency", body, nil)
	},
}

var removeDependsOnCmd = &cobra.Command{
	Use:   "remove-dependency <id> <neededId>",
	Short: "Remove a previously added dependency edge",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		return c.post("/api/removeDependency", map[string]string{"itemId": args[0], "neededId": args[1]}, nil)
	},
}

var monitorCmd = &cobra.Command{
	Use:   "monitor <id>",
	Short: "Subscribe to an item's future changes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		return c.post("/api/addMonitor", map[string]string{"itemId": args[0]}, nil)
	},
}

var unmonitorCmd = &cobra.Command{
	Use:   "unmonitor <id>",
	Short: "Unsubscribe from an item's future changes",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		return c.post("/api/removeMonitor", map[string]string{"itemId": args[0]}, nil)
	},
}

var takeCmd = &cobra.Command{
	Use:   "take <id>",
	Short: "Claim an item, implicitly surrendering any other item you currently hold",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		return c.post("/api/takeItem", map[string]string{"itemId": args[0]}, nil)
	},
}

var surrenderCmd = &cobra.Command{
	Use:   "surrender <id>",
	Short: "Release your claim on an item",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		return c.post("/api/surrenderItem", map[string]string{"itemId": args[0]}, nil)
	},
}

var ignoreCmd = &cobra.Command{
	Use:   "ignore <id>",
	Short: "Exclude an item from pending work",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		return c.post("/api/ignoreItem", map[string]string{"itemId": args[0]}, nil)
	},
}

var unignoreCmd = &cobra.Command{
	Use:   "unignore <id>",
	Short: "Clear a previously set ignore flag",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := newClient()
		if err != nil {
			return err
		}
		return c.post("/api/unignoreItem", map[string]string{"itemId": args[0]}, nil)
	},
}

func init() {
	rootCmd.AddCommand(statusCmd, dependsOnCmd, removeDependsOnCmd, monitorCmd, unmonitorCmd, takeCmd, surrenderCmd, ignoreCmd, unignoreCmd)
}
