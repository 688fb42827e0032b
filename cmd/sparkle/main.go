// Command sparkle is the developer-facing CLI for the daemon in
// cmd/sparkled: a thin HTTP client plus a handful of presentation
// helpers. Grounded on the teacher's cmd/bd command-file idiom: one
// *cobra.Command package variable per file, registered onto rootCmd from
// that file's own init().
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	jsonOutput bool
	serverURL  string
	repoDir    string
)

var rootCmd = &cobra.Command{
	Use:   "sparkle",
	Short: "Work with the shared task store synced over git",
	Long: `sparkle turns a git branch into a shared, event-sourced task store.

Run 'sparkled' once per project to start the background daemon; this CLI
is the thin client that talks to it over HTTP.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print machine-readable JSON instead of formatted text")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "daemon base URL, overriding auto-discovery")
	rootCmd.PersistentFlags().StringVar(&repoDir, "repo", ".", "path to the git repository")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "sparkle:", err)
		os.Exit(1)
	}
}
