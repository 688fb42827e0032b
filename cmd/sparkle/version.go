package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/mod/semver"
)

// Version is the CLI's version, overridden by ldflags at build time.
var Version = "v0.1.0"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		check, _ := cmd.Flags().GetString("check")
		if jsonOutput {
			result := map[string]string{"version": Version}
			if check != "" {
				result["compatibleWith"] = check
				result["compatible"] = fmt.Sprint(isCompatible(check))
			}
			return printJSON(result)
		}

		fmt.Printf("sparkle %s\n", Version)
		if check != "" {
			if isCompatible(check) {
				fmt.Printf("compatible with daemon version %s\n", check)
			} else {
				fmt.Printf("incompatible with daemon version %s (major version mismatch)\n", check)
			}
		}
		return nil
	},
}

func init() {
	versionCmd.Flags().String("check", "", "check compatibility against another version (e.g. a running daemon's)")
	rootCmd.AddCommand(versionCmd)
}

// isCompatible treats two versions as compatible when they share a major
// version, matching the daemon/CLI compatibility convention: a daemon
// restart is only forced across a breaking (major) version bump.
func isCompatible(other string) bool {
	a, b := Version, other
	if !semver.IsValid(a) {
		a = "v" + a
	}
	if !semver.IsValid(b) {
		b = "v" + b
	}
	if !semver.IsValid(a) || !semver.IsValid(b) {
		return false
	}
	return semver.Major(a) == semver.Major(b)
}
