package main

import (
	"fmt"
	"os/exec"
	"path/filepath"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/sparklehq/sparkle/internal/config"
	"github.com/sparklehq/sparkle/internal/daemon"
	"github.com/sparklehq/sparkle/internal/gitops"
	"github.com/sparklehq/sparkle/internal/identity"
)

var (
	doctorPassStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	doctorFailStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
)

type doctorCheck struct {
	name string
	ok   bool
	note string
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check the local environment for common setup problems",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		checks := runDoctorChecks()
		if jsonOutput {
			return printJSON(checks)
		}
		anyFailed := false
		for _, c := range checks {
			symbol := doctorPassStyle.Render("✓")
			if !c.ok {
				symbol = doctorFailStyle.Render("✗")
				anyFailed = true
			}
			fmt.Printf("%s %-22s %s\n", symbol, c.name, c.note)
		}
		if anyFailed {
			return fmt.Errorf("one or more checks failed")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}

func runDoctorChecks() []doctorCheck {
	var checks []doctorCheck

	if _, err := exec.LookPath("git"); err != nil {
		checks = append(checks, doctorCheck{"git on PATH", false, "git is required and was not found"})
	} else {
		checks = append(checks, doctorCheck{"git on PATH", true, "found"})
	}

	abs, err := filepath.Abs(repoDir)
	if err != nil {
		checks = append(checks, doctorCheck{"repository path", false, err.Error()})
		return checks
	}
	if name, email, identErr := identity.Local(abs); identErr != nil {
		checks = append(checks, doctorCheck{"git identity", false, identErr.Error()})
	} else {
		checks = append(checks, doctorCheck{"git identity", true, fmt.Sprintf("%s <%s>", name, email)})
	}

	if err := config.Initialize(); err != nil {
		checks = append(checks, doctorCheck{"daemon config", false, err.Error()})
		return checks
	}
	projectCfg, err := config.LoadProjectConfig(abs)
	if err != nil {
		checks = append(checks, doctorCheck{"project config", false, err.Error()})
		return checks
	}
	worktreePath := projectCfg.DefaultWorktreePath(abs)
	dataDir := filepath.Join(worktreePath, gitops.EventsDir)

	if port, err := daemon.ReadPortFile(dataDir); err != nil {
		checks = append(checks, doctorCheck{"daemon running", false, "no daemon found for this project; start one with 'sparkled'"})
	} else {
		checks = append(checks, doctorCheck{"daemon running", true, fmt.Sprintf("listening on port %d", port)})
	}

	return checks
}
