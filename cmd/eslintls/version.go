package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"eslintls/internal/version"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run:   runVersion,
}

func runVersion(cmd *cobra.Command, _ []string) {
	if !useColor(cmd, os.Stdout) {
		color.NoColor = true
	}
	fmt.Fprintf(cmd.OutOrStdout(), "eslintls %s\n", version.Version)
	if version.GitCommit != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "commit: %s\n", version.GitCommit)
	}
	if version.BuildDate != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "built:  %s\n", version.BuildDate)
	}
}
