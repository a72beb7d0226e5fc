package main

import (
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"eslintls/internal/version"
)

var rootCmd = &cobra.Command{
	Use:   "eslintls",
	Short: "ESLint language server",
	Long:  `eslintls integrates ESLint into editors over the Language Server Protocol`,
}

func main() {
	rootCmd.Version = version.Raw

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(checkCmd)
	rootCmd.AddCommand(versionCmd)

	rootCmd.PersistentFlags().String("node", "", "node executable used to run the lint engine (default: node from PATH)")
	rootCmd.PersistentFlags().String("log-level", "info", "log verbosity (debug|info|warn|error)")
	rootCmd.PersistentFlags().String("color", "auto", "colorize output (auto|on|off)")

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

func useColor(cmd *cobra.Command, f *os.File) bool {
	colorFlag, _ := cmd.Root().PersistentFlags().GetString("color")
	return colorFlag == "on" || (colorFlag == "auto" && isTerminal(f))
}
