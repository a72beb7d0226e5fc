package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"eslintls/internal/server"
)

var serveCmd = &cobra.Command{
	Use:          "serve",
	Short:        "Run the language server over stdio",
	SilenceUsage: true,
	RunE:         runServe,
}

func init() {
	serveCmd.Flags().Bool("stdio", true, "serve over stdin/stdout")
	serveCmd.Flags().String("log-file", "", "write logs to a file instead of stderr")
}

func runServe(cmd *cobra.Command, _ []string) error {
	logFile, _ := cmd.Flags().GetString("log-file")
	levelName, _ := cmd.Flags().GetString("log-level")
	nodeBin, _ := cmd.Flags().GetString("node")

	logger, err := buildLogger(levelName, logFile)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	s := server.New(nodeBin, logger)
	return s.RunStdio(cmd.Context())
}

// buildLogger writes structured logs to stderr by default; stdout belongs to
// the protocol stream and must stay clean.
func buildLogger(levelName, logFile string) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(levelName)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", levelName, err)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	if logFile != "" {
		cfg.OutputPaths = []string{logFile}
		cfg.ErrorOutputPaths = []string{logFile}
	}
	return cfg.Build()
}
