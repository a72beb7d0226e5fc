package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"eslintls/internal/engine"
	"eslintls/internal/settings"
)

var checkCmd = &cobra.Command{
	Use:          "check [files...]",
	Short:        "Lint files once and print the results",
	Args:         cobra.MinimumNArgs(1),
	SilenceUsage: true,
	RunE:         runCheck,
}

func init() {
	checkCmd.Flags().Bool("quiet", false, "report errors only")
	checkCmd.Flags().IntP("concurrency", "j", runtime.NumCPU(), "files linted in parallel")
}

type fileReport struct {
	path     string
	messages []engine.Message
	err      error
}

func runCheck(cmd *cobra.Command, args []string) error {
	quiet, _ := cmd.Flags().GetBool("quiet")
	concurrency, _ := cmd.Flags().GetInt("concurrency")
	nodeBin, _ := cmd.Flags().GetString("node")
	if concurrency < 1 {
		concurrency = 1
	}

	disk, err := engine.OpenRootCache("eslintls")
	if err != nil {
		disk = nil
	}
	loader := engine.NewLoader(nodeBin)
	libs := engine.NewResolver(disk)

	reports := make([]fileReport, len(args))
	var mu sync.Mutex

	g, ctx := errgroup.WithContext(cmd.Context())
	g.SetLimit(concurrency)
	for i, arg := range args {
		i, arg := i, arg
		g.Go(func() error {
			report := checkFile(ctx, loader, libs, arg)
			mu.Lock()
			reports[i] = report
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	if !useColor(cmd, os.Stdout) {
		color.NoColor = true
	}
	errorCount, warningCount := printReports(cmd.OutOrStdout(), reports, quiet)
	printSummary(cmd.OutOrStdout(), errorCount, warningCount)
	if errorCount > 0 {
		return fmt.Errorf("%d problems found", errorCount)
	}
	return nil
}

func printSummary(w io.Writer, errors, warnings int) {
	total := errors + warnings
	if total == 0 {
		return
	}
	line := fmt.Sprintf("✖ %d %s (%d %s, %d %s)",
		total, plural(total, "problem"),
		errors, plural(errors, "error"),
		warnings, plural(warnings, "warning"))
	if errors > 0 {
		fmt.Fprintf(w, "\n%s\n", errColor.Sprint(line))
	} else {
		fmt.Fprintf(w, "\n%s\n", warnColor.Sprint(line))
	}
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}

func checkFile(ctx context.Context, loader *engine.Loader, libs *engine.Resolver, path string) fileReport {
	abs, err := filepath.Abs(path)
	if err != nil {
		return fileReport{path: path, err: err}
	}
	content, err := os.ReadFile(abs)
	if err != nil {
		return fileReport{path: path, err: err}
	}

	workdir := settings.WorkingDirectory(abs, "", nil)
	pkgDir, err := libs.Resolve(ctx, abs, "", engine.PackageManagerNpm)
	if err != nil {
		return fileReport{path: path, err: fmt.Errorf("no eslint installation found for %s: %w", path, err)}
	}
	eng, err := loader.Load(ctx, pkgDir, workdir)
	if err != nil {
		return fileReport{path: path, err: err}
	}

	opts := engine.LintOptions{WorkingDir: workdir}
	ignored, err := eng.IsPathIgnored(ctx, abs, opts)
	if err != nil {
		return fileReport{path: path, err: err}
	}
	if ignored {
		return fileReport{path: path}
	}
	result, err := eng.LintText(ctx, string(content), abs, opts)
	if err != nil {
		return fileReport{path: path, err: err}
	}
	return fileReport{path: path, messages: result.Messages}
}

var (
	errColor  = color.New(color.FgRed, color.Bold)
	warnColor = color.New(color.FgYellow)
	dimColor  = color.New(color.Faint)
)

func printReports(w io.Writer, reports []fileReport, quiet bool) (errors, warnings int) {
	for _, r := range reports {
		if r.err != nil {
			errors++
			fmt.Fprintf(w, "%s: %v\n", errColor.Sprint("error"), r.err)
			continue
		}
		if len(r.messages) == 0 {
			continue
		}
		sort.SliceStable(r.messages, func(i, j int) bool {
			a, b := r.messages[i], r.messages[j]
			if a.Line != b.Line {
				return a.Line < b.Line
			}
			return a.Column < b.Column
		})
		printed := false
		for _, m := range r.messages {
			if m.Severity < 2 && quiet {
				continue
			}
			if !printed {
				fmt.Fprintf(w, "%s\n", r.path)
				printed = true
			}
			label := warnColor.Sprint("warning")
			if m.Severity >= 2 {
				label = errColor.Sprint("error")
				errors++
			} else {
				warnings++
			}
			fmt.Fprintf(w, "  %s  %s  %s %s\n",
				dimColor.Sprintf("%d:%d", m.Line, m.Column),
				label,
				m.Message,
				dimColor.Sprint(m.RuleID))
		}
	}
	return errors, warnings
}
