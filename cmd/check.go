package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/codeqa/codeqa/internal/git"
	"github.com/codeqa/codeqa/internal/pipeline"
	"github.com/codeqa/codeqa/internal/report"
)

// ErrBelowThreshold is returned by check when the overall score is under --fail-under.
var ErrBelowThreshold = errors.New("overall score below threshold")

var checkCmd = &cobra.Command{
	Use:   "check [path]",
	Short: "Analyze a project directory",
	Long: `Analyze a project directory for syntax errors, risky code patterns,
dependency problems and missing project hygiene. If no path is provided,
the current directory is used.

Examples:
  codeqa check
  codeqa check ./service --languages python,go
  codeqa check . --ports 3000,8000 --format json --output report.json
  codeqa check . --fail-under 7`,
	Args: cobra.MaximumNArgs(1),
	RunE: runCheck,
}

func init() {
	rootCmd.AddCommand(checkCmd)

	checkCmd.Flags().IntSlice("ports", nil, "localhost ports to probe (e.g. 3000,8000)")
	checkCmd.Flags().StringSlice("languages", nil, "restrict syntax checks to these languages (python, go, javascript, typescript)")
	checkCmd.Flags().Int("fail-under", 0, "exit with non-zero code if the overall score is below this value")
}

type checkContext struct {
	absPath   string
	ports     []int
	languages []string
	failUnder int
}

func runCheck(cmd *cobra.Command, args []string) error {
	startTime := time.Now()

	checkCtx, err := setupCheckContext(cmd, args)
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	logger := newLogger(cmd)

	analyzer, err := pipeline.New(cfg, logger)
	if err != nil {
		return err
	}

	ctx, stop := signalContext(cmd.Context())
	defer stop()

	result, err := analyzer.Analyze(ctx, checkCtx.absPath, pipeline.Options{
		Ports:     checkCtx.ports,
		Languages: checkCtx.languages,
	})
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}

	envelope := newEnvelope(checkCtx.absPath, result, startTime)
	if err := outputResults(cmd, envelope); err != nil {
		return err
	}

	return checkThreshold(result, checkCtx.failUnder)
}

func setupCheckContext(cmd *cobra.Command, args []string) (*checkContext, error) {
	targetPath := "."
	if len(args) > 0 {
		targetPath = args[0]
	}

	absPath, err := filepath.Abs(targetPath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", targetPath, err)
	}

	ports, _ := cmd.Flags().GetIntSlice("ports")
	languages, _ := cmd.Flags().GetStringSlice("languages")
	failUnder, _ := cmd.Flags().GetInt("fail-under")
	if failUnder < 0 || failUnder > report.MaxScore {
		return nil, fmt.Errorf("--fail-under must be between 0 and %d", report.MaxScore)
	}

	return &checkContext{
		absPath:   absPath,
		ports:     ports,
		languages: languages,
		failUnder: failUnder,
	}, nil
}

// newEnvelope adds run metadata, including git branch and commit when the
// root is inside a work tree.
func newEnvelope(absPath string, result *report.AnalysisReport, startTime time.Time) *report.Envelope {
	branch, commit := git.Describe(absPath)
	return &report.Envelope{
		Repository: absPath,
		Branch:     branch,
		CommitHash: commit,
		Timestamp:  startTime,
		Duration:   time.Since(startTime).String(),
		Version:    Version,
		Report:     result,
	}
}

func outputResults(cmd *cobra.Command, envelope *report.Envelope) error {
	formatFlag, _ := cmd.Flags().GetString("format")
	formatter := report.GetFormatter(formatFlag)

	output, err := formatter.Format(envelope)
	if err != nil {
		return fmt.Errorf("failed to format report: %w", err)
	}
	return writeOutput(cmd, output)
}

func checkThreshold(result *report.AnalysisReport, failUnder int) error {
	if failUnder > 0 && result.Overall < failUnder {
		return fmt.Errorf("%w: %d < %d", ErrBelowThreshold, result.Overall, failUnder)
	}
	return nil
}

// signalContext is shared by long-running commands.
func signalContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
}
