package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/codeqa/codeqa/internal/analyzer"
	"github.com/codeqa/codeqa/internal/config"
	"github.com/codeqa/codeqa/internal/logging"
	"github.com/codeqa/codeqa/internal/probe"
	"github.com/codeqa/codeqa/internal/report"
	"github.com/codeqa/codeqa/internal/scanner"
)

// ErrUnknownLanguage is returned when Options names a language with no syntax checker.
var ErrUnknownLanguage = errors.New("unknown language")

type Options struct {
	// Ports are probed on the configured host. Empty skips probing.
	Ports []int
	// Languages restricts the syntax checker. Empty uses the configured set.
	Languages []string
}

type Analyzer struct {
	config  *config.Config
	catalog *analyzer.Catalog
	logger  logging.Logger
}

// New builds the rule catalog once so it can be shared across runs.
func New(cfg *config.Config, logger logging.Logger) (*Analyzer, error) {
	catalog, err := analyzer.NewCatalog(&cfg.Security)
	if err != nil {
		return nil, fmt.Errorf("failed to build rule catalog: %w", err)
	}
	return &Analyzer{
		config:  cfg,
		catalog: catalog,
		logger:  logging.OrNoOp(logger),
	}, nil
}

// Analyze runs a full analysis of root with the default configuration.
func Analyze(ctx context.Context, root string, opts Options) (*report.AnalysisReport, error) {
	a, err := New(config.DefaultConfig(), nil)
	if err != nil {
		return nil, err
	}
	return a.Analyze(ctx, root, opts)
}

func (a *Analyzer) Catalog() *analyzer.Catalog {
	return a.catalog
}

// Analyze classifies root, then runs the remaining components concurrently.
// Only a missing root or a cancelled context fail the run; a component that
// times out or panics is recorded as degraded.
func (a *Analyzer) Analyze(ctx context.Context, root string, opts Options) (*report.AnalysisReport, error) {
	syntaxConfig := a.config.Syntax
	if len(opts.Languages) > 0 {
		for _, name := range opts.Languages {
			if _, ok := analyzer.ParseLanguage(name); !ok {
				return nil, fmt.Errorf("%w: %s", ErrUnknownLanguage, name)
			}
		}
		syntaxConfig.Languages = opts.Languages
	}

	start := time.Now()
	fileScanner, err := scanner.NewFileScanner(root, &a.config.Structure, a.logger)
	if err != nil {
		return nil, err
	}

	classification, err := fileScanner.Classify(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to classify files: %w", err)
	}
	a.logger.Info("classified files",
		logging.F("root", classification.Root),
		logging.F("files", len(classification.Files)),
		logging.F("duration", time.Since(start).String()))

	files := classification.Files
	timeout := a.config.Pipeline.ComponentTimeout
	partial := Partial{Classification: classification}

	syntaxChecker := analyzer.NewSyntaxChecker(&syntaxConfig, fileScanner, a.logger)
	securityScanner := analyzer.NewSecurityScanner(&a.config.Security, a.catalog, fileScanner, a.logger)
	dependencyAuditor := analyzer.NewDependencyAuditor(&a.config.Dependencies, fileScanner, a.logger)
	prober := probe.NewProber(&a.config.Probe, a.logger)

	type dependencyResult struct {
		entries  []report.DependencyEntry
		findings []report.Finding
	}

	var syntaxReason, securityReason, dependencyReason, generalReason string
	var dependencies dependencyResult
	var general analyzer.GeneralReport

	p := pool.New().WithMaxGoroutines(a.config.Pipeline.Workers)

	p.Go(func() {
		partial.SyntaxFindings, syntaxReason = a.run(ctx, report.CategorySyntax, timeout, syntaxChecker.Analyze, files)
	})
	p.Go(func() {
		partial.SecurityFindings, securityReason = a.run(ctx, report.CategorySecurity, timeout, securityScanner.Analyze, files)
	})
	p.Go(func() {
		dependencies, dependencyReason = runComponent(ctx, timeout, func(ctx context.Context) (dependencyResult, error) {
			entries, findings, err := dependencyAuditor.Analyze(ctx, files)
			return dependencyResult{entries: entries, findings: findings}, err
		})
		a.logOutcome(report.CategoryDependencies, dependencyReason)
	})
	p.Go(func() {
		general, generalReason = runComponent(ctx, timeout, func(context.Context) (analyzer.GeneralReport, error) {
			return analyzer.GeneralQA(files), nil
		})
		a.logOutcome(report.CategoryGeneral, generalReason)
	})
	p.Go(func() {
		partial.Probes = prober.Probe(ctx, opts.Ports)
	})

	p.Wait()

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("analysis cancelled: %w", err)
	}

	partial.Dependencies = dependencies.entries
	partial.DependencyFindings = dependencies.findings
	if generalReason == "" {
		partial.General = &general
	}

	partial.Degraded = make(map[report.Category]string)
	for category, reason := range map[report.Category]string{
		report.CategorySyntax:       syntaxReason,
		report.CategorySecurity:     securityReason,
		report.CategoryDependencies: dependencyReason,
		report.CategoryGeneral:      generalReason,
	} {
		if reason != "" {
			partial.Degraded[category] = reason
		}
	}

	result := Aggregate(partial, a.config.Weights.ByCategory())
	a.logger.Info("analysis complete",
		logging.F("overall", result.Overall),
		logging.F("degraded", len(result.Degraded)),
		logging.F("duration", time.Since(start).String()))
	return result, nil
}

// run adapts a findings-producing component to runComponent.
func (a *Analyzer) run(
	ctx context.Context,
	category report.Category,
	timeout time.Duration,
	analyze func(context.Context, []report.FileRecord) ([]report.Finding, error),
	files []report.FileRecord,
) ([]report.Finding, string) {
	findings, reason := runComponent(ctx, timeout, func(ctx context.Context) ([]report.Finding, error) {
		return analyze(ctx, files)
	})
	a.logOutcome(category, reason)
	return findings, reason
}

func (a *Analyzer) logOutcome(category report.Category, reason string) {
	if reason == "" {
		a.logger.Debug("component finished", logging.F("category", string(category)))
		return
	}
	a.logger.Warn("component degraded", logging.F("category", string(category)), logging.F("reason", reason))
}
