package analyzer

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/codeqa/codeqa/internal/config"
	"github.com/codeqa/codeqa/internal/logging"
	"github.com/codeqa/codeqa/internal/report"
	"github.com/codeqa/codeqa/internal/scanner"
)

const (
	RuleSyntaxError       = "syntax-error"
	RuleLineTooLong       = "line-too-long"
	RuleConsoleOutput     = "console-output"
	RuleMixedIndentation  = "mixed-indentation"
	RuleEffectMissingDeps = "effect-missing-dependencies"
	RuleSkippedTooLarge   = "skipped-too-large"
	RuleParserUnavailable = "parser-unavailable"

	syntaxErrorPenalty  = 3
	stylePenaltyDivisor = 5
)

type SyntaxChecker struct {
	config   *config.SyntaxConfig
	scanner  *scanner.FileScanner
	variants map[string]*languageVariant
	logger   logging.Logger
}

// NewSyntaxChecker enables the variants named in cfg.Languages. Unknown names
// are ignored.
func NewSyntaxChecker(cfg *config.SyntaxConfig, fileScanner *scanner.FileScanner, logger logging.Logger) *SyntaxChecker {
	enabled := make(map[Language]bool)
	for _, name := range cfg.Languages {
		if language, ok := ParseLanguage(name); ok {
			enabled[language] = true
		}
	}

	variants := make(map[string]*languageVariant)
	all := newLanguageVariants(cfg.PythonInterpreter)
	for i := range all {
		variant := &all[i]
		if !enabled[variant.language] {
			continue
		}
		for _, ext := range variant.extensions {
			variants[ext] = variant
		}
	}

	return &SyntaxChecker{
		config:   cfg,
		scanner:  fileScanner,
		variants: variants,
		logger:   logging.OrNoOp(logger),
	}
}

type fileOutcome struct {
	path     string
	findings []report.Finding
}

// Analyze parses every file of an enabled language and applies the style
// rules to those that parse. Findings are grouped by file in path order.
func (c *SyntaxChecker) Analyze(ctx context.Context, files []report.FileRecord) ([]report.Finding, error) {
	maxSize := int64(c.config.MaxFileSizeKB) * 1024

	outcomes := make(map[string]*fileOutcome)
	batches := make(map[*languageVariant][]sourceFile)
	var order []*languageVariant

	for _, file := range files {
		variant, ok := c.variants[file.Extension]
		if !ok || file.Size == 0 {
			continue
		}

		outcome := &fileOutcome{path: file.Path}
		outcomes[file.Path] = outcome

		if file.Size > maxSize {
			outcome.findings = append(outcome.findings, syntaxFinding(file.Path, RuleSkippedTooLarge, report.SeverityLow, 0, 0,
				fmt.Sprintf("File is %d KB, above the %d KB limit; not parsed", file.Size/1024, c.config.MaxFileSizeKB)))
			continue
		}

		absPath := c.scanner.AbsPath(file)
		content, err := os.ReadFile(absPath)
		if err != nil {
			c.logger.Warn("failed to read file for syntax check", logging.F("file", file.Path), logging.Err(err))
			delete(outcomes, file.Path)
			continue
		}

		if _, seen := batches[variant]; !seen {
			order = append(order, variant)
		}
		batches[variant] = append(batches[variant], sourceFile{record: file, content: content, absPath: absPath})
	}

	for _, variant := range order {
		batch := batches[variant]
		parseErrors, err := variant.parser.parse(ctx, batch)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, fmt.Errorf("syntax check interrupted: %w", ctxErr)
			}
			c.logger.Warn("parser unavailable, skipping files",
				logging.F("language", string(variant.language)), logging.F("files", len(batch)), logging.Err(err))
			for _, file := range batch {
				outcome := outcomes[file.record.Path]
				outcome.findings = append(outcome.findings, syntaxFinding(file.record.Path, RuleParserUnavailable, report.SeverityLow, 0, 0,
					fmt.Sprintf("No %s parser available; file not checked", variant.language)))
			}
			continue
		}

		for i, file := range batch {
			outcome := outcomes[file.record.Path]
			if parseErr := parseErrors[i]; parseErr != nil {
				outcome.findings = append(outcome.findings, syntaxFinding(file.record.Path, RuleSyntaxError, report.SeverityHigh,
					parseErr.Line, parseErr.Column, fmt.Sprintf("Syntax error: %s", parseErr.Message)))
				continue
			}
			outcome.findings = append(outcome.findings, c.styleFindings(variant, file)...)
		}
	}

	paths := make([]string, 0, len(outcomes))
	for filePath := range outcomes {
		paths = append(paths, filePath)
	}
	sort.Strings(paths)

	findings := []report.Finding{}
	for _, filePath := range paths {
		findings = append(findings, outcomes[filePath].findings...)
	}
	return findings, nil
}

func (c *SyntaxChecker) styleFindings(variant *languageVariant, file sourceFile) []report.Finding {
	var findings []report.Finding
	filePath := file.record.Path
	consoleExempt := strings.Contains(strings.ToLower(filePath), "debug")

	effects := make(map[int][]effectPosition)
	if variant.checkEffects {
		for _, position := range effectsWithoutDependencies(file.content) {
			effects[position.line] = append(effects[position.line], position)
		}
	}

	for index, line := range strings.Split(string(file.content), "\n") {
		line = strings.TrimSuffix(line, "\r")
		lineNumber := index + 1

		if length := utf8.RuneCountInString(line); length > c.config.MaxLineLength {
			findings = append(findings, syntaxFinding(filePath, RuleLineTooLong, report.SeverityLow, lineNumber, c.config.MaxLineLength+1,
				fmt.Sprintf("Line is %d characters long (limit %d)", length, c.config.MaxLineLength)))
		}

		if !consoleExempt {
			if column, ok := firstMatchColumn(variant.consolePattern, line); ok {
				findings = append(findings, syntaxFinding(filePath, RuleConsoleOutput, report.SeverityLow, lineNumber, column,
					"Console output statement left in code"))
			}
		}

		if variant.checkIndentation && hasMixedIndentation(line) {
			findings = append(findings, syntaxFinding(filePath, RuleMixedIndentation, report.SeverityMedium, lineNumber, 1,
				"Indentation mixes tabs and spaces"))
		}

		for _, position := range effects[lineNumber] {
			findings = append(findings, syntaxFinding(filePath, RuleEffectMissingDeps, report.SeverityLow, lineNumber, position.column,
				"Effect hook has no dependency array and runs after every render"))
		}
	}

	return findings
}

// firstMatchColumn returns the 1-based column of the first match, or of its
// "at" group when the pattern has one.
func firstMatchColumn(pattern *regexp.Regexp, line string) (int, bool) {
	loc := pattern.FindStringSubmatchIndex(line)
	if loc == nil {
		return 0, false
	}
	start := loc[0]
	if at := pattern.SubexpIndex("at"); at > 0 && loc[2*at] >= 0 {
		start = loc[2*at]
	}
	return start + 1, true
}

func hasMixedIndentation(line string) bool {
	indent := line[:len(line)-len(strings.TrimLeft(line, " \t"))]
	return strings.ContainsRune(indent, ' ') && strings.ContainsRune(indent, '\t')
}

func syntaxFinding(file, ruleID string, severity report.Severity, line, column int, message string) report.Finding {
	return report.Finding{
		RuleID:   ruleID,
		Category: report.CategorySyntax,
		Severity: severity,
		File:     file,
		Line:     line,
		Column:   column,
		Message:  message,
	}
}

// SyntaxScore is 10 - 3*syntax_errors - floor(style_findings/5), clamped.
// Skipped and unparsed files do not count.
func SyntaxScore(findings []report.Finding) int {
	syntaxErrors, style := 0, 0
	for _, finding := range findings {
		switch finding.RuleID {
		case RuleSyntaxError:
			syntaxErrors++
		case RuleLineTooLong, RuleConsoleOutput, RuleMixedIndentation, RuleEffectMissingDeps:
			style++
		}
	}
	return report.ClampScore(report.MaxScore - syntaxErrorPenalty*syntaxErrors - style/stylePenaltyDivisor)
}
