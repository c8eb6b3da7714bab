package analyzer

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/sourcegraph/conc/iter"

	"github.com/codeqa/codeqa/internal/config"
	"github.com/codeqa/codeqa/internal/logging"
	"github.com/codeqa/codeqa/internal/report"
	"github.com/codeqa/codeqa/internal/scanner"
)

const binarySniffLength = 512

var securityPenalties = map[report.Severity]float64{
	report.SeverityHigh:   2,
	report.SeverityMedium: 1,
	report.SeverityLow:    0.25,
}

type SecurityScanner struct {
	config  *config.SecurityConfig
	catalog *Catalog
	scanner *scanner.FileScanner
	logger  logging.Logger
}

func NewSecurityScanner(cfg *config.SecurityConfig, catalog *Catalog, fileScanner *scanner.FileScanner, logger logging.Logger) *SecurityScanner {
	return &SecurityScanner{
		config:  cfg,
		catalog: catalog,
		scanner: fileScanner,
		logger:  logging.OrNoOp(logger),
	}
}

// Analyze runs every catalog rule over each eligible file. Findings come back
// ordered by file, line, column and catalog position.
func (a *SecurityScanner) Analyze(ctx context.Context, files []report.FileRecord) ([]report.Finding, error) {
	eligible := a.eligibleFiles(files)

	perFile := iter.Map(eligible, func(file *report.FileRecord) []report.Finding {
		if ctx.Err() != nil {
			return nil
		}
		findings, err := a.scanFile(*file)
		if err != nil {
			a.logger.Warn("failed to read file for security scan", logging.F("file", file.Path), logging.Err(err))
			return nil
		}
		return findings
	})

	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("security scan interrupted: %w", err)
	}

	findings := []report.Finding{}
	for _, fileFindings := range perFile {
		findings = append(findings, fileFindings...)
	}
	return findings, nil
}

func (a *SecurityScanner) eligibleFiles(files []report.FileRecord) []report.FileRecord {
	extensions := make(map[string]bool, len(a.config.Extensions))
	for _, ext := range a.config.Extensions {
		extensions[strings.ToLower(ext)] = true
	}
	maxSize := int64(a.config.MaxFileSizeMB) * 1024 * 1024

	var eligible []report.FileRecord
	for _, file := range files {
		if !extensions[file.Extension] || file.Size == 0 {
			continue
		}
		if file.Size > maxSize {
			a.logger.Debug("skipping large file", logging.F("file", file.Path), logging.F("size", file.Size))
			continue
		}
		eligible = append(eligible, file)
	}

	sort.SliceStable(eligible, func(i, j int) bool {
		return eligible[i].Path < eligible[j].Path
	})
	return eligible
}

func (a *SecurityScanner) scanFile(file report.FileRecord) ([]report.Finding, error) {
	content, err := os.ReadFile(a.scanner.AbsPath(file))
	if err != nil {
		return nil, err
	}
	if isBinary(content) {
		return nil, nil
	}
	return a.ScanText(file.Path, string(content)), nil
}

type ruleMatch struct {
	column    int
	ruleIndex int
}

// ScanText applies the catalog to text as if it were the content of file.
func (a *SecurityScanner) ScanText(file, text string) []report.Finding {
	rules := a.catalog.rules
	var findings []report.Finding

	for lineIndex, line := range strings.Split(text, "\n") {
		line = strings.TrimSuffix(line, "\r")

		var matches []ruleMatch
		for ruleIndex, rule := range rules {
			for _, column := range matchColumns(rule, line) {
				matches = append(matches, ruleMatch{column: column, ruleIndex: ruleIndex})
			}
		}
		if len(matches) == 0 {
			continue
		}

		sort.SliceStable(matches, func(i, j int) bool {
			if matches[i].column != matches[j].column {
				return matches[i].column < matches[j].column
			}
			return matches[i].ruleIndex < matches[j].ruleIndex
		})

		for _, match := range matches {
			rule := rules[match.ruleIndex]
			findings = append(findings, report.Finding{
				RuleID:   rule.ID,
				Category: report.CategorySecurity,
				Severity: rule.Severity,
				File:     file,
				Line:     lineIndex + 1,
				Column:   match.column,
				Message:  rule.Message,
			})
		}
	}

	return findings
}

// matchColumns returns the 1-based column of every non-overlapping match.
func matchColumns(rule Rule, line string) []int {
	at := rule.Pattern.SubexpIndex("at")
	var columns []int
	for _, loc := range rule.Pattern.FindAllStringSubmatchIndex(line, -1) {
		start := loc[0]
		if at > 0 && loc[2*at] >= 0 {
			start = loc[2*at]
		}
		if start > 0 && strings.IndexByte(rule.NotAfter, line[start-1]) >= 0 {
			continue
		}
		columns = append(columns, start+1)
	}
	return columns
}

func isBinary(content []byte) bool {
	head := content
	if len(head) > binarySniffLength {
		head = head[:binarySniffLength]
	}
	return bytes.IndexByte(head, 0) >= 0
}

// SecurityScore is 10 - 2*high - 1*medium - 0.25*low, rounded half up and clamped.
func SecurityScore(findings []report.Finding) int {
	return report.PenaltyScore(findings, securityPenalties)
}
