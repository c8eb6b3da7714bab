package analyzer

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"github.com/codeqa/codeqa/internal/config"
	"github.com/codeqa/codeqa/internal/logging"
	"github.com/codeqa/codeqa/internal/report"
	"github.com/codeqa/codeqa/internal/scanner"
)

const (
	RuleUnpinnedDependency = "unpinned-dependency"
	RuleBlockedDependency  = "blocked-dependency"
	RuleEmptyManifest      = "empty-manifest"
	RuleManifestParseError = "manifest-parse-error"
)

var dependencyPenalties = map[report.Severity]float64{
	report.SeverityHigh:   3,
	report.SeverityMedium: 1,
	report.SeverityLow:    0.5,
}

// knownTyposquats are names published to impersonate popular packages.
var knownTyposquats = map[string][]string{
	EcosystemPyPI: {
		"colourama", "crypt", "diango", "djanga", "jeilyfish", "python-sqlite",
		"python3-dateutil", "setup-tools", "urllib", "urlib3",
	},
	EcosystemNPM: {
		"babelcli", "crossenv", "d3.js", "discordi.js", "flatmap-stream",
		"jquery.js", "loadyaml", "mongose", "nodemailer-js", "node-sqlite",
	},
	EcosystemGo: {
		"github.com/boltdb-go/bolt",
	},
	EcosystemCargo: {
		"rustdecimal",
	},
}

var pythonNameSeparators = regexp.MustCompile(`[-_.]+`)

// normalizePackageName folds a name into the form each registry compares on.
func normalizePackageName(ecosystem, name string) string {
	name = strings.TrimSpace(name)
	switch ecosystem {
	case EcosystemPyPI, EcosystemConda:
		return pythonNameSeparators.ReplaceAllString(strings.ToLower(name), "-")
	case EcosystemCargo:
		return strings.ReplaceAll(strings.ToLower(name), "_", "-")
	case EcosystemNPM:
		return strings.ToLower(name)
	default:
		return name
	}
}

type DependencyAuditor struct {
	config  *config.DependencyConfig
	scanner *scanner.FileScanner
	logger  logging.Logger
}

func NewDependencyAuditor(cfg *config.DependencyConfig, fileScanner *scanner.FileScanner, logger logging.Logger) *DependencyAuditor {
	return &DependencyAuditor{
		config:  cfg,
		scanner: fileScanner,
		logger:  logging.OrNoOp(logger),
	}
}

// Analyze parses every manifest among files, in path order. A malformed
// manifest yields a manifest-parse-error finding and keeps the entries read
// before the failure.
func (a *DependencyAuditor) Analyze(ctx context.Context, files []report.FileRecord) ([]report.DependencyEntry, []report.Finding, error) {
	entries := []report.DependencyEntry{}
	findings := []report.Finding{}

	for _, file := range sortedRecords(files) {
		parse, ok := manifestParserFor(file.Path)
		if !ok {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, nil, fmt.Errorf("dependency audit interrupted: %w", err)
		}

		content, err := os.ReadFile(a.scanner.AbsPath(file))
		if err != nil {
			a.logger.Warn("failed to read manifest", logging.F("file", file.Path), logging.Err(err))
			findings = append(findings, dependencyFinding(file.Path, RuleManifestParseError, report.SeverityMedium, 0,
				fmt.Sprintf("Failed to read manifest: %v", err)))
			continue
		}

		parsed, parseErr := parse(file.Path, content)
		a.logger.Debug("parsed manifest", logging.F("file", file.Path), logging.F("entries", len(parsed)))

		if parseErr != nil {
			line := 0
			if manifestErr, ok := parseErr.(*manifestError); ok {
				line = manifestErr.line
			}
			findings = append(findings, dependencyFinding(file.Path, RuleManifestParseError, report.SeverityMedium, line,
				fmt.Sprintf("Failed to parse manifest: %v", parseErr)))
		} else if len(parsed) == 0 {
			findings = append(findings, dependencyFinding(file.Path, RuleEmptyManifest, report.SeverityLow, 0,
				"Manifest declares no dependencies"))
		}

		for _, dep := range parsed {
			entries = append(entries, dep.entry)
			findings = append(findings, a.checkDependency(dep)...)
		}
	}

	return entries, findings, nil
}

func (a *DependencyAuditor) checkDependency(dep parsedDependency) []report.Finding {
	var findings []report.Finding
	entry := dep.entry

	if a.isBlockedPackage(entry) {
		findings = append(findings, dependencyFinding(entry.SourceFile, RuleBlockedDependency, report.SeverityHigh, dep.line,
			fmt.Sprintf("Dependency %s is on the block list", entry.Name)))
	}

	if isUnpinned(entry.DeclaredVersion) {
		findings = append(findings, dependencyFinding(entry.SourceFile, RuleUnpinnedDependency, report.SeverityLow, dep.line,
			fmt.Sprintf("Dependency %s has no pinned version", entry.Name)))
	}

	return findings
}

func (a *DependencyAuditor) isBlockedPackage(entry report.DependencyEntry) bool {
	name := normalizePackageName(entry.Ecosystem, entry.Name)

	for _, allowed := range a.config.AllowedPackages {
		if normalizePackageName(entry.Ecosystem, allowed) == name {
			return false
		}
	}
	for _, blocked := range a.config.BlockedPackages {
		if normalizePackageName(entry.Ecosystem, blocked) == name {
			return true
		}
	}

	lookup := entry.Ecosystem
	if lookup == EcosystemConda {
		lookup = EcosystemPyPI
	}
	for _, squat := range knownTyposquats[lookup] {
		if normalizePackageName(entry.Ecosystem, squat) == name {
			return true
		}
	}
	return false
}

func sortedRecords(files []report.FileRecord) []report.FileRecord {
	sorted := append([]report.FileRecord(nil), files...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Path < sorted[j].Path
	})
	return sorted
}

func isUnpinned(version string) bool {
	switch strings.ToLower(strings.TrimSpace(version)) {
	case "", "*", "latest":
		return true
	default:
		return false
	}
}

func dependencyFinding(file, ruleID string, severity report.Severity, line int, message string) report.Finding {
	return report.Finding{
		RuleID:   ruleID,
		Category: report.CategoryDependencies,
		Severity: severity,
		File:     file,
		Line:     line,
		Message:  message,
	}
}

// DependencyScore is 10 - 3*high - 1*medium - 0.5*low, rounded half up and clamped.
func DependencyScore(findings []report.Finding) int {
	return report.PenaltyScore(findings, dependencyPenalties)
}
