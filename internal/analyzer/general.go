package analyzer

import (
	"path"
	"regexp"
	"strings"

	"github.com/codeqa/codeqa/internal/report"
	"github.com/codeqa/codeqa/internal/scanner"
)

const (
	RuleMissingReadme    = "missing-readme"
	RuleMissingTests     = "missing-tests"
	RuleMissingGitignore = "missing-gitignore"

	documentedScore   = 8
	undocumentedScore = 3
	testedScore       = 7
	untestedScore     = 2
	hygieneBase       = 5
	noCodeScore       = 1

	// findings about the project as a whole point at the root
	projectFile = "."
)

var testFilePattern = regexp.MustCompile(`^(?:test_.*\.py|.*_test\.py|.*_test\.go|.*\.(?:test|spec)\.(?:js|jsx|ts|tsx))$`)

var projectConfigFiles = map[string]bool{
	"setup.py":       true,
	"setup.cfg":      true,
	"pyproject.toml": true,
	"package.json":   true,
	"go.mod":         true,
	"Cargo.toml":     true,
	"tsconfig.json":  true,
}

// GeneralReport breaks the General QA score into its three parts.
type GeneralReport struct {
	Documentation int
	Tests         int
	Hygiene       int
	Score         int
	Findings      []report.Finding
}

// IsTestFile reports whether the base name follows a common test naming scheme.
func IsTestFile(filePath string) bool {
	return testFilePattern.MatchString(path.Base(filePath))
}

// GeneralQA scores documentation, tests and project hygiene from the file
// inventory alone. An empty inventory scores 10 with no findings.
func GeneralQA(files []report.FileRecord) GeneralReport {
	if len(files) == 0 {
		return GeneralReport{
			Documentation: report.MaxScore,
			Tests:         report.MaxScore,
			Hygiene:       report.MaxScore,
			Score:         report.MaxScore,
			Findings:      []report.Finding{},
		}
	}

	var hasReadme, hasTests, hasGitignore, hasConfig, hasManifest, hasCode bool
	for _, file := range files {
		atRoot := !strings.Contains(file.Path, "/")
		name := path.Base(file.Path)

		switch {
		case atRoot && scanner.IsReadme(name):
			hasReadme = true
		case atRoot && name == ".gitignore":
			hasGitignore = true
		}
		if IsTestFile(file.Path) {
			hasTests = true
		}
		if projectConfigFiles[name] {
			hasConfig = true
		}
		if IsManifest(file.Path) {
			hasManifest = true
		}
		if scanner.IsCodeLanguage(scanner.DetectLanguage(file.Path)) {
			hasCode = true
		}
	}

	result := GeneralReport{Findings: []report.Finding{}}

	result.Documentation = undocumentedScore
	if hasReadme {
		result.Documentation = documentedScore
	} else {
		result.Findings = append(result.Findings, generalFinding(RuleMissingReadme, "No README found at the project root"))
	}

	result.Tests = untestedScore
	if hasTests {
		result.Tests = testedScore
	} else {
		result.Findings = append(result.Findings, generalFinding(RuleMissingTests, "No test files found"))
	}

	if !hasGitignore {
		result.Findings = append(result.Findings, generalFinding(RuleMissingGitignore, "No .gitignore found at the project root"))
	}

	result.Hygiene = noCodeScore
	if hasCode {
		hygiene := hygieneBase
		if hasConfig {
			hygiene += 2
		}
		if hasGitignore {
			hygiene++
		}
		if hasManifest {
			hygiene += 2
		}
		result.Hygiene = min(hygiene, report.MaxScore)
	}

	result.Score = report.ClampScore((result.Documentation + result.Tests + result.Hygiene) / 3)
	return result
}

func generalFinding(ruleID, message string) report.Finding {
	return report.Finding{
		RuleID:   ruleID,
		Category: report.CategoryGeneral,
		Severity: report.SeverityLow,
		File:     projectFile,
		Message:  message,
	}
}
