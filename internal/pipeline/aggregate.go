package pipeline

import (
	"github.com/codeqa/codeqa/internal/analyzer"
	"github.com/codeqa/codeqa/internal/report"
	"github.com/codeqa/codeqa/internal/scanner"
)

// Partial holds what each component produced. A nil General means the
// General QA proxy was not computed; a category listed in Degraded contributes
// neither findings nor a score.
type Partial struct {
	Classification     *scanner.Classification
	SyntaxFindings     []report.Finding
	SecurityFindings   []report.Finding
	Dependencies       []report.DependencyEntry
	DependencyFindings []report.Finding
	General            *analyzer.GeneralReport
	Probes             []report.ProbeResult
	Degraded           map[report.Category]string
}

// Aggregate merges the partial results into a report. It is a pure function
// of its inputs.
func Aggregate(partial Partial, weights map[report.Category]float64) *report.AnalysisReport {
	result := &report.AnalysisReport{
		Files:        []report.FileRecord{},
		FileTypes:    map[string]int{},
		Languages:    map[string]int{},
		Findings:     make(map[report.Category][]report.Finding, len(report.Categories)),
		Dependencies: nonNil(partial.Dependencies),
		Probes:       nonNil(partial.Probes),
		Scores:       make(map[report.Category]int, len(report.Categories)),
	}

	degraded := make(map[report.Category]string)
	for category, reason := range partial.Degraded {
		degraded[category] = reason
	}
	if len(degraded) > 0 {
		result.Degraded = degraded
	}

	var files []report.FileRecord
	structureScore := report.MaxScore
	var structureFindings []report.Finding
	if classification := partial.Classification; classification != nil {
		result.Root = classification.Root
		result.Files = nonNil(classification.Files)
		files = classification.Files
		for ext, count := range classification.FileTypes {
			result.FileTypes[ext] = count
		}
		for language, count := range classification.Languages {
			result.Languages[language] = count
		}
		structureScore = classification.OrganizationScore
		structureFindings = classification.Findings
	}

	emptySet := len(files) == 0
	scoreOf := func(score int) int {
		if emptySet {
			return report.MaxScore
		}
		return report.ClampScore(score)
	}

	candidates := []struct {
		category report.Category
		findings []report.Finding
		score    func() int
	}{
		{report.CategoryStructure, structureFindings, func() int { return structureScore }},
		{report.CategorySyntax, partial.SyntaxFindings, func() int { return analyzer.SyntaxScore(partial.SyntaxFindings) }},
		{report.CategorySecurity, partial.SecurityFindings, func() int { return analyzer.SecurityScore(partial.SecurityFindings) }},
		{report.CategoryDependencies, partial.DependencyFindings, func() int { return analyzer.DependencyScore(partial.DependencyFindings) }},
	}

	for _, candidate := range candidates {
		result.Findings[candidate.category] = []report.Finding{}
		if _, isDegraded := degraded[candidate.category]; isDegraded {
			continue
		}
		result.Findings[candidate.category] = nonNil(candidate.findings)
		result.Scores[candidate.category] = scoreOf(candidate.score())
	}

	result.Findings[report.CategoryGeneral] = []report.Finding{}
	if _, isDegraded := degraded[report.CategoryGeneral]; !isDegraded {
		if partial.General != nil {
			result.Findings[report.CategoryGeneral] = nonNil(partial.General.Findings)
			result.Scores[report.CategoryGeneral] = scoreOf(partial.General.Score)
		} else {
			result.Scores[report.CategoryGeneral] = meanScore(result.Scores)
		}
	}

	result.Overall = OverallScore(result.Scores, weights)
	return result
}

// OverallScore is the weighted mean of the available scores, with the weights
// renormalized over them. With no scores available it is 10.
func OverallScore(scores map[report.Category]int, weights map[report.Category]float64) int {
	var weighted, total float64
	for _, category := range report.Categories {
		score, ok := scores[category]
		if !ok {
			continue
		}
		weighted += weights[category] * float64(score)
		total += weights[category]
	}
	if total <= 0 {
		return report.MaxScore
	}
	return report.ClampScore(report.RoundHalfUp(weighted / total))
}

func meanScore(scores map[report.Category]int) int {
	if len(scores) == 0 {
		return report.MaxScore
	}
	sum := 0
	for _, category := range report.Categories {
		sum += scores[category]
	}
	return report.ClampScore(report.RoundHalfUp(float64(sum) / float64(len(scores))))
}

func nonNil[T any](values []T) []T {
	if values == nil {
		return []T{}
	}
	return values
}
