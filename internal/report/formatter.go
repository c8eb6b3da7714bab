package report

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"
)

// Formats lists the names accepted by GetFormatter.
var Formats = []string{"table", "json", "markdown", "yaml"}

type langStat struct {
	name  string
	files int
}

type Formatter interface {
	Format(envelope *Envelope) (string, error)
}

type TableFormatter struct {
	colorize bool
}

func NewTableFormatter(colorize bool) *TableFormatter {
	return &TableFormatter{colorize: colorize}
}

func (f *TableFormatter) Format(envelope *Envelope) (string, error) {
	var output strings.Builder
	report := envelope.Report

	f.writeHeading(&output, fmt.Sprintf("Code QA Report - %s\n", envelope.Repository), color.FgCyan)
	if envelope.Branch != "" {
		output.WriteString(fmt.Sprintf("Branch: %s | Commit: %s\n", envelope.Branch, shortHash(envelope.CommitHash)))
	}
	output.WriteString(fmt.Sprintf("Scan completed at: %s (took %s)\n\n",
		envelope.Timestamp.Format("2006-01-02 15:04:05"), envelope.Duration))

	f.writeScores(&output, report)
	f.writeInventory(&output, report)
	f.writeProbes(&output, report.Probes)

	findings := report.AllFindings()
	if len(findings) > 0 {
		output.WriteString("\n")
		f.writeHeading(&output, "Findings:\n", color.FgYellow)
		f.writeFindingsTable(&output, findings)
	} else {
		output.WriteString("\n")
		f.writeHeading(&output, "✅ No findings.\n", color.FgGreen)
	}

	return output.String(), nil
}

func (f *TableFormatter) writeHeading(output *strings.Builder, text string, attribute color.Attribute) {
	if f.colorize {
		output.WriteString(color.New(attribute, color.Bold).Sprint(text))
		return
	}
	output.WriteString(text)
}

func (f *TableFormatter) writeScores(output *strings.Builder, report *AnalysisReport) {
	f.writeHeading(output, "Scores:\n", color.FgYellow)
	for _, category := range Categories {
		if reason, ok := report.Degraded[category]; ok {
			output.WriteString(fmt.Sprintf("  %-13s  n/a  (degraded: %s)\n", titleCase(string(category)), reason))
			continue
		}
		score := report.Scores[category]
		line := fmt.Sprintf("  %-13s %2d/10 (Grade: %s)\n", titleCase(string(category)), score, Grade(score))
		if scoreColor := f.getScoreColor(score); f.colorize && scoreColor != nil {
			line = scoreColor.Sprint(line)
		}
		output.WriteString(line)
	}
	output.WriteString(fmt.Sprintf("  %-13s %2d/10 (Grade: %s)\n", "Overall", report.Overall, Grade(report.Overall)))

	counts := report.CountBySeverity()
	if len(counts) > 0 {
		output.WriteString("  Findings by severity:\n")
		for _, severity := range []Severity{SeverityHigh, SeverityMedium, SeverityLow} {
			if counts[severity] > 0 {
				f.writeSeverityCount(output, severity, counts[severity])
			}
		}
	}
}

func (f *TableFormatter) writeSeverityCount(output *strings.Builder, severity Severity, count int) {
	text := fmt.Sprintf("    %s: %d\n", titleCase(string(severity)), count)
	if severityColor := f.getSeverityColor(severity); f.colorize && severityColor != nil {
		text = severityColor.Sprint(text)
	}
	output.WriteString(text)
}

func (f *TableFormatter) writeInventory(output *strings.Builder, report *AnalysisReport) {
	output.WriteString("\n")
	f.writeHeading(output, "Inventory:\n", color.FgCyan)
	output.WriteString(fmt.Sprintf("  Files: %s\n", formatNumber(len(report.Files))))
	output.WriteString(fmt.Sprintf("  Dependencies: %s\n", formatNumber(len(report.Dependencies))))

	languages := sortLanguages(report.Languages)
	if len(languages) == 0 {
		return
	}

	output.WriteString("  Languages:\n")
	maxDisplay := min(8, len(languages))
	for _, lang := range languages[:maxDisplay] {
		output.WriteString(fmt.Sprintf("    %s: %s files\n", lang.name, formatNumber(lang.files)))
	}
	if len(languages) > maxDisplay {
		output.WriteString(fmt.Sprintf("    ... and %d more\n", len(languages)-maxDisplay))
	}
}

func (f *TableFormatter) writeProbes(output *strings.Builder, probes []ProbeResult) {
	if len(probes) == 0 {
		return
	}

	output.WriteString("\n")
	f.writeHeading(output, "Probes:\n", color.FgCyan)
	for _, probe := range probes {
		if !probe.Reachable {
			status := "DOWN"
			if f.colorize {
				status = color.New(color.FgRed).Sprint(status)
			}
			output.WriteString(fmt.Sprintf("  [%s] %s (%s)\n", status, probe.URL, probe.ErrorClass))
			continue
		}

		status := "UP"
		if f.colorize {
			status = color.New(color.FgGreen).Sprint(status)
		}
		output.WriteString(fmt.Sprintf("  [%s] %s %d in %.2fms", status, probe.URL, probe.StatusCode, *probe.LatencyMS))
		if len(probe.Frameworks) > 0 {
			output.WriteString(fmt.Sprintf(" [%s]", strings.Join(probe.Frameworks, ", ")))
		}
		output.WriteString("\n")
	}
}

func (f *TableFormatter) writeFindingsTable(output *strings.Builder, findings []Finding) {
	for i, finding := range findings {
		if i > 0 {
			output.WriteString("\n")
		}

		severity := strings.ToUpper(string(finding.Severity))
		if severityColor := f.getSeverityColor(finding.Severity); f.colorize && severityColor != nil {
			severity = severityColor.Sprint(severity)
		}

		output.WriteString(fmt.Sprintf("  [%s] %s (%s/%s)\n", severity, location(finding), finding.Category, finding.RuleID))
		output.WriteString(fmt.Sprintf("    %s\n", f.truncateString(finding.Message, 160)))
	}
}

func (f *TableFormatter) getSeverityColor(severity Severity) *color.Color {
	switch severity {
	case SeverityHigh:
		return color.New(color.FgRed)
	case SeverityMedium:
		return color.New(color.FgYellow)
	case SeverityLow:
		return color.New(color.FgBlue)
	default:
		return nil
	}
}

func (f *TableFormatter) getScoreColor(score int) *color.Color {
	switch {
	case score >= 8:
		return color.New(color.FgGreen)
	case score >= 6:
		return color.New(color.FgYellow)
	default:
		return color.New(color.FgRed)
	}
}

func (f *TableFormatter) truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}

type JSONFormatter struct{}

func NewJSONFormatter() *JSONFormatter {
	return &JSONFormatter{}
}

func (f *JSONFormatter) Format(envelope *Envelope) (string, error) {
	data, err := json.MarshalIndent(envelope, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report to JSON: %w", err)
	}
	return string(data), nil
}

type YAMLFormatter struct{}

func NewYAMLFormatter() *YAMLFormatter {
	return &YAMLFormatter{}
}

func (f *YAMLFormatter) Format(envelope *Envelope) (string, error) {
	data, err := yaml.Marshal(envelope)
	if err != nil {
		return "", fmt.Errorf("failed to marshal report to YAML: %w", err)
	}
	return string(data), nil
}

type MarkdownFormatter struct{}

func NewMarkdownFormatter() *MarkdownFormatter {
	return &MarkdownFormatter{}
}

func (f *MarkdownFormatter) Format(envelope *Envelope) (string, error) {
	var output strings.Builder
	report := envelope.Report

	output.WriteString(fmt.Sprintf("# Code QA Report - %s\n\n", envelope.Repository))
	if envelope.Branch != "" {
		output.WriteString(fmt.Sprintf("**Branch:** %s | **Commit:** %s\n\n", envelope.Branch, shortHash(envelope.CommitHash)))
	}
	output.WriteString(fmt.Sprintf("**Scan completed:** %s (took %s)\n\n",
		envelope.Timestamp.Format("2006-01-02 15:04:05"), envelope.Duration))

	output.WriteString("## Scores\n\n")
	output.WriteString("| Category | Score | Grade |\n")
	output.WriteString("|---|---|---|\n")
	for _, category := range Categories {
		if reason, ok := report.Degraded[category]; ok {
			output.WriteString(fmt.Sprintf("| %s | n/a | degraded: %s |\n", titleCase(string(category)), reason))
			continue
		}
		score := report.Scores[category]
		output.WriteString(fmt.Sprintf("| %s | %d/10 | %s |\n", titleCase(string(category)), score, Grade(score)))
	}
	output.WriteString(fmt.Sprintf("| **Overall** | **%d/10** | **%s** |\n\n", report.Overall, Grade(report.Overall)))

	f.writeInventoryMarkdown(&output, report)
	f.writeProbesMarkdown(&output, report.Probes)

	findings := report.AllFindings()
	if len(findings) == 0 {
		output.WriteString("## ✅ No Findings\n")
		return output.String(), nil
	}

	output.WriteString("## Findings\n\n")
	for _, category := range Categories {
		categoryFindings := report.Findings[category]
		if len(categoryFindings) == 0 {
			continue
		}
		output.WriteString(fmt.Sprintf("### %s\n\n", titleCase(string(category))))
		for _, finding := range categoryFindings {
			output.WriteString(fmt.Sprintf("- %s `%s` %s: %s\n",
				f.getSeverityBadge(finding.Severity), location(finding), finding.RuleID, finding.Message))
		}
		output.WriteString("\n")
	}

	return output.String(), nil
}

func (f *MarkdownFormatter) writeInventoryMarkdown(output *strings.Builder, report *AnalysisReport) {
	output.WriteString("## Inventory\n\n")
	output.WriteString(fmt.Sprintf("- **Files:** %s\n", formatNumber(len(report.Files))))
	output.WriteString(fmt.Sprintf("- **Dependencies:** %s\n\n", formatNumber(len(report.Dependencies))))

	languages := sortLanguages(report.Languages)
	if len(languages) == 0 {
		return
	}
	output.WriteString("### Languages\n\n")
	for _, lang := range languages {
		output.WriteString(fmt.Sprintf("- **%s:** %s files\n", lang.name, formatNumber(lang.files)))
	}
	output.WriteString("\n")
}

func (f *MarkdownFormatter) writeProbesMarkdown(output *strings.Builder, probes []ProbeResult) {
	if len(probes) == 0 {
		return
	}
	output.WriteString("## Probes\n\n")
	output.WriteString("| URL | Reachable | Status | Latency |\n")
	output.WriteString("|---|---|---|---|\n")
	for _, probe := range probes {
		if !probe.Reachable {
			output.WriteString(fmt.Sprintf("| %s | no (%s) | - | - |\n", probe.URL, probe.ErrorClass))
			continue
		}
		output.WriteString(fmt.Sprintf("| %s | yes | %d | %.2fms |\n", probe.URL, probe.StatusCode, *probe.LatencyMS))
	}
	output.WriteString("\n")
}

func (f *MarkdownFormatter) getSeverityBadge(severity Severity) string {
	switch severity {
	case SeverityHigh:
		return "🟠 **HIGH**"
	case SeverityMedium:
		return "🟡 **MEDIUM**"
	case SeverityLow:
		return "🔵 **LOW**"
	default:
		return "⚪ **UNKNOWN**"
	}
}

// FormatProbes renders probe results without the rest of a report.
func FormatProbes(format string, probes []ProbeResult) (string, error) {
	var output strings.Builder
	switch strings.ToLower(format) {
	case "json":
		data, err := json.MarshalIndent(probes, "", "  ")
		if err != nil {
			return "", fmt.Errorf("failed to marshal probes to JSON: %w", err)
		}
		return string(data) + "\n", nil
	case "yaml", "yml":
		data, err := yaml.Marshal(probes)
		if err != nil {
			return "", fmt.Errorf("failed to marshal probes to YAML: %w", err)
		}
		return string(data), nil
	case "markdown", "md":
		(&MarkdownFormatter{}).writeProbesMarkdown(&output, probes)
	default:
		NewTableFormatter(isTerminal()).writeProbes(&output, probes)
	}
	return output.String(), nil
}

// GetFormatter returns the formatter for format, falling back to the table.
func GetFormatter(format string) Formatter {
	switch strings.ToLower(format) {
	case "json":
		return NewJSONFormatter()
	case "yaml", "yml":
		return NewYAMLFormatter()
	case "markdown", "md":
		return NewMarkdownFormatter()
	case "table":
		fallthrough
	default:
		return NewTableFormatter(isTerminal())
	}
}

// ValidFormat reports whether GetFormatter knows format.
func ValidFormat(format string) bool {
	switch strings.ToLower(format) {
	case "table", "json", "yaml", "yml", "markdown", "md":
		return true
	default:
		return false
	}
}

func location(finding Finding) string {
	switch {
	case finding.Line > 0 && finding.Column > 0:
		return fmt.Sprintf("%s:%d:%d", finding.File, finding.Line, finding.Column)
	case finding.Line > 0:
		return fmt.Sprintf("%s:%d", finding.File, finding.Line)
	default:
		return finding.File
	}
}

func sortLanguages(breakdown map[string]int) []langStat {
	languages := make([]langStat, 0, len(breakdown))
	for name, files := range breakdown {
		languages = append(languages, langStat{name: name, files: files})
	}
	sort.Slice(languages, func(i, j int) bool {
		if languages[i].files != languages[j].files {
			return languages[i].files > languages[j].files
		}
		return languages[i].name < languages[j].name
	})
	return languages
}

func shortHash(hash string) string {
	if len(hash) > 8 {
		return hash[:8]
	}
	return hash
}

func titleCase(s string) string {
	if len(s) == 0 {
		return s
	}
	return strings.ToUpper(s[:1]) + strings.ToLower(s[1:])
}

func isTerminal() bool {
	fileInfo, err := os.Stdout.Stat()
	if err != nil {
		return false
	}
	return fileInfo.Mode()&os.ModeCharDevice != 0
}

func formatNumber(n int) string {
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}

	str := fmt.Sprintf("%d", n)
	result := ""

	for i, char := range str {
		if i > 0 && (len(str)-i)%3 == 0 {
			result += ","
		}
		result += string(char)
	}

	return result
}
