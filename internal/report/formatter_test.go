package report

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func TestTableFormatter_Format(t *testing.T) {
	formatter := &TableFormatter{}

	output, err := formatter.Format(createTestEnvelope())
	if err != nil {
		t.Fatalf("Failed to format report: %v", err)
	}

	t.Logf("Actual output:\n%s", output)

	expected := []string{
		"Code QA Report - /test/repo",
		"Branch: main | Commit: abc123de",
		"Scores:",
		"Security       8/10 (Grade: B)",
		"Dependencies   n/a  (degraded: timeout after 1m0s)",
		"Overall        9/10 (Grade: A)",
		"Findings:",
		"[HIGH] app.py:1:1 (security/dynamic-exec)",
		"[LOW] . (general/missing-tests)",
		"Go: 3 files",
		"[UP] http://localhost:3000/ 200 in 12.50ms [react, html]",
		"[DOWN] http://localhost:8000/ (connection_refused)",
	}
	for _, text := range expected {
		if !strings.Contains(output, text) {
			t.Errorf("Output should contain %q", text)
		}
	}
}

func TestTableFormatter_NoFindings(t *testing.T) {
	envelope := createTestEnvelope()
	envelope.Report.Findings = map[Category][]Finding{}
	envelope.Branch = ""

	output, err := (&TableFormatter{}).Format(envelope)
	if err != nil {
		t.Fatalf("Failed to format report: %v", err)
	}
	if !strings.Contains(output, "No findings") {
		t.Error("Output should report no findings")
	}
	if strings.Contains(output, "Branch:") {
		t.Error("Branch line should be omitted outside a git work tree")
	}
}

func TestJSONFormatter_Format(t *testing.T) {
	envelope := createTestEnvelope()

	output, err := (&JSONFormatter{}).Format(envelope)
	if err != nil {
		t.Fatalf("Failed to format report: %v", err)
	}

	var result map[string]interface{}
	if err := json.Unmarshal([]byte(output), &result); err != nil {
		t.Fatalf("Output is not valid JSON: %v", err)
	}

	for _, field := range []string{"repository", "branch", "timestamp", "duration", "report"} {
		if _, exists := result[field]; !exists {
			t.Errorf("JSON output should contain field '%s'", field)
		}
	}

	var decoded Envelope
	if err := json.Unmarshal([]byte(output), &decoded); err != nil {
		t.Fatalf("Failed to decode envelope: %v", err)
	}
	if len(decoded.Report.Findings[CategorySecurity]) != 1 {
		t.Errorf("Expected one security finding, got %+v", decoded.Report.Findings)
	}
	if decoded.Report.Probes[1].LatencyMS != nil {
		t.Error("Unreachable probe should keep a null latency")
	}
	if !strings.Contains(output, `"latency_ms": null`) {
		t.Error("Expected latency_ms to serialize as null")
	}
}

func TestYAMLFormatter_Format(t *testing.T) {
	output, err := (&YAMLFormatter{}).Format(createTestEnvelope())
	if err != nil {
		t.Fatalf("Failed to format report: %v", err)
	}

	var result map[string]interface{}
	if err := yaml.Unmarshal([]byte(output), &result); err != nil {
		t.Fatalf("Output is not valid YAML: %v", err)
	}
	if result["repository"] != "/test/repo" {
		t.Errorf("Expected repository in YAML, got %v", result["repository"])
	}
	if !strings.Contains(output, "rule_id: dynamic-exec") {
		t.Error("Expected findings in YAML output")
	}
}

func TestMarkdownFormatter_Format(t *testing.T) {
	output, err := (&MarkdownFormatter{}).Format(createTestEnvelope())
	if err != nil {
		t.Fatalf("Failed to format report: %v", err)
	}

	t.Logf("Actual output:\n%s", output)

	expected := []string{
		"# Code QA Report - /test/repo",
		"## Scores",
		"| Security | 8/10 | B |",
		"| Dependencies | n/a | degraded: timeout after 1m0s |",
		"## Findings",
		"### Security",
		"🟠 **HIGH** `app.py:1:1` dynamic-exec",
		"| http://localhost:8000/ | no (connection_refused) | - | - |",
	}
	for _, text := range expected {
		if !strings.Contains(output, text) {
			t.Errorf("Output should contain %q", text)
		}
	}
}

func TestFormatProbes(t *testing.T) {
	probes := createTestEnvelope().Report.Probes

	tests := []struct {
		format   string
		expected []string
	}{
		{"table", []string{"[UP] http://localhost:3000/ 200 in 12.50ms [react, html]", "[DOWN] http://localhost:8000/ (connection_refused)"}},
		{"markdown", []string{"| URL | Reachable | Status | Latency |", "| http://localhost:3000/ | yes | 200 | 12.50ms |", "| http://localhost:8000/ | no (connection_refused) | - | - |"}},
		{"json", []string{`"latency_ms": null`, `"error_class": "connection_refused"`}},
		{"yaml", []string{"latency_ms: null", "error_class: connection_refused"}},
	}

	for _, test := range tests {
		t.Run(test.format, func(t *testing.T) {
			output, err := FormatProbes(test.format, probes)
			if err != nil {
				t.Fatalf("FormatProbes failed: %v", err)
			}
			for _, text := range test.expected {
				if !strings.Contains(output, text) {
					t.Errorf("Output should contain %q, got:\n%s", text, output)
				}
			}
		})
	}
}

func TestGetFormatter(t *testing.T) {
	tests := []struct {
		format   string
		expected string
	}{
		{"table", "*report.TableFormatter"},
		{"json", "*report.JSONFormatter"},
		{"yaml", "*report.YAMLFormatter"},
		{"markdown", "*report.MarkdownFormatter"},
		{"invalid", "*report.TableFormatter"}, // Should default to table
		{"", "*report.TableFormatter"},        // Should default to table
	}

	for _, test := range tests {
		formatter := GetFormatter(test.format)
		formatterType := getFormatterType(formatter)
		if formatterType != test.expected {
			t.Errorf("For format '%s', expected %s, got %s",
				test.format, test.expected, formatterType)
		}
	}
}

func TestValidFormat(t *testing.T) {
	for _, format := range Formats {
		if !ValidFormat(format) {
			t.Errorf("Expected %s to be valid", format)
		}
	}
	if ValidFormat("xml") {
		t.Error("Expected xml to be rejected")
	}
}

func TestTitleCase(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"hello", "Hello"},
		{"WORLD", "World"},
		{"mixedCase", "Mixedcase"},
		{"", ""},
		{"a", "A"},
	}

	for _, test := range tests {
		result := titleCase(test.input)
		if result != test.expected {
			t.Errorf("For input '%s', expected '%s', got '%s'",
				test.input, test.expected, result)
		}
	}
}

func TestFormatNumber(t *testing.T) {
	tests := map[int]string{
		0:       "0",
		999:     "999",
		1000:    "1,000",
		1234567: "1,234,567",
	}

	for input, expected := range tests {
		if got := formatNumber(input); got != expected {
			t.Errorf("formatNumber(%d) = %s; expected %s", input, got, expected)
		}
	}
}

// Helper functions for tests

func createTestEnvelope() *Envelope {
	latency := 12.5
	return &Envelope{
		Repository: "/test/repo",
		Branch:     "main",
		CommitHash: "abc123def456",
		Timestamp:  time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Duration:   "123ms",
		Version:    "1.0.0",
		Report: &AnalysisReport{
			Root: "/test/repo",
			Files: []FileRecord{
				{Path: "app.py", Extension: ".py", Size: 17},
				{Path: "main.go", Extension: ".go", Size: 40},
			},
			FileTypes: map[string]int{".py": 1, ".go": 3},
			Languages: map[string]int{"Go": 3, "Python": 1},
			Findings: map[Category][]Finding{
				CategoryStructure: {},
				CategorySyntax:    {},
				CategorySecurity: {
					{RuleID: "dynamic-exec", Category: CategorySecurity, Severity: SeverityHigh, File: "app.py", Line: 1, Column: 1, Message: "Dynamic code execution"},
				},
				CategoryGeneral: {
					{RuleID: "missing-tests", Category: CategoryGeneral, Severity: SeverityLow, File: ".", Message: "No test files found"},
				},
			},
			Dependencies: []DependencyEntry{},
			Probes: []ProbeResult{
				{Port: 3000, URL: "http://localhost:3000/", Reachable: true, StatusCode: 200, LatencyMS: &latency, Frameworks: []string{"react", "html"}},
				{Port: 8000, URL: "http://localhost:8000/", ErrorClass: "connection_refused", Error: "connection refused"},
			},
			Scores: map[Category]int{
				CategoryStructure: 7,
				CategorySyntax:    10,
				CategorySecurity:  8,
				CategoryGeneral:   8,
			},
			Overall:  9,
			Degraded: map[Category]string{CategoryDependencies: "timeout after 1m0s"},
		},
	}
}

func getFormatterType(formatter Formatter) string {
	switch formatter.(type) {
	case *TableFormatter:
		return "*report.TableFormatter"
	case *JSONFormatter:
		return "*report.JSONFormatter"
	case *YAMLFormatter:
		return "*report.YAMLFormatter"
	case *MarkdownFormatter:
		return "*report.MarkdownFormatter"
	default:
		return "unknown"
	}
}
