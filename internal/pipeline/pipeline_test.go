package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/codeqa/codeqa/internal/analyzer"
	"github.com/codeqa/codeqa/internal/config"
	"github.com/codeqa/codeqa/internal/report"
	"github.com/codeqa/codeqa/internal/scanner"
)

func writeProject(t *testing.T, files map[string]string) string {
	t.Helper()

	root := t.TempDir()
	for name, content := range files {
		filePath := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
			t.Fatalf("Failed to create directory for %s: %v", name, err)
		}
		if err := os.WriteFile(filePath, []byte(content), 0644); err != nil {
			t.Fatalf("Failed to create test file %s: %v", name, err)
		}
	}
	return root
}

func TestRunComponent(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		value, reason := runComponent(context.Background(), time.Second, func(context.Context) (int, error) {
			return 42, nil
		})
		if value != 42 || reason != "" {
			t.Errorf("Expected 42 with no reason, got %d %q", value, reason)
		}
	})

	t.Run("error", func(t *testing.T) {
		value, reason := runComponent(context.Background(), time.Second, func(context.Context) (int, error) {
			return 7, errors.New("boom")
		})
		if value != 0 || reason != "error: boom" {
			t.Errorf("Expected zero value and error reason, got %d %q", value, reason)
		}
	})

	t.Run("panic", func(t *testing.T) {
		_, reason := runComponent(context.Background(), time.Second, func(context.Context) ([]string, error) {
			panic("unexpected state")
		})
		if reason != "panic: unexpected state" {
			t.Errorf("Expected panic reason, got %q", reason)
		}
	})

	t.Run("timeout ignoring context", func(t *testing.T) {
		release := make(chan struct{})
		defer close(release)

		start := time.Now()
		_, reason := runComponent(context.Background(), 50*time.Millisecond, func(context.Context) (int, error) {
			<-release
			return 1, nil
		})
		if reason != "timeout after 50ms" {
			t.Errorf("Expected timeout reason, got %q", reason)
		}
		if elapsed := time.Since(start); elapsed > time.Second {
			t.Errorf("Component was not abandoned at the deadline, took %v", elapsed)
		}
	})

	t.Run("timeout honouring context", func(t *testing.T) {
		_, reason := runComponent(context.Background(), 50*time.Millisecond, func(ctx context.Context) (int, error) {
			<-ctx.Done()
			return 0, ctx.Err()
		})
		if reason != "timeout after 50ms" {
			t.Errorf("Expected timeout reason, got %q", reason)
		}
	})

	t.Run("cancelled parent", func(t *testing.T) {
		release := make(chan struct{})
		defer close(release)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, reason := runComponent(ctx, time.Second, func(context.Context) (int, error) {
			<-release
			return 1, nil
		})
		if reason != "cancelled" {
			t.Errorf("Expected cancelled reason, got %q", reason)
		}
	})
}

func TestOverallScore(t *testing.T) {
	weights := config.DefaultConfig().Weights.ByCategory()

	tests := []struct {
		name     string
		scores   map[report.Category]int
		expected int
	}{
		{
			name:     "all perfect",
			scores:   map[report.Category]int{"structure": 10, "syntax": 10, "security": 10, "dependencies": 10, "general": 10},
			expected: 10,
		},
		{
			name:     "weighted mean",
			scores:   map[report.Category]int{"structure": 4, "syntax": 10, "security": 2, "dependencies": 10, "general": 6},
			expected: 6,
		},
		{
			name:     "security excluded and renormalized",
			scores:   map[report.Category]int{"structure": 4, "syntax": 10, "dependencies": 10, "general": 6},
			expected: 8,
		},
		{
			name:     "nothing available",
			scores:   map[report.Category]int{},
			expected: 10,
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			if got := OverallScore(test.scores, weights); got != test.expected {
				t.Errorf("Expected %d, got %d", test.expected, got)
			}
		})
	}
}

func TestAggregate_GeneralDefaultsToMean(t *testing.T) {
	partial := Partial{
		Classification: &scanner.Classification{
			Root:              "/project",
			Files:             []report.FileRecord{{Path: "main.go", Extension: ".go", Size: 10}},
			FileTypes:         map[string]int{".go": 1},
			Languages:         map[string]int{"Go": 1},
			OrganizationScore: 6,
		},
	}

	result := Aggregate(partial, config.DefaultConfig().Weights.ByCategory())

	if result.Scores[report.CategoryGeneral] != 9 {
		t.Errorf("Expected general to default to 9, got %d", result.Scores[report.CategoryGeneral])
	}
	if result.Overall != 9 {
		t.Errorf("Expected overall 9, got %d", result.Overall)
	}
	if result.Degraded != nil {
		t.Errorf("Expected no degraded categories, got %v", result.Degraded)
	}
	for _, category := range report.Categories {
		if result.Findings[category] == nil {
			t.Errorf("Expected an empty finding list for %s", category)
		}
	}
}

func TestAggregate_DegradedCategories(t *testing.T) {
	high := report.Finding{RuleID: "dynamic-exec", Category: report.CategorySecurity, Severity: report.SeverityHigh, File: "a.py"}
	partial := Partial{
		Classification: &scanner.Classification{
			Files:             []report.FileRecord{{Path: "a.py", Extension: ".py", Size: 10}},
			OrganizationScore: 6,
		},
		SecurityFindings: []report.Finding{high},
		General:          &analyzer.GeneralReport{Score: 4, Findings: []report.Finding{}},
		Degraded: map[report.Category]string{
			report.CategorySecurity: "timeout after 1m0s",
		},
	}

	result := Aggregate(partial, config.DefaultConfig().Weights.ByCategory())

	if _, ok := result.Scores[report.CategorySecurity]; ok {
		t.Error("Degraded category should have no score")
	}
	if len(result.Findings[report.CategorySecurity]) != 0 {
		t.Errorf("Degraded category should have no findings, got %+v", result.Findings[report.CategorySecurity])
	}
	if result.Degraded[report.CategorySecurity] != "timeout after 1m0s" {
		t.Errorf("Expected degraded reason to be kept, got %v", result.Degraded)
	}
	// (0.15*6 + 0.25*10 + 0.20*10 + 0.10*4) / 0.70 = 8.43
	if result.Overall != 8 {
		t.Errorf("Expected overall 8, got %d", result.Overall)
	}

	partial.Degraded = map[report.Category]string{}
	for _, category := range report.Categories {
		partial.Degraded[category] = "panic: test"
	}
	if overall := Aggregate(partial, config.DefaultConfig().Weights.ByCategory()).Overall; overall != 10 {
		t.Errorf("Expected overall 10 with every category degraded, got %d", overall)
	}
}

func TestAnalyze_MissingRoot(t *testing.T) {
	_, err := Analyze(context.Background(), filepath.Join(t.TempDir(), "missing"), Options{})
	if !errors.Is(err, scanner.ErrRootNotFound) || !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Expected ErrRootNotFound wrapping fs.ErrNotExist, got %v", err)
	}
}

func TestAnalyze_UnknownLanguage(t *testing.T) {
	root := writeProject(t, map[string]string{"main.go": "package main\n"})

	_, err := Analyze(context.Background(), root, Options{Languages: []string{"go", "cobol"}})
	if !errors.Is(err, ErrUnknownLanguage) {
		t.Errorf("Expected ErrUnknownLanguage, got %v", err)
	}
}

func TestAnalyze_EmptyDirectory(t *testing.T) {
	result, err := Analyze(context.Background(), t.TempDir(), Options{})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	if len(result.Files) != 0 {
		t.Errorf("Expected no files, got %v", result.Files)
	}
	for _, category := range report.Categories {
		if result.Scores[category] != 10 {
			t.Errorf("Expected %s score 10 for an empty directory, got %d", category, result.Scores[category])
		}
	}
	if result.Overall != 10 {
		t.Errorf("Expected overall 10, got %d", result.Overall)
	}
}

func TestAnalyze_EvalOnly(t *testing.T) {
	root := writeProject(t, map[string]string{"app.py": "eval(user_input)\n"})

	result, err := Analyze(context.Background(), root, Options{})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}

	security := result.Findings[report.CategorySecurity]
	if len(security) != 1 {
		t.Fatalf("Expected one security finding, got %+v", security)
	}
	if security[0].RuleID != "dynamic-exec" || security[0].Severity != report.SeverityHigh || security[0].File != "app.py" {
		t.Errorf("Expected high dynamic-exec in app.py, got %+v", security[0])
	}
	if result.Scores[report.CategorySecurity] != 8 {
		t.Errorf("Expected security score 8, got %d", result.Scores[report.CategorySecurity])
	}
	if len(result.Probes) != 0 {
		t.Errorf("Expected no probes, got %+v", result.Probes)
	}
}

func TestAnalyze_Deterministic(t *testing.T) {
	root := writeProject(t, map[string]string{
		"README.md":        "# demo\n",
		".gitignore":       "*.log\n",
		"requirements.txt": "requests==2.31.0\nflask\n",
		"src/app.py":       "import os\nos.system('ls')  # TODO: remove\n",
		"src/web/index.js": "const x = eval(input);\nconsole.log(x);\n",
		"main.go":          "package main\n\nimport \"fmt\"\n\nfunc main() {\n\tfmt.Println(\"hi\")\n}\n",
		"debug.log":        "ignored\n",
	})

	a, err := New(config.DefaultConfig(), nil)
	if err != nil {
		t.Fatalf("Failed to create analyzer: %v", err)
	}

	var outputs [][]byte
	for i := 0; i < 2; i++ {
		result, err := a.Analyze(context.Background(), root, Options{})
		if err != nil {
			t.Fatalf("Analyze failed: %v", err)
		}
		data, err := json.Marshal(result)
		if err != nil {
			t.Fatalf("Failed to marshal report: %v", err)
		}
		outputs = append(outputs, data)
	}

	if !bytes.Equal(outputs[0], outputs[1]) {
		t.Errorf("Expected identical JSON across runs:\n%s\n%s", outputs[0], outputs[1])
	}
	if strings.Contains(string(outputs[0]), "debug.log") {
		t.Error("Expected gitignored file to be excluded")
	}
	if !strings.Contains(string(outputs[0]), `"name":"flask"`) {
		t.Error("Expected dependencies in the report")
	}
}

func TestAnalyze_ProbesClosedPort(t *testing.T) {
	root := writeProject(t, map[string]string{"main.go": "package main\n"})

	cfg := config.DefaultConfig()
	cfg.Probe.Host = "127.0.0.1"
	a, err := New(cfg, nil)
	if err != nil {
		t.Fatalf("Failed to create analyzer: %v", err)
	}

	result, err := a.Analyze(context.Background(), root, Options{Ports: []int{1}})
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if len(result.Probes) != 1 {
		t.Fatalf("Expected one probe result, got %+v", result.Probes)
	}
	if result.Probes[0].Reachable || result.Probes[0].LatencyMS != nil {
		t.Errorf("Expected an unreachable probe with no latency, got %+v", result.Probes[0])
	}
}

func TestAnalyze_CancelledContext(t *testing.T) {
	root := writeProject(t, map[string]string{"main.go": "package main\n"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := Analyze(ctx, root, Options{}); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}
