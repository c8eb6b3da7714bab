package scanner

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/codeqa/codeqa/internal/config"
	"github.com/codeqa/codeqa/internal/report"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		filePath := filepath.Join(root, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
			t.Fatalf("Failed to create directory for %s: %v", name, err)
		}
		if err := os.WriteFile(filePath, []byte(content), 0644); err != nil {
			t.Fatalf("Failed to create test file %s: %v", name, err)
		}
	}
}

func structureConfig() *config.StructureConfig {
	return &config.DefaultConfig().Structure
}

func TestNewFileScanner_MissingRoot(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "does-not-exist")

	_, err := NewFileScanner(missing, structureConfig(), nil)
	if err == nil {
		t.Fatal("Expected error for missing root")
	}
	if !errors.Is(err, ErrRootNotFound) {
		t.Errorf("Expected ErrRootNotFound, got %v", err)
	}
	if !errors.Is(err, fs.ErrNotExist) {
		t.Errorf("Expected wrapped fs.ErrNotExist, got %v", err)
	}
}

func TestNewFileScanner_RootIsFile(t *testing.T) {
	tempDir := t.TempDir()
	filePath := filepath.Join(tempDir, "main.py")
	if err := os.WriteFile(filePath, []byte("print(1)\n"), 0644); err != nil {
		t.Fatalf("Failed to create file: %v", err)
	}

	if _, err := NewFileScanner(filePath, structureConfig(), nil); err == nil {
		t.Error("Expected error when root is a regular file")
	}
}

func TestFileScanner_ClassifyEmptyDirectory(t *testing.T) {
	scanner, err := NewFileScanner(t.TempDir(), structureConfig(), nil)
	if err != nil {
		t.Fatalf("Failed to create scanner: %v", err)
	}

	result, err := scanner.Classify(context.Background())
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}

	if len(result.Files) != 0 {
		t.Errorf("Expected no files, got %d", len(result.Files))
	}
	if len(result.Findings) != 0 {
		t.Errorf("Expected no findings, got %+v", result.Findings)
	}
	if result.OrganizationScore != report.MaxScore {
		t.Errorf("Expected organization score %d for empty set, got %d", report.MaxScore, result.OrganizationScore)
	}
}

func TestFileScanner_Classify(t *testing.T) {
	tempDir := t.TempDir()
	writeTree(t, tempDir, map[string]string{
		".gitignore":                 "*.log\ngenerated/\n",
		"README.md":                  "# Test Project",
		"main.go":                    "package main\nfunc main() {}\n",
		"src/util.py":                "print('hello')\n",
		"src/web/app.tsx":            "export const App = () => <div/>;\n",
		"Makefile":                   "all:\n",
		"app.log":                    "ignored",
		"generated/out.py":           "x = 1\n",
		"node_modules/left/index.js": "module.exports = 1;\n",
		"src/__pycache__/util.pyc":   "\x00\x01",
		"pkg.egg-info/PKG-INFO":      "Name: pkg\n",
		".git/HEAD":                  "ref: refs/heads/main\n",
	})

	scanner, err := NewFileScanner(tempDir, structureConfig(), nil)
	if err != nil {
		t.Fatalf("Failed to create scanner: %v", err)
	}

	result, err := scanner.Classify(context.Background())
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}

	expected := []string{".gitignore", "Makefile", "README.md", "main.go", "src/util.py", "src/web/app.tsx"}
	if len(result.Files) != len(expected) {
		t.Fatalf("Expected %d files, got %d: %+v", len(expected), len(result.Files), result.Files)
	}
	for i, file := range result.Files {
		if file.Path != expected[i] {
			t.Errorf("File %d: expected %s, got %s", i, expected[i], file.Path)
		}
		if file.Size <= 0 {
			t.Errorf("File %s should have a positive size", file.Path)
		}
	}

	if result.Files[5].Extension != ".tsx" {
		t.Errorf("Expected .tsx extension, got %s", result.Files[5].Extension)
	}
	if result.FileTypes["no_extension"] != 1 {
		t.Errorf("Expected one file without extension, got %d", result.FileTypes["no_extension"])
	}
	if result.Languages["Python"] != 1 || result.Languages["Go"] != 1 || result.Languages["TypeScript"] != 1 {
		t.Errorf("Unexpected language breakdown: %v", result.Languages)
	}

	for _, dir := range result.Directories {
		switch dir {
		case "node_modules", "generated", ".git", "pkg.egg-info", "src/__pycache__":
			t.Errorf("Excluded directory %s should not be listed", dir)
		}
	}

	// src dir + README
	if result.OrganizationScore != 8 {
		t.Errorf("Expected organization score 8, got %d", result.OrganizationScore)
	}
}

func TestFileScanner_GitignoreDisabled(t *testing.T) {
	tempDir := t.TempDir()
	writeTree(t, tempDir, map[string]string{
		".gitignore": "*.log\n",
		"app.log":    "kept",
	})

	cfg := structureConfig()
	cfg.RespectGitignore = false

	scanner, err := NewFileScanner(tempDir, cfg, nil)
	if err != nil {
		t.Fatalf("Failed to create scanner: %v", err)
	}

	result, err := scanner.Classify(context.Background())
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}

	if len(result.Files) != 2 {
		t.Errorf("Expected .gitignore and app.log, got %+v", result.Files)
	}
}

func TestFileScanner_PermissionDenied(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission checks do not apply to root")
	}

	tempDir := t.TempDir()
	writeTree(t, tempDir, map[string]string{
		"main.py":       "print(1)\n",
		"locked/hid.py": "print(2)\n",
	})

	locked := filepath.Join(tempDir, "locked")
	if err := os.Chmod(locked, 0000); err != nil {
		t.Fatalf("Failed to chmod: %v", err)
	}
	defer func() {
		_ = os.Chmod(locked, 0755)
	}()

	scanner, err := NewFileScanner(tempDir, structureConfig(), nil)
	if err != nil {
		t.Fatalf("Failed to create scanner: %v", err)
	}

	result, err := scanner.Classify(context.Background())
	if err != nil {
		t.Fatalf("Classify should not fail on unreadable subdirectory: %v", err)
	}

	if len(result.Files) != 1 || result.Files[0].Path != "main.py" {
		t.Errorf("Expected only main.py, got %+v", result.Files)
	}

	if len(result.Findings) != 1 {
		t.Fatalf("Expected one permission finding, got %+v", result.Findings)
	}
	finding := result.Findings[0]
	if finding.RuleID != rulePermissionDenied || finding.Severity != report.SeverityLow || finding.File != "locked" {
		t.Errorf("Unexpected finding: %+v", finding)
	}
}

func TestFileScanner_GitignoreSurvivesUnreadableSubdirectory(t *testing.T) {
	if os.Geteuid() == 0 {
		t.Skip("permission checks do not apply to root")
	}

	tempDir := t.TempDir()
	writeTree(t, tempDir, map[string]string{
		".gitignore":        "*.log\n",
		"debug.log":         "ignored",
		"main.py":           "print(1)\n",
		"locked/.gitignore": "*.py\n",
		"zone/trace.log":    "ignored",
	})

	locked := filepath.Join(tempDir, "locked")
	if err := os.Chmod(locked, 0000); err != nil {
		t.Fatalf("Failed to chmod: %v", err)
	}
	defer func() {
		_ = os.Chmod(locked, 0755)
	}()

	scanner, err := NewFileScanner(tempDir, structureConfig(), nil)
	if err != nil {
		t.Fatalf("Failed to create scanner: %v", err)
	}

	result, err := scanner.Classify(context.Background())
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}

	expected := []string{".gitignore", "main.py"}
	if len(result.Files) != len(expected) {
		t.Fatalf("Expected %v, got %+v", expected, result.Files)
	}
	for i, file := range result.Files {
		if file.Path != expected[i] {
			t.Errorf("File %d: expected %s, got %s", i, expected[i], file.Path)
		}
	}
	if len(result.Findings) != 1 || result.Findings[0].File != "locked" {
		t.Errorf("Expected one permission finding for locked, got %+v", result.Findings)
	}
}

func TestFileScanner_NestedGitignore(t *testing.T) {
	tempDir := t.TempDir()
	writeTree(t, tempDir, map[string]string{
		".gitignore":          "*.tmp\n",
		"a/.gitignore":        "# local\n\n*.py\n!keep.py\n",
		"a/drop.py":           "x = 1\n",
		"a/keep.py":           "x = 2\n",
		"a/scratch.tmp":       "ignored",
		"b/other.py":          "x = 3\n",
		".git/info/exclude":   "secrets.txt\n",
		"secrets.txt":         "ignored",
		"b/nested/secrets.md": "kept",
	})

	scanner, err := NewFileScanner(tempDir, structureConfig(), nil)
	if err != nil {
		t.Fatalf("Failed to create scanner: %v", err)
	}

	result, err := scanner.Classify(context.Background())
	if err != nil {
		t.Fatalf("Classify failed: %v", err)
	}

	expected := []string{".gitignore", "a/.gitignore", "a/keep.py", "b/nested/secrets.md", "b/other.py"}
	if len(result.Files) != len(expected) {
		t.Fatalf("Expected %v, got %+v", expected, result.Files)
	}
	for i, file := range result.Files {
		if file.Path != expected[i] {
			t.Errorf("File %d: expected %s, got %s", i, expected[i], file.Path)
		}
	}
}

func TestFileScanner_ClassifyCancelled(t *testing.T) {
	tempDir := t.TempDir()
	writeTree(t, tempDir, map[string]string{"main.py": "print(1)\n"})

	scanner, err := NewFileScanner(tempDir, structureConfig(), nil)
	if err != nil {
		t.Fatalf("Failed to create scanner: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := scanner.Classify(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
}

func TestOrganizationScore(t *testing.T) {
	rootFiles := func(n int) []report.FileRecord {
		files := make([]report.FileRecord, 0, n)
		for i := 0; i < n; i++ {
			files = append(files, report.FileRecord{Path: fmt.Sprintf("file%02d.py", i)})
		}
		return files
	}

	tests := []struct {
		name        string
		files       []report.FileRecord
		directories []string
		expected    int
	}{
		{"empty", nil, nil, 10},
		{"readme only", []report.FileRecord{{Path: "README.md"}}, nil, 7},
		{
			"conventional layout",
			[]report.FileRecord{
				{Path: "README.md"},
				{Path: "src/main.py"},
				{Path: "tests/test_main.py"},
				{Path: "docs/index.md"},
			},
			[]string{"docs", "src", "tests"},
			10,
		},
		{"flat at threshold", rootFiles(20), nil, 6},
		{"flat above threshold", rootFiles(21), nil, 3},
		{
			"crowded root with source dir",
			append(rootFiles(51), report.FileRecord{Path: "src/a.py"}),
			[]string{"src"},
			6,
		},
		{"nested test dir", []report.FileRecord{{Path: "pkg/__tests__/a.test.js"}}, []string{"pkg", "pkg/__tests__"}, 8},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			score := OrganizationScore(test.files, test.directories, 20)
			if score != test.expected {
				t.Errorf("Expected score %d, got %d", test.expected, score)
			}
		})
	}
}

func TestDetectLanguage(t *testing.T) {
	tests := []struct {
		path     string
		expected string
	}{
		{"main.go", "Go"},
		{"src/App.TSX", "TypeScript"},
		{"lib/index.mjs", "JavaScript"},
		{"setup.py", "Python"},
		{"Dockerfile", "Dockerfile"},
		{"go.mod", "Go"},
		{"LICENSE", ""},
		{"image.png", ""},
	}

	for _, test := range tests {
		if language := DetectLanguage(test.path); language != test.expected {
			t.Errorf("DetectLanguage(%q) = %q, expected %q", test.path, language, test.expected)
		}
	}
}

func TestSortedFileTypes(t *testing.T) {
	keys := SortedFileTypes(map[string]int{".py": 3, ".go": 3, ".md": 1, "no_extension": 5})
	expected := []string{"no_extension", ".go", ".py", ".md"}

	if len(keys) != len(expected) {
		t.Fatalf("Expected %d keys, got %v", len(expected), keys)
	}
	for i := range expected {
		if keys[i] != expected[i] {
			t.Errorf("Position %d: expected %s, got %s", i, expected[i], keys[i])
		}
	}
}
