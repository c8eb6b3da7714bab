package scanner

import (
	"path"
	"strings"
)

var languageByExtension = map[string]string{
	".go":       "Go",
	".py":       "Python",
	".pyw":      "Python",
	".pyi":      "Python",
	".js":       "JavaScript",
	".jsx":      "JavaScript",
	".mjs":      "JavaScript",
	".cjs":      "JavaScript",
	".ts":       "TypeScript",
	".tsx":      "TypeScript",
	".java":     "Java",
	".c":        "C",
	".cpp":      "C++",
	".cxx":      "C++",
	".cc":       "C++",
	".h":        "C/C++",
	".hpp":      "C++",
	".cs":       "C#",
	".php":      "PHP",
	".rb":       "Ruby",
	".rs":       "Rust",
	".swift":    "Swift",
	".kt":       "Kotlin",
	".scala":    "Scala",
	".sh":       "Shell",
	".bash":     "Shell",
	".zsh":      "Shell",
	".ps1":      "PowerShell",
	".sql":      "SQL",
	".html":     "HTML",
	".htm":      "HTML",
	".css":      "CSS",
	".scss":     "SCSS",
	".vue":      "Vue",
	".svelte":   "Svelte",
	".json":     "JSON",
	".yaml":     "YAML",
	".yml":      "YAML",
	".toml":     "TOML",
	".ini":      "INI",
	".cfg":      "Config",
	".md":       "Markdown",
	".markdown": "Markdown",
	".rst":      "reStructuredText",
	".ipynb":    "Jupyter Notebook",
}

var languageByFileName = map[string]string{
	"dockerfile": "Dockerfile",
	"makefile":   "Makefile",
	"gemfile":    "Ruby",
	"rakefile":   "Ruby",
	"pipfile":    "TOML",
	"go.mod":     "Go",
	"go.sum":     "Go",
}

// DetectLanguage maps a file path to a display language, or "" when unknown.
func DetectLanguage(filePath string) string {
	if language, ok := languageByExtension[strings.ToLower(path.Ext(filePath))]; ok {
		return language
	}
	return languageByFileName[strings.ToLower(path.Base(filePath))]
}

// IsCodeLanguage reports whether language is a programming language rather
// than markup, data or documentation.
func IsCodeLanguage(language string) bool {
	switch language {
	case "", "JSON", "YAML", "TOML", "INI", "Config", "Markdown", "reStructuredText",
		"HTML", "CSS", "SCSS", "Makefile", "Dockerfile":
		return false
	default:
		return true
	}
}
