package analyzer

import (
	"context"
	"errors"
	"fmt"
	goparser "go/parser"
	goscanner "go/scanner"
	"go/token"
	"regexp"
	"strings"

	"github.com/evanw/esbuild/pkg/api"
	"github.com/sourcegraph/conc/iter"

	"github.com/codeqa/codeqa/internal/report"
)

type Language string

const (
	LanguagePython     Language = "python"
	LanguageGo         Language = "go"
	LanguageJavaScript Language = "javascript"
	LanguageTypeScript Language = "typescript"
)

// SupportedLanguages lists the syntax variants in a fixed order.
var SupportedLanguages = []Language{LanguagePython, LanguageGo, LanguageJavaScript, LanguageTypeScript}

// ParseLanguage accepts a language name case-insensitively. "js" and "ts"
// are accepted as aliases.
func ParseLanguage(name string) (Language, bool) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "python", "py":
		return LanguagePython, true
	case "go", "golang":
		return LanguageGo, true
	case "javascript", "js":
		return LanguageJavaScript, true
	case "typescript", "ts":
		return LanguageTypeScript, true
	default:
		return "", false
	}
}

// ParseError is the first error a parser reports for a file. Line and Column
// are 1-based; zero means unknown.
type ParseError struct {
	Line    int
	Column  int
	Message string
}

type sourceFile struct {
	record  report.FileRecord
	content []byte
	absPath string
}

// sourceParser checks a batch of files of one language. The returned slice is
// index-aligned with files; a nil entry means the file parsed. A non-nil error
// means the backend itself could not run.
type sourceParser interface {
	parse(ctx context.Context, files []sourceFile) ([]*ParseError, error)
}

type languageVariant struct {
	language         Language
	extensions       []string
	consolePattern   *regexp.Regexp
	checkIndentation bool
	checkEffects     bool
	parser           sourceParser
}

func newLanguageVariants(pythonInterpreter string) []languageVariant {
	return []languageVariant{
		{
			language:         LanguagePython,
			extensions:       []string{".py"},
			consolePattern:   regexp.MustCompile(`(?:^|[^.\w])(?P<at>print)\s*\(`),
			checkIndentation: true,
			parser:           &pythonParser{interpreter: pythonInterpreter},
		},
		{
			language:       LanguageGo,
			extensions:     []string{".go"},
			consolePattern: regexp.MustCompile(`(?:^|[^.\w])(?P<at>fmt\.Print(?:ln|f)?|print(?:ln)?)\s*\(`),
			parser:         perFileParser(parseGo),
		},
		{
			language:       LanguageJavaScript,
			extensions:     []string{".js", ".jsx", ".mjs", ".cjs"},
			consolePattern: regexp.MustCompile(`\bconsole\.(?:log|debug|info|warn|error|trace)\s*\(`),
			checkEffects:   true,
			parser:         perFileParser(parseWithEsbuild),
		},
		{
			language:       LanguageTypeScript,
			extensions:     []string{".ts", ".tsx"},
			consolePattern: regexp.MustCompile(`\bconsole\.(?:log|debug|info|warn|error|trace)\s*\(`),
			checkEffects:   true,
			parser:         perFileParser(parseWithEsbuild),
		},
	}
}

// perFileParser fans a single-file parse function out over a batch.
type perFileParser func(file sourceFile) *ParseError

func (p perFileParser) parse(ctx context.Context, files []sourceFile) ([]*ParseError, error) {
	results := iter.Map(files, func(file *sourceFile) *ParseError {
		if ctx.Err() != nil {
			return nil
		}
		return p(*file)
	})
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func parseGo(file sourceFile) *ParseError {
	_, err := goparser.ParseFile(token.NewFileSet(), file.record.Path, file.content, goparser.SkipObjectResolution)
	if err == nil {
		return nil
	}

	var list goscanner.ErrorList
	if errors.As(err, &list) && len(list) > 0 {
		return &ParseError{
			Line:    list[0].Pos.Line,
			Column:  list[0].Pos.Column,
			Message: list[0].Msg,
		}
	}
	return &ParseError{Message: err.Error()}
}

var esbuildLoaders = map[string]api.Loader{
	".js":  api.LoaderJSX,
	".jsx": api.LoaderJSX,
	".mjs": api.LoaderJS,
	".cjs": api.LoaderJS,
	".ts":  api.LoaderTS,
	".tsx": api.LoaderTSX,
}

func parseWithEsbuild(file sourceFile) *ParseError {
	loader, ok := esbuildLoaders[file.record.Extension]
	if !ok {
		return &ParseError{Message: fmt.Sprintf("no loader for %s", file.record.Extension)}
	}

	result := api.Transform(string(file.content), api.TransformOptions{
		Loader:     loader,
		Sourcefile: file.record.Path,
		LogLevel:   api.LogLevelSilent,
	})
	if len(result.Errors) == 0 {
		return nil
	}

	first := result.Errors[0]
	parseErr := &ParseError{Message: first.Text}
	if first.Location != nil {
		parseErr.Line = first.Location.Line
		parseErr.Column = first.Location.Column + 1
	}
	return parseErr
}
