package analyzer

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
)

// Reads a JSON list of paths on stdin and prints one result per path.
const pythonParseScript = `
import ast, json, sys, warnings
warnings.simplefilter("ignore")
results = []
for path in json.load(sys.stdin):
    try:
        with open(path, "rb") as handle:
            ast.parse(handle.read(), filename=path)
        results.append({"ok": True})
    except SyntaxError as exc:
        results.append({"ok": False, "msg": str(exc.msg), "line": exc.lineno or 0, "col": exc.offset or 0})
    except Exception as exc:
        results.append({"ok": False, "msg": str(exc), "line": 0, "col": 0})
json.dump(results, sys.stdout)
`

type pythonParseResult struct {
	OK      bool   `json:"ok"`
	Message string `json:"msg"`
	Line    int    `json:"line"`
	Column  int    `json:"col"`
}

// pythonParser runs ast.parse in one interpreter process per batch.
type pythonParser struct {
	interpreter string
}

func (p *pythonParser) parse(ctx context.Context, files []sourceFile) ([]*ParseError, error) {
	if len(files) == 0 {
		return nil, nil
	}

	interpreter, err := exec.LookPath(p.interpreter)
	if err != nil {
		return nil, fmt.Errorf("python interpreter %q not available: %w", p.interpreter, err)
	}

	paths := make([]string, len(files))
	for i, file := range files {
		paths[i] = file.absPath
	}
	input, err := json.Marshal(paths)
	if err != nil {
		return nil, fmt.Errorf("failed to encode file list: %w", err)
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, interpreter, "-c", pythonParseScript)
	cmd.Stdin = bytes.NewReader(input)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("python parse failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	var results []pythonParseResult
	if err := json.Unmarshal(stdout.Bytes(), &results); err != nil {
		return nil, fmt.Errorf("failed to decode python parse output: %w", err)
	}
	if len(results) != len(files) {
		return nil, fmt.Errorf("python parse returned %d results for %d files", len(results), len(files))
	}

	parseErrors := make([]*ParseError, len(files))
	for i, result := range results {
		if result.OK {
			continue
		}
		parseErrors[i] = &ParseError{
			Line:    result.Line,
			Column:  result.Column,
			Message: result.Message,
		}
	}
	return parseErrors, nil
}
