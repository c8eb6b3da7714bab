package analyzer

import (
	"bytes"
	"regexp"
)

var effectCallPattern = regexp.MustCompile(`\b(?P<at>use(?:Layout)?Effect)\s*\(`)

// effectPosition is the 1-based line and column of a hook call.
type effectPosition struct {
	line   int
	column int
}

// effectsWithoutDependencies finds useEffect and useLayoutEffect calls that
// pass a single argument, so the effect reruns after every render. The source
// must already parse; strings, template literals and comments are skipped
// while matching brackets.
func effectsWithoutDependencies(content []byte) []effectPosition {
	var positions []effectPosition
	at := effectCallPattern.SubexpIndex("at")

	for _, loc := range effectCallPattern.FindAllSubmatchIndex(content, -1) {
		if hasSecondArgument(content, loc[1]) {
			continue
		}
		positions = append(positions, positionAt(content, loc[2*at]))
	}
	return positions
}

// hasSecondArgument scans from just after the opening parenthesis of a call
// and reports whether a non-empty argument follows a top-level comma.
func hasSecondArgument(content []byte, start int) bool {
	depth := 0
	afterComma := false

	for i := start; i < len(content); i++ {
		c := content[i]
		switch {
		case c == '"' || c == '\'' || c == '`':
			i = skipQuoted(content, i)
			if depth == 0 && afterComma {
				return true
			}
		case c == '/' && i+1 < len(content) && content[i+1] == '/':
			for i < len(content) && content[i] != '\n' {
				i++
			}
		case c == '/' && i+1 < len(content) && content[i+1] == '*':
			end := bytes.Index(content[i+2:], []byte("*/"))
			if end < 0 {
				return false
			}
			i += end + 3
		case c == '(' || c == '[' || c == '{':
			if depth == 0 && afterComma {
				return true
			}
			depth++
		case c == ')' || c == ']' || c == '}':
			if depth == 0 {
				return false
			}
			depth--
		case c == ',' && depth == 0:
			afterComma = true
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
		default:
			if depth == 0 && afterComma {
				return true
			}
		}
	}
	return false
}

// skipQuoted returns the index of the quote closing the literal opened at start.
func skipQuoted(content []byte, start int) int {
	quote := content[start]
	for i := start + 1; i < len(content); i++ {
		switch content[i] {
		case '\\':
			i++
		case quote:
			return i
		case '\n':
			if quote != '`' {
				return i
			}
		}
	}
	return len(content)
}

func positionAt(content []byte, offset int) effectPosition {
	line, lineStart := 1, 0
	for i := 0; i < offset; i++ {
		if content[i] == '\n' {
			line++
			lineStart = i + 1
		}
	}
	return effectPosition{line: line, column: offset - lineStart + 1}
}
