package analyzer

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"golang.org/x/mod/modfile"
	"gopkg.in/yaml.v3"

	"github.com/codeqa/codeqa/internal/report"
)

const (
	EcosystemPyPI  = "pypi"
	EcosystemNPM   = "npm"
	EcosystemGo    = "go"
	EcosystemCargo = "cargo"
	EcosystemConda = "conda"
)

// parsedDependency is an entry plus the manifest line it was declared on
// (0 when the format does not expose it).
type parsedDependency struct {
	entry report.DependencyEntry
	line  int
}

// manifestError carries the position of the failure when the parser knows it.
type manifestError struct {
	line int
	err  error
}

func (e *manifestError) Error() string {
	if e.line > 0 {
		return fmt.Sprintf("line %d: %v", e.line, e.err)
	}
	return e.err.Error()
}

func (e *manifestError) Unwrap() error {
	return e.err
}

// manifestParser returns every entry parsed before a failure, and the failure.
type manifestParser func(file string, content []byte) ([]parsedDependency, error)

var requirementsFilePattern = regexp.MustCompile(`^requirements.*\.txt$`)

// manifestParserFor selects a parser by file name.
func manifestParserFor(filePath string) (manifestParser, bool) {
	name := path.Base(filePath)
	switch {
	case requirementsFilePattern.MatchString(strings.ToLower(name)):
		return parseRequirements, true
	case name == "package.json":
		return parsePackageJSON, true
	case name == "go.mod":
		return parseGoMod, true
	case name == "pyproject.toml":
		return parsePyproject, true
	case name == "Pipfile":
		return parsePipfile, true
	case name == "Cargo.toml":
		return parseCargo, true
	case name == "environment.yml", name == "environment.yaml":
		return parseCondaEnvironment, true
	default:
		return nil, false
	}
}

// IsManifest reports whether the file name is a recognised dependency manifest.
func IsManifest(filePath string) bool {
	_, ok := manifestParserFor(filePath)
	return ok
}

// requirementOption starts per-requirement options such as --hash.
var requirementOption = regexp.MustCompile(`\s--`)

var requirementPattern = regexp.MustCompile(`^([A-Za-z0-9](?:[A-Za-z0-9._-]*[A-Za-z0-9])?)\s*(\[[^\]]*\])?\s*(.*)$`)

// parseRequirementSpec reads the PEP 508 subset used in requirements files:
// name, optional extras, optional version specifier or URL, optional marker.
func parseRequirementSpec(spec string) (name, version string, err error) {
	if marker := strings.Index(spec, ";"); marker >= 0 {
		spec = spec[:marker]
	}
	spec = strings.TrimSpace(spec)

	match := requirementPattern.FindStringSubmatch(spec)
	if match == nil {
		return "", "", fmt.Errorf("invalid requirement %q", spec)
	}

	version = strings.TrimSpace(match[3])
	if version != "" && !strings.ContainsAny(version[:1], "=<>!~@(") {
		return "", "", fmt.Errorf("invalid version specifier in %q", spec)
	}
	version = strings.Trim(version, "()")
	return match[1], strings.TrimSpace(version), nil
}

func parseRequirements(file string, content []byte) ([]parsedDependency, error) {
	var deps []parsedDependency

	reader := bufio.NewScanner(bytes.NewReader(content))
	reader.Buffer(make([]byte, 0, 64*1024), len(content)+1)

	lineNumber := 0
	pending := ""
	pendingLine := 0
	for reader.Scan() {
		lineNumber++
		line := reader.Text()

		if pending == "" {
			pendingLine = lineNumber
		}
		if strings.HasSuffix(line, "\\") {
			pending += strings.TrimSuffix(line, "\\") + " "
			continue
		}
		line = pending + line
		pending = ""

		if hash := strings.Index(line, "#"); hash >= 0 && (hash == 0 || line[hash-1] == ' ' || line[hash-1] == '\t') {
			line = line[:hash]
		}
		if option := requirementOption.FindStringIndex(line); option != nil {
			line = line[:option[0]]
		}
		line = strings.TrimSpace(line)
		// options, includes, editable installs and bare URLs
		if line == "" || strings.HasPrefix(line, "-") || (strings.Contains(line, "://") && !strings.Contains(line, "@")) {
			continue
		}

		name, version, err := parseRequirementSpec(line)
		if err != nil {
			return deps, &manifestError{line: pendingLine, err: err}
		}
		deps = append(deps, parsedDependency{
			entry: report.DependencyEntry{
				Name:            name,
				DeclaredVersion: version,
				SourceFile:      file,
				Ecosystem:       EcosystemPyPI,
			},
			line: pendingLine,
		})
	}
	if err := reader.Err(); err != nil {
		return deps, &manifestError{line: lineNumber + 1, err: err}
	}
	return deps, nil
}

var packageJSONSections = map[string]bool{
	"dependencies":         false,
	"devDependencies":      true,
	"peerDependencies":     false,
	"optionalDependencies": false,
}

// parsePackageJSON streams tokens so that declaration order is kept.
func parsePackageJSON(file string, content []byte) ([]parsedDependency, error) {
	var deps []parsedDependency
	decoder := json.NewDecoder(bytes.NewReader(content))

	fail := func(err error) ([]parsedDependency, error) {
		return deps, &manifestError{line: lineAt(content, decoder.InputOffset()), err: err}
	}

	if err := expectDelim(decoder, '{'); err != nil {
		return fail(err)
	}

	for decoder.More() {
		key, err := readKey(decoder)
		if err != nil {
			return fail(err)
		}

		dev, isSection := packageJSONSections[key]
		if !isSection {
			var skipped json.RawMessage
			if err := decoder.Decode(&skipped); err != nil {
				return fail(err)
			}
			continue
		}

		if err := expectDelim(decoder, '{'); err != nil {
			return fail(fmt.Errorf("%s: %w", key, err))
		}
		for decoder.More() {
			line := lineAt(content, decoder.InputOffset())
			name, err := readKey(decoder)
			if err != nil {
				return fail(err)
			}
			var version string
			if err := decoder.Decode(&version); err != nil {
				return fail(fmt.Errorf("%s.%s: %w", key, name, err))
			}
			deps = append(deps, parsedDependency{
				entry: report.DependencyEntry{
					Name:            name,
					DeclaredVersion: strings.TrimSpace(version),
					SourceFile:      file,
					Ecosystem:       EcosystemNPM,
					Dev:             dev,
				},
				line: line,
			})
		}
		if err := expectDelim(decoder, '}'); err != nil {
			return fail(err)
		}
	}

	if err := expectDelim(decoder, '}'); err != nil {
		return fail(err)
	}
	return deps, nil
}

func expectDelim(decoder *json.Decoder, want json.Delim) error {
	token, err := decoder.Token()
	if err != nil {
		return err
	}
	if delim, ok := token.(json.Delim); !ok || delim != want {
		return fmt.Errorf("expected %q, found %v", want, token)
	}
	return nil
}

func readKey(decoder *json.Decoder) (string, error) {
	token, err := decoder.Token()
	if err != nil {
		return "", err
	}
	key, ok := token.(string)
	if !ok {
		return "", fmt.Errorf("expected object key, found %v", token)
	}
	return key, nil
}

// lineAt converts a byte offset into a 1-based line number. The offset points
// past leading whitespace, so it is advanced to the next token first.
func lineAt(content []byte, offset int64) int {
	if offset > int64(len(content)) {
		offset = int64(len(content))
	}
	for offset < int64(len(content)) && strings.ContainsRune(" \t\r\n,:", rune(content[offset])) {
		offset++
	}
	return bytes.Count(content[:offset], []byte("\n")) + 1
}

func parseGoMod(file string, content []byte) ([]parsedDependency, error) {
	modFile, err := modfile.Parse(file, content, nil)
	if err != nil {
		line := 0
		var list modfile.ErrorList
		if errors.As(err, &list) && len(list) > 0 {
			line = list[0].Pos.Line
		}
		return nil, &manifestError{line: line, err: err}
	}

	var deps []parsedDependency
	for _, require := range modFile.Require {
		line := 0
		if require.Syntax != nil {
			line = require.Syntax.Start.Line
		}
		deps = append(deps, parsedDependency{
			entry: report.DependencyEntry{
				Name:            require.Mod.Path,
				DeclaredVersion: require.Mod.Version,
				SourceFile:      file,
				Ecosystem:       EcosystemGo,
			},
			line: line,
		})
	}
	return deps, nil
}

type pyprojectFile struct {
	Project struct {
		Dependencies         []string            `toml:"dependencies"`
		OptionalDependencies map[string][]string `toml:"optional-dependencies"`
	} `toml:"project"`
	Tool struct {
		Poetry struct {
			Dependencies    map[string]any `toml:"dependencies"`
			DevDependencies map[string]any `toml:"dev-dependencies"`
			Group           map[string]struct {
				Dependencies map[string]any `toml:"dependencies"`
			} `toml:"group"`
		} `toml:"poetry"`
	} `toml:"tool"`
}

func parsePyproject(file string, content []byte) ([]parsedDependency, error) {
	var project pyprojectFile
	if err := toml.Unmarshal(content, &project); err != nil {
		return nil, tomlError(err)
	}

	var deps []parsedDependency
	addSpecs := func(specs []string, dev bool) error {
		for _, spec := range specs {
			name, version, err := parseRequirementSpec(spec)
			if err != nil {
				return err
			}
			deps = append(deps, parsedDependency{entry: report.DependencyEntry{
				Name:            name,
				DeclaredVersion: version,
				SourceFile:      file,
				Ecosystem:       EcosystemPyPI,
				Dev:             dev,
			}})
		}
		return nil
	}

	if err := addSpecs(project.Project.Dependencies, false); err != nil {
		return deps, &manifestError{err: err}
	}
	for _, extra := range sortedKeys(project.Project.OptionalDependencies) {
		if err := addSpecs(project.Project.OptionalDependencies[extra], false); err != nil {
			return deps, &manifestError{err: err}
		}
	}

	poetry := project.Tool.Poetry
	deps = append(deps, tableDependencies(file, EcosystemPyPI, poetry.Dependencies, false, "python")...)
	deps = append(deps, tableDependencies(file, EcosystemPyPI, poetry.DevDependencies, true, "python")...)
	for _, group := range sortedKeys(poetry.Group) {
		deps = append(deps, tableDependencies(file, EcosystemPyPI, poetry.Group[group].Dependencies, group != "main", "python")...)
	}
	return deps, nil
}

type pipfile struct {
	Packages    map[string]any `toml:"packages"`
	DevPackages map[string]any `toml:"dev-packages"`
}

func parsePipfile(file string, content []byte) ([]parsedDependency, error) {
	var pipFile pipfile
	if err := toml.Unmarshal(content, &pipFile); err != nil {
		return nil, tomlError(err)
	}

	deps := tableDependencies(file, EcosystemPyPI, pipFile.Packages, false)
	return append(deps, tableDependencies(file, EcosystemPyPI, pipFile.DevPackages, true)...), nil
}

type cargoManifest struct {
	Dependencies      map[string]any `toml:"dependencies"`
	DevDependencies   map[string]any `toml:"dev-dependencies"`
	BuildDependencies map[string]any `toml:"build-dependencies"`
}

func parseCargo(file string, content []byte) ([]parsedDependency, error) {
	var cargo cargoManifest
	if err := toml.Unmarshal(content, &cargo); err != nil {
		return nil, tomlError(err)
	}

	deps := tableDependencies(file, EcosystemCargo, cargo.Dependencies, false)
	deps = append(deps, tableDependencies(file, EcosystemCargo, cargo.DevDependencies, true)...)
	return append(deps, tableDependencies(file, EcosystemCargo, cargo.BuildDependencies, true)...), nil
}

// tableDependencies reads name = "version" or name = { version = "..." }
// tables in key order. Entries without a version (git or path sources) are
// reported with their source kind as the declared version.
func tableDependencies(file, ecosystem string, table map[string]any, dev bool, skip ...string) []parsedDependency {
	var deps []parsedDependency
	for _, name := range sortedKeys(table) {
		if containsString(skip, name) {
			continue
		}
		deps = append(deps, parsedDependency{entry: report.DependencyEntry{
			Name:            name,
			DeclaredVersion: tableVersion(table[name]),
			SourceFile:      file,
			Ecosystem:       ecosystem,
			Dev:             dev,
		}})
	}
	return deps
}

func tableVersion(value any) string {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case map[string]any:
		if version, ok := v["version"].(string); ok {
			return strings.TrimSpace(version)
		}
		for _, source := range []string{"git", "path", "url"} {
			if location, ok := v[source].(string); ok {
				return source + "+" + location
			}
		}
	}
	return ""
}

func tomlError(err error) error {
	var decodeErr *toml.DecodeError
	if errors.As(err, &decodeErr) {
		line, _ := decodeErr.Position()
		return &manifestError{line: line, err: err}
	}
	return &manifestError{err: err}
}

type condaEnvironment struct {
	Dependencies []yaml.Node `yaml:"dependencies"`
}

var condaSpecSplit = regexp.MustCompile(`[=<>!~\s]`)

func parseCondaEnvironment(file string, content []byte) ([]parsedDependency, error) {
	var environment condaEnvironment
	if err := yaml.Unmarshal(content, &environment); err != nil {
		return nil, &manifestError{line: yamlErrorLine(err), err: err}
	}

	var deps []parsedDependency
	for _, node := range environment.Dependencies {
		switch node.Kind {
		case yaml.ScalarNode:
			spec := node.Value
			if channel := strings.Index(spec, "::"); channel >= 0 {
				spec = spec[channel+2:]
			}
			name, version := spec, ""
			if loc := condaSpecSplit.FindStringIndex(spec); loc != nil {
				name, version = spec[:loc[0]], strings.TrimSpace(spec[loc[0]:])
				// conda's single "=" means a version prefix match
				if strings.HasPrefix(version, "=") && !strings.HasPrefix(version, "==") {
					version = version[1:]
				}
			}
			deps = append(deps, parsedDependency{
				entry: report.DependencyEntry{
					Name:            name,
					DeclaredVersion: version,
					SourceFile:      file,
					Ecosystem:       EcosystemConda,
				},
				line: node.Line,
			})
		case yaml.MappingNode:
			var nested map[string][]string
			if err := node.Decode(&nested); err != nil {
				return deps, &manifestError{line: node.Line, err: err}
			}
			for _, spec := range nested["pip"] {
				name, version, err := parseRequirementSpec(spec)
				if err != nil {
					return deps, &manifestError{line: node.Line, err: err}
				}
				deps = append(deps, parsedDependency{
					entry: report.DependencyEntry{
						Name:            name,
						DeclaredVersion: version,
						SourceFile:      file,
						Ecosystem:       EcosystemPyPI,
					},
					line: node.Line,
				})
			}
		default:
			return deps, &manifestError{line: node.Line, err: fmt.Errorf("unexpected dependency entry")}
		}
	}
	return deps, nil
}

var yamlLinePattern = regexp.MustCompile(`line (\d+)`)

func yamlErrorLine(err error) int {
	match := yamlLinePattern.FindStringSubmatch(err.Error())
	if match == nil {
		return 0
	}
	line := 0
	_, _ = fmt.Sscanf(match[1], "%d", &line)
	return line
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for key := range m {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func containsString(values []string, target string) bool {
	for _, value := range values {
		if value == target {
			return true
		}
	}
	return false
}
