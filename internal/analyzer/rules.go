package analyzer

import (
	"fmt"
	"regexp"

	"github.com/codeqa/codeqa/internal/config"
	"github.com/codeqa/codeqa/internal/report"
)

// Rule is one lexical security pattern. Matching is line by line over raw
// text, so comments and string contents can produce false positives.
// When the pattern has a group named "at", the finding column points at it.
// A match whose start (or "at" group) directly follows a byte in NotAfter is
// dropped; the pattern itself never consumes that byte, so nested calls on
// one line each match.
type Rule struct {
	ID       string          `json:"id" yaml:"id"`
	Pattern  *regexp.Regexp  `json:"-" yaml:"-"`
	NotAfter string          `json:"-" yaml:"-"`
	Severity report.Severity `json:"severity" yaml:"severity"`
	Message  string          `json:"message" yaml:"message"`
}

// Expr returns the source of the rule's pattern.
func (r Rule) Expr() string {
	return r.Pattern.String()
}

// Catalog is an ordered, immutable list of rules. The order is the tie-breaker
// when two rules match at the same position.
type Catalog struct {
	rules []Rule
}

var builtinRules = []struct {
	id       string
	pattern  string
	severity report.Severity
	message  string
}{
	{
		"dynamic-exec",
		`\b(?P<at>eval|exec)\s*\(`,
		report.SeverityHigh,
		"Dynamic code execution via eval/exec",
	},
	{
		"function-constructor",
		`\bnew\s+Function\s*\(`,
		report.SeverityHigh,
		"Dynamic code execution via the Function constructor",
	},
	{
		"insecure-deserialization",
		`\b(?:c?[Pp]ickle|marshal|shelve|dill)\.(?:loads?|open)\s*\(|\byaml\.(?:unsafe_)?load\s*\(`,
		report.SeverityMedium,
		"Deserialization of untrusted data can execute arbitrary code",
	},
	{
		"shell-true",
		`\bshell\s*=\s*True\b`,
		report.SeverityMedium,
		"Subprocess invoked through the shell",
	},
	{
		"os-system",
		`\bos\.(?:system|popen)\s*\(`,
		report.SeverityMedium,
		"Command executed through os.system/os.popen",
	},
	{
		"subprocess-string-command",
		`\bsubprocess\.(?:run|call|check_call|check_output|Popen)\s*\(\s*[fFrRbB]?["']`,
		report.SeverityMedium,
		"Subprocess command built from a string",
	},
	{
		"child-process-exec",
		`\bchild_process\.exec(?:Sync)?\s*\(|\bexecSync\s*\(|require\(\s*["']child_process["']\s*\)\.exec(?:Sync)?\s*\(`,
		report.SeverityMedium,
		"Shell command executed through child_process",
	},
	{
		"hardcoded-credential",
		`(?i)\b\w*(?:password|passwd|secret|api_?key|access_?key|auth_?token|private_?key)\w*["']?\s*(?::=|=|:)\s*["'][^"']+["']`,
		report.SeverityMedium,
		"Possible hardcoded credential",
	},
	{
		"insecure-tls",
		`InsecureSkipVerify\s*:\s*true|\bverify\s*=\s*False\b|rejectUnauthorized\s*:\s*false|NODE_TLS_REJECT_UNAUTHORIZED\s*=\s*["']?0`,
		report.SeverityMedium,
		"TLS certificate verification disabled",
	},
	{
		"weak-hash",
		`\bhashlib\.(?:md5|sha1)\b|\b(?:md5|sha1)\.(?:New|Sum)\b|createHash\(\s*["'](?:md5|sha1)["']`,
		report.SeverityLow,
		"Weak hash algorithm (MD5/SHA-1)",
	},
	{
		"sql-string-built",
		`(?i)["'][^"']*\b(?:SELECT\s|INSERT\s+INTO|UPDATE\s+\w+\s+SET|DELETE\s+FROM)[^"']*["']\s*(?:\+|%\s*[(\w]|\.format\s*\()|\bf"[^"]*\b(?:SELECT\s|INSERT\s+INTO|UPDATE\s+\w+\s+SET|DELETE\s+FROM)[^"]*\{|\bf'[^']*\b(?:SELECT\s|INSERT\s+INTO|UPDATE\s+\w+\s+SET|DELETE\s+FROM)[^']*\{|\x60[^\x60]*\b(?:SELECT\s|INSERT\s+INTO|UPDATE\s+\w+\s+SET|DELETE\s+FROM)[^\x60]*\$\{`,
		report.SeverityMedium,
		"SQL statement built from strings; use parameterized queries",
	},
	{
		"sql-drop-table",
		`(?i)\bDROP\s+TABLE\b`,
		report.SeverityMedium,
		"DROP TABLE statement",
	},
	{
		"sql-select-star",
		`(?i)\bSELECT\s+\*`,
		report.SeverityLow,
		"SELECT * query; list the needed columns",
	},
	{
		"todo-marker",
		`\b(?:TODO|FIXME)\b`,
		report.SeverityLow,
		"Unresolved TODO/FIXME marker",
	},
}

// builtinNotAfter excludes method calls and template-engine helpers such as
// model.eval() or $eval().
var builtinNotAfter = map[string]string{
	"dynamic-exec": ".$",
}

// DefaultCatalog returns the built-in rules.
func DefaultCatalog() *Catalog {
	rules := make([]Rule, 0, len(builtinRules))
	for _, def := range builtinRules {
		rules = append(rules, Rule{
			ID:       def.id,
			Pattern:  regexp.MustCompile(def.pattern),
			NotAfter: builtinNotAfter[def.id],
			Severity: def.severity,
			Message:  def.message,
		})
	}
	return &Catalog{rules: rules}
}

// NewCatalog builds the catalog from the built-in rules minus disabled ones,
// followed by the configured extra rules.
func NewCatalog(cfg *config.SecurityConfig) (*Catalog, error) {
	disabled := make(map[string]bool, len(cfg.DisabledRules))
	for _, id := range cfg.DisabledRules {
		disabled[id] = true
	}

	seen := make(map[string]bool)
	var rules []Rule
	for _, rule := range DefaultCatalog().rules {
		seen[rule.ID] = true
		if !disabled[rule.ID] {
			rules = append(rules, rule)
		}
	}

	for _, ruleCfg := range cfg.Rules {
		if seen[ruleCfg.ID] {
			return nil, fmt.Errorf("duplicate rule id %q", ruleCfg.ID)
		}
		seen[ruleCfg.ID] = true

		pattern, err := regexp.Compile(ruleCfg.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rule %s: invalid pattern: %w", ruleCfg.ID, err)
		}
		severity, ok := report.ParseSeverity(ruleCfg.Severity)
		if !ok {
			return nil, fmt.Errorf("rule %s: invalid severity %q", ruleCfg.ID, ruleCfg.Severity)
		}
		if disabled[ruleCfg.ID] {
			continue
		}

		message := ruleCfg.Message
		if message == "" {
			message = fmt.Sprintf("Matched custom rule %s", ruleCfg.ID)
		}
		rules = append(rules, Rule{
			ID:       ruleCfg.ID,
			Pattern:  pattern,
			Severity: severity,
			Message:  message,
		})
	}

	return &Catalog{rules: rules}, nil
}

// Rules returns a copy of the ordered rule list.
func (c *Catalog) Rules() []Rule {
	rules := make([]Rule, len(c.rules))
	copy(rules, c.rules)
	return rules
}

func (c *Catalog) Len() int {
	return len(c.rules)
}
