package report

import "time"

type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// ParseSeverity reports whether s names one of the three severity tiers.
func ParseSeverity(s string) (Severity, bool) {
	switch Severity(s) {
	case SeverityLow, SeverityMedium, SeverityHigh:
		return Severity(s), true
	default:
		return "", false
	}
}

// Rank orders severities from low (1) to high (3). Unknown values rank 0.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	default:
		return 0
	}
}

type Category string

const (
	CategoryStructure    Category = "structure"
	CategorySyntax       Category = "syntax"
	CategorySecurity     Category = "security"
	CategoryDependencies Category = "dependencies"
	CategoryGeneral      Category = "general"
)

// Categories lists the scored categories in report order.
var Categories = []Category{
	CategoryStructure,
	CategorySyntax,
	CategorySecurity,
	CategoryDependencies,
	CategoryGeneral,
}

type FileRecord struct {
	Path      string `json:"path" yaml:"path"`
	Extension string `json:"extension" yaml:"extension"`
	Size      int64  `json:"size" yaml:"size"`
}

type Finding struct {
	RuleID   string   `json:"rule_id" yaml:"rule_id"`
	Category Category `json:"category" yaml:"category"`
	Severity Severity `json:"severity" yaml:"severity"`
	File     string   `json:"file" yaml:"file"`
	Line     int      `json:"line,omitempty" yaml:"line,omitempty"`
	Column   int      `json:"column,omitempty" yaml:"column,omitempty"`
	Message  string   `json:"message" yaml:"message"`
}

type DependencyEntry struct {
	Name            string `json:"name" yaml:"name"`
	DeclaredVersion string `json:"declared_version,omitempty" yaml:"declared_version,omitempty"`
	SourceFile      string `json:"source_file" yaml:"source_file"`
	Ecosystem       string `json:"ecosystem" yaml:"ecosystem"`
	Dev             bool   `json:"dev,omitempty" yaml:"dev,omitempty"`
}

type ProbeResult struct {
	Port        int      `json:"port" yaml:"port"`
	URL         string   `json:"url" yaml:"url"`
	Reachable   bool     `json:"reachable" yaml:"reachable"`
	StatusCode  int      `json:"status_code,omitempty" yaml:"status_code,omitempty"`
	LatencyMS   *float64 `json:"latency_ms" yaml:"latency_ms"`
	Error       string   `json:"error,omitempty" yaml:"error,omitempty"`
	ErrorClass  string   `json:"error_class,omitempty" yaml:"error_class,omitempty"`
	ContentType string   `json:"content_type,omitempty" yaml:"content_type,omitempty"`
	Frameworks  []string `json:"frameworks,omitempty" yaml:"frameworks,omitempty"`
}

// AnalysisReport is the result of one analysis run. It carries no timestamps so
// that repeated runs over an unchanged tree serialize identically.
type AnalysisReport struct {
	Root         string                 `json:"root" yaml:"root"`
	Files        []FileRecord           `json:"files" yaml:"files"`
	FileTypes    map[string]int         `json:"file_types" yaml:"file_types"`
	Languages    map[string]int         `json:"languages" yaml:"languages"`
	Findings     map[Category][]Finding `json:"findings" yaml:"findings"`
	Dependencies []DependencyEntry      `json:"dependencies" yaml:"dependencies"`
	Probes       []ProbeResult          `json:"probes" yaml:"probes"`
	Scores       map[Category]int       `json:"scores" yaml:"scores"`
	Overall      int                    `json:"overall" yaml:"overall"`
	Degraded     map[Category]string    `json:"degraded,omitempty" yaml:"degraded,omitempty"`
}

// AllFindings flattens the per-category findings in category order.
func (r *AnalysisReport) AllFindings() []Finding {
	var all []Finding
	for _, category := range Categories {
		all = append(all, r.Findings[category]...)
	}
	return all
}

// CountBySeverity tallies every finding in the report by severity.
func (r *AnalysisReport) CountBySeverity() map[Severity]int {
	counts := make(map[Severity]int)
	for _, finding := range r.AllFindings() {
		counts[finding.Severity]++
	}
	return counts
}

// Envelope wraps a report with run metadata for the CLI and HTTP surfaces.
type Envelope struct {
	Repository string          `json:"repository" yaml:"repository"`
	Branch     string          `json:"branch,omitempty" yaml:"branch,omitempty"`
	CommitHash string          `json:"commit_hash,omitempty" yaml:"commit_hash,omitempty"`
	Timestamp  time.Time       `json:"timestamp" yaml:"timestamp"`
	Duration   string          `json:"duration" yaml:"duration"`
	Version    string          `json:"version" yaml:"version"`
	Report     *AnalysisReport `json:"report" yaml:"report"`
}
