package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"regexp"
	"time"

	"github.com/spf13/viper"

	"github.com/codeqa/codeqa/internal/report"
)

type Config struct {
	Structure    StructureConfig  `mapstructure:"structure" yaml:"structure"`
	Syntax       SyntaxConfig     `mapstructure:"syntax" yaml:"syntax"`
	Security     SecurityConfig   `mapstructure:"security" yaml:"security"`
	Dependencies DependencyConfig `mapstructure:"dependencies" yaml:"dependencies"`
	Probe        ProbeConfig      `mapstructure:"probe" yaml:"probe"`
	Pipeline     PipelineConfig   `mapstructure:"pipeline" yaml:"pipeline"`
	Weights      WeightsConfig    `mapstructure:"weights" yaml:"weights"`
	Server       ServerConfig     `mapstructure:"server" yaml:"server"`
}

type StructureConfig struct {
	ExcludeDirs       []string `mapstructure:"exclude_dirs" yaml:"exclude_dirs"`
	RespectGitignore  bool     `mapstructure:"respect_gitignore" yaml:"respect_gitignore"`
	FlatFileThreshold int      `mapstructure:"flat_file_threshold" yaml:"flat_file_threshold"`
}

type SyntaxConfig struct {
	Languages         []string `mapstructure:"languages" yaml:"languages"`
	MaxLineLength     int      `mapstructure:"max_line_length" yaml:"max_line_length"`
	MaxFileSizeKB     int      `mapstructure:"max_file_size_kb" yaml:"max_file_size_kb"`
	PythonInterpreter string   `mapstructure:"python_interpreter" yaml:"python_interpreter"`
}

type SecurityConfig struct {
	MaxFileSizeMB int          `mapstructure:"max_file_size_mb" yaml:"max_file_size_mb"`
	Extensions    []string     `mapstructure:"extensions" yaml:"extensions"`
	DisabledRules []string     `mapstructure:"disabled_rules" yaml:"disabled_rules"`
	Rules         []RuleConfig `mapstructure:"rules" yaml:"rules"`
}

// RuleConfig declares an extra security rule appended to the built-in catalog.
type RuleConfig struct {
	ID       string `mapstructure:"id" yaml:"id"`
	Pattern  string `mapstructure:"pattern" yaml:"pattern"`
	Severity string `mapstructure:"severity" yaml:"severity"`
	Message  string `mapstructure:"message" yaml:"message"`
}

type DependencyConfig struct {
	BlockedPackages []string `mapstructure:"blocked_packages" yaml:"blocked_packages"`
	AllowedPackages []string `mapstructure:"allowed_packages" yaml:"allowed_packages"`
}

type ProbeConfig struct {
	Host        string        `mapstructure:"host" yaml:"host"`
	Path        string        `mapstructure:"path" yaml:"path"`
	Timeout     time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Parallelism int           `mapstructure:"parallelism" yaml:"parallelism"`
}

type PipelineConfig struct {
	Workers          int           `mapstructure:"workers" yaml:"workers"`
	ComponentTimeout time.Duration `mapstructure:"component_timeout" yaml:"component_timeout"`
}

// ServerConfig controls the HTTP API. Cross-origin requests are refused unless
// their origin is listed; an empty AllowedRoots permits any directory.
type ServerConfig struct {
	Addr           string   `mapstructure:"addr" yaml:"addr"`
	AllowedOrigins []string `mapstructure:"allowed_origins" yaml:"allowed_origins"`
	AllowedRoots   []string `mapstructure:"allowed_roots" yaml:"allowed_roots"`
}

type WeightsConfig struct {
	Structure    float64 `mapstructure:"structure" yaml:"structure"`
	Syntax       float64 `mapstructure:"syntax" yaml:"syntax"`
	Security     float64 `mapstructure:"security" yaml:"security"`
	Dependencies float64 `mapstructure:"dependencies" yaml:"dependencies"`
	General      float64 `mapstructure:"general" yaml:"general"`
}

// ByCategory returns the weights keyed by report category.
func (w WeightsConfig) ByCategory() map[report.Category]float64 {
	return map[report.Category]float64{
		report.CategoryStructure:    w.Structure,
		report.CategorySyntax:       w.Syntax,
		report.CategorySecurity:     w.Security,
		report.CategoryDependencies: w.Dependencies,
		report.CategoryGeneral:      w.General,
	}
}

func Load(configPath string) (*Config, error) {
	config := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName(".codeqa")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME")
	}

	if err := v.ReadInConfig(); err != nil {
		var configFileNotFoundError viper.ConfigFileNotFoundError
		if !errors.As(err, &configFileNotFoundError) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return config, nil
}

func DefaultConfig() *Config {
	return &Config{
		Structure: StructureConfig{
			ExcludeDirs: []string{
				".git", ".hg", ".svn",
				"__pycache__", ".pytest_cache", ".mypy_cache", ".ruff_cache", ".tox",
				"node_modules", ".next", ".nuxt",
				".venv", "venv",
				"dist", "build", "target",
				"*.egg-info",
			},
			RespectGitignore:  true,
			FlatFileThreshold: 20,
		},
		Syntax: SyntaxConfig{
			Languages:         []string{"python", "go", "javascript", "typescript"},
			MaxLineLength:     120,
			MaxFileSizeKB:     512,
			PythonInterpreter: "python3",
		},
		Security: SecurityConfig{
			MaxFileSizeMB: 5,
			Extensions: []string{
				".py", ".pyw", ".js", ".jsx", ".mjs", ".cjs", ".ts", ".tsx",
				".go", ".rb", ".php", ".java", ".cs", ".sh", ".bash",
				".json", ".yaml", ".yml", ".toml", ".ini", ".cfg", ".env", ".sql",
			},
			DisabledRules: []string{},
			Rules:         []RuleConfig{},
		},
		Dependencies: DependencyConfig{
			BlockedPackages: []string{},
			AllowedPackages: []string{},
		},
		Probe: ProbeConfig{
			Host:        "localhost",
			Path:        "/",
			Timeout:     3 * time.Second,
			Parallelism: 4,
		},
		Pipeline: PipelineConfig{
			Workers:          5,
			ComponentTimeout: 60 * time.Second,
		},
		Weights: WeightsConfig{
			Structure:    0.15,
			Syntax:       0.25,
			Security:     0.30,
			Dependencies: 0.20,
			General:      0.10,
		},
		Server: ServerConfig{
			Addr:           "127.0.0.1:8080",
			AllowedOrigins: []string{},
			AllowedRoots:   []string{},
		},
	}
}

func (c *Config) Validate() error {
	if err := c.validateStructure(); err != nil {
		return err
	}
	if err := c.validateSyntax(); err != nil {
		return err
	}
	if err := c.validateSecurity(); err != nil {
		return err
	}
	if err := c.validateProbe(); err != nil {
		return err
	}
	if err := c.validatePipeline(); err != nil {
		return err
	}
	if err := c.validateServer(); err != nil {
		return err
	}
	return c.validateWeights()
}

func (c *Config) validateStructure() error {
	if c.Structure.FlatFileThreshold <= 0 {
		return fmt.Errorf("structure.flat_file_threshold must be positive")
	}
	for _, pattern := range c.Structure.ExcludeDirs {
		if _, err := filepath.Match(pattern, ""); err != nil {
			return fmt.Errorf("structure.exclude_dirs: invalid pattern %q: %w", pattern, err)
		}
	}
	return nil
}

func (c *Config) validateSyntax() error {
	if c.Syntax.MaxLineLength <= 0 {
		return fmt.Errorf("syntax.max_line_length must be positive")
	}
	if c.Syntax.MaxFileSizeKB <= 0 {
		return fmt.Errorf("syntax.max_file_size_kb must be positive")
	}
	return nil
}

func (c *Config) validateSecurity() error {
	if c.Security.MaxFileSizeMB <= 0 {
		return fmt.Errorf("security.max_file_size_mb must be positive")
	}
	for i, rule := range c.Security.Rules {
		if rule.ID == "" {
			return fmt.Errorf("security.rules[%d]: id is required", i)
		}
		if _, err := regexp.Compile(rule.Pattern); err != nil {
			return fmt.Errorf("security.rules[%d] (%s): invalid pattern: %w", i, rule.ID, err)
		}
		if _, ok := report.ParseSeverity(rule.Severity); !ok {
			return fmt.Errorf("security.rules[%d] (%s): severity must be low, medium or high", i, rule.ID)
		}
	}
	return nil
}

func (c *Config) validateProbe() error {
	if c.Probe.Timeout <= 0 {
		return fmt.Errorf("probe.timeout must be positive")
	}
	if c.Probe.Parallelism <= 0 {
		return fmt.Errorf("probe.parallelism must be positive")
	}
	if c.Probe.Host == "" {
		return fmt.Errorf("probe.host must not be empty")
	}
	return nil
}

func (c *Config) validatePipeline() error {
	if c.Pipeline.Workers <= 0 {
		return fmt.Errorf("pipeline.workers must be positive")
	}
	if c.Pipeline.ComponentTimeout <= 0 {
		return fmt.Errorf("pipeline.component_timeout must be positive")
	}
	return nil
}

func (c *Config) validateServer() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr must not be empty")
	}
	for _, origin := range c.Server.AllowedOrigins {
		if origin == "*" {
			return fmt.Errorf("server.allowed_origins: wildcard origin is not allowed")
		}
	}
	for _, root := range c.Server.AllowedRoots {
		if !filepath.IsAbs(root) {
			return fmt.Errorf("server.allowed_roots: %q must be an absolute path", root)
		}
	}
	return nil
}

func (c *Config) validateWeights() error {
	sum := 0.0
	for category, weight := range c.Weights.ByCategory() {
		if weight < 0 {
			return fmt.Errorf("weights.%s must be non-negative", category)
		}
		sum += weight
	}
	if math.Abs(sum-1) > 1e-6 {
		return fmt.Errorf("weights must sum to 1, got %.4f", sum)
	}
	return nil
}

func (c *Config) Save(path string) error {
	v := viper.New()
	v.SetConfigType("yaml")

	v.Set("structure", c.Structure)
	v.Set("syntax", c.Syntax)
	v.Set("security", c.Security)
	v.Set("dependencies", c.Dependencies)
	v.Set("probe", c.Probe)
	v.Set("pipeline", c.Pipeline)
	v.Set("weights", c.Weights)
	v.Set("server", c.Server)

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
