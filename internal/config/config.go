package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultFile is the config file looked up in the working directory.
const DefaultFile = ".rulebot.yaml"

// Config represents the rulebot configuration.
type Config struct {
	Provider string `yaml:"provider"`
	// APIKey is only read from the environment and never written to disk.
	APIKey       string  `yaml:"-"`
	Model        string  `yaml:"model,omitempty"`
	BaseURL      string  `yaml:"baseURL,omitempty"`
	SystemPrompt string  `yaml:"systemPrompt"`
	Temperature  float64 `yaml:"temperature"`
	MaxTokens    int     `yaml:"maxTokens,omitempty"`
	MaxRetries   int     `yaml:"maxRetries"`

	GitHub GitHubConfig `yaml:"github"`

	RulesFile    string   `yaml:"rulesFile"`
	IgnoreFile   string   `yaml:"ignoreFile"`
	AlwaysIgnore []string `yaml:"alwaysIgnore"`

	DiffSource    string `yaml:"diffSource"`
	ElementPolicy string `yaml:"elementPolicy"`
	ValidateLines bool   `yaml:"validateLines"`
	Concurrency   int    `yaml:"concurrency"`

	Breaker BreakerConfig `yaml:"breaker"`
	Cache   CacheConfig   `yaml:"cache"`
	Privacy PrivacyConfig `yaml:"privacy"`

	Format    string `yaml:"format"`
	LogLevel  string `yaml:"logLevel"`
	LogFormat string `yaml:"logFormat"`
}

// GitHubConfig identifies the pull request and how to authenticate.
type GitHubConfig struct {
	Token          string `yaml:"-"`
	APIURL         string `yaml:"apiURL,omitempty"`
	Repository     string `yaml:"repository,omitempty"`
	PRNumber       int    `yaml:"prNumber,omitempty"`
	CommitID       string `yaml:"commitID,omitempty"`
	AppID          int64  `yaml:"appID,omitempty"`
	InstallationID int64  `yaml:"installationID,omitempty"`
	PrivateKeyPath string `yaml:"privateKeyPath,omitempty"`
	// CommentsPerSecond throttles comment posting. Zero disables throttling.
	CommentsPerSecond float64 `yaml:"commentsPerSecond"`
}

// UsesApp reports whether GitHub App credentials are configured.
func (g GitHubConfig) UsesApp() bool {
	return g.AppID != 0 || g.InstallationID != 0 || g.PrivateKeyPath != ""
}

// BreakerConfig controls the provider circuit breaker. It is off unless
// MaxFailures is positive, so every file reaches the provider by default.
type BreakerConfig struct {
	MaxFailures     int `yaml:"maxFailures"`
	CooldownSeconds int `yaml:"cooldownSeconds"`
}

// CacheConfig controls caching behavior.
type CacheConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Dir        string `yaml:"dir,omitempty"`
	TTLSeconds int    `yaml:"ttlSeconds"`
}

// PrivacyConfig controls privacy/redaction behavior.
type PrivacyConfig struct {
	RedactSecrets bool     `yaml:"redactSecrets"`
	RedactPaths   []string `yaml:"redactPaths,omitempty"`
}

// Default returns a Config with all defaults applied.
func Default() Config {
	return Config{
		Provider:     "openai",
		SystemPrompt: "You are a helpful senior software engineer reviewing code diffs. You follow the project rules direct and without stray.",
		Temperature:  0.2,
		MaxRetries:   3,
		GitHub: GitHubConfig{
			CommentsPerSecond: 1,
		},
		RulesFile:     ".project-rules.md",
		IgnoreFile:    ".rulebotignore",
		AlwaysIgnore:  []string{".project-rules.md"},
		DiffSource:    DiffSourceDiff,
		ElementPolicy: "skip",
		ValidateLines: true,
		Concurrency:   1,
		Breaker: BreakerConfig{
			CooldownSeconds: 60,
		},
		Cache: CacheConfig{
			TTLSeconds: 86400,
		},
		Privacy: PrivacyConfig{
			RedactSecrets: true,
			RedactPaths:   []string{"**/.env", "**/*secrets*"},
		},
		Format:    "text",
		LogLevel:  "info",
		LogFormat: "console",
	}
}

// Diff sources.
const (
	DiffSourceDiff  = "diff"
	DiffSourceFiles = "files"
)

// Error lists every configuration problem found.
type Error struct {
	Problems []string
}

func (e *Error) Error() string {
	return "invalid configuration: " + strings.Join(e.Problems, "; ")
}

func (e *Error) add(format string, args ...any) {
	e.Problems = append(e.Problems, fmt.Sprintf(format, args...))
}

func (e *Error) orNil() error {
	if len(e.Problems) == 0 {
		return nil
	}
	return e
}

// LoadDotEnv loads variables from an env file without overriding variables
// already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("loading %s: %w", path, err)
	}
	return nil
}

// LoadFile reads a YAML config file on top of base. When path is empty the
// DefaultFile in the working directory is used if present.
func LoadFile(path string, base Config) (Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return base, nil
		}
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}
	cfg := base
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes the config to path as YAML. Secrets are never written.
func Save(path string, cfg Config) error {
	if path == "" {
		path = DefaultFile
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Load builds the effective config by merging: defaults <- file <- env <- overrides.
// The overrides map comes from CLI flags (only non-zero values should be set).
func Load(path string, overrides map[string]string) (Config, error) {
	cfg, err := LoadFile(path, Default())
	if err != nil {
		return Config{}, err
	}
	if err := mergeEnv(&cfg); err != nil {
		return Config{}, err
	}
	if err := mergeOverrides(&cfg, overrides); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// envFields maps environment variables to config keys understood by SetField.
var envFields = []struct {
	env string
	key string
}{
	{"AI_PROVIDER", "provider"},
	{"AI_MODEL", "model"},
	{"AI_BASE_URL", "baseURL"},
	{"GITHUB_API_URL", "github.apiURL"},
	{"GITHUB_REPOSITORY", "github.repository"},
	{"PR_NUMBER", "github.prNumber"},
	{"COMMIT_ID", "github.commitID"},
	{"GITHUB_APP_ID", "github.appID"},
	{"GITHUB_APP_INSTALLATION_ID", "github.installationID"},
	{"GITHUB_APP_PRIVATE_KEY_PATH", "github.privateKeyPath"},
	{"RULEBOT_RULES_FILE", "rulesFile"},
	{"RULEBOT_IGNORE_FILE", "ignoreFile"},
	{"RULEBOT_DIFF_SOURCE", "diffSource"},
	{"RULEBOT_CONCURRENCY", "concurrency"},
	{"RULEBOT_LOG_LEVEL", "logLevel"},
}

func mergeEnv(cfg *Config) error {
	if v := os.Getenv("AI_API_KEY"); v != "" {
		cfg.APIKey = v
	}
	if v := os.Getenv("GITHUB_TOKEN"); v != "" {
		cfg.GitHub.Token = v
	}

	errs := &Error{}
	for _, f := range envFields {
		v := os.Getenv(f.env)
		if v == "" {
			continue
		}
		if err := SetField(cfg, f.key, v); err != nil {
			errs.add("%s: %v", f.env, err)
		}
	}
	return errs.orNil()
}

func mergeOverrides(cfg *Config, overrides map[string]string) error {
	errs := &Error{}
	for key, v := range overrides {
		if v == "" {
			continue
		}
		if err := SetField(cfg, key, v); err != nil {
			errs.add("--%s: %v", key, err)
		}
	}
	return errs.orNil()
}

// Keys lists the keys accepted by SetField.
func Keys() []string {
	return []string{
		"provider", "model", "baseURL", "systemPrompt", "temperature", "maxTokens", "maxRetries",
		"github.apiURL", "github.repository", "github.prNumber", "github.commitID",
		"github.appID", "github.installationID", "github.privateKeyPath", "github.commentsPerSecond",
		"rulesFile", "ignoreFile", "alwaysIgnore",
		"diffSource", "elementPolicy", "validateLines", "concurrency",
		"breaker.maxFailures", "breaker.cooldownSeconds",
		"cache.enabled", "cache.dir", "cache.ttlSeconds",
		"privacy.redactSecrets", "privacy.redactPaths",
		"format", "logLevel", "logFormat",
	}
}

// SetField sets a single config field by key name. Returns error if key is unknown.
func SetField(cfg *Config, key, value string) error {
	var err error
	switch key {
	case "provider":
		cfg.Provider = strings.ToLower(value)
	case "model":
		cfg.Model = value
	case "baseURL":
		cfg.BaseURL = value
	case "systemPrompt":
		cfg.SystemPrompt = value
	case "temperature":
		cfg.Temperature, err = strconv.ParseFloat(value, 64)
	case "maxTokens":
		cfg.MaxTokens, err = strconv.Atoi(value)
	case "maxRetries":
		cfg.MaxRetries, err = strconv.Atoi(value)
	case "github.apiURL":
		cfg.GitHub.APIURL = value
	case "github.repository":
		cfg.GitHub.Repository = value
	case "github.prNumber":
		cfg.GitHub.PRNumber, err = strconv.Atoi(value)
	case "github.commitID":
		cfg.GitHub.CommitID = value
	case "github.appID":
		cfg.GitHub.AppID, err = strconv.ParseInt(value, 10, 64)
	case "github.installationID":
		cfg.GitHub.InstallationID, err = strconv.ParseInt(value, 10, 64)
	case "github.privateKeyPath":
		cfg.GitHub.PrivateKeyPath = value
	case "github.commentsPerSecond":
		cfg.GitHub.CommentsPerSecond, err = strconv.ParseFloat(value, 64)
	case "rulesFile":
		cfg.RulesFile = value
	case "ignoreFile":
		cfg.IgnoreFile = value
	case "alwaysIgnore":
		cfg.AlwaysIgnore = splitList(value)
	case "diffSource":
		cfg.DiffSource = value
	case "elementPolicy":
		cfg.ElementPolicy = value
	case "validateLines":
		cfg.ValidateLines, err = strconv.ParseBool(value)
	case "concurrency":
		cfg.Concurrency, err = strconv.Atoi(value)
	case "breaker.maxFailures":
		cfg.Breaker.MaxFailures, err = strconv.Atoi(value)
	case "breaker.cooldownSeconds":
		cfg.Breaker.CooldownSeconds, err = strconv.Atoi(value)
	case "cache.enabled":
		cfg.Cache.Enabled, err = strconv.ParseBool(value)
	case "cache.dir":
		cfg.Cache.Dir = value
	case "cache.ttlSeconds":
		cfg.Cache.TTLSeconds, err = strconv.Atoi(value)
	case "privacy.redactSecrets":
		cfg.Privacy.RedactSecrets, err = strconv.ParseBool(value)
	case "privacy.redactPaths":
		cfg.Privacy.RedactPaths = splitList(value)
	case "format":
		cfg.Format = value
	case "logLevel":
		cfg.LogLevel = value
	case "logFormat":
		cfg.LogFormat = value
	default:
		return fmt.Errorf("unknown config key: %s", key)
	}
	if err != nil {
		return fmt.Errorf("%s: invalid value %q", key, value)
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

var validFormats = map[string]bool{"text": true, "json": true, "markdown": true, "sarif": true}

// Validate checks the settings every review needs.
func (c Config) Validate() error {
	errs := &Error{}
	if c.Provider == "" {
		errs.add("provider is required (AI_PROVIDER)")
	}
	if c.APIKey == "" {
		errs.add("API key is required (AI_API_KEY)")
	}
	if c.RulesFile == "" {
		errs.add("rulesFile is required")
	}
	if c.DiffSource != DiffSourceDiff && c.DiffSource != DiffSourceFiles {
		errs.add("diffSource must be %q or %q, got %q", DiffSourceDiff, DiffSourceFiles, c.DiffSource)
	}
	if c.ElementPolicy != "skip" && c.ElementPolicy != "atomic" {
		errs.add("elementPolicy must be skip or atomic, got %q", c.ElementPolicy)
	}
	if c.Concurrency < 0 {
		errs.add("concurrency must not be negative")
	}
	if c.Temperature < 0 || c.Temperature > 2 {
		errs.add("temperature must be between 0 and 2")
	}
	if !validFormats[c.Format] {
		errs.add("format must be one of text, json, markdown, sarif; got %q", c.Format)
	}
	return errs.orNil()
}

// ValidateGitHub checks the settings needed to read and comment on a pull
// request.
func (c Config) ValidateGitHub() error {
	errs := &Error{}
	g := c.GitHub
	if g.UsesApp() {
		if g.AppID == 0 || g.InstallationID == 0 || g.PrivateKeyPath == "" {
			errs.add("GitHub App auth needs GITHUB_APP_ID, GITHUB_APP_INSTALLATION_ID and GITHUB_APP_PRIVATE_KEY_PATH")
		}
	} else if g.Token == "" {
		errs.add("GITHUB_TOKEN is required")
	}
	if g.Repository == "" {
		errs.add("repository is required (GITHUB_REPOSITORY)")
	} else if owner, name, ok := strings.Cut(g.Repository, "/"); !ok || owner == "" || name == "" {
		errs.add("repository must be owner/name, got %q", g.Repository)
	}
	if g.PRNumber <= 0 {
		errs.add("pull request number is required (PR_NUMBER)")
	}
	if g.CommitID == "" {
		errs.add("commit id is required (COMMIT_ID)")
	}
	return errs.orNil()
}
