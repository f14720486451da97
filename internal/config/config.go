package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/yourname/llmgate/internal/logging"
)

// Config is the process configuration, built once at startup and passed by
// reference into the constructors that need it. No component does ambient
// environment lookups after this point.
type Config struct {
	ServerName        string   `yaml:"server_name"`
	ServerDescription string   `yaml:"server_description"`
	Model             string   `yaml:"model"`
	SystemPromptPath  string   `yaml:"system_prompt_file"`
	APIBaseURL        string   `yaml:"llm_api_base_url"`
	APIKey            string   `yaml:"-"`
	AllowedModelsPath string   `yaml:"allowed_models_file"`
	AllowedModels     []string `yaml:"-"`
	MaxTokens         int      `yaml:"max_tokens"`
	MaxPromptTokens   int      `yaml:"max_prompt_tokens"`
	DBPath            string   `yaml:"db_path"`
	LogLevel          string   `yaml:"log_level"`
}

// DefaultDBPath is the ledger location when neither the flag nor LLMGATE_DB
// names one.
const DefaultDBPath = "data/llmgate.db"

// Default returns the baseline configuration before flags, file, and
// environment are merged in. DBPath stays empty here so an explicit flag or
// file value is distinguishable from the fallback when the environment is
// merged.
func Default() *Config {
	return &Config{
		ServerName:        "llmgate",
		ServerDescription: "Generic LLM API MCP server",
		Model:             "perplexity/llama-3.1-sonar-small-128k-online",
		SystemPromptPath:  "config/prompts/system.txt",
		MaxPromptTokens:   100,
	}
}

// MergeFile overlays values from a YAML config file. Only keys present in
// the file replace existing values.
func (c *Config) MergeFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parsing config YAML: %w", err)
	}
	return nil
}

// MergeEnv fills values from the environment that no earlier merge step set.
func (c *Config) MergeEnv() {
	if c.APIKey == "" {
		c.APIKey = os.Getenv("OPENROUTER_API_KEY")
	}
	if c.APIBaseURL == "" {
		c.APIBaseURL = os.Getenv("LLM_API_BASE_URL")
	}
	if c.DBPath == "" {
		c.DBPath = os.Getenv("LLMGATE_DB")
	}
}

// Validate checks the credential shape and loads the allow-list when one is
// configured. Call after every merge step has run.
func (c *Config) Validate() error {
	if c.APIKey == "" {
		return fmt.Errorf("OPENROUTER_API_KEY environment variable not set")
	}
	if !strings.HasPrefix(c.APIKey, "sk-") || len(c.APIKey) < 32 {
		return fmt.Errorf("invalid OPENROUTER_API_KEY format - must start with 'sk-' and be at least 32 characters")
	}

	if c.AllowedModelsPath != "" {
		models, err := LoadAllowedModels(c.AllowedModelsPath)
		if err != nil {
			return err
		}
		c.AllowedModels = models
		if !containsString(models, c.Model) {
			return fmt.Errorf("model %q is not in the allowed models list from %s", c.Model, c.AllowedModelsPath)
		}
	}

	if c.DBPath == "" {
		c.DBPath = DefaultDBPath
	}
	return nil
}

// LoadAllowedModels reads the per-line allow-list. A missing or empty file
// is a startup error: an allow-list that was asked for but cannot restrict
// anything is a misconfiguration, unlike the absent-list case where any
// override is permitted.
func LoadAllowedModels(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("allowed models file not found: %s", path)
	}

	var models []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			models = append(models, line)
		}
	}
	if len(models) == 0 {
		return nil, fmt.Errorf("allowed models file is empty - must contain at least one model name")
	}
	return models, nil
}

// LoadSystemPrompt reads the system prompt file. A missing file degrades to
// an empty prompt with a warning rather than failing startup.
func LoadSystemPrompt(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		logging.Warn("system_prompt_not_found", logging.Fields{Component: "config", Error: err.Error()})
		return ""
	}
	return string(data)
}

// Username returns the accounting username. USERNAME wins over USER so the
// same binary works on Windows shells too.
func Username() string {
	if v := os.Getenv("USERNAME"); v != "" {
		return v
	}
	if v := os.Getenv("USER"); v != "" {
		return v
	}
	return "unknown_user"
}

func containsString(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
