package main

import (
	_ "embed"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"
)

const defaultConfigDir = ".photo-refinery/"

// GetConfigPath returns the full path to a config file.
func GetConfigPath(filename string) string {
	return filepath.Join(defaultConfigDir, filename)
}

// ConfigOverrides holds file path overrides for embedded configurations.
type ConfigOverrides struct {
	CriticPromptPath *string
	EditorPromptPath *string
	TemplateDir      *string
	SettingsPath     *string
}

// Embedded defaults, written out to the config directory on first run so
// users can customize them.

//go:embed config/critic-prompt.md
var defaultCriticPrompt string

//go:embed config/editor-prompt.md
var defaultEditorPrompt string

//go:embed config/settings.yaml
var defaultSettings string

//go:embed config/index.html.tmpl
var defaultIndexTemplate string

//go:embed config/entry.html.tmpl
var defaultEntryTemplate string

//go:embed config/style.css
var defaultStylesheet string

// Settings represents the YAML configuration structure.
type Settings struct {
	InboxDirectory string `yaml:"inbox_directory"`
	StoreDirectory string `yaml:"store_directory"`
	SiteDirectory  string `yaml:"site_directory"`
	Workers        int    `yaml:"workers"`
	Consensus      struct {
		SimilarityThreshold float64 `yaml:"similarity_threshold"`
	} `yaml:"consensus"`
	Critic struct {
		GeminiModel    string `yaml:"gemini_model"`
		OpenAIModel    string `yaml:"openai_model"`
		AnthropicModel string `yaml:"anthropic_model"`
		MaxTokens      int    `yaml:"max_tokens"`
	} `yaml:"critic"`
	Editor struct {
		Model string `yaml:"model"`
	} `yaml:"editor"`
	Retry struct {
		MaxAttempts      int `yaml:"max_attempts"`
		BaseDelaySeconds int `yaml:"base_delay_seconds"`
	} `yaml:"retry"`
}

// Providers holds the credentials resolved from the environment once at
// startup. A provider without a credential is absent from the critic set
// entirely; that decision happens here, not at call time.
type Providers struct {
	GeminiKey    string
	OpenAIKey    string
	AnthropicKey string
}

func providersFromEnv() Providers {
	return Providers{
		GeminiKey:    os.Getenv("GEMINI_API_KEY"),
		OpenAIKey:    os.Getenv("OPENAI_API_KEY"),
		AnthropicKey: os.Getenv("ANTHROPIC_API_KEY"),
	}
}

// Any reports whether at least one provider is configured.
func (p Providers) Any() bool {
	return p.GeminiKey != "" || p.OpenAIKey != "" || p.AnthropicKey != ""
}

// Config holds settings, credentials, and overrides.
type Config struct {
	Settings  *Settings
	Providers Providers
	Overrides *ConfigOverrides
}

// NewConfig loads settings (writing the embedded defaults on first run) and
// resolves provider credentials from the environment.
func NewConfig(overrides *ConfigOverrides) (*Config, error) {
	if err := ensureConfigExists(); err != nil {
		return nil, errors.Wrap(err, "ensuring config files exist")
	}

	var settings *Settings
	var err error
	if overrides != nil && overrides.SettingsPath != nil {
		settings, err = loadSettingsRequired(*overrides.SettingsPath)
	} else {
		settings, err = loadSettings(GetConfigPath("settings.yaml"))
	}
	if err != nil {
		return nil, errors.Wrap(err, "loading settings")
	}

	return &Config{
		Settings:  settings,
		Providers: providersFromEnv(),
		Overrides: overrides,
	}, nil
}

// GetCriticPrompt returns the critique prompt (override file or embedded).
func (c *Config) GetCriticPrompt() string {
	if c.Overrides != nil && c.Overrides.CriticPromptPath != nil {
		if content, err := os.ReadFile(*c.Overrides.CriticPromptPath); err == nil {
			return string(content)
		}
	}
	return defaultCriticPrompt
}

// GetEditorPrompt returns the edit prompt template (override file or embedded).
func (c *Config) GetEditorPrompt() string {
	if c.Overrides != nil && c.Overrides.EditorPromptPath != nil {
		if content, err := os.ReadFile(*c.Overrides.EditorPromptPath); err == nil {
			return string(content)
		}
	}
	return defaultEditorPrompt
}

// GetIndexTemplate returns the gallery index template.
func (c *Config) GetIndexTemplate() string {
	return c.templateFile("index.html.tmpl", defaultIndexTemplate)
}

// GetEntryTemplate returns the per-entry page template.
func (c *Config) GetEntryTemplate() string {
	return c.templateFile("entry.html.tmpl", defaultEntryTemplate)
}

// GetStylesheet returns the site stylesheet.
func (c *Config) GetStylesheet() string {
	return c.templateFile("style.css", defaultStylesheet)
}

func (c *Config) templateFile(name, embedded string) string {
	if c.Overrides != nil && c.Overrides.TemplateDir != nil {
		if content, err := os.ReadFile(filepath.Join(*c.Overrides.TemplateDir, name)); err == nil {
			return string(content)
		}
	}
	return embedded
}

// NewBackoffFromSettings builds the retry executor from configuration.
func (c *Config) NewBackoffFromSettings() *Backoff {
	b := NewBackoff()
	if c.Settings.Retry.MaxAttempts > 0 {
		b.MaxAttempts = c.Settings.Retry.MaxAttempts
	}
	if c.Settings.Retry.BaseDelaySeconds > 0 {
		b.BaseDelay = time.Duration(c.Settings.Retry.BaseDelaySeconds) * time.Second
	}
	return b
}

// SimilarityThreshold returns the configured near-duplicate cutoff.
func (c *Config) SimilarityThreshold() float64 {
	if t := c.Settings.Consensus.SimilarityThreshold; t > 0 {
		return t
	}
	return defaultSimilarityThreshold
}

// loadSettings loads settings from a YAML file, falling back to defaults if
// the file doesn't exist.
func loadSettings(settingsPath string) (*Settings, error) {
	data, err := os.ReadFile(settingsPath)
	if err != nil {
		settings := &Settings{}
		if err := yaml.Unmarshal([]byte(defaultSettings), settings); err != nil {
			return nil, errors.Wrap(err, "parsing embedded default settings")
		}
		normalizeSettings(settings)
		return settings, nil
	}

	var settings Settings
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return nil, errors.Wrapf(err, "parsing settings file %s", settingsPath)
	}
	normalizeSettings(&settings)
	return &settings, nil
}

// loadSettingsRequired loads settings, failing if the file doesn't exist.
func loadSettingsRequired(settingsPath string) (*Settings, error) {
	data, err := os.ReadFile(settingsPath)
	if err != nil {
		return nil, err
	}

	var settings Settings
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return nil, errors.Wrapf(err, "parsing settings file %s", settingsPath)
	}
	normalizeSettings(&settings)
	return &settings, nil
}

// normalizeSettings fills in anything the settings file left out.
func normalizeSettings(s *Settings) {
	if s.InboxDirectory == "" {
		s.InboxDirectory = "inbox"
	}
	if s.StoreDirectory == "" {
		s.StoreDirectory = "processed"
	}
	if s.SiteDirectory == "" {
		s.SiteDirectory = filepath.Join("site", "public")
	}
	if s.Workers <= 0 {
		s.Workers = 3
	}
	if s.Consensus.SimilarityThreshold <= 0 {
		s.Consensus.SimilarityThreshold = defaultSimilarityThreshold
	}
	if s.Critic.GeminiModel == "" {
		s.Critic.GeminiModel = "gemini-2.0-flash-exp"
	}
	if s.Critic.OpenAIModel == "" {
		s.Critic.OpenAIModel = "gpt-4o"
	}
	if s.Critic.AnthropicModel == "" {
		s.Critic.AnthropicModel = "claude-sonnet-4-20250514"
	}
	if s.Critic.MaxTokens <= 0 {
		s.Critic.MaxTokens = 1000
	}
	if s.Editor.Model == "" {
		s.Editor.Model = "gemini-3-pro-preview"
	}
	if s.Retry.MaxAttempts <= 0 {
		s.Retry.MaxAttempts = 3
	}
	if s.Retry.BaseDelaySeconds <= 0 {
		s.Retry.BaseDelaySeconds = 1
	}
}

// ensureConfigExists creates the config directory and writes settings.yaml
// if needed. Prompts and templates stay embedded unless overridden.
func ensureConfigExists() error {
	if err := os.MkdirAll(defaultConfigDir, 0755); err != nil {
		return errors.Wrap(err, "creating config directory")
	}

	settingsFile := GetConfigPath("settings.yaml")
	if _, err := os.Stat(settingsFile); os.IsNotExist(err) {
		if err := os.WriteFile(settingsFile, []byte(defaultSettings), 0644); err != nil {
			return errors.Wrap(err, "writing settings.yaml")
		}
	}

	return nil
}
