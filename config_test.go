package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadSettingsFallsBackToDefaults(t *testing.T) {
	settings, err := loadSettings(filepath.Join(t.TempDir(), "missing.yaml"))
	if err != nil {
		t.Fatalf("missing settings file should fall back to defaults: %v", err)
	}

	if settings.Workers != 3 {
		t.Errorf("workers = %d, want 3", settings.Workers)
	}
	if settings.Retry.MaxAttempts != 3 {
		t.Errorf("retry.max_attempts = %d, want 3", settings.Retry.MaxAttempts)
	}
	if settings.Retry.BaseDelaySeconds != 1 {
		t.Errorf("retry.base_delay_seconds = %d, want 1", settings.Retry.BaseDelaySeconds)
	}
	if settings.InboxDirectory == "" || settings.StoreDirectory == "" || settings.SiteDirectory == "" {
		t.Error("directory defaults must be filled in")
	}
	if settings.Consensus.SimilarityThreshold != defaultSimilarityThreshold {
		t.Errorf("similarity threshold = %v, want %v", settings.Consensus.SimilarityThreshold, defaultSimilarityThreshold)
	}
}

func TestLoadSettingsFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	content := `
inbox_directory: photos/in
workers: 5
consensus:
  similarity_threshold: 0.6
critic:
  gemini_model: gemini-custom
retry:
  max_attempts: 2
  base_delay_seconds: 4
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	settings, err := loadSettings(path)
	if err != nil {
		t.Fatal(err)
	}

	if settings.InboxDirectory != "photos/in" {
		t.Errorf("inbox = %q", settings.InboxDirectory)
	}
	if settings.Workers != 5 {
		t.Errorf("workers = %d, want 5", settings.Workers)
	}
	if settings.Consensus.SimilarityThreshold != 0.6 {
		t.Errorf("threshold = %v, want 0.6", settings.Consensus.SimilarityThreshold)
	}
	if settings.Critic.GeminiModel != "gemini-custom" {
		t.Errorf("gemini model = %q", settings.Critic.GeminiModel)
	}

	// Unset fields are still normalized.
	if settings.StoreDirectory == "" {
		t.Error("store directory default missing")
	}
	if settings.Critic.OpenAIModel == "" {
		t.Error("openai model default missing")
	}
}

func TestLoadSettingsRequiredFailsWhenMissing(t *testing.T) {
	if _, err := loadSettingsRequired(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing required settings file")
	}
}

func TestLoadSettingsRejectsMalformedYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.yaml")
	if err := os.WriteFile(path, []byte("workers: [not an int"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := loadSettings(path); err == nil {
		t.Error("expected error for malformed settings")
	}
}

func TestNewBackoffFromSettings(t *testing.T) {
	cfg := &Config{Settings: &Settings{}}
	cfg.Settings.Retry.MaxAttempts = 5
	cfg.Settings.Retry.BaseDelaySeconds = 2

	b := cfg.NewBackoffFromSettings()
	if b.MaxAttempts != 5 {
		t.Errorf("max attempts = %d, want 5", b.MaxAttempts)
	}
	if b.BaseDelay != 2*time.Second {
		t.Errorf("base delay = %v, want 2s", b.BaseDelay)
	}
}

func TestSimilarityThresholdDefault(t *testing.T) {
	cfg := &Config{Settings: &Settings{}}
	if got := cfg.SimilarityThreshold(); got != defaultSimilarityThreshold {
		t.Errorf("threshold = %v, want default %v", got, defaultSimilarityThreshold)
	}

	cfg.Settings.Consensus.SimilarityThreshold = 0.5
	if got := cfg.SimilarityThreshold(); got != 0.5 {
		t.Errorf("threshold = %v, want 0.5", got)
	}
}

func TestProvidersAny(t *testing.T) {
	if (Providers{}).Any() {
		t.Error("empty providers should report none configured")
	}
	if !(Providers{OpenAIKey: "k"}).Any() {
		t.Error("one credential should be enough")
	}
}

func TestProvidersFromEnv(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "g")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("ANTHROPIC_API_KEY", "a")

	p := providersFromEnv()
	if p.GeminiKey != "g" || p.OpenAIKey != "" || p.AnthropicKey != "a" {
		t.Errorf("unexpected providers: %+v", p)
	}
}
