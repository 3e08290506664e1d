package main

import (
	"context"
	"os"
	"path/filepath"

	"github.com/aktagon/llmkit/anthropic"
	"github.com/aktagon/llmkit/anthropic/types"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// claudeCritic analyzes photographs with Anthropic's Claude through llmkit:
// the image is uploaded via the Files API and referenced in the prompt.
type claudeCritic struct {
	apiKey    string
	model     string
	prompt    string
	maxTokens int
	logger    *zap.SugaredLogger
}

func newClaudeCritic(cfg *Config, logger *zap.SugaredLogger) *claudeCritic {
	return &claudeCritic{
		apiKey:    cfg.Providers.AnthropicKey,
		model:     cfg.Settings.Critic.AnthropicModel,
		prompt:    cfg.GetCriticPrompt(),
		maxTokens: cfg.Settings.Critic.MaxTokens,
		logger:    logger,
	}
}

func (c *claudeCritic) Name() string { return CriticAnthropic }

func (c *claudeCritic) Analyze(ctx context.Context, item WorkItem) (Critique, error) {
	// UploadFile wants a path; stage the image bytes in a temp file.
	tempFile, err := os.CreateTemp("", "critique-*"+filepath.Ext(item.Name))
	if err != nil {
		return Critique{}, errors.Wrap(err, "creating temporary image file")
	}
	defer os.Remove(tempFile.Name())

	if _, err := tempFile.Write(item.Data); err != nil {
		tempFile.Close()
		return Critique{}, errors.Wrap(err, "writing temporary image file")
	}
	tempFile.Close()

	file, err := anthropic.UploadFile(tempFile.Name(), c.apiKey)
	if err != nil {
		return Critique{}, errors.Wrap(err, "uploading image to anthropic")
	}

	settings := types.RequestSettings{
		Model:     c.model,
		MaxTokens: c.maxTokens,
	}
	response, err := anthropic.PromptWithSettings("", c.prompt, "", c.apiKey, settings, types.File{ID: file.ID})
	if err != nil {
		return Critique{}, errors.Wrap(err, "anthropic prompt failed")
	}
	if len(response.Content) == 0 {
		return Critique{}, errors.Newf("anthropic returned no content for %s", item.Name)
	}

	return parseCritique(CriticAnthropic, response.Content[0].Text)
}
