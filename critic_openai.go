package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

const openAIBaseURL = "https://api.openai.com/v1"

// openAICritic analyzes photographs with OpenAI's vision-capable chat models.
type openAICritic struct {
	apiKey     string
	model      string
	baseURL    string
	prompt     string
	maxTokens  int
	httpClient *http.Client
	logger     *zap.SugaredLogger
}

func newOpenAICritic(cfg *Config, logger *zap.SugaredLogger) *openAICritic {
	return &openAICritic{
		apiKey:     cfg.Providers.OpenAIKey,
		model:      cfg.Settings.Critic.OpenAIModel,
		baseURL:    openAIBaseURL,
		prompt:     cfg.GetCriticPrompt(),
		maxTokens:  cfg.Settings.Critic.MaxTokens,
		httpClient: &http.Client{Timeout: 120 * time.Second},
		logger:     logger,
	}
}

func (c *openAICritic) Name() string { return CriticOpenAI }

// Chat completions wire types, multimodal content-part form.
type openAIRequest struct {
	Model     string          `json:"model"`
	Messages  []openAIMessage `json:"messages"`
	MaxTokens int             `json:"max_tokens,omitempty"`
}

type openAIMessage struct {
	Role    string              `json:"role"`
	Content []openAIContentPart `json:"content"`
}

type openAIContentPart struct {
	Type     string          `json:"type"`
	Text     string          `json:"text,omitempty"`
	ImageURL *openAIImageURL `json:"image_url,omitempty"`
}

type openAIImageURL struct {
	URL string `json:"url"`
}

type openAIResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (c *openAICritic) Analyze(ctx context.Context, item WorkItem) (Critique, error) {
	dataURI := fmt.Sprintf("data:%s;base64,%s", mediaType(item.Format), base64.StdEncoding.EncodeToString(item.Data))

	reqBody, err := json.Marshal(openAIRequest{
		Model: c.model,
		Messages: []openAIMessage{{
			Role: "user",
			Content: []openAIContentPart{
				{Type: "text", Text: c.prompt},
				{Type: "image_url", ImageURL: &openAIImageURL{URL: dataURI}},
			},
		}},
		MaxTokens: c.maxTokens,
	})
	if err != nil {
		return Critique{}, errors.Wrap(err, "marshaling openai request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(reqBody))
	if err != nil {
		return Critique{}, errors.Wrap(err, "creating openai request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return Critique{}, errors.Wrap(err, "sending openai request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return Critique{}, errors.Wrap(err, "reading openai response")
	}
	if resp.StatusCode != http.StatusOK {
		return Critique{}, &apiStatusError{Provider: CriticOpenAI, StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var openAIResp openAIResponse
	if err := json.Unmarshal(respBody, &openAIResp); err != nil {
		return Critique{}, errors.Wrap(err, "unmarshaling openai response")
	}
	if len(openAIResp.Choices) == 0 {
		return Critique{}, errors.Newf("openai returned no choices for %s", item.Name)
	}

	return parseCritique(CriticOpenAI, openAIResp.Choices[0].Message.Content)
}
