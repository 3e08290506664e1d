package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

const geminiBaseURL = "https://generativelanguage.googleapis.com/v1beta"

// geminiClient is the shared transport for Gemini generateContent calls;
// both the critic and the remote editor ride on it.
type geminiClient struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func newGeminiClient(apiKey string) geminiClient {
	return geminiClient{
		apiKey:     apiKey,
		baseURL:    geminiBaseURL,
		httpClient: &http.Client{Timeout: 120 * time.Second},
	}
}

// Gemini generateContent wire types.
type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inlineData,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mimeType"`
	Data     string `json:"data"`
}

type geminiResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

// firstText returns the first text part of the first candidate.
func (r *geminiResponse) firstText() string {
	for _, cand := range r.Candidates {
		for _, part := range cand.Content.Parts {
			if part.Text != "" {
				return part.Text
			}
		}
	}
	return ""
}

// firstImage returns the first inline image of the first candidate, decoded
// from base64, along with its MIME type.
func (r *geminiResponse) firstImage() ([]byte, string, bool) {
	for _, cand := range r.Candidates {
		for _, part := range cand.Content.Parts {
			if part.InlineData == nil || part.InlineData.Data == "" {
				continue
			}
			data, err := base64.StdEncoding.DecodeString(part.InlineData.Data)
			if err != nil || len(data) == 0 {
				continue
			}
			return data, part.InlineData.MimeType, true
		}
	}
	return nil, "", false
}

// generateContent posts one generateContent request and decodes the response.
func (c *geminiClient) generateContent(ctx context.Context, model string, parts []geminiPart) (*geminiResponse, error) {
	reqBody, err := json.Marshal(geminiRequest{Contents: []geminiContent{{Parts: parts}}})
	if err != nil {
		return nil, errors.Wrap(err, "marshaling gemini request")
	}

	url := c.baseURL + "/models/" + model + ":generateContent"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, errors.Wrap(err, "creating gemini request")
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-goog-api-key", c.apiKey)

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "sending gemini request")
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, "reading gemini response")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &apiStatusError{Provider: CriticGemini, StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	var geminiResp geminiResponse
	if err := json.Unmarshal(respBody, &geminiResp); err != nil {
		return nil, errors.Wrap(err, "unmarshaling gemini response")
	}
	return &geminiResp, nil
}

// geminiCritic analyzes photographs with Google's Gemini vision models.
type geminiCritic struct {
	geminiClient
	model  string
	prompt string
	logger *zap.SugaredLogger
}

func newGeminiCritic(cfg *Config, logger *zap.SugaredLogger) *geminiCritic {
	return &geminiCritic{
		geminiClient: newGeminiClient(cfg.Providers.GeminiKey),
		model:        cfg.Settings.Critic.GeminiModel,
		prompt:       cfg.GetCriticPrompt(),
		logger:       logger,
	}
}

func (c *geminiCritic) Name() string { return CriticGemini }

func (c *geminiCritic) Analyze(ctx context.Context, item WorkItem) (Critique, error) {
	resp, err := c.generateContent(ctx, c.model, []geminiPart{
		{Text: c.prompt},
		{InlineData: &geminiInlineData{MimeType: mediaType(item.Format), Data: base64.StdEncoding.EncodeToString(item.Data)}},
	})
	if err != nil {
		return Critique{}, err
	}

	text := resp.firstText()
	if text == "" {
		return Critique{}, errors.Newf("gemini returned no text for %s", item.Name)
	}
	return parseCritique(CriticGemini, text)
}

// mediaType maps a normalized image format to its MIME type.
func mediaType(format string) string {
	switch format {
	case "jpg", "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "webp":
		return "image/webp"
	case "heic":
		return "image/heic"
	case "heif":
		return "image/heif"
	}
	return "image/jpeg"
}
