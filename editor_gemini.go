package main

import (
	"context"
	"encoding/base64"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// geminiEditor is the primary enhancement tier: Gemini image generation
// with the photograph and the consensus improvements as edit instructions.
type geminiEditor struct {
	geminiClient
	model      string
	promptTmpl string
	logger     *zap.SugaredLogger
}

func newGeminiEditor(cfg *Config, logger *zap.SugaredLogger) *geminiEditor {
	return &geminiEditor{
		geminiClient: newGeminiClient(cfg.Providers.GeminiKey),
		model:        cfg.Settings.Editor.Model,
		promptTmpl:   cfg.GetEditorPrompt(),
		logger:       logger,
	}
}

func (e *geminiEditor) Edit(ctx context.Context, item WorkItem, improvements []string) ([]byte, string, error) {
	prompt := buildEditPrompt(e.promptTmpl, improvements)

	resp, err := e.generateContent(ctx, e.model, []geminiPart{
		{Text: prompt},
		{InlineData: &geminiInlineData{MimeType: mediaType(item.Format), Data: base64.StdEncoding.EncodeToString(item.Data)}},
	})
	if err != nil {
		return nil, "", err
	}

	data, mimeType, ok := resp.firstImage()
	if !ok {
		return nil, "", errors.Newf("gemini edit returned no image for %s", item.Name)
	}
	return data, formatFromMediaType(mimeType), nil
}

// buildEditPrompt substitutes the improvement list into the editor prompt
// template. The template must contain the {{.improvements}} variable.
func buildEditPrompt(tmpl string, improvements []string) string {
	var bullets strings.Builder
	for _, imp := range improvements {
		bullets.WriteString("  - ")
		bullets.WriteString(imp)
		bullets.WriteString("\n")
	}
	return strings.ReplaceAll(tmpl, "{{.improvements}}", strings.TrimRight(bullets.String(), "\n"))
}

// formatFromMediaType maps a response MIME type back to a normalized format.
func formatFromMediaType(mimeType string) string {
	switch mimeType {
	case "image/png":
		return "png"
	case "image/webp":
		return "webp"
	}
	return "jpg"
}
