package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubCritic is a scripted Critic for pool tests.
type stubCritic struct {
	name     string
	critique Critique
	err      error
	calls    atomic.Int32
}

func (s *stubCritic) Name() string { return s.name }

func (s *stubCritic) Analyze(ctx context.Context, item WorkItem) (Critique, error) {
	s.calls.Add(1)
	if s.err != nil {
		return Critique{}, s.err
	}
	return s.critique, nil
}

func active(critics ...Critic) []*activeCritic {
	out := make([]*activeCritic, len(critics))
	for i, c := range critics {
		out[i] = &activeCritic{Critic: c}
	}
	return out
}

func TestCollectCritiquesKeepsSlotOrder(t *testing.T) {
	critics := active(
		&stubCritic{name: "gemini", critique: validCritique("gemini", 70)},
		&stubCritic{name: "openai", critique: validCritique("openai", 80)},
		&stubCritic{name: "anthropic", critique: validCritique("anthropic", 90)},
	)

	critiques := collectCritiques(context.Background(), critics, instantBackoff(), testItem(t, "a.jpg", "jpg"), testLogger())

	require.Len(t, critiques, 3)
	assert.Equal(t, "gemini", critiques[0].Provider)
	assert.Equal(t, "openai", critiques[1].Provider)
	assert.Equal(t, "anthropic", critiques[2].Provider)
}

func TestCollectCritiquesIsolatesFailures(t *testing.T) {
	broken := &stubCritic{name: "openai", err: markRetryable(errTest)}
	critics := active(
		&stubCritic{name: "gemini", critique: validCritique("gemini", 70)},
		broken,
	)

	critiques := collectCritiques(context.Background(), critics, instantBackoff(), testItem(t, "a.jpg", "jpg"), testLogger())

	require.Len(t, critiques, 2)
	assert.True(t, critiques[0].Valid)
	assert.False(t, critiques[1].Valid)
	assert.NotEmpty(t, critiques[1].Error)
	assert.EqualValues(t, 3, broken.calls.Load(), "retryable failure should use the full budget")
}

func TestCollectCritiquesTripsFatalProvider(t *testing.T) {
	fatal := &stubCritic{name: "anthropic", err: markFatal(errTest)}
	critics := active(fatal)

	item := testItem(t, "a.jpg", "jpg")
	collectCritiques(context.Background(), critics, instantBackoff(), item, testLogger())
	assert.EqualValues(t, 1, fatal.calls.Load(), "fatal error must not be retried")
	assert.True(t, critics[0].tripped.Load())

	// Subsequent items skip the tripped critic entirely.
	critiques := collectCritiques(context.Background(), critics, instantBackoff(), item, testLogger())
	assert.EqualValues(t, 1, fatal.calls.Load())
	require.Len(t, critiques, 1)
	assert.False(t, critiques[0].Valid)
	assert.Equal(t, "anthropic", critiques[0].Provider)
}

func TestCollectCritiquesTripsOnAuthStatus(t *testing.T) {
	fatal := &stubCritic{name: "gemini", err: &apiStatusError{Provider: "gemini", StatusCode: 401, Body: "bad key"}}
	critics := active(fatal)

	collectCritiques(context.Background(), critics, instantBackoff(), testItem(t, "a.jpg", "jpg"), testLogger())
	assert.True(t, critics[0].tripped.Load())
}

func TestGeminiCriticAnalyze(t *testing.T) {
	var gotPath, gotKey string
	var gotReq geminiRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.Header.Get("x-goog-api-key")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{{
				"content": map[string]any{
					"parts": []map[string]any{{
						"text": `{"score": 82, "improvements": ["warm the highlights"], "notes": "good framing"}`,
					}},
				},
			}},
		})
	}))
	defer server.Close()

	critic := &geminiCritic{
		geminiClient: geminiClient{apiKey: "test-key", baseURL: server.URL, httpClient: server.Client()},
		model:        "gemini-2.0-flash-exp",
		prompt:       "critique this",
		logger:       testLogger(),
	}

	critique, err := critic.Analyze(context.Background(), testItem(t, "a.jpg", "jpg"))
	require.NoError(t, err)

	assert.Equal(t, "/models/gemini-2.0-flash-exp:generateContent", gotPath)
	assert.Equal(t, "test-key", gotKey)
	require.Len(t, gotReq.Contents, 1)
	require.Len(t, gotReq.Contents[0].Parts, 2)
	assert.Equal(t, "critique this", gotReq.Contents[0].Parts[0].Text)
	require.NotNil(t, gotReq.Contents[0].Parts[1].InlineData)
	assert.Equal(t, "image/jpeg", gotReq.Contents[0].Parts[1].InlineData.MimeType)

	assert.True(t, critique.Valid)
	assert.Equal(t, float64(82), critique.Score)
	assert.Equal(t, []string{"warm the highlights"}, critique.Improvements)
}

func TestGeminiCriticSurfacesStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "slow down", http.StatusTooManyRequests)
	}))
	defer server.Close()

	critic := &geminiCritic{
		geminiClient: geminiClient{apiKey: "k", baseURL: server.URL, httpClient: server.Client()},
		model:        "m",
		prompt:       "p",
		logger:       testLogger(),
	}

	_, err := critic.Analyze(context.Background(), testItem(t, "a.jpg", "jpg"))
	require.Error(t, err)
	assert.True(t, classifyProviderError(err), "429 should classify as retryable")
}

func TestOpenAICriticAnalyze(t *testing.T) {
	var gotAuth string
	var gotReq openAIRequest

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotReq))

		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{
				"message": map[string]any{
					"content": "```json\n{\"score\": 64, \"improvements\": [], \"notes\": \"flat\"}\n```",
				},
			}},
		})
	}))
	defer server.Close()

	critic := &openAICritic{
		apiKey:     "test-key",
		model:      "gpt-4o",
		baseURL:    server.URL,
		prompt:     "critique this",
		maxTokens:  500,
		httpClient: server.Client(),
		logger:     testLogger(),
	}

	critique, err := critic.Analyze(context.Background(), testItem(t, "a.png", "png"))
	require.NoError(t, err)

	assert.Equal(t, "Bearer test-key", gotAuth)
	assert.Equal(t, "gpt-4o", gotReq.Model)
	require.Len(t, gotReq.Messages, 1)
	require.Len(t, gotReq.Messages[0].Content, 2)
	assert.Contains(t, gotReq.Messages[0].Content[1].ImageURL.URL, "data:image/png;base64,")

	assert.True(t, critique.Valid)
	assert.Equal(t, float64(64), critique.Score)
}

var errTest = errors.New("stub failure")
