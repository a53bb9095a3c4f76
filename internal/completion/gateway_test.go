package completion

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spec-kit/tutor-bot/internal/config"
	"github.com/spec-kit/tutor-bot/internal/domain"
	"github.com/spec-kit/tutor-bot/pkg/util/errorutil"
)

type fakeProvider struct {
	text  string
	err   error
	delay time.Duration
	got   []Request
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Complete(ctx context.Context, req Request) (string, error) {
	f.got = append(f.got, req)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.text, f.err
}

func testCompletionConfig() config.CompletionConfig {
	return config.CompletionConfig{
		Provider:       "openai",
		TimeoutSeconds: 1,
		MaxTokens:      500,
		Temperature:    0.8,
		Models:         config.DefaultModels("openai"),
	}
}

func TestGatewaySelectsModelByTier(t *testing.T) {
	provider := &fakeProvider{text: "  answer  "}
	gw := NewGateway(provider, testCompletionConfig(), zap.NewNop())

	for tier, model := range map[domain.Tier]string{
		domain.TierFree:  "gpt-4o-mini",
		domain.TierPro:   "gpt-4-turbo",
		domain.TierElite: "gpt-4o",
	} {
		text, err := gw.Complete(context.Background(), tier, domain.CategoryAI, "What is AI?")
		require.NoError(t, err)
		assert.Equal(t, "answer", text)
		last := provider.got[len(provider.got)-1]
		assert.Equal(t, model, last.Model)
		assert.Equal(t, "What is AI?", last.Prompt)
		assert.Equal(t, 500, last.MaxTokens)
		assert.Contains(t, last.System, "AI")
	}
}

func TestGatewayCollapsesFailures(t *testing.T) {
	cases := map[string]*fakeProvider{
		"provider error": {err: errors.New("429 rate limited")},
		"empty text":     {text: "   "},
		"timeout":        {text: "late", delay: 3 * time.Second},
	}
	for name, provider := range cases {
		t.Run(name, func(t *testing.T) {
			gw := NewGateway(provider, testCompletionConfig(), zap.NewNop())
			_, err := gw.Complete(context.Background(), domain.TierFree, domain.CategoryGeneral, "hi")
			require.Error(t, err)
			assert.True(t, errorutil.IsCode(err, errorutil.CodeCompletionFailed))
			assert.Equal(t, "AI is busy, try again", errorutil.ToDomainError(err).Message)
		})
	}
}

func TestGatewayDoesNotRetry(t *testing.T) {
	provider := &fakeProvider{err: errors.New("boom")}
	gw := NewGateway(provider, testCompletionConfig(), zap.NewNop())
	_, err := gw.Complete(context.Background(), domain.TierPro, domain.CategoryAI, "q")
	require.Error(t, err)
	assert.Len(t, provider.got, 1)
}

func TestSystemPrompt(t *testing.T) {
	assert.Contains(t, SystemPrompt(domain.CategoryCrypto), "expert mentor for Crypto")
	assert.Contains(t, SystemPrompt(domain.CategoryGeneral), "Crypto, AI, and Business")
}

func TestOpenAIProvider(t *testing.T) {
	var captured chatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":" Use AI daily. "}}]}`))
	}))
	defer srv.Close()

	p, err := NewOpenAIProvider("sk-test", srv.URL+"/v1/")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	text, err := p.Complete(ctx, Request{Model: "gpt-4o-mini", System: "sys", Prompt: "q", MaxTokens: 300})
	require.NoError(t, err)
	assert.Equal(t, "Use AI daily.", text)
	assert.Equal(t, "gpt-4o-mini", captured.Model)
	require.Len(t, captured.Messages, 2)
	assert.Equal(t, "system", captured.Messages[0].Role)
	assert.Equal(t, "q", captured.Messages[1].Content)
}

func TestOpenAIProviderErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"Rate limit reached","type":"requests"}}`))
	}))
	defer srv.Close()

	p, err := NewOpenAIProvider("sk-test", srv.URL)
	require.NoError(t, err)
	_, err = p.Complete(context.Background(), Request{Model: "m", Prompt: "q"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Rate limit reached")
}

func TestNewProvider(t *testing.T) {
	_, err := NewProvider(context.Background(), config.CompletionConfig{Provider: "openai"})
	assert.Error(t, err, "missing key")

	_, err = NewProvider(context.Background(), config.CompletionConfig{Provider: "claude"})
	assert.Error(t, err)

	p, err := NewProvider(context.Background(), config.CompletionConfig{Provider: "openai", OpenAIAPIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, "openai", p.Name())
}
