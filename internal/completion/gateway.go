// Package completion turns a prompt into answer text through a language-model provider.
package completion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/spec-kit/tutor-bot/internal/config"
	"github.com/spec-kit/tutor-bot/internal/domain"
	"github.com/spec-kit/tutor-bot/pkg/util/errorutil"
)

// Request is one provider call.
type Request struct {
	Model       string
	System      string
	Prompt      string
	MaxTokens   int
	Temperature float64
}

// Provider performs a single completion call.
type Provider interface {
	Name() string
	Complete(ctx context.Context, req Request) (string, error)
}

// Gateway selects the model from the tier, bounds the call and collapses every failure
// into COMPLETION_FAILED. It never retries.
type Gateway struct {
	provider    Provider
	models      config.ModelTable
	timeout     time.Duration
	maxTokens   int
	temperature float64
	logger      *zap.Logger
}

// NewGateway wires a provider with the model table and limits from cfg.
func NewGateway(provider Provider, cfg config.CompletionConfig, logger *zap.Logger) *Gateway {
	models := cfg.Models
	if len(models) == 0 {
		models = config.DefaultModels(cfg.Provider)
	}
	return &Gateway{
		provider:    provider,
		models:      models,
		timeout:     cfg.Timeout(),
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		logger:      logger,
	}
}

// ModelFor is the tier to model policy.
func (g *Gateway) ModelFor(tier domain.Tier) string {
	return g.models.ModelFor(tier)
}

// Complete answers prompt with the model for tier.
func (g *Gateway) Complete(ctx context.Context, tier domain.Tier, category domain.Category, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	req := Request{
		Model:       g.ModelFor(tier),
		System:      SystemPrompt(category),
		Prompt:      prompt,
		MaxTokens:   g.maxTokens,
		Temperature: g.temperature,
	}

	start := time.Now()
	text, err := g.provider.Complete(ctx, req)
	if err == nil && strings.TrimSpace(text) == "" {
		err = errors.New("empty completion")
	}
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			err = fmt.Errorf("completion timed out after %s: %w", g.timeout, err)
		}
		return "", errorutil.NewCompletionFailed(err)
	}

	g.logger.Debug("completion finished",
		zap.String("provider", g.provider.Name()),
		zap.String("model", req.Model),
		zap.Duration("latency", time.Since(start)))
	return strings.TrimSpace(text), nil
}

const signature = "💡 Ask Smart. Think Smart. — AI Tutor Pro Bot"

// SystemPrompt is the tutor persona, specialized per category.
func SystemPrompt(category domain.Category) string {
	if category == "" || category == domain.CategoryGeneral {
		return "You are AI Tutor Pro, a powerful mentor helping people master Crypto, AI, and Business. " +
			"Respond like a strategist and teacher combined. Always end with: " + signature
	}
	return fmt.Sprintf("You are AI Tutor Pro Bot, an expert mentor for %s. "+
		"Give structured, actionable, motivating answers. Always end with: %s", category.Title(), signature)
}

// NewProvider builds the provider named by cfg.Provider.
func NewProvider(ctx context.Context, cfg config.CompletionConfig) (Provider, error) {
	switch cfg.Provider {
	case "", "openai":
		p, err := NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL)
		if err != nil {
			return nil, err
		}
		return p, nil
	case "gemini":
		p, err := NewGeminiProvider(ctx, cfg.GeminiAPIKey)
		if err != nil {
			return nil, err
		}
		return p, nil
	default:
		return nil, fmt.Errorf("unknown COMPLETION_PROVIDER %q", cfg.Provider)
	}
}
