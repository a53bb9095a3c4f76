package completion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
)

// OpenAIProvider calls the Chat Completions endpoint of any OpenAI-compatible API.
type OpenAIProvider struct {
	apiKey  string
	baseURL string
}

// NewOpenAIProvider builds the provider. baseURL defaults to the public API.
func NewOpenAIProvider(apiKey, baseURL string) (*OpenAIProvider, error) {
	if strings.TrimSpace(apiKey) == "" {
		return nil, errors.New("OPENAI_API_KEY not set")
	}
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &OpenAIProvider{apiKey: apiKey, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (p *OpenAIProvider) Name() string { return "openai" }

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

func (p *OpenAIProvider) Complete(ctx context.Context, req Request) (string, error) {
	messages := make([]chatMessage, 0, 2)
	if req.System != "" {
		messages = append(messages, chatMessage{Role: "system", Content: req.System})
	}
	messages = append(messages, chatMessage{Role: "user", Content: req.Prompt})

	agent := fiber.Post(p.baseURL + "/chat/completions")
	agent.Set(fiber.HeaderAuthorization, "Bearer "+p.apiKey)
	agent.JSON(chatRequest{
		Model:       req.Model,
		Messages:    messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
	})
	if deadline, ok := ctx.Deadline(); ok {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			return "", ctx.Err()
		}
		agent.Timeout(remaining)
	}

	var resp chatResponse
	code, body, errs := agent.Struct(&resp)
	if code >= 300 {
		if resp.Error != nil && resp.Error.Message != "" {
			return "", fmt.Errorf("openai error %d: %s", code, resp.Error.Message)
		}
		return "", fmt.Errorf("openai error %d: %s", code, truncate(string(body), 200))
	}
	if len(errs) > 0 {
		return "", fmt.Errorf("openai request: %w", errors.Join(errs...))
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("openai returned no choices")
	}
	return strings.TrimSpace(resp.Choices[0].Message.Content), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "…"
}
