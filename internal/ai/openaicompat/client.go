// Package openaicompat talks to any chat completion endpoint that follows the
// OpenAI wire format. Groq is the default target.
package openaicompat

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	openaigo "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"go.uber.org/zap"

	"github.com/spigell/interview-scorer/internal/logger"
	"github.com/spigell/interview-scorer/internal/utils"
)

const (
	Provider = "openai-compatible"

	DefaultBaseURL = "https://api.groq.com/openai/v1"
	DefaultModel   = "llama-3.1-8b-instant"

	defaultTemperature  = 0.2
	defaultMaxTokens    = 800
	defaultMaxRetries   = 2
	defaultMaxLogLength = 200
	defaultTimeout      = 30 * time.Second
)

type completionAPI interface {
	New(ctx context.Context, body openaigo.ChatCompletionNewParams, opts ...option.RequestOption) (*openaigo.ChatCompletion, error)
}

// Config configures the client.
type Config struct {
	BaseURL      string
	APIKey       string
	Model        string
	MaxRetries   int
	MaxLogLength int
	Timeout      time.Duration
	HTTPClient   *http.Client
}

// Client is a chat completion client used as remote judge and feedback writer.
type Client struct {
	completions completionAPI
	model       string
	maxLogLen   int
	logger      *zap.Logger
}

// New builds a client. The API key is required.
func New(cfg Config, log *zap.Logger) (*Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errors.New("openai-compatible api key is required")
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = DefaultModel
	}
	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = defaultMaxRetries
	}
	maxLogLen := cfg.MaxLogLength
	if maxLogLen <= 0 {
		maxLogLen = defaultMaxLogLength
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: timeout}
	}

	client := openaigo.NewClient(
		option.WithBaseURL(baseURL+"/"),
		option.WithAPIKey(apiKey),
		option.WithHTTPClient(httpClient),
		option.WithMaxRetries(maxRetries),
		option.WithRequestTimeout(timeout),
	)

	return &Client{
		completions: &client.Chat.Completions,
		model:       model,
		maxLogLen:   maxLogLen,
		logger:      logger.WithCommonFields(log, Provider, model),
	}, nil
}

// GenerateContent sends one system and one user message and returns the
// content of the first choice.
func (c *Client) GenerateContent(ctx context.Context, system, prompt string) (string, error) {
	if c == nil || c.completions == nil {
		return "", errors.New("openai-compatible client is not initialized")
	}

	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return "", errors.New("prompt must not be empty")
	}

	messages := make([]openaigo.ChatCompletionMessageParamUnion, 0, 2)
	if system = strings.TrimSpace(system); system != "" {
		messages = append(messages, openaigo.SystemMessage(system))
	}
	messages = append(messages, openaigo.UserMessage(prompt))

	c.log().Debug("chat completion request",
		zap.Int("prompt_length", utf8.RuneCountInString(prompt)),
		zap.String("prompt_preview", utils.TruncateForLog(prompt, c.maxLogLen)),
	)

	resp, err := c.completions.New(ctx, openaigo.ChatCompletionNewParams{
		Model:       openaigo.ChatModel(c.model),
		Messages:    messages,
		Temperature: openaigo.Float(defaultTemperature),
		MaxTokens:   openaigo.Int(defaultMaxTokens),
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", errors.New("chat completion returned no choices")
	}

	output := strings.TrimSpace(resp.Choices[0].Message.Content)
	if output == "" {
		return "", errors.New("chat completion returned empty content")
	}

	c.log().Debug("chat completion response",
		zap.Int("response_length", utf8.RuneCountInString(output)),
		zap.String("response_preview", utils.TruncateForLog(output, c.maxLogLen)),
	)

	return output, nil
}

func (c *Client) Model() string {
	if c == nil {
		return ""
	}
	return c.model
}

func (c *Client) log() *zap.Logger {
	if c.logger == nil {
		return zap.NewNop()
	}
	return c.logger
}
