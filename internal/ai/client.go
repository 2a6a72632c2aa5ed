package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
)

// ErrEmptyResponse is returned when the model answers without any text.
var ErrEmptyResponse = errors.New("empty response from generative model")

// Config configures a Client against an OpenAI-compatible chat completions endpoint.
type Config struct {
	APIKey      string
	BaseURL     string
	Model       string
	Timeout     time.Duration
	Temperature float64
	MaxTokens   int64
}

// Client sends single-turn prompts to the generative language model.
type Client struct {
	cfg Config

	mu     sync.RWMutex
	client openai.Client
}

func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 1024
	}
	c := &Client{cfg: cfg}
	c.client = c.build()
	return c
}

func (c *Client) build() openai.Client {
	opts := []option.RequestOption{
		option.WithAPIKey(c.cfg.APIKey),
		option.WithRequestTimeout(c.cfg.Timeout),
		// callers own the retry policy
		option.WithMaxRetries(0),
	}
	if c.cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(c.cfg.BaseURL))
	}
	return openai.NewClient(opts...)
}

// Reset discards the underlying client and builds a new one from the same config.
func (c *Client) Reset() {
	fresh := c.build()
	c.mu.Lock()
	c.client = fresh
	c.mu.Unlock()
}

// Generate sends system and prompt as one exchange and returns the model's text.
func (c *Client) Generate(ctx context.Context, system, prompt string) (string, error) {
	c.mu.RLock()
	client := c.client
	c.mu.RUnlock()

	messages := make([]openai.ChatCompletionMessageParamUnion, 0, 2)
	if system != "" {
		messages = append(messages, openai.SystemMessage(system))
	}
	messages = append(messages, openai.UserMessage(prompt))

	resp, err := client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.cfg.Model),
		Messages:    messages,
		Temperature: openai.Float(c.cfg.Temperature),
		MaxTokens:   openai.Int(c.cfg.MaxTokens),
	})
	if err != nil {
		return "", fmt.Errorf("generative model request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyResponse
	}

	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}
