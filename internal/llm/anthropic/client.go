// Package anthropic implements extract.Model on the Anthropic Messages API.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	sdk "github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/JakeFAU/campus-extractor/internal/extract"
)

// Config configures the client.
type Config struct {
	APIKey    string
	Model     string
	MaxTokens int
	Timeout   time.Duration
	// BaseURL overrides the API endpoint, for tests and proxies.
	BaseURL string
}

// Client implements extract.Model.
type Client struct {
	messages  messageCreator
	model     string
	maxTokens int64
}

type messageCreator interface {
	New(ctx context.Context, params sdk.MessageNewParams, opts ...option.RequestOption) (*sdk.Message, error)
}

// New builds a Client. A missing API key is a capability error.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("anthropic api key: %w", extract.ErrCapabilityUnavailable)
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("anthropic model is required")
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2048
	}
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey), option.WithMaxRetries(2)}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	client := sdk.NewClient(opts...)
	return &Client{
		messages:  &client.Messages,
		model:     cfg.Model,
		maxTokens: int64(cfg.MaxTokens),
	}, nil
}

// Complete sends one prompt and returns the concatenated text blocks of the reply.
// Authentication and permission failures wrap extract.ErrCapabilityUnavailable.
func (c *Client) Complete(ctx context.Context, request extract.ModelRequest) (string, error) {
	maxTokens := c.maxTokens
	if request.MaxTokens > 0 {
		maxTokens = int64(request.MaxTokens)
	}
	params := sdk.MessageNewParams{
		Model:     sdk.Model(c.model),
		MaxTokens: maxTokens,
		Messages: []sdk.MessageParam{
			sdk.NewUserMessage(sdk.NewTextBlock(request.Prompt)),
		},
	}
	if request.System != "" {
		params.System = []sdk.TextBlockParam{{Text: request.System}}
	}

	msg, err := c.messages.New(ctx, params)
	if err != nil {
		var apiErr *sdk.Error
		if errors.As(err, &apiErr) &&
			(apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden) {
			return "", fmt.Errorf("anthropic messages: %w: %w", extract.ErrCapabilityUnavailable, err)
		}
		return "", fmt.Errorf("anthropic messages: %w", err)
	}

	var out strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			out.WriteString(block.Text)
		}
	}
	if out.Len() == 0 {
		return "", fmt.Errorf("anthropic messages: empty reply (stop reason %s)", msg.StopReason)
	}
	return out.String(), nil
}
