package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"CVTailor/internal/config"
)

// Messenger sends one user turn to a chat model and returns the text reply.
type Messenger interface {
	Message(ctx context.Context, req MessageRequest) (string, error)
}

// MessageRequest is a single-turn request.
type MessageRequest struct {
	Model     string
	MaxTokens int
	Content   []ContentBlock
}

// ContentBlock is a text or base64 image part of a user turn.
type ContentBlock struct {
	Type   string       `json:"type"`
	Text   string       `json:"text,omitempty"`
	Source *ImageSource `json:"source,omitempty"`
}

// ImageSource carries inline image data.
type ImageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

// TextBlock builds a text content block.
func TextBlock(text string) ContentBlock {
	return ContentBlock{Type: "text", Text: text}
}

// AnthropicClient implements Messenger against the Anthropic Messages API.
type AnthropicClient struct {
	endpoint   string
	apiKey     string
	version    string
	maxTokens  int
	httpClient *http.Client
	logger     *slog.Logger
}

var _ Messenger = (*AnthropicClient)(nil)

// NewAnthropicClient builds a client from configuration.
func NewAnthropicClient(cfg config.AnthropicConfig, logger *slog.Logger) *AnthropicClient {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &AnthropicClient{
		endpoint:  cfg.Endpoint,
		apiKey:    cfg.APIKey,
		version:   cfg.Version,
		maxTokens: cfg.MaxTokens,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger.With("component", "anthropic"),
	}
}

type messagesRequest struct {
	Model     string        `json:"model"`
	MaxTokens int           `json:"max_tokens"`
	Messages  []chatMessage `json:"messages"`
}

type chatMessage struct {
	Role    string         `json:"role"`
	Content []ContentBlock `json:"content"`
}

type messagesResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

type apiError struct {
	Error struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error"`
}

// Message posts the request and concatenates the text blocks of the reply.
func (c *AnthropicClient) Message(ctx context.Context, req MessageRequest) (string, error) {
	if c == nil {
		return "", fmt.Errorf("anthropic client is nil")
	}
	if c.apiKey == "" || c.endpoint == "" || req.Model == "" {
		return "", fmt.Errorf("anthropic client misconfigured")
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = c.maxTokens
	}
	if maxTokens <= 0 {
		maxTokens = 8192
	}

	body, err := json.Marshal(messagesRequest{
		Model:     req.Model,
		MaxTokens: maxTokens,
		Messages:  []chatMessage{{Role: "user", Content: req.Content}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal anthropic payload: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	httpReq.Header.Set("x-api-key", c.apiKey)
	httpReq.Header.Set("anthropic-version", c.version)
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("send message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		var apiErr apiError
		if json.Unmarshal(payload, &apiErr) == nil && apiErr.Error.Message != "" {
			return "", fmt.Errorf("anthropic error %s: %s: %s", resp.Status, apiErr.Error.Type, apiErr.Error.Message)
		}
		return "", fmt.Errorf("anthropic error %s: %s", resp.Status, strings.TrimSpace(string(payload)))
	}

	var decoded messagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("decode anthropic response: %w", err)
	}

	var text strings.Builder
	for _, block := range decoded.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}

	c.logger.Debug("message complete",
		"model", req.Model,
		"stop_reason", decoded.StopReason,
		"input_tokens", decoded.Usage.InputTokens,
		"output_tokens", decoded.Usage.OutputTokens,
		"duration", time.Since(start),
	)
	if decoded.StopReason == "max_tokens" {
		c.logger.Warn("reply truncated at max tokens", "model", req.Model, "max_tokens", maxTokens)
	}
	if text.Len() == 0 {
		return "", fmt.Errorf("anthropic reply has no text content")
	}
	return text.String(), nil
}
