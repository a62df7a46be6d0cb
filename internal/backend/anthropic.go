package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
)

const anthropicVersion = "2023-06-01"

// AnthropicRequest represents the request body for Anthropic API
type AnthropicRequest struct {
	Model     string             `json:"model"`
	MaxTokens int                `json:"max_tokens"`
	System    string             `json:"system,omitempty"`
	Messages  []AnthropicMessage `json:"messages"`
}

// AnthropicMessage represents a message in the conversation
type AnthropicMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// AnthropicContent represents one content block of a reply
type AnthropicContent struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// AnthropicResponse represents the response from Anthropic API
type AnthropicResponse struct {
	ID         string             `json:"id"`
	Type       string             `json:"type"`
	Role       string             `json:"role"`
	Content    []AnthropicContent `json:"content"`
	Model      string             `json:"model"`
	StopReason string             `json:"stop_reason"`
	Usage      struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
}

// AnthropicClient calls the Anthropic Messages API
type AnthropicClient struct {
	client *resty.Client
	model  string
	apiKey string
}

func (c *AnthropicClient) Name() string  { return BackendAnthropic }
func (c *AnthropicClient) Model() string { return c.model }

// Complete calls POST /v1/messages. Anthropic carries the instruction in a
// top-level field, so system messages are lifted out of the sequence.
func (c *AnthropicClient) Complete(ctx context.Context, messages []Message) (Completion, error) {
	reqBody := AnthropicRequest{
		Model:     c.model,
		MaxTokens: 1024,
	}
	var system []string
	for _, msg := range messages {
		if msg.Role == RoleSystem {
			system = append(system, msg.Content)
			continue
		}
		reqBody.Messages = append(reqBody.Messages, AnthropicMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}
	reqBody.System = strings.Join(system, "\n\n")

	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("x-api-key", c.apiKey).
		SetHeader("anthropic-version", anthropicVersion).
		SetBody(reqBody).
		Post("/v1/messages")
	if err != nil {
		return Completion{}, fmt.Errorf("failed to send request: %w", err)
	}
	if resp.IsError() {
		return Completion{}, statusError(resp)
	}

	var apiResp AnthropicResponse
	if err := json.Unmarshal(resp.Body(), &apiResp); err != nil {
		return Completion{}, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	for _, content := range apiResp.Content {
		if content.Type == "text" && strings.TrimSpace(content.Text) != "" {
			out := Completion{
				Content:      content.Text,
				Model:        apiResp.Model,
				InputTokens:  apiResp.Usage.InputTokens,
				OutputTokens: apiResp.Usage.OutputTokens,
			}
			if out.Model == "" {
				out.Model = c.model
			}
			return out, nil
		}
	}

	return Completion{}, fmt.Errorf("empty response from Anthropic")
}
