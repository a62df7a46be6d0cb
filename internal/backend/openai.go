package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
)

// OpenAIRequest represents the request body for OpenAI-compatible APIs
type OpenAIRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
}

// OpenAIResponse represents the response from OpenAI-compatible APIs
type OpenAIResponse struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	Created int64  `json:"created"`
	Model   string `json:"model"`
	Choices []struct {
		Index   int `json:"index"`
		Message struct {
			Role    string `json:"role"`
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
}

// OpenAIClient talks to any chat-completions endpoint (Groq, OpenAI, Grok)
type OpenAIClient struct {
	name   string
	client *resty.Client
	model  string
	apiKey string
}

func (c *OpenAIClient) Name() string  { return c.name }
func (c *OpenAIClient) Model() string { return c.model }

// Complete calls POST /chat/completions
func (c *OpenAIClient) Complete(ctx context.Context, messages []Message) (Completion, error) {
	reqBody := OpenAIRequest{
		Model:    c.model,
		Messages: messages,
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Authorization", "Bearer "+c.apiKey).
		SetBody(reqBody).
		Post("/chat/completions")
	if err != nil {
		return Completion{}, fmt.Errorf("failed to send request: %w", err)
	}
	if resp.IsError() {
		return Completion{}, statusError(resp)
	}

	var apiResp OpenAIResponse
	if err := json.Unmarshal(resp.Body(), &apiResp); err != nil {
		return Completion{}, fmt.Errorf("failed to unmarshal response: %w", err)
	}

	if len(apiResp.Choices) == 0 || strings.TrimSpace(apiResp.Choices[0].Message.Content) == "" {
		return Completion{}, fmt.Errorf("empty response from %s", c.name)
	}

	out := Completion{
		Content: apiResp.Choices[0].Message.Content,
		Model:   apiResp.Model,
	}
	if out.Model == "" {
		out.Model = c.model
	}
	if apiResp.Usage != nil {
		out.InputTokens = apiResp.Usage.PromptTokens
		out.OutputTokens = apiResp.Usage.CompletionTokens
	}
	return out, nil
}
