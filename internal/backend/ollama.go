package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
)

// OllamaRequest represents the request body for Ollama API
type OllamaRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

// OllamaResponse represents the response from Ollama API
type OllamaResponse struct {
	Model     string `json:"model"`
	CreatedAt string `json:"created_at"`
	Message   struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	} `json:"message"`
	Done            bool `json:"done"`
	PromptEvalCount int  `json:"prompt_eval_count"`
	EvalCount       int  `json:"eval_count"`
}

// OllamaClient calls a local Ollama server
type OllamaClient struct {
	client *resty.Client
	model  string
}

func (c *OllamaClient) Name() string  { return BackendOllama }
func (c *OllamaClient) Model() string { return c.model }

// Complete calls POST /api/chat with streaming disabled
func (c *OllamaClient) Complete(ctx context.Context, messages []Message) (Completion, error) {
	reqBody := OllamaRequest{
		Model:    c.model,
		Messages: messages,
		Stream:   false,
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetBody(reqBody).
		Post("/api/chat")
	if err != nil {
		return Completion{}, fmt.Errorf("failed to send request (is Ollama running?): %w", err)
	}
	if resp.IsError() {
		return Completion{}, statusError(resp)
	}

	var apiResp OllamaResponse
	if err := json.Unmarshal(resp.Body(), &apiResp); err != nil {
		return Completion{}, fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if strings.TrimSpace(apiResp.Message.Content) == "" {
		return Completion{}, fmt.Errorf("empty response from Ollama")
	}

	out := Completion{
		Content:      apiResp.Message.Content,
		Model:        apiResp.Model,
		InputTokens:  apiResp.PromptEvalCount,
		OutputTokens: apiResp.EvalCount,
	}
	if out.Model == "" {
		out.Model = c.model
	}
	return out, nil
}
