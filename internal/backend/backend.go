package backend

import (
	"context"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	BackendGroq      = "groq"
	BackendOpenAI    = "openai"
	BackendGrok      = "grok"
	BackendAnthropic = "anthropic"
	BackendOllama    = "ollama"
)

// Role tags a message with its author
type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one role-tagged entry of the sequence sent to a provider
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Completion is the provider's reply to a message sequence
type Completion struct {
	Content      string
	Model        string
	InputTokens  int
	OutputTokens int
}

// Provider sends an ordered message sequence to a hosted model
type Provider interface {
	// Name returns the backend identifier (groq, openai, ...)
	Name() string
	// Model returns the model identifier sent with every request
	Model() string
	// Complete submits messages verbatim and returns the model reply
	Complete(ctx context.Context, messages []Message) (Completion, error)
}

// Options configures a provider client
type Options struct {
	Backend string
	Model   string
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// defaults per backend: base URL, model, whether an API key is required
var defaults = map[string]struct {
	baseURL  string
	model    string
	needsKey bool
}{
	BackendGroq:      {"https://api.groq.com/openai/v1", "llama3-8b-8192", true},
	BackendOpenAI:    {"https://api.openai.com/v1", "gpt-3.5-turbo", true},
	BackendGrok:      {"https://api.x.ai/v1", "grok-1", true},
	BackendAnthropic: {"https://api.anthropic.com", "claude-sonnet-4-20250514", true},
	BackendOllama:    {"http://localhost:11434", "llama3:latest", false},
}

// Supported reports whether name is a known backend
func Supported(name string) bool {
	_, ok := defaults[name]
	return ok
}

// RequiresAPIKey reports whether the backend needs a credential
func RequiresAPIKey(name string) bool {
	return defaults[name].needsKey
}

// DefaultModel returns the model used when none is configured
func DefaultModel(name string) string {
	return defaults[name].model
}

// New creates the provider client for opts.Backend
func New(opts Options) (Provider, error) {
	d, ok := defaults[opts.Backend]
	if !ok {
		return nil, fmt.Errorf("unknown backend: %s", opts.Backend)
	}
	if d.needsKey && opts.APIKey == "" {
		return nil, fmt.Errorf("%s backend requires an API key", opts.Backend)
	}
	if opts.Model == "" {
		opts.Model = d.model
	}
	if opts.BaseURL == "" {
		opts.BaseURL = d.baseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 60 * time.Second
	}

	client := newRestyClient(opts)

	switch opts.Backend {
	case BackendAnthropic:
		return &AnthropicClient{client: client, model: opts.Model, apiKey: opts.APIKey}, nil
	case BackendOllama:
		return &OllamaClient{client: client, model: opts.Model}, nil
	default:
		return &OpenAIClient{name: opts.Backend, client: client, model: opts.Model, apiKey: opts.APIKey}, nil
	}
}

// newRestyClient builds the shared HTTP client. Retries stay off: a failed
// call is reported to the user, who decides whether to ask again.
func newRestyClient(opts Options) *resty.Client {
	client := resty.New()
	client.SetBaseURL(opts.BaseURL)
	client.SetTimeout(opts.Timeout)
	client.SetRetryCount(0)
	client.SetHeader("content-type", "application/json")
	return client
}

// statusError formats a non-2xx provider reply
func statusError(resp *resty.Response) error {
	return fmt.Errorf("API error: %s - %s", resp.Status(), truncate(resp.String(), 400))
}

func truncate(s string, maxChars int) string {
	runes := []rune(s)
	if len(runes) <= maxChars {
		return s
	}
	return string(runes[:maxChars])
}
