// Package llm wraps the chat-completion SDKs behind one small interface.
//
// A [Provider] turns a system prompt and a user message into text. [New]
// builds the SDK-backed provider named in [Config] and decorates it with
// middleware for rate limiting, retries and observability hooks:
//
//	p, err := llm.New(ctx, llm.Config{Provider: "deepseek", APIKey: key})
//	resp, err := p.Complete(ctx, llm.Request{System: sys, User: msg})
//
// Supported providers: deepseek (default, OpenAI-compatible API), openai,
// anthropic and gemini. [Scripted] replays canned responses for tests and
// dry runs.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/easygithub/easygithub/pkg/errors"
)

// Provider names accepted by [New].
const (
	ProviderDeepseek  = "deepseek"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
	ProviderGemini    = "gemini"
	ProviderScripted  = "scripted"
)

// Defaults applied by [Config.withDefaults].
const (
	DefaultDeepseekURL   = "https://api.deepseek.com/"
	DefaultDeepseekModel = "deepseek-chat"
	DefaultOpenAIModel   = "gpt-4o-mini"
	DefaultClaudeModel   = "claude-sonnet-4-5"
	DefaultGeminiModel   = "gemini-2.5-flash"
	DefaultMaxTokens     = 8192
	DefaultTimeout       = 5 * time.Minute
	DefaultMaxRetries    = 3
)

// Request is one completion call.
type Request struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int
}

// Response is the text a provider returned with token usage.
type Response struct {
	Text         string `json:"text"`
	Model        string `json:"model"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
}

// Provider produces completions.
type Provider interface {
	Complete(ctx context.Context, req Request) (*Response, error)
	// Name identifies the provider and model, e.g. "deepseek:deepseek-chat".
	Name() string
}

// Config selects and tunes a provider.
type Config struct {
	Provider    string        `toml:"provider" yaml:"provider" json:"provider" validate:"omitempty,oneof=deepseek openai anthropic gemini scripted"`
	APIKey      string        `toml:"api_key" yaml:"api_key" json:"-"`
	Model       string        `toml:"model" yaml:"model" json:"model"`
	BaseURL     string        `toml:"base_url" yaml:"base_url" json:"base_url,omitempty" validate:"omitempty,url"`
	Temperature float64       `toml:"temperature" yaml:"temperature" json:"temperature" validate:"gte=0,lte=2"`
	MaxTokens   int           `toml:"max_tokens" yaml:"max_tokens" json:"max_tokens" validate:"gte=0"`
	Timeout     time.Duration `toml:"timeout" yaml:"timeout" json:"timeout" validate:"gte=0"`
	RPS         float64       `toml:"rps" yaml:"rps" json:"rps" validate:"gte=0"`
	Burst       int           `toml:"burst" yaml:"burst" json:"burst" validate:"gte=0"`
	// MaxRetries counts attempts after the first. Zero selects
	// DefaultMaxRetries; a negative value disables retries.
	MaxRetries int `toml:"max_retries" yaml:"max_retries" json:"max_retries" validate:"gte=-1"`
}

// WithDefaults returns a copy with provider-specific defaults filled in.
func (c Config) WithDefaults() Config {
	c.Provider = strings.ToLower(strings.TrimSpace(c.Provider))
	if c.Provider == "" {
		c.Provider = ProviderDeepseek
	}
	if c.Model == "" {
		switch c.Provider {
		case ProviderDeepseek:
			c.Model = DefaultDeepseekModel
		case ProviderOpenAI:
			c.Model = DefaultOpenAIModel
		case ProviderAnthropic:
			c.Model = DefaultClaudeModel
		case ProviderGemini:
			c.Model = DefaultGeminiModel
		}
	}
	if c.Provider == ProviderDeepseek && c.BaseURL == "" {
		c.BaseURL = DefaultDeepseekURL
	}
	if c.MaxTokens == 0 {
		c.MaxTokens = DefaultMaxTokens
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	return c
}

// New builds the provider named by cfg and wraps it with hooks, retries and
// rate limiting. Release it with [Close] when done.
func New(ctx context.Context, cfg Config) (Provider, error) {
	cfg = cfg.WithDefaults()

	var (
		p   Provider
		err error
	)
	switch cfg.Provider {
	case ProviderDeepseek, ProviderOpenAI:
		p, err = NewOpenAI(cfg)
	case ProviderAnthropic:
		p, err = NewAnthropic(cfg)
	case ProviderGemini:
		p, err = NewGemini(ctx, cfg)
	case ProviderScripted:
		return NewScripted(), nil
	default:
		return nil, errors.New(errors.ErrCodeInvalidInput, "unknown LLM provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	return Wrap(p,
		RateLimit(cfg.RPS, cfg.Burst),
		Retry(cfg.attempts(), time.Second),
		Hooks(),
	), nil
}

// attempts converts MaxRetries into the total number of calls.
func (c Config) attempts() int {
	return max(c.MaxRetries, 0) + 1
}

// requireKey fails fast when a hosted provider has no API key.
func requireKey(cfg Config) error {
	if cfg.APIKey == "" {
		return errors.New(errors.ErrCodeUnauthorized, "%s API key is not configured", cfg.Provider)
	}
	return nil
}

// PermanentError marks a provider failure that retrying cannot fix, such as
// an invalid request or rejected credentials.
type PermanentError struct{ Err error }

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// providerError converts an SDK failure into a coded error. Client errors
// other than 408 and 429 are marked permanent.
func providerError(name string, status int, err error) error {
	wrapped := errors.Wrap(errors.ErrCodeLLM, err, "%s completion failed", name)
	switch {
	case status == 401 || status == 403:
		return &PermanentError{Err: errors.Wrap(errors.ErrCodeUnauthorized, err, "%s rejected the API key", name)}
	case status >= 400 && status < 500 && status != 408 && status != 429:
		return &PermanentError{Err: wrapped}
	default:
		return wrapped
	}
}

func emptyResponse(name string) error {
	return errors.New(errors.ErrCodeLLMEmptyResponse, "%s returned an empty completion", name)
}

func providerName(provider, model string) string {
	return fmt.Sprintf("%s:%s", provider, model)
}
