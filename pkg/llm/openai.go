package llm

import (
	"context"
	stderrors "errors"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// OpenAI talks to any OpenAI-compatible chat completions API. Deepseek is
// served through it with the Deepseek base URL.
type OpenAI struct {
	client openai.Client
	cfg    Config
}

// NewOpenAI creates the provider. SDK-level retries are disabled; the
// [Retry] middleware owns retry policy.
func NewOpenAI(cfg Config) (*OpenAI, error) {
	if err := requireKey(cfg); err != nil {
		return nil, err
	}
	opts := []option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithMaxRetries(0),
	}
	if cfg.Timeout > 0 {
		opts = append(opts, option.WithRequestTimeout(cfg.Timeout))
	}
	if cfg.BaseURL != "" {
		base := cfg.BaseURL
		if !strings.HasSuffix(base, "/") {
			base += "/"
		}
		opts = append(opts, option.WithBaseURL(base))
	}
	return &OpenAI{client: openai.NewClient(opts...), cfg: cfg}, nil
}

func (o *OpenAI) Name() string { return providerName(o.cfg.Provider, o.cfg.Model) }

func (o *OpenAI) Complete(ctx context.Context, req Request) (*Response, error) {
	params := openai.ChatCompletionNewParams{
		Model: o.cfg.Model,
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(req.System),
			openai.UserMessage(req.User),
		},
		Temperature: openai.Float(pick(req.Temperature, o.cfg.Temperature)),
	}
	if n := pickInt(req.MaxTokens, o.cfg.MaxTokens); n > 0 {
		params.MaxCompletionTokens = openai.Int(int64(n))
	}

	resp, err := o.client.Chat.Completions.New(ctx, params)
	if err != nil {
		var apiErr *openai.Error
		if stderrors.As(err, &apiErr) {
			return nil, providerError(o.Name(), apiErr.StatusCode, err)
		}
		return nil, providerError(o.Name(), 0, err)
	}
	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		return nil, emptyResponse(o.Name())
	}
	return &Response{
		Text:         resp.Choices[0].Message.Content,
		Model:        pickString(resp.Model, o.cfg.Model),
		InputTokens:  int(resp.Usage.PromptTokens),
		OutputTokens: int(resp.Usage.CompletionTokens),
	}, nil
}

func pick(v, fallback float64) float64 {
	if v != 0 {
		return v
	}
	return fallback
}

func pickInt(v, fallback int) int {
	if v != 0 {
		return v
	}
	return fallback
}

func pickString(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}
