package llm

import (
	"context"
	"strings"

	"google.golang.org/genai"
)

// Gemini calls the Gemini API through the genai SDK.
type Gemini struct {
	client *genai.Client
	cfg    Config
}

// NewGemini creates the provider against the Gemini API backend.
func NewGemini(ctx context.Context, cfg Config) (*Gemini, error) {
	if err := requireKey(cfg); err != nil {
		return nil, err
	}
	cc := &genai.ClientConfig{APIKey: cfg.APIKey, Backend: genai.BackendGeminiAPI}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	cli, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, providerError(ProviderGemini, 0, err)
	}
	return &Gemini{client: cli, cfg: cfg}, nil
}

func (g *Gemini) Name() string { return providerName(ProviderGemini, g.cfg.Model) }

func (g *Gemini) Complete(ctx context.Context, req Request) (*Response, error) {
	if g.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, g.cfg.Timeout)
		defer cancel()
	}

	conf := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(pick(req.Temperature, g.cfg.Temperature))),
		MaxOutputTokens: int32(pickInt(req.MaxTokens, g.cfg.MaxTokens)),
	}
	if req.System != "" {
		conf.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: req.System}}}
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.cfg.Model,
		[]*genai.Content{{Role: "user", Parts: []*genai.Part{{Text: req.User}}}},
		conf,
	)
	if err != nil {
		return nil, providerError(g.Name(), 0, err)
	}
	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return nil, emptyResponse(g.Name())
	}
	out := &Response{Text: text, Model: pickString(resp.ModelVersion, g.cfg.Model)}
	if u := resp.UsageMetadata; u != nil {
		out.InputTokens = int(u.PromptTokenCount)
		out.OutputTokens = int(u.CandidatesTokenCount)
	}
	return out, nil
}
