package llm

import (
	"context"
	"sync"

	"github.com/easygithub/easygithub/pkg/errors"
)

// Scripted replays queued responses in order.
type Scripted struct {
	mu       sync.Mutex
	queue    []scripted
	requests []Request
	model    string
}

type scripted struct {
	resp Response
	err  error
}

// NewScripted returns an empty scripted provider.
func NewScripted(responses ...string) *Scripted {
	s := &Scripted{model: "scripted"}
	for _, r := range responses {
		s.Push(r)
	}
	return s
}

// Push queues a text response.
func (s *Scripted) Push(text string) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, scripted{resp: Response{Text: text, Model: s.model}})
	return s
}

// PushError queues a failure.
func (s *Scripted) PushError(err error) *Scripted {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queue = append(s.queue, scripted{err: err})
	return s
}

// Requests returns the requests received so far.
func (s *Scripted) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.requests...)
}

func (s *Scripted) Name() string { return providerName(ProviderScripted, s.model) }

func (s *Scripted) Complete(ctx context.Context, req Request) (*Response, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, req)
	if len(s.queue) == 0 {
		return nil, errors.New(errors.ErrCodeLLM, "scripted provider has no response queued")
	}
	next := s.queue[0]
	s.queue = s.queue[1:]
	if next.err != nil {
		return nil, next.err
	}
	if next.resp.Text == "" {
		return nil, emptyResponse(s.Name())
	}
	resp := next.resp
	resp.InputTokens = len(req.System+req.User) / 4
	resp.OutputTokens = len(resp.Text) / 4
	return &resp, nil
}
