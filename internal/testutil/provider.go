// Package testutil holds shared test doubles.
package testutil

import (
	"context"
	"errors"
	"sync"

	"github.com/kibocha/orderdesk/internal/llm"
)

// ScriptedProvider returns queued responses in order and records every
// request it receives. Safe for concurrent use.
type ScriptedProvider struct {
	mu        sync.Mutex
	responses []scripted
	requests  []llm.Request
}

type scripted struct {
	resp *llm.Response
	err  error
}

// NewScriptedProvider creates an empty provider; queue turns with Reply,
// Calls, or Fail before use.
func NewScriptedProvider() *ScriptedProvider {
	return &ScriptedProvider{}
}

// Reply queues a plain text response.
func (p *ScriptedProvider) Reply(text string) *ScriptedProvider {
	return p.push(&llm.Response{Text: text}, nil)
}

// Calls queues a response carrying function calls.
func (p *ScriptedProvider) Calls(calls ...llm.FunctionCall) *ScriptedProvider {
	return p.push(&llm.Response{Calls: calls}, nil)
}

// Fail queues an error.
func (p *ScriptedProvider) Fail(err error) *ScriptedProvider {
	return p.push(nil, err)
}

func (p *ScriptedProvider) push(resp *llm.Response, err error) *ScriptedProvider {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.responses = append(p.responses, scripted{resp: resp, err: err})
	return p
}

// Generate pops the next queued response. Running past the script is an
// error so tests catch unexpected extra calls.
func (p *ScriptedProvider) Generate(_ context.Context, req llm.Request) (*llm.Response, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.requests = append(p.requests, req)
	if len(p.responses) == 0 {
		return nil, errors.New("scripted provider: no responses left")
	}
	next := p.responses[0]
	p.responses = p.responses[1:]
	return next.resp, next.err
}

// Requests returns a copy of every request seen so far.
func (p *ScriptedProvider) Requests() []llm.Request {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]llm.Request, len(p.requests))
	copy(out, p.requests)
	return out
}
