// Package chat runs the two-phase conversation loop: one model call with the
// full tool schema, sequential tool execution, then a follow-up call without
// tools for the user-facing summary.
package chat

import (
	"context"
	"fmt"

	"github.com/kibocha/orderdesk/internal/llm"
	"github.com/kibocha/orderdesk/internal/log"
	"github.com/kibocha/orderdesk/internal/tools"
)

// continuePrompt asks the model to turn raw tool results into prose.
const continuePrompt = "Continue"

// Outcome is the result of one chat round.
type Outcome struct {
	// Reply is the user-facing natural-language answer.
	Reply string

	// ToolResults holds the function response parts produced this round, in
	// call order. Nil when the model answered without tools.
	ToolResults []llm.Part

	// History is the updated conversation history the client round-trips.
	History []llm.Turn
}

// Orchestrator dispatches model function calls against the tool registry.
// The server is stateless between requests: all conversation state lives in
// the history the client sends with each message.
type Orchestrator struct {
	provider     llm.Provider
	registry     *tools.Registry
	systemPrompt string
	logger       log.Logger
}

// New creates an orchestrator. The system prompt is composed once because it
// only depends on startup configuration.
func New(provider llm.Provider, registry *tools.Registry, opts Options, logger log.Logger) *Orchestrator {
	return &Orchestrator{
		provider:     provider,
		registry:     registry,
		systemPrompt: buildSystemPrompt(opts),
		logger:       logger,
	}
}

// Send runs one chat round over message and the prior history.
//
// Tool calls execute sequentially in the order the model returned them; a
// single tool failure becomes an error-shaped function response and the
// batch continues. A provider failure aborts the round with an error and the
// caller's history untouched.
func (o *Orchestrator) Send(ctx context.Context, message string, history []llm.Turn) (*Outcome, error) {
	first, err := o.provider.Generate(ctx, llm.Request{
		System:  o.systemPrompt,
		Message: message,
		Tools:   o.registry.Definitions(),
		History: history,
	})
	if err != nil {
		return nil, fmt.Errorf("generating response: %w", err)
	}

	if len(first.Calls) == 0 {
		updated := appendTurns(history,
			llm.Turn{Role: llm.RoleUser, Parts: []llm.Part{llm.TextPart(message)}},
			llm.Turn{Role: llm.RoleModel, Parts: []llm.Part{llm.TextPart(first.Text)}},
		)
		return &Outcome{Reply: first.Text, History: updated}, nil
	}

	o.logger.Info("executing tool calls", "count", len(first.Calls))

	callParts := make([]llm.Part, 0, len(first.Calls))
	resultParts := make([]llm.Part, 0, len(first.Calls))
	for _, call := range first.Calls {
		callParts = append(callParts, llm.Part{FunctionCall: &llm.FunctionCall{
			Name: call.Name,
			Args: call.Args,
		}})
		result := o.execute(ctx, call)
		resultParts = append(resultParts, llm.Part{FunctionResponse: &llm.FunctionResponse{
			Name:     call.Name,
			Response: result.Payload(),
		}})
	}

	updated := appendTurns(history,
		llm.Turn{Role: llm.RoleUser, Parts: []llm.Part{llm.TextPart(message)}},
		llm.Turn{Role: llm.RoleModel, Parts: callParts},
		llm.Turn{Role: llm.RoleFunction, Parts: resultParts},
	)

	final, err := o.provider.Generate(ctx, llm.Request{
		System:  o.systemPrompt,
		Message: continuePrompt,
		History: updated,
	})
	if err != nil {
		return nil, fmt.Errorf("generating final response: %w", err)
	}

	return &Outcome{Reply: final.Text, ToolResults: resultParts, History: updated}, nil
}

// execute runs one tool call, converting unknown tools and handler panics
// into error results so the batch never aborts.
func (o *Orchestrator) execute(ctx context.Context, call llm.FunctionCall) (result tools.Result) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("tool handler panicked", "tool", call.Name, "panic", r)
			result = tools.Failuref(tools.ErrCodeInternal, "Tool %s failed unexpectedly", call.Name)
		}
	}()

	handler, err := o.registry.Resolve(call.Name)
	if err != nil {
		o.logger.Warn("unknown tool requested", "tool", call.Name)
		return tools.Failuref(tools.ErrCodeUnknownTool, "Unknown tool: %s", call.Name)
	}

	result = handler.Handle(ctx, call.Args)
	o.logger.Info("tool executed", "tool", call.Name, "status", result.Status)
	return result
}

// appendTurns copies before appending so the caller's slice is never aliased;
// the degraded error path must hand the original history back unchanged.
func appendTurns(history []llm.Turn, turns ...llm.Turn) []llm.Turn {
	out := make([]llm.Turn, 0, len(history)+len(turns))
	out = append(out, history...)
	return append(out, turns...)
}
