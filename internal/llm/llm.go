// Package llm defines the provider-neutral conversation types and the
// Provider capability the chat orchestrator is written against.
//
// The JSON wire shape of Turn and Part matches the Gemini contents array so
// the browser client can round-trip conversation history opaquely, whichever
// provider is configured.
package llm

import (
	"context"

	"github.com/google/jsonschema-go/jsonschema"
)

// Conversation roles.
const (
	RoleUser     = "user"
	RoleModel    = "model"
	RoleFunction = "function"
)

// FunctionCall is a tool invocation requested by the model.
type FunctionCall struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args"`
}

// FunctionResponse carries a tool result back to the model.
type FunctionResponse struct {
	Name     string         `json:"name"`
	Response map[string]any `json:"response"`
}

// Part is one piece of a conversation turn. Exactly one field is set.
type Part struct {
	Text             string            `json:"text,omitempty"`
	FunctionCall     *FunctionCall     `json:"functionCall,omitempty"`
	FunctionResponse *FunctionResponse `json:"functionResponse,omitempty"`
}

// TextPart builds a plain text part.
func TextPart(text string) Part {
	return Part{Text: text}
}

// Turn is a single entry in the conversation history.
type Turn struct {
	Role  string `json:"role"`
	Parts []Part `json:"parts"`
}

// ToolDefinition describes one callable tool to the model.
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  *jsonschema.Schema
}

// Request is one generation round. History precedes Message; Message is
// appended as the final user turn. An empty Tools slice disables function
// calling for the round.
type Request struct {
	System  string
	Message string
	Tools   []ToolDefinition
	History []Turn
}

// Response is the model's answer to a Request. Calls preserves the order the
// model emitted them in.
type Response struct {
	Text  string
	Calls []FunctionCall
}

// Provider generates model responses. Implementations are safe for concurrent
// use by multiple goroutines.
type Provider interface {
	Generate(ctx context.Context, req Request) (*Response, error)
}
