package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/kibocha/orderdesk/internal/log"
)

// openRouterTimeout bounds a single completion round trip.
const openRouterTimeout = 30 * time.Second

// OpenRouterConfig holds connection and generation parameters for OpenRouter.
type OpenRouterConfig struct {
	APIKey      string
	URL         string // chat.completions endpoint
	Model       string
	Temperature float32
	TopP        float32
	MaxTokens   int
}

// OpenRouter calls any OpenAI-compatible chat.completions endpoint. The
// Gemini-shaped history is flattened into role/content messages on the way
// out and tool_calls are folded back into FunctionCalls on the way in.
type OpenRouter struct {
	cfg    OpenRouterConfig
	client *http.Client
	logger log.Logger
}

// NewOpenRouter creates an OpenRouter provider.
func NewOpenRouter(cfg OpenRouterConfig, logger log.Logger) *OpenRouter {
	return &OpenRouter{
		cfg:    cfg,
		client: &http.Client{Timeout: openRouterTimeout},
		logger: logger,
	}
}

// Wire types for the OpenAI-compatible API.

type orMessage struct {
	Role       string       `json:"role"`
	Content    string       `json:"content,omitempty"`
	ToolCalls  []orToolCall `json:"tool_calls,omitempty"`
	ToolCallID string       `json:"tool_call_id,omitempty"`
	Name       string       `json:"name,omitempty"`
}

type orToolCall struct {
	ID       string     `json:"id"`
	Type     string     `json:"type"`
	Function orFunction `json:"function"`
}

type orFunction struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments"`
}

type orTool struct {
	Type     string           `json:"type"`
	Function orToolDefinition `json:"function"`
}

type orToolDefinition struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Parameters  *jsonschema.Schema `json:"parameters,omitempty"`
}

type orRequest struct {
	Model       string      `json:"model"`
	Messages    []orMessage `json:"messages"`
	Temperature float32     `json:"temperature"`
	TopP        float32     `json:"top_p"`
	MaxTokens   int         `json:"max_tokens"`
	Tools       []orTool    `json:"tools,omitempty"`
}

type orResponse struct {
	Choices []struct {
		Message orMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// Generate implements Provider.
func (o *OpenRouter) Generate(ctx context.Context, req Request) (*Response, error) {
	body := orRequest{
		Model:       o.cfg.Model,
		Messages:    o.buildMessages(req),
		Temperature: o.cfg.Temperature,
		TopP:        o.cfg.TopP,
		MaxTokens:   o.cfg.MaxTokens,
	}
	for _, t := range req.Tools {
		body.Tools = append(body.Tools, orTool{
			Type: "function",
			Function: orToolDefinition{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.Parameters,
			},
		})
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding completion request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, o.cfg.URL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building completion request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+o.cfg.APIKey)

	resp, err := o.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("calling openrouter: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading openrouter response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("openrouter returned %d: %s", resp.StatusCode, truncate(string(raw), 500))
	}

	var parsed orResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decoding openrouter response: %w", err)
	}
	if parsed.Error != nil {
		return nil, fmt.Errorf("openrouter error: %s", parsed.Error.Message)
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("openrouter returned no choices")
	}

	msg := parsed.Choices[0].Message
	out := &Response{Text: msg.Content}
	for _, tc := range msg.ToolCalls {
		args := map[string]any{}
		if tc.Function.Arguments != "" {
			if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
				return nil, fmt.Errorf("decoding tool call arguments for %s: %w", tc.Function.Name, err)
			}
		}
		out.Calls = append(out.Calls, FunctionCall{Name: tc.Function.Name, Args: args})
	}

	o.logger.Debug("openrouter response",
		"model", o.cfg.Model,
		"calls", len(out.Calls),
		"text_len", len(out.Text))

	return out, nil
}

// buildMessages flattens the Gemini-shaped history into OpenAI messages.
// Tool call ids are synthesized in emission order; function responses consume
// them in the same order, which holds because the orchestrator stores
// responses in call order.
func (o *OpenRouter) buildMessages(req Request) []orMessage {
	messages := make([]orMessage, 0, len(req.History)+2)
	if req.System != "" {
		messages = append(messages, orMessage{Role: "system", Content: req.System})
	}

	var pendingIDs []string
	nextID := 0
	for _, turn := range req.History {
		switch turn.Role {
		case RoleModel:
			msg := orMessage{Role: "assistant"}
			for _, p := range turn.Parts {
				if p.FunctionCall != nil {
					nextID++
					id := fmt.Sprintf("call_%d", nextID)
					pendingIDs = append(pendingIDs, id)
					args, _ := json.Marshal(p.FunctionCall.Args)
					msg.ToolCalls = append(msg.ToolCalls, orToolCall{
						ID:   id,
						Type: "function",
						Function: orFunction{
							Name:      p.FunctionCall.Name,
							Arguments: string(args),
						},
					})
					continue
				}
				msg.Content += p.Text
			}
			messages = append(messages, msg)
		case RoleFunction:
			for _, p := range turn.Parts {
				if p.FunctionResponse == nil {
					continue
				}
				id := ""
				if len(pendingIDs) > 0 {
					id = pendingIDs[0]
					pendingIDs = pendingIDs[1:]
				}
				content, _ := json.Marshal(p.FunctionResponse.Response)
				messages = append(messages, orMessage{
					Role:       "tool",
					ToolCallID: id,
					Name:       p.FunctionResponse.Name,
					Content:    string(content),
				})
			}
		default:
			var content string
			for _, p := range turn.Parts {
				content += p.Text
			}
			messages = append(messages, orMessage{Role: "user", Content: content})
		}
	}

	return append(messages, orMessage{Role: "user", Content: req.Message})
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
