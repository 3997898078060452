package llm

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/kibocha/orderdesk/internal/log"
)

func newTestOpenRouter(url string) *OpenRouter {
	return NewOpenRouter(OpenRouterConfig{
		APIKey:      "test-key",
		URL:         url,
		Model:       "openai/gpt-4o-mini",
		Temperature: 0.7,
		TopP:        0.95,
		MaxTokens:   8192,
	}, log.NewNop())
}

func TestOpenRouter_Generate_Text(t *testing.T) {
	var captured orRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("Authorization = %q", got)
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &captured); err != nil {
			t.Errorf("request not valid JSON: %v", err)
		}
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Order created."}}]}`))
	}))
	defer srv.Close()

	resp, err := newTestOpenRouter(srv.URL).Generate(context.Background(), Request{
		System:  "You manage orders.",
		Message: "hello",
		History: []Turn{{Role: RoleUser, Parts: []Part{TextPart("earlier question")}}},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if resp.Text != "Order created." || len(resp.Calls) != 0 {
		t.Errorf("unexpected response: %+v", resp)
	}

	// system, prior user turn, current message
	if len(captured.Messages) != 3 {
		t.Fatalf("got %d messages, want 3: %+v", len(captured.Messages), captured.Messages)
	}
	if captured.Messages[0].Role != "system" || captured.Messages[2].Content != "hello" {
		t.Errorf("message flattening wrong: %+v", captured.Messages)
	}
}

func TestOpenRouter_Generate_ToolCalls(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","tool_calls":[
			{"id":"call_abc","type":"function","function":{"name":"view_order","arguments":"{\"order_no\":\"ACME-001\"}"}}
		]}}]}`))
	}))
	defer srv.Close()

	resp, err := newTestOpenRouter(srv.URL).Generate(context.Background(), Request{
		Message: "show ACME-001",
		Tools: []ToolDefinition{{
			Name:        "view_order",
			Description: "View an order",
			Parameters:  &jsonschema.Schema{Type: "object"},
		}},
	})
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if len(resp.Calls) != 1 {
		t.Fatalf("got %d calls, want 1", len(resp.Calls))
	}
	if resp.Calls[0].Name != "view_order" || resp.Calls[0].Args["order_no"] != "ACME-001" {
		t.Errorf("unexpected call: %+v", resp.Calls[0])
	}
}

func TestOpenRouter_Generate_HistoryWithToolRoundTrip(t *testing.T) {
	var captured orRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &captured)
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"done"}}]}`))
	}))
	defer srv.Close()

	history := []Turn{
		{Role: RoleUser, Parts: []Part{TextPart("create an order")}},
		{Role: RoleModel, Parts: []Part{
			{FunctionCall: &FunctionCall{Name: "create_order", Args: map[string]any{"client_name": "Jane"}}},
		}},
		{Role: RoleFunction, Parts: []Part{
			{FunctionResponse: &FunctionResponse{Name: "create_order", Response: map[string]any{"status": "success"}}},
		}},
	}

	if _, err := newTestOpenRouter(srv.URL).Generate(context.Background(), Request{
		Message: "Continue", History: history,
	}); err != nil {
		t.Fatalf("Generate: %v", err)
	}

	// user, assistant(tool_calls), tool, current message
	if len(captured.Messages) != 4 {
		t.Fatalf("got %d messages: %+v", len(captured.Messages), captured.Messages)
	}
	assistant := captured.Messages[1]
	if len(assistant.ToolCalls) != 1 || assistant.ToolCalls[0].Function.Name != "create_order" {
		t.Errorf("assistant tool call missing: %+v", assistant)
	}
	tool := captured.Messages[2]
	if tool.Role != "tool" || tool.ToolCallID != assistant.ToolCalls[0].ID {
		t.Errorf("tool response not linked to call id: %+v vs %+v", tool, assistant.ToolCalls)
	}
}

func TestOpenRouter_Generate_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limited"}}`))
	}))
	defer srv.Close()

	if _, err := newTestOpenRouter(srv.URL).Generate(context.Background(), Request{Message: "hi"}); err == nil {
		t.Fatal("expected error on non-2xx status")
	}
}
