package chat_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/kibocha/orderdesk/internal/chat"
	"github.com/kibocha/orderdesk/internal/llm"
	"github.com/kibocha/orderdesk/internal/log"
	"github.com/kibocha/orderdesk/internal/testutil"
	"github.com/kibocha/orderdesk/internal/tools"
)

type echoHandler struct {
	name   string
	result tools.Result
	panics bool
	calls  int
}

func (h *echoHandler) Name() string                 { return h.name }
func (*echoHandler) Description() string            { return "test handler" }
func (*echoHandler) Parameters() *jsonschema.Schema { return &jsonschema.Schema{Type: "object"} }

func (h *echoHandler) Handle(context.Context, map[string]any) tools.Result {
	h.calls++
	if h.panics {
		panic("boom")
	}
	return h.result
}

func newOrchestrator(t *testing.T, provider llm.Provider, handlers ...tools.Handler) *chat.Orchestrator {
	t.Helper()
	registry, err := tools.NewRegistry(handlers...)
	if err != nil {
		t.Fatal(err)
	}
	opts := chat.Options{
		ReadDirs:       []string{"app"},
		WriteDirs:      []string{"app/tools"},
		DefaultCountry: "Bangladesh",
		DefaultStatus:  "pending",
	}
	return chat.New(provider, registry, opts, log.NewNop())
}

func TestSend_PlainReply(t *testing.T) {
	provider := testutil.NewScriptedProvider().Reply("Hello, how can I help?")
	orc := newOrchestrator(t, provider, &echoHandler{name: "view_order"})

	prior := []llm.Turn{
		{Role: llm.RoleUser, Parts: []llm.Part{llm.TextPart("earlier")}},
		{Role: llm.RoleModel, Parts: []llm.Part{llm.TextPart("earlier reply")}},
	}
	out, err := orc.Send(context.Background(), "hi", prior)
	if err != nil {
		t.Fatal(err)
	}

	if out.Reply != "Hello, how can I help?" {
		t.Errorf("Reply = %q", out.Reply)
	}
	if out.ToolResults != nil {
		t.Errorf("ToolResults = %v, want nil", out.ToolResults)
	}
	if len(out.History) != 4 {
		t.Fatalf("history length = %d, want 4", len(out.History))
	}
	if out.History[2].Role != llm.RoleUser || out.History[2].Parts[0].Text != "hi" {
		t.Errorf("user turn = %+v", out.History[2])
	}
	if out.History[3].Role != llm.RoleModel || out.History[3].Parts[0].Text != "Hello, how can I help?" {
		t.Errorf("model turn = %+v", out.History[3])
	}
	if len(prior) != 2 {
		t.Errorf("caller history mutated, length = %d", len(prior))
	}

	reqs := provider.Requests()
	if len(reqs) != 1 {
		t.Fatalf("provider called %d times, want 1", len(reqs))
	}
	if len(reqs[0].Tools) != 1 || reqs[0].Tools[0].Name != "view_order" {
		t.Errorf("tools in request = %+v", reqs[0].Tools)
	}
	if !strings.Contains(reqs[0].System, "create_order") {
		t.Error("system prompt should describe the tools")
	}
	if !strings.Contains(reqs[0].System, "Bangladesh") {
		t.Error("system prompt should state the default country")
	}
}

func TestSend_ToolRound(t *testing.T) {
	handler := &echoHandler{
		name: "view_order",
		result: tools.Success("Found order", map[string]any{
			"order": map[string]any{"order_no": "ACME-001"},
		}),
	}
	provider := testutil.NewScriptedProvider().
		Calls(llm.FunctionCall{Name: "view_order", Args: map[string]any{"order_no": "ACME-001"}}).
		Reply("Order ACME-001 is pending.")
	orc := newOrchestrator(t, provider, handler)

	out, err := orc.Send(context.Background(), "show ACME-001", nil)
	if err != nil {
		t.Fatal(err)
	}

	if handler.calls != 1 {
		t.Errorf("handler called %d times, want 1", handler.calls)
	}
	if out.Reply != "Order ACME-001 is pending." {
		t.Errorf("Reply = %q", out.Reply)
	}
	if len(out.History) != 3 {
		t.Fatalf("history length = %d, want 3", len(out.History))
	}

	model := out.History[1]
	if model.Role != llm.RoleModel || model.Parts[0].FunctionCall == nil {
		t.Fatalf("model turn = %+v", model)
	}
	if model.Parts[0].FunctionCall.Name != "view_order" {
		t.Errorf("functionCall name = %q", model.Parts[0].FunctionCall.Name)
	}

	fn := out.History[2]
	if fn.Role != llm.RoleFunction || fn.Parts[0].FunctionResponse == nil {
		t.Fatalf("function turn = %+v", fn)
	}
	resp := fn.Parts[0].FunctionResponse.Response
	if resp["status"] != tools.StatusSuccess || resp["order"] == nil {
		t.Errorf("function response = %+v", resp)
	}
	if len(out.ToolResults) != 1 || out.ToolResults[0].FunctionResponse == nil {
		t.Errorf("ToolResults = %+v", out.ToolResults)
	}

	reqs := provider.Requests()
	if len(reqs) != 2 {
		t.Fatalf("provider called %d times, want 2", len(reqs))
	}
	if reqs[1].Message != "Continue" {
		t.Errorf("second message = %q, want Continue", reqs[1].Message)
	}
	if len(reqs[1].Tools) != 0 {
		t.Error("second call must not offer tools")
	}
	if len(reqs[1].History) != 3 {
		t.Errorf("second call history length = %d, want 3", len(reqs[1].History))
	}
}

func TestSend_UnknownToolContinuesBatch(t *testing.T) {
	known := &echoHandler{name: "view_order", result: tools.Success("ok", nil)}
	provider := testutil.NewScriptedProvider().
		Calls(
			llm.FunctionCall{Name: "ghost_tool", Args: map[string]any{}},
			llm.FunctionCall{Name: "view_order", Args: map[string]any{}},
		).
		Reply("done")
	orc := newOrchestrator(t, provider, known)

	out, err := orc.Send(context.Background(), "go", nil)
	if err != nil {
		t.Fatal(err)
	}

	if known.calls != 1 {
		t.Errorf("known handler called %d times, want 1", known.calls)
	}
	if len(out.ToolResults) != 2 {
		t.Fatalf("ToolResults length = %d, want 2", len(out.ToolResults))
	}
	bad := out.ToolResults[0].FunctionResponse.Response
	if bad["status"] != tools.StatusError {
		t.Errorf("unknown tool response = %+v", bad)
	}
	errMap, ok := bad["error"].(map[string]any)
	if !ok || errMap["code"] != tools.ErrCodeUnknownTool {
		t.Errorf("unknown tool error = %+v", bad["error"])
	}
	good := out.ToolResults[1].FunctionResponse.Response
	if good["status"] != tools.StatusSuccess {
		t.Errorf("known tool response = %+v", good)
	}
}

func TestSend_HandlerPanicBecomesErrorResult(t *testing.T) {
	provider := testutil.NewScriptedProvider().
		Calls(llm.FunctionCall{Name: "view_order", Args: map[string]any{}}).
		Reply("done")
	orc := newOrchestrator(t, provider, &echoHandler{name: "view_order", panics: true})

	out, err := orc.Send(context.Background(), "go", nil)
	if err != nil {
		t.Fatal(err)
	}

	resp := out.ToolResults[0].FunctionResponse.Response
	if resp["status"] != tools.StatusError {
		t.Fatalf("response = %+v", resp)
	}
	errMap := resp["error"].(map[string]any)
	if errMap["code"] != tools.ErrCodeInternal {
		t.Errorf("error code = %v", errMap["code"])
	}
}

func TestSend_ProviderError(t *testing.T) {
	wantErr := errors.New("upstream unavailable")
	provider := testutil.NewScriptedProvider().Fail(wantErr)
	orc := newOrchestrator(t, provider, &echoHandler{name: "view_order"})

	out, err := orc.Send(context.Background(), "hi", nil)
	if !errors.Is(err, wantErr) {
		t.Errorf("err = %v, want wrapped %v", err, wantErr)
	}
	if out != nil {
		t.Errorf("outcome = %+v, want nil", out)
	}
}

func TestSend_SecondCallErrorAborts(t *testing.T) {
	wantErr := errors.New("timeout")
	provider := testutil.NewScriptedProvider().
		Calls(llm.FunctionCall{Name: "view_order", Args: map[string]any{}}).
		Fail(wantErr)
	orc := newOrchestrator(t, provider, &echoHandler{name: "view_order", result: tools.Success("ok", nil)})

	out, err := orc.Send(context.Background(), "go", nil)
	if !errors.Is(err, wantErr) {
		t.Errorf("err = %v, want wrapped %v", err, wantErr)
	}
	if out != nil {
		t.Errorf("outcome = %+v, want nil", out)
	}
}
