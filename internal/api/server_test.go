package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/goleak"

	"github.com/kibocha/orderdesk/internal/chat"
	"github.com/kibocha/orderdesk/internal/llm"
	"github.com/kibocha/orderdesk/internal/log"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeSender returns a fixed outcome or error.
type fakeSender struct {
	out     *chat.Outcome
	err     error
	message string
	history []llm.Turn
}

func (f *fakeSender) Send(_ context.Context, message string, history []llm.Turn) (*chat.Outcome, error) {
	f.message = message
	f.history = history
	if f.err != nil {
		return nil, f.err
	}
	return f.out, nil
}

func newTestServer(t *testing.T, sender Sender) http.Handler {
	t.Helper()
	srv, err := NewServer(sender, nil, log.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	return srv.Handler()
}

func TestHealth(t *testing.T) {
	handler := newTestServer(t, &fakeSender{out: &chat.Outcome{}})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "ok" {
		t.Errorf("body = %v", body)
	}
}

func TestReadiness(t *testing.T) {
	t.Run("no check configured", func(t *testing.T) {
		handler := newTestServer(t, &fakeSender{out: &chat.Outcome{}})
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
		if rec.Code != http.StatusOK {
			t.Errorf("status = %d, want 200", rec.Code)
		}
	})

	t.Run("storage unreachable", func(t *testing.T) {
		srv, err := NewServer(&fakeSender{out: &chat.Outcome{}}, func(context.Context) error {
			return errors.New("connection refused")
		}, log.NewNop())
		if err != nil {
			t.Fatal(err)
		}
		rec := httptest.NewRecorder()
		srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
		if rec.Code != http.StatusServiceUnavailable {
			t.Errorf("status = %d, want 503", rec.Code)
		}
	})
}

func TestChatSend(t *testing.T) {
	sender := &fakeSender{out: &chat.Outcome{
		Reply: "Order ACME-001 is pending.",
		History: []llm.Turn{
			{Role: llm.RoleUser, Parts: []llm.Part{llm.TextPart("show ACME-001")}},
			{Role: llm.RoleModel, Parts: []llm.Part{llm.TextPart("Order ACME-001 is pending.")}},
		},
	}}
	handler := newTestServer(t, sender)

	req := httptest.NewRequest(http.MethodPost, "/chats/send",
		strings.NewReader(`{"message":"show ACME-001","history":[]}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	if sender.message != "show ACME-001" {
		t.Errorf("sender got message %q", sender.message)
	}

	var resp sendResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Reply != "Order ACME-001 is pending." {
		t.Errorf("reply = %q", resp.Reply)
	}
	if len(resp.History) != 2 {
		t.Errorf("history length = %d, want 2", len(resp.History))
	}
	if rec.Header().Get(requestIDHeader) == "" {
		t.Error("missing request ID header")
	}
}

func TestChatSend_HistoryRoundTrip(t *testing.T) {
	sender := &fakeSender{out: &chat.Outcome{Reply: "ok"}}
	handler := newTestServer(t, sender)

	body := `{"message":"next","history":[
		{"role":"user","parts":[{"text":"earlier"}]},
		{"role":"model","parts":[{"functionCall":{"name":"view_order","args":{"order_no":"ACME-001"}}}]},
		{"role":"function","parts":[{"functionResponse":{"name":"view_order","response":{"status":"success"}}}]}
	]}`
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/chats/send", strings.NewReader(body)))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body)
	}
	if len(sender.history) != 3 {
		t.Fatalf("sender got %d turns, want 3", len(sender.history))
	}
	call := sender.history[1].Parts[0].FunctionCall
	if call == nil || call.Name != "view_order" || call.Args["order_no"] != "ACME-001" {
		t.Errorf("function call turn = %+v", sender.history[1])
	}
	if sender.history[2].Parts[0].FunctionResponse == nil {
		t.Errorf("function response turn = %+v", sender.history[2])
	}
}

func TestChatSend_DegradedOnUpstreamError(t *testing.T) {
	sender := &fakeSender{err: errors.New("model unavailable")}
	handler := newTestServer(t, sender)

	body := `{"message":"hi","history":[{"role":"user","parts":[{"text":"earlier"}]}]}`
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/chats/send", strings.NewReader(body)))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rec.Code)
	}
	var resp sendResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if !strings.HasPrefix(resp.Reply, "Sorry, I encountered an error: ") {
		t.Errorf("reply = %q", resp.Reply)
	}
	// The client keeps its conversation: history comes back unchanged.
	if len(resp.History) != 1 || resp.History[0].Parts[0].Text != "earlier" {
		t.Errorf("history = %+v", resp.History)
	}
}

func TestChatSend_Validation(t *testing.T) {
	handler := newTestServer(t, &fakeSender{out: &chat.Outcome{}})

	tests := []struct {
		name string
		body string
		want int
	}{
		{"empty message", `{"message":"","history":[]}`, http.StatusUnprocessableEntity},
		{"missing message", `{"history":[]}`, http.StatusUnprocessableEntity},
		{"malformed json", `{"message":`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/chats/send", strings.NewReader(tt.body)))
			if rec.Code != tt.want {
				t.Errorf("status = %d, want %d", rec.Code, tt.want)
			}
		})
	}
}

func TestChatSend_MethodNotAllowed(t *testing.T) {
	handler := newTestServer(t, &fakeSender{out: &chat.Outcome{}})

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/chats/send", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("status = %d, want 405", rec.Code)
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	panicky := http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	})
	handler := chain(panicky, recoveryMiddleware(log.NewNop()))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", rec.Code)
	}
}
