package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/kibocha/orderdesk/internal/chat"
	"github.com/kibocha/orderdesk/internal/llm"
	"github.com/kibocha/orderdesk/internal/log"
)

// maxChatBody bounds the request body; histories round-trip through the
// client so they grow with the conversation.
const maxChatBody = 4 << 20

// Sender runs one chat round. Satisfied by *chat.Orchestrator.
type Sender interface {
	Send(ctx context.Context, message string, history []llm.Turn) (*chat.Outcome, error)
}

// chatHandler handles POST /chats/send.
type chatHandler struct {
	sender Sender
	logger log.Logger
}

// sendRequest is the chat request body. History is the turn list from the
// previous response; the client must send it back verbatim.
type sendRequest struct {
	Message string     `json:"message"`
	History []llm.Turn `json:"history"`
}

// sendResponse is the chat response body.
type sendResponse struct {
	Reply       string     `json:"reply"`
	ToolResults []llm.Part `json:"toolResults,omitempty"`
	History     []llm.Turn `json:"history"`
}

// send runs one chat round. When the round fails upstream the handler
// degrades instead of erroring opaquely: the client gets a 500 with an
// apology reply and its own history unchanged, so the conversation survives.
func (h *chatHandler) send(w http.ResponseWriter, r *http.Request) {
	var req sendRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxChatBody))
	if err := dec.Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, http.StatusRequestEntityTooLarge, "body_too_large", "request body too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_json", "request body must be valid JSON")
		return
	}
	if req.Message == "" {
		writeError(w, http.StatusUnprocessableEntity, "validation", "message is required")
		return
	}

	out, err := h.sender.Send(r.Context(), req.Message, req.History)
	if err != nil {
		h.logger.Error("chat round failed", "error", err)
		writeJSON(w, http.StatusInternalServerError, sendResponse{
			Reply:   "Sorry, I encountered an error: " + err.Error(),
			History: req.History,
		})
		return
	}

	writeJSON(w, http.StatusOK, sendResponse{
		Reply:       out.Reply,
		ToolResults: out.ToolResults,
		History:     out.History,
	})
}
