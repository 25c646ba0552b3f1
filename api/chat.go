package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"

	"github.com/cartageio/cartage/internal/log"
	"github.com/cartageio/cartage/internal/orchestrator"
)

// MaxMessageLength bounds the request message body.
const MaxMessageLength = 32000

// TurnRunner runs one conversational turn. *orchestrator.Orchestrator
// satisfies it.
type TurnRunner interface {
	HandleTurn(ctx context.Context, conversationID uuid.UUID, input string) (*orchestrator.Response, error)
	HandleTurnStream(ctx context.Context, conversationID uuid.UUID, input string, callback orchestrator.StreamCallback) (*orchestrator.Response, error)
}

// ChatHandler serves the turn endpoints.
//
// POST /api/chat        runs a turn and returns the final answer as JSON.
// POST /api/chat/stream runs a turn and streams chunks as SSE.
type ChatHandler struct {
	turns  TurnRunner
	logger log.Logger
}

// NewChatHandler creates a chat handler.
func NewChatHandler(turns TurnRunner, logger log.Logger) *ChatHandler {
	return &ChatHandler{turns: turns, logger: logger}
}

// RegisterRoutes registers chat routes on mux.
func (h *ChatHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/chat", h.handleChat)
	mux.HandleFunc("POST /api/chat/stream", h.handleStream)
}

// ChatRequest is the request body for both chat endpoints.
// ConversationID is optional; when absent a new conversation starts.
type ChatRequest struct {
	ConversationID string `json:"conversation_id"`
	Message        string `json:"message"`
}

// ChatResponse is the non-streaming response body.
type ChatResponse struct {
	ConversationID uuid.UUID `json:"conversation_id"`
	Response       string    `json:"response"`
	Iterations     int       `json:"iterations"`
	ToolCalls      int       `json:"tool_calls"`
	Retrieved      int       `json:"retrieved"`
}

// parseChatRequest decodes and validates the body, resolving the
// conversation id. Returns false after writing the error response.
func (h *ChatHandler) parseChatRequest(w http.ResponseWriter, r *http.Request) (ChatRequest, uuid.UUID, bool) {
	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "invalid_request", "invalid request body")
		return req, uuid.Nil, false
	}
	if req.Message == "" {
		writeError(w, h.logger, http.StatusBadRequest, "missing_message", "message is required")
		return req, uuid.Nil, false
	}
	if len(req.Message) > MaxMessageLength {
		writeError(w, h.logger, http.StatusBadRequest, "message_too_long",
			fmt.Sprintf("message exceeds %d bytes", MaxMessageLength))
		return req, uuid.Nil, false
	}

	id := uuid.New()
	if req.ConversationID != "" {
		parsed, err := uuid.Parse(req.ConversationID)
		if err != nil {
			writeError(w, h.logger, http.StatusBadRequest, "invalid_conversation_id", "conversation_id must be a UUID")
			return req, uuid.Nil, false
		}
		id = parsed
	}
	return req, id, true
}

// handleChat runs a full turn and returns the final answer.
func (h *ChatHandler) handleChat(w http.ResponseWriter, r *http.Request) {
	req, id, ok := h.parseChatRequest(w, r)
	if !ok {
		return
	}

	resp, err := h.turns.HandleTurn(r.Context(), id, req.Message)
	if err != nil {
		h.writeTurnError(w, err, id)
		return
	}

	writeJSON(w, h.logger, http.StatusOK, ChatResponse{
		ConversationID: resp.ConversationID,
		Response:       resp.FinalText,
		Iterations:     resp.Iterations,
		ToolCalls:      resp.ToolCalls,
		Retrieved:      resp.Retrieved,
	})
}

// writeTurnError maps orchestrator errors to HTTP statuses.
func (h *ChatHandler) writeTurnError(w http.ResponseWriter, err error, id uuid.UUID) {
	switch {
	case errors.Is(err, orchestrator.ErrEmptyInput):
		writeError(w, h.logger, http.StatusBadRequest, "empty_input", "message must not be blank")
	case errors.Is(err, orchestrator.ErrTurnBudgetExceeded):
		h.logger.Warn("turn budget exceeded", "conversation_id", id)
		writeError(w, h.logger, http.StatusGatewayTimeout, "turn_timeout", "the turn did not finish in time")
	case errors.Is(err, orchestrator.ErrToolIterationsExceeded):
		h.logger.Warn("tool iteration limit reached", "conversation_id", id)
		writeError(w, h.logger, http.StatusBadGateway, "tool_loop", "the model could not settle on an answer")
	case errors.Is(err, orchestrator.ErrModelUnavailable), errors.Is(err, orchestrator.ErrCircuitOpen):
		h.logger.Error("model unavailable", "error", err, "conversation_id", id)
		writeError(w, h.logger, http.StatusServiceUnavailable, "model_unavailable", "the model is temporarily unavailable")
	default:
		h.logger.Error("turn failed", "error", err, "conversation_id", id)
		writeError(w, h.logger, http.StatusInternalServerError, "turn_failed", "failed to process the message")
	}
}

// SSEEvent names used on the stream: chunk, done, error.
type (
	// SSEChunkData is the payload of a chunk event.
	SSEChunkData struct {
		Text string `json:"text"`
	}

	// SSEDoneData is the payload of the final done event.
	SSEDoneData struct {
		ConversationID uuid.UUID `json:"conversation_id"`
		Response       string    `json:"response"`
		Iterations     int       `json:"iterations"`
		ToolCalls      int       `json:"tool_calls"`
	}

	// SSEErrorData is the payload of an error event.
	SSEErrorData struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
)

// handleStream runs a turn and streams model output as Server-Sent
// Events. Tool-dispatch iterations produce no chunks; clients see text
// only from the reasoning calls.
func (h *ChatHandler) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	req, id, ok := h.parseChatRequest(w, r)
	if !ok {
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	ctx := r.Context()
	h.logger.Info("SSE stream started", "conversation_id", id)

	callback := func(cctx context.Context, chunk *ai.ModelResponseChunk) error {
		if err := cctx.Err(); err != nil {
			return err
		}
		if text := chunk.Text(); text != "" {
			h.writeSSE(w, flusher, "chunk", SSEChunkData{Text: text})
		}
		return nil
	}

	resp, err := h.turns.HandleTurnStream(ctx, id, req.Message, callback)
	if err != nil {
		if ctx.Err() != nil {
			h.logger.Info("client disconnected", "conversation_id", id)
			return
		}
		h.writeSSE(w, flusher, "error", SSEErrorData{Code: turnErrorCode(err), Message: err.Error()})
		return
	}

	h.writeSSE(w, flusher, "done", SSEDoneData{
		ConversationID: resp.ConversationID,
		Response:       resp.FinalText,
		Iterations:     resp.Iterations,
		ToolCalls:      resp.ToolCalls,
	})
	h.logger.Info("SSE stream completed",
		"conversation_id", id,
		"iterations", resp.Iterations,
		"response_len", len(resp.FinalText))
}

// writeSSE writes one event and flushes it to the client.
func (h *ChatHandler) writeSSE(w http.ResponseWriter, flusher http.Flusher, event string, data any) {
	payload, err := json.Marshal(data)
	if err != nil {
		h.logger.Error("encoding SSE payload", "error", err, "event", event)
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, payload)
	flusher.Flush()
}

func turnErrorCode(err error) string {
	switch {
	case errors.Is(err, orchestrator.ErrEmptyInput):
		return "empty_input"
	case errors.Is(err, orchestrator.ErrTurnBudgetExceeded):
		return "turn_timeout"
	case errors.Is(err, orchestrator.ErrToolIterationsExceeded):
		return "tool_loop"
	case errors.Is(err, orchestrator.ErrModelUnavailable), errors.Is(err, orchestrator.ErrCircuitOpen):
		return "model_unavailable"
	default:
		return "turn_failed"
	}
}
