package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"

	"github.com/cartageio/cartage/internal/log"
	"github.com/cartageio/cartage/internal/session"
)

// Pagination bounds for list endpoints.
const (
	DefaultListLimit = 50
	MaxListLimit     = 500
	MaxListOffset    = 100000
)

// ConversationStore is the persistence surface the conversation
// endpoints need. *session.Store satisfies it.
type ConversationStore interface {
	GetOrCreate(ctx context.Context, id uuid.UUID) (*session.Conversation, error)
	List(ctx context.Context, limit, offset int32) ([]session.Conversation, error)
	Messages(ctx context.Context, id uuid.UUID, limit, offset int32) ([]*session.Message, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

// ConversationHandler serves conversation CRUD endpoints.
type ConversationHandler struct {
	store  ConversationStore
	logger log.Logger
}

// NewConversationHandler creates a conversation handler.
func NewConversationHandler(store ConversationStore, logger log.Logger) *ConversationHandler {
	return &ConversationHandler{store: store, logger: logger}
}

// RegisterRoutes registers conversation routes on mux.
func (h *ConversationHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/conversations", h.list)
	mux.HandleFunc("POST /api/conversations", h.create)
	mux.HandleFunc("GET /api/conversations/{id}/messages", h.messages)
	mux.HandleFunc("DELETE /api/conversations/{id}", h.delete)
}

// list returns conversations newest first.
// Query parameters: limit (default 50, max 500) and offset.
func (h *ConversationHandler) list(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r, "limit", DefaultListLimit, 1, MaxListLimit)
	offset := parseIntParam(r, "offset", 0, 0, MaxListOffset)

	// #nosec G115 -- limit and offset are bounded by MaxListLimit and MaxListOffset
	conversations, err := h.store.List(r.Context(), int32(limit), int32(offset))
	if err != nil {
		h.logger.Error("listing conversations", "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "list_failed", "failed to list conversations")
		return
	}

	writeJSON(w, h.logger, http.StatusOK, map[string]any{
		"conversations": conversations,
		"total":         len(conversations),
		"limit":         limit,
		"offset":        offset,
	})
}

// create allocates a new conversation and returns it. The id is
// server-generated; clients that want to pin ids can pass one to
// /api/chat instead.
func (h *ConversationHandler) create(w http.ResponseWriter, r *http.Request) {
	conv, err := h.store.GetOrCreate(r.Context(), uuid.New())
	if err != nil {
		h.logger.Error("creating conversation", "error", err)
		writeError(w, h.logger, http.StatusInternalServerError, "create_failed", "failed to create conversation")
		return
	}
	writeJSON(w, h.logger, http.StatusCreated, conv)
}

// messages returns the transcript for one conversation in append order.
func (h *ConversationHandler) messages(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, h.logger)
	if !ok {
		return
	}
	limit := parseIntParam(r, "limit", DefaultListLimit, 1, MaxListLimit)
	offset := parseIntParam(r, "offset", 0, 0, MaxListOffset)

	// #nosec G115 -- bounded by parseIntParam
	msgs, err := h.store.Messages(r.Context(), id, int32(limit), int32(offset))
	if err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, h.logger, http.StatusNotFound, "not_found", "conversation not found")
			return
		}
		h.logger.Error("listing messages", "error", err, "conversation_id", id)
		writeError(w, h.logger, http.StatusInternalServerError, "list_failed", "failed to list messages")
		return
	}

	writeJSON(w, h.logger, http.StatusOK, map[string]any{
		"conversation_id": id,
		"messages":        msgs,
		"total":           len(msgs),
		"limit":           limit,
		"offset":          offset,
	})
}

// delete removes a conversation and its messages.
func (h *ConversationHandler) delete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, r, h.logger)
	if !ok {
		return
	}
	if err := h.store.Delete(r.Context(), id); err != nil {
		if errors.Is(err, session.ErrNotFound) {
			writeError(w, h.logger, http.StatusNotFound, "not_found", "conversation not found")
			return
		}
		h.logger.Error("deleting conversation", "error", err, "conversation_id", id)
		writeError(w, h.logger, http.StatusInternalServerError, "delete_failed", "failed to delete conversation")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// pathUUID parses the {id} path segment, writing a 400 on failure.
func pathUUID(w http.ResponseWriter, r *http.Request, logger log.Logger) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		writeError(w, logger, http.StatusBadRequest, "invalid_id", "id must be a UUID")
		return uuid.Nil, false
	}
	return id, true
}

// parseIntParam parses an integer query parameter with bounds checking.
func parseIntParam(r *http.Request, name string, defaultVal, min, max int) int {
	str := r.URL.Query().Get(name)
	if str == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(str)
	if err != nil {
		return defaultVal
	}
	if val < min {
		return min
	}
	if val > max {
		return max
	}
	return val
}
