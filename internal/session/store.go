package session

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/firebase/genkit/go/ai"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/cartageio/cartage/internal/log"
)

// Querier defines the database operations Store depends on.
// Following Go best practices: interfaces are defined by the consumer,
// not the provider. Queries (queries.go) is the production implementation;
// tests supply mocks.
type Querier interface {
	UpsertConversation(ctx context.Context, id pgtype.UUID) (Conversation, error)
	GetConversation(ctx context.Context, id pgtype.UUID) (Conversation, error)
	ListConversations(ctx context.Context, limit, offset int32) ([]Conversation, error)
	DeleteConversation(ctx context.Context, id pgtype.UUID) error
	SetTitle(ctx context.Context, id pgtype.UUID, title string) error
	LockConversation(ctx context.Context, id pgtype.UUID) error
	MaxSequenceNumber(ctx context.Context, conversationID pgtype.UUID) (int32, error)
	InsertMessage(ctx context.Context, arg InsertMessageParams) error
	TouchConversation(ctx context.Context, id pgtype.UUID, messageCount int32) error
	GetMessages(ctx context.Context, conversationID pgtype.UUID, limit, offset int32) ([]StoredMessage, error)
	GetRecentMessages(ctx context.Context, conversationID pgtype.UUID, limit int32) ([]StoredMessage, error)
}

// DefaultHistoryLimit caps how many messages a turn loads as context.
const DefaultHistoryLimit int32 = 200

// Store manages conversation persistence with a PostgreSQL backend.
// It is the single source of truth for message ordering: appends run in a
// transaction that locks the conversation row, so two concurrent turns on
// the same conversation cannot interleave sequence numbers.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	querier Querier
	pool    *pgxpool.Pool // transaction support; nil in unit tests
	logger  log.Logger

	// txQuerier builds a Querier bound to a transaction.
	txQuerier func(tx pgx.Tx) Querier
}

// New creates a Store.
//
// querier is the production Queries or a test mock. pool may be nil in
// tests, in which case appends run non-transactionally. logger may be nil.
func New(querier Querier, pool *pgxpool.Pool, logger log.Logger) *Store {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{
		querier:   querier,
		pool:      pool,
		logger:    logger,
		txQuerier: func(tx pgx.Tx) Querier { return NewQueries(tx) },
	}
}

// GetOrCreate returns the conversation with the given id, creating an
// empty one when absent (upsert semantics, never a not-found error).
// A nil id creates a conversation with a fresh server-generated id.
func (s *Store) GetOrCreate(ctx context.Context, id uuid.UUID) (*Conversation, error) {
	if id == uuid.Nil {
		id = uuid.New()
	}

	conv, err := s.querier.UpsertConversation(ctx, uuidToPg(id))
	if err != nil {
		return nil, fmt.Errorf("upserting conversation %s: %w", id, err)
	}

	s.logger.Debug("conversation ready", "id", conv.ID, "messages", conv.MessageCount)
	return &conv, nil
}

// Get returns an existing conversation or ErrNotFound.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Conversation, error) {
	conv, err := s.querier.GetConversation(ctx, uuidToPg(id))
	if err != nil {
		return nil, fmt.Errorf("getting conversation %s: %w", id, err)
	}
	return &conv, nil
}

// List returns conversations ordered by last activity, newest first.
func (s *Store) List(ctx context.Context, limit, offset int32) ([]Conversation, error) {
	convs, err := s.querier.ListConversations(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("listing conversations: %w", err)
	}
	return convs, nil
}

// Delete removes a conversation and all its messages (CASCADE).
func (s *Store) Delete(ctx context.Context, id uuid.UUID) error {
	if err := s.querier.DeleteConversation(ctx, uuidToPg(id)); err != nil {
		return fmt.Errorf("deleting conversation %s: %w", id, err)
	}
	s.logger.Debug("deleted conversation", "id", id)
	return nil
}

// SetTitle updates a conversation title (best-effort turn titling).
func (s *Store) SetTitle(ctx context.Context, id uuid.UUID, title string) error {
	if err := s.querier.SetTitle(ctx, uuidToPg(id), title); err != nil {
		return fmt.Errorf("setting title for %s: %w", id, err)
	}
	return nil
}

// Messages retrieves stored messages in append order.
func (s *Store) Messages(ctx context.Context, id uuid.UUID, limit, offset int32) ([]*Message, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	stored, err := s.querier.GetMessages(ctx, uuidToPg(id), limit, offset)
	if err != nil {
		return nil, fmt.Errorf("getting messages for %s: %w", id, err)
	}
	return s.decodeStored(stored), nil
}

// HistoryMessages returns the conversation history as Genkit messages:
// the newest DefaultHistoryLimit entries, append order preserved. The
// window is taken from the tail so a conversation longer than the limit
// still reasons over its latest exchanges.
func (s *Store) HistoryMessages(ctx context.Context, id uuid.UUID) ([]*ai.Message, error) {
	stored, err := s.querier.GetRecentMessages(ctx, uuidToPg(id), DefaultHistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("getting recent messages for %s: %w", id, err)
	}
	return History(s.decodeStored(stored)), nil
}

// decodeStored converts raw rows, skipping malformed ones instead of
// failing the whole read.
func (s *Store) decodeStored(stored []StoredMessage) []*Message {
	messages := make([]*Message, 0, len(stored))
	for _, sm := range stored {
		msg, err := s.decodeMessage(sm)
		if err != nil {
			s.logger.Warn("skipping malformed message",
				"message_id", pgToUUID(sm.ID), "error", err)
			continue
		}
		messages = append(messages, msg)
	}
	return messages
}

// AppendMessages appends messages atomically with automatically assigned
// sequence numbers.
//
// The transaction locks the conversation row (SELECT ... FOR UPDATE)
// before reading the max sequence number, which serializes concurrent
// appends to one conversation while leaving other conversations untouched.
func (s *Store) AppendMessages(ctx context.Context, id uuid.UUID, messages []*ai.Message) error {
	if len(messages) == 0 {
		return nil
	}

	// Nil pool means unit test with a mock querier; run without a transaction.
	if s.pool == nil {
		return s.appendWith(ctx, s.querier, id, messages)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer func() {
		if rbErr := tx.Rollback(ctx); rbErr != nil {
			s.logger.Debug("transaction rollback (may be already committed)", "error", rbErr)
		}
	}()

	q := s.txQuerier(tx)
	if err := q.LockConversation(ctx, uuidToPg(id)); err != nil {
		return fmt.Errorf("locking conversation %s: %w", id, err)
	}
	if err := s.appendWith(ctx, q, id, messages); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing append: %w", err)
	}

	s.logger.Debug("appended messages", "conversation_id", id, "count", len(messages))
	return nil
}

// appendWith inserts the messages through q, assigning sequence numbers
// after the current maximum and touching the conversation row.
func (s *Store) appendWith(ctx context.Context, q Querier, id uuid.UUID, messages []*ai.Message) error {
	pgID := uuidToPg(id)

	maxSeq, err := q.MaxSequenceNumber(ctx, pgID)
	if err != nil {
		return fmt.Errorf("reading max sequence number: %w", err)
	}

	for i, msg := range messages {
		for j, part := range msg.Content {
			if part == nil {
				return fmt.Errorf("message %d part %d: %w", i, j, ErrNilContent)
			}
		}

		contentJSON, err := json.Marshal(msg.Content)
		if err != nil {
			return fmt.Errorf("marshaling message %d content: %w", i, err)
		}

		seq := maxSeq + int32(i) + 1 // #nosec G115 -- i bounded by slice length
		if err := q.InsertMessage(ctx, InsertMessageParams{
			ConversationID: pgID,
			Role:           string(msg.Role),
			Content:        contentJSON,
			SequenceNumber: seq,
		}); err != nil {
			return fmt.Errorf("inserting message %d: %w", i, err)
		}
	}

	newCount := maxSeq + int32(len(messages)) // #nosec G115 -- bounded by practical message limits
	if err := q.TouchConversation(ctx, pgID, newCount); err != nil {
		return fmt.Errorf("updating conversation metadata: %w", err)
	}

	return nil
}

// decodeMessage converts a stored row to the application type.
func (s *Store) decodeMessage(sm StoredMessage) (*Message, error) {
	var content []*ai.Part
	if err := json.Unmarshal(sm.Content, &content); err != nil {
		return nil, fmt.Errorf("unmarshaling content: %w", err)
	}

	return &Message{
		ID:             pgToUUID(sm.ID),
		ConversationID: pgToUUID(sm.ConversationID),
		Role:           sm.Role,
		Content:        content,
		SequenceNumber: int(sm.SequenceNumber),
		CreatedAt:      sm.CreatedAt,
	}, nil
}
