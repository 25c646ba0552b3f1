package session

// queries.go holds the hand-written SQL layer. Queries is bound to a DBTX
// (pool or transaction) and returns storage-level records; Store in
// store.go converts them to application types.

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

// DBTX is the subset of pgx operations Queries needs.
// Satisfied by *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// StoredMessage is a raw message row; Content is the undecoded JSONB payload.
type StoredMessage struct {
	ID             pgtype.UUID
	ConversationID pgtype.UUID
	Role           string
	Content        json.RawMessage
	SequenceNumber int32
	CreatedAt      time.Time
}

// InsertMessageParams carries one message insert.
type InsertMessageParams struct {
	ConversationID pgtype.UUID
	Role           string
	Content        json.RawMessage
	SequenceNumber int32
}

// Queries executes SQL against a DBTX.
type Queries struct {
	db DBTX
}

// NewQueries binds Queries to a pool or transaction.
func NewQueries(db DBTX) *Queries {
	return &Queries{db: db}
}

const upsertConversationSQL = `
INSERT INTO conversations (id)
VALUES ($1)
ON CONFLICT (id) DO UPDATE SET id = EXCLUDED.id
RETURNING id, title, message_count, created_at, updated_at`

// UpsertConversation returns the conversation with the given id, creating
// an empty one when absent.
func (q *Queries) UpsertConversation(ctx context.Context, id pgtype.UUID) (Conversation, error) {
	return q.scanConversation(q.db.QueryRow(ctx, upsertConversationSQL, id))
}

const getConversationSQL = `
SELECT id, title, message_count, created_at, updated_at
FROM conversations
WHERE id = $1`

// GetConversation fetches one conversation. Returns ErrNotFound when absent.
func (q *Queries) GetConversation(ctx context.Context, id pgtype.UUID) (Conversation, error) {
	c, err := q.scanConversation(q.db.QueryRow(ctx, getConversationSQL, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Conversation{}, ErrNotFound
	}
	return c, err
}

const listConversationsSQL = `
SELECT id, title, message_count, created_at, updated_at
FROM conversations
ORDER BY updated_at DESC
LIMIT $1 OFFSET $2`

// ListConversations lists conversations, most recently active first.
func (q *Queries) ListConversations(ctx context.Context, limit, offset int32) ([]Conversation, error) {
	rows, err := q.db.Query(ctx, listConversationsSQL, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Conversation
	for rows.Next() {
		var c Conversation
		var title *string
		if err := rows.Scan(&c.ID, &title, &c.MessageCount, &c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, err
		}
		if title != nil {
			c.Title = *title
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

const deleteConversationSQL = `DELETE FROM conversations WHERE id = $1`

// DeleteConversation removes a conversation and, via CASCADE, its messages.
func (q *Queries) DeleteConversation(ctx context.Context, id pgtype.UUID) error {
	tag, err := q.db.Exec(ctx, deleteConversationSQL, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

const setTitleSQL = `UPDATE conversations SET title = $2, updated_at = now() WHERE id = $1`

// SetTitle updates a conversation title.
func (q *Queries) SetTitle(ctx context.Context, id pgtype.UUID, title string) error {
	_, err := q.db.Exec(ctx, setTitleSQL, id, title)
	return err
}

const lockConversationSQL = `SELECT id FROM conversations WHERE id = $1 FOR UPDATE`

// LockConversation takes the row lock serializing concurrent appends.
// Must run inside a transaction.
func (q *Queries) LockConversation(ctx context.Context, id pgtype.UUID) error {
	var locked pgtype.UUID
	if err := q.db.QueryRow(ctx, lockConversationSQL, id).Scan(&locked); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return err
	}
	return nil
}

const maxSequenceNumberSQL = `
SELECT COALESCE(MAX(sequence_number), 0)
FROM conversation_messages
WHERE conversation_id = $1`

// MaxSequenceNumber returns the highest sequence number in a conversation,
// or 0 when it has no messages.
func (q *Queries) MaxSequenceNumber(ctx context.Context, conversationID pgtype.UUID) (int32, error) {
	var maxSeq int32
	err := q.db.QueryRow(ctx, maxSequenceNumberSQL, conversationID).Scan(&maxSeq)
	return maxSeq, err
}

const insertMessageSQL = `
INSERT INTO conversation_messages (conversation_id, role, content, sequence_number)
VALUES ($1, $2, $3, $4)`

// InsertMessage appends one message row.
func (q *Queries) InsertMessage(ctx context.Context, arg InsertMessageParams) error {
	_, err := q.db.Exec(ctx, insertMessageSQL,
		arg.ConversationID, arg.Role, arg.Content, arg.SequenceNumber)
	return err
}

const touchConversationSQL = `
UPDATE conversations SET message_count = $2, updated_at = now() WHERE id = $1`

// TouchConversation records a new message count and bumps updated_at.
func (q *Queries) TouchConversation(ctx context.Context, id pgtype.UUID, messageCount int32) error {
	_, err := q.db.Exec(ctx, touchConversationSQL, id, messageCount)
	return err
}

const getMessagesSQL = `
SELECT id, conversation_id, role, content, sequence_number, created_at
FROM conversation_messages
WHERE conversation_id = $1
ORDER BY sequence_number ASC
LIMIT $2 OFFSET $3`

// GetMessages returns messages in sequence order.
func (q *Queries) GetMessages(ctx context.Context, conversationID pgtype.UUID, limit, offset int32) ([]StoredMessage, error) {
	rows, err := q.db.Query(ctx, getMessagesSQL, conversationID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StoredMessage
	for rows.Next() {
		var m StoredMessage
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.SequenceNumber, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

const getRecentMessagesSQL = `
SELECT id, conversation_id, role, content, sequence_number, created_at
FROM (
	SELECT id, conversation_id, role, content, sequence_number, created_at
	FROM conversation_messages
	WHERE conversation_id = $1
	ORDER BY sequence_number DESC
	LIMIT $2
) recent
ORDER BY sequence_number ASC`

// GetRecentMessages returns the newest limit messages, reordered into
// append order. The inner DESC/LIMIT picks the window from the tail so
// a long conversation keeps its latest exchanges, not its oldest.
func (q *Queries) GetRecentMessages(ctx context.Context, conversationID pgtype.UUID, limit int32) ([]StoredMessage, error) {
	rows, err := q.db.Query(ctx, getRecentMessagesSQL, conversationID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []StoredMessage
	for rows.Next() {
		var m StoredMessage
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &m.SequenceNumber, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// scanConversation scans a single conversation row with a nullable title.
func (q *Queries) scanConversation(row pgx.Row) (Conversation, error) {
	var c Conversation
	var title *string
	if err := row.Scan(&c.ID, &title, &c.MessageCount, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return Conversation{}, err
	}
	if title != nil {
		c.Title = *title
	}
	return c, nil
}

// uuidToPg converts uuid.UUID to pgtype.UUID.
func uuidToPg(id uuid.UUID) pgtype.UUID {
	return pgtype.UUID{Bytes: id, Valid: true}
}

// pgToUUID converts pgtype.UUID to uuid.UUID.
func pgToUUID(id pgtype.UUID) uuid.UUID {
	if !id.Valid {
		return uuid.Nil
	}
	return id.Bytes
}

// compile-time interface check lives here to keep store.go focused.
var _ Querier = (*Queries)(nil)
