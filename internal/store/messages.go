package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/corvidlabs/streamchat/internal/domain"
)

var terminalStatuses = []domain.MessageStatus{
	domain.MessageCompleted, domain.MessageAborted, domain.MessageFailed,
}

// MessageRepo implements ports.MessageRepository over the shared Store
// connection/transaction plumbing.
type MessageRepo struct {
	*Store
}

func NewMessageRepo(s *Store) *MessageRepo {
	return &MessageRepo{Store: s}
}

// Create inserts a new message row. previous_id is nullable: the first
// user turn of a conversation has none.
func (s *MessageRepo) Create(ctx context.Context, m *domain.Message) error {
	now := time.Now().UTC()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now
	}
	m.UpdatedAt = now

	var previousID any
	if m.PreviousID != "" {
		previousID = m.PreviousID
	}

	query := `
		INSERT INTO messages (id, conversation_id, previous_id, role, content, status, provider, model, error, created_at, updated_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			content = EXCLUDED.content,
			status = EXCLUDED.status,
			error = EXCLUDED.error,
			updated_at = EXCLUDED.updated_at,
			finished_at = EXCLUDED.finished_at`

	_, err := s.conn(ctx).Exec(ctx, query,
		m.ID, m.ConversationID, previousID, m.Role, m.Content, m.Status,
		m.Provider, m.Model, m.Error, m.CreatedAt, m.UpdatedAt, m.FinishedAt)
	if err != nil {
		return fmt.Errorf("create message: %w", err)
	}
	return nil
}

// Update persists the (possibly still-accumulating) content and status
// of an in-flight or just-finished message. It is called repeatedly by
// the Producer as a message transitions Started -> Streaming ->
// terminal, always carrying the latest accumulated content even when
// the terminal status is Aborted or Failed. FinishedAt travels with m
// and is expected to be nil until the Producer sets it on the same
// call that makes Status terminal.
func (s *MessageRepo) Update(ctx context.Context, m *domain.Message) error {
	m.UpdatedAt = time.Now().UTC()
	query := `
		UPDATE messages
		SET content = $2, status = $3, error = $4, updated_at = $5, finished_at = $6
		WHERE id = $1`

	_, err := s.conn(ctx).Exec(ctx, query, m.ID, m.Content, m.Status, m.Error, m.UpdatedAt, m.FinishedAt)
	if err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	return nil
}

func (s *MessageRepo) Get(ctx context.Context, id string) (*domain.Message, error) {
	query := `
		SELECT id, conversation_id, COALESCE(previous_id, ''), role, content, status, provider, model, error, created_at, updated_at, finished_at
		FROM messages
		WHERE id = $1`

	m := &domain.Message{}
	err := s.conn(ctx).QueryRow(ctx, query, id).Scan(
		&m.ID, &m.ConversationID, &m.PreviousID, &m.Role, &m.Content, &m.Status,
		&m.Provider, &m.Model, &m.Error, &m.CreatedAt, &m.UpdatedAt, &m.FinishedAt)
	if err != nil {
		return nil, wrapNotFound("get message", err, domain.NewError(domain.KindNotFound, domain.ErrMessageNotFound, "message not found"))
	}
	return m, nil
}

// ListPage returns a cursor-paginated slice of a conversation's
// terminal messages only (§4.9: "pageOlder/pageNewer... return only
// terminal messages"); the currently-streaming message, if any, is
// served separately via StreamingMessage. The cursor is an opaque
// message ID and pages are ordered by finished_at with id as a
// tiebreaker, so the boundary message's finished_at can double as the
// sync cursor getMessages hands back to the client.
func (s *MessageRepo) ListPage(ctx context.Context, conversationID, cursor string, limit int, newestFirst bool) ([]*domain.Message, string, error) {
	if limit <= 0 {
		limit = 50
	}

	order := "ASC"
	cmp := ">"
	if newestFirst {
		order = "DESC"
		cmp = "<"
	}

	args := []any{conversationID, terminalStatuses[0], terminalStatuses[1], terminalStatuses[2]}
	where := "conversation_id = $1 AND status IN ($2, $3, $4)"
	if cursor != "" {
		cursorRow, err := s.Get(ctx, cursor)
		if err != nil {
			return nil, "", err
		}
		if cursorRow.FinishedAt == nil {
			return nil, "", domain.NewError(domain.KindInvalidInput, domain.ErrInvalidInput, "cursor message is not terminal")
		}
		args = append(args, *cursorRow.FinishedAt, cursorRow.ID)
		where += fmt.Sprintf(" AND (finished_at, id) %s ($%d, $%d)", cmp, len(args)-1, len(args))
	}
	args = append(args, limit+1)

	query := fmt.Sprintf(`
		SELECT id, conversation_id, COALESCE(previous_id, ''), role, content, status, provider, model, error, created_at, updated_at, finished_at
		FROM messages
		WHERE %s
		ORDER BY finished_at %s, id %s
		LIMIT $%d`, where, order, order, len(args))

	rows, err := s.conn(ctx).Query(ctx, query, args...)
	if err != nil {
		return nil, "", fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, "", err
	}

	var nextCursor string
	if len(msgs) > limit {
		nextCursor = msgs[limit-1].ID
		msgs = msgs[:limit]
	}
	return msgs, nextCursor, nil
}

// StreamingMessage returns the conversation's currently non-terminal
// message, if any, enforcing the one-stream-per-conversation rule
// Producer.Start depends on.
func (s *MessageRepo) StreamingMessage(ctx context.Context, conversationID string) (*domain.Message, error) {
	query := `
		SELECT id, conversation_id, COALESCE(previous_id, ''), role, content, status, provider, model, error, created_at, updated_at, finished_at
		FROM messages
		WHERE conversation_id = $1
		  AND status NOT IN ($2, $3, $4)
		ORDER BY created_at DESC
		LIMIT 1`

	m := &domain.Message{}
	err := s.conn(ctx).QueryRow(ctx, query, conversationID,
		terminalStatuses[0], terminalStatuses[1], terminalStatuses[2]).Scan(
		&m.ID, &m.ConversationID, &m.PreviousID, &m.Role, &m.Content, &m.Status,
		&m.Provider, &m.Model, &m.Error, &m.CreatedAt, &m.UpdatedAt, &m.FinishedAt)
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("streaming message: %w", err)
	}
	return m, nil
}

func scanMessages(rows pgx.Rows) ([]*domain.Message, error) {
	var msgs []*domain.Message
	for rows.Next() {
		m := &domain.Message{}
		if err := rows.Scan(
			&m.ID, &m.ConversationID, &m.PreviousID, &m.Role, &m.Content, &m.Status,
			&m.Provider, &m.Model, &m.Error, &m.CreatedAt, &m.UpdatedAt, &m.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
