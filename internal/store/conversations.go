package store

import (
	"context"
	"fmt"
	"time"

	"github.com/corvidlabs/streamchat/internal/domain"
)

// ConversationRepo implements ports.ConversationRepository over the
// shared Store connection/transaction plumbing.
type ConversationRepo struct {
	*Store
}

func NewConversationRepo(s *Store) *ConversationRepo {
	return &ConversationRepo{Store: s}
}

// Create inserts a new conversation row.
func (s *ConversationRepo) Create(ctx context.Context, c *domain.Conversation) error {
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now

	query := `
		INSERT INTO conversations (id, owner_id, title, default_model_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err := s.conn(ctx).Exec(ctx, query,
		c.ID, c.OwnerID, c.Title, c.DefaultModelID, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("create conversation: %w", err)
	}
	return nil
}

// Get retrieves a conversation by ID, scoped to its owner so one
// user can never stream into or read another's conversation. A
// soft-deleted conversation is reported as not found: the core never
// resumes streaming into one.
func (s *ConversationRepo) Get(ctx context.Context, id, ownerID string) (*domain.Conversation, error) {
	query := `
		SELECT id, owner_id, title, default_model_id, created_at, updated_at
		FROM conversations
		WHERE id = $1 AND owner_id = $2 AND deleted_at IS NULL`

	conv := &domain.Conversation{}
	err := s.conn(ctx).QueryRow(ctx, query, id, ownerID).Scan(
		&conv.ID, &conv.OwnerID, &conv.Title, &conv.DefaultModelID, &conv.CreatedAt, &conv.UpdatedAt)
	if err != nil {
		return nil, wrapNotFound("get conversation", err, domain.NewError(domain.KindNotFound, domain.ErrConversationNotFound, "conversation not found"))
	}
	return conv, nil
}

// SoftDelete marks a conversation deleted without touching its
// messages; it is the only hard-to-undo mutation the core exposes,
// reserved for administrative callers rather than the streaming
// pipeline itself.
func (s *ConversationRepo) SoftDelete(ctx context.Context, id, ownerID string) error {
	query := `
		UPDATE conversations
		SET deleted_at = now(), updated_at = now()
		WHERE id = $1 AND owner_id = $2 AND deleted_at IS NULL`

	tag, err := s.conn(ctx).Exec(ctx, query, id, ownerID)
	if err != nil {
		return fmt.Errorf("soft delete conversation: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.NewError(domain.KindNotFound, domain.ErrConversationNotFound, "conversation not found")
	}
	return nil
}
