package store

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/corvidlabs/streamchat/internal/domain"
	"github.com/corvidlabs/streamchat/internal/idgen"
)

var (
	testConvs *ConversationRepo
	testMsgs  *MessageRepo
	testIDs   = idgen.New()
)

func TestMain(m *testing.M) {
	ctx := context.Background()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		dbURL = "postgres://postgres@localhost:5556/streamchat_test?sslmode=disable"
	}

	pool, err := pgxpool.New(ctx, dbURL)
	if err != nil {
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	if err := pool.Ping(ctx); err != nil {
		panic("failed to ping database: " + err.Error())
	}

	s := New(pool)
	testConvs = NewConversationRepo(s)
	testMsgs = NewMessageRepo(s)

	os.Exit(m.Run())
}

func TestConversationLifecycle(t *testing.T) {
	ctx := context.Background()
	ownerID := "owner-" + testIDs.NewConversationID()

	conv := &domain.Conversation{
		ID:             testIDs.NewConversationID(),
		OwnerID:        ownerID,
		Title:          "first conversation",
		DefaultModelID: "gpt-4o-mini",
	}
	if err := testConvs.Create(ctx, conv); err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := testConvs.Get(ctx, conv.ID, ownerID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Title != conv.Title {
		t.Errorf("Title mismatch: got %q, want %q", got.Title, conv.Title)
	}

	if _, err := testConvs.Get(ctx, conv.ID, "someone-else"); domain.KindOf(err) != domain.KindNotFound {
		t.Errorf("expected KindNotFound scoping to a different owner, got %v", err)
	}

	if err := testConvs.SoftDelete(ctx, conv.ID, ownerID); err != nil {
		t.Fatalf("SoftDelete: %v", err)
	}
	if _, err := testConvs.Get(ctx, conv.ID, ownerID); domain.KindOf(err) != domain.KindNotFound {
		t.Errorf("expected KindNotFound after soft delete, got %v", err)
	}
	if err := testConvs.SoftDelete(ctx, conv.ID, ownerID); domain.KindOf(err) != domain.KindNotFound {
		t.Errorf("expected a repeat SoftDelete to report KindNotFound, got %v", err)
	}
}

func TestMessageLifecycleAndPagination(t *testing.T) {
	ctx := context.Background()
	ownerID := "owner-" + testIDs.NewConversationID()

	conv := &domain.Conversation{ID: testIDs.NewConversationID(), OwnerID: ownerID, DefaultModelID: "gpt-4o-mini"}
	if err := testConvs.Create(ctx, conv); err != nil {
		t.Fatalf("create conversation: %v", err)
	}

	userFinishedAt := time.Now().UTC()
	userMsg := &domain.Message{
		ID: testIDs.NewMessageID(), ConversationID: conv.ID,
		Role: domain.RoleUser, Content: "hello", Status: domain.MessageCompleted,
		FinishedAt: &userFinishedAt,
	}
	if err := testMsgs.Create(ctx, userMsg); err != nil {
		t.Fatalf("create user message: %v", err)
	}

	assistantMsg := &domain.Message{
		ID: testIDs.NewMessageID(), ConversationID: conv.ID, PreviousID: userMsg.ID,
		Role: domain.RoleAssistant, Status: domain.MessageStreaming, Provider: "openai", Model: "gpt-4o-mini",
	}
	if err := testMsgs.Create(ctx, assistantMsg); err != nil {
		t.Fatalf("create assistant message: %v", err)
	}

	if streaming, err := testMsgs.StreamingMessage(ctx, conv.ID); err != nil {
		t.Fatalf("StreamingMessage: %v", err)
	} else if streaming == nil || streaming.ID != assistantMsg.ID {
		t.Fatalf("expected the assistant message to be reported as streaming")
	}
	if streaming, err := testMsgs.Get(ctx, assistantMsg.ID); err != nil {
		t.Fatalf("get streaming message: %v", err)
	} else if streaming.FinishedAt != nil {
		t.Fatalf("expected finishedAt to be nil while non-terminal, got %v", streaming.FinishedAt)
	}

	assistantMsg.Content = "hi there"
	assistantMsg.Status = domain.MessageCompleted
	assistantFinishedAt := time.Now().UTC()
	assistantMsg.FinishedAt = &assistantFinishedAt
	if err := testMsgs.Update(ctx, assistantMsg); err != nil {
		t.Fatalf("update: %v", err)
	}
	if got, err := testMsgs.Get(ctx, assistantMsg.ID); err != nil {
		t.Fatalf("get completed message: %v", err)
	} else if got.FinishedAt == nil {
		t.Fatalf("expected finishedAt to be set once status is terminal")
	}

	if streaming, err := testMsgs.StreamingMessage(ctx, conv.ID); err != nil {
		t.Fatalf("StreamingMessage after completion: %v", err)
	} else if streaming != nil {
		t.Fatalf("expected no streaming message after completion, got %v", streaming.ID)
	}

	page, next, err := testMsgs.ListPage(ctx, conv.ID, "", 1, false)
	if err != nil {
		t.Fatalf("ListPage: %v", err)
	}
	if len(page) != 1 || page[0].ID != userMsg.ID {
		t.Fatalf("expected first page to contain only the user message, got %+v", page)
	}
	if next == "" {
		t.Fatalf("expected a next cursor since a second message exists")
	}

	page2, _, err := testMsgs.ListPage(ctx, conv.ID, next, 1, false)
	if err != nil {
		t.Fatalf("ListPage page 2: %v", err)
	}
	if len(page2) != 1 || page2[0].ID != assistantMsg.ID {
		t.Fatalf("expected second page to contain the assistant message, got %+v", page2)
	}
}

var errTxAbort = errors.New("deliberate rollback for test")

func TestWithTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	ownerID := "owner-" + testIDs.NewConversationID()
	convID := testIDs.NewConversationID()

	err := testConvs.Store.WithTx(ctx, func(txCtx context.Context) error {
		conv := &domain.Conversation{ID: convID, OwnerID: ownerID, DefaultModelID: "gpt-4o-mini"}
		if err := testConvs.Create(txCtx, conv); err != nil {
			return err
		}
		return errTxAbort
	})
	if !errors.Is(err, errTxAbort) {
		t.Fatalf("expected the sentinel abort error, got %v", err)
	}

	if _, err := testConvs.Get(ctx, convID, ownerID); domain.KindOf(err) != domain.KindNotFound {
		t.Fatalf("expected rollback to leave no conversation row, got %v", err)
	}
}
