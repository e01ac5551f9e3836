package store

import (
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"convograb/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "history.db"), logger)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleConversation(id string, parsedAt time.Time) *domain.Conversation {
	return &domain.Conversation{
		ID:         id,
		SourceType: domain.SourceShareLink,
		Messages: []domain.Message{
			{ID: id + "-m0", Role: domain.RoleUser, ContentMarkdown: "Hello", Order: 0},
			{ID: id + "-m1", Role: domain.RoleAssistant, ContentMarkdown: "```go\nfmt.Println(1)\n```", Order: 1,
				ContentMeta: domain.ContentMeta{ContainsCodeBlock: true}},
		},
		SourceMeta: domain.SourceMeta{
			Provider:       domain.ProviderChatGPT,
			ShareURL:       "https://chatgpt.com/share/" + id,
			AdapterID:      "chatgpt-share",
			AdapterVersion: "1.2.0",
			ParsedAt:       parsedAt,
		},
	}
}

func TestSaveAndGetConversation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv := sampleConversation("abc", time.Now().UTC().Truncate(time.Second))
	if err := s.SaveConversation(ctx, conv); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.GetConversation(ctx, "abc")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got == nil {
		t.Fatal("conversation not found")
	}
	if got.SourceType != domain.SourceShareLink {
		t.Fatalf("source type wrong: %q", got.SourceType)
	}
	if got.SourceMeta.ShareURL != conv.SourceMeta.ShareURL {
		t.Fatalf("share url wrong: %q", got.SourceMeta.ShareURL)
	}
	if len(got.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(got.Messages))
	}
	if got.Messages[0].Order != 0 || got.Messages[1].Order != 1 {
		t.Fatalf("message order wrong: %+v", got.Messages)
	}
	if !got.Messages[1].ContentMeta.ContainsCodeBlock {
		t.Fatal("content meta lost")
	}
}

func TestSaveConversation_ReplacesMessages(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	conv := sampleConversation("abc", time.Now())
	if err := s.SaveConversation(ctx, conv); err != nil {
		t.Fatalf("save: %v", err)
	}

	conv.Messages = conv.Messages[:1]
	if err := s.SaveConversation(ctx, conv); err != nil {
		t.Fatalf("re-save: %v", err)
	}

	got, err := s.GetConversation(ctx, "abc")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if len(got.Messages) != 1 {
		t.Fatalf("expected messages replaced, got %d", len(got.Messages))
	}
}

func TestGetConversation_Unknown(t *testing.T) {
	s := newTestStore(t)
	got, err := s.GetConversation(context.Background(), "nope")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil for unknown id, got %+v", got)
	}
}

func TestListConversations_RecentFirst(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	old := sampleConversation("old", time.Now().Add(-2*time.Hour))
	recent := sampleConversation("recent", time.Now())
	if err := s.SaveConversation(ctx, old); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveConversation(ctx, recent); err != nil {
		t.Fatal(err)
	}

	list, err := s.ListConversations(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(list))
	}
	if list[0].ID != "recent" {
		t.Fatalf("expected recent first, got %+v", list)
	}
	if list[0].MessageCount != 2 {
		t.Fatalf("message count wrong: %+v", list[0])
	}
}

func TestPrune_RemovesExpired(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	stale := sampleConversation("stale", time.Now().AddDate(0, 0, -40))
	fresh := sampleConversation("fresh", time.Now())
	if err := s.SaveConversation(ctx, stale); err != nil {
		t.Fatal(err)
	}
	if err := s.SaveConversation(ctx, fresh); err != nil {
		t.Fatal(err)
	}

	n, err := s.Prune(ctx, 30)
	if err != nil {
		t.Fatalf("prune: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 pruned, got %d", n)
	}

	got, err := s.GetConversation(ctx, "stale")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != nil {
		t.Fatal("stale conversation should be gone")
	}
}
