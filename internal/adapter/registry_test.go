package adapter

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"testing"

	"convograb/internal/domain"
)

// mockAdapter implements domain.Adapter for testing.
type mockAdapter struct {
	id        string
	canHandle bool
	panics    bool
	parseErr  error
	conv      *domain.Conversation
	calls     int
}

func (m *mockAdapter) ID() string      { return m.id }
func (m *mockAdapter) Version() string { return "1.0.0" }

func (m *mockAdapter) CanHandle(in domain.Input) bool {
	if m.panics {
		panic("buggy predicate")
	}
	return m.canHandle
}

func (m *mockAdapter) Parse(ctx context.Context, in domain.Input) (*domain.Conversation, error) {
	m.calls++
	if m.parseErr != nil {
		return nil, m.parseErr
	}
	return m.conv, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func testConv(id string) *domain.Conversation {
	return &domain.Conversation{ID: id, SourceType: domain.SourceExt}
}

func TestRegistry_DuplicateIDIsError(t *testing.T) {
	r := NewRegistry(testLogger())
	if err := r.Register(&mockAdapter{id: "a"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.Register(&mockAdapter{id: "a"}); err == nil {
		t.Fatal("expected duplicate registration error")
	}
}

func TestRegistry_Unregister(t *testing.T) {
	r := NewRegistry(testLogger())
	r.Register(&mockAdapter{id: "a"})

	if !r.Unregister("a") {
		t.Fatal("expected true for existing adapter")
	}
	if r.Unregister("a") {
		t.Fatal("expected false for already-removed adapter")
	}
}

func TestRegistry_NoCompatibleAdapter(t *testing.T) {
	r := NewRegistry(testLogger())
	r.Register(&mockAdapter{id: "a", canHandle: false})

	_, err := r.ParseWithAdapters(context.Background(), domain.NewShareLinkInput("https://example.com"))
	ae, ok := domain.AsAppError(err)
	if !ok {
		t.Fatalf("expected AppError, got %v", err)
	}
	if ae.Code != domain.ErrAdapterNotFound {
		t.Fatalf("expected %s, got %s", domain.ErrAdapterNotFound, ae.Code)
	}
}

func TestRegistry_FirstSuccessWins(t *testing.T) {
	first := &mockAdapter{id: "first", canHandle: true, conv: testConv("c1")}
	second := &mockAdapter{id: "second", canHandle: true, conv: testConv("c2")}
	r := NewRegistry(testLogger())
	r.Register(first)
	r.Register(second)

	res, err := r.ParseWithAdapters(context.Background(), domain.NewShareLinkInput("https://example.com"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.AdapterID != "first" {
		t.Fatalf("expected first adapter, got %s", res.AdapterID)
	}
	if second.calls != 0 {
		t.Fatal("second adapter must not run after first succeeds")
	}
}

func TestRegistry_FallsThroughOnError(t *testing.T) {
	first := &mockAdapter{id: "first", canHandle: true, parseErr: errors.New("boom")}
	second := &mockAdapter{id: "second", canHandle: true, conv: testConv("c2")}
	r := NewRegistry(testLogger())
	r.Register(first)
	r.Register(second)

	res, err := r.ParseWithAdapters(context.Background(), domain.NewShareLinkInput("https://example.com"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.AdapterID != "second" {
		t.Fatalf("expected second adapter, got %s", res.AdapterID)
	}
}

func TestRegistry_PanickingCanHandleIsSkipped(t *testing.T) {
	buggy := &mockAdapter{id: "buggy", panics: true}
	good := &mockAdapter{id: "good", canHandle: true, conv: testConv("c1")}
	r := NewRegistry(testLogger())
	r.Register(buggy)
	r.Register(good)

	res, err := r.ParseWithAdapters(context.Background(), domain.NewShareLinkInput("https://example.com"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.AdapterID != "good" {
		t.Fatalf("expected good adapter, got %s", res.AdapterID)
	}
}

func TestRegistry_StructuredLastErrorSurfacedAsIs(t *testing.T) {
	typed := domain.NewAppError(domain.ErrInvalidShareLink, "bad link")
	r := NewRegistry(testLogger())
	r.Register(&mockAdapter{id: "a", canHandle: true, parseErr: errors.New("untyped")})
	r.Register(&mockAdapter{id: "b", canHandle: true, parseErr: typed})

	_, err := r.ParseWithAdapters(context.Background(), domain.NewShareLinkInput("https://example.com"))
	ae, ok := domain.AsAppError(err)
	if !ok {
		t.Fatalf("expected AppError, got %v", err)
	}
	if ae.Code != domain.ErrInvalidShareLink {
		t.Fatalf("expected last error code to pass through, got %s", ae.Code)
	}
}

func TestRegistry_UntypedLastErrorWrapped(t *testing.T) {
	r := NewRegistry(testLogger())
	r.Register(&mockAdapter{id: "a", canHandle: true, parseErr: errors.New("untyped")})

	_, err := r.ParseWithAdapters(context.Background(), domain.NewShareLinkInput("https://example.com"))
	ae, ok := domain.AsAppError(err)
	if !ok {
		t.Fatalf("expected AppError, got %v", err)
	}
	if ae.Code != domain.ErrParseFailed {
		t.Fatalf("expected %s, got %s", domain.ErrParseFailed, ae.Code)
	}
}

func TestRegistry_DeterministicDispatch(t *testing.T) {
	r := NewRegistry(testLogger())
	r.Register(&mockAdapter{id: "a", canHandle: true, conv: testConv("c1")})
	r.Register(&mockAdapter{id: "b", canHandle: true, conv: testConv("c2")})

	in := domain.NewShareLinkInput("https://example.com")
	for i := 0; i < 5; i++ {
		res, err := r.ParseWithAdapters(context.Background(), in)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if res.AdapterID != "a" || res.Conversation.ID != "c1" {
			t.Fatalf("run %d: dispatch not deterministic: %s/%s", i, res.AdapterID, res.Conversation.ID)
		}
	}
}

func TestRegistry_Clear(t *testing.T) {
	r := NewRegistry(testLogger())
	r.Register(&mockAdapter{id: "a"})
	r.Clear()
	if len(r.IDs()) != 0 {
		t.Fatalf("expected empty registry, got %v", r.IDs())
	}
	if err := r.Register(&mockAdapter{id: "a"}); err != nil {
		t.Fatalf("re-registering after clear should work: %v", err)
	}
}
