package chatgpt

import (
	"context"
	"regexp"
	"strings"
	"testing"

	"convograb/internal/domain"
)

func parseDOM(t *testing.T, pageHTML string) *domain.Conversation {
	t.Helper()
	a := NewDOMAdapter(nil, testLogger())
	conv, err := a.Parse(context.Background(), domain.NewDOMInput(pageHTML, "https://chatgpt.com/c/abc"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return conv
}

func TestDOMAdapter_PrimaryStrategy(t *testing.T) {
	page := `<html><body>
		<div data-message-author-role="user"><div>What is Go?</div></div>
		<div data-message-author-role="assistant"><div class="markdown prose"><p>A programming language.</p></div></div>
	</body></html>`

	conv := parseDOM(t, page)
	if len(conv.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(conv.Messages))
	}
	if conv.Messages[0].Role != domain.RoleUser || conv.Messages[0].ContentMarkdown != "What is Go?" {
		t.Fatalf("user message wrong: %+v", conv.Messages[0])
	}
	if conv.Messages[1].Role != domain.RoleAssistant || conv.Messages[1].ContentMarkdown != "A programming language." {
		t.Fatalf("assistant message wrong: %+v", conv.Messages[1])
	}
	if conv.SourceType != domain.SourceDOM {
		t.Fatalf("wrong source type: %s", conv.SourceType)
	}
}

func TestDOMAdapter_ClassHeuristicFallback(t *testing.T) {
	page := `<html><body>
		<div class="text-message"><div>user question here</div></div>
		<div class="text-message"><div class="markdown"><p>assistant answer here</p></div></div>
	</body></html>`

	conv := parseDOM(t, page)
	if len(conv.Messages) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(conv.Messages))
	}
	if conv.Messages[0].Role != domain.RoleUser {
		t.Fatalf("expected inferred user role, got %s", conv.Messages[0].Role)
	}
	if conv.Messages[1].Role != domain.RoleAssistant {
		t.Fatalf("expected inferred assistant role, got %s", conv.Messages[1].Role)
	}
}

func TestDOMAdapter_LegacyAlternatingStrategy(t *testing.T) {
	page := `<html><body>
		<div class="text-base">first turn</div>
		<div class="text-base">second turn</div>
		<div class="text-base">third turn</div>
	</body></html>`

	conv := parseDOM(t, page)
	if len(conv.Messages) != 3 {
		t.Fatalf("expected 3 messages, got %d", len(conv.Messages))
	}
	wantRoles := []domain.Role{domain.RoleUser, domain.RoleAssistant, domain.RoleUser}
	for i, w := range wantRoles {
		if conv.Messages[i].Role != w {
			t.Errorf("message %d: role %s, want %s", i, conv.Messages[i].Role, w)
		}
	}
}

func TestDOMAdapter_AllStrategiesEmpty(t *testing.T) {
	a := NewDOMAdapter(nil, testLogger())
	_, err := a.Parse(context.Background(), domain.NewDOMInput("<html><body></body></html>", "https://chatgpt.com/c/abc"))
	ae, ok := domain.AsAppError(err)
	if !ok || ae.Code != domain.ErrNoMessages {
		t.Fatalf("expected %s, got %v", domain.ErrNoMessages, err)
	}
}

func TestDOMAdapter_CanHandle(t *testing.T) {
	a := NewDOMAdapter(nil, testLogger())
	if !a.CanHandle(domain.NewDOMInput("", "https://chatgpt.com/c/abc")) {
		t.Fatal("should handle chatgpt dom input")
	}
	if a.CanHandle(domain.NewDOMInput("", "https://claude.ai/chat/abc")) {
		t.Fatal("should not handle claude URLs")
	}
	if a.CanHandle(domain.NewShareLinkInput("https://chatgpt.com/share/abc")) {
		t.Fatal("should not handle share-link inputs")
	}
}

func TestDOMAdapter_URLPatternOverride(t *testing.T) {
	mirror := regexp.MustCompile(`^https://chatgpt\.mirror\.example\.com/`)
	a := NewDOMAdapter(nil, testLogger(), mirror)
	if !a.CanHandle(domain.NewDOMInput("", "https://chatgpt.mirror.example.com/c/abc")) {
		t.Fatal("configured pattern not honored")
	}
	if !a.CanHandle(domain.NewDOMInput("", "https://chatgpt.com/c/abc")) {
		t.Fatal("compiled-in pattern must survive the override")
	}
}

func TestDOMAdapter_SelectorOverride(t *testing.T) {
	page := `<html><body>
		<div data-author="user">custom markup question</div>
	</body></html>`

	a := NewDOMAdapter(map[string]string{"authorRole": "data-author"}, testLogger())
	conv, err := a.Parse(context.Background(), domain.NewDOMInput(page, "https://chatgpt.com/c/abc"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(conv.Messages) != 1 || !strings.Contains(conv.Messages[0].ContentMarkdown, "custom markup question") {
		t.Fatalf("override not applied: %+v", conv.Messages)
	}
}

func TestDOMAdapter_CodeBlockLanguageSniffing(t *testing.T) {
	page := `<html><body>
		<div data-message-author-role="assistant"><div class="markdown">
			<pre><code class="language-go">fmt.Println(1)</code></pre>
		</div></div>
	</body></html>`

	conv := parseDOM(t, page)
	want := "```go\nfmt.Println(1)\n```"
	if conv.Messages[0].ContentMarkdown != want {
		t.Fatalf("got %q, want %q", conv.Messages[0].ContentMarkdown, want)
	}
	if !conv.Messages[0].ContentMeta.ContainsCodeBlock {
		t.Fatal("code block meta not set")
	}
}
