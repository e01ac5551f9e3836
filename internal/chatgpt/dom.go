package chatgpt

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"convograb/internal/adapter"
	"convograb/internal/domain"
)

var domURLPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^https://chatgpt\.com/`),
	regexp.MustCompile(`^https://chat\.openai\.com/`),
}

// domStrategy extracts raw messages from a parsed page, returning nil
// when its selectors don't match this markup generation.
type domStrategy struct {
	name    string
	extract func(doc *html.Node) []domain.RawMessage
}

// DOMAdapter scrapes a rendered ChatGPT page snapshot. It is the
// fallback when neither API nor share payload is available, so it
// carries three selector strategies spanning markup generations and
// fails only when all of them come up empty.
type DOMAdapter struct {
	spec       adapter.Spec
	strategies []domStrategy
	logger     *slog.Logger
}

// NewDOMAdapter builds the ChatGPT live-page scraping adapter.
// Selector overrides from config can replace the primary strategy's
// role attribute via selectors["authorRole"]; extra URL patterns
// extend the compiled-in ones.
func NewDOMAdapter(selectors map[string]string, logger *slog.Logger, extra ...*regexp.Regexp) *DOMAdapter {
	roleAttr := "data-message-author-role"
	if v, ok := selectors["authorRole"]; ok && v != "" {
		roleAttr = v
	}

	return &DOMAdapter{
		spec: adapter.Spec{
			ID:          "chatgpt-dom",
			Version:     "2.0.1",
			Provider:    domain.ProviderChatGPT,
			URLPatterns: adapter.MergePatterns(domURLPatterns, extra),
		},
		strategies: []domStrategy{
			{name: "author-role-attr", extract: func(doc *html.Node) []domain.RawMessage {
				return extractByAuthorRole(doc, roleAttr)
			}},
			{name: "class-heuristic", extract: extractByClassHeuristic},
			{name: "legacy-alternating", extract: extractByAlternating},
		},
		logger: logger,
	}
}

func (a *DOMAdapter) ID() string      { return a.spec.ID }
func (a *DOMAdapter) Version() string { return a.spec.Version }

func (a *DOMAdapter) CanHandle(in domain.Input) bool {
	if in.Kind() != domain.InputDOM {
		return false
	}
	for _, p := range a.spec.URLPatterns {
		if p.MatchString(in.URL()) {
			return true
		}
	}
	return false
}

func (a *DOMAdapter) Parse(ctx context.Context, in domain.Input) (*domain.Conversation, error) {
	if in.Kind() != domain.InputDOM {
		return nil, domain.NewAppError(domain.ErrInvalidInput,
			"chatgpt-dom expects dom input, got "+string(in.Kind()))
	}

	doc, err := html.Parse(strings.NewReader(in.HTML()))
	if err != nil {
		return nil, domain.WrapAppError(domain.ErrParseFailed, "parse page snapshot", err)
	}

	for _, s := range a.strategies {
		raws := s.extract(doc)
		if len(raws) > 0 {
			a.logger.Debug("dom strategy matched", "strategy", s.name, "messages", len(raws))
			return adapter.BuildConversation(adapter.BuildParams{
				Extraction: &adapter.Extraction{Messages: raws},
				SourceType: domain.SourceDOM,
				Spec:       a.spec,
			})
		}
	}

	return nil, domain.NewAppError(domain.ErrNoMessages,
		"no selector strategy found any messages; page markup may have changed")
}

// extractByAuthorRole is the primary strategy: current markup tags each
// turn with data-message-author-role.
func extractByAuthorRole(doc *html.Node, roleAttr string) []domain.RawMessage {
	var out []domain.RawMessage
	for _, n := range findAll(doc, func(e *html.Node) bool {
		role := attrVal(e, roleAttr)
		return role == "user" || role == "assistant"
	}) {
		role := domain.Role(attrVal(n, roleAttr))
		text := messageBodyMarkdown(n, role)
		if text == "" {
			continue
		}
		out = append(out, domain.RawMessage{Role: role, Content: text})
	}
	return out
}

// extractByClassHeuristic is the fallback for markup without role
// attributes: turns are class-tagged, and the role is inferred from the
// presence of the assistant's markdown container (user text renders in
// a plain whitespace-pre-wrap block instead).
func extractByClassHeuristic(doc *html.Node) []domain.RawMessage {
	var out []domain.RawMessage
	for _, n := range findAll(doc, func(e *html.Node) bool {
		return hasClassWord(e, "text-message") || strings.Contains(attrVal(e, "class"), "conversation-turn")
	}) {
		role := domain.RoleUser
		if findFirst(n, func(e *html.Node) bool { return hasClassWord(e, "markdown") }) != nil {
			role = domain.RoleAssistant
		}
		text := messageBodyMarkdown(n, role)
		if text == "" {
			continue
		}
		// Nested matches produce duplicates of the turn we just took.
		if len(out) > 0 && out[len(out)-1].Role == role && out[len(out)-1].Content == text {
			continue
		}
		out = append(out, domain.RawMessage{Role: role, Content: text})
	}
	return out
}

// extractByAlternating handles pre-2024 markup with no per-turn role
// markers at all: message blocks simply alternate user/assistant.
func extractByAlternating(doc *html.Node) []domain.RawMessage {
	var out []domain.RawMessage
	role := domain.RoleUser
	for _, n := range findAll(doc, func(e *html.Node) bool {
		return e.Data == "div" && hasClassWord(e, "text-base")
	}) {
		text := NodeToMarkdown(n)
		if strings.TrimSpace(text) == "" {
			continue
		}
		out = append(out, domain.RawMessage{Role: role, Content: text})
		if role == domain.RoleUser {
			role = domain.RoleAssistant
		} else {
			role = domain.RoleUser
		}
	}
	return out
}

// messageBodyMarkdown picks the message body inside a turn node:
// assistant turns render markdown in a dedicated container, user turns
// are plain text.
func messageBodyMarkdown(n *html.Node, role domain.Role) string {
	if role == domain.RoleAssistant {
		if md := findFirst(n, func(e *html.Node) bool { return hasClassWord(e, "markdown") }); md != nil {
			return NodeToMarkdown(md)
		}
	}
	return NodeToMarkdown(n)
}

func findAll(n *html.Node, pred func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(e *html.Node) {
		if e.Type == html.ElementNode && pred(e) {
			out = append(out, e)
		}
		for c := e.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return out
}

func hasClassWord(n *html.Node, word string) bool {
	for _, c := range strings.Fields(attrVal(n, "class")) {
		if c == word {
			return true
		}
	}
	return false
}
