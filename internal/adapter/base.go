package adapter

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"convograb/internal/domain"

	"github.com/google/uuid"
)

// Spec describes the static identity of an adapter: who it is, which
// provider it serves, and which URLs it accepts.
type Spec struct {
	ID          string
	Version     string
	Provider    domain.Provider
	URLPatterns []*regexp.Regexp // ordered, any-match
}

// MergePatterns combines an adapter's compiled-in URL patterns with
// per-deployment overrides, leaving both input slices untouched.
func MergePatterns(defaults, extra []*regexp.Regexp) []*regexp.Regexp {
	if len(extra) == 0 {
		return defaults
	}
	merged := make([]*regexp.Regexp, 0, len(defaults)+len(extra))
	merged = append(merged, defaults...)
	return append(merged, extra...)
}

// base carries the identity shared by all template adapters.
type base struct {
	spec Spec
	kind domain.InputKind
}

func (b *base) ID() string      { return b.spec.ID }
func (b *base) Version() string { return b.spec.Version }

// CanHandle matches on input kind first, then on any URL pattern. It is
// pure: no I/O, no state.
func (b *base) CanHandle(in domain.Input) bool {
	if in.Kind() != b.kind {
		return false
	}
	for _, p := range b.spec.URLPatterns {
		if p.MatchString(in.URL()) {
			return true
		}
	}
	return false
}

// Extraction is what a concrete adapter hands back to the base:
// the ordered raw messages plus the provider's conversation id, if any.
type Extraction struct {
	Messages       []domain.RawMessage
	ConversationID string
}

// ShareLinkAdapter is the template for public share-link adapters. The
// concrete adapter supplies only FetchAndExtract; conversation assembly
// stays here so the share-url invariant holds for every adapter.
type ShareLinkAdapter struct {
	base
	FetchAndExtract func(ctx context.Context, url string) (*Extraction, error)
}

func NewShareLinkAdapter(spec Spec, fetch func(ctx context.Context, url string) (*Extraction, error)) *ShareLinkAdapter {
	return &ShareLinkAdapter{
		base:            base{spec: spec, kind: domain.InputShareLink},
		FetchAndExtract: fetch,
	}
}

func (a *ShareLinkAdapter) Parse(ctx context.Context, in domain.Input) (*domain.Conversation, error) {
	if in.Kind() != domain.InputShareLink {
		return nil, domain.NewAppError(domain.ErrInvalidInput,
			fmt.Sprintf("adapter %s expects share-link input, got %s", a.spec.ID, in.Kind()))
	}
	ext, err := a.FetchAndExtract(ctx, in.URL())
	if err != nil {
		return nil, err
	}
	return BuildConversation(BuildParams{
		Extraction: ext,
		SourceType: domain.SourceShareLink,
		ShareURL:   in.URL(),
		Spec:       a.spec,
	})
}

// ExtAdapter is the template for authenticated in-page adapters. The
// concrete adapter supplies GetRawMessages, typically by calling the
// provider's backend API with the input's cookies.
type ExtAdapter struct {
	base
	GetRawMessages func(ctx context.Context, in domain.Input) (*Extraction, error)
}

func NewExtAdapter(spec Spec, get func(ctx context.Context, in domain.Input) (*Extraction, error)) *ExtAdapter {
	return &ExtAdapter{
		base:           base{spec: spec, kind: domain.InputExt},
		GetRawMessages: get,
	}
}

func (a *ExtAdapter) Parse(ctx context.Context, in domain.Input) (*domain.Conversation, error) {
	if in.Kind() != domain.InputExt {
		return nil, domain.NewAppError(domain.ErrInvalidInput,
			fmt.Sprintf("adapter %s expects ext input, got %s", a.spec.ID, in.Kind()))
	}
	ext, err := a.GetRawMessages(ctx, in)
	if err != nil {
		return nil, err
	}
	return BuildConversation(BuildParams{
		Extraction: ext,
		SourceType: domain.SourceExt,
		Spec:       a.spec,
	})
}

// BuildParams feeds BuildConversation.
type BuildParams struct {
	Extraction *Extraction
	SourceType domain.SourceType
	ShareURL   string
	Spec       Spec
}

// BuildConversation turns raw messages into the canonical immutable
// Conversation: sequential order 0..n-1, content meta, source meta. An
// empty extraction is the terminal no-messages failure.
func BuildConversation(p BuildParams) (*domain.Conversation, error) {
	if p.Extraction == nil || len(p.Extraction.Messages) == 0 {
		return nil, domain.NewAppError(domain.ErrNoMessages,
			fmt.Sprintf("adapter %s extracted no messages", p.Spec.ID))
	}
	if p.SourceType == domain.SourceShareLink && p.ShareURL == "" {
		return nil, domain.NewAppError(domain.ErrInvalidInput,
			"share-link conversation requires a share URL")
	}

	convID := p.Extraction.ConversationID
	if convID == "" {
		convID = uuid.NewString()
	}

	msgs := make([]domain.Message, len(p.Extraction.Messages))
	for i, raw := range p.Extraction.Messages {
		msgs[i] = domain.Message{
			ID:              uuid.NewString(),
			Role:            raw.Role,
			ContentMarkdown: raw.Content,
			Order:           i,
			ContentMeta: domain.ContentMeta{
				ContainsCodeBlock: strings.Contains(raw.Content, "```"),
				ContainsImage:     strings.Contains(raw.Content, "!["),
			},
		}
	}

	return &domain.Conversation{
		ID:         convID,
		SourceType: p.SourceType,
		Messages:   msgs,
		SourceMeta: domain.SourceMeta{
			Provider:       p.Spec.Provider,
			ShareURL:       p.ShareURL,
			AdapterID:      p.Spec.ID,
			AdapterVersion: p.Spec.Version,
			ParsedAt:       time.Now(),
		},
	}, nil
}
