package domain

import "time"

// Provider identifies the upstream chat service a conversation came from.
type Provider string

const (
	ProviderChatGPT Provider = "chatgpt"
	ProviderClaude  Provider = "claude"
	ProviderGemini  Provider = "gemini"
)

// SourceType describes which surface a conversation was extracted from.
type SourceType string

const (
	SourceDOM       SourceType = "dom"
	SourceShareLink SourceType = "web-share-link"
	SourceExt       SourceType = "ext"
)

// Role is the author of a message. Only user and assistant messages are
// renderable; everything else is filtered out by the converters.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// RawMessage is the intermediate form produced by the per-provider
// converters: role plus flattened markdown, before IDs and ordering
// are assigned.
type RawMessage struct {
	Role    Role
	Content string
}

// ContentMeta carries cheap, pre-computed facts about a message body so
// downstream consumers don't have to re-scan the markdown.
type ContentMeta struct {
	ContainsCodeBlock bool `json:"containsCodeBlock"`
	ContainsImage     bool `json:"containsImage"`
}

// Message is one canonical conversation turn. Order is strictly
// sequential starting at 0 with no gaps.
type Message struct {
	ID              string      `json:"id"`
	Role            Role        `json:"role"`
	ContentMarkdown string      `json:"contentMarkdown"`
	Order           int         `json:"order"`
	ContentMeta     ContentMeta `json:"contentMeta"`
}

// SourceMeta records where a conversation came from and which adapter
// produced it.
type SourceMeta struct {
	Provider       Provider  `json:"provider"`
	ShareURL       string    `json:"shareUrl,omitempty"`
	AdapterID      string    `json:"adapterId"`
	AdapterVersion string    `json:"adapterVersion"`
	ParsedAt       time.Time `json:"parsedAt"`
}

// Conversation is the canonical output of the extraction engine. It is
// built once per parse call and never mutated afterwards.
//
// Invariant: SourceType == SourceShareLink implies SourceMeta.ShareURL
// is non-empty. Adapters never construct Conversation directly; the
// adapter base types do, so the invariant holds for every adapter.
type Conversation struct {
	ID         string     `json:"id"`
	SourceType SourceType `json:"sourceType"`
	Messages   []Message  `json:"messages"`
	SourceMeta SourceMeta `json:"sourceMeta"`
}
