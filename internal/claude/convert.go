// Package claude extracts conversations from Claude's backend API and
// public share snapshots. Unlike ChatGPT there is no node graph: the
// API returns a flat message array which only needs ordering, artifact
// conversion, and same-sender merging.
package claude

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"convograb/internal/domain"
)

// chatMessage is the wire shape shared by chat_conversations and
// chat_snapshots responses.
type chatMessage struct {
	UUID      string        `json:"uuid"`
	Sender    string        `json:"sender"` // human | assistant
	Index     int           `json:"index"`
	CreatedAt string        `json:"created_at"`
	Text      string        `json:"text"` // legacy flat field
	Content   []contentPart `json:"content"`
}

type contentPart struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

var (
	artifactRe     = regexp.MustCompile(`(?s)<antArtifact\b[^>]*>(.*?)</antArtifact>`)
	artifactLangRe = regexp.MustCompile(`language="([^"]*)"`)
)

// convertMessages turns the flat message array into ordered raw
// messages: sort by timestamp (index-derived fallback), extract text,
// convert artifacts to fenced blocks, then merge adjacent same-sender
// messages, since Claude may emit several content turns per logical
// reply.
func convertMessages(messages []chatMessage) []domain.RawMessage {
	sorted := make([]chatMessage, len(messages))
	copy(sorted, messages)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sortKey(sorted[i]) < sortKey(sorted[j])
	})

	var out []domain.RawMessage
	for _, m := range sorted {
		text := strings.TrimSpace(convertArtifacts(messageText(m)))
		if text == "" {
			continue
		}
		role := domain.RoleAssistant
		if m.Sender == "human" {
			role = domain.RoleUser
		}
		if len(out) > 0 && out[len(out)-1].Role == role {
			out[len(out)-1].Content += "\n" + text
			continue
		}
		out = append(out, domain.RawMessage{Role: role, Content: text})
	}
	return out
}

// sortKey is the created_at timestamp in milliseconds, or index*1000
// when the timestamp is missing or unparseable.
func sortKey(m chatMessage) int64 {
	if m.CreatedAt != "" {
		if t, err := time.Parse(time.RFC3339, m.CreatedAt); err == nil {
			return t.UnixMilli()
		}
	}
	return int64(m.Index) * 1000
}

// messageText joins the typed content parts, keeping only text parts;
// older payloads carry a flat text field instead.
func messageText(m chatMessage) string {
	var parts []string
	for _, p := range m.Content {
		if p.Type == "text" && p.Text != "" {
			parts = append(parts, p.Text)
		}
	}
	if len(parts) > 0 {
		return strings.Join(parts, "\n")
	}
	return m.Text
}

// convertArtifacts rewrites embedded antArtifact blocks as fenced code
// blocks tagged with the artifact's language attribute.
func convertArtifacts(text string) string {
	return artifactRe.ReplaceAllStringFunc(text, func(match string) string {
		sub := artifactRe.FindStringSubmatch(match)
		body := strings.Trim(sub[1], "\n")
		lang := ""
		openTag := match[:strings.Index(match, ">")+1]
		if m := artifactLangRe.FindStringSubmatch(openTag); m != nil {
			lang = m[1]
		}
		return fmt.Sprintf("```%s\n%s\n```", lang, body)
	})
}
