package gemini

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"convograb/internal/domain"
)

var (
	assistantIDRe = regexp.MustCompile(`^rc_[a-zA-Z0-9]+$`)
	convIDRe      = regexp.MustCompile(`^c_[a-zA-Z0-9]+$`)
	internalIDRe  = regexp.MustCompile(`^(rc|r|c)_[a-zA-Z0-9]+$`)
	bareURLRe     = regexp.MustCompile(`^https?://\S+$`)
)

// ExtractMessages walks a decoded batchexecute payload and pulls out
// the conversation turns. The payload is deeply nested positional
// arrays with no schema, so extraction is heuristic: user turns appear
// as [contentArray, 1, null, 0, ...] tuples, assistant turns as an
// "rc_..." response id immediately followed by a content array.
// Adjacent duplicate (role, content) pairs are collapsed; the payload
// repeats turns in several subtrees.
func ExtractMessages(payload string) ([]domain.RawMessage, error) {
	var root any
	if err := json.Unmarshal([]byte(payload), &root); err != nil {
		return nil, fmt.Errorf("parse rpc payload: %w", err)
	}

	var out []domain.RawMessage
	appendMsg := func(role domain.Role, content string) {
		content = strings.TrimSpace(content)
		if content == "" {
			return
		}
		if len(out) > 0 && out[len(out)-1].Role == role && out[len(out)-1].Content == content {
			return
		}
		out = append(out, domain.RawMessage{Role: role, Content: content})
	}

	// Iterative depth-first walk. Child arrays are pushed in reverse so
	// traversal visits them in document order.
	stack := []any{root}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		arr, ok := node.([]any)
		if !ok {
			continue
		}

		if text, ok := userTurnText(arr); ok {
			appendMsg(domain.RoleUser, text)
		}
		for i := 0; i+1 < len(arr); i++ {
			if id, ok := arr[i].(string); ok && assistantIDRe.MatchString(id) {
				if text, ok := contentArrayText(arr[i+1]); ok {
					appendMsg(domain.RoleAssistant, text)
				}
			}
		}

		for i := len(arr) - 1; i >= 0; i-- {
			if _, ok := arr[i].([]any); ok {
				stack = append(stack, arr[i])
			}
		}
	}

	return out, nil
}

// FindConversationID scans the payload for the first "c_..." token.
func FindConversationID(payload string) string {
	var root any
	if err := json.Unmarshal([]byte(payload), &root); err != nil {
		return ""
	}
	stack := []any{root}
	for len(stack) > 0 {
		node := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		switch v := node.(type) {
		case string:
			if convIDRe.MatchString(v) {
				return v
			}
		case []any:
			for i := len(v) - 1; i >= 0; i-- {
				stack = append(stack, v[i])
			}
		}
	}
	return ""
}

// userTurnText recognizes the [contentArray, 1, null, 0, ...] tuple
// that carries a user turn.
func userTurnText(arr []any) (string, bool) {
	if len(arr) < 4 {
		return "", false
	}
	text, ok := contentArrayText(arr[0])
	if !ok {
		return "", false
	}
	if n, ok := arr[1].(float64); !ok || n != 1 {
		return "", false
	}
	if arr[2] != nil {
		return "", false
	}
	if n, ok := arr[3].(float64); !ok || n != 0 {
		return "", false
	}
	return text, true
}

// contentArrayText joins the plausible message strings of a content
// array. The array mixes real text with ids and tracking tokens, so
// each element passes through looksLikeMessageText.
func contentArrayText(v any) (string, bool) {
	arr, ok := v.([]any)
	if !ok {
		return "", false
	}
	var parts []string
	for _, e := range arr {
		if s, ok := e.(string); ok && looksLikeMessageText(s) {
			parts = append(parts, s)
		}
	}
	if len(parts) == 0 {
		return "", false
	}
	return strings.Join(parts, "\n"), true
}

// looksLikeMessageText filters out the non-content strings that share
// arrays with message text: bare URLs, internal ids, and base64-ish
// opaque tokens. Real text has letters, digits, or CJK characters.
func looksLikeMessageText(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	if bareURLRe.MatchString(s) {
		return false
	}
	if internalIDRe.MatchString(s) {
		return false
	}
	if looksLikeOpaqueToken(s) {
		return false
	}
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}

// looksLikeOpaqueToken reports whether s resembles a base64 or
// similar machine token: long, single run, no spaces, drawn from the
// base64 alphabet.
func looksLikeOpaqueToken(s string) bool {
	if len(s) < 24 || strings.ContainsAny(s, " \t\n") {
		return false
	}
	for _, r := range s {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '+' || r == '/' || r == '=' || r == '-' || r == '_':
		default:
			return false
		}
	}
	return true
}
