package chatgpt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"convograb/internal/httpx"
)

// FlattenContext carries what a flattener needs beyond the content
// itself: the share page's conversation id and cookies, so image
// resolution works even when the message's own metadata carries no
// conversation id.
type FlattenContext struct {
	SharedConversationID string
	Cookies              []*http.Cookie
	Client               *httpx.Client
	Logger               *slog.Logger
}

// FlattenFunc converts one message-content variant into markdown.
// Implementations are pure over the content shape except for
// multimodal image resolution, which performs network I/O.
type FlattenFunc func(ctx context.Context, content map[string]any, fc *FlattenContext) (string, error)

// FlattenerRegistry maps content_type to a flattening strategy. Unknown
// types fall through to the generic strategy, so new upstream content
// types degrade instead of breaking the parse.
type FlattenerRegistry struct {
	strategies map[string]FlattenFunc
	fallback   FlattenFunc
}

// NewFlattenerRegistry returns a registry with all built-in strategies.
func NewFlattenerRegistry() *FlattenerRegistry {
	r := &FlattenerRegistry{
		strategies: make(map[string]FlattenFunc),
		fallback:   flattenGeneric,
	}
	r.Register("text", flattenText)
	r.Register("code", flattenCode)
	r.Register("thoughts", flattenThoughts)
	r.Register("reasoning_recap", flattenReasoningRecap)
	r.Register("multimodal_text", flattenMultimodal)
	r.Register("tool_response", flattenToolResponse)
	r.Register("model_editable_context", flattenEditableContext)
	return r
}

// Register adds or replaces the strategy for a content type.
func (r *FlattenerRegistry) Register(contentType string, fn FlattenFunc) {
	r.strategies[contentType] = fn
}

// Flatten dispatches on the content's content_type field.
func (r *FlattenerRegistry) Flatten(ctx context.Context, content map[string]any, fc *FlattenContext) (string, error) {
	ct, _ := content["content_type"].(string)
	if fn, ok := r.strategies[ct]; ok {
		return fn(ctx, content, fc)
	}
	return r.fallback(ctx, content, fc)
}

// flattenText joins string parts. Tool-echoed bodies sometimes arrive
// as a JSON blob {"response": "..."}; those are unwrapped to the inner
// response text.
func flattenText(_ context.Context, content map[string]any, _ *FlattenContext) (string, error) {
	joined := joinStringParts(content)
	trimmed := strings.TrimSpace(joined)
	if strings.HasPrefix(trimmed, "{") {
		var blob map[string]any
		if err := json.Unmarshal([]byte(trimmed), &blob); err == nil {
			if resp, ok := blob["response"].(string); ok && resp != "" {
				return resp, nil
			}
		}
	}
	return joined, nil
}

// flattenCode emits a fenced code block with the language tag. Bodies
// that are telemetry-only JSON (objects carrying no human-readable
// string values, e.g. {"response_length": 12}) are dropped entirely.
func flattenCode(_ context.Context, content map[string]any, _ *FlattenContext) (string, error) {
	text, _ := content["text"].(string)
	if text == "" {
		return "", nil
	}
	if isTelemetryJSON(text) {
		return "", nil
	}
	lang, _ := content["language"].(string)
	if lang == "unknown" {
		lang = ""
	}
	return fmt.Sprintf("```%s\n%s\n```", lang, strings.TrimRight(text, "\n")), nil
}

// isTelemetryJSON reports whether text is a JSON object with no string
// content anywhere in it, which marks tool telemetry echoes rather than
// real code.
func isTelemetryJSON(text string) bool {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "{") {
		return false
	}
	var blob map[string]any
	if err := json.Unmarshal([]byte(trimmed), &blob); err != nil {
		return false
	}
	return len(blob) > 0 && !hasStringContent(blob)
}

func hasStringContent(v any) bool {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t) != ""
	case []any:
		for _, e := range t {
			if hasStringContent(e) {
				return true
			}
		}
	case map[string]any:
		for _, e := range t {
			if hasStringContent(e) {
				return true
			}
		}
	}
	return false
}

// flattenThoughts renders reasoning summaries as italics. The converter
// normally filters the thoughts content type out; this strategy covers
// callers that keep them.
func flattenThoughts(_ context.Context, content map[string]any, _ *FlattenContext) (string, error) {
	thoughts, _ := content["thoughts"].([]any)
	var lines []string
	for _, t := range thoughts {
		m, ok := t.(map[string]any)
		if !ok {
			continue
		}
		summary, _ := m["summary"].(string)
		if summary = strings.TrimSpace(summary); summary != "" {
			lines = append(lines, "*"+summary+"*")
		}
	}
	return strings.Join(lines, "\n"), nil
}

func flattenReasoningRecap(_ context.Context, content map[string]any, _ *FlattenContext) (string, error) {
	recap, _ := content["content"].(string)
	if recap = strings.TrimSpace(recap); recap == "" {
		return "", nil
	}
	return "*" + recap + "*", nil
}

// flattenMultimodal interleaves text parts and image pointers in their
// original order. Each image pointer costs one network round-trip to
// resolve the asset id into a download URL; resolution is sequential
// within the message. A failed resolution degrades to the constructed
// API URL instead of failing the whole message.
func flattenMultimodal(ctx context.Context, content map[string]any, fc *FlattenContext) (string, error) {
	parts, _ := content["parts"].([]any)
	var out []string
	for _, p := range parts {
		switch part := p.(type) {
		case string:
			if part != "" {
				out = append(out, part)
			}
		case map[string]any:
			ct, _ := part["content_type"].(string)
			if ct != "image_asset_pointer" {
				continue
			}
			pointer, _ := part["asset_pointer"].(string)
			if pointer == "" {
				continue
			}
			out = append(out, fmt.Sprintf("![image](%s)", resolveImagePointer(ctx, pointer, fc)))
		}
	}
	return strings.Join(out, "\n\n"), nil
}

const fileDownloadBase = "https://chatgpt.com/backend-anon/files/download/"

// resolveImagePointer maps a sediment:// or file-service:// asset id to
// a real download URL via the provider's file API.
func resolveImagePointer(ctx context.Context, pointer string, fc *FlattenContext) string {
	fileID := pointer
	for _, prefix := range []string{"sediment://", "file-service://"} {
		fileID = strings.TrimPrefix(fileID, prefix)
	}

	apiURL := fileDownloadBase + fileID
	if fc.SharedConversationID != "" {
		apiURL += "?shared_conversation_id=" + fc.SharedConversationID
	}
	if fc.Client == nil {
		return apiURL
	}

	var resp struct {
		DownloadURL string `json:"download_url"`
	}
	err := fc.Client.FetchJSON(ctx, apiURL, &resp, httpx.Options{Cookies: fc.Cookies})
	if err != nil || resp.DownloadURL == "" {
		if fc.Logger != nil {
			fc.Logger.Warn("image pointer resolution failed, using API URL", "file", fileID, "error", err)
		}
		return apiURL
	}
	return resp.DownloadURL
}

func flattenToolResponse(_ context.Context, content map[string]any, _ *FlattenContext) (string, error) {
	if text, ok := content["text"].(string); ok && strings.TrimSpace(text) != "" {
		if isTelemetryJSON(text) {
			return "", nil
		}
		return text, nil
	}
	if result, ok := content["result"].(string); ok {
		return result, nil
	}
	return "", nil
}

// flattenEditableContext drops the model's memory context: it is
// machine-facing state, not conversation content.
func flattenEditableContext(_ context.Context, _ map[string]any, _ *FlattenContext) (string, error) {
	return "", nil
}

// flattenGeneric is the catch-all: concatenate whatever strings the
// parts array holds.
func flattenGeneric(_ context.Context, content map[string]any, _ *FlattenContext) (string, error) {
	return joinStringParts(content), nil
}

func joinStringParts(content map[string]any) string {
	parts, _ := content["parts"].([]any)
	var out []string
	for _, p := range parts {
		if s, ok := p.(string); ok && s != "" {
			out = append(out, s)
		}
	}
	return strings.Join(out, "\n")
}
