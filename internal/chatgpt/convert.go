package chatgpt

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"convograb/internal/domain"
)

// Converter walks a ChatGPT conversation node graph and yields ordered
// raw messages. Shared by the share-link and ext adapters.
type Converter struct {
	flatteners *FlattenerRegistry
	logger     *slog.Logger
}

func NewConverter(flatteners *FlattenerRegistry, logger *slog.Logger) *Converter {
	return &Converter{flatteners: flatteners, logger: logger}
}

// citationPatterns match the inline citation artifacts ChatGPT embeds
// in assistant text. Stripped line by line so surrounding prose survives.
var citationPatterns = []*regexp.Regexp{
	regexp.MustCompile(`citeturn\d+\w*`),
	regexp.MustCompile(`navlist\S*`),
	regexp.MustCompile(`turn\d+file\d+\w*`),
}

// hiddenMetadataFlags mark messages the ChatGPT UI never renders.
var hiddenMetadataFlags = []string{
	"is_visually_hidden_from_conversation",
	"is_redacted",
	"is_user_system_message",
}

// serverInternalContentTypes never reach the rendered transcript.
var serverInternalContentTypes = map[string]bool{
	"thoughts": true,
	"code":     true,
}

// Convert resolves each linear-conversation entry against the mapping
// and flattens the surviving nodes. Entries that don't resolve, system
// or hidden messages, and messages that are empty after citation
// stripping are skipped, never fatal. Output preserves walk order.
func (c *Converter) Convert(ctx context.Context, data *ShareData, fc *FlattenContext) []domain.RawMessage {
	var out []domain.RawMessage
	for _, entry := range data.Linear {
		id := linearEntryID(entry)
		if id == "" {
			continue
		}
		node, ok := data.Mapping[id].(map[string]any)
		if !ok {
			c.logger.Debug("linear id missing from mapping, skipping", "id", id)
			continue
		}
		raw, ok := c.convertNode(ctx, node, fc)
		if !ok {
			continue
		}
		out = append(out, raw)
	}
	return out
}

// ConvertFromCurrentNode reconstructs the linear path by following
// parent links from current_node up to the root, then converts it. Used
// for backend-api payloads, which carry current_node instead of
// linear_conversation.
func (c *Converter) ConvertFromCurrentNode(ctx context.Context, mapping map[string]any, currentNode string, fc *FlattenContext) []domain.RawMessage {
	var path []any
	seen := make(map[string]bool)
	for id := currentNode; id != "" && !seen[id]; {
		seen[id] = true
		node, ok := mapping[id].(map[string]any)
		if !ok {
			break
		}
		path = append(path, map[string]any{"id": id})
		id, _ = node["parent"].(string)
	}
	// path is leaf→root; walk it reversed
	reversed := make([]any, len(path))
	for i, e := range path {
		reversed[len(path)-1-i] = e
	}
	return c.Convert(ctx, &ShareData{Mapping: mapping, Linear: reversed}, fc)
}

// linearEntryID accepts both id-string entries and full node objects.
func linearEntryID(entry any) string {
	switch e := entry.(type) {
	case string:
		return e
	case map[string]any:
		id, _ := e["id"].(string)
		return id
	}
	return ""
}

func (c *Converter) convertNode(ctx context.Context, node map[string]any, fc *FlattenContext) (domain.RawMessage, bool) {
	msg, ok := node["message"].(map[string]any)
	if !ok {
		return domain.RawMessage{}, false
	}

	role := nodeRole(msg)
	if role != domain.RoleUser && role != domain.RoleAssistant {
		return domain.RawMessage{}, false
	}

	content, ok := msg["content"].(map[string]any)
	if !ok {
		return domain.RawMessage{}, false
	}
	ct, _ := content["content_type"].(string)
	if serverInternalContentTypes[ct] {
		return domain.RawMessage{}, false
	}

	if metadata, ok := msg["metadata"].(map[string]any); ok {
		for _, flag := range hiddenMetadataFlags {
			if b, ok := metadata[flag].(bool); ok && b {
				return domain.RawMessage{}, false
			}
		}
		if _, hasReasoning := metadata["reasoning_status"]; hasReasoning {
			return domain.RawMessage{}, false
		}
	}

	text, err := c.flatteners.Flatten(ctx, content, fc)
	if err != nil {
		c.logger.Debug("flatten failed, skipping node", "content_type", ct, "error", err)
		return domain.RawMessage{}, false
	}

	text = stripCitations(text)
	if strings.TrimSpace(text) == "" {
		return domain.RawMessage{}, false
	}
	return domain.RawMessage{Role: role, Content: text}, true
}

func nodeRole(msg map[string]any) domain.Role {
	author, ok := msg["author"].(map[string]any)
	if !ok {
		return ""
	}
	role, _ := author["role"].(string)
	return domain.Role(role)
}

// stripCitations removes citation tokens line by line, dropping lines
// left empty by the removal but keeping all other lines intact.
func stripCitations(text string) string {
	lines := strings.Split(text, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		stripped := line
		for _, p := range citationPatterns {
			stripped = p.ReplaceAllString(stripped, "")
		}
		if strings.TrimSpace(line) != "" && strings.TrimSpace(stripped) == "" {
			continue
		}
		out = append(out, stripped)
	}
	return strings.TrimSpace(strings.Join(out, "\n"))
}
