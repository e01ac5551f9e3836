package claude

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"

	"convograb/internal/adapter"
	"convograb/internal/domain"
	"convograb/internal/httpx"
)

const orgCookieName = "lastActiveOrg"

var extURLPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^https://claude\.ai/chat/([a-zA-Z0-9-]+)`),
}

// conversationResponse is the chat_conversations payload.
type conversationResponse struct {
	UUID         string        `json:"uuid"`
	Name         string        `json:"name"`
	ChatMessages []chatMessage `json:"chat_messages"`
}

// NewExtAdapter builds the authenticated Claude adapter. The org id
// comes from the lastActiveOrg cookie in the page context; there is no
// separate token exchange.
func NewExtAdapter(client *httpx.Client, logger *slog.Logger, extra ...*regexp.Regexp) domain.Adapter {
	patterns := adapter.MergePatterns(extURLPatterns, extra)
	spec := adapter.Spec{
		ID:          "claude-ext",
		Version:     "1.1.0",
		Provider:    domain.ProviderClaude,
		URLPatterns: patterns,
	}

	return adapter.NewExtAdapter(spec, func(ctx context.Context, in domain.Input) (*adapter.Extraction, error) {
		convID := matchID(patterns, in.URL())
		if convID == "" {
			return nil, domain.NewAppError(domain.ErrInvalidInput, "cannot extract conversation id from "+in.URL())
		}

		orgID := ""
		for _, ck := range in.Cookies() {
			if ck.Name == orgCookieName {
				orgID = ck.Value
				break
			}
		}
		if orgID == "" {
			return nil, domain.NewAppError(domain.ErrInvalidInput,
				"no "+orgCookieName+" cookie in page context; cannot determine organization")
		}

		url := fmt.Sprintf(
			"https://claude.ai/api/organizations/%s/chat_conversations/%s?tree=True&rendering_mode=messages&render_all_tools=true",
			orgID, convID)

		var resp conversationResponse
		if err := client.FetchJSON(ctx, url, &resp, httpx.Options{Cookies: in.Cookies()}); err != nil {
			return nil, err
		}

		return &adapter.Extraction{
			Messages:       convertMessages(resp.ChatMessages),
			ConversationID: resp.UUID,
		}, nil
	})
}

func matchID(patterns []*regexp.Regexp, url string) string {
	for _, p := range patterns {
		if m := p.FindStringSubmatch(url); len(m) > 1 {
			return m[1]
		}
	}
	return ""
}
