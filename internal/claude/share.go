package claude

import (
	"context"
	"log/slog"
	"regexp"

	"convograb/internal/adapter"
	"convograb/internal/domain"
	"convograb/internal/httpx"
)

var shareURLPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^https://claude\.ai/share/([a-zA-Z0-9-]+)`),
}

// snapshotResponse is the chat_snapshots payload for public share
// links. Some deployments nest the conversation under "snapshot".
type snapshotResponse struct {
	UUID         string        `json:"uuid"`
	Name         string        `json:"name"`
	ChatMessages []chatMessage `json:"chat_messages"`
	Snapshot     *struct {
		UUID         string        `json:"uuid"`
		ChatMessages []chatMessage `json:"chat_messages"`
	} `json:"snapshot"`
}

// NewShareAdapter builds the Claude public share-link adapter.
func NewShareAdapter(client *httpx.Client, logger *slog.Logger, extra ...*regexp.Regexp) domain.Adapter {
	patterns := adapter.MergePatterns(shareURLPatterns, extra)
	spec := adapter.Spec{
		ID:          "claude-share",
		Version:     "1.1.0",
		Provider:    domain.ProviderClaude,
		URLPatterns: patterns,
	}

	return adapter.NewShareLinkAdapter(spec, func(ctx context.Context, url string) (*adapter.Extraction, error) {
		shareID := matchID(patterns, url)
		if shareID == "" {
			return nil, domain.NewAppError(domain.ErrInvalidShareLink, "cannot extract share id from "+url)
		}

		apiURL := "https://claude.ai/api/chat_snapshots/" + shareID + "?rendering_mode=messages&render_all_tools=true"

		var resp snapshotResponse
		if err := client.FetchJSON(ctx, apiURL, &resp, httpx.Options{}); err != nil {
			return nil, err
		}

		msgs := resp.ChatMessages
		convID := resp.UUID
		if len(msgs) == 0 && resp.Snapshot != nil {
			msgs = resp.Snapshot.ChatMessages
			convID = resp.Snapshot.UUID
		}
		if convID == "" {
			convID = shareID
		}

		return &adapter.Extraction{
			Messages:       convertMessages(msgs),
			ConversationID: convID,
		}, nil
	})
}
