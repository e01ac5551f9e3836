package gemini

import (
	"context"
	"encoding/json"
	"log/slog"
	"regexp"

	"convograb/internal/adapter"
	"convograb/internal/domain"
	"convograb/internal/httpx"
)

var shareURLPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^https://gemini\.google\.com/share/([a-zA-Z0-9]+)`),
}

// NewShareAdapter builds the Gemini public share-link adapter. Share
// pages are public but the conversation still arrives over
// batchexecute, so the adapter fetches the page once for its tokens
// and then replays the share RPC.
func NewShareAdapter(client *httpx.Client, logger *slog.Logger, extra ...*regexp.Regexp) domain.Adapter {
	patterns := adapter.MergePatterns(shareURLPatterns, extra)
	spec := adapter.Spec{
		ID:          "gemini-share",
		Version:     "1.0.0",
		Provider:    domain.ProviderGemini,
		URLPatterns: patterns,
	}

	return adapter.NewShareLinkAdapter(spec, func(ctx context.Context, url string) (*adapter.Extraction, error) {
		shareID := matchID(patterns, url)
		if shareID == "" {
			return nil, domain.NewAppError(domain.ErrInvalidShareLink, "cannot extract share id from "+url)
		}

		page, err := client.FetchText(ctx, url, httpx.Options{})
		if err != nil {
			return nil, err
		}
		params, err := ScrapePageParams(page)
		if err != nil {
			return nil, err
		}

		inner, err := json.Marshal([]any{shareID})
		if err != nil {
			return nil, err
		}
		req, err := BuildRequest(rpcSharedChat, string(inner), "/share/"+shareID, params)
		if err != nil {
			return nil, err
		}

		raw, err := client.PostForm(ctx, req.URL, req.Body, httpx.Options{})
		if err != nil {
			return nil, err
		}
		payload, err := UnwrapResponse(raw, rpcSharedChat)
		if err != nil {
			return nil, domain.WrapAppError(domain.ErrParseFailed, "unexpected batchexecute response", err)
		}

		msgs, err := ExtractMessages(payload)
		if err != nil {
			return nil, domain.WrapAppError(domain.ErrParseFailed, "share payload changed shape", err)
		}

		convID := FindConversationID(payload)
		if convID == "" {
			convID = shareID
		}

		return &adapter.Extraction{
			Messages:       msgs,
			ConversationID: convID,
		}, nil
	})
}
