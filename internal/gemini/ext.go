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

var extURLPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^https://gemini\.google\.com/app/([a-zA-Z0-9]+)`),
}

// NewExtAdapter builds the authenticated Gemini adapter. There is no
// JSON API to call directly: the adapter replays the web client's
// batchexecute RPC, using tokens scraped from the captured page and
// the session cookies from the page context.
func NewExtAdapter(client *httpx.Client, logger *slog.Logger, extra ...*regexp.Regexp) domain.Adapter {
	patterns := adapter.MergePatterns(extURLPatterns, extra)
	spec := adapter.Spec{
		ID:          "gemini-ext",
		Version:     "1.0.0",
		Provider:    domain.ProviderGemini,
		URLPatterns: patterns,
	}

	return adapter.NewExtAdapter(spec, func(ctx context.Context, in domain.Input) (*adapter.Extraction, error) {
		pageID := matchID(patterns, in.URL())
		if pageID == "" {
			return nil, domain.NewAppError(domain.ErrInvalidInput, "cannot extract conversation id from "+in.URL())
		}
		// The backend addresses conversations by a c_ prefixed id.
		convID := "c_" + pageID

		params, err := ScrapePageParams(in.HTML())
		if err != nil {
			return nil, err
		}

		inner, err := json.Marshal([]any{convID, 10})
		if err != nil {
			return nil, err
		}
		req, err := BuildRequest(rpcConversation, string(inner), "/app/"+pageID, params)
		if err != nil {
			return nil, err
		}

		raw, err := client.PostForm(ctx, req.URL, req.Body, httpx.Options{Cookies: in.Cookies()})
		if err != nil {
			return nil, err
		}
		payload, err := UnwrapResponse(raw, rpcConversation)
		if err != nil {
			return nil, domain.WrapAppError(domain.ErrParseFailed, "unexpected batchexecute response", err)
		}

		msgs, err := ExtractMessages(payload)
		if err != nil {
			return nil, domain.WrapAppError(domain.ErrParseFailed, "conversation payload changed shape", err)
		}

		return &adapter.Extraction{
			Messages:       msgs,
			ConversationID: convID,
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
