package chatgpt

import (
	"context"
	"log/slog"
	"regexp"

	"convograb/internal/adapter"
	"convograb/internal/domain"
	"convograb/internal/httpx"
)

var shareURLPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^https://chatgpt\.com/share/([a-zA-Z0-9-]+)`),
	regexp.MustCompile(`^https://chat\.openai\.com/share/([a-zA-Z0-9-]+)`),
}

// NewShareAdapter builds the ChatGPT public share-link adapter. It
// fetches the share page, decodes the Flight (or legacy) payload, and
// converts the node graph. Extra URL patterns from config extend the
// compiled-in ones; overrides with a capture group also feed share id
// extraction.
func NewShareAdapter(client *httpx.Client, logger *slog.Logger, extra ...*regexp.Regexp) domain.Adapter {
	conv := NewConverter(NewFlattenerRegistry(), logger)
	patterns := adapter.MergePatterns(shareURLPatterns, extra)

	spec := adapter.Spec{
		ID:          "chatgpt-share",
		Version:     "1.2.0",
		Provider:    domain.ProviderChatGPT,
		URLPatterns: patterns,
	}

	return adapter.NewShareLinkAdapter(spec, func(ctx context.Context, url string) (*adapter.Extraction, error) {
		shareID := matchID(patterns, url)
		if shareID == "" {
			return nil, domain.NewAppError(domain.ErrInvalidShareLink, "cannot extract share id from "+url)
		}

		html, err := client.FetchText(ctx, url, httpx.Options{})
		if err != nil {
			return nil, err
		}

		data, err := DecodeSharePage(html)
		if err != nil {
			return nil, domain.WrapAppError(domain.ErrParseFailed, "decode share page", err)
		}

		fc := &FlattenContext{SharedConversationID: shareID, Client: client, Logger: logger}
		raws := conv.Convert(ctx, data, fc)
		return &adapter.Extraction{Messages: raws, ConversationID: shareID}, nil
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
