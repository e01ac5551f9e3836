package chatgpt

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sync"
	"time"

	"convograb/internal/adapter"
	"convograb/internal/domain"
	"convograb/internal/httpx"
)

const (
	sessionURL       = "https://chatgpt.com/api/auth/session"
	conversationBase = "https://chatgpt.com/backend-api/conversation/"
)

var extURLPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^https://chatgpt\.com/c/([a-zA-Z0-9-]+)`),
	regexp.MustCompile(`^https://chat\.openai\.com/c/([a-zA-Z0-9-]+)`),
}

// ExtAdapter extracts conversations through the authenticated backend
// API using the page context's cookies. The session token is cached per
// adapter instance with coalesced refresh.
type extBackend struct {
	client   *httpx.Client
	logger   *slog.Logger
	conv     *Converter
	patterns []*regexp.Regexp

	mu     sync.Mutex // guards tokens init; Parse may run concurrently
	tokens *tokenCache
}

// NewExtAdapter builds the authenticated ChatGPT adapter.
func NewExtAdapter(client *httpx.Client, logger *slog.Logger, extra ...*regexp.Regexp) domain.Adapter {
	b := &extBackend{
		client:   client,
		logger:   logger,
		conv:     NewConverter(NewFlattenerRegistry(), logger),
		patterns: adapter.MergePatterns(extURLPatterns, extra),
	}

	spec := adapter.Spec{
		ID:          "chatgpt-ext",
		Version:     "1.3.0",
		Provider:    domain.ProviderChatGPT,
		URLPatterns: b.patterns,
	}
	return adapter.NewExtAdapter(spec, b.getRawMessages)
}

// NewExtAdapterWithToken builds the authenticated adapter with a
// pre-issued bearer token, skipping the session endpoint entirely.
func NewExtAdapterWithToken(client *httpx.Client, logger *slog.Logger, token string, extra ...*regexp.Regexp) domain.Adapter {
	b := &extBackend{
		client:   client,
		logger:   logger,
		conv:     NewConverter(NewFlattenerRegistry(), logger),
		patterns: adapter.MergePatterns(extURLPatterns, extra),
		tokens: newTokenCache(func(ctx context.Context) (string, time.Time, error) {
			return token, time.Now().Add(24 * time.Hour), nil
		}),
	}

	spec := adapter.Spec{
		ID:          "chatgpt-ext",
		Version:     "1.3.0",
		Provider:    domain.ProviderChatGPT,
		URLPatterns: b.patterns,
	}
	return adapter.NewExtAdapter(spec, b.getRawMessages)
}

func (b *extBackend) getRawMessages(ctx context.Context, in domain.Input) (*adapter.Extraction, error) {
	convID := matchID(b.patterns, in.URL())
	if convID == "" {
		return nil, domain.NewAppError(domain.ErrInvalidInput, "cannot extract conversation id from "+in.URL())
	}

	token, err := b.bindTokens(in).Get(ctx)
	if err != nil {
		return nil, domain.WrapAppError(domain.ErrFetchFailed, "fetch access token", err)
	}

	var payload map[string]any
	err = b.client.FetchJSON(ctx, conversationBase+convID, &payload, httpx.Options{
		Headers: map[string]string{"Authorization": "Bearer " + token},
		Cookies: in.Cookies(),
	})
	if err != nil {
		return nil, err
	}

	mapping, ok := payload["mapping"].(map[string]any)
	if !ok {
		return nil, domain.NewAppError(domain.ErrParseFailed, "conversation payload has no mapping")
	}
	currentNode, _ := payload["current_node"].(string)

	fc := &FlattenContext{Cookies: in.Cookies(), Client: b.client, Logger: b.logger}
	var raws []domain.RawMessage
	if linear, ok := payload["linear_conversation"].([]any); ok && len(linear) > 0 {
		raws = b.conv.Convert(ctx, &ShareData{Mapping: mapping, Linear: linear}, fc)
	} else {
		raws = b.conv.ConvertFromCurrentNode(ctx, mapping, currentNode, fc)
	}
	return &adapter.Extraction{Messages: raws, ConversationID: convID}, nil
}

// bindTokens returns the adapter's token cache, creating it from the
// first input's cookies. The cache is keyed to this adapter instance
// and all concurrent callers must share it, or the coalesced refresh
// is lost.
func (b *extBackend) bindTokens(in domain.Input) *tokenCache {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.tokens == nil {
		b.tokens = newTokenCache(b.sessionRefresher(in))
	}
	return b.tokens
}

// sessionRefresher fetches a bearer token from the auth session
// endpoint using the page cookies.
func (b *extBackend) sessionRefresher(in domain.Input) refreshFunc {
	return func(ctx context.Context) (string, time.Time, error) {
		var session struct {
			AccessToken string `json:"accessToken"`
			Expires     string `json:"expires"`
		}
		err := b.client.FetchJSON(ctx, sessionURL, &session, httpx.Options{Cookies: in.Cookies()})
		if err != nil {
			return "", time.Time{}, err
		}
		if session.AccessToken == "" {
			return "", time.Time{}, fmt.Errorf("session response carries no access token")
		}
		expiresAt, err := time.Parse(time.RFC3339, session.Expires)
		if err != nil {
			// Missing or unparseable expiry: assume a short-lived token.
			expiresAt = time.Now().Add(10 * time.Minute)
		}
		return session.AccessToken, expiresAt, nil
	}
}
