// Package engine assembles the extraction pipeline: the shared HTTP
// client, the adapter registry with every enabled provider adapter,
// metrics, and the optional history archive.
package engine

import (
	"context"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"convograb/internal/adapter"
	"convograb/internal/chatgpt"
	"convograb/internal/claude"
	"convograb/internal/config"
	"convograb/internal/domain"
	"convograb/internal/gemini"
	"convograb/internal/httpx"
	"convograb/internal/metrics"
	"convograb/internal/store"
)

// Engine is the top-level entry point for parsing conversations.
type Engine struct {
	registry *adapter.Registry
	client   *httpx.Client
	history  *store.SQLiteStore
	logger   *slog.Logger
}

// Options configures New. Store is optional; when nil, parsed
// conversations are not archived.
type Options struct {
	Config *config.Config
	Logger *slog.Logger
	Store  *store.SQLiteStore
}

// New wires the default adapters for every enabled provider. Adapter
// registration order matters only within one input kind; share
// adapters are registered first so public links never touch an
// authenticated path.
func New(opts Options) (*Engine, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Defaults()
	}

	client := httpx.New(time.Duration(cfg.HTTP.TimeoutSeconds)*time.Second, opts.Logger)
	registry := adapter.NewRegistry(opts.Logger)

	e := &Engine{
		registry: registry,
		client:   client,
		history:  opts.Store,
		logger:   opts.Logger,
	}

	type entry struct {
		provider string
		build    func(pc config.ProviderConfig, extra []*regexp.Regexp) domain.Adapter
	}
	entries := []entry{
		{"chatgpt", func(pc config.ProviderConfig, extra []*regexp.Regexp) domain.Adapter {
			return chatgpt.NewShareAdapter(client, opts.Logger, extra...)
		}},
		{"claude", func(pc config.ProviderConfig, extra []*regexp.Regexp) domain.Adapter {
			return claude.NewShareAdapter(client, opts.Logger, extra...)
		}},
		{"gemini", func(pc config.ProviderConfig, extra []*regexp.Regexp) domain.Adapter {
			return gemini.NewShareAdapter(client, opts.Logger, extra...)
		}},
		{"chatgpt", func(pc config.ProviderConfig, extra []*regexp.Regexp) domain.Adapter {
			if pc.AuthToken != "" {
				return chatgpt.NewExtAdapterWithToken(client, opts.Logger, pc.AuthToken, extra...)
			}
			return chatgpt.NewExtAdapter(client, opts.Logger, extra...)
		}},
		{"claude", func(pc config.ProviderConfig, extra []*regexp.Regexp) domain.Adapter {
			return claude.NewExtAdapter(client, opts.Logger, extra...)
		}},
		{"gemini", func(pc config.ProviderConfig, extra []*regexp.Regexp) domain.Adapter {
			return gemini.NewExtAdapter(client, opts.Logger, extra...)
		}},
		{"chatgpt", func(pc config.ProviderConfig, extra []*regexp.Regexp) domain.Adapter {
			return chatgpt.NewDOMAdapter(pc.Selectors, opts.Logger, extra...)
		}},
	}

	// URL pattern overrides from config extend every adapter of the
	// provider, so a host rename is a config edit, not a rebuild.
	overrides := make(map[string][]*regexp.Regexp, len(cfg.Providers))
	for name, pc := range cfg.Providers {
		overrides[name] = compilePatterns(pc.URLPatterns, opts.Logger)
	}

	for _, ent := range entries {
		pc, ok := cfg.Providers[ent.provider]
		if ok && !pc.Enabled {
			continue
		}
		if err := registry.Register(ent.build(pc, overrides[ent.provider])); err != nil {
			return nil, err
		}
	}

	return e, nil
}

// compilePatterns turns configured URL pattern strings into regexps.
// Validate rejects broken patterns at load time; anything that still
// slips through (a hand-built Config) is skipped with a warning rather
// than failing engine construction.
func compilePatterns(raw []string, logger *slog.Logger) []*regexp.Regexp {
	var out []*regexp.Regexp
	for _, pat := range raw {
		re, err := regexp.Compile(pat)
		if err != nil {
			logger.Warn("skipping invalid url pattern override", "pattern", pat, "err", err)
			continue
		}
		out = append(out, re)
	}
	return out
}

// Registry exposes the dispatch layer so callers can register custom
// adapters ahead of the defaults' fallbacks.
func (e *Engine) Registry() *adapter.Registry { return e.registry }

// Parse routes the input through the registry, records metrics, and
// archives the result when a history store is attached.
func (e *Engine) Parse(ctx context.Context, in domain.Input) (*domain.ParseResult, error) {
	metrics.ParsesTotal.Inc()
	metrics.ActiveParses.Inc()
	defer metrics.ActiveParses.Dec()

	start := time.Now()
	res, err := e.registry.ParseWithAdapters(ctx, in)
	metrics.ParseLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.ParseFailures.Inc()
		return nil, err
	}

	if e.history != nil {
		if saveErr := e.history.SaveConversation(ctx, res.Conversation); saveErr != nil {
			e.logger.Warn("cannot archive conversation", "id", res.Conversation.ID, "err", saveErr)
		}
	}
	return res, nil
}

// ParseShareURL is the convenience path for public share links.
func (e *Engine) ParseShareURL(ctx context.Context, url string) (*domain.ParseResult, error) {
	return e.Parse(ctx, domain.NewShareLinkInput(url))
}

var shareURLRe = regexp.MustCompile(`^https://(chatgpt\.com|chat\.openai\.com|claude\.ai|gemini\.google\.com)/share/`)

// IsShareURL reports whether a URL is a public share link, which can be
// parsed without any browser capture.
func IsShareURL(url string) bool {
	return shareURLRe.MatchString(strings.TrimSpace(url))
}
