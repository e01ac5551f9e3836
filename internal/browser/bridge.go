// Package browser drives a headless Chrome through chromedp to take
// page snapshots: the rendered HTML plus the session cookies, which is
// exactly what the DOM and authenticated adapters consume.
package browser

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/cdproto/storage"
	"github.com/chromedp/chromedp"
)

// Bridge manages headless Chrome instances for page capture.
type Bridge struct {
	profileDir string
	headless   bool
	logger     *slog.Logger
}

// BridgeConfig holds configuration for the browser bridge.
type BridgeConfig struct {
	ProfileDir string // Chrome user data directory (persists cookies/sessions)
	Headless   bool   // Run headless (true) or with visible UI (false)
	Logger     *slog.Logger
}

func NewBridge(cfg BridgeConfig) *Bridge {
	if cfg.ProfileDir == "" {
		home, _ := os.UserHomeDir()
		cfg.ProfileDir = filepath.Join(home, ".convograb", "chrome-profiles", "default")
	}
	return &Bridge{
		profileDir: cfg.ProfileDir,
		headless:   cfg.Headless,
		logger:     cfg.Logger,
	}
}

// NewContext creates a new chromedp context with the bridge's Chrome profile.
// The caller MUST call cancel() when done.
func (b *Bridge) NewContext(parentCtx context.Context) (context.Context, context.CancelFunc) {
	if err := os.MkdirAll(b.profileDir, 0o755); err != nil {
		b.logger.Error("failed to create profile dir", "dir", b.profileDir, "err", err)
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserDataDir(b.profileDir),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("exclude-switches", "enable-automation"),
		chromedp.UserAgent("Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"),
	)

	if b.headless {
		opts = append(opts, chromedp.Headless)
	} else {
		opts = append(opts, chromedp.Flag("headless", false))
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(parentCtx, opts...)
	taskCtx, taskCancel := chromedp.NewContext(allocCtx)

	cancelAll := func() {
		taskCancel()
		allocCancel()
	}

	return taskCtx, cancelAll
}

// Snapshot is a rendered page: the final DOM and the cookies visible
// to the page, enough to replay the site's own backend calls.
type Snapshot struct {
	URL     string
	HTML    string
	Cookies []*http.Cookie
}

// Capture navigates to url, waits for the page to settle, and returns
// a snapshot. readySelector is an optional CSS selector to wait for
// before reading the DOM; chat apps render their transcript well after
// the document is ready.
func (b *Bridge) Capture(ctx context.Context, url, readySelector string) (*Snapshot, error) {
	taskCtx, cancel := b.NewContext(ctx)
	defer cancel()

	taskCtx, taskCancel := context.WithTimeout(taskCtx, 90*time.Second)
	defer taskCancel()

	actions := []chromedp.Action{
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
	}
	if readySelector != "" {
		actions = append(actions, chromedp.WaitVisible(readySelector, chromedp.ByQuery))
	}
	actions = append(actions, chromedp.Sleep(2*time.Second))

	var html string
	var cookies []*http.Cookie
	actions = append(actions,
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
		chromedp.ActionFunc(func(ctx context.Context) error {
			raw, err := storage.GetCookies().Do(ctx)
			if err != nil {
				return err
			}
			for _, ck := range raw {
				if !cookieMatchesURL(ck.Domain, url) {
					continue
				}
				cookies = append(cookies, &http.Cookie{
					Name:   ck.Name,
					Value:  ck.Value,
					Domain: ck.Domain,
					Path:   ck.Path,
				})
			}
			return nil
		}),
	)

	if err := chromedp.Run(taskCtx, actions...); err != nil {
		return nil, fmt.Errorf("capture %s: %w", url, err)
	}

	b.logger.Debug("page captured", "url", url, "html_bytes", len(html), "cookies", len(cookies))
	return &Snapshot{URL: url, HTML: html, Cookies: cookies}, nil
}

// cookieMatchesURL keeps only cookies whose domain applies to the
// captured page; the browser profile accumulates cookies for every
// site the user ever logged into.
func cookieMatchesURL(domain, url string) bool {
	d := strings.TrimPrefix(domain, ".")
	if d == "" {
		return false
	}
	return strings.Contains(url, d)
}

// Login opens a visible browser for the user to log in manually.
// After login, cookies persist in the profile directory.
func (b *Bridge) Login(ctx context.Context, url string) error {
	b.logger.Info("opening browser for login", "url", url)

	// Force visible browser for login
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserDataDir(b.profileDir),
		chromedp.Flag("headless", false),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.Flag("exclude-switches", "enable-automation"),
		chromedp.UserAgent("Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/131.0.0.0 Safari/537.36"),
	)

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	defer allocCancel()

	taskCtx, taskCancel := chromedp.NewContext(allocCtx)
	defer taskCancel()

	if err := chromedp.Run(taskCtx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("navigate to login page: %w", err)
	}

	b.logger.Info("browser opened. Please log in manually. Press Ctrl+C when done.")

	<-ctx.Done()

	b.logger.Info("login session saved", "profile", b.profileDir)
	return nil
}

// ReadySelector returns the CSS selector Capture should wait for on a
// given provider's chat page, or "" when document-ready is enough.
func ReadySelector(url string) string {
	switch {
	case strings.Contains(url, "chatgpt.com") || strings.Contains(url, "chat.openai.com"):
		return "[data-message-author-role], .markdown"
	case strings.Contains(url, "claude.ai"):
		return "[data-testid='conversation-turn'], .font-claude-message"
	case strings.Contains(url, "gemini.google.com"):
		return "message-content, .conversation-container"
	default:
		return ""
	}
}
