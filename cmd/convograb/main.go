package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"convograb/internal/browser"
	"convograb/internal/config"
	"convograb/internal/domain"
	"convograb/internal/engine"
	"convograb/internal/metrics"
	"convograb/internal/store"

	"github.com/spf13/cobra"
)

var (
	version    = "0.1.0"
	logger     *slog.Logger
	configPath string // overridable via --config flag
)

func main() {
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))

	root := &cobra.Command{
		Use:   "convograb",
		Short: "convograb: extract AI chat conversations into canonical JSON",
		Long:  "convograb parses ChatGPT, Claude, and Gemini conversations from share links, authenticated sessions, and page snapshots.",
	}

	root.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config.json (default: ~/.convograb/config.json)")

	root.AddCommand(initCmd())
	root.AddCommand(parseCmd())
	root.AddCommand(captureCmd())
	root.AddCommand(loginCmd())
	root.AddCommand(statusCmd())
	root.AddCommand(historyCmd())
	root.AddCommand(configCmd())
	root.AddCommand(metricsCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// resolveConfigPath returns the config path from --config flag or default.
func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return config.DefaultConfigPath()
}

// loadConfig loads the config file, falling back to defaults, and
// rebuilds the logger at the configured level.
func loadConfig() *config.Config {
	cfgPath := resolveConfigPath()
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger.Warn("config not found, using defaults", "path", cfgPath, "err", err)
		cfg = config.Defaults()
	}

	level := slog.LevelInfo
	switch cfg.General.LogLevel {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	out := os.Stderr
	if cfg.General.LogFile != "" {
		if f, err := os.OpenFile(cfg.General.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644); err == nil {
			out = f
		}
	}
	logger = slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))

	if cfg.General.RulesDir != "" {
		if rules, err := config.LoadRules(cfg.General.RulesDir, logger); err == nil {
			config.ApplyRules(cfg, rules)
		} else {
			logger.Warn("cannot load selector rules", "dir", cfg.General.RulesDir, "err", err)
		}
	}
	return cfg
}

// openHistory opens the archive store when history is enabled.
func openHistory(cfg *config.Config) *store.SQLiteStore {
	if !cfg.History.Enabled {
		return nil
	}
	st, err := store.NewSQLiteStore(cfg.History.DBPath, logger)
	if err != nil {
		logger.Warn("cannot open history store, continuing without archive", "err", err)
		return nil
	}
	return st
}

func initCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Initialize config directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgDir := config.DefaultConfigDir()
			cfgPath := config.DefaultConfigPath()
			if err := os.MkdirAll(cfgDir, 0o755); err != nil {
				return err
			}
			cfg := config.Defaults()
			if err := config.Save(cfgPath, cfg); err != nil {
				return err
			}
			logger.Info("initialized", "config", cfgPath)
			return nil
		},
	}
}

func parseCmd() *cobra.Command {
	var (
		outPath  string
		source   string
		htmlPath string
		noSave   bool
	)
	cmd := &cobra.Command{
		Use:   "parse [url]",
		Short: "Parse a conversation into canonical JSON",
		Long: "Parses a conversation from a share link, an authenticated session, or a saved page snapshot.\n" +
			"Share links are fetched directly; other URLs are captured through headless Chrome first.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			url := strings.TrimSpace(args[0])
			cfg := loadConfig()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			hist := openHistory(cfg)
			if hist != nil {
				defer hist.Close()
			}
			if noSave {
				hist = nil
			}

			eng, err := engine.New(engine.Options{Config: cfg, Logger: logger, Store: hist})
			if err != nil {
				return err
			}

			in, err := buildInput(ctx, cfg, url, source, htmlPath)
			if err != nil {
				return err
			}

			res, err := eng.Parse(ctx, in)
			if err != nil {
				if ae, ok := domain.AsAppError(err); ok {
					logger.Error("parse failed", "code", ae.Code, "message", ae.Message)
				}
				return err
			}

			data, err := json.MarshalIndent(res.Conversation, "", "  ")
			if err != nil {
				return err
			}
			if outPath != "" {
				if err := os.WriteFile(outPath, data, 0o644); err != nil {
					return err
				}
				logger.Info("conversation written", "path", outPath, "messages", len(res.Conversation.Messages))
				return nil
			}
			fmt.Println(string(data))
			return nil
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "write JSON to file instead of stdout")
	cmd.Flags().StringVar(&source, "source", "auto", "input surface: auto, share, ext, dom")
	cmd.Flags().StringVar(&htmlPath, "html", "", "parse a saved HTML snapshot instead of capturing the page")
	cmd.Flags().BoolVar(&noSave, "no-save", false, "skip archiving the result to history")
	return cmd
}

// buildInput decides which extraction surface to feed the engine.
// Share links need nothing else; ext and dom inputs need the rendered
// page, either from a saved snapshot or a fresh browser capture.
func buildInput(ctx context.Context, cfg *config.Config, url, source, htmlPath string) (domain.Input, error) {
	if source == "auto" {
		if engine.IsShareURL(url) {
			source = "share"
		} else {
			source = "ext"
		}
	}

	switch source {
	case "share":
		return domain.NewShareLinkInput(url), nil
	case "ext", "dom":
	default:
		return domain.Input{}, fmt.Errorf("unknown source %q (want auto, share, ext, or dom)", source)
	}

	if htmlPath != "" {
		data, err := os.ReadFile(htmlPath)
		if err != nil {
			return domain.Input{}, fmt.Errorf("read snapshot: %w", err)
		}
		if source == "dom" {
			return domain.NewDOMInput(string(data), url), nil
		}
		return domain.NewExtInput(string(data), url, nil), nil
	}

	bridge := browser.NewBridge(browser.BridgeConfig{
		ProfileDir: cfg.Browser.ProfileDir,
		Headless:   cfg.Browser.Headless,
		Logger:     logger,
	})
	metrics.CapturesTotal.Inc()
	snap, err := bridge.Capture(ctx, url, browser.ReadySelector(url))
	if err != nil {
		return domain.Input{}, fmt.Errorf("capture page: %w", err)
	}
	if source == "dom" {
		return domain.NewDOMInput(snap.HTML, url), nil
	}
	return domain.NewExtInput(snap.HTML, url, snap.Cookies), nil
}

func captureCmd() *cobra.Command {
	var outPath string
	cmd := &cobra.Command{
		Use:   "capture [url]",
		Short: "Capture a rendered page snapshot to a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			bridge := browser.NewBridge(browser.BridgeConfig{
				ProfileDir: cfg.Browser.ProfileDir,
				Headless:   cfg.Browser.Headless,
				Logger:     logger,
			})
			metrics.CapturesTotal.Inc()
			snap, err := bridge.Capture(ctx, args[0], browser.ReadySelector(args[0]))
			if err != nil {
				return err
			}
			if outPath == "" {
				outPath = "snapshot.html"
			}
			if err := os.WriteFile(outPath, []byte(snap.HTML), 0o644); err != nil {
				return err
			}
			logger.Info("snapshot written", "path", outPath, "bytes", len(snap.HTML), "cookies", len(snap.Cookies))
			return nil
		},
	}
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "snapshot file path (default: snapshot.html)")
	return cmd
}

var loginURLs = map[string]string{
	"chatgpt": "https://chatgpt.com",
	"claude":  "https://claude.ai",
	"gemini":  "https://gemini.google.com",
}

func loginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login [provider]",
		Short: "Open browser to log in to a provider (chatgpt, claude, gemini)",
		Long:  "Opens a visible Chrome window for you to log in. Cookies persist in the browser profile for later headless captures.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			url, ok := loginURLs[args[0]]
			if !ok {
				return fmt.Errorf("unknown provider: %s", args[0])
			}
			cfg := loadConfig()

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			bridge := browser.NewBridge(browser.BridgeConfig{
				ProfileDir: cfg.Browser.ProfileDir,
				Headless:   false,
				Logger:     logger,
			})
			return bridge.Login(ctx, url)
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show configuration and adapter status",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				logger.Info("config", "path", cfgPath, "loaded", false)
				cfg = config.Defaults()
			} else {
				logger.Info("config", "path", cfgPath, "loaded", true)
			}

			eng, err := engine.New(engine.Options{Config: cfg, Logger: logger})
			if err != nil {
				return err
			}
			logger.Info("adapters", "registered", strings.Join(eng.Registry().IDs(), ", "))

			if cfg.History.Enabled {
				st, err := store.NewSQLiteStore(cfg.History.DBPath, logger)
				if err != nil {
					logger.Info("history", "enabled", true, "open", false, "err", err)
					return nil
				}
				defer st.Close()
				list, err := st.ListConversations(context.Background(), 1000)
				if err == nil {
					logger.Info("history", "enabled", true, "conversations", len(list), "db", cfg.History.DBPath)
				}
			} else {
				logger.Info("history", "enabled", false)
			}
			logger.Info("version", "convograb", version)
			return nil
		},
	}
}

func historyCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect archived conversations",
	}

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "List recently parsed conversations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			st, err := store.NewSQLiteStore(cfg.History.DBPath, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			rows, err := st.ListConversations(context.Background(), limit)
			if err != nil {
				return err
			}
			for _, r := range rows {
				fmt.Printf("%s\t%s\t%s\t%d messages\t%s\n",
					r.ID, r.Provider, r.SourceType, r.MessageCount, r.ParsedAt.Format("2006-01-02 15:04"))
			}
			return nil
		},
	}
	list.Flags().IntVarP(&limit, "limit", "n", 20, "max conversations to list")
	cmd.AddCommand(list)

	cmd.AddCommand(&cobra.Command{
		Use:   "show [id]",
		Short: "Print an archived conversation as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			st, err := store.NewSQLiteStore(cfg.History.DBPath, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			conv, err := st.GetConversation(context.Background(), args[0])
			if err != nil {
				return err
			}
			if conv == nil {
				return fmt.Errorf("no archived conversation with id %s", args[0])
			}
			data, _ := json.MarshalIndent(conv, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "prune",
		Short: "Delete conversations past the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			st, err := store.NewSQLiteStore(cfg.History.DBPath, logger)
			if err != nil {
				return err
			}
			defer st.Close()

			n, err := st.Prune(context.Background(), cfg.History.RetentionDays)
			if err != nil {
				return err
			}
			logger.Info("pruned", "conversations", n, "retentionDays", cfg.History.RetentionDays)
			return nil
		},
	})

	return cmd
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "View and modify configuration",
		Long:  "Get, set, and list configuration values. Changes are saved to the config file.",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "get [path]",
		Short: "Get a config value (e.g. http.timeoutSeconds)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			val, err := config.GetByPath(cfg, args[0])
			if err != nil {
				return err
			}
			data, _ := json.MarshalIndent(val, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "set [path] [value]",
		Short: "Set a config value (e.g. browser.headless false)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if err := config.SetByPath(cfg, args[0], args[1]); err != nil {
				return fmt.Errorf("set value: %w", err)
			}
			if err := config.Save(cfgPath, cfg); err != nil {
				return fmt.Errorf("save config: %w", err)
			}
			logger.Info("config updated", "path", args[0], "value", args[1], "file", cfgPath)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List all config values",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath := resolveConfigPath()
			cfg, err := config.Load(cfgPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			sanitized := config.Sanitize(cfg)
			data, _ := json.MarshalIndent(sanitized, "", "  ")
			fmt.Println(string(data))
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show config file path",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println(resolveConfigPath())
		},
	})

	return cmd
}

func metricsCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Serve Prometheus metrics over HTTP",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfig()
			endpoint := cfg.Metrics.Endpoint
			if endpoint == "" {
				endpoint = "/metrics"
			}

			mux := http.NewServeMux()
			mux.HandleFunc(endpoint, metrics.Collector.Handler())

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv := &http.Server{Addr: addr, Handler: mux}
			go func() {
				<-ctx.Done()
				srv.Close()
			}()
			logger.Info("serving metrics", "addr", addr, "endpoint", endpoint)
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				return err
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:9090", "listen address")
	return cmd
}
