package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/MatusOllah/slogcolor"

	"github.com/selfpatch/sovdtui/internal/config"
	"github.com/selfpatch/sovdtui/internal/prefs"
	"github.com/selfpatch/sovdtui/internal/sovd"
	"github.com/selfpatch/sovdtui/internal/state"
	"github.com/selfpatch/sovdtui/internal/ui"
)

// Options configure the sovdtui application.
type Options struct {
	ConfigPath string
	PrefsPath  string // empty uses default ~/.config/sovdtui/prefs.toml
	ServerURL  string // overrides prefs and config when set
	BasePath   string // overrides config when set
	PollEvery  int    // seconds; zero uses config/default
	DebugLog   string // file to write debug logs to; empty disables
}

// Run boots the TUI until the context is cancelled.
func Run(ctx context.Context, opts Options) error {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	prefsPath := opts.PrefsPath
	if prefsPath == "" {
		prefsPath = prefs.DefaultPath()
	}
	userPrefs := prefs.Load(prefsPath)

	// Flag beats remembered URL beats config default.
	serverURL := opts.ServerURL
	if serverURL == "" {
		serverURL = userPrefs.ServerURL
	}
	if serverURL == "" {
		serverURL = cfg.ServerURL
	}
	basePath := opts.BasePath
	if basePath == "" {
		basePath = cfg.BasePath
	}

	debugLog := opts.DebugLog
	if debugLog == "" {
		debugLog = cfg.DebugLog
	}
	logger := newLogger(debugLog)

	dial := func(url string) (sovd.API, error) {
		return sovd.NewClient(url, basePath, logger)
	}

	store := state.New(state.Options{
		Dial:   dial,
		Logger: logger,
		OnConnected: func(url string) {
			p := prefs.Load(prefsPath)
			p.ServerURL = url
			_ = prefs.Save(prefsPath, p)
		},
	})
	defer store.Close()

	interval := time.Duration(cfg.PollIntervalSeconds) * time.Second
	if opts.PollEvery > 0 {
		interval = time.Duration(opts.PollEvery) * time.Second
	}

	poller := NewPoller(store, interval, logger)
	poller.Start(ctx)

	return ui.Run(ui.Options{
		Context:   ctx,
		Store:     store,
		Poller:    poller,
		ServerURL: serverURL,
		ThemeName: userPrefs.Theme,
		PrefsPath: prefsPath,
	})
}

// newLogger writes debug logs to the given file, or discards everything
// when no file is configured. Stdout/stderr belong to the TUI.
func newLogger(path string) *slog.Logger {
	if path == "" {
		return slog.New(slog.DiscardHandler)
	}
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return slog.New(slog.DiscardHandler)
	}
	handlerOpts := *slogcolor.DefaultOptions
	handlerOpts.Level = slog.LevelDebug
	handlerOpts.NoColor = true
	return slog.New(slogcolor.NewHandler(file, &handlerOpts))
}
