// oxv is a terminal viewer for image galleries served by source plugins.
// Plugins are Go shared objects or Lua scripts installed from descriptors;
// sites without a plugin can be searched with the built-in generic section.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/litescript/oxviewer/internal/config"
	"github.com/litescript/oxviewer/internal/logging"
	"github.com/litescript/oxviewer/internal/pluginman"
	"github.com/litescript/oxviewer/internal/theme"
	"github.com/litescript/oxviewer/internal/tui"
	"github.com/litescript/oxviewer/internal/version"
	"github.com/litescript/oxviewer/pkg/core"
)

func main() {
	var (
		showVersion = flag.Bool("version", false, "print the version and exit")
		configPath  = flag.String("config", config.ConfigPath(), "config file")
		install     = flag.String("install", "", "install the plugin described by an .ini file and exit")
		noUpdate    = flag.Bool("no-update-check", false, "skip the startup release check")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("oxv v%s\n", version.Version)
		return
	}

	if err := run(*configPath, *install, !*noUpdate); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(configPath, install string, checkUpdates bool) error {
	cfg, err := config.LoadFile(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: failed to load config: %v\n", err)
	}

	// The TUI owns the terminal; log to a file unless installing headless
	logFile := cfg.Log.File
	if install != "" {
		logFile = "stderr"
	}
	logger, err := logging.New(cfg.Log.Level, logFile, cfg.Log.Development)
	if err != nil {
		return fmt.Errorf("logging: %w", err)
	}
	defer logger.Sync()

	svc, err := newServices(cfg, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	ctx := context.Background()
	if err := svc.plugins.Initialize(ctx); err != nil {
		return fmt.Errorf("initialize plugins: %w", err)
	}

	if install != "" {
		return installHeadless(ctx, svc.plugins, install)
	}

	events := tui.NewEvents()
	svc.plugins.RegisterListener(events)
	defer svc.plugins.UnregisterListener(events)

	// Drop-ins: install what's there, then follow the directory
	watcher, err := pluginman.NewWatcher(svc.plugins.DropinDir(), svc.plugins, logger.Named("dropins"))
	if err != nil {
		logger.Warn("drop-in watcher unavailable", zap.Error(err))
	} else {
		defer watcher.Stop()
		go watcher.Scan(ctx)
	}

	if themeWatcher, err := theme.NewWatcher(homeDir(), events.ThemeChanged, logger.Named("theme")); err == nil {
		defer themeWatcher.Stop()
	}

	deps := tui.Deps{
		Plugins:  svc.plugins,
		Sections: svc.sections,
		Events:   events,
		Logger:   logger.Named("tui"),
		Timeout:  cfg.HTTP.Timeout.Duration * 2,
	}
	if watcher != nil {
		deps.Rescan = watcher.Scan
	}
	if checkUpdates {
		deps.Updates = &version.Checker{Client: svc.http, JSON: core.JSON.MustGet()}
	}

	p := tea.NewProgram(tui.NewModel(deps), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		return err
	}
	return nil
}

func homeDir() string {
	home, _ := os.UserHomeDir()
	return home
}
