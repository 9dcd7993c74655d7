package main

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/litescript/oxviewer/internal/cache"
	"github.com/litescript/oxviewer/internal/config"
	"github.com/litescript/oxviewer/internal/luaplugin"
	"github.com/litescript/oxviewer/internal/pluginman"
	"github.com/litescript/oxviewer/internal/scraper"
	"github.com/litescript/oxviewer/pkg/core"
	"github.com/litescript/oxviewer/pkg/dom"
	"github.com/litescript/oxviewer/pkg/httpc"
	"github.com/litescript/oxviewer/pkg/json"
	"github.com/litescript/oxviewer/pkg/plugin"
	"github.com/litescript/oxviewer/pkg/source"
)

// services are the process-wide objects shared by plugins and the UI.
type services struct {
	cfg     config.Config
	http    *httpc.Client
	dom     dom.Factory
	plugins *pluginman.Manager
	ui      *core.SerialDispatcher
	builtin []source.Section
	closers []func() error
}

func newServices(cfg config.Config, logger *zap.Logger) (*services, error) {
	svc := &services{
		cfg: cfg,
		dom: dom.NewFactory(),
		ui:  core.NewSerialDispatcher(),
	}

	opts := []httpc.Option{
		httpc.WithLogger(logger.Named("http")),
		httpc.WithTimeout(cfg.HTTP.Timeout.Duration),
		httpc.WithRateLimit(cfg.HTTP.RateLimit, cfg.HTTP.Burst),
	}
	if cfg.HTTP.UserAgent != "" {
		opts = append(opts, httpc.WithUserAgent(cfg.HTTP.UserAgent))
	}
	if c := svc.newCache(logger); c != nil {
		opts = append(opts, httpc.WithCache(c, cfg.Cache.TTL.Duration))
	}
	svc.http = httpc.NewClient(opts...)
	svc.builtin = svc.genericSections()

	svc.plugins = pluginman.New(cfg.Home,
		[]plugin.Loader{
			pluginman.GoLoader{},
			&luaplugin.Loader{Logger: logger.Named("lua")},
		},
		pluginman.WithLogger(logger.Named("plugins")),
		pluginman.WithDispatcher(svc.ui),
		pluginman.WithHTTPClient(svc.http),
	)

	// Plugins reach the shared services through core
	for _, err := range []error{
		core.UI.Set(svc.ui),
		core.JSON.Set(json.NewFactory()),
		core.DOM.Set(svc.dom),
		core.HTTP.Set(svc.http),
		core.Plugins.Set(svc.plugins),
	} {
		if err != nil {
			return nil, err
		}
	}
	return svc, nil
}

// newCache picks the response cache. An unreachable Redis falls back to
// memory so a missing server doesn't keep the app from starting.
func (s *services) newCache(logger *zap.Logger) httpc.Cache {
	switch s.cfg.Cache.Backend {
	case "none", "":
		return nil
	case "redis":
		r, err := cache.NewRedis(s.cfg.Cache.Redis)
		if err == nil {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			err = r.Ping(ctx)
			cancel()
		}
		if err == nil {
			s.closers = append(s.closers, r.Close)
			return r
		}
		if r != nil {
			_ = r.Close()
		}
		logger.Warn("redis cache unavailable, using memory", zap.Error(err))
	case "memory":
	default:
		logger.Warn("unknown cache backend, using memory", zap.String("backend", s.cfg.Cache.Backend))
	}
	return cache.NewMemory(0)
}

// genericSections builds a section per configured site, plus one searching
// all of them when there are several.
func (s *services) genericSections() []source.Section {
	var generic []source.Section
	for _, src := range s.cfg.EnabledSources() {
		generic = append(generic, scraper.NewGenericSection(src.Name, src.URL, s.http, s.dom))
	}
	if len(generic) > 1 {
		generic = append([]source.Section{scraper.NewMultiSection("All sites", generic...)}, generic...)
	}
	return generic
}

// sections lists the built-in generic sections followed by the sections of
// every loaded plugin.
func (s *services) sections() []source.Section {
	sections := append([]source.Section(nil), s.builtin...)
	return append(sections, s.plugins.Sections()...)
}

func (s *services) Close() {
	s.ui.Close()
	for _, c := range s.closers {
		_ = c()
	}
}

// cliListener prints install progress for -install.
type cliListener struct {
	plugin.NopListener
}

func (*cliListener) OnInstallStart(info plugin.Info) {
	fmt.Printf("Installing %s\n", info)
}

func (*cliListener) OnInstallProgress(info plugin.Info, progress float64) {
	fmt.Printf("\r%3.0f%%", progress*100)
}

func (*cliListener) OnInstallSuccess(info plugin.Info, state plugin.State) {
	fmt.Printf("\rInstalled %s\n", info)
}

func (*cliListener) OnInstallFailure(info plugin.Info, err error) {
	fmt.Printf("\rFailed to install %s: %v\n", info, err)
}

func installHeadless(ctx context.Context, m *pluginman.Manager, descriptor string) error {
	info, err := pluginman.ParseDescriptor(descriptor)
	if err != nil {
		return err
	}

	// Left registered so queued events still print before exit
	m.RegisterListener(&cliListener{})

	st, err := m.Install(ctx, info)
	if err != nil {
		return err
	}
	if st.Err != nil {
		return fmt.Errorf("%s installed but can't be loaded: %w", info, st.Err)
	}
	return nil
}
