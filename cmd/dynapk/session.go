// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/CtripMobile/DynamicAPK/internal/config"
	"github.com/CtripMobile/DynamicAPK/internal/framework"
	"github.com/CtripMobile/DynamicAPK/internal/host"
	"github.com/CtripMobile/DynamicAPK/internal/metrics"
	"github.com/CtripMobile/DynamicAPK/pkg/hotpatch"
	"github.com/CtripMobile/DynamicAPK/pkg/loader"
	"github.com/CtripMobile/DynamicAPK/pkg/types"
)

// session is one process's view of the host: a runtime preloaded with the
// host's own containers, the injector chosen for its version, the hot
// patch store and, once started, the module registry.
type session struct {
	cfg       *config.Config
	logger    *slog.Logger
	metrics   *metrics.Metrics
	host      *host.Runtime
	injector  *loader.Injector
	patches   *hotpatch.Store
	registry  *framework.Registry
	hostPaths []string
}

// openSession wires a session from the loaded configuration. The registry
// is created but not started; see startRegistry.
func (a *App) openSession() (*session, error) {
	cfg, err := a.config()
	if err != nil {
		return nil, err
	}
	logger := a.logger
	m := metrics.New()

	hostPaths := make([]string, len(cfg.Host.Resources))
	for i, r := range cfg.Host.Resources {
		hostPaths[i] = cfg.ResolvePath(types.FilesystemPath(r))
	}

	rt := host.New(host.Options{
		Version: cfg.Host.Version,
		Welcome: cfg.WelcomeFallback,
		Logger:  logger,
	})
	if err := rt.Preload(hostPaths...); err != nil {
		return nil, fmt.Errorf("preload host containers: %w", err)
	}

	inj, err := loader.NewInjector(rt, loader.DefaultTable(),
		loader.WithObserver(m.ObserveInjection),
		loader.WithLogger(logger),
	)
	if err != nil {
		return nil, err
	}

	s := &session{
		cfg:       cfg,
		logger:    logger,
		metrics:   m,
		host:      rt,
		injector:  inj,
		hostPaths: hostPaths,
		patches: hotpatch.New(cfg.PatchRoot(), inj,
			hotpatch.WithLogger(logger),
			hotpatch.WithInstallObserver(m.ObservePatchInstall),
			hotpatch.WithSizeObserver(m.SetPatches),
		),
		registry: framework.New(framework.Options{
			Injector:      inj,
			HostResources: hostPaths,
			Metrics:       m,
			Logger:        logger,
		}),
	}
	logger.Debug("session opened", "host_version", cfg.Host.Version, "adapter", inj.Adapter().Name())
	return s, nil
}

// startRegistry locks and restores module storage.
func (s *session) startRegistry(ctx context.Context) error {
	return s.registry.Startup(ctx, framework.Config{
		BaseDir:         string(s.cfg.BaseDir),
		StorageLocation: string(s.cfg.StorageLocation),
		FreshInit:       s.cfg.FreshInit,
		BuildKey:        s.cfg.Seed.BuildKey,
	})
}

// activate prepares every module and applies stored hot patches, leaving
// the search path as a running host would see it.
func (s *session) activate(ctx context.Context) int {
	s.registry.PrepareAll(ctx)
	applied := s.patches.Run()
	s.registry.WaitDelayed()
	return applied
}

func (s *session) Close() {
	s.registry.Shutdown()
}

// openRegistry opens a session and starts its registry.
func (a *App) openRegistry(ctx context.Context) (*session, error) {
	s, err := a.openSession()
	if err != nil {
		return nil, err
	}
	if err := s.startRegistry(ctx); err != nil {
		return nil, err
	}
	return s, nil
}
