// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/CtripMobile/DynamicAPK/internal/watch"
	"github.com/CtripMobile/DynamicAPK/pkg/types"
)

const shutdownTimeout = 5 * time.Second

func newServeCommand(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the framework until interrupted",
		Long: `Start the framework and keep it running until interrupted.

serve restores module storage, seeds modules from the configured host
container, prepares every module, applies stored hot patches and then:

  - serves Prometheus metrics on /metrics and the module list on /modules
  - watches the inbox directory, when configured, for new payloads:
      <inbox>/modules/<location>.zip   installs or updates a module
      <inbox>/patches/<name>.zip       installs a hot patch

Applied drops are deleted; drops that fail are renamed with a .failed
suffix.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withIssue(runServe(cmd.Context(), app))
		},
	}
}

func runServe(ctx context.Context, app *App) error {
	s, err := app.openRegistry(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	cfg := s.cfg
	if cfg.Seed.Container != "" {
		container := cfg.ResolvePath(types.FilesystemPath(cfg.Seed.Container))
		n, err := s.registry.SeedFromContainer(ctx, container, cfg.Seed.Prefix, cfg.Seed.Suffix)
		if err != nil {
			s.logger.Warn("seeding from host container failed", "container", container, "error", err)
		}
		s.logger.Info("seeded modules", "container", container, "installed", n)
	}
	patched := s.activate(ctx)
	s.logger.Info("framework ready", "modules", len(s.registry.List()), "patches", patched)

	g, gctx := errgroup.WithContext(ctx)

	ln, err := net.Listen("tcp", cfg.Metrics.Port.Addr(cfg.Metrics.Host))
	if err != nil {
		return fmt.Errorf("listen for metrics: %w", err)
	}
	srv := &http.Server{Handler: s.mux(), ReadHeaderTimeout: 5 * time.Second}
	s.logger.Info("serving metrics", "url", "http://"+ln.Addr().String()+"/metrics")
	g.Go(func() error {
		if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if cfg.Inbox.Dir != "" {
		w, err := s.startInbox(gctx, cfg.ResolvePath(types.FilesystemPath(cfg.Inbox.Dir)), cfg.Inbox.Debounce)
		if err != nil {
			_ = srv.Close()
			return err
		}
		g.Go(func() error { return w.Run(gctx) })
	}

	return g.Wait()
}

// mux routes the HTTP endpoints of serve.
func (s *session) mux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", s.metrics.Handler())
	mux.HandleFunc("GET /modules", func(w http.ResponseWriter, _ *http.Request) {
		mods := s.registry.List()
		list := moduleList{Modules: make([]moduleView, 0, len(mods))}
		for _, m := range mods {
			list.Modules = append(list.Modules, newModuleView(m))
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(list); err != nil {
			s.logger.Warn("failed to write module list", "error", err)
		}
	})
	return mux
}

// startInbox applies drops already waiting in dir and returns a watcher for
// the ones that follow.
func (s *session) startInbox(ctx context.Context, dir string, debounce time.Duration) (*watch.Watcher, error) {
	in := &watch.Inbox{
		Dir:      dir,
		OnModule: s.applyModuleDrop,
		OnPatch:  s.applyPatchDrop,
		Logger:   s.logger,
	}
	if err := in.EnsureLayout(); err != nil {
		return nil, err
	}
	pending, err := in.Pending()
	if err != nil {
		return nil, err
	}
	if err := in.Process(ctx, pending); err != nil {
		s.logger.Warn("some queued drops failed", "error", err)
	}

	w, err := watch.New(watch.Config{
		Dir:      dir,
		Patterns: watch.InboxPatterns,
		Debounce: debounce,
		OnChange: in.Process,
		Logger:   s.logger,
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("watching inbox", "dir", w.Dir())
	return w, nil
}

// applyModuleDrop installs or updates the dropped module and prepares it.
func (s *session) applyModuleDrop(ctx context.Context, d watch.Drop) error {
	loc := types.Location(d.Name)
	if err := loc.Validate(); err != nil {
		return err
	}
	f, err := os.Open(d.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, ok := s.registry.Get(loc); ok {
		err = s.registry.Update(ctx, loc, f)
	} else {
		_, err = s.registry.Install(ctx, loc, f)
	}
	if err != nil {
		return err
	}
	s.registry.PrepareAll(ctx)
	return nil
}

func (s *session) applyPatchDrop(_ context.Context, d watch.Drop) error {
	f, err := os.Open(d.Path)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := s.patches.Install(types.PatchName(d.Name), f); err != nil {
		return err
	}
	return nil
}
