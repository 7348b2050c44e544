package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/harborlight/plugind/internal/config"
	"github.com/harborlight/plugind/internal/logger"
	"github.com/harborlight/plugind/internal/manifest"
	"github.com/harborlight/plugind/internal/registry"
	"github.com/harborlight/plugind/internal/sampler"
	"github.com/harborlight/plugind/internal/server"
	"github.com/harborlight/plugind/internal/store"
	"github.com/harborlight/plugind/internal/supervisor"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd(flags *rootFlags) *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the plugin daemon and its control API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), flags, listen)
		},
	}

	cmd.Flags().StringVar(&listen, "listen", "", "Listen address for the control API (overrides the settings file)")

	return cmd
}

func runServe(parent context.Context, flags *rootFlags, listen string) error {
	settings, err := config.Load(flags.configPath)
	if err != nil {
		return err
	}
	if listen != "" {
		settings.Listen = listen
	}

	level := settings.LogLevel
	if flags.verbose {
		level = "debug"
	}
	log, err := logger.New(logger.Options{Level: level, HumanReadable: true})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}

	overrides, err := store.Open(settings.OverridesPath)
	if err != nil {
		return fmt.Errorf("failed to open override store: %w", err)
	}

	reg := registry.New(settings.LogBufferLines, log)
	bootstrapRegistry(reg, overrides, settings.PluginDirs, log)

	sup := supervisor.New(reg, supervisor.Settings{
		LivenessWindow: settings.LivenessWindow.Std(),
		StopGrace:      settings.StopGrace.Std(),
		KillWait:       settings.KillWait.Std(),
		ErrorLogLines:  supervisor.DefaultSettings().ErrorLogLines,
	}, overrides, log)

	samp := sampler.New(reg, settings.SampleInterval.Std(), log)

	api := server.New(reg, sup, samp, settings.PluginDirs, log)
	httpServer := api.HTTPServer(settings.Listen)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, ctx := errgroup.WithContext(ctx)

	group.Go(func() error {
		log.WithFields(map[string]any{"listen": settings.Listen}).Info("control API listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("control API server: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		samp.Run(ctx)
		return nil
	})

	group.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Error(err, "control API shutdown")
		}

		sup.StopAll()
		return nil
	})

	return group.Wait()
}

// bootstrapRegistry discovers plugins under the configured directories,
// registers them and replays any persisted config overrides. Discovery
// failures are logged per directory, they never abort startup.
func bootstrapRegistry(reg *registry.Registry, overrides *store.OverrideStore, dirs []string, log *logger.Logger) {
	loaded, failures := manifest.Discover(dirs...)
	for _, failure := range failures {
		log.WithFields(map[string]any{"dir": failure.Dir}).Error(failure.Err, "manifest rejected")
	}
	for _, l := range loaded {
		if err := reg.Register(l); err != nil {
			log.WithPlugin(l.Manifest.Name).Error(err, "registration failed")
		}
	}

	for name, saved := range overrides.All() {
		record, err := reg.Get(name)
		if err != nil {
			log.WithPlugin(name).Warn("persisted overrides refer to an unknown plugin")
			continue
		}
		record.MergeOverrides(saved)
	}

	total, _ := reg.Counts()
	log.WithFields(map[string]any{"plugins": total, "failures": len(failures)}).Info("registry initialized")
}
