package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/CefBoud/monsink/config"
	"github.com/CefBoud/monsink/format"
	"github.com/CefBoud/monsink/guard"
	log "github.com/CefBoud/monsink/logging"
	"github.com/CefBoud/monsink/sink"
	"github.com/CefBoud/monsink/source"
	"github.com/CefBoud/monsink/storage"
	"github.com/CefBoud/monsink/types"
	"github.com/CefBoud/monsink/utils"
	"github.com/gofrs/flock"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
)

const lockFile = ".monsink.lock"

func newRunCmd() *cobra.Command {
	var configPath, logLevel string
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Consume the configured topics into segments",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(configPath)
			if err != nil {
				return err
			}
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return run(ctx, cfg)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "monsink.yaml", "path to the YAML configuration")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "override the configured log level")
	return cmd
}

func run(ctx context.Context, cfg types.Configuration) error {
	log.SetLogLevel(cfg.LogLevel)

	if cfg.Storage.Type == "local" {
		lock := flock.New(filepath.Join(cfg.RootDir, lockFile))
		if err := utils.EnsurePath(lock.Path(), false); err != nil {
			return err
		}
		locked, err := lock.TryLock()
		if err != nil {
			return fmt.Errorf("lock %v: %w", lock.Path(), err)
		}
		if !locked {
			return fmt.Errorf("%v is owned by another monsink process", cfg.RootDir)
		}
		defer lock.Unlock()
	}

	st, err := storage.New(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	defer st.Close()
	provider, err := format.NewTextProvider(st, cfg.Format, cfg.Compression)
	if err != nil {
		return err
	}
	g, err := openGuard(cfg.GuardPath)
	if err != nil {
		return err
	}
	task, err := sink.NewTask(provider, g, sink.NewTaskConfig(cfg, utils.SystemClock()))
	if err != nil {
		g.Close()
		return err
	}
	src, err := source.NewKafka(cfg.Kafka, task)
	if err != nil {
		task.Close()
		return err
	}

	if cfg.MetricsAddr != "" {
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: promhttp.Handler()}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server: %v", err)
			}
		}()
		defer srv.Close()
		log.Info("serving metrics on %v", cfg.MetricsAddr)
	}

	log.Info("sink started: root %v, flush size %v, rotate interval %vms", cfg.RootDir, cfg.FlushSize, cfg.RotateIntervalMs)
	runErr := src.Run(ctx)

	closeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := src.Close(closeCtx); err != nil {
		return errors.Join(runErr, err)
	}
	return runErr
}

func openGuard(path string) (*guard.OffsetGuard, error) {
	if path == "" {
		log.Warn("no guard_path configured, duplicate detection does not survive restarts")
		return guard.New(), nil
	}
	store, err := guard.NewBoltStore(path)
	if err != nil {
		return nil, err
	}
	g, err := guard.Open(store)
	if err != nil {
		store.Close()
		return nil, err
	}
	log.Info("loaded %v offset marks from %v", g.Len(), path)
	return g, nil
}
