package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	app "github.com/kode4food/flowrun"
	"github.com/kode4food/flowrun/internal/archive"
	"github.com/kode4food/flowrun/internal/config"
	"github.com/kode4food/flowrun/internal/engine"
	"github.com/kode4food/flowrun/internal/events"
	"github.com/kode4food/flowrun/internal/metrics"
	"github.com/kode4food/flowrun/internal/registry"
	"github.com/kode4food/flowrun/internal/server"
	"github.com/kode4food/flowrun/internal/store"
	"github.com/kode4food/flowrun/internal/tasks"
	"github.com/kode4food/flowrun/pkg/log"
)

type flowrun struct {
	cfg        *config.Config
	store      *store.RedisStore
	archive    *archive.BlobArchive
	registry   *registry.Registry
	hub        *events.Hub
	metrics    *metrics.Metrics
	engine     *engine.Engine
	apiServer  *server.Server
	httpServer *http.Server
	quit       chan os.Signal
}

var (
	ErrConnectStore  = errors.New("failed to connect to run store")
	ErrOpenArchive   = errors.New("failed to open run archive")
	ErrRegisterTasks = errors.New("failed to register tasks")
)

func main() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Error("Failed to load .env file", log.Error(err))
		os.Exit(1)
	}

	cfg := config.NewDefaultConfig()
	if err := cfg.LoadFromEnv(); err != nil {
		slog.Error("Invalid configuration", log.Error(err))
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("Invalid configuration", log.Error(err))
		os.Exit(1)
	}

	s := &flowrun{
		cfg:  cfg,
		quit: make(chan os.Signal, 1),
	}
	s.setupLogging()

	if err := s.run(); err != nil {
		slog.Error("Failed to start application", log.Error(err))
		os.Exit(1)
	}
}

func (s *flowrun) run() error {
	ctx := context.Background()
	if err := s.initializeStores(ctx); err != nil {
		return err
	}
	defer s.closeStores()

	if err := s.initializeRegistry(); err != nil {
		return err
	}
	if err := s.initializeEngine(); err != nil {
		return err
	}
	s.startServer()

	signal.Notify(s.quit, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(s.quit)
	<-s.quit

	s.shutdown()
	return nil
}

func (s *flowrun) setupLogging() {
	level := log.ParseLevel(s.cfg.LogLevel)

	env := os.Getenv("ENV")
	logger := log.NewWithLevel(app.Name, env, app.Version, level)
	slog.SetDefault(logger)
	slog.SetLogLoggerLevel(level)

	slog.Info("Flowrun starting",
		slog.String("log_level", s.cfg.LogLevel))

	slog.Info("Configuration loaded",
		slog.String("redis_addr", s.cfg.Store.Addr),
		slog.Int("redis_db", s.cfg.Store.DB),
		slog.String("redis_prefix", s.cfg.Store.Prefix),
		slog.Duration("run_retention", s.cfg.Store.Retention),
		slog.Bool("archive_enabled", s.cfg.ArchiveBucketURL != ""),
		slog.String("api_host", s.cfg.APIHost),
		slog.Int("api_port", s.cfg.APIPort))
}

func (s *flowrun) initializeStores(ctx context.Context) error {
	s.store = store.NewRedisStore(s.cfg.Store)
	if err := s.store.Ping(ctx); err != nil {
		_ = s.store.Close()
		return fmt.Errorf("%w: %w", ErrConnectStore, err)
	}

	if s.cfg.ArchiveBucketURL == "" {
		return nil
	}
	arc, err := archive.Open(
		ctx, s.cfg.ArchiveBucketURL, s.cfg.ArchivePrefix,
	)
	if err != nil {
		_ = s.store.Close()
		return fmt.Errorf("%w: %w", ErrOpenArchive, err)
	}
	s.archive = arc
	return nil
}

func (s *flowrun) initializeRegistry() error {
	s.registry = registry.New()

	if s.cfg.SampleTasks {
		err := tasks.RegisterSamples(s.registry, tasks.DefaultSampleDelay)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrRegisterTasks, err)
		}
	}

	client := tasks.NewHTTPClient(s.cfg.TaskTimeoutDuration())
	if err := tasks.RegisterHTTP(
		s.registry, client, s.cfg.HTTPTasks,
	); err != nil {
		return fmt.Errorf("%w: %w", ErrRegisterTasks, err)
	}

	if s.cfg.ScriptTasksDir != "" {
		names, err := tasks.RegisterScripts(
			s.registry, tasks.NewLuaEnv(), s.cfg.ScriptTasksDir,
		)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrRegisterTasks, err)
		}
		slog.Info("Script tasks loaded",
			slog.String("dir", s.cfg.ScriptTasksDir),
			slog.Int("count", len(names)))
	}

	s.registry.Freeze()
	slog.Info("Task registry frozen",
		slog.Any("tasks", s.registry.Names()))
	return nil
}

func (s *flowrun) initializeEngine() error {
	s.hub = events.NewHub()
	s.metrics = metrics.New()

	deps := engine.Dependencies{
		Store:    s.store,
		Registry: s.registry,
		Events:   s.hub,
		Metrics:  s.metrics,
	}
	if s.archive != nil {
		deps.Archive = s.archive
	}

	eng, err := engine.New(deps)
	if err != nil {
		return err
	}
	s.engine = eng
	return nil
}

func (s *flowrun) startServer() {
	s.apiServer = server.NewServer(s.engine, s.hub, s.metrics)
	mux := s.apiServer.SetupRoutes()

	s.httpServer = &http.Server{
		Addr:    s.cfg.Address(),
		Handler: mux,
	}

	go func() {
		slog.Info("HTTP server starting",
			slog.String("addr", s.httpServer.Addr))
		err := s.httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server error", log.Error(err))
			s.quit <- syscall.SIGTERM
		}
	}()
}

func (s *flowrun) shutdown() {
	slog.Info("Shutting down")

	ctx, cancel := context.WithTimeout(
		context.Background(), s.cfg.ShutdownTimeout,
	)
	defer cancel()

	s.apiServer.CloseWebSockets()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		slog.Error("Shutdown failed", log.Error(err))
	}
	s.hub.Close()

	slog.Info("Server exited")
}

func (s *flowrun) closeStores() {
	if s.archive != nil {
		if err := s.archive.Close(); err != nil {
			slog.Error("Failed to close archive", log.Error(err))
		}
	}
	if err := s.store.Close(); err != nil {
		slog.Error("Failed to close run store", log.Error(err))
	}
}
