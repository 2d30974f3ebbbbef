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
	"time"

	"jarvis/internal/actions"
	"jarvis/internal/api"
	"jarvis/internal/assistant"
	"jarvis/internal/config"
	"jarvis/internal/conversation"
	"jarvis/internal/core"
	"jarvis/internal/logging"
	jarvismcp "jarvis/internal/mcp"
	"jarvis/internal/monitor"
	"jarvis/internal/nlp"
	"jarvis/internal/notify"
	"jarvis/internal/observability"
	"jarvis/internal/store"
	"jarvis/internal/voice"
)

// services are the long-lived components shared by the run and mcp modes.
type services struct {
	cfg       *config.Config
	logger    *slog.Logger
	store     *store.Store
	manager   *core.Manager
	launchers *actions.Launchers
	jobs      *actions.Jobs
	notifier  notify.Notifier
	metrics   *observability.Metrics
	location  *time.Location
}

func newServices(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*services, error) {
	settings := cfg.Files.Settings

	st, err := store.Open(ctx, cfg.StateDir, cfg.History.Keep)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	location := time.Local
	if cfg.UseUTC {
		location = time.UTC
	}

	history := core.NewHistory(cfg.History.Retention)
	persisted, err := st.RecentHistory(ctx, cfg.History.Retention)
	if err != nil {
		logger.Warn("load persisted history", "err", err)
	}
	history.Seed(persisted)

	notifier := newNotifier(cfg, logger)
	metrics := observability.DefaultMetrics()

	executor := core.NewExecutor(history,
		core.WithExecutorLogger(logger),
		core.WithTaskTimeout(settings.Tasks.Timeout),
		core.WithStartHook(metrics.TaskStarted),
		core.WithCompletionHook(metrics.TaskFinished),
		core.WithCompletionHook(st.HistoryHook(logger)),
		core.WithCompletionHook(notify.FailureHook(notifier, logger)),
	)
	scheduler := core.NewScheduler(executor,
		core.WithSchedulerLogger(logger),
		core.WithLocation(location),
		core.WithJobCountHook(metrics.SetScheduledJobs),
	)
	manager := core.NewManager(executor, scheduler, history, cfg.History.Window)

	launchers := actions.NewLaunchers(settings.Launchers)
	jobs := actions.NewJobs(manager, st, launchers, logger)
	restored, err := jobs.Restore(ctx)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("restore jobs: %w", err)
	}
	logger.Info("jobs restored", "count", restored)
	scheduler.Start()

	return &services{
		cfg:       cfg,
		logger:    logger,
		store:     st,
		manager:   manager,
		launchers: launchers,
		jobs:      jobs,
		notifier:  notifier,
		metrics:   metrics,
		location:  location,
	}, nil
}

func newNotifier(cfg *config.Config, logger *slog.Logger) notify.Notifier {
	bark := cfg.Notification.Bark
	if !bark.Enabled || bark.URL == "" {
		return &notify.NoOpNotifier{}
	}
	n, err := notify.NewBarkNotifier(bark.URL)
	if err != nil {
		logger.Warn("bark notifier disabled", "err", err)
		return &notify.NoOpNotifier{}
	}
	return notify.NewCooldown(n, cfg.Files.Settings.System.NotifyCooldown)
}

// shutdown stops the scheduler and cancels tasks, then closes the store.
func (s *services) shutdown(ctx context.Context) {
	if err := s.manager.Shutdown(ctx); err != nil {
		s.logger.Warn("task shutdown", "err", err)
	}
	if err := s.store.Close(); err != nil {
		s.logger.Warn("close store", "err", err)
	}
}

func newVoice(cfg *config.Config, responses *conversation.Responses) (assistant.Listener, assistant.Speaker, error) {
	if cfg.Voice == config.VoiceNone {
		return voice.Silent{}, voice.Silent{}, nil
	}
	speakers := voice.MultiSpeaker{voice.NewWriterSpeaker(os.Stdout)}
	if cfg.TTSCommand != "" {
		tts, err := voice.NewCommandSpeaker(cfg.TTSCommand)
		if err != nil {
			return nil, nil, fmt.Errorf("tts command: %w", err)
		}
		speakers = append(speakers, tts)
	}
	return voice.NewConsole(os.Stdin, responses.WakePhrases), speakers, nil
}

func loopOptions(s config.Settings) assistant.Options {
	capture := s.Assistant.CaptureTimeout
	if capture == 0 {
		capture = -1
	}
	return assistant.Options{
		PollTimeout:     s.Assistant.PollTimeout,
		CaptureTimeout:  capture,
		IdleDelay:       s.Assistant.IdleDelay,
		CriticalPercent: s.System.CriticalPercent,
		MaxTurns:        conversation.DefaultMaxTurns,
	}
}

func runDaemon(parent context.Context, cfg *config.Config) error {
	logger, closeLog, err := logging.New(cfg.Log.Level, cfg.Log.Format, cfg.Log.File)
	if err != nil {
		return err
	}
	defer closeLog()
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := observability.SetupTracing(ctx, observability.TraceConfig{
		ServiceName:    "jarvis",
		ServiceVersion: version,
		Endpoint:       cfg.Tracing.Endpoint,
		Insecure:       cfg.Tracing.Insecure,
	})
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			logger.Warn("flush traces", "err", err)
		}
	}()

	svc, err := newServices(ctx, cfg, logger)
	if err != nil {
		return err
	}
	settings := cfg.Files.Settings

	responses := conversation.NewResponses(cfg.Files.Responses)
	listener, speaker, err := newVoice(cfg, responses)
	if err != nil {
		svc.shutdown(context.Background())
		return err
	}

	index := nlp.NewIndex(svc.store)
	if err := index.Load(ctx); err != nil {
		logger.Warn("load knowledge base", "err", err)
	}

	loop, err := assistant.New(assistant.Deps{
		Manager:     svc.manager,
		Listener:    listener,
		Transcriber: voice.TextTranscriber{},
		Speaker:     speaker,
		Classifier:  nlp.KeywordClassifier{},
		Responder:   responses,
		Searcher:    index,
		Monitor: monitor.New(
			monitor.WithDiskPath(settings.System.DiskPath),
			monitor.WithRogueThresholds(settings.System.RogueCPUThreshold, settings.System.RogueMemThreshold),
		),
		Launcher:  svc.launchers,
		Canceller: svc.jobs,
		Notifier:  svc.notifier,
		Turns:     svc.store,
		Metrics:   svc.metrics,
		Logger:    logger,
	}, loopOptions(*settings))
	if err != nil {
		svc.shutdown(context.Background())
		return err
	}

	go func() {
		err := config.Watch(ctx, cfg.ConfigDir, logger, func(files *config.Files) {
			responses.Replace(files.Responses)
			svc.launchers.Replace(files.Settings.Launchers)
		})
		if err != nil {
			logger.Warn("config watcher stopped", "err", err)
		}
	}()

	var server *api.Server
	serverErr := make(chan error, 1)
	if cfg.Server.Addr != "" {
		mcpServer := jarvismcp.NewMCPServer(svc.manager, svc.jobs, loop, logger, svc.location, version)
		server, err = api.NewServer(cfg.Server.Addr, api.Deps{
			Manager:   svc.manager,
			Assistant: loop,
			Jobs:      svc.jobs,
			Knowledge: index,
			Turns:     svc.store,
			History:   svc.store,
			MCP:       mcpServer.Handler(),
			Logger:    logger,
			Location:  svc.location,
			AuthToken: cfg.Server.AuthToken,
		})
		if err != nil {
			svc.shutdown(context.Background())
			return err
		}
		go func() {
			if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				serverErr <- err
			}
		}()
	}

	loopCtx, cancelLoop := context.WithCancel(ctx)
	defer cancelLoop()
	loopErr := make(chan error, 1)
	go func() { loopErr <- loop.Run(loopCtx) }()

	var runErr error
	select {
	case <-ctx.Done():
		logger.Info("received signal, shutting down")
	case err := <-serverErr:
		logger.Error("server error", "err", err)
		runErr = err
	case err := <-loopErr:
		if err != nil {
			logger.Error("interaction loop stopped", "err", err)
			runErr = err
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
	defer shutdownCancel()

	if server != nil {
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown", "err", err)
		}
	}
	cancelLoop()
	if err := loop.Shutdown(shutdownCtx); err != nil {
		logger.Warn("assistant shutdown", "err", err)
	}
	svc.shutdown(shutdownCtx)
	logger.Info("shutdown complete")
	return runErr
}

// runMCP serves the tools over stdio. stdout carries the protocol, so logs go to stderr.
func runMCP(parent context.Context, cfg *config.Config) error {
	logger := logging.NewWithWriter(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc, err := newServices(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownGrace)
		defer cancel()
		svc.shutdown(shutdownCtx)
	}()

	mcpServer := jarvismcp.NewMCPServer(svc.manager, svc.jobs, nil, logger, svc.location, version)
	mcpErr := make(chan error, 1)
	go func() { mcpErr <- mcpServer.Run() }()

	select {
	case <-ctx.Done():
		logger.Info("received signal, shutting down")
		return nil
	case err := <-mcpErr:
		return err
	}
}
