// Package bootstrap wires configuration, logging, storage, the vision
// provider, camera platforms and transports into a running server.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"fro-server/internal/app/workspace"
	"fro-server/internal/domain/analysis"
	"fro-server/internal/domain/capture"
	"fro-server/internal/domain/capture/platform/bridge"
	"fro-server/internal/domain/capture/platform/fixture"
	"fro-server/internal/domain/eventbus"
	domainimage "fro-server/internal/domain/image"
	"fro-server/internal/domain/preferences"
	"fro-server/internal/domain/vision"
	platformconfig "fro-server/internal/platform/config"
	platformerrors "fro-server/internal/platform/errors"
	platformlogging "fro-server/internal/platform/logging"
	platformobservability "fro-server/internal/platform/observability"
	platformstorage "fro-server/internal/platform/storage"
	httptransport "fro-server/internal/transport/http"
	"fro-server/internal/transport/ws"
)

const (
	cameraPlatformBridge  = "bridge"
	cameraPlatformFixture = "fixture"

	eventBusWorkers = 4
)

// Options are the command-line inputs of Run.
type Options struct {
	ConfigPath string
	DotEnv     bool
}

type stepFn func(context.Context, *appState) error

type initStep struct {
	ID        string
	Title     string
	DependsOn []string
	Kind      platformerrors.Kind
	Execute   stepFn
}

type appState struct {
	options               Options
	config                *platformconfig.Config
	configPath            string
	logger                *platformlogging.Logger
	observabilityShutdown platformobservability.ShutdownFunc
	bus                   *eventbus.AsyncEventBus
	db                    *gorm.DB
	preferences           preferences.Store
	vision                *vision.Provider
	pipeline              *domainimage.Pipeline
	registry              *bridge.Registry
	platforms             workspace.PlatformFactory
	workspaces            *workspace.Manager
}

// Run loads everything, serves until ctx is cancelled or a signal arrives,
// then shuts down in reverse order.
func Run(ctx context.Context, opts Options) error {
	state := &appState{options: opts}

	steps := InitGraph()
	if err := executeInitSteps(ctx, steps, state); err != nil {
		state.close()
		return err
	}
	defer state.close()

	logger := state.logger
	logBootstrapGraph(steps, logger)

	rootCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	signalCtx, stop := signal.NotifyContext(rootCtx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(rootCtx)
	if err := startServices(state, group, groupCtx); err != nil {
		cancel()
		_ = group.Wait()
		return err
	}
	logger.InfoTag("BOOT", "server started")

	return waitForShutdown(signalCtx, groupCtx, cancel, logger, group, state.config.Server.ShutdownTimeout)
}

func logBootstrapGraph(steps []initStep, logger *platformlogging.Logger) {
	logger.InfoTag("BOOT", "init graph:")
	for _, step := range steps {
		deps := "-"
		if len(step.DependsOn) > 0 {
			deps = strings.Join(step.DependsOn, ", ")
		}
		logger.InfoTag("BOOT", "  %-28s %s (after %s)", step.ID, step.Title, deps)
	}
}

func executeInitSteps(ctx context.Context, steps []initStep, state *appState) error {
	if state == nil {
		return platformerrors.New(platformerrors.KindBootstrap, "execute init steps", "nil bootstrap state")
	}

	completed := make(map[string]struct{}, len(steps))
	for _, step := range steps {
		for _, dep := range step.DependsOn {
			if _, ok := completed[dep]; !ok {
				return platformerrors.New(platformerrors.KindBootstrap, step.ID, fmt.Sprintf("dependency %s not satisfied", dep))
			}
		}
		if step.Execute == nil {
			return platformerrors.New(platformerrors.KindBootstrap, step.ID, "missing execute function")
		}
		if err := step.Execute(ctx, state); err != nil {
			var typed *platformerrors.Error
			if errors.As(err, &typed) {
				return err
			}
			kind := step.Kind
			if kind == "" {
				kind = platformerrors.KindBootstrap
			}
			return platformerrors.Wrap(kind, step.ID, "bootstrap step failed", err)
		}
		completed[step.ID] = struct{}{}
	}
	return nil
}

// InitGraph lists the init steps in execution order.
func InitGraph() []initStep {
	return []initStep{
		{
			ID:      "config:load",
			Title:   "Load configuration",
			Kind:    platformerrors.KindConfig,
			Execute: loadConfigStep,
		},
		{
			ID:        "logging:init-provider",
			Title:     "Initialise logging provider",
			DependsOn: []string{"config:load"},
			Execute:   initLoggingStep,
		},
		{
			ID:        "observability:setup-hooks",
			Title:     "Setup observability hooks",
			DependsOn: []string{"logging:init-provider"},
			Execute:   setupObservabilityStep,
		},
		{
			ID:        "eventbus:start",
			Title:     "Start event bus",
			DependsOn: []string{"logging:init-provider"},
			Execute:   startEventBusStep,
		},
		{
			ID:        "storage:init-database",
			Title:     "Open preferences database",
			DependsOn: []string{"logging:init-provider"},
			Kind:      platformerrors.KindStorage,
			Execute:   initDatabaseStep,
		},
		{
			ID:        "preferences:init-store",
			Title:     "Initialise preferences store",
			DependsOn: []string{"storage:init-database"},
			Kind:      platformerrors.KindStorage,
			Execute:   initPreferencesStep,
		},
		{
			ID:        "vision:init-provider",
			Title:     "Initialise vision provider",
			DependsOn: []string{"logging:init-provider"},
			Kind:      platformerrors.KindConfig,
			Execute:   initVisionStep,
		},
		{
			ID:        "image:init-pipeline",
			Title:     "Initialise image pipeline",
			DependsOn: []string{"logging:init-provider"},
			Execute:   initPipelineStep,
		},
		{
			ID:        "camera:init-platform",
			Title:     "Initialise camera platform",
			DependsOn: []string{"logging:init-provider"},
			Kind:      platformerrors.KindCapture,
			Execute:   initCameraStep,
		},
		{
			ID:        "workspace:init-manager",
			Title:     "Initialise workspace manager",
			DependsOn: []string{"eventbus:start", "vision:init-provider", "image:init-pipeline", "camera:init-platform"},
			Execute:   initWorkspacesStep,
		},
	}
}

// loadConfigStep keeps a config already placed in state.
func loadConfigStep(_ context.Context, state *appState) error {
	if state.config != nil {
		return nil
	}
	result, err := platformconfig.NewLoader().
		WithDotEnv(state.options.DotEnv).
		WithPath(state.options.ConfigPath).
		Load()
	if err != nil {
		return err
	}
	state.config = result.Config
	state.configPath = result.Path
	if state.configPath == "" {
		state.configPath = "defaults"
	}
	return nil
}

func initLoggingStep(_ context.Context, state *appState) error {
	if state.logger != nil {
		return nil
	}
	logger, err := platformlogging.New(platformlogging.Config{
		Level:    state.config.Log.Level,
		Dir:      state.config.Log.Dir,
		Filename: state.config.Log.File,
	})
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "logging:init-provider", "failed to initialize logging provider", err)
	}
	state.logger = logger
	logger.InfoTag("BOOT", "logging ready [%s] config=%s", state.config.Log.Level, state.configPath)
	return nil
}

func setupObservabilityStep(ctx context.Context, state *appState) error {
	shutdown, err := platformobservability.Setup(ctx, state.config.Observability, state.logger.Slog())
	if err != nil {
		return platformerrors.Wrap(platformerrors.KindBootstrap, "observability:setup-hooks", "failed to setup observability hooks", err)
	}
	state.observabilityShutdown = shutdown
	return nil
}

func startEventBusStep(_ context.Context, state *appState) error {
	bus := eventbus.NewAsyncEventBus(eventBusWorkers)
	bus.OnDrop(func(topic string) {
		state.logger.WarnTag("BOOT", "event queue full, dropped %s", topic)
	})
	bus.Start()
	state.bus = bus
	return eventbus.NewLogSubscriber(state.logger).Register(bus)
}

func initDatabaseStep(_ context.Context, state *appState) error {
	if !strings.EqualFold(state.config.Preferences.Type, preferences.DriverSQLite) {
		return nil
	}
	db, err := platformstorage.Open(state.config.Preferences.SQLite.DSN)
	if err != nil {
		return err
	}
	state.db = db
	state.logger.InfoTag("PREFS", "sqlite database ready at %s", state.config.Preferences.SQLite.DSN)
	return nil
}

func initPreferencesStep(_ context.Context, state *appState) error {
	cfg := state.config.Preferences
	store, err := preferences.New(preferences.Config{
		Driver: strings.ToLower(cfg.Type),
		Redis: &preferences.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		},
	}, preferences.Dependencies{SQLiteDB: state.db})
	if err != nil {
		return err
	}
	state.preferences = store
	state.logger.InfoTag("PREFS", "preferences store: %s", cfg.Type)
	return nil
}

func initVisionStep(_ context.Context, state *appState) error {
	cfg := state.config.Vision
	provider, err := vision.NewProvider(vision.Config{
		Type:        cfg.Type,
		ModelName:   cfg.ModelName,
		BaseURL:     cfg.BaseURL,
		APIKey:      cfg.APIKey,
		Temperature: cfg.Temperature,
		MaxTokens:   cfg.MaxTokens,
	}, state.logger)
	if err != nil {
		return err
	}
	state.vision = provider
	return nil
}

func initPipelineStep(_ context.Context, state *appState) error {
	cfg := state.config.Image
	state.pipeline = domainimage.NewPipeline(domainimage.Options{
		Limits: domainimage.Limits{
			MaxFileSize:    cfg.MaxFileSize,
			MaxPixels:      cfg.MaxPixels,
			MaxWidth:       cfg.MaxWidth,
			MaxHeight:      cfg.MaxHeight,
			AllowedFormats: cfg.AllowedFormats,
			EnableDeepScan: cfg.EnableDeepScan,
		},
		JPEGQuality: cfg.JPEGQuality,
		Logger:      state.logger,
	})
	return nil
}

func initCameraStep(_ context.Context, state *appState) error {
	cfg := state.config.Camera
	switch strings.ToLower(cfg.Platform) {
	case cameraPlatformFixture:
		platform, err := fixture.Load(cfg.FixtureDir)
		if err != nil {
			return platformerrors.Wrap(platformerrors.KindCapture, "camera:init-platform", "load fixture cameras", err)
		}
		state.platforms = func(string) capture.Platform { return platform }
		state.logger.InfoTag("CAMERA", "fixture cameras loaded from %s", cfg.FixtureDir)
	default:
		registry := bridge.NewRegistry(cfg.RequestTimeout, state.logger)
		state.registry = registry
		state.platforms = func(clientID string) capture.Platform { return registry.Platform(clientID) }
		state.logger.InfoTag("CAMERA", "browser camera bridge enabled")
	}
	return nil
}

func initWorkspacesStep(_ context.Context, state *appState) error {
	var care analysis.CareAdvisor
	if state.config.Analysis.CareGuide {
		care = state.vision
	}
	registry := state.registry
	state.workspaces = workspace.NewManager(workspace.ManagerOptions{
		Dependencies: workspace.Dependencies{
			Pipeline:       state.pipeline,
			Identifier:     state.vision,
			HealthAnalyzer: state.vision,
			CareAdvisor:    care,
			CallTimeout:    state.config.Analysis.CallTimeout,
			Publisher:      state.bus,
			Logger:         state.logger,
		},
		Platforms:    state.platforms,
		IdleTimeout:  state.config.Workspace.IdleTimeout,
		ReapInterval: state.config.Workspace.ReapInterval,
		OnEvict: func(clientID string) {
			if registry != nil {
				registry.Remove(clientID)
			}
		},
	})
	return nil
}

func startServices(state *appState, g *errgroup.Group, groupCtx context.Context) error {
	g.Go(func() error {
		return state.workspaces.Run(groupCtx)
	})

	if _, err := startHTTPServer(state, g, groupCtx); err != nil {
		return platformerrors.Wrap(platformerrors.KindTransport, "bootstrap.startServices", "start http server", err)
	}
	return nil
}

func buildHTTPHandler(state *appState) (*httptransport.Router, *ws.Server, error) {
	router, err := httptransport.Build(httptransport.Options{Config: state.config, Logger: state.logger})
	if err != nil {
		return nil, nil, err
	}

	visionType, visionModel := state.vision.Describe()
	handler, err := httptransport.NewHandler(httptransport.HandlerOptions{
		Workspaces:  state.workspaces,
		Preferences: state.preferences,
		Info: httptransport.ServiceInfo{
			VisionType:        visionType,
			VisionModel:       visionModel,
			CameraPlatform:    strings.ToLower(state.config.Camera.Platform),
			PreferencesDriver: strings.ToLower(state.config.Preferences.Type),
			CareGuide:         state.config.Analysis.CareGuide,
		},
		Logger: state.logger,
	})
	if err != nil {
		return nil, nil, err
	}
	handler.Register(router)

	var wsServer *ws.Server
	if state.registry != nil {
		registry := state.registry
		hub := ws.NewHub(state.logger)
		wsServer = ws.NewServer(ws.ServerConfig{}, ws.NewRouter(hub, state.logger, ws.RouterOptions{
			ReadLimit: state.config.Image.MaxFileSize*2 + 4096,
		}), hub, state.logger)
		wsServer.SetHandlerBuilder(ws.CameraHandlerBuilder(ws.CameraOptions{
			Registry: registry,
			Logger:   state.logger,
			OnDisconnect: func(clientID string) {
				if w, ok := state.workspaces.Lookup(clientID); ok {
					w.CloseCamera()
				}
			},
		}))
		wsServer.Mount(router.Engine)
		if err := state.bus.Subscribe(eventbus.EventNotice, registry.Deliver); err != nil {
			return nil, nil, err
		}
	}
	return router, wsServer, nil
}

func startHTTPServer(state *appState, g *errgroup.Group, groupCtx context.Context) (*http.Server, error) {
	router, wsServer, err := buildHTTPHandler(state)
	if err != nil {
		return nil, err
	}

	cfg := state.config.Server
	addr := net.JoinHostPort(cfg.IP, strconv.Itoa(cfg.Port))
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           router.Engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	logger := state.logger

	g.Go(func() error {
		logger.InfoTag("HTTP", "listening on http://%s", addr)
		logger.InfoTag("HTTP", "api docs at http://%s/docs", addr)

		go func() {
			<-groupCtx.Done()
			if wsServer != nil {
				wsServer.Stop()
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout(cfg.ShutdownTimeout))
			defer cancel()
			if err := httpServer.Shutdown(shutdownCtx); err != nil {
				logger.ErrorTag("HTTP", "graceful shutdown failed: %v", err)
			} else {
				logger.InfoTag("HTTP", "server stopped")
			}
		}()

		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.ErrorTag("HTTP", "listen failed: %v", err)
			return err
		}
		return nil
	})

	return httpServer, nil
}

func shutdownTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return 10 * time.Second
	}
	return d
}

// waitForShutdown returns once a signal arrives or a service fails, after
// every service in g has stopped or the timeout elapsed.
func waitForShutdown(
	signalCtx context.Context,
	groupCtx context.Context,
	cancel context.CancelFunc,
	logger *platformlogging.Logger,
	g *errgroup.Group,
	timeout time.Duration,
) error {
	select {
	case <-signalCtx.Done():
		logger.InfoTag("BOOT", "shutting down: %v", context.Cause(signalCtx))
	case <-groupCtx.Done():
		logger.WarnTag("BOOT", "a service stopped, shutting down")
	}
	cancel()

	done := make(chan error, 1)
	go func() {
		done <- g.Wait()
	}()

	select {
	case err := <-done:
		if err != nil {
			logger.ErrorTag("BOOT", "shutdown finished with error: %v", err)
			return err
		}
		logger.InfoTag("BOOT", "all services stopped")
		return nil
	case <-time.After(shutdownTimeout(timeout) + 5*time.Second):
		logger.ErrorTag("BOOT", "shutdown timed out")
		return platformerrors.New(platformerrors.KindBootstrap, "bootstrap.waitForShutdown", "shutdown timed out")
	}
}

// close releases what the init steps acquired, in reverse order.
func (s *appState) close() {
	if s.workspaces != nil {
		s.workspaces.CloseAll()
	}
	if s.bus != nil {
		s.bus.Stop()
	}
	if s.preferences != nil {
		if err := s.preferences.Close(context.Background()); err != nil {
			s.logger.WarnTag("PREFS", "close preferences store: %v", err)
		}
	}
	if s.db != nil {
		if err := platformstorage.Close(s.db); err != nil {
			s.logger.WarnTag("PREFS", "close database: %v", err)
		}
	}
	if s.observabilityShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := s.observabilityShutdown(ctx); err != nil {
			s.logger.WarnTag("BOOT", "observability shutdown: %v", err)
		}
		cancel()
	}
	if s.logger != nil {
		_ = s.logger.Close()
	}
}
