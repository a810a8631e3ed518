package system

import (
	"context"
	"fmt"
	"net"
	"sync"

	"github.com/KevinKickass/OpenCellBench/internal/api/grpcapi"
	"github.com/KevinKickass/OpenCellBench/internal/api/rest"
	"github.com/KevinKickass/OpenCellBench/internal/api/websocket"
	"github.com/KevinKickass/OpenCellBench/internal/config"
	"github.com/KevinKickass/OpenCellBench/internal/directory"
	"github.com/KevinKickass/OpenCellBench/internal/dispatch"
	"github.com/KevinKickass/OpenCellBench/internal/events"
	"github.com/KevinKickass/OpenCellBench/internal/interfaces"
	"github.com/KevinKickass/OpenCellBench/internal/sequence"
	"github.com/KevinKickass/OpenCellBench/internal/storage"
	"github.com/KevinKickass/OpenCellBench/internal/templates"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
)

type LifecycleManager struct {
	config     *config.Config
	storage    *storage.PostgresClient
	directory  *directory.Client
	dispatcher *dispatch.Dispatcher
	sessions   *sequence.Registry
	templates  *templates.Loader
	streamer   *events.Streamer
	wsHub      *websocket.Hub
	logger     *zap.Logger

	restServer   *rest.Server
	grpcServer   *grpc.Server
	healthServer *health.Server

	stateMu      sync.RWMutex
	currentState SystemState

	cancel       context.CancelFunc
	shutdownOnce sync.Once
}

// NewLifecycleManager wires every component. db may be nil, in which case
// dispatch history is disabled.
func NewLifecycleManager(db *storage.PostgresClient, cfg *config.Config, logger *zap.Logger) (*LifecycleManager, error) {
	var recorder dispatch.Recorder
	if db != nil {
		recorder = db
	}

	dispatcher, err := dispatch.NewDispatcher(cfg.Controller.BaseURL, cfg.Controller.Timeout, recorder, logger.Named("dispatch"))
	if err != nil {
		return nil, fmt.Errorf("failed to create dispatcher: %w", err)
	}

	streamer := events.NewStreamer()
	wsHub := websocket.NewHub(logger.Named("ws"))
	streamer.AddSink(wsHub)

	sessions := sequence.NewRegistry(sequence.Options{
		DefaultLogging: sequence.Logging{
			Enabled:          cfg.Sequence.DefaultLoggingEnabled,
			Filename:         cfg.Sequence.DefaultFilename,
			PollingIntervalS: cfg.Sequence.DefaultPollingRate,
		},
		MaxFilenameLength: cfg.Sequence.MaxFilenameLength,
		SessionTTL:        cfg.Sequence.SessionTTL,
	}, streamer, logger.Named("sequence"))

	lm := &LifecycleManager{
		config:       cfg,
		storage:      db,
		directory:    directory.NewClient(cfg.Directory.BaseURL, cfg.Directory.Timeout, logger.Named("directory")),
		dispatcher:   dispatcher,
		sessions:     sessions,
		templates:    templates.NewLoader(cfg.Templates.SearchPaths),
		streamer:     streamer,
		wsHub:        wsHub,
		logger:       logger,
		currentState: StateInitializing,
	}
	wsHub.SetStatusProvider(func() any { return lm.GetCurrentStatus() })

	return lm, nil
}

// Start launches the background workers and both servers.
func (lm *LifecycleManager) Start() error {
	lm.logger.Info("Starting OpenCellBench")

	ctx, cancel := context.WithCancel(context.Background())
	lm.cancel = cancel

	go lm.wsHub.Run(ctx)

	if lm.config.Sequence.SessionTTL > 0 && lm.config.Sequence.SweepInterval > 0 {
		go lm.sessions.Run(ctx, lm.config.Sequence.SweepInterval)
	}

	if err := lm.startGRPCServer(); err != nil {
		lm.setState(StateError)
		return fmt.Errorf("failed to start gRPC: %w", err)
	}

	lm.restServer = rest.NewServer(lm.config, lm, lm.logger.Named("rest"), lm.wsHub)
	if err := lm.restServer.Start(); err != nil {
		lm.setState(StateError)
		return fmt.Errorf("failed to start REST API: %w", err)
	}

	lm.setState(StateRunning)

	lm.logger.Info("System started successfully",
		zap.Int("grpc_port", lm.config.Server.GRPCPort),
		zap.Int("http_port", lm.config.Server.HTTPPort),
		zap.String("controller", lm.config.Controller.BaseURL),
		zap.Bool("history_enabled", lm.storage != nil))

	return nil
}

func (lm *LifecycleManager) startGRPCServer() error {
	lis, err := net.Listen("tcp", fmt.Sprintf(":%d", lm.config.Server.GRPCPort))
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	svc := grpcapi.NewEventService(lm.streamer, lm.sessions, lm.logger.Named("grpc"))
	lm.grpcServer, lm.healthServer = grpcapi.NewServer(svc, lm.logger.Named("grpc"))

	go func() {
		lm.logger.Info("gRPC server listening",
			zap.Int("port", lm.config.Server.GRPCPort),
			zap.String("services", grpcapi.ServiceName))
		if err := lm.grpcServer.Serve(lis); err != nil {
			lm.logger.Error("gRPC server failed", zap.Error(err))
		}
	}()

	return nil
}

// Shutdown gracefully shuts down the system
func (lm *LifecycleManager) Shutdown(ctx context.Context) error {
	var shutdownErr error

	lm.shutdownOnce.Do(func() {
		lm.logger.Info("Shutting down system")
		lm.setState(StateStopping)

		shutdownErr = lm.gracefulShutdown(ctx)

		if lm.cancel != nil {
			lm.cancel()
		}
		lm.setState(StateStopped)
	})

	return shutdownErr
}

func (lm *LifecycleManager) gracefulShutdown(ctx context.Context) error {
	var wg sync.WaitGroup
	errChan := make(chan error, 2)

	if lm.restServer != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := lm.restServer.Shutdown(ctx); err != nil {
				errChan <- fmt.Errorf("rest api shutdown failed: %w", err)
			}
		}()
	}

	if lm.grpcServer != nil {
		lm.healthServer.Shutdown()
		wg.Add(1)
		go func() {
			defer wg.Done()
			lm.grpcServer.GracefulStop()
		}()
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		lm.logger.Info("Graceful shutdown completed")
	case <-ctx.Done():
		lm.logger.Warn("Shutdown timeout, forcing stop")
		if lm.grpcServer != nil {
			lm.grpcServer.Stop()
		}
		return fmt.Errorf("shutdown timeout exceeded")
	}

	select {
	case err := <-errChan:
		return err
	default:
		return nil
	}
}

func (lm *LifecycleManager) setState(state SystemState) {
	lm.stateMu.Lock()
	defer lm.stateMu.Unlock()

	if err := ValidateTransition(lm.currentState, state); err != nil {
		lm.logger.Warn("Unexpected state transition", zap.Error(err))
	}
	lm.currentState = state
}

func (lm *LifecycleManager) State() SystemState {
	lm.stateMu.RLock()
	defer lm.stateMu.RUnlock()
	return lm.currentState
}

func (lm *LifecycleManager) Config() *config.Config {
	return lm.config
}

func (lm *LifecycleManager) Sessions() *sequence.Registry {
	return lm.sessions
}

func (lm *LifecycleManager) Directory() interfaces.DeviceDirectory {
	return lm.directory
}

func (lm *LifecycleManager) Dispatcher() sequence.Submitter {
	return lm.dispatcher
}

func (lm *LifecycleManager) Templates() *templates.Loader {
	return lm.templates
}

// History returns nil when no database is configured.
func (lm *LifecycleManager) History() interfaces.DispatchHistory {
	if lm.storage == nil {
		return nil
	}
	return lm.storage
}

// GetCurrentStatus returns current system status (Interface implementation)
func (lm *LifecycleManager) GetCurrentStatus() interfaces.SystemStatus {
	return interfaces.SystemStatus{
		State:          lm.State().String(),
		Sessions:       lm.sessions.Count(),
		LiveClients:    lm.wsHub.GetClientCount(),
		HistoryEnabled: lm.storage != nil,
		ControllerURL:  lm.config.Controller.BaseURL,
		DirectoryURL:   lm.config.Directory.BaseURL,
	}
}

var _ interfaces.LifecycleManager = (*LifecycleManager)(nil)
