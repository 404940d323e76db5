package main

import (
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/railsgo/server/internal/config"
	"github.com/railsgo/server/internal/crypt"
	"github.com/railsgo/server/internal/data"
	"github.com/railsgo/server/internal/event"
	"github.com/railsgo/server/internal/handler"
	"github.com/railsgo/server/internal/identity"
	"github.com/railsgo/server/internal/metrics"
	gonet "github.com/railsgo/server/internal/net"
	"github.com/railsgo/server/internal/net/packet"
	"github.com/railsgo/server/internal/task"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config
	cfgPath := "config/server.toml"
	if p := os.Getenv("RAILSGO_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2. Init logger
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	log.Info("starting server",
		zap.String("name", cfg.Server.Name),
		zap.Int32("protocol", cfg.Server.ProtocolVersion),
	)

	// 3. Server key pair. The encryption handshake cannot work without
	// it, so failure here aborts startup.
	keys, err := crypt.GenerateKeyPair()
	if err != nil {
		return err
	}
	log.Info("generated server key pair")

	// 4. Status document
	status, err := data.LoadStatusInfo(cfg.Server.StatusFile, cfg.Server.ProtocolVersion, cfg.Server.Name)
	if err != nil {
		return fmt.Errorf("status file: %w", err)
	}

	// 5. Core plumbing
	registry := packet.NewRegistry()
	bus := event.NewBus()
	scheduler := task.NewScheduler(log)
	defer scheduler.Stop()

	var verifier handler.Verifier
	if cfg.Identity.Enabled {
		verifier = identity.NewClient(cfg.Identity.BaseURL, cfg.Identity.Timeout)
		log.Info("identity verification enabled", zap.String("base_url", cfg.Identity.BaseURL))
	} else {
		log.Warn("identity verification disabled, accepting claimed names")
	}

	deps := &handler.Deps{
		Config:    cfg,
		Log:       log,
		Keys:      keys,
		Identity:  verifier,
		Status:    status,
		Scheduler: scheduler,
		Bus:       bus,
	}
	table := handler.NewTable(deps)

	// 6. Listener
	netCfg := gonet.Config{
		InQueueSize:         cfg.Network.InQueueSize,
		OutQueueSize:        cfg.Network.OutQueueSize,
		ReadTimeout:         cfg.Network.ReadTimeout,
		WriteTimeout:        cfg.Network.WriteTimeout,
		PacketsPerSecond:    cfg.Network.PacketsPerSecond,
		DisconnectOnUnknown: cfg.Network.DisconnectOnUnknown,
	}
	srv, err := gonet.NewServer(cfg.Network.BindAddress, netCfg, registry, bus, table, log)
	if err != nil {
		return fmt.Errorf("listen: %w", err)
	}
	deps.Sessions = srv.Sessions()
	go srv.AcceptLoop()
	log.Info("listening", zap.String("addr", srv.Addr().String()))

	// 7. Metrics endpoint
	if cfg.Metrics.Enabled {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", metrics.Handler())
			if err := http.ListenAndServe(cfg.Metrics.Bind, mux); err != nil {
				log.Error("metrics endpoint failed", zap.Error(err))
			}
		}()
		log.Info("metrics endpoint up", zap.String("addr", cfg.Metrics.Bind))
	}

	// 8. Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info("shutting down", zap.String("signal", sig.String()))

	srv.Shutdown()
	return nil
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
