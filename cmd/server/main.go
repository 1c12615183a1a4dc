// Hudong - live audience interaction server
package main

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ashureev/hudong/internal/api"
	"github.com/ashureev/hudong/internal/config"
	"github.com/ashureev/hudong/internal/control"
	"github.com/ashureev/hudong/internal/deck"
	"github.com/ashureev/hudong/internal/domain"
	"github.com/ashureev/hudong/internal/identity"
	"github.com/ashureev/hudong/internal/middleware"
	"github.com/ashureev/hudong/internal/provider"
	"github.com/ashureev/hudong/internal/realtime"
	"github.com/ashureev/hudong/internal/session"
	"github.com/ashureev/hudong/internal/store"
	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := godotenv.Load(); err != nil {
		slog.Info("No .env file found, using environment variables")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	slog.Info("Starting server", "port", cfg.Port, "dev", cfg.IsDevelopment(), "slot_driver", cfg.Slot.Driver)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize storage.
	slot, err := store.Open(ctx, cfg.StoreOptions())
	if err != nil {
		slog.Error("Failed to open storage slot", "error", err)
		os.Exit(1)
	}
	defer func() {
		if closeErr := slot.Close(); closeErr != nil {
			slog.Error("Failed to close storage slot", "error", closeErr)
		}
	}()

	if err := slot.Ping(ctx); err != nil {
		slog.Error("Storage health check failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Storage slot connected", "key", cfg.Slot.Key)

	seed := deck.Default()
	if cfg.SeedPath != "" {
		seed, err = deck.Load(cfg.SeedPath)
		if err != nil {
			slog.Error("Failed to load seed deck", "path", cfg.SeedPath, "error", err)
			os.Exit(1)
		}
		slog.Info("Seed deck loaded", "path", cfg.SeedPath, "slides", len(seed.Slides))
	}

	// Initialize the server's session context.
	bus := session.NewLocalBroadcaster(cfg.Bus.QueueSize, logger)
	serverStore := session.New(slot, cfg.Slot.Key, bus, seed, logger)
	defer serverStore.Close()

	state, err := serverStore.Initialize(ctx)
	if err != nil {
		var de *domain.DeserializationError
		if errors.As(err, &de) {
			slog.Warn("Stored session unreadable, serving seed until next commit", "error", err)
		} else {
			slog.Error("Failed to initialize session", "error", err)
		}
	}
	slog.Info("Session ready", "code", state.Code, "slides", len(state.Slides), "index", state.CurrentSlideIndex)

	// Initialize the slide provider.
	gen, err := provider.Open(ctx, cfg.ProviderOptions(), logger)
	if err != nil {
		slog.Warn("Slide provider unavailable, falling back to canned slides", "error", err)
		gen = provider.Canned{}
	}
	if c, ok := gen.(io.Closer); ok {
		defer c.Close()
	}
	slides := provider.New(gen, cfg.Provider.Timeout, logger)

	// Initialize controllers.
	registry := control.NewRegistry(serverStore, cfg.Participant.IdleTTL, logger)
	presenter := control.NewPresenter(serverStore, slides, logger)
	conns := realtime.NewConnections()

	baseHandler := api.NewHandler(api.Deps{
		Store:       serverStore,
		Presenter:   presenter,
		Registry:    registry,
		Slot:        slot,
		Bus:         bus,
		Default:     seed,
		Connections: conns,
		Logger:      logger,
	})
	wsHandler := realtime.NewHandler(realtime.Config{
		Slot:          slot,
		Key:           cfg.Slot.Key,
		Bus:           bus,
		Default:       seed,
		Provider:      slides,
		Ignored:       registry.IgnoredCounter(),
		Connections:   conns,
		Registry:      registry,
		AllowedOrigin: cfg.FrontendURL,
		IsDev:         cfg.IsDevelopment(),
		Logger:        logger,
	})

	// Setup router.
	r := chi.NewRouter()

	// Global middleware.
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Heartbeat("/health"))
	r.Use(middleware.CORS(cfg.AllowedOrigins()))
	r.Use(identity.Middleware(cfg.IsDevelopment()))

	baseHandler.RegisterRoutes(r)

	// WebSocket endpoint.
	r.Get("/ws/session", wsHandler.ServeHTTP)

	// Note: SSE connections require long timeouts (no WriteTimeout)
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	registry.StartSweeper(ctx, cfg.Participant.SweepInterval)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("Server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	// Other processes sharing the slot only reach this one through the relay.
	if w, ok := slot.(store.Watcher); ok && cfg.Slot.Driver != store.DriverMemory {
		g.Go(func() error {
			err := session.Relay(gctx, w, cfg.Slot.Key, bus)
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("Server stopped with error", "error", err)
		os.Exit(1)
	}

	slog.Info("Server stopped successfully")
}
