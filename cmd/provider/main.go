// Hudong slide provider - serves slide generation over gRPC
package main

import (
	"context"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/ashureev/hudong/internal/config"
	"github.com/ashureev/hudong/internal/provider"
	"github.com/joho/godotenv"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	grpc_health_v1 "google.golang.org/grpc/health/grpc_health_v1"
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

	opts := cfg.ProviderOptions()
	if opts.Mode == provider.ModeGRPC {
		slog.Error("PROVIDER_MODE=grpc cannot be served, use genai, canned or auto")
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gen, err := provider.Open(ctx, opts, logger)
	if err != nil {
		slog.Error("Failed to initialize slide backend", "error", err)
		os.Exit(1)
	}

	lis, err := net.Listen("tcp", cfg.Provider.ListenAddr)
	if err != nil {
		slog.Error("Failed to listen", "addr", cfg.Provider.ListenAddr, "error", err)
		os.Exit(1)
	}

	grpcServer := grpc.NewServer()
	provider.RegisterSlideProviderServer(grpcServer, provider.NewServer(gen, logger))

	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(provider.ServiceName, grpc_health_v1.HealthCheckResponse_SERVING)

	go func() {
		<-ctx.Done()
		slog.Info("Shutting down gracefully...")
		healthServer.Shutdown()
		grpcServer.GracefulStop()
	}()

	slog.Info("Slide provider listening", "addr", lis.Addr().String(), "mode", opts.Mode)
	if err := grpcServer.Serve(lis); err != nil {
		slog.Error("Slide provider failed", "error", err)
		os.Exit(1)
	}

	slog.Info("Slide provider stopped successfully")
}
