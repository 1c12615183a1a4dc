package provider

import (
	"context"
	"fmt"
	"log/slog"
)

// Backend modes accepted by Open.
const (
	ModeAuto   = "auto"
	ModeGenAI  = "genai"
	ModeGRPC   = "grpc"
	ModeCanned = "canned"
)

// Options selects a backend.
type Options struct {
	Mode     string
	APIKey   string
	Model    string
	GRPCAddr string
}

// Open builds the backend named by opts.Mode. Auto picks genai when an API
// key is present and canned otherwise.
func Open(ctx context.Context, opts Options, logger *slog.Logger) (Generator, error) {
	if logger == nil {
		logger = slog.Default()
	}
	mode := opts.Mode
	if mode == "" || mode == ModeAuto {
		mode = ModeCanned
		if opts.APIKey != "" {
			mode = ModeGenAI
		}
	}

	switch mode {
	case ModeGenAI:
		g, err := NewGenAI(ctx, opts.APIKey, opts.Model)
		if err != nil {
			return nil, err
		}
		logger.Info("Slide provider ready", "mode", mode, "model", g.model)
		return g, nil
	case ModeGRPC:
		c, err := NewGRPCClient(opts.GRPCAddr, logger)
		if err != nil {
			return nil, err
		}
		return c, nil
	case ModeCanned:
		logger.Info("Slide provider ready", "mode", mode)
		return Canned{}, nil
	}
	return nil, fmt.Errorf("unknown provider mode %q", opts.Mode)
}
