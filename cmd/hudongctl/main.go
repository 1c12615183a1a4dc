// hudongctl - drive a hudong session from the terminal
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ashureev/hudong/internal/config"
	"github.com/ashureev/hudong/internal/deck"
	"github.com/ashureev/hudong/internal/domain"
	"github.com/ashureev/hudong/internal/session"
	"github.com/ashureev/hudong/internal/store"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// cli holds what every subcommand shares. The session context is opened in
// PersistentPreRunE; callers close it once Execute returns.
type cli struct {
	out    io.Writer
	logger *slog.Logger

	// open returns the slot, its key and the seed document.
	open func(ctx context.Context) (store.Slot, string, domain.SessionState, error)

	slot  store.Slot
	key   string
	seed  domain.SessionState
	store *session.Store
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	c := &cli{out: os.Stdout, open: openFromEnv}
	err := newRootCmd(c).ExecuteContext(ctx)
	c.close()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func openFromEnv(ctx context.Context) (store.Slot, string, domain.SessionState, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file found, using environment variables")
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, "", domain.SessionState{}, err
	}

	seed := deck.Default()
	if cfg.SeedPath != "" {
		if seed, err = deck.Load(cfg.SeedPath); err != nil {
			return nil, "", domain.SessionState{}, err
		}
	}

	if cfg.Slot.Driver == store.DriverMemory {
		return nil, "", domain.SessionState{}, fmt.Errorf("SLOT_DRIVER=memory is private to the server process")
	}
	slot, err := store.Open(ctx, cfg.StoreOptions())
	if err != nil {
		return nil, "", domain.SessionState{}, err
	}
	return slot, cfg.Slot.Key, seed, nil
}

func newRootCmd(c *cli) *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:   "hudongctl",
		Short: "Drive a hudong session from the terminal",
		Long: `hudongctl opens the configured storage slot as its own session
context. Changes it commits reach running servers through their slot relay.

Configuration is read from the same environment variables as the server
(SLOT_DRIVER, DB_PATH, SLOT_DIR, DATABASE_URL, SLOT_KEY, SEED_PATH).`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			level := slog.LevelWarn
			if verbose {
				level = slog.LevelInfo
			}
			c.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
			if c.out == nil {
				c.out = cmd.OutOrStdout()
			}
			return c.connect(cmd.Context())
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log session activity to stderr")

	root.AddCommand(
		newShowCmd(c),
		newMoveCmd(c, "next", "Display the next slide"),
		newMoveCmd(c, "prev", "Display the previous slide"),
		newJumpCmd(c),
		newRespondCmd(c),
		newResultsCmd(c),
		newResetCmd(c),
		newWatchCmd(c),
	)
	return root
}

func (c *cli) connect(ctx context.Context) error {
	slot, key, seed, err := c.open(ctx)
	if err != nil {
		return err
	}
	c.slot, c.key, c.seed = slot, key, seed
	c.store = session.New(slot, key, nil, seed, c.logger)
	if _, err := c.store.Initialize(ctx); err != nil {
		c.logger.Warn("Session initialized with seed", "error", err)
	}
	return nil
}

func (c *cli) close() {
	if c.store != nil {
		c.store.Close()
	}
	if c.slot != nil {
		if err := c.slot.Close(); err != nil {
			c.logger.Warn("Failed to close storage slot", "error", err)
		}
	}
}
