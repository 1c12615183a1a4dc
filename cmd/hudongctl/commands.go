package main

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/ashureev/hudong/internal/control"
	"github.com/ashureev/hudong/internal/domain"
	"github.com/ashureev/hudong/internal/store"
	"github.com/ashureev/hudong/internal/tally"
	"github.com/spf13/cobra"
)

func newShowCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the session document",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			printSession(c.out, c.store.Current())
			return nil
		},
	}
}

func newMoveCmd(c *cli, name, short string) *cobra.Command {
	return &cobra.Command{
		Use:   name,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dir, err := control.ParseDirection(name)
			if err != nil {
				return err
			}
			moved, err := control.NewPresenter(c.store, nil, c.logger).Advance(cmd.Context(), dir)
			if err != nil {
				return err
			}
			reportMove(c.out, moved, c.store.Current())
			return nil
		},
	}
}

func newJumpCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "jump N",
		Short: "Display the slide at zero-based index N",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("index must be a number: %w", err)
			}
			moved, err := control.NewPresenter(c.store, nil, c.logger).JumpTo(cmd.Context(), n)
			if err != nil {
				return err
			}
			reportMove(c.out, moved, c.store.Current())
			return nil
		},
	}
}

func newRespondCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "respond SLIDE VALUE",
		Short: "Submit one participant response to the displayed slide",
		Long: `Submit one participant response. For polls VALUE is an option id, for
word clouds a word, for Q&A a question.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			var ignored atomic.Int64
			p := control.NewParticipant(c.store, &ignored, c.logger)
			value := strings.Join(args[1:], " ")
			if err := p.Submit(cmd.Context(), args[0], value); err != nil {
				return err
			}
			if ignored.Load() > 0 {
				fmt.Fprintf(c.out, "response to %s was not placed\n", args[0])
				return nil
			}
			fmt.Fprintf(c.out, "recorded %q on %s\n", value, args[0])
			return nil
		},
	}
}

func newResultsCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "results [SLIDE]",
		Short: "Print the tally of a slide, the displayed one by default",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			s := c.store.Current()
			slide := s.CurrentSlide()
			if len(args) == 1 {
				i := s.SlideIndex(args[0])
				if i < 0 {
					return fmt.Errorf("slide %q not found", args[0])
				}
				slide = s.Slides[i]
			}
			if slide == nil {
				return errors.New("deck is empty")
			}
			printSummary(c.out, tally.Summarize(slide))
			return nil
		},
	}
}

func newResetCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Overwrite the session with the seed deck",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := control.NewPresenter(c.store, nil, c.logger).Replace(cmd.Context(), c.seed); err != nil {
				return err
			}
			fmt.Fprintf(c.out, "session reset to %d slides\n", len(c.seed.Slides))
			return nil
		},
	}
}

func newWatchCmd(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Print the displayed slide whenever the session changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w, ok := c.slot.(store.Watcher)
			if !ok {
				return errors.New("storage slot does not support watching")
			}
			printCurrent(c.out, c.store.Current())
			err := w.Watch(cmd.Context(), c.key, func(doc []byte, _ int64) {
				s, err := domain.Decode(doc)
				if err != nil {
					c.logger.Warn("Ignoring undecodable session", "error", err)
					return
				}
				printCurrent(c.out, s)
			})
			if cmd.Context().Err() != nil {
				return nil
			}
			return err
		},
	}
}

func reportMove(w io.Writer, moved bool, s domain.SessionState) {
	if !moved {
		fmt.Fprintln(w, "no change")
	}
	printCurrent(w, s)
}

func printCurrent(w io.Writer, s domain.SessionState) {
	sl := s.CurrentSlide()
	if sl == nil {
		fmt.Fprintf(w, "[%s] no slides\n", s.Code)
		return
	}
	fmt.Fprintf(w, "[%s] %d/%d %s %s (%d responses)\n",
		s.Code, s.CurrentSlideIndex+1, len(s.Slides), sl.Type(), sl.SlideQuestion(), tally.Count(sl))
}

func printSession(w io.Writer, s domain.SessionState) {
	fmt.Fprintf(w, "code: %s  active: %v\n", s.Code, s.IsActive)
	for i, sl := range s.Slides {
		marker := " "
		if i == s.CurrentSlideIndex {
			marker = ">"
		}
		fmt.Fprintf(w, "%s %d %-4s %-9s %s (%d)\n",
			marker, i, sl.SlideID(), sl.Type(), sl.SlideQuestion(), tally.Count(sl))
	}
}

func printSummary(w io.Writer, sum tally.Summary) {
	fmt.Fprintf(w, "%s %s: %s\n", sum.SlideID, sum.Type, sum.Question)
	for _, o := range sum.Options {
		fmt.Fprintf(w, "  %-4s %-20s %4d %5.1f%%\n", o.ID, o.Label, o.Count, o.Percent)
	}
	for _, wd := range sum.Words {
		fmt.Fprintf(w, "  %-20s %4d\n", wd.Text, wd.Count)
	}
	for _, e := range sum.Entries {
		fmt.Fprintf(w, "  - %s\n", e)
	}
	fmt.Fprintf(w, "total: %d\n", sum.Total)
}
