package control

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"unicode/utf8"

	"github.com/ashureev/hudong/internal/domain"
	"github.com/ashureev/hudong/internal/tally"
)

// Rune limits on free-text answers.
const (
	MaxWordLength     = 15
	MaxQuestionLength = 100
)

var (
	// ErrAlreadyResponded is returned for a second answer to the displayed slide.
	ErrAlreadyResponded = errors.New("already responded to this slide")

	// ErrSlideNotDisplayed is returned for answers to a slide that is not on screen.
	ErrSlideNotDisplayed = errors.New("slide is not currently displayed")

	// ErrEmptyResponse is returned for blank free-text answers.
	ErrEmptyResponse = errors.New("response is empty")

	// ErrResponseTooLong is returned when free text exceeds its limit.
	ErrResponseTooLong = errors.New("response is too long")
)

// Participant submits one device's answers. Each displayed slide accepts one
// answer; the allowance resets when the displayed slide changes.
type Participant struct {
	store   Committer
	ignored *atomic.Int64
	logger  *slog.Logger

	mu        sync.Mutex
	displayed string
	responded bool
}

// NewParticipant returns a controller bound to store. ignored, when non-nil,
// counts submissions the aggregator could not place.
func NewParticipant(store Committer, ignored *atomic.Int64, logger *slog.Logger) *Participant {
	if logger == nil {
		logger = slog.Default()
	}
	if ignored == nil {
		ignored = new(atomic.Int64)
	}
	p := &Participant{store: store, ignored: ignored, logger: logger}
	p.Observe(store.Current())
	return p
}

// Observe records the slide shown in s and clears the responded flag if it
// changed.
func (p *Participant) Observe(s domain.SessionState) {
	id := ""
	if cur := s.CurrentSlide(); cur != nil {
		id = cur.SlideID()
	}
	p.mu.Lock()
	if id != p.displayed {
		p.displayed = id
		p.responded = false
	}
	p.mu.Unlock()
}

// CanRespond reports whether the displayed slide still takes an answer.
func (p *Participant) CanRespond() bool {
	p.Observe(p.store.Current())
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.displayed != "" && !p.responded
}

// Submit records value against slideID, which must be the displayed slide.
func (p *Participant) Submit(ctx context.Context, slideID, value string) error {
	current := p.store.Current()
	p.Observe(current)

	p.mu.Lock()
	defer p.mu.Unlock()

	if slideID != p.displayed {
		return ErrSlideNotDisplayed
	}
	if p.responded {
		return ErrAlreadyResponded
	}
	if err := checkValue(current.CurrentSlide(), value); err != nil {
		return err
	}

	var outcome tally.Outcome
	_, err := p.store.Update(ctx, func(s domain.SessionState) (domain.SessionState, bool) {
		var next domain.SessionState
		next, outcome = tally.Apply(s, slideID, value)
		return next, outcome == tally.Applied
	})
	if err != nil {
		return err
	}
	if outcome != tally.Applied {
		p.ignored.Add(1)
		p.logger.Warn("Response ignored", "slide_id", slideID, "outcome", outcome.String())
	}
	p.responded = true
	return nil
}

// Ignored returns the shared count of unplaced submissions.
func (p *Participant) Ignored() int64 { return p.ignored.Load() }

func checkValue(slide domain.Slide, value string) error {
	if slide == nil {
		return nil
	}
	limit := 0
	switch slide.Type() {
	case domain.SlideWordCloud:
		limit = MaxWordLength
	case domain.SlideQnA:
		limit = MaxQuestionLength
	default:
		return nil
	}
	if strings.TrimSpace(value) == "" {
		return ErrEmptyResponse
	}
	if utf8.RuneCountInString(value) > limit {
		return ErrResponseTooLong
	}
	return nil
}
