// Package control holds the presenter and participant controllers. Both read
// the session through a Session Store and route every mutation through its
// Commit.
package control

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/ashureev/hudong/internal/domain"
	"github.com/ashureev/hudong/internal/tally"
)

var (
	// ErrEmptyTopic is returned when slide generation is asked for with a blank topic.
	ErrEmptyTopic = errors.New("topic is required")

	// ErrNothingExtracted means the provider found no slides in a document.
	ErrNothingExtracted = errors.New("no slides could be extracted from the document")

	// ErrNoSlides is returned when appending an empty batch.
	ErrNoSlides = errors.New("no slides to append")
)

// Committer is the part of a Session Store the controllers need.
type Committer interface {
	Current() domain.SessionState
	Commit(ctx context.Context, s domain.SessionState) error
	Update(ctx context.Context, fn func(domain.SessionState) (domain.SessionState, bool)) (bool, error)
}

// SlideProvider produces new slides. Implementations never return malformed
// slides; GenerateSlide always returns a slide of the requested type.
type SlideProvider interface {
	GenerateSlide(ctx context.Context, topic string, t domain.SlideType) domain.Slide
	GenerateSlidesFromDocument(ctx context.Context, doc []byte, mimeType string) []domain.Slide
}

// Direction moves the presenter one slide forward or back.
type Direction int

const (
	Next Direction = 1
	Prev Direction = -1
)

// ParseDirection accepts "next" and "prev".
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(s) {
	case "next":
		return Next, nil
	case "prev", "previous":
		return Prev, nil
	}
	return 0, fmt.Errorf("unknown direction %q", s)
}

func (d Direction) String() string {
	if d == Prev {
		return "prev"
	}
	return "next"
}

// Presenter drives navigation and slide creation.
type Presenter struct {
	store    Committer
	provider SlideProvider
	logger   *slog.Logger
}

// NewPresenter returns a presenter. provider may be nil when generation is
// not offered.
func NewPresenter(store Committer, provider SlideProvider, logger *slog.Logger) *Presenter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Presenter{store: store, provider: provider, logger: logger}
}

// CurrentSlide returns the displayed slide, or nil for an empty deck.
func (p *Presenter) CurrentSlide() domain.Slide {
	return p.store.Current().CurrentSlide()
}

// ResponseCount is recomputed from the slide on every call.
func (p *Presenter) ResponseCount(slide domain.Slide) int {
	return tally.Count(slide)
}

// Advance moves one slide in dir. Moving past either end does nothing and
// reports false.
func (p *Presenter) Advance(ctx context.Context, dir Direction) (bool, error) {
	return p.moveTo(ctx, func(s domain.SessionState) int { return s.CurrentSlideIndex + int(dir) })
}

// JumpTo displays the slide at index. Out-of-range indexes do nothing and
// report false.
func (p *Presenter) JumpTo(ctx context.Context, index int) (bool, error) {
	return p.moveTo(ctx, func(domain.SessionState) int { return index })
}

func (p *Presenter) moveTo(ctx context.Context, target func(domain.SessionState) int) (bool, error) {
	var index int
	changed, err := p.store.Update(ctx, func(s domain.SessionState) (domain.SessionState, bool) {
		index = target(s)
		if index < 0 || index >= len(s.Slides) {
			return s, false
		}
		s.CurrentSlideIndex = index
		return s, true
	})
	if changed && err == nil {
		p.logger.Info("Slide changed", "index", index)
	}
	return changed, err
}

// AppendSlides adds slides to the end of the deck and displays the first of
// them.
func (p *Presenter) AppendSlides(ctx context.Context, slides []domain.Slide) error {
	if len(slides) == 0 {
		return ErrNoSlides
	}
	for i, sl := range slides {
		if sl == nil {
			return fmt.Errorf("%w: appended slide %d is nil", domain.ErrInvalidSession, i)
		}
	}

	var (
		first      int
		invalidErr error
	)
	_, err := p.store.Update(ctx, func(s domain.SessionState) (domain.SessionState, bool) {
		first = len(s.Slides)
		for _, sl := range slides {
			s.Slides = append(s.Slides, sl.CloneSlide())
		}
		s.CurrentSlideIndex = first
		if invalidErr = domain.Validate(s); invalidErr != nil {
			return s, false
		}
		return s, true
	})
	if invalidErr != nil {
		return invalidErr
	}
	if err != nil {
		return err
	}
	p.logger.Info("Slides appended", "count", len(slides), "index", first)
	return nil
}

// Replace commits a whole new document.
func (p *Presenter) Replace(ctx context.Context, s domain.SessionState) error {
	if err := domain.Validate(s); err != nil {
		return err
	}
	return p.store.Commit(ctx, s)
}

// GenerateSlide asks the provider for a slide about topic and appends it.
func (p *Presenter) GenerateSlide(ctx context.Context, topic string, t domain.SlideType) (domain.Slide, error) {
	if strings.TrimSpace(topic) == "" {
		return nil, ErrEmptyTopic
	}
	if _, err := domain.ParseSlideType(string(t)); err != nil {
		return nil, err
	}
	if p.provider == nil {
		return nil, errors.New("slide generation is not configured")
	}

	slide := p.provider.GenerateSlide(ctx, topic, t)
	if err := p.AppendSlides(ctx, []domain.Slide{slide}); err != nil {
		return nil, err
	}
	return slide, nil
}

// ImportDocument appends every slide the provider extracts from doc.
func (p *Presenter) ImportDocument(ctx context.Context, doc []byte, mimeType string) ([]domain.Slide, error) {
	if p.provider == nil {
		return nil, errors.New("slide generation is not configured")
	}
	slides := p.provider.GenerateSlidesFromDocument(ctx, doc, mimeType)
	if len(slides) == 0 {
		p.logger.Warn("Document import produced no slides", "mime_type", mimeType, "bytes", len(doc))
		return nil, ErrNothingExtracted
	}
	if err := p.AppendSlides(ctx, slides); err != nil {
		return nil, err
	}
	return slides, nil
}
