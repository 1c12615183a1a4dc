// Package provider produces new slides from a topic or a document. Backends
// implement Generator; Provider wraps one with a deadline, output checks and
// a deterministic fallback so callers always get usable slides.
package provider

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ashureev/hudong/internal/domain"
)

// DefaultTimeout bounds a single backend call.
const DefaultTimeout = 20 * time.Second

// ErrProviderTimeout is returned when a backend call outlives its deadline.
var ErrProviderTimeout = errors.New("slide provider timed out")

// ErrUnusable is wrapped when a backend returns slides that cannot be shown.
var ErrUnusable = errors.New("unusable provider output")

// Generator is a slide backend. Its output is checked and normalised by
// Provider, so backends may return loose ids or non-zero tallies.
type Generator interface {
	GenerateSlide(ctx context.Context, topic string, t domain.SlideType) (domain.Slide, error)
	GenerateSlidesFromDocument(ctx context.Context, doc []byte, mimeType string) ([]domain.Slide, error)
}

// Failure records a backend call that failed or returned unusable data.
type Failure struct {
	Op  string
	Err error
}

func (f *Failure) Error() string {
	return fmt.Sprintf("provider %s: %v", f.Op, f.Err)
}

func (f *Failure) Unwrap() error { return f.Err }

// Provider is the resilient front of a Generator.
type Provider struct {
	gen     Generator
	timeout time.Duration
	logger  *slog.Logger
}

// New wraps gen. timeout <= 0 uses DefaultTimeout.
func New(gen Generator, timeout time.Duration, logger *slog.Logger) *Provider {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{gen: gen, timeout: timeout, logger: logger}
}

// GenerateSlide returns a fresh slide of type t about topic. Backend failures
// are logged and answered with Fallback.
func (p *Provider) GenerateSlide(ctx context.Context, topic string, t domain.SlideType) domain.Slide {
	slide, err := p.generateSlide(ctx, topic, t)
	if err != nil {
		p.logger.Warn("Slide generation failed, using fallback",
			"topic", topic,
			"slide_type", string(t),
			"error", err)
		return Fallback(topic, t)
	}
	return slide
}

func (p *Provider) generateSlide(ctx context.Context, topic string, t domain.SlideType) (domain.Slide, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	slide, err := p.gen.GenerateSlide(ctx, topic, t)
	if err != nil {
		return nil, &Failure{Op: "generate_slide", Err: deadlineErr(ctx, err)}
	}
	out, err := Normalize(slide, t)
	if err != nil {
		return nil, &Failure{Op: "generate_slide", Err: err}
	}
	return out, nil
}

// GenerateSlidesFromDocument returns the slides a backend extracts from doc.
// An empty result means nothing could be extracted; failures are logged and
// also reported as empty.
func (p *Provider) GenerateSlidesFromDocument(ctx context.Context, doc []byte, mimeType string) []domain.Slide {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	slides, err := p.gen.GenerateSlidesFromDocument(ctx, doc, mimeType)
	if err != nil {
		p.logger.Warn("Document extraction failed",
			"mime_type", mimeType,
			"bytes", len(doc),
			"error", &Failure{Op: "generate_from_document", Err: deadlineErr(ctx, err)})
		return nil
	}

	out := make([]domain.Slide, 0, len(slides))
	for i, s := range slides {
		if s == nil {
			continue
		}
		n, err := Normalize(s, s.Type())
		if err != nil {
			p.logger.Warn("Dropping unusable extracted slide", "position", i, "error", err)
			continue
		}
		out = append(out, n)
	}
	return out
}

func deadlineErr(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrProviderTimeout, err)
	}
	return err
}
