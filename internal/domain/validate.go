package domain

import (
	"errors"
	"fmt"
)

// ErrInvalidSession is wrapped by every Validate failure.
var ErrInvalidSession = errors.New("invalid session")

// Validate checks the structural invariants of a document: slide ids are
// present and unique, poll option ids are unique within their slide, tallies
// are non-negative and the index points into a non-empty deck.
func Validate(s SessionState) error {
	if len(s.Slides) > 0 && (s.CurrentSlideIndex < 0 || s.CurrentSlideIndex >= len(s.Slides)) {
		return fmt.Errorf("%w: currentSlideIndex %d outside [0,%d)", ErrInvalidSession, s.CurrentSlideIndex, len(s.Slides))
	}
	seen := make(map[string]struct{}, len(s.Slides))
	for i, sl := range s.Slides {
		if sl == nil {
			return fmt.Errorf("%w: slide %d is nil", ErrInvalidSession, i)
		}
		id := sl.SlideID()
		if id == "" {
			return fmt.Errorf("%w: slide %d has no id", ErrInvalidSession, i)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%w: duplicate slide id %q", ErrInvalidSession, id)
		}
		seen[id] = struct{}{}
		if err := ValidateSlide(sl); err != nil {
			return err
		}
	}
	return nil
}

// ValidateSlide checks one slide's tally fields.
func ValidateSlide(sl Slide) error {
	switch v := sl.(type) {
	case *PollSlide:
		opts := make(map[string]struct{}, len(v.Options))
		for _, o := range v.Options {
			if o.ID == "" {
				return fmt.Errorf("%w: slide %q has an option without id", ErrInvalidSession, v.ID)
			}
			if _, dup := opts[o.ID]; dup {
				return fmt.Errorf("%w: slide %q repeats option id %q", ErrInvalidSession, v.ID, o.ID)
			}
			if o.Count < 0 {
				return fmt.Errorf("%w: option %q has negative count", ErrInvalidSession, o.ID)
			}
			opts[o.ID] = struct{}{}
		}
	case *WordCloudSlide:
		for _, w := range v.Words {
			if w.Count < 0 {
				return fmt.Errorf("%w: word %q has negative count", ErrInvalidSession, w.Text)
			}
		}
	}
	return nil
}
