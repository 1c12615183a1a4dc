// Package domain contains the session document shared by every view.
package domain

import (
	"encoding/json"
	"fmt"
)

// SessionState is the single root document: the ordered slide deck, the
// pointer to the displayed slide and the join code.
type SessionState struct {
	Code              string  `json:"code"`
	IsActive          bool    `json:"isActive"`
	CurrentSlideIndex int     `json:"currentSlideIndex"`
	Slides            []Slide `json:"slides"`
}

// DeserializationError reports a persisted or broadcast document that could
// not be parsed.
type DeserializationError struct {
	Err error
}

func (e *DeserializationError) Error() string {
	return fmt.Sprintf("deserialize session: %v", e.Err)
}

func (e *DeserializationError) Unwrap() error { return e.Err }

// Clone returns a deep copy that shares no slices with s.
func (s SessionState) Clone() SessionState {
	c := s
	if s.Slides != nil {
		c.Slides = make([]Slide, len(s.Slides))
		for i, sl := range s.Slides {
			c.Slides[i] = sl.CloneSlide()
		}
	}
	return c
}

// CurrentSlide returns the displayed slide, or nil when the index does not
// point into the deck.
func (s SessionState) CurrentSlide() Slide {
	if s.CurrentSlideIndex < 0 || s.CurrentSlideIndex >= len(s.Slides) {
		return nil
	}
	return s.Slides[s.CurrentSlideIndex]
}

// SlideIndex returns the position of the slide with the given id, or -1.
func (s SessionState) SlideIndex(id string) int {
	for i, sl := range s.Slides {
		if sl.SlideID() == id {
			return i
		}
	}
	return -1
}

// HasSlideID reports whether any slide in the deck uses id.
func (s SessionState) HasSlideID(id string) bool {
	return s.SlideIndex(id) >= 0
}

type sessionAlias SessionState

// MarshalJSON encodes the document; an absent deck is written as [].
func (s SessionState) MarshalJSON() ([]byte, error) {
	a := sessionAlias(s)
	a.Slides = nonNil(a.Slides)
	return json.Marshal(a)
}

// UnmarshalJSON decodes the document, dispatching each slide on its type tag.
func (s *SessionState) UnmarshalJSON(data []byte) error {
	var raw struct {
		Code              string            `json:"code"`
		IsActive          bool              `json:"isActive"`
		CurrentSlideIndex int               `json:"currentSlideIndex"`
		Slides            []json.RawMessage `json:"slides"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	slides := make([]Slide, 0, len(raw.Slides))
	for i, r := range raw.Slides {
		sl, err := UnmarshalSlide(r)
		if err != nil {
			return fmt.Errorf("slide %d: %w", i, err)
		}
		slides = append(slides, sl)
	}
	*s = SessionState{
		Code:              raw.Code,
		IsActive:          raw.IsActive,
		CurrentSlideIndex: raw.CurrentSlideIndex,
		Slides:            slides,
	}
	return nil
}

// Encode serializes the document for a storage slot or broadcast.
func Encode(s SessionState) ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode session: %w", err)
	}
	return data, nil
}

// Decode parses a stored document. Any failure is a *DeserializationError.
func Decode(data []byte) (SessionState, error) {
	var s SessionState
	if err := json.Unmarshal(data, &s); err != nil {
		return SessionState{}, &DeserializationError{Err: err}
	}
	return s, nil
}
