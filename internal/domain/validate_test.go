package domain

import (
	"errors"
	"testing"
)

func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*SessionState)
		wantErr bool
	}{
		{"valid", func(*SessionState) {}, false},
		{"empty deck", func(s *SessionState) { s.Slides = nil; s.CurrentSlideIndex = 7 }, false},
		{"index past end", func(s *SessionState) { s.CurrentSlideIndex = 3 }, true},
		{"negative index", func(s *SessionState) { s.CurrentSlideIndex = -1 }, true},
		{"duplicate slide id", func(s *SessionState) { s.Slides[1] = &QnASlide{ID: "s1"} }, true},
		{"missing slide id", func(s *SessionState) { s.Slides[2] = &QnASlide{} }, true},
		{"duplicate option id", func(s *SessionState) {
			s.Slides[0].(*PollSlide).Options[1].ID = "o1"
		}, true},
		{"negative count", func(s *SessionState) {
			s.Slides[1].(*WordCloudSlide).Words[0].Count = -1
		}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := sampleSession()
			tt.mutate(&s)
			err := Validate(s)
			if tt.wantErr != (err != nil) {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrInvalidSession) {
				t.Fatalf("expected ErrInvalidSession, got %v", err)
			}
		})
	}
}
