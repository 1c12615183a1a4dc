package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// SlideType identifies which variant a slide is.
type SlideType string

// Slide variants.
const (
	SlidePoll      SlideType = "POLL"
	SlideWordCloud SlideType = "WORD_CLOUD"
	SlideQnA       SlideType = "QNA"
)

// ErrUnknownSlideType is returned when a type tag names no known variant.
var ErrUnknownSlideType = errors.New("unknown slide type")

// ParseSlideType validates a raw type tag.
func ParseSlideType(raw string) (SlideType, error) {
	switch t := SlideType(raw); t {
	case SlidePoll, SlideWordCloud, SlideQnA:
		return t, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownSlideType, raw)
	}
}

// Slide is one interactive unit. The set of implementations is closed:
// *PollSlide, *WordCloudSlide and *QnASlide.
type Slide interface {
	SlideID() string
	SlideQuestion() string
	Type() SlideType
	CloneSlide() Slide
	isSlide()
}

// PollOption is one choice on a poll.
type PollOption struct {
	ID    string `json:"id" yaml:"id"`
	Label string `json:"label" yaml:"label"`
	Count int    `json:"count" yaml:"count"`
}

// WordEntry is one distinct submitted word and how often it was sent.
type WordEntry struct {
	Text  string `json:"text" yaml:"text"`
	Count int    `json:"count" yaml:"count"`
}

// PollSlide is a multiple-choice question.
type PollSlide struct {
	ID       string
	Question string
	Options  []PollOption
}

// WordCloudSlide collects short free-text words.
type WordCloudSlide struct {
	ID       string
	Question string
	Words    []WordEntry
}

// QnASlide collects questions from the audience, newest first.
type QnASlide struct {
	ID       string
	Question string
	Entries  []string
}

func (s *PollSlide) SlideID() string       { return s.ID }
func (s *PollSlide) SlideQuestion() string { return s.Question }
func (s *PollSlide) Type() SlideType       { return SlidePoll }
func (s *PollSlide) isSlide()              {}

// CloneSlide returns a deep copy.
func (s *PollSlide) CloneSlide() Slide {
	c := *s
	if s.Options != nil {
		c.Options = append([]PollOption(nil), s.Options...)
	}
	return &c
}

// Option returns the index of the option with the given id, or -1.
func (s *PollSlide) Option(id string) int {
	for i := range s.Options {
		if s.Options[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *WordCloudSlide) SlideID() string       { return s.ID }
func (s *WordCloudSlide) SlideQuestion() string { return s.Question }
func (s *WordCloudSlide) Type() SlideType       { return SlideWordCloud }
func (s *WordCloudSlide) isSlide()              {}

// CloneSlide returns a deep copy.
func (s *WordCloudSlide) CloneSlide() Slide {
	c := *s
	if s.Words != nil {
		c.Words = append([]WordEntry(nil), s.Words...)
	}
	return &c
}

func (s *QnASlide) SlideID() string       { return s.ID }
func (s *QnASlide) SlideQuestion() string { return s.Question }
func (s *QnASlide) Type() SlideType       { return SlideQnA }
func (s *QnASlide) isSlide()              {}

// CloneSlide returns a deep copy.
func (s *QnASlide) CloneSlide() Slide {
	c := *s
	if s.Entries != nil {
		c.Entries = append([]string(nil), s.Entries...)
	}
	return &c
}

// SlideRecord is the flat persisted shape of a slide: a type tag plus the
// optional field groups of every variant. It is only used at the edges
// (JSON documents, YAML decks, provider payloads).
type SlideRecord struct {
	ID         string       `json:"id" yaml:"id"`
	Type       SlideType    `json:"type" yaml:"type"`
	Question   string       `json:"question" yaml:"question"`
	Options    []PollOption `json:"options,omitempty" yaml:"options,omitempty"`
	Words      []WordEntry  `json:"words,omitempty" yaml:"words,omitempty"`
	QnAEntries []string     `json:"qnaEntries,omitempty" yaml:"qnaEntries,omitempty"`
}

// Slide converts the record into its variant. Field groups that do not
// belong to the tagged variant are dropped.
func (r SlideRecord) Slide() (Slide, error) {
	t, err := ParseSlideType(string(r.Type))
	if err != nil {
		return nil, err
	}
	switch t {
	case SlidePoll:
		return &PollSlide{ID: r.ID, Question: r.Question, Options: nonNil(r.Options)}, nil
	case SlideWordCloud:
		return &WordCloudSlide{ID: r.ID, Question: r.Question, Words: nonNil(r.Words)}, nil
	default:
		return &QnASlide{ID: r.ID, Question: r.Question, Entries: nonNil(r.QnAEntries)}, nil
	}
}

// RecordOf flattens a slide into its persisted shape.
func RecordOf(s Slide) SlideRecord {
	r := SlideRecord{ID: s.SlideID(), Type: s.Type(), Question: s.SlideQuestion()}
	switch v := s.(type) {
	case *PollSlide:
		r.Options = v.Options
	case *WordCloudSlide:
		r.Words = v.Words
	case *QnASlide:
		r.QnAEntries = v.Entries
	}
	return r
}

type pollWire struct {
	ID       string       `json:"id"`
	Type     SlideType    `json:"type"`
	Question string       `json:"question"`
	Options  []PollOption `json:"options"`
}

type wordCloudWire struct {
	ID       string      `json:"id"`
	Type     SlideType   `json:"type"`
	Question string      `json:"question"`
	Words    []WordEntry `json:"words"`
}

type qnaWire struct {
	ID         string    `json:"id"`
	Type       SlideType `json:"type"`
	Question   string    `json:"question"`
	QnAEntries []string  `json:"qnaEntries"`
}

// MarshalJSON writes the tagged wire form, always including the variant's
// field group.
func (s *PollSlide) MarshalJSON() ([]byte, error) {
	return json.Marshal(pollWire{ID: s.ID, Type: SlidePoll, Question: s.Question, Options: nonNil(s.Options)})
}

// MarshalJSON writes the tagged wire form.
func (s *WordCloudSlide) MarshalJSON() ([]byte, error) {
	return json.Marshal(wordCloudWire{ID: s.ID, Type: SlideWordCloud, Question: s.Question, Words: nonNil(s.Words)})
}

// MarshalJSON writes the tagged wire form.
func (s *QnASlide) MarshalJSON() ([]byte, error) {
	return json.Marshal(qnaWire{ID: s.ID, Type: SlideQnA, Question: s.Question, QnAEntries: nonNil(s.Entries)})
}

// UnmarshalSlide decodes one tagged slide.
func UnmarshalSlide(data []byte) (Slide, error) {
	var r SlideRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode slide: %w", err)
	}
	return r.Slide()
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
