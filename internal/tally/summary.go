package tally

import (
	"sort"

	"github.com/ashureev/hudong/internal/domain"
)

// OptionResult is one poll option with its share of the votes.
type OptionResult struct {
	ID      string  `json:"id"`
	Label   string  `json:"label"`
	Count   int     `json:"count"`
	Percent float64 `json:"percent"`
}

// Summary is the display-ready view of a slide's tally.
type Summary struct {
	SlideID  string             `json:"slideId"`
	Type     domain.SlideType   `json:"type"`
	Question string             `json:"question"`
	Total    int                `json:"total"`
	Options  []OptionResult     `json:"options,omitempty"`
	Words    []domain.WordEntry `json:"words,omitempty"`
	Entries  []string           `json:"qnaEntries,omitempty"`
}

// Summarize builds the results view for a slide. Poll percentages are 0 when
// nobody voted; words are ordered by count, most frequent first, keeping
// submission order between ties.
func Summarize(slide domain.Slide) Summary {
	if slide == nil {
		return Summary{}
	}
	s := Summary{
		SlideID:  slide.SlideID(),
		Type:     slide.Type(),
		Question: slide.SlideQuestion(),
		Total:    Count(slide),
	}
	switch sl := slide.(type) {
	case *domain.PollSlide:
		s.Options = make([]OptionResult, len(sl.Options))
		for i, o := range sl.Options {
			r := OptionResult{ID: o.ID, Label: o.Label, Count: o.Count}
			if s.Total > 0 {
				r.Percent = float64(o.Count) * 100 / float64(s.Total)
			}
			s.Options[i] = r
		}
	case *domain.WordCloudSlide:
		s.Words = append([]domain.WordEntry(nil), sl.Words...)
		sort.SliceStable(s.Words, func(i, j int) bool {
			return s.Words[i].Count > s.Words[j].Count
		})
	case *domain.QnASlide:
		s.Entries = append([]string(nil), sl.Entries...)
	}
	return s
}
