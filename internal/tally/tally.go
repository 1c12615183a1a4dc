// Package tally folds participant responses into slide tallies.
package tally

import (
	"github.com/ashureev/hudong/internal/domain"
)

// Outcome says what Apply did with a response.
type Outcome int

const (
	// Applied means the targeted slide changed.
	Applied Outcome = iota
	// SlideNotFound means no slide carries the requested id.
	SlideNotFound
	// OptionNotFound means a poll vote named an option the slide does not have.
	OptionNotFound
)

func (o Outcome) String() string {
	switch o {
	case Applied:
		return "applied"
	case SlideNotFound:
		return "slide_not_found"
	case OptionNotFound:
		return "option_not_found"
	default:
		return "unknown"
	}
}

// Apply returns a copy of session with raw folded into the slide identified
// by slideID. Lookup misses leave the document unchanged; the outcome only
// reports why.
//
// For polls raw is an option id, for word clouds the exact submitted text,
// and for Q&A a free-text entry placed at the front.
func Apply(session domain.SessionState, slideID, raw string) (domain.SessionState, Outcome) {
	idx := session.SlideIndex(slideID)
	if idx < 0 {
		return session, SlideNotFound
	}

	next := session
	next.Slides = append([]domain.Slide(nil), session.Slides...)
	updated := session.Slides[idx].CloneSlide()

	switch sl := updated.(type) {
	case *domain.PollSlide:
		opt := sl.Option(raw)
		if opt < 0 {
			return session, OptionNotFound
		}
		sl.Options[opt].Count++
	case *domain.WordCloudSlide:
		found := false
		for i := range sl.Words {
			if sl.Words[i].Text == raw {
				sl.Words[i].Count++
				found = true
				break
			}
		}
		if !found {
			sl.Words = append(sl.Words, domain.WordEntry{Text: raw, Count: 1})
		}
	case *domain.QnASlide:
		entries := make([]string, 0, len(sl.Entries)+1)
		entries = append(entries, raw)
		sl.Entries = append(entries, sl.Entries...)
	}

	next.Slides[idx] = updated
	return next, Applied
}

// Count is the number of responses a slide holds: summed counts for polls
// and word clouds, number of entries for Q&A, 0 for nil.
func Count(slide domain.Slide) int {
	switch sl := slide.(type) {
	case *domain.PollSlide:
		total := 0
		for _, o := range sl.Options {
			total += o.Count
		}
		return total
	case *domain.WordCloudSlide:
		total := 0
		for _, w := range sl.Words {
			total += w.Count
		}
		return total
	case *domain.QnASlide:
		return len(sl.Entries)
	default:
		return 0
	}
}
