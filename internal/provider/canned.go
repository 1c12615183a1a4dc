package provider

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/ashureev/hudong/internal/domain"
)

// maxCannedSlides caps how many slides Canned extracts from one document.
const maxCannedSlides = 6

// Canned is an offline backend. It answers every topic with the fallback
// slide and turns the first lines of a text document into slides.
type Canned struct{}

// GenerateSlide returns the fallback slide for t.
func (Canned) GenerateSlide(_ context.Context, topic string, t domain.SlideType) (domain.Slide, error) {
	return Fallback(topic, t), nil
}

// GenerateSlidesFromDocument builds a word cloud and a Q&A slide for each of
// the first non-blank lines of a UTF-8 text document. Other documents yield
// nothing.
func (Canned) GenerateSlidesFromDocument(_ context.Context, doc []byte, mimeType string) ([]domain.Slide, error) {
	if !isText(mimeType) || !utf8.Valid(doc) {
		return nil, nil
	}

	var slides []domain.Slide
	sc := bufio.NewScanner(bytes.NewReader(doc))
	for sc.Scan() && len(slides) < maxCannedSlides {
		line := strings.TrimSpace(strings.TrimLeft(sc.Text(), "#*-• \t"))
		if line == "" {
			continue
		}
		slides = append(slides,
			&domain.WordCloudSlide{ID: NewSlideID(), Question: fmt.Sprintf("用一个词概括：%s", line)},
			&domain.QnASlide{ID: NewSlideID(), Question: fmt.Sprintf("关于「%s」，您有什么疑问？", line)},
		)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("scan document: %w", err)
	}
	if len(slides) > maxCannedSlides {
		slides = slides[:maxCannedSlides]
	}
	return slides, nil
}

func isText(mimeType string) bool {
	mt := strings.ToLower(strings.TrimSpace(mimeType))
	if i := strings.IndexByte(mt, ';'); i >= 0 {
		mt = strings.TrimSpace(mt[:i])
	}
	return mt == "" || strings.HasPrefix(mt, "text/") || mt == "application/json" || mt == "application/x-yaml"
}
