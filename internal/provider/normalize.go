package provider

import (
	"fmt"
	"strings"

	"github.com/ashureev/hudong/internal/domain"
	"github.com/google/uuid"
)

// NewSlideID returns a slide id that is never reused.
func NewSlideID() string {
	return "gen_" + uuid.NewString()
}

// Normalize checks that s is a presentable slide of type want and returns a
// copy with a fresh id, zeroed tallies and unique option ids.
func Normalize(s domain.Slide, want domain.SlideType) (domain.Slide, error) {
	if s == nil {
		return nil, fmt.Errorf("%w: no slide", ErrUnusable)
	}
	if s.Type() != want {
		return nil, fmt.Errorf("%w: got %s slide, want %s", ErrUnusable, s.Type(), want)
	}
	question := strings.TrimSpace(s.SlideQuestion())
	if question == "" {
		return nil, fmt.Errorf("%w: empty question", ErrUnusable)
	}

	id := NewSlideID()
	switch v := s.(type) {
	case *domain.PollSlide:
		opts := make([]domain.PollOption, 0, len(v.Options))
		for _, o := range v.Options {
			label := strings.TrimSpace(o.Label)
			if label == "" {
				continue
			}
			opts = append(opts, domain.PollOption{ID: fmt.Sprintf("o%d", len(opts)+1), Label: label})
		}
		if len(opts) < 2 {
			return nil, fmt.Errorf("%w: poll needs at least two options, got %d", ErrUnusable, len(opts))
		}
		return &domain.PollSlide{ID: id, Question: question, Options: opts}, nil
	case *domain.WordCloudSlide:
		return &domain.WordCloudSlide{ID: id, Question: question, Words: []domain.WordEntry{}}, nil
	case *domain.QnASlide:
		return &domain.QnASlide{ID: id, Question: question, Entries: []string{}}, nil
	}
	return nil, fmt.Errorf("%w: unsupported slide %T", ErrUnusable, s)
}

// Fallback is the slide shown when a backend cannot help. It depends only on
// topic and t, apart from its fresh id.
func Fallback(topic string, t domain.SlideType) domain.Slide {
	id := NewSlideID()
	topic = strings.TrimSpace(topic)
	switch t {
	case domain.SlideWordCloud:
		return &domain.WordCloudSlide{
			ID:       id,
			Question: fmt.Sprintf("用一个词描述您对「%s」的看法", topic),
			Words:    []domain.WordEntry{},
		}
	case domain.SlideQnA:
		return &domain.QnASlide{
			ID:       id,
			Question: fmt.Sprintf("关于「%s」，您有什么疑问？", topic),
			Entries:  []string{},
		}
	default:
		return &domain.PollSlide{
			ID:       id,
			Question: "AI 生成：人工智能对未来教育最大的影响是？",
			Options: []domain.PollOption{
				{ID: "go1", Label: "个性化学习路径"},
				{ID: "go2", Label: "教师角色的转变"},
				{ID: "go3", Label: "自动批改与评估"},
				{ID: "go4", Label: "全球知识的平权"},
			},
		}
	}
}
