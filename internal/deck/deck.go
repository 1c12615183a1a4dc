// Package deck provides the seed session used when the storage slot is empty.
package deck

import (
	"bytes"
	"fmt"
	"os"

	"github.com/ashureev/hudong/internal/domain"
	"gopkg.in/yaml.v3"
)

// File is the YAML shape of a deck on disk.
type File struct {
	Code              string               `yaml:"code"`
	IsActive          *bool                `yaml:"isActive"`
	CurrentSlideIndex int                  `yaml:"currentSlideIndex"`
	Slides            []domain.SlideRecord `yaml:"slides"`
}

// Default returns the built-in demo session.
func Default() domain.SessionState {
	return domain.SessionState{
		Code:              "8816 2024",
		IsActive:          true,
		CurrentSlideIndex: 0,
		Slides: []domain.Slide{
			&domain.PollSlide{
				ID:       "s1",
				Question: "您在日常教学/会议中最常遇到的痛点是什么？",
				Options: []domain.PollOption{
					{ID: "o1", Label: "听众参与度低", Count: 12},
					{ID: "o2", Label: "缺乏实时反馈", Count: 8},
					{ID: "o3", Label: "工具操作复杂", Count: 5},
					{ID: "o4", Label: "数据难以统计", Count: 15},
				},
			},
			&domain.WordCloudSlide{
				ID:       "s2",
				Question: "用一个词形容理想的互动课堂",
				Words: []domain.WordEntry{
					{Text: "活跃", Count: 5},
					{Text: "高效", Count: 3},
					{Text: "有趣", Count: 4},
					{Text: "启发", Count: 2},
					{Text: "连接", Count: 2},
					{Text: "创新", Count: 1},
					{Text: "轻松", Count: 1},
				},
			},
			&domain.QnASlide{
				ID:       "s3",
				Question: "关于互动教学，您有什么疑问？",
				Entries: []string{
					"如何平衡互动时间和讲课时间？",
					"大班课（100人+）如何保证每个人都能参与？",
				},
			},
		},
	}
}

// Load returns the deck at path, or Default when path is empty.
func Load(path string) (domain.SessionState, error) {
	if path == "" {
		return Default(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return domain.SessionState{}, fmt.Errorf("read deck: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML deck and checks it.
func Parse(data []byte) (domain.SessionState, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return domain.SessionState{}, fmt.Errorf("parse deck: %w", err)
	}

	s := domain.SessionState{
		Code:              f.Code,
		IsActive:          true,
		CurrentSlideIndex: f.CurrentSlideIndex,
		Slides:            make([]domain.Slide, 0, len(f.Slides)),
	}
	if f.IsActive != nil {
		s.IsActive = *f.IsActive
	}
	for i, rec := range f.Slides {
		sl, err := rec.Slide()
		if err != nil {
			return domain.SessionState{}, fmt.Errorf("deck slide %d: %w", i, err)
		}
		s.Slides = append(s.Slides, sl)
	}
	if err := domain.Validate(s); err != nil {
		return domain.SessionState{}, fmt.Errorf("deck: %w", err)
	}
	return s, nil
}
