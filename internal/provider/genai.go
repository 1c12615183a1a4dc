package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ashureev/hudong/internal/domain"
	"google.golang.org/genai"
)

// DefaultModel is used when no model is configured.
const DefaultModel = "gemini-2.5-flash"

// contentGenerator is the slice of *genai.Models this backend calls.
type contentGenerator interface {
	GenerateContent(ctx context.Context, model string, contents []*genai.Content, config *genai.GenerateContentConfig) (*genai.GenerateContentResponse, error)
}

// GenAI generates slides with Gemini structured output.
type GenAI struct {
	models contentGenerator
	model  string
}

// NewGenAI creates a Gemini client for apiKey.
func NewGenAI(ctx context.Context, apiKey, model string) (*GenAI, error) {
	if apiKey == "" {
		return nil, errors.New("GenAI API key is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return newGenAI(client.Models, model), nil
}

func newGenAI(models contentGenerator, model string) *GenAI {
	if model == "" {
		model = DefaultModel
	}
	return &GenAI{models: models, model: model}
}

type generatedOption struct {
	Label string `json:"label"`
}

type generatedSlide struct {
	Type     string            `json:"type"`
	Question string            `json:"question"`
	Options  []generatedOption `json:"options"`
}

func (g generatedSlide) slide(t domain.SlideType) domain.Slide {
	switch t {
	case domain.SlidePoll:
		opts := make([]domain.PollOption, 0, len(g.Options))
		for i, o := range g.Options {
			opts = append(opts, domain.PollOption{ID: fmt.Sprintf("o%d", i+1), Label: o.Label})
		}
		return &domain.PollSlide{Question: g.Question, Options: opts}
	case domain.SlideWordCloud:
		return &domain.WordCloudSlide{Question: g.Question}
	default:
		return &domain.QnASlide{Question: g.Question}
	}
}

var optionsSchema = &genai.Schema{
	Type:        genai.TypeArray,
	Description: "List of 3-4 options for the poll.",
	Items: &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"label": {Type: genai.TypeString, Description: "A poll option text."},
		},
		Required: []string{"label"},
	},
}

func slideSchema(t domain.SlideType) *genai.Schema {
	s := &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"question": {Type: genai.TypeString, Description: "The question shown to the audience."},
		},
		Required: []string{"question"},
	}
	if t == domain.SlidePoll {
		s.Properties["options"] = optionsSchema
		s.Required = append(s.Required, "options")
	}
	return s
}

var documentSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"slides": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"type": {
						Type: genai.TypeString,
						Enum: []string{string(domain.SlidePoll), string(domain.SlideWordCloud), string(domain.SlideQnA)},
					},
					"question": {Type: genai.TypeString},
					"options":  optionsSchema,
				},
				Required: []string{"type", "question"},
			},
		},
	},
	Required: []string{"slides"},
}

func slidePrompt(topic string, t domain.SlideType) string {
	switch t {
	case domain.SlideWordCloud:
		return fmt.Sprintf("Create a word cloud question about this topic: %q. The audience answers with a single word. Language must be Simplified Chinese.", topic)
	case domain.SlideQnA:
		return fmt.Sprintf("Create an open question inviting audience questions about this topic: %q. Language must be Simplified Chinese.", topic)
	default:
		return fmt.Sprintf("Create a poll question and options about this topic: %q. Language must be Simplified Chinese.", topic)
	}
}

const documentPrompt = "Read the attached document and create between three and six interactive slides for an audience: " +
	"polls (with 3-4 options), word clouds and open Q&A prompts. Language must be Simplified Chinese."

func (g *GenAI) generate(ctx context.Context, contents []*genai.Content, schema *genai.Schema, out any) error {
	resp, err := g.models.GenerateContent(ctx, g.model, contents, &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   schema,
	})
	if err != nil {
		return fmt.Errorf("generate content: %w", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return errors.New("empty response from model")
	}
	if err := json.Unmarshal([]byte(text), out); err != nil {
		return fmt.Errorf("decode model response: %w", err)
	}
	return nil
}

// GenerateSlide asks the model for one slide of type t.
func (g *GenAI) GenerateSlide(ctx context.Context, topic string, t domain.SlideType) (domain.Slide, error) {
	var out generatedSlide
	if err := g.generate(ctx, genai.Text(slidePrompt(topic, t)), slideSchema(t), &out); err != nil {
		return nil, err
	}
	return out.slide(t), nil
}

// GenerateSlidesFromDocument sends doc inline and asks for a mixed set of slides.
func (g *GenAI) GenerateSlidesFromDocument(ctx context.Context, doc []byte, mimeType string) ([]domain.Slide, error) {
	if len(doc) == 0 {
		return nil, nil
	}
	if mimeType == "" {
		mimeType = "text/plain"
	}
	contents := []*genai.Content{
		genai.NewContentFromParts([]*genai.Part{
			genai.NewPartFromBytes(doc, mimeType),
			genai.NewPartFromText(documentPrompt),
		}, genai.RoleUser),
	}

	var out struct {
		Slides []generatedSlide `json:"slides"`
	}
	if err := g.generate(ctx, contents, documentSchema, &out); err != nil {
		return nil, err
	}

	slides := make([]domain.Slide, 0, len(out.Slides))
	for _, s := range out.Slides {
		t, err := domain.ParseSlideType(s.Type)
		if err != nil {
			continue
		}
		slides = append(slides, s.slide(t))
	}
	return slides, nil
}
