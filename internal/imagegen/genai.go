package imagegen

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const defaultModel = "gemini-2.0-flash-preview-image-generation"

// ErrNoImage is returned when the model answered without an image part
var ErrNoImage = errors.New("model returned no image")

// Image is a generated picture
type Image struct {
	Data     []byte
	MIMEType string
}

// Generator produces an image from a text prompt
type Generator interface {
	Generate(ctx context.Context, prompt string) (*Image, error)
}

// GeminiGenerator generates images through the Gemini API
type GeminiGenerator struct {
	client *genai.Client
	model  string
}

// NewGeminiGenerator creates a generator for the given API key
func NewGeminiGenerator(ctx context.Context, apiKey, model string) (*GeminiGenerator, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini api key is required")
	}
	if model == "" {
		model = defaultModel
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}

	return &GeminiGenerator{client: client, model: model}, nil
}

func (g *GeminiGenerator) Generate(ctx context.Context, prompt string) (*Image, error) {
	result, err := g.client.Models.GenerateContent(ctx, g.model,
		[]*genai.Content{genai.NewContentFromText(prompt, genai.RoleUser)},
		&genai.GenerateContentConfig{
			ResponseModalities: []string{"TEXT", "IMAGE"},
		},
	)
	if err != nil {
		return nil, fmt.Errorf("image generation failed: %w", err)
	}
	return firstImage(result)
}

func firstImage(result *genai.GenerateContentResponse) (*Image, error) {
	if result == nil {
		return nil, ErrNoImage
	}
	for _, candidate := range result.Candidates {
		if candidate == nil || candidate.Content == nil {
			continue
		}
		for _, part := range candidate.Content.Parts {
			if part == nil || part.InlineData == nil || len(part.InlineData.Data) == 0 {
				continue
			}
			if !strings.HasPrefix(part.InlineData.MIMEType, "image/") {
				continue
			}
			return &Image{Data: part.InlineData.Data, MIMEType: part.InlineData.MIMEType}, nil
		}
	}
	return nil, ErrNoImage
}

// MakeVisualPrompt turns a project description into an image prompt
func MakeVisualPrompt(description string) string {
	return fmt.Sprintf("Create a visually appealing and professional app logo concept based on the following idea:\n\n'%s'\n\nUse a clean, minimal, modern style.",
		strings.TrimSpace(description))
}
