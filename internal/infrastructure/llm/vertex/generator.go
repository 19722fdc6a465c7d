package vertex

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/api/aiplatform/v1"

	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/core/domain"
	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/infrastructure/gcp"
)

type GenerationParams struct {
	Temperature     float64
	MaxOutputTokens int64
}

// Generator calls Gemini through generateContent.
type Generator struct {
	svc    *aiplatform.Service
	model  string
	params GenerationParams
}

func NewGenerator(svc *aiplatform.Service, project, location, model string, params GenerationParams) *Generator {
	return &Generator{
		svc:    svc,
		model:  publisherModel(project, location, model),
		params: params,
	}
}

func (g *Generator) Generate(ctx context.Context, prompt domain.Prompt) (string, error) {
	req := &aiplatform.GoogleCloudAiplatformV1GenerateContentRequest{
		Contents: []*aiplatform.GoogleCloudAiplatformV1Content{{
			Role:  "user",
			Parts: []*aiplatform.GoogleCloudAiplatformV1Part{{Text: prompt.User}},
		}},
		GenerationConfig: &aiplatform.GoogleCloudAiplatformV1GenerationConfig{
			Temperature:     g.params.Temperature,
			MaxOutputTokens: g.params.MaxOutputTokens,
		},
	}
	if prompt.System != "" {
		req.SystemInstruction = &aiplatform.GoogleCloudAiplatformV1Content{
			Parts: []*aiplatform.GoogleCloudAiplatformV1Part{{Text: prompt.System}},
		}
	}

	resp, err := g.svc.Projects.Locations.Publishers.Models.GenerateContent(g.model, req).Context(ctx).Do()
	if err != nil {
		return "", gcp.WrapError("gemini generate", err, domain.ErrTransient)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		reason := "no candidates"
		if resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != "" {
			reason = "prompt blocked: " + resp.PromptFeedback.BlockReason
		}
		return "", domain.WrapError(domain.ErrNonRetriable, "gemini generate", fmt.Errorf("%s", reason))
	}

	var b strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil {
			b.WriteString(part.Text)
		}
	}
	return strings.TrimSpace(b.String()), nil
}
