package vertex

import (
	"context"
	"encoding/json"
	"fmt"

	"google.golang.org/api/aiplatform/v1"

	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/core/domain"
	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/infrastructure/gcp"
)

// Embedder calls the text embedding model through the Predict API.
type Embedder struct {
	svc       *aiplatform.Service
	model     string
	taskType  string
	dimension int
}

func NewEmbedder(svc *aiplatform.Service, project, location, model string, dimension int) *Embedder {
	return &Embedder{
		svc:       svc,
		model:     publisherModel(project, location, model),
		dimension: dimension,
	}
}

// WithTaskType sets the task_type hint, e.g. RETRIEVAL_DOCUMENT.
func (e *Embedder) WithTaskType(taskType string) *Embedder {
	e.taskType = taskType
	return e
}

type embeddingInstance struct {
	Content  string `json:"content"`
	TaskType string `json:"task_type,omitempty"`
}

type embeddingPrediction struct {
	Embeddings struct {
		Values []float32 `json:"values"`
	} `json:"embeddings"`
}

func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	instances := make([]interface{}, 0, len(texts))
	for _, text := range texts {
		instances = append(instances, embeddingInstance{Content: text, TaskType: e.taskType})
	}
	req := &aiplatform.GoogleCloudAiplatformV1PredictRequest{Instances: instances}
	if e.dimension > 0 {
		req.Parameters = map[string]any{"outputDimensionality": e.dimension}
	}

	resp, err := e.svc.Projects.Locations.Publishers.Models.Predict(e.model, req).Context(ctx).Do()
	if err != nil {
		return nil, gcp.WrapError("vertex embed", err, domain.ErrTransient)
	}

	out := make([][]float32, 0, len(resp.Predictions))
	for i, raw := range resp.Predictions {
		var prediction embeddingPrediction
		data, err := json.Marshal(raw)
		if err == nil {
			err = json.Unmarshal(data, &prediction)
		}
		if err != nil {
			return nil, domain.WrapError(domain.ErrDataIntegrity, "vertex embed", fmt.Errorf("decode prediction %d: %w", i, err))
		}
		out = append(out, prediction.Embeddings.Values)
	}
	return out, nil
}
