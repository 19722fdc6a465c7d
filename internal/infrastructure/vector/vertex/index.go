package vertex

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/api/aiplatform/v1"

	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/core/domain"
	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/infrastructure/gcp"
)

// Restrict namespaces written on every datapoint. Matching Engine has no payload store,
// so chunk text travels as a restrict token.
const (
	NamespaceSourceFile = "source_file"
	NamespaceText       = "text"

	DefaultTextRestrictChars = 1000
)

type Config struct {
	Project  string
	Location string
	// IndexID and IndexEndpoint accept either a bare id or a full resource name.
	IndexID           string
	IndexEndpoint     string
	TextRestrictChars int
}

// Index is a Vertex AI Matching Engine backend. Writes go to the index resource through
// svc; queries go to the deployed endpoint through querySvc, which may target a public
// endpoint domain.
type Index struct {
	svc          *aiplatform.Service
	querySvc     *aiplatform.Service
	indexName    string
	endpointName string
	textChars    int
}

func New(svc, querySvc *aiplatform.Service, cfg Config) (*Index, error) {
	if strings.TrimSpace(cfg.IndexID) == "" || strings.TrimSpace(cfg.IndexEndpoint) == "" {
		return nil, fmt.Errorf("vertex index id and index endpoint are required")
	}
	if querySvc == nil {
		querySvc = svc
	}
	if cfg.TextRestrictChars <= 0 {
		cfg.TextRestrictChars = DefaultTextRestrictChars
	}
	return &Index{
		svc:          svc,
		querySvc:     querySvc,
		indexName:    resourceName(cfg.Project, cfg.Location, "indexes", cfg.IndexID),
		endpointName: resourceName(cfg.Project, cfg.Location, "indexEndpoints", cfg.IndexEndpoint),
		textChars:    cfg.TextRestrictChars,
	}, nil
}

func (x *Index) UpsertBatch(ctx context.Context, records []domain.IndexRecord) error {
	datapoints := make([]*aiplatform.GoogleCloudAiplatformV1IndexDatapoint, 0, len(records))
	for _, record := range records {
		datapoints = append(datapoints, x.toDatapoint(record))
	}

	req := &aiplatform.GoogleCloudAiplatformV1UpsertDatapointsRequest{Datapoints: datapoints}
	if _, err := x.svc.Projects.Locations.Indexes.UpsertDatapoints(x.indexName, req).Context(ctx).Do(); err != nil {
		return gcp.WrapError("vertex upsert datapoints", err, domain.ErrIndexUnavailable)
	}
	return nil
}

func (x *Index) Query(ctx context.Context, vector []float32, topK int, deployedIndexID string) ([]domain.Neighbor, error) {
	if strings.TrimSpace(deployedIndexID) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "vertex find neighbors", fmt.Errorf("deployed index id is empty"))
	}

	req := &aiplatform.GoogleCloudAiplatformV1FindNeighborsRequest{
		DeployedIndexId: deployedIndexID,
		Queries: []*aiplatform.GoogleCloudAiplatformV1FindNeighborsRequestQuery{{
			Datapoint:     &aiplatform.GoogleCloudAiplatformV1IndexDatapoint{FeatureVector: toFloat64(vector)},
			NeighborCount: int64(topK),
		}},
		ReturnFullDatapoint: true,
	}
	resp, err := x.querySvc.Projects.Locations.IndexEndpoints.FindNeighbors(x.endpointName, req).Context(ctx).Do()
	if err != nil {
		return nil, gcp.WrapError("vertex find neighbors", err, domain.ErrIndexUnavailable)
	}
	if len(resp.NearestNeighbors) == 0 {
		return nil, nil
	}

	out := make([]domain.Neighbor, 0, len(resp.NearestNeighbors[0].Neighbors))
	for _, n := range resp.NearestNeighbors[0].Neighbors {
		if n == nil || n.Datapoint == nil {
			continue
		}
		out = append(out, domain.Neighbor{
			ID:       n.Datapoint.DatapointId,
			Distance: n.Distance,
			Metadata: restrictsToMetadata(n.Datapoint.Restricts),
		})
	}
	return out, nil
}

func (x *Index) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	req := &aiplatform.GoogleCloudAiplatformV1RemoveDatapointsRequest{DatapointIds: ids}
	if _, err := x.svc.Projects.Locations.Indexes.RemoveDatapoints(x.indexName, req).Context(ctx).Do(); err != nil {
		return gcp.WrapError("vertex remove datapoints", err, domain.ErrIndexUnavailable)
	}
	return nil
}

func (x *Index) toDatapoint(record domain.IndexRecord) *aiplatform.GoogleCloudAiplatformV1IndexDatapoint {
	dp := &aiplatform.GoogleCloudAiplatformV1IndexDatapoint{
		DatapointId:   record.ID,
		FeatureVector: toFloat64(record.Vector),
	}
	if source := record.Metadata[domain.MetaSourceDocumentID]; source != "" {
		dp.Restricts = append(dp.Restricts, &aiplatform.GoogleCloudAiplatformV1IndexDatapointRestriction{
			Namespace: NamespaceSourceFile,
			AllowList: []string{source},
		})
	}
	if text := truncateRunes(record.Metadata[domain.MetaText], x.textChars); text != "" {
		dp.Restricts = append(dp.Restricts, &aiplatform.GoogleCloudAiplatformV1IndexDatapointRestriction{
			Namespace: NamespaceText,
			AllowList: []string{text},
		})
	}
	return dp
}

func restrictsToMetadata(restricts []*aiplatform.GoogleCloudAiplatformV1IndexDatapointRestriction) map[string]string {
	meta := make(map[string]string, 2)
	for _, r := range restricts {
		if r == nil || len(r.AllowList) == 0 {
			continue
		}
		switch r.Namespace {
		case NamespaceText:
			meta[domain.MetaText] = strings.Join(r.AllowList, "\n")
		case NamespaceSourceFile:
			meta[domain.MetaSourceDocumentID] = r.AllowList[0]
		}
	}
	return meta
}

func resourceName(project, location, collection, id string) string {
	id = strings.TrimSpace(id)
	if strings.HasPrefix(id, "projects/") {
		return id
	}
	return fmt.Sprintf("projects/%s/locations/%s/%s/%s", project, location, collection, id)
}

func toFloat64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, f := range v {
		out[i] = float64(f)
	}
	return out
}

func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
