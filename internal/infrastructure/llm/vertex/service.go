package vertex

import (
	"context"
	"fmt"

	"google.golang.org/api/aiplatform/v1"

	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/infrastructure/gcp"
)

// NewService builds an aiplatform client bound to the regional endpoint of location
// unless cfg.Endpoint overrides it.
func NewService(ctx context.Context, location string, cfg gcp.ClientConfig) (*aiplatform.Service, error) {
	if cfg.Endpoint == "" {
		cfg.Endpoint = gcp.RegionalEndpoint(location)
	}
	opts, err := gcp.ClientOptions(ctx, cfg)
	if err != nil {
		return nil, err
	}
	svc, err := aiplatform.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create aiplatform service: %w", err)
	}
	return svc, nil
}

func publisherModel(project, location, model string) string {
	return fmt.Sprintf("projects/%s/locations/%s/publishers/google/models/%s", project, location, model)
}
