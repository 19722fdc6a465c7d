package gcp

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
)

const cloudPlatformScope = "https://www.googleapis.com/auth/cloud-platform"

// ClientConfig selects endpoint and credentials for a Google API service.
type ClientConfig struct {
	// Endpoint overrides the service base URL, e.g. a regional or public index endpoint.
	Endpoint string
	// CredentialsFile points to a service account key; empty means application default credentials.
	CredentialsFile string
	// HTTPClient replaces authentication entirely. Used against local emulators and in tests.
	HTTPClient *http.Client
}

func ClientOptions(ctx context.Context, cfg ClientConfig) ([]option.ClientOption, error) {
	var opts []option.ClientOption
	if endpoint := strings.TrimSpace(cfg.Endpoint); endpoint != "" {
		opts = append(opts, option.WithEndpoint(endpoint))
	}
	if cfg.HTTPClient != nil {
		return append(opts, option.WithHTTPClient(cfg.HTTPClient)), nil
	}

	ts, err := TokenSource(ctx, cfg.CredentialsFile)
	if err != nil {
		return nil, err
	}
	return append(opts, option.WithTokenSource(ts)), nil
}

func TokenSource(ctx context.Context, credentialsFile string) (oauth2.TokenSource, error) {
	if strings.TrimSpace(credentialsFile) == "" {
		ts, err := google.DefaultTokenSource(ctx, cloudPlatformScope)
		if err != nil {
			return nil, fmt.Errorf("default google credentials: %w", err)
		}
		return ts, nil
	}

	data, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("read credentials file: %w", err)
	}
	creds, err := google.CredentialsFromJSON(ctx, data, cloudPlatformScope)
	if err != nil {
		return nil, fmt.Errorf("parse credentials file: %w", err)
	}
	return creds.TokenSource, nil
}

// RegionalEndpoint is the Vertex AI base URL for a location.
func RegionalEndpoint(location string) string {
	location = strings.TrimSpace(location)
	if location == "" || location == "global" {
		return "https://aiplatform.googleapis.com/"
	}
	return fmt.Sprintf("https://%s-aiplatform.googleapis.com/", location)
}
