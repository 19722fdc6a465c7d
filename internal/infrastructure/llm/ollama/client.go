package ollama

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/Lecture-Assistant-Chatbot/lecture-assistant/internal/core/domain"
)

type Options struct {
	Temperature float64
	NumPredict  int
}

type Client struct {
	baseURL    string
	genModel   string
	embedModel string
	options    Options
	httpClient *http.Client
}

func New(baseURL, genModel, embedModel string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		genModel:   genModel,
		embedModel: embedModel,
		options:    Options{Temperature: 0.2, NumPredict: 512},
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *Client) WithOptions(opts Options) *Client {
	c.options = opts
	return c
}

type Embedder struct {
	client *Client
}

func NewEmbedder(client *Client) *Embedder {
	return &Embedder{client: client}
}

// EmbedBatch calls /api/embed with the whole batch; Ollama answers in input order.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	request := map[string]any{
		"model": e.client.embedModel,
		"input": texts,
	}

	var response struct {
		Embeddings [][]float32 `json:"embeddings"`
	}
	if err := e.client.postJSON(ctx, "/api/embed", request, &response, "embed"); err != nil {
		return nil, wrapProviderError("ollama embed", err)
	}
	return response.Embeddings, nil
}

type Generator struct {
	client *Client
}

func NewGenerator(client *Client) *Generator {
	return &Generator{client: client}
}

func (g *Generator) Generate(ctx context.Context, prompt domain.Prompt) (string, error) {
	reqBody := map[string]any{
		"model":  g.client.genModel,
		"prompt": prompt.User,
		"stream": false,
		"options": map[string]any{
			"temperature": g.client.options.Temperature,
			"num_predict": g.client.options.NumPredict,
		},
	}
	if prompt.System != "" {
		reqBody["system"] = prompt.System
	}

	var response struct {
		Response string `json:"response"`
	}
	if err := g.client.postJSON(ctx, "/api/generate", reqBody, &response, "generate"); err != nil {
		return "", wrapProviderError("ollama generate", err)
	}
	return strings.TrimSpace(response.Response), nil
}
