package adapters

import (
	"context"

	"paperbase/internal/config"
	"paperbase/internal/models"
)

// RemoteEmbedder is the optional network embedder. It satisfies
// embedding.Embedder so the pipeline does not care which one is wired.
type RemoteEmbedder struct {
	client    *serviceClient
	modelName string
	dim       int
}

// NewRemoteEmbedder creates the remote embedding adapter behind its breaker.
func NewRemoteEmbedder(cfg config.AdapterConfig, retry config.RetryConfig, breaker *CircuitBreaker, modelName string, dim int) *RemoteEmbedder {
	return &RemoteEmbedder{
		client:    newServiceClient(ServiceEmbedder, cfg, retry, breaker),
		modelName: modelName,
		dim:       dim,
	}
}

type embedRequest struct {
	Texts []string `json:"texts"`
	Model string   `json:"model"`
}

type embedResponse struct {
	Vectors [][]float32 `json:"vectors"`
}

// EmbedPages implements embedding.Embedder.
func (e *RemoteEmbedder) EmbedPages(ctx context.Context, texts []string) ([][]float32, error) {
	var resp embedResponse
	err := e.client.postJSON(ctx, "/embed", embedRequest{Texts: texts, Model: e.modelName}, &resp)
	if err != nil {
		return nil, err
	}
	if len(resp.Vectors) != len(texts) {
		return nil, models.Errorf(models.KindDataIntegrity, ServiceEmbedder,
			"embedder returned %d vectors for %d texts", len(resp.Vectors), len(texts))
	}
	for i, v := range resp.Vectors {
		if len(v) != e.dim {
			return nil, models.Errorf(models.KindDataIntegrity, ServiceEmbedder,
				"vector %d has dimension %d, want %d", i, len(v), e.dim)
		}
	}
	return resp.Vectors, nil
}

// ModelName implements embedding.Embedder.
func (e *RemoteEmbedder) ModelName() string {
	return e.modelName
}

// Dim implements embedding.Embedder.
func (e *RemoteEmbedder) Dim() int {
	return e.dim
}
