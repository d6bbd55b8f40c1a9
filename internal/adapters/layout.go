package adapters

import (
	"context"
	"encoding/json"
	"os"

	"paperbase/internal/config"
	"paperbase/internal/models"
)

// LayoutClient talks to the layout analyzer.
type LayoutClient struct {
	client *serviceClient
}

// NewLayoutClient creates the layout adapter behind its breaker.
func NewLayoutClient(cfg config.AdapterConfig, retry config.RetryConfig, breaker *CircuitBreaker) *LayoutClient {
	return &LayoutClient{client: newServiceClient(ServiceLayout, cfg, retry, breaker)}
}

type layoutResponse struct {
	PageCount int             `json:"page_count"`
	Layout    json.RawMessage `json:"layout"`
}

// Analyze runs layout analysis over the PDF. The payload stays opaque; only
// the page count is interpreted.
func (c *LayoutClient) Analyze(ctx context.Context, pdfPath, docID string) (*models.LayoutAnalysis, error) {
	data, err := os.ReadFile(pdfPath)
	if err != nil {
		return nil, models.NewError(models.KindInternal, ServiceLayout, err, "read upload for layout")
	}

	var resp layoutResponse
	if err := c.client.postRaw(ctx, "/analyze", "application/pdf", data, &resp); err != nil {
		return nil, err
	}
	return &models.LayoutAnalysis{
		DocID:      docID,
		PageCount:  resp.PageCount,
		LayoutJSON: string(resp.Layout),
	}, nil
}
