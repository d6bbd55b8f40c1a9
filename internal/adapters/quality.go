package adapters

import (
	"context"

	"paperbase/internal/config"
	"paperbase/internal/models"
)

// QualityClient talks to the OCR quality scorer.
type QualityClient struct {
	client *serviceClient
}

// NewQualityClient creates the quality adapter behind its breaker.
func NewQualityClient(cfg config.AdapterConfig, retry config.RetryConfig, breaker *CircuitBreaker) *QualityClient {
	return &QualityClient{client: newServiceClient(ServiceQuality, cfg, retry, breaker)}
}

type qualityRequest struct {
	Pages []string `json:"pages"`
}

type qualityResponse struct {
	Quality string `json:"quality"`
}

// Score grades the text layer of a document.
func (c *QualityClient) Score(ctx context.Context, pages []string) (models.OCRQuality, error) {
	var resp qualityResponse
	if err := c.client.postJSON(ctx, "/score", qualityRequest{Pages: pages}, &resp); err != nil {
		return models.OCRQualityUnknown, err
	}
	q := models.OCRQuality(resp.Quality)
	if !q.IsValid() {
		return models.OCRQualityUnknown, models.Errorf(models.KindInvalidInput, ServiceQuality,
			"unrecognized quality grade %q", resp.Quality)
	}
	return q, nil
}
