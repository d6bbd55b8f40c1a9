package adapters

import (
	"context"

	"paperbase/internal/config"
	"paperbase/internal/models"
)

// LLMClient talks to the metadata extraction LLM. Both cascade tiers go
// through the same breaker: if the service is down, structured and simple
// calls fail alike.
type LLMClient struct {
	client *serviceClient
}

// NewLLMClient creates the LLM adapter behind its breaker.
func NewLLMClient(cfg config.AdapterConfig, retry config.RetryConfig, breaker *CircuitBreaker) *LLMClient {
	return &LLMClient{client: newServiceClient(ServiceLLM, cfg, retry, breaker)}
}

type llmRequest struct {
	Text string `json:"text"`
	Mode string `json:"mode"`
}

type llmResponse struct {
	Title    string   `json:"title"`
	Authors  []string `json:"authors"`
	Journal  string   `json:"journal"`
	Year     int      `json:"year"`
	DOI      string   `json:"doi"`
	Abstract string   `json:"abstract"`
}

// ExtractStructured asks for schema-constrained bibliographic extraction.
func (c *LLMClient) ExtractStructured(ctx context.Context, text, docID string) (*models.Metadata, error) {
	return c.extract(ctx, text, docID, "structured", models.TierStructuredLLM)
}

// ExtractSimple asks for plain-prompt extraction, the fallback tier.
func (c *LLMClient) ExtractSimple(ctx context.Context, text, docID string) (*models.Metadata, error) {
	return c.extract(ctx, text, docID, "simple", models.TierSimpleLLM)
}

func (c *LLMClient) extract(ctx context.Context, text, docID, mode string, tier models.ExtractionTier) (*models.Metadata, error) {
	var resp llmResponse
	if err := c.client.postJSON(ctx, "/extract", llmRequest{Text: text, Mode: mode}, &resp); err != nil {
		return nil, err
	}
	return &models.Metadata{
		DocID:    docID,
		Title:    resp.Title,
		Authors:  resp.Authors,
		Journal:  resp.Journal,
		Year:     resp.Year,
		DOI:      resp.DOI,
		Abstract: resp.Abstract,
		Tier:     tier,
	}, nil
}
