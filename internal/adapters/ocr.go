package adapters

import (
	"context"
	"fmt"
	"net/url"
	"os"

	"paperbase/internal/config"
	"paperbase/internal/models"
)

// OCRClient talks to the OCR engine. OCR calls are long-running and not
// breaker-guarded; the generous per-call timeout is the only bound.
type OCRClient struct {
	client *serviceClient
}

// NewOCRClient creates the OCR adapter.
func NewOCRClient(cfg config.AdapterConfig, retry config.RetryConfig) *OCRClient {
	return &OCRClient{client: newServiceClient("ocr", cfg, retry, nil)}
}

type ocrResponse struct {
	Pages []string `json:"pages"`
}

// Regenerate runs the PDF through OCR in the given language and returns one
// text per page. An empty lang leaves the language to the engine.
func (c *OCRClient) Regenerate(ctx context.Context, pdfPath, lang string) ([]string, error) {
	data, err := os.ReadFile(pdfPath)
	if err != nil {
		return nil, models.NewError(models.KindInternal, "ocr", err, "read upload for OCR")
	}

	var resp ocrResponse
	if err := c.client.postRaw(ctx, ocrPath(lang, false), "application/pdf", data, &resp); err != nil {
		return nil, err
	}
	if len(resp.Pages) == 0 {
		return nil, models.Errorf(models.KindInvalidInput, "ocr", "OCR produced no pages")
	}
	return resp.Pages, nil
}

// RegenerateFirstPage runs OCR over the first page only, used to trial a
// candidate language before committing to a full run.
func (c *OCRClient) RegenerateFirstPage(ctx context.Context, pdfPath, lang string) (string, error) {
	data, err := os.ReadFile(pdfPath)
	if err != nil {
		return "", models.NewError(models.KindInternal, "ocr", err, "read upload for OCR")
	}

	var resp ocrResponse
	if err := c.client.postRaw(ctx, ocrPath(lang, true), "application/pdf", data, &resp); err != nil {
		return "", err
	}
	if len(resp.Pages) == 0 {
		return "", models.Errorf(models.KindInvalidInput, "ocr", "OCR produced no pages")
	}
	return resp.Pages[0], nil
}

func ocrPath(lang string, firstPageOnly bool) string {
	q := url.Values{}
	if lang != "" {
		q.Set("lang", lang)
	}
	if firstPageOnly {
		q.Set("pages", "1")
	}
	if len(q) == 0 {
		return "/ocr"
	}
	return "/ocr?" + q.Encode()
}

// Healthy probes the OCR engine.
func (c *OCRClient) Healthy(ctx context.Context) error {
	var out map[string]interface{}
	if err := c.client.postJSON(ctx, "/health", map[string]string{}, &out); err != nil {
		return fmt.Errorf("ocr health: %w", err)
	}
	return nil
}
