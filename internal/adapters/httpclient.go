package adapters

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"paperbase/internal/config"
	"paperbase/internal/models"
)

// serviceClient is the shared HTTP plumbing of every external adapter:
// request shaping, response classification, retry, and optional breaker.
type serviceClient struct {
	name    string
	baseURL string
	http    *http.Client
	retry   config.RetryConfig
	breaker *CircuitBreaker
}

func newServiceClient(name string, cfg config.AdapterConfig, retry config.RetryConfig, breaker *CircuitBreaker) *serviceClient {
	return &serviceClient{
		name:    name,
		baseURL: cfg.URL,
		http:    &http.Client{Timeout: cfg.Timeout},
		retry:   retry,
		breaker: breaker,
	}
}

// postJSON sends a JSON request and decodes a JSON response, going through
// the breaker (if any) and the retry policy.
func (c *serviceClient) postJSON(ctx context.Context, path string, payload, out interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return models.NewError(models.KindInternal, c.name, err, "encode request")
	}
	return c.post(ctx, path, "application/json", body, out)
}

// postRaw sends an opaque request body and decodes a JSON response.
func (c *serviceClient) postRaw(ctx context.Context, path, contentType string, body []byte, out interface{}) error {
	return c.post(ctx, path, contentType, body, out)
}

func (c *serviceClient) post(ctx context.Context, path, contentType string, body []byte, out interface{}) error {
	if c.breaker != nil && !c.breaker.Allow() {
		return models.Errorf(models.KindServiceUnavailable, c.name, "circuit breaker open")
	}

	err := withRetry(ctx, c.retry, c.name, func() error {
		return c.doOnce(ctx, path, contentType, body, out)
	})

	if c.breaker != nil {
		if err != nil {
			c.breaker.RecordFailure(err)
		} else {
			c.breaker.RecordSuccess()
		}
	}
	return err
}

func (c *serviceClient) doOnce(ctx context.Context, path, contentType string, body []byte, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return models.NewError(models.KindInternal, c.name, err, "create request")
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return models.NewError(models.KindCancelled, c.name, ctx.Err(), "request cancelled")
		}
		return models.NewError(models.KindTransientTransport, c.name, err, "request failed")
	}
	defer resp.Body.Close()

	if err := classifyStatus(c.name, resp); err != nil {
		return err
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return models.NewError(models.KindTransientTransport, c.name, err, "decode response")
		}
	}
	return nil
}

func classifyStatus(name string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	detail := fmt.Sprintf("status %d: %s", resp.StatusCode, string(msg))

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return models.Errorf(models.KindRateLimited, name, "%s", detail)
	case resp.StatusCode >= 500:
		return models.Errorf(models.KindTransientTransport, name, "%s", detail)
	default:
		return models.Errorf(models.KindInvalidInput, name, "%s", detail)
	}
}
