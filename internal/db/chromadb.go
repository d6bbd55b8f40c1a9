package db

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"
)

// ChromaDBClient wraps HTTP calls to the ChromaDB v2 API. Collection IDs are
// cached after the first lookup; the client is safe for concurrent use.
type ChromaDBClient struct {
	baseURL    string
	rootURL    string
	httpClient *http.Client

	mu            sync.RWMutex
	collectionIDs map[string]string
}

// ChromaDBConfig holds configuration for the ChromaDB connection.
type ChromaDBConfig struct {
	Host     string
	Port     int
	Tenant   string
	Database string
	Timeout  time.Duration
}

// Collection represents a ChromaDB collection.
type Collection struct {
	ID       string                 `json:"id"`
	Name     string                 `json:"name"`
	Metadata map[string]interface{} `json:"metadata"`
}

// GetResponse is the response of a get request.
type GetResponse struct {
	IDs        []string                 `json:"ids"`
	Documents  []string                 `json:"documents"`
	Metadatas  []map[string]interface{} `json:"metadatas"`
	Embeddings [][]float32              `json:"embeddings,omitempty"`
}

// QueryResponse is the response of a nearest-neighbor query.
type QueryResponse struct {
	IDs       [][]string                 `json:"ids"`
	Documents [][]string                 `json:"documents"`
	Metadatas [][]map[string]interface{} `json:"metadatas"`
	Distances [][]float32                `json:"distances"`
}

// NewChromaDBClient creates a ChromaDB client for the v2 API.
func NewChromaDBClient(cfg ChromaDBConfig) *ChromaDBClient {
	if cfg.Tenant == "" {
		cfg.Tenant = "default_tenant"
	}
	if cfg.Database == "" {
		cfg.Database = "default_database"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	rootURL := fmt.Sprintf("http://%s:%d", cfg.Host, cfg.Port)
	baseURL := fmt.Sprintf("%s/api/v2/tenants/%s/databases/%s", rootURL, cfg.Tenant, cfg.Database)

	return &ChromaDBClient{
		baseURL:       baseURL,
		rootURL:       rootURL,
		httpClient:    &http.Client{Timeout: cfg.Timeout},
		collectionIDs: make(map[string]string),
	}
}

// Heartbeat checks if ChromaDB is alive.
func (c *ChromaDBClient) Heartbeat(ctx context.Context) error {
	var out map[string]interface{}
	return c.doJSON(ctx, http.MethodGet, c.rootURL+"/api/v2/heartbeat", nil, &out)
}

// EnsureCollection returns the named collection, creating it with cosine
// space when it does not exist yet.
func (c *ChromaDBClient) EnsureCollection(ctx context.Context, name string) (*Collection, error) {
	if col, err := c.GetCollection(ctx, name); err == nil {
		return col, nil
	}

	payload := map[string]interface{}{
		"name":          name,
		"metadata":      map[string]interface{}{"hnsw:space": "cosine"},
		"get_or_create": true,
	}
	var col Collection
	if err := c.doJSON(ctx, http.MethodPost, c.baseURL+"/collections", payload, &col); err != nil {
		return nil, fmt.Errorf("create collection %s: %w", name, err)
	}

	c.mu.Lock()
	c.collectionIDs[name] = col.ID
	c.mu.Unlock()
	return &col, nil
}

// GetCollection retrieves a collection by name.
func (c *ChromaDBClient) GetCollection(ctx context.Context, name string) (*Collection, error) {
	var col Collection
	url := fmt.Sprintf("%s/collections/%s", c.baseURL, name)
	if err := c.doJSON(ctx, http.MethodGet, url, nil, &col); err != nil {
		return nil, fmt.Errorf("get collection %s: %w", name, err)
	}

	c.mu.Lock()
	c.collectionIDs[name] = col.ID
	c.mu.Unlock()
	return &col, nil
}

// DeleteCollection removes a collection and forgets its cached ID.
func (c *ChromaDBClient) DeleteCollection(ctx context.Context, name string) error {
	url := fmt.Sprintf("%s/collections/%s", c.baseURL, name)
	if err := c.doJSON(ctx, http.MethodDelete, url, nil, nil); err != nil {
		return fmt.Errorf("delete collection %s: %w", name, err)
	}
	c.mu.Lock()
	delete(c.collectionIDs, name)
	c.mu.Unlock()
	return nil
}

// Upsert writes documents and embeddings into a collection, replacing
// existing entries with the same IDs.
func (c *ChromaDBClient) Upsert(ctx context.Context, collection string, ids []string, documents []string, embeddings [][]float32, metadatas []map[string]interface{}) error {
	colID, err := c.collectionID(ctx, collection)
	if err != nil {
		return err
	}

	payload := map[string]interface{}{
		"ids":        ids,
		"embeddings": embeddings,
	}
	if documents != nil {
		payload["documents"] = documents
	}
	if metadatas != nil {
		payload["metadatas"] = metadatas
	}

	url := fmt.Sprintf("%s/collections/%s/upsert", c.baseURL, colID)
	if err := c.doJSON(ctx, http.MethodPost, url, payload, nil); err != nil {
		return fmt.Errorf("upsert %d entries into %s: %w", len(ids), collection, err)
	}
	return nil
}

// Get retrieves entries, optionally filtered and optionally with embeddings.
func (c *ChromaDBClient) Get(ctx context.Context, collection string, where map[string]interface{}, limit int, includeEmbeddings bool) (*GetResponse, error) {
	colID, err := c.collectionID(ctx, collection)
	if err != nil {
		return nil, err
	}

	include := []string{"documents", "metadatas"}
	if includeEmbeddings {
		include = append(include, "embeddings")
	}
	payload := map[string]interface{}{"include": include}
	if len(where) > 0 {
		payload["where"] = where
	}
	if limit > 0 {
		payload["limit"] = limit
	} else {
		payload["limit"] = 100000
	}

	var out GetResponse
	url := fmt.Sprintf("%s/collections/%s/get", c.baseURL, colID)
	if err := c.doJSON(ctx, http.MethodPost, url, payload, &out); err != nil {
		return nil, fmt.Errorf("get from %s: %w", collection, err)
	}
	return &out, nil
}

// Query performs a nearest-neighbor search.
func (c *ChromaDBClient) Query(ctx context.Context, collection string, queryEmbedding []float32, nResults int, where map[string]interface{}) (*QueryResponse, error) {
	colID, err := c.collectionID(ctx, collection)
	if err != nil {
		return nil, err
	}

	payload := map[string]interface{}{
		"query_embeddings": [][]float32{queryEmbedding},
		"n_results":        nResults,
		"include":          []string{"metadatas", "distances"},
	}
	if len(where) > 0 {
		payload["where"] = where
	}

	var out QueryResponse
	url := fmt.Sprintf("%s/collections/%s/query", c.baseURL, colID)
	if err := c.doJSON(ctx, http.MethodPost, url, payload, &out); err != nil {
		return nil, fmt.Errorf("query %s: %w", collection, err)
	}
	return &out, nil
}

// Delete removes entries by ID or by metadata filter.
func (c *ChromaDBClient) Delete(ctx context.Context, collection string, ids []string, where map[string]interface{}) error {
	colID, err := c.collectionID(ctx, collection)
	if err != nil {
		return err
	}

	payload := map[string]interface{}{}
	if len(ids) > 0 {
		payload["ids"] = ids
	}
	if len(where) > 0 {
		payload["where"] = where
	}

	url := fmt.Sprintf("%s/collections/%s/delete", c.baseURL, colID)
	if err := c.doJSON(ctx, http.MethodPost, url, payload, nil); err != nil {
		return fmt.Errorf("delete from %s: %w", collection, err)
	}
	return nil
}

// Count returns the number of entries in a collection.
func (c *ChromaDBClient) Count(ctx context.Context, collection string) (int, error) {
	colID, err := c.collectionID(ctx, collection)
	if err != nil {
		return 0, err
	}

	var count int
	url := fmt.Sprintf("%s/collections/%s/count", c.baseURL, colID)
	if err := c.doJSON(ctx, http.MethodGet, url, nil, &count); err != nil {
		return 0, fmt.Errorf("count %s: %w", collection, err)
	}
	return count, nil
}

// Close releases idle connections.
func (c *ChromaDBClient) Close() {
	c.httpClient.CloseIdleConnections()
}

func (c *ChromaDBClient) collectionID(ctx context.Context, name string) (string, error) {
	c.mu.RLock()
	id, ok := c.collectionIDs[name]
	c.mu.RUnlock()
	if ok {
		return id, nil
	}

	col, err := c.EnsureCollection(ctx, name)
	if err != nil {
		return "", err
	}
	return col.ID, nil
}

func (c *ChromaDBClient) doJSON(ctx context.Context, method, url string, payload, out interface{}) error {
	var body io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("status %d: %s", resp.StatusCode, string(msg))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}
