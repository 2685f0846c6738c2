package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/kirillkom/medical-rag-assistant/internal/core/domain"
	"github.com/kirillkom/medical-rag-assistant/internal/core/ports"
)

const upsertBatchSize = 256

// Client builds one Euclid-distance collection per domain, named <prefix>_<domain>.
type Client struct {
	baseURL    string
	prefix     string
	httpClient *http.Client
}

func New(baseURL, prefix string) *Client {
	if strings.TrimSpace(prefix) == "" {
		prefix = "medical"
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		prefix:     prefix,
		httpClient: &http.Client{Timeout: 60 * time.Second},
	}
}

func (c *Client) CollectionName(domainName string) string {
	return c.prefix + "_" + domainName
}

// Build drops and recreates the domain collection, then upserts every document with
// its position as point id.
func (c *Client) Build(ctx context.Context, name string, docs []domain.Document, vectors [][]float32) (ports.DomainIndex, error) {
	if len(docs) == 0 {
		return nil, domain.WrapError(domain.ErrIndexBuild, "build qdrant index", fmt.Errorf("domain %s has no documents", name))
	}
	if len(docs) != len(vectors) {
		return nil, domain.WrapError(domain.ErrDimensionMismatch, "build qdrant index",
			fmt.Errorf("domain %s: %d documents but %d vectors", name, len(docs), len(vectors)))
	}
	dim := len(vectors[0])
	if dim == 0 {
		return nil, domain.WrapError(domain.ErrDimensionMismatch, "build qdrant index", fmt.Errorf("domain %s: zero-length vector", name))
	}
	for i, vec := range vectors {
		if len(vec) != dim {
			return nil, domain.WrapError(domain.ErrDimensionMismatch, "build qdrant index",
				fmt.Errorf("domain %s: vector %d has dimension %d, want %d", name, i, len(vec), dim))
		}
	}

	collection := c.CollectionName(name)
	if err := c.dropCollection(ctx, collection); err != nil {
		return nil, domain.WrapError(domain.ErrIndexBuild, "build qdrant index", err)
	}
	if err := c.createCollection(ctx, collection, dim); err != nil {
		return nil, domain.WrapError(domain.ErrIndexBuild, "build qdrant index", err)
	}

	type point struct {
		ID      int            `json:"id"`
		Vector  []float32      `json:"vector"`
		Payload map[string]any `json:"payload"`
	}
	for start := 0; start < len(docs); start += upsertBatchSize {
		end := min(start+upsertBatchSize, len(docs))
		points := make([]point, 0, end-start)
		for i := start; i < end; i++ {
			points = append(points, point{
				ID:     i,
				Vector: vectors[i],
				Payload: map[string]any{
					"position": i,
					"question": docs[i].Question,
					"answer":   docs[i].Answer,
				},
			})
		}
		url := fmt.Sprintf("%s/collections/%s/points?wait=true", c.baseURL, collection)
		if err := c.doJSON(ctx, http.MethodPut, url, map[string]any{"points": points}, nil, "upsert"); err != nil {
			return nil, domain.WrapError(domain.ErrIndexBuild, "build qdrant index", err)
		}
	}

	return &Index{client: c, name: name, collection: collection, dim: dim, size: len(docs)}, nil
}

func (c *Client) dropCollection(ctx context.Context, collection string) error {
	url := fmt.Sprintf("%s/collections/%s", c.baseURL, collection)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, url, nil)
	if err != nil {
		return fmt.Errorf("create drop collection request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant drop collection request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil
	}
	if resp.StatusCode >= 300 {
		return statusError("drop collection", resp)
	}
	return nil
}

func (c *Client) createCollection(ctx context.Context, collection string, vectorSize int) error {
	reqBody := map[string]any{
		"vectors": map[string]any{
			"size":     vectorSize,
			"distance": "Euclid",
		},
	}
	url := fmt.Sprintf("%s/collections/%s", c.baseURL, collection)
	return c.doJSON(ctx, http.MethodPut, url, reqBody, nil, "create collection")
}

func (c *Client) doJSON(ctx context.Context, method, url string, payload any, out any, operation string) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s body: %w", operation, err)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create %s request: %w", operation, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant %s request: %w", operation, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return statusError(operation, resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", operation, err)
	}
	return nil
}

func statusError(operation string, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	if msg := strings.TrimSpace(string(body)); msg != "" {
		return fmt.Errorf("qdrant %s status: %s: %s", operation, resp.Status, msg)
	}
	return fmt.Errorf("qdrant %s status: %s", operation, resp.Status)
}

// Index is a built domain collection. Size and dimension are fixed at build time.
type Index struct {
	client     *Client
	name       string
	collection string
	dim        int
	size       int
}

func (i *Index) Name() string   { return i.name }
func (i *Index) Len() int       { return i.size }
func (i *Index) Dimension() int { return i.dim }

// Search returns the k nearest documents ordered by distance, equal distances by
// insertion position. When a tie straddles the k-th place, every point at that
// distance is fetched so the lowest positions win.
func (i *Index) Search(ctx context.Context, queryVector []float32, k int) ([]domain.Document, error) {
	if len(queryVector) != i.dim {
		return nil, domain.WrapError(domain.ErrDimensionMismatch, "search qdrant index",
			fmt.Errorf("domain %s: query dimension %d, want %d", i.name, len(queryVector), i.dim))
	}
	if k <= 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "search qdrant index", fmt.Errorf("k must be positive, got %d", k))
	}
	limit := min(k, i.size)

	hits, err := i.search(ctx, queryVector, min(limit+1, i.size), nil)
	if err != nil {
		return nil, err
	}
	if len(hits) > limit && hits[limit].dist == hits[limit-1].dist {
		threshold := hits[limit-1].dist
		if hits, err = i.search(ctx, queryVector, i.size, &threshold); err != nil {
			return nil, err
		}
	}
	if len(hits) > limit {
		hits = hits[:limit]
	}

	out := make([]domain.Document, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.doc)
	}
	return out, nil
}

type hit struct {
	dist     float64
	position int
	doc      domain.Document
}

// search runs one exact query. maxDist keeps only points no farther than it.
func (i *Index) search(ctx context.Context, queryVector []float32, limit int, maxDist *float64) ([]hit, error) {
	reqBody := map[string]any{
		"vector":       queryVector,
		"limit":        limit,
		"with_payload": true,
		"params":       map[string]any{"exact": true},
	}
	if maxDist != nil {
		reqBody["score_threshold"] = *maxDist
	}
	var searchResp struct {
		Result []struct {
			Score   float64        `json:"score"`
			Payload map[string]any `json:"payload"`
		} `json:"result"`
	}
	url := fmt.Sprintf("%s/collections/%s/points/search", i.client.baseURL, i.collection)
	if err := i.client.doJSON(ctx, http.MethodPost, url, reqBody, &searchResp, "search"); err != nil {
		return nil, err
	}

	hits := make([]hit, 0, len(searchResp.Result))
	for _, r := range searchResp.Result {
		hits = append(hits, hit{
			dist:     r.Score,
			position: getIntPayload(r.Payload, "position"),
			doc: domain.Document{
				Question: getStringPayload(r.Payload, "question"),
				Answer:   getStringPayload(r.Payload, "answer"),
			},
		})
	}
	// Qdrant does not guarantee insertion order among equal distances.
	sort.SliceStable(hits, func(a, b int) bool {
		if hits[a].dist != hits[b].dist {
			return hits[a].dist < hits[b].dist
		}
		return hits[a].position < hits[b].position
	})
	return hits, nil
}

func getStringPayload(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}

func getIntPayload(payload map[string]any, key string) int {
	switch v := payload[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}
