package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"github.com/DeafMist/news-credibility/internal/models"
)

// Client stores and queries credibility verdicts.
type Client struct {
	es    *elasticsearch.Client
	index string
	log   *slog.Logger
}

// SearchParams narrow the verdict search query.
type SearchParams struct {
	Query       string
	Label       string
	Source      string
	InputSource string
	From        int
	Size        int
	Sort        string
	Start       *time.Time
	End         *time.Time
}

// SearchResult bundles hits and total count.
type SearchResult struct {
	Total int64            `json:"total"`
	Items []models.Verdict `json:"items"`
}

// LabelStats is the number of verdicts and their mean confidence per label.
type LabelStats struct {
	Label          string  `json:"label"`
	Count          int64   `json:"count"`
	MeanConfidence float64 `json:"mean_confidence"`
}

var sortable = map[string]bool{
	"timestamp":        true,
	"published_at":     true,
	"confidence_score": true,
	"text_length":      true,
}

const verdictMapping = `{
  "mappings": {
    "properties": {
      "id":               {"type": "keyword"},
      "title":            {"type": "text"},
      "text":             {"type": "text"},
      "url":              {"type": "keyword"},
      "source":           {"type": "keyword"},
      "input_source":     {"type": "keyword"},
      "label":            {"type": "keyword"},
      "prediction":       {"type": "keyword"},
      "confidence_score": {"type": "float"},
      "text_length":      {"type": "integer"},
      "model_version":    {"type": "keyword"},
      "links":            {"type": "keyword"},
      "published_at":     {"type": "date"},
      "timestamp":        {"type": "date"}
    }
  }
}`

// New instantiates the Elasticsearch client.
func New(addr, index string, logger *slog.Logger) (*Client, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{addr},
	})
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}

	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	return &Client{es: es, index: index, log: logger}, nil
}

// Ping checks if Elasticsearch is available.
func (c *Client) Ping(ctx context.Context) error {
	res, err := c.es.Ping(c.es.Ping.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("ping elasticsearch: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch ping failed: %s", res.Status())
	}

	return nil
}

// EnsureIndex creates the verdict index with explicit keyword and date
// mappings when it does not exist yet.
func (c *Client) EnsureIndex(ctx context.Context) error {
	exists, err := esapi.IndicesExistsRequest{Index: []string{c.index}}.Do(ctx, c.es)
	if err != nil {
		return fmt.Errorf("check index: %w", err)
	}
	exists.Body.Close()
	if exists.StatusCode == http.StatusOK {
		return nil
	}

	res, err := esapi.IndicesCreateRequest{
		Index: c.index,
		Body:  strings.NewReader(verdictMapping),
	}.Do(ctx, c.es)
	if err != nil {
		return fmt.Errorf("create index: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		// Another worker may have won the race.
		if strings.Contains(string(body), "resource_already_exists_exception") {
			return nil
		}
		return fmt.Errorf("create index failed: %s", strings.TrimSpace(string(body)))
	}

	c.log.Info("created verdict index", slog.String("index", c.index))
	return nil
}

// IndexVerdict writes a verdict, replacing any earlier one with the same ID.
func (c *Client) IndexVerdict(ctx context.Context, v models.Verdict) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal verdict: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      c.index,
		DocumentID: v.ID,
		Body:       bytes.NewReader(payload),
		Refresh:    "false",
	}

	res, err := req.Do(ctx, c.es)
	if err != nil {
		return fmt.Errorf("index verdict: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		body, _ := io.ReadAll(res.Body)
		return fmt.Errorf("index verdict failed: %s", strings.TrimSpace(string(body)))
	}

	return nil
}

// SearchVerdicts executes a bool query with optional filters.
func (c *Client) SearchVerdicts(ctx context.Context, params SearchParams) (*SearchResult, error) {
	body := searchBody(params)

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal search body: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.index),
		c.es.Search.WithBody(bytes.NewReader(payload)),
	)
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		data, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("search failed: %s", strings.TrimSpace(string(data)))
	}

	var parsed struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				Source models.Verdict `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}

	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}

	items := make([]models.Verdict, 0, len(parsed.Hits.Hits))
	for _, hit := range parsed.Hits.Hits {
		items = append(items, hit.Source)
	}

	return &SearchResult{
		Total: parsed.Hits.Total.Value,
		Items: items,
	}, nil
}

// Stats aggregates verdict counts and mean confidence per label.
func (c *Client) Stats(ctx context.Context) ([]LabelStats, error) {
	body := map[string]any{
		"size": 0,
		"aggs": map[string]any{
			"labels": map[string]any{
				"terms": map[string]any{"field": "label"},
				"aggs": map[string]any{
					"confidence": map[string]any{
						"avg": map[string]any{"field": "confidence_score"},
					},
				},
			},
		},
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal stats body: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.index),
		c.es.Search.WithBody(bytes.NewReader(payload)),
	)
	if err != nil {
		return nil, fmt.Errorf("stats: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		data, _ := io.ReadAll(res.Body)
		return nil, fmt.Errorf("stats failed: %s", strings.TrimSpace(string(data)))
	}

	var parsed struct {
		Aggregations struct {
			Labels struct {
				Buckets []struct {
					Key        string `json:"key"`
					DocCount   int64  `json:"doc_count"`
					Confidence struct {
						Value *float64 `json:"value"`
					} `json:"confidence"`
				} `json:"buckets"`
			} `json:"labels"`
		} `json:"aggregations"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("decode stats response: %w", err)
	}

	out := make([]LabelStats, 0, len(parsed.Aggregations.Labels.Buckets))
	for _, b := range parsed.Aggregations.Labels.Buckets {
		s := LabelStats{Label: b.Key, Count: b.DocCount}
		if b.Confidence.Value != nil {
			s.MeanConfidence = *b.Confidence.Value
		}
		out = append(out, s)
	}
	return out, nil
}

// DeleteOlderThan removes verdicts older than maxAge using batched delete-by-query.
// It loops until a batch returns fewer deleted documents than the requested batchSize.
func (c *Client) DeleteOlderThan(ctx context.Context, maxAge time.Duration, batchSize int) (int64, error) {
	if batchSize <= 0 {
		batchSize = 1000
	}

	cutoff := time.Now().Add(-maxAge).UTC().Format(time.RFC3339)
	payload, err := json.Marshal(map[string]any{
		"query": map[string]any{
			"range": map[string]any{
				"timestamp": map[string]any{"lte": cutoff},
			},
		},
	})
	if err != nil {
		return 0, fmt.Errorf("marshal delete body: %w", err)
	}

	var total int64
	for {
		deleted, err := c.deleteBatch(ctx, payload, batchSize)
		total += deleted
		if err != nil {
			return total, err
		}
		if deleted < int64(batchSize) {
			return total, nil
		}
	}
}

func (c *Client) deleteBatch(ctx context.Context, payload []byte, batchSize int) (int64, error) {
	res, err := c.es.DeleteByQuery(
		[]string{c.index},
		bytes.NewReader(payload),
		c.es.DeleteByQuery.WithContext(ctx),
		c.es.DeleteByQuery.WithWaitForCompletion(true),
		c.es.DeleteByQuery.WithConflicts("proceed"),
		c.es.DeleteByQuery.WithScrollSize(batchSize),
		c.es.DeleteByQuery.WithMaxDocs(batchSize),
	)
	if err != nil {
		return 0, fmt.Errorf("delete by query: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		data, _ := io.ReadAll(res.Body)
		return 0, fmt.Errorf("delete by query failed: %s", strings.TrimSpace(string(data)))
	}

	var parsed struct {
		Deleted int64 `json:"deleted"`
	}
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return 0, fmt.Errorf("decode delete response: %w", err)
	}
	return parsed.Deleted, nil
}

// Health checks cluster health.
func (c *Client) Health(ctx context.Context) error {
	res, err := c.es.Cluster.Health(c.es.Cluster.Health.WithContext(ctx))
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode >= http.StatusBadRequest {
		data, _ := io.ReadAll(res.Body)
		return fmt.Errorf("cluster health bad: %s", strings.TrimSpace(string(data)))
	}
	return nil
}

func searchBody(params SearchParams) map[string]any {
	if params.Size <= 0 {
		params.Size = 20
	}
	if params.Size > 200 {
		params.Size = 200
	}
	if params.From < 0 {
		params.From = 0
	}

	must := make([]map[string]any, 0, 1)
	filters := make([]map[string]any, 0, 4)

	if params.Query != "" {
		must = append(must, map[string]any{
			"multi_match": map[string]any{
				"query":  params.Query,
				"fields": []string{"title^2", "text"},
			},
		})
	}

	for field, value := range map[string]string{
		"label":        params.Label,
		"source":       params.Source,
		"input_source": params.InputSource,
	} {
		if value != "" {
			filters = append(filters, map[string]any{
				"term": map[string]any{field: value},
			})
		}
	}

	if params.Start != nil || params.End != nil {
		rangeQuery := map[string]any{}
		if params.Start != nil {
			rangeQuery["gte"] = params.Start.UTC().Format(time.RFC3339)
		}
		if params.End != nil {
			rangeQuery["lte"] = params.End.UTC().Format(time.RFC3339)
		}
		filters = append(filters, map[string]any{
			"range": map[string]any{"timestamp": rangeQuery},
		})
	}

	boolQuery := map[string]any{}
	if len(must) > 0 {
		boolQuery["must"] = must
	}
	if len(filters) > 0 {
		boolQuery["filter"] = filters
	}
	if len(must) == 0 && len(filters) == 0 {
		boolQuery["must"] = []map[string]any{
			{"match_all": map[string]any{}},
		}
	}

	field, order := parseSort(params.Sort)
	return map[string]any{
		"from":             params.From,
		"size":             params.Size,
		"track_total_hits": true,
		"query":            map[string]any{"bool": boolQuery},
		"sort": []map[string]any{
			{field: map[string]any{"order": order}},
		},
	}
}

// parseSort reads "field:order"; unknown fields fall back to timestamp:desc.
func parseSort(raw string) (string, string) {
	field, order, _ := strings.Cut(strings.TrimSpace(raw), ":")
	if !sortable[field] {
		field = "timestamp"
	}
	if order != "asc" {
		order = "desc"
	}
	return field, order
}
