package comps

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"

	"github.com/deal-associate/server/internal/agent/model"
	"github.com/deal-associate/server/internal/underwriting"
	logx "github.com/deal-associate/server/pkg/logger"
)

var ErrSearchFailed = errors.New("comps search failed")

const maxCatalogSize = 100

type ElasticConfig struct {
	Addresses []string `envconfig:"ELASTICSEARCH_ADDRESSES"`
	Username  string   `envconfig:"ELASTICSEARCH_USERNAME"`
	Password  string   `envconfig:"ELASTICSEARCH_PASSWORD"`
	Index     string   `envconfig:"ELASTICSEARCH_COMPS_INDEX" default:"deal-comps"`
}

// Enabled reports whether an Elasticsearch cluster is configured.
func (c ElasticConfig) Enabled() bool {
	return len(c.Addresses) > 0
}

// NewClient creates the Elasticsearch client.
func (c ElasticConfig) NewClient() (*elasticsearch.Client, error) {
	esCfg := elasticsearch.Config{Addresses: c.Addresses}
	if c.Username != "" {
		esCfg.Username = c.Username
		esCfg.Password = c.Password
	}
	es, err := elasticsearch.NewClient(esCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}
	return es, nil
}

// ElasticRetriever reads comparable transactions from an index whose
// documents carry name, size_sqm, yield, rent, distance_km, asset_type and
// location.
type ElasticRetriever struct {
	client *elasticsearch.Client
	index  string
}

func NewElasticRetriever(client *elasticsearch.Client, index string) *ElasticRetriever {
	return &ElasticRetriever{client: client, index: index}
}

// Propose returns the nearest comps, preferring matches on asset type and
// location.
func (r *ElasticRetriever) Propose(ctx context.Context, q model.CompsQuery) ([]underwriting.Comp, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultRecommended
	}

	var should []map[string]any
	if q.AssetType != "" {
		should = append(should, map[string]any{"match": map[string]any{"asset_type": q.AssetType}})
	}
	if q.Location != "" {
		should = append(should, map[string]any{"match": map[string]any{"location": q.Location}})
	}
	query := map[string]any{"match_all": map[string]any{}}
	if len(should) > 0 {
		query = map[string]any{"bool": map[string]any{"should": should}}
	}

	return r.search(ctx, map[string]any{
		"size":  limit,
		"query": query,
		"sort":  []any{map[string]any{"distance_km": map[string]any{"order": "asc"}}},
	})
}

func (r *ElasticRetriever) Catalog(ctx context.Context) ([]underwriting.Comp, error) {
	return r.search(ctx, map[string]any{
		"size":  maxCatalogSize,
		"query": map[string]any{"match_all": map[string]any{}},
		"sort":  []any{map[string]any{"distance_km": map[string]any{"order": "asc"}}},
	})
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Source underwriting.Comp `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

func (r *ElasticRetriever) search(ctx context.Context, body map[string]any) ([]underwriting.Comp, error) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return nil, fmt.Errorf("encode query: %w", err)
	}

	res, err := r.client.Search(
		r.client.Search.WithContext(ctx),
		r.client.Search.WithIndex(r.index),
		r.client.Search.WithBody(&buf),
	)
	if err != nil {
		logx.Error().Err(err).Str("index", r.index).Msg("Comps search request failed")
		return nil, fmt.Errorf("%w: %v", ErrSearchFailed, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		logx.Error().Str("index", r.index).Str("status", res.Status()).Msg("Comps search returned an error")
		return nil, fmt.Errorf("%w: %s", ErrSearchFailed, strings.TrimSpace(res.Status()))
	}

	var sr searchResponse
	if err := json.NewDecoder(res.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("decode search response: %w", err)
	}
	out := make([]underwriting.Comp, 0, len(sr.Hits.Hits))
	for _, h := range sr.Hits.Hits {
		out = append(out, h.Source)
	}
	return out, nil
}

var _ model.CompsRetriever = (*ElasticRetriever)(nil)
