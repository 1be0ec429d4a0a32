package cmd

import (
	"context"
	"fmt"

	"github.com/deal-associate/server/internal/adapters/comps"
	"github.com/deal-associate/server/internal/adapters/ingest"
	"github.com/deal-associate/server/internal/adapters/publish"
	"github.com/deal-associate/server/internal/agent/graph"
	"github.com/deal-associate/server/internal/agent/model"
	"github.com/deal-associate/server/internal/agent/repo"
	"github.com/deal-associate/server/internal/config"
	logx "github.com/deal-associate/server/pkg/logger"
)

// buildRunner wires storage, collaborators and the graph from cfg. The
// returned cleanup closes any connections that were opened.
func buildRunner(ctx context.Context, cfg *config.AppConfig) (*graph.Runner, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	store, closeStore, err := buildRepository(ctx, cfg)
	if err != nil {
		return nil, cleanup, err
	}
	closers = append(closers, closeStore)

	retriever, err := buildComps(cfg)
	if err != nil {
		return nil, cleanup, err
	}

	validator, err := ingest.NewValidator()
	if err != nil {
		return nil, cleanup, fmt.Errorf("load record schema: %w", err)
	}

	publisher, err := buildPublisher(ctx, cfg)
	if err != nil {
		return nil, cleanup, err
	}

	runner, err := graph.BuildAgent(ctx, graph.Config{
		APIKey:        cfg.APIKey,
		BaseURL:       cfg.BaseURL,
		IntentModel:   cfg.Intent,
		ResponseModel: cfg.Response,
		Conversation:  cfg.Conversation,
		Underwriting:  cfg.Underwriting,
		Repo:          store,
		Source:        ingest.NewDirSource(cfg.IngestDir),
		Validator:     validator,
		Comps:         retriever,
		Publisher:     publisher,
	})
	if err != nil {
		return nil, cleanup, fmt.Errorf("build agent: %w", err)
	}
	return runner, cleanup, nil
}

func buildRepository(ctx context.Context, cfg *config.AppConfig) (model.DealRepository, func(), error) {
	switch cfg.Storage {
	case config.StorageRedis:
		ttl, err := cfg.SessionTTL()
		if err != nil {
			return nil, func() {}, err
		}
		rdb, err := cfg.Redis.New(ctx)
		if err != nil {
			return nil, func() {}, fmt.Errorf("connect redis: %w", err)
		}
		logx.Info().Str("backend", cfg.Storage).Dur("ttl", ttl).Msg("Session storage ready")
		return repo.NewRedisDealRepository(rdb, cfg.Redis.KeyPrefix, ttl), func() { _ = rdb.Close() }, nil
	case config.StoragePostgres:
		db, err := cfg.Postgres.New(ctx)
		if err != nil {
			return nil, func() {}, fmt.Errorf("connect postgres: %w", err)
		}
		store := repo.NewPostgresDealRepository(db)
		if err := store.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, func() {}, fmt.Errorf("ensure schema: %w", err)
		}
		logx.Info().Str("backend", cfg.Storage).Msg("Session storage ready")
		return store, func() { _ = db.Close() }, nil
	default:
		logx.Info().Str("backend", config.StorageMemory).Msg("Session storage ready (sessions are lost on restart)")
		return repo.NewMemoryDealRepository(), func() {}, nil
	}
}

func buildComps(cfg *config.AppConfig) (model.CompsRetriever, error) {
	if !cfg.Elastic.Enabled() {
		return comps.NewStaticCatalog(comps.DefaultCatalog(), cfg.Underwriting.RecommendedComps), nil
	}
	client, err := cfg.Elastic.NewClient()
	if err != nil {
		return nil, fmt.Errorf("create elasticsearch client: %w", err)
	}
	logx.Info().Strs("addresses", cfg.Elastic.Addresses).Str("index", cfg.Elastic.Index).Msg("Using Elasticsearch comparables")
	return comps.NewElasticRetriever(client, cfg.Elastic.Index), nil
}

func buildPublisher(ctx context.Context, cfg *config.AppConfig) (*publish.Publisher, error) {
	if !cfg.S3.Enabled() {
		logx.Warn().Msg("S3_BUCKET not set; artifacts stay on local disk")
		return publish.NewPublisher(cfg.OutputDir, nil), nil
	}
	uploader, err := publish.NewS3Uploader(ctx, cfg.S3)
	if err != nil {
		return nil, fmt.Errorf("create s3 uploader: %w", err)
	}
	return publish.NewPublisher(cfg.OutputDir, uploader), nil
}
