package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/kirillkom/medical-rag-assistant/internal/config"
	"github.com/kirillkom/medical-rag-assistant/internal/core/domain"
	"github.com/kirillkom/medical-rag-assistant/internal/core/ports"
	"github.com/kirillkom/medical-rag-assistant/internal/core/usecase"
	"github.com/kirillkom/medical-rag-assistant/internal/infrastructure/corpus"
	"github.com/kirillkom/medical-rag-assistant/internal/infrastructure/queue/nats"
	"github.com/kirillkom/medical-rag-assistant/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/medical-rag-assistant/internal/infrastructure/resilience"
	"github.com/kirillkom/medical-rag-assistant/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/medical-rag-assistant/internal/infrastructure/vector/flat"
	"github.com/kirillkom/medical-rag-assistant/internal/infrastructure/vector/qdrant"
)

// App holds the query service and the infrastructure it owns.
type App struct {
	Config   config.Config
	Manifest corpus.Manifest
	Service  *usecase.MedicalService
	Executor *resilience.Executor

	closeFns []func()
}

// New wires the query service. observer receives retry and breaker events and may be nil.
func New(ctx context.Context, cfg config.Config, observer resilience.Observer) (*App, error) {
	app := &App{Config: cfg, Executor: newExecutor(cfg, observer)}

	manifest, err := loadManifest(cfg)
	if err != nil {
		return nil, err
	}
	app.Manifest = manifest

	models, err := newModels(cfg, app.Executor)
	if err != nil {
		return nil, err
	}

	builder, err := newIndexBuilder(cfg)
	if err != nil {
		return nil, err
	}

	source, err := app.newCorpusSource(ctx, cfg, manifest)
	if err != nil {
		app.Close()
		return nil, err
	}

	router := usecase.NewRouter(RouteRules(manifest), domain.DefaultDomain)
	app.Service = usecase.NewMedicalService(usecase.ServiceComponents{
		Router:           router,
		Embedder:         models.embedder,
		Hypothesis:       usecase.NewHypothesisGenerator(models.generator(cfg.HypothesisModel), cfg.HypothesisMaxTokens),
		Reranker:         usecase.NewReranker(models.generator(cfg.RerankModel), cfg.RerankMaxTokens),
		Synthesizer:      usecase.NewSynthesizer(models.generator(cfg.SynthesisModel), cfg.SynthesisMaxTokens),
		Corpus:           source,
		IndexStep:        usecase.NewIndexBuildStep(models.embedder, builder, cfg.EmbedBatchSize),
		Domains:          manifest.DomainNames(),
		BuildConcurrency: cfg.IndexBuildConcurrency,
	})

	slog.Info("medical_service_wired",
		"llm_provider", cfg.LLMProvider,
		"index_backend", cfg.IndexBackend,
		"corpus_backend", cfg.CorpusBackend,
		"domains", manifest.DomainNames(),
	)
	return app, nil
}

// NewQueryBus connects to NATS for query dispatch and worker replies.
func (a *App) NewQueryBus() (ports.QueryBus, error) {
	bus, err := nats.NewWithOptions(a.Config.NATSURL, a.Config.NATSQuerySubject, nats.Options{
		QueueGroup:         a.Config.NATSQueueGroup,
		RequestTimeout:     a.Config.NATSRequestTimeout,
		ResilienceExecutor: a.Executor,
	})
	if err != nil {
		return nil, fmt.Errorf("init query bus: %w", err)
	}
	a.closeFns = append(a.closeFns, bus.Close)
	return bus, nil
}

func (a *App) Close() {
	for i := len(a.closeFns) - 1; i >= 0; i-- {
		a.closeFns[i]()
	}
	a.closeFns = nil
}

func (a *App) newCorpusSource(ctx context.Context, cfg config.Config, manifest corpus.Manifest) (ports.CorpusSource, error) {
	switch cfg.CorpusBackend {
	case "", "files":
		storage, err := localfs.New(cfg.StoragePath)
		if err != nil {
			return nil, fmt.Errorf("init object storage: %w", err)
		}
		hf := corpus.NewHuggingFaceClient(cfg.HuggingFaceURL, cfg.HuggingFaceToken, a.Executor)
		return corpus.NewManifestSource(manifest, storage, hf), nil
	case "postgres":
		repo, db, err := openCorpusRepository(ctx, cfg)
		if err != nil {
			return nil, err
		}
		a.closeFns = append(a.closeFns, func() { _ = db.Close() })
		return repo, nil
	default:
		return nil, fmt.Errorf("unsupported CORPUS_BACKEND %q", cfg.CorpusBackend)
	}
}

// IngestApp copies the manifest corpora into Postgres.
type IngestApp struct {
	Config   config.Config
	Importer *usecase.CorpusImportUseCase
	Store    ports.CorpusStore

	closeFn func()
}

func NewIngest(ctx context.Context, cfg config.Config, observer resilience.Observer) (*IngestApp, error) {
	manifest, err := loadManifest(cfg)
	if err != nil {
		return nil, err
	}
	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}
	hf := corpus.NewHuggingFaceClient(cfg.HuggingFaceURL, cfg.HuggingFaceToken, newExecutor(cfg, observer))
	source := corpus.NewManifestSource(manifest, storage, hf)

	repo, db, err := openCorpusRepository(ctx, cfg)
	if err != nil {
		return nil, err
	}
	var store ports.CorpusStore = repo
	if cfg.CorpusSnapshot {
		store = corpus.NewSnapshotStore(repo, storage)
	}

	return &IngestApp{
		Config:   cfg,
		Importer: usecase.NewCorpusImportUseCase(source, store, manifest.DomainNames()),
		Store:    store,
		closeFn:  func() { _ = db.Close() },
	}, nil
}

func (a *IngestApp) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}

func openCorpusRepository(ctx context.Context, cfg config.Config) (*postgres.CorpusRepository, *sql.DB, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewCorpusRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ensure schema: %w", err)
	}
	return repo, db, nil
}

func loadManifest(cfg config.Config) (corpus.Manifest, error) {
	manifest, err := corpus.LoadManifestFile(cfg.CorpusManifestPath)
	if err != nil {
		return corpus.Manifest{}, fmt.Errorf("load corpus manifest: %w", err)
	}
	if err := manifest.Validate(); err != nil {
		return corpus.Manifest{}, fmt.Errorf("validate corpus manifest: %w", err)
	}
	return manifest, nil
}

func newExecutor(cfg config.Config, observer resilience.Observer) *resilience.Executor {
	return resilience.NewExecutor(resilience.Config{
		RetryMaxAttempts:        cfg.RetryMaxAttempts,
		RetryInitialBackoff:     cfg.RetryInitialBackoff,
		RetryMaxBackoff:         cfg.RetryMaxBackoff,
		RetryMultiplier:         2,
		BreakerEnabled:          cfg.BreakerEnabled,
		BreakerMinRequests:      uint32(max(cfg.BreakerMinRequests, 0)),
		BreakerFailureRatio:     cfg.BreakerFailureRatio,
		BreakerOpenTimeout:      cfg.BreakerOpenTimeout,
		BreakerHalfOpenMaxCalls: uint32(max(cfg.BreakerHalfOpenMaxCalls, 0)),
		Observer:                observer,
	})
}

func newIndexBuilder(cfg config.Config) (ports.IndexBuilder, error) {
	switch cfg.IndexBackend {
	case "", "memory", "flat":
		return flat.NewBuilder(), nil
	case "qdrant":
		return qdrant.New(cfg.QdrantURL, cfg.QdrantCollectionPrefix), nil
	default:
		return nil, fmt.Errorf("unsupported INDEX_BACKEND %q", cfg.IndexBackend)
	}
}

// RouteRules starts from the built-in table restricted to manifest domains. Manifest
// keywords replace a domain's built-in list; other non-default domains are appended
// in manifest order.
func RouteRules(manifest corpus.Manifest) []usecase.RouteRule {
	known := make(map[string]bool)
	for _, name := range manifest.DomainNames() {
		known[name] = true
	}
	overrides := manifest.KeywordOverrides()
	var rules []usecase.RouteRule
	for _, rule := range usecase.DefaultRouteRules() {
		if !known[rule.Domain] {
			continue
		}
		if keywords, ok := overrides[rule.Domain]; ok {
			rule.Keywords = keywords
			delete(overrides, rule.Domain)
		}
		rules = append(rules, rule)
	}
	for _, name := range manifest.DomainNames() {
		keywords, ok := overrides[name]
		if !ok || name == domain.DefaultDomain {
			continue
		}
		rules = append(rules, usecase.RouteRule{Domain: name, Keywords: keywords})
	}
	return rules
}
