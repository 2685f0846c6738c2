package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/medical-rag-assistant/internal/core/domain"
	"github.com/kirillkom/medical-rag-assistant/internal/core/ports"
)

// ServiceComponents are the collaborators the service needs to reach the ready state.
type ServiceComponents struct {
	Router      *Router
	Embedder    ports.Embedder
	Hypothesis  *HypothesisGenerator
	Reranker    *Reranker
	Synthesizer *Synthesizer
	Corpus      ports.CorpusSource
	IndexStep   *IndexBuildStep
	// Domains to index. Defaults to every domain the router can produce.
	Domains []string
	// BuildConcurrency bounds parallel domain index builds.
	BuildConcurrency int
}

// MedicalService owns the Uninitialized -> Initializing -> Ready|Failed lifecycle.
// Only one initialization attempt runs at a time; concurrent attempts are rejected
// with domain.ErrInitializing. Failed permits a fresh attempt.
type MedicalService struct {
	components ServiceComponents

	mu       sync.Mutex
	state    domain.ServiceState
	lastErr  error
	pipeline atomic.Pointer[Pipeline]
}

func NewMedicalService(components ServiceComponents) *MedicalService {
	if len(components.Domains) == 0 && components.Router != nil {
		components.Domains = components.Router.Domains()
	}
	if components.BuildConcurrency <= 0 {
		components.BuildConcurrency = 2
	}
	return &MedicalService{
		components: components,
		state:      domain.StateUninitialized,
	}
}

func (s *MedicalService) Initialize(ctx context.Context) error {
	s.mu.Lock()
	switch s.state {
	case domain.StateReady:
		s.mu.Unlock()
		return nil
	case domain.StateInitializing:
		s.mu.Unlock()
		return domain.WrapError(domain.ErrInitializing, "initialize", fmt.Errorf("another attempt is running"))
	}
	s.state = domain.StateInitializing
	s.lastErr = nil
	s.mu.Unlock()

	start := time.Now()
	slog.Info("initialization_started", "domains", s.components.Domains)
	pipeline, err := s.buildPipeline(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.state = domain.StateFailed
		s.lastErr = err
		slog.Error("initialization_failed", "error", err, "duration_ms", float64(time.Since(start).Microseconds())/1000.0)
		return err
	}
	s.pipeline.Store(pipeline)
	s.state = domain.StateReady
	slog.Info("initialization_completed", "domains", pipeline.DomainSizes(), "duration_ms", float64(time.Since(start).Microseconds())/1000.0)
	return nil
}

func (s *MedicalService) buildPipeline(ctx context.Context) (*Pipeline, error) {
	c := s.components
	indexes := make(map[string]ports.DomainIndex, len(c.Domains))
	var indexesMu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(c.BuildConcurrency)
	for _, name := range c.Domains {
		g.Go(func() error {
			docs, err := c.Corpus.LoadDomain(gctx, name)
			if err != nil {
				return domain.WrapError(domain.ErrIndexBuild, "load corpus "+name, err)
			}
			index, err := c.IndexStep.Build(gctx, name, docs)
			if err != nil {
				return err
			}
			indexesMu.Lock()
			indexes[name] = index
			indexesMu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return NewPipeline(c.Router, c.Embedder, indexes, c.Hypothesis, c.Reranker, c.Synthesizer), nil
}

func (s *MedicalService) Retrieve(ctx context.Context, q domain.Query) (*domain.RetrievalResult, error) {
	if err := ValidateQuery(q); err != nil {
		return nil, err
	}
	pipeline := s.pipeline.Load()
	if pipeline == nil {
		return nil, domain.WrapError(domain.ErrNotInitialized, "retrieve", fmt.Errorf("state=%s", s.currentState()))
	}
	return pipeline.Retrieve(ctx, q)
}

func (s *MedicalService) Status() domain.ServiceStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	status := domain.ServiceStatus{
		Initialized: s.state == domain.StateReady,
		State:       s.state,
	}
	if s.lastErr != nil {
		status.Error = s.lastErr.Error()
	}
	if p := s.pipeline.Load(); p != nil {
		status.Domains = p.DomainSizes()
	}
	return status
}

func (s *MedicalService) Route(query string) []string {
	return s.components.Router.Route(query)
}

func (s *MedicalService) currentState() domain.ServiceState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}
