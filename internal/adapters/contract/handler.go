package contract

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/kirillkom/medical-rag-assistant/internal/core/ports"
	"github.com/kirillkom/medical-rag-assistant/internal/observability/metrics"
)

// QueryHandler runs a decoded query against the service and records the outcome.
type QueryHandler struct {
	service ports.MedicalQueryService
	metrics *metrics.PipelineMetrics
	now     func() time.Time
}

func NewQueryHandler(service ports.MedicalQueryService, pipelineMetrics *metrics.PipelineMetrics) *QueryHandler {
	return &QueryHandler{
		service: service,
		metrics: pipelineMetrics,
		now:     time.Now,
	}
}

func (h *QueryHandler) Execute(ctx context.Context, req QueryRequest) (QueryResponse, error) {
	start := h.now()
	result, err := h.service.Retrieve(ctx, req.ToDomain())
	if h.metrics != nil {
		obs := metrics.QueryObservation{Err: err, Duration: time.Since(start)}
		if result != nil {
			obs.Domain = result.Domain
			obs.HypothesisFallback = result.HypothesisFallback
			obs.DegradedScores = result.DegradedScores
		}
		h.metrics.RecordQuery(obs)
	}
	if err != nil {
		return NewErrorResponse(err), err
	}
	return NewQueryResponse(req.Query, result, h.now()), nil
}

// HandlePayload is the bus entry point. Failures are encoded into the reply so the
// requester keeps the error kind.
func (h *QueryHandler) HandlePayload(ctx context.Context, payload []byte) ([]byte, error) {
	req, err := DecodeQueryRequest(payload)
	var resp QueryResponse
	if err != nil {
		resp = NewErrorResponse(err)
	} else {
		resp, err = h.Execute(ctx, req)
	}
	if err != nil {
		slog.Warn("query_failed", "code", resp.Code, "error", err)
	}
	body, marshalErr := json.Marshal(resp)
	if marshalErr != nil {
		return nil, fmt.Errorf("encode query response: %w", marshalErr)
	}
	return body, nil
}
