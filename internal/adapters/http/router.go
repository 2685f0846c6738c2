package httpadapter

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/oapi-codegen/runtime"

	"github.com/kirillkom/medical-rag-assistant/internal/adapters/contract"
	"github.com/kirillkom/medical-rag-assistant/internal/config"
	"github.com/kirillkom/medical-rag-assistant/internal/core/domain"
	"github.com/kirillkom/medical-rag-assistant/internal/core/ports"
	"github.com/kirillkom/medical-rag-assistant/internal/observability/metrics"
)

const maxQueryBodyBytes = 1 << 20

//go:embed openapi.yaml
var openAPISpec []byte

// QueryDispatcher forwards an encoded query to a remote worker and returns its encoded reply.
type QueryDispatcher interface {
	Request(ctx context.Context, payload []byte) ([]byte, error)
}

type Router struct {
	cfg        config.Config
	service    ports.MedicalQueryService
	queries    *contract.QueryHandler
	dispatcher QueryDispatcher
	metrics    *metrics.HTTPServerMetrics
}

// NewRouter wires the HTTP surface. httpMetrics and dispatcher are optional.
func NewRouter(
	cfg config.Config,
	service ports.MedicalQueryService,
	httpMetrics *metrics.HTTPServerMetrics,
	dispatcher QueryDispatcher,
) *Router {
	var pipelineMetrics *metrics.PipelineMetrics
	if httpMetrics != nil {
		pipelineMetrics = httpMetrics.Pipeline
	}
	return &Router{
		cfg:        cfg,
		service:    service,
		queries:    contract.NewQueryHandler(service, pipelineMetrics),
		dispatcher: dispatcher,
		metrics:    httpMetrics,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/openapi.yaml", rt.openAPI)
	mux.HandleFunc("/v1/medical/status", rt.status)
	mux.HandleFunc("/v1/medical/initialize", rt.initialize)
	mux.Handle("/v1/medical/query", backpressureMiddleware(
		http.HandlerFunc(rt.query),
		rt.cfg.APIBackpressureMaxInFlight,
		rt.cfg.APIBackpressureWaitTimeout,
	))
	mux.HandleFunc("/v1/medical/route", rt.route)
	if rt.metrics != nil {
		mux.Handle("/metrics", rt.metrics.Handler())
	}

	var handler http.Handler = mux
	if rt.cfg.APIOpenAPIValidationEnabled {
		validator, err := newOpenAPIValidator(openAPISpec)
		if err != nil {
			slog.Error("openapi_validation_disabled", "error", err)
		} else {
			handler = validator.middleware(handler)
		}
	}
	handler = rateLimitMiddleware(handler, rt.cfg.APIRateLimitRPS, rt.cfg.APIRateLimitBurst)
	if rt.metrics != nil {
		handler = rt.metrics.Middleware("api", handler)
	}
	return requestIDMiddleware(accessLogMiddleware(handler))
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	if rt.dispatcher != nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":         "ok",
			"query_dispatch": "nats",
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"initialized": rt.service.Status().Initialized,
	})
}

// rejectDispatched answers lifecycle calls when query workers own the indexes.
func (rt *Router) rejectDispatched(w http.ResponseWriter) bool {
	if rt.dispatcher == nil {
		return false
	}
	writeJSON(w, http.StatusNotImplemented, map[string]string{
		"error": "indexes are built by the query workers; this api dispatches queries over nats",
	})
	return true
}

func (rt *Router) openAPI(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	w.Header().Set("Content-Type", "application/yaml")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(openAPISpec)
}

func (rt *Router) status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	if rt.rejectDispatched(w) {
		return
	}
	writeJSON(w, http.StatusOK, rt.service.Status())
}

func (rt *Router) initialize(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	if rt.rejectDispatched(w) {
		return
	}

	// A client disconnect must not abort an index build other callers are waiting on.
	ctx := context.WithoutCancel(r.Context())
	if rt.cfg.InitTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, rt.cfg.InitTimeout)
		defer cancel()
	}

	err := rt.service.Initialize(ctx)
	if rt.metrics != nil && !domain.IsKind(err, domain.ErrInitializing) {
		rt.metrics.Pipeline.RecordInitialization(rt.service.Status().Domains, err)
	}
	if err != nil {
		writeJSON(w, mapErrorToHTTPStatus(err), map[string]any{
			"initialized": false,
			"error":       err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message":     "medical rag service initialized",
		"initialized": true,
	})
}

func (rt *Router) query(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxQueryBodyBytes))
	if err != nil {
		rt.writeQueryError(w, domain.WrapError(domain.ErrInvalidInput, "read query body", err))
		return
	}
	req, err := contract.DecodeQueryRequest(body)
	if err != nil {
		rt.writeQueryError(w, err)
		return
	}

	ctx := r.Context()
	if rt.cfg.APIQueryTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, rt.cfg.APIQueryTimeout)
		defer cancel()
	}

	var resp contract.QueryResponse
	if rt.dispatcher != nil {
		resp, err = rt.dispatch(ctx, req)
	} else {
		resp, err = rt.queries.Execute(ctx, req)
	}
	if err != nil {
		rt.writeQueryError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (rt *Router) dispatch(ctx context.Context, req contract.QueryRequest) (contract.QueryResponse, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return contract.QueryResponse{}, fmt.Errorf("encode query request: %w", err)
	}
	reply, err := rt.dispatcher.Request(ctx, payload)
	if err != nil {
		return contract.QueryResponse{}, err
	}
	resp, err := contract.DecodeQueryResponse(reply)
	if err != nil {
		return contract.QueryResponse{}, err
	}
	if err := resp.Err(); err != nil {
		return contract.QueryResponse{}, err
	}
	return resp, nil
}

func (rt *Router) writeQueryError(w http.ResponseWriter, err error) {
	writeJSON(w, mapErrorToHTTPStatus(err), contract.NewErrorResponse(err))
}

func (rt *Router) route(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	var query string
	if err := runtime.BindQueryParameter("form", true, true, "query", r.URL.Query(), &query); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"query":   query,
		"domains": rt.service.Route(query),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
