package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/kirillkom/medical-rag-assistant/internal/adapters/contract"
	"github.com/kirillkom/medical-rag-assistant/internal/config"
	"github.com/kirillkom/medical-rag-assistant/internal/core/domain"
	"github.com/kirillkom/medical-rag-assistant/internal/observability/metrics"
)

func TestHealthzReportsReadiness(t *testing.T) {
	svc := &serviceFake{}
	handler := newTestHandler(config.Config{}, svc)

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	var body map[string]any
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" || body["initialized"] != false {
		t.Fatalf("unexpected healthz body: %v", body)
	}
	if res.Header().Get(requestIDHeader) == "" {
		t.Fatalf("expected request id header")
	}
}

func TestInitializeThenStatus(t *testing.T) {
	svc := &serviceFake{}
	handler := newTestHandler(config.Config{}, svc)

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/v1/medical/initialize", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var initBody map[string]any
	if err := json.NewDecoder(res.Body).Decode(&initBody); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if initBody["initialized"] != true || initBody["message"] == "" {
		t.Fatalf("unexpected initialize body: %v", initBody)
	}
	if svc.initCtxErr != nil {
		t.Fatalf("initialize context should be live, got %v", svc.initCtxErr)
	}

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/medical/status", nil))
	var status domain.ServiceStatus
	if err := json.NewDecoder(res.Body).Decode(&status); err != nil {
		t.Fatalf("decode status: %v", err)
	}
	if !status.Initialized || status.State != domain.StateReady || status.Domains["general"] != 2 {
		t.Fatalf("unexpected status: %+v", status)
	}
}

func TestInitializeSurvivesClientCancellation(t *testing.T) {
	svc := &serviceFake{}
	handler := newTestHandler(config.Config{}, svc)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	req := httptest.NewRequest(http.MethodPost, "/v1/medical/initialize", nil).WithContext(ctx)
	handler.ServeHTTP(httptest.NewRecorder(), req)
	if svc.initCtxErr != nil {
		t.Fatalf("expected initialization context detached from request, got %v", svc.initCtxErr)
	}
}

func TestQueryReturnsEnvelopeAndCapsResults(t *testing.T) {
	ranked := make([]domain.RankedResult, 7)
	for i := range ranked {
		ranked[i] = domain.RankedResult{Answer: "answer", Score: 1 - float64(i)/10}
	}
	svc := &serviceFake{result: &domain.RetrievalResult{
		Domain:        domain.DomainCardiology,
		FinalAnswer:   "**Summary**\nrest",
		RankedResults: ranked,
	}}
	handler := newTestHandler(config.Config{}, svc)

	res := postQuery(t, handler, map[string]any{"query": "chest pain", "k": 7, "use_hyde": false})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	var resp contract.QueryResponse
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !resp.Success || resp.Domain != domain.DomainCardiology || resp.Query != "chest pain" || resp.Timestamp == "" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.FinalAnswer != "**Summary**\nrest" || resp.Answer != resp.FinalAnswer {
		t.Fatalf("expected final_answer and answer alias, got %+v", resp)
	}
	if len(resp.RankedResults) != domain.MaxResponseResults {
		t.Fatalf("expected %d ranked results, got %d", domain.MaxResponseResults, len(resp.RankedResults))
	}
	if svc.lastQuery.TopK != 7 || svc.lastQuery.UseHypothesis {
		t.Fatalf("aliases not applied: %+v", svc.lastQuery)
	}
}

func TestRouteReturnsDomains(t *testing.T) {
	handler := newTestHandler(config.Config{}, &serviceFake{})
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/medical/route?query=rash", nil))
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", res.Code)
	}
	var body struct {
		Domains []string `json:"domains"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Domains) != 1 || body.Domains[0] != domain.DomainDermatology {
		t.Fatalf("unexpected domains: %v", body.Domains)
	}
}

type dispatcherFake struct {
	payload []byte
	reply   []byte
	err     error
}

func (f *dispatcherFake) Request(_ context.Context, payload []byte) ([]byte, error) {
	f.payload = payload
	return f.reply, f.err
}

func TestQueryDispatchesToWorker(t *testing.T) {
	dispatcher := &dispatcherFake{reply: []byte(`{"success":true,"query":"q","domain":"general","answer":"a","ranked_results":[],"timestamp":"2026-10-19T00:00:00Z"}`)}
	svc := &serviceFake{retrieveErr: errors.New("local path must not run")}
	handler := NewRouter(config.Config{}, svc, nil, dispatcher).Handler()

	res := postQuery(t, handler, map[string]any{"query": "q", "top_k": 2})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	if !strings.Contains(string(dispatcher.payload), `"top_k":2`) {
		t.Fatalf("request not forwarded: %s", dispatcher.payload)
	}
	if !strings.Contains(res.Body.String(), `"final_answer":"a"`) {
		t.Fatalf("expected final_answer from worker reply, got %s", res.Body.String())
	}
}

func TestDispatchModeRejectsLocalLifecycle(t *testing.T) {
	svc := &serviceFake{}
	handler := NewRouter(config.Config{}, svc, nil, &dispatcherFake{}).Handler()

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodPost, "/v1/medical/initialize", nil))
	if res.Code != http.StatusNotImplemented {
		t.Fatalf("expected 501 for initialize, got %d", res.Code)
	}
	if svc.initCalls != 0 {
		t.Fatalf("initialize must not build local indexes in dispatch mode")
	}

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/v1/medical/status", nil))
	if res.Code != http.StatusNotImplemented {
		t.Fatalf("expected 501 for status, got %d", res.Code)
	}

	res = httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	var body map[string]any
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["query_dispatch"] != "nats" {
		t.Fatalf("expected dispatch mode in healthz, got %v", body)
	}
	if _, ok := body["initialized"]; ok {
		t.Fatalf("healthz must not report local readiness in dispatch mode: %v", body)
	}
}

func TestQueryDispatchKeepsRemoteErrorKind(t *testing.T) {
	dispatcher := &dispatcherFake{reply: []byte(`{"success":false,"error":"not ready","code":"not_initialized"}`)}
	handler := NewRouter(config.Config{}, &serviceFake{}, nil, dispatcher).Handler()

	res := postQuery(t, handler, map[string]any{"query": "q"})
	if res.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", res.Code)
	}
}

func TestQueryDispatchTransportFailure(t *testing.T) {
	dispatcher := &dispatcherFake{err: domain.WrapError(domain.ErrTemporary, "nats request", errors.New("no responders"))}
	handler := NewRouter(config.Config{}, &serviceFake{}, nil, dispatcher).Handler()

	res := postQuery(t, handler, map[string]any{"query": "q"})
	if res.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", res.Code)
	}
}

func TestOpenAPIValidationRejectsContractViolations(t *testing.T) {
	handler := newTestHandler(config.Config{APIOpenAPIValidationEnabled: true}, &serviceFake{})

	res := postQuery(t, handler, map[string]any{"query": "q", "top_k": 0})
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for top_k=0, got %d", res.Code)
	}
	if !strings.Contains(res.Body.String(), "api contract") {
		t.Fatalf("expected contract error, got %s", res.Body.String())
	}

	res = postQuery(t, handler, map[string]any{"query": "q", "top_k": 2})
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200 for valid request, got %d: %s", res.Code, res.Body.String())
	}
}

func TestOpenAPIDocumentIsServedAndValid(t *testing.T) {
	if _, err := newOpenAPIValidator(openAPISpec); err != nil {
		t.Fatalf("embedded document invalid: %v", err)
	}
	handler := newTestHandler(config.Config{}, &serviceFake{})
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/openapi.yaml", nil))
	if res.Code != http.StatusOK || !bytes.Contains(res.Body.Bytes(), []byte("/v1/medical/query")) {
		t.Fatalf("unexpected openapi response %d", res.Code)
	}
}

func TestMetricsEndpointExposesPipelineCounters(t *testing.T) {
	httpMetrics := metrics.NewHTTPServerMetrics("api-test")
	handler := NewRouter(config.Config{}, &serviceFake{}, httpMetrics, nil).Handler()

	postQuery(t, handler, map[string]any{"query": "q"})

	res := httptest.NewRecorder()
	handler.ServeHTTP(res, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := res.Body.String()
	for _, name := range []string{"medrag_http_requests_total", "medrag_pipeline_queries_total"} {
		if !strings.Contains(body, name) {
			t.Fatalf("expected %s in metrics output", name)
		}
	}
}
