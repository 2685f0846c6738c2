package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func scrape(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	return string(body)
}

func TestHTTPMiddlewareNormalizesUnknownPaths(t *testing.T) {
	m := NewHTTPServerMetrics("api")
	h := m.Middleware("api", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/medical/query", nil))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/random/abc123", nil))

	out := scrape(t, m.Handler())
	if !strings.Contains(out, `medrag_http_requests_total{method="GET",path="/v1/medical/query",service="api",status="418"} 1`) {
		t.Fatalf("missing query route sample:\n%s", out)
	}
	if !strings.Contains(out, `path="other"`) || strings.Contains(out, "abc123") {
		t.Fatalf("unknown paths must collapse to other:\n%s", out)
	}
}

func TestPipelineMetricsRecordQueryAndInitialization(t *testing.T) {
	m := NewHTTPServerMetrics("api")
	m.Pipeline.RecordQuery(QueryObservation{Domain: "cardiology", Duration: time.Second, HypothesisFallback: true, DegradedScores: 2})
	m.Pipeline.RecordQuery(QueryObservation{Err: errors.New("boom")})
	m.Pipeline.RecordInitialization(map[string]int{"general": 12}, nil)
	m.Pipeline.ObserveRetry("ollama_generate")
	m.Pipeline.ObserveBreakerState("ollama_generate", "open")

	out := scrape(t, m.Handler())
	for _, want := range []string{
		`medrag_pipeline_queries_total{domain="cardiology",service="api",status="success"} 1`,
		`medrag_pipeline_queries_total{domain="unknown",service="api",status="error"} 1`,
		`medrag_pipeline_hypothesis_fallbacks_total{service="api"} 1`,
		`medrag_pipeline_rerank_degraded_scores_total{service="api"} 2`,
		`medrag_pipeline_domain_documents{domain="general",service="api"} 12`,
		`medrag_upstream_retries_total{operation="ollama_generate",service="api"} 1`,
		`medrag_upstream_breaker_transitions_total{operation="ollama_generate",service="api",state="open"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %s in:\n%s", want, out)
		}
	}
}

func TestWorkerMetricsTrackQueries(t *testing.T) {
	m := NewWorkerMetrics("worker")
	m.StartQuery()
	m.FinishQuery("worker", 2*time.Second, nil)

	out := scrape(t, m.Handler())
	if !strings.Contains(out, `medrag_worker_query_process_total{service="worker",status="success"} 1`) {
		t.Fatalf("missing worker sample:\n%s", out)
	}
	if !strings.Contains(out, `medrag_worker_query_process_in_flight{service="worker"} 0`) {
		t.Fatalf("in-flight gauge must return to zero:\n%s", out)
	}
}
