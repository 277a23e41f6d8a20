package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/jqb69/darkseek/internal/events"
	"github.com/jqb69/darkseek/internal/orchestrator"
	"github.com/jqb69/darkseek/internal/transcript"
	"github.com/jqb69/darkseek/pkg/logging"
	"github.com/jqb69/darkseek/pkg/monitoring"
	"github.com/jqb69/darkseek/pkg/search"
)

type scriptedResponder struct {
	lastRequest events.Request
	emit        func(req events.Request, sink orchestrator.Sink)
}

func (r *scriptedResponder) Respond(_ context.Context, req events.Request, sink orchestrator.Sink) {
	r.lastRequest = req
	if r.emit != nil {
		r.emit(req, sink)
	}
}

type fixedRoster struct{}

func (fixedRoster) Models() []string     { return []string{"model-b", "model-a"} }
func (fixedRoster) DefaultModel() string { return "model-a" }

type fakeTranscripts struct {
	record *transcript.Record
	err    error
}

func (f *fakeTranscripts) Lookup(context.Context, string) (*transcript.Record, error) {
	return f.record, f.err
}

func setupRouter(responder Responder, transcripts TranscriptReader) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	New(responder, fixedRoster{}, transcripts, logging.NewLogger()).Register(router)
	return router
}

func TestQueryConcatenatesTokens(t *testing.T) {
	responder := &scriptedResponder{
		emit: func(req events.Request, sink orchestrator.Sink) {
			sink.Send(events.NewSearchResults(req.SessionID, []search.Result{
				{Title: "Paris", Link: "https://example.com", Snippet: "capital"},
			}))
			sink.Send(events.NewToken(req.SessionID, "Par"))
			sink.Send(events.NewToken(req.SessionID, "is"))
		},
	}
	router := setupRouter(responder, &fakeTranscripts{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/query", strings.NewReader(`{"query":"capital of france","session_id":"s1"}`))
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", w.Code, w.Body.String())
	}
	var body struct {
		Response      string          `json:"response"`
		SearchResults []search.Result `json:"search_results"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Response != "Paris" {
		t.Fatalf("response = %q, want Paris", body.Response)
	}
	if len(body.SearchResults) != 1 {
		t.Fatalf("search results missing: %+v", body)
	}
}

func TestQueryPassesThroughCachedResponse(t *testing.T) {
	responder := &scriptedResponder{
		emit: func(req events.Request, sink orchestrator.Sink) {
			sink.Send(events.NewFullResponse(req.SessionID, "Paris", "model-a", nil))
		},
	}
	router := setupRouter(responder, &fakeTranscripts{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/query", strings.NewReader(`{"query":"capital of france","session_id":"s1"}`))
	router.ServeHTTP(w, req)

	var body struct {
		Response string `json:"response"`
		LLMUsed  string `json:"llm_used"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Response != "Paris" || body.LLMUsed != "model-a" {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestQueryGeneratesSessionWhenMissing(t *testing.T) {
	responder := &scriptedResponder{}
	router := setupRouter(responder, &fakeTranscripts{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/query", strings.NewReader(`{"query":"q"}`))
	router.ServeHTTP(w, req)

	if responder.lastRequest.SessionID == "" {
		t.Fatal("a one-shot session ID should have been generated")
	}
}

func TestQueryRateLimitMapsTo429(t *testing.T) {
	responder := &scriptedResponder{
		emit: func(req events.Request, sink orchestrator.Sink) {
			sink.Send(events.NewError(req.SessionID, events.CodeRateLimited, "Chat limit reached: at most 12 queries per hour"))
		},
	}
	router := setupRouter(responder, &fakeTranscripts{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/query", strings.NewReader(`{"query":"q","session_id":"s1"}`))
	router.ServeHTTP(w, req)

	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("status = %d, want 429", w.Code)
	}
	if !strings.Contains(w.Body.String(), events.CodeRateLimited) {
		t.Fatalf("body should carry the error code: %s", w.Body.String())
	}
}

func TestQueryStatusComesFromErrorCode(t *testing.T) {
	// The message text must not influence the status; only the code does.
	responder := &scriptedResponder{
		emit: func(req events.Request, sink orchestrator.Sink) {
			sink.Send(events.NewError(req.SessionID, events.CodeUpstreamFailure, "upstream limit reached"))
		},
	}
	router := setupRouter(responder, &fakeTranscripts{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/query", strings.NewReader(`{"query":"q","session_id":"s1"}`))
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestQueryCountsOutcomesPerStatus(t *testing.T) {
	metrics := &monitoring.ChatMetrics{
		Queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "test_queries_total",
		}, []string{"transport", "status"}),
	}
	responder := &scriptedResponder{
		emit: func(req events.Request, sink orchestrator.Sink) {
			sink.Send(events.NewFullResponse(req.SessionID, "Paris", "model-a", nil))
		},
	}
	gin.SetMode(gin.TestMode)
	router := gin.New()
	New(responder, fixedRoster{}, &fakeTranscripts{}, logging.NewLogger()).WithMetrics(metrics).Register(router)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("POST", "/query", strings.NewReader(`{"query":"q","session_id":"s1"}`)))
	if got := testutil.ToFloat64(metrics.Queries.WithLabelValues("http", "ok")); got != 1 {
		t.Fatalf("http/ok = %v, want 1", got)
	}

	responder.emit = func(req events.Request, sink orchestrator.Sink) {
		sink.Send(events.NewError(req.SessionID, events.CodeUpstreamFailure, "boom"))
	}
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("POST", "/query", strings.NewReader(`{"query":"q","session_id":"s1"}`)))
	if got := testutil.ToFloat64(metrics.Queries.WithLabelValues("http", "error")); got != 1 {
		t.Fatalf("http/error = %v, want 1", got)
	}
}

func TestQueryRejectsBadBody(t *testing.T) {
	router := setupRouter(&scriptedResponder{}, &fakeTranscripts{})

	w := httptest.NewRecorder()
	req := httptest.NewRequest("POST", "/query", strings.NewReader("{broken"))
	router.ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}

func TestModels(t *testing.T) {
	router := setupRouter(&scriptedResponder{}, &fakeTranscripts{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/models", nil))

	var body struct {
		Models  []string `json:"models"`
		Default string   `json:"default"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body.Default != "model-a" {
		t.Fatalf("default = %q", body.Default)
	}
	if len(body.Models) != 2 || body.Models[0] != "model-a" {
		t.Fatalf("models should be sorted: %v", body.Models)
	}
}

func TestTranscriptLookup(t *testing.T) {
	router := setupRouter(&scriptedResponder{}, &fakeTranscripts{
		record: &transcript.Record{QueryText: "q", ResponseText: "a", LLMUsed: "model-a"},
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/transcripts?query=q", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"response_text":"a"`) {
		t.Fatalf("unexpected body %s", w.Body.String())
	}
}

func TestTranscriptNotFound(t *testing.T) {
	router := setupRouter(&scriptedResponder{}, &fakeTranscripts{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/transcripts?query=missing", nil))

	if w.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", w.Code)
	}
}

func TestTranscriptRequiresQueryParam(t *testing.T) {
	router := setupRouter(&scriptedResponder{}, &fakeTranscripts{})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/transcripts", nil))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", w.Code)
	}
}
