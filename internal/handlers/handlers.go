package handlers

import (
	"context"
	"net/http"
	"sort"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/jqb69/darkseek/internal/events"
	"github.com/jqb69/darkseek/internal/orchestrator"
	"github.com/jqb69/darkseek/internal/transcript"
	"github.com/jqb69/darkseek/pkg/logging"
	"github.com/jqb69/darkseek/pkg/monitoring"
	"github.com/jqb69/darkseek/pkg/search"
)

// Responder drives one request and emits events on the sink.
type Responder interface {
	Respond(ctx context.Context, req events.Request, sink orchestrator.Sink)
}

// ModelRoster exposes the configured model names.
type ModelRoster interface {
	Models() []string
	DefaultModel() string
}

// TranscriptReader looks up stored transcripts.
type TranscriptReader interface {
	Lookup(ctx context.Context, queryText string) (*transcript.Record, error)
}

// Handlers serves the synchronous HTTP API.
type Handlers struct {
	responder   Responder
	models      ModelRoster
	transcripts TranscriptReader
	logger      logging.Logger
	metrics     *monitoring.ChatMetrics
}

// New creates the HTTP handlers.
func New(responder Responder, models ModelRoster, transcripts TranscriptReader, logger logging.Logger) *Handlers {
	return &Handlers{
		responder:   responder,
		models:      models,
		transcripts: transcripts,
		logger:      logger,
	}
}

// WithMetrics attaches the chat metrics bundle. Optional; handlers work
// without it.
func (h *Handlers) WithMetrics(metrics *monitoring.ChatMetrics) *Handlers {
	h.metrics = metrics
	return h
}

func (h *Handlers) countQuery(status string) {
	if h.metrics != nil {
		h.metrics.Queries.WithLabelValues("http", status).Inc()
	}
}

// Register attaches the routes to the router.
func (h *Handlers) Register(router *gin.Engine) {
	router.POST("/query", h.Query)
	router.GET("/models", h.Models)
	router.GET("/transcripts", h.Transcript)
}

// queryResponse is the collected result of one synchronous query.
type queryResponse struct {
	Response      string          `json:"response"`
	SearchResults []search.Result `json:"search_results,omitempty"`
	LLMUsed       string          `json:"llm_used,omitempty"`
}

// collectingSink folds the event stream into a single response body.
type collectingSink struct {
	response      strings.Builder
	full          string
	llmUsed       string
	searchResults []search.Result
	errCode       string
	errMessage    string
}

func (s *collectingSink) Send(e events.Event) error {
	switch e.Type {
	case events.TypeLLMResponse:
		s.response.WriteString(e.Content)
	case events.TypeFullResponse:
		s.full = e.Content
		s.llmUsed = e.LLMUsed
		if len(e.SearchResults) > 0 {
			s.searchResults = e.SearchResults
		}
	case events.TypeSearchResults:
		s.searchResults = e.SearchResults
	case events.TypeError:
		s.errCode = e.Code
		s.errMessage = e.Content
	}
	return nil
}

func (s *collectingSink) result() queryResponse {
	response := s.full
	if response == "" {
		response = s.response.String()
	}
	return queryResponse{
		Response:      response,
		SearchResults: s.searchResults,
		LLMUsed:       s.llmUsed,
	}
}

// Query runs one request to completion and returns the folded result.
// Clients without a session get a fresh one-shot session ID.
func (h *Handlers) Query(c *gin.Context) {
	var req events.Request
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.SessionID == "" {
		req.SessionID = uuid.New().String()
	}

	sink := &collectingSink{}
	h.responder.Respond(c.Request.Context(), req, sink)

	if sink.errMessage != "" {
		h.countQuery("error")
		status := http.StatusBadRequest
		if sink.errCode == events.CodeRateLimited {
			status = http.StatusTooManyRequests
		}
		c.JSON(status, gin.H{"error": sink.errMessage, "code": sink.errCode, "session_id": req.SessionID})
		return
	}
	h.countQuery("ok")
	c.JSON(http.StatusOK, sink.result())
}

// Models lists the configured model names and the default.
func (h *Handlers) Models(c *gin.Context) {
	models := h.models.Models()
	sort.Strings(models)
	c.JSON(http.StatusOK, gin.H{
		"models":  models,
		"default": h.models.DefaultModel(),
	})
}

// Transcript returns the stored transcript for an exact query text.
func (h *Handlers) Transcript(c *gin.Context) {
	query := c.Query("query")
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query parameter is required"})
		return
	}

	rec, err := h.transcripts.Lookup(c.Request.Context(), query)
	if err != nil {
		h.logger.WithError(err).Error("Transcript lookup failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to look up transcript"})
		return
	}
	if rec == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "transcript not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"query_text":     rec.QueryText,
		"response_text":  rec.ResponseText,
		"search_results": rec.SearchResults,
		"llm_used":       rec.LLMUsed,
		"created_at":     rec.CreatedAt,
	})
}
