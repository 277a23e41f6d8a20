package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/jqb69/darkseek/internal/cache"
	"github.com/jqb69/darkseek/internal/events"
	"github.com/jqb69/darkseek/internal/transcript"
	"github.com/jqb69/darkseek/pkg/llm"
	"github.com/jqb69/darkseek/pkg/logging"
	"github.com/jqb69/darkseek/pkg/monitoring"
	"github.com/jqb69/darkseek/pkg/search"
	"github.com/jqb69/darkseek/pkg/validation"
)

// Sink receives the events produced for one request. Implemented by the
// WebSocket session, the broker publisher and the HTTP collector.
type Sink interface {
	Send(events.Event) error
}

// ResponseCache is the slice of internal/cache the orchestrator needs.
type ResponseCache interface {
	Get(ctx context.Context, query string) (*cache.Entry, error)
	Put(ctx context.Context, query string, entry cache.Entry) error
}

// SessionLimiter counts query turns per session.
type SessionLimiter interface {
	IncrementSessionTurns(ctx context.Context, sessionID string) (int64, error)
}

// Searcher produces merged web results for a query.
type Searcher interface {
	Search(ctx context.Context, query string, limit int) ([]search.Result, error)
}

// Model streams tokens and produces canonical answers.
type Model interface {
	Stream(ctx context.Context, query string, results []search.Result, model string) (llm.Stream, string, error)
	Answer(ctx context.Context, query string, results []search.Result, model string) (string, error)
}

// Persister schedules transcript writes.
type Persister interface {
	Enqueue(rec transcript.Record)
}

// Limits bounds a single request.
type Limits struct {
	MaxTurns       int64
	MaxResults     int
	MaxInputLength int
}

// Orchestrator drives one query through rate check, cache, search,
// model streaming, cache write and persistence. All dependencies are
// injected; there is no package-level state.
type Orchestrator struct {
	cache    ResponseCache
	limiter  SessionLimiter
	searcher Searcher
	model    Model
	persist  Persister
	logger   logging.Logger
	metrics  *monitoring.ChatMetrics
	limits   Limits
}

// Deps bundles the orchestrator's collaborators. Metrics may be nil.
type Deps struct {
	Cache    ResponseCache
	Limiter  SessionLimiter
	Searcher Searcher
	Model    Model
	Persist  Persister
	Logger   logging.Logger
	Metrics  *monitoring.ChatMetrics
	Limits   Limits
}

// New creates an orchestrator.
func New(deps Deps) *Orchestrator {
	return &Orchestrator{
		cache:    deps.Cache,
		limiter:  deps.Limiter,
		searcher: deps.Searcher,
		model:    deps.Model,
		persist:  deps.Persist,
		logger:   deps.Logger,
		metrics:  deps.Metrics,
		limits:   deps.Limits,
	}
}

// Respond handles one request end to end. Failures never propagate to
// the transport; every terminal condition becomes an event on the sink.
func (o *Orchestrator) Respond(ctx context.Context, req events.Request, sink Sink) {
	sid := req.SessionID
	log := o.logger.WithField("session_id", sid)

	// Rate check runs before anything else so cached answers still
	// consume a turn.
	count, err := o.limiter.IncrementSessionTurns(ctx, sid)
	if err != nil {
		// A down limiter must not take the service with it.
		log.WithError(err).Warn("Rate limiter unavailable, allowing query")
	} else if count > o.limits.MaxTurns {
		log.WithField("turns", count).Info("Session over chat limit")
		if o.metrics != nil {
			o.metrics.RateLimited.Inc()
		}
		o.send(sink, events.NewError(sid, events.CodeRateLimited, fmt.Sprintf("Chat limit reached: at most %d queries per hour", o.limits.MaxTurns)))
		return
	}

	if err := req.Validate(o.limits.MaxInputLength); err != nil {
		o.send(sink, events.NewError(sid, events.CodeInvalidQuery, err.Error()))
		return
	}
	query := validation.NormalizeQuery(req.Query)
	if query == "" {
		o.send(sink, events.NewError(sid, events.CodeInvalidQuery, "Query must not be empty"))
		return
	}

	entry, err := o.cache.Get(ctx, query)
	if err != nil {
		log.WithError(err).Warn("Cache read failed, falling through to live path")
	}
	if entry != nil {
		if o.metrics != nil {
			o.metrics.CacheHits.WithLabelValues("hit").Inc()
		}
		o.send(sink, events.NewFullResponse(sid, entry.Response, entry.LLMUsed, entry.SearchResults))
		return
	}
	if o.metrics != nil && err == nil {
		o.metrics.CacheHits.WithLabelValues("miss").Inc()
	}

	// Search runs once; the same results feed the event, the prompt,
	// the cache entry and the transcript.
	var results []search.Result
	if req.SearchOn() {
		results, err = o.searcher.Search(ctx, query, o.limits.MaxResults)
		if err != nil {
			log.WithError(err).Error("Search failed")
			o.send(sink, events.NewError(sid, events.CodeUpstreamFailure, "Search failed, please retry"))
			return
		}
		if !o.send(sink, events.NewSearchResults(sid, results)) {
			return
		}
	}

	stream, modelUsed, err := o.model.Stream(ctx, query, results, req.LLMName)
	if err != nil {
		log.WithError(err).Error("Failed to open model stream")
		o.send(sink, modelFailureEvent(sid, err))
		return
	}
	defer stream.Close()

	start := time.Now()
	var streamed strings.Builder
	for {
		token, err := stream.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			if errors.Is(err, llm.ErrStreamInterrupted) {
				// Replay what arrived so the client is not left with a
				// truncated answer and no explanation. The partial text
				// is never cached.
				log.WithError(err).Warn("Model stream interrupted, replaying partial output")
				o.send(sink, events.NewWarning(sid, "Response was interrupted; partial answer follows"))
				o.send(sink, events.NewToken(sid, strings.Join(stream.Partial(), "")))
				return
			}
			log.WithError(err).Error("Model stream failed")
			o.send(sink, modelFailureEvent(sid, err))
			return
		}
		streamed.WriteString(token)
		if o.metrics != nil {
			o.metrics.Tokens.Inc()
		}
		if !o.send(sink, events.NewToken(sid, token)) {
			// Client gone mid-stream; nothing to cache or persist.
			return
		}
	}
	if o.metrics != nil {
		o.metrics.StreamDuration.WithLabelValues(modelUsed).Observe(time.Since(start).Seconds())
	}

	// The canonical cached text comes from a second, non-streaming call;
	// the concatenated tokens are the fallback when that call fails.
	response, err := o.model.Answer(ctx, query, results, modelUsed)
	if err != nil || response == "" {
		if err != nil {
			log.WithError(err).Warn("Canonical answer call failed, caching streamed text")
		}
		response = streamed.String()
	}

	if err := o.cache.Put(ctx, query, cache.Entry{
		Response:      response,
		LLMUsed:       modelUsed,
		SearchResults: results,
	}); err != nil {
		log.WithError(err).Warn("Cache write failed")
	}

	o.persist.Enqueue(transcript.Record{
		QueryText:     query,
		ResponseText:  response,
		SearchResults: results,
		LLMUsed:       modelUsed,
	})
}

// send forwards an event, reporting false when the sink is gone.
func (o *Orchestrator) send(sink Sink, event events.Event) bool {
	if err := sink.Send(event); err != nil {
		o.logger.WithError(err).WithField("session_id", event.SessionID).Debug("Sink closed, abandoning request")
		return false
	}
	return true
}

func modelFailureEvent(sessionID string, err error) events.Event {
	switch {
	case errors.Is(err, llm.ErrUnknownModel):
		return events.NewError(sessionID, events.CodeInvalidQuery, "Unknown model requested")
	case errors.Is(err, llm.ErrMissingToken), errors.Is(err, llm.ErrMissingEndpoint):
		return events.NewError(sessionID, events.CodeUpstreamFailure, "Model is not configured")
	default:
		return events.NewError(sessionID, events.CodeUpstreamFailure, "Model request failed, please retry")
	}
}
