package events

import (
	"errors"
	"fmt"
	"time"

	"github.com/jqb69/darkseek/pkg/search"
	"github.com/jqb69/darkseek/pkg/validation"
)

// Type discriminates client-visible events.
type Type string

const (
	TypeSearchResults Type = "search_results"
	TypeLLMResponse   Type = "llm_response"
	TypeFullResponse  Type = "full_response"
	TypeHeartbeat     Type = "heartbeat"
	TypeWarning       Type = "warning"
	TypeError         Type = "error"
)

// Machine-readable error codes. Content stays the human-facing message;
// transports and clients branch on Code.
const (
	CodeRateLimited     = "rate_limited"
	CodeInvalidQuery    = "invalid_query"
	CodeUpstreamFailure = "upstream_failure"
)

// Event is the single envelope for everything a client receives. Which
// fields are populated depends on Type; the JSON shape stays uniform
// across the WebSocket, broker and HTTP transports.
type Event struct {
	Type          Type            `json:"type"`
	SessionID     string          `json:"session_id,omitempty"`
	Content       string          `json:"content,omitempty"`
	Code          string          `json:"code,omitempty"`
	LLMUsed       string          `json:"llm_used,omitempty"`
	SearchResults []search.Result `json:"search_results,omitempty"`
	Timestamp     int64           `json:"timestamp"`
}

func newEvent(t Type, sessionID string) Event {
	return Event{
		Type:      t,
		SessionID: sessionID,
		Timestamp: time.Now().Unix(),
	}
}

// NewSearchResults wraps the merged provider results.
func NewSearchResults(sessionID string, results []search.Result) Event {
	e := newEvent(TypeSearchResults, sessionID)
	e.SearchResults = results
	return e
}

// NewToken wraps one streamed model token.
func NewToken(sessionID, token string) Event {
	e := newEvent(TypeLLMResponse, sessionID)
	e.Content = token
	return e
}

// NewFullResponse wraps a complete answer, served from cache.
func NewFullResponse(sessionID, text, llmUsed string, results []search.Result) Event {
	e := newEvent(TypeFullResponse, sessionID)
	e.Content = text
	e.LLMUsed = llmUsed
	e.SearchResults = results
	return e
}

// NewHeartbeat is a liveness tick, not tied to a request.
func NewHeartbeat(sessionID string) Event {
	return newEvent(TypeHeartbeat, sessionID)
}

// NewWarning carries a non-fatal notice, such as a stream interruption.
func NewWarning(sessionID, message string) Event {
	e := newEvent(TypeWarning, sessionID)
	e.Content = message
	return e
}

// NewError carries a terminal failure. The code identifies the failure
// class; the message is display text only.
func NewError(sessionID, code, message string) Event {
	e := newEvent(TypeError, sessionID)
	e.Code = code
	e.Content = message
	return e
}

// Terminal reports whether no further events follow for this request.
func (e Event) Terminal() bool {
	return e.Type == TypeFullResponse || e.Type == TypeError
}

// ErrQueryTooLong is returned when the raw query exceeds the input cap.
var ErrQueryTooLong = errors.New("events: query exceeds maximum length")

// Request is the inbound query envelope shared by all transports.
type Request struct {
	Query         string `json:"query" validate:"required"`
	SessionID     string `json:"session_id" validate:"required"`
	SearchEnabled *bool  `json:"search_enabled,omitempty"`
	LLMName       string `json:"llm_name,omitempty"`
}

// SearchOn reports whether web search should run; unset means enabled.
func (r Request) SearchOn() bool {
	return r.SearchEnabled == nil || *r.SearchEnabled
}

// Validate checks required fields and the input length cap.
func (r Request) Validate(maxInputLength int) error {
	if err := validation.ValidateStruct(r); err != nil {
		return fmt.Errorf("events: invalid request: %w", err)
	}
	if maxInputLength > 0 && len(r.Query) > maxInputLength {
		return fmt.Errorf("%w: %d > %d", ErrQueryTooLong, len(r.Query), maxInputLength)
	}
	return nil
}
