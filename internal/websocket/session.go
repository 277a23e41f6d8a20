package websocket

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/jqb69/darkseek/internal/events"
	"github.com/jqb69/darkseek/internal/orchestrator"
	"github.com/jqb69/darkseek/pkg/logging"
	"github.com/jqb69/darkseek/pkg/monitoring"
)

const (
	heartbeatInterval = 30 * time.Second
	readTimeout       = 60 * time.Second
	writeTimeout      = 10 * time.Second
)

// Responder drives one request and emits events on the sink.
type Responder interface {
	Respond(ctx context.Context, req events.Request, sink orchestrator.Sink)
}

// Handler upgrades chat connections and runs one session per socket.
type Handler struct {
	responder Responder
	logger    logging.Logger
	metrics   *monitoring.ChatMetrics
	upgrader  websocket.Upgrader
}

// WithMetrics attaches the chat metrics bundle. Optional.
func (h *Handler) WithMetrics(metrics *monitoring.ChatMetrics) *Handler {
	h.metrics = metrics
	return h
}

// NewHandler creates a WebSocket handler.
func NewHandler(responder Responder, logger logging.Logger) *Handler {
	return &Handler{
		responder: responder,
		logger:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Handle upgrades the connection for /ws/:session_id and processes
// requests until the client goes away.
func (h *Handler) Handle(c *gin.Context) {
	sessionID := c.Param("session_id")
	if sessionID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "session_id is required"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	s := &session{
		conn:       conn,
		sessionID:  sessionID,
		responder:  h.responder,
		logger:     h.logger.WithField("session_id", sessionID),
		metrics:    h.metrics,
		out:        make(chan events.Event, 64),
		closed:     make(chan struct{}),
		writerDead: make(chan struct{}),
	}
	s.run(c.Request.Context())
}

// session owns one WebSocket connection. A single writer goroutine
// serializes outbound frames and heartbeats; the read loop processes
// requests one at a time.
type session struct {
	conn       *websocket.Conn
	sessionID  string
	responder  Responder
	logger     logging.Entry
	metrics    *monitoring.ChatMetrics
	out        chan events.Event
	closed     chan struct{}
	writerDead chan struct{}

	// sawError is only touched from the request goroutine: Send is
	// called by Respond, which runs on the read loop.
	sawError bool
}

// Send implements orchestrator.Sink. It fails once the session closed or
// the writer died on a broken connection, which makes in-flight work
// abandon itself instead of queueing into a dead socket.
func (s *session) Send(e events.Event) error {
	select {
	case <-s.closed:
		return errors.New("websocket: session closed")
	case <-s.writerDead:
		return errors.New("websocket: connection lost")
	default:
	}
	select {
	case s.out <- e:
		if e.Type == events.TypeError {
			s.sawError = true
		}
		return nil
	case <-s.closed:
		return errors.New("websocket: session closed")
	case <-s.writerDead:
		return errors.New("websocket: connection lost")
	}
}

func (s *session) run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go s.writeLoop()

	defer func() {
		// Closing the socket unblocks the writer; closing the channel
		// unblocks any in-flight Send.
		close(s.closed)
		s.conn.Close()
		<-s.writerDead
	}()

	for {
		s.conn.SetReadDeadline(time.Now().Add(readTimeout))

		var req events.Request
		if err := s.conn.ReadJSON(&req); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.WithError(err).Debug("WebSocket closed")
			}
			return
		}

		// The path segment owns the session identity.
		req.SessionID = s.sessionID
		s.sawError = false
		s.responder.Respond(ctx, req, s)
		if s.metrics != nil {
			status := "ok"
			if s.sawError {
				status = "error"
			}
			s.metrics.Queries.WithLabelValues("websocket", status).Inc()
		}
	}
}

// writeLoop is the only goroutine writing to the connection. The
// heartbeat ticks independently of in-flight work. Its exit closes
// writerDead so blocked Sends fail instead of hanging; closing the
// socket also kicks the read loop out of any pending read.
func (s *session) writeLoop() {
	defer func() {
		close(s.writerDead)
		s.conn.Close()
	}()

	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case event := <-s.out:
			s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteJSON(event); err != nil {
				s.logger.WithError(err).Debug("WebSocket write failed")
				return
			}
		case <-ticker.C:
			s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := s.conn.WriteJSON(events.NewHeartbeat(s.sessionID)); err != nil {
				return
			}
		case <-s.closed:
			return
		}
	}
}
