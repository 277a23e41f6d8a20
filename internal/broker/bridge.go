package broker

import (
	"context"
	"encoding/json"
	"time"

	"github.com/jqb69/darkseek/internal/events"
	"github.com/jqb69/darkseek/internal/orchestrator"
	"github.com/jqb69/darkseek/pkg/kafka"
	"github.com/jqb69/darkseek/pkg/logging"
	"github.com/jqb69/darkseek/pkg/monitoring"
)

const (
	// TopicQueries carries inbound Request payloads.
	TopicQueries = "chat.queries"
	// TopicHeartbeat carries service liveness ticks.
	TopicHeartbeat = "chat.heartbeat"

	heartbeatInterval = 30 * time.Second
)

func responseTopic(sessionID string) string {
	return "chat." + sessionID + ".responses"
}

func errorTopic(sessionID string) string {
	return "chat." + sessionID + ".errors"
}

// Publisher is the slice of the Kafka producer the bridge uses.
type Publisher interface {
	PublishJSON(ctx context.Context, topic, sessionID string, payload interface{}) error
}

// Responder drives one request and emits events on the sink.
type Responder interface {
	Respond(ctx context.Context, req events.Request, sink orchestrator.Sink)
}

// Bridge consumes queries from Kafka and publishes the resulting event
// stream to per-session topics.
type Bridge struct {
	consumer  *kafka.Consumer
	producer  Publisher
	responder Responder
	logger    logging.Logger
	metrics   *monitoring.ChatMetrics
}

// NewBridge creates the broker transport.
func NewBridge(consumer *kafka.Consumer, producer Publisher, responder Responder, logger logging.Logger) *Bridge {
	return &Bridge{
		consumer:  consumer,
		producer:  producer,
		responder: responder,
		logger:    logger,
	}
}

// WithMetrics attaches the chat metrics bundle. Optional.
func (b *Bridge) WithMetrics(metrics *monitoring.ChatMetrics) *Bridge {
	b.metrics = metrics
	return b
}

// Run polls the query topic and emits heartbeats until the context is
// cancelled. The poll loop owns message processing; there is no
// background callback machinery.
func (b *Bridge) Run(ctx context.Context) error {
	b.consumer.AddHandler(TopicQueries, b.handleQuery)
	go b.heartbeatLoop(ctx)
	return b.consumer.Start(ctx)
}

// handleQuery processes one inbound query message. Undecodable messages
// are committed and dropped; redelivering them cannot make them parse.
func (b *Bridge) handleQuery(ctx context.Context, msg kafka.Message) error {
	var req events.Request
	if err := json.Unmarshal(msg.Value, &req); err != nil {
		b.logger.WithError(err).WithField("topic", msg.Topic).Warn("Dropping undecodable query message")
		return nil
	}

	sink := &publishSink{
		ctx:       ctx,
		producer:  b.producer,
		sessionID: req.SessionID,
		logger:    b.logger,
	}
	b.responder.Respond(ctx, req, sink)

	if b.metrics != nil {
		status := "ok"
		if sink.sawError {
			status = "error"
		}
		b.metrics.Queries.WithLabelValues("broker", status).Inc()
	}
	return nil
}

func (b *Bridge) heartbeatLoop(ctx context.Context) {
	ticker := time.NewTicker(heartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := b.producer.PublishJSON(ctx, TopicHeartbeat, "", events.NewHeartbeat("")); err != nil {
				b.logger.WithError(err).Warn("Failed to publish heartbeat")
			}
		}
	}
}

// publishSink routes one request's events to its session topics.
// Terminal errors are published to both the response topic and the
// dedicated error topic so alerting can watch one stream.
type publishSink struct {
	ctx       context.Context
	producer  Publisher
	sessionID string
	logger    logging.Logger
	sawError  bool
}

func (s *publishSink) Send(e events.Event) error {
	if err := s.producer.PublishJSON(s.ctx, responseTopic(s.sessionID), s.sessionID, e); err != nil {
		return err
	}
	if e.Type == events.TypeError {
		s.sawError = true
		if err := s.producer.PublishJSON(s.ctx, errorTopic(s.sessionID), s.sessionID, e); err != nil {
			s.logger.WithError(err).Warn("Failed to publish to error topic")
		}
	}
	return nil
}
