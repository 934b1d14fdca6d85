// Package consumer reads events published by the outbox dispatcher and hands them to a Handler.
package consumer

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
)

const (
	fetchRetryDelay          = time.Second
	defaultHandlerAttempts   = 3
	defaultHandlerRetryDelay = 500 * time.Millisecond
)

// Reader is the part of kafka.Reader the processor uses.
type Reader interface {
	FetchMessage(context.Context) (kafka.Message, error)
	CommitMessages(context.Context, ...kafka.Message) error
	Close() error
}

// Handler receives decoded events.
type Handler interface {
	Handle(context.Context, Message) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(context.Context, Message) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, msg Message) error {
	return f(ctx, msg)
}

// Message is a decoded Kafka record.
type Message struct {
	Topic         string
	Partition     int
	Offset        int64
	Timestamp     time.Time
	EventType     string
	AggregateID   string
	SchemaSubject string
	SchemaID      int
	Payload       json.RawMessage
}

// Option configures a Processor.
type Option func(*Processor)

// WithLogger replaces the default logger.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(p *Processor) {
		p.logger = logger
	}
}

// WithHandlerRetries sets how many times a record is handed to the handler before it is given up.
// Values below one are treated as one.
func WithHandlerRetries(attempts int) Option {
	return func(p *Processor) {
		if attempts < 1 {
			attempts = 1
		}
		p.attempts = attempts
	}
}

// WithRetryDelay sets the pause between handler attempts on the same record.
func WithRetryDelay(d time.Duration) Option {
	return func(p *Processor) {
		if d > 0 {
			p.retryDelay = d
		}
	}
}

// Processor fetches records, decodes them, and commits after the handler succeeds.
type Processor struct {
	reader     Reader
	handler    Handler
	logger     logrus.FieldLogger
	attempts   int
	retryDelay time.Duration
}

// NewProcessor constructs a Processor.
func NewProcessor(reader Reader, handler Handler, opts ...Option) *Processor {
	p := &Processor{
		reader:     reader,
		handler:    handler,
		logger:     logrus.StandardLogger(),
		attempts:   defaultHandlerAttempts,
		retryDelay: defaultHandlerRetryDelay,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.WithField("component", "consumer")
	return p
}

// Run processes records until ctx is cancelled. Records that cannot be decoded are committed and skipped.
// A failing handler is retried on the same record; once the attempts run out the record is logged and
// left uncommitted, and the next successful commit on its partition moves the group offset past it.
func (p *Processor) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		record, err := p.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			p.logger.WithError(err).Warn("fetch failed")
			if !sleep(ctx, fetchRetryDelay) {
				return ctx.Err()
			}
			continue
		}

		fields := logrus.Fields{"topic": record.Topic, "partition": record.Partition, "offset": record.Offset}

		msg, err := decodeMessage(record)
		if err != nil {
			p.logger.WithFields(fields).WithError(err).Warn("dropping undecodable record")
			decodeErrorCounter.WithLabelValues(record.Topic).Inc()
			if err := p.reader.CommitMessages(ctx, record); err != nil {
				p.logger.WithFields(fields).WithError(err).Error("commit after decode failure")
			}
			continue
		}

		if err := p.handle(ctx, msg, fields); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			p.logger.WithFields(fields).WithField("event_type", msg.EventType).WithError(err).Error("handler failed, giving up on record")
			handlerErrorCounter.WithLabelValues(msg.Topic, msg.EventType).Inc()
			continue
		}

		if err := p.reader.CommitMessages(ctx, record); err != nil {
			p.logger.WithFields(fields).WithError(err).Error("commit failed")
			continue
		}
		recordProcessed(msg)
	}
}

func (p *Processor) handle(ctx context.Context, msg Message, fields logrus.Fields) error {
	var err error
	for attempt := 1; attempt <= p.attempts; attempt++ {
		if err = p.handler.Handle(ctx, msg); err == nil {
			return nil
		}
		if attempt == p.attempts {
			break
		}
		p.logger.WithFields(fields).WithField("attempt", attempt).WithError(err).Warn("handler failed, retrying")
		if !sleep(ctx, p.retryDelay) {
			return ctx.Err()
		}
	}
	return err
}

func decodeMessage(record kafka.Message) (Message, error) {
	if len(record.Value) < 5 {
		return Message{}, fmt.Errorf("invalid payload length: %d", len(record.Value))
	}
	if record.Value[0] != 0 {
		return Message{}, fmt.Errorf("unknown magic byte: %d", record.Value[0])
	}

	eventType := header(record, "event_type")
	if eventType == "" {
		return Message{}, errors.New("missing event_type header")
	}

	payload := json.RawMessage(append([]byte(nil), record.Value[5:]...))
	if !json.Valid(payload) {
		return Message{}, errors.New("payload is not valid JSON")
	}

	return Message{
		Topic:         record.Topic,
		Partition:     record.Partition,
		Offset:        record.Offset,
		Timestamp:     record.Time,
		EventType:     eventType,
		AggregateID:   header(record, "aggregate_id"),
		SchemaSubject: header(record, "schema_subject"),
		SchemaID:      int(binary.BigEndian.Uint32(record.Value[1:5])),
		Payload:       payload,
	}, nil
}

func header(record kafka.Message, key string) string {
	for _, h := range record.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
