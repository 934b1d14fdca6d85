package outbox

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"testing"

	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/require"

	"github.com/chwnex/project-exercisetracker/internal/events"
)

func TestEncodeWireFormat(t *testing.T) {
	frame := encodeWireFormat(258, []byte(`{"a":1}`))

	require.Equal(t, byte(0), frame[0])
	require.Equal(t, uint32(258), binary.BigEndian.Uint32(frame[1:5]))
	require.Equal(t, `{"a":1}`, string(frame[5:]))
}

func TestDeliverGroupsByTopicAndSetsHeaders(t *testing.T) {
	producer := &stubProducer{}
	registry := &stubRegistry{id: 9}
	d := &Dispatcher{producer: producer, registry: registry}

	msgs := []Message{
		{EventID: 1, EventType: events.TypeUserRegistered, Topic: "user_events", SchemaSubject: "user_events-value", PartitionKey: "u1", AggregateID: "u1", Payload: []byte(`{}`)},
		{EventID: 2, EventType: events.TypeExerciseLogged, Topic: "exercise_events", SchemaSubject: "exercise_events-value", PartitionKey: "u1", AggregateID: "u1", Payload: []byte(`{}`)},
		{EventID: 3, EventType: events.TypeExerciseLogged, Topic: "exercise_events", SchemaSubject: "exercise_events-value", PartitionKey: "u2", AggregateID: "u2", Payload: []byte(`{}`)},
	}

	require.NoError(t, d.deliver(context.Background(), msgs))

	require.Len(t, producer.writes, 2)
	require.Equal(t, "user_events", producer.writes[0].topic)
	require.Len(t, producer.writes[0].messages, 1)
	require.Equal(t, "exercise_events", producer.writes[1].topic)
	require.Len(t, producer.writes[1].messages, 2)

	record := producer.writes[1].messages[1]
	require.Equal(t, "u2", string(record.Key))
	require.Equal(t, events.TypeExerciseLogged, header(record, "event_type"))
	require.Equal(t, "exercise_events-value", header(record, "schema_subject"))
	require.Equal(t, uint32(9), binary.BigEndian.Uint32(record.Value[1:5]))

	// one lookup per subject
	require.Len(t, registry.calls, 2)
}

func TestDeliverRejectsUnknownEventType(t *testing.T) {
	producer := &stubProducer{}
	registry := &stubRegistry{}
	d := &Dispatcher{producer: producer, registry: registry}

	err := d.deliver(context.Background(), []Message{{EventType: "user.deleted", Topic: "user_events"}})
	require.ErrorContains(t, err, "no schema metadata for event_type=user.deleted")
	require.Empty(t, producer.writes)
	require.Empty(t, registry.calls)
}

func TestDeliverPropagatesRegistryError(t *testing.T) {
	producer := &stubProducer{}
	d := &Dispatcher{producer: producer, registry: &stubRegistry{err: errors.New("registry down")}}

	err := d.deliver(context.Background(), []Message{{EventType: events.TypeUserRegistered, Topic: "user_events", SchemaSubject: "user_events-value"}})
	require.ErrorContains(t, err, "registry down")
	require.Empty(t, producer.writes)
}

func TestDeliverFallsBackToCatalogSubject(t *testing.T) {
	registry := &stubRegistry{id: 3}
	d := &Dispatcher{producer: &stubProducer{}, registry: registry}

	require.NoError(t, d.deliver(context.Background(), []Message{{EventType: events.TypeUserRegistered, Topic: "user_events"}}))
	require.Equal(t, "user_events-value", registry.calls[0].subject)
}

func header(msg kafka.Message, key string) string {
	for _, h := range msg.Headers {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

type stubProducer struct {
	mu     sync.Mutex
	err    error
	writes []writtenBatch
}

type writtenBatch struct {
	topic    string
	messages []kafka.Message
}

func (s *stubProducer) WriteMessages(_ context.Context, topic string, msgs ...kafka.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return s.err
	}
	copied := make([]kafka.Message, len(msgs))
	copy(copied, msgs)
	s.writes = append(s.writes, writtenBatch{topic: topic, messages: copied})
	return nil
}

type stubRegistry struct {
	mu    sync.Mutex
	id    int
	err   error
	calls []schemaCall
}

type schemaCall struct {
	subject string
	schema  string
}

func (s *stubRegistry) EnsureSchema(_ context.Context, subject, schema string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls = append(s.calls, schemaCall{subject: subject, schema: schema})
	if s.err != nil {
		return 0, s.err
	}
	if s.id == 0 {
		s.id = 1
	}
	return s.id, nil
}
