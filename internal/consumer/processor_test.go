package consumer

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/segmentio/kafka-go"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"
)

func TestProcessorCommitsOnSuccess(t *testing.T) {
	payload := []byte(`{"entry_id":"abc","duration_min":30}`)
	record := framedRecord("exercise_events", 10, 42, payload, "exercise.logged")

	reader := &stubReader{messages: []kafka.Message{record}}
	handler := &stubHandler{}

	before := testutil.ToFloat64(processedCounter.WithLabelValues("exercise_events", "exercise.logged"))

	err := NewProcessor(reader, handler, WithLogger(quietLogger())).Run(context.Background())
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, 1, handler.calls)
	require.Equal(t, 1, reader.commitCalls)
	require.Equal(t, "exercise.logged", handler.last.EventType)
	require.Equal(t, "exercise_events-value", handler.last.SchemaSubject)
	require.Equal(t, "user-1", handler.last.AggregateID)
	require.Equal(t, 42, handler.last.SchemaID)
	require.Equal(t, int64(10), handler.last.Offset)
	require.JSONEq(t, string(payload), string(handler.last.Payload))
	require.InDelta(t, before+1, testutil.ToFloat64(processedCounter.WithLabelValues("exercise_events", "exercise.logged")), 0.0001)
}

func TestProcessorSkipsCommitOnHandlerError(t *testing.T) {
	record := framedRecord("user_events", 20, 7, []byte(`{"user_id":"u"}`), "user.registered")

	reader := &stubReader{messages: []kafka.Message{record}}
	handler := &stubHandler{err: errors.New("boom")}

	before := testutil.ToFloat64(handlerErrorCounter.WithLabelValues("user_events", "user.registered"))

	proc := NewProcessor(reader, handler, WithLogger(quietLogger()), WithHandlerRetries(3), WithRetryDelay(time.Millisecond))
	err := proc.Run(context.Background())
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, 3, handler.calls)
	require.Zero(t, reader.commitCalls)
	require.InDelta(t, before+1, testutil.ToFloat64(handlerErrorCounter.WithLabelValues("user_events", "user.registered")), 0.0001)
}

func TestProcessorRetriesHandlerOnSameRecord(t *testing.T) {
	first := framedRecord("exercise_events", 30, 3, []byte(`{"entry_id":"a"}`), "exercise.logged")
	second := framedRecord("exercise_events", 31, 3, []byte(`{"entry_id":"b"}`), "exercise.logged")

	reader := &stubReader{messages: []kafka.Message{first, second}}
	handler := &stubHandler{err: errors.New("db unavailable"), failFirst: 1}

	proc := NewProcessor(reader, handler, WithLogger(quietLogger()), WithRetryDelay(time.Millisecond))
	err := proc.Run(context.Background())
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, []int64{30, 30, 31}, handler.offsets)
	require.Equal(t, []int64{30, 31}, reader.committed)
}

func TestProcessorStopsRetryingWhenCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	record := framedRecord("user_events", 40, 1, []byte(`{"user_id":"u"}`), "user.registered")

	reader := &stubReader{messages: []kafka.Message{record}}
	handler := &stubHandler{err: errors.New("boom"), onCall: cancel}

	proc := NewProcessor(reader, handler, WithLogger(quietLogger()), WithHandlerRetries(5), WithRetryDelay(time.Hour))
	err := proc.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)

	require.Equal(t, 1, handler.calls)
	require.Zero(t, reader.commitCalls)
}

func TestProcessorCommitsMalformedRecords(t *testing.T) {
	cases := map[string]kafka.Message{
		"short value":    {Topic: "user_events", Value: []byte{0, 1}},
		"missing header": framedRecord("user_events", 1, 1, []byte(`{}`), ""),
		"bad magic":      func() kafka.Message { m := framedRecord("user_events", 2, 1, []byte(`{}`), "user.registered"); m.Value[0] = 1; return m }(),
		"invalid json":   framedRecord("user_events", 3, 1, []byte(`{not json`), "user.registered"),
	}

	for name, record := range cases {
		t.Run(name, func(t *testing.T) {
			reader := &stubReader{messages: []kafka.Message{record}}
			handler := &stubHandler{}

			err := NewProcessor(reader, handler, WithLogger(quietLogger())).Run(context.Background())
			require.ErrorIs(t, err, context.Canceled)
			require.Zero(t, handler.calls)
			require.Equal(t, 1, reader.commitCalls)
		})
	}
}

func TestProcessorRetriesFetchErrors(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	reader := &stubReader{fetchErr: errors.New("broker gone")}
	err := NewProcessor(reader, &stubHandler{}, WithLogger(quietLogger())).Run(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func framedRecord(topic string, offset int64, schemaID uint32, payload []byte, eventType string) kafka.Message {
	value := make([]byte, 5+len(payload))
	binary.BigEndian.PutUint32(value[1:5], schemaID)
	copy(value[5:], payload)

	headers := []kafka.Header{
		{Key: "schema_subject", Value: []byte(topic + "-value")},
		{Key: "aggregate_id", Value: []byte("user-1")},
	}
	if eventType != "" {
		headers = append(headers, kafka.Header{Key: "event_type", Value: []byte(eventType)})
	}
	return kafka.Message{
		Topic:   topic,
		Offset:  offset,
		Time:    time.Now().UTC(),
		Value:   value,
		Headers: headers,
	}
}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

type stubReader struct {
	messages    []kafka.Message
	index       int
	commitCalls int
	committed   []int64
	fetchErr    error
}

func (r *stubReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	if r.fetchErr != nil {
		if err := ctx.Err(); err != nil {
			return kafka.Message{}, err
		}
		return kafka.Message{}, r.fetchErr
	}
	if r.index >= len(r.messages) {
		return kafka.Message{}, context.Canceled
	}
	msg := r.messages[r.index]
	r.index++
	return msg, nil
}

func (r *stubReader) CommitMessages(_ context.Context, msgs ...kafka.Message) error {
	r.commitCalls++
	for _, m := range msgs {
		r.committed = append(r.committed, m.Offset)
	}
	return nil
}

func (r *stubReader) Close() error { return nil }

// stubHandler returns err on every call, or only on the first failFirst calls when failFirst is set.
type stubHandler struct {
	calls     int
	err       error
	failFirst int
	last      Message
	offsets   []int64
	onCall    func()
}

func (h *stubHandler) Handle(_ context.Context, msg Message) error {
	h.calls++
	h.last = msg
	h.offsets = append(h.offsets, msg.Offset)
	if h.onCall != nil {
		h.onCall()
	}
	if h.failFirst > 0 && h.calls > h.failFirst {
		return nil
	}
	return h.err
}
