package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/storm-data-nids/internal/domain"
)

// --- mock writer ---

type recordingWriter struct {
	msgs   []kafkago.Message
	err    error
	closed bool
}

func (r *recordingWriter) WriteMessages(_ context.Context, msgs ...kafkago.Message) error {
	if r.err != nil {
		return r.err
	}
	r.msgs = append(r.msgs, msgs...)
	return nil
}

func (r *recordingWriter) Close() error {
	r.closed = true
	return nil
}

func newTestWriter(rec *recordingWriter) *Writer {
	return &Writer{
		writer:       rec,
		featureTopic: "features",
		volumeTopic:  "volumes",
		logger:       slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// --- tests ---

func TestToMessage(t *testing.T) {
	out := domain.OutputEvent{
		Key:   []byte("hail-1"),
		Value: []byte(`{"id":"hail-1"}`),
		Headers: map[string]string{
			"radar":        "KTLX",
			"feature_type": "hail",
			"processed_at": "2024-05-20T22:20:00Z",
		},
	}

	msg := toMessage("features", out)

	assert.Equal(t, "features", msg.Topic)
	assert.Equal(t, []byte("hail-1"), msg.Key)
	assert.JSONEq(t, `{"id":"hail-1"}`, string(msg.Value))
	require.Len(t, msg.Headers, 3)
	assert.Equal(t, "feature_type", msg.Headers[0].Key)
	assert.Equal(t, []byte("hail"), msg.Headers[0].Value)
	assert.Equal(t, "processed_at", msg.Headers[1].Key)
	assert.Equal(t, "radar", msg.Headers[2].Key)
}

func TestWriter_LoadBatch(t *testing.T) {
	rec := &recordingWriter{}
	w := newTestWriter(rec)
	events := []domain.FeatureEvent{
		{ID: "hail-1", FeatureType: domain.FeatureHail, Radar: "KTLX", ProcessedAt: time.Now()},
		{ID: "tvs-1", FeatureType: domain.FeatureTVS, Radar: "KTLX", ProcessedAt: time.Now()},
	}

	require.NoError(t, w.LoadBatch(context.Background(), events))

	require.Len(t, rec.msgs, 2)
	for i, msg := range rec.msgs {
		assert.Equal(t, "features", msg.Topic)
		assert.Equal(t, events[i].ID, string(msg.Key))
	}
}

func TestWriter_LoadBatch_Empty(t *testing.T) {
	rec := &recordingWriter{err: errors.New("must not be called")}
	w := newTestWriter(rec)

	require.NoError(t, w.LoadBatch(context.Background(), nil))
}

func TestWriter_LoadBatch_Error(t *testing.T) {
	rec := &recordingWriter{err: errors.New("broker down")}
	w := newTestWriter(rec)

	err := w.LoadBatch(context.Background(), []domain.FeatureEvent{{ID: "hail-1"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broker down")
}

func TestWriter_PublishVolume(t *testing.T) {
	rec := &recordingWriter{}
	w := newTestWriter(rec)
	s := domain.VolumeSummary{ID: "volume-1", Radar: "KTLX", Family: "srm", Number: 12, Complete: true}

	require.NoError(t, w.PublishVolume(context.Background(), s))

	require.Len(t, rec.msgs, 1)
	msg := rec.msgs[0]
	assert.Equal(t, "volumes", msg.Topic)
	assert.Equal(t, "volume-1", string(msg.Key))

	var decoded domain.VolumeSummary
	require.NoError(t, json.Unmarshal(msg.Value, &decoded))
	assert.Equal(t, 12, decoded.Number)

	require.NoError(t, w.Close())
	assert.True(t, rec.closed)
}
