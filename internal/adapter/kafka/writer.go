package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"

	kafkago "github.com/segmentio/kafka-go"

	"github.com/couchcryptid/storm-data-nids/internal/config"
	"github.com/couchcryptid/storm-data-nids/internal/domain"
)

// messageWriter is the subset of *kafkago.Writer the adapter uses.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafkago.Message) error
	Close() error
}

// Writer publishes feature events and volume summaries to their topics.
// It implements pipeline.FeatureLoader and pipeline.VolumeSink.
type Writer struct {
	writer       messageWriter
	featureTopic string
	volumeTopic  string
	logger       *slog.Logger
}

// NewWriter creates a Kafka producer for the configured feature and volume
// topics. The topic is set per message.
func NewWriter(cfg *config.Config, logger *slog.Logger) *Writer {
	w := &kafkago.Writer{
		Addr:         kafkago.TCP(cfg.KafkaBrokers...),
		Balancer:     &kafkago.Hash{},
		RequiredAcks: kafkago.RequireAll,
	}
	return &Writer{
		writer:       w,
		featureTopic: cfg.KafkaFeatureTopic,
		volumeTopic:  cfg.KafkaVolumeTopic,
		logger:       logger,
	}
}

// LoadBatch serializes and publishes feature events to the feature topic in
// a single WriteMessages call.
func (w *Writer) LoadBatch(ctx context.Context, events []domain.FeatureEvent) error {
	if len(events) == 0 {
		return nil
	}
	msgs := make([]kafkago.Message, len(events))
	for i := range events {
		out, err := domain.SerializeFeature(events[i])
		if err != nil {
			return err
		}
		msgs[i] = toMessage(w.featureTopic, out)
	}
	if err := w.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("write %d features: %w", len(msgs), err)
	}
	return nil
}

// PublishVolume announces a flushed volume on the volume topic.
func (w *Writer) PublishVolume(ctx context.Context, s domain.VolumeSummary) error {
	out, err := domain.SerializeVolume(s)
	if err != nil {
		return err
	}
	if err := w.writer.WriteMessages(ctx, toMessage(w.volumeTopic, out)); err != nil {
		return fmt.Errorf("write volume %s: %w", s.ID, err)
	}
	w.logger.Debug("volume published", "topic", w.volumeTopic, "radar", s.Radar, "family", s.Family, "volume", s.Number)
	return nil
}

func (w *Writer) Close() error {
	return w.writer.Close()
}

// toMessage maps a serialized event onto a Kafka message. Headers are sorted
// by key so the wire order is stable.
func toMessage(topic string, out domain.OutputEvent) kafkago.Message {
	headers := make([]kafkago.Header, 0, len(out.Headers))
	for _, k := range slices.Sorted(maps.Keys(out.Headers)) {
		headers = append(headers, kafkago.Header{Key: k, Value: []byte(out.Headers[k])})
	}
	return kafkago.Message{
		Topic:   topic,
		Key:     out.Key,
		Value:   out.Value,
		Headers: headers,
	}
}
