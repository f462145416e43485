//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/storm-data-nids/internal/adapter/filesystem"
	"github.com/couchcryptid/storm-data-nids/internal/adapter/kafka"
	"github.com/couchcryptid/storm-data-nids/internal/config"
	"github.com/couchcryptid/storm-data-nids/internal/domain"
	"github.com/couchcryptid/storm-data-nids/internal/nids"
	"github.com/couchcryptid/storm-data-nids/internal/nids/nidstest"
	"github.com/couchcryptid/storm-data-nids/internal/observability"
	"github.com/couchcryptid/storm-data-nids/internal/pipeline"
	"github.com/couchcryptid/storm-data-nids/internal/volume"
)

const (
	testFeatureTopic = "test-features"
	testVolumeTopic  = "test-volumes"
)

var scan = time.Date(2024, time.May, 20, 22, 14, 30, 0, time.UTC)

func testConfig(broker string) *config.Config {
	return &config.Config{
		KafkaEnabled:      true,
		KafkaBrokers:      []string{broker},
		KafkaFeatureTopic: testFeatureTopic,
		KafkaVolumeTopic:  testVolumeTopic,
	}
}

// TestKafkaWriter verifies the adapter layer: features decoded from a hail
// product and a volume summary reach their topics with keys and headers.
func TestKafkaWriter(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testFeatureTopic)
	createTopic(t, broker, testVolumeTopic)

	hail, err := nidstest.HailIndex(nidstest.KTLX, 7, scan, nidstest.Hail(40, -80, 70, 30, 2))
	require.NoError(t, err)
	product, err := nids.Decode(hail.Data, nids.Options{})
	require.NoError(t, err)
	events := domain.FeatureEvents("KTLX", hail.Name, product)
	require.Len(t, events, 1)

	writer := kafka.NewWriter(testConfig(broker), discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	require.NoError(t, writer.LoadBatch(ctx, events))
	summary := domain.VolumeSummary{ID: "vol-1", Radar: "KTLX", Family: "srm", Number: 7, Complete: true, ScanTime: scan}
	require.NoError(t, writer.PublishVolume(ctx, summary))

	fm := readMessage(ctx, t, newConsumer(t, broker, testFeatureTopic))
	assert.Equal(t, events[0].ID, fm.Key)
	assert.Equal(t, "hail", fm.Headers["feature_type"])
	assert.Equal(t, "KTLX", fm.Headers["radar"])
	_, err = time.Parse(time.RFC3339, fm.Headers["processed_at"])
	assert.NoError(t, err, "processed_at should be valid RFC3339")

	var got domain.FeatureEvent
	require.NoError(t, json.Unmarshal(fm.Value, &got))
	assert.InDelta(t, 22.36, got.RangeKm, 0.01)
	require.NotNil(t, got.Severity)
	assert.Equal(t, "severe", *got.Severity)

	vm := readMessage(ctx, t, newConsumer(t, broker, testVolumeTopic))
	assert.Equal(t, "vol-1", vm.Key)
	assert.Equal(t, "srm", vm.Headers["family"])
	assert.Equal(t, "true", vm.Headers["complete"])
}

// TestPipelineEndToEnd wires the full service path (directory source ->
// decode -> assemble -> volume files + Kafka) over synthetic product files.
func TestPipelineEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)
	createTopic(t, broker, testFeatureTopic)
	createTopic(t, broker, testVolumeTopic)

	in, out := t.TempDir(), t.TempDir()
	family, _ := volume.DefaultFamilies().Lookup("N0S")
	files, err := nidstest.SRMVolume(nidstest.KTLX, 7, scan, family.Suffixes...)
	require.NoError(t, err)
	hail, err := nidstest.HailIndex(nidstest.KTLX, 7, scan,
		nidstest.Hail(40, -80, 70, 30, 2),
		nidstest.TVS([2]int16{12, -12}),
	)
	require.NoError(t, err)
	// Deliver tilts out of order with the hail product in between.
	for _, f := range []nidstest.File{files[0], files[2], hail, files[1], files[3]} {
		require.NoError(t, os.WriteFile(filepath.Join(in, f.Name), f.Data, 0o644))
	}

	writer := kafka.NewWriter(testConfig(broker), discardLogger())
	t.Cleanup(func() { _ = writer.Close() })
	store := filesystem.NewVolumeWriter(out, discardLogger())

	p := pipeline.New(pipeline.Stages{
		Extractor: filesystem.NewDirectorySource(in, 100*time.Millisecond, clockwork.NewRealClock(), discardLogger()),
		Features:  writer,
		Volumes:   store,
		Sinks:     []pipeline.VolumeSink{writer},
	}, pipeline.Options{BatchSize: 2, Workers: 2, Resample: true, StopAfterTilt: -1}, discardLogger(), observability.NewMetricsForTesting())

	pipelineCtx, pipelineCancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(pipelineCtx) }()

	vm := readMessage(ctx, t, newConsumer(t, broker, testVolumeTopic))
	var summary domain.VolumeSummary
	require.NoError(t, json.Unmarshal(vm.Value, &summary))

	features := newConsumer(t, broker, testFeatureTopic)
	types := map[string]int{}
	for range 2 {
		types[readMessage(ctx, t, features).Headers["feature_type"]]++
	}

	pipelineCancel()
	require.NoError(t, <-errCh)
	require.NoError(t, p.Flush(ctx))

	assert.Equal(t, map[string]int{"hail": 1, "tvs": 1}, types)
	assert.Equal(t, "KTLX", summary.Radar)
	assert.Equal(t, "srm", summary.Family)
	assert.Equal(t, 7, summary.Number)
	assert.True(t, summary.Complete)
	require.Len(t, summary.Layers, 4)
	for i, l := range summary.Layers {
		assert.Equal(t, family.Suffixes[i], l.Suffix)
	}
	assert.Positive(t, summary.GridSize)

	doc, err := filesystem.ReadVolume(summary.Output)
	require.NoError(t, err)
	require.Len(t, doc.Layers, 4)
	for _, l := range doc.Layers {
		require.NotNil(t, l.Grid)
		assert.Equal(t, summary.GridSize, l.Grid.Size)
	}
}
