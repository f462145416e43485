package observability

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/storm-data-nids/internal/config"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"info", slog.LevelInfo},
		{"", slog.LevelInfo},
		{"unknown", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLevel(tt.input))
		})
	}
}

func TestNewHandler_Format(t *testing.T) {
	var buf bytes.Buffer
	slog.New(newHandler(&buf, "info", "json")).Info("decoded", "path", "KTLX_N0Q.nids")

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "decoded", rec["msg"])
	assert.Equal(t, "KTLX_N0Q.nids", rec["path"])

	buf.Reset()
	slog.New(newHandler(&buf, "warn", "text")).Info("dropped")
	assert.Empty(t, buf.String())
}

func TestNewLogger_File(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	path := filepath.Join(t.TempDir(), "nids.log")
	cfg := &config.Config{LogLevel: "debug", LogFormat: "json", LogFile: path, LogMaxSizeMB: 1}

	logger := NewLogger(cfg)
	logger.Debug("tilt buffered", "suffix", "N1S")

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"suffix":"N1S"`)
}

func TestNewMetricsForTesting_Independent(t *testing.T) {
	a := NewMetricsForTesting()
	b := NewMetricsForTesting()

	a.DecodeErrors.WithLabelValues("truncated").Inc()
	a.TiltsDiscarded.WithLabelValues("sails").Add(2)

	assert.InDelta(t, 1.0, testutil.ToFloat64(a.DecodeErrors.WithLabelValues("truncated")), 1e-9)
	assert.InDelta(t, 2.0, testutil.ToFloat64(a.TiltsDiscarded.WithLabelValues("sails")), 1e-9)
	assert.Zero(t, testutil.ToFloat64(b.DecodeErrors.WithLabelValues("truncated")))
}
