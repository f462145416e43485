package http_test

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpadapter "github.com/couchcryptid/storm-data-nids/internal/adapter/http"
	"github.com/couchcryptid/storm-data-nids/internal/domain"
)

type mockReadiness struct {
	err error
}

func (m *mockReadiness) CheckReadiness(_ context.Context) error { return m.err }

type mockStreams struct {
	list []domain.StreamStatus
}

func (m *mockStreams) Streams() []domain.StreamStatus { return m.list }

func newTestServer(readyErr error) *httpadapter.Server {
	return httpadapter.NewServer(":0", &mockReadiness{err: readyErr}, &mockStreams{}, slog.Default())
}

func serve(srv *httpadapter.Server, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestHealthzReturns200(t *testing.T) {
	rec := serve(newTestServer(nil), "/healthz")

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
}

func TestReadyzReturns200WhenReady(t *testing.T) {
	rec := serve(newTestServer(nil), "/readyz")

	assert.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ready", body["status"])
}

func TestReadyzReturns503WhenNotReady(t *testing.T) {
	rec := serve(newTestServer(fmt.Errorf("no product decoded yet")), "/readyz")

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "not ready", body["status"])
	assert.Equal(t, "no product decoded yet", body["error"])
}

func TestMetricsEndpoint(t *testing.T) {
	rec := serve(newTestServer(nil), "/metrics")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestStreamsEndpoint(t *testing.T) {
	seen := time.Date(2024, 5, 20, 22, 14, 30, 0, time.UTC)
	streams := &mockStreams{list: []domain.StreamStatus{
		{Radar: "KTLX", Family: "srm", Volume: 12, LastSuffix: "N1S", Pending: 1, LastSeen: seen},
	}}
	srv := httpadapter.NewServer(":0", &mockReadiness{}, streams, slog.Default())

	rec := serve(srv, "/streams")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Streams []domain.StreamStatus `json:"streams"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, streams.list, body.Streams)
}

func TestStreamsEndpoint_Empty(t *testing.T) {
	rec := serve(newTestServer(nil), "/streams")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"streams":[]}`, rec.Body.String())
}

func TestStreamsEndpoint_Disabled(t *testing.T) {
	srv := httpadapter.NewServer(":0", &mockReadiness{}, nil, slog.Default())

	rec := serve(srv, "/streams")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
