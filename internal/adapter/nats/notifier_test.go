package nats

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/storm-data-nids/internal/domain"
)

type recordingConn struct {
	msgs    []*nats.Msg
	err     error
	drained bool
}

func (r *recordingConn) PublishMsg(m *nats.Msg) error {
	if r.err != nil {
		return r.err
	}
	r.msgs = append(r.msgs, m)
	return nil
}

func (r *recordingConn) Drain() error {
	r.drained = true
	return nil
}

func newTestNotifier(c *recordingConn) *Notifier {
	return &Notifier{conn: c, subject: "radar.volumes", logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

func TestNotifier_PublishVolume(t *testing.T) {
	c := &recordingConn{}
	n := newTestNotifier(c)
	s := domain.VolumeSummary{ID: "volume-abc", Radar: "KTLX", Family: "srm", Number: 7, Complete: true}

	require.NoError(t, n.PublishVolume(context.Background(), s))

	require.Len(t, c.msgs, 1)
	msg := c.msgs[0]
	assert.Equal(t, "radar.volumes.KTLX.srm", msg.Subject)
	assert.Equal(t, "volume-abc", msg.Header.Get("id"))
	assert.Equal(t, "true", msg.Header.Get("complete"))
	assert.Equal(t, "srm", msg.Header.Get("family"))

	var decoded domain.VolumeSummary
	require.NoError(t, json.Unmarshal(msg.Data, &decoded))
	assert.Equal(t, 7, decoded.Number)

	require.NoError(t, n.Close())
	assert.True(t, c.drained)
}

func TestNotifier_PublishError(t *testing.T) {
	c := &recordingConn{err: errors.New("connection closed")}
	n := newTestNotifier(c)

	err := n.PublishVolume(context.Background(), domain.VolumeSummary{ID: "v", Radar: "KTLX", Family: "srm"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "radar.volumes.KTLX.srm")
}

func TestNotifier_CancelledContext(t *testing.T) {
	c := &recordingConn{}
	n := newTestNotifier(c)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	require.ErrorIs(t, n.PublishVolume(ctx, domain.VolumeSummary{}), context.Canceled)
	assert.Empty(t, c.msgs)
}

func TestToken(t *testing.T) {
	tests := map[string]string{
		"KTLX":     "KTLX",
		"":         "_",
		"a.b":      "a_b",
		"srm *>":   "srm___",
		"velocity": "velocity",
	}
	for in, want := range tests {
		assert.Equal(t, want, token(in), in)
	}
}
