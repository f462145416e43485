// Package nats announces flushed volumes on a NATS subject.
package nats

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/couchcryptid/storm-data-nids/internal/domain"
)

// conn is the subset of *nats.Conn the notifier uses.
type conn interface {
	PublishMsg(m *nats.Msg) error
	Drain() error
}

// Notifier publishes volume summaries to <subject>.<radar>.<family>.
// It implements pipeline.VolumeSink.
type Notifier struct {
	conn    conn
	subject string
	logger  *slog.Logger
}

// Connect dials the NATS server and returns a notifier for subject.
// Reconnects are retried indefinitely.
func Connect(url, subject string, logger *slog.Logger) (*Notifier, error) {
	nc, err := nats.Connect(url,
		nats.Name("storm-data-nids"),
		nats.ReconnectWait(2*time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", "error", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrl())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect nats %s: %w", url, err)
	}
	logger.Info("nats connected", "url", nc.ConnectedUrl(), "subject", subject)
	return &Notifier{conn: nc, subject: subject, logger: logger}, nil
}

// PublishVolume announces a flushed volume. The message carries the same
// headers as the Kafka volume topic.
func (n *Notifier) PublishVolume(ctx context.Context, s domain.VolumeSummary) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	out, err := domain.SerializeVolume(s)
	if err != nil {
		return err
	}
	msg := nats.NewMsg(n.subjectFor(s))
	msg.Data = out.Value
	for k, v := range out.Headers {
		msg.Header.Set(k, v)
	}
	msg.Header.Set("id", string(out.Key))
	if err := n.conn.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish volume %s to %s: %w", s.ID, msg.Subject, err)
	}
	return nil
}

// Close flushes pending messages and closes the connection.
func (n *Notifier) Close() error {
	return n.conn.Drain()
}

func (n *Notifier) subjectFor(s domain.VolumeSummary) string {
	return strings.Join([]string{n.subject, token(s.Radar), token(s.Family)}, ".")
}

// token makes s safe as a single subject token.
func token(s string) string {
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t':
			return '_'
		}
		return r
	}, s)
}
