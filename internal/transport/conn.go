// Package transport carries packets and audio over NATS. One room maps to
// three subjects: detections from the client, recorded user speech, and the
// agent's synthesized audio.
package transport

import (
	"fmt"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/gyaneshwarpardhi/procrastihator/internal/config"
)

// MsgPublisher is the part of a NATS connection the senders need.
type MsgPublisher interface {
	PublishMsg(m *nats.Msg) error
}

// Conn wraps a NATS connection that reconnects forever.
type Conn struct {
	nc     *nats.Conn
	logger *slog.Logger
}

// Connect dials url. token may be empty.
func Connect(url, token string, conf config.TransportConf, logger *slog.Logger) (*Conn, error) {
	if logger == nil {
		logger = slog.Default()
	}
	opts := []nats.Option{
		nats.Name(conf.ClientName),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(conf.ReconnectWait),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", "err", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", "url", nc.ConnectedUrlRedacted())
		}),
		nats.ErrorHandler(func(_ *nats.Conn, sub *nats.Subscription, err error) {
			subject := ""
			if sub != nil {
				subject = sub.Subject
			}
			logger.Error("nats async error", "subject", subject, "err", err)
		}),
	}
	if token != "" {
		opts = append(opts, nats.Token(token))
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to nats %s: %w", url, err)
	}
	logger.Info("nats connected", "url", nc.ConnectedUrlRedacted(), "room", conf.Room)
	return &Conn{nc: nc, logger: logger}, nil
}

// Subscribe registers fn for subject. Messages on one subscription are
// delivered one at a time.
func (c *Conn) Subscribe(subject string, fn nats.MsgHandler) (*nats.Subscription, error) {
	sub, err := c.nc.Subscribe(subject, fn)
	if err != nil {
		return nil, fmt.Errorf("subscribe %s: %w", subject, err)
	}
	return sub, nil
}

// Publish sends data on subject.
func (c *Conn) Publish(subject string, data []byte) error {
	return c.nc.Publish(subject, data)
}

// PublishMsg sends a message with headers.
func (c *Conn) PublishMsg(m *nats.Msg) error {
	return c.nc.PublishMsg(m)
}

// Flush waits until the server has processed everything published so far.
func (c *Conn) Flush() error {
	return c.nc.Flush()
}

// Connected reports whether the connection is currently up.
func (c *Conn) Connected() bool {
	return c.nc.IsConnected()
}

// Close drains subscriptions and pending publishes, then closes.
func (c *Conn) Close() error {
	if err := c.nc.Drain(); err != nil {
		c.nc.Close()
		return fmt.Errorf("drain nats: %w", err)
	}
	return nil
}
