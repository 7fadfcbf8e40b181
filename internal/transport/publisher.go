package transport

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
	"golang.org/x/time/rate"

	"github.com/gyaneshwarpardhi/procrastihator/internal/config"
	"github.com/gyaneshwarpardhi/procrastihator/internal/packet"
)

// Publisher sends packets on the detection subject, throttled by a token
// bucket so a misbehaving detector cannot flood the agent.
type Publisher struct {
	pub     MsgPublisher
	subject string
	limiter *rate.Limiter
}

// NewPublisher returns a publisher for conf's room.
func NewPublisher(pub MsgPublisher, conf config.TransportConf) *Publisher {
	limit := rate.Inf
	if conf.PublishRate > 0 {
		limit = rate.Limit(conf.PublishRate)
	}
	burst := conf.PublishBurst
	if burst < 1 {
		burst = 1
	}
	return &Publisher{
		pub:     pub,
		subject: conf.DetectionSubject(),
		limiter: rate.NewLimiter(limit, burst),
	}
}

// Send encodes p and publishes it, waiting for a token first.
func (p *Publisher) Send(ctx context.Context, pkt *packet.Packet) error {
	b, err := packet.Encode(pkt)
	if err != nil {
		return err
	}
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("send %s: %w", pkt.Event, err)
	}
	msg := nats.NewMsg(p.subject)
	msg.Header.Set("Event", pkt.Event)
	msg.Data = b
	if err := p.pub.PublishMsg(msg); err != nil {
		return fmt.Errorf("publish %s: %w", pkt.Event, err)
	}
	return nil
}
