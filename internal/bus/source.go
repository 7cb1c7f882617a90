package bus

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/greentic-ai/greentic-messaging/internal/subjects"
)

// Delivery is one message handed to an egress worker. Ack removes it
// from the work queue; Nak schedules redelivery after the given
// delay. The function fields allow tests to observe acknowledgements
// without a live bus.
type Delivery struct {
	Subject string
	Data    []byte

	AckFunc func() error
	NakFunc func(delay time.Duration) error
}

func (d Delivery) Ack() error {
	if d.AckFunc == nil {
		return nil
	}
	return d.AckFunc()
}

func (d Delivery) Nak(delay time.Duration) error {
	if d.NakFunc == nil {
		return nil
	}
	return d.NakFunc(delay)
}

// PullSource is a durable pull consumer bound to the egress stream.
// Workers binding the same durable name share the queue: each message
// goes to exactly one of them.
type PullSource struct {
	sub *nats.Subscription
}

// PullSource creates (or binds to) the durable consumer for one
// (tenant, platform) pair.
func (c *Conn) PullSource(tenant, platform string, maxAckPending int) (*PullSource, error) {
	sub, err := c.js.PullSubscribe(
		subjects.Egress(tenant, platform),
		subjects.Consumer(tenant, platform),
		nats.BindStream(subjects.EgressStream),
		nats.MaxAckPending(maxAckPending),
		nats.AckWait(30*time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("pull subscribe %s/%s: %w", tenant, platform, err)
	}
	return &PullSource{sub: sub}, nil
}

// Fetch pulls up to batch messages, waiting until ctx expires when
// none are pending. An empty batch is returned on timeout.
func (s *PullSource) Fetch(ctx context.Context, batch int) ([]Delivery, error) {
	msgs, err := s.sub.Fetch(batch, nats.Context(ctx))
	if err != nil {
		if errors.Is(err, nats.ErrTimeout) || errors.Is(err, context.DeadlineExceeded) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch: %w", err)
	}
	out := make([]Delivery, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, Delivery{
			Subject: m.Subject,
			Data:    m.Data,
			AckFunc: func() error { return m.Ack() },
			NakFunc: func(d time.Duration) error { return m.NakWithDelay(d) },
		})
	}
	return out, nil
}

// Close unsubscribes the consumer's subscription, leaving the durable
// state on the server for the next run.
func (s *PullSource) Close() error {
	return s.sub.Drain()
}
