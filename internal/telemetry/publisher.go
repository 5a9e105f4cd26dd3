package telemetry

import (
	"context"
	"errors"

	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"
)

// ErrRateLimited is returned when a snapshot was held back by the rate
// limiter. The newest held snapshot is sent by Flush.
var ErrRateLimited = errors.New("telemetry publish rate limited")

// Transport delivers a payload to a topic.
type Transport interface {
	Publish(ctx context.Context, topic string, payload []byte, retained bool) error
}

// Publisher encodes snapshots and hands them to the transport as retained
// messages on the device topic. It never waits for the limiter; it is not
// safe for concurrent use.
type Publisher struct {
	transport Transport
	topic     string
	maxSize   int

	// Rate limiting for broker publishes
	limiter *rate.Limiter

	// Newest snapshot held back by the limiter
	pending []byte
}

// NewPublisher creates a Publisher. A zero maxSize selects DefaultMaxPayload;
// a zero rateLimitRPS selects 5 publishes per second.
func NewPublisher(transport Transport, topic string, maxSize int, rateLimitRPS float64) *Publisher {
	if maxSize == 0 {
		maxSize = DefaultMaxPayload
	}
	if rateLimitRPS == 0 {
		rateLimitRPS = 5.0
	}

	burst := int(rateLimitRPS)
	if burst < 1 {
		burst = 1
	}

	return &Publisher{
		transport: transport,
		topic:     topic,
		maxSize:   maxSize,
		limiter:   rate.NewLimiter(rate.Limit(rateLimitRPS), burst),
	}
}

// Topic returns the telemetry topic.
func (p *Publisher) Topic() string {
	return p.topic
}

// Publish encodes and sends a snapshot. Oversized payloads are skipped with
// ErrPayloadTooLarge. When over the rate limit the payload replaces any held
// one and ErrRateLimited is returned. Transport errors are returned unchanged
// for the caller to classify.
func (p *Publisher) Publish(ctx context.Context, s Snapshot) error {
	payload, err := Encode(s, p.maxSize)
	if err != nil {
		return err
	}

	if !p.limiter.Allow() {
		p.pending = payload
		log.Debug().Str("topic", p.topic).Msg("Telemetry rate limited, holding newest snapshot")
		return ErrRateLimited
	}

	p.pending = nil
	return p.send(ctx, payload)
}

// Flush sends the held snapshot if the limiter allows it. It reports
// whether anything was sent.
func (p *Publisher) Flush(ctx context.Context) (bool, error) {
	if p.pending == nil || !p.limiter.Allow() {
		return false, nil
	}

	payload := p.pending
	p.pending = nil
	return true, p.send(ctx, payload)
}

// Pending returns true while a snapshot is held back.
func (p *Publisher) Pending() bool {
	return p.pending != nil
}

func (p *Publisher) send(ctx context.Context, payload []byte) error {
	if err := p.transport.Publish(ctx, p.topic, payload, true); err != nil {
		return err
	}

	log.Debug().
		Str("topic", p.topic).
		RawJSON("payload", payload).
		Msg("Published telemetry")

	return nil
}
