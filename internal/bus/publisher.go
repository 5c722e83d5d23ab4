package bus

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/ariefcatur/go-commerce-inventory.git/internal/events"
)

type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "CONNECTING"
	case Connected:
		return "CONNECTED"
	default:
		return "DISCONNECTED"
	}
}

// writer is the slice of kafka.Writer the publisher needs. Tests swap in a
// failing implementation.
type writer interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type dialFunc func(ctx context.Context) (writer, error)

type Options struct {
	Exchange       string        // topic, default events.Exchange
	MaxRetries     int           // write attempts per Publish, default 3
	RetryDelay     time.Duration // pause between attempts, default 5s
	ReconnectDelay time.Duration // pause between re-dials, default 5s
}

func (o *Options) fill() {
	if o.Exchange == "" {
		o.Exchange = events.Exchange
	}
	if o.MaxRetries <= 0 {
		o.MaxRetries = 3
	}
	if o.RetryDelay <= 0 {
		o.RetryDelay = 5 * time.Second
	}
	if o.ReconnectDelay <= 0 {
		o.ReconnectDelay = 5 * time.Second
	}
}

// Publisher delivers envelopes to the shared topic. Connection state lives
// behind a mutex; a background loop re-dials while disconnected. Publish
// reports failure with a bool, never an error: delivery is decoupled from the
// business write that triggered it, the caller has already committed.
type Publisher struct {
	opts Options
	dial dialFunc

	mu    sync.Mutex
	state State
	w     writer

	wake    chan struct{}
	closeCh chan struct{}
}

func NewPublisher(brokers []string, opts Options) *Publisher {
	opts.fill()
	dial := func(ctx context.Context) (writer, error) {
		// Probe one broker so CONNECTED means something; the kafka.Writer
		// itself dials lazily per batch.
		conn, err := kafka.DialContext(ctx, "tcp", brokers[0])
		if err != nil {
			return nil, err
		}
		_ = conn.Close()
		return &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        opts.Exchange,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
		}, nil
	}
	return newPublisher(opts, dial)
}

func newPublisher(opts Options, dial dialFunc) *Publisher {
	opts.fill()
	return &Publisher{
		opts:    opts,
		dial:    dial,
		state:   Disconnected,
		wake:    make(chan struct{}, 1),
		closeCh: make(chan struct{}),
	}
}

// Start runs the reconnect loop until ctx is cancelled. The loop lives for
// the whole process: every drop back to DISCONNECTED re-arms it.
func (p *Publisher) Start(ctx context.Context) {
	go func() {
		defer close(p.closeCh)
		for {
			if p.State() == Disconnected {
				p.connect(ctx)
			}
			select {
			case <-ctx.Done():
				p.mu.Lock()
				if p.w != nil {
					_ = p.w.Close()
					p.w = nil
				}
				p.state = Disconnected
				p.mu.Unlock()
				return
			case <-p.wake:
			case <-time.After(p.opts.ReconnectDelay):
			}
		}
	}()
}

// WaitClosed blocks until the reconnect loop has exited.
func (p *Publisher) WaitClosed() { <-p.closeCh }

func (p *Publisher) connect(ctx context.Context) {
	p.mu.Lock()
	if p.state != Disconnected {
		p.mu.Unlock()
		return
	}
	p.state = Connecting
	p.mu.Unlock()

	w, err := p.dial(ctx)
	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		p.state = Disconnected
		log.Printf("bus: connect %s failed: %v (retry in %s)", p.opts.Exchange, err, p.opts.ReconnectDelay)
		return
	}
	p.w = w
	p.state = Connected
	log.Printf("bus: connected, exchange=%s", p.opts.Exchange)
}

func (p *Publisher) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// markDisconnected drops the writer and wakes the reconnect loop.
func (p *Publisher) markDisconnected() {
	p.mu.Lock()
	if p.w != nil {
		_ = p.w.Close()
		p.w = nil
	}
	p.state = Disconnected
	p.mu.Unlock()
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

// Publish sends one envelope under the given routing key. Returns false
// immediately when not connected; otherwise writes with full acks, retrying
// up to MaxRetries attempts with a fixed delay between them. Failures are
// logged, never raised.
func (p *Publisher) Publish(ctx context.Context, routingKey string, env events.Envelope) bool {
	p.mu.Lock()
	w := p.w
	connected := p.state == Connected
	p.mu.Unlock()
	if !connected {
		log.Printf("bus: drop %s event_id=%s: not connected", routingKey, env.EventID)
		return false
	}

	key := env.CorrelationID
	if key == "" {
		key = routingKey
	}
	msg := kafka.Message{
		Key:   events.PartitionKey(key),
		Value: events.MustMarshal(env),
		Time:  env.OccurredAt,
		Headers: []kafka.Header{
			{Key: "x-routing-key", Value: []byte(routingKey)},
			{Key: "x-event-type", Value: []byte(env.EventType)},
			{Key: "x-event-version", Value: []byte("1")},
			{Key: "content-type", Value: []byte("application/json")},
		},
	}

	var err error
	for attempt := 1; attempt <= p.opts.MaxRetries; attempt++ {
		if err = w.WriteMessages(ctx, msg); err == nil {
			return true
		}
		log.Printf("bus: publish %s attempt %d/%d failed: %v", routingKey, attempt, p.opts.MaxRetries, err)
		if attempt == p.opts.MaxRetries {
			break
		}
		select {
		case <-time.After(p.opts.RetryDelay):
		case <-ctx.Done():
			log.Printf("bus: publish %s aborted: %v", routingKey, ctx.Err())
			return false
		}
	}
	// Writer kept failing; assume the link is bad and let the loop re-dial.
	p.markDisconnected()
	return false
}
