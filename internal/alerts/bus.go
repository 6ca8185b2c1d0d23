// Package alerts implements the topic-keyed publish/subscribe alert bus
// (C11): channel fan-out to {log, slack, email, webhook}, dispatched onto a
// bounded worker pool so a slow subscriber never stalls the publisher.
package alerts

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Severity classifies a publication for filtering and channel routing.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Channel is a fan-out destination for a publication.
type Channel string

const (
	ChannelLog     Channel = "log"
	ChannelSlack   Channel = "slack"
	ChannelEmail   Channel = "email"
	ChannelWebhook Channel = "webhook"
)

// Publication is one message pushed onto the bus.
type Publication struct {
	Topic     string
	Severity  Severity
	Message   string
	Body      string
	Subject   string
	Context   map[string]interface{}
	Channels  []Channel
	Timestamp time.Time
}

// Sender delivers a publication over one concrete channel; implementations
// must be best-effort and must not block the bus for long.
type Sender interface {
	Channel() Channel
	Send(ctx context.Context, pub Publication) error
}

// Subscriber receives every publication matching its topic filter (empty
// filter means "all topics").
type Subscriber struct {
	Name        string
	TopicFilter string
	Handle      func(Publication)
}

// Bus is the topic-keyed pub/sub core. Dispatch happens on a bounded pool
// of workers reading from a buffered channel; Publish never blocks once
// capacity allows enqueueing, matching the cooperative-suspension model the
// rest of this codebase uses at I/O boundaries.
type Bus struct {
	log          zerolog.Logger
	senders      map[Channel]Sender
	subscribers  []Subscriber
	queue        chan dispatchJob
	workers      int
	droppedTotal int64
}

type dispatchJob struct {
	pub Publication
}

// Config tunes the bus's worker pool.
type Config struct {
	Workers   int
	QueueSize int
}

func DefaultConfig() Config { return Config{Workers: 4, QueueSize: 256} }

func NewBus(logger zerolog.Logger, cfg Config) *Bus {
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 64
	}
	b := &Bus{
		log:     logger,
		senders: make(map[Channel]Sender),
		queue:   make(chan dispatchJob, cfg.QueueSize),
		workers: cfg.Workers,
	}
	for i := 0; i < cfg.Workers; i++ {
		go b.worker()
	}
	return b
}

// RegisterSender wires a channel implementation (log/slack/email/webhook).
func (b *Bus) RegisterSender(s Sender) { b.senders[s.Channel()] = s }

// Subscribe adds an in-process listener; topicFilter == "" matches every
// topic.
func (b *Bus) Subscribe(name, topicFilter string, handle func(Publication)) {
	b.subscribers = append(b.subscribers, Subscriber{Name: name, TopicFilter: topicFilter, Handle: handle})
}

// Publish enqueues pub for dispatch. If the queue is saturated the
// publication is dropped and counted rather than blocking the caller —
// subscribers are best-effort.
func (b *Bus) Publish(pub Publication) {
	if pub.Timestamp.IsZero() {
		pub.Timestamp = time.Now()
	}
	select {
	case b.queue <- dispatchJob{pub: pub}:
	default:
		b.droppedTotal++
		b.log.Warn().Str("topic", pub.Topic).Msg("alert bus queue saturated, dropping publication")
	}
}

// DroppedTotal reports how many publications were dropped due to a
// saturated queue, for the health endpoint.
func (b *Bus) DroppedTotal() int64 { return b.droppedTotal }

func (b *Bus) worker() {
	for job := range b.queue {
		b.dispatch(job.pub)
	}
}

func (b *Bus) dispatch(pub Publication) {
	for _, sub := range b.subscribers {
		if sub.TopicFilter != "" && sub.TopicFilter != pub.Topic {
			continue
		}
		func() {
			defer func() {
				if r := recover(); r != nil {
					b.log.Error().Str("subscriber", sub.Name).Interface("panic", r).Msg("alert subscriber panicked")
				}
			}()
			sub.Handle(pub)
		}()
	}

	channels := pub.Channels
	if len(channels) == 0 {
		channels = []Channel{ChannelLog}
	}
	for _, ch := range channels {
		sender, ok := b.senders[ch]
		if !ok {
			continue
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := sender.Send(ctx, pub); err != nil {
			b.log.Warn().Str("channel", string(ch)).Str("topic", pub.Topic).Err(err).Msg("alert delivery failed")
		}
		cancel()
	}
}
