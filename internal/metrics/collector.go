package metrics

import (
	"context"
	"log/slog"
	"time"
)

type EventType string

const (
	EventPollCompleted EventType = "poll_completed"
	EventHealthChanged EventType = "health_changed"
)

type Event struct {
	Type      EventType
	Timestamp time.Time
	Backend   string
	Healthy   bool
	Happy     bool
	Good      int
	Window    int
	Latency   time.Duration
	Average   time.Duration
}

type Collector struct {
	eventCh chan Event
	metrics *Metrics
	logger  *slog.Logger
}

func NewCollector(bufferSize int, logger *slog.Logger) *Collector {
	return &Collector{
		eventCh: make(chan Event, bufferSize),
		metrics: NewMetrics(),
		logger:  logger,
	}
}

func (c *Collector) EventChannel() chan<- Event {
	return c.eventCh
}

func (c *Collector) Start(ctx context.Context) {
	go c.run(ctx)
}

func (c *Collector) run(ctx context.Context) {
	c.logger.Info("Metrics collector started")
	defer c.logger.Info("Metrics collector stopped")

	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		case <-ctx.Done():
			// Drain remaining events before shutdown
			c.drain()
			return
		}
	}
}

func (c *Collector) processEvent(event Event) {
	switch event.Type {
	case EventPollCompleted:
		c.metrics.RecordPoll(event.Backend, event.Happy, event.Healthy,
			event.Good, event.Window, event.Latency, event.Average)

	case EventHealthChanged:
		c.metrics.RecordFlip(event.Backend, event.Healthy)
	}
}

func (c *Collector) drain() {
	for {
		select {
		case event := <-c.eventCh:
			c.processEvent(event)
		default:
			return
		}
	}
}

func (c *Collector) Snapshot() Snapshot {
	return c.metrics.Snapshot()
}
