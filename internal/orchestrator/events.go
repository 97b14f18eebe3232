package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/storyforge/storyforge/internal/logging"
	"github.com/storyforge/storyforge/pkg/story"
)

// EventType names one phase-transition notification the orchestrator
// publishes while driving a request through the pipeline.
type EventType string

const (
	EventRequestStarted   EventType = "request.started"
	EventPhaseCompleted   EventType = "phase.completed"
	EventNodeResolved     EventType = "node.resolved"
	EventRequestCompleted EventType = "request.completed"
	EventRequestFailed    EventType = "request.failed"
)

// Event carries everything an Observer needs about one phase transition.
type Event struct {
	Type      EventType
	RequestID string
	Phase     story.Phase
	NodeID    string
	Status    story.NodeNegotiationStatus
	Err       error
	Timestamp time.Time
}

// Observer receives orchestrator events. Implementations must not block —
// Publisher already notifies off the critical path, but a slow OnEvent
// still delays that goroutine's next event.
type Observer interface {
	OnEvent(ctx context.Context, event Event)
	Name() string
}

// Publisher fans an Event out to every registered Observer, recovering
// from any observer panic so a faulty listener can never affect request
// processing — grounded on the teacher's ObserverManager.Notify.
type Publisher struct {
	mu        sync.RWMutex
	observers []Observer
	logger    *logging.Logger
}

// NewPublisher builds an empty Publisher.
func NewPublisher(logger *logging.Logger) *Publisher {
	return &Publisher{logger: logger}
}

// Register adds an observer.
func (p *Publisher) Register(obs Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, obs)
}

// Publish notifies every registered observer asynchronously.
func (p *Publisher) Publish(ctx context.Context, event Event) {
	p.mu.RLock()
	observers := make([]Observer, len(p.observers))
	copy(observers, p.observers)
	p.mu.RUnlock()

	for _, obs := range observers {
		go p.notify(ctx, obs, event)
	}
}

func (p *Publisher) notify(ctx context.Context, obs Observer, event Event) {
	defer func() {
		if r := recover(); r != nil && p.logger != nil {
			p.logger.ErrorContext(ctx, "orchestrator observer panic recovered",
				"observer", obs.Name(), "event_type", string(event.Type), "panic", r)
		}
	}()
	obs.OnEvent(ctx, event)
}

// LogObserver is the always-on Observer that mirrors every event into the
// structured logger, the minimum observability the orchestrator carries
// regardless of what other observers a caller registers.
type LogObserver struct {
	logger *logging.Logger
}

// NewLogObserver builds a LogObserver.
func NewLogObserver(logger *logging.Logger) *LogObserver {
	return &LogObserver{logger: logger}
}

func (o *LogObserver) Name() string { return "log" }

func (o *LogObserver) OnEvent(ctx context.Context, event Event) {
	args := []any{"request_id", event.RequestID, "phase", string(event.Phase)}
	if event.NodeID != "" {
		args = append(args, "node_id", event.NodeID, "status", string(event.Status))
	}
	if event.Err != nil {
		args = append(args, "error", event.Err)
		o.logger.ErrorContext(ctx, string(event.Type), args...)
		return
	}
	o.logger.InfoContext(ctx, string(event.Type), args...)
}
