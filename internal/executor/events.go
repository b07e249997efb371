package executor

import (
	"sync"
	"time"
)

// EventType tags progress events emitted during execution.
type EventType string

const (
	EventNodeStart  EventType = "node_start"
	EventNodeResult EventType = "node_result"
	EventStepStart  EventType = "step_start"
	EventStepResult EventType = "step_result"
)

// Event is one progress record from the executor's event stream.
type Event struct {
	Type    EventType
	RunID   string
	Target  string
	Message string
	OK      bool
	Time    time.Time
}

// Observer receives progress events. Observers must not block for long:
// events are delivered synchronously on the emitting goroutine and a slow
// observer throttles the fan-out.
type Observer interface {
	HandleEvent(event Event)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Event)

// HandleEvent implements Observer.
func (f ObserverFunc) HandleEvent(event Event) { f(event) }

// publisher delivers events to all subscribed observers in emission order.
type publisher struct {
	mu        sync.Mutex
	observers []Observer
}

func (p *publisher) subscribe(o Observer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.observers = append(p.observers, o)
}

func (p *publisher) publish(event Event) {
	if event.Time.IsZero() {
		event.Time = time.Now()
	}
	// Hold the lock across delivery so concurrent workers cannot interleave
	// one event inside another's observer sequence.
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, o := range p.observers {
		o.HandleEvent(event)
	}
}
