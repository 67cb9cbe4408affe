package events

import (
	"sync"

	"github.com/cuemby/burrow/pkg/types"
)

// Controller events. These arrive as message content on a controller's
// callback mailbox; the broker additionally fans them out to in-process
// observers (trace archive, CLI progress, metrics).

// StandardJobDone reports successful completion of a standard job
type StandardJobDone struct {
	JobID          string
	ComputeService string
}

// StandardJobFailed reports failure of a standard job
type StandardJobFailed struct {
	JobID          string
	ComputeService string
	Cause          error
}

// FileCopyCompleted reports a finished asynchronous file copy
type FileCopyCompleted struct {
	Src types.Location
	Dst types.Location
}

// FileCopyFailed reports a failed asynchronous file copy
type FileCopyFailed struct {
	Src   types.Location
	Dst   types.Location
	Cause error
}

// PilotJobExpired reports that a pilot job's time allocation ran out
type PilotJobExpired struct {
	PilotJobID     string
	ComputeService string
}

// ServiceHasCrashed reports that a watched service died without returning
type ServiceHasCrashed struct {
	Service string
}

// ServiceHasTerminated reports that a watched service returned
type ServiceHasTerminated struct {
	Service    string
	ReturnCode int
}

// AlarmFired carries an alarm's payload
type AlarmFired struct {
	Payload any
}

// Event is one controller event with its virtual timestamp
type Event struct {
	TS      float64
	Content any
}

// Subscriber is a channel that receives events
type Subscriber chan *Event

// Broker distributes controller events to in-process observers
type Broker struct {
	subscribers map[Subscriber]bool
	mu          sync.RWMutex
	eventCh     chan *Event
	stopCh      chan struct{}
}

// NewBroker creates a new event broker
func NewBroker() *Broker {
	return &Broker{
		subscribers: make(map[Subscriber]bool),
		eventCh:     make(chan *Event, 100), // Buffer up to 100 events
		stopCh:      make(chan struct{}),
	}
}

// Start begins the broker's event distribution loop
func (b *Broker) Start() {
	go b.run()
}

// Stop stops the broker
func (b *Broker) Stop() {
	close(b.stopCh)
}

// Subscribe creates a new subscription and returns a channel
func (b *Broker) Subscribe() Subscriber {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := make(Subscriber, 50) // Buffer per subscriber
	b.subscribers[sub] = true
	return sub
}

// Unsubscribe removes a subscription
func (b *Broker) Unsubscribe(sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.subscribers, sub)
	close(sub)
}

// Publish publishes an event to all subscribers
func (b *Broker) Publish(event *Event) {
	select {
	case b.eventCh <- event:
	case <-b.stopCh:
	}
}

func (b *Broker) run() {
	for {
		select {
		case event := <-b.eventCh:
			b.broadcast(event)
		case <-b.stopCh:
			return
		}
	}
}

func (b *Broker) broadcast(event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		select {
		case sub <- event:
		default:
			// Subscriber buffer full, skip
		}
	}
}

// SubscriberCount returns the number of active subscribers
func (b *Broker) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
