package engine

import (
	"sync"

	"github.com/roach88/deckd/internal/device"
)

// EventType says which field of an Event is set.
type EventType int

const (
	EventTypeInput EventType = iota + 1
	EventTypeInbound
	EventTypeDeviceConnected
	EventTypeDeviceDisconnected
)

var eventTypeNames = map[EventType]string{
	EventTypeInput:              "input",
	EventTypeInbound:            "inbound",
	EventTypeDeviceConnected:    "device_connected",
	EventTypeDeviceDisconnected: "device_disconnected",
}

func (t EventType) String() string {
	if name, ok := eventTypeNames[t]; ok {
		return name
	}
	return "unknown"
}

// Inbound is a raw message from a hub peer. Source is the plugin UUID, or
// the action context for a property inspector.
type Inbound struct {
	FromInspector bool
	Source        string
	Data          []byte
}

// Event is one unit of work for the Run loop. Seq and Trace are stamped by
// Enqueue.
type Event struct {
	Type    EventType
	Input   *device.Input
	Inbound *Inbound
	Device  *device.Info
	Seq     int64
	Trace   string
}

func InputEvent(in device.Input) Event {
	return Event{Type: EventTypeInput, Input: &in}
}

func InboundEvent(in Inbound) Event {
	return Event{Type: EventTypeInbound, Inbound: &in}
}

func DeviceConnectedEvent(info device.Info) Event {
	return Event{Type: EventTypeDeviceConnected, Device: &info}
}

func DeviceDisconnectedEvent(info device.Info) Event {
	return Event{Type: EventTypeDeviceDisconnected, Device: &info}
}

// eventQueue is an unbounded FIFO shared by producers (device readers, hub
// connections) and the single Run goroutine. Producers never block, even
// while a multi-action sleeps between children.
type eventQueue struct {
	mu     sync.Mutex
	buf    []Event
	head   int
	seq    int64
	closed bool
	// wake holds at most one pending wakeup and is closed by close.
	wake chan struct{}
}

func newEventQueue() *eventQueue {
	return &eventQueue{wake: make(chan struct{}, 1)}
}

// push stamps e with the next seq and appends it, so seq order is queue
// order. It reports false once the queue is closed.
func (q *eventQueue) push(e Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return false
	}
	q.seq++
	e.Seq = q.seq
	q.buf = append(q.buf, e)
	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

// pop removes the oldest event without blocking.
func (q *eventQueue) pop() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.head == len(q.buf) {
		return Event{}, false
	}
	e := q.buf[q.head]
	q.buf[q.head] = Event{}
	q.head++

	switch {
	case q.head == len(q.buf):
		q.buf, q.head = q.buf[:0], 0
	case q.head > 32 && q.head*2 > len(q.buf):
		n := copy(q.buf, q.buf[q.head:])
		clear(q.buf[n:])
		q.buf, q.head = q.buf[:n], 0
	}
	return e, true
}

// ready fires after a push, and stays ready forever once the queue is closed.
func (q *eventQueue) ready() <-chan struct{} {
	return q.wake
}

// drained reports whether the queue is closed and empty.
func (q *eventQueue) drained() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.closed && q.head == len(q.buf)
}

func (q *eventQueue) size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.buf) - q.head
}

// close rejects further pushes. Events already queued stay poppable.
func (q *eventQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.wake)
	}
}
