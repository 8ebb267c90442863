// Package events keeps a bounded, subscribable history of contract
// notifications and transaction faults produced by the chain host.
package events

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/R3E-Network/solver_layer/internal/chain"
	"github.com/R3E-Network/solver_layer/internal/logging"
)

// EventType classifies an event. Contract notifications use the
// notification name as their type.
type EventType string

// EventFault is recorded for every transaction that ended in FAULT.
const EventFault EventType = "TransactionFault"

// Severity indicates the importance of an event.
type Severity string

const (
	SeverityInfo  Severity = "info"
	SeverityError Severity = "error"
)

// Event is one entry of the feed.
type Event struct {
	ID        string            `json:"id"`
	Seq       uint64            `json:"seq"`
	Type      EventType         `json:"type"`
	Severity  Severity          `json:"severity"`
	Timestamp time.Time         `json:"timestamp"`
	TxID      string            `json:"tx_id,omitempty"`
	Contract  string            `json:"contract,omitempty"`
	Method    string            `json:"method,omitempty"`
	Sender    string            `json:"sender,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
	Error     string            `json:"error,omitempty"`
	TraceID   string            `json:"trace_id,omitempty"`
}

// String returns the JSON form of the event.
func (e Event) String() string {
	data, _ := json.Marshal(e)
	return string(data)
}

// Handler processes events as they are recorded.
type Handler func(Event)

// Filter decides whether a handler sees an event.
type Filter func(Event) bool

// RingBuffer is a thread-safe circular buffer of events.
type RingBuffer struct {
	// dmu serializes delivery so handlers see events in sequence order.
	dmu      sync.Mutex
	mu       sync.RWMutex
	events   []Event
	size     int
	head     int
	count    int
	seq      uint64
	handlers []handlerEntry
	nextID   int64
}

type handlerEntry struct {
	id      int64
	filter  Filter
	handler Handler
}

// NewRingBuffer creates a buffer holding at most size events.
func NewRingBuffer(size int) *RingBuffer {
	if size <= 0 {
		size = 1000
	}
	return &RingBuffer{
		events: make([]Event, size),
		size:   size,
	}
}

// Log adds an event and notifies handlers. Handlers are called in sequence
// order, one event at a time, and must not call Log.
func (rb *RingBuffer) Log(event Event) {
	rb.dmu.Lock()
	defer rb.dmu.Unlock()

	rb.mu.Lock()
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Severity == "" {
		event.Severity = SeverityInfo
	}
	rb.seq++
	event.Seq = rb.seq

	rb.events[rb.head] = event
	rb.head = (rb.head + 1) % rb.size
	if rb.count < rb.size {
		rb.count++
	}

	handlers := make([]handlerEntry, len(rb.handlers))
	copy(handlers, rb.handlers)
	rb.mu.Unlock()

	// handlers run outside mu so they may read the buffer
	for _, h := range handlers {
		if h.filter == nil || h.filter(event) {
			h.handler(event)
		}
	}
}

// LogWithContext attaches the trace ID carried by ctx before logging.
func (rb *RingBuffer) LogWithContext(ctx context.Context, event Event) {
	if id := logging.GetTraceID(ctx); id != "" {
		event.TraceID = id
	}
	rb.Log(event)
}

// Subscribe registers a handler for all events.
func (rb *RingBuffer) Subscribe(handler Handler) func() {
	return rb.SubscribeFiltered(nil, handler)
}

// SubscribeFiltered registers a handler with a filter. The returned function
// unsubscribes.
func (rb *RingBuffer) SubscribeFiltered(filter Filter, handler Handler) func() {
	rb.mu.Lock()
	id := rb.nextID
	rb.nextID++
	rb.handlers = append(rb.handlers, handlerEntry{id: id, filter: filter, handler: handler})
	rb.mu.Unlock()

	return func() {
		rb.mu.Lock()
		defer rb.mu.Unlock()
		for i, h := range rb.handlers {
			if h.id == id {
				rb.handlers = append(rb.handlers[:i], rb.handlers[i+1:]...)
				return
			}
		}
	}
}

// Recent returns up to n events, newest first.
func (rb *RingBuffer) Recent(n int) []Event {
	return rb.recent(n, nil)
}

// RecentByContract returns up to n events emitted by contract, newest first.
func (rb *RingBuffer) RecentByContract(contract string, n int) []Event {
	return rb.recent(n, func(e Event) bool { return e.Contract == contract })
}

// RecentByType returns up to n events of the given type, newest first.
func (rb *RingBuffer) RecentByType(eventType EventType, n int) []Event {
	return rb.recent(n, func(e Event) bool { return e.Type == eventType })
}

// Since returns the buffered events with a sequence number above seq, oldest
// first.
func (rb *RingBuffer) Since(seq uint64) []Event {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	var result []Event
	for i := rb.count - 1; i >= 0; i-- {
		e := rb.events[(rb.head-1-i+rb.size)%rb.size]
		if e.Seq > seq {
			result = append(result, e)
		}
	}
	return result
}

func (rb *RingBuffer) recent(n int, filter Filter) []Event {
	rb.mu.RLock()
	defer rb.mu.RUnlock()

	if n <= 0 || rb.count == 0 {
		return nil
	}

	var result []Event
	for i := 0; i < rb.count && len(result) < n; i++ {
		e := rb.events[(rb.head-1-i+rb.size)%rb.size]
		if filter == nil || filter(e) {
			result = append(result, e)
		}
	}
	return result
}

// Count returns the number of buffered events.
func (rb *RingBuffer) Count() int {
	rb.mu.RLock()
	defer rb.mu.RUnlock()
	return rb.count
}

// Clear drops all buffered events. Sequence numbers keep increasing.
func (rb *RingBuffer) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.events = make([]Event, rb.size)
	rb.head = 0
	rb.count = 0
}

// FromApplicationLog converts a transaction result into feed events: one per
// notification of a halted transaction, or a single fault event.
func FromApplicationLog(log *chain.ApplicationLog) []Event {
	base := Event{
		TxID:      log.TxID,
		Method:    log.Method,
		Sender:    chain.FormatAddress(log.Sender),
		Timestamp: log.Timestamp,
	}
	if !log.Halted() {
		e := base
		e.Type = EventFault
		e.Severity = SeverityError
		e.Contract = chain.FormatAddress(log.Contract)
		e.Error = log.Exception
		return []Event{e}
	}

	out := make([]Event, 0, len(log.Notifications))
	for _, n := range log.Notifications {
		e := base
		e.Type = EventType(n.Name)
		e.Contract = chain.FormatAddress(n.Contract)
		e.Fields = n.Fields
		out = append(out, e)
	}
	return out
}

// Attach feeds every application log of host into rb. The returned function
// detaches it.
func (rb *RingBuffer) Attach(host *chain.Host) func() {
	return host.Subscribe(func(log *chain.ApplicationLog) {
		for _, e := range FromApplicationLog(log) {
			rb.Log(e)
		}
	})
}
