package status

import (
	"sync"
	"time"
)

const DefaultMaxHistory = 15

// Timestamped is a single history entry of a schedule.
type Timestamped[T comparable] struct {
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
	Value     T         `json:"value" bson:"value"`
}

// ChangeHandler is notified after a schedule committed a new current value
// that differs from the previous one.
type ChangeHandler[T comparable] func(timestamp time.Time, oldStatus Timestamped[T], newStatus Timestamped[T])

// Schedule is a bounded timestamped history of a status value. Insertion is
// atomic with respect to concurrent inserts; the oldest entry is evicted
// once the capacity is reached. A schedule is always seeded with an initial
// value, so Current never fails.
type Schedule[T comparable] struct {
	entries  []Timestamped[T]
	capacity int
	handlers []ChangeHandler[T]
	clock    func() time.Time
	mux      sync.Mutex
}

func NewSchedule[T comparable](initial T, capacity int, clock func() time.Time) *Schedule[T] {
	if capacity <= 0 {
		capacity = DefaultMaxHistory
	}
	if clock == nil {
		clock = time.Now
	}
	s := &Schedule[T]{
		capacity: capacity,
		clock:    clock,
	}
	s.entries = append(s.entries, Timestamped[T]{Timestamp: clock(), Value: initial})
	return s
}

// OnChange registers a change handler. Handlers run synchronously inside
// the inserting call, after the new value is committed.
func (s *Schedule[T]) OnChange(handler ChangeHandler[T]) {
	if handler == nil {
		return
	}
	s.mux.Lock()
	s.handlers = append(s.handlers, handler)
	s.mux.Unlock()
}

// Insert appends a new entry timestamped with the schedule clock.
func (s *Schedule[T]) Insert(value T) {
	s.InsertAt(value, s.clock())
}

// InsertAt appends a new entry with an explicit timestamp. When the value
// differs from the current one, every change handler fires before InsertAt
// returns.
func (s *Schedule[T]) InsertAt(value T, timestamp time.Time) {
	s.mux.Lock()
	old := s.entries[len(s.entries)-1]
	entry := Timestamped[T]{Timestamp: timestamp, Value: value}
	s.entries = append(s.entries, entry)
	if len(s.entries) > s.capacity {
		s.entries = s.entries[len(s.entries)-s.capacity:]
	}
	changed := old.Value != value
	handlers := make([]ChangeHandler[T], len(s.handlers))
	copy(handlers, s.handlers)
	s.mux.Unlock()

	if changed {
		for _, handler := range handlers {
			handler(timestamp, old, entry)
		}
	}
}

// Replace clears the history and re-inserts the given entries in order.
// The current value after Replace is the last given entry; a change handler
// fires if it differs from the previous current value.
func (s *Schedule[T]) Replace(entries []Timestamped[T]) {
	if len(entries) == 0 {
		return
	}
	s.mux.Lock()
	old := s.entries[len(s.entries)-1]
	s.entries = s.entries[:0]
	for _, e := range entries {
		s.entries = append(s.entries, e)
		if len(s.entries) > s.capacity {
			s.entries = s.entries[len(s.entries)-s.capacity:]
		}
	}
	current := s.entries[len(s.entries)-1]
	changed := old.Value != current.Value
	handlers := make([]ChangeHandler[T], len(s.handlers))
	copy(handlers, s.handlers)
	s.mux.Unlock()

	if changed {
		for _, handler := range handlers {
			handler(current.Timestamp, old, current)
		}
	}
}

// Current returns the most recently inserted entry.
func (s *Schedule[T]) Current() Timestamped[T] {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.entries[len(s.entries)-1]
}

// Entries returns a copy of the history in insertion order.
func (s *Schedule[T]) Entries() []Timestamped[T] {
	s.mux.Lock()
	defer s.mux.Unlock()
	entries := make([]Timestamped[T], len(s.entries))
	copy(entries, s.entries)
	return entries
}
