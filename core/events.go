package core

import (
	"fmt"
	"sync"
	"time"

	"evpool/internal"
	"evpool/models"
	"evpool/status"
)

// Clock supplies the current time to an entity. Tests inject a fixed clock.
type Clock func() time.Time

// Feed is a single-event-kind fan-out point. Publish runs the subscribers
// synchronously; a panicking subscriber is recovered and logged so it can
// never abort the command that raised the event.
type Feed[E any] struct {
	name     string
	handlers map[int]func(E)
	next     int
	logger   internal.LogHandler
	mux      sync.Mutex
}

func NewFeed[E any](name string) *Feed[E] {
	return &Feed[E]{
		name:     name,
		handlers: make(map[int]func(E)),
	}
}

func (f *Feed[E]) SetLogger(logger internal.LogHandler) {
	f.mux.Lock()
	f.logger = logger
	f.mux.Unlock()
}

// Subscribe registers a handler and returns its unsubscribe func.
func (f *Feed[E]) Subscribe(handler func(E)) func() {
	if handler == nil {
		return func() {}
	}
	f.mux.Lock()
	id := f.next
	f.next++
	f.handlers[id] = handler
	f.mux.Unlock()
	return func() {
		f.mux.Lock()
		delete(f.handlers, id)
		f.mux.Unlock()
	}
}

func (f *Feed[E]) Publish(event E) {
	f.mux.Lock()
	handlers := make([]func(E), 0, len(f.handlers))
	for _, h := range f.handlers {
		handlers = append(handlers, h)
	}
	logger := f.logger
	f.mux.Unlock()

	for _, handler := range handlers {
		f.publishOne(handler, event, logger)
	}
}

func (f *Feed[E]) publishOne(handler func(E), event E, logger internal.LogHandler) {
	defer func() {
		if r := recover(); r != nil {
			if logger != nil {
				logger.Error(fmt.Sprintf("event handler panic on %s", f.name), fmt.Errorf("%v", r))
			}
		}
	}()
	handler(event)
}

// StatusChangedEvent announces a status schedule transition at any
// hierarchy level; Sender is the id of the original emitter and is passed
// through unchanged on re-publication.
type StatusChangedEvent[T comparable] struct {
	Timestamp time.Time
	Sender    string
	OldStatus status.Timestamped[T]
	NewStatus status.Timestamped[T]
}

// DataChangedEvent announces a descriptive attribute mutation.
type DataChangedEvent struct {
	Timestamp time.Time
	Sender    string
	Property  string
	Value     interface{}
}

type ReservationEvent struct {
	Timestamp   time.Time
	Sender      string
	Reservation *models.ChargingReservation
}

type ReservationCancelledEvent struct {
	Timestamp   time.Time
	Sender      string
	Reservation *models.ChargingReservation
	Reason      models.CancelReason
}

type SessionEvent struct {
	Timestamp time.Time
	Sender    string
	Session   *models.ChargingSession
}

type ChargeDetailRecordEvent struct {
	Timestamp time.Time
	Sender    string
	Record    *models.ChargeDetailRecord
}
