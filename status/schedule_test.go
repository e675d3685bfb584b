package status

import (
	"testing"
	"time"
)

func testClock(start time.Time) func() time.Time {
	current := start
	return func() time.Time {
		current = current.Add(time.Second)
		return current
	}
}

func TestScheduleSeededWithInitialValue(t *testing.T) {
	s := NewSchedule(EVSEStatusUnspecified, 5, testClock(time.Unix(1000, 0)))
	current := s.Current()
	if current.Value != EVSEStatusUnspecified {
		t.Fatalf("expected initial value, got %v", current.Value)
	}
	if len(s.Entries()) != 1 {
		t.Fatalf("expected one seeded entry, got %v", len(s.Entries()))
	}
}

func TestScheduleEvictsOldestAtCapacity(t *testing.T) {
	capacity := 15
	s := NewSchedule(EVSEStatusUnspecified, capacity, testClock(time.Unix(1000, 0)))
	for i := 0; i < capacity+4; i++ {
		value := EVSEStatusAvailable
		if i%2 == 0 {
			value = EVSEStatusCharging
		}
		s.Insert(value)
	}
	entries := s.Entries()
	if len(entries) != capacity {
		t.Fatalf("expected %v entries, got %v", capacity, len(entries))
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].Timestamp.Before(entries[i-1].Timestamp) {
			t.Fatalf("entries out of order at %v", i)
		}
	}
	last := s.Current()
	if last.Value != entries[len(entries)-1].Value {
		t.Fatalf("current %v does not match last entry %v", last.Value, entries[len(entries)-1].Value)
	}
}

func TestScheduleChangeHandlerFiresOnValueChange(t *testing.T) {
	s := NewSchedule(EVSEStatusAvailable, 5, testClock(time.Unix(1000, 0)))
	fired := 0
	var gotOld, gotNew EVSEStatus
	s.OnChange(func(ts time.Time, old, new Timestamped[EVSEStatus]) {
		fired++
		gotOld = old.Value
		gotNew = new.Value
	})

	s.Insert(EVSEStatusAvailable)
	if fired != 0 {
		t.Fatalf("handler fired on unchanged value")
	}
	s.Insert(EVSEStatusReserved)
	if fired != 1 {
		t.Fatalf("expected one change, got %v", fired)
	}
	if gotOld != EVSEStatusAvailable || gotNew != EVSEStatusReserved {
		t.Fatalf("unexpected transition %v -> %v", gotOld, gotNew)
	}
}

func TestScheduleInsertAtKeepsGivenTimestamp(t *testing.T) {
	s := NewSchedule(EVSEStatusAvailable, 5, testClock(time.Unix(1000, 0)))
	ts := time.Unix(5000, 0)
	s.InsertAt(EVSEStatusCharging, ts)
	current := s.Current()
	if !current.Timestamp.Equal(ts) {
		t.Fatalf("expected timestamp %v, got %v", ts, current.Timestamp)
	}
}

func TestScheduleReplace(t *testing.T) {
	s := NewSchedule(EVSEStatusAvailable, 3, testClock(time.Unix(1000, 0)))
	fired := 0
	s.OnChange(func(ts time.Time, old, new Timestamped[EVSEStatus]) {
		fired++
	})
	history := []Timestamped[EVSEStatus]{
		{Timestamp: time.Unix(2000, 0), Value: EVSEStatusReserved},
		{Timestamp: time.Unix(2001, 0), Value: EVSEStatusCharging},
		{Timestamp: time.Unix(2002, 0), Value: EVSEStatusAvailable},
		{Timestamp: time.Unix(2003, 0), Value: EVSEStatusOffline},
	}
	s.Replace(history)

	entries := s.Entries()
	if len(entries) != 3 {
		t.Fatalf("expected capacity-bounded history, got %v entries", len(entries))
	}
	if s.Current().Value != EVSEStatusOffline {
		t.Fatalf("expected last replaced value, got %v", s.Current().Value)
	}
	if fired != 1 {
		t.Fatalf("expected one change event for replace, got %v", fired)
	}

	// replacing with the same final value again must stay silent
	s.Replace(entries)
	if fired != 1 {
		t.Fatalf("replace with unchanged current value fired a change event")
	}
}

func TestScheduleReplaceEmptyIsNoop(t *testing.T) {
	s := NewSchedule(EVSEStatusAvailable, 3, testClock(time.Unix(1000, 0)))
	s.Replace(nil)
	if s.Current().Value != EVSEStatusAvailable {
		t.Fatalf("empty replace changed the current value")
	}
}
