package core

import (
	"context"
	"testing"
	"time"

	"evpool/models"
	"evpool/status"
	"evpool/votes"
)

func newTestStation(clock *testClock) *ChargingStation {
	station := NewChargingStation("station-1", "pool-1", 15, clock.Now)
	station.SetAdminStatus(status.AdminStatusOperational)
	station.SetStatus(status.StationStatusAvailable)
	return station
}

func addEVSE(t *testing.T, station *ChargingStation, id string) *EVSE {
	t.Helper()
	evse, err := station.CreateEVSE(id, func(e *EVSE) {
		e.SetAdminStatus(status.AdminStatusOperational)
		e.SetStatus(status.EVSEStatusAvailable)
	}, nil, nil)
	if err != nil {
		t.Fatalf("create evse %s: %v", id, err)
	}
	return evse
}

func TestStationCreateEVSE(t *testing.T) {
	clock := newTestClock()
	station := newTestStation(clock)
	addEVSE(t, station, "evse-1")
	if _, ok := station.GetEVSE("evse-1"); !ok {
		t.Fatalf("evse not registered")
	}
	if _, err := station.CreateEVSE("evse-1", nil, nil, nil); err == nil {
		t.Fatalf("duplicate evse id accepted")
	}
}

func TestStationCreateEVSEContinuations(t *testing.T) {
	clock := newTestClock()
	station := newTestStation(clock)
	var created *EVSE
	evse, err := station.CreateEVSE("evse-1", nil, func(e *EVSE) {
		created = e
	}, nil)
	if err != nil || evse == nil || created != evse {
		t.Fatalf("success continuation not called")
	}

	var gotErr error
	evse, err = station.CreateEVSE("evse-1", nil, nil, func(e error) {
		gotErr = e
	})
	if err != nil {
		t.Fatalf("error continuation must swallow the error, got %v", err)
	}
	if evse != nil || gotErr == nil {
		t.Fatalf("error continuation not called for duplicate id")
	}
}

func TestStationEVSEAdditionVeto(t *testing.T) {
	clock := newTestClock()
	station := newTestStation(clock)
	station.OnEVSEAddition.OnVoting(func(ts time.Time, s *ChargingStation, e *EVSE, vote *votes.Vote) {
		vote.Veto("no capacity")
	})
	if _, err := station.CreateEVSE("evse-1", nil, nil, nil); err == nil {
		t.Fatalf("vetoed addition went through")
	}
	if _, ok := station.GetEVSE("evse-1"); ok {
		t.Fatalf("vetoed evse registered anyway")
	}
}

func TestStationAggregatesEVSEStatus(t *testing.T) {
	clock := newTestClock()
	station := newTestStation(clock)
	station.SetStatusAggregator(status.AggregateEVSEStatus)
	addEVSE(t, station, "evse-1")
	addEVSE(t, station, "evse-2")

	evse, _ := station.GetEVSE("evse-1")
	evse.SetStatus(status.EVSEStatusCharging)
	if station.Status().Value != status.StationStatusPartlyInUse {
		t.Fatalf("expected partlyInUse, got %v", station.Status().Value)
	}

	evse, _ = station.GetEVSE("evse-2")
	evse.SetStatus(status.EVSEStatusCharging)
	if station.Status().Value != status.StationStatusInUse {
		t.Fatalf("expected inUse, got %v", station.Status().Value)
	}
}

func TestStationLearnsReservationsAndSessions(t *testing.T) {
	clock := newTestClock()
	station := newTestStation(clock)
	addEVSE(t, station, "evse-1")

	station.Reserve(context.Background(), ReserveRequest{EVSEId: "evse-1", ReservationId: "res-1"})
	if evseId, ok := station.TryGetReservation("res-1"); !ok || evseId != "evse-1" {
		t.Fatalf("reservation not learned: %v %v", evseId, ok)
	}

	station.RemoteStart(context.Background(), RemoteStartRequest{ReservationId: "res-1", SessionId: "session-1"})
	if _, ok := station.TryGetReservation("res-1"); ok {
		t.Fatalf("consumed reservation still mapped")
	}
	if evseId, ok := station.TryGetSession("session-1"); !ok || evseId != "evse-1" {
		t.Fatalf("session not learned: %v %v", evseId, ok)
	}

	station.RemoteStop(context.Background(), RemoteStopRequest{SessionId: "session-1"})
	if _, ok := station.TryGetSession("session-1"); ok {
		t.Fatalf("ended session still mapped")
	}
}

func TestStationReservePicksFirstWorkableEVSE(t *testing.T) {
	clock := newTestClock()
	station := newTestStation(clock)
	addEVSE(t, station, "evse-b")
	addEVSE(t, station, "evse-a")

	evse, _ := station.GetEVSE("evse-a")
	evse.SetStatus(status.EVSEStatusOutOfService)

	result := station.Reserve(context.Background(), ReserveRequest{ReservationId: "res-1"})
	if result.Result != ReservationSuccess {
		t.Fatalf("expected success, got %v", result.Result)
	}
	if result.Reservation.EVSEId != "evse-b" {
		t.Fatalf("expected fallback to evse-b, got %v", result.Reservation.EVSEId)
	}
}

func TestStationReserveUnknownEVSE(t *testing.T) {
	clock := newTestClock()
	station := newTestStation(clock)
	addEVSE(t, station, "evse-1")
	result := station.Reserve(context.Background(), ReserveRequest{EVSEId: "missing"})
	if result.Result != ReservationUnknownEVSE {
		t.Fatalf("expected unknownEVSE, got %v", result.Result)
	}
}

func TestStationAdminDownGatesCommands(t *testing.T) {
	clock := newTestClock()
	station := newTestStation(clock)
	addEVSE(t, station, "evse-1")
	station.SetAdminStatus(status.AdminStatusOutOfService)

	if result := station.Reserve(context.Background(), ReserveRequest{EVSEId: "evse-1"}); result.Result != ReservationAdminDown {
		t.Fatalf("reserve: expected adminDown, got %v", result.Result)
	}
	if result := station.RemoteStart(context.Background(), RemoteStartRequest{EVSEId: "evse-1"}); result.Result != RemoteStartAdminDown {
		t.Fatalf("start: expected adminDown, got %v", result.Result)
	}
}

func TestStationRemoveEVSECancelsReservation(t *testing.T) {
	clock := newTestClock()
	station := newTestStation(clock)
	addEVSE(t, station, "evse-1")
	station.Reserve(context.Background(), ReserveRequest{EVSEId: "evse-1", ReservationId: "res-1"})

	var cancelled ReservationCancelledEvent
	station.OnReservationCancelled.Subscribe(func(event ReservationCancelledEvent) {
		cancelled = event
	})

	if _, err := station.RemoveEVSE("evse-1"); err != nil {
		t.Fatalf("remove failed: %v", err)
	}
	if cancelled.Reason != models.CancelReasonEVSERemoved {
		t.Fatalf("expected evseRemoved cancel reason, got %v", cancelled.Reason)
	}
	if _, ok := station.TryGetReservation("res-1"); ok {
		t.Fatalf("reservation map kept an entry for a removed evse")
	}
	if _, ok := station.GetEVSE("evse-1"); ok {
		t.Fatalf("evse still registered")
	}
}

func TestStationRemoveEVSEVeto(t *testing.T) {
	clock := newTestClock()
	station := newTestStation(clock)
	addEVSE(t, station, "evse-1")
	station.OnEVSERemoval.OnVoting(func(ts time.Time, s *ChargingStation, e *EVSE, vote *votes.Vote) {
		vote.Veto("still wired")
	})
	if _, err := station.RemoveEVSE("evse-1"); err == nil {
		t.Fatalf("vetoed removal went through")
	}
	if _, ok := station.GetEVSE("evse-1"); !ok {
		t.Fatalf("vetoed removal dropped the evse anyway")
	}
}

func TestStationCancelReservationFallbackScan(t *testing.T) {
	clock := newTestClock()
	station := newTestStation(clock)
	addEVSE(t, station, "evse-1")
	station.Reserve(context.Background(), ReserveRequest{EVSEId: "evse-1", ReservationId: "res-1"})

	// simulate a stale map by dropping the entry behind the station's back
	station.reservations.Delete("res-1")

	result := station.CancelReservation(context.Background(), CancelReservationRequest{ReservationId: "res-1"})
	if result.Result != CancelReservationSuccess {
		t.Fatalf("fallback scan missed the reservation: %v", result.Result)
	}
}
