package core

import (
	"context"
	"testing"
	"time"

	"evpool/models"
	"evpool/status"
)

func newTestEVSE(clock *testClock) *EVSE {
	evse := NewEVSE("evse-1", "station-1", "pool-1", 15, clock.Now)
	evse.SetStatus(status.EVSEStatusAvailable)
	evse.SetAdminStatus(status.AdminStatusOperational)
	return evse
}

func TestEVSEReserve(t *testing.T) {
	clock := newTestClock()
	evse := newTestEVSE(clock)

	result := evse.Reserve(context.Background(), ReserveRequest{
		ReservationId: "res-1",
		ProviderId:    "provider-1",
		Duration:      10 * time.Minute,
	})
	if result.Result != ReservationSuccess {
		t.Fatalf("expected success, got %v", result.Result)
	}
	if result.Reservation == nil || result.Reservation.Id != "res-1" {
		t.Fatalf("reservation not returned")
	}
	if result.Reservation.EVSEId != "evse-1" || result.Reservation.StationId != "station-1" {
		t.Fatalf("reservation owner fields wrong: %+v", result.Reservation)
	}
	if evse.Status().Value != status.EVSEStatusReserved {
		t.Fatalf("expected reserved status, got %v", evse.Status().Value)
	}
}

func TestEVSEReserveGeneratesReservationId(t *testing.T) {
	clock := newTestClock()
	evse := newTestEVSE(clock)
	result := evse.Reserve(context.Background(), ReserveRequest{ProviderId: "provider-1"})
	if result.Result != ReservationSuccess {
		t.Fatalf("expected success, got %v", result.Result)
	}
	if result.Reservation.Id == "" {
		t.Fatalf("expected generated reservation id")
	}
}

func TestEVSEReserveCapsDuration(t *testing.T) {
	clock := newTestClock()
	evse := newTestEVSE(clock)
	evse.SetMaxReservationDuration(20 * time.Minute)
	result := evse.Reserve(context.Background(), ReserveRequest{Duration: 3 * time.Hour})
	if result.Reservation.Duration != 20*time.Minute {
		t.Fatalf("duration not capped: %v", result.Reservation.Duration)
	}
}

func TestEVSEReserveExclusive(t *testing.T) {
	clock := newTestClock()
	evse := newTestEVSE(clock)
	evse.Reserve(context.Background(), ReserveRequest{ReservationId: "res-1"})
	result := evse.Reserve(context.Background(), ReserveRequest{ReservationId: "res-2"})
	if result.Result != ReservationAlreadyReserved {
		t.Fatalf("expected alreadyReserved, got %v", result.Result)
	}
}

func TestEVSEReserveGates(t *testing.T) {
	cases := []struct {
		name  string
		setup func(*EVSE)
		want  ReservationResultType
	}{
		{"admin down", func(e *EVSE) { e.SetAdminStatus(status.AdminStatusOutOfService) }, ReservationAdminDown},
		{"planned", func(e *EVSE) { e.SetAdminStatus(status.AdminStatusPlanned) }, ReservationAdminDown},
		{"offline", func(e *EVSE) { e.SetStatus(status.EVSEStatusOffline) }, ReservationOffline},
		{"out of service", func(e *EVSE) { e.SetStatus(status.EVSEStatusOutOfService) }, ReservationOutOfService},
		{"faulted", func(e *EVSE) { e.SetStatus(status.EVSEStatusFaulted) }, ReservationOutOfService},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			clock := newTestClock()
			evse := newTestEVSE(clock)
			c.setup(evse)
			result := evse.Reserve(context.Background(), ReserveRequest{})
			if result.Result != c.want {
				t.Errorf("got %v, want %v", result.Result, c.want)
			}
		})
	}
}

func TestEVSEReserveCancelledContext(t *testing.T) {
	clock := newTestClock()
	evse := newTestEVSE(clock)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	result := evse.Reserve(ctx, ReserveRequest{})
	if result.Result != ReservationTimeout {
		t.Fatalf("expected timeout, got %v", result.Result)
	}
}

func TestEVSECancelReservation(t *testing.T) {
	clock := newTestClock()
	evse := newTestEVSE(clock)
	evse.Reserve(context.Background(), ReserveRequest{ReservationId: "res-1"})

	var cancelled ReservationCancelledEvent
	evse.OnReservationCancelled.Subscribe(func(event ReservationCancelledEvent) {
		cancelled = event
	})

	result := evse.CancelReservation(context.Background(), CancelReservationRequest{ReservationId: "res-1"})
	if result.Result != CancelReservationSuccess {
		t.Fatalf("expected success, got %v", result.Result)
	}
	if evse.Status().Value != status.EVSEStatusAvailable {
		t.Fatalf("expected available after cancel, got %v", evse.Status().Value)
	}
	if cancelled.Reservation == nil || cancelled.Reason != models.CancelReasonRequested {
		t.Fatalf("cancel event not published: %+v", cancelled)
	}
}

func TestEVSECancelUnknownReservation(t *testing.T) {
	clock := newTestClock()
	evse := newTestEVSE(clock)
	evse.Reserve(context.Background(), ReserveRequest{ReservationId: "res-1"})
	result := evse.CancelReservation(context.Background(), CancelReservationRequest{ReservationId: "other"})
	if result.Result != CancelReservationUnknownId {
		t.Fatalf("expected unknownReservationId, got %v", result.Result)
	}
	if evse.Reservation() == nil {
		t.Fatalf("mismatched cancel must not drop the held reservation")
	}
}

func TestEVSERemoteStartConsumesReservation(t *testing.T) {
	clock := newTestClock()
	evse := newTestEVSE(clock)
	evse.Reserve(context.Background(), ReserveRequest{ReservationId: "res-1", ProviderId: "provider-1"})

	var cancelled ReservationCancelledEvent
	evse.OnReservationCancelled.Subscribe(func(event ReservationCancelledEvent) {
		cancelled = event
	})

	result := evse.RemoteStart(context.Background(), RemoteStartRequest{
		ReservationId: "res-1",
		ProviderId:    "provider-1",
		SessionId:     "session-1",
	})
	if result.Result != RemoteStartSuccess {
		t.Fatalf("expected success, got %v", result.Result)
	}
	if result.Session.ReservationId != "res-1" {
		t.Fatalf("session not linked to consumed reservation: %+v", result.Session)
	}
	if evse.Reservation() != nil {
		t.Fatalf("reservation survived consumption")
	}
	if cancelled.Reason != models.CancelReasonConsumed {
		t.Fatalf("expected consumed cancel reason, got %v", cancelled.Reason)
	}
	if evse.Status().Value != status.EVSEStatusCharging {
		t.Fatalf("expected charging, got %v", evse.Status().Value)
	}
}

func TestEVSERemoteStartBlockedByForeignReservation(t *testing.T) {
	clock := newTestClock()
	evse := newTestEVSE(clock)
	evse.Reserve(context.Background(), ReserveRequest{ReservationId: "res-1", ProviderId: "provider-1"})

	result := evse.RemoteStart(context.Background(), RemoteStartRequest{ProviderId: "provider-2"})
	if result.Result != RemoteStartReserved {
		t.Fatalf("expected reserved, got %v", result.Result)
	}
	if evse.Reservation() == nil {
		t.Fatalf("foreign start attempt must not consume the reservation")
	}
}

func TestEVSERemoteStartAuthorizedAccount(t *testing.T) {
	clock := newTestClock()
	evse := newTestEVSE(clock)
	evse.Reserve(context.Background(), ReserveRequest{
		ReservationId: "res-1",
		ProviderId:    "provider-1",
		AuthAccounts:  []string{"account-7"},
	})

	result := evse.RemoteStart(context.Background(), RemoteStartRequest{
		ProviderId: "provider-2",
		AccountId:  "account-7",
	})
	if result.Result != RemoteStartSuccess {
		t.Fatalf("listed account must be allowed to consume, got %v", result.Result)
	}
}

func TestEVSERemoteStartExclusive(t *testing.T) {
	clock := newTestClock()
	evse := newTestEVSE(clock)
	first := evse.RemoteStart(context.Background(), RemoteStartRequest{SessionId: "session-1"})
	if first.Result != RemoteStartSuccess {
		t.Fatalf("first start failed: %v", first.Result)
	}
	second := evse.RemoteStart(context.Background(), RemoteStartRequest{SessionId: "session-2"})
	if second.Result != RemoteStartAlreadyInUse {
		t.Fatalf("expected alreadyInUse, got %v", second.Result)
	}
	if evse.Session().Id != "session-1" {
		t.Fatalf("second start replaced the active session")
	}
}

func TestEVSERemoteStop(t *testing.T) {
	clock := newTestClock()
	evse := newTestEVSE(clock)
	evse.SetMeterValue(1000)
	evse.RemoteStart(context.Background(), RemoteStartRequest{SessionId: "session-1", ProviderId: "provider-1"})

	clock.Advance(30 * time.Minute)
	evse.SetMeterValue(8500)

	result := evse.RemoteStop(context.Background(), RemoteStopRequest{SessionId: "session-1"})
	if result.Result != RemoteStopSuccess {
		t.Fatalf("expected success, got %v", result.Result)
	}
	record := result.Record
	if record == nil {
		t.Fatalf("expected charge detail record")
	}
	if record.MeterStart != 1000 || record.MeterStop != 8500 {
		t.Fatalf("meter values wrong: %+v", record)
	}
	if record.ConsumedWh() != 7500 {
		t.Fatalf("consumed %v, want 7500", record.ConsumedWh())
	}
	if evse.Status().Value != status.EVSEStatusAvailable {
		t.Fatalf("expected available after stop, got %v", evse.Status().Value)
	}
	if evse.Session() != nil {
		t.Fatalf("session survived stop")
	}
}

func TestEVSERemoteStopInvalidSession(t *testing.T) {
	clock := newTestClock()
	evse := newTestEVSE(clock)
	result := evse.RemoteStop(context.Background(), RemoteStopRequest{SessionId: "nope"})
	if result.Result != RemoteStopInvalidSessionId {
		t.Fatalf("expected invalidSessionId, got %v", result.Result)
	}
}

func TestEVSERemoteStopKeepsLaterReservation(t *testing.T) {
	clock := newTestClock()
	evse := newTestEVSE(clock)
	evse.RemoteStart(context.Background(), RemoteStartRequest{SessionId: "session-1"})
	evse.Reserve(context.Background(), ReserveRequest{ReservationId: "res-next"})

	evse.RemoteStop(context.Background(), RemoteStopRequest{SessionId: "session-1"})
	if evse.Status().Value != status.EVSEStatusReserved {
		t.Fatalf("later reservation must keep the evse reserved, got %v", evse.Status().Value)
	}
	if evse.Reservation() == nil {
		t.Fatalf("later reservation dropped by stop")
	}
}

func TestEVSEReserveDuringSessionKeepsChargingStatus(t *testing.T) {
	clock := newTestClock()
	evse := newTestEVSE(clock)
	evse.RemoteStart(context.Background(), RemoteStartRequest{SessionId: "session-1"})

	result := evse.Reserve(context.Background(), ReserveRequest{ReservationId: "res-next"})
	if result.Result != ReservationSuccess {
		t.Fatalf("expected success, got %v", result.Result)
	}
	if evse.Status().Value != status.EVSEStatusCharging {
		t.Fatalf("live session must keep charging status, got %v", evse.Status().Value)
	}

	evse.RemoteStop(context.Background(), RemoteStopRequest{SessionId: "session-1"})
	if evse.Status().Value != status.EVSEStatusReserved {
		t.Fatalf("stop must surface the held reservation, got %v", evse.Status().Value)
	}
}

func TestEVSERemoteStopClosesLaterReservation(t *testing.T) {
	clock := newTestClock()
	evse := newTestEVSE(clock)
	evse.RemoteStart(context.Background(), RemoteStartRequest{SessionId: "session-1"})
	evse.Reserve(context.Background(), ReserveRequest{ReservationId: "res-next"})

	var cancelled ReservationCancelledEvent
	evse.OnReservationCancelled.Subscribe(func(event ReservationCancelledEvent) {
		cancelled = event
	})

	result := evse.RemoteStop(context.Background(), RemoteStopRequest{
		SessionId:           "session-1",
		ReservationHandling: models.ReservationHandlingClose,
	})
	if result.Result != RemoteStopSuccess {
		t.Fatalf("stop failed: %v", result.Result)
	}
	if evse.Reservation() != nil {
		t.Fatalf("close handling must release the held reservation")
	}
	if cancelled.Reservation == nil || cancelled.Reservation.Id != "res-next" {
		t.Fatalf("cancellation not published for the closed reservation")
	}
	if cancelled.Reason != models.CancelReasonRequested {
		t.Fatalf("unexpected cancel reason %v", cancelled.Reason)
	}
	if evse.Status().Value != status.EVSEStatusAvailable {
		t.Fatalf("expected available after close, got %v", evse.Status().Value)
	}
}

func TestEVSEReservationExpiry(t *testing.T) {
	clock := newTestClock()
	evse := newTestEVSE(clock)
	evse.Reserve(context.Background(), ReserveRequest{ReservationId: "res-1", Duration: 10 * time.Minute})

	var cancelled ReservationCancelledEvent
	evse.OnReservationCancelled.Subscribe(func(event ReservationCancelledEvent) {
		cancelled = event
	})

	clock.Advance(5 * time.Minute)
	evse.CheckExpiredReservation(clock.Now())
	if evse.Reservation() == nil {
		t.Fatalf("reservation expired too early")
	}

	clock.Advance(6 * time.Minute)
	evse.CheckExpiredReservation(clock.Now())
	if evse.Reservation() != nil {
		t.Fatalf("expired reservation not removed")
	}
	if cancelled.Reason != models.CancelReasonExpired {
		t.Fatalf("expected expired cancel reason, got %v", cancelled.Reason)
	}
	if evse.Status().Value != status.EVSEStatusAvailable {
		t.Fatalf("expected available after expiry, got %v", evse.Status().Value)
	}
}

func TestEVSEReserveEvictsExpiredReservation(t *testing.T) {
	clock := newTestClock()
	evse := newTestEVSE(clock)
	evse.Reserve(context.Background(), ReserveRequest{ReservationId: "res-old", Duration: 10 * time.Minute})

	clock.Advance(11 * time.Minute)
	result := evse.Reserve(context.Background(), ReserveRequest{ReservationId: "res-new"})
	if result.Result != ReservationSuccess {
		t.Fatalf("lapsed reservation must not block a new one, got %v", result.Result)
	}
	if evse.Reservation().Id != "res-new" {
		t.Fatalf("wrong reservation held: %v", evse.Reservation().Id)
	}
}
