package server

import (
	"context"
	"sync"
	"testing"
	"time"

	"evpool/core"
	"evpool/internal"
	"evpool/internal/config"
	"evpool/models"
	"evpool/status"
)

type fakeDatabase struct {
	mux          sync.Mutex
	stations     []models.ChargingStation
	evses        []models.EVSE
	reservations map[string]*models.ChargingReservation
	sessions     map[string]*models.ChargingSession
	records      []*models.ChargeDetailRecord
}

func newFakeDatabase() *fakeDatabase {
	return &fakeDatabase{
		reservations: make(map[string]*models.ChargingReservation),
		sessions:     make(map[string]*models.ChargingSession),
	}
}

func (db *fakeDatabase) Write(table string, data internal.Data) error {
	return nil
}

func (db *fakeDatabase) WriteLogMessage(data internal.Data) error {
	return nil
}

func (db *fakeDatabase) ReadLog() (interface{}, error) {
	return nil, nil
}

func (db *fakeDatabase) GetChargingStations(poolId string) ([]models.ChargingStation, error) {
	return db.stations, nil
}

func (db *fakeDatabase) GetEVSEs(poolId string) ([]models.EVSE, error) {
	return db.evses, nil
}

func (db *fakeDatabase) UpdateChargingStation(station *models.ChargingStation) error {
	return nil
}

func (db *fakeDatabase) UpdateEVSE(evse *models.EVSE) error {
	return nil
}

func (db *fakeDatabase) AddReservation(reservation *models.ChargingReservation) error {
	db.mux.Lock()
	defer db.mux.Unlock()
	db.reservations[reservation.Id] = reservation
	return nil
}

func (db *fakeDatabase) DeleteReservation(reservationId string) error {
	db.mux.Lock()
	defer db.mux.Unlock()
	delete(db.reservations, reservationId)
	return nil
}

func (db *fakeDatabase) AddSession(session *models.ChargingSession) error {
	db.mux.Lock()
	defer db.mux.Unlock()
	db.sessions[session.Id] = session
	return nil
}

func (db *fakeDatabase) DeleteSession(sessionId string) error {
	db.mux.Lock()
	defer db.mux.Unlock()
	delete(db.sessions, sessionId)
	return nil
}

func (db *fakeDatabase) AddChargeDetailRecord(record *models.ChargeDetailRecord) error {
	db.mux.Lock()
	defer db.mux.Unlock()
	db.records = append(db.records, record)
	return nil
}

func (db *fakeDatabase) reservationCount() int {
	db.mux.Lock()
	defer db.mux.Unlock()
	return len(db.reservations)
}

func (db *fakeDatabase) sessionCount() int {
	db.mux.Lock()
	defer db.mux.Unlock()
	return len(db.sessions)
}

func (db *fakeDatabase) recordCount() int {
	db.mux.Lock()
	defer db.mux.Unlock()
	return len(db.records)
}

type fakeEventHandler struct {
	mux    sync.Mutex
	events []string
}

func (h *fakeEventHandler) record(kind string) {
	h.mux.Lock()
	h.events = append(h.events, kind)
	h.mux.Unlock()
}

func (h *fakeEventHandler) OnNewReservation(event *internal.EventMessage) {
	h.record("newReservation")
}

func (h *fakeEventHandler) OnReservationCancelled(event *internal.EventMessage) {
	h.record("reservationCancelled")
}

func (h *fakeEventHandler) OnSessionStart(event *internal.EventMessage) {
	h.record("sessionStart")
}

func (h *fakeEventHandler) OnSessionStop(event *internal.EventMessage) {
	h.record("sessionStop")
}

func (h *fakeEventHandler) OnChargeDetailRecord(event *internal.EventMessage) {
	h.record("chargeDetailRecord")
}

func (h *fakeEventHandler) OnStatusChange(event *internal.EventMessage) {
	h.record("statusChange")
}

func (h *fakeEventHandler) count(kind string) int {
	h.mux.Lock()
	defer h.mux.Unlock()
	n := 0
	for _, e := range h.events {
		if e == kind {
			n++
		}
	}
	return n
}

func newTestConf() *config.Config {
	conf := &config.Config{}
	conf.Pool.Id = "pool-1"
	conf.Pool.OperatorId = "operator-1"
	conf.Pool.MaxStatusHistory = 15
	conf.Pool.MaxReservationMinutes = 30
	return conf
}

func newStartedHandler(t *testing.T, db *fakeDatabase, events *fakeEventHandler) *SystemHandler {
	t.Helper()
	handler := NewSystemHandler(newTestConf(), time.UTC)
	handler.SetDatabase(db)
	if events != nil {
		handler.SetEventHandler(events)
	}
	if err := handler.OnStart(); err != nil {
		t.Fatalf("start failed: %v", err)
	}
	return handler
}

func TestSystemHandlerRestoresTopology(t *testing.T) {
	db := newFakeDatabase()
	db.stations = []models.ChargingStation{
		{Id: "station-1", PoolId: "pool-1", IsEnabled: true, Status: "available", AdminStatus: "operational"},
		{Id: "station-2", PoolId: "pool-1", IsEnabled: false, Status: "available", AdminStatus: "outOfService"},
	}
	db.evses = []models.EVSE{
		{Id: "evse-1", StationId: "station-1", IsEnabled: true, Status: "available", AdminStatus: "operational"},
		{Id: "evse-2", StationId: "station-1", IsEnabled: false, Status: "available", AdminStatus: "outOfService"},
	}

	handler := newStartedHandler(t, db, nil)
	pool := handler.Pool()

	station, ok := pool.GetStation("station-1")
	if !ok {
		t.Fatalf("enabled station not restored")
	}
	if _, ok = pool.GetStation("station-2"); ok {
		t.Fatalf("disabled station restored")
	}
	evse, ok := station.GetEVSE("evse-1")
	if !ok {
		t.Fatalf("enabled evse not restored")
	}
	if evse.Status().Value != status.EVSEStatusAvailable {
		t.Fatalf("restored evse status %v", evse.Status().Value)
	}
	if _, ok = station.GetEVSE("evse-2"); ok {
		t.Fatalf("disabled evse restored")
	}
}

func TestSystemHandlerPersistsReservationLifecycle(t *testing.T) {
	db := newFakeDatabase()
	db.stations = []models.ChargingStation{
		{Id: "station-1", PoolId: "pool-1", IsEnabled: true, Status: "available", AdminStatus: "operational"},
	}
	db.evses = []models.EVSE{
		{Id: "evse-1", StationId: "station-1", IsEnabled: true, Status: "available", AdminStatus: "operational"},
	}
	events := &fakeEventHandler{}
	handler := newStartedHandler(t, db, events)

	reserve := handler.Reserve(context.Background(), core.ReserveRequest{EVSEId: "evse-1", ReservationId: "res-1", ProviderId: "provider-1"})
	if reserve.Result != core.ReservationSuccess {
		t.Fatalf("reserve failed: %v", reserve.Result)
	}
	if db.reservationCount() != 1 {
		t.Fatalf("reservation not persisted")
	}
	if events.count("newReservation") != 1 {
		t.Fatalf("reservation event not dispatched")
	}

	cancel := handler.CancelReservation(context.Background(), core.CancelReservationRequest{ReservationId: "res-1"})
	if cancel.Result != core.CancelReservationSuccess {
		t.Fatalf("cancel failed: %v", cancel.Result)
	}
	if db.reservationCount() != 0 {
		t.Fatalf("cancelled reservation not deleted")
	}
	if events.count("reservationCancelled") != 1 {
		t.Fatalf("cancel event not dispatched")
	}
}

func TestSystemHandlerPersistsSessionLifecycle(t *testing.T) {
	db := newFakeDatabase()
	db.stations = []models.ChargingStation{
		{Id: "station-1", PoolId: "pool-1", IsEnabled: true, Status: "available", AdminStatus: "operational"},
	}
	db.evses = []models.EVSE{
		{Id: "evse-1", StationId: "station-1", IsEnabled: true, Status: "available", AdminStatus: "operational"},
	}
	events := &fakeEventHandler{}
	handler := newStartedHandler(t, db, events)

	start := handler.RemoteStart(context.Background(), core.RemoteStartRequest{EVSEId: "evse-1", SessionId: "session-1", ProviderId: "provider-1"})
	if start.Result != core.RemoteStartSuccess {
		t.Fatalf("start failed: %v", start.Result)
	}
	if db.sessionCount() != 1 {
		t.Fatalf("session not persisted")
	}
	if events.count("sessionStart") != 1 {
		t.Fatalf("session start event not dispatched")
	}

	stop := handler.RemoteStop(context.Background(), core.RemoteStopRequest{SessionId: "session-1"})
	if stop.Result != core.RemoteStopSuccess {
		t.Fatalf("stop failed: %v", stop.Result)
	}
	if db.sessionCount() != 0 {
		t.Fatalf("ended session not deleted")
	}
	if db.recordCount() != 1 {
		t.Fatalf("charge detail record not persisted")
	}
	if events.count("sessionStop") != 1 {
		t.Fatalf("session stop event not dispatched")
	}
	if events.count("chargeDetailRecord") != 1 {
		t.Fatalf("charge detail record event not dispatched")
	}
}

func TestSystemHandlerAggregatesStatusUpward(t *testing.T) {
	db := newFakeDatabase()
	db.stations = []models.ChargingStation{
		{Id: "station-1", PoolId: "pool-1", IsEnabled: true, Status: "available", AdminStatus: "operational"},
	}
	db.evses = []models.EVSE{
		{Id: "evse-1", StationId: "station-1", IsEnabled: true, Status: "available", AdminStatus: "operational"},
	}
	handler := newStartedHandler(t, db, nil)

	start := handler.RemoteStart(context.Background(), core.RemoteStartRequest{EVSEId: "evse-1", SessionId: "session-1", ProviderId: "provider-1"})
	if start.Result != core.RemoteStartSuccess {
		t.Fatalf("start failed: %v", start.Result)
	}
	station, ok := handler.Pool().GetStation("station-1")
	if !ok {
		t.Fatalf("station not found")
	}
	if got := station.Status().Value; got != status.StationStatusInUse {
		t.Fatalf("station status after session start: got %v, want %v", got, status.StationStatusInUse)
	}
	if got := handler.Pool().Status().Value; got != status.PoolStatusInUse {
		t.Fatalf("pool status after session start: got %v, want %v", got, status.PoolStatusInUse)
	}

	stop := handler.RemoteStop(context.Background(), core.RemoteStopRequest{SessionId: "session-1"})
	if stop.Result != core.RemoteStopSuccess {
		t.Fatalf("stop failed: %v", stop.Result)
	}
	if got := station.Status().Value; got != status.StationStatusAvailable {
		t.Fatalf("station status after session stop: got %v, want %v", got, status.StationStatusAvailable)
	}
	if got := handler.Pool().Status().Value; got != status.PoolStatusAvailable {
		t.Fatalf("pool status after session stop: got %v, want %v", got, status.PoolStatusAvailable)
	}
}

func TestSystemHandlerStatusInfo(t *testing.T) {
	db := newFakeDatabase()
	db.stations = []models.ChargingStation{
		{Id: "station-1", PoolId: "pool-1", IsEnabled: true, Status: "available", AdminStatus: "operational"},
	}
	handler := newStartedHandler(t, db, nil)
	info := handler.StatusInfo()
	if info == "" || info == "pool is not running" {
		t.Fatalf("unexpected status info %q", info)
	}
}
