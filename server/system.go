package server

import (
	"context"
	"fmt"
	"sync"
	"time"

	"evpool/core"
	"evpool/internal"
	"evpool/internal/config"
	"evpool/metrics/counters"
	"evpool/models"
	"evpool/sessioncache"
	"evpool/status"
)

const featureName = "SystemHandler"

// SystemHandler owns the operator and its charging pool and connects the
// pool events to the persistence, notification and metrics subsystems.
type SystemHandler struct {
	conf         *config.Config
	logger       internal.LogHandler
	database     internal.Database
	eventHandler internal.EventHandler
	pusher       internal.MessageService
	cache        *sessioncache.Store
	location     *time.Location
	operator     *core.Operator
	pool         *core.ChargingPool

	activeReservations int
	activeSessions     int
	mux                sync.Mutex
}

func NewSystemHandler(conf *config.Config, location *time.Location) *SystemHandler {
	return &SystemHandler{
		conf:     conf,
		location: location,
	}
}

func (h *SystemHandler) SetLogger(logger internal.LogHandler) {
	h.logger = logger
}

func (h *SystemHandler) SetDatabase(database internal.Database) {
	h.database = database
}

func (h *SystemHandler) SetEventHandler(eventHandler internal.EventHandler) {
	h.eventHandler = eventHandler
}

func (h *SystemHandler) SetMessagePusher(pusher internal.MessageService) {
	h.pusher = pusher
}

func (h *SystemHandler) SetSessionCache(cache *sessioncache.Store) {
	h.cache = cache
}

func (h *SystemHandler) Pool() *core.ChargingPool {
	return h.pool
}

func (h *SystemHandler) Operator() *core.Operator {
	return h.operator
}

// OnStart builds the pool, restores the persisted topology and subscribes
// the operator feeds to the attached subsystems.
func (h *SystemHandler) OnStart() error {
	now := func() time.Time {
		return time.Now().In(h.location)
	}
	h.operator = core.NewOperator(h.conf.Pool.OperatorId, h.conf.Pool.MaxStatusHistory, now)
	if h.logger != nil {
		h.operator.SetLogger(h.logger)
	}

	pool, err := h.operator.CreatePool(h.conf.Pool.Id, func(p *core.ChargingPool) {
		p.SetStatusAggregator(status.AggregateStationStatus)
		if h.conf.Pool.Name != "" {
			p.SetName(h.conf.Pool.Name)
		}
		if h.conf.Pool.MaxReservationMinutes > 0 {
			p.SetMaxReservationDuration(time.Duration(h.conf.Pool.MaxReservationMinutes) * time.Minute)
		}
	})
	if err != nil {
		return fmt.Errorf("pool setup failed: %w", err)
	}
	h.pool = pool

	h.wireEvents()

	if h.database != nil {
		if err = h.loadTopology(); err != nil {
			return fmt.Errorf("topology load failed: %w", err)
		}
	}
	if h.logger != nil {
		h.logger.FeatureEvent(featureName, h.pool.Id, fmt.Sprintf("started with %v stations", len(h.pool.StationIds())))
	}
	return nil
}

// loadTopology rebuilds stations and charge points from their persisted
// projections. Disabled entries stay out of the pool.
func (h *SystemHandler) loadTopology() error {
	stations, err := h.database.GetChargingStations(h.pool.Id)
	if err != nil {
		return err
	}
	for _, cs := range stations {
		if !cs.IsEnabled {
			continue
		}
		_, err = h.pool.CreateStation(cs.Id, nil, status.AdminStatus(cs.AdminStatus), status.StationStatus(cs.Status), nil, nil)
		if err != nil {
			h.error(fmt.Sprintf("restoring station %s", cs.Id), err)
		}
	}
	evses, err := h.database.GetEVSEs(h.pool.Id)
	if err != nil {
		return err
	}
	for _, point := range evses {
		if !point.IsEnabled {
			continue
		}
		station, ok := h.pool.GetStation(point.StationId)
		if !ok {
			h.error(fmt.Sprintf("restoring evse %s", point.Id), fmt.Errorf("station %s not found", point.StationId))
			continue
		}
		adminStatus := status.AdminStatus(point.AdminStatus)
		evseStatus := status.EVSEStatus(point.Status)
		_, err = station.CreateEVSE(point.Id, func(e *core.EVSE) {
			if adminStatus != "" {
				e.SetAdminStatus(adminStatus)
			}
			if evseStatus != "" {
				e.SetStatus(evseStatus)
			}
		}, nil, nil)
		if err != nil {
			h.error(fmt.Sprintf("restoring evse %s", point.Id), err)
		}
	}
	return nil
}

func (h *SystemHandler) wireEvents() {
	// Every station joining the pool aggregates its EVSE statuses, no
	// matter which path created it.
	h.operator.OnStationAddition.OnNotification(func(_ time.Time, _ *core.ChargingPool, station *core.ChargingStation) {
		station.SetStatusAggregator(status.AggregateEVSEStatus)
	})
	h.operator.OnEVSEStatusChanged.Subscribe(func(event core.StatusChangedEvent[status.EVSEStatus]) {
		counters.CountStatusChange(h.pool.Id, event.Sender, string(event.NewStatus.Value))
		h.persistEVSE(event.Sender)
		station, _ := h.pool.FindStationByEVSE(event.Sender)
		stationId := ""
		if station != nil {
			stationId = station.Id
		}
		h.dispatchStatus(&internal.EventMessage{
			Type:      "statusChange",
			PoolId:    h.pool.Id,
			StationId: stationId,
			EVSEId:    event.Sender,
			Time:      event.Timestamp,
			Status:    string(event.NewStatus.Value),
			Info:      fmt.Sprintf("was %v", event.OldStatus.Value),
		})
	})
	h.operator.OnStationStatusChanged.Subscribe(func(event core.StatusChangedEvent[status.StationStatus]) {
		h.persistStation(event.Sender)
		h.dispatchStatus(&internal.EventMessage{
			Type:      "statusChange",
			PoolId:    h.pool.Id,
			StationId: event.Sender,
			Time:      event.Timestamp,
			Status:    string(event.NewStatus.Value),
			Info:      fmt.Sprintf("was %v", event.OldStatus.Value),
		})
	})
	h.operator.OnPoolStatusChanged.Subscribe(func(event core.StatusChangedEvent[status.PoolStatus]) {
		h.dispatchStatus(&internal.EventMessage{
			Type:   "statusChange",
			PoolId: event.Sender,
			Time:   event.Timestamp,
			Status: string(event.NewStatus.Value),
			Info:   fmt.Sprintf("was %v", event.OldStatus.Value),
		})
	})
	h.operator.OnNewReservation.Subscribe(func(event core.ReservationEvent) {
		reservation := event.Reservation
		if h.database != nil {
			if err := h.database.AddReservation(reservation); err != nil {
				h.error("storing reservation", err)
			}
		}
		counters.CountReservation(h.pool.Id, reservation.StationId)
		h.mux.Lock()
		h.activeReservations++
		counters.ObserveReservations(h.pool.Id, h.activeReservations)
		h.mux.Unlock()
		message := &internal.EventMessage{
			Type:          "newReservation",
			PoolId:        reservation.PoolId,
			StationId:     reservation.StationId,
			EVSEId:        reservation.EVSEId,
			Time:          event.Timestamp,
			ReservationId: reservation.Id,
			ProviderId:    reservation.ProviderId,
			Payload:       reservation,
		}
		if h.eventHandler != nil {
			h.eventHandler.OnNewReservation(message)
		}
		h.push(message)
	})
	h.operator.OnReservationCancelled.Subscribe(func(event core.ReservationCancelledEvent) {
		reservation := event.Reservation
		if h.database != nil {
			if err := h.database.DeleteReservation(reservation.Id); err != nil {
				h.error("deleting reservation", err)
			}
		}
		h.mux.Lock()
		if h.activeReservations > 0 {
			h.activeReservations--
		}
		counters.ObserveReservations(h.pool.Id, h.activeReservations)
		h.mux.Unlock()
		message := &internal.EventMessage{
			Type:          "reservationCancelled",
			PoolId:        reservation.PoolId,
			StationId:     reservation.StationId,
			EVSEId:        reservation.EVSEId,
			Time:          event.Timestamp,
			ReservationId: reservation.Id,
			ProviderId:    reservation.ProviderId,
			Info:          string(event.Reason),
			Payload:       reservation,
		}
		if h.eventHandler != nil {
			h.eventHandler.OnReservationCancelled(message)
		}
		h.push(message)
	})
	h.operator.OnNewSession.Subscribe(func(event core.SessionEvent) {
		session := event.Session
		if h.database != nil {
			if err := h.database.AddSession(session); err != nil {
				h.error("storing session", err)
			}
		}
		if h.cache != nil {
			if err := h.cache.Save(context.Background(), session); err != nil {
				h.error("caching session", err)
			}
		}
		counters.CountSession(h.pool.Id, session.StationId)
		h.mux.Lock()
		h.activeSessions++
		counters.ObserveSessions(h.pool.Id, h.activeSessions)
		h.mux.Unlock()
		message := &internal.EventMessage{
			Type:       "sessionStart",
			PoolId:     session.PoolId,
			StationId:  session.StationId,
			EVSEId:     session.EVSEId,
			Time:       event.Timestamp,
			SessionId:  session.Id,
			ProviderId: session.ProviderId,
			Status:     string(status.EVSEStatusCharging),
			Payload:    session,
		}
		if h.eventHandler != nil {
			h.eventHandler.OnSessionStart(message)
		}
		h.push(message)
	})
	h.operator.OnSessionEnded.Subscribe(func(event core.SessionEvent) {
		session := event.Session
		if h.database != nil {
			if err := h.database.DeleteSession(session.Id); err != nil {
				h.error("deleting session", err)
			}
		}
		if h.cache != nil {
			if err := h.cache.Delete(context.Background(), session.Id); err != nil {
				h.error("dropping cached session", err)
			}
		}
		h.mux.Lock()
		if h.activeSessions > 0 {
			h.activeSessions--
		}
		counters.ObserveSessions(h.pool.Id, h.activeSessions)
		h.mux.Unlock()
		message := &internal.EventMessage{
			Type:       "sessionStop",
			PoolId:     session.PoolId,
			StationId:  session.StationId,
			EVSEId:     session.EVSEId,
			Time:       event.Timestamp,
			SessionId:  session.Id,
			ProviderId: session.ProviderId,
			Payload:    session,
		}
		if h.eventHandler != nil {
			h.eventHandler.OnSessionStop(message)
		}
		h.push(message)
	})
	h.operator.OnNewChargeDetailRecord.Subscribe(func(event core.ChargeDetailRecordEvent) {
		record := event.Record
		if h.database != nil {
			if err := h.database.AddChargeDetailRecord(record); err != nil {
				h.error("storing charge detail record", err)
			}
		}
		counters.CountConsumedPower(h.pool.Id, record.StationId, float64(record.ConsumedWh()))
		message := &internal.EventMessage{
			Type:       "chargeDetailRecord",
			PoolId:     record.PoolId,
			StationId:  record.StationId,
			EVSEId:     record.EVSEId,
			Time:       event.Timestamp,
			SessionId:  record.SessionId,
			ProviderId: record.ProviderId,
			Info:       fmt.Sprintf("%d Wh", record.ConsumedWh()),
			Payload:    record,
		}
		if h.eventHandler != nil {
			h.eventHandler.OnChargeDetailRecord(message)
		}
		h.push(message)
	})
}

func (h *SystemHandler) persistEVSE(evseId string) {
	if h.database == nil {
		return
	}
	station, ok := h.pool.FindStationByEVSE(evseId)
	if !ok {
		return
	}
	evse, ok := station.GetEVSE(evseId)
	if !ok {
		return
	}
	snapshot := evse.Snapshot()
	if err := h.database.UpdateEVSE(&snapshot); err != nil {
		h.error(fmt.Sprintf("updating evse %s", evseId), err)
	}
}

func (h *SystemHandler) persistStation(stationId string) {
	if h.database == nil {
		return
	}
	station, ok := h.pool.GetStation(stationId)
	if !ok {
		return
	}
	snapshot := station.Snapshot()
	if err := h.database.UpdateChargingStation(&snapshot); err != nil {
		h.error(fmt.Sprintf("updating station %s", stationId), err)
	}
}

func (h *SystemHandler) dispatchStatus(message *internal.EventMessage) {
	if h.eventHandler != nil {
		h.eventHandler.OnStatusChange(message)
	}
	h.push(message)
}

func (h *SystemHandler) push(message internal.Message) {
	if h.pusher == nil {
		return
	}
	if err := h.pusher.Send(message); err != nil {
		h.error("pushing message", err)
	}
}

func (h *SystemHandler) error(text string, err error) {
	if h.logger != nil {
		h.logger.Error(text, err)
	}
}

// CheckExpiredReservations walks the pool and releases reservations whose
// window has passed. Driven by the sweep ticker.
func (h *SystemHandler) CheckExpiredReservations() {
	if h.pool == nil {
		return
	}
	h.pool.CheckExpiredReservations(time.Now().In(h.location))
}

// StatusInfo renders a short operator readable overview, used by the bot
// status command.
func (h *SystemHandler) StatusInfo() string {
	if h.pool == nil {
		return "pool is not running"
	}
	current := h.pool.Status()
	info := fmt.Sprintf("Pool *%v*: `%v`\n", h.pool.Id, current.Value)
	for _, station := range h.pool.Stations() {
		st := station.Status()
		info += fmt.Sprintf("%v: `%v`", station.Id, st.Value)
		report := station.StatusReport()
		busy := report[status.EVSEStatusCharging] + report[status.EVSEStatusReserved]
		total := 0
		for _, count := range report {
			total += count
		}
		info += fmt.Sprintf(" \\(%v/%v busy\\)\n", busy, total)
	}
	return info
}

// Reserve forwards a reservation command to the pool.
func (h *SystemHandler) Reserve(ctx context.Context, request core.ReserveRequest) core.ReservationResult {
	if h.pool == nil {
		return core.ReservationResult{Result: core.ReservationUnspecified}
	}
	return h.pool.Reserve(ctx, request)
}

func (h *SystemHandler) CancelReservation(ctx context.Context, request core.CancelReservationRequest) core.CancelReservationResult {
	if h.pool == nil {
		return core.CancelReservationResult{Result: core.CancelReservationUnspecified}
	}
	if request.Reason == "" {
		request.Reason = models.CancelReasonRequested
	}
	return h.pool.CancelReservation(ctx, request)
}

func (h *SystemHandler) RemoteStart(ctx context.Context, request core.RemoteStartRequest) core.RemoteStartResult {
	if h.pool == nil {
		return core.RemoteStartResult{Result: core.RemoteStartUnspecified}
	}
	return h.pool.RemoteStart(ctx, request)
}

func (h *SystemHandler) RemoteStop(ctx context.Context, request core.RemoteStopRequest) core.RemoteStopResult {
	if h.pool == nil {
		return core.RemoteStopResult{Result: core.RemoteStopUnspecified}
	}
	return h.pool.RemoteStop(ctx, request)
}
