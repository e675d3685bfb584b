package core

import (
	"context"
	"time"

	"sync"

	"evpool/internal"
	"evpool/models"
	"evpool/status"
	"evpool/utility"
)

// DefaultMaxReservationDuration is the ceiling applied to requested
// reservation durations.
const DefaultMaxReservationDuration = 30 * time.Minute

// EVSE is the single physical charge point a vehicle plugs into, the unit
// of reservation and session exclusivity. It holds at most one reservation
// and at most one active session at any instant and enforces that under its
// own lock; parent entities trust its result codes instead of re-validating.
type EVSE struct {
	Id        string
	StationId string
	PoolId    string

	maxReservationDuration time.Duration
	clock                  Clock
	logger                 internal.LogHandler

	statusSchedule      *status.Schedule[status.EVSEStatus]
	adminStatusSchedule *status.Schedule[status.AdminStatus]

	reservation *models.ChargingReservation
	session     *models.ChargingSession
	meterWh     int
	mux         sync.Mutex

	OnStatusChanged         *Feed[StatusChangedEvent[status.EVSEStatus]]
	OnAdminStatusChanged    *Feed[StatusChangedEvent[status.AdminStatus]]
	OnNewReservation        *Feed[ReservationEvent]
	OnReservationCancelled  *Feed[ReservationCancelledEvent]
	OnNewSession            *Feed[SessionEvent]
	OnSessionEnded          *Feed[SessionEvent]
	OnNewChargeDetailRecord *Feed[ChargeDetailRecordEvent]
}

func NewEVSE(id, stationId, poolId string, historyDepth int, clock Clock) *EVSE {
	if clock == nil {
		clock = time.Now
	}
	e := &EVSE{
		Id:                     id,
		StationId:              stationId,
		PoolId:                 poolId,
		maxReservationDuration: DefaultMaxReservationDuration,
		clock:                  clock,

		OnStatusChanged:         NewFeed[StatusChangedEvent[status.EVSEStatus]]("evse status changed"),
		OnAdminStatusChanged:    NewFeed[StatusChangedEvent[status.AdminStatus]]("evse admin status changed"),
		OnNewReservation:        NewFeed[ReservationEvent]("evse new reservation"),
		OnReservationCancelled:  NewFeed[ReservationCancelledEvent]("evse reservation cancelled"),
		OnNewSession:            NewFeed[SessionEvent]("evse new session"),
		OnSessionEnded:          NewFeed[SessionEvent]("evse session ended"),
		OnNewChargeDetailRecord: NewFeed[ChargeDetailRecordEvent]("evse new charge detail record"),
	}
	e.statusSchedule = status.NewSchedule(status.EVSEStatusUnspecified, historyDepth, clock)
	e.adminStatusSchedule = status.NewSchedule(status.AdminStatusUnspecified, historyDepth, clock)
	e.statusSchedule.OnChange(func(ts time.Time, old, new status.Timestamped[status.EVSEStatus]) {
		e.OnStatusChanged.Publish(StatusChangedEvent[status.EVSEStatus]{
			Timestamp: ts,
			Sender:    e.Id,
			OldStatus: old,
			NewStatus: new,
		})
	})
	e.adminStatusSchedule.OnChange(func(ts time.Time, old, new status.Timestamped[status.AdminStatus]) {
		e.OnAdminStatusChanged.Publish(StatusChangedEvent[status.AdminStatus]{
			Timestamp: ts,
			Sender:    e.Id,
			OldStatus: old,
			NewStatus: new,
		})
	})
	return e
}

func (e *EVSE) SetLogger(logger internal.LogHandler) {
	e.logger = logger
	e.OnStatusChanged.SetLogger(logger)
	e.OnAdminStatusChanged.SetLogger(logger)
	e.OnNewReservation.SetLogger(logger)
	e.OnReservationCancelled.SetLogger(logger)
	e.OnNewSession.SetLogger(logger)
	e.OnSessionEnded.SetLogger(logger)
	e.OnNewChargeDetailRecord.SetLogger(logger)
}

func (e *EVSE) SetMaxReservationDuration(d time.Duration) {
	if d > 0 {
		e.maxReservationDuration = d
	}
}

func (e *EVSE) Status() status.Timestamped[status.EVSEStatus] {
	return e.statusSchedule.Current()
}

func (e *EVSE) AdminStatus() status.Timestamped[status.AdminStatus] {
	return e.adminStatusSchedule.Current()
}

func (e *EVSE) StatusSchedule() *status.Schedule[status.EVSEStatus] {
	return e.statusSchedule
}

func (e *EVSE) AdminStatusSchedule() *status.Schedule[status.AdminStatus] {
	return e.adminStatusSchedule
}

func (e *EVSE) SetStatus(s status.EVSEStatus) {
	e.statusSchedule.Insert(s)
}

func (e *EVSE) SetAdminStatus(s status.AdminStatus) {
	e.adminStatusSchedule.Insert(s)
}

// SetMeterValue updates the energy counter used for charge detail records.
func (e *EVSE) SetMeterValue(wh int) {
	e.mux.Lock()
	e.meterWh = wh
	e.mux.Unlock()
}

// Reservation returns the currently held reservation, or nil.
func (e *EVSE) Reservation() *models.ChargingReservation {
	e.mux.Lock()
	defer e.mux.Unlock()
	return e.reservation
}

// Session returns the currently active session, or nil.
func (e *EVSE) Session() *models.ChargingSession {
	e.mux.Lock()
	defer e.mux.Unlock()
	return e.session
}

// Snapshot produces the persisted projection of this EVSE.
func (e *EVSE) Snapshot() models.EVSE {
	return models.EVSE{
		Id:          e.Id,
		StationId:   e.StationId,
		IsEnabled:   e.AdminStatus().Value == status.AdminStatusOperational,
		Status:      string(e.Status().Value),
		AdminStatus: string(e.AdminStatus().Value),
	}
}

// expireLocked removes a lapsed reservation. Caller holds e.mux; the caller
// publishes the returned reservation as cancelled after unlocking.
func (e *EVSE) expireLocked(now time.Time) *models.ChargingReservation {
	if e.reservation == nil || !e.reservation.IsExpired(now) {
		return nil
	}
	expired := e.reservation
	e.reservation = nil
	return expired
}

// CheckExpiredReservation cancels the held reservation once its duration
// has elapsed with no session started. Driven by the owner's sweep; the
// EVSE does not time expiry itself.
func (e *EVSE) CheckExpiredReservation(now time.Time) {
	e.mux.Lock()
	expired := e.expireLocked(now)
	stillActive := e.session != nil
	e.mux.Unlock()

	if expired == nil {
		return
	}
	if !stillActive {
		e.statusSchedule.InsertAt(status.EVSEStatusAvailable, now)
	}
	e.OnReservationCancelled.Publish(ReservationCancelledEvent{
		Timestamp:   now,
		Sender:      e.Id,
		Reservation: expired,
		Reason:      models.CancelReasonExpired,
	})
}

// Reserve places a time-bounded exclusive claim on this EVSE.
func (e *EVSE) Reserve(ctx context.Context, request ReserveRequest) ReservationResult {
	result := ReservationResult{EventTrackingId: request.EventTrackingId}
	if ctx != nil && ctx.Err() != nil {
		result.Result = ReservationTimeout
		return result
	}
	now := request.Timestamp
	if now.IsZero() {
		now = e.clock()
	}

	switch e.AdminStatus().Value {
	case status.AdminStatusOperational:
	case status.AdminStatusUnspecified:
	default:
		result.Result = ReservationAdminDown
		return result
	}
	switch e.Status().Value {
	case status.EVSEStatusOffline:
		result.Result = ReservationOffline
		return result
	case status.EVSEStatusOutOfService, status.EVSEStatusFaulted:
		result.Result = ReservationOutOfService
		return result
	}

	e.mux.Lock()
	expired := e.expireLocked(now)
	if e.reservation != nil {
		e.mux.Unlock()
		result.Result = ReservationAlreadyReserved
		return result
	}

	duration := request.Duration
	if duration <= 0 || duration > e.maxReservationDuration {
		duration = e.maxReservationDuration
	}
	startTime := request.StartTime
	if startTime.IsZero() {
		startTime = now
	}
	reservationId := request.ReservationId
	if reservationId == "" {
		reservationId = utility.NewUUID()
	}
	reservation := &models.ChargingReservation{
		Id:           reservationId,
		EVSEId:       e.Id,
		StationId:    e.StationId,
		PoolId:       e.PoolId,
		ProviderId:   request.ProviderId,
		AccountId:    request.AccountId,
		ProductId:    request.ProductId,
		StartTime:    startTime,
		Duration:     duration,
		AuthTokens:   request.AuthTokens,
		AuthAccounts: request.AuthAccounts,
		AuthPINs:     request.AuthPINs,
		Created:      now,
	}
	e.reservation = reservation
	inSession := e.session != nil
	e.mux.Unlock()

	if expired != nil {
		e.OnReservationCancelled.Publish(ReservationCancelledEvent{
			Timestamp:   now,
			Sender:      e.Id,
			Reservation: expired,
			Reason:      models.CancelReasonExpired,
		})
	}
	// A live session keeps the operational status at charging; the stop
	// path switches to reserved when the reservation is still held.
	if !inSession {
		e.statusSchedule.InsertAt(status.EVSEStatusReserved, now)
	}
	e.OnNewReservation.Publish(ReservationEvent{
		Timestamp:   now,
		Sender:      e.Id,
		Reservation: reservation,
	})

	result.Result = ReservationSuccess
	result.Reservation = reservation
	return result
}

// CancelReservation removes the held reservation when the id matches.
func (e *EVSE) CancelReservation(ctx context.Context, request CancelReservationRequest) CancelReservationResult {
	result := CancelReservationResult{
		ReservationId:   request.ReservationId,
		EventTrackingId: request.EventTrackingId,
	}
	if ctx != nil && ctx.Err() != nil {
		result.Result = CancelReservationTimeout
		return result
	}
	now := request.Timestamp
	if now.IsZero() {
		now = e.clock()
	}

	e.mux.Lock()
	if e.reservation == nil || e.reservation.Id != request.ReservationId {
		e.mux.Unlock()
		result.Result = CancelReservationUnknownId
		return result
	}
	cancelled := e.reservation
	e.reservation = nil
	stillActive := e.session != nil
	e.mux.Unlock()

	if !stillActive {
		e.statusSchedule.InsertAt(status.EVSEStatusAvailable, now)
	}
	reason := request.Reason
	if reason == "" {
		reason = models.CancelReasonRequested
	}
	e.OnReservationCancelled.Publish(ReservationCancelledEvent{
		Timestamp:   now,
		Sender:      e.Id,
		Reservation: cancelled,
		Reason:      reason,
	})

	result.Result = CancelReservationSuccess
	return result
}

// RemoteStart begins a charging session. A session may only start when the
// EVSE has no reservation or holds one the requesting party may consume;
// consumption removes the reservation.
func (e *EVSE) RemoteStart(ctx context.Context, request RemoteStartRequest) RemoteStartResult {
	result := RemoteStartResult{EventTrackingId: request.EventTrackingId}
	if ctx != nil && ctx.Err() != nil {
		result.Result = RemoteStartTimeout
		return result
	}
	now := request.Timestamp
	if now.IsZero() {
		now = e.clock()
	}

	switch e.AdminStatus().Value {
	case status.AdminStatusOperational:
	case status.AdminStatusUnspecified:
	default:
		result.Result = RemoteStartAdminDown
		return result
	}
	switch e.Status().Value {
	case status.EVSEStatusOffline:
		result.Result = RemoteStartOffline
		return result
	case status.EVSEStatusOutOfService, status.EVSEStatusFaulted:
		result.Result = RemoteStartOutOfService
		return result
	}

	e.mux.Lock()
	if e.session != nil {
		e.mux.Unlock()
		result.Result = RemoteStartAlreadyInUse
		return result
	}
	expired := e.expireLocked(now)

	var consumed *models.ChargingReservation
	reservationId := ""
	if e.reservation != nil {
		matches := request.ReservationId != "" && request.ReservationId == e.reservation.Id
		if !matches && !e.reservation.AuthorizedFor(request.ProviderId, request.AccountId) {
			e.mux.Unlock()
			if expired != nil {
				e.publishExpired(expired, now)
			}
			result.Result = RemoteStartReserved
			return result
		}
		consumed = e.reservation
		reservationId = consumed.Id
		e.reservation = nil
	}

	sessionId := request.SessionId
	if sessionId == "" {
		sessionId = utility.NewUUID()
	}
	session := &models.ChargingSession{
		Id:            sessionId,
		EVSEId:        e.Id,
		StationId:     e.StationId,
		PoolId:        e.PoolId,
		ReservationId: reservationId,
		ProviderId:    request.ProviderId,
		AccountId:     request.AccountId,
		ProductId:     request.ProductId,
		TimeStart:     now,
		MeterStart:    e.meterWh,
	}
	e.session = session
	e.mux.Unlock()

	if expired != nil {
		e.publishExpired(expired, now)
	}
	if consumed != nil {
		e.OnReservationCancelled.Publish(ReservationCancelledEvent{
			Timestamp:   now,
			Sender:      e.Id,
			Reservation: consumed,
			Reason:      models.CancelReasonConsumed,
		})
	}
	e.statusSchedule.InsertAt(status.EVSEStatusCharging, now)
	e.OnNewSession.Publish(SessionEvent{
		Timestamp: now,
		Sender:    e.Id,
		Session:   session,
	})

	result.Result = RemoteStartSuccess
	result.Session = session
	return result
}

func (e *EVSE) publishExpired(expired *models.ChargingReservation, now time.Time) {
	e.OnReservationCancelled.Publish(ReservationCancelledEvent{
		Timestamp:   now,
		Sender:      e.Id,
		Reservation: expired,
		Reason:      models.CancelReasonExpired,
	})
}

// RemoteStop terminates the active session and produces the charge detail
// record.
func (e *EVSE) RemoteStop(ctx context.Context, request RemoteStopRequest) RemoteStopResult {
	result := RemoteStopResult{
		SessionId:       request.SessionId,
		EventTrackingId: request.EventTrackingId,
	}
	if ctx != nil && ctx.Err() != nil {
		result.Result = RemoteStopTimeout
		return result
	}
	now := request.Timestamp
	if now.IsZero() {
		now = e.clock()
	}

	e.mux.Lock()
	if e.session == nil || e.session.Id != request.SessionId {
		e.mux.Unlock()
		result.Result = RemoteStopInvalidSessionId
		return result
	}
	session := e.session
	e.session = nil

	// The reservation consumed at session start is long gone; a
	// still-present one belongs to a later Reserve call and survives
	// unless the request asks to close it.
	var closed *models.ChargingReservation
	if e.reservation != nil && request.ReservationHandling == models.ReservationHandlingClose {
		closed = e.reservation
		e.reservation = nil
	}
	record := &models.ChargeDetailRecord{
		SessionId:     session.Id,
		EVSEId:        e.Id,
		StationId:     e.StationId,
		PoolId:        e.PoolId,
		ReservationId: session.ReservationId,
		ProviderId:    session.ProviderId,
		AccountId:     session.AccountId,
		TimeStart:     session.TimeStart,
		TimeStop:      now,
		MeterStart:    session.MeterStart,
		MeterStop:     e.meterWh,
		StopReason:    "remote",
	}
	reserved := e.reservation != nil
	e.mux.Unlock()

	if closed != nil {
		e.OnReservationCancelled.Publish(ReservationCancelledEvent{
			Timestamp:   now,
			Sender:      e.Id,
			Reservation: closed,
			Reason:      models.CancelReasonRequested,
		})
	}
	if reserved {
		e.statusSchedule.InsertAt(status.EVSEStatusReserved, now)
	} else {
		e.statusSchedule.InsertAt(status.EVSEStatusAvailable, now)
	}
	e.OnSessionEnded.Publish(SessionEvent{
		Timestamp: now,
		Sender:    e.Id,
		Session:   session,
	})
	e.OnNewChargeDetailRecord.Publish(ChargeDetailRecordEvent{
		Timestamp: now,
		Sender:    e.Id,
		Record:    record,
	})

	result.Result = RemoteStopSuccess
	result.Record = record
	return result
}
