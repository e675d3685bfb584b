package core

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"evpool/internal"
	"evpool/models"
	"evpool/status"
	"evpool/utility"
	"evpool/votes"
)

// ReserveRequestEvent fires before a pool reservation command is dispatched.
type ReserveRequestEvent struct {
	Timestamp time.Time
	Sender    string
	Request   ReserveRequest
}

// ReserveResponseEvent fires after a pool reservation command returned,
// success or not, carrying the measured wall-clock runtime.
type ReserveResponseEvent struct {
	Timestamp time.Time
	Sender    string
	Request   ReserveRequest
	Result    ReservationResult
	Runtime   time.Duration
}

type CancelReservationRequestEvent struct {
	Timestamp time.Time
	Sender    string
	Request   CancelReservationRequest
}

type CancelReservationResponseEvent struct {
	Timestamp time.Time
	Sender    string
	Request   CancelReservationRequest
	Result    CancelReservationResult
	Runtime   time.Duration
}

type RemoteStartRequestEvent struct {
	Timestamp time.Time
	Sender    string
	Request   RemoteStartRequest
}

type RemoteStartResponseEvent struct {
	Timestamp time.Time
	Sender    string
	Request   RemoteStartRequest
	Result    RemoteStartResult
	Runtime   time.Duration
}

type RemoteStopRequestEvent struct {
	Timestamp time.Time
	Sender    string
	Request   RemoteStopRequest
}

type RemoteStopResponseEvent struct {
	Timestamp time.Time
	Sender    string
	Request   RemoteStopRequest
	Result    RemoteStopResult
	Runtime   time.Duration
}

// ChargingPool owns a set of charging stations, aggregates their status,
// routes reservation and session commands to the owning station and
// re-publishes every child event toward the operator level. The routing
// maps are a superset cache of the union of the stations' own maps, kept so
// a command can be routed by id without searching every station.
type ChargingPool struct {
	Id         string
	OperatorId string

	historyDepth           int
	maxReservationDuration time.Duration
	clock                  Clock
	logger                 internal.LogHandler

	stations      map[string]*ChargingStation
	unsubscribers map[string][]func()
	mux           sync.Mutex

	// reservation id -> station id, session id -> station id
	reservations sync.Map
	sessions     sync.Map

	statusSchedule      *status.Schedule[status.PoolStatus]
	adminStatusSchedule *status.Schedule[status.AdminStatus]
	aggregator          func(status.StationStatusReport) status.PoolStatus

	name         string
	address      models.Address
	geoLocation  models.GeoCoordinate
	openingTimes string

	OnStationAddition *votes.Notifier[*ChargingPool, *ChargingStation]
	OnStationRemoval  *votes.Notifier[*ChargingPool, *ChargingStation]
	OnEVSEAddition    *votes.Notifier[*ChargingStation, *EVSE]
	OnEVSERemoval     *votes.Notifier[*ChargingStation, *EVSE]

	OnStatusChanged      *Feed[StatusChangedEvent[status.PoolStatus]]
	OnAdminStatusChanged *Feed[StatusChangedEvent[status.AdminStatus]]
	OnDataChanged        *Feed[DataChangedEvent]

	OnStationStatusChanged      *Feed[StatusChangedEvent[status.StationStatus]]
	OnStationAdminStatusChanged *Feed[StatusChangedEvent[status.AdminStatus]]
	OnEVSEStatusChanged         *Feed[StatusChangedEvent[status.EVSEStatus]]
	OnEVSEAdminStatusChanged    *Feed[StatusChangedEvent[status.AdminStatus]]
	OnNewReservation            *Feed[ReservationEvent]
	OnReservationCancelled      *Feed[ReservationCancelledEvent]
	OnNewSession                *Feed[SessionEvent]
	OnSessionEnded              *Feed[SessionEvent]
	OnNewChargeDetailRecord     *Feed[ChargeDetailRecordEvent]

	OnReserveRequest            *Feed[ReserveRequestEvent]
	OnReserveResponse           *Feed[ReserveResponseEvent]
	OnCancelReservationRequest  *Feed[CancelReservationRequestEvent]
	OnCancelReservationResponse *Feed[CancelReservationResponseEvent]
	OnRemoteStartRequest        *Feed[RemoteStartRequestEvent]
	OnRemoteStartResponse       *Feed[RemoteStartResponseEvent]
	OnRemoteStopRequest         *Feed[RemoteStopRequestEvent]
	OnRemoteStopResponse        *Feed[RemoteStopResponseEvent]
}

func NewChargingPool(id, operatorId string, historyDepth int, clock Clock) *ChargingPool {
	if clock == nil {
		clock = time.Now
	}
	if historyDepth <= 0 {
		historyDepth = status.DefaultMaxHistory
	}
	p := &ChargingPool{
		Id:                     id,
		OperatorId:             operatorId,
		historyDepth:           historyDepth,
		maxReservationDuration: DefaultMaxReservationDuration,
		clock:                  clock,
		stations:               make(map[string]*ChargingStation),
		unsubscribers:          make(map[string][]func()),

		OnStationAddition: votes.NewNotifier[*ChargingPool, *ChargingStation](),
		OnStationRemoval:  votes.NewNotifier[*ChargingPool, *ChargingStation](),
		OnEVSEAddition:    votes.NewNotifier[*ChargingStation, *EVSE](),
		OnEVSERemoval:     votes.NewNotifier[*ChargingStation, *EVSE](),

		OnStatusChanged:      NewFeed[StatusChangedEvent[status.PoolStatus]]("pool status changed"),
		OnAdminStatusChanged: NewFeed[StatusChangedEvent[status.AdminStatus]]("pool admin status changed"),
		OnDataChanged:        NewFeed[DataChangedEvent]("pool data changed"),

		OnStationStatusChanged:      NewFeed[StatusChangedEvent[status.StationStatus]]("station status changed"),
		OnStationAdminStatusChanged: NewFeed[StatusChangedEvent[status.AdminStatus]]("station admin status changed"),
		OnEVSEStatusChanged:         NewFeed[StatusChangedEvent[status.EVSEStatus]]("evse status changed"),
		OnEVSEAdminStatusChanged:    NewFeed[StatusChangedEvent[status.AdminStatus]]("evse admin status changed"),
		OnNewReservation:            NewFeed[ReservationEvent]("new reservation"),
		OnReservationCancelled:      NewFeed[ReservationCancelledEvent]("reservation cancelled"),
		OnNewSession:                NewFeed[SessionEvent]("new session"),
		OnSessionEnded:              NewFeed[SessionEvent]("session ended"),
		OnNewChargeDetailRecord:     NewFeed[ChargeDetailRecordEvent]("new charge detail record"),

		OnReserveRequest:            NewFeed[ReserveRequestEvent]("reserve request"),
		OnReserveResponse:           NewFeed[ReserveResponseEvent]("reserve response"),
		OnCancelReservationRequest:  NewFeed[CancelReservationRequestEvent]("cancel reservation request"),
		OnCancelReservationResponse: NewFeed[CancelReservationResponseEvent]("cancel reservation response"),
		OnRemoteStartRequest:        NewFeed[RemoteStartRequestEvent]("remote start request"),
		OnRemoteStartResponse:       NewFeed[RemoteStartResponseEvent]("remote start response"),
		OnRemoteStopRequest:         NewFeed[RemoteStopRequestEvent]("remote stop request"),
		OnRemoteStopResponse:        NewFeed[RemoteStopResponseEvent]("remote stop response"),
	}
	p.statusSchedule = status.NewSchedule(status.PoolStatusUnspecified, historyDepth, clock)
	p.adminStatusSchedule = status.NewSchedule(status.AdminStatusUnspecified, historyDepth, clock)
	p.statusSchedule.OnChange(func(ts time.Time, old, new status.Timestamped[status.PoolStatus]) {
		p.OnStatusChanged.Publish(StatusChangedEvent[status.PoolStatus]{
			Timestamp: ts,
			Sender:    p.Id,
			OldStatus: old,
			NewStatus: new,
		})
	})
	p.adminStatusSchedule.OnChange(func(ts time.Time, old, new status.Timestamped[status.AdminStatus]) {
		p.OnAdminStatusChanged.Publish(StatusChangedEvent[status.AdminStatus]{
			Timestamp: ts,
			Sender:    p.Id,
			OldStatus: old,
			NewStatus: new,
		})
	})
	return p
}

func (p *ChargingPool) SetLogger(logger internal.LogHandler) {
	p.logger = logger
	for _, feed := range []interface{ SetLogger(internal.LogHandler) }{
		p.OnStatusChanged, p.OnAdminStatusChanged, p.OnDataChanged,
		p.OnStationStatusChanged, p.OnStationAdminStatusChanged,
		p.OnEVSEStatusChanged, p.OnEVSEAdminStatusChanged,
		p.OnNewReservation, p.OnReservationCancelled,
		p.OnNewSession, p.OnSessionEnded, p.OnNewChargeDetailRecord,
		p.OnReserveRequest, p.OnReserveResponse,
		p.OnCancelReservationRequest, p.OnCancelReservationResponse,
		p.OnRemoteStartRequest, p.OnRemoteStartResponse,
		p.OnRemoteStopRequest, p.OnRemoteStopResponse,
	} {
		feed.SetLogger(logger)
	}
}

func (p *ChargingPool) SetMaxReservationDuration(d time.Duration) {
	if d > 0 {
		p.maxReservationDuration = d
	}
}

// SetStatusAggregator installs the station-to-pool aggregation delegate.
// Without one the pool status is driven only by direct SetStatus calls.
func (p *ChargingPool) SetStatusAggregator(aggregator func(status.StationStatusReport) status.PoolStatus) {
	p.mux.Lock()
	p.aggregator = aggregator
	p.mux.Unlock()
}

func (p *ChargingPool) Status() status.Timestamped[status.PoolStatus] {
	return p.statusSchedule.Current()
}

func (p *ChargingPool) AdminStatus() status.Timestamped[status.AdminStatus] {
	return p.adminStatusSchedule.Current()
}

func (p *ChargingPool) StatusSchedule() *status.Schedule[status.PoolStatus] {
	return p.statusSchedule
}

func (p *ChargingPool) AdminStatusSchedule() *status.Schedule[status.AdminStatus] {
	return p.adminStatusSchedule
}

func (p *ChargingPool) SetStatus(st status.PoolStatus) {
	p.statusSchedule.Insert(st)
}

func (p *ChargingPool) SetAdminStatus(st status.AdminStatus) {
	p.adminStatusSchedule.Insert(st)
}

func (p *ChargingPool) Name() string {
	p.mux.Lock()
	defer p.mux.Unlock()
	return p.name
}

func (p *ChargingPool) SetName(name string) {
	p.mux.Lock()
	p.name = name
	p.mux.Unlock()
	p.OnDataChanged.Publish(DataChangedEvent{
		Timestamp: p.clock(),
		Sender:    p.Id,
		Property:  "name",
		Value:     name,
	})
}

func (p *ChargingPool) Address() models.Address {
	p.mux.Lock()
	defer p.mux.Unlock()
	return p.address
}

// SetAddress mutates the pool address and resets every station to inherit
// the new value.
func (p *ChargingPool) SetAddress(address models.Address) {
	p.mux.Lock()
	p.address = address
	p.mux.Unlock()
	for _, station := range p.Stations() {
		station.inheritAddress(address)
	}
	p.OnDataChanged.Publish(DataChangedEvent{
		Timestamp: p.clock(),
		Sender:    p.Id,
		Property:  "address",
		Value:     address,
	})
}

func (p *ChargingPool) GeoLocation() models.GeoCoordinate {
	p.mux.Lock()
	defer p.mux.Unlock()
	return p.geoLocation
}

func (p *ChargingPool) SetGeoLocation(location models.GeoCoordinate) {
	p.mux.Lock()
	p.geoLocation = location
	p.mux.Unlock()
	for _, station := range p.Stations() {
		station.inheritGeoLocation(location)
	}
	p.OnDataChanged.Publish(DataChangedEvent{
		Timestamp: p.clock(),
		Sender:    p.Id,
		Property:  "geo_location",
		Value:     location,
	})
}

func (p *ChargingPool) OpeningTimes() string {
	p.mux.Lock()
	defer p.mux.Unlock()
	return p.openingTimes
}

func (p *ChargingPool) SetOpeningTimes(openingTimes string) {
	p.mux.Lock()
	p.openingTimes = openingTimes
	p.mux.Unlock()
	for _, station := range p.Stations() {
		station.inheritOpeningTimes(openingTimes)
	}
	p.OnDataChanged.Publish(DataChangedEvent{
		Timestamp: p.clock(),
		Sender:    p.Id,
		Property:  "opening_times",
		Value:     openingTimes,
	})
}

// CreateStation adds a new charging station after a voting round. Without
// an error continuation a failure is returned as an error; with one the
// failure is reported there and no station is returned.
func (p *ChargingPool) CreateStation(id string, configurator func(*ChargingStation), adminStatus status.AdminStatus, stationStatus status.StationStatus, onSuccess func(*ChargingStation), onError func(error)) (*ChargingStation, error) {
	fail := func(err error) (*ChargingStation, error) {
		if p.logger != nil {
			p.logger.Error("station creation failed", err)
		}
		if onError != nil {
			onError(err)
			return nil, nil
		}
		return nil, err
	}
	if id == "" {
		return fail(fmt.Errorf("station creation failed: empty identifier"))
	}
	p.mux.Lock()
	if _, ok := p.stations[id]; ok {
		p.mux.Unlock()
		return fail(fmt.Errorf("station with id %s already exists", id))
	}
	p.mux.Unlock()

	station := NewChargingStation(id, p.Id, p.historyDepth, p.clock)
	station.SetMaxReservationDuration(p.maxReservationDuration)
	if p.logger != nil {
		station.SetLogger(p.logger)
	}
	p.mux.Lock()
	station.inheritAddress(p.address)
	station.inheritGeoLocation(p.geoLocation)
	station.inheritOpeningTimes(p.openingTimes)
	p.mux.Unlock()
	if configurator != nil {
		configurator(station)
	}
	if adminStatus == "" {
		adminStatus = status.AdminStatusOperational
	}
	if stationStatus == "" {
		stationStatus = status.StationStatusAvailable
	}

	now := p.clock()
	vote := p.OnStationAddition.SendVoting(now, p, station)
	if vote.IsVetoed() {
		return fail(fmt.Errorf("station addition vetoed: %s", id))
	}

	p.mux.Lock()
	if _, ok := p.stations[id]; ok {
		p.mux.Unlock()
		return fail(fmt.Errorf("station with id %s already exists", id))
	}
	p.stations[id] = station
	p.mux.Unlock()

	p.wireStation(station)
	station.SetAdminStatus(adminStatus)
	station.SetStatus(stationStatus)
	p.OnStationAddition.SendNotification(now, p, station)
	if p.logger != nil {
		p.logger.FeatureEvent("CreateStation", p.Id, fmt.Sprintf("added station %s", id))
	}
	if onSuccess != nil {
		onSuccess(station)
	}
	return station, nil
}

// RemoveStation removes a station after a voting round and drops every
// routing entry it owned.
func (p *ChargingPool) RemoveStation(id string) (*ChargingStation, error) {
	p.mux.Lock()
	station, ok := p.stations[id]
	p.mux.Unlock()
	if !ok {
		return nil, fmt.Errorf("station with id %s not found", id)
	}

	now := p.clock()
	vote := p.OnStationRemoval.SendVoting(now, p, station)
	if vote.IsVetoed() {
		return nil, fmt.Errorf("station removal vetoed: %s", id)
	}

	p.mux.Lock()
	delete(p.stations, id)
	unsubscribers := p.unsubscribers[id]
	delete(p.unsubscribers, id)
	p.mux.Unlock()

	for _, unsubscribe := range unsubscribers {
		unsubscribe()
	}
	p.reservations.Range(func(key, value interface{}) bool {
		if value.(string) == id {
			p.reservations.Delete(key)
		}
		return true
	})
	p.sessions.Range(func(key, value interface{}) bool {
		if value.(string) == id {
			p.sessions.Delete(key)
		}
		return true
	})
	p.OnStationRemoval.SendNotification(now, p, station)
	return station, nil
}

// wireStation subscribes to every station feed at creation time: pure
// fan-out re-publication, routing map upkeep and status aggregation. The
// original emitter is passed through unchanged as the event sender.
func (p *ChargingPool) wireStation(station *ChargingStation) {
	var unsubscribers []func()
	stationId := station.Id

	unsubscribers = append(unsubscribers, station.OnStatusChanged.Subscribe(func(event StatusChangedEvent[status.StationStatus]) {
		p.OnStationStatusChanged.Publish(event)
		p.aggregateStatus(event.Timestamp)
	}))
	unsubscribers = append(unsubscribers, station.OnAdminStatusChanged.Subscribe(func(event StatusChangedEvent[status.AdminStatus]) {
		p.OnStationAdminStatusChanged.Publish(event)
	}))
	unsubscribers = append(unsubscribers, station.OnEVSEStatusChanged.Subscribe(func(event StatusChangedEvent[status.EVSEStatus]) {
		p.OnEVSEStatusChanged.Publish(event)
	}))
	unsubscribers = append(unsubscribers, station.OnEVSEAdminStatusChanged.Subscribe(func(event StatusChangedEvent[status.AdminStatus]) {
		p.OnEVSEAdminStatusChanged.Publish(event)
	}))
	unsubscribers = append(unsubscribers, station.OnDataChanged.Subscribe(func(event DataChangedEvent) {
		p.OnDataChanged.Publish(event)
	}))
	unsubscribers = append(unsubscribers, station.OnNewReservation.Subscribe(func(event ReservationEvent) {
		p.reservations.Store(event.Reservation.Id, stationId)
		p.OnNewReservation.Publish(event)
	}))
	unsubscribers = append(unsubscribers, station.OnReservationCancelled.Subscribe(func(event ReservationCancelledEvent) {
		p.reservations.Delete(event.Reservation.Id)
		p.OnReservationCancelled.Publish(event)
	}))
	unsubscribers = append(unsubscribers, station.OnNewSession.Subscribe(func(event SessionEvent) {
		p.sessions.Store(event.Session.Id, stationId)
		p.OnNewSession.Publish(event)
	}))
	unsubscribers = append(unsubscribers, station.OnSessionEnded.Subscribe(func(event SessionEvent) {
		p.sessions.Delete(event.Session.Id)
		p.OnSessionEnded.Publish(event)
	}))
	unsubscribers = append(unsubscribers, station.OnNewChargeDetailRecord.Subscribe(func(event ChargeDetailRecordEvent) {
		p.OnNewChargeDetailRecord.Publish(event)
	}))
	station.OnEVSEAddition.Bridge(p.OnEVSEAddition)
	station.OnEVSERemoval.Bridge(p.OnEVSERemoval)

	p.mux.Lock()
	p.unsubscribers[stationId] = unsubscribers
	p.mux.Unlock()
}

func (p *ChargingPool) aggregateStatus(ts time.Time) {
	p.mux.Lock()
	aggregator := p.aggregator
	p.mux.Unlock()
	if aggregator == nil {
		return
	}
	p.statusSchedule.InsertAt(aggregator(p.StatusReport()), ts)
}

// StatusReport counts the owned stations per current status.
func (p *ChargingPool) StatusReport() status.StationStatusReport {
	report := make(status.StationStatusReport)
	for _, station := range p.Stations() {
		report[station.Status().Value]++
	}
	return report
}

func (p *ChargingPool) GetStation(id string) (*ChargingStation, bool) {
	p.mux.Lock()
	defer p.mux.Unlock()
	station, ok := p.stations[id]
	return station, ok
}

func (p *ChargingPool) StationIds() []string {
	p.mux.Lock()
	ids := make([]string, 0, len(p.stations))
	for id := range p.stations {
		ids = append(ids, id)
	}
	p.mux.Unlock()
	sort.Strings(ids)
	return ids
}

func (p *ChargingPool) Stations() []*ChargingStation {
	p.mux.Lock()
	defer p.mux.Unlock()
	stations := make([]*ChargingStation, 0, len(p.stations))
	for _, station := range p.stations {
		stations = append(stations, station)
	}
	return stations
}

// FindStationByEVSE resolves an EVSE id to the owning station by scanning
// the owned stations.
func (p *ChargingPool) FindStationByEVSE(evseId string) (*ChargingStation, bool) {
	for _, station := range p.Stations() {
		if _, ok := station.GetEVSE(evseId); ok {
			return station, true
		}
	}
	return nil, false
}

// TryGetReservationById resolves a reservation id to the owning station.
func (p *ChargingPool) TryGetReservationById(reservationId string) (*ChargingStation, bool) {
	value, ok := p.reservations.Load(reservationId)
	if !ok {
		return nil, false
	}
	return p.GetStation(value.(string))
}

// TryGetSessionById resolves a session id to the owning station.
func (p *ChargingPool) TryGetSessionById(sessionId string) (*ChargingStation, bool) {
	value, ok := p.sessions.Load(sessionId)
	if !ok {
		return nil, false
	}
	return p.GetStation(value.(string))
}

// CheckExpiredReservations sweeps all stations for lapsed reservations.
// Cancellations surface through the reservation-cancelled feed and the
// routing maps unlearn them reactively.
func (p *ChargingPool) CheckExpiredReservations(now time.Time) {
	for _, station := range p.Stations() {
		station.CheckExpiredReservations(now)
	}
}

func (p *ChargingPool) prepare(timestamp *time.Time, trackingId *string) {
	if timestamp.IsZero() {
		*timestamp = p.clock()
	}
	if *trackingId == "" {
		*trackingId = utility.NewUUID()
	}
}

// Reserve routes a reservation command to the owning station. A request
// targeting the whole pool is a documented capability gap and always yields
// an offline result: the pool has no tie-break rule to pick a station.
func (p *ChargingPool) Reserve(ctx context.Context, request ReserveRequest) ReservationResult {
	start := p.clock()
	p.prepare(&request.Timestamp, &request.EventTrackingId)
	p.OnReserveRequest.Publish(ReserveRequestEvent{
		Timestamp: request.Timestamp,
		Sender:    p.Id,
		Request:   request,
	})

	result := p.reserve(ctx, request)
	result.EventTrackingId = request.EventTrackingId
	result.Runtime = p.clock().Sub(start)

	p.OnReserveResponse.Publish(ReserveResponseEvent{
		Timestamp: p.clock(),
		Sender:    p.Id,
		Request:   request,
		Result:    result,
		Runtime:   result.Runtime,
	})
	return result
}

func (p *ChargingPool) reserve(ctx context.Context, request ReserveRequest) ReservationResult {
	if request.EVSEId != "" {
		station, ok := p.FindStationByEVSE(request.EVSEId)
		if !ok {
			return ReservationResult{Result: ReservationUnknownEVSE}
		}
		result := station.Reserve(ctx, request)
		if result.Result == ReservationSuccess {
			p.reservations.Store(result.Reservation.Id, station.Id)
		}
		return result
	}
	if request.StationId != "" {
		station, ok := p.GetStation(request.StationId)
		if !ok {
			return ReservationResult{Result: ReservationUnknownStation}
		}
		result := station.Reserve(ctx, request)
		if result.Result == ReservationSuccess {
			p.reservations.Store(result.Reservation.Id, station.Id)
		}
		return result
	}
	// Pool-wide reservation is not supported.
	return ReservationResult{Result: ReservationOffline}
}

// CancelReservation removes a reservation by id. The pool reservation map
// is the primary lookup; on a miss every owned station is asked in turn as
// a consistency safety net.
func (p *ChargingPool) CancelReservation(ctx context.Context, request CancelReservationRequest) CancelReservationResult {
	start := p.clock()
	p.prepare(&request.Timestamp, &request.EventTrackingId)
	p.OnCancelReservationRequest.Publish(CancelReservationRequestEvent{
		Timestamp: request.Timestamp,
		Sender:    p.Id,
		Request:   request,
	})

	result := p.cancelReservation(ctx, request)
	result.EventTrackingId = request.EventTrackingId
	result.Runtime = p.clock().Sub(start)

	p.OnCancelReservationResponse.Publish(CancelReservationResponseEvent{
		Timestamp: p.clock(),
		Sender:    p.Id,
		Request:   request,
		Result:    result,
		Runtime:   result.Runtime,
	})
	return result
}

func (p *ChargingPool) cancelReservation(ctx context.Context, request CancelReservationRequest) CancelReservationResult {
	if value, ok := p.reservations.Load(request.ReservationId); ok {
		p.reservations.Delete(request.ReservationId)
		if station, ok := p.GetStation(value.(string)); ok {
			return station.CancelReservation(ctx, request)
		}
	}

	for _, station := range p.Stations() {
		result := station.CancelReservation(ctx, request)
		if result.Result != CancelReservationUnknownId {
			return result
		}
	}
	return CancelReservationResult{
		Result:        CancelReservationUnknownId,
		ReservationId: request.ReservationId,
	}
}

// RemoteStart routes a session start command to the owning station.
func (p *ChargingPool) RemoteStart(ctx context.Context, request RemoteStartRequest) RemoteStartResult {
	start := p.clock()
	p.prepare(&request.Timestamp, &request.EventTrackingId)
	p.OnRemoteStartRequest.Publish(RemoteStartRequestEvent{
		Timestamp: request.Timestamp,
		Sender:    p.Id,
		Request:   request,
	})

	result := p.remoteStart(ctx, request)
	result.EventTrackingId = request.EventTrackingId
	result.Runtime = p.clock().Sub(start)

	p.OnRemoteStartResponse.Publish(RemoteStartResponseEvent{
		Timestamp: p.clock(),
		Sender:    p.Id,
		Request:   request,
		Result:    result,
		Runtime:   result.Runtime,
	})
	return result
}

func (p *ChargingPool) remoteStart(ctx context.Context, request RemoteStartRequest) RemoteStartResult {
	var station *ChargingStation
	if request.EVSEId != "" {
		found, ok := p.FindStationByEVSE(request.EVSEId)
		if !ok {
			return RemoteStartResult{Result: RemoteStartUnknownEVSE}
		}
		station = found
	} else if request.StationId != "" {
		found, ok := p.GetStation(request.StationId)
		if !ok {
			return RemoteStartResult{Result: RemoteStartUnknownStation}
		}
		station = found
	} else {
		return RemoteStartResult{Result: RemoteStartUnspecified}
	}

	result := station.RemoteStart(ctx, request)
	if result.Result == RemoteStartSuccess {
		p.sessions.Store(result.Session.Id, station.Id)
	}
	return result
}

// RemoteStop routes a session stop command to the owning station. The pool
// session map is the primary lookup; only an EVSE-qualified request carries
// enough information to justify a secondary membership search on a miss.
func (p *ChargingPool) RemoteStop(ctx context.Context, request RemoteStopRequest) RemoteStopResult {
	start := p.clock()
	p.prepare(&request.Timestamp, &request.EventTrackingId)
	p.OnRemoteStopRequest.Publish(RemoteStopRequestEvent{
		Timestamp: request.Timestamp,
		Sender:    p.Id,
		Request:   request,
	})

	result := p.remoteStop(ctx, request)
	result.EventTrackingId = request.EventTrackingId
	result.Runtime = p.clock().Sub(start)

	p.OnRemoteStopResponse.Publish(RemoteStopResponseEvent{
		Timestamp: p.clock(),
		Sender:    p.Id,
		Request:   request,
		Result:    result,
		Runtime:   result.Runtime,
	})
	return result
}

func (p *ChargingPool) remoteStop(ctx context.Context, request RemoteStopRequest) RemoteStopResult {
	if value, ok := p.sessions.Load(request.SessionId); ok {
		if station, ok := p.GetStation(value.(string)); ok {
			result := station.RemoteStop(ctx, request)
			result.Result = translateStopResult(result.Result)
			return result
		}
		// Map entry names a station no longer owned; fall back to
		// scanning the remaining stations.
		p.sessions.Delete(request.SessionId)
		for _, station := range p.Stations() {
			if _, ok := station.TryGetSession(request.SessionId); ok {
				result := station.RemoteStop(ctx, request)
				result.Result = translateStopResult(result.Result)
				return result
			}
		}
	}

	if request.EVSEId != "" {
		if station, ok := p.FindStationByEVSE(request.EVSEId); ok {
			result := station.RemoteStop(ctx, request)
			result.Result = translateStopResult(result.Result)
			return result
		}
	}
	return RemoteStopResult{
		Result:    RemoteStopInvalidSessionId,
		SessionId: request.SessionId,
	}
}
