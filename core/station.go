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
	"evpool/votes"
)

// ChargingStation owns a collection of EVSEs, aggregates their status into
// its own schedule, routes reservation and session commands to the right
// EVSE and re-publishes every EVSE event under its own feeds.
type ChargingStation struct {
	Id     string
	PoolId string

	historyDepth           int
	maxReservationDuration time.Duration
	clock                  Clock
	logger                 internal.LogHandler

	evses         map[string]*EVSE
	unsubscribers map[string][]func()
	mux           sync.Mutex

	// reservation id -> evse id, session id -> evse id
	reservations sync.Map
	sessions     sync.Map

	statusSchedule      *status.Schedule[status.StationStatus]
	adminStatusSchedule *status.Schedule[status.AdminStatus]
	aggregator          func(status.EVSEStatusReport) status.StationStatus

	address      Inherited[models.Address]
	geoLocation  Inherited[models.GeoCoordinate]
	openingTimes Inherited[string]

	OnEVSEAddition *votes.Notifier[*ChargingStation, *EVSE]
	OnEVSERemoval  *votes.Notifier[*ChargingStation, *EVSE]

	OnStatusChanged      *Feed[StatusChangedEvent[status.StationStatus]]
	OnAdminStatusChanged *Feed[StatusChangedEvent[status.AdminStatus]]
	OnDataChanged        *Feed[DataChangedEvent]

	OnEVSEStatusChanged      *Feed[StatusChangedEvent[status.EVSEStatus]]
	OnEVSEAdminStatusChanged *Feed[StatusChangedEvent[status.AdminStatus]]
	OnNewReservation         *Feed[ReservationEvent]
	OnReservationCancelled   *Feed[ReservationCancelledEvent]
	OnNewSession             *Feed[SessionEvent]
	OnSessionEnded           *Feed[SessionEvent]
	OnNewChargeDetailRecord  *Feed[ChargeDetailRecordEvent]
}

func NewChargingStation(id, poolId string, historyDepth int, clock Clock) *ChargingStation {
	if clock == nil {
		clock = time.Now
	}
	s := &ChargingStation{
		Id:                     id,
		PoolId:                 poolId,
		historyDepth:           historyDepth,
		maxReservationDuration: DefaultMaxReservationDuration,
		clock:                  clock,
		evses:                  make(map[string]*EVSE),
		unsubscribers:          make(map[string][]func()),

		OnEVSEAddition: votes.NewNotifier[*ChargingStation, *EVSE](),
		OnEVSERemoval:  votes.NewNotifier[*ChargingStation, *EVSE](),

		OnStatusChanged:      NewFeed[StatusChangedEvent[status.StationStatus]]("station status changed"),
		OnAdminStatusChanged: NewFeed[StatusChangedEvent[status.AdminStatus]]("station admin status changed"),
		OnDataChanged:        NewFeed[DataChangedEvent]("station data changed"),

		OnEVSEStatusChanged:      NewFeed[StatusChangedEvent[status.EVSEStatus]]("evse status changed"),
		OnEVSEAdminStatusChanged: NewFeed[StatusChangedEvent[status.AdminStatus]]("evse admin status changed"),
		OnNewReservation:         NewFeed[ReservationEvent]("new reservation"),
		OnReservationCancelled:   NewFeed[ReservationCancelledEvent]("reservation cancelled"),
		OnNewSession:             NewFeed[SessionEvent]("new session"),
		OnSessionEnded:           NewFeed[SessionEvent]("session ended"),
		OnNewChargeDetailRecord:  NewFeed[ChargeDetailRecordEvent]("new charge detail record"),
	}
	s.statusSchedule = status.NewSchedule(status.StationStatusUnspecified, historyDepth, clock)
	s.adminStatusSchedule = status.NewSchedule(status.AdminStatusUnspecified, historyDepth, clock)
	s.statusSchedule.OnChange(func(ts time.Time, old, new status.Timestamped[status.StationStatus]) {
		s.OnStatusChanged.Publish(StatusChangedEvent[status.StationStatus]{
			Timestamp: ts,
			Sender:    s.Id,
			OldStatus: old,
			NewStatus: new,
		})
	})
	s.adminStatusSchedule.OnChange(func(ts time.Time, old, new status.Timestamped[status.AdminStatus]) {
		s.OnAdminStatusChanged.Publish(StatusChangedEvent[status.AdminStatus]{
			Timestamp: ts,
			Sender:    s.Id,
			OldStatus: old,
			NewStatus: new,
		})
	})
	return s
}

func (s *ChargingStation) SetLogger(logger internal.LogHandler) {
	s.logger = logger
	s.OnStatusChanged.SetLogger(logger)
	s.OnAdminStatusChanged.SetLogger(logger)
	s.OnDataChanged.SetLogger(logger)
	s.OnEVSEStatusChanged.SetLogger(logger)
	s.OnEVSEAdminStatusChanged.SetLogger(logger)
	s.OnNewReservation.SetLogger(logger)
	s.OnReservationCancelled.SetLogger(logger)
	s.OnNewSession.SetLogger(logger)
	s.OnSessionEnded.SetLogger(logger)
	s.OnNewChargeDetailRecord.SetLogger(logger)
}

func (s *ChargingStation) SetMaxReservationDuration(d time.Duration) {
	if d > 0 {
		s.maxReservationDuration = d
	}
}

// SetStatusAggregator installs the EVSE-to-station aggregation delegate.
// Aggregation is opt-in: without a delegate the station status is driven
// only by direct SetStatus calls.
func (s *ChargingStation) SetStatusAggregator(aggregator func(status.EVSEStatusReport) status.StationStatus) {
	s.mux.Lock()
	s.aggregator = aggregator
	s.mux.Unlock()
}

func (s *ChargingStation) Status() status.Timestamped[status.StationStatus] {
	return s.statusSchedule.Current()
}

func (s *ChargingStation) AdminStatus() status.Timestamped[status.AdminStatus] {
	return s.adminStatusSchedule.Current()
}

func (s *ChargingStation) StatusSchedule() *status.Schedule[status.StationStatus] {
	return s.statusSchedule
}

func (s *ChargingStation) AdminStatusSchedule() *status.Schedule[status.AdminStatus] {
	return s.adminStatusSchedule
}

func (s *ChargingStation) SetStatus(st status.StationStatus) {
	s.statusSchedule.Insert(st)
}

func (s *ChargingStation) SetAdminStatus(st status.AdminStatus) {
	s.adminStatusSchedule.Insert(st)
}

func (s *ChargingStation) Address() models.Address {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.address.Value()
}

// SetAddress overrides the address inherited from the pool.
func (s *ChargingStation) SetAddress(address models.Address) {
	s.mux.Lock()
	s.address.Override(address)
	s.mux.Unlock()
	s.OnDataChanged.Publish(DataChangedEvent{
		Timestamp: s.clock(),
		Sender:    s.Id,
		Property:  "address",
		Value:     address,
	})
}

func (s *ChargingStation) inheritAddress(address models.Address) {
	s.mux.Lock()
	s.address.ResetToInherited(address)
	s.mux.Unlock()
}

func (s *ChargingStation) GeoLocation() models.GeoCoordinate {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.geoLocation.Value()
}

func (s *ChargingStation) SetGeoLocation(location models.GeoCoordinate) {
	s.mux.Lock()
	s.geoLocation.Override(location)
	s.mux.Unlock()
	s.OnDataChanged.Publish(DataChangedEvent{
		Timestamp: s.clock(),
		Sender:    s.Id,
		Property:  "geo_location",
		Value:     location,
	})
}

func (s *ChargingStation) inheritGeoLocation(location models.GeoCoordinate) {
	s.mux.Lock()
	s.geoLocation.ResetToInherited(location)
	s.mux.Unlock()
}

func (s *ChargingStation) OpeningTimes() string {
	s.mux.Lock()
	defer s.mux.Unlock()
	return s.openingTimes.Value()
}

func (s *ChargingStation) SetOpeningTimes(openingTimes string) {
	s.mux.Lock()
	s.openingTimes.Override(openingTimes)
	s.mux.Unlock()
	s.OnDataChanged.Publish(DataChangedEvent{
		Timestamp: s.clock(),
		Sender:    s.Id,
		Property:  "opening_times",
		Value:     openingTimes,
	})
}

func (s *ChargingStation) inheritOpeningTimes(openingTimes string) {
	s.mux.Lock()
	s.openingTimes.ResetToInherited(openingTimes)
	s.mux.Unlock()
}

// CreateEVSE adds a new EVSE after a voting round. Without an error
// continuation a failure is returned as an error; with one the failure is
// reported there and no EVSE is returned.
func (s *ChargingStation) CreateEVSE(id string, configurator func(*EVSE), onSuccess func(*EVSE), onError func(error)) (*EVSE, error) {
	fail := func(err error) (*EVSE, error) {
		if onError != nil {
			onError(err)
			return nil, nil
		}
		return nil, err
	}
	if id == "" {
		return fail(fmt.Errorf("evse creation failed: empty identifier"))
	}
	s.mux.Lock()
	if _, ok := s.evses[id]; ok {
		s.mux.Unlock()
		return fail(fmt.Errorf("evse with id %s already exists", id))
	}
	s.mux.Unlock()

	evse := NewEVSE(id, s.Id, s.PoolId, s.historyDepth, s.clock)
	evse.SetMaxReservationDuration(s.maxReservationDuration)
	if s.logger != nil {
		evse.SetLogger(s.logger)
	}
	if configurator != nil {
		configurator(evse)
	}

	now := s.clock()
	vote := s.OnEVSEAddition.SendVoting(now, s, evse)
	if vote.IsVetoed() {
		return fail(fmt.Errorf("evse addition vetoed: %s", id))
	}

	s.mux.Lock()
	if _, ok := s.evses[id]; ok {
		s.mux.Unlock()
		return fail(fmt.Errorf("evse with id %s already exists", id))
	}
	s.evses[id] = evse
	s.mux.Unlock()

	s.wireEVSE(evse)
	s.OnEVSEAddition.SendNotification(now, s, evse)
	if s.logger != nil {
		s.logger.FeatureEvent("CreateEVSE", s.Id, fmt.Sprintf("added evse %s", id))
	}
	if onSuccess != nil {
		onSuccess(evse)
	}
	return evse, nil
}

// RemoveEVSE removes an EVSE after a voting round. Held reservations are
// cancelled so the routing maps above unlearn them.
func (s *ChargingStation) RemoveEVSE(id string) (*EVSE, error) {
	s.mux.Lock()
	evse, ok := s.evses[id]
	s.mux.Unlock()
	if !ok {
		return nil, fmt.Errorf("evse with id %s not found", id)
	}

	now := s.clock()
	vote := s.OnEVSERemoval.SendVoting(now, s, evse)
	if vote.IsVetoed() {
		return nil, fmt.Errorf("evse removal vetoed: %s", id)
	}

	if reservation := evse.Reservation(); reservation != nil {
		evse.CancelReservation(context.Background(), CancelReservationRequest{
			ReservationId: reservation.Id,
			Reason:        models.CancelReasonEVSERemoved,
		})
	}

	s.mux.Lock()
	delete(s.evses, id)
	unsubscribers := s.unsubscribers[id]
	delete(s.unsubscribers, id)
	s.mux.Unlock()

	for _, unsubscribe := range unsubscribers {
		unsubscribe()
	}
	s.OnEVSERemoval.SendNotification(now, s, evse)
	return evse, nil
}

// wireEVSE subscribes to every EVSE feed at creation time: re-publication
// to the station feeds, routing map upkeep and status aggregation.
func (s *ChargingStation) wireEVSE(evse *EVSE) {
	var unsubscribers []func()
	evseId := evse.Id

	unsubscribers = append(unsubscribers, evse.OnStatusChanged.Subscribe(func(event StatusChangedEvent[status.EVSEStatus]) {
		s.OnEVSEStatusChanged.Publish(event)
		s.aggregateStatus(event.Timestamp)
	}))
	unsubscribers = append(unsubscribers, evse.OnAdminStatusChanged.Subscribe(func(event StatusChangedEvent[status.AdminStatus]) {
		s.OnEVSEAdminStatusChanged.Publish(event)
	}))
	unsubscribers = append(unsubscribers, evse.OnNewReservation.Subscribe(func(event ReservationEvent) {
		s.reservations.Store(event.Reservation.Id, evseId)
		s.OnNewReservation.Publish(event)
	}))
	unsubscribers = append(unsubscribers, evse.OnReservationCancelled.Subscribe(func(event ReservationCancelledEvent) {
		s.reservations.Delete(event.Reservation.Id)
		s.OnReservationCancelled.Publish(event)
	}))
	unsubscribers = append(unsubscribers, evse.OnNewSession.Subscribe(func(event SessionEvent) {
		s.sessions.Store(event.Session.Id, evseId)
		s.OnNewSession.Publish(event)
	}))
	unsubscribers = append(unsubscribers, evse.OnSessionEnded.Subscribe(func(event SessionEvent) {
		s.sessions.Delete(event.Session.Id)
		s.OnSessionEnded.Publish(event)
	}))
	unsubscribers = append(unsubscribers, evse.OnNewChargeDetailRecord.Subscribe(func(event ChargeDetailRecordEvent) {
		s.OnNewChargeDetailRecord.Publish(event)
	}))

	s.mux.Lock()
	s.unsubscribers[evseId] = unsubscribers
	s.mux.Unlock()
}

func (s *ChargingStation) aggregateStatus(ts time.Time) {
	s.mux.Lock()
	aggregator := s.aggregator
	s.mux.Unlock()
	if aggregator == nil {
		return
	}
	s.statusSchedule.InsertAt(aggregator(s.StatusReport()), ts)
}

// StatusReport counts the owned EVSEs per current status.
func (s *ChargingStation) StatusReport() status.EVSEStatusReport {
	report := make(status.EVSEStatusReport)
	s.mux.Lock()
	evses := make([]*EVSE, 0, len(s.evses))
	for _, evse := range s.evses {
		evses = append(evses, evse)
	}
	s.mux.Unlock()
	for _, evse := range evses {
		report[evse.Status().Value]++
	}
	return report
}

func (s *ChargingStation) GetEVSE(id string) (*EVSE, bool) {
	s.mux.Lock()
	defer s.mux.Unlock()
	evse, ok := s.evses[id]
	return evse, ok
}

func (s *ChargingStation) EVSEIds() []string {
	s.mux.Lock()
	ids := make([]string, 0, len(s.evses))
	for id := range s.evses {
		ids = append(ids, id)
	}
	s.mux.Unlock()
	sort.Strings(ids)
	return ids
}

func (s *ChargingStation) EVSEs() []*EVSE {
	s.mux.Lock()
	defer s.mux.Unlock()
	evses := make([]*EVSE, 0, len(s.evses))
	for _, evse := range s.evses {
		evses = append(evses, evse)
	}
	return evses
}

// TryGetReservation resolves a reservation id to the owning EVSE id.
func (s *ChargingStation) TryGetReservation(reservationId string) (string, bool) {
	evseId, ok := s.reservations.Load(reservationId)
	if !ok {
		return "", false
	}
	return evseId.(string), true
}

// TryGetSession resolves a session id to the owning EVSE id.
func (s *ChargingStation) TryGetSession(sessionId string) (string, bool) {
	evseId, ok := s.sessions.Load(sessionId)
	if !ok {
		return "", false
	}
	return evseId.(string), true
}

// Snapshot produces the persisted projection of this station.
func (s *ChargingStation) Snapshot() models.ChargingStation {
	return models.ChargingStation{
		Id:          s.Id,
		PoolId:      s.PoolId,
		IsEnabled:   s.AdminStatus().Value == status.AdminStatusOperational,
		Status:      string(s.Status().Value),
		AdminStatus: string(s.AdminStatus().Value),
	}
}

// CheckExpiredReservations sweeps the owned EVSEs for lapsed reservations.
func (s *ChargingStation) CheckExpiredReservations(now time.Time) {
	for _, evse := range s.EVSEs() {
		evse.CheckExpiredReservation(now)
	}
}

func (s *ChargingStation) adminAllows() bool {
	switch s.AdminStatus().Value {
	case status.AdminStatusOperational, status.AdminStatusUnspecified:
		return true
	}
	return false
}

// Reserve claims an EVSE of this station. An explicit EVSE id must name an
// owned EVSE; without one the station picks the first reservable EVSE in id
// order.
func (s *ChargingStation) Reserve(ctx context.Context, request ReserveRequest) ReservationResult {
	result := ReservationResult{EventTrackingId: request.EventTrackingId}
	if !s.adminAllows() {
		result.Result = ReservationAdminDown
		return result
	}

	if request.EVSEId != "" {
		evse, ok := s.GetEVSE(request.EVSEId)
		if !ok {
			result.Result = ReservationUnknownEVSE
			return result
		}
		return evse.Reserve(ctx, request)
	}

	result.Result = ReservationAlreadyReserved
	for _, id := range s.EVSEIds() {
		evse, ok := s.GetEVSE(id)
		if !ok {
			continue
		}
		candidate := evse.Reserve(ctx, request)
		if candidate.Result == ReservationSuccess {
			return candidate
		}
		result.Result = candidate.Result
		result.EventTrackingId = candidate.EventTrackingId
	}
	if len(s.EVSEIds()) == 0 {
		result.Result = ReservationUnspecified
	}
	return result
}

// CancelReservation removes a reservation by id. The reservation map is the
// primary lookup; on a miss every owned EVSE is asked in turn.
func (s *ChargingStation) CancelReservation(ctx context.Context, request CancelReservationRequest) CancelReservationResult {
	if evseId, ok := s.TryGetReservation(request.ReservationId); ok {
		if evse, ok := s.GetEVSE(evseId); ok {
			return evse.CancelReservation(ctx, request)
		}
		s.reservations.Delete(request.ReservationId)
	}

	for _, evse := range s.EVSEs() {
		result := evse.CancelReservation(ctx, request)
		if result.Result != CancelReservationUnknownId {
			return result
		}
	}
	return CancelReservationResult{
		Result:          CancelReservationUnknownId,
		ReservationId:   request.ReservationId,
		EventTrackingId: request.EventTrackingId,
	}
}

// RemoteStart begins a session on an owned EVSE. Without an explicit EVSE
// id the EVSE holding the given reservation is used, or the first available
// one.
func (s *ChargingStation) RemoteStart(ctx context.Context, request RemoteStartRequest) RemoteStartResult {
	result := RemoteStartResult{EventTrackingId: request.EventTrackingId}
	if !s.adminAllows() {
		result.Result = RemoteStartAdminDown
		return result
	}

	if request.EVSEId != "" {
		evse, ok := s.GetEVSE(request.EVSEId)
		if !ok {
			result.Result = RemoteStartUnknownEVSE
			return result
		}
		return evse.RemoteStart(ctx, request)
	}

	if request.ReservationId != "" {
		if evseId, ok := s.TryGetReservation(request.ReservationId); ok {
			if evse, ok := s.GetEVSE(evseId); ok {
				return evse.RemoteStart(ctx, request)
			}
		}
	}

	result.Result = RemoteStartUnspecified
	for _, id := range s.EVSEIds() {
		evse, ok := s.GetEVSE(id)
		if !ok {
			continue
		}
		candidate := evse.RemoteStart(ctx, request)
		if candidate.Result == RemoteStartSuccess {
			return candidate
		}
		result.Result = candidate.Result
	}
	return result
}

// RemoteStop terminates a session by id. The session map is the primary
// lookup; a request qualified with an EVSE id additionally falls back to
// that EVSE before giving up.
func (s *ChargingStation) RemoteStop(ctx context.Context, request RemoteStopRequest) RemoteStopResult {
	if evseId, ok := s.TryGetSession(request.SessionId); ok {
		if evse, ok := s.GetEVSE(evseId); ok {
			return evse.RemoteStop(ctx, request)
		}
		s.sessions.Delete(request.SessionId)
	}

	if request.EVSEId != "" {
		if evse, ok := s.GetEVSE(request.EVSEId); ok {
			return evse.RemoteStop(ctx, request)
		}
	}
	return RemoteStopResult{
		Result:          RemoteStopInvalidSessionId,
		SessionId:       request.SessionId,
		EventTrackingId: request.EventTrackingId,
	}
}
