package core

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"evpool/internal"
	"evpool/status"
	"evpool/votes"
)

// Operator is the charging station operator boundary: it owns charging
// pools and receives every event a pool re-publishes, plus the bridged
// voting channels, without the pools knowing anything about it.
type Operator struct {
	Id string

	historyDepth int
	clock        Clock
	logger       internal.LogHandler

	pools map[string]*ChargingPool
	mux   sync.Mutex

	OnStationAddition *votes.Notifier[*ChargingPool, *ChargingStation]
	OnStationRemoval  *votes.Notifier[*ChargingPool, *ChargingStation]
	OnEVSEAddition    *votes.Notifier[*ChargingStation, *EVSE]
	OnEVSERemoval     *votes.Notifier[*ChargingStation, *EVSE]

	OnPoolStatusChanged         *Feed[StatusChangedEvent[status.PoolStatus]]
	OnPoolAdminStatusChanged    *Feed[StatusChangedEvent[status.AdminStatus]]
	OnStationStatusChanged      *Feed[StatusChangedEvent[status.StationStatus]]
	OnStationAdminStatusChanged *Feed[StatusChangedEvent[status.AdminStatus]]
	OnEVSEStatusChanged         *Feed[StatusChangedEvent[status.EVSEStatus]]
	OnEVSEAdminStatusChanged    *Feed[StatusChangedEvent[status.AdminStatus]]
	OnDataChanged               *Feed[DataChangedEvent]
	OnNewReservation            *Feed[ReservationEvent]
	OnReservationCancelled      *Feed[ReservationCancelledEvent]
	OnNewSession                *Feed[SessionEvent]
	OnSessionEnded              *Feed[SessionEvent]
	OnNewChargeDetailRecord     *Feed[ChargeDetailRecordEvent]
}

func NewOperator(id string, historyDepth int, clock Clock) *Operator {
	if clock == nil {
		clock = time.Now
	}
	return &Operator{
		Id:           id,
		historyDepth: historyDepth,
		clock:        clock,
		pools:        make(map[string]*ChargingPool),

		OnStationAddition: votes.NewNotifier[*ChargingPool, *ChargingStation](),
		OnStationRemoval:  votes.NewNotifier[*ChargingPool, *ChargingStation](),
		OnEVSEAddition:    votes.NewNotifier[*ChargingStation, *EVSE](),
		OnEVSERemoval:     votes.NewNotifier[*ChargingStation, *EVSE](),

		OnPoolStatusChanged:         NewFeed[StatusChangedEvent[status.PoolStatus]]("pool status changed"),
		OnPoolAdminStatusChanged:    NewFeed[StatusChangedEvent[status.AdminStatus]]("pool admin status changed"),
		OnStationStatusChanged:      NewFeed[StatusChangedEvent[status.StationStatus]]("station status changed"),
		OnStationAdminStatusChanged: NewFeed[StatusChangedEvent[status.AdminStatus]]("station admin status changed"),
		OnEVSEStatusChanged:         NewFeed[StatusChangedEvent[status.EVSEStatus]]("evse status changed"),
		OnEVSEAdminStatusChanged:    NewFeed[StatusChangedEvent[status.AdminStatus]]("evse admin status changed"),
		OnDataChanged:               NewFeed[DataChangedEvent]("data changed"),
		OnNewReservation:            NewFeed[ReservationEvent]("new reservation"),
		OnReservationCancelled:      NewFeed[ReservationCancelledEvent]("reservation cancelled"),
		OnNewSession:                NewFeed[SessionEvent]("new session"),
		OnSessionEnded:              NewFeed[SessionEvent]("session ended"),
		OnNewChargeDetailRecord:     NewFeed[ChargeDetailRecordEvent]("new charge detail record"),
	}
}

func (o *Operator) SetLogger(logger internal.LogHandler) {
	o.logger = logger
}

// CreatePool adds a new charging pool and wires its re-published feeds and
// voting channels into the operator level.
func (o *Operator) CreatePool(id string, configurator func(*ChargingPool)) (*ChargingPool, error) {
	if id == "" {
		return nil, fmt.Errorf("pool creation failed: empty identifier")
	}
	o.mux.Lock()
	if _, ok := o.pools[id]; ok {
		o.mux.Unlock()
		return nil, fmt.Errorf("pool with id %s already exists", id)
	}
	o.mux.Unlock()

	pool := NewChargingPool(id, o.Id, o.historyDepth, o.clock)
	if o.logger != nil {
		pool.SetLogger(o.logger)
	}
	if configurator != nil {
		configurator(pool)
	}

	pool.OnStationAddition.Bridge(o.OnStationAddition)
	pool.OnStationRemoval.Bridge(o.OnStationRemoval)
	pool.OnEVSEAddition.Bridge(o.OnEVSEAddition)
	pool.OnEVSERemoval.Bridge(o.OnEVSERemoval)

	pool.OnStatusChanged.Subscribe(func(event StatusChangedEvent[status.PoolStatus]) {
		o.OnPoolStatusChanged.Publish(event)
	})
	pool.OnAdminStatusChanged.Subscribe(func(event StatusChangedEvent[status.AdminStatus]) {
		o.OnPoolAdminStatusChanged.Publish(event)
	})
	pool.OnStationStatusChanged.Subscribe(func(event StatusChangedEvent[status.StationStatus]) {
		o.OnStationStatusChanged.Publish(event)
	})
	pool.OnStationAdminStatusChanged.Subscribe(func(event StatusChangedEvent[status.AdminStatus]) {
		o.OnStationAdminStatusChanged.Publish(event)
	})
	pool.OnEVSEStatusChanged.Subscribe(func(event StatusChangedEvent[status.EVSEStatus]) {
		o.OnEVSEStatusChanged.Publish(event)
	})
	pool.OnEVSEAdminStatusChanged.Subscribe(func(event StatusChangedEvent[status.AdminStatus]) {
		o.OnEVSEAdminStatusChanged.Publish(event)
	})
	pool.OnDataChanged.Subscribe(func(event DataChangedEvent) {
		o.OnDataChanged.Publish(event)
	})
	pool.OnNewReservation.Subscribe(func(event ReservationEvent) {
		o.OnNewReservation.Publish(event)
	})
	pool.OnReservationCancelled.Subscribe(func(event ReservationCancelledEvent) {
		o.OnReservationCancelled.Publish(event)
	})
	pool.OnNewSession.Subscribe(func(event SessionEvent) {
		o.OnNewSession.Publish(event)
	})
	pool.OnSessionEnded.Subscribe(func(event SessionEvent) {
		o.OnSessionEnded.Publish(event)
	})
	pool.OnNewChargeDetailRecord.Subscribe(func(event ChargeDetailRecordEvent) {
		o.OnNewChargeDetailRecord.Publish(event)
	})

	o.mux.Lock()
	o.pools[id] = pool
	o.mux.Unlock()
	return pool, nil
}

func (o *Operator) GetPool(id string) (*ChargingPool, bool) {
	o.mux.Lock()
	defer o.mux.Unlock()
	pool, ok := o.pools[id]
	return pool, ok
}

func (o *Operator) PoolIds() []string {
	o.mux.Lock()
	ids := make([]string, 0, len(o.pools))
	for id := range o.pools {
		ids = append(ids, id)
	}
	o.mux.Unlock()
	sort.Strings(ids)
	return ids
}
