package status

// EVSEStatus is the dynamically observed operational status of a single
// charge point. Ordering matters: aggregation picks the entry with the
// highest priority value, see priority().
type EVSEStatus string

const (
	EVSEStatusUnspecified  EVSEStatus = "unspecified"
	EVSEStatusAvailable    EVSEStatus = "available"
	EVSEStatusReserved     EVSEStatus = "reserved"
	EVSEStatusCharging     EVSEStatus = "charging"
	EVSEStatusOutOfService EVSEStatus = "outOfService"
	EVSEStatusOffline      EVSEStatus = "offline"
	EVSEStatusFaulted      EVSEStatus = "faulted"
)

type StationStatus string

const (
	StationStatusUnspecified  StationStatus = "unspecified"
	StationStatusAvailable    StationStatus = "available"
	StationStatusPartlyInUse  StationStatus = "partlyInUse"
	StationStatusInUse        StationStatus = "inUse"
	StationStatusOutOfService StationStatus = "outOfService"
	StationStatusOffline      StationStatus = "offline"
	StationStatusFaulted      StationStatus = "faulted"
)

type PoolStatus string

const (
	PoolStatusUnspecified  PoolStatus = "unspecified"
	PoolStatusAvailable    PoolStatus = "available"
	PoolStatusPartlyInUse  PoolStatus = "partlyInUse"
	PoolStatusInUse        PoolStatus = "inUse"
	PoolStatusOutOfService PoolStatus = "outOfService"
	PoolStatusOffline      PoolStatus = "offline"
	PoolStatusFaulted      PoolStatus = "faulted"
)

// AdminStatus is the operator-controlled availability flag, shared by all
// hierarchy levels.
type AdminStatus string

const (
	AdminStatusUnspecified  AdminStatus = "unspecified"
	AdminStatusPlanned      AdminStatus = "planned"
	AdminStatusInternalUse  AdminStatus = "internalUse"
	AdminStatusOperational  AdminStatus = "operational"
	AdminStatusOutOfService AdminStatus = "outOfService"
)

// EVSEStatusReport counts the EVSEs of a station per status value.
type EVSEStatusReport map[EVSEStatus]int

// StationStatusReport counts the stations of a pool per status value.
type StationStatusReport map[StationStatus]int

func evsePriority(s EVSEStatus) int {
	switch s {
	case EVSEStatusFaulted:
		return 6
	case EVSEStatusOffline:
		return 5
	case EVSEStatusOutOfService:
		return 4
	case EVSEStatusCharging:
		return 3
	case EVSEStatusReserved:
		return 2
	case EVSEStatusAvailable:
		return 1
	}
	return 0
}

func stationPriority(s StationStatus) int {
	switch s {
	case StationStatusFaulted:
		return 6
	case StationStatusOffline:
		return 5
	case StationStatusOutOfService:
		return 4
	case StationStatusInUse:
		return 3
	case StationStatusPartlyInUse:
		return 2
	case StationStatusAvailable:
		return 1
	}
	return 0
}

// AggregateEVSEStatus is the default EVSE-to-station aggregation: all EVSEs
// busy means the station is in use, a mix means partly in use, otherwise the
// worst standalone condition wins.
func AggregateEVSEStatus(report EVSEStatusReport) StationStatus {
	total := 0
	busy := 0
	worst := EVSEStatusUnspecified
	for s, count := range report {
		if count <= 0 {
			continue
		}
		total += count
		if s == EVSEStatusCharging || s == EVSEStatusReserved {
			busy += count
		}
		if evsePriority(s) > evsePriority(worst) {
			worst = s
		}
	}
	if total == 0 {
		return StationStatusUnspecified
	}
	switch worst {
	case EVSEStatusFaulted:
		return StationStatusFaulted
	case EVSEStatusOffline:
		return StationStatusOffline
	case EVSEStatusOutOfService:
		return StationStatusOutOfService
	}
	if busy == total {
		return StationStatusInUse
	}
	if busy > 0 {
		return StationStatusPartlyInUse
	}
	return StationStatusAvailable
}

// AggregateStationStatus is the default station-to-pool aggregation,
// mirroring AggregateEVSEStatus one level up.
func AggregateStationStatus(report StationStatusReport) PoolStatus {
	total := 0
	busy := 0
	worst := StationStatusUnspecified
	for s, count := range report {
		if count <= 0 {
			continue
		}
		total += count
		if s == StationStatusInUse || s == StationStatusPartlyInUse {
			busy += count
		}
		if stationPriority(s) > stationPriority(worst) {
			worst = s
		}
	}
	if total == 0 {
		return PoolStatusUnspecified
	}
	switch worst {
	case StationStatusFaulted:
		return PoolStatusFaulted
	case StationStatusOffline:
		return PoolStatusOffline
	case StationStatusOutOfService:
		return PoolStatusOutOfService
	}
	if busy == total {
		return PoolStatusInUse
	}
	if busy > 0 {
		return PoolStatusPartlyInUse
	}
	return PoolStatusAvailable
}
