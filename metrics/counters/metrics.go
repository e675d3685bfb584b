package counters

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var activeReservationsGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "pool",
	Name:      "reservations_active",
	Help:      "Number of active reservations",
}, []string{"pool"})

var activeSessionsGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
	Namespace: "pool",
	Name:      "sessions_active",
	Help:      "Number of active charging sessions",
}, []string{"pool"})

var reservationCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "pool",
	Name:      "reservation_count",
	Help:      "Total number of reservations.",
}, []string{"pool", "station_id"})

var sessionCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "pool",
	Name:      "session_count",
	Help:      "Total number of charging sessions.",
}, []string{"pool", "station_id"})

var statusChangeCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "pool",
	Name:      "status_change_count",
	Help:      "Total number of EVSE status transitions.",
}, []string{"pool", "evse_id", "status"})

var consumedPowerCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "pool",
	Name:      "consumed_wh",
	Help:      "Consumed energy reported by charge detail records.",
}, []string{"pool", "station_id"})

func ObserveReservations(pool string, count int) {
	if len(pool) == 0 {
		return
	}
	activeReservationsGauge.With(prometheus.Labels{"pool": pool}).Set(float64(count))
}

func ObserveSessions(pool string, count int) {
	if len(pool) == 0 {
		return
	}
	activeSessionsGauge.With(prometheus.Labels{"pool": pool}).Set(float64(count))
}

func CountReservation(pool, stationId string) {
	if len(pool) == 0 || len(stationId) == 0 {
		return
	}
	reservationCounter.With(prometheus.Labels{"pool": pool, "station_id": stationId}).Inc()
}

func CountSession(pool, stationId string) {
	if len(pool) == 0 || len(stationId) == 0 {
		return
	}
	sessionCounter.With(prometheus.Labels{"pool": pool, "station_id": stationId}).Inc()
}

func CountStatusChange(pool, evseId, status string) {
	if len(pool) == 0 || len(evseId) == 0 || len(status) == 0 {
		return
	}
	statusChangeCounter.With(prometheus.Labels{"pool": pool, "evse_id": evseId, "status": status}).Inc()
}

func CountConsumedPower(pool, stationId string, wh float64) {
	if len(pool) == 0 || len(stationId) == 0 {
		return
	}
	consumedPowerCounter.With(prometheus.Labels{"pool": pool, "station_id": stationId}).Add(wh)
}
