package models

import "time"

// ChargingSession is the active charging transaction on an EVSE, from
// remote start until stop.
type ChargingSession struct {
	Id            string    `json:"session_id" bson:"session_id"`
	EVSEId        string    `json:"evse_id" bson:"evse_id"`
	StationId     string    `json:"station_id" bson:"station_id"`
	PoolId        string    `json:"pool_id" bson:"pool_id"`
	ReservationId string    `json:"reservation_id,omitempty" bson:"reservation_id,omitempty"`
	ProviderId    string    `json:"provider_id" bson:"provider_id"`
	AccountId     string    `json:"account_id,omitempty" bson:"account_id,omitempty"`
	ProductId     string    `json:"product_id,omitempty" bson:"product_id,omitempty"`
	TimeStart     time.Time `json:"time_start" bson:"time_start"`
	MeterStart    int       `json:"meter_start" bson:"meter_start"`
}

// ReservationHandling controls whether a reservation still held when a
// session stops is kept or released. The pool passes it through unmodified;
// the EVSE applies it at session stop.
type ReservationHandling string

const (
	ReservationHandlingClose ReservationHandling = "close"
	ReservationHandlingKeep  ReservationHandling = "keep"
)
