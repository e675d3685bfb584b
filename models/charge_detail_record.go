package models

import "time"

// ChargeDetailRecord is the settlement record produced when a session ends.
type ChargeDetailRecord struct {
	SessionId     string    `json:"session_id" bson:"session_id"`
	EVSEId        string    `json:"evse_id" bson:"evse_id"`
	StationId     string    `json:"station_id" bson:"station_id"`
	PoolId        string    `json:"pool_id" bson:"pool_id"`
	ReservationId string    `json:"reservation_id,omitempty" bson:"reservation_id,omitempty"`
	ProviderId    string    `json:"provider_id" bson:"provider_id"`
	AccountId     string    `json:"account_id,omitempty" bson:"account_id,omitempty"`
	TimeStart     time.Time `json:"time_start" bson:"time_start"`
	TimeStop      time.Time `json:"time_stop" bson:"time_stop"`
	MeterStart    int       `json:"meter_start" bson:"meter_start"`
	MeterStop     int       `json:"meter_stop" bson:"meter_stop"`
	StopReason    string    `json:"stop_reason,omitempty" bson:"stop_reason,omitempty"`
}

func (cdr *ChargeDetailRecord) ConsumedWh() int {
	return cdr.MeterStop - cdr.MeterStart
}
