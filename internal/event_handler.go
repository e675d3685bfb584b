package internal

import "time"

// EventHandler receives the pool events the operator level cares about.
type EventHandler interface {
	OnNewReservation(event *EventMessage)
	OnReservationCancelled(event *EventMessage)
	OnSessionStart(event *EventMessage)
	OnSessionStop(event *EventMessage)
	OnChargeDetailRecord(event *EventMessage)
	OnStatusChange(event *EventMessage)
}

type EventMessage struct {
	Type          string      `json:"type" bson:"type"`
	PoolId        string      `json:"pool_id" bson:"pool_id"`
	StationId     string      `json:"station_id" bson:"station_id"`
	EVSEId        string      `json:"evse_id" bson:"evse_id"`
	Time          time.Time   `json:"time" bson:"time"`
	ReservationId string      `json:"reservation_id" bson:"reservation_id"`
	SessionId     string      `json:"session_id" bson:"session_id"`
	ProviderId    string      `json:"provider_id" bson:"provider_id"`
	Status        string      `json:"status" bson:"status"`
	Info          string      `json:"info" bson:"info"`
	Payload       interface{} `json:"payload" bson:"payload"`
}

func (em *EventMessage) MessageType() string {
	return em.Type
}
