package models

import (
	"time"

	"evpool/utility"
)

// CancelReason explains why a reservation was removed.
type CancelReason string

const (
	CancelReasonRequested   CancelReason = "requested"
	CancelReasonExpired     CancelReason = "expired"
	CancelReasonConsumed    CancelReason = "consumed"
	CancelReasonEVSERemoved CancelReason = "evseRemoved"
)

// ChargingReservation is a time-bounded exclusive claim on an EVSE prior to
// a charging session starting.
type ChargingReservation struct {
	Id           string        `json:"reservation_id" bson:"reservation_id"`
	EVSEId       string        `json:"evse_id" bson:"evse_id"`
	StationId    string        `json:"station_id" bson:"station_id"`
	PoolId       string        `json:"pool_id" bson:"pool_id"`
	ProviderId   string        `json:"provider_id" bson:"provider_id"`
	AccountId    string        `json:"account_id,omitempty" bson:"account_id,omitempty"`
	ProductId    string        `json:"product_id,omitempty" bson:"product_id,omitempty"`
	StartTime    time.Time     `json:"start_time" bson:"start_time"`
	Duration     time.Duration `json:"duration" bson:"duration"`
	AuthTokens   []string      `json:"auth_tokens,omitempty" bson:"auth_tokens,omitempty"`
	AuthAccounts []string      `json:"auth_accounts,omitempty" bson:"auth_accounts,omitempty"`
	AuthPINs     []string      `json:"auth_pins,omitempty" bson:"auth_pins,omitempty"`
	Created      time.Time     `json:"created" bson:"created"`
}

// EndTime is the instant the reservation expires when no session consumed it.
func (r *ChargingReservation) EndTime() time.Time {
	return r.StartTime.Add(r.Duration)
}

func (r *ChargingReservation) IsExpired(now time.Time) bool {
	return now.After(r.EndTime())
}

// AuthorizedFor reports whether the given provider or one of the supplied
// credentials may consume this reservation.
func (r *ChargingReservation) AuthorizedFor(providerId, accountId string) bool {
	if providerId != "" && providerId == r.ProviderId {
		return true
	}
	if accountId == "" {
		return false
	}
	if accountId == r.AccountId {
		return true
	}
	return utility.Contains(r.AuthAccounts, accountId)
}
