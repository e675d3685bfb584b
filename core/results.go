package core

import (
	"time"

	"evpool/models"
)

// ReservationResultType classifies the outcome of a Reserve command.
type ReservationResultType string

const (
	ReservationSuccess         ReservationResultType = "success"
	ReservationUnknownEVSE     ReservationResultType = "unknownEVSE"
	ReservationUnknownStation  ReservationResultType = "unknownChargingStation"
	ReservationAlreadyReserved ReservationResultType = "alreadyReserved"
	ReservationAdminDown       ReservationResultType = "adminDown"
	ReservationOutOfService    ReservationResultType = "outOfService"
	ReservationOffline         ReservationResultType = "offline"
	ReservationTimeout         ReservationResultType = "timeout"
	ReservationUnspecified     ReservationResultType = "unspecified"
)

type ReservationResult struct {
	Result          ReservationResultType       `json:"result"`
	Reservation     *models.ChargingReservation `json:"reservation,omitempty"`
	EventTrackingId string                      `json:"event_tracking_id"`
	Runtime         time.Duration               `json:"runtime"`
}

// ReserveRequest targets exactly one of EVSEId, StationId or PoolId.
// Timestamp defaults to now, EventTrackingId is generated when absent and
// RequestTimeout is advisory: it is passed through to the child entity,
// never enforced by the pool itself.
type ReserveRequest struct {
	Timestamp       time.Time     `json:"timestamp,omitempty"`
	EventTrackingId string        `json:"event_tracking_id,omitempty"`
	RequestTimeout  time.Duration `json:"request_timeout,omitempty"`
	EVSEId          string        `json:"evse_id,omitempty"`
	StationId       string        `json:"station_id,omitempty"`
	PoolId          string        `json:"pool_id,omitempty"`
	ReservationId   string        `json:"reservation_id,omitempty"`
	StartTime       time.Time     `json:"start_time,omitempty"`
	Duration        time.Duration `json:"duration,omitempty"`
	ProviderId      string        `json:"provider_id,omitempty"`
	AccountId       string        `json:"account_id,omitempty"`
	ProductId       string        `json:"product_id,omitempty"`
	AuthTokens      []string      `json:"auth_tokens,omitempty"`
	AuthAccounts    []string      `json:"auth_accounts,omitempty"`
	AuthPINs        []string      `json:"auth_pins,omitempty"`
}

type CancelReservationResultType string

const (
	CancelReservationSuccess      CancelReservationResultType = "success"
	CancelReservationUnknownId    CancelReservationResultType = "unknownReservationId"
	CancelReservationOutOfService CancelReservationResultType = "outOfService"
	CancelReservationOffline      CancelReservationResultType = "offline"
	CancelReservationTimeout      CancelReservationResultType = "timeout"
	CancelReservationUnspecified  CancelReservationResultType = "unspecified"
)

type CancelReservationRequest struct {
	Timestamp       time.Time           `json:"timestamp,omitempty"`
	EventTrackingId string              `json:"event_tracking_id,omitempty"`
	RequestTimeout  time.Duration       `json:"request_timeout,omitempty"`
	ReservationId   string              `json:"reservation_id"`
	Reason          models.CancelReason `json:"reason"`
	ProviderId      string              `json:"provider_id,omitempty"`
	EVSEId          string              `json:"evse_id,omitempty"`
}

type CancelReservationResult struct {
	Result          CancelReservationResultType `json:"result"`
	ReservationId   string                      `json:"reservation_id"`
	EventTrackingId string                      `json:"event_tracking_id"`
	Runtime         time.Duration               `json:"runtime"`
}

type RemoteStartResultType string

const (
	RemoteStartSuccess        RemoteStartResultType = "success"
	RemoteStartUnknownEVSE    RemoteStartResultType = "unknownEVSE"
	RemoteStartUnknownStation RemoteStartResultType = "unknownChargingStation"
	RemoteStartAlreadyInUse   RemoteStartResultType = "alreadyInUse"
	RemoteStartReserved       RemoteStartResultType = "reserved"
	RemoteStartAdminDown      RemoteStartResultType = "adminDown"
	RemoteStartOutOfService   RemoteStartResultType = "outOfService"
	RemoteStartOffline        RemoteStartResultType = "offline"
	RemoteStartTimeout        RemoteStartResultType = "timeout"
	RemoteStartUnspecified    RemoteStartResultType = "unspecified"
)

type RemoteStartRequest struct {
	Timestamp       time.Time     `json:"timestamp,omitempty"`
	EventTrackingId string        `json:"event_tracking_id,omitempty"`
	RequestTimeout  time.Duration `json:"request_timeout,omitempty"`
	EVSEId          string        `json:"evse_id,omitempty"`
	StationId       string        `json:"station_id,omitempty"`
	ProductId       string        `json:"product_id,omitempty"`
	ReservationId   string        `json:"reservation_id,omitempty"`
	SessionId       string        `json:"session_id,omitempty"`
	ProviderId      string        `json:"provider_id,omitempty"`
	AccountId       string        `json:"account_id,omitempty"`
}

type RemoteStartResult struct {
	Result          RemoteStartResultType   `json:"result"`
	Session         *models.ChargingSession `json:"session,omitempty"`
	EventTrackingId string                  `json:"event_tracking_id"`
	Runtime         time.Duration           `json:"runtime"`
}

type RemoteStopResultType string

const (
	RemoteStopSuccess          RemoteStopResultType = "success"
	RemoteStopInvalidSessionId RemoteStopResultType = "invalidSessionId"
	RemoteStopError            RemoteStopResultType = "error"
	RemoteStopOffline          RemoteStopResultType = "offline"
	RemoteStopOutOfService     RemoteStopResultType = "outOfService"
	RemoteStopTimeout          RemoteStopResultType = "timeout"
	RemoteStopUnknownOperator  RemoteStopResultType = "unknownOperator"
	RemoteStopUnspecified      RemoteStopResultType = "unspecified"
)

type RemoteStopRequest struct {
	Timestamp           time.Time                  `json:"timestamp,omitempty"`
	EventTrackingId     string                     `json:"event_tracking_id,omitempty"`
	RequestTimeout      time.Duration              `json:"request_timeout,omitempty"`
	SessionId           string                     `json:"session_id"`
	EVSEId              string                     `json:"evse_id,omitempty"`
	StationId           string                     `json:"station_id,omitempty"`
	ReservationHandling models.ReservationHandling `json:"reservation_handling,omitempty"`
	ProviderId          string                     `json:"provider_id,omitempty"`
	AccountId           string                     `json:"account_id,omitempty"`
}

type RemoteStopResult struct {
	Result          RemoteStopResultType       `json:"result"`
	SessionId       string                     `json:"session_id"`
	Record          *models.ChargeDetailRecord `json:"charge_detail_record,omitempty"`
	EventTrackingId string                     `json:"event_tracking_id"`
	Runtime         time.Duration              `json:"runtime"`
}

// translateStopResult maps a station-level stop result code onto the
// pool-level result, one to one. Unknown codes fall back to unspecified.
func translateStopResult(result RemoteStopResultType) RemoteStopResultType {
	switch result {
	case RemoteStopError:
		return RemoteStopError
	case RemoteStopInvalidSessionId:
		return RemoteStopInvalidSessionId
	case RemoteStopOffline:
		return RemoteStopOffline
	case RemoteStopOutOfService:
		return RemoteStopOutOfService
	case RemoteStopSuccess:
		return RemoteStopSuccess
	case RemoteStopTimeout:
		return RemoteStopTimeout
	case RemoteStopUnknownOperator:
		return RemoteStopUnknownOperator
	default:
		return RemoteStopUnspecified
	}
}
