package server

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"evpool/core"
	"evpool/internal"
	"evpool/internal/config"

	"github.com/julienschmidt/httprouter"
)

const apiFeature = "Api"

// Api is the REST command surface of the pool. Every command endpoint
// accepts a JSON request body and replies with the command result.
type Api struct {
	conf    *config.Config
	logger  internal.LogHandler
	handler *SystemHandler
}

func NewServerApi(conf *config.Config, logger internal.LogHandler) *Api {
	return &Api{
		conf:   conf,
		logger: logger,
	}
}

func (a *Api) SetSystemHandler(handler *SystemHandler) {
	a.handler = handler
}

func (a *Api) Start() error {
	router := httprouter.New()
	router.POST("/api/reserve", a.reserve)
	router.POST("/api/reserve/cancel", a.cancelReservation)
	router.POST("/api/start", a.remoteStart)
	router.POST("/api/stop", a.remoteStop)
	router.GET("/api/status", a.poolStatus)

	serverAddress := net.JoinHostPort(a.conf.Listen.BindIP, a.conf.Listen.Port)
	a.logger.FeatureEvent(apiFeature, "", fmt.Sprintf("start listening on %s", serverAddress))
	if a.conf.Listen.TLS {
		return http.ListenAndServeTLS(serverAddress, a.conf.Listen.CertFile, a.conf.Listen.KeyFile, router)
	}
	return http.ListenAndServe(serverAddress, router)
}

func (a *Api) reserve(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var request core.ReserveRequest
	if !a.decode(w, r, &request) {
		return
	}
	a.logger.FeatureEvent(apiFeature, request.EventTrackingId, fmt.Sprintf("reserve: evse=%s station=%s", request.EVSEId, request.StationId))
	result := a.handler.Reserve(r.Context(), request)
	a.respond(w, resultCode(string(result.Result)), result)
}

func (a *Api) cancelReservation(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var request core.CancelReservationRequest
	if !a.decode(w, r, &request) {
		return
	}
	a.logger.FeatureEvent(apiFeature, request.EventTrackingId, fmt.Sprintf("cancel reservation: %s", request.ReservationId))
	result := a.handler.CancelReservation(r.Context(), request)
	a.respond(w, resultCode(string(result.Result)), result)
}

func (a *Api) remoteStart(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var request core.RemoteStartRequest
	if !a.decode(w, r, &request) {
		return
	}
	a.logger.FeatureEvent(apiFeature, request.EventTrackingId, fmt.Sprintf("remote start: evse=%s station=%s", request.EVSEId, request.StationId))
	result := a.handler.RemoteStart(r.Context(), request)
	a.respond(w, resultCode(string(result.Result)), result)
}

func (a *Api) remoteStop(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var request core.RemoteStopRequest
	if !a.decode(w, r, &request) {
		return
	}
	a.logger.FeatureEvent(apiFeature, request.EventTrackingId, fmt.Sprintf("remote stop: session=%s", request.SessionId))
	result := a.handler.RemoteStop(r.Context(), request)
	a.respond(w, resultCode(string(result.Result)), result)
}

// PoolStatusResponse is the GET status payload: the pool status plus every
// station with its charge point statuses.
type PoolStatusResponse struct {
	PoolId      string                  `json:"pool_id"`
	Name        string                  `json:"name,omitempty"`
	Status      string                  `json:"status"`
	AdminStatus string                  `json:"admin_status"`
	Time        time.Time               `json:"time"`
	Stations    []StationStatusResponse `json:"stations"`
}

type StationStatusResponse struct {
	StationId   string               `json:"station_id"`
	Status      string               `json:"status"`
	AdminStatus string               `json:"admin_status"`
	EVSEs       []EVSEStatusResponse `json:"evses"`
}

type EVSEStatusResponse struct {
	EVSEId        string    `json:"evse_id"`
	Status        string    `json:"status"`
	AdminStatus   string    `json:"admin_status"`
	Since         time.Time `json:"since"`
	ReservationId string    `json:"reservation_id,omitempty"`
	SessionId     string    `json:"session_id,omitempty"`
}

func (a *Api) poolStatus(w http.ResponseWriter, _ *http.Request, _ httprouter.Params) {
	pool := a.handler.Pool()
	if pool == nil {
		a.respond(w, http.StatusServiceUnavailable, map[string]string{"error": "pool is not running"})
		return
	}
	current := pool.Status()
	response := PoolStatusResponse{
		PoolId:      pool.Id,
		Name:        pool.Name(),
		Status:      string(current.Value),
		AdminStatus: string(pool.AdminStatus().Value),
		Time:        current.Timestamp,
	}
	for _, station := range pool.Stations() {
		stationResponse := StationStatusResponse{
			StationId:   station.Id,
			Status:      string(station.Status().Value),
			AdminStatus: string(station.AdminStatus().Value),
		}
		for _, evse := range station.EVSEs() {
			st := evse.Status()
			evseResponse := EVSEStatusResponse{
				EVSEId:      evse.Id,
				Status:      string(st.Value),
				AdminStatus: string(evse.AdminStatus().Value),
				Since:       st.Timestamp,
			}
			if reservation := evse.Reservation(); reservation != nil {
				evseResponse.ReservationId = reservation.Id
			}
			if session := evse.Session(); session != nil {
				evseResponse.SessionId = session.Id
			}
			stationResponse.EVSEs = append(stationResponse.EVSEs, evseResponse)
		}
		response.Stations = append(response.Stations, stationResponse)
	}
	a.respond(w, http.StatusOK, response)
}

func (a *Api) decode(w http.ResponseWriter, r *http.Request, target interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(target); err != nil {
		a.logger.Error("decoding request body", err)
		a.respond(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return false
	}
	return true
}

func (a *Api) respond(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		a.logger.Error("encoding response", err)
	}
}

// resultCode maps a command result onto an HTTP status. Commands that ran
// but did not succeed still carry their detail in the body.
func resultCode(result string) int {
	switch result {
	case string(core.ReservationSuccess):
		return http.StatusOK
	case string(core.ReservationUnknownEVSE), string(core.ReservationUnknownStation),
		string(core.CancelReservationUnknownId), string(core.RemoteStopInvalidSessionId):
		return http.StatusNotFound
	case string(core.ReservationAlreadyReserved), string(core.RemoteStartAlreadyInUse),
		string(core.RemoteStartReserved):
		return http.StatusConflict
	case string(core.ReservationTimeout):
		return http.StatusRequestTimeout
	default:
		return http.StatusServiceUnavailable
	}
}
