package internal

import "evpool/models"

type Database interface {
	Write(table string, data Data) error
	WriteLogMessage(data Data) error
	ReadLog() (interface{}, error)
	GetChargingStations(poolId string) ([]models.ChargingStation, error)
	GetEVSEs(poolId string) ([]models.EVSE, error)
	UpdateChargingStation(station *models.ChargingStation) error
	UpdateEVSE(evse *models.EVSE) error
	AddReservation(reservation *models.ChargingReservation) error
	DeleteReservation(reservationId string) error
	AddSession(session *models.ChargingSession) error
	DeleteSession(sessionId string) error
	AddChargeDetailRecord(record *models.ChargeDetailRecord) error
}

type Data interface {
	DataType() string
}
