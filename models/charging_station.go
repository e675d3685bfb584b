package models

// ChargingStation is the persisted projection of a station, loaded on
// startup to rebuild the pool topology.
type ChargingStation struct {
	Id          string `json:"station_id" bson:"station_id"`
	PoolId      string `json:"pool_id" bson:"pool_id"`
	IsEnabled   bool   `json:"is_enabled" bson:"is_enabled"`
	Title       string `json:"title" bson:"title"`
	Description string `json:"description" bson:"description"`
	Model       string `json:"model" bson:"model"`
	Vendor      string `json:"vendor" bson:"vendor"`
	Status      string `json:"status" bson:"status"`
	AdminStatus string `json:"admin_status" bson:"admin_status"`
}

// EVSE is the persisted projection of a single charge point.
type EVSE struct {
	Id          string `json:"evse_id" bson:"evse_id"`
	StationId   string `json:"station_id" bson:"station_id"`
	IsEnabled   bool   `json:"is_enabled" bson:"is_enabled"`
	Status      string `json:"status" bson:"status"`
	AdminStatus string `json:"admin_status" bson:"admin_status"`
}

// Address is a descriptive pool attribute inherited by stations unless
// overridden.
type Address struct {
	Street   string `json:"street" bson:"street"`
	City     string `json:"city" bson:"city"`
	PostCode string `json:"post_code" bson:"post_code"`
	Country  string `json:"country" bson:"country"`
}

// GeoCoordinate is a WGS84 point.
type GeoCoordinate struct {
	Latitude  float64 `json:"latitude" bson:"latitude"`
	Longitude float64 `json:"longitude" bson:"longitude"`
}
