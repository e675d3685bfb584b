package internal

import (
	"context"
	"fmt"
	"log"

	"evpool/internal/config"
	"evpool/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	collectionLog          = "sys_log"
	collectionStations     = "charging_stations"
	collectionEVSEs        = "evses"
	collectionReservations = "reservations"
	collectionSessions     = "sessions"
	collectionRecords      = "charge_detail_records"
)

type MongoDB struct {
	ctx           context.Context
	clientOptions *options.ClientOptions
	database      string
}

func NewMongoClient(conf *config.Config) (*MongoDB, error) {
	if !conf.Mongo.Enabled {
		return nil, nil
	}
	connectionUri := fmt.Sprintf("mongodb://%s:%s", conf.Mongo.Host, conf.Mongo.Port)
	clientOptions := options.Client().ApplyURI(connectionUri)
	if conf.Mongo.User != "" {
		clientOptions.SetAuth(options.Credential{
			Username:   conf.Mongo.User,
			Password:   conf.Mongo.Password,
			AuthSource: conf.Mongo.Database,
		})
	}
	client := &MongoDB{
		ctx:           context.Background(),
		clientOptions: clientOptions,
		database:      conf.Mongo.Database,
	}
	return client, nil
}

func (m *MongoDB) connect() (*mongo.Client, error) {
	connection, err := mongo.Connect(m.ctx, m.clientOptions)
	if err != nil {
		return nil, err
	}
	return connection, nil
}

func (m *MongoDB) disconnect(connection *mongo.Client) {
	err := connection.Disconnect(m.ctx)
	if err != nil {
		log.Println("mongodb disconnect error;", err)
	}
}

func (m *MongoDB) Write(table string, data Data) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)
	collection := connection.Database(m.database).Collection(table)
	_, err = collection.InsertOne(m.ctx, data)
	return err
}

func (m *MongoDB) WriteLogMessage(data Data) error {
	return m.Write(collectionLog, data)
}

func (m *MongoDB) ReadLog() (interface{}, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	var logMessages []FeatureLogMessage
	collection := connection.Database(m.database).Collection(collectionLog)
	opts := options.Find().SetSort(bson.D{{Key: "time", Value: -1}}).SetLimit(1000)
	cursor, err := collection.Find(m.ctx, bson.D{}, opts)
	if err != nil {
		return nil, err
	}
	if err = cursor.All(m.ctx, &logMessages); err != nil {
		return nil, err
	}
	return logMessages, nil
}

func (m *MongoDB) GetChargingStations(poolId string) ([]models.ChargingStation, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	var stations []models.ChargingStation
	collection := connection.Database(m.database).Collection(collectionStations)
	cursor, err := collection.Find(m.ctx, bson.D{{Key: "pool_id", Value: poolId}})
	if err != nil {
		return nil, err
	}
	if err = cursor.All(m.ctx, &stations); err != nil {
		return nil, err
	}
	return stations, nil
}

func (m *MongoDB) GetEVSEs(poolId string) ([]models.EVSE, error) {
	connection, err := m.connect()
	if err != nil {
		return nil, err
	}
	defer m.disconnect(connection)

	var evses []models.EVSE
	collection := connection.Database(m.database).Collection(collectionEVSEs)
	cursor, err := collection.Find(m.ctx, bson.D{})
	if err != nil {
		return nil, err
	}
	if err = cursor.All(m.ctx, &evses); err != nil {
		return nil, err
	}
	return evses, nil
}

func (m *MongoDB) UpdateChargingStation(station *models.ChargingStation) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	filter := bson.D{{Key: "station_id", Value: station.Id}}
	update := bson.M{"$set": station}
	opts := options.Update().SetUpsert(true)
	collection := connection.Database(m.database).Collection(collectionStations)
	_, err = collection.UpdateOne(m.ctx, filter, update, opts)
	return err
}

func (m *MongoDB) UpdateEVSE(evse *models.EVSE) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	filter := bson.D{{Key: "evse_id", Value: evse.Id}}
	update := bson.M{"$set": evse}
	opts := options.Update().SetUpsert(true)
	collection := connection.Database(m.database).Collection(collectionEVSEs)
	_, err = collection.UpdateOne(m.ctx, filter, update, opts)
	return err
}

func (m *MongoDB) AddReservation(reservation *models.ChargingReservation) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(collectionReservations)
	_, err = collection.InsertOne(m.ctx, reservation)
	return err
}

func (m *MongoDB) DeleteReservation(reservationId string) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(collectionReservations)
	_, err = collection.DeleteOne(m.ctx, bson.D{{Key: "reservation_id", Value: reservationId}})
	return err
}

func (m *MongoDB) AddSession(session *models.ChargingSession) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(collectionSessions)
	_, err = collection.InsertOne(m.ctx, session)
	return err
}

func (m *MongoDB) DeleteSession(sessionId string) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(collectionSessions)
	_, err = collection.DeleteOne(m.ctx, bson.D{{Key: "session_id", Value: sessionId}})
	return err
}

func (m *MongoDB) AddChargeDetailRecord(record *models.ChargeDetailRecord) error {
	connection, err := m.connect()
	if err != nil {
		return err
	}
	defer m.disconnect(connection)

	collection := connection.Database(m.database).Collection(collectionRecords)
	_, err = collection.InsertOne(m.ctx, record)
	return err
}
