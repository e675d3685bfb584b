package sessioncache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"evpool/internal/config"
	"evpool/models"

	"github.com/redis/go-redis/v9"
)

// Store mirrors the active charging sessions into redis so external
// read-only consumers need not call into the pool.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

func NewStore(conf *config.Config) (*Store, error) {
	if !conf.Redis.Enabled {
		return nil, nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     conf.Redis.Address,
		Password: conf.Redis.Password,
		DB:       conf.Redis.DB,
	})
	ttl := time.Duration(conf.Redis.TTLHours) * time.Hour
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Store{client: client, ttl: ttl}, nil
}

func (s *Store) key(sessionId string) string {
	return fmt.Sprintf("sessions:active:%s", sessionId)
}

// Save caches an active session.
func (s *Store) Save(ctx context.Context, session *models.ChargingSession) error {
	data, err := json.Marshal(session)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.key(session.Id), data, s.ttl).Err()
}

// Get returns a cached session.
func (s *Store) Get(ctx context.Context, sessionId string) (*models.ChargingSession, error) {
	result, err := s.client.Get(ctx, s.key(sessionId)).Result()
	if err != nil {
		return nil, err
	}
	var session models.ChargingSession
	if err := json.Unmarshal([]byte(result), &session); err != nil {
		return nil, err
	}
	return &session, nil
}

// Delete removes a cached session once it ended.
func (s *Store) Delete(ctx context.Context, sessionId string) error {
	return s.client.Del(ctx, s.key(sessionId)).Err()
}

func (s *Store) Close() error {
	return s.client.Close()
}
