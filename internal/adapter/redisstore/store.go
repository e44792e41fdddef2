// Package redisstore adapts the realtime Redis key-value store to the
// engine's Store contract.
//
// Key layout:
//
//	node:{id}        sensor node registration
//	wind             current regional wind observation
//	weather:{nodeId} latest ambient reading per node
//	rainfall:{nodeId}
//	aerial:{nodeId}
//	sector:{id}      engine-published sector state
//	unit:{id}        engine-published aerial unit state
//	alert:{id}       engine-published alerts
//
// All values are JSON. Readings are written by the ingest side and only read
// here; a missing reading is not an error.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/couchcryptid/cloudburst-engine/internal/domain"
)

const scanBatch = 200

// Store is a Redis-backed realtime store.
type Store struct {
	client *redis.Client
}

// New wraps an existing Redis client.
func New(client *redis.Client) *Store {
	return &Store{client: client}
}

// NewFromAddr dials Redis at addr and verifies the connection.
func NewFromAddr(ctx context.Context, addr, password string, db int) (*Store, error) {
	client := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis at %s: %w", addr, err)
	}
	return New(client), nil
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.client.Close()
}

// Ping checks store liveness.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Nodes returns every registered sensor node.
func (s *Store) Nodes(ctx context.Context) ([]domain.SensorNode, error) {
	keys, err := s.scanKeys(ctx, "node:*")
	if err != nil {
		return nil, fmt.Errorf("scan nodes: %w", err)
	}
	nodes := make([]domain.SensorNode, 0, len(keys))
	for _, key := range keys {
		var n domain.SensorNode
		ok, err := s.getJSON(ctx, key, &n)
		if err != nil {
			return nil, err
		}
		if ok {
			nodes = append(nodes, n)
		}
	}
	return nodes, nil
}

// Wind returns the current wind observation, or nil when none is present.
func (s *Store) Wind(ctx context.Context) (*domain.WindData, error) {
	var w domain.WindData
	ok, err := s.getJSON(ctx, "wind", &w)
	if err != nil || !ok {
		return nil, err
	}
	return &w, nil
}

// Weather returns the latest ambient reading for a node, or nil.
func (s *Store) Weather(ctx context.Context, nodeID string) (*domain.WeatherReading, error) {
	var r domain.WeatherReading
	ok, err := s.getJSON(ctx, "weather:"+nodeID, &r)
	if err != nil || !ok {
		return nil, err
	}
	return &r, nil
}

// Rainfall returns the latest rain-gauge reading for a node, or nil.
func (s *Store) Rainfall(ctx context.Context, nodeID string) (*domain.RainfallReading, error) {
	var r domain.RainfallReading
	ok, err := s.getJSON(ctx, "rainfall:"+nodeID, &r)
	if err != nil || !ok {
		return nil, err
	}
	return &r, nil
}

// Aerial returns the latest airborne reading over a node's sector, or nil.
func (s *Store) Aerial(ctx context.Context, nodeID string) (*domain.AerialReading, error) {
	var r domain.AerialReading
	ok, err := s.getJSON(ctx, "aerial:"+nodeID, &r)
	if err != nil || !ok {
		return nil, err
	}
	return &r, nil
}

// PutSector publishes sector state.
func (s *Store) PutSector(ctx context.Context, sector domain.Sector) error {
	return s.setJSON(ctx, "sector:"+sector.ID, sector)
}

// PutUnit publishes aerial unit state.
func (s *Store) PutUnit(ctx context.Context, unit domain.AerialUnit) error {
	return s.setJSON(ctx, "unit:"+unit.ID, unit)
}

// PutAlert persists an alert.
func (s *Store) PutAlert(ctx context.Context, a domain.Alert) error {
	return s.setJSON(ctx, "alert:"+a.ID, a)
}

// PutNode registers a sensor node. Used by ingest and seeding tools.
func (s *Store) PutNode(ctx context.Context, n domain.SensorNode) error {
	return s.setJSON(ctx, "node:"+n.ID, n)
}

// PutWind stores the regional wind observation.
func (s *Store) PutWind(ctx context.Context, w domain.WindData) error {
	return s.setJSON(ctx, "wind", w)
}

// PutWeather stores a node's ambient reading.
func (s *Store) PutWeather(ctx context.Context, nodeID string, r domain.WeatherReading) error {
	return s.setJSON(ctx, "weather:"+nodeID, r)
}

// PutRainfall stores a node's rain-gauge reading.
func (s *Store) PutRainfall(ctx context.Context, nodeID string, r domain.RainfallReading) error {
	return s.setJSON(ctx, "rainfall:"+nodeID, r)
}

// PutAerial stores an airborne reading over a node's sector.
func (s *Store) PutAerial(ctx context.Context, nodeID string, r domain.AerialReading) error {
	return s.setJSON(ctx, "aerial:"+nodeID, r)
}

// Sectors returns every published sector.
func (s *Store) Sectors(ctx context.Context) ([]domain.Sector, error) {
	keys, err := s.scanKeys(ctx, "sector:*")
	if err != nil {
		return nil, fmt.Errorf("scan sectors: %w", err)
	}
	sectors := make([]domain.Sector, 0, len(keys))
	for _, key := range keys {
		var sec domain.Sector
		ok, err := s.getJSON(ctx, key, &sec)
		if err != nil {
			return nil, err
		}
		if ok {
			sectors = append(sectors, sec)
		}
	}
	return sectors, nil
}

func (s *Store) getJSON(ctx context.Context, key string, dst any) (bool, error) {
	raw, err := s.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("get %s: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		// A corrupt value degrades to a miss rather than poisoning the cycle.
		return false, nil
	}
	return true, nil
}

func (s *Store) setJSON(ctx context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", key, err)
	}
	if err := s.client.Set(ctx, key, raw, 0).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (s *Store) scanKeys(ctx context.Context, pattern string) ([]string, error) {
	var keys []string
	var cursor uint64
	for {
		batch, next, err := s.client.Scan(ctx, cursor, pattern, scanBatch).Result()
		if err != nil {
			return nil, err
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			return keys, nil
		}
	}
}
