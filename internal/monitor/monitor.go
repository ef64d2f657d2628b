// Package monitor publishes live pool occupancy to Redis so an operator
// can watch how busy the pools are (the session reports the discovery and
// download pools; the extraction pool is not reported) without
// querying the tracker, grounded on a Redis-backed instance registry
// pattern.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

const (
	keyPrefix = "phenodcc:pools:"
	// entries expire on their own if a crashed process stops heartbeating.
	entryTTL = 5 * time.Minute
)

// Heartbeat is the occupancy snapshot of one pool at one moment.
type Heartbeat struct {
	Pool      string    `json:"pool"`
	Occupied  int       `json:"occupied"`
	Capacity  int       `json:"capacity"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Monitor reports pool occupancy to Redis. A nil *Monitor is valid and
// every method on it is a no-op, so callers can wire it unconditionally;
// New returns a nil *Monitor when no redis URL was configured.
type Monitor struct {
	client *redis.Client
}

// New parses redisURL and pings it once so configuration mistakes are
// caught at startup rather than on the first heartbeat. An empty
// redisURL returns a nil *Monitor, not an error.
func New(redisURL string) (*Monitor, error) {
	if redisURL == "" {
		return nil, nil
	}
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("monitor: parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("monitor: connect: %w", err)
	}
	return &Monitor{client: client}, nil
}

// Report publishes one pool's occupancy. Safe to call on a nil Monitor.
func (m *Monitor) Report(ctx context.Context, pool string, occupied, capacity int) error {
	if m == nil {
		return nil
	}
	hb := Heartbeat{Pool: pool, Occupied: occupied, Capacity: capacity, UpdatedAt: time.Now().UTC()}
	data, err := json.Marshal(hb)
	if err != nil {
		return fmt.Errorf("monitor: marshal heartbeat: %w", err)
	}
	return m.client.Set(ctx, keyPrefix+pool, data, entryTTL).Err()
}

// Snapshot reads back every pool's last reported heartbeat, for an
// operator dashboard or a CLI status command.
func (m *Monitor) Snapshot(ctx context.Context) ([]Heartbeat, error) {
	if m == nil {
		return nil, nil
	}
	keys, err := m.client.Keys(ctx, keyPrefix+"*").Result()
	if err != nil {
		return nil, fmt.Errorf("monitor: list keys: %w", err)
	}
	out := make([]Heartbeat, 0, len(keys))
	for _, key := range keys {
		data, err := m.client.Get(ctx, key).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("monitor: get %s: %w", key, err)
		}
		var hb Heartbeat
		if err := json.Unmarshal([]byte(data), &hb); err != nil {
			return nil, fmt.Errorf("monitor: unmarshal %s: %w", key, err)
		}
		out = append(out, hb)
	}
	return out, nil
}

// Close releases the underlying Redis connection. Safe to call on a nil
// Monitor.
func (m *Monitor) Close() error {
	if m == nil {
		return nil
	}
	return m.client.Close()
}
