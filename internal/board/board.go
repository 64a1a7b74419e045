package board

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/example/uniride/internal/models"
)

// Entry is the route-board summary of one open ride. The board is a
// read-optimized cache fed by the Kafka consumer; the authoritative ride
// state always lives in storage.
type Entry struct {
	RideID         int64           `json:"ride_id"`
	From           string          `json:"from"`
	To             string          `json:"to"`
	Type           models.RideType `json:"ride_type"`
	AvailableSlots int             `json:"available_slots"`
	FemalesOnly    bool            `json:"females_only"`
}

// Updater is the subset of board operations the consumer needs; tests swap in
// a fake.
type Updater interface {
	Update(ctx context.Context, r models.Ride) error
	Remove(ctx context.Context, rideID int64) error
}

// RedisBoard stores open-ride entries in one hash keyed by ride ID.
type RedisBoard struct {
	client *redis.Client
	key    string
}

func NewRedisBoard(addr, password, key string) *RedisBoard {
	c := redis.NewClient(&redis.Options{Addr: addr, Password: password})
	return &RedisBoard{client: c, key: key}
}

// Update upserts an open ride's entry and drops entries for rides that are no
// longer joinable.
func (b *RedisBoard) Update(ctx context.Context, r models.Ride) error {
	if r.Status != models.RideOpen {
		return b.Remove(ctx, r.ID)
	}
	e := Entry{
		RideID:         r.ID,
		From:           r.From,
		To:             r.To,
		Type:           r.Type,
		AvailableSlots: r.MaxCapacity - r.CurrentCapacity,
		FemalesOnly:    r.FemalesOnly,
	}
	v, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return b.client.HSet(ctx, b.key, field(r.ID), v).Err()
}

func (b *RedisBoard) Remove(ctx context.Context, rideID int64) error {
	return b.client.HDel(ctx, b.key, field(rideID)).Err()
}

// List returns all board entries, optionally filtered to a route.
func (b *RedisBoard) List(ctx context.Context, from, to string) ([]Entry, error) {
	raw, err := b.client.HGetAll(ctx, b.key).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(raw))
	for _, v := range raw {
		var e Entry
		if err := json.Unmarshal([]byte(v), &e); err != nil {
			continue // skip malformed entries rather than failing the board
		}
		if from != "" && e.From != from {
			continue
		}
		if to != "" && e.To != to {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (b *RedisBoard) Ping(ctx context.Context) error { return b.client.Ping(ctx).Err() }

func (b *RedisBoard) Close() error { return b.client.Close() }

func field(id int64) string { return strconv.FormatInt(id, 10) }
