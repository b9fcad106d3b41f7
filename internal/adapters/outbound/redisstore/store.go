package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/underxbet/inplay-engine/internal/core/bet"
)

const (
	betKeyPrefix    = "bet:"
	eventsKeySuffix = ":events"
)

// Store keeps bet records in Redis under "bet:{event_id}" with a TTL,
// so records vanish on their own once the match is long over. SetNX
// makes placement atomic across concurrent evaluations.
type Store struct {
	rdb *redis.Client
}

func New(addr, password string, db int) *Store {
	return &Store{rdb: redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})}
}

// NewWithClient is for tests running against miniredis or a shared client.
func NewWithClient(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.rdb.Ping(ctx).Err()
}

func betKey(eventID string) string    { return betKeyPrefix + eventID }
func eventsKey(eventID string) string { return betKeyPrefix + eventID + eventsKeySuffix }

func (s *Store) PlaceIfAbsent(ctx context.Context, rec *bet.Record, ttl time.Duration) (bool, error) {
	data, err := json.Marshal(rec)
	if err != nil {
		return false, fmt.Errorf("marshal bet record: %w", err)
	}
	created, err := s.rdb.SetNX(ctx, betKey(rec.EventID), data, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("setnx %s: %w", rec.EventID, err)
	}
	return created, nil
}

func (s *Store) Get(ctx context.Context, eventID string) (*bet.Record, error) {
	data, err := s.rdb.Get(ctx, betKey(eventID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get bet %s: %w", eventID, err)
	}
	var rec bet.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode bet %s: %w", eventID, err)
	}
	return &rec, nil
}

// MarkCashedOut rewrites the record with the cashout flag set, keeping
// the remaining TTL so the record still expires on schedule.
func (s *Store) MarkCashedOut(ctx context.Context, eventID, reason string) error {
	rec, err := s.Get(ctx, eventID)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("mark cashed out %s: no record", eventID)
	}
	rec.Cashout = true
	rec.CashoutReason = reason

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal bet record: %w", err)
	}
	if err := s.rdb.Set(ctx, betKey(eventID), data, redis.KeepTTL).Err(); err != nil {
		return fmt.Errorf("mark cashed out %s: %w", eventID, err)
	}
	return nil
}

func (s *Store) AppendMatchEvent(ctx context.Context, eventID string, ev bet.MatchEvent) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal match event: %w", err)
	}
	key := eventsKey(eventID)
	pipe := s.rdb.Pipeline()
	pipe.RPush(ctx, key, data)
	pipe.Expire(ctx, key, 2*time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append match event %s: %w", eventID, err)
	}
	return nil
}

func (s *Store) MatchEvents(ctx context.Context, eventID string) ([]bet.MatchEvent, error) {
	items, err := s.rdb.LRange(ctx, eventsKey(eventID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("match events %s: %w", eventID, err)
	}
	out := make([]bet.MatchEvent, 0, len(items))
	for _, item := range items {
		var ev bet.MatchEvent
		if err := json.Unmarshal([]byte(item), &ev); err != nil {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

// ActiveEventIDs scans for live bet keys. SCAN over KEYS keeps Redis
// responsive; the live set is small.
func (s *Store) ActiveEventIDs(ctx context.Context) ([]string, error) {
	var out []string
	iter := s.rdb.Scan(ctx, 0, betKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		if strings.HasSuffix(key, eventsKeySuffix) {
			continue
		}
		eventID := strings.TrimPrefix(key, betKeyPrefix)
		rec, err := s.Get(ctx, eventID)
		if err != nil || rec == nil || rec.Cashout {
			continue
		}
		out = append(out, eventID)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan bets: %w", err)
	}
	return out, nil
}

func (s *Store) Close() error { return s.rdb.Close() }
