package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"plancheck-backend/internal/shared/telemetry"
)

const channelPrefix = "plancheck:analysis:"

// RedisBus delivers events across API instances over Redis pub/sub.
type RedisBus struct {
	rdb *goredis.Client
}

// NewRedisClient connects and pings addr.
func NewRedisClient(addr string) (*goredis.Client, error) {
	addr = strings.TrimSpace(addr)
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return rdb, nil
}

func NewRedisBus(rdb *goredis.Client) *RedisBus {
	return &RedisBus{rdb: rdb}
}

func channelFor(analysisID string) string {
	return channelPrefix + analysisID
}

func (b *RedisBus) Publish(ctx context.Context, ev Event) error {
	if b == nil || b.rdb == nil {
		return fmt.Errorf("redis bus not initialized")
	}
	raw, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, channelFor(ev.AnalysisID), raw).Err()
}

func (b *RedisBus) Subscribe(ctx context.Context, analysisID string) (<-chan Event, error) {
	if b == nil || b.rdb == nil {
		return nil, fmt.Errorf("redis bus not initialized")
	}
	sub := b.rdb.Subscribe(ctx, channelFor(analysisID))
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}

	out := make(chan Event, subscriberBuffer)
	go func() {
		defer close(out)
		defer sub.Close()
		in := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case m, ok := <-in:
				if !ok || m == nil {
					return
				}
				ev, err := decodeEvent(m.Payload)
				if err != nil {
					telemetry.Warn("notify.bad_payload", map[string]any{
						"channel": m.Channel,
						"error":   err,
					})
					continue
				}
				select {
				case out <- ev:
				default:
				}
			}
		}
	}()
	return out, nil
}

func decodeEvent(payload string) (Event, error) {
	var ev Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return Event{}, err
	}
	if ev.AnalysisID == "" {
		return Event{}, fmt.Errorf("event without analysisId")
	}
	return ev, nil
}

func (b *RedisBus) Close() error {
	if b == nil || b.rdb == nil {
		return nil
	}
	return b.rdb.Close()
}
