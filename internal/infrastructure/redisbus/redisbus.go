// Package redisbus publishes plan events on a Redis pub/sub channel for the
// bot process and lets workers follow them.
package redisbus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/example/dropsched/internal/plans"
)

type Config struct {
	Addr     string
	Password string
	DB       int
	Channel  string
}

type message struct {
	NodeID string      `json:"node_id"`
	Event  plans.Event `json:"event"`
}

type Bus struct {
	client  *redis.Client
	channel string
	nodeID  string
	logger  zerolog.Logger
}

// New connects and pings Redis.
func New(ctx context.Context, cfg Config, nodeID string, logger zerolog.Logger) (*Bus, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	channel := cfg.Channel
	if channel == "" {
		channel = "dropsched:events"
	}
	logger.Info().Str("addr", cfg.Addr).Str("channel", channel).Msg("redis event bus initialized")
	return &Bus{client: client, channel: channel, nodeID: nodeID, logger: logger}, nil
}

func (b *Bus) Publish(ctx context.Context, ev plans.Event) error {
	payload, err := json.Marshal(message{NodeID: b.nodeID, Event: ev})
	if err != nil {
		return err
	}
	return b.client.Publish(ctx, b.channel, payload).Err()
}

// Subscribe streams events until ctx is done. Events published by this node
// are skipped.
func (b *Bus) Subscribe(ctx context.Context) (<-chan plans.Event, error) {
	ps := b.client.Subscribe(ctx, b.channel)
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis subscribe: %w", err)
	}

	out := make(chan plans.Event, 64)
	go func() {
		defer close(out)
		defer ps.Close()
		ch := ps.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var m message
				if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
					b.logger.Warn().Err(err).Msg("dropping malformed event")
					continue
				}
				if m.NodeID == b.nodeID {
					continue
				}
				select {
				case out <- m.Event:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

func (b *Bus) Close() error { return b.client.Close() }

var _ plans.Publisher = (*Bus)(nil)
