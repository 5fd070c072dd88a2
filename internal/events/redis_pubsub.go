package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// historyMaxLen caps the per-stream replay log kept next to pub/sub.
const historyMaxLen = 1000

func historyKey(stream string) string {
	return stream + ":history"
}

// RedisPublisher fans events out over pub/sub and appends them to a capped
// Redis stream, so late subscribers can replay recent history.
type RedisPublisher struct {
	client *redis.Client
	log    *zap.Logger
}

func NewRedisPublisher(client *redis.Client, log *zap.Logger) *RedisPublisher {
	return &RedisPublisher{client: client, log: log}
}

func (p *RedisPublisher) Publish(ctx context.Context, stream string, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	pipe := p.client.TxPipeline()
	pipe.Publish(ctx, stream, data)
	pipe.XAdd(ctx, &redis.XAddArgs{
		Stream: historyKey(stream),
		MaxLen: historyMaxLen,
		Approx: true,
		Values: map[string]any{"event": string(data)},
	})
	if _, err := pipe.Exec(ctx); err != nil {
		p.log.Warn("failed to publish event", zap.String("stream", stream), zap.String("type", event.Type), zap.Error(err))
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	return nil
}

// Recent returns up to n of the latest events on stream, oldest first.
func (p *RedisPublisher) Recent(ctx context.Context, stream string, n int64) ([]Event, error) {
	msgs, err := p.client.XRevRangeN(ctx, historyKey(stream), "+", "-", n).Result()
	if err != nil {
		return nil, err
	}
	out := make([]Event, 0, len(msgs))
	for i := len(msgs) - 1; i >= 0; i-- {
		raw, _ := msgs[i].Values["event"].(string)
		var ev Event
		if err := json.Unmarshal([]byte(raw), &ev); err != nil {
			continue
		}
		out = append(out, ev)
	}
	return out, nil
}

type RedisSubscriber struct {
	client *redis.Client
	log    *zap.Logger
}

func NewRedisSubscriber(client *redis.Client, log *zap.Logger) *RedisSubscriber {
	return &RedisSubscriber{client: client, log: log}
}

// Subscribe delivers events on stream to handler until ctx is done.
func (s *RedisSubscriber) Subscribe(ctx context.Context, stream string, handler func(Event)) error {
	pubsub := s.client.Subscribe(ctx, stream)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("subscribe %s: %w", stream, err)
	}
	ch := pubsub.Channel()

	go func() {
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					s.log.Warn("subscription closed", zap.String("stream", stream))
					return
				}
				var event Event
				if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
					s.log.Error("failed to unmarshal event", zap.String("stream", stream), zap.Error(err))
					continue
				}
				handler(event)
			}
		}
	}()

	return nil
}
