package services

import (
	"context"
	"encoding/json"
	"log"

	"github.com/redis/go-redis/v9"

	"barista-backend/internal/models"
)

// EventPublisher fans turn events out to observers. Publishing is best
// effort and never fails a turn.
type EventPublisher interface {
	PublishTurn(ctx context.Context, event models.TurnEvent)
}

type nopPublisher struct{}

func (nopPublisher) PublishTurn(context.Context, models.TurnEvent) {}

// RedisEventPublisher publishes turn events on the session's pub/sub channel.
type RedisEventPublisher struct {
	redis *redis.Client
}

func NewRedisEventPublisher(redisClient *redis.Client) *RedisEventPublisher {
	return &RedisEventPublisher{redis: redisClient}
}

func (p *RedisEventPublisher) PublishTurn(ctx context.Context, event models.TurnEvent) {
	data, err := json.Marshal(event)
	if err != nil {
		log.Printf("Failed to encode turn event: %v", err)
		return
	}
	if err := p.redis.Publish(ctx, models.SessionEventsChannel(event.SessionID), data).Err(); err != nil {
		log.Printf("Failed to publish turn event for session %s: %v", event.SessionID, err)
	}
}

func attemptEvents(attempts []Attempt) []models.AttemptEvent {
	out := make([]models.AttemptEvent, 0, len(attempts))
	for _, a := range attempts {
		ev := models.AttemptEvent{
			Index:     a.Index,
			Model:     a.Model,
			Outcome:   "success",
			BackoffMs: a.Backoff.Milliseconds(),
		}
		if a.Err != nil {
			ev.Outcome = a.Class.String()
			ev.Error = a.Err.Error()
		}
		out = append(out, ev)
	}
	return out
}
