// Package events announces application lifecycle changes.
//
// Events are published on a Redis channel named after the event type.
// Delivery is best-effort: callers log publish failures and carry on.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/spigell/placement-engine/internal/placement"
)

type Type string

const (
	ApplicationScored   Type = "application.scored"
	ApplicationAccepted Type = "application.accepted"
	ApplicationRejected Type = "application.rejected"
)

// Event is the JSON payload of a lifecycle notification.
type Event struct {
	Type          Type             `json:"type"`
	ApplicationID string           `json:"applicationId"`
	StudentID     string           `json:"studentId"`
	JobID         string           `json:"jobId"`
	From          placement.Status `json:"from,omitempty"`
	To            placement.Status `json:"to"`
	Score         int              `json:"score"`
	At            time.Time        `json:"at"`
}

// ForApplication builds an event describing app after a transition from from.
func ForApplication(t Type, app *placement.Application, from placement.Status) Event {
	return Event{
		Type:          t,
		ApplicationID: app.ID,
		StudentID:     app.StudentID,
		JobID:         app.JobID,
		From:          from,
		To:            app.Status,
		Score:         app.ResumeScore,
		At:            app.UpdatedAt,
	}
}

type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// redisClient is the subset of *redis.Client the publisher needs.
type redisClient interface {
	Publish(ctx context.Context, channel string, message any) *redis.IntCmd
}

type RedisPublisher struct {
	client redisClient
	prefix string
}

// NewRedisPublisher publishes on "<prefix><type>" channels.
func NewRedisPublisher(client redisClient, prefix string) *RedisPublisher {
	return &RedisPublisher{client: client, prefix: prefix}
}

func (p *RedisPublisher) Publish(ctx context.Context, event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", event.Type, err)
	}
	if err := p.client.Publish(ctx, p.prefix+string(event.Type), payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	return nil
}

// NewRedisClient parses url and verifies the connection.
func NewRedisClient(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

// Nop discards events.
type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
