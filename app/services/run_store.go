package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/amirphl/lead-lifecycle/app/dto"
)

// ErrRunNotRecorded is returned when no run summary exists for an operator
var ErrRunNotRecorded = errors.New("run not recorded")

// MaintenanceRunStore keeps the most recent run summary per operator
type MaintenanceRunStore interface {
	SaveLastRun(ctx context.Context, summary dto.MaintenanceRunSummary) error
	LastRun(ctx context.Context, operator string) (*dto.MaintenanceRunSummary, error)
}

// RedisRunStore stores run summaries as JSON strings
type RedisRunStore struct {
	client *redis.Client
	prefix string
}

func NewRedisRunStore(client *redis.Client, prefix string) *RedisRunStore {
	return &RedisRunStore{client: client, prefix: prefix}
}

func (s *RedisRunStore) key(operator string) string {
	return s.prefix + "maintenance:last_run:" + operator
}

// SaveLastRun overwrites the operator's previous summary
func (s *RedisRunStore) SaveLastRun(ctx context.Context, summary dto.MaintenanceRunSummary) error {
	payload, err := json.Marshal(summary)
	if err != nil {
		return fmt.Errorf("failed to marshal run summary: %w", err)
	}
	if err := s.client.Set(ctx, s.key(summary.Operator), payload, 0).Err(); err != nil {
		return fmt.Errorf("failed to store run summary: %w", err)
	}
	return nil
}

// LastRun returns ErrRunNotRecorded when the key is absent
func (s *RedisRunStore) LastRun(ctx context.Context, operator string) (*dto.MaintenanceRunSummary, error) {
	raw, err := s.client.Get(ctx, s.key(operator)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrRunNotRecorded
		}
		return nil, fmt.Errorf("failed to read run summary: %w", err)
	}

	var summary dto.MaintenanceRunSummary
	if err := json.Unmarshal(raw, &summary); err != nil {
		return nil, fmt.Errorf("failed to decode run summary: %w", err)
	}
	return &summary, nil
}

// NoopRunStore is used when the cache is disabled
type NoopRunStore struct{}

func (NoopRunStore) SaveLastRun(context.Context, dto.MaintenanceRunSummary) error { return nil }

func (NoopRunStore) LastRun(context.Context, string) (*dto.MaintenanceRunSummary, error) {
	return nil, ErrRunNotRecorded
}
