package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/slavierouse/sound-your-scene/config"
	"github.com/slavierouse/sound-your-scene/internal/job"
)

const (
	jobKeyPrefix    = "soundscene:job:"
	resultKeyPrefix = "soundscene:results:"
)

// Redis stores jobs and results as JSON blobs under prefixed keys. Keys
// expire after the configured TTL so abandoned sessions clean themselves up.
type Redis struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedis connects to Redis and verifies the connection with a ping.
func NewRedis(ctx context.Context, cfg config.RedisConfig) (*Redis, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, fmt.Errorf("connecting to redis: %w", err)
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Redis{client: client, ttl: ttl}, nil
}

func (r *Redis) Put(ctx context.Context, j *job.SearchJob) error {
	data, err := json.Marshal(j)
	if err != nil {
		return fmt.Errorf("marshaling job: %w", err)
	}
	if err := r.client.Set(ctx, jobKeyPrefix+j.ID, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("storing job: %w", err)
	}
	return nil
}

func (r *Redis) Get(ctx context.Context, id string) (*job.SearchJob, error) {
	data, err := r.client.Get(ctx, jobKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching job: %w", err)
	}
	var j job.SearchJob
	if err := json.Unmarshal(data, &j); err != nil {
		return nil, fmt.Errorf("unmarshaling job: %w", err)
	}
	return &j, nil
}

func (r *Redis) SetResults(ctx context.Context, jobID string, results []job.RankedResult) error {
	data, err := json.Marshal(results)
	if err != nil {
		return fmt.Errorf("marshaling results: %w", err)
	}
	if err := r.client.Set(ctx, resultKeyPrefix+jobID, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("storing results: %w", err)
	}
	return nil
}

func (r *Redis) GetResults(ctx context.Context, jobID string) ([]job.RankedResult, error) {
	data, err := r.client.Get(ctx, resultKeyPrefix+jobID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching results: %w", err)
	}
	var results []job.RankedResult
	if err := json.Unmarshal(data, &results); err != nil {
		return nil, fmt.Errorf("unmarshaling results: %w", err)
	}
	return results, nil
}

// Close releases the underlying client.
func (r *Redis) Close() error { return r.client.Close() }
