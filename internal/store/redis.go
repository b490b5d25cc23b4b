package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/govgate-protocol/govgate/internal/models"
)

const (
	inboxTTL  = 24 * time.Hour
	reviewTTL = 7 * 24 * time.Hour
)

// RedisStore holds the hot lane data: fast-lane inboxes per recipient and
// the shared deliberation review queue. Both are sorted sets scored by
// delivery time.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Client exposes the raw client for the rate-limiting middleware.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// inboxKey returns the key for an agent's fast-lane inbox.
func inboxKey(agentID string) string {
	return fmt.Sprintf("inbox:%s", agentID)
}

// reviewQueueKey is the shared deliberation review queue.
const reviewQueueKey = "review:queue"

// Delivery is a message paired with its governance decision, as stored in
// a lane.
type Delivery struct {
	Message  *models.Message          `json:"message"`
	Decision *models.ValidationResult `json:"decision"`
}

// DeliverFast places a message in the recipient's inbox.
func (s *RedisStore) DeliverFast(ctx context.Context, msg *models.Message, res *models.ValidationResult) error {
	data, err := json.Marshal(Delivery{Message: msg, Decision: res})
	if err != nil {
		return err
	}

	key := inboxKey(msg.ToAgent)
	if err := s.client.ZAdd(ctx, key, redis.Z{
		Score:  float64(res.Timestamp.UnixMilli()),
		Member: string(data),
	}).Err(); err != nil {
		return err
	}
	s.client.Expire(ctx, key, inboxTTL)
	return nil
}

// EnqueueDeliberation places a message in the review queue ordered by
// impact score, highest risk first.
func (s *RedisStore) EnqueueDeliberation(ctx context.Context, msg *models.Message, res *models.ValidationResult) error {
	data, err := json.Marshal(Delivery{Message: msg, Decision: res})
	if err != nil {
		return err
	}

	if err := s.client.ZAdd(ctx, reviewQueueKey, redis.Z{
		Score:  res.ImpactScore,
		Member: string(data),
	}).Err(); err != nil {
		return err
	}
	s.client.Expire(ctx, reviewQueueKey, reviewTTL)
	return nil
}

// GetInbox retrieves an agent's fast-lane deliveries, newest first.
func (s *RedisStore) GetInbox(ctx context.Context, agentID string, limit int) ([]Delivery, error) {
	if limit <= 0 {
		limit = 50
	}

	results, err := s.client.ZRevRange(ctx, inboxKey(agentID), 0, int64(limit)-1).Result()
	if err != nil {
		return nil, err
	}

	deliveries := make([]Delivery, 0, len(results))
	for _, data := range results {
		var d Delivery
		if err := json.Unmarshal([]byte(data), &d); err != nil {
			continue
		}
		deliveries = append(deliveries, d)
	}
	return deliveries, nil
}

// GetReviewQueue retrieves pending deliberation items, highest risk first.
func (s *RedisStore) GetReviewQueue(ctx context.Context, limit int) ([]Delivery, error) {
	if limit <= 0 {
		limit = 50
	}

	results, err := s.client.ZRevRange(ctx, reviewQueueKey, 0, int64(limit)-1).Result()
	if err != nil {
		return nil, err
	}

	deliveries := make([]Delivery, 0, len(results))
	for _, data := range results {
		var d Delivery
		if err := json.Unmarshal([]byte(data), &d); err != nil {
			continue
		}
		deliveries = append(deliveries, d)
	}
	return deliveries, nil
}

// ResolveReview removes a reviewed item from the queue by decision id.
// Returns true when an item was removed.
func (s *RedisStore) ResolveReview(ctx context.Context, decisionID string) (bool, error) {
	results, err := s.client.ZRange(ctx, reviewQueueKey, 0, -1).Result()
	if err != nil {
		return false, err
	}
	for _, data := range results {
		var d Delivery
		if err := json.Unmarshal([]byte(data), &d); err != nil {
			continue
		}
		if d.Decision != nil && d.Decision.DecisionID == decisionID {
			removed, err := s.client.ZRem(ctx, reviewQueueKey, data).Result()
			return removed > 0, err
		}
	}
	return false, nil
}
