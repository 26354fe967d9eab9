package records

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/organlink/platform/pkg/common/models"
	"github.com/redis/go-redis/v9"
)

const policyKeyPrefix = "organlink:policies:implemented:"

// PolicyCache keeps the implemented policies per organ in Redis.
type PolicyCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewPolicyCache(client *redis.Client, ttl time.Duration) *PolicyCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &PolicyCache{client: client, ttl: ttl}
}

func policyKey(organ string) string {
	return policyKeyPrefix + organ
}

// Get reports a miss with ok=false and a nil error.
func (c *PolicyCache) Get(ctx context.Context, organ string) ([]models.Policy, bool, error) {
	data, err := c.client.Get(ctx, policyKey(organ)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	var policies []models.Policy
	if err := json.Unmarshal(data, &policies); err != nil {
		return nil, false, err
	}
	return policies, true, nil
}

func (c *PolicyCache) Set(ctx context.Context, organ string, policies []models.Policy) error {
	if policies == nil {
		policies = []models.Policy{}
	}
	data, err := json.Marshal(policies)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, policyKey(organ), data, c.ttl).Err()
}

func (c *PolicyCache) Invalidate(ctx context.Context, organs ...string) error {
	if len(organs) == 0 {
		return nil
	}
	keys := make([]string, len(organs))
	for i, organ := range organs {
		keys[i] = policyKey(organ)
	}
	return c.client.Del(ctx, keys...).Err()
}
