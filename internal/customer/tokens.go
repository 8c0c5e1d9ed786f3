package customer

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// TokenStore tracks the live tokens of each customer in a Redis set
type TokenStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewTokenStore(client redis.UniversalClient, ttl time.Duration) *TokenStore {
	return &TokenStore{client: client, ttl: ttl}
}

func tokenKey(customerID string) string {
	return "token:" + customerID
}

// Add stores token and extends the set lifetime to the token TTL
func (s *TokenStore) Add(ctx context.Context, customerID, token string) error {
	key := tokenKey(customerID)
	pipe := s.client.TxPipeline()
	pipe.SAdd(ctx, key, token)
	if s.ttl > 0 {
		pipe.Expire(ctx, key, s.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("customer: store token: %w", err)
	}
	return nil
}

func (s *TokenStore) Has(ctx context.Context, customerID, token string) (bool, error) {
	ok, err := s.client.SIsMember(ctx, tokenKey(customerID), token).Result()
	if err != nil {
		return false, fmt.Errorf("customer: check token: %w", err)
	}
	return ok, nil
}

func (s *TokenStore) Remove(ctx context.Context, customerID, token string) error {
	if err := s.client.SRem(ctx, tokenKey(customerID), token).Err(); err != nil {
		return fmt.Errorf("customer: remove token: %w", err)
	}
	return nil
}

// RecordView counts a PRODUCT_VIEWED notification for the customer
func (s *TokenStore) RecordView(ctx context.Context, customerID, productID string) (int64, error) {
	n, err := s.client.HIncrBy(ctx, "views:"+customerID, productID, 1).Result()
	if err != nil {
		return 0, fmt.Errorf("customer: record view: %w", err)
	}
	return n, nil
}
