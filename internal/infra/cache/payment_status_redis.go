package cache

import (
	"context"
	"errors"
	"time"

	"github.com/rs-labo46/storefront/internal/domain/model"

	"github.com/redis/go-redis/v9"
)

const (
	keyPrefix = "storefront:payment_status:"
	// 終端ステータスは変わらないので長めでよい
	DefaultTTL = 24 * time.Hour
)

func NewRedisClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  time.Second,
		WriteTimeout: time.Second,
	})
}

// 支払いの終端ステータスを参照番号ごとに持つ
type PaymentStatusRedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewPaymentStatusRedisCache(client *redis.Client, ttl time.Duration) *PaymentStatusRedisCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &PaymentStatusRedisCache{client: client, ttl: ttl}
}

func Key(outTradeNo string) string {
	return keyPrefix + outTradeNo
}

func (c *PaymentStatusRedisCache) Get(ctx context.Context, outTradeNo string) (model.PaymentStatus, bool, error) {
	v, err := c.client.Get(ctx, Key(outTradeNo)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return model.PaymentStatus(v), true, nil
}

// PENDINGは書かない
func (c *PaymentStatusRedisCache) Set(ctx context.Context, outTradeNo string, status model.PaymentStatus) error {
	if !status.IsTerminal() {
		return nil
	}
	return c.client.Set(ctx, Key(outTradeNo), string(status), c.ttl).Err()
}
