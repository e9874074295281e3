package infrastructure

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"

	"remnabot/internal/config"
)

func NewRedisClient(ctx context.Context, cfg config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, errors.Wrap(err, "ping redis")
	}
	return rdb, nil
}

// Deduper remembers keys for a while so that redelivered Telegram updates and
// payment callbacks are processed once.
type Deduper struct {
	rdb redis.Cmdable
}

func NewDeduper(rdb redis.Cmdable) *Deduper {
	return &Deduper{rdb: rdb}
}

// Seen marks key and reports whether it was already marked.
func (d *Deduper) Seen(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	stored, err := d.rdb.SetNX(ctx, key, 1, ttl).Result()
	if err != nil {
		return false, errors.Wrapf(err, "setnx %s", key)
	}
	return !stored, nil
}

// Forget drops key so that a failed delivery can be retried.
func (d *Deduper) Forget(ctx context.Context, key string) error {
	if err := d.rdb.Del(ctx, key).Err(); err != nil {
		return errors.Wrapf(err, "del %s", key)
	}
	return nil
}

func UpdateKey(botID int64, updateID int) string {
	return "tg:update:" + strconv.FormatInt(botID, 10) + ":" + strconv.Itoa(updateID)
}

func PaymentKey(gateway, externalID string) string {
	return fmt.Sprintf("pay:%s:%s", gateway, externalID)
}
