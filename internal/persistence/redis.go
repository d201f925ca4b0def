package persistence

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/fieldserve/visit-service/internal/config"
)

// Redis wraps the go-redis client. It backs the readable-id sequence and the
// notification unread counter.
type Redis struct {
	Client *redis.Client
}

// NewRedis connects to Redis using the provided configuration.
func NewRedis(cfg config.RedisConfig, logger *zap.Logger) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		logger.Warn("unable to reach redis", zap.Error(err))
	} else {
		logger.Info("connected to redis")
	}

	return &Redis{Client: client}
}

// Close closes the client.
func (r *Redis) Close() {
	if r != nil && r.Client != nil {
		_ = r.Client.Close()
	}
}

// Ping verifies Redis connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	if r == nil || r.Client == nil {
		return errors.New("redis client not configured")
	}
	return r.Client.Ping(ctx).Err()
}

const ticketSeqKey = "visit:ticket:seq"

// NextTicketNumber returns the next value of the monotonically increasing
// ticket sequence used for readable ids.
func (r *Redis) NextTicketNumber(ctx context.Context) (int64, error) {
	if r == nil || r.Client == nil {
		return 0, errors.New("redis client not configured")
	}
	return r.Client.Incr(ctx, ticketSeqKey).Result()
}

const notificationUnreadKey = "visit:notifications:unread"

// IncrUnreadNotifications bumps the unread notification counter.
func (r *Redis) IncrUnreadNotifications(ctx context.Context) {
	if r == nil || r.Client == nil {
		return
	}
	_ = r.Client.Incr(ctx, notificationUnreadKey).Err()
}

// DecrUnreadNotifications decrements the unread notification counter,
// clamping at zero.
func (r *Redis) DecrUnreadNotifications(ctx context.Context) {
	if r == nil || r.Client == nil {
		return
	}
	val, err := r.Client.Decr(ctx, notificationUnreadKey).Result()
	if err == nil && val < 0 {
		_ = r.Client.Set(ctx, notificationUnreadKey, 0, 0).Err()
	}
}

// ResetUnreadNotifications zeroes the unread notification counter.
func (r *Redis) ResetUnreadNotifications(ctx context.Context) {
	if r == nil || r.Client == nil {
		return
	}
	_ = r.Client.Set(ctx, notificationUnreadKey, 0, 0).Err()
}
