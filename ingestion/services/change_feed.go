package services

import (
	"context"
	"time"

	"freight-billing-backend/utils"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// ChangeFeed ticks whenever an upload record may have changed. Ticks carry no payload:
// observers re-read the record and drop anything they have already seen. The channel is
// closed once ctx ends.
type ChangeFeed interface {
	Subscribe(ctx context.Context, uploadID uuid.UUID) (<-chan struct{}, error)
}

const uploadChangedPrefix = "uploads:changed:"

// UploadChangedChannel is the pub/sub channel the extraction engine publishes to after
// every write to an upload record.
func UploadChangedChannel(uploadID uuid.UUID) string {
	return uploadChangedPrefix + uploadID.String()
}

type RedisChangeFeed struct {
	client *redis.Client
	logger *zap.Logger
}

func NewRedisChangeFeed(client *redis.Client, logger *zap.Logger) *RedisChangeFeed {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisChangeFeed{client: client, logger: logger}
}

func (f *RedisChangeFeed) Subscribe(ctx context.Context, uploadID uuid.UUID) (<-chan struct{}, error) {
	channel := UploadChangedChannel(uploadID)
	pubsub := f.client.Subscribe(ctx, channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, utils.NewAppError(utils.KindTransient, "subscribe upload changes", "change feed unavailable").
			WithID(uploadID.String()).Wrap(err)
	}

	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		defer pubsub.Close()

		messages := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-messages:
				if !ok {
					f.logger.Debug("Upload change channel closed", zap.String("channel", channel))
					return
				}
				coalesce(out)
			}
		}
	}()
	return out, nil
}

// Publish announces a change to uploadID.
func (f *RedisChangeFeed) Publish(ctx context.Context, uploadID uuid.UUID) error {
	return f.client.Publish(ctx, UploadChangedChannel(uploadID), time.Now().UTC().Format(time.RFC3339Nano)).Err()
}

// PollingChangeFeed ticks at a bounded rate for stores without push notifications.
type PollingChangeFeed struct {
	interval time.Duration
}

func NewPollingChangeFeed(interval time.Duration) *PollingChangeFeed {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	return &PollingChangeFeed{interval: interval}
}

func (f *PollingChangeFeed) Subscribe(ctx context.Context, uploadID uuid.UUID) (<-chan struct{}, error) {
	out := make(chan struct{}, 1)
	limiter := rate.NewLimiter(rate.Every(f.interval), 1)
	// The first token covers the initial read the observer already did.
	limiter.Allow()

	go func() {
		defer close(out)
		for {
			if err := limiter.Wait(ctx); err != nil {
				return
			}
			coalesce(out)
		}
	}()
	return out, nil
}

// coalesce drops the tick if one is already pending.
func coalesce(out chan<- struct{}) {
	select {
	case out <- struct{}{}:
	default:
	}
}
