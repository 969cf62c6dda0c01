package relay

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go/v5"
	"github.com/redis/go-redis/v9"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/xela07ax/approval-flow/internal/domain"
	"github.com/xela07ax/approval-flow/internal/infra"
)

// Publisher доставляет событие во внешнюю шину.
type Publisher interface {
	Publish(ctx context.Context, ev domain.OutboxEvent) error
}

// RedisPublisher шлет payload события в канал Redis Pub/Sub.
// Подписчики получают тот же JSON, что лежал в outbox_events.payload.
type RedisPublisher struct {
	rdb     *redis.Client
	channel string
}

func NewRedisPublisher(rdb *redis.Client, channel string) *RedisPublisher {
	return &RedisPublisher{rdb: rdb, channel: channel}
}

func (p *RedisPublisher) Publish(ctx context.Context, ev domain.OutboxEvent) error {
	if err := p.rdb.Publish(ctx, p.channel, ev.Payload).Err(); err != nil {
		return fmt.Errorf("redis publish failed: %w", err)
	}
	return nil
}

// ReliablePublisher оборачивает публикацию в защитный контур:
// rate limiter -> circuit breaker -> retry с экспоненциальным бэкоффом.
type ReliablePublisher struct {
	next    Publisher
	cb      *gobreaker.CircuitBreaker
	limiter *rate.Limiter
}

func NewReliablePublisher(next Publisher, cfg infra.RelayConfig) *ReliablePublisher {
	// Настройка предохранителя
	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "outbox-relay",
		MaxRequests: cfg.CBMaxRequests,
		Interval:    cfg.CBInterval,
		Timeout:     cfg.CBTimeout, // Время, через которое CB попробует "закрыться"
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// Если более 5 ошибок подряд — открываемся (останавливаем выгрузку)
			return counts.ConsecutiveFailures > 5
		},
	})

	limiter := rate.NewLimiter(rate.Limit(cfg.PublishRate), cfg.PublishBurst)

	return &ReliablePublisher{
		next:    next,
		cb:      cb,
		limiter: limiter,
	}
}

func (p *ReliablePublisher) Publish(ctx context.Context, ev domain.OutboxEvent) error {
	// 1. Rate Limiter
	if err := p.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limit exceeded: %w", err)
	}

	// 2. Circuit Breaker
	_, err := p.cb.Execute(func() (interface{}, error) {
		r := retry.New(
			retry.Context(ctx),
			retry.Attempts(3),
			retry.LastErrorOnly(true),
		)

		retryErr := r.Do(func() error {
			tCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			defer cancel()
			return p.next.Publish(tCtx, ev)
		})

		return nil, retryErr
	})

	return err
}
