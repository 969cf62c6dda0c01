package relay

/*
Файл relay.go реализует исходящую половину Transactional Outbox —
relay-воркер, который переливает закоммиченные факты из outbox_events
во внешнюю шину.

Контракт с ядром: ядро только вставляет PENDING-записи в своей
транзакции. Владение переходом PENDING -> SENT целиком здесь.
Семантика доставки at-least-once: потребители обязаны быть готовы к
повторам, пропусков не бывает.
*/

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/xela07ax/approval-flow/internal/domain"
)

type Relay struct {
	source  domain.OutboxSource
	pub     Publisher
	logger  *zap.Logger
	metrics *Metrics

	pollInterval time.Duration
	batchSize    int
}

func New(source domain.OutboxSource, pub Publisher, logger *zap.Logger, metrics *Metrics, pollInterval time.Duration, batchSize int) *Relay {
	if metrics == nil {
		metrics = NewMetrics(nil)
	}
	return &Relay{
		source:       source,
		pub:          pub,
		logger:       logger.Named("outbox-relay"),
		metrics:      metrics,
		pollInterval: pollInterval,
		batchSize:    batchSize,
	}
}

// Run крутит цикл опроса до отмены контекста. Перед выходом делает
// финальный drain, чтобы не бросать уже готовые к отправке записи.
func (r *Relay) Run(ctx context.Context) {
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	r.logger.Info("outbox relay started",
		zap.Duration("poll_interval", r.pollInterval),
		zap.Int("batch_size", r.batchSize))

	for {
		select {
		case <-ctx.Done():
			// Основной контекст закрыт — дорабатываем на Background
			drainCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			r.drain(drainCtx)
			cancel()
			r.logger.Info("outbox relay stopped gracefully")
			return
		case <-ticker.C:
			r.drain(ctx)
		}
	}
}

// drain гоняет ProcessPending, пока выгребаются полные пачки:
// после простоя шины записей может накопиться сильно больше batchSize.
func (r *Relay) drain(ctx context.Context) {
	for {
		sent, err := r.source.ProcessPending(ctx, r.batchSize, r.pub.Publish)
		if err != nil {
			r.metrics.DrainErrors.Inc()
			r.logger.Error("outbox drain failed", zap.Error(err))
			return
		}
		if sent > 0 {
			r.metrics.EventsPublished.Add(float64(sent))
			r.logger.Debug("outbox batch published", zap.Int("count", sent))
		}
		if sent < r.batchSize {
			return
		}
	}
}
