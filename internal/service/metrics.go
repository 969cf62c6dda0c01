package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Latency: сколько заняла операция approve (вместе с ретраями)
	ApproveDuration *prometheus.HistogramVec

	// Traffic: сколько операций обработано, по исходу
	ApproveTotal *prometheus.CounterVec

	// Сколько раз ловили конфликт версий и уходили на повтор
	ConflictRetries prometheus.Counter

	// Сколько попыток погашено журналом идемпотентности
	DuplicatesAbsorbed prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	// Null Object Pattern — без регистратора метрики живут в локальном,
	// никуда не подключенном реестре (удобно в тестах)
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		ApproveDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "approval_approve_duration_seconds",
			Help:    "Histogram of approve operation latencies.",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"outcome"}),

		ApproveTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "approval_approve_total",
			Help: "Total number of approve operations by outcome.",
		}, []string{"outcome"}), // исходы: ok, not_found, invalid_state, error

		ConflictRetries: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "approval_version_conflict_retries_total",
			Help: "Total number of optimistic lock conflicts that triggered a retry.",
		}),

		DuplicatesAbsorbed: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "approval_duplicates_absorbed_total",
			Help: "Total number of attempts short-circuited by the idempotency ledger.",
		}),
	}
}
