package relay

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	// Сколько событий ушло в шину (после пометки SENT)
	EventsPublished prometheus.Counter

	// Сколько проходов drain завершились ошибкой
	DrainErrors prometheus.Counter
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}

	return &Metrics{
		EventsPublished: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "outbox_relay_events_published_total",
			Help: "Total number of outbox events published to the bus.",
		}),
		DrainErrors: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "outbox_relay_drain_errors_total",
			Help: "Total number of failed outbox drain passes.",
		}),
	}
}
