package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// OrderMetrics содержит метрики жизненного цикла заказов.
type OrderMetrics struct {
	// Счётчики переходов статуса
	transitionsApplied  *prometheus.CounterVec
	transitionsRejected *prometheus.CounterVec

	// Счётчики сверки платёжных событий
	reconcileOutcomes *prometheus.CounterVec

	// Гистограммы времени выполнения
	transitionDuration prometheus.Histogram
	reconcileDuration  prometheus.Histogram

	// Счётчики движения стока
	stockDebited  prometheus.Counter
	stockCredited prometheus.Counter

	// Счётчик событий outbox
	outboxEvents prometheus.Counter
}

// NewOrderMetrics создаёт новый экземпляр метрик заказов.
func NewOrderMetrics() *OrderMetrics {
	return newOrderMetricsWithRegisterer(prometheus.DefaultRegisterer)
}

func newOrderMetricsWithRegisterer(registerer prometheus.Registerer) *OrderMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	return &OrderMetrics{
		transitionsApplied: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "shop_transitions_applied_total",
			Help: "Total number of order status transitions applied",
		}, []string{"status"}),
		transitionsRejected: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "shop_transitions_rejected_total",
			Help: "Total number of order status transitions rejected",
		}, []string{"reason"}),
		reconcileOutcomes: registerCounterVec(registerer, prometheus.CounterOpts{
			Name: "shop_reconcile_total",
			Help: "Total number of payment events processed by outcome",
		}, []string{"outcome"}),
		transitionDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "shop_transition_duration_seconds",
			Help:    "Duration of order status transitions in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		reconcileDuration: registerHistogram(registerer, prometheus.HistogramOpts{
			Name:    "shop_reconcile_duration_seconds",
			Help:    "Duration of payment event reconciliation in seconds",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}),
		stockDebited: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_stock_debited_total",
			Help: "Total units of stock debited by reconciled payments",
		}),
		stockCredited: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_stock_credited_total",
			Help: "Total units of stock credited back by cancellations and refunds",
		}),
		outboxEvents: registerCounter(registerer, prometheus.CounterOpts{
			Name: "shop_outbox_events_total",
			Help: "Total number of outbox events enqueued",
		}),
	}
}

func registerCounter(registerer prometheus.Registerer, opts prometheus.CounterOpts) prometheus.Counter {
	collector := prometheus.NewCounter(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Counter)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter %q: %v", opts.Name, err))
	}
	return collector
}

func registerCounterVec(registerer prometheus.Registerer, opts prometheus.CounterOpts, labels []string) *prometheus.CounterVec {
	collector := prometheus.NewCounterVec(opts, labels)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register counter vec %q: %v", opts.Name, err))
	}
	return collector
}

func registerHistogram(registerer prometheus.Registerer, opts prometheus.HistogramOpts) prometheus.Histogram {
	collector := prometheus.NewHistogram(opts)
	if err := registerer.Register(collector); err != nil {
		if alreadyRegistered, ok := err.(prometheus.AlreadyRegisteredError); ok {
			existing, ok := alreadyRegistered.ExistingCollector.(prometheus.Histogram)
			if !ok {
				panic(fmt.Sprintf("collector %q already registered with unexpected type", opts.Name))
			}
			return existing
		}
		panic(fmt.Sprintf("register histogram %q: %v", opts.Name, err))
	}
	return collector
}

// RecordTransitionApplied увеличивает счётчик применённых переходов.
func (m *OrderMetrics) RecordTransitionApplied(status string) {
	m.transitionsApplied.WithLabelValues(status).Inc()
}

// RecordTransitionRejected увеличивает счётчик отклонённых переходов.
func (m *OrderMetrics) RecordTransitionRejected(reason string) {
	m.transitionsRejected.WithLabelValues(reason).Inc()
}

// RecordReconcile увеличивает счётчик сверок по исходу.
func (m *OrderMetrics) RecordReconcile(outcome string) {
	m.reconcileOutcomes.WithLabelValues(outcome).Inc()
}

// RecordTransitionDuration записывает время применения перехода.
func (m *OrderMetrics) RecordTransitionDuration(duration time.Duration) {
	m.transitionDuration.Observe(duration.Seconds())
}

// RecordReconcileDuration записывает время сверки события.
func (m *OrderMetrics) RecordReconcileDuration(duration time.Duration) {
	m.reconcileDuration.Observe(duration.Seconds())
}

// RecordStockDebit увеличивает счётчик списанных единиц стока.
func (m *OrderMetrics) RecordStockDebit(units int) {
	m.stockDebited.Add(float64(units))
}

// RecordStockCredit увеличивает счётчик возвращённых единиц стока.
func (m *OrderMetrics) RecordStockCredit(units int) {
	m.stockCredited.Add(float64(units))
}

// RecordOutboxEvent увеличивает счётчик событий outbox.
func (m *OrderMetrics) RecordOutboxEvent() {
	m.outboxEvents.Inc()
}
