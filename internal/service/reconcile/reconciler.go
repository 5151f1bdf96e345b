package reconcile

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront-oms/internal/domain"
	"github.com/vladislavdragonenkov/storefront-oms/internal/metrics"
)

const eventOrderPlaced = "OrderPlaced"

// Reconciler превращает подтверждённые платёжные события провайдера в заказы.
// Дубликаты события (повторы доставки, ретраи вебхука) схлопываются в один
// заказ через маркер сверки: вставка маркера по provider_event_id — точка
// сериализации, вторая вставка проигрывает и возвращает уже созданный заказ.
type Reconciler struct {
	store   domain.Store
	logger  *log.Entry
	metrics *metrics.OrderMetrics
	now     func() time.Time
}

// Option настраивает Reconciler.
type Option func(*Reconciler)

// WithMetrics подключает метрики сверки.
func WithMetrics(m *metrics.OrderMetrics) Option {
	return func(r *Reconciler) {
		r.metrics = m
	}
}

// WithClock подменяет источник времени.
func WithClock(now func() time.Time) Option {
	return func(r *Reconciler) {
		r.now = now
	}
}

// NewReconciler создаёт рабочий экземпляр.
func NewReconciler(store domain.Store, logger *log.Entry, options ...Option) *Reconciler {
	if logger == nil {
		logger = log.New().WithField("component", "reconcile")
	}
	r := &Reconciler{
		store:  store,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, option := range options {
		option(r)
	}
	return r
}

// Reconcile обрабатывает платёжное событие. Возвращает заказ, привязанный к
// событию: свежесозданный либо уже существующий при повторной доставке.
// Недостаток стока возвращает ErrInsufficientStock и записывает rejected-маркер,
// чтобы повтор того же события не пытался резервировать сток заново.
func (r *Reconciler) Reconcile(ctx context.Context, event domain.PaymentEvent) (domain.Order, error) {
	start := r.now()

	if errs := event.Validate(); len(errs) > 0 {
		r.recordOutcome("invalid", start)
		return domain.Order{}, fmt.Errorf("%w: %v", domain.ErrInvalidEvent, errors.Join(errs...))
	}

	// Быстрый путь: событие уже сверено ранее.
	if order, done, err := r.replay(event); done {
		r.recordOutcome("replay", start)
		return order, err
	}

	var created domain.Order
	err := r.store.WithinTx(ctx, func(tx domain.Repositories) error {
		orderID := uuid.NewString()
		now := r.now()

		// Вставка маркера первой: проигравшая гонку транзакция
		// откатится здесь, не тронув сток.
		if err := tx.Markers.Create(domain.ReconcileMarker{
			ProviderEventID: event.ProviderEventID,
			OrderID:         orderID,
			Outcome:         domain.MarkerReconciled,
			AmountMinor:     event.AmountMinor,
			ProviderTxRef:   event.ProviderTxRef,
			CreatedAt:       now,
		}); err != nil {
			return err
		}

		items := event.LineItems()
		for _, item := range items {
			if err := tx.Ledger.Debit(item.ProductID, item.Qty); err != nil {
				return fmt.Errorf("debit stock for %s: %w", item.ProductID, err)
			}
		}

		order := domain.Order{
			ID:              orderID,
			BuyerID:         event.Metadata.BuyerID,
			Status:          domain.OrderStatusPlaced,
			Currency:        event.Currency,
			AmountMinor:     event.AmountMinor,
			Items:           items,
			ProviderEventID: event.ProviderEventID,
			ProviderTxRef:   event.ProviderTxRef,
			CreatedAt:       now,
			UpdatedAt:       now,
		}
		order.AppendHistory(domain.OrderStatusPlaced, "Payment confirmed", event.Metadata.BuyerID, now)

		if errs := order.ValidateInvariants(); len(errs) > 0 {
			return fmt.Errorf("%w: %v", domain.ErrInvalidEvent, errors.Join(errs...))
		}

		if err := tx.Orders.Create(order); err != nil {
			return err
		}

		if event.ClearsCart() {
			if err := tx.Carts.Clear(event.Metadata.BuyerID); err != nil {
				return fmt.Errorf("clear cart for %s: %w", event.Metadata.BuyerID, err)
			}
		}

		r.enqueuePlaced(tx.Outbox, order)
		created = order
		return nil
	})

	switch {
	case err == nil:
		if r.metrics != nil {
			for _, item := range created.Items {
				r.metrics.RecordStockDebit(int(item.Qty))
			}
		}
		r.recordOutcome("reconciled", start)
		return created, nil

	case errors.Is(err, domain.ErrMarkerExists):
		// Проиграли гонку с параллельной доставкой того же события.
		order, _, replayErr := r.replay(event)
		r.recordOutcome("replay", start)
		return order, replayErr

	case errors.Is(err, domain.ErrInsufficientStock):
		r.rejectEvent(ctx, event)
		r.recordOutcome("rejected", start)
		return domain.Order{}, err

	default:
		r.recordOutcome("error", start)
		return domain.Order{}, err
	}
}

// replay возвращает результат ранее сверенного события, если оно уже обработано.
func (r *Reconciler) replay(event domain.PaymentEvent) (domain.Order, bool, error) {
	marker, err := r.store.Repos().Markers.Get(event.ProviderEventID)
	if err != nil {
		if errors.Is(err, domain.ErrMarkerNotFound) {
			return domain.Order{}, false, nil
		}
		return domain.Order{}, true, err
	}

	if marker.Outcome == domain.MarkerRejected {
		return domain.Order{}, true, domain.ErrInsufficientStock
	}

	// Реплей резолвится по ключу платёжного события; marker.OrderID
	// остаётся запасным путём.
	order, err := r.store.Repos().Orders.GetByProviderEvent(event.ProviderEventID)
	if err != nil {
		if errors.Is(err, domain.ErrOrderNotFound) && marker.OrderID != "" {
			order, err = r.store.Repos().Orders.Get(marker.OrderID)
		}
		if err != nil {
			return domain.Order{}, true, fmt.Errorf("load reconciled order for event %s: %w", event.ProviderEventID, err)
		}
	}
	return order, true, nil
}

// rejectEvent фиксирует отказ по событию, чтобы остановить повторные доставки.
// Маркер пишется отдельной транзакцией: основная уже откатилась.
func (r *Reconciler) rejectEvent(ctx context.Context, event domain.PaymentEvent) {
	err := r.store.WithinTx(ctx, func(tx domain.Repositories) error {
		return tx.Markers.Create(domain.ReconcileMarker{
			ProviderEventID: event.ProviderEventID,
			Outcome:         domain.MarkerRejected,
			AmountMinor:     event.AmountMinor,
			ProviderTxRef:   event.ProviderTxRef,
			CreatedAt:       r.now(),
		})
	})
	if err != nil && !errors.Is(err, domain.ErrMarkerExists) {
		r.logger.WithError(err).
			WithField("provider_event_id", event.ProviderEventID).
			Error("record rejected marker failed")
		return
	}
	r.logger.WithFields(log.Fields{
		"provider_event_id": event.ProviderEventID,
		"buyer_id":          event.Metadata.BuyerID,
	}).Warn("payment event rejected: insufficient stock")
}

// enqueuePlaced кладёт событие о новом заказе в outbox той же транзакцией.
func (r *Reconciler) enqueuePlaced(outbox domain.OutboxRepository, order domain.Order) {
	payload, err := json.Marshal(map[string]any{
		"order_id":     order.ID,
		"buyer_id":     order.BuyerID,
		"amount_minor": order.AmountMinor,
		"currency":     order.Currency,
		"ts":           order.CreatedAt.Format(time.RFC3339Nano),
	})
	if err != nil {
		r.logger.WithError(err).WithField("order_id", order.ID).Error("marshal placed event failed")
		return
	}

	if _, err := outbox.Enqueue(domain.OutboxMessage{
		AggregateType: "order",
		AggregateID:   order.ID,
		EventType:     eventOrderPlaced,
		Payload:       payload,
	}); err != nil {
		r.logger.WithError(err).WithField("order_id", order.ID).Error("enqueue placed event failed")
	} else if r.metrics != nil {
		r.metrics.RecordOutboxEvent()
	}
}

func (r *Reconciler) recordOutcome(outcome string, start time.Time) {
	if r.metrics == nil {
		return
	}
	r.metrics.RecordReconcile(outcome)
	r.metrics.RecordReconcileDuration(r.now().Sub(start))
}
