package transition

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront-oms/internal/domain"
	"github.com/vladislavdragonenkov/storefront-oms/internal/metrics"
)

const (
	eventOrderStatusChanged = "OrderStatusChanged"
	eventOrderCancelled     = "OrderCancelled"
	eventOrderRefunded      = "OrderRefunded"
)

// Authority — единственный мутатор Order.Status. Проверяет права актора,
// таблицу переходов и прекондиции, затем применяет переход вместе с
// побочными эффектами (возврат стока, запись истории) в одной транзакции.
type Authority struct {
	store   domain.Store
	logger  *log.Entry
	metrics *metrics.OrderMetrics
	now     func() time.Time
}

// Option настраивает Authority.
type Option func(*Authority)

// WithMetrics подключает метрики переходов.
func WithMetrics(m *metrics.OrderMetrics) Option {
	return func(a *Authority) {
		a.metrics = m
	}
}

// WithClock подменяет источник времени (для тестов окна возврата).
func WithClock(now func() time.Time) Option {
	return func(a *Authority) {
		a.now = now
	}
}

// NewAuthority создаёт рабочий экземпляр.
func NewAuthority(store domain.Store, logger *log.Entry, options ...Option) *Authority {
	if logger == nil {
		logger = log.New().WithField("component", "transition")
	}
	a := &Authority{
		store:  store,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, option := range options {
		option(a)
	}
	return a
}

// Annotation — необязательные данные, сопровождающие переход.
// Поля трекинга и заметок персонала применяются только в admin workflow.
type Annotation struct {
	Reason            string
	TrackingNumber    string
	EstimatedDelivery *time.Time
	AdminNotes        string
}

// ApplyTransition применяет запрошенный переход статуса к заказу.
// Алгоритм: авторизация → таблица переходов → прекондиции → возврат стока
// (для Cancelled/Refund Processed) → запись истории и аннотаций. Все записи
// происходят в одной транзакции; проигравший CAS получает ErrOrderVersionConflict.
func (a *Authority) ApplyTransition(
	ctx context.Context,
	orderID string,
	actor domain.Actor,
	target domain.OrderStatus,
	ann Annotation,
) (domain.Order, error) {
	start := a.now()

	var updated domain.Order
	err := a.store.WithinTx(ctx, func(tx domain.Repositories) error {
		order, err := tx.Orders.Get(orderID)
		if err != nil {
			return err
		}

		wf, err := authorize(order, actor)
		if err != nil {
			return err
		}

		if !domain.CanTransition(order.Status, target, wf) {
			return domain.NewInvalidTransition(order.Status, target, wf)
		}

		if err := a.checkPreconditions(order, target, wf); err != nil {
			return err
		}

		// Возврат стока атомарен со сменой статуса: частичный возврат
		// при сбое невозможен, транзакция откатится целиком.
		if target.ReleasesStock() {
			for _, item := range order.Items {
				if err := tx.Ledger.Credit(item.ProductID, item.Qty); err != nil {
					return fmt.Errorf("credit stock for %s: %w", item.ProductID, err)
				}
			}
		}

		now := a.now()
		previous := order.Status
		reason := a.transitionReason(ann.Reason, target, wf)
		order.AppendHistory(target, reason, actor.AccountID, now)
		applyAnnotations(&order, wf, ann)
		order.UpdatedAt = now

		if err := tx.Orders.Save(order); err != nil {
			return err
		}
		// Save инкрементирует версию в хранилище; отражаем это в возвращаемом заказе.
		order.Version++

		a.enqueueEvent(tx.Outbox, order, previous, reason, actor)
		updated = order
		return nil
	})

	a.record(target, err, a.now().Sub(start))

	if err != nil {
		return domain.Order{}, err
	}
	return updated, nil
}

// History возвращает append-only историю статусов заказа.
// Чужой заказ для покупателя неотличим от несуществующего.
func (a *Authority) History(ctx context.Context, orderID string, actor domain.Actor) ([]domain.StatusChange, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	order, err := a.store.Repos().Orders.Get(orderID)
	if err != nil {
		return nil, err
	}
	if !actor.IsStaff() && order.BuyerID != actor.AccountID {
		return nil, domain.ErrOrderNotFound
	}
	return order.History, nil
}

// authorize сопоставляет актору workflow и проверяет владение заказом.
func authorize(order domain.Order, actor domain.Actor) (domain.Workflow, error) {
	if actor.AccountID == "" {
		return "", domain.ErrForbidden
	}
	if actor.IsStaff() {
		return domain.WorkflowAdmin, nil
	}
	if actor.Role != domain.RoleCustomer {
		return "", domain.ErrForbidden
	}
	if order.BuyerID != actor.AccountID {
		return "", domain.ErrForbidden
	}
	return domain.WorkflowCustomer, nil
}

// checkPreconditions применяет прекондиции, специфичные для workflow.
// Сейчас единственная — окно возврата/обмена в 30 дней от записи Delivered.
func (a *Authority) checkPreconditions(order domain.Order, target domain.OrderStatus, wf domain.Workflow) error {
	if wf != domain.WorkflowCustomer {
		return nil
	}
	if target != domain.OrderStatusReturnRequested && target != domain.OrderStatusExchangeRequested {
		return nil
	}
	if !order.WithinReturnWindow(a.now()) {
		return domain.ErrWindowExpired
	}
	return nil
}

// transitionReason подставляет причину по умолчанию для покупательских
// действий, как это делала исходная витрина.
func (a *Authority) transitionReason(reason string, target domain.OrderStatus, wf domain.Workflow) string {
	if reason != "" {
		return reason
	}
	if wf == domain.WorkflowCustomer {
		return "Customer requested " + strings.ToLower(string(target))
	}
	return ""
}

// applyAnnotations переносит аннотации запроса на заказ с учётом роли.
func applyAnnotations(order *domain.Order, wf domain.Workflow, ann Annotation) {
	switch wf {
	case domain.WorkflowAdmin:
		if ann.TrackingNumber != "" {
			order.TrackingNumber = ann.TrackingNumber
		}
		if ann.EstimatedDelivery != nil {
			ed := *ann.EstimatedDelivery
			order.EstimatedDelivery = &ed
		}
		if ann.AdminNotes != "" {
			order.AdminNotes = ann.AdminNotes
		}
	case domain.WorkflowCustomer:
		if ann.Reason != "" {
			order.CustomerNotes = ann.Reason
		}
	}
}

// enqueueEvent кладёт событие перехода в outbox той же транзакцией.
func (a *Authority) enqueueEvent(outbox domain.OutboxRepository, order domain.Order, previous domain.OrderStatus, reason string, actor domain.Actor) {
	eventType := eventOrderStatusChanged
	switch order.Status {
	case domain.OrderStatusCancelled:
		eventType = eventOrderCancelled
	case domain.OrderStatusRefundProcessed:
		eventType = eventOrderRefunded
	}

	payload, err := json.Marshal(map[string]any{
		"order_id": order.ID,
		"status":   string(order.Status),
		"previous": string(previous),
		"reason":   reason,
		"actor_id": actor.AccountID,
		"ts":       order.UpdatedAt.Format(time.RFC3339Nano),
	})
	if err != nil {
		a.logger.WithError(err).WithField("order_id", order.ID).Error("marshal transition event failed")
		return
	}

	if _, err := outbox.Enqueue(domain.OutboxMessage{
		AggregateType: "order",
		AggregateID:   order.ID,
		EventType:     eventType,
		Payload:       payload,
	}); err != nil {
		a.logger.WithError(err).WithField("order_id", order.ID).Error("enqueue transition event failed")
	} else if a.metrics != nil {
		a.metrics.RecordOutboxEvent()
	}
}

func (a *Authority) record(target domain.OrderStatus, err error, elapsed time.Duration) {
	if a.metrics == nil {
		return
	}
	a.metrics.RecordTransitionDuration(elapsed)

	switch {
	case err == nil:
		a.metrics.RecordTransitionApplied(string(target))
	case errors.Is(err, domain.ErrForbidden):
		a.metrics.RecordTransitionRejected("forbidden")
	case errors.Is(err, domain.ErrWindowExpired):
		a.metrics.RecordTransitionRejected("window_expired")
	case errors.Is(err, domain.ErrInvalidTransition):
		a.metrics.RecordTransitionRejected("invalid_transition")
	case domain.IsVersionConflict(err):
		a.metrics.RecordTransitionRejected("conflict")
	case errors.Is(err, domain.ErrOrderNotFound):
		a.metrics.RecordTransitionRejected("not_found")
	default:
		a.metrics.RecordTransitionRejected("error")
	}
}
