package domain

import (
	"errors"
	"fmt"
)

var (
	// Ошибки валидации заказа.
	ErrBuyerRequired       = errors.New("buyer_id is required")
	ErrCurrencyRequired    = errors.New("currency is required")
	ErrItemsRequired       = errors.New("order must contain at least one item")
	ErrAmountNegative      = errors.New("amount_minor must be non-negative")
	ErrItemProductRequired = errors.New("item product_id is required")
	ErrItemQtyInvalid      = errors.New("item qty must be greater than zero")
	ErrItemPriceInvalid    = errors.New("item price must be non-negative")
	ErrStatusUnknown       = errors.New("order status is not a known value")
	ErrHistoryEmpty        = errors.New("order history must contain at least one entry")
	ErrHistoryMismatch     = errors.New("last history entry does not match order status")

	// ErrForbidden — актору не хватает роли либо он не владелец заказа.
	ErrForbidden = errors.New("actor is not allowed to perform this transition")
	// ErrWindowExpired — возврат/обмен запрошен позже допустимого окна.
	ErrWindowExpired = errors.New("return/exchange window has expired")
	// ErrInvalidTransition — запрошенный статус недостижим из текущего.
	// Детали (текущий статус и разрешённое множество) несёт InvalidTransitionError.
	ErrInvalidTransition = errors.New("invalid status transition")

	// ErrOrderNotFound возвращается, если заказ не найден в репозитории.
	ErrOrderNotFound = errors.New("order not found")
	// ErrProductNotFound — товар отсутствует в инвентарной книге.
	ErrProductNotFound = errors.New("product not found")
	// ErrOrderVersionConflict сигнализирует о проигрыше compare-and-swap
	// при конкурентном изменении одного заказа.
	ErrOrderVersionConflict = errors.New("order version conflict")

	// ErrInsufficientStock — списание превышает доступный остаток.
	ErrInsufficientStock = errors.New("insufficient stock")
	// ErrInvalidEvent — платёжное событие не прошло верификацию; побочных эффектов нет.
	ErrInvalidEvent = errors.New("invalid payment event")
	// Ошибки верификации платёжного события.
	ErrEventIDRequired    = errors.New("provider_event_id is required")
	ErrEventBuyerRequired = errors.New("event buyer reference is required")
	ErrEventCartEmpty     = errors.New("cart checkout event has no items")
	ErrEventTypeUnknown   = errors.New("unknown checkout type")

	// ErrMarkerExists — маркер идемпотентности с таким provider_event_id уже записан.
	ErrMarkerExists = errors.New("reconcile marker already exists")
	// ErrMarkerNotFound — маркер по данному provider_event_id отсутствует.
	ErrMarkerNotFound = errors.New("reconcile marker not found")

	// ErrOutboxPublish — ошибка при публикации сообщения из outbox.
	ErrOutboxPublish = errors.New("outbox publish failed")
)

// InvalidTransitionError уточняет ErrInvalidTransition: из какого статуса,
// в какой запрошен переход и какое множество переходов разрешено актору.
type InvalidTransitionError struct {
	From    OrderStatus
	To      OrderStatus
	Allowed []OrderStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid status transition from %q to %q (allowed: %v)", e.From, e.To, e.Allowed)
}

// Unwrap позволяет errors.Is(err, ErrInvalidTransition).
func (e *InvalidTransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// NewInvalidTransition конструирует типизированную ошибку перехода
// с копией разрешённого множества для данного workflow.
func NewInvalidTransition(from, to OrderStatus, wf Workflow) error {
	return &InvalidTransitionError{
		From:    from,
		To:      to,
		Allowed: AllowedNext(from, wf),
	}
}

// IsVersionConflict проверяет, является ли ошибка конфликтом версий.
func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrOrderVersionConflict)
}
