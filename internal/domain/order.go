package domain

import "time"

// ReturnWindowDays — политика магазина: возврат или обмен доступны
// в течение 30 дней с момента записи Delivered в истории статусов.
const ReturnWindowDays = 30

// Role описывает роль аккаунта, совершающего операцию.
type Role string

const (
	RoleCustomer   Role = "customer"
	RoleAdmin      Role = "admin"
	RoleShopkeeper Role = "shopkeeper"
)

// Actor — идентичность, поставляемая внешним auth-слоем для каждого запроса.
// Ядро доверяет этим данным и само учётные данные не проверяет.
type Actor struct {
	AccountID string
	Role      Role
}

// IsStaff сообщает, относится ли актор к персоналу магазина.
func (a Actor) IsStaff() bool {
	return a.Role == RoleAdmin || a.Role == RoleShopkeeper
}

// Workflow возвращает таблицу переходов, действующую для роли актора.
func (a Actor) Workflow() Workflow {
	if a.IsStaff() {
		return WorkflowAdmin
	}
	return WorkflowCustomer
}

// OrderItem представляет одну позицию заказа. Позиции фиксируются при
// создании заказа и после этого не редактируются.
type OrderItem struct {
	// ProductID — внешний идентификатор товара в каталоге.
	ProductID string
	// Qty — количество единиц товара, строго > 0.
	Qty int32
	// PriceMinor — цена за единицу на момент покупки, в минимальных единицах.
	PriceMinor int64
}

// StatusChange — одна запись append-only истории статусов заказа.
type StatusChange struct {
	Status     OrderStatus
	Reason     string
	ActorID    string
	OccurredAt time.Time
}

// Order агрегирует состояние заказа: позиции, сумму, статус и историю.
// Статус меняется только через transition.Authority.
type Order struct {
	ID          string
	BuyerID     string
	Status      OrderStatus
	Currency    string
	AmountMinor int64
	Items       []OrderItem

	// Аннотации персонала и покупателя.
	TrackingNumber    string
	EstimatedDelivery *time.Time
	AdminNotes        string
	CustomerNotes     string

	// History append-only: ровно одна запись на каждый успешный переход.
	History []StatusChange

	// ProviderEventID и ProviderTxRef связывают заказ с платёжным событием,
	// из которого он был создан.
	ProviderEventID string
	ProviderTxRef   string

	Version   int64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ValidateInvariants проверяет базовые инварианты заказа и возвращает список замечаний.
func (o *Order) ValidateInvariants() []error {
	var errs []error

	if o.BuyerID == "" {
		errs = append(errs, ErrBuyerRequired)
	}
	if o.Currency == "" {
		errs = append(errs, ErrCurrencyRequired)
	}
	if len(o.Items) == 0 {
		errs = append(errs, ErrItemsRequired)
	}
	if o.AmountMinor < 0 {
		errs = append(errs, ErrAmountNegative)
	}
	if !o.Status.Valid() {
		errs = append(errs, ErrStatusUnknown)
	}

	for _, item := range o.Items {
		if item.ProductID == "" {
			errs = append(errs, ErrItemProductRequired)
		}
		if item.Qty <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
		if item.PriceMinor < 0 {
			errs = append(errs, ErrItemPriceInvalid)
		}
	}

	// История не может быть пустой у созданного заказа и её хвост
	// обязан совпадать с текущим статусом.
	if len(o.History) == 0 {
		errs = append(errs, ErrHistoryEmpty)
	} else if o.History[len(o.History)-1].Status != o.Status {
		errs = append(errs, ErrHistoryMismatch)
	}

	return errs
}

// DeliveredAt возвращает время последней записи Delivered в истории.
// Используется именно запись истории, а не updated_at заказа: после
// Failed Delivery заказ может быть доставлен повторно, и окно возврата
// отсчитывается от фактического вручения.
func (o *Order) DeliveredAt() (time.Time, bool) {
	for i := len(o.History) - 1; i >= 0; i-- {
		if o.History[i].Status == OrderStatusDelivered {
			return o.History[i].OccurredAt, true
		}
	}
	return time.Time{}, false
}

// WithinReturnWindow сообщает, не истекло ли окно возврата/обмена на момент now.
// Граница включительная: ровно 30 полных дней после доставки — ещё успех.
func (o *Order) WithinReturnWindow(now time.Time) bool {
	deliveredAt, ok := o.DeliveredAt()
	if !ok {
		return false
	}
	days := int(now.Sub(deliveredAt).Hours() / 24)
	return days <= ReturnWindowDays
}

// AppendHistory добавляет одну запись истории и синхронизирует статус заказа.
func (o *Order) AppendHistory(status OrderStatus, reason, actorID string, at time.Time) {
	o.Status = status
	o.History = append(o.History, StatusChange{
		Status:     status,
		Reason:     reason,
		ActorID:    actorID,
		OccurredAt: at,
	})
}
