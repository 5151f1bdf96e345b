package kafka

import (
	"time"

	"github.com/vladislavdragonenkov/storefront-oms/internal/domain"
)

// EventType определяет тип события
type EventType string

const (
	// Order события
	EventTypeOrderPlaced        EventType = "order.placed"
	EventTypeOrderStatusChanged EventType = "order.status_changed"
	EventTypeOrderCancelled     EventType = "order.cancelled"
	EventTypeOrderRefunded      EventType = "order.refunded"

	// Payment события
	EventTypePaymentCaptured EventType = "payment.captured"
)

// Topics для Kafka
const (
	TopicOrderEvents     = "shop.order.events"
	TopicPaymentEvents   = "shop.payment.events"
	TopicDeadLetterQueue = "shop.dlq" // Dead Letter Queue для failed messages
)

// Kafka headers для retry логики
const (
	HeaderRetryCount    = "x-retry-count"
	HeaderOriginalTopic = "x-original-topic"
	HeaderErrorMessage  = "x-error-message"
	HeaderFailedAt      = "x-failed-at"
)

// OrderEvent представляет событие жизненного цикла заказа
type OrderEvent struct {
	EventType EventType              `json:"event_type"`
	OrderID   string                 `json:"order_id"`
	BuyerID   string                 `json:"buyer_id"`
	Status    string                 `json:"status"`
	Timestamp time.Time              `json:"timestamp"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// NewOrderEvent создает новое событие заказа
func NewOrderEvent(eventType EventType, orderID, buyerID, status string, metadata map[string]interface{}) *OrderEvent {
	return &OrderEvent{
		EventType: eventType,
		OrderID:   orderID,
		BuyerID:   buyerID,
		Status:    status,
		Timestamp: time.Now(),
		Metadata:  metadata,
	}
}

// PaymentCartLine — позиция корзины внутри платёжного события.
type PaymentCartLine struct {
	ProductID string `json:"product_id"`
	Qty       int32  `json:"qty"`
}

// PaymentCapturedEvent — wire-формат события payment.captured
// из топика shop.payment.events.
type PaymentCapturedEvent struct {
	EventType       EventType         `json:"event_type"`
	ProviderEventID string            `json:"provider_event_id"`
	ProviderTxRef   string            `json:"provider_tx_ref,omitempty"`
	AmountMinor     int64             `json:"amount_minor"`
	Currency        string            `json:"currency"`
	CheckoutType    string            `json:"checkout_type"`
	BuyerID         string            `json:"buyer_id"`
	ProductID       string            `json:"product_id,omitempty"`
	Qty             int32             `json:"qty,omitempty"`
	CartItems       []PaymentCartLine `json:"cart_items,omitempty"`
	Timestamp       time.Time         `json:"timestamp"`
}

// ToDomain конвертирует wire-событие в доменное представление.
func (e *PaymentCapturedEvent) ToDomain() domain.PaymentEvent {
	metadata := domain.CheckoutMetadata{
		Type:      domain.CheckoutType(e.CheckoutType),
		BuyerID:   e.BuyerID,
		ProductID: e.ProductID,
		Qty:       e.Qty,
	}
	for _, line := range e.CartItems {
		metadata.CartItems = append(metadata.CartItems, domain.CartLine{
			ProductID: line.ProductID,
			Qty:       line.Qty,
		})
	}

	return domain.PaymentEvent{
		ProviderEventID: e.ProviderEventID,
		ProviderTxRef:   e.ProviderTxRef,
		AmountMinor:     e.AmountMinor,
		Currency:        e.Currency,
		Metadata:        metadata,
	}
}
