package domain

// CheckoutType различает сценарии оформления, которые поддерживает витрина.
type CheckoutType string

const (
	// CheckoutSingleProduct — покупка одного товара мимо корзины.
	CheckoutSingleProduct CheckoutType = "single_product"
	// CheckoutCart — оплата всей корзины покупателя.
	CheckoutCart CheckoutType = "cart_checkout"
)

// CartLine — позиция корзины внутри метаданных платёжной сессии.
type CartLine struct {
	ProductID string
	Qty       int32
}

// CheckoutMetadata — намерение покупки, зафиксированное при создании
// платёжной сессии. Позиции заказа восстанавливаются ТОЛЬКО отсюда:
// клиентским количествам на момент доставки webhook доверять нельзя.
type CheckoutMetadata struct {
	Type    CheckoutType
	BuyerID string

	// Для single_product.
	ProductID string
	Qty       int32

	// Для cart_checkout.
	CartItems []CartLine
}

// PaymentEvent — асинхронное уведомление платёжного провайдера.
// Событие эфемерно: в хранилище остаётся только маркер идемпотентности.
type PaymentEvent struct {
	// ProviderEventID уникален в рамках провайдера; ключ дедупликации.
	ProviderEventID string
	// ProviderTxRef — ссылка на транзакцию провайдера (payment intent).
	ProviderTxRef string
	// AmountMinor — фактически списанная провайдером сумма.
	AmountMinor int64
	Currency    string
	Metadata    CheckoutMetadata
}

// Validate проверяет, что событие пригодно к реконсиляции.
// Любое замечание означает ErrInvalidEvent без побочных эффектов.
func (e *PaymentEvent) Validate() []error {
	var errs []error

	if e.ProviderEventID == "" {
		errs = append(errs, ErrEventIDRequired)
	}
	if e.Metadata.BuyerID == "" {
		errs = append(errs, ErrEventBuyerRequired)
	}
	if e.AmountMinor < 0 {
		errs = append(errs, ErrAmountNegative)
	}
	if e.Currency == "" {
		errs = append(errs, ErrCurrencyRequired)
	}

	switch e.Metadata.Type {
	case CheckoutSingleProduct:
		if e.Metadata.ProductID == "" {
			errs = append(errs, ErrItemProductRequired)
		}
		if e.Metadata.Qty <= 0 {
			errs = append(errs, ErrItemQtyInvalid)
		}
	case CheckoutCart:
		if len(e.Metadata.CartItems) == 0 {
			errs = append(errs, ErrEventCartEmpty)
		}
		for _, line := range e.Metadata.CartItems {
			if line.ProductID == "" {
				errs = append(errs, ErrItemProductRequired)
			}
			if line.Qty <= 0 {
				errs = append(errs, ErrItemQtyInvalid)
			}
		}
	default:
		errs = append(errs, ErrEventTypeUnknown)
	}

	return errs
}

// LineItems восстанавливает позиции будущего заказа из метаданных события.
// Цена позиции здесь не известна: total заказа берётся из фактически
// списанной суммы, а не пересчитывается по текущему каталогу.
func (e *PaymentEvent) LineItems() []OrderItem {
	switch e.Metadata.Type {
	case CheckoutSingleProduct:
		return []OrderItem{{ProductID: e.Metadata.ProductID, Qty: e.Metadata.Qty}}
	case CheckoutCart:
		items := make([]OrderItem, 0, len(e.Metadata.CartItems))
		for _, line := range e.Metadata.CartItems {
			items = append(items, OrderItem{ProductID: line.ProductID, Qty: line.Qty})
		}
		return items
	default:
		return nil
	}
}

// ClearsCart сообщает, нужно ли очищать корзину покупателя после реконсиляции.
func (e *PaymentEvent) ClearsCart() bool {
	return e.Metadata.Type == CheckoutCart
}
