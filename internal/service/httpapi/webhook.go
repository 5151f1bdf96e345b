package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront-oms/internal/domain"
)

const eventCheckoutCompleted = "checkout.session.completed"

// Wire-формат вебхука платёжного провайдера (checkout session).
type webhookEvent struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object checkoutSession `json:"object"`
	} `json:"data"`
}

type checkoutSession struct {
	ID            string            `json:"id"`
	PaymentIntent string            `json:"payment_intent"`
	AmountTotal   int64             `json:"amount_total"`
	Currency      string            `json:"currency"`
	Metadata      map[string]string `json:"metadata"`
}

type webhookAck struct {
	Received bool   `json:"received"`
	OrderID  string `json:"order_id,omitempty"`
}

// PaymentWebhook принимает уведомление провайдера об успешной оплате.
// Провайдер ретраит доставку до получения 2xx, поэтому бизнес-отказы,
// которые повтор не исправит (нехватка стока), подтверждаются статусом 200.
func (h *Handlers) PaymentWebhook(w http.ResponseWriter, r *http.Request) {
	var event webhookEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		writeError(w, http.StatusBadRequest, "invalid webhook body")
		return
	}

	if event.Type != eventCheckoutCompleted {
		// Неинтересные типы событий подтверждаем без обработки.
		writeJSON(w, http.StatusOK, webhookAck{Received: true})
		return
	}

	paymentEvent, err := toPaymentEvent(event)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	order, err := h.reconciler.Reconcile(r.Context(), paymentEvent)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, webhookAck{Received: true, OrderID: order.ID})
	case errors.Is(err, domain.ErrInsufficientStock):
		h.logger.WithFields(log.Fields{
			"provider_event_id": paymentEvent.ProviderEventID,
			"buyer_id":          paymentEvent.Metadata.BuyerID,
		}).Warn("payment captured for unavailable stock")
		writeJSON(w, http.StatusOK, webhookAck{Received: true})
	case errors.Is(err, domain.ErrInvalidEvent):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		h.logger.WithError(err).Error("payment webhook failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

// toPaymentEvent восстанавливает доменное событие из wire-формата.
// В метаданных провайдера все значения строковые.
func toPaymentEvent(event webhookEvent) (domain.PaymentEvent, error) {
	session := event.Data.Object
	meta := session.Metadata

	metadata := domain.CheckoutMetadata{
		Type:    domain.CheckoutType(meta["checkoutType"]),
		BuyerID: meta["userId"],
	}

	switch metadata.Type {
	case domain.CheckoutSingleProduct:
		metadata.ProductID = meta["productId"]
		if raw := meta["quantity"]; raw != "" {
			qty, err := strconv.ParseInt(raw, 10, 32)
			if err != nil || qty <= 0 {
				return domain.PaymentEvent{}, errors.New("invalid quantity in event metadata")
			}
			metadata.Qty = int32(qty)
		}
	case domain.CheckoutCart:
		lines, err := parseCartItems(meta["cartItems"])
		if err != nil {
			return domain.PaymentEvent{}, err
		}
		metadata.CartItems = lines
	}

	return domain.PaymentEvent{
		ProviderEventID: event.ID,
		ProviderTxRef:   session.PaymentIntent,
		AmountMinor:     session.AmountTotal,
		Currency:        strings.ToUpper(session.Currency),
		Metadata:        metadata,
	}, nil
}

func parseCartItems(raw string) ([]domain.CartLine, error) {
	if raw == "" {
		return nil, nil
	}

	var wire []struct {
		ProductID string `json:"productId"`
		Quantity  int32  `json:"quantity"`
	}
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return nil, errors.New("invalid cartItems in event metadata")
	}

	lines := make([]domain.CartLine, 0, len(wire))
	for _, item := range wire {
		lines = append(lines, domain.CartLine{ProductID: item.ProductID, Qty: item.Quantity})
	}
	return lines, nil
}
