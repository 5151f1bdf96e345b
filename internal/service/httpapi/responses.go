package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront-oms/internal/domain"
)

// errorResponse — единый конверт ошибок API.
// AllowedStatuses заполняется только для отклонённых переходов, чтобы
// клиент мог показать доступные действия без отдельного запроса.
type errorResponse struct {
	Error           string   `json:"error"`
	AllowedStatuses []string `json:"allowed_statuses,omitempty"`
}

type orderItemResponse struct {
	ProductID  string `json:"product_id"`
	Qty        int32  `json:"qty"`
	PriceMinor int64  `json:"price_minor"`
}

type statusChangeResponse struct {
	Status     string    `json:"status"`
	Reason     string    `json:"reason,omitempty"`
	ActorID    string    `json:"actor_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

type orderResponse struct {
	ID                string                 `json:"id"`
	BuyerID           string                 `json:"buyer_id"`
	Status            string                 `json:"status"`
	Currency          string                 `json:"currency"`
	AmountMinor       int64                  `json:"amount_minor"`
	Items             []orderItemResponse    `json:"items"`
	TrackingNumber    string                 `json:"tracking_number,omitempty"`
	EstimatedDelivery *time.Time             `json:"estimated_delivery,omitempty"`
	AdminNotes        string                 `json:"admin_notes,omitempty"`
	CustomerNotes     string                 `json:"customer_notes,omitempty"`
	History           []statusChangeResponse `json:"history"`
	Version           int64                  `json:"version"`
	CreatedAt         time.Time              `json:"created_at"`
	UpdatedAt         time.Time              `json:"updated_at"`
}

func toOrderResponse(order domain.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemResponse{
			ProductID:  item.ProductID,
			Qty:        item.Qty,
			PriceMinor: item.PriceMinor,
		})
	}

	return orderResponse{
		ID:                order.ID,
		BuyerID:           order.BuyerID,
		Status:            string(order.Status),
		Currency:          order.Currency,
		AmountMinor:       order.AmountMinor,
		Items:             items,
		TrackingNumber:    order.TrackingNumber,
		EstimatedDelivery: order.EstimatedDelivery,
		AdminNotes:        order.AdminNotes,
		CustomerNotes:     order.CustomerNotes,
		History:           toHistoryResponse(order.History),
		Version:           order.Version,
		CreatedAt:         order.CreatedAt,
		UpdatedAt:         order.UpdatedAt,
	}
}

func toHistoryResponse(history []domain.StatusChange) []statusChangeResponse {
	result := make([]statusChangeResponse, 0, len(history))
	for _, change := range history {
		result = append(result, statusChangeResponse{
			Status:     string(change.Status),
			Reason:     change.Reason,
			ActorID:    change.ActorID,
			OccurredAt: change.OccurredAt,
		})
	}
	return result
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeDomainError переводит доменные ошибки в HTTP-статусы.
func writeDomainError(w http.ResponseWriter, logger *log.Entry, err error) {
	var invalid *domain.InvalidTransitionError
	if errors.As(err, &invalid) {
		allowed := make([]string, 0, len(invalid.Allowed))
		for _, status := range invalid.Allowed {
			allowed = append(allowed, string(status))
		}
		writeJSON(w, http.StatusConflict, errorResponse{
			Error:           invalid.Error(),
			AllowedStatuses: allowed,
		})
		return
	}

	switch {
	case errors.Is(err, domain.ErrOrderNotFound):
		writeError(w, http.StatusNotFound, "order not found")
	case errors.Is(err, domain.ErrForbidden):
		writeError(w, http.StatusForbidden, "operation is not permitted for this account")
	case errors.Is(err, domain.ErrWindowExpired):
		writeError(w, http.StatusUnprocessableEntity, "return window has expired")
	case errors.Is(err, domain.ErrInvalidTransition):
		writeError(w, http.StatusConflict, err.Error())
	case domain.IsVersionConflict(err):
		writeError(w, http.StatusConflict, "order was modified concurrently, retry the request")
	case errors.Is(err, domain.ErrInvalidEvent):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrStatusUnknown):
		writeError(w, http.StatusBadRequest, "unknown order status")
	default:
		logger.WithError(err).Error("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
