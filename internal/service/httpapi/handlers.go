package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront-oms/internal/domain"
	"github.com/vladislavdragonenkov/storefront-oms/internal/service/reconcile"
	"github.com/vladislavdragonenkov/storefront-oms/internal/service/transition"
)

// Handlers связывает HTTP-маршруты с сервисами жизненного цикла заказов.
type Handlers struct {
	authority  *transition.Authority
	reconciler *reconcile.Reconciler
	store      domain.Store
	logger     *log.Entry
}

// NewHandlers создаёт набор обработчиков API.
func NewHandlers(authority *transition.Authority, reconciler *reconcile.Reconciler, store domain.Store, logger *log.Entry) *Handlers {
	if logger == nil {
		logger = log.New().WithField("component", "httpapi")
	}
	return &Handlers{
		authority:  authority,
		reconciler: reconciler,
		store:      store,
		logger:     logger,
	}
}

type updateStatusRequest struct {
	Status            string     `json:"status"`
	Reason            string     `json:"reason,omitempty"`
	TrackingNumber    string     `json:"tracking_number,omitempty"`
	EstimatedDelivery *time.Time `json:"estimated_delivery,omitempty"`
	AdminNotes        string     `json:"admin_notes,omitempty"`
}

// UpdateStatus — переход статуса от имени персонала магазина.
func (h *Handlers) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing account identity")
		return
	}
	if !actor.IsStaff() {
		writeError(w, http.StatusForbidden, "staff role required")
		return
	}

	h.applyTransition(w, r, actor)
}

// UpdateCustomerStatus — переход статуса от имени покупателя:
// отмена, запрос возврата или обмена.
func (h *Handlers) UpdateCustomerStatus(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing account identity")
		return
	}
	if actor.IsStaff() {
		writeError(w, http.StatusForbidden, "customer endpoint is not available for staff accounts")
		return
	}

	h.applyTransition(w, r, actor)
}

func (h *Handlers) applyTransition(w http.ResponseWriter, r *http.Request, actor domain.Actor) {
	orderID := chi.URLParam(r, "orderID")

	var req updateStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	target := domain.OrderStatus(req.Status)
	if !target.Valid() {
		writeError(w, http.StatusBadRequest, "unknown order status: "+req.Status)
		return
	}

	order, err := h.authority.ApplyTransition(r.Context(), orderID, actor, target, transition.Annotation{
		Reason:            req.Reason,
		TrackingNumber:    req.TrackingNumber,
		EstimatedDelivery: req.EstimatedDelivery,
		AdminNotes:        req.AdminNotes,
	})
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

// GetOrder возвращает заказ. Покупателю доступны только собственные заказы.
func (h *Handlers) GetOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing account identity")
		return
	}

	order, err := h.store.Repos().Orders.Get(chi.URLParam(r, "orderID"))
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}
	if !actor.IsStaff() && order.BuyerID != actor.AccountID {
		// Не раскрываем существование чужого заказа.
		writeError(w, http.StatusNotFound, "order not found")
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(order))
}

// GetOrderHistory возвращает append-only историю статусов заказа.
func (h *Handlers) GetOrderHistory(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing account identity")
		return
	}

	history, err := h.authority.History(r.Context(), chi.URLParam(r, "orderID"), actor)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, toHistoryResponse(history))
}

// ListMyOrders возвращает заказы текущего покупателя, новые первыми.
func (h *Handlers) ListMyOrders(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing account identity")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			writeError(w, http.StatusBadRequest, "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	orders, err := h.store.Repos().Orders.ListByBuyer(actor.AccountID, limit)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	result := make([]orderResponse, 0, len(orders))
	for _, order := range orders {
		result = append(result, toOrderResponse(order))
	}
	writeJSON(w, http.StatusOK, result)
}

// GetLatestOrder возвращает самый свежий заказ текущего покупателя.
func (h *Handlers) GetLatestOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "missing account identity")
		return
	}

	order, err := h.store.Repos().Orders.Latest(actor.AccountID)
	if err != nil {
		writeDomainError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, toOrderResponse(order))
}
