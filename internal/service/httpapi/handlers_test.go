package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/vladislavdragonenkov/storefront-oms/internal/domain"
	"github.com/vladislavdragonenkov/storefront-oms/internal/service/reconcile"
	"github.com/vladislavdragonenkov/storefront-oms/internal/service/transition"
	"github.com/vladislavdragonenkov/storefront-oms/internal/storage/memory"
)

type testEnv struct {
	store  *memory.Store
	router http.Handler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	logger := log.New()
	logger.SetLevel(log.PanicLevel)
	entry := logger.WithField("component", "test")

	store := memory.NewStore()
	authority := transition.NewAuthority(store, entry)
	reconciler := reconcile.NewReconciler(store, entry)
	handlers := NewHandlers(authority, reconciler, store, entry)

	return &testEnv{store: store, router: NewRouter(handlers)}
}

func (e *testEnv) seedOrder(t *testing.T, id, buyerID string, status domain.OrderStatus, createdAt time.Time) {
	t.Helper()

	order := domain.Order{
		ID:          id,
		BuyerID:     buyerID,
		Status:      domain.OrderStatusPlaced,
		Currency:    "USD",
		AmountMinor: 2500,
		Items:       []domain.OrderItem{{ProductID: "prod-1", Qty: 1, PriceMinor: 2500}},
		CreatedAt:   createdAt,
		UpdatedAt:   createdAt,
	}
	order.History = []domain.StatusChange{{
		Status:     domain.OrderStatusPlaced,
		Reason:     "Payment confirmed",
		OccurredAt: createdAt,
	}}
	if status != domain.OrderStatusPlaced {
		order.AppendHistory(status, "", "staff-1", createdAt.Add(time.Hour))
	}
	require.NoError(t, e.store.Repos().Orders.Create(order))
}

func (e *testEnv) do(method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func asCustomer(accountID string) map[string]string {
	return map[string]string{HeaderAccountID: accountID, HeaderAccountRole: "customer"}
}

func asAdmin(accountID string) map[string]string {
	return map[string]string{HeaderAccountID: accountID, HeaderAccountRole: "admin"}
}

func TestUpdateStatusAdminFlow(t *testing.T) {
	env := newTestEnv(t)
	env.seedOrder(t, "order-1", "buyer-1", domain.OrderStatusPlaced, time.Now().UTC())

	rec := env.do(http.MethodPut, "/api/orders/order-1/status", updateStatusRequest{
		Status:     "Processing",
		AdminNotes: "gift wrap",
	}, asAdmin("staff-1"))
	require.Equal(t, http.StatusOK, rec.Code)

	var body orderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "Processing", body.Status)
	require.Equal(t, "gift wrap", body.AdminNotes)
	require.EqualValues(t, 1, body.Version)
	require.Len(t, body.History, 2)
}

func TestUpdateStatusRequiresStaff(t *testing.T) {
	env := newTestEnv(t)
	env.seedOrder(t, "order-1", "buyer-1", domain.OrderStatusPlaced, time.Now().UTC())

	rec := env.do(http.MethodPut, "/api/orders/order-1/status", updateStatusRequest{
		Status: "Processing",
	}, asCustomer("buyer-1"))
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestUpdateCustomerStatusRejectsStaff(t *testing.T) {
	env := newTestEnv(t)
	env.seedOrder(t, "order-1", "buyer-1", domain.OrderStatusPlaced, time.Now().UTC())

	rec := env.do(http.MethodPut, "/api/orders/order-1/customer-status", updateStatusRequest{
		Status: "Cancelled",
	}, asAdmin("staff-1"))
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestUpdateStatusInvalidTransitionReturnsAllowed(t *testing.T) {
	env := newTestEnv(t)
	env.seedOrder(t, "order-1", "buyer-1", domain.OrderStatusPlaced, time.Now().UTC())

	rec := env.do(http.MethodPut, "/api/orders/order-1/status", updateStatusRequest{
		Status: "Delivered",
	}, asAdmin("staff-1"))
	require.Equal(t, http.StatusConflict, rec.Code)

	var body errorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.ElementsMatch(t, []string{"Processing", "Cancelled"}, body.AllowedStatuses)
}

func TestUpdateStatusUnknownStatus(t *testing.T) {
	env := newTestEnv(t)
	env.seedOrder(t, "order-1", "buyer-1", domain.OrderStatusPlaced, time.Now().UTC())

	rec := env.do(http.MethodPut, "/api/orders/order-1/status", updateStatusRequest{
		Status: "Teleported",
	}, asAdmin("staff-1"))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUpdateStatusMissingIdentity(t *testing.T) {
	env := newTestEnv(t)
	env.seedOrder(t, "order-1", "buyer-1", domain.OrderStatusPlaced, time.Now().UTC())

	rec := env.do(http.MethodPut, "/api/orders/order-1/status", updateStatusRequest{
		Status: "Processing",
	}, nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestUpdateStatusUnknownRole(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPut, "/api/orders/order-1/status", updateStatusRequest{
		Status: "Processing",
	}, map[string]string{HeaderAccountID: "svc-1", HeaderAccountRole: "robot"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestCustomerCancelOwnOrder(t *testing.T) {
	env := newTestEnv(t)
	env.store.SetStock("prod-1", 0)
	env.seedOrder(t, "order-1", "buyer-1", domain.OrderStatusPlaced, time.Now().UTC())

	rec := env.do(http.MethodPut, "/api/orders/order-1/customer-status", updateStatusRequest{
		Status: "Cancelled",
	}, asCustomer("buyer-1"))
	require.Equal(t, http.StatusOK, rec.Code)

	var body orderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "Cancelled", body.Status)

	stock, err := env.store.Repos().Ledger.GetStock("prod-1")
	require.NoError(t, err)
	require.EqualValues(t, 1, stock)
}

func TestCustomerReturnAfterWindowExpired(t *testing.T) {
	env := newTestEnv(t)
	deliveredAt := time.Now().UTC().AddDate(0, 0, -45)
	env.seedOrder(t, "order-1", "buyer-1", domain.OrderStatusDelivered, deliveredAt)

	rec := env.do(http.MethodPut, "/api/orders/order-1/customer-status", updateStatusRequest{
		Status: "Return Requested",
		Reason: "Changed my mind",
	}, asCustomer("buyer-1"))
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestGetOrderOwnership(t *testing.T) {
	env := newTestEnv(t)
	env.seedOrder(t, "order-1", "buyer-1", domain.OrderStatusPlaced, time.Now().UTC())

	rec := env.do(http.MethodGet, "/api/orders/order-1/", nil, asCustomer("buyer-1"))
	require.Equal(t, http.StatusOK, rec.Code)

	// Чужой заказ для покупателя неотличим от несуществующего.
	rec = env.do(http.MethodGet, "/api/orders/order-1/", nil, asCustomer("buyer-2"))
	require.Equal(t, http.StatusNotFound, rec.Code)

	// Персоналу доступен любой заказ.
	rec = env.do(http.MethodGet, "/api/orders/order-1/", nil, asAdmin("staff-1"))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodGet, "/api/orders/missing/", nil, asAdmin("staff-1"))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetOrderHistory(t *testing.T) {
	env := newTestEnv(t)
	env.seedOrder(t, "order-1", "buyer-1", domain.OrderStatusProcessing, time.Now().UTC())

	rec := env.do(http.MethodGet, "/api/orders/order-1/history", nil, asCustomer("buyer-1"))
	require.Equal(t, http.StatusOK, rec.Code)

	var history []statusChangeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &history))
	require.Len(t, history, 2)
	require.Equal(t, "Placed", history[0].Status)
	require.Equal(t, "Processing", history[1].Status)

	rec = env.do(http.MethodGet, "/api/orders/order-1/history", nil, asCustomer("buyer-2"))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListMyOrders(t *testing.T) {
	env := newTestEnv(t)
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	env.seedOrder(t, "order-1", "buyer-1", domain.OrderStatusPlaced, base)
	env.seedOrder(t, "order-2", "buyer-1", domain.OrderStatusPlaced, base.Add(time.Hour))
	env.seedOrder(t, "order-3", "buyer-2", domain.OrderStatusPlaced, base.Add(2*time.Hour))

	rec := env.do(http.MethodGet, "/api/orders/my", nil, asCustomer("buyer-1"))
	require.Equal(t, http.StatusOK, rec.Code)

	var orders []orderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &orders))
	require.Len(t, orders, 2)
	require.Equal(t, "order-2", orders[0].ID)
	require.Equal(t, "order-1", orders[1].ID)

	rec = env.do(http.MethodGet, "/api/orders/my?limit=1", nil, asCustomer("buyer-1"))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &orders))
	require.Len(t, orders, 1)

	rec = env.do(http.MethodGet, "/api/orders/my?limit=oops", nil, asCustomer("buyer-1"))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetLatestOrder(t *testing.T) {
	env := newTestEnv(t)
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	env.seedOrder(t, "order-1", "buyer-1", domain.OrderStatusPlaced, base)
	env.seedOrder(t, "order-2", "buyer-1", domain.OrderStatusPlaced, base.Add(time.Hour))

	rec := env.do(http.MethodGet, "/api/orders/latest", nil, asCustomer("buyer-1"))
	require.Equal(t, http.StatusOK, rec.Code)

	var body orderResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "order-2", body.ID)

	rec = env.do(http.MethodGet, "/api/orders/latest", nil, asCustomer("buyer-empty"))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthz(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/healthz", nil, nil)
	require.Equal(t, http.StatusOK, rec.Code)
}
