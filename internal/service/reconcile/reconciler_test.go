package reconcile

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront-oms/internal/domain"
	"github.com/vladislavdragonenkov/storefront-oms/internal/storage/memory"
)

func testLogger() *log.Entry {
	logger := log.New()
	logger.SetLevel(log.PanicLevel)
	return logger.WithField("component", "test")
}

func cartEvent() domain.PaymentEvent {
	return domain.PaymentEvent{
		ProviderEventID: "evt-1",
		ProviderTxRef:   "pi-1",
		AmountMinor:     7800,
		Currency:        "USD",
		Metadata: domain.CheckoutMetadata{
			Type:    domain.CheckoutCart,
			BuyerID: "buyer-1",
			CartItems: []domain.CartLine{
				{ProductID: "prod-1", Qty: 2},
				{ProductID: "prod-2", Qty: 1},
			},
		},
	}
}

func TestReconcileCartCheckout(t *testing.T) {
	store := memory.NewStore()
	store.SetStock("prod-1", 5)
	store.SetStock("prod-2", 5)
	store.SetCart("buyer-1", []domain.CartLine{
		{ProductID: "prod-1", Qty: 2},
		{ProductID: "prod-2", Qty: 1},
	})

	now := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	reconciler := NewReconciler(store, testLogger(), WithClock(func() time.Time { return now }))

	order, err := reconciler.Reconcile(context.Background(), cartEvent())
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}

	if order.ID == "" {
		t.Fatal("order id is empty")
	}
	if order.Status != domain.OrderStatusPlaced {
		t.Fatalf("status = %q, want %q", order.Status, domain.OrderStatusPlaced)
	}
	if order.BuyerID != "buyer-1" || order.AmountMinor != 7800 || order.Currency != "USD" {
		t.Fatalf("unexpected order header: %+v", order)
	}
	if order.ProviderEventID != "evt-1" || order.ProviderTxRef != "pi-1" {
		t.Fatalf("provider refs not carried over: %+v", order)
	}
	if len(order.Items) != 2 {
		t.Fatalf("items = %d, want 2", len(order.Items))
	}
	if len(order.History) != 1 || order.History[0].Reason != "Payment confirmed" {
		t.Fatalf("unexpected history: %+v", order.History)
	}
	if errs := order.ValidateInvariants(); len(errs) != 0 {
		t.Fatalf("created order violates invariants: %v", errs)
	}
	if !order.CreatedAt.Equal(now) {
		t.Fatalf("created at = %v, want %v", order.CreatedAt, now)
	}

	repos := store.Repos()
	for _, tc := range []struct {
		productID string
		want      int32
	}{
		{"prod-1", 3},
		{"prod-2", 4},
	} {
		got, err := repos.Ledger.GetStock(tc.productID)
		if err != nil {
			t.Fatalf("GetStock(%s): %v", tc.productID, err)
		}
		if got != tc.want {
			t.Fatalf("stock %s = %d, want %d", tc.productID, got, tc.want)
		}
	}

	if cart := store.Cart("buyer-1"); len(cart) != 0 {
		t.Fatalf("cart not cleared: %+v", cart)
	}

	marker, err := repos.Markers.Get("evt-1")
	if err != nil {
		t.Fatalf("get marker: %v", err)
	}
	if marker.Outcome != domain.MarkerReconciled || marker.OrderID != order.ID {
		t.Fatalf("unexpected marker: %+v", marker)
	}

	pending, err := repos.Outbox.PullPending(10)
	if err != nil {
		t.Fatalf("pull outbox: %v", err)
	}
	if len(pending) != 1 || pending[0].EventType != eventOrderPlaced {
		t.Fatalf("unexpected outbox: %+v", pending)
	}
}

func TestReconcileSingleProductKeepsCart(t *testing.T) {
	store := memory.NewStore()
	store.SetStock("prod-9", 2)
	store.SetCart("buyer-1", []domain.CartLine{{ProductID: "prod-1", Qty: 1}})

	reconciler := NewReconciler(store, testLogger())

	event := domain.PaymentEvent{
		ProviderEventID: "evt-solo",
		AmountMinor:     1200,
		Currency:        "EUR",
		Metadata: domain.CheckoutMetadata{
			Type:      domain.CheckoutSingleProduct,
			BuyerID:   "buyer-1",
			ProductID: "prod-9",
			Qty:       1,
		},
	}

	order, err := reconciler.Reconcile(context.Background(), event)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if len(order.Items) != 1 || order.Items[0].ProductID != "prod-9" {
		t.Fatalf("unexpected items: %+v", order.Items)
	}

	// Покупка мимо корзины корзину не трогает.
	if cart := store.Cart("buyer-1"); len(cart) != 1 {
		t.Fatalf("cart modified by single product checkout: %+v", cart)
	}
}

func TestReconcileDuplicateEventReplays(t *testing.T) {
	store := memory.NewStore()
	store.SetStock("prod-1", 5)
	store.SetStock("prod-2", 5)

	reconciler := NewReconciler(store, testLogger())

	first, err := reconciler.Reconcile(context.Background(), cartEvent())
	if err != nil {
		t.Fatalf("first Reconcile: %v", err)
	}
	second, err := reconciler.Reconcile(context.Background(), cartEvent())
	if err != nil {
		t.Fatalf("second Reconcile: %v", err)
	}

	if first.ID != second.ID {
		t.Fatalf("replay returned different order: %q vs %q", first.ID, second.ID)
	}

	// Повторная доставка не списывает сток второй раз.
	got, err := store.Repos().Ledger.GetStock("prod-1")
	if err != nil {
		t.Fatalf("GetStock: %v", err)
	}
	if got != 3 {
		t.Fatalf("stock prod-1 = %d, want 3", got)
	}

	pending, err := store.Repos().Outbox.PullPending(10)
	if err != nil {
		t.Fatalf("pull outbox: %v", err)
	}
	if len(pending) != 1 {
		t.Fatalf("outbox pending = %d, want 1", len(pending))
	}
}

func TestReconcileReplayResolvesOrderByProviderEvent(t *testing.T) {
	store := memory.NewStore()
	event := cartEvent()
	now := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)

	order := domain.Order{
		ID:              "order-9",
		BuyerID:         "buyer-1",
		Status:          domain.OrderStatusPlaced,
		Currency:        "USD",
		AmountMinor:     7800,
		Items:           event.LineItems(),
		ProviderEventID: event.ProviderEventID,
		ProviderTxRef:   event.ProviderTxRef,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	order.AppendHistory(domain.OrderStatusPlaced, "Payment confirmed", "buyer-1", now)
	if err := store.Repos().Orders.Create(order); err != nil {
		t.Fatalf("seed order: %v", err)
	}

	// Маркер со сломанной ссылкой на заказ: реплей находит заказ
	// по ключу платёжного события.
	if err := store.Repos().Markers.Create(domain.ReconcileMarker{
		ProviderEventID: event.ProviderEventID,
		OrderID:         "ghost",
		Outcome:         domain.MarkerReconciled,
		AmountMinor:     event.AmountMinor,
		CreatedAt:       now,
	}); err != nil {
		t.Fatalf("seed marker: %v", err)
	}

	reconciler := NewReconciler(store, testLogger())
	got, err := reconciler.Reconcile(context.Background(), event)
	if err != nil {
		t.Fatalf("Reconcile: %v", err)
	}
	if got.ID != "order-9" {
		t.Fatalf("order id = %q, want order-9", got.ID)
	}
}

func TestReconcileConcurrentDeliveries(t *testing.T) {
	store := memory.NewStore()
	store.SetStock("prod-1", 2)
	store.SetStock("prod-2", 1)

	reconciler := NewReconciler(store, testLogger())

	const deliveries = 8
	results := make(chan string, deliveries)
	errs := make(chan error, deliveries)

	var wg sync.WaitGroup
	for i := 0; i < deliveries; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			order, err := reconciler.Reconcile(context.Background(), cartEvent())
			if err != nil {
				errs <- err
				return
			}
			results <- order.ID
		}()
	}
	wg.Wait()
	close(results)
	close(errs)

	for err := range errs {
		t.Fatalf("concurrent Reconcile: %v", err)
	}

	ids := make(map[string]struct{})
	for id := range results {
		ids[id] = struct{}{}
	}
	if len(ids) != 1 {
		t.Fatalf("concurrent deliveries produced %d distinct orders, want 1", len(ids))
	}

	// Ровно одно списание на все доставки.
	if got, _ := store.Repos().Ledger.GetStock("prod-1"); got != 0 {
		t.Fatalf("stock prod-1 = %d, want 0", got)
	}
	if got, _ := store.Repos().Ledger.GetStock("prod-2"); got != 0 {
		t.Fatalf("stock prod-2 = %d, want 0", got)
	}
}

func TestReconcileInsufficientStock(t *testing.T) {
	store := memory.NewStore()
	store.SetStock("prod-1", 5)
	store.SetStock("prod-2", 0)

	reconciler := NewReconciler(store, testLogger())

	_, err := reconciler.Reconcile(context.Background(), cartEvent())
	if !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("err = %v, want ErrInsufficientStock", err)
	}

	// Транзакция откатилась целиком: частичного списания нет.
	got, err := store.Repos().Ledger.GetStock("prod-1")
	if err != nil {
		t.Fatalf("GetStock: %v", err)
	}
	if got != 5 {
		t.Fatalf("stock prod-1 = %d, want 5 after rollback", got)
	}

	marker, err := store.Repos().Markers.Get("evt-1")
	if err != nil {
		t.Fatalf("get marker: %v", err)
	}
	if marker.Outcome != domain.MarkerRejected {
		t.Fatalf("marker outcome = %q, want rejected", marker.Outcome)
	}

	// Повтор события гасится rejected-маркером даже после пополнения стока.
	store.SetStock("prod-2", 100)
	if _, err := reconciler.Reconcile(context.Background(), cartEvent()); !errors.Is(err, domain.ErrInsufficientStock) {
		t.Fatalf("replay err = %v, want ErrInsufficientStock", err)
	}
	if got, _ := store.Repos().Ledger.GetStock("prod-2"); got != 100 {
		t.Fatalf("rejected replay touched stock: %d", got)
	}
}

func TestReconcileUnknownProduct(t *testing.T) {
	store := memory.NewStore()
	store.SetStock("prod-1", 5)
	// prod-2 в инвентарной книге отсутствует.

	reconciler := NewReconciler(store, testLogger())

	_, err := reconciler.Reconcile(context.Background(), cartEvent())
	if !errors.Is(err, domain.ErrProductNotFound) {
		t.Fatalf("err = %v, want ErrProductNotFound", err)
	}
}

func TestReconcileInvalidEvent(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.PaymentEvent)
	}{
		{"missing event id", func(e *domain.PaymentEvent) { e.ProviderEventID = "" }},
		{"missing buyer", func(e *domain.PaymentEvent) { e.Metadata.BuyerID = "" }},
		{"empty cart", func(e *domain.PaymentEvent) { e.Metadata.CartItems = nil }},
		{"unknown checkout type", func(e *domain.PaymentEvent) { e.Metadata.Type = "subscription" }},
		{"zero qty line", func(e *domain.PaymentEvent) { e.Metadata.CartItems[0].Qty = 0 }},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			store := memory.NewStore()
			store.SetStock("prod-1", 5)
			store.SetStock("prod-2", 5)
			reconciler := NewReconciler(store, testLogger())

			event := cartEvent()
			tc.mutate(&event)

			_, err := reconciler.Reconcile(context.Background(), event)
			if !errors.Is(err, domain.ErrInvalidEvent) {
				t.Fatalf("err = %v, want ErrInvalidEvent", err)
			}

			// Отклонённое на верификации событие не оставляет следов.
			if event.ProviderEventID != "" {
				if _, err := store.Repos().Markers.Get(event.ProviderEventID); !errors.Is(err, domain.ErrMarkerNotFound) {
					t.Fatalf("marker err = %v, want ErrMarkerNotFound", err)
				}
			}
			if got, _ := store.Repos().Ledger.GetStock("prod-1"); got != 5 {
				t.Fatalf("stock touched by invalid event: %d", got)
			}
		})
	}
}
