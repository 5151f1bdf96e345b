package memory_test

import (
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/storefront-oms/internal/domain"
	"github.com/vladislavdragonenkov/storefront-oms/internal/storage/memory"
)

func TestOrderCreateDuplicateID(t *testing.T) {
	store := memory.NewStore()
	repos := store.Repos()

	if err := repos.Orders.Create(newOrder("order-1")); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := repos.Orders.Create(newOrder("order-1")); !domain.IsVersionConflict(err) {
		t.Fatalf("duplicate create err = %v, want version conflict", err)
	}
}

func TestOrderGetNotFound(t *testing.T) {
	store := memory.NewStore()

	if _, err := store.Repos().Orders.Get("missing"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("err = %v, want ErrOrderNotFound", err)
	}
}

func TestOrderGetByProviderEvent(t *testing.T) {
	store := memory.NewStore()
	repos := store.Repos()

	order := newOrder("order-1")
	order.ProviderEventID = "evt-1"
	if err := repos.Orders.Create(order); err != nil {
		t.Fatalf("create: %v", err)
	}
	// Заказ без привязки к событию не должен находиться по пустому ключу.
	if err := repos.Orders.Create(newOrder("order-2")); err != nil {
		t.Fatalf("create: %v", err)
	}

	found, err := repos.Orders.GetByProviderEvent("evt-1")
	if err != nil {
		t.Fatalf("GetByProviderEvent: %v", err)
	}
	if found.ID != "order-1" {
		t.Fatalf("found order %q, want order-1", found.ID)
	}

	if _, err := repos.Orders.GetByProviderEvent("evt-unknown"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("err = %v, want ErrOrderNotFound", err)
	}
	if _, err := repos.Orders.GetByProviderEvent(""); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("empty key err = %v, want ErrOrderNotFound", err)
	}
}

func TestOrderListByBuyer(t *testing.T) {
	store := memory.NewStore()
	repos := store.Repos()
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	for i, tc := range []struct {
		id      string
		buyerID string
	}{
		{"order-a", "buyer-1"},
		{"order-b", "buyer-1"},
		{"order-c", "buyer-2"},
		{"order-d", "buyer-1"},
	} {
		order := newOrder(tc.id)
		order.BuyerID = tc.buyerID
		order.CreatedAt = base.Add(time.Duration(i) * time.Hour)
		if err := repos.Orders.Create(order); err != nil {
			t.Fatalf("create %s: %v", tc.id, err)
		}
	}

	orders, err := repos.Orders.ListByBuyer("buyer-1", 0)
	if err != nil {
		t.Fatalf("ListByBuyer: %v", err)
	}
	if len(orders) != 3 {
		t.Fatalf("orders = %d, want 3", len(orders))
	}
	// Новые первыми.
	for i, want := range []string{"order-d", "order-b", "order-a"} {
		if orders[i].ID != want {
			t.Fatalf("orders[%d] = %q, want %q", i, orders[i].ID, want)
		}
	}

	limited, err := repos.Orders.ListByBuyer("buyer-1", 2)
	if err != nil {
		t.Fatalf("ListByBuyer limited: %v", err)
	}
	if len(limited) != 2 || limited[0].ID != "order-d" {
		t.Fatalf("unexpected limited result: %+v", limited)
	}

	empty, err := repos.Orders.ListByBuyer("buyer-3", 0)
	if err != nil {
		t.Fatalf("ListByBuyer empty: %v", err)
	}
	if len(empty) != 0 {
		t.Fatalf("expected no orders, got %d", len(empty))
	}
}

func TestOrderListByBuyerTiebreak(t *testing.T) {
	store := memory.NewStore()
	repos := store.Repos()
	at := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	for _, id := range []string{"order-a", "order-b"} {
		order := newOrder(id)
		order.CreatedAt = at
		if err := repos.Orders.Create(order); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}

	orders, err := repos.Orders.ListByBuyer("buyer-1", 0)
	if err != nil {
		t.Fatalf("ListByBuyer: %v", err)
	}
	// При равном created_at порядок детерминирован по убыванию ID.
	if orders[0].ID != "order-b" || orders[1].ID != "order-a" {
		t.Fatalf("unexpected tiebreak order: %q, %q", orders[0].ID, orders[1].ID)
	}
}

func TestOrderLatest(t *testing.T) {
	store := memory.NewStore()
	repos := store.Repos()
	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	first := newOrder("order-1")
	first.CreatedAt = base
	second := newOrder("order-2")
	second.CreatedAt = base.Add(time.Minute)
	for _, order := range []domain.Order{first, second} {
		if err := repos.Orders.Create(order); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	latest, err := repos.Orders.Latest("buyer-1")
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if latest.ID != "order-2" {
		t.Fatalf("latest = %q, want order-2", latest.ID)
	}

	if _, err := repos.Orders.Latest("buyer-empty"); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("err = %v, want ErrOrderNotFound", err)
	}
}

func TestOrderSaveRejectsTruncatedHistory(t *testing.T) {
	store := memory.NewStore()
	repos := store.Repos()

	order := newOrder("order-1")
	order.AppendHistory(domain.OrderStatusProcessing, "", "staff-1", time.Now().UTC())
	if err := repos.Orders.Create(order); err != nil {
		t.Fatalf("create: %v", err)
	}

	truncated, err := repos.Orders.Get("order-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	truncated.History = truncated.History[:1]
	truncated.Status = domain.OrderStatusPlaced

	if err := repos.Orders.Save(truncated); !errors.Is(err, domain.ErrHistoryMismatch) {
		t.Fatalf("err = %v, want ErrHistoryMismatch", err)
	}
}

func TestOrderSaveNotFound(t *testing.T) {
	store := memory.NewStore()

	if err := store.Repos().Orders.Save(newOrder("missing")); !errors.Is(err, domain.ErrOrderNotFound) {
		t.Fatalf("err = %v, want ErrOrderNotFound", err)
	}
}
