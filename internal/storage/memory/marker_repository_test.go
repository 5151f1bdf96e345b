package memory_test

import (
	"errors"
	"testing"
	"time"

	"github.com/vladislavdragonenkov/storefront-oms/internal/domain"
	"github.com/vladislavdragonenkov/storefront-oms/internal/storage/memory"
)

func TestMarkerCreateAndGet(t *testing.T) {
	store := memory.NewStore()
	markers := store.Repos().Markers

	at := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	marker := domain.ReconcileMarker{
		ProviderEventID: "evt-1",
		OrderID:         "order-1",
		Outcome:         domain.MarkerReconciled,
		AmountMinor:     4200,
		ProviderTxRef:   "pi-1",
		CreatedAt:       at,
	}

	if err := markers.Create(marker); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := markers.Get("evt-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got != marker {
		t.Fatalf("marker = %+v, want %+v", got, marker)
	}
}

func TestMarkerCreateDuplicate(t *testing.T) {
	store := memory.NewStore()
	markers := store.Repos().Markers

	marker := domain.ReconcileMarker{
		ProviderEventID: "evt-1",
		OrderID:         "order-1",
		Outcome:         domain.MarkerReconciled,
	}
	if err := markers.Create(marker); err != nil {
		t.Fatalf("create: %v", err)
	}

	// Повторная вставка проигрывает независимо от содержимого.
	marker.OrderID = "order-2"
	marker.Outcome = domain.MarkerRejected
	if err := markers.Create(marker); !errors.Is(err, domain.ErrMarkerExists) {
		t.Fatalf("err = %v, want ErrMarkerExists", err)
	}

	got, err := markers.Get("evt-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.OrderID != "order-1" || got.Outcome != domain.MarkerReconciled {
		t.Fatalf("loser overwrote marker: %+v", got)
	}
}

func TestMarkerCreateValidation(t *testing.T) {
	store := memory.NewStore()
	markers := store.Repos().Markers

	if err := markers.Create(domain.ReconcileMarker{Outcome: domain.MarkerReconciled}); !errors.Is(err, domain.ErrEventIDRequired) {
		t.Fatalf("err = %v, want ErrEventIDRequired", err)
	}
	if err := markers.Create(domain.ReconcileMarker{ProviderEventID: "evt-1", Outcome: "maybe"}); !errors.Is(err, domain.ErrEventTypeUnknown) {
		t.Fatalf("err = %v, want ErrEventTypeUnknown", err)
	}
}

func TestMarkerGetNotFound(t *testing.T) {
	store := memory.NewStore()

	if _, err := store.Repos().Markers.Get("missing"); !errors.Is(err, domain.ErrMarkerNotFound) {
		t.Fatalf("err = %v, want ErrMarkerNotFound", err)
	}
	if _, err := store.Repos().Markers.Get(""); !errors.Is(err, domain.ErrEventIDRequired) {
		t.Fatalf("empty key err = %v, want ErrEventIDRequired", err)
	}
}

func TestCartClearIsIdempotent(t *testing.T) {
	store := memory.NewStore()
	store.SetCart("buyer-1", []domain.CartLine{{ProductID: "prod-1", Qty: 2}})

	carts := store.Repos().Carts
	if err := carts.Clear("buyer-1"); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if got := store.Cart("buyer-1"); len(got) != 0 {
		t.Fatalf("cart not cleared: %+v", got)
	}

	// Отсутствующая корзина — не ошибка.
	if err := carts.Clear("buyer-1"); err != nil {
		t.Fatalf("repeat clear: %v", err)
	}
	if err := carts.Clear("buyer-unknown"); err != nil {
		t.Fatalf("clear unknown buyer: %v", err)
	}
}
