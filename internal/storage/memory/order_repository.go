package memory

import (
	"sort"

	"github.com/vladislavdragonenkov/storefront-oms/internal/domain"
)

// orderRepository — in-memory реализация OrderRepository поверх общего state.
type orderRepository struct {
	st      *state
	locking bool
}

func (r *orderRepository) lock() func() {
	if !r.locking {
		return func() {}
	}
	r.st.mu.Lock()
	return r.st.mu.Unlock
}

func (r *orderRepository) rlock() func() {
	if !r.locking {
		return func() {}
	}
	r.st.mu.RLock()
	return r.st.mu.RUnlock
}

// Create сохраняет новый заказ, если ID ещё не занят.
func (r *orderRepository) Create(order domain.Order) error {
	defer r.lock()()

	if _, exists := r.st.orders[order.ID]; exists {
		return domain.ErrOrderVersionConflict
	}
	r.st.orders[order.ID] = cloneOrder(order)
	return nil
}

// Get возвращает заказ или ErrOrderNotFound, если его нет.
func (r *orderRepository) Get(id string) (domain.Order, error) {
	defer r.rlock()()

	order, ok := r.st.orders[id]
	if !ok {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return cloneOrder(order), nil
}

// GetByProviderEvent ищет заказ по платёжному событию, из которого он создан.
func (r *orderRepository) GetByProviderEvent(providerEventID string) (domain.Order, error) {
	defer r.rlock()()

	for _, order := range r.st.orders {
		if order.ProviderEventID != "" && order.ProviderEventID == providerEventID {
			return cloneOrder(order), nil
		}
	}
	return domain.Order{}, domain.ErrOrderNotFound
}

// ListByBuyer возвращает заказы покупателя, новые первыми, ограничивая выборку limit (если >0).
func (r *orderRepository) ListByBuyer(buyerID string, limit int) ([]domain.Order, error) {
	defer r.rlock()()

	result := make([]domain.Order, 0)
	for _, order := range r.st.orders {
		if order.BuyerID != buyerID {
			continue
		}
		result = append(result, cloneOrder(order))
	}

	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})

	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}

	return result, nil
}

// Latest возвращает самый свежий заказ покупателя.
func (r *orderRepository) Latest(buyerID string) (domain.Order, error) {
	orders, err := r.ListByBuyer(buyerID, 1)
	if err != nil {
		return domain.Order{}, err
	}
	if len(orders) == 0 {
		return domain.Order{}, domain.ErrOrderNotFound
	}
	return orders[0], nil
}

// Save перезаписывает заказ, проверяя версию (optimistic locking).
// История только дописывается: укоротить её по сравнению с сохранённой нельзя.
func (r *orderRepository) Save(order domain.Order) error {
	defer r.lock()()

	current, ok := r.st.orders[order.ID]
	if !ok {
		return domain.ErrOrderNotFound
	}
	if current.Version != order.Version {
		return domain.ErrOrderVersionConflict
	}
	if len(order.History) < len(current.History) {
		return domain.ErrHistoryMismatch
	}
	// Инкрементируем версию перед сохранением.
	order.Version++
	r.st.orders[order.ID] = cloneOrder(order)
	return nil
}

var _ domain.OrderRepository = (*orderRepository)(nil)
