package memory

import (
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront-oms/internal/domain"
)

// inventoryLedger — in-memory учёт остатков. Атомарность по товару
// обеспечивается общим mutex хранилища.
type inventoryLedger struct {
	st      *state
	locking bool
	logger  *log.Entry
	ceiling int32
}

func (l *inventoryLedger) lock() func() {
	if !l.locking {
		return func() {}
	}
	l.st.mu.Lock()
	return l.st.mu.Unlock
}

// GetStock возвращает текущий остаток товара.
func (l *inventoryLedger) GetStock(productID string) (int32, error) {
	if l.locking {
		l.st.mu.RLock()
		defer l.st.mu.RUnlock()
	}

	stock, ok := l.st.stock[productID]
	if !ok {
		return 0, domain.ErrProductNotFound
	}
	return stock, nil
}

// Debit списывает qty единиц; остаток никогда не уходит в минус.
func (l *inventoryLedger) Debit(productID string, qty int32) error {
	if qty <= 0 {
		return domain.ErrItemQtyInvalid
	}

	defer l.lock()()

	stock, ok := l.st.stock[productID]
	if !ok {
		return domain.ErrProductNotFound
	}
	if qty > stock {
		return domain.ErrInsufficientStock
	}
	l.st.stock[productID] = stock - qty
	return nil
}

// Credit возвращает qty единиц на склад. Превышение потолка — только
// предупреждение в лог, не ошибка: в этом домене перелив не ломает инвариантов.
func (l *inventoryLedger) Credit(productID string, qty int32) error {
	if qty <= 0 {
		return domain.ErrItemQtyInvalid
	}

	defer l.lock()()

	stock, ok := l.st.stock[productID]
	if !ok {
		return domain.ErrProductNotFound
	}
	next := stock + qty
	if l.ceiling > 0 && next > l.ceiling && l.logger != nil {
		l.logger.WithFields(log.Fields{
			"product_id": productID,
			"stock":      next,
			"ceiling":    l.ceiling,
		}).Warn("stock credit exceeds configured ceiling")
	}
	l.st.stock[productID] = next
	return nil
}

var _ domain.InventoryLedger = (*inventoryLedger)(nil)
