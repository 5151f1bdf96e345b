package memory

import "github.com/vladislavdragonenkov/storefront-oms/internal/domain"

// cartStore — in-memory корзины покупателей. Ядро только очищает корзину
// после успешной реконсиляции; наполнение — забота внешней подсистемы.
type cartStore struct {
	st      *state
	locking bool
}

// Clear удаляет корзину покупателя. Отсутствующая корзина — не ошибка.
func (c *cartStore) Clear(buyerID string) error {
	if c.locking {
		c.st.mu.Lock()
		defer c.st.mu.Unlock()
	}

	delete(c.st.carts, buyerID)
	return nil
}

var _ domain.CartStore = (*cartStore)(nil)
