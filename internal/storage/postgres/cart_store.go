package postgres

import (
	"context"
	"fmt"

	"github.com/vladislavdragonenkov/storefront-oms/internal/domain"
)

type cartStore struct {
	q   querier
	ctx context.Context
}

// Clear удаляет все позиции корзины покупателя.
// Отсутствующая корзина не ошибка: очистка идемпотентна.
func (r *cartStore) Clear(buyerID string) error {
	ctx, cancel := opCtx(r.ctx)
	defer cancel()

	if _, err := r.q.ExecContext(ctx, `
		DELETE FROM cart_items WHERE buyer_id = $1
	`, buyerID); err != nil {
		return fmt.Errorf("clear cart: %w", err)
	}
	return nil
}

var _ domain.CartStore = (*cartStore)(nil)
