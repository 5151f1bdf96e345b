package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/storefront-oms/internal/domain"
)

type inventoryLedger struct {
	q   querier
	ctx context.Context
}

func (r *inventoryLedger) GetStock(productID string) (int32, error) {
	ctx, cancel := opCtx(r.ctx)
	defer cancel()

	var stock int32
	err := r.q.QueryRowContext(ctx, `
		SELECT stock FROM inventory WHERE product_id = $1
	`, productID).Scan(&stock)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, domain.ErrProductNotFound
		}
		return 0, fmt.Errorf("select stock: %w", err)
	}
	return stock, nil
}

// Debit списывает сток условным UPDATE: условие stock >= qty делает
// списание атомарным без SELECT FOR UPDATE, остаток не уходит в минус
// даже при конкурентных транзакциях.
func (r *inventoryLedger) Debit(productID string, qty int32) error {
	if qty <= 0 {
		return domain.ErrItemQtyInvalid
	}

	ctx, cancel := opCtx(r.ctx)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `
		UPDATE inventory
		SET stock = stock - $1
		WHERE product_id = $2
		  AND stock >= $1
	`, qty, productID)
	if err != nil {
		return fmt.Errorf("debit stock: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		exists, err := r.productExists(ctx, productID)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrProductNotFound
		}
		return domain.ErrInsufficientStock
	}
	return nil
}

func (r *inventoryLedger) Credit(productID string, qty int32) error {
	if qty <= 0 {
		return domain.ErrItemQtyInvalid
	}

	ctx, cancel := opCtx(r.ctx)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `
		UPDATE inventory
		SET stock = stock + $1
		WHERE product_id = $2
	`, qty, productID)
	if err != nil {
		return fmt.Errorf("credit stock: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return domain.ErrProductNotFound
	}
	return nil
}

func (r *inventoryLedger) productExists(ctx context.Context, productID string) (bool, error) {
	var id string
	err := r.q.QueryRowContext(ctx, `SELECT product_id FROM inventory WHERE product_id = $1`, productID).Scan(&id)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("check product exists: %w", err)
}

var _ domain.InventoryLedger = (*inventoryLedger)(nil)
