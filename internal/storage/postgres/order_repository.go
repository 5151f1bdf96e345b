package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vladislavdragonenkov/storefront-oms/internal/domain"
)

type orderRepository struct {
	q   querier
	ctx context.Context
}

const orderColumns = `
	id, buyer_id, status, currency, amount_minor,
	tracking_number, estimated_delivery, admin_notes, customer_notes,
	provider_event_id, provider_tx_ref, version, created_at, updated_at`

func (r *orderRepository) Create(order domain.Order) error {
	ctx, cancel := opCtx(r.ctx)
	defer cancel()

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
	`,
		order.ID, order.BuyerID, string(order.Status), order.Currency, order.AmountMinor,
		order.TrackingNumber, order.EstimatedDelivery, order.AdminNotes, order.CustomerNotes,
		nullString(order.ProviderEventID), nullString(order.ProviderTxRef),
		order.Version, order.CreatedAt, order.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrOrderVersionConflict
		}
		return fmt.Errorf("insert order: %w", err)
	}

	for i, item := range order.Items {
		if _, err := r.q.ExecContext(ctx, `
			INSERT INTO order_items (order_id, position, product_id, qty, price_minor)
			VALUES ($1,$2,$3,$4,$5)
		`, order.ID, i, item.ProductID, item.Qty, item.PriceMinor); err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	if err := r.insertHistory(ctx, order.ID, 0, order.History); err != nil {
		return err
	}

	return nil
}

func (r *orderRepository) Get(id string) (domain.Order, error) {
	ctx, cancel := opCtx(r.ctx)
	defer cancel()

	return r.getByQuery(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE id = $1
	`, id)
}

func (r *orderRepository) GetByProviderEvent(providerEventID string) (domain.Order, error) {
	ctx, cancel := opCtx(r.ctx)
	defer cancel()

	return r.getByQuery(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE provider_event_id = $1
	`, providerEventID)
}

func (r *orderRepository) ListByBuyer(buyerID string, limit int) ([]domain.Order, error) {
	ctx, cancel := opCtx(r.ctx)
	defer cancel()

	query := `
		SELECT ` + orderColumns + `
		FROM orders
		WHERE buyer_id = $1
		ORDER BY created_at DESC, id DESC
	`

	var (
		rows *sql.Rows
		err  error
	)
	if limit > 0 {
		rows, err = r.q.QueryContext(ctx, query+" LIMIT $2", buyerID, limit)
	} else {
		rows, err = r.q.QueryContext(ctx, query, buyerID)
	}
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	orders := make([]domain.Order, 0)
	for rows.Next() {
		order, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order rows: %w", err)
	}

	for i := range orders {
		if err := r.loadRelations(ctx, &orders[i]); err != nil {
			return nil, err
		}
	}

	return orders, nil
}

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

func (r *orderRepository) Save(order domain.Order) error {
	ctx, cancel := opCtx(r.ctx)
	defer cancel()

	res, err := r.q.ExecContext(ctx, `
		UPDATE orders
		SET status = $1,
		    tracking_number = $2,
		    estimated_delivery = $3,
		    admin_notes = $4,
		    customer_notes = $5,
		    version = version + 1,
		    updated_at = $6
		WHERE id = $7
		  AND version = $8
	`,
		string(order.Status),
		order.TrackingNumber,
		order.EstimatedDelivery,
		order.AdminNotes,
		order.CustomerNotes,
		order.UpdatedAt,
		order.ID,
		order.Version,
	)
	if err != nil {
		return fmt.Errorf("update order: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		exists, err := r.orderExists(ctx, order.ID)
		if err != nil {
			return err
		}
		if !exists {
			return domain.ErrOrderNotFound
		}
		return domain.ErrOrderVersionConflict
	}

	// История append-only: дописываем только записи сверх уже сохранённых.
	var stored int
	if err := r.q.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM order_status_history WHERE order_id = $1
	`, order.ID).Scan(&stored); err != nil {
		return fmt.Errorf("count order history: %w", err)
	}
	if len(order.History) < stored {
		return domain.ErrHistoryMismatch
	}
	if err := r.insertHistory(ctx, order.ID, stored, order.History[stored:]); err != nil {
		return err
	}

	return nil
}

func (r *orderRepository) getByQuery(ctx context.Context, query string, arg any) (domain.Order, error) {
	row := r.q.QueryRowContext(ctx, query, arg)
	order, err := scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, domain.ErrOrderNotFound
		}
		return domain.Order{}, err
	}

	if err := r.loadRelations(ctx, &order); err != nil {
		return domain.Order{}, err
	}
	return order, nil
}

func (r *orderRepository) loadRelations(ctx context.Context, order *domain.Order) error {
	items, err := r.loadItems(ctx, order.ID)
	if err != nil {
		return err
	}
	order.Items = items

	history, err := r.loadHistory(ctx, order.ID)
	if err != nil {
		return err
	}
	order.History = history
	return nil
}

func (r *orderRepository) loadItems(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT product_id, qty, price_minor
		FROM order_items
		WHERE order_id = $1
		ORDER BY position ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order items: %w", err)
	}
	defer rows.Close()

	items := make([]domain.OrderItem, 0)
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(&item.ProductID, &item.Qty, &item.PriceMinor); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order items: %w", err)
	}

	return items, nil
}

func (r *orderRepository) loadHistory(ctx context.Context, orderID string) ([]domain.StatusChange, error) {
	rows, err := r.q.QueryContext(ctx, `
		SELECT status, reason, actor_id, occurred_at
		FROM order_status_history
		WHERE order_id = $1
		ORDER BY seq ASC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("load order history: %w", err)
	}
	defer rows.Close()

	history := make([]domain.StatusChange, 0)
	for rows.Next() {
		var (
			change domain.StatusChange
			status string
		)
		if err := rows.Scan(&status, &change.Reason, &change.ActorID, &change.OccurredAt); err != nil {
			return nil, fmt.Errorf("scan history entry: %w", err)
		}
		change.Status = domain.OrderStatus(status)
		history = append(history, change)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate history entries: %w", err)
	}

	return history, nil
}

func (r *orderRepository) insertHistory(ctx context.Context, orderID string, fromSeq int, entries []domain.StatusChange) error {
	for i, change := range entries {
		if _, err := r.q.ExecContext(ctx, `
			INSERT INTO order_status_history (order_id, seq, status, reason, actor_id, occurred_at)
			VALUES ($1,$2,$3,$4,$5,$6)
		`, orderID, fromSeq+i, string(change.Status), change.Reason, change.ActorID, change.OccurredAt); err != nil {
			return fmt.Errorf("insert history entry: %w", err)
		}
	}
	return nil
}

func (r *orderRepository) orderExists(ctx context.Context, orderID string) (bool, error) {
	var id string
	err := r.q.QueryRowContext(ctx, `SELECT id FROM orders WHERE id = $1`, orderID).Scan(&id)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, fmt.Errorf("check order exists: %w", err)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		order           domain.Order
		status          string
		estimated       sql.NullTime
		providerEventID sql.NullString
		providerTxRef   sql.NullString
	)
	if err := row.Scan(
		&order.ID, &order.BuyerID, &status, &order.Currency, &order.AmountMinor,
		&order.TrackingNumber, &estimated, &order.AdminNotes, &order.CustomerNotes,
		&providerEventID, &providerTxRef, &order.Version, &order.CreatedAt, &order.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.Order{}, err
		}
		return domain.Order{}, fmt.Errorf("scan order row: %w", err)
	}

	order.Status = domain.OrderStatus(status)
	if estimated.Valid {
		t := estimated.Time.UTC()
		order.EstimatedDelivery = &t
	}
	order.ProviderEventID = providerEventID.String
	order.ProviderTxRef = providerTxRef.String
	return order, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

var _ domain.OrderRepository = (*orderRepository)(nil)
