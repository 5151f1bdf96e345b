package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/storefront-oms/internal/domain"
)

type markerRepository struct {
	q   querier
	ctx context.Context
}

// Create вставляет маркер сверки. Первичный ключ по provider_event_id —
// точка сериализации: вторая вставка того же события получает ErrMarkerExists.
func (r *markerRepository) Create(marker domain.ReconcileMarker) error {
	if marker.ProviderEventID == "" {
		return domain.ErrEventIDRequired
	}
	if !marker.Outcome.Valid() {
		return fmt.Errorf("unknown marker outcome: %q", marker.Outcome)
	}
	if marker.CreatedAt.IsZero() {
		marker.CreatedAt = time.Now().UTC()
	}

	ctx, cancel := opCtx(r.ctx)
	defer cancel()

	_, err := r.q.ExecContext(ctx, `
		INSERT INTO reconcile_markers (
			provider_event_id, order_id, outcome, amount_minor, provider_tx_ref, created_at
		) VALUES ($1,$2,$3,$4,$5,$6)
	`,
		marker.ProviderEventID, nullString(marker.OrderID), string(marker.Outcome),
		marker.AmountMinor, nullString(marker.ProviderTxRef), marker.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrMarkerExists
		}
		return fmt.Errorf("insert reconcile marker: %w", err)
	}
	return nil
}

func (r *markerRepository) Get(providerEventID string) (domain.ReconcileMarker, error) {
	ctx, cancel := opCtx(r.ctx)
	defer cancel()

	var (
		marker  domain.ReconcileMarker
		orderID sql.NullString
		txRef   sql.NullString
		outcome string
	)
	err := r.q.QueryRowContext(ctx, `
		SELECT provider_event_id, order_id, outcome, amount_minor, provider_tx_ref, created_at
		FROM reconcile_markers
		WHERE provider_event_id = $1
	`, providerEventID).Scan(
		&marker.ProviderEventID, &orderID, &outcome,
		&marker.AmountMinor, &txRef, &marker.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.ReconcileMarker{}, domain.ErrMarkerNotFound
		}
		return domain.ReconcileMarker{}, fmt.Errorf("select reconcile marker: %w", err)
	}

	marker.Outcome = domain.MarkerOutcome(outcome)
	marker.OrderID = orderID.String
	marker.ProviderTxRef = txRef.String
	return marker, nil
}

var _ domain.MarkerRepository = (*markerRepository)(nil)
