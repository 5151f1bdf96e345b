package memory

import (
	"time"

	"github.com/vladislavdragonenkov/storefront-oms/internal/domain"
)

// markerRepository — in-memory маркеры идемпотентности платёжных событий.
type markerRepository struct {
	st      *state
	locking bool
}

// Create вставляет маркер; победитель гонки определяется под общим mutex.
func (r *markerRepository) Create(marker domain.ReconcileMarker) error {
	if marker.ProviderEventID == "" {
		return domain.ErrEventIDRequired
	}
	if !marker.Outcome.Valid() {
		return domain.ErrEventTypeUnknown
	}

	if r.locking {
		r.st.mu.Lock()
		defer r.st.mu.Unlock()
	}

	if _, exists := r.st.markers[marker.ProviderEventID]; exists {
		return domain.ErrMarkerExists
	}
	if marker.CreatedAt.IsZero() {
		marker.CreatedAt = time.Now().UTC()
	}
	r.st.markers[marker.ProviderEventID] = marker
	return nil
}

// Get возвращает маркер или ErrMarkerNotFound.
func (r *markerRepository) Get(providerEventID string) (domain.ReconcileMarker, error) {
	if providerEventID == "" {
		return domain.ReconcileMarker{}, domain.ErrEventIDRequired
	}

	if r.locking {
		r.st.mu.RLock()
		defer r.st.mu.RUnlock()
	}

	marker, ok := r.st.markers[providerEventID]
	if !ok {
		return domain.ReconcileMarker{}, domain.ErrMarkerNotFound
	}
	return marker, nil
}

var _ domain.MarkerRepository = (*markerRepository)(nil)
