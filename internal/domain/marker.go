package domain

import "time"

// MarkerOutcome описывает исход реконсиляции платёжного события.
type MarkerOutcome string

const (
	// MarkerReconciled — событие породило ровно один заказ и одно списание стока.
	MarkerReconciled MarkerOutcome = "reconciled"
	// MarkerRejected — событие верифицировано, но отклонено (нехватка стока);
	// маркер гасит повторные доставки, расхождение разбирается вручную.
	MarkerRejected MarkerOutcome = "rejected"
)

// Valid проверяет, что исход относится к поддерживаемым значениям.
func (o MarkerOutcome) Valid() bool {
	switch o {
	case MarkerReconciled, MarkerRejected:
		return true
	default:
		return false
	}
}

// ReconcileMarker — долговременный маркер идемпотентности платёжного события.
// Вставка маркера служит точкой сериализации: из двух конкурентных доставок
// одного события выигрывает ровно одна, проигравшая видит ErrMarkerExists.
// Маркеры не удаляются: повторная доставка возможна сколь угодно поздно.
type ReconcileMarker struct {
	ProviderEventID string
	OrderID         string
	Outcome         MarkerOutcome
	AmountMinor     int64
	ProviderTxRef   string
	CreatedAt       time.Time
}
