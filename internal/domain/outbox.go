package domain

import "time"

// OutboxMessage хранит событие жизненного цикла заказа для публикации наружу.
// Сообщение вставляется в той же транзакции, что и изменение заказа,
// и публикуется асинхронным worker'ом (transactional outbox).
type OutboxMessage struct {
	ID            string
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

// OutboxStats описывает текущее состояние backlog transactional outbox.
type OutboxStats struct {
	PendingCount    int
	OldestPendingAt time.Time
}
