package domain

import "context"

// OrderRepository описывает требования к хранилищу заказов.
type OrderRepository interface {
	// Create сохраняет новый заказ вместе с позициями и начальной историей.
	Create(order Order) error
	// Get возвращает заказ по идентификатору или ErrOrderNotFound, если его нет.
	Get(id string) (Order, error)
	// GetByProviderEvent возвращает заказ, созданный из данного платёжного события.
	GetByProviderEvent(providerEventID string) (Order, error)
	// ListByBuyer возвращает заказы покупателя, новые первыми,
	// с опциональным ограничением на количество.
	ListByBuyer(buyerID string, limit int) ([]Order, error)
	// Latest возвращает самый свежий заказ покупателя.
	Latest(buyerID string) (Order, error)
	// Save применяет обновления к заказу с учётом optimistic locking:
	// проигравший compare-and-swap получает ErrOrderVersionConflict.
	// Новые записи History дописываются, существующие не переписываются.
	Save(order Order) error
}

// InventoryLedger — авторитетный учёт остатков по товарам.
// Debit и Credit атомарны относительно конкурентных вызовов по одному товару.
type InventoryLedger interface {
	// GetStock возвращает текущий остаток или ErrProductNotFound.
	GetStock(productID string) (int32, error)
	// Debit списывает qty единиц; ErrInsufficientStock, если qty больше остатка.
	Debit(productID string, qty int32) error
	// Credit возвращает qty единиц на склад. Прекондиций нет, но превышение
	// настроенного потолка логируется как предупреждение.
	Credit(productID string, qty int32) error
}

// CartStore — внешняя корзина покупателя; ядро только очищает её
// после успешной реконсиляции cart-checkout события.
type CartStore interface {
	Clear(buyerID string) error
}

// MarkerRepository хранит маркеры идемпотентности платёжных событий.
type MarkerRepository interface {
	// Create вставляет маркер; ErrMarkerExists, если provider_event_id уже занят.
	Create(marker ReconcileMarker) error
	// Get возвращает маркер или ErrMarkerNotFound.
	Get(providerEventID string) (ReconcileMarker, error)
}

// OutboxRepository позволяет сохранять события для последующей публикации.
type OutboxRepository interface {
	Enqueue(msg OutboxMessage) (OutboxMessage, error)
	PullPending(limit int) ([]OutboxMessage, error)
	Stats() (OutboxStats, error)
	MarkSent(id string) error
	MarkFailed(id string) error
}

// OutboxPublisher публикует события из transactional outbox.
type OutboxPublisher interface {
	// Publish передаёт событие наружу; должен быть идемпотентным.
	Publish(event OutboxMessage) error
}

// Repositories — набор репозиториев, разделяющих одно хранилище.
// Внутри WithinTx все они привязаны к одной транзакции.
type Repositories struct {
	Orders  OrderRepository
	Ledger  InventoryLedger
	Carts   CartStore
	Markers MarkerRepository
	Outbox  OutboxRepository
}

// Store объединяет репозитории и даёт им транзакционную границу.
// Корректность конкурентных сценариев строится на атомарных условных
// обновлениях внутри WithinTx, а не на глобальных блокировках процесса.
type Store interface {
	// Repos возвращает репозитории для одиночных (вне транзакции) операций.
	Repos() Repositories
	// WithinTx исполняет fn в одной атомарной транзакции: либо применяются
	// все записи fn, либо ни одна. Ошибка fn откатывает транзакцию и
	// возвращается вызывающему без обёртки.
	WithinTx(ctx context.Context, fn func(tx Repositories) error) error
}
