package memory

import (
	"context"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront-oms/internal/domain"
)

// state — единое in-memory хранилище всех коллекций. Один mutex на всё
// состояние делает WithinTx сериализованной точкой атомарности.
type state struct {
	mu      sync.RWMutex
	orders  map[string]domain.Order
	stock   map[string]int32
	carts   map[string][]domain.CartLine
	markers map[string]domain.ReconcileMarker
	outbox  map[string]*outboxRecord
}

// Store — in-memory реализация domain.Store для локальной разработки и тестов.
type Store struct {
	st           *state
	logger       *log.Entry
	stockCeiling int32
}

// Option настраивает Store.
type Option func(*Store)

// WithLogger задаёт logger для предупреждений инвентарной книги.
func WithLogger(logger *log.Entry) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithStockCeiling задаёт мягкий потолок остатка: Credit сверх потолка
// не запрещён, но логируется.
func WithStockCeiling(ceiling int32) Option {
	return func(s *Store) {
		s.stockCeiling = ceiling
	}
}

// NewStore создаёт пустое in-memory хранилище.
func NewStore(options ...Option) *Store {
	s := &Store{
		st: &state{
			orders:  make(map[string]domain.Order),
			stock:   make(map[string]int32),
			carts:   make(map[string][]domain.CartLine),
			markers: make(map[string]domain.ReconcileMarker),
			outbox:  make(map[string]*outboxRecord),
		},
	}
	for _, option := range options {
		option(s)
	}
	if s.logger == nil {
		s.logger = log.New().WithField("component", "memory-store")
	}
	return s
}

// Repos возвращает репозитории для одиночных операций; каждая операция
// берёт блокировку самостоятельно.
func (s *Store) Repos() domain.Repositories {
	return s.repos(true)
}

// WithinTx исполняет fn под общей блокировкой, снимая снимок состояния.
// Ошибка fn восстанавливает снимок: либо применяются все записи, либо ни одна.
func (s *Store) WithinTx(ctx context.Context, fn func(tx domain.Repositories) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.st.mu.Lock()
	defer s.st.mu.Unlock()

	snap := s.st.snapshot()
	if err := fn(s.repos(false)); err != nil {
		s.st.restore(snap)
		return err
	}
	return nil
}

// SetStock выставляет остаток товара напрямую. Пополнение каталога —
// забота внешней подсистемы; метод нужен тестам и локальным стендам.
func (s *Store) SetStock(productID string, qty int32) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	s.st.stock[productID] = qty
}

// SetCart кладёт позиции в корзину покупателя (для тестов и стендов).
func (s *Store) SetCart(buyerID string, lines []domain.CartLine) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	s.st.carts[buyerID] = append([]domain.CartLine(nil), lines...)
}

// Cart возвращает копию корзины покупателя.
func (s *Store) Cart(buyerID string) []domain.CartLine {
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()
	return append([]domain.CartLine(nil), s.st.carts[buyerID]...)
}

func (s *Store) repos(locking bool) domain.Repositories {
	return domain.Repositories{
		Orders:  &orderRepository{st: s.st, locking: locking},
		Ledger:  &inventoryLedger{st: s.st, locking: locking, logger: s.logger, ceiling: s.stockCeiling},
		Carts:   &cartStore{st: s.st, locking: locking},
		Markers: &markerRepository{st: s.st, locking: locking},
		Outbox:  &outboxRepository{st: s.st, locking: locking},
	}
}

type stateSnapshot struct {
	orders  map[string]domain.Order
	stock   map[string]int32
	carts   map[string][]domain.CartLine
	markers map[string]domain.ReconcileMarker
	outbox  map[string]*outboxRecord
}

// snapshot делает глубокую копию состояния. Объёмы данных в in-memory
// режиме малы, копирование на транзакцию приемлемо.
func (st *state) snapshot() stateSnapshot {
	snap := stateSnapshot{
		orders:  make(map[string]domain.Order, len(st.orders)),
		stock:   make(map[string]int32, len(st.stock)),
		carts:   make(map[string][]domain.CartLine, len(st.carts)),
		markers: make(map[string]domain.ReconcileMarker, len(st.markers)),
		outbox:  make(map[string]*outboxRecord, len(st.outbox)),
	}
	for id, order := range st.orders {
		snap.orders[id] = cloneOrder(order)
	}
	for id, qty := range st.stock {
		snap.stock[id] = qty
	}
	for buyer, lines := range st.carts {
		snap.carts[buyer] = append([]domain.CartLine(nil), lines...)
	}
	for id, marker := range st.markers {
		snap.markers[id] = marker
	}
	for id, rec := range st.outbox {
		cp := *rec
		snap.outbox[id] = &cp
	}
	return snap
}

func (st *state) restore(snap stateSnapshot) {
	st.orders = snap.orders
	st.stock = snap.stock
	st.carts = snap.carts
	st.markers = snap.markers
	st.outbox = snap.outbox
}

// cloneOrder копирует заказ вместе со срезами, чтобы избежать
// непредсказуемых мутаций извне.
func cloneOrder(src domain.Order) domain.Order {
	dst := src
	dst.Items = append([]domain.OrderItem(nil), src.Items...)
	dst.History = append([]domain.StatusChange(nil), src.History...)
	if src.EstimatedDelivery != nil {
		ed := *src.EstimatedDelivery
		dst.EstimatedDelivery = &ed
	}
	return dst
}

var _ domain.Store = (*Store)(nil)
