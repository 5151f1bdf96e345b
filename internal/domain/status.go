package domain

// OrderStatus описывает жизненный цикл заказа в витрине.
// Набор значений закрыт: любые другие строки считаются некорректными.
type OrderStatus string

const (
	// OrderStatusPlaced — заказ создан реконсилятором после подтверждённой оплаты.
	OrderStatusPlaced OrderStatus = "Placed"
	// OrderStatusProcessing — заказ взят в работу магазином.
	OrderStatusProcessing OrderStatus = "Processing"
	// OrderStatusShipped — заказ передан в доставку.
	OrderStatusShipped OrderStatus = "Shipped"
	// OrderStatusOutForDelivery — курьер выехал к покупателю.
	OrderStatusOutForDelivery OrderStatus = "Out for Delivery"
	// OrderStatusDelivered — заказ вручён покупателю.
	OrderStatusDelivered OrderStatus = "Delivered"
	// OrderStatusCancelled — заказ отменён; сток возвращён. Терминальный статус.
	OrderStatusCancelled OrderStatus = "Cancelled"
	// OrderStatusFailedDelivery — попытка доставки не удалась.
	OrderStatusFailedDelivery OrderStatus = "Failed Delivery"

	// Возвратный workflow.
	OrderStatusReturnRequested OrderStatus = "Return Requested"
	OrderStatusReturnApproved  OrderStatus = "Return Approved"
	OrderStatusReturnRejected  OrderStatus = "Return Rejected"
	OrderStatusReturnInitiated OrderStatus = "Return Initiated"
	OrderStatusReturnInTransit OrderStatus = "Return in Transit"
	OrderStatusReturnDelivered OrderStatus = "Return Delivered"
	OrderStatusReturnCancelled OrderStatus = "Return Cancelled"
	OrderStatusReturnFailed    OrderStatus = "Return Failed"
	// OrderStatusRefundProcessed — деньги возвращены, сток восстановлен. Терминальный статус.
	OrderStatusRefundProcessed OrderStatus = "Refund Processed"

	// Обменный workflow.
	OrderStatusExchangeRequested OrderStatus = "Exchange Requested"
	OrderStatusExchangeApproved  OrderStatus = "Exchange Approved"
	OrderStatusExchangeRejected  OrderStatus = "Exchange Rejected"
	OrderStatusExchangeInitiated OrderStatus = "Exchange Initiated"
	OrderStatusExchangeInTransit OrderStatus = "Exchange in Transit"
	OrderStatusExchangeDelivered OrderStatus = "Exchange Delivered"
	OrderStatusExchangeFailed    OrderStatus = "Exchange Failed"
)

// allStatuses используется для проверки принадлежности к закрытому набору.
var allStatuses = map[OrderStatus]struct{}{
	OrderStatusPlaced:            {},
	OrderStatusProcessing:        {},
	OrderStatusShipped:           {},
	OrderStatusOutForDelivery:    {},
	OrderStatusDelivered:         {},
	OrderStatusCancelled:         {},
	OrderStatusFailedDelivery:    {},
	OrderStatusReturnRequested:   {},
	OrderStatusReturnApproved:    {},
	OrderStatusReturnRejected:    {},
	OrderStatusReturnInitiated:   {},
	OrderStatusReturnInTransit:   {},
	OrderStatusReturnDelivered:   {},
	OrderStatusReturnCancelled:   {},
	OrderStatusReturnFailed:      {},
	OrderStatusRefundProcessed:   {},
	OrderStatusExchangeRequested: {},
	OrderStatusExchangeApproved:  {},
	OrderStatusExchangeRejected:  {},
	OrderStatusExchangeInitiated: {},
	OrderStatusExchangeInTransit: {},
	OrderStatusExchangeDelivered: {},
	OrderStatusExchangeFailed:    {},
}

// Valid проверяет, что статус относится к закрытому набору значений.
func (s OrderStatus) Valid() bool {
	_, ok := allStatuses[s]
	return ok
}

// IsTerminal сообщает, является ли статус терминальным:
// из терминального статуса не существует ни одного перехода.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCancelled || s == OrderStatusRefundProcessed
}

// ReleasesStock сообщает, возвращает ли переход в данный статус
// зарезервированный сток обратно на склад.
func (s OrderStatus) ReleasesStock() bool {
	return s == OrderStatusCancelled || s == OrderStatusRefundProcessed
}

// Workflow разделяет таблицы переходов: у покупателя и у персонала магазина
// разные права на один и тот же статусный автомат.
type Workflow string

const (
	// WorkflowCustomer — переходы, доступные владельцу заказа.
	WorkflowCustomer Workflow = "customer"
	// WorkflowAdmin — переходы, доступные ролям admin и shopkeeper.
	WorkflowAdmin Workflow = "admin"
)

// customerTransitions — переходы, которые может инициировать владелец заказа.
// Отсутствие статуса в таблице означает пустое множество разрешённых переходов.
var customerTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPlaced:     {OrderStatusCancelled},
	OrderStatusProcessing: {OrderStatusCancelled},
	OrderStatusDelivered:  {OrderStatusReturnRequested, OrderStatusExchangeRequested},
}

// adminTransitions — переходы, доступные ролям admin/shopkeeper.
var adminTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPlaced:            {OrderStatusProcessing, OrderStatusCancelled},
	OrderStatusProcessing:        {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:           {OrderStatusOutForDelivery, OrderStatusDelivered, OrderStatusReturnInitiated},
	OrderStatusOutForDelivery:    {OrderStatusDelivered, OrderStatusFailedDelivery},
	OrderStatusDelivered:         {OrderStatusReturnInitiated, OrderStatusExchangeInitiated},
	OrderStatusFailedDelivery:    {OrderStatusShipped, OrderStatusReturnInitiated},
	OrderStatusReturnRequested:   {OrderStatusReturnApproved, OrderStatusReturnRejected},
	OrderStatusReturnApproved:    {OrderStatusReturnInitiated, OrderStatusReturnRejected},
	OrderStatusReturnInitiated:   {OrderStatusReturnInTransit, OrderStatusReturnCancelled},
	OrderStatusReturnInTransit:   {OrderStatusReturnDelivered, OrderStatusReturnFailed},
	OrderStatusReturnDelivered:   {OrderStatusRefundProcessed},
	OrderStatusExchangeRequested: {OrderStatusExchangeApproved, OrderStatusExchangeRejected},
	OrderStatusExchangeApproved:  {OrderStatusExchangeInitiated},
	OrderStatusExchangeInitiated: {OrderStatusExchangeInTransit},
	OrderStatusExchangeInTransit: {OrderStatusExchangeDelivered, OrderStatusExchangeFailed},
}

// AllowedNext возвращает множество статусов, в которые разрешён переход
// из from в рамках данного workflow. Для терминальных и отсутствующих в
// таблице статусов возвращается пустой срез.
func AllowedNext(from OrderStatus, wf Workflow) []OrderStatus {
	var table map[OrderStatus][]OrderStatus
	switch wf {
	case WorkflowCustomer:
		table = customerTransitions
	case WorkflowAdmin:
		table = adminTransitions
	default:
		return []OrderStatus{}
	}

	next, ok := table[from]
	if !ok {
		return []OrderStatus{}
	}
	// Копия, чтобы вызывающий не мог изменить таблицу.
	out := make([]OrderStatus, len(next))
	copy(out, next)
	return out
}

// CanTransition проверяет, разрешён ли переход from → to в данном workflow.
func CanTransition(from, to OrderStatus, wf Workflow) bool {
	for _, s := range AllowedNext(from, wf) {
		if s == to {
			return true
		}
	}
	return false
}
