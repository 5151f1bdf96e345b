package kafka

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/vladislavdragonenkov/storefront-oms/internal/domain"
)

// OutboxTopicPublisher публикует outbox-сообщения в заданный Kafka topic.
type OutboxTopicPublisher struct {
	producer *Producer
	topic    string
}

// NewOutboxPublisher создаёт Kafka-паблишер для transactional outbox.
func NewOutboxPublisher(producer *Producer, topic string) domain.OutboxPublisher {
	if topic == "" {
		topic = TopicOrderEvents
	}
	return &OutboxTopicPublisher{
		producer: producer,
		topic:    topic,
	}
}

// Publish переводит outbox-сообщение в wire-формат OrderEvent и отправляет его.
func (p *OutboxTopicPublisher) Publish(event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka outbox publisher is not initialized")
	}

	wire, err := OrderEventFromOutbox(event)
	if err != nil {
		return err
	}

	key := event.AggregateID
	if key == "" {
		key = event.ID
	}

	return p.producer.PublishEvent(p.topic, key, wire)
}

// OrderEventFromOutbox собирает wire-событие из outbox-сообщения.
// Payload остаётся целиком в Metadata, ключевые поля поднимаются наверх.
func OrderEventFromOutbox(event domain.OutboxMessage) (*OrderEvent, error) {
	var payload map[string]interface{}
	if len(event.Payload) > 0 {
		if err := json.Unmarshal(event.Payload, &payload); err != nil {
			return nil, fmt.Errorf("failed to decode outbox payload %s: %w", event.ID, err)
		}
	}

	buyerID, _ := payload["buyer_id"].(string)
	status, _ := payload["status"].(string)

	eventType := wireEventType(event.EventType)
	if eventType == EventTypeOrderPlaced && status == "" {
		status = string(domain.OrderStatusPlaced)
	}

	return NewOrderEvent(eventType, event.AggregateID, buyerID, status, payload), nil
}

func wireEventType(eventType string) EventType {
	switch eventType {
	case "OrderPlaced":
		return EventTypeOrderPlaced
	case "OrderStatusChanged":
		return EventTypeOrderStatusChanged
	case "OrderCancelled":
		return EventTypeOrderCancelled
	case "OrderRefunded":
		return EventTypeOrderRefunded
	}
	return EventType(eventType)
}

var _ domain.OutboxPublisher = (*OutboxTopicPublisher)(nil)

// DLQEnvelopePublisher публикует outbox-сообщение в DLQ как есть,
// без перевода в wire-формат: диагностический payload должен дойти
// до reprocess-инструмента нетронутым.
type DLQEnvelopePublisher struct {
	producer *Producer
	topic    string
}

// NewDLQPublisher создаёт паблишер для Dead Letter Queue.
func NewDLQPublisher(producer *Producer, topic string) domain.OutboxPublisher {
	if topic == "" {
		topic = TopicDeadLetterQueue
	}
	return &DLQEnvelopePublisher{
		producer: producer,
		topic:    topic,
	}
}

func (p *DLQEnvelopePublisher) Publish(event domain.OutboxMessage) error {
	if p == nil || p.producer == nil {
		return fmt.Errorf("kafka dlq publisher is not initialized")
	}

	key := event.AggregateID
	if key == "" {
		key = event.ID
	}

	envelope := struct {
		ID            string          `json:"id"`
		AggregateType string          `json:"aggregate_type"`
		AggregateID   string          `json:"aggregate_id"`
		EventType     string          `json:"event_type"`
		Payload       json.RawMessage `json:"payload"`
		PublishedAt   time.Time       `json:"published_at"`
	}{
		ID:            event.ID,
		AggregateType: event.AggregateType,
		AggregateID:   event.AggregateID,
		EventType:     event.EventType,
		Payload:       json.RawMessage(event.Payload),
		PublishedAt:   time.Now().UTC(),
	}

	return p.producer.PublishEvent(p.topic, key, envelope)
}

var _ domain.OutboxPublisher = (*DLQEnvelopePublisher)(nil)
