package app

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/IBM/sarama"
	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/storefront-oms/internal/domain"
	"github.com/vladislavdragonenkov/storefront-oms/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/storefront-oms/internal/service/reconcile"
)

const paymentConsumerGroup = "storefront-oms-reconcile"

// initPaymentConsumer подписывает reconciler на платёжные события из Kafka.
// Это второй входной канал помимо HTTP webhook: маркеры идемпотентности
// делают двойную доставку одного события по обоим каналам безопасной.
func initPaymentConsumer(cfg Config, reconciler *reconcile.Reconciler, dlqProducer *kafka.Producer, logger *log.Entry) (*kafka.Consumer, error) {
	if cfg.KafkaBrokers == "" {
		return nil, nil
	}

	topic := cfg.PaymentTopic
	if topic == "" {
		topic = kafka.TopicPaymentEvents
	}

	handler := func(ctx context.Context, message *sarama.ConsumerMessage) error {
		event, err := kafka.ParsePaymentEvent(message)
		if err != nil {
			return err
		}
		if event.EventType != kafka.EventTypePaymentCaptured {
			return nil
		}

		_, err = reconciler.Reconcile(ctx, event.ToDomain())
		switch {
		case err == nil:
			return nil
		case errors.Is(err, domain.ErrInsufficientStock), errors.Is(err, domain.ErrInvalidEvent):
			// Повторная доставка такие события не исправит: подтверждаем offset.
			logger.WithError(err).WithField("provider_event_id", event.ProviderEventID).
				Warn("payment event not reconciled")
			return nil
		default:
			return err
		}
	}

	brokers := strings.Split(cfg.KafkaBrokers, ",")
	consumer, err := kafka.NewConsumerWithDLQ(brokers, paymentConsumerGroup, []string{topic}, handler, dlqProducer, 3)
	if err != nil {
		return nil, fmt.Errorf("create payment consumer: %w", err)
	}
	return consumer, nil
}
