package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	healthcheck "github.com/vladislavdragonenkov/storefront-oms/internal/health"
	"github.com/vladislavdragonenkov/storefront-oms/internal/messaging/kafka"
	"github.com/vladislavdragonenkov/storefront-oms/internal/metrics"
	"github.com/vladislavdragonenkov/storefront-oms/internal/service/httpapi"
	"github.com/vladislavdragonenkov/storefront-oms/internal/service/outbox"
	"github.com/vladislavdragonenkov/storefront-oms/internal/service/reconcile"
	"github.com/vladislavdragonenkov/storefront-oms/internal/service/transition"
	"github.com/vladislavdragonenkov/storefront-oms/internal/version"
)

// Run собирает зависимости и запускает сервис до отмены ctx.
func Run(ctx context.Context, cfg Config) error {
	logger := log.WithField("component", "app")

	store, closeStore, pingFn, err := initStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	kafkaProducer, _ := initKafkaProducer(cfg.KafkaBrokers, logger)
	defer closeKafka(kafkaProducer, logger)

	orderMetrics := metrics.NewOrderMetrics()

	authority := transition.NewAuthority(
		store,
		logger.WithField("layer", "transition"),
		transition.WithMetrics(orderMetrics),
	)
	reconciler := reconcile.NewReconciler(
		store,
		logger.WithField("layer", "reconcile"),
		reconcile.WithMetrics(orderMetrics),
	)

	handlers := httpapi.NewHandlers(authority, reconciler, store, logger.WithField("layer", "http"))
	router := httpapi.NewRouter(handlers)

	// Outbox worker публикует события жизненного цикла в Kafka.
	// Без брокера события копятся в outbox до следующего запуска с Kafka.
	if kafkaProducer != nil {
		publisher := kafka.NewOutboxPublisher(kafkaProducer, cfg.OrderTopic)
		dlqPublisher := kafka.NewDLQPublisher(kafkaProducer, cfg.DLQTopic)

		worker := outbox.NewWorker(
			store.Repos().Outbox,
			publisher,
			outbox.WithLogger(logger.WithField("layer", "outbox")),
			outbox.WithDLQPublisher(dlqPublisher),
			outbox.WithPollInterval(cfg.OutboxPollInterval),
			outbox.WithBatchSize(cfg.OutboxBatchSize),
		)
		go worker.Run(ctx)

		// Платёжные события принимаются и из Kafka, не только через webhook.
		paymentConsumer, err := initPaymentConsumer(cfg, reconciler, kafkaProducer, logger.WithField("layer", "payment-consumer"))
		if err != nil {
			logger.WithError(err).Warn("payment consumer disabled")
		} else if paymentConsumer != nil {
			if err := paymentConsumer.Start(ctx); err != nil {
				logger.WithError(err).Warn("payment consumer failed to start")
			} else {
				defer func() {
					if err := paymentConsumer.Stop(); err != nil {
						logger.WithError(err).Warn("payment consumer stopped with error")
					}
				}()
			}
		}
	}

	// HTTP health checks
	healthHandler := healthcheck.NewHandler(version.GetVersion())
	if pingFn != nil {
		healthHandler.RegisterChecker("storage", healthcheck.NewSimpleChecker("storage", func() error {
			checkCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			return pingFn(checkCtx)
		}))
	}

	metricsSrv := startMetricsServer(ctx, cfg.MetricsAddr, logger, healthHandler)

	apiSrv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Infof("HTTP API слушает %s", cfg.HTTPAddr)
		errCh <- apiSrv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("получен сигнал остановки, останавливаем HTTP сервер")
		shutdownHTTP(apiSrv, logger)
		shutdownHTTP(metricsSrv, logger)
		return ctx.Err()
	case err := <-errCh:
		shutdownHTTP(metricsSrv, logger)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// startMetricsServer запускает HTTP-обработчик /metrics для Prometheus.
func startMetricsServer(ctx context.Context, addr string, logger *log.Entry, healthHandler *healthcheck.Handler) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.Handle("/healthz", healthHandler)
	mux.HandleFunc("/readyz", healthHandler.ReadinessHandler)
	mux.HandleFunc("/livez", healthcheck.LivenessHandler)

	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Infof("метрики доступны по адресу %s/metrics", addr)
		logger.Infof("health checks: %s/healthz, %s/readyz, %s/livez", addr, addr, addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.WithError(err).Warn("metrics server failed")
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownHTTP(srv, logger)
	}()

	return srv
}

// shutdownHTTP аккуратно останавливает HTTP-сервер.
func shutdownHTTP(srv *http.Server, logger *log.Entry) {
	if srv == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.WithError(err).Warn("http shutdown with error")
	}
}
