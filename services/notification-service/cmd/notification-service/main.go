package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/md-rashed-zaman/slotconfirm/libs/config"
	"github.com/md-rashed-zaman/slotconfirm/libs/db"
	"github.com/md-rashed-zaman/slotconfirm/libs/httpx"
	"github.com/md-rashed-zaman/slotconfirm/libs/kafkax"
	"github.com/md-rashed-zaman/slotconfirm/libs/mail"
	otelx "github.com/md-rashed-zaman/slotconfirm/libs/otel"
	"github.com/md-rashed-zaman/slotconfirm/libs/runtime"
	"github.com/md-rashed-zaman/slotconfirm/services/notification-service/internal/consumer"
	"github.com/md-rashed-zaman/slotconfirm/services/notification-service/internal/delivery"
	"github.com/md-rashed-zaman/slotconfirm/services/notification-service/internal/inbox"
	"github.com/md-rashed-zaman/slotconfirm/services/notification-service/internal/metrics"
	"github.com/md-rashed-zaman/slotconfirm/services/notification-service/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	_ = config.LoadDotEnv()
	service := config.String("SERVICE_NAME", "notification-service")
	logger := runtime.NewLogger(service, config.String("LOG_LEVEL", "info"))
	if err := run(service, logger); err != nil {
		logger.Error("notification-service exited", "err", err)
		os.Exit(1)
	}
}

func run(service string, logger *slog.Logger) error {
	port, err := config.Port("PORT", "8085")
	if err != nil {
		return err
	}

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	dbURL, err := config.RequiredString("DATABASE_URL")
	if err != nil {
		return err
	}
	pool, err := db.Open(ctx, dbURL, db.Options{MaxConns: int32(config.Int("DB_MAX_CONNS", 5))})
	if err != nil {
		return err
	}
	defer pool.Close()

	provider := strings.ToLower(config.String("EMAIL_PROVIDER", "smtp"))
	sender, err := mail.New(ctx, mail.Config{
		Provider:       provider,
		SMTPHost:       config.String("SMTP_HOST", "mailpit"),
		SMTPPort:       config.String("SMTP_PORT", "1025"),
		SendGridAPIKey: config.String("SENDGRID_API_KEY", ""),
		FromEmail:      config.String("EMAIL_FROM", config.String("SMTP_FROM", "")),
		FromName:       config.String("EMAIL_FROM_NAME", ""),
		AWSRegion:      config.String("AWS_REGION", ""),
	}, logger)
	if err != nil {
		return err
	}

	deliveryMetrics := metrics.NewDeliveryMetrics(prometheus.DefaultRegisterer)
	handler := delivery.NewHandler(sender, storage.NewRepository(pool), deliveryMetrics, logger, delivery.Config{
		Provider:    provider,
		SendTimeout: config.Seconds("EMAIL_SEND_TIMEOUT_SECONDS", 10*time.Second),
	})

	brokers := config.String("KAFKA_BROKERS", "")
	eventConsumer := consumer.New(logger, inbox.NewRepository(pool), consumer.Config{
		Brokers: brokers,
		GroupID: config.String("KAFKA_GROUP_ID", "notification-service"),
		Topic:   config.String("KAFKA_CONSUME_TOPIC", "notification.email.requested.v1"),
	}, handler.Handle)
	go eventConsumer.Run(ctx)

	mux := runtime.NewBaseMux(prometheus.DefaultGatherer,
		runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)},
		runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers, false)},
	)
	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
	)
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           otelhttp.NewHandler(httpHandler, "notification"),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server error", "err", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
	return nil
}
