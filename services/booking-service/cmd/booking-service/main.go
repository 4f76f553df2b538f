package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/md-rashed-zaman/slotconfirm/libs/config"
	"github.com/md-rashed-zaman/slotconfirm/libs/db"
	"github.com/md-rashed-zaman/slotconfirm/libs/httpx"
	"github.com/md-rashed-zaman/slotconfirm/libs/kafkax"
	otelx "github.com/md-rashed-zaman/slotconfirm/libs/otel"
	"github.com/md-rashed-zaman/slotconfirm/libs/runtime"
	"github.com/md-rashed-zaman/slotconfirm/services/booking-service/internal/booking"
	"github.com/md-rashed-zaman/slotconfirm/services/booking-service/internal/handlers"
	"github.com/md-rashed-zaman/slotconfirm/services/booking-service/internal/metrics"
	"github.com/md-rashed-zaman/slotconfirm/services/booking-service/internal/outbox"
	"github.com/md-rashed-zaman/slotconfirm/services/booking-service/internal/tokens"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func main() {
	_ = config.LoadDotEnv()
	service := config.String("SERVICE_NAME", "booking-service")
	logger := runtime.NewLogger(service, config.String("LOG_LEVEL", "info"))
	if err := run(service, logger); err != nil {
		logger.Error("booking-service exited", "err", err)
		os.Exit(1)
	}
}

func run(service string, logger *slog.Logger) error {
	port, err := config.Port("PORT", "3000")
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

	bookingMetrics := metrics.NewBookingMetrics(prometheus.DefaultRegisterer)

	issuer, err := tokens.NewIssuer([]byte(config.String("TOKEN_HMAC_KEY", "")))
	if err != nil {
		return err
	}

	st, err := openStores(ctx, logger)
	if err != nil {
		return err
	}
	defer st.close()

	brokers := config.String("KAFKA_BROKERS", "")
	notifier, err := buildNotifier(ctx, logger, st, brokers)
	if err != nil {
		return err
	}

	var events booking.EventRecorder
	checks := []runtime.ReadyCheck{}
	if st.pool != nil {
		outboxRepo := outbox.NewRepository()
		events = outbox.NewRecorder(outboxRepo, st.pool, "appointment")

		publisher := outbox.NewPublisher(st.pool, outboxRepo, logger, outbox.PublisherConfig{
			Brokers:   brokers,
			PollEvery: config.Seconds("OUTBOX_POLL_SECONDS", 2*time.Second),
			BatchSize: config.Int("OUTBOX_BATCH_SIZE", 50),
			Observer:  bookingMetrics,
		})
		go publisher.Run(ctx)

		checks = append(checks,
			runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(st.pool)},
			runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(brokers, true)},
		)
	}

	svc := booking.NewService(booking.Deps{
		Slots:        st.slots,
		Appointments: st.appointments,
		Tokens:       issuer,
		Notifier:     notifier,
		Events:       events,
		Observer:     bookingMetrics,
		Logger:       logger,
	}, booking.Config{
		ProviderEmail: config.String("PROVIDER_EMAIL", ""),
		NotifyTimeout: config.Seconds("NOTIFY_TIMEOUT_SECONDS", 10*time.Second),
	})
	if config.String("PROVIDER_EMAIL", "") == "" {
		logger.Warn("PROVIDER_EMAIL not set; provider emails will be skipped")
	}

	rl, closeLimiter, err := buildLimiter(ctx, logger)
	if err != nil {
		return err
	}
	defer closeLimiter()
	if rc := rl.ready; rc != nil {
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: rc})
	}

	mux := runtime.NewBaseMux(prometheus.DefaultGatherer, checks...)
	bookingHandler := handlers.NewBookingHandler(svc, logger, config.String("BASE_URL", ""))
	bookingHandler.Register(mux,
		httpx.RateLimit(rl.Limiter, logger, config.Bool("RATE_LIMIT_FAIL_OPEN", false)),
		config.String("ADMIN_TOKEN", ""),
	)

	handler := httpx.Chain(mux,
		httpx.WithRecover(logger),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins: config.List("CORS_ALLOWED_ORIGINS", ""),
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Content-Type", "Authorization", httpx.RequestIDHeader},
			MaxAge:         10 * time.Minute,
		}),
		httpx.WithBodyLimit(int64(config.Int("REQUEST_BODY_LIMIT_BYTES", 64<<10))),
		httpx.WithTimeout(config.Seconds("REQUEST_TIMEOUT_SECONDS", 15*time.Second)),
	)
	handler = otelhttp.NewHandler(handler, "booking")
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           handler,
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
