package orderworker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	service "git.platform.alem.school/amibragim/order-events/internal/app/orderworker"
	"git.platform.alem.school/amibragim/order-events/internal/ports"
	"git.platform.alem.school/amibragim/order-events/internal/shared/config"
	"git.platform.alem.school/amibragim/order-events/internal/shared/logger"
	"git.platform.alem.school/amibragim/order-events/internal/shared/metrics"
	pg "git.platform.alem.school/amibragim/order-events/internal/shared/postgres"
	"git.platform.alem.school/amibragim/order-events/internal/shared/rabbitmq"
)

// Run wires the order worker and blocks until ctx is cancelled.
// A prefetch above zero overrides the configured value.
func Run(ctx context.Context, prefetch int) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if prefetch > 0 {
		cfg.Worker.Prefetch = prefetch
	}

	// set up a new logger for the worker with a static correlation id for startup logs
	log := logger.NewLogger("order-worker", cfg.Log.Level)
	defer log.Sync()
	startCtx := logger.WithCorrelationID(ctx, "startup-001")

	// metrics registry with runtime collectors and the pipeline counters
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	recorder, err := metrics.NewRecorder(reg)
	if err != nil {
		log.Error(startCtx, "metrics_init_failed", "Failed to register metrics", err)
		return err
	}

	// the Postgres order store is optional
	var store ports.OrderStore
	if cfg.Database.URL != "" {
		pool, err := pg.NewPool(startCtx, cfg.Database.URL, log)
		if err != nil {
			log.Error(startCtx, "db_connection_failed", "Failed to initialize Postgres pool", err)
			return err
		}
		defer pool.Close()

		if err := pg.EnsureSchema(startCtx, pool); err != nil {
			log.Error(startCtx, "db_schema_failed", "Failed to prepare database schema", err)
			return err
		}
		store = pg.NewOrdersRepo(pool)
	}

	// set up the delivery pipeline
	guard := service.NewIdempotencyGuard(cfg.Worker.IdempotencyTTL, cfg.Worker.IdempotencyCapacity)
	escalator := service.NewRetryEscalator(cfg.Worker.RetryCount, recorder, log)
	processor := service.NewProcessor(cfg.Worker.WorkDuration, store, log)
	handler := service.NewHandler(guard, escalator, processor, recorder, log)

	supervisor := rabbitmq.NewSupervisor(rabbitmq.SupervisorConfig{
		URL:            cfg.AMQPURL(),
		Prefetch:       cfg.Worker.Prefetch,
		ReconnectDelay: cfg.Worker.ReconnectDelay,
		ConsumerTag:    consumerTag(),
	}, handler.Handle, log)

	// expose metrics
	srv := newMetricsServer(ctx, cfg.Worker.MetricsAddr, reg, supervisor)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error(startCtx, "metrics_server_failed", "Metrics server stopped", err)
		}
	}()

	log.Info(startCtx, "service_started", "Order worker started", map[string]any{
		"prefetch":        cfg.Worker.Prefetch,
		"retry_count":     cfg.Worker.RetryCount,
		"reconnect_delay": cfg.Worker.ReconnectDelay.String(),
		"metrics_addr":    cfg.Worker.MetricsAddr,
		"store_enabled":   store != nil,
	})

	// blocks until ctx is cancelled; in-flight deliveries finish first
	supervisor.Run(ctx)

	shCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = srv.Shutdown(shCtx)

	log.Info(startCtx, "graceful_shutdown", "Order worker shutdown completed", nil)
	return nil
}

// newMetricsServer serves /metrics and a /health endpoint reporting the supervisor state.
func newMetricsServer(ctx context.Context, addr string, reg *prometheus.Registry, sup *rabbitmq.Supervisor) *http.Server {
	r := chi.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		state := sup.State()
		status := http.StatusOK
		if state != rabbitmq.StateConsuming {
			status = http.StatusServiceUnavailable
		}
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(status)
		_, _ = fmt.Fprintf(w, `{"status":%q}`, state.String())
	})

	return &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
}

func consumerTag() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "local"
	}
	return fmt.Sprintf("order-worker-%s-%d", host, os.Getpid())
}
