package orderapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	service "git.platform.alem.school/amibragim/order-events/internal/app/orderapi"
	"git.platform.alem.school/amibragim/order-events/internal/ports"
	"git.platform.alem.school/amibragim/order-events/internal/shared/config"
	"git.platform.alem.school/amibragim/order-events/internal/shared/logger"
	pg "git.platform.alem.school/amibragim/order-events/internal/shared/postgres"
	"git.platform.alem.school/amibragim/order-events/internal/shared/rabbitmq"
)

// Run wires the order API and blocks until ctx is cancelled.
// It returns the first terminal error (server or startup failure).
// A port above zero overrides the configured value.
func Run(ctx context.Context, port int, maxConcurrent int) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if port > 0 {
		cfg.API.Port = port
	}

	// set up a new logger for the order API with a static correlation id for startup logs
	log := logger.NewLogger("order-api", cfg.Log.Level)
	defer log.Sync()
	startCtx := logger.WithCorrelationID(ctx, "startup-001")

	rmq, err := rabbitmq.Connect(startCtx, cfg.AMQPURL(), nil, log)
	if err != nil {
		log.Error(startCtx, "rabbitmq_connection_failed", "Failed to connect to RabbitMQ", err)
		return err
	}
	defer rmq.Close()

	// the processed-order lookup is only available with a database
	var store ports.OrderStore
	if cfg.Database.URL != "" {
		pool, err := pg.NewPool(startCtx, cfg.Database.URL, log)
		if err != nil {
			log.Error(startCtx, "db_connection_failed", "Failed to initialize Postgres pool", err)
			return err
		}
		defer pool.Close()
		store = pg.NewOrdersRepo(pool)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	// set up the service and its HTTP surface
	svc := service.NewService(rmq, log)
	h := service.NewHTTPHandler(svc, store, reg, log)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.API.Port),
		Handler:           withConcurrencyLimit(maxConcurrent, h.Routes()),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	log.Info(startCtx, "service_started",
		fmt.Sprintf("Order API started on port %d", cfg.API.Port),
		map[string]any{"port": cfg.API.Port, "max_concurrent": maxConcurrent, "store_enabled": store != nil},
	)

	errCh := make(chan error, 1)
	go func() {
		// http.ErrServerClosed is returned on Shutdown; treat that as clean exit.
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		// drain keep-alives and in-flight requests
		shCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shCtx)
		log.Info(startCtx, "graceful_shutdown", "Order API shutdown completed", nil)
		return nil
	case err := <-errCh:
		if err != nil {
			log.Error(startCtx, "http_server_failed", "HTTP server stopped", err)
		}
		return err
	}
}

// withConcurrencyLimit wraps an http.Handler with a semaphore-based limiter.
// It blocks until capacity is available.
func withConcurrencyLimit(n int, next http.Handler) http.Handler {
	if n <= 0 {
		return next
	}
	sem := make(chan struct{}, n)
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sem <- struct{}{}        // acquire
		defer func() { <-sem }() // release
		next.ServeHTTP(w, r)
	})
}
