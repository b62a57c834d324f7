package main

import (
	"context"
	"net/http"
	"os/signal"
	"sync"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/QuangSon1901/ecount-integration-sub001/internal/alert"
	"github.com/QuangSon1901/ecount-integration-sub001/internal/carrier"
	"github.com/QuangSon1901/ecount-integration-sub001/internal/config"
	"github.com/QuangSon1901/ecount-integration-sub001/internal/db"
	"github.com/QuangSon1901/ecount-integration-sub001/internal/erp"
	"github.com/QuangSon1901/ecount-integration-sub001/internal/health"
	"github.com/QuangSon1901/ecount-integration-sub001/internal/logging"
	"github.com/QuangSon1901/ecount-integration-sub001/internal/metrics"
	"github.com/QuangSon1901/ecount-integration-sub001/internal/order"
	"github.com/QuangSon1901/ecount-integration-sub001/internal/queue"
	"github.com/QuangSon1901/ecount-integration-sub001/internal/recon"
	"github.com/QuangSon1901/ecount-integration-sub001/internal/runlog"
	"github.com/QuangSon1901/ecount-integration-sub001/internal/tracing"
	"github.com/QuangSon1901/ecount-integration-sub001/internal/webhook"
)

const serviceName = "ecount-worker"

func main() {
	cfg := config.FromEnv()
	logger := logging.New(serviceName)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	shutdownTracing, err := tracing.InitTracing(ctx, serviceName)
	if err != nil {
		logger.Plain().WithError(err).Fatal("failed to initialize tracing")
	}
	defer shutdownTracing()

	pool, err := db.Connect(ctx, cfg.DSN())
	if err != nil {
		logger.Plain().WithError(err).Fatal("db connect failed")
	}
	defer pool.Close()

	// Prom metrics + health
	promReg := prometheus.NewRegistry()
	metrics.MustRegister(promReg)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", health.HTTPHandler(serviceName, pool))
	mux.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
	httpSrv := &http.Server{Addr: cfg.HTTPPort, Handler: mux}
	go func() {
		logger.Plain().WithField("addr", httpSrv.Addr).Info("worker HTTP server starting")
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Plain().WithError(err).Fatal("worker HTTP server failed")
		}
	}()

	// Stores
	jobs := queue.NewPgStore(pool)
	orders := order.NewPgStore(pool)
	webhooks := webhook.NewPgStore(pool)
	webhookLogs := webhook.NewPgLogStore(pool)
	sessions := erp.NewPgSessionStore(pool)
	runs := runlog.NewPgRecorder(pool)

	// Outbound integrations
	carriers := carrier.NewRegistry()
	for _, code := range cfg.Carrier.Codes {
		carriers.Register(code, carrier.NewHTTPClient(cfg.Carrier.APIBase, code, cfg.Carrier.Timeout))
	}
	gateway := erp.NewBridgeGateway(cfg.Erp.BridgeURL, cfg.Erp.Timeout, sessions, logger)
	alerts := alert.NewFromConfig(cfg.Alert.URL, cfg.Alert.Timeout, logger)

	// Job handlers
	registry := queue.NewRegistry()
	deliverer := webhook.NewDeliverer(webhooks, webhookLogs, cfg.Webhook, logger)
	if err := deliverer.Register(registry); err != nil {
		logger.Plain().WithError(err).Fatal("failed to register webhook handler")
	}
	erpHandlers := erp.NewHandlers(gateway, orders, logger)
	if err := erpHandlers.RegisterAll(registry); err != nil {
		logger.Plain().WithError(err).Fatal("failed to register erp handlers")
	}

	backoff := queue.ScheduleBackoff{
		Schedule:  cfg.Queue.BackoffSchedule,
		JitterPct: cfg.Queue.JitterPercent,
	}
	onExhausted := func(ctx context.Context, job *queue.Job, jobErr error) {
		logger.WithContext(ctx).
			WithJob(job.ID, job.Type).
			WithField("reason", queue.ClassifyReason(jobErr)).
			WithError(jobErr).
			Error("job exhausted all attempts")
	}

	// Worker pool: webhook deliveries fan out, ERP jobs run single-file
	// against the shared browser session.
	workerPool := queue.NewPool(jobs, cfg.Queue.SweepInterval, cfg.Queue.StuckTimeout)
	workerCfgs := []queue.WorkerConfig{
		{
			Type:          webhook.JobDelivery,
			Interval:      cfg.Queue.WebhookInterval,
			Concurrency:   cfg.Queue.WebhookConcurrency,
			Backoff:       backoff,
			OnMaxAttempts: onExhausted,
		},
		{Type: erp.JobUpdateTracking, Interval: cfg.Queue.ErpInterval, Concurrency: cfg.Queue.ErpConcurrency, Backoff: backoff, OnMaxAttempts: onExhausted},
		{Type: erp.JobUpdateStatus, Interval: cfg.Queue.ErpInterval, Concurrency: cfg.Queue.ErpConcurrency, Backoff: backoff, OnMaxAttempts: onExhausted},
		{Type: erp.JobLookupDocNo, Interval: cfg.Queue.ErpInterval, Concurrency: cfg.Queue.ErpConcurrency, Backoff: backoff, OnMaxAttempts: onExhausted},
	}
	for _, wc := range workerCfgs {
		if err := workerPool.AddWorker(registry, wc); err != nil {
			logger.Plain().WithError(err).Fatal("failed to add worker")
		}
	}

	// Producers
	dispatcher := webhook.NewDispatcher(webhooks, jobs, cfg.Queue.MaxAttempts, logger)
	reconciler := recon.NewReconciler(orders, carriers, jobs, dispatcher, alerts, runs,
		logger, cfg.Producers.ReconcileInterval, cfg.Queue.MaxAttempts)
	syncer := erp.NewSyncer(gateway, orders, jobs, runs,
		logger, cfg.Producers.ErpSyncInterval, cfg.Queue.MaxAttempts)

	var wg sync.WaitGroup
	wg.Add(3)
	go func() {
		defer wg.Done()
		workerPool.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		reconciler.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		syncer.Run(ctx)
	}()

	logger.Plain().Info("worker service started")
	<-ctx.Done()

	logger.Plain().Info("shutting down worker service")
	wg.Wait()
	_ = httpSrv.Shutdown(context.Background())
	logger.Plain().Info("worker service stopped")
}
