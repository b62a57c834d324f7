package erp

import (
	"context"
	"errors"
	"time"

	"github.com/QuangSon1901/ecount-integration-sub001/internal/logging"
	"github.com/QuangSon1901/ecount-integration-sub001/internal/metrics"
	"github.com/QuangSon1901/ecount-integration-sub001/internal/order"
	"github.com/QuangSon1901/ecount-integration-sub001/internal/runlog"
	"github.com/QuangSon1901/ecount-integration-sub001/internal/tracing"
)

// docnoBatchSize bounds one lookup_docno job. The bridge paginates the ERP
// grid 50 rows at a time, so larger batches gain nothing.
const docnoBatchSize = 50

// fetchWindow is how far back each sync pass looks for ERP orders.
const fetchWindow = 7 * 24 * time.Hour

// SyncOrderStore is the slice of the order store the sync producer uses.
type SyncOrderStore interface {
	FindByErpCode(ctx context.Context, erpOrderCode string) (*order.Order, error)
	SetErpStatus(ctx context.Context, id, erpStatus string) error
	ListDocNoMissing(ctx context.Context, limit int) ([]*order.Order, error)
}

// JobEnqueuer is the slice of the queue the producers use.
type JobEnqueuer interface {
	Enqueue(ctx context.Context, jobType string, payload any, delay time.Duration, maxAttempts int) (string, error)
}

// Syncer periodically pulls the ERP order list, refreshes local ERP status
// codes, and batches document-number lookups into jobs.
type Syncer struct {
	gateway     Gateway
	orders      SyncOrderStore
	jobs        JobEnqueuer
	runs        runlog.Recorder
	logger      *logging.Logger
	interval    time.Duration
	maxAttempts int
}

func NewSyncer(gateway Gateway, orders SyncOrderStore, jobs JobEnqueuer, runs runlog.Recorder, logger *logging.Logger, interval time.Duration, maxAttempts int) *Syncer {
	return &Syncer{
		gateway:     gateway,
		orders:      orders,
		jobs:        jobs,
		runs:        runs,
		logger:      logger,
		interval:    interval,
		maxAttempts: maxAttempts,
	}
}

// Run executes sync passes on the configured interval until ctx is done.
func (s *Syncer) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Plain().WithField("interval", s.interval.String()).Info("erp sync producer started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Plain().Info("erp sync producer stopped")
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}

// RunOnce performs one full sync pass and records the outcome.
func (s *Syncer) RunOnce(ctx context.Context) {
	ctx, span := tracing.StartSpan(ctx, "erp.sync")
	defer span.End()

	started := time.Now()
	scanned, changed, err := s.pass(ctx)
	run := runlog.Run{
		Producer:  "erp_sync",
		Outcome:   "ok",
		Scanned:   scanned,
		Changed:   changed,
		StartedAt: started,
		EndedAt:   time.Now(),
	}
	if err != nil {
		run.Outcome = "error"
		run.Detail = err.Error()
		tracing.SetSpanError(ctx, err)
		s.logger.WithContext(ctx).WithError(err).Error("erp sync pass failed")
	}
	metrics.RecordProducerRun("erp_sync", run.Outcome)
	if rerr := s.runs.Record(ctx, run); rerr != nil {
		s.logger.WithContext(ctx).WithError(rerr).Warn("failed to record producer run")
	}
}

func (s *Syncer) pass(ctx context.Context) (scanned, changed int, err error) {
	erpOrders, err := s.fetchWithRetry(ctx)
	if err != nil {
		return 0, 0, err
	}

	for _, eo := range erpOrders {
		scanned++
		local, ferr := s.orders.FindByErpCode(ctx, eo.OrderCode)
		if errors.Is(ferr, order.ErrNotFound) || (ferr == nil && local == nil) {
			continue
		}
		if ferr != nil {
			s.logger.WithContext(ctx).WithError(ferr).WithField("erp_order_code", eo.OrderCode).Warn("order lookup failed")
			continue
		}
		if local.ErpStatus == eo.Status {
			continue
		}
		if uerr := s.orders.SetErpStatus(ctx, local.ID, eo.Status); uerr != nil {
			s.logger.WithContext(ctx).WithError(uerr).WithOrder(local.ID).Warn("failed to update erp status")
			continue
		}
		changed++
	}

	batched, berr := s.enqueueDocNoLookups(ctx)
	if berr != nil {
		return scanned, changed, berr
	}
	changed += batched
	return scanned, changed, nil
}

// fetchWithRetry pulls the order list, refreshing the session once when the
// cached one is rejected. The retry lives here rather than in the job engine
// because a dead session fails every subsequent call identically.
func (s *Syncer) fetchWithRetry(ctx context.Context) ([]ErpOrder, error) {
	since := time.Now().Add(-fetchWindow)
	orders, err := s.gateway.FetchOrders(ctx, since)
	if !IsSessionExpired(err) {
		return orders, err
	}

	s.logger.WithContext(ctx).Info("erp session expired, refreshing")
	if rerr := s.gateway.RefreshSession(ctx); rerr != nil {
		return nil, rerr
	}
	return s.gateway.FetchOrders(ctx, since)
}

// enqueueDocNoLookups batches orders still missing a document number into
// lookup_docno jobs.
func (s *Syncer) enqueueDocNoLookups(ctx context.Context) (int, error) {
	missing, err := s.orders.ListDocNoMissing(ctx, docnoBatchSize*4)
	if err != nil {
		return 0, err
	}
	if len(missing) == 0 {
		return 0, nil
	}

	enqueued := 0
	for start := 0; start < len(missing); start += docnoBatchSize {
		end := start + docnoBatchSize
		if end > len(missing) {
			end = len(missing)
		}
		payload := LookupDocNoPayload{}
		for _, o := range missing[start:end] {
			payload.SlipNos = append(payload.SlipNos, o.ErpOrderCode)
			payload.OrderIDs = append(payload.OrderIDs, o.ID)
		}
		if _, err := s.jobs.Enqueue(ctx, JobLookupDocNo, payload, 0, s.maxAttempts); err != nil {
			return enqueued, err
		}
		enqueued++
	}
	return enqueued, nil
}
