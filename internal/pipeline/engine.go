package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/starlift/starlift/internal/dimensions"
	"github.com/starlift/starlift/internal/facts"
	"github.com/starlift/starlift/internal/keycache"
	"github.com/starlift/starlift/internal/quality"
	"github.com/starlift/starlift/internal/retry"
	"github.com/starlift/starlift/internal/source"
	"github.com/starlift/starlift/internal/validate"
	"github.com/starlift/starlift/pkg/config"
	"github.com/starlift/starlift/pkg/enums"
	apperrors "github.com/starlift/starlift/pkg/errors"
	"github.com/starlift/starlift/pkg/logger"
	"github.com/starlift/starlift/pkg/metrics"
	"github.com/starlift/starlift/pkg/redis"
)

// Engine drives one batch through the load stages in order: extract counts,
// validate, load dimensions, ensure the calendar, load facts, run the
// quality gate, and persist the run report. Each stage is a barrier; the
// next stage starts only when every worker of the previous one has finished.
type Engine struct {
	cfg     *config.Config
	conn    *gorm.DB
	store   *redis.Client
	logg    *logger.Logger
	metrics *metrics.PipelineMetrics

	validator *validate.Validator
	retries   *retry.Controller
	tolerance decimal.Decimal

	rangeStart time.Time
	rangeEnd   time.Time
}

// New builds an engine. store may be nil; the engine then runs without the
// Redis mirror, run locks, or persisted reports.
func New(cfg *config.Config, conn *gorm.DB, store *redis.Client, logg *logger.Logger, m *metrics.PipelineMetrics) (*Engine, error) {
	tolerance, err := decimal.NewFromString(cfg.Pipeline.PriceTolerance)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeConfiguration, err, "invalid price tolerance")
	}
	rangeStart, err := time.Parse("2006-01-02", cfg.Pipeline.DateRangeStart)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeConfiguration, err, "invalid date range start")
	}
	rangeEnd, err := time.Parse("2006-01-02", cfg.Pipeline.DateRangeEnd)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeConfiguration, err, "invalid date range end")
	}
	return &Engine{
		cfg:        cfg,
		conn:       conn,
		store:      store,
		logg:       logg,
		metrics:    m,
		validator:  validate.New(tolerance),
		retries:    retry.NewController(cfg.Pipeline.MaxRetryAttempts, cfg.Pipeline.BackoffBase, cfg.Pipeline.BackoffCap, logg, m),
		tolerance:  tolerance,
		rangeStart: rangeStart,
		rangeEnd:   rangeEnd,
	}, nil
}

// Run loads one batch and always returns a report, even on failure. The
// returned error is non-nil only when the run aborted; record-level trouble
// surfaces through the report status instead.
func (e *Engine) Run(ctx context.Context, batch *source.Batch) (*Report, error) {
	runID := uuid.NewString()
	report := newReport(runID, batch.ID)
	ctx = e.logg.WithRunID(ctx, runID)
	e.logg.Info(ctx, "run started for batch "+batch.ID)

	unlock, err := e.acquireRunLock(ctx, batch.ID, runID)
	if err != nil {
		report.Status = enums.RunStatusFailed
		report.Error = err.Error()
		return report, err
	}

	cache := keycache.New(runID, e.store, e.cfg.Pipeline.CacheTTL, e.logg)
	cleanupCtx := context.WithoutCancel(ctx)
	defer func() {
		if err := cache.Close(cleanupCtx); err != nil {
			e.logg.Warn(ctx, "key cache cleanup failed: "+err.Error())
		}
		unlock()
	}()

	runErr := e.runStages(ctx, batch, report, cache)
	report.FinishedAt = time.Now().UTC()

	if runErr != nil {
		report.Status = enums.RunStatusFailed
		report.Error = runErr.Error()
		if err := e.persistReport(cleanupCtx, report); err != nil {
			e.logg.Warn(ctx, "persisting failed-run report: "+err.Error())
		}
		e.logg.Error(ctx, "run failed", runErr)
		return report, runErr
	}

	e.logg.Info(ctx, fmt.Sprintf("run finished with status %s", report.Status))
	return report, nil
}

func (e *Engine) runStages(ctx context.Context, batch *source.Batch, report *Report, cache *keycache.Cache) error {
	var result validate.Result

	if err := e.stage(ctx, report, enums.StageExtracted, func(ctx context.Context) error {
		total := 0
		for entity := range report.Entities {
			count := batch.Extracted(entity)
			report.entity(entity).Extracted = count
			total += count
		}
		e.logg.Info(ctx, fmt.Sprintf("extracted %d records", total))
		return nil
	}); err != nil {
		return err
	}

	if err := e.stage(ctx, report, enums.StageValidated, func(ctx context.Context) error {
		result = e.validator.Batch(batch)
		for entity, counts := range report.Entities {
			counts.Accepted = result.Accepted(entity)
			counts.Rejected = result.Rejected(entity)
			e.metrics.IncRecords(entity.String(), "accepted", counts.Accepted)
			e.metrics.IncRecords(entity.String(), "rejected", counts.Rejected)
		}
		report.Rejections = result.Rejections
		for range result.Rejections {
			report.countError(string(apperrors.CodeValidation))
		}
		e.logg.Info(ctx, fmt.Sprintf("validation rejected %d records", len(result.Rejections)))
		return nil
	}); err != nil {
		return err
	}

	dims := dimensions.NewRepository(e.conn)
	dimLoader := dimensions.NewLoader(dims, cache)

	if err := e.stage(ctx, report, enums.StageDimensionsLoaded, func(ctx context.Context) error {
		return e.loadDimensions(ctx, report, dimLoader, result)
	}); err != nil {
		return err
	}

	dates := dimensions.NewDateBuilder(e.conn)
	if err := e.stage(ctx, report, enums.StageDatesEnsured, func(ctx context.Context) error {
		return e.ensureDates(ctx, report, dates, result)
	}); err != nil {
		return err
	}

	factLoader := facts.NewLoader(facts.NewRepository(e.conn), dims, dates, cache, e.tolerance)
	if err := e.stage(ctx, report, enums.StageFactsLoaded, func(ctx context.Context) error {
		return e.loadFacts(ctx, report, factLoader, result)
	}); err != nil {
		return err
	}

	gate := quality.NewGate(e.conn, e.cfg.Quality, e.metrics)
	if err := e.stage(ctx, report, enums.StageQualityChecked, func(ctx context.Context) error {
		summary, err := gate.Run(ctx)
		if err != nil {
			return err
		}
		report.Quality = &summary
		switch summary.Worst() {
		case enums.SeverityError:
			report.Status = enums.RunStatusFailed
		case enums.SeverityWarning:
			if report.Status == enums.RunStatusClean {
				report.Status = enums.RunStatusDegraded
			}
		}
		return nil
	}); err != nil {
		return err
	}

	return e.stage(ctx, report, enums.StageReported, func(ctx context.Context) error {
		report.Stage = enums.StageReported
		if report.Status == enums.RunStatusClean && report.Degraded() {
			report.Status = enums.RunStatusDegraded
		}
		return e.persistReport(ctx, report)
	})
}

// stage runs fn with stage-scoped logging and timing, checking for
// cancellation at the barrier.
func (e *Engine) stage(ctx context.Context, report *Report, stage enums.Stage, fn func(context.Context) error) error {
	if err := ctx.Err(); err != nil {
		return apperrors.Wrap(apperrors.CodeTransient, err, "run interrupted before "+stage.String())
	}
	sctx := e.logg.WithStage(ctx, stage.String())
	start := time.Now()
	err := fn(sctx)
	e.metrics.ObserveStageDuration(stage.String(), time.Since(start))
	if err != nil {
		return err
	}
	report.Stage = stage
	e.logg.Info(sctx, "stage complete")
	return nil
}

func (e *Engine) loadDimensions(ctx context.Context, report *Report, loader *dimensions.Loader, result validate.Result) error {
	if _, err := e.retries.Do(ctx, "warm_key_cache", func(ctx context.Context) error {
		return loader.Warm(ctx)
	}); err != nil {
		return err
	}

	var mu sync.Mutex
	transientFailures := 0

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(e.cfg.Pipeline.Workers)

	for _, customer := range result.Customers {
		customer := customer
		group.Go(func() error {
			outcome, err := e.retries.Do(gctx, "upsert_customer", func(ctx context.Context) error {
				_, err := loader.UpsertCustomer(ctx, customer)
				return err
			})
			return e.recordDimensionOutcome(gctx, report, enums.EntityTypeCustomer, outcome, err, &mu, &transientFailures)
		})
	}
	for _, product := range result.Products {
		product := product
		group.Go(func() error {
			outcome, err := e.retries.Do(gctx, "upsert_product", func(ctx context.Context) error {
				_, err := loader.UpsertProduct(ctx, product)
				return err
			})
			return e.recordDimensionOutcome(gctx, report, enums.EntityTypeProduct, outcome, err, &mu, &transientFailures)
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	attempted := len(result.Customers) + len(result.Products)
	if e.exceedsFatalRatio(transientFailures, attempted) {
		return apperrors.New(apperrors.CodePermanent,
			fmt.Sprintf("%d of %d dimension writes failed, aborting run", transientFailures, attempted))
	}
	return nil
}

// recordDimensionOutcome books one upsert result. Exhausted transient
// failures are counted and tolerated up to the fatal ratio; permanent
// failures abort the stage.
func (e *Engine) recordDimensionOutcome(ctx context.Context, report *Report, entity enums.EntityType, outcome retry.Outcome, err error, mu *sync.Mutex, transientFailures *int) error {
	mu.Lock()
	defer mu.Unlock()
	counts := report.entity(entity)

	switch outcome {
	case retry.OutcomeSucceeded:
		counts.Loaded++
		e.metrics.IncRecords(entity.String(), "loaded", 1)
		return nil
	case retry.OutcomeFailedTransient:
		counts.Failed++
		*transientFailures++
		report.countError(string(apperrors.CodeTransient))
		e.metrics.IncRecords(entity.String(), "failed", 1)
		e.logg.Error(ctx, "dimension write exhausted retries", err)
		return nil
	default:
		counts.Failed++
		report.countError(string(apperrors.CodePermanent))
		e.metrics.IncRecords(entity.String(), "failed", 1)
		return err
	}
}

// ensureDates materializes the calendar over the union of the configured
// horizon and every date the batch references.
func (e *Engine) ensureDates(ctx context.Context, report *Report, builder *dimensions.DateBuilder, result validate.Result) error {
	start, end := e.rangeStart, e.rangeEnd
	for _, line := range result.Orders {
		start, end = expandRange(start, end, line.OrderDate, line.ShipDate, line.DeliveryDate)
	}
	for _, payment := range result.Payments {
		start, end = expandRange(start, end, payment.PaymentDate)
	}

	_, err := e.retries.Do(ctx, "ensure_dates", func(ctx context.Context) error {
		inserted, err := builder.EnsureRange(ctx, start, end)
		if err != nil {
			return err
		}
		report.DatesEnsured = inserted
		return nil
	})
	return err
}

func (e *Engine) loadFacts(ctx context.Context, report *Report, loader *facts.Loader, result validate.Result) error {
	if len(result.Orders) == 0 {
		return nil
	}
	if _, err := e.retries.Do(ctx, "prepare_facts", func(ctx context.Context) error {
		return loader.Prepare(ctx, result.Orders, result.Payments)
	}); err != nil {
		return err
	}

	paymentsByOrder := make(map[string]bool, len(result.Payments))
	for _, payment := range result.Payments {
		paymentsByOrder[payment.OrderID] = true
	}

	var mu sync.Mutex
	transientFailures := 0

	group, gctx := errgroup.WithContext(ctx)
	group.SetLimit(e.cfg.Pipeline.Workers)

	for _, line := range result.Orders {
		line := line
		group.Go(func() error {
			var lineOutcome facts.Outcome
			outcome, err := e.retries.Do(gctx, "load_fact", func(ctx context.Context) error {
				loaded, err := loader.Load(ctx, line)
				if err != nil {
					return err
				}
				lineOutcome = loaded
				return nil
			})

			mu.Lock()
			defer mu.Unlock()
			counts := report.entity(enums.EntityTypeOrder)

			if err == nil {
				switch lineOutcome {
				case facts.OutcomeDeduplicated:
					report.Deduplicated++
					e.metrics.IncRecords(enums.EntityTypeOrder.String(), "deduplicated", 1)
				default:
					counts.Loaded++
					e.metrics.IncRecords(enums.EntityTypeOrder.String(), "loaded", 1)
					if paymentsByOrder[line.OrderID] {
						report.entity(enums.EntityTypePayment).Loaded++
					}
				}
				return nil
			}

			if apperrors.IsRecordLevel(err) {
				typed := apperrors.As(err)
				reason := enums.RejectReasonUnresolvedReference
				if typed.Code() == apperrors.CodeValidation {
					reason = enums.RejectReasonPriceMismatch
				}
				counts.Rejected++
				report.countError(string(typed.Code()))
				report.Rejections = append(report.Rejections, validate.Rejection{
					Entity:     enums.EntityTypeOrder,
					NaturalKey: line.OrderID,
					Reason:     reason,
					Detail:     typed.Message(),
				})
				e.metrics.IncRecords(enums.EntityTypeOrder.String(), "rejected", 1)
				return nil
			}
			if outcome == retry.OutcomeFailedTransient {
				counts.Failed++
				transientFailures++
				report.countError(string(apperrors.CodeTransient))
				e.metrics.IncRecords(enums.EntityTypeOrder.String(), "failed", 1)
				e.logg.Error(gctx, "fact load exhausted retries", err)
				return nil
			}
			counts.Failed++
			report.countError(string(apperrors.CodePermanent))
			e.metrics.IncRecords(enums.EntityTypeOrder.String(), "failed", 1)
			return err
		})
	}
	if err := group.Wait(); err != nil {
		return err
	}

	if e.exceedsFatalRatio(transientFailures, len(result.Orders)) {
		return apperrors.New(apperrors.CodePermanent,
			fmt.Sprintf("%d of %d fact loads failed, aborting run", transientFailures, len(result.Orders)))
	}
	return nil
}

// persistReport writes the report and quality findings to Redis. A missing
// or broken store never fails the run.
func (e *Engine) persistReport(ctx context.Context, report *Report) error {
	if e.store == nil {
		return nil
	}
	var errs error

	payload, err := json.Marshal(report)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeInternal, err, "encoding run report")
	}
	if err := e.store.Set(ctx, e.store.ReportKey(report.RunID), payload, e.cfg.Pipeline.ReportTTL); err != nil {
		errs = multierr.Append(errs, err)
	}

	if report.Quality != nil {
		findings, err := json.Marshal(report.Quality)
		if err == nil {
			if err := e.store.Set(ctx, e.store.QualityKey(report.RunID), findings, e.cfg.Pipeline.ReportTTL); err != nil {
				errs = multierr.Append(errs, err)
			}
		}
	}

	if errs != nil {
		e.logg.Warn(ctx, "run report not persisted: "+errs.Error())
	}
	return nil
}

// acquireRunLock takes the per-batch lock so concurrent runs of the same
// batch cannot interleave. Without Redis the lock is skipped.
func (e *Engine) acquireRunLock(ctx context.Context, batchID, runID string) (func(), error) {
	if e.store == nil {
		return func() {}, nil
	}
	key := e.store.RunLockKey(batchID)
	acquired, err := e.store.SetNX(ctx, key, runID, e.cfg.Pipeline.ReportTTL)
	if err != nil {
		e.logg.Warn(ctx, "run lock unavailable, continuing without it: "+err.Error())
		return func() {}, nil
	}
	if !acquired {
		return nil, apperrors.New(apperrors.CodeConflict, "batch "+batchID+" is already being loaded")
	}
	release := func() {
		if err := e.store.Del(context.WithoutCancel(ctx), key); err != nil {
			e.logg.Warn(ctx, "releasing run lock: "+err.Error())
		}
	}
	return release, nil
}

func (e *Engine) exceedsFatalRatio(failed, attempted int) bool {
	if failed == 0 || attempted == 0 {
		return false
	}
	return float64(failed)/float64(attempted) > e.cfg.Pipeline.FatalFailureRatio
}

func expandRange(start, end time.Time, dates ...time.Time) (time.Time, time.Time) {
	for _, date := range dates {
		if date.IsZero() {
			continue
		}
		if date.Before(start) {
			start = date
		}
		if date.After(end) {
			end = date
		}
	}
	return start, end
}
