package reconciliation

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/username/petshop/backend/src/logger"
	"github.com/username/petshop/backend/src/models"
)

var (
	// ErrToleranceExceeded marks an amount or date mismatch beyond the
	// configured tolerance. The transaction stays pending; this is a match
	// outcome, not a failure.
	ErrToleranceExceeded = errors.New("amount or date outside tolerance")
	// ErrAmbiguousMatch marks a stage-3 lookup that found more than one
	// candidate installment. The transaction is left untied for manual
	// resolution; the engine never guesses.
	ErrAmbiguousMatch = errors.New("multiple candidate installments")
)

// Engine runs the three-stage reconciliation pipeline over one upload batch:
// sales reconciliation, receipt validation, automatic tie-back. Each stage
// commits independently so partial progress survives a crash mid-pipeline.
type Engine struct {
	repo       Repository
	tolerance  decimal.Decimal
	dateWindow int // days either side of the sale date accepted in stage 1

	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// NewEngine builds an engine. tolerance is in currency units ("0.01" = one
// cent); an unparseable value falls back to one cent.
func NewEngine(repo Repository, tolerance string, dateWindowDays int) *Engine {
	tol, err := decimal.NewFromString(tolerance)
	if err != nil || tol.IsNegative() {
		logger.L.Warn("Invalid amount tolerance, defaulting to 0.01", "configured", tolerance)
		tol = decimal.New(1, -2)
	}
	if dateWindowDays < 0 {
		dateWindowDays = 0
	}
	return &Engine{
		repo:       repo,
		tolerance:  tol,
		dateWindow: dateWindowDays,
		locks:      make(map[int64]*sync.Mutex),
	}
}

// tenantLock serializes stage execution per tenant: two concurrent uploads
// must not race to tie the same receivable.
func (e *Engine) tenantLock(tenantID int64) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	l, ok := e.locks[tenantID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[tenantID] = l
	}
	return l
}

// Run executes the full pipeline for one upload batch. Row-level errors are
// counted and logged, never propagated; the batch always completes. The
// returned error covers only batch-level failures (such as the run's
// transactions being unreadable).
func (e *Engine) Run(ctx context.Context, tenantID int64, runID string) ([]models.StageReport, error) {
	lock := e.tenantLock(tenantID)
	lock.Lock()
	defer lock.Unlock()

	var reports []models.StageReport
	stages := []func(context.Context, int64, string) (models.StageReport, error){
		e.runSalesStage,
		e.runReceiptStage,
		e.runTieBackStage,
	}
	for i, stage := range stages {
		if err := ctx.Err(); err != nil {
			// Aborting between stages is safe: matching is idempotent, the
			// next run picks up where this one stopped.
			logger.L.Warn("Reconciliation run cancelled between stages", "runID", runID, "afterStage", i)
			return reports, err
		}
		report, err := stage(ctx, tenantID, runID)
		if err != nil {
			return reports, err
		}
		reports = append(reports, report)
	}
	return reports, nil
}

// loadRun fetches the batch and splits out transactions by status.
func (e *Engine) loadRun(tenantID int64, runID string) ([]*models.CanonicalTransaction, error) {
	return e.repo.TransactionsByRun(tenantID, runID)
}

// amountsMatch applies the configured tolerance.
func (e *Engine) amountsMatch(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().Cmp(e.tolerance) <= 0
}

// datesMatch accepts dates within the configured window.
func (e *Engine) datesMatch(a, b time.Time) bool {
	diff := a.Sub(b)
	if diff < 0 {
		diff = -diff
	}
	return diff <= time.Duration(e.dateWindow)*24*time.Hour
}
