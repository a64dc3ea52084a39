package reconciliation

import (
	"context"
	"time"

	"github.com/username/petshop/backend/src/logger"
	"github.com/username/petshop/backend/src/models"
)

// runSalesStage is stage 1: for each POS sale in the batch period, find a
// gross statement transaction of matching amount and date and flag the sale
// as reconciled. Non-matches stay pending for manual review; this stage
// never creates financial records.
func (e *Engine) runSalesStage(ctx context.Context, tenantID int64, runID string) (models.StageReport, error) {
	report := models.StageReport{Stage: 1}
	log := logger.WithStage(runID, 1, "")

	txs, err := e.loadRun(tenantID, runID)
	if err != nil {
		return report, err
	}
	if len(txs) == 0 {
		return report, nil
	}

	start, end := saleDateRange(txs, e.dateWindow)
	sales, err := e.repo.FindSalesByPeriod(tenantID, start, end)
	if err != nil {
		return report, err
	}

	// A statement transaction settles at most one sale per run.
	claimed := make(map[int64]bool)
	for _, tx := range txs {
		if tx.SaleID != nil {
			claimed[tx.ID] = true
		}
	}

	for _, sale := range sales {
		report.Processed++
		if sale.ConciliadoVendas {
			// Already reconciled by an earlier run; re-running is a no-op.
			report.Succeeded++
			continue
		}

		match := e.findSaleMatch(sale, txs, claimed)
		if match == nil {
			report.Orphans++
			continue
		}

		now := time.Now()
		if err := e.repo.MarkSaleReconciled(sale.ID, now); err != nil {
			log.Error("Failed to mark sale reconciled", "saleID", sale.ID, "nsu", sale.NSU, "error", err)
			report.Failed++
			continue
		}

		saleID := sale.ID
		match.SaleID = &saleID
		if match.Status == models.StatusPending {
			match.Status = models.StatusValidatedSales
		}
		if err := e.repo.UpdateTransactionState(match); err != nil {
			log.Error("Failed to update transaction after sales match", "transactionID", match.ID, "nsu", match.NSU, "error", err)
			report.Failed++
			continue
		}
		claimed[match.ID] = true
		report.Succeeded++
	}

	log.Info("Sales reconciliation stage finished",
		"processed", report.Processed, "succeeded", report.Succeeded,
		"failed", report.Failed, "orphans", report.Orphans)
	return report, nil
}

// findSaleMatch looks for the statement transaction paying a sale: NSU
// equality wins outright; otherwise gross amount within tolerance plus sale
// date within the window.
func (e *Engine) findSaleMatch(sale *models.Sale, txs []*models.CanonicalTransaction, claimed map[int64]bool) *models.CanonicalTransaction {
	if sale.NSU != "" {
		for _, tx := range txs {
			if claimed[tx.ID] || tx.SaleID != nil {
				continue
			}
			if tx.NSU == sale.NSU && e.amountsMatch(tx.GrossAmount, sale.GrossAmount) {
				return tx
			}
		}
	}
	for _, tx := range txs {
		if claimed[tx.ID] || tx.SaleID != nil {
			continue
		}
		if e.amountsMatch(tx.GrossAmount, sale.GrossAmount) && e.datesMatch(tx.SaleDate, sale.SaleDate) {
			return tx
		}
	}
	return nil
}

func saleDateRange(txs []*models.CanonicalTransaction, windowDays int) (time.Time, time.Time) {
	min, max := txs[0].SaleDate, txs[0].SaleDate
	for _, tx := range txs[1:] {
		if tx.SaleDate.Before(min) {
			min = tx.SaleDate
		}
		if tx.SaleDate.After(max) {
			max = tx.SaleDate
		}
	}
	return min.AddDate(0, 0, -windowDays), max.AddDate(0, 0, windowDays)
}
