package reconciliation

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
	"github.com/username/petshop/backend/src/logger"
	"github.com/username/petshop/backend/src/models"
)

// runReceiptStage is stage 2: validate the acquirer's payout rows against
// the net amounts we expect. Lot-grouped rows must sum to the lot total;
// antecipação payouts are checked against the full sale gross; individual
// installments against that installment's expected net. A row passes only if
// the amount, date and (when applicable) lot checks all hold.
func (e *Engine) runReceiptStage(ctx context.Context, tenantID int64, runID string) (models.StageReport, error) {
	report := models.StageReport{Stage: 2}
	log := logger.WithStage(runID, 2, "")

	txs, err := e.loadRun(tenantID, runID)
	if err != nil {
		return report, err
	}

	lotOK := e.validateLots(txs)

	for _, tx := range txs {
		switch tx.Status {
		case models.StatusValidatedReceipt, models.StatusTied:
			// Already validated by an earlier run.
			report.Processed++
			report.Succeeded++
			continue
		case models.StatusOrphan:
			continue
		}
		report.Processed++

		if tx.SaleID == nil {
			// No counterpart sale found in stage 1: terminal orphan.
			tx.Status = models.StatusOrphan
			if err := e.repo.UpdateTransactionState(tx); err != nil {
				log.Error("Failed to mark transaction orphan", "transactionID", tx.ID, "acquirer", tx.Acquirer, "nsu", tx.NSU, "error", err)
				report.Failed++
				continue
			}
			report.Orphans++
			continue
		}

		if tx.LotID != "" && !lotOK[tx.LotID] {
			log.Warn("Receipt failed lot sum check", "acquirer", tx.Acquirer, "nsu", tx.NSU, "lotID", tx.LotID, "reason", ErrToleranceExceeded.Error())
			report.Failed++
			continue
		}

		if err := e.validateReceiptAmounts(tx); err != nil {
			log.Warn("Receipt failed amount validation", "acquirer", tx.Acquirer, "nsu", tx.NSU, "payoutKind", tx.PayoutKind, "reason", err.Error())
			report.Failed++
			continue
		}

		if !tx.PayoutDate.IsZero() && tx.PayoutDate.Before(tx.SaleDate) {
			log.Warn("Receipt payout date precedes sale date", "acquirer", tx.Acquirer, "nsu", tx.NSU,
				"saleDate", tx.SaleDate.Format(dateLayout), "payoutDate", tx.PayoutDate.Format(dateLayout))
			report.Failed++
			continue
		}

		now := time.Now()
		tx.Validado = true
		tx.ValidadoEm = &now
		tx.Status = models.StatusValidatedReceipt
		if err := e.repo.UpdateTransactionState(tx); err != nil {
			log.Error("Failed to persist receipt validation", "transactionID", tx.ID, "acquirer", tx.Acquirer, "nsu", tx.NSU, "error", err)
			report.Failed++
			continue
		}
		report.Succeeded++
	}

	log.Info("Receipt validation stage finished",
		"processed", report.Processed, "succeeded", report.Succeeded,
		"failed", report.Failed, "orphans", report.Orphans)
	return report, nil
}

// validateLots checks each lot's member net amounts against the lot total
// (gross minus fees) with a one-cent tolerance. Returns pass/fail per lot id.
func (e *Engine) validateLots(txs []*models.CanonicalTransaction) map[string]bool {
	netSums := make(map[string]decimal.Decimal)
	totalSums := make(map[string]decimal.Decimal)
	for _, tx := range txs {
		if tx.LotID == "" {
			continue
		}
		netSums[tx.LotID] = netSums[tx.LotID].Add(tx.NetAmount)
		totalSums[tx.LotID] = totalSums[tx.LotID].Add(tx.GrossAmount.Sub(tx.FeeAmount))
	}
	ok := make(map[string]bool, len(netSums))
	for lot, net := range netSums {
		ok[lot] = e.amountsMatch(net, totalSums[lot])
	}
	return ok
}

// validateReceiptAmounts applies the per-payout-kind expected-net check.
func (e *Engine) validateReceiptAmounts(tx *models.CanonicalTransaction) error {
	switch tx.PayoutKind {
	case models.PayoutAntecipacao:
		// All installments settled at once: the payout must cover the full
		// sale gross minus the acquirer's discount.
		if tx.NetAmount.GreaterThan(tx.GrossAmount) {
			return ErrToleranceExceeded
		}
		if !e.amountsMatch(tx.GrossAmount.Sub(tx.FeeAmount), tx.NetAmount) {
			return ErrToleranceExceeded
		}
		return nil
	default:
		// Individual installment: the expected net is tracked on the open
		// receivable; here we check internal consistency of the row itself.
		if !e.amountsMatch(tx.GrossAmount.Sub(tx.FeeAmount), tx.NetAmount) {
			return ErrToleranceExceeded
		}
		return nil
	}
}
