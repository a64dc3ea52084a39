package reconciliation

import (
	"context"
	"time"

	"github.com/username/petshop/backend/src/logger"
	"github.com/username/petshop/backend/src/models"
)

// runTieBackStage is stage 3: link each validated receipt to the one open
// receivable installment it satisfies. Only a unique match on installment
// number and expected net amount is tied; ambiguity is left for manual
// resolution. Re-running over already-tied transactions is a no-op.
func (e *Engine) runTieBackStage(ctx context.Context, tenantID int64, runID string) (models.StageReport, error) {
	report := models.StageReport{Stage: 3}
	log := logger.WithStage(runID, 3, "")

	txs, err := e.loadRun(tenantID, runID)
	if err != nil {
		return report, err
	}

	for _, tx := range txs {
		if !tx.Validado {
			continue
		}
		report.Processed++

		if tx.Amarrado {
			report.Succeeded++
			continue
		}
		if tx.SaleID == nil {
			report.Orphans++
			continue
		}

		candidates, err := e.repo.FindOpenInstallments(tenantID, *tx.SaleID)
		if err != nil {
			log.Error("Failed to load open installments", "acquirer", tx.Acquirer, "nsu", tx.NSU, "saleID", *tx.SaleID, "error", err)
			report.Failed++
			continue
		}

		matches := e.filterInstallmentMatches(tx, candidates)
		switch len(matches) {
		case 0:
			// Validated but nothing open to settle: orphan receipt.
			tx.Status = models.StatusOrphan
			if err := e.repo.UpdateTransactionState(tx); err != nil {
				log.Error("Failed to mark orphan receipt", "transactionID", tx.ID, "nsu", tx.NSU, "error", err)
				report.Failed++
				continue
			}
			report.Orphans++
		case 1:
			if err := e.tie(tx, matches[0]); err != nil {
				log.Error("Failed to tie installment", "transactionID", tx.ID, "nsu", tx.NSU, "installmentID", matches[0].ID, "error", err)
				report.Failed++
				continue
			}
			report.Succeeded++
		default:
			log.Warn("Ambiguous tie-back left for manual resolution",
				"acquirer", tx.Acquirer, "nsu", tx.NSU, "candidates", len(matches), "reason", ErrAmbiguousMatch.Error())
			report.Ambiguous++
		}
	}

	log.Info("Automatic tie-back stage finished",
		"processed", report.Processed, "succeeded", report.Succeeded,
		"failed", report.Failed, "ambiguous", report.Ambiguous, "orphans", report.Orphans)
	return report, nil
}

// filterInstallmentMatches selects open installments compatible with the
// receipt: same installment number (antecipação ignores it and settles the
// whole plan) and expected net within tolerance.
func (e *Engine) filterInstallmentMatches(tx *models.CanonicalTransaction, candidates []*models.ReceivableInstallment) []*models.ReceivableInstallment {
	var matches []*models.ReceivableInstallment
	for _, p := range candidates {
		if p.ConciliacaoID != nil {
			continue
		}
		if tx.PayoutKind == models.PayoutAntecipacao {
			if p.TipoRecebimento == models.PayoutAntecipacao && e.amountsMatch(p.ExpectedNet, tx.NetAmount) {
				matches = append(matches, p)
			}
			continue
		}
		if tx.InstallmentNumber != 0 && p.InstallmentNumber != tx.InstallmentNumber {
			continue
		}
		if e.amountsMatch(p.ExpectedNet, tx.NetAmount) {
			matches = append(matches, p)
		}
	}
	return matches
}

func (e *Engine) tie(tx *models.CanonicalTransaction, p *models.ReceivableInstallment) error {
	now := time.Now()
	if err := e.repo.TieInstallment(p.ID, tx.ID, now); err != nil {
		return err
	}
	parcelaID := p.ID
	tx.Amarrado = true
	tx.AmarradoEm = &now
	tx.ParcelaID = &parcelaID
	tx.Status = models.StatusTied
	return e.repo.UpdateTransactionState(tx)
}
