package metrics

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/username/petshop/backend/src/logger"
	"github.com/username/petshop/backend/src/models"
)

// AlertNotifier is told when a run's automatic tie-back rate drops below the
// health threshold. Implemented by the email service; a nil notifier
// disables alerting.
type AlertNotifier interface {
	SendHealthAlert(tenantID int64, snap *models.HealthSnapshot) error
}

// Reporter computes the per-run reconciliation health snapshot and keeps the
// per-(tenant, processing date) record current. Recomputing a date replaces
// the stored snapshot instead of accumulating, so reprocessing stays
// idempotent.
type Reporter struct {
	db        *sql.DB
	threshold float64
	notifier  AlertNotifier
}

func NewReporter(db *sql.DB, threshold float64, notifier AlertNotifier) *Reporter {
	if threshold <= 0 || threshold > 1 {
		threshold = 0.90
	}
	return &Reporter{db: db, threshold: threshold, notifier: notifier}
}

// Compute derives the snapshot from a batch of canonical transactions
// without persisting anything.
func (r *Reporter) Compute(tenantID int64, processDate time.Time, txs []*models.CanonicalTransaction) *models.HealthSnapshot {
	snap := &models.HealthSnapshot{
		TenantID:    tenantID,
		ProcessDate: processDate,
		TotalValue:  decimal.Zero,
		TiedValue:   decimal.Zero,
		OrphanValue: decimal.Zero,
		ComputedAt:  time.Now(),
	}

	for _, tx := range txs {
		if !tx.Validado {
			continue
		}
		snap.TotalReceipts++
		snap.TotalValue = snap.TotalValue.Add(tx.NetAmount)
		switch {
		case tx.Amarrado:
			snap.TiedCount++
			snap.TiedValue = snap.TiedValue.Add(tx.NetAmount)
		case tx.Status == models.StatusOrphan:
			snap.OrphanCount++
			snap.OrphanValue = snap.OrphanValue.Add(tx.NetAmount)
		}
	}

	if snap.TotalReceipts > 0 {
		snap.AutoTieRate = float64(snap.TiedCount) / float64(snap.TotalReceipts)
	}
	if snap.AutoTieRate >= r.threshold {
		snap.Health = models.HealthOK
	} else {
		snap.Health = models.HealthCritical
	}
	return snap
}

// Report computes, persists and (when CRITICAL) alerts on a batch.
func (r *Reporter) Report(tenantID int64, processDate time.Time, txs []*models.CanonicalTransaction) (*models.HealthSnapshot, error) {
	snap := r.Compute(tenantID, processDate, txs)

	if err := r.save(snap); err != nil {
		return nil, err
	}

	logger.L.Info("Reconciliation health snapshot stored",
		"tenantID", tenantID, "processDate", processDate.Format("2006-01-02"),
		"totalReceipts", snap.TotalReceipts, "tied", snap.TiedCount, "orphans", snap.OrphanCount,
		"autoTieRate", snap.AutoTieRate, "health", snap.Health)

	if snap.Health == models.HealthCritical && r.notifier != nil {
		if err := r.notifier.SendHealthAlert(tenantID, snap); err != nil {
			// Alert delivery failure must not fail the batch.
			logger.L.Error("Failed to send health alert", "tenantID", tenantID, "error", err)
		}
	}
	return snap, nil
}

// save upserts on (tenant_id, process_date): the snapshot for a date is
// replaced, never duplicated.
func (r *Reporter) save(snap *models.HealthSnapshot) error {
	res, err := r.db.Exec(`INSERT INTO health_snapshots
		(tenant_id, process_date, total_receipts, tied_count, orphan_count, total_value, tied_value, orphan_value, auto_tie_rate, health, computed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(tenant_id, process_date) DO UPDATE SET
			total_receipts = excluded.total_receipts,
			tied_count = excluded.tied_count,
			orphan_count = excluded.orphan_count,
			total_value = excluded.total_value,
			tied_value = excluded.tied_value,
			orphan_value = excluded.orphan_value,
			auto_tie_rate = excluded.auto_tie_rate,
			health = excluded.health,
			computed_at = excluded.computed_at`,
		snap.TenantID, snap.ProcessDate.Format("2006-01-02"),
		snap.TotalReceipts, snap.TiedCount, snap.OrphanCount,
		snap.TotalValue.String(), snap.TiedValue.String(), snap.OrphanValue.String(),
		snap.AutoTieRate, string(snap.Health), snap.ComputedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("saving health snapshot: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		snap.ID = id
	}
	return nil
}

// Latest returns the stored snapshot for a tenant and date, or nil if none.
func (r *Reporter) Latest(tenantID int64, processDate time.Time) (*models.HealthSnapshot, error) {
	row := r.db.QueryRow(`SELECT id, tenant_id, process_date, total_receipts, tied_count, orphan_count,
		total_value, tied_value, orphan_value, auto_tie_rate, health, computed_at
		FROM health_snapshots WHERE tenant_id = ? AND process_date = ?`,
		tenantID, processDate.Format("2006-01-02"))

	var snap models.HealthSnapshot
	var processDateStr, totalValue, tiedValue, orphanValue, health, computedAt string
	err := row.Scan(&snap.ID, &snap.TenantID, &processDateStr, &snap.TotalReceipts, &snap.TiedCount, &snap.OrphanCount,
		&totalValue, &tiedValue, &orphanValue, &snap.AutoTieRate, &health, &computedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("loading health snapshot: %w", err)
	}

	if snap.ProcessDate, err = time.Parse("2006-01-02", processDateStr); err != nil {
		return nil, fmt.Errorf("bad process_date %q: %w", processDateStr, err)
	}
	if snap.TotalValue, err = decimal.NewFromString(totalValue); err != nil {
		return nil, fmt.Errorf("bad total_value %q: %w", totalValue, err)
	}
	if snap.TiedValue, err = decimal.NewFromString(tiedValue); err != nil {
		return nil, fmt.Errorf("bad tied_value %q: %w", tiedValue, err)
	}
	if snap.OrphanValue, err = decimal.NewFromString(orphanValue); err != nil {
		return nil, fmt.Errorf("bad orphan_value %q: %w", orphanValue, err)
	}
	snap.Health = models.HealthState(health)
	if t, err := time.Parse(time.RFC3339, computedAt); err == nil {
		snap.ComputedAt = t
	}
	return &snap, nil
}
