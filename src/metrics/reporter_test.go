package metrics

import (
	"math"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/username/petshop/backend/src/database"
	"github.com/username/petshop/backend/src/logger"
	"github.com/username/petshop/backend/src/models"
)

func TestMain(m *testing.M) {
	logger.InitLogger("error")
	os.Exit(m.Run())
}

type captureNotifier struct {
	calls []*models.HealthSnapshot
}

func (c *captureNotifier) SendHealthAlert(tenantID int64, snap *models.HealthSnapshot) error {
	c.calls = append(c.calls, snap)
	return nil
}

func batch(validated, tied, orphans int) []*models.CanonicalTransaction {
	var txs []*models.CanonicalTransaction
	for i := 0; i < validated; i++ {
		tx := &models.CanonicalTransaction{
			Validado:  true,
			NetAmount: decimal.RequireFromString("10.00"),
			Status:    models.StatusValidatedReceipt,
		}
		switch {
		case i < tied:
			tx.Amarrado = true
			tx.Status = models.StatusTied
		case i < tied+orphans:
			tx.Status = models.StatusOrphan
		}
		txs = append(txs, tx)
	}
	// Unvalidated rows never count toward the rate.
	txs = append(txs, &models.CanonicalTransaction{NetAmount: decimal.RequireFromString("99.00")})
	return txs
}

func testDate(t *testing.T) time.Time {
	t.Helper()
	d, err := time.Parse("2006-01-02", "2026-02-15")
	if err != nil {
		t.Fatalf("bad test date: %v", err)
	}
	return d
}

func TestComputeHealthyRate(t *testing.T) {
	r := NewReporter(nil, 0.90, nil)
	snap := r.Compute(1, testDate(t), batch(100, 95, 5))

	if snap.TotalReceipts != 100 {
		t.Errorf("expected 100 receipts, got %d", snap.TotalReceipts)
	}
	if snap.TiedCount != 95 || snap.OrphanCount != 5 {
		t.Errorf("expected 95 tied / 5 orphans, got %d / %d", snap.TiedCount, snap.OrphanCount)
	}
	if math.Abs(snap.AutoTieRate-0.95) > 1e-9 {
		t.Errorf("expected rate 0.95, got %v", snap.AutoTieRate)
	}
	if snap.Health != models.HealthOK {
		t.Errorf("expected OK at 95%%, got %s", snap.Health)
	}
	if !snap.TotalValue.Equal(decimal.RequireFromString("1000.00")) {
		t.Errorf("expected total value 1000.00, got %s", snap.TotalValue)
	}
	if !snap.TiedValue.Equal(decimal.RequireFromString("950.00")) {
		t.Errorf("expected tied value 950.00, got %s", snap.TiedValue)
	}
}

func TestComputeCriticalRate(t *testing.T) {
	r := NewReporter(nil, 0.90, nil)
	snap := r.Compute(1, testDate(t), batch(100, 85, 15))
	if snap.Health != models.HealthCritical {
		t.Errorf("expected CRITICAL at 85%%, got %s", snap.Health)
	}
}

func TestComputeEmptyBatch(t *testing.T) {
	r := NewReporter(nil, 0.90, nil)
	snap := r.Compute(1, testDate(t), nil)
	if snap.TotalReceipts != 0 || snap.AutoTieRate != 0 {
		t.Errorf("expected zeroed snapshot, got %+v", snap)
	}
	if snap.Health != models.HealthCritical {
		t.Errorf("an empty batch reports CRITICAL, got %s", snap.Health)
	}
}

func TestReportAlertsOnlyWhenCritical(t *testing.T) {
	database.InitDB(filepath.Join(t.TempDir(), "test.db"))
	notifier := &captureNotifier{}
	r := NewReporter(database.DB, 0.90, notifier)

	if _, err := r.Report(1, testDate(t), batch(100, 95, 5)); err != nil {
		t.Fatalf("Report healthy: %v", err)
	}
	if len(notifier.calls) != 0 {
		t.Fatalf("healthy run must not alert, got %d calls", len(notifier.calls))
	}

	if _, err := r.Report(1, testDate(t), batch(100, 50, 50)); err != nil {
		t.Fatalf("Report critical: %v", err)
	}
	if len(notifier.calls) != 1 {
		t.Fatalf("critical run must alert exactly once, got %d calls", len(notifier.calls))
	}
	if notifier.calls[0].Health != models.HealthCritical {
		t.Errorf("alerted snapshot should be CRITICAL, got %s", notifier.calls[0].Health)
	}
}

func TestReportUpsertsPerTenantAndDate(t *testing.T) {
	database.InitDB(filepath.Join(t.TempDir(), "test.db"))
	r := NewReporter(database.DB, 0.90, nil)
	date := testDate(t)

	if _, err := r.Report(1, date, batch(10, 10, 0)); err != nil {
		t.Fatalf("first report: %v", err)
	}
	if _, err := r.Report(1, date, batch(20, 18, 2)); err != nil {
		t.Fatalf("second report: %v", err)
	}

	var count int
	if err := database.DB.QueryRow(`SELECT COUNT(*) FROM health_snapshots WHERE tenant_id = 1`).Scan(&count); err != nil {
		t.Fatalf("counting snapshots: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected a single snapshot row per (tenant, date), got %d", count)
	}

	snap, err := r.Latest(1, date)
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if snap == nil {
		t.Fatal("expected a stored snapshot")
	}
	if snap.TotalReceipts != 20 || snap.TiedCount != 18 {
		t.Errorf("reprocessing must replace the snapshot, got %+v", snap)
	}
}

func TestLatestMissingIsNil(t *testing.T) {
	database.InitDB(filepath.Join(t.TempDir(), "test.db"))
	r := NewReporter(database.DB, 0.90, nil)
	snap, err := r.Latest(42, testDate(t))
	if err != nil {
		t.Fatalf("Latest: %v", err)
	}
	if snap != nil {
		t.Errorf("expected nil for missing snapshot, got %+v", snap)
	}
}
