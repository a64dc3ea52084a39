package services

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/username/petshop/backend/src/database"
	"github.com/username/petshop/backend/src/logger"
	"github.com/username/petshop/backend/src/metrics"
	"github.com/username/petshop/backend/src/models"
	"github.com/username/petshop/backend/src/reconciliation"
	"github.com/username/petshop/backend/src/templates"
)

func TestMain(m *testing.M) {
	logger.InitLogger("error")
	os.Exit(m.Run())
}

func newTestService(t *testing.T) UploadService {
	t.Helper()
	database.InitDB(filepath.Join(t.TempDir(), "test.db"))

	registry := templates.NewRegistry(database.DB)
	if err := templates.SeedTemplates(registry, 1); err != nil {
		t.Fatalf("seeding templates: %v", err)
	}

	repo := reconciliation.NewRepository(database.DB)
	engine := reconciliation.NewEngine(repo, "0.01", 3)
	reporter := metrics.NewReporter(database.DB, 0.90, nil)
	return NewUploadService(registry, repo, engine, reporter, cache.New(time.Minute, time.Minute))
}

func seedSale(t *testing.T, nsu, date, gross, net string) {
	t.Helper()
	res, err := database.DB.Exec(`INSERT INTO sales (tenant_id, nsu, sale_date, gross_amount, installment_count) VALUES (1, ?, ?, ?, 1)`,
		nsu, date, gross)
	if err != nil {
		t.Fatalf("inserting sale: %v", err)
	}
	saleID, _ := res.LastInsertId()
	if _, err := database.DB.Exec(`INSERT INTO receivable_installments (tenant_id, sale_id, installment_number, expected_net, tipo_recebimento) VALUES (1, ?, 1, ?, 'parcela')`,
		saleID, net); err != nil {
		t.Fatalf("inserting installment: %v", err)
	}
}

const stoneCSV = `STONE ID;DATA DA VENDA;DATA DE VENCIMENTO;VALOR BRUTO;VALOR LIQUIDO;DESCONTO DE MDR;N DA PARCELA;QTD DE PARCELAS;BANDEIRA
A1;10/01/2026;10/02/2026;R$ 1.000,00;R$ 970,00;R$ 30,00;1;1;VISA
A2;10/01/2026;10/02/2026;R$ 800,00;R$ 776,00;R$ 24,00;1;1;MASTERCARD
A3;10/01/2026;10/02/2026;R$ 700,00;R$ 679,00;R$ 21,00;1;1;ELO
`

func TestProcessUploadStoneEndToEnd(t *testing.T) {
	svc := newTestService(t)
	seedSale(t, "A1", "2026-01-10", "1000.00", "970.00")
	seedSale(t, "A2", "2026-01-10", "800.00", "776.00")
	seedSale(t, "A3", "2026-01-10", "700.00", "679.00")

	report, err := svc.ProcessUpload(context.Background(), strings.NewReader(stoneCSV), 1, 7,
		UploadOptions{Filename: "movimentacao.csv"})
	if err != nil {
		t.Fatalf("ProcessUpload: %v", err)
	}

	if report.Acquirer != "stone" {
		t.Errorf("expected detected acquirer stone, got %s", report.Acquirer)
	}
	if report.Confidence != 1.0 {
		t.Errorf("expected detection confidence 1.0, got %v", report.Confidence)
	}
	if report.RowsRead != 3 || report.RowsImported != 3 || report.RowsSkipped != 0 {
		t.Errorf("expected 3/3/0 rows, got %d/%d/%d", report.RowsRead, report.RowsImported, report.RowsSkipped)
	}
	if len(report.Stages) != 3 {
		t.Fatalf("expected 3 stage reports, got %d", len(report.Stages))
	}
	if report.Stages[2].Succeeded != 3 {
		t.Errorf("expected all 3 receipts tied, got %+v", report.Stages[2])
	}
	if report.Snapshot == nil {
		t.Fatal("expected a health snapshot on the report")
	}
	if report.Snapshot.Health != models.HealthOK {
		t.Errorf("expected OK health at full tie rate, got %s", report.Snapshot.Health)
	}
	if report.Snapshot.TiedCount != 3 {
		t.Errorf("expected 3 tied, got %d", report.Snapshot.TiedCount)
	}

	txs, err := svc.GetRunTransactions(1, report.RunID)
	if err != nil {
		t.Fatalf("GetRunTransactions: %v", err)
	}
	if len(txs) != 3 {
		t.Fatalf("expected 3 stored transactions, got %d", len(txs))
	}
	for _, tx := range txs {
		if tx.Status != models.StatusTied {
			t.Errorf("transaction %s: expected tied, got %s", tx.NSU, tx.Status)
		}
	}

	cached, err := svc.GetLatestRunReport(1)
	if err != nil {
		t.Fatalf("GetLatestRunReport: %v", err)
	}
	if cached.RunID != report.RunID {
		t.Errorf("cached report mismatch: %s vs %s", cached.RunID, report.RunID)
	}
}

func TestProcessUploadRowIsolation(t *testing.T) {
	svc := newTestService(t)
	seedSale(t, "A1", "2026-01-10", "1000.00", "970.00")

	content := `STONE ID;DATA DA VENDA;DATA DE VENCIMENTO;VALOR BRUTO;VALOR LIQUIDO;DESCONTO DE MDR;N DA PARCELA;QTD DE PARCELAS;BANDEIRA
A1;10/01/2026;10/02/2026;R$ 1.000,00;R$ 970,00;R$ 30,00;1;1;VISA
A2;not-a-date;10/02/2026;R$ 800,00;R$ 776,00;R$ 24,00;1;1;VISA
`
	report, err := svc.ProcessUpload(context.Background(), strings.NewReader(content), 1, 7,
		UploadOptions{Acquirer: "stone"})
	if err != nil {
		t.Fatalf("one bad row must not fail the batch: %v", err)
	}
	if report.RowsImported != 1 || report.RowsSkipped != 1 {
		t.Errorf("expected 1 imported / 1 skipped, got %d / %d", report.RowsImported, report.RowsSkipped)
	}
	if len(report.RowErrors) != 1 {
		t.Errorf("expected 1 row error, got %v", report.RowErrors)
	}
	if report.Confidence != 0 {
		t.Errorf("explicit acquirer skips detection, confidence should be 0, got %v", report.Confidence)
	}
}

func TestProcessUploadUndetectedFormat(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.ProcessUpload(context.Background(), strings.NewReader("foo;bar\n1;2\n"), 1, 7,
		UploadOptions{Filename: "data.csv"})
	if !errors.Is(err, ErrFormatUndetected) {
		t.Fatalf("expected ErrFormatUndetected, got %v", err)
	}
}

func TestProcessUploadEmptyFile(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.ProcessUpload(context.Background(), strings.NewReader("   \n"), 1, 7,
		UploadOptions{Filename: "empty.csv"})
	if !errors.Is(err, ErrParsingFailed) {
		t.Fatalf("expected ErrParsingFailed, got %v", err)
	}
}

func TestGetLatestRunReportMissing(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.GetLatestRunReport(99)
	if !errors.Is(err, ErrNoRunReport) {
		t.Fatalf("expected ErrNoRunReport, got %v", err)
	}
}
