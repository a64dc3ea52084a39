package reconciliation

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/username/petshop/backend/src/models"
)

const dateLayout = "2006-01-02"

// Repository is the engine's view of persistence. Sales and receivable
// installments are owned by the sales module; the engine only reads them and
// requests the two flag mutations the contract allows.
type Repository interface {
	FindSalesByPeriod(tenantID int64, start, end time.Time) ([]*models.Sale, error)
	FindOpenInstallments(tenantID, saleID int64) ([]*models.ReceivableInstallment, error)
	MarkSaleReconciled(saleID int64, ts time.Time) error
	TieInstallment(installmentID, transactionID int64, ts time.Time) error

	InsertTransaction(tx *models.CanonicalTransaction) (int64, error)
	TransactionsByRun(tenantID int64, runID string) ([]*models.CanonicalTransaction, error)
	UpdateTransactionState(tx *models.CanonicalTransaction) error
}

type sqlRepository struct {
	db *sql.DB
}

// NewRepository returns the SQLite-backed repository.
func NewRepository(db *sql.DB) Repository {
	return &sqlRepository{db: db}
}

func (r *sqlRepository) FindSalesByPeriod(tenantID int64, start, end time.Time) ([]*models.Sale, error) {
	rows, err := r.db.Query(`SELECT id, tenant_id, nsu, sale_date, gross_amount, installment_count, card_brand, conciliado_vendas, conciliado_em
		FROM sales WHERE tenant_id = ? AND sale_date >= ? AND sale_date <= ? ORDER BY sale_date, id`,
		tenantID, start.Format(dateLayout), end.Format(dateLayout))
	if err != nil {
		return nil, fmt.Errorf("querying sales: %w", err)
	}
	defer rows.Close()

	var sales []*models.Sale
	for rows.Next() {
		var s models.Sale
		var nsu, brand sql.NullString
		var saleDate, gross string
		var conciliadoEm sql.NullString
		if err := rows.Scan(&s.ID, &s.TenantID, &nsu, &saleDate, &gross, &s.InstallmentCount, &brand, &s.ConciliadoVendas, &conciliadoEm); err != nil {
			return nil, fmt.Errorf("scanning sale: %w", err)
		}
		s.NSU = nsu.String
		s.CardBrand = brand.String
		if s.SaleDate, err = time.Parse(dateLayout, saleDate); err != nil {
			return nil, fmt.Errorf("sale %d: bad sale_date %q: %w", s.ID, saleDate, err)
		}
		if s.GrossAmount, err = decimal.NewFromString(gross); err != nil {
			return nil, fmt.Errorf("sale %d: bad gross_amount %q: %w", s.ID, gross, err)
		}
		if t, ok := parseNullTime(conciliadoEm); ok {
			s.ConciliadoEm = &t
		}
		sales = append(sales, &s)
	}
	return sales, rows.Err()
}

func (r *sqlRepository) FindOpenInstallments(tenantID, saleID int64) ([]*models.ReceivableInstallment, error) {
	rows, err := r.db.Query(`SELECT id, tenant_id, sale_id, installment_number, expected_net, due_date, tipo_recebimento, conciliacao_id, amarrado_em
		FROM receivable_installments WHERE tenant_id = ? AND sale_id = ? AND conciliacao_id IS NULL ORDER BY installment_number`,
		tenantID, saleID)
	if err != nil {
		return nil, fmt.Errorf("querying installments: %w", err)
	}
	defer rows.Close()

	var list []*models.ReceivableInstallment
	for rows.Next() {
		var p models.ReceivableInstallment
		var expectedNet string
		var dueDate, amarradoEm sql.NullString
		var conciliacaoID sql.NullInt64
		var tipo string
		if err := rows.Scan(&p.ID, &p.TenantID, &p.SaleID, &p.InstallmentNumber, &expectedNet, &dueDate, &tipo, &conciliacaoID, &amarradoEm); err != nil {
			return nil, fmt.Errorf("scanning installment: %w", err)
		}
		if p.ExpectedNet, err = decimal.NewFromString(expectedNet); err != nil {
			return nil, fmt.Errorf("installment %d: bad expected_net %q: %w", p.ID, expectedNet, err)
		}
		p.TipoRecebimento = models.PayoutType(tipo)
		if dueDate.Valid {
			if t, err := time.Parse(dateLayout, dueDate.String); err == nil {
				p.DueDate = t
			}
		}
		if conciliacaoID.Valid {
			v := conciliacaoID.Int64
			p.ConciliacaoID = &v
		}
		if t, ok := parseNullTime(amarradoEm); ok {
			p.AmarradoEm = &t
		}
		list = append(list, &p)
	}
	return list, rows.Err()
}

func (r *sqlRepository) MarkSaleReconciled(saleID int64, ts time.Time) error {
	_, err := r.db.Exec(`UPDATE sales SET conciliado_vendas = TRUE, conciliado_em = ? WHERE id = ? AND conciliado_vendas = FALSE`,
		ts.Format(time.RFC3339), saleID)
	if err != nil {
		return fmt.Errorf("marking sale %d reconciled: %w", saleID, err)
	}
	return nil
}

func (r *sqlRepository) TieInstallment(installmentID, transactionID int64, ts time.Time) error {
	// conciliacao_id IS NULL guards against double-tying if two uploads race.
	res, err := r.db.Exec(`UPDATE receivable_installments SET conciliacao_id = ?, amarrado_em = ? WHERE id = ? AND conciliacao_id IS NULL`,
		transactionID, ts.Format(time.RFC3339), installmentID)
	if err != nil {
		return fmt.Errorf("tying installment %d: %w", installmentID, err)
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return fmt.Errorf("installment %d already tied", installmentID)
	}
	return nil
}

func (r *sqlRepository) InsertTransaction(tx *models.CanonicalTransaction) (int64, error) {
	res, err := r.db.Exec(`INSERT INTO canonical_transactions
		(tenant_id, run_id, acquirer, nsu, sale_date, payout_date, gross_amount, net_amount, fee_amount,
		 installment_number, installment_count, card_brand, transaction_type, lot_id, payout_kind, status, source_row)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tx.TenantID, tx.RunID, tx.Acquirer, tx.NSU,
		tx.SaleDate.Format(dateLayout), formatNullDate(tx.PayoutDate),
		tx.GrossAmount.String(), tx.NetAmount.String(), tx.FeeAmount.String(),
		tx.InstallmentNumber, tx.InstallmentCount, tx.CardBrand, tx.TransactionType,
		tx.LotID, string(tx.PayoutKind), string(tx.Status), tx.SourceRow)
	if err != nil {
		return 0, fmt.Errorf("inserting canonical transaction (NSU %s): %w", tx.NSU, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading transaction id: %w", err)
	}
	tx.ID = id
	return id, nil
}

func (r *sqlRepository) TransactionsByRun(tenantID int64, runID string) ([]*models.CanonicalTransaction, error) {
	rows, err := r.db.Query(`SELECT id, tenant_id, run_id, acquirer, nsu, sale_date, payout_date, gross_amount, net_amount, fee_amount,
		installment_number, installment_count, card_brand, transaction_type, lot_id, payout_kind, status,
		validado, validado_em, amarrado, amarrado_em, sale_id, parcela_id, source_row
		FROM canonical_transactions WHERE tenant_id = ? AND run_id = ? ORDER BY source_row, id`, tenantID, runID)
	if err != nil {
		return nil, fmt.Errorf("querying run transactions: %w", err)
	}
	defer rows.Close()

	var list []*models.CanonicalTransaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		list = append(list, tx)
	}
	return list, rows.Err()
}

func (r *sqlRepository) UpdateTransactionState(tx *models.CanonicalTransaction) error {
	_, err := r.db.Exec(`UPDATE canonical_transactions SET status = ?, validado = ?, validado_em = ?, amarrado = ?, amarrado_em = ?, sale_id = ?, parcela_id = ? WHERE id = ?`,
		string(tx.Status), tx.Validado, formatNullTimePtr(tx.ValidadoEm), tx.Amarrado, formatNullTimePtr(tx.AmarradoEm),
		nullInt64(tx.SaleID), nullInt64(tx.ParcelaID), tx.ID)
	if err != nil {
		return fmt.Errorf("updating transaction %d state: %w", tx.ID, err)
	}
	return nil
}

func scanTransaction(rows *sql.Rows) (*models.CanonicalTransaction, error) {
	var tx models.CanonicalTransaction
	var saleDate string
	var payoutDate, feeAmount, brand, txType, lotID, payoutKind sql.NullString
	var gross, net, status string
	var validadoEm, amarradoEm sql.NullString
	var saleID, parcelaID sql.NullInt64
	var instNum, instCount sql.NullInt64
	var sourceRow sql.NullInt64

	err := rows.Scan(&tx.ID, &tx.TenantID, &tx.RunID, &tx.Acquirer, &tx.NSU, &saleDate, &payoutDate,
		&gross, &net, &feeAmount, &instNum, &instCount, &brand, &txType, &lotID, &payoutKind, &status,
		&tx.Validado, &validadoEm, &tx.Amarrado, &amarradoEm, &saleID, &parcelaID, &sourceRow)
	if err != nil {
		return nil, fmt.Errorf("scanning canonical transaction: %w", err)
	}

	if tx.SaleDate, err = time.Parse(dateLayout, saleDate); err != nil {
		return nil, fmt.Errorf("transaction %d: bad sale_date %q: %w", tx.ID, saleDate, err)
	}
	if payoutDate.Valid && payoutDate.String != "" {
		if t, err := time.Parse(dateLayout, payoutDate.String); err == nil {
			tx.PayoutDate = t
		}
	}
	if tx.GrossAmount, err = decimal.NewFromString(gross); err != nil {
		return nil, fmt.Errorf("transaction %d: bad gross_amount %q: %w", tx.ID, gross, err)
	}
	if tx.NetAmount, err = decimal.NewFromString(net); err != nil {
		return nil, fmt.Errorf("transaction %d: bad net_amount %q: %w", tx.ID, net, err)
	}
	if feeAmount.Valid && feeAmount.String != "" {
		if d, err := decimal.NewFromString(feeAmount.String); err == nil {
			tx.FeeAmount = d
		}
	}
	tx.InstallmentNumber = int(instNum.Int64)
	tx.InstallmentCount = int(instCount.Int64)
	tx.CardBrand = brand.String
	tx.TransactionType = txType.String
	tx.LotID = lotID.String
	tx.PayoutKind = models.PayoutType(payoutKind.String)
	tx.Status = models.TransactionStatus(status)
	tx.SourceRow = int(sourceRow.Int64)
	if t, ok := parseNullTime(validadoEm); ok {
		tx.ValidadoEm = &t
	}
	if t, ok := parseNullTime(amarradoEm); ok {
		tx.AmarradoEm = &t
	}
	if saleID.Valid {
		v := saleID.Int64
		tx.SaleID = &v
	}
	if parcelaID.Valid {
		v := parcelaID.Int64
		tx.ParcelaID = &v
	}
	return &tx, nil
}

func parseNullTime(s sql.NullString) (time.Time, bool) {
	if !s.Valid || s.String == "" {
		return time.Time{}, false
	}
	if t, err := time.Parse(time.RFC3339, s.String); err == nil {
		return t, true
	}
	if t, err := time.Parse("2006-01-02 15:04:05", s.String); err == nil {
		return t, true
	}
	return time.Time{}, false
}

func formatNullDate(t time.Time) interface{} {
	if t.IsZero() {
		return nil
	}
	return t.Format(dateLayout)
}

func formatNullTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.Format(time.RFC3339)
}

func nullInt64(v *int64) interface{} {
	if v == nil {
		return nil
	}
	return *v
}
