package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// RawRow is one statement line after delimiter splitting, keyed by header
// name (or "col_N" for headerless layouts). Values are untransformed strings.
type RawRow struct {
	Number int               `json:"number"` // 1-based line number in the source file
	Values map[string]string `json:"values"`
}

// Sale is the POS sale record the engine reconciles against. Owned by the
// sales module; the engine only reads it and flips the reconciliation flag.
type Sale struct {
	ID               int64           `json:"id"`
	TenantID         int64           `json:"tenant_id"`
	NSU              string          `json:"nsu"`
	SaleDate         time.Time       `json:"sale_date"`
	GrossAmount      decimal.Decimal `json:"gross_amount"`
	InstallmentCount int             `json:"installment_count"`
	CardBrand        string          `json:"card_brand"`
	ConciliadoVendas bool            `json:"conciliado_vendas"`
	ConciliadoEm     *time.Time      `json:"conciliado_em,omitempty"`
}

// ReceivableInstallment is one expected future payout of a sale.
// TipoRecebimento follows the acquirer's settlement mode.
type ReceivableInstallment struct {
	ID                int64           `json:"id"`
	TenantID          int64           `json:"tenant_id"`
	SaleID            int64           `json:"sale_id"`
	InstallmentNumber int             `json:"installment_number"`
	ExpectedNet       decimal.Decimal `json:"expected_net"`
	DueDate           time.Time       `json:"due_date"`
	TipoRecebimento   PayoutType      `json:"tipo_recebimento"`
	ConciliacaoID     *int64          `json:"conciliacao_id,omitempty"` // canonical transaction that settled it
	AmarradoEm        *time.Time      `json:"amarrado_em,omitempty"`
}

// StageReport counts the outcomes of one reconciliation stage over a batch.
type StageReport struct {
	Stage     int `json:"stage"`
	Processed int `json:"processed"`
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Ambiguous int `json:"ambiguous"`
	Orphans   int `json:"orphans"`
}

// RunReport is the per-upload outcome returned to the caller: what was
// detected, how many rows survived transformation, and how each stage went.
type RunReport struct {
	RunID        string          `json:"run_id"`
	TenantID     int64           `json:"tenant_id"`
	Acquirer     string          `json:"acquirer"`
	FileType     string          `json:"file_type"`
	Confidence   float64         `json:"confidence"`
	RowsRead     int             `json:"rows_read"`
	RowsImported int             `json:"rows_imported"`
	RowsSkipped  int             `json:"rows_skipped"`
	RowErrors    []string        `json:"row_errors,omitempty"`
	Warnings     []FieldWarning  `json:"warnings,omitempty"`
	Stages       []StageReport   `json:"stages"`
	Snapshot     *HealthSnapshot `json:"snapshot,omitempty"`
	StartedAt    time.Time       `json:"started_at"`
	FinishedAt   time.Time       `json:"finished_at"`
}

// HealthState flags whether the automatic tie-back rate of a run is acceptable.
type HealthState string

const (
	HealthOK       HealthState = "OK"
	HealthCritical HealthState = "CRITICAL"
)

// HealthSnapshot is the per-(tenant, processing date) metrics record.
// Recomputing for the same date replaces the previous snapshot.
type HealthSnapshot struct {
	ID            int64           `json:"id"`
	TenantID      int64           `json:"tenant_id"`
	ProcessDate   time.Time       `json:"process_date"`
	TotalReceipts int             `json:"total_receipts"`
	TiedCount     int             `json:"tied_count"`
	OrphanCount   int             `json:"orphan_count"`
	TotalValue    decimal.Decimal `json:"total_value"`
	TiedValue     decimal.Decimal `json:"tied_value"`
	OrphanValue   decimal.Decimal `json:"orphan_value"`
	AutoTieRate   float64         `json:"automatic_tie_rate"`
	Health        HealthState     `json:"health"`
	ComputedAt    time.Time       `json:"computed_at"`
}
