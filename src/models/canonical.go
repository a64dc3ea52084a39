package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TransactionStatus tracks a canonical transaction through the three
// reconciliation stages. Transitions only move forward; Orphan is terminal.
type TransactionStatus string

const (
	StatusPending          TransactionStatus = "pending"
	StatusValidatedSales   TransactionStatus = "validated_sales"
	StatusValidatedReceipt TransactionStatus = "validated_receipt"
	StatusTied             TransactionStatus = "tied"
	StatusOrphan           TransactionStatus = "orphan"
)

// PayoutType distinguishes how the acquirer settles a sale's installments.
type PayoutType string

const (
	PayoutAntecipacao PayoutType = "antecipacao" // all installments paid at once, discounted
	PayoutParcela     PayoutType = "parcela"     // one installment per payout
)

// CanonicalTransaction is the unified representation of one acquirer
// statement row. The row transformer populates the parsed fields; the
// reconciliation engine later sets the status, flags and back-references.
// The parsed portion is immutable once stored.
type CanonicalTransaction struct {
	ID       int64  `json:"id"`
	TenantID int64  `json:"tenant_id"`
	RunID    string `json:"run_id"`
	Acquirer string `json:"acquirer"`

	NSU               string          `json:"nsu"`
	SaleDate          time.Time       `json:"sale_date"`
	PayoutDate        time.Time       `json:"payout_date"`
	GrossAmount       decimal.Decimal `json:"gross_amount"`
	NetAmount         decimal.Decimal `json:"net_amount"`
	FeeAmount         decimal.Decimal `json:"fee_amount"`
	InstallmentNumber int             `json:"installment_number"`
	InstallmentCount  int             `json:"installment_count"`
	CardBrand         string          `json:"card_brand"`
	TransactionType   string          `json:"transaction_type"`
	LotID             string          `json:"lot_id"`

	Status     TransactionStatus `json:"status"`
	Validado   bool              `json:"validado"`
	ValidadoEm *time.Time        `json:"validado_em,omitempty"`
	Amarrado   bool              `json:"amarrado"`
	AmarradoEm *time.Time        `json:"amarrado_em,omitempty"`
	SaleID     *int64            `json:"sale_id,omitempty"`
	ParcelaID  *int64            `json:"parcela_id,omitempty"`
	SourceRow  int               `json:"source_row"`
	PayoutKind PayoutType        `json:"payout_kind,omitempty"`
	ImportedAt time.Time         `json:"imported_at"`
}

// FieldWarning records a non-fatal transformation problem on an optional
// field: the field was nulled and processing continued.
type FieldWarning struct {
	Row    int            `json:"row"`
	Field  CanonicalField `json:"field"`
	Column string         `json:"column"`
	Value  string         `json:"value"`
	Reason string         `json:"reason"`
}
