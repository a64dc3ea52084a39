package models

import (
	"fmt"
	"time"
)

// Transformation names one of the value conversions a template may apply to
// a source column. The set is closed: the transformer resolves it through an
// exhaustive switch and rejects anything outside it, so a typo in a seeded
// or registered template fails loudly instead of silently passing raw text.
type Transformation string

const (
	TransformMonetarioBR Transformation = "monetario_br" // "R$ 1.234,56" -> 1234.56
	TransformMonetarioUS Transformation = "monetario_us" // "1234.56" -> 1234.56
	TransformPercentual  Transformation = "percentual"   // "3,19" or "3.19" -> 3.19
	TransformDataBR      Transformation = "data_br"      // dd/mm/yyyy
	TransformDataUS      Transformation = "data_us"      // yyyy-mm-dd
	TransformNSU         Transformation = "nsu"          // strip non-alphanumerics
	TransformTexto       Transformation = "texto"        // trimmed passthrough
)

// Valid reports whether t is one of the known transformations.
func (t Transformation) Valid() bool {
	switch t {
	case TransformMonetarioBR, TransformMonetarioUS, TransformPercentual,
		TransformDataBR, TransformDataUS, TransformNSU, TransformTexto:
		return true
	}
	return false
}

// CanonicalField identifies a field of CanonicalTransaction that a template
// column can map onto.
type CanonicalField string

const (
	FieldNSU               CanonicalField = "nsu"
	FieldSaleDate          CanonicalField = "sale_date"
	FieldPayoutDate        CanonicalField = "payout_date"
	FieldGrossAmount       CanonicalField = "gross_amount"
	FieldNetAmount         CanonicalField = "net_amount"
	FieldFeeAmount         CanonicalField = "fee_amount"
	FieldInstallmentNumber CanonicalField = "installment_number"
	FieldInstallmentCount  CanonicalField = "installment_count"
	FieldCardBrand         CanonicalField = "card_brand"
	FieldTransactionType   CanonicalField = "transaction_type"
	FieldLotID             CanonicalField = "lot_id"
)

// RequiredFields are the canonical fields the reconciliation engine cannot
// work without. A template whose mappings do not cover all of them is
// rejected at registration.
var RequiredFields = []CanonicalField{
	FieldNSU,
	FieldSaleDate,
	FieldGrossAmount,
	FieldNetAmount,
}

// ColumnMapping binds one source column of a statement file to a canonical
// field through a named transformation.
type ColumnMapping struct {
	SourceColumn string         `json:"source_column"`
	Field        CanonicalField `json:"field"`
	Transform    Transformation `json:"transform"`
	Required     bool           `json:"required"`
}

// Template describes how to parse one acquirer's statement layout.
// Templates are immutable once registered; a layout change means a new
// version that supersedes the old one.
type Template struct {
	ID        int64           `json:"id"`
	TenantID  int64           `json:"tenant_id"`
	Acquirer  string          `json:"acquirer"`
	Version   int             `json:"version"`
	FileType  string          `json:"file_type"` // "csv", "txt" or "ofx"
	Delimiter string          `json:"delimiter"` // ";" or ","
	Encoding  string          `json:"encoding"`  // "utf-8" or "latin1"
	HasHeader bool            `json:"has_header"`
	SkipLines int             `json:"skip_lines"`
	Mappings  []ColumnMapping `json:"mappings"`
	CreatedAt time.Time       `json:"created_at"`
}

// MappingFor returns the mapping for a canonical field, if the template has one.
func (t *Template) MappingFor(field CanonicalField) (ColumnMapping, bool) {
	for _, m := range t.Mappings {
		if m.Field == field {
			return m, true
		}
	}
	return ColumnMapping{}, false
}

// RequiredColumns returns the source column names the template marks required,
// used as the detection fingerprint for CSV headers.
func (t *Template) RequiredColumns() []string {
	var cols []string
	for _, m := range t.Mappings {
		if m.Required {
			cols = append(cols, m.SourceColumn)
		}
	}
	return cols
}

// Validate checks structural soundness: known transformations, no duplicate
// target fields, and coverage of every engine-required field.
func (t *Template) Validate() error {
	if t.Acquirer == "" {
		return fmt.Errorf("template: acquirer is required")
	}
	if t.Version < 1 {
		return fmt.Errorf("template: version must be >= 1, got %d", t.Version)
	}
	seen := make(map[CanonicalField]bool)
	for _, m := range t.Mappings {
		if !m.Transform.Valid() {
			return fmt.Errorf("template %s v%d: unknown transformation %q for column %q", t.Acquirer, t.Version, m.Transform, m.SourceColumn)
		}
		if seen[m.Field] {
			return fmt.Errorf("template %s v%d: field %q mapped twice", t.Acquirer, t.Version, m.Field)
		}
		seen[m.Field] = true
	}
	for _, f := range RequiredFields {
		if !seen[f] {
			return fmt.Errorf("template %s v%d: missing mapping for required field %q", t.Acquirer, t.Version, f)
		}
	}
	return nil
}
