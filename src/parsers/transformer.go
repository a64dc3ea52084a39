package parsers

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/username/petshop/backend/src/models"
)

// MappingError reports a row the transformer had to abandon: a required
// column was absent or its value could not be transformed. It is row-scoped;
// the caller skips the row and continues with the rest of the file.
type MappingError struct {
	Row    int
	Field  models.CanonicalField
	Column string
	Reason string
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("row %d: required field %q (column %q): %s", e.Row, e.Field, e.Column, e.Reason)
}

var nonAlphanumeric = regexp.MustCompile(`[^a-zA-Z0-9]`)

// RowTransformer applies a template's column mappings to raw statement rows.
type RowTransformer struct {
	template *models.Template
}

func NewRowTransformer(tpl *models.Template) *RowTransformer {
	return &RowTransformer{template: tpl}
}

// Transform maps one raw row to a canonical transaction.
// Required-field failures return a *MappingError and no transaction.
// Optional-field failures null the field and append a warning instead.
func (t *RowTransformer) Transform(row models.RawRow) (*models.CanonicalTransaction, []models.FieldWarning, error) {
	tx := &models.CanonicalTransaction{
		Acquirer:  t.template.Acquirer,
		Status:    models.StatusPending,
		SourceRow: row.Number,
	}
	var warnings []models.FieldWarning

	for _, m := range t.template.Mappings {
		raw, ok := lookupColumn(row.Values, m.SourceColumn)
		if !ok {
			if m.Required {
				return nil, warnings, &MappingError{Row: row.Number, Field: m.Field, Column: m.SourceColumn, Reason: "column absent from row"}
			}
			warnings = append(warnings, models.FieldWarning{Row: row.Number, Field: m.Field, Column: m.SourceColumn, Reason: "column absent from row"})
			continue
		}

		if err := applyField(tx, m, raw); err != nil {
			if m.Required {
				return nil, warnings, &MappingError{Row: row.Number, Field: m.Field, Column: m.SourceColumn, Reason: err.Error()}
			}
			warnings = append(warnings, models.FieldWarning{Row: row.Number, Field: m.Field, Column: m.SourceColumn, Value: raw, Reason: err.Error()})
		}
	}

	tx.PayoutKind = classifyPayout(tx)
	return tx, warnings, nil
}

// lookupColumn is case- and whitespace-insensitive on header names; acquirer
// exports are not consistent about either.
func lookupColumn(values map[string]string, column string) (string, bool) {
	if v, ok := values[column]; ok {
		return v, true
	}
	want := strings.ToUpper(strings.TrimSpace(column))
	for k, v := range values {
		if strings.ToUpper(strings.TrimSpace(k)) == want {
			return v, true
		}
	}
	return "", false
}

// applyField transforms one raw value and stores it on the matching
// canonical field.
func applyField(tx *models.CanonicalTransaction, m models.ColumnMapping, raw string) error {
	switch m.Field {
	case models.FieldNSU:
		v, err := transformString(m.Transform, raw)
		if err != nil {
			return err
		}
		if v == "" {
			return fmt.Errorf("empty after normalization")
		}
		tx.NSU = v
	case models.FieldSaleDate:
		v, err := transformDate(m.Transform, raw)
		if err != nil {
			return err
		}
		tx.SaleDate = v
	case models.FieldPayoutDate:
		v, err := transformDate(m.Transform, raw)
		if err != nil {
			return err
		}
		tx.PayoutDate = v
	case models.FieldGrossAmount:
		v, err := transformDecimal(m.Transform, raw)
		if err != nil {
			return err
		}
		tx.GrossAmount = v
	case models.FieldNetAmount:
		v, err := transformDecimal(m.Transform, raw)
		if err != nil {
			return err
		}
		tx.NetAmount = v
	case models.FieldFeeAmount:
		v, err := transformDecimal(m.Transform, raw)
		if err != nil {
			return err
		}
		tx.FeeAmount = v
	case models.FieldInstallmentNumber:
		v, err := transformInt(m.Transform, raw)
		if err != nil {
			return err
		}
		tx.InstallmentNumber = v
	case models.FieldInstallmentCount:
		v, err := transformInt(m.Transform, raw)
		if err != nil {
			return err
		}
		tx.InstallmentCount = v
	case models.FieldCardBrand:
		v, err := transformString(m.Transform, raw)
		if err != nil {
			return err
		}
		tx.CardBrand = v
	case models.FieldTransactionType:
		v, err := transformString(m.Transform, raw)
		if err != nil {
			return err
		}
		tx.TransactionType = v
	case models.FieldLotID:
		v, err := transformString(m.Transform, raw)
		if err != nil {
			return err
		}
		tx.LotID = v
	default:
		return fmt.Errorf("unknown canonical field %q", m.Field)
	}
	return nil
}

// ApplyTransformation resolves a named transformation against a raw string.
// The switch is exhaustive over models.Transformation: an unrecognized name
// is an error, never a silent passthrough.
func ApplyTransformation(tr models.Transformation, raw string) (interface{}, error) {
	switch tr {
	case models.TransformMonetarioBR:
		return parseMonetarioBR(raw)
	case models.TransformMonetarioUS:
		return parseMonetarioUS(raw)
	case models.TransformPercentual:
		return parsePercentual(raw)
	case models.TransformDataBR:
		return parseDate(raw, "02/01/2006")
	case models.TransformDataUS:
		return parseDate(raw, "2006-01-02")
	case models.TransformNSU:
		return nonAlphanumeric.ReplaceAllString(strings.TrimSpace(raw), ""), nil
	case models.TransformTexto:
		return strings.TrimSpace(raw), nil
	default:
		return nil, fmt.Errorf("unknown transformation %q", tr)
	}
}

func transformDecimal(tr models.Transformation, raw string) (decimal.Decimal, error) {
	v, err := ApplyTransformation(tr, raw)
	if err != nil {
		return decimal.Zero, err
	}
	d, ok := v.(decimal.Decimal)
	if !ok {
		return decimal.Zero, fmt.Errorf("transformation %q does not produce an amount", tr)
	}
	return d, nil
}

func transformDate(tr models.Transformation, raw string) (time.Time, error) {
	v, err := ApplyTransformation(tr, raw)
	if err != nil {
		return time.Time{}, err
	}
	d, ok := v.(time.Time)
	if !ok {
		return time.Time{}, fmt.Errorf("transformation %q does not produce a date", tr)
	}
	return d, nil
}

func transformString(tr models.Transformation, raw string) (string, error) {
	v, err := ApplyTransformation(tr, raw)
	if err != nil {
		return "", err
	}
	s, ok := v.(string)
	if !ok {
		return "", fmt.Errorf("transformation %q does not produce text", tr)
	}
	return s, nil
}

func transformInt(tr models.Transformation, raw string) (int, error) {
	s, err := transformString(tr, raw)
	if err != nil {
		return 0, err
	}
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("not a whole number: %q", s)
	}
	return n, nil
}

// parseMonetarioBR parses Brazilian currency display values:
// "R$ 1.234,56" -> 1234.56. The thousands separator is '.', decimals ','.
func parseMonetarioBR(raw string) (decimal.Decimal, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return decimal.Zero, fmt.Errorf("empty amount")
	}
	negative := strings.HasPrefix(s, "-") || (strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")"))
	s = strings.NewReplacer("R$", "", "(", "", ")", "", "-", "", " ", "", " ", "").Replace(s)
	s = strings.ReplaceAll(s, ".", "")
	s = strings.ReplaceAll(s, ",", ".")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid BR amount %q", raw)
	}
	if negative {
		d = d.Neg()
	}
	return d, nil
}

// FormatMonetarioBR is the inverse of parseMonetarioBR, used on reports:
// 1234.56 -> "R$ 1.234,56".
func FormatMonetarioBR(d decimal.Decimal) string {
	neg := d.IsNegative()
	s := d.Abs().StringFixed(2)
	parts := strings.SplitN(s, ".", 2)
	intPart, decPart := parts[0], parts[1]

	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteRune('.')
		}
		b.WriteRune(r)
	}
	out := "R$ " + b.String() + "," + decPart
	if neg {
		out = "-" + out
	}
	return out
}

func parseMonetarioUS(raw string) (decimal.Decimal, error) {
	s := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q", raw)
	}
	return d, nil
}

// parsePercentual accepts either decimal separator: "3,19" or "3.19".
func parsePercentual(raw string) (decimal.Decimal, error) {
	s := strings.TrimSuffix(strings.TrimSpace(raw), "%")
	s = strings.TrimSpace(s)
	if strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ".", "")
		s = strings.ReplaceAll(s, ",", ".")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid percentage %q", raw)
	}
	return d, nil
}

func parseDate(raw, layout string) (time.Time, error) {
	s := strings.TrimSpace(raw)
	t, err := time.Parse(layout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q (expected %s)", raw, layout)
	}
	return t, nil
}

// classifyPayout decides how the acquirer settled this row. Antecipação rows
// carry it in the transaction type; a row covering every installment at once
// is treated the same way.
func classifyPayout(tx *models.CanonicalTransaction) models.PayoutType {
	lower := strings.ToLower(tx.TransactionType)
	if strings.Contains(lower, "antecip") {
		return models.PayoutAntecipacao
	}
	if tx.InstallmentCount > 1 && tx.InstallmentNumber == 0 {
		return models.PayoutAntecipacao
	}
	return models.PayoutParcela
}
