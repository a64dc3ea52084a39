package parsers

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/username/petshop/backend/src/models"
)

func testTemplate() *models.Template {
	return &models.Template{
		TenantID:  1,
		Acquirer:  "stone",
		Version:   1,
		FileType:  "csv",
		Delimiter: ";",
		Encoding:  "utf-8",
		HasHeader: true,
		Mappings: []models.ColumnMapping{
			{SourceColumn: "STONE ID", Field: models.FieldNSU, Transform: models.TransformNSU, Required: true},
			{SourceColumn: "DATA DA VENDA", Field: models.FieldSaleDate, Transform: models.TransformDataBR, Required: true},
			{SourceColumn: "DATA DE VENCIMENTO", Field: models.FieldPayoutDate, Transform: models.TransformDataBR, Required: false},
			{SourceColumn: "VALOR BRUTO", Field: models.FieldGrossAmount, Transform: models.TransformMonetarioBR, Required: true},
			{SourceColumn: "VALOR LIQUIDO", Field: models.FieldNetAmount, Transform: models.TransformMonetarioBR, Required: true},
			{SourceColumn: "DESCONTO DE MDR", Field: models.FieldFeeAmount, Transform: models.TransformMonetarioBR, Required: false},
			{SourceColumn: "N DA PARCELA", Field: models.FieldInstallmentNumber, Transform: models.TransformTexto, Required: false},
			{SourceColumn: "QTD DE PARCELAS", Field: models.FieldInstallmentCount, Transform: models.TransformTexto, Required: false},
			{SourceColumn: "TIPO DE TRANSACAO", Field: models.FieldTransactionType, Transform: models.TransformTexto, Required: false},
		},
	}
}

func stoneRow(number int) models.RawRow {
	return models.RawRow{
		Number: number,
		Values: map[string]string{
			"STONE ID":           "1234-5678",
			"DATA DA VENDA":      "15/01/2026",
			"DATA DE VENCIMENTO": "16/02/2026",
			"VALOR BRUTO":        "R$ 1.234,56",
			"VALOR LIQUIDO":      "R$ 1.195,18",
			"DESCONTO DE MDR":    "R$ 39,38",
			"N DA PARCELA":       "2",
			"QTD DE PARCELAS":    "3",
			"TIPO DE TRANSACAO":  "Parcelado sem juros",
		},
	}
}

func TestTransformFullRow(t *testing.T) {
	tr := NewRowTransformer(testTemplate())
	tx, warnings, err := tr.Transform(stoneRow(2))
	if err != nil {
		t.Fatalf("Transform returned error: %v", err)
	}
	if len(warnings) != 0 {
		t.Fatalf("expected no warnings, got %v", warnings)
	}

	if tx.NSU != "12345678" {
		t.Errorf("NSU: expected 12345678, got %q", tx.NSU)
	}
	if got := tx.SaleDate.Format("2006-01-02"); got != "2026-01-15" {
		t.Errorf("SaleDate: expected 2026-01-15, got %s", got)
	}
	if got := tx.PayoutDate.Format("2006-01-02"); got != "2026-02-16" {
		t.Errorf("PayoutDate: expected 2026-02-16, got %s", got)
	}
	if !tx.GrossAmount.Equal(decimal.RequireFromString("1234.56")) {
		t.Errorf("GrossAmount: expected 1234.56, got %s", tx.GrossAmount)
	}
	if !tx.NetAmount.Equal(decimal.RequireFromString("1195.18")) {
		t.Errorf("NetAmount: expected 1195.18, got %s", tx.NetAmount)
	}
	if !tx.FeeAmount.Equal(decimal.RequireFromString("39.38")) {
		t.Errorf("FeeAmount: expected 39.38, got %s", tx.FeeAmount)
	}
	if tx.InstallmentNumber != 2 || tx.InstallmentCount != 3 {
		t.Errorf("installments: expected 2/3, got %d/%d", tx.InstallmentNumber, tx.InstallmentCount)
	}
	if tx.Status != models.StatusPending {
		t.Errorf("Status: expected pending, got %s", tx.Status)
	}
	if tx.PayoutKind != models.PayoutParcela {
		t.Errorf("PayoutKind: expected parcela, got %s", tx.PayoutKind)
	}
	if tx.SourceRow != 2 {
		t.Errorf("SourceRow: expected 2, got %d", tx.SourceRow)
	}
}

func TestTransformRequiredFieldFailure(t *testing.T) {
	tr := NewRowTransformer(testTemplate())

	row := stoneRow(7)
	row.Values["VALOR BRUTO"] = "abc"

	_, _, err := tr.Transform(row)
	if err == nil {
		t.Fatal("expected error for unparseable required amount")
	}
	var mapErr *MappingError
	if !errors.As(err, &mapErr) {
		t.Fatalf("expected *MappingError, got %T: %v", err, err)
	}
	if mapErr.Row != 7 || mapErr.Field != models.FieldGrossAmount {
		t.Errorf("unexpected MappingError contents: %+v", mapErr)
	}
}

func TestTransformMissingRequiredColumn(t *testing.T) {
	tr := NewRowTransformer(testTemplate())

	row := stoneRow(3)
	delete(row.Values, "STONE ID")

	_, _, err := tr.Transform(row)
	var mapErr *MappingError
	if !errors.As(err, &mapErr) {
		t.Fatalf("expected *MappingError, got %v", err)
	}
	if mapErr.Field != models.FieldNSU {
		t.Errorf("expected failure on nsu field, got %s", mapErr.Field)
	}
}

func TestTransformOptionalFieldWarning(t *testing.T) {
	tr := NewRowTransformer(testTemplate())

	row := stoneRow(4)
	row.Values["DATA DE VENCIMENTO"] = "not-a-date"

	tx, warnings, err := tr.Transform(row)
	if err != nil {
		t.Fatalf("optional field failure must not abort the row: %v", err)
	}
	if len(warnings) != 1 {
		t.Fatalf("expected 1 warning, got %d", len(warnings))
	}
	if warnings[0].Field != models.FieldPayoutDate || warnings[0].Row != 4 {
		t.Errorf("unexpected warning: %+v", warnings[0])
	}
	if !tx.PayoutDate.IsZero() {
		t.Errorf("PayoutDate should stay zero after a warning, got %v", tx.PayoutDate)
	}
}

func TestTransformHeaderLookupIsCaseInsensitive(t *testing.T) {
	tr := NewRowTransformer(testTemplate())

	row := stoneRow(5)
	v := row.Values["STONE ID"]
	delete(row.Values, "STONE ID")
	row.Values["  stone id "] = v

	tx, _, err := tr.Transform(row)
	if err != nil {
		t.Fatalf("Transform returned error: %v", err)
	}
	if tx.NSU != "12345678" {
		t.Errorf("expected NSU via case-insensitive lookup, got %q", tx.NSU)
	}
}

func TestClassifyPayoutAntecipacao(t *testing.T) {
	tr := NewRowTransformer(testTemplate())

	row := stoneRow(6)
	row.Values["TIPO DE TRANSACAO"] = "Antecipação de recebíveis"

	tx, _, err := tr.Transform(row)
	if err != nil {
		t.Fatalf("Transform returned error: %v", err)
	}
	if tx.PayoutKind != models.PayoutAntecipacao {
		t.Errorf("expected antecipacao, got %s", tx.PayoutKind)
	}
}

func TestParseMonetarioBR(t *testing.T) {
	cases := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"R$ 1.234,56", "1234.56", false},
		{"1.234,56", "1234.56", false},
		{"0,01", "0.01", false},
		{"-R$ 10,00", "-10", false},
		{"(1.000,00)", "-1000", false},
		{"", "", true},
		{"abc", "", true},
	}
	for _, c := range cases {
		got, err := parseMonetarioBR(c.in)
		if c.wantErr {
			if err == nil {
				t.Errorf("parseMonetarioBR(%q): expected error, got %s", c.in, got)
			}
			continue
		}
		if err != nil {
			t.Errorf("parseMonetarioBR(%q): %v", c.in, err)
			continue
		}
		if !got.Equal(decimal.RequireFromString(c.want)) {
			t.Errorf("parseMonetarioBR(%q): expected %s, got %s", c.in, c.want, got)
		}
	}
}

func TestFormatMonetarioBRRoundTrip(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"1234.56", "R$ 1.234,56"},
		{"0.01", "R$ 0,01"},
		{"1000000", "R$ 1.000.000,00"},
		{"-42.70", "-R$ 42,70"},
	}
	for _, c := range cases {
		d := decimal.RequireFromString(c.in)
		formatted := FormatMonetarioBR(d)
		if formatted != c.want {
			t.Errorf("FormatMonetarioBR(%s): expected %q, got %q", c.in, c.want, formatted)
		}
		back, err := parseMonetarioBR(formatted)
		if err != nil {
			t.Errorf("round trip of %s: %v", c.in, err)
			continue
		}
		if !back.Equal(d) {
			t.Errorf("round trip of %s: got %s", c.in, back)
		}
	}
}

func TestApplyTransformation(t *testing.T) {
	if v, err := ApplyTransformation(models.TransformPercentual, "3,19"); err != nil {
		t.Errorf("percentual with comma: %v", err)
	} else if !v.(decimal.Decimal).Equal(decimal.RequireFromString("3.19")) {
		t.Errorf("percentual with comma: got %v", v)
	}
	if v, err := ApplyTransformation(models.TransformPercentual, "3.19%"); err != nil {
		t.Errorf("percentual with dot: %v", err)
	} else if !v.(decimal.Decimal).Equal(decimal.RequireFromString("3.19")) {
		t.Errorf("percentual with dot: got %v", v)
	}
	if v, err := ApplyTransformation(models.TransformNSU, " 12-3/4a "); err != nil || v.(string) != "1234a" {
		t.Errorf("nsu: got %v, %v", v, err)
	}
	if v, err := ApplyTransformation(models.TransformTexto, "  hello  "); err != nil || v.(string) != "hello" {
		t.Errorf("texto: got %v, %v", v, err)
	}
	if v, err := ApplyTransformation(models.TransformDataUS, "2026-03-01"); err != nil {
		t.Errorf("data_us: %v", err)
	} else if got := v.(time.Time); got.Day() != 1 || got.Month() != time.March {
		t.Errorf("data_us: got %v", got)
	}
}

func TestApplyTransformationUnknownIsRejected(t *testing.T) {
	if _, err := ApplyTransformation(models.Transformation("uppercase"), "x"); err == nil {
		t.Fatal("unknown transformation must be an error, not a passthrough")
	}
}
