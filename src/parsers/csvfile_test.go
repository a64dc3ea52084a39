package parsers

import (
	"bytes"
	"errors"
	"os"
	"testing"

	"github.com/username/petshop/backend/src/logger"
)

func TestMain(m *testing.M) {
	logger.InitLogger("error")
	os.Exit(m.Run())
}

func TestReadStatementRows(t *testing.T) {
	tpl := testTemplate()
	content := "STONE ID;DATA DA VENDA;VALOR BRUTO\n" +
		"111;10/01/2026;R$ 50,00\n" +
		"\n" +
		"222;11/01/2026;R$ 75,00\n"

	rows, err := ReadStatementRows(bytes.NewReader([]byte(content)), tpl)
	if err != nil {
		t.Fatalf("ReadStatementRows: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows (blank line skipped), got %d", len(rows))
	}
	if rows[0].Values["STONE ID"] != "111" || rows[1].Values["STONE ID"] != "222" {
		t.Errorf("unexpected row values: %+v", rows)
	}
	if rows[0].Number != 2 {
		t.Errorf("expected first data row at line 2, got %d", rows[0].Number)
	}
}

func TestReadStatementRowsSkipLines(t *testing.T) {
	tpl := testTemplate()
	tpl.SkipLines = 1
	content := "RELATORIO DE VENDAS - JANEIRO\n" +
		"STONE ID;DATA DA VENDA;VALOR BRUTO\n" +
		"333;12/01/2026;R$ 20,00\n"

	rows, err := ReadStatementRows(bytes.NewReader([]byte(content)), tpl)
	if err != nil {
		t.Fatalf("ReadStatementRows: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if rows[0].Values["VALOR BRUTO"] != "R$ 20,00" {
		t.Errorf("unexpected value: %q", rows[0].Values["VALOR BRUTO"])
	}
}

func TestReadStatementRowsLatin1(t *testing.T) {
	tpl := testTemplate()
	tpl.Encoding = "latin1"
	// "DESCRIÇÃO" in ISO-8859-1: Ç = 0xC7, Ã = 0xC3.
	header := append([]byte("STONE ID;DESCRI"), 0xC7, 0xC3)
	header = append(header, []byte("O\n")...)
	body := []byte("444;venda avulsa\n")

	rows, err := ReadStatementRows(bytes.NewReader(append(header, body...)), tpl)
	if err != nil {
		t.Fatalf("ReadStatementRows latin1: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if _, ok := rows[0].Values["DESCRIÇÃO"]; !ok {
		t.Errorf("latin1 header not decoded, keys: %v", rows[0].Values)
	}
}

func TestReadStatementRowsEmptyFile(t *testing.T) {
	_, err := ReadStatementRows(bytes.NewReader(nil), testTemplate())
	if !errors.Is(err, ErrEmptyFile) {
		t.Fatalf("expected ErrEmptyFile, got %v", err)
	}
}

func TestReadStatementRowsRejectsOFXTemplate(t *testing.T) {
	tpl := testTemplate()
	tpl.FileType = "ofx"
	_, err := ReadStatementRows(bytes.NewReader([]byte("<OFX>")), tpl)
	if !errors.Is(err, ErrUnsupportedTemplate) {
		t.Fatalf("expected ErrUnsupportedTemplate, got %v", err)
	}
}

func TestReadStatementRowsUnknownEncoding(t *testing.T) {
	tpl := testTemplate()
	tpl.Encoding = "utf-16"
	_, err := ReadStatementRows(bytes.NewReader([]byte("a;b\n")), tpl)
	if !errors.Is(err, ErrUnreadableEncoding) {
		t.Fatalf("expected ErrUnreadableEncoding, got %v", err)
	}
}

func TestReadStatementRowsRaggedRow(t *testing.T) {
	content := "STONE ID;DATA DA VENDA;VALOR BRUTO\n555;13/01/2026\n"
	rows, err := ReadStatementRows(bytes.NewReader([]byte(content)), testTemplate())
	if err != nil {
		t.Fatalf("ReadStatementRows: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected ragged row to survive, got %d rows", len(rows))
	}
	if _, ok := rows[0].Values["VALOR BRUTO"]; ok {
		t.Errorf("missing trailing column should stay absent, got %+v", rows[0].Values)
	}
	if _, ok := rows[0].Values["DATA DA VENDA"]; !ok {
		t.Errorf("present columns should be kept: %+v", rows[0].Values)
	}
}
