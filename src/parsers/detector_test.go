package parsers

import (
	"math"
	"testing"

	"github.com/username/petshop/backend/src/templates"
)

const stoneHeader = "STONE ID;DATA DA VENDA;DATA DE VENCIMENTO;VALOR BRUTO;VALOR LIQUIDO;DESCONTO DE MDR;N DA PARCELA;QTD DE PARCELAS;BANDEIRA"

func newTestDetector() *Detector {
	return NewDetector(templates.BuiltinTemplates(1))
}

func TestDetectStoneHeaderFullMatch(t *testing.T) {
	content := []byte(stoneHeader + "\n1234;15/01/2026;16/02/2026;R$ 100,00;R$ 97,00;R$ 3,00;1;1;VISA\n")
	det := newTestDetector().Detect(content, "export.csv", "")
	if det == nil {
		t.Fatal("expected a detection for a full Stone header")
	}
	if det.Acquirer != "stone" || det.FileType != "csv" {
		t.Errorf("expected stone/csv, got %s/%s", det.Acquirer, det.FileType)
	}
	if det.Confidence != 1.0 {
		t.Errorf("expected confidence 1.0, got %v", det.Confidence)
	}
}

func TestDetectStonePartialHeaderAboveThreshold(t *testing.T) {
	// 7 of Stone's 9 required columns present.
	content := []byte("STONE ID;DATA DA VENDA;DATA DE VENCIMENTO;VALOR BRUTO;VALOR LIQUIDO;DESCONTO DE MDR;N DA PARCELA\n")
	det := newTestDetector().Detect(content, "export.csv", "")
	if det == nil {
		t.Fatal("expected a detection at 7 of 9 columns")
	}
	if det.Acquirer != "stone" {
		t.Errorf("expected stone, got %s", det.Acquirer)
	}
	if math.Abs(det.Confidence-0.78) > 1e-9 {
		t.Errorf("expected confidence 0.78, got %v", det.Confidence)
	}
}

func TestDetectBelowThresholdIsUndetected(t *testing.T) {
	content := []byte("STONE ID;VALOR BRUTO;BANDEIRA\nx;y;z\n")
	if det := newTestDetector().Detect(content, "statement.csv", ""); det != nil {
		t.Fatalf("expected nil detection below match threshold, got %+v", det)
	}
}

func TestDetectOFXWithBankKeyword(t *testing.T) {
	content := []byte("OFXHEADER:100\n<OFX><SIGNONMSGSRSV1><SONRS><FI><ORG>STONE PAGAMENTOS S.A.</ORG></FI></SONRS></SIGNONMSGSRSV1><STMTTRN></STMTTRN></OFX>")
	det := newTestDetector().Detect(content, "extrato.ofx", "")
	if det == nil {
		t.Fatal("expected OFX detection")
	}
	if det.Acquirer != "stone" || det.FileType != "ofx" || det.Confidence != 1.0 {
		t.Errorf("expected stone/ofx/1.0, got %s/%s/%v", det.Acquirer, det.FileType, det.Confidence)
	}
}

func TestDetectGenericOFXLowConfidence(t *testing.T) {
	content := []byte("<OFX><BANKMSGSRSV1><STMTTRN></STMTTRN></BANKMSGSRSV1></OFX>")
	det := newTestDetector().Detect(content, "", "")
	if det == nil {
		t.Fatal("expected generic OFX detection")
	}
	if det.Acquirer != "banco_ofx" || det.Confidence != 0.5 {
		t.Errorf("expected banco_ofx/0.5, got %s/%v", det.Acquirer, det.Confidence)
	}
}

func TestDetectFilenameFallback(t *testing.T) {
	content := []byte("some;unrecognized;content\n1;2;3\n")
	det := newTestDetector().Detect(content, "vendas_cielo_jan.csv", "")
	if det == nil {
		t.Fatal("expected filename fallback detection")
	}
	if det.Acquirer != "cielo" || det.Confidence != 0.6 {
		t.Errorf("expected cielo/0.6, got %s/%v", det.Acquirer, det.Confidence)
	}
}

func TestDetectNothingMatches(t *testing.T) {
	content := []byte("totally;unrelated\n")
	if det := newTestDetector().Detect(content, "data.csv", ""); det != nil {
		t.Fatalf("expected nil, got %+v", det)
	}
}

func TestDetectQuotedCommaDelimitedHeader(t *testing.T) {
	content := []byte(`"STONE ID","DATA DA VENDA","DATA DE VENCIMENTO","VALOR BRUTO","VALOR LIQUIDO","DESCONTO DE MDR","N DA PARCELA","QTD DE PARCELAS","BANDEIRA"` + "\n")
	det := newTestDetector().Detect(content, "", "")
	if det == nil {
		t.Fatal("expected detection on quoted comma-separated header")
	}
	if det.Acquirer != "stone" || det.Confidence != 1.0 {
		t.Errorf("expected stone/1.0, got %s/%v", det.Acquirer, det.Confidence)
	}
}
