package parsers

import (
	"math"
	"strings"

	"github.com/username/petshop/backend/src/models"
)

// Detection is the format detector's proposal for an uploaded file.
// A nil Detection means "undetected" and is a normal outcome; the caller
// asks the user to pick a template by hand.
type Detection struct {
	Acquirer   string  `json:"acquirer"`
	FileType   string  `json:"file_type"`
	Confidence float64 `json:"confidence"`
}

// csvMatchThreshold is the minimum required-column match ratio for a CSV
// header fingerprint to be accepted (7 of Stone's 9 columns).
const csvMatchThreshold = 7.0 / 9.0

// acquirerPriority fixes the tie-break order when two templates score the
// same: the earlier entry wins. Deterministic and covered by tests.
var acquirerPriority = []string{"stone", "cielo", "rede", "pagseguro", "banco_ofx"}

// ofxBankKeywords maps upper-cased substrings found in OFX content to the
// issuing institution. Checked in declaration order; first match wins.
var ofxBankKeywords = []struct {
	Acquirer string
	Keywords []string
}{
	{"stone", []string{"STONE PAGAMENTOS", "STONE INSTITUICAO"}},
	{"itau", []string{"ITAU", "ITAÚ"}},
	{"bradesco", []string{"BRADESCO"}},
	{"santander", []string{"SANTANDER"}},
	{"banco_do_brasil", []string{"BANCO DO BRASIL", "BCO DO BRASIL"}},
	{"caixa", []string{"CAIXA ECONOMICA", "CEF"}},
	{"sicredi", []string{"SICREDI"}},
	{"nubank", []string{"NU PAGAMENTOS", "NUBANK"}},
	{"inter", []string{"BANCO INTER"}},
}

// filenamePatterns is the static fallback table: a substring of the
// lower-cased filename maps straight to an acquirer.
var filenamePatterns = []struct {
	Pattern  string
	Acquirer string
}{
	{"stone", "stone"},
	{"cielo", "cielo"},
	{"rede", "rede"},
	{"pagseguro", "pagseguro"},
	{"pagbank", "pagseguro"},
	{"extrato", "banco_ofx"},
}

const filenameMatchConfidence = 0.6

// Detector proposes an acquirer/template for an uploaded statement file.
type Detector struct {
	templates []*models.Template
}

// NewDetector builds a detector over the candidate templates, ordered by
// acquirerPriority so equal fingerprint scores resolve deterministically.
func NewDetector(tpls []*models.Template) *Detector {
	ordered := make([]*models.Template, 0, len(tpls))
	for _, name := range acquirerPriority {
		for _, tpl := range tpls {
			if strings.EqualFold(tpl.Acquirer, name) {
				ordered = append(ordered, tpl)
			}
		}
	}
	for _, tpl := range tpls {
		if priorityIndex(tpl.Acquirer) == -1 {
			ordered = append(ordered, tpl)
		}
	}
	return &Detector{templates: ordered}
}

func priorityIndex(acquirer string) int {
	for i, name := range acquirerPriority {
		if strings.EqualFold(acquirer, name) {
			return i
		}
	}
	return -1
}

// Detect inspects raw file content plus optional filename and file-type
// hints. It never returns an error: no match is signaled by nil.
func (d *Detector) Detect(content []byte, filename, typeHint string) *Detection {
	text := string(content)
	upper := strings.ToUpper(text)

	if isOFX(upper) || strings.EqualFold(typeHint, "ofx") {
		return d.detectOFX(upper)
	}

	if det := d.detectCSVHeader(text); det != nil {
		return det
	}
	return detectByFilename(filename, typeHint)
}

func isOFX(upperContent string) bool {
	return strings.Contains(upperContent, "<OFX>") || strings.Contains(upperContent, "<STMTTRN>")
}

// detectOFX scans the upper-cased content against the bank keyword table.
// An institution match is taken as certain; bare OFX without a recognized
// bank still parses, just with low confidence.
func (d *Detector) detectOFX(upper string) *Detection {
	if !isOFX(upper) {
		return nil
	}
	for _, entry := range ofxBankKeywords {
		for _, kw := range entry.Keywords {
			if strings.Contains(upper, kw) {
				return &Detection{Acquirer: entry.Acquirer, FileType: "ofx", Confidence: 1.0}
			}
		}
	}
	return &Detection{Acquirer: "banco_ofx", FileType: "ofx", Confidence: 0.5}
}

// detectCSVHeader fingerprints candidate header lines against each CSV
// template's required columns. The highest match ratio at or above the
// threshold wins; scores tie to the earlier template in priority order.
func (d *Detector) detectCSVHeader(text string) *Detection {
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	if len(lines) == 0 {
		return nil
	}

	var best *Detection
	var bestRatio float64

	for _, tpl := range d.templates {
		if tpl.FileType != "csv" && tpl.FileType != "txt" {
			continue
		}
		required := tpl.RequiredColumns()
		if len(required) == 0 || tpl.SkipLines >= len(lines) {
			continue
		}
		headerLine := lines[tpl.SkipLines]
		ratio := headerMatchRatio(headerLine, required)
		if ratio > bestRatio {
			bestRatio = ratio
			best = &Detection{
				Acquirer:   tpl.Acquirer,
				FileType:   tpl.FileType,
				Confidence: roundRatio(ratio),
			}
		}
	}

	if best == nil || bestRatio+1e-9 < csvMatchThreshold {
		return nil
	}
	return best
}

// headerMatchRatio splits the line on the candidate delimiters (';' first,
// then ',') and returns the best matched-required/total-required ratio.
func headerMatchRatio(headerLine string, required []string) float64 {
	var best float64
	for _, delim := range []string{";", ","} {
		cols := strings.Split(headerLine, delim)
		set := make(map[string]bool, len(cols))
		for _, c := range cols {
			set[normalizeHeader(c)] = true
		}
		matched := 0
		for _, want := range required {
			if set[normalizeHeader(want)] {
				matched++
			}
		}
		ratio := float64(matched) / float64(len(required))
		if ratio > best {
			best = ratio
		}
	}
	return best
}

func normalizeHeader(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Trim(s, `"`)
	return strings.ToUpper(strings.TrimSpace(s))
}

func roundRatio(r float64) float64 {
	return math.Round(r*100) / 100
}

func detectByFilename(filename, typeHint string) *Detection {
	lower := strings.ToLower(filename)
	if lower == "" {
		return nil
	}
	fileType := "csv"
	if typeHint != "" {
		fileType = strings.ToLower(typeHint)
	} else if strings.HasSuffix(lower, ".txt") {
		fileType = "txt"
	} else if strings.HasSuffix(lower, ".ofx") {
		fileType = "ofx"
	}
	for _, p := range filenamePatterns {
		if strings.Contains(lower, p.Pattern) {
			return &Detection{Acquirer: p.Acquirer, FileType: fileType, Confidence: filenameMatchConfidence}
		}
	}
	return nil
}
