package parsers

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/username/petshop/backend/src/logger"
	"github.com/username/petshop/backend/src/models"
	"github.com/username/petshop/backend/src/security/validation"
	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/transform"
)

var (
	ErrEmptyFile           = errors.New("statement file is empty")
	ErrUnreadableEncoding  = errors.New("statement file could not be decoded")
	ErrUnsupportedTemplate = errors.New("template file type not supported by this reader")
)

// ReadStatementRows reads a delimited statement file according to a
// template's layout (encoding, skip lines, header, delimiter) and returns
// one RawRow per data line, keyed by header name. Ragged rows are allowed;
// the transformer decides whether a missing column matters.
func ReadStatementRows(file io.Reader, tpl *models.Template) ([]models.RawRow, error) {
	if tpl.FileType != "csv" && tpl.FileType != "txt" {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedTemplate, tpl.FileType)
	}

	decoded, err := decodeReader(file, tpl.Encoding)
	if err != nil {
		return nil, err
	}

	reader := csv.NewReader(decoded)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	if tpl.Delimiter != "" {
		reader.Comma = rune(tpl.Delimiter[0])
	} else {
		reader.Comma = ';'
	}

	lineNum := 0
	for i := 0; i < tpl.SkipLines; i++ {
		lineNum++
		if _, err := reader.Read(); err != nil {
			if err == io.EOF {
				return nil, ErrEmptyFile
			}
			return nil, fmt.Errorf("skipping line %d: %w", lineNum, err)
		}
	}

	var header []string
	if tpl.HasHeader {
		lineNum++
		record, err := reader.Read()
		if err != nil {
			if err == io.EOF {
				return nil, ErrEmptyFile
			}
			return nil, fmt.Errorf("reading header: %w", err)
		}
		header = make([]string, len(record))
		for i, col := range record {
			header[i] = strings.TrimSpace(strings.TrimPrefix(col, "\uFEFF"))
		}
	}

	var rows []models.RawRow
	for {
		lineNum++
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			// A malformed line is row-scoped: log it and keep going.
			logger.L.Warn("Skipping unreadable statement line", "line", lineNum, "error", err)
			continue
		}
		if isBlankRecord(record) {
			continue
		}

		values := make(map[string]string, len(record))
		for i, v := range record {
			key := fmt.Sprintf("col_%d", i+1)
			if i < len(header) && header[i] != "" {
				key = header[i]
			}
			values[key] = validation.StripUnprintable(v)
		}
		rows = append(rows, models.RawRow{Number: lineNum, Values: values})
	}

	if len(rows) == 0 && !tpl.HasHeader {
		return nil, ErrEmptyFile
	}
	return rows, nil
}

func decodeReader(file io.Reader, encoding string) (io.Reader, error) {
	switch strings.ToLower(encoding) {
	case "", "utf-8", "utf8":
		return file, nil
	case "latin1", "latin-1", "iso-8859-1":
		return transform.NewReader(file, charmap.ISO8859_1.NewDecoder()), nil
	default:
		return nil, fmt.Errorf("%w: unknown encoding %q", ErrUnreadableEncoding, encoding)
	}
}

func isBlankRecord(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
