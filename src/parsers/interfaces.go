package parsers

import (
	"github.com/username/petshop/backend/src/models"
)

// Transformer converts one raw statement row into a canonical transaction.
// Implemented by RowTransformer; the upload service depends on the interface
// so tests can substitute a fixed mapping.
type Transformer interface {
	Transform(row models.RawRow) (*models.CanonicalTransaction, []models.FieldWarning, error)
}

// FormatDetector proposes an acquirer for an uploaded file. A nil result is
// the normal "undetected" outcome, not an error.
type FormatDetector interface {
	Detect(content []byte, filename, typeHint string) *Detection
}
