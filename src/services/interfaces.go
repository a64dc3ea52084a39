package services

import (
	"context"
	"errors"
	"io"

	"github.com/username/petshop/backend/src/models"
)

var (
	// ErrParsingFailed wraps statement read/decode failures (file-level:
	// unreadable encoding, empty file, broken OFX).
	ErrParsingFailed = errors.New("statement parsing failed")
	// ErrFormatUndetected means no template matched the uploaded file. The
	// caller should prompt for a manual template selection.
	ErrFormatUndetected = errors.New("statement format not detected")
	// ErrNoRunReport means the tenant has no cached reconciliation run yet.
	ErrNoRunReport = errors.New("no reconciliation run available")
)

// UploadOptions carries the caller-provided hints for one statement upload.
// Acquirer forces a template and skips detection; version 0 means latest.
type UploadOptions struct {
	Filename        string
	TypeHint        string // "csv", "txt" or "ofx"
	Acquirer        string
	TemplateVersion int
}

// UploadService runs the full statement pipeline: detection, row
// transformation, the three reconciliation stages and the health snapshot.
type UploadService interface {
	ProcessUpload(ctx context.Context, fileReader io.Reader, tenantID, userID int64, opts UploadOptions) (*models.RunReport, error)
	GetLatestRunReport(tenantID int64) (*models.RunReport, error)
	GetRunTransactions(tenantID int64, runID string) ([]*models.CanonicalTransaction, error)
}
