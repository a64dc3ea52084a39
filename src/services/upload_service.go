// backend/src/services/upload_service.go
package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/username/petshop/backend/src/logger"
	"github.com/username/petshop/backend/src/metrics"
	"github.com/username/petshop/backend/src/models"
	"github.com/username/petshop/backend/src/parsers"
	"github.com/username/petshop/backend/src/reconciliation"
	"github.com/username/petshop/backend/src/templates"
)

const (
	ckLatestRunReport = "agg_latest_run_report_tenant_%d"

	DefaultCacheExpiration = 15 * time.Minute
	CacheCleanupInterval   = 30 * time.Minute
)

// ofxFallbackAcquirer is the template used for OFX files whose issuing bank
// has no dedicated template of its own.
const ofxFallbackAcquirer = "banco_ofx"

type uploadServiceImpl struct {
	registry    templates.Registry
	repo        reconciliation.Repository
	engine      *reconciliation.Engine
	reporter    *metrics.Reporter
	reportCache *cache.Cache
}

func NewUploadService(
	registry templates.Registry,
	repo reconciliation.Repository,
	engine *reconciliation.Engine,
	reporter *metrics.Reporter,
	reportCache *cache.Cache,
) UploadService {
	return &uploadServiceImpl{
		registry:    registry,
		repo:        repo,
		engine:      engine,
		reporter:    reporter,
		reportCache: reportCache,
	}
}

func (s *uploadServiceImpl) ProcessUpload(ctx context.Context, fileReader io.Reader, tenantID, userID int64, opts UploadOptions) (*models.RunReport, error) {
	overallStartTime := time.Now()
	runID := uuid.NewString()
	logger.L.Info("ProcessUpload START", "tenantID", tenantID, "userID", userID, "runID", runID, "filename", opts.Filename)

	content, err := io.ReadAll(fileReader)
	if err != nil {
		return nil, fmt.Errorf("%w: reading upload: %v", ErrParsingFailed, err)
	}
	if len(bytes.TrimSpace(content)) == 0 {
		return nil, fmt.Errorf("%w: %v", ErrParsingFailed, parsers.ErrEmptyFile)
	}

	tpl, detection, err := s.resolveTemplate(tenantID, content, opts)
	if err != nil {
		return nil, err
	}

	report := &models.RunReport{
		RunID:     runID,
		TenantID:  tenantID,
		Acquirer:  tpl.Acquirer,
		FileType:  tpl.FileType,
		StartedAt: overallStartTime,
	}
	if detection != nil {
		report.Acquirer = detection.Acquirer
		report.Confidence = detection.Confidence
	}

	rows, err := s.readRows(content, tpl)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParsingFailed, err)
	}
	report.RowsRead = len(rows)

	// Row transformation with row-level failure isolation: one bad row is
	// reported and skipped, the rest of the file goes through.
	transformer := parsers.NewRowTransformer(tpl)
	for _, row := range rows {
		tx, warnings, err := transformer.Transform(row)
		report.Warnings = append(report.Warnings, warnings...)
		if err != nil {
			var mapErr *parsers.MappingError
			if errors.As(err, &mapErr) {
				logger.L.Warn("Row skipped by transformer", "runID", runID, "acquirer", tpl.Acquirer, "row", mapErr.Row, "field", mapErr.Field, "reason", mapErr.Reason)
				report.RowErrors = append(report.RowErrors, mapErr.Error())
				report.RowsSkipped++
				continue
			}
			return nil, fmt.Errorf("%w: row %d: %v", ErrParsingFailed, row.Number, err)
		}

		tx.TenantID = tenantID
		tx.RunID = runID
		if _, err := s.repo.InsertTransaction(tx); err != nil {
			logger.L.Error("Failed to persist canonical transaction", "runID", runID, "row", row.Number, "nsu", tx.NSU, "error", err)
			report.RowErrors = append(report.RowErrors, fmt.Sprintf("row %d: %v", row.Number, err))
			report.RowsSkipped++
			continue
		}
		report.RowsImported++
	}

	stages, err := s.engine.Run(ctx, tenantID, runID)
	report.Stages = stages
	if err != nil {
		return nil, fmt.Errorf("reconciliation pipeline: %w", err)
	}

	txs, err := s.repo.TransactionsByRun(tenantID, runID)
	if err != nil {
		return nil, fmt.Errorf("loading run transactions for metrics: %w", err)
	}
	snapshot, err := s.reporter.Report(tenantID, dateOnly(time.Now()), txs)
	if err != nil {
		return nil, fmt.Errorf("storing health snapshot: %w", err)
	}
	report.Snapshot = snapshot
	report.FinishedAt = time.Now()

	s.reportCache.Set(fmt.Sprintf(ckLatestRunReport, tenantID), report, cache.NoExpiration)

	logger.L.Info("ProcessUpload END", "tenantID", tenantID, "runID", runID,
		"rowsImported", report.RowsImported, "rowsSkipped", report.RowsSkipped,
		"health", snapshot.Health, "duration", time.Since(overallStartTime))
	return report, nil
}

// resolveTemplate picks the parsing template: an explicit acquirer always
// wins; otherwise the format detector proposes one. Undetected is a normal
// outcome surfaced as ErrFormatUndetected for a manual pick.
func (s *uploadServiceImpl) resolveTemplate(tenantID int64, content []byte, opts UploadOptions) (*models.Template, *parsers.Detection, error) {
	if opts.Acquirer != "" {
		tpl, err := s.registry.GetTemplate(tenantID, opts.Acquirer, opts.TemplateVersion)
		if err != nil {
			return nil, nil, err
		}
		return tpl, nil, nil
	}

	known, err := s.registry.ListTemplates(tenantID)
	if err != nil {
		return nil, nil, fmt.Errorf("listing templates for detection: %w", err)
	}

	detection := parsers.NewDetector(known).Detect(content, opts.Filename, opts.TypeHint)
	if detection == nil {
		return nil, nil, ErrFormatUndetected
	}
	logger.L.Info("Statement format detected", "tenantID", tenantID,
		"acquirer", detection.Acquirer, "fileType", detection.FileType, "confidence", detection.Confidence)

	tpl, err := s.registry.GetTemplate(tenantID, detection.Acquirer, 0)
	if err != nil {
		if detection.FileType == "ofx" && errors.Is(err, templates.ErrTemplateNotFound) {
			// A recognized bank without its own template still parses with
			// the generic OFX layout.
			tpl, err = s.registry.GetTemplate(tenantID, ofxFallbackAcquirer, 0)
		}
		if err != nil {
			return nil, nil, err
		}
	}
	return tpl, detection, nil
}

func (s *uploadServiceImpl) readRows(content []byte, tpl *models.Template) ([]models.RawRow, error) {
	if tpl.FileType == "ofx" {
		return parsers.ReadOFXRows(content)
	}
	return parsers.ReadStatementRows(bytes.NewReader(content), tpl)
}

func (s *uploadServiceImpl) GetLatestRunReport(tenantID int64) (*models.RunReport, error) {
	if cached, found := s.reportCache.Get(fmt.Sprintf(ckLatestRunReport, tenantID)); found {
		return cached.(*models.RunReport), nil
	}
	return nil, ErrNoRunReport
}

func (s *uploadServiceImpl) GetRunTransactions(tenantID int64, runID string) ([]*models.CanonicalTransaction, error) {
	if strings.TrimSpace(runID) == "" {
		return nil, fmt.Errorf("runID is required")
	}
	return s.repo.TransactionsByRun(tenantID, runID)
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
