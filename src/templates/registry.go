package templates

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/username/petshop/backend/src/logger"
	"github.com/username/petshop/backend/src/models"
)

var (
	ErrTemplateNotFound         = errors.New("template not found")
	ErrDuplicateTemplateVersion = errors.New("template version already registered")
	ErrIncompleteTemplate       = errors.New("template does not cover required fields")
)

const (
	ckTemplate             = "tpl_%d_%s_%d" // tenant, acquirer, version (0 = latest)
	DefaultCacheExpiration = 15 * time.Minute
	CacheCleanupInterval   = 30 * time.Minute
)

// Registry stores per-acquirer parsing templates. Templates are immutable:
// a layout change is registered as a new version, never an in-place edit.
type Registry interface {
	// GetTemplate returns the template for (tenant, acquirer, version).
	// version 0 selects the latest registered version.
	GetTemplate(tenantID int64, acquirer string, version int) (*models.Template, error)
	// RegisterTemplate persists a new template version and returns its id.
	// Duplicate (tenant, acquirer, version) is rejected with ErrDuplicateTemplateVersion.
	RegisterTemplate(tpl *models.Template) (int64, error)
	// ListTemplates returns every template registered for the tenant.
	ListTemplates(tenantID int64) ([]*models.Template, error)
}

type sqlRegistry struct {
	db    *sql.DB
	cache *cache.Cache
}

// NewRegistry returns a Registry backed by the given database with a
// read-through cache. The instance is injected wherever templates are
// needed; there is no package-level registry.
func NewRegistry(db *sql.DB) Registry {
	return &sqlRegistry{
		db:    db,
		cache: cache.New(DefaultCacheExpiration, CacheCleanupInterval),
	}
}

func (r *sqlRegistry) GetTemplate(tenantID int64, acquirer string, version int) (*models.Template, error) {
	key := fmt.Sprintf(ckTemplate, tenantID, strings.ToLower(acquirer), version)
	if cached, found := r.cache.Get(key); found {
		return cached.(*models.Template), nil
	}

	query := `SELECT id, tenant_id, acquirer, version, file_type, delimiter, encoding, has_header, skip_lines, mappings, created_at
		FROM templates WHERE tenant_id = ? AND LOWER(acquirer) = LOWER(?)`
	args := []interface{}{tenantID, acquirer}
	if version > 0 {
		query += " AND version = ?"
		args = append(args, version)
	}
	query += " ORDER BY version DESC LIMIT 1"

	tpl, err := scanTemplate(r.db.QueryRow(query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: acquirer=%s version=%d", ErrTemplateNotFound, acquirer, version)
		}
		return nil, fmt.Errorf("querying template: %w", err)
	}

	r.cache.Set(key, tpl, cache.DefaultExpiration)
	return tpl, nil
}

func (r *sqlRegistry) RegisterTemplate(tpl *models.Template) (int64, error) {
	if err := tpl.Validate(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrIncompleteTemplate, err)
	}

	mappingsJSON, err := json.Marshal(tpl.Mappings)
	if err != nil {
		return 0, fmt.Errorf("marshalling template mappings: %w", err)
	}

	res, err := r.db.Exec(`INSERT INTO templates (tenant_id, acquirer, version, file_type, delimiter, encoding, has_header, skip_lines, mappings)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tpl.TenantID, tpl.Acquirer, tpl.Version, tpl.FileType, tpl.Delimiter, tpl.Encoding, tpl.HasHeader, tpl.SkipLines, string(mappingsJSON))
	if err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "unique constraint failed") {
			return 0, fmt.Errorf("%w: acquirer=%s version=%d", ErrDuplicateTemplateVersion, tpl.Acquirer, tpl.Version)
		}
		return 0, fmt.Errorf("inserting template: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("reading template id: %w", err)
	}

	// Drop both the exact-version and latest-version cache entries.
	r.cache.Delete(fmt.Sprintf(ckTemplate, tpl.TenantID, strings.ToLower(tpl.Acquirer), tpl.Version))
	r.cache.Delete(fmt.Sprintf(ckTemplate, tpl.TenantID, strings.ToLower(tpl.Acquirer), 0))

	logger.L.Info("Template registered", "tenantID", tpl.TenantID, "acquirer", tpl.Acquirer, "version", tpl.Version, "id", id)
	return id, nil
}

func (r *sqlRegistry) ListTemplates(tenantID int64) ([]*models.Template, error) {
	rows, err := r.db.Query(`SELECT id, tenant_id, acquirer, version, file_type, delimiter, encoding, has_header, skip_lines, mappings, created_at
		FROM templates WHERE tenant_id = ? ORDER BY acquirer, version`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("listing templates: %w", err)
	}
	defer rows.Close()

	var list []*models.Template
	for rows.Next() {
		tpl, err := scanTemplate(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning template row: %w", err)
		}
		list = append(list, tpl)
	}
	return list, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanTemplate(row rowScanner) (*models.Template, error) {
	var tpl models.Template
	var mappingsJSON string
	var createdAt sql.NullString
	err := row.Scan(&tpl.ID, &tpl.TenantID, &tpl.Acquirer, &tpl.Version, &tpl.FileType,
		&tpl.Delimiter, &tpl.Encoding, &tpl.HasHeader, &tpl.SkipLines, &mappingsJSON, &createdAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(mappingsJSON), &tpl.Mappings); err != nil {
		return nil, fmt.Errorf("unmarshalling mappings for template %d: %w", tpl.ID, err)
	}
	if createdAt.Valid {
		if t, err := time.Parse("2006-01-02 15:04:05", createdAt.String); err == nil {
			tpl.CreatedAt = t
		}
	}
	return &tpl, nil
}
