package templates

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/username/petshop/backend/src/database"
	"github.com/username/petshop/backend/src/logger"
	"github.com/username/petshop/backend/src/models"
)

func TestMain(m *testing.M) {
	logger.InitLogger("error")
	os.Exit(m.Run())
}

func newTestRegistry(t *testing.T) Registry {
	t.Helper()
	database.InitDB(filepath.Join(t.TempDir(), "test.db"))
	return NewRegistry(database.DB)
}

func minimalTemplate(tenantID int64, acquirer string, version int) *models.Template {
	return &models.Template{
		TenantID:  tenantID,
		Acquirer:  acquirer,
		Version:   version,
		FileType:  "csv",
		Delimiter: ";",
		Encoding:  "utf-8",
		HasHeader: true,
		Mappings: []models.ColumnMapping{
			{SourceColumn: "NSU", Field: models.FieldNSU, Transform: models.TransformNSU, Required: true},
			{SourceColumn: "DATA", Field: models.FieldSaleDate, Transform: models.TransformDataBR, Required: true},
			{SourceColumn: "BRUTO", Field: models.FieldGrossAmount, Transform: models.TransformMonetarioBR, Required: true},
			{SourceColumn: "LIQUIDO", Field: models.FieldNetAmount, Transform: models.TransformMonetarioBR, Required: true},
		},
	}
}

func TestRegisterAndGetTemplate(t *testing.T) {
	reg := newTestRegistry(t)

	id, err := reg.RegisterTemplate(minimalTemplate(1, "stone", 1))
	if err != nil {
		t.Fatalf("RegisterTemplate: %v", err)
	}
	if id == 0 {
		t.Fatal("expected a non-zero template id")
	}

	got, err := reg.GetTemplate(1, "stone", 1)
	if err != nil {
		t.Fatalf("GetTemplate: %v", err)
	}
	if got.Acquirer != "stone" || got.Version != 1 || len(got.Mappings) != 4 {
		t.Errorf("unexpected template: %+v", got)
	}
}

func TestGetTemplateLatestVersion(t *testing.T) {
	reg := newTestRegistry(t)

	for v := 1; v <= 3; v++ {
		if _, err := reg.RegisterTemplate(minimalTemplate(1, "cielo", v)); err != nil {
			t.Fatalf("registering version %d: %v", v, err)
		}
	}

	got, err := reg.GetTemplate(1, "cielo", 0)
	if err != nil {
		t.Fatalf("GetTemplate latest: %v", err)
	}
	if got.Version != 3 {
		t.Errorf("version 0 should resolve to the latest (3), got %d", got.Version)
	}

	got, err = reg.GetTemplate(1, "cielo", 2)
	if err != nil {
		t.Fatalf("GetTemplate v2: %v", err)
	}
	if got.Version != 2 {
		t.Errorf("expected pinned version 2, got %d", got.Version)
	}
}

func TestRegisterDuplicateVersionRejected(t *testing.T) {
	reg := newTestRegistry(t)

	if _, err := reg.RegisterTemplate(minimalTemplate(1, "rede", 1)); err != nil {
		t.Fatalf("first registration: %v", err)
	}
	_, err := reg.RegisterTemplate(minimalTemplate(1, "rede", 1))
	if !errors.Is(err, ErrDuplicateTemplateVersion) {
		t.Fatalf("expected ErrDuplicateTemplateVersion, got %v", err)
	}
}

func TestRegisterIncompleteTemplateRejected(t *testing.T) {
	reg := newTestRegistry(t)

	tpl := minimalTemplate(1, "stone", 1)
	tpl.Mappings = tpl.Mappings[:2] // drops gross and net amounts
	_, err := reg.RegisterTemplate(tpl)
	if !errors.Is(err, ErrIncompleteTemplate) {
		t.Fatalf("expected ErrIncompleteTemplate, got %v", err)
	}
}

func TestRegisterUnknownTransformationRejected(t *testing.T) {
	reg := newTestRegistry(t)

	tpl := minimalTemplate(1, "stone", 1)
	tpl.Mappings[0].Transform = models.Transformation("uppercase")
	_, err := reg.RegisterTemplate(tpl)
	if !errors.Is(err, ErrIncompleteTemplate) {
		t.Fatalf("expected ErrIncompleteTemplate for unknown transformation, got %v", err)
	}
}

func TestTemplatesAreTenantScoped(t *testing.T) {
	reg := newTestRegistry(t)

	if _, err := reg.RegisterTemplate(minimalTemplate(1, "stone", 1)); err != nil {
		t.Fatalf("RegisterTemplate: %v", err)
	}

	_, err := reg.GetTemplate(2, "stone", 0)
	if !errors.Is(err, ErrTemplateNotFound) {
		t.Fatalf("tenant 2 must not see tenant 1 templates, got %v", err)
	}

	list, err := reg.ListTemplates(2)
	if err != nil {
		t.Fatalf("ListTemplates: %v", err)
	}
	if len(list) != 0 {
		t.Errorf("expected empty list for tenant 2, got %d", len(list))
	}
}

func TestSeedTemplatesIsIdempotent(t *testing.T) {
	reg := newTestRegistry(t)

	if err := SeedTemplates(reg, 1); err != nil {
		t.Fatalf("first seed: %v", err)
	}
	if err := SeedTemplates(reg, 1); err != nil {
		t.Fatalf("second seed must skip existing versions: %v", err)
	}

	list, err := reg.ListTemplates(1)
	if err != nil {
		t.Fatalf("ListTemplates: %v", err)
	}
	if len(list) != len(BuiltinTemplates(1)) {
		t.Errorf("expected %d seeded templates, got %d", len(BuiltinTemplates(1)), len(list))
	}
}
