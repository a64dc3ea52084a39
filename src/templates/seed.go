package templates

import (
	"errors"

	"github.com/username/petshop/backend/src/logger"
	"github.com/username/petshop/backend/src/models"
)

// SeedTemplates registers the built-in acquirer layouts for a tenant.
// Already-registered versions are skipped, so seeding is safe to repeat.
func SeedTemplates(registry Registry, tenantID int64) error {
	for _, tpl := range BuiltinTemplates(tenantID) {
		_, err := registry.RegisterTemplate(tpl)
		if err != nil {
			if errors.Is(err, ErrDuplicateTemplateVersion) {
				continue
			}
			return err
		}
	}
	logger.L.Info("Seed templates ensured", "tenantID", tenantID)
	return nil
}

// BuiltinTemplates returns version-1 templates for the acquirers we ship
// support for. Column names follow each acquirer's exported statement layout.
func BuiltinTemplates(tenantID int64) []*models.Template {
	return []*models.Template{
		stoneTemplate(tenantID),
		cieloTemplate(tenantID),
		redeTemplate(tenantID),
		pagseguroTemplate(tenantID),
		bankOFXTemplate(tenantID),
	}
}

func stoneTemplate(tenantID int64) *models.Template {
	return &models.Template{
		TenantID:  tenantID,
		Acquirer:  "stone",
		Version:   1,
		FileType:  "csv",
		Delimiter: ";",
		Encoding:  "utf-8",
		HasHeader: true,
		SkipLines: 0,
		Mappings: []models.ColumnMapping{
			{SourceColumn: "STONE ID", Field: models.FieldNSU, Transform: models.TransformNSU, Required: true},
			{SourceColumn: "DATA DA VENDA", Field: models.FieldSaleDate, Transform: models.TransformDataBR, Required: true},
			{SourceColumn: "DATA DE VENCIMENTO", Field: models.FieldPayoutDate, Transform: models.TransformDataBR, Required: true},
			{SourceColumn: "VALOR BRUTO", Field: models.FieldGrossAmount, Transform: models.TransformMonetarioBR, Required: true},
			{SourceColumn: "VALOR LIQUIDO", Field: models.FieldNetAmount, Transform: models.TransformMonetarioBR, Required: true},
			{SourceColumn: "DESCONTO DE MDR", Field: models.FieldFeeAmount, Transform: models.TransformMonetarioBR, Required: true},
			{SourceColumn: "N DA PARCELA", Field: models.FieldInstallmentNumber, Transform: models.TransformTexto, Required: true},
			{SourceColumn: "QTD DE PARCELAS", Field: models.FieldInstallmentCount, Transform: models.TransformTexto, Required: true},
			{SourceColumn: "BANDEIRA", Field: models.FieldCardBrand, Transform: models.TransformTexto, Required: true},
			{SourceColumn: "TIPO DE TRANSACAO", Field: models.FieldTransactionType, Transform: models.TransformTexto, Required: false},
			{SourceColumn: "LOTE", Field: models.FieldLotID, Transform: models.TransformTexto, Required: false},
		},
	}
}

func cieloTemplate(tenantID int64) *models.Template {
	return &models.Template{
		TenantID:  tenantID,
		Acquirer:  "cielo",
		Version:   1,
		FileType:  "csv",
		Delimiter: ";",
		Encoding:  "latin1",
		HasHeader: true,
		SkipLines: 1, // Cielo exports carry a report title line above the header
		Mappings: []models.ColumnMapping{
			{SourceColumn: "NSU/DOC", Field: models.FieldNSU, Transform: models.TransformNSU, Required: true},
			{SourceColumn: "DATA DA VENDA", Field: models.FieldSaleDate, Transform: models.TransformDataBR, Required: true},
			{SourceColumn: "DATA PREVISTA DE PAGAMENTO", Field: models.FieldPayoutDate, Transform: models.TransformDataBR, Required: false},
			{SourceColumn: "VALOR DA VENDA", Field: models.FieldGrossAmount, Transform: models.TransformMonetarioBR, Required: true},
			{SourceColumn: "VALOR LIQUIDO DA VENDA", Field: models.FieldNetAmount, Transform: models.TransformMonetarioBR, Required: true},
			{SourceColumn: "TAXA ADMINISTRATIVA", Field: models.FieldFeeAmount, Transform: models.TransformMonetarioBR, Required: false},
			{SourceColumn: "PARCELA", Field: models.FieldInstallmentNumber, Transform: models.TransformTexto, Required: false},
			{SourceColumn: "TOTAL DE PARCELAS", Field: models.FieldInstallmentCount, Transform: models.TransformTexto, Required: false},
			{SourceColumn: "BANDEIRA", Field: models.FieldCardBrand, Transform: models.TransformTexto, Required: false},
			{SourceColumn: "FORMA DE PAGAMENTO", Field: models.FieldTransactionType, Transform: models.TransformTexto, Required: false},
			{SourceColumn: "RESUMO DE OPERACAO", Field: models.FieldLotID, Transform: models.TransformTexto, Required: false},
		},
	}
}

func redeTemplate(tenantID int64) *models.Template {
	return &models.Template{
		TenantID:  tenantID,
		Acquirer:  "rede",
		Version:   1,
		FileType:  "csv",
		Delimiter: ";",
		Encoding:  "latin1",
		HasHeader: true,
		SkipLines: 0,
		Mappings: []models.ColumnMapping{
			{SourceColumn: "NSU", Field: models.FieldNSU, Transform: models.TransformNSU, Required: true},
			{SourceColumn: "DATA DA VENDA", Field: models.FieldSaleDate, Transform: models.TransformDataBR, Required: true},
			{SourceColumn: "DATA DO CREDITO", Field: models.FieldPayoutDate, Transform: models.TransformDataBR, Required: false},
			{SourceColumn: "VALOR DA VENDA", Field: models.FieldGrossAmount, Transform: models.TransformMonetarioBR, Required: true},
			{SourceColumn: "VALOR LIQUIDO", Field: models.FieldNetAmount, Transform: models.TransformMonetarioBR, Required: true},
			{SourceColumn: "MDR", Field: models.FieldFeeAmount, Transform: models.TransformMonetarioBR, Required: false},
			{SourceColumn: "PARCELA", Field: models.FieldInstallmentNumber, Transform: models.TransformTexto, Required: false},
			{SourceColumn: "QUANTIDADE DE PARCELAS", Field: models.FieldInstallmentCount, Transform: models.TransformTexto, Required: false},
			{SourceColumn: "BANDEIRA", Field: models.FieldCardBrand, Transform: models.TransformTexto, Required: false},
			{SourceColumn: "MODALIDADE", Field: models.FieldTransactionType, Transform: models.TransformTexto, Required: false},
			{SourceColumn: "NUMERO DO RV", Field: models.FieldLotID, Transform: models.TransformTexto, Required: false},
		},
	}
}

func pagseguroTemplate(tenantID int64) *models.Template {
	return &models.Template{
		TenantID:  tenantID,
		Acquirer:  "pagseguro",
		Version:   1,
		FileType:  "csv",
		Delimiter: ";",
		Encoding:  "utf-8",
		HasHeader: true,
		SkipLines: 0,
		Mappings: []models.ColumnMapping{
			{SourceColumn: "Codigo_Transacao", Field: models.FieldNSU, Transform: models.TransformNSU, Required: true},
			{SourceColumn: "Data_Transacao", Field: models.FieldSaleDate, Transform: models.TransformDataBR, Required: true},
			{SourceColumn: "Data_Compensacao", Field: models.FieldPayoutDate, Transform: models.TransformDataBR, Required: false},
			{SourceColumn: "Valor_Bruto", Field: models.FieldGrossAmount, Transform: models.TransformMonetarioBR, Required: true},
			{SourceColumn: "Valor_Liquido", Field: models.FieldNetAmount, Transform: models.TransformMonetarioBR, Required: true},
			{SourceColumn: "Valor_Taxa", Field: models.FieldFeeAmount, Transform: models.TransformMonetarioBR, Required: false},
			{SourceColumn: "Parcela", Field: models.FieldInstallmentNumber, Transform: models.TransformTexto, Required: false},
			{SourceColumn: "Total_Parcelas", Field: models.FieldInstallmentCount, Transform: models.TransformTexto, Required: false},
			{SourceColumn: "Bandeira", Field: models.FieldCardBrand, Transform: models.TransformTexto, Required: false},
			{SourceColumn: "Tipo_Pagamento", Field: models.FieldTransactionType, Transform: models.TransformTexto, Required: false},
		},
	}
}

// bankOFXTemplate covers generic bank OFX statements. OFX rows are already
// structured, so the mapping only names the canonical fields the OFX reader
// emits; transformations are plain.
func bankOFXTemplate(tenantID int64) *models.Template {
	return &models.Template{
		TenantID:  tenantID,
		Acquirer:  "banco_ofx",
		Version:   1,
		FileType:  "ofx",
		Delimiter: "",
		Encoding:  "utf-8",
		HasHeader: false,
		SkipLines: 0,
		Mappings: []models.ColumnMapping{
			{SourceColumn: "FITID", Field: models.FieldNSU, Transform: models.TransformNSU, Required: true},
			{SourceColumn: "DTPOSTED", Field: models.FieldSaleDate, Transform: models.TransformDataUS, Required: true},
			{SourceColumn: "DTPOSTED", Field: models.FieldPayoutDate, Transform: models.TransformDataUS, Required: false},
			{SourceColumn: "TRNAMT", Field: models.FieldGrossAmount, Transform: models.TransformMonetarioUS, Required: true},
			{SourceColumn: "TRNAMT", Field: models.FieldNetAmount, Transform: models.TransformMonetarioUS, Required: true},
			{SourceColumn: "TRNTYPE", Field: models.FieldTransactionType, Transform: models.TransformTexto, Required: false},
			{SourceColumn: "MEMO", Field: models.FieldCardBrand, Transform: models.TransformTexto, Required: false},
		},
	}
}
