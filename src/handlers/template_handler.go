// backend/src/handlers/template_handler.go
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/username/petshop/backend/src/logger"
	"github.com/username/petshop/backend/src/models"
	"github.com/username/petshop/backend/src/templates"
	"github.com/username/petshop/backend/src/utils"
)

type TemplateHandler struct {
	registry templates.Registry
}

func NewTemplateHandler(registry templates.Registry) *TemplateHandler {
	return &TemplateHandler{registry: registry}
}

// HandleRegisterTemplate registers a new template version for the tenant.
// The tenant in the body is overridden by the token's tenant.
func (h *TemplateHandler) HandleRegisterTemplate(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := GetTenantIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "tenant not found in context", http.StatusUnauthorized)
		return
	}

	var tpl models.Template
	if err := json.NewDecoder(r.Body).Decode(&tpl); err != nil {
		logger.L.Warn("Failed to decode template payload", "tenantID", tenantID, "error", err)
		utils.SendJSONError(w, "Invalid template payload", http.StatusBadRequest)
		return
	}
	tpl.TenantID = tenantID

	id, err := h.registry.RegisterTemplate(&tpl)
	if err != nil {
		switch {
		case errors.Is(err, templates.ErrDuplicateTemplateVersion):
			utils.SendJSONError(w, err.Error(), http.StatusConflict)
		case errors.Is(err, templates.ErrIncompleteTemplate):
			utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		default:
			logger.L.Error("Failed to register template", "tenantID", tenantID, "acquirer", tpl.Acquirer, "error", err)
			utils.SendJSONError(w, "Failed to register template", http.StatusInternalServerError)
		}
		return
	}

	logger.L.Info("Template registered", "tenantID", tenantID, "acquirer", tpl.Acquirer, "version", tpl.Version, "templateID", id)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(map[string]int64{"id": id}); err != nil {
		logger.L.Error("Error encoding JSON response for template registration", "tenantID", tenantID, "error", err)
	}
}

// HandleListTemplates lists every template version registered for the tenant.
func (h *TemplateHandler) HandleListTemplates(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := GetTenantIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "tenant not found in context", http.StatusUnauthorized)
		return
	}

	tpls, err := h.registry.ListTemplates(tenantID)
	if err != nil {
		logger.L.Error("Failed to list templates", "tenantID", tenantID, "error", err)
		utils.SendJSONError(w, fmt.Sprintf("Error listing templates for tenant %d", tenantID), http.StatusInternalServerError)
		return
	}
	if tpls == nil {
		tpls = []*models.Template{}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(tpls); err != nil {
		logger.L.Error("Error encoding JSON response for template list", "tenantID", tenantID, "error", err)
	}
}
