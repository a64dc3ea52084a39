// backend/src/handlers/health_handler.go
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/username/petshop/backend/src/logger"
	"github.com/username/petshop/backend/src/metrics"
	"github.com/username/petshop/backend/src/utils"
)

type HealthHandler struct {
	reporter *metrics.Reporter
}

func NewHealthHandler(reporter *metrics.Reporter) *HealthHandler {
	return &HealthHandler{reporter: reporter}
}

// HandleGetHealthSnapshot returns the stored reconciliation health snapshot
// for the tenant. The "date" query parameter (YYYY-MM-DD) defaults to today.
func (h *HealthHandler) HandleGetHealthSnapshot(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := GetTenantIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "tenant not found in context", http.StatusUnauthorized)
		return
	}

	processDate := time.Now()
	if d := r.URL.Query().Get("date"); d != "" {
		parsed, err := time.Parse("2006-01-02", d)
		if err != nil {
			utils.SendJSONError(w, "date must be in YYYY-MM-DD format", http.StatusBadRequest)
			return
		}
		processDate = parsed
	}

	snap, err := h.reporter.Latest(tenantID, processDate)
	if err != nil {
		logger.L.Error("Failed to load health snapshot", "tenantID", tenantID, "date", processDate.Format("2006-01-02"), "error", err)
		utils.SendJSONError(w, "Error loading health snapshot", http.StatusInternalServerError)
		return
	}
	if snap == nil {
		utils.SendJSONError(w, "No health snapshot for this tenant and date", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		logger.L.Error("Error encoding JSON response for health snapshot", "tenantID", tenantID, "error", err)
	}
}
