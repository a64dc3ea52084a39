// backend/src/handlers/upload_handler.go
package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/username/petshop/backend/src/config"
	"github.com/username/petshop/backend/src/logger"
	"github.com/username/petshop/backend/src/security/validation"
	"github.com/username/petshop/backend/src/services"
	"github.com/username/petshop/backend/src/utils"
)

type UploadHandler struct {
	uploadService services.UploadService
}

func NewUploadHandler(service services.UploadService) *UploadHandler {
	return &UploadHandler{
		uploadService: service,
	}
}

// HandleUpload receives a statement file, validates it, and runs the full
// reconciliation pipeline. Optional form fields "acquirer", "type" and
// "template_version" force a template instead of relying on detection.
func (h *UploadHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	userID, ok := GetUserIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "authentication required or user ID not found in context", http.StatusUnauthorized)
		return
	}
	tenantID, ok := GetTenantIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "tenant not found in context", http.StatusUnauthorized)
		return
	}

	if err := r.ParseMultipartForm(config.Cfg.MaxUploadSizeBytes); err != nil {
		logger.L.Warn("Failed to parse multipart form or request too large", "tenantID", tenantID, "error", err, "limit", config.Cfg.MaxUploadSizeBytes)
		utils.SendJSONError(w, fmt.Sprintf("Failed to parse form or request too large (max %d MB)", config.Cfg.MaxUploadSizeBytes/(1024*1024)), http.StatusBadRequest)
		return
	}

	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		logger.L.Warn("Failed to retrieve file from request", "tenantID", tenantID, "error", err)
		utils.SendJSONError(w, "Failed to retrieve file from request. Ensure 'file' field is used.", http.StatusBadRequest)
		return
	}
	defer file.Close()

	if fileHeader.Size > config.Cfg.MaxUploadSizeBytes {
		logger.L.Warn("Uploaded file header reports size too large", "tenantID", tenantID, "fileSize", fileHeader.Size, "limit", config.Cfg.MaxUploadSizeBytes)
		utils.SendJSONError(w, fmt.Sprintf("File too large, max %d MB (header check)", config.Cfg.MaxUploadSizeBytes/(1024*1024)), http.StatusBadRequest)
		return
	}

	clientContentType := fileHeader.Header.Get("Content-Type")
	if err := validation.ValidateClientContentType(clientContentType); err != nil {
		logger.L.Warn("Invalid client-declared file type", "tenantID", tenantID, "contentType", clientContentType, "error", err)
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}

	detectedContentType, err := validation.ValidateFileContentByMagicBytes(file)
	if err != nil {
		logger.L.Warn("Server-side file content validation failed", "tenantID", tenantID, "filename", fileHeader.Filename, "error", err)
		utils.SendJSONError(w, err.Error(), http.StatusBadRequest)
		return
	}
	logger.L.Info("File content validated by magic bytes", "tenantID", tenantID, "filename", fileHeader.Filename, "clientType", clientContentType, "detectedType", detectedContentType)

	opts := services.UploadOptions{
		Filename: fileHeader.Filename,
		TypeHint: strings.ToLower(strings.TrimSpace(r.FormValue("type"))),
		Acquirer: strings.ToLower(strings.TrimSpace(r.FormValue("acquirer"))),
	}
	if v := r.FormValue("template_version"); v != "" {
		version, convErr := strconv.Atoi(v)
		if convErr != nil || version < 0 {
			utils.SendJSONError(w, "template_version must be a non-negative integer", http.StatusBadRequest)
			return
		}
		opts.TemplateVersion = version
	}

	logger.L.Info("Processing statement upload", "tenantID", tenantID, "userID", userID, "filename", fileHeader.Filename, "acquirerHint", opts.Acquirer)
	report, err := h.uploadService.ProcessUpload(r.Context(), file, tenantID, userID, opts)
	if err != nil {
		if errors.Is(err, services.ErrFormatUndetected) {
			logger.L.Warn("Statement format not detected", "tenantID", tenantID, "filename", fileHeader.Filename)
			utils.SendJSONError(w, "Could not detect the statement format. Provide the 'acquirer' field to force a template.", http.StatusUnprocessableEntity)
		} else if errors.Is(err, services.ErrParsingFailed) {
			logger.L.Warn("Upload processing failed due to statement parsing errors", "tenantID", tenantID, "filename", fileHeader.Filename, "error", err)
			utils.SendJSONError(w, fmt.Sprintf("Error parsing statement file: %v", err), http.StatusBadRequest)
		} else {
			logger.L.Error("Internal error processing upload", "tenantID", tenantID, "filename", fileHeader.Filename, "error", err)
			utils.SendJSONError(w, "An internal error occurred while processing the file. Please try again later.", http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(report); err != nil {
		logger.L.Error("Error encoding JSON response for run report", "tenantID", tenantID, "error", err)
	}
}

// HandleGetRunReport returns the latest reconciliation run report for the
// tenant, with ETag support so polling dashboards get 304s.
func (h *UploadHandler) HandleGetRunReport(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := GetTenantIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "tenant not found in context", http.StatusUnauthorized)
		return
	}
	logger.L.Debug("Handling GetRunReport request with ETag support", "tenantID", tenantID)

	report, err := h.uploadService.GetLatestRunReport(tenantID)
	if err != nil {
		if errors.Is(err, services.ErrNoRunReport) {
			utils.SendJSONError(w, "No reconciliation run available for this tenant yet", http.StatusNotFound)
			return
		}
		logger.L.Error("Error retrieving run report from service", "tenantID", tenantID, "error", err)
		utils.SendJSONError(w, fmt.Sprintf("Error retrieving run report for tenant %d: %v", tenantID, err), http.StatusInternalServerError)
		return
	}

	currentETag, etagErr := utils.GenerateETag(report)
	if etagErr != nil {
		logger.L.Error("Failed to generate ETag for run report", "tenantID", tenantID, "error", etagErr)
	}

	w.Header().Set("Cache-Control", "no-cache, private")

	if etagErr == nil && currentETag != "" {
		quotedETag := fmt.Sprintf("\"%s\"", currentETag)
		w.Header().Set("ETag", quotedETag)
		clientETag := r.Header.Get("If-None-Match")
		clientETags := strings.Split(clientETag, ",")
		for _, cETag := range clientETags {
			if strings.TrimSpace(cETag) == quotedETag {
				logger.L.Info("ETag match for run report", "tenantID", tenantID, "etag", currentETag)
				w.WriteHeader(http.StatusNotModified)
				return
			}
		}
	} else {
		logger.L.Warn("Proceeding without ETag check due to ETag generation error or empty ETag", "tenantID", tenantID)
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(report); err != nil {
		logger.L.Error("Error generating JSON response for run report", "tenantID", tenantID, "error", err)
	}
}

// HandleGetRunTransactions lists the canonical transactions of one run,
// identified by the "run_id" query parameter.
func (h *UploadHandler) HandleGetRunTransactions(w http.ResponseWriter, r *http.Request) {
	tenantID, ok := GetTenantIDFromContext(r.Context())
	if !ok {
		utils.SendJSONError(w, "tenant not found in context", http.StatusUnauthorized)
		return
	}

	runID := strings.TrimSpace(r.URL.Query().Get("run_id"))
	if runID == "" {
		utils.SendJSONError(w, "run_id query parameter is required", http.StatusBadRequest)
		return
	}

	txs, err := h.uploadService.GetRunTransactions(tenantID, runID)
	if err != nil {
		logger.L.Error("Error retrieving run transactions", "tenantID", tenantID, "runID", runID, "error", err)
		utils.SendJSONError(w, "Error retrieving run transactions", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(txs); err != nil {
		logger.L.Error("Error encoding JSON response for run transactions", "tenantID", tenantID, "error", err)
	}
}
