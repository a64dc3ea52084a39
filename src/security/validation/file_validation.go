package validation

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/username/petshop/backend/src/logger"
)

// ErrValidationFailed is the sentinel wrapped by every upload validation error.
var ErrValidationFailed = errors.New("file validation failed")

// AllowedClientContentTypes is a map for quick lookup of allowed client-declared MIME types.
// Statement exports show up as CSV, plain text or the OFX vendor types.
var AllowedClientContentTypes = map[string]bool{
	"text/csv":                     true,
	"application/csv":              true,
	"application/vnd.ms-excel":     true, // Often used for CSV by older Excel
	"text/plain":                   true, // CSV/TXT statements are plain text
	"application/x-ofx":            true,
	"application/ofx":              true,
	"application/octet-stream":     true, // Fallback, but be more cautious
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet": false, // .xlsx is not a statement format we accept
}

// ValidateClientContentType checks the Content-Type header provided by the client.
func ValidateClientContentType(contentType string) error {
	base := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	if allowed, exists := AllowedClientContentTypes[base]; !exists || !allowed {
		logger.L.Warn("Disallowed client-declared Content-Type", "contentType", contentType)
		return fmt.Errorf("%w: client-declared file type '%s' is not allowed for statement upload", ErrValidationFailed, contentType)
	}
	return nil
}

// ValidateFileContentByMagicBytes checks the actual file content signature (magic bytes).
// It returns the detected content type and an error if validation fails.
func ValidateFileContentByMagicBytes(file io.ReadSeeker) (string, error) {
	if file == nil {
		return "", fmt.Errorf("%w: file is nil", ErrValidationFailed)
	}

	buffer := make([]byte, 512) // Read first 512 bytes for MIME detection
	n, err := file.Read(buffer)
	if err != nil && err != io.EOF {
		return "", fmt.Errorf("%w: failed to read file for content type checking: %v", ErrValidationFailed, err)
	}

	// IMPORTANT: Reset the file read pointer to the beginning so the actual parser can read the full file.
	_, seekErr := file.Seek(0, io.SeekStart)
	if seekErr != nil {
		return "", fmt.Errorf("%w: failed to reset file read pointer: %v", ErrValidationFailed, seekErr)
	}

	detectedContentType := http.DetectContentType(buffer[:n])
	detectedContentType = strings.ToLower(strings.Split(detectedContentType, ";")[0]) // Normalize (e.g. "text/plain; charset=utf-8")

	// Statements are text-based: CSV, TXT and SGML/XML OFX all detect as a
	// text type. Anything binary is rejected outright.
	allowedDetectedTypes := map[string]bool{
		"text/plain":               true,
		"text/csv":                 true,
		"text/xml":                 true, // OFX v2
		"application/csv":          true,
		"application/octet-stream": true, // Be cautious with this; strict parsing is key later
	}

	if !allowedDetectedTypes[detectedContentType] {
		logger.L.Warn("Disallowed detected file content type (magic bytes)", "detectedContentType", detectedContentType)
		return detectedContentType, fmt.Errorf("%w: detected file content type '%s' is not consistent with a statement file", ErrValidationFailed, detectedContentType)
	}

	logger.L.Debug("File content type (magic bytes) validated", "detectedContentType", detectedContentType)
	return detectedContentType, nil
}
