// Package handlers implements the codeflowd HTTP handlers.
package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/codeflow/types"
)

// Response is the uniform envelope for non-execution endpoints. Execution
// results are returned bare: types.ExecutionResult is already a complete,
// self-describing terminal shape.
type Response struct {
	Success   bool       `json:"success"`
	Data      any        `json:"data,omitempty"`
	Error     *ErrorInfo `json:"error,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// ErrorInfo is the wire form of one API error.
type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// WriteJSON writes data as a JSON response.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes a 200 envelope around data.
func WriteSuccess(w http.ResponseWriter, data any) {
	WriteJSON(w, http.StatusOK, Response{
		Success:   true,
		Data:      data,
		Timestamp: time.Now(),
	})
}

// WriteError writes an error envelope with a status derived from the code.
func WriteError(w http.ResponseWriter, err *types.ExecutionError, logger *zap.Logger) {
	status := httpStatusFor(err.Code)
	if logger != nil {
		logger.Warn("API error",
			zap.String("code", string(err.Code)),
			zap.String("message", err.Message),
			zap.Int("status", status))
	}
	WriteJSON(w, status, Response{
		Success:   false,
		Error:     &ErrorInfo{Code: string(err.Code), Message: err.Message},
		Timestamp: time.Now(),
	})
}

// httpStatusFor maps the failure taxonomy onto HTTP statuses for endpoints
// where the error belongs to the request itself rather than the executed code.
func httpStatusFor(code types.ErrorCode) int {
	switch code {
	case types.ErrMissingCode, types.ErrInputValidation,
		types.ErrUnsupportedLanguage, types.ErrUnsupportedRuntime:
		return http.StatusBadRequest
	case types.ErrOutputValidation, types.ErrInstall:
		return http.StatusUnprocessableEntity
	case types.ErrNotAvailable:
		return http.StatusServiceUnavailable
	case types.ErrTimeout:
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// DecodeJSONBody decodes the request body strictly, writing the error
// response itself on failure.
func DecodeJSONBody(w http.ResponseWriter, r *http.Request, dst any, logger *zap.Logger) error {
	if r.Body == nil {
		err := types.NewError(types.ErrInputValidation, "request body is empty")
		WriteError(w, err, logger)
		return err
	}

	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		apiErr := types.NewError(types.ErrInputValidation, "invalid JSON body").
			WithDetail("cause", err.Error())
		WriteError(w, apiErr, logger)
		return apiErr
	}
	return nil
}
