package handlers

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/codeflow/api"
	"github.com/BaSui01/codeflow/executor"
	"github.com/BaSui01/codeflow/types"
)

// ExecuteHandler serves code execution requests against the façade.
type ExecuteHandler struct {
	svc    *executor.Service
	logger *zap.Logger
}

// NewExecuteHandler creates an execution handler.
func NewExecuteHandler(svc *executor.Service, logger *zap.Logger) *ExecuteHandler {
	return &ExecuteHandler{svc: svc, logger: logger}
}

// HandleExecute runs one execution request. The response is always HTTP 200
// with a terminal ExecutionResult; a failed run is data, not a transport
// error. Only an undecodable request body produces a non-200 status.
func (h *ExecuteHandler) HandleExecute(w http.ResponseWriter, r *http.Request) {
	var req types.ExecutionRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	start := time.Now()
	result := h.svc.Execute(r.Context(), req)

	fields := []zap.Field{
		zap.String("language", string(req.Language)),
		zap.Bool("success", result.Success),
		zap.Duration("duration", time.Since(start)),
	}
	if result.Error != nil {
		fields = append(fields, zap.String("code", string(result.Error.Code)))
	}
	h.logger.Info("execution finished", fields...)

	WriteJSON(w, http.StatusOK, result)
}

// installTimeout bounds one package install so a hung resolver cannot hold
// the request until the server write timeout.
const installTimeout = 2 * time.Minute

// HandleInstall installs a package for the subprocess runtime.
func (h *ExecuteHandler) HandleInstall(w http.ResponseWriter, r *http.Request) {
	var req api.InstallRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if req.Package == "" {
		WriteError(w, types.NewError(types.ErrInputValidation, "package is required"), h.logger)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), installTimeout)
	defer cancel()

	lang := types.Language(req.Language)
	if err := h.svc.InstallPackage(ctx, lang, req.Package); err != nil {
		WriteError(w, types.AsExecutionError(err), h.logger)
		return
	}

	h.logger.Info("package installed",
		zap.String("language", req.Language),
		zap.String("package", req.Package))
	WriteSuccess(w, api.InstallResponse{
		Language: req.Language,
		Package:  req.Package,
		Status:   "installed",
	})
}
