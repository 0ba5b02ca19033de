package handlers

import (
	"context"

	"github.com/peitaosu/msix-packaging/pkg/pipeline"
)

// InstallComplete marks the add as finished.
type InstallComplete struct {
	req  *pipeline.Request
	info *pipeline.PackageInfo
}

func NewInstallComplete(req *pipeline.Request) (pipeline.Handler, error) {
	info, err := req.PackageInfo()
	if err != nil {
		return nil, err
	}
	return &InstallComplete{req: req, info: info}, nil
}

func (h *InstallComplete) ExecuteForAdd(_ context.Context) error {
	resp := h.req.Response()
	resp.Set(KeyInstalled, true)
	resp.Set(pipeline.KeyPackageFullName, h.info.FullName)
	resp.Set(pipeline.KeyDisplayName, h.info.DisplayName)
	resp.Set(pipeline.KeyDirectory, h.info.Directory)
	h.req.Logger().Info("package installed", "directory", h.info.Directory)
	return nil
}

func (h *InstallComplete) ExecuteForRemove(_ context.Context) error { return nil }

// ErrorHandler is the failure route of every add step. It undoes whatever
// the add already did to the install location.
type ErrorHandler struct {
	req *pipeline.Request
}

func NewErrorHandler(req *pipeline.Request) (pipeline.Handler, error) {
	return &ErrorHandler{req: req}, nil
}

func (h *ErrorHandler) ExecuteForAdd(ctx context.Context) error {
	resp := h.req.Response()
	if !resp.GetBool(KeyInstallStarted) {
		h.req.Logger().Info("nothing to roll back")
		return nil
	}
	h.req.Logger().Warn("rolling back partial install", "cause", resp.Err())
	if err := h.req.Rollback(ctx); err != nil {
		return err
	}
	resp.Set(KeyRolledBack, true)
	return nil
}

func (h *ErrorHandler) ExecuteForRemove(_ context.Context) error { return nil }
