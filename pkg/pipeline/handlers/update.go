package handlers

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/peitaosu/msix-packaging/pkg/manifest"
	"github.com/peitaosu/msix-packaging/pkg/pipeline"
)

// ProcessPotentialUpdate looks for installed versions of the same package
// family. Older versions are removed; an equal or newer one fails the add.
type ProcessPotentialUpdate struct {
	req  *pipeline.Request
	info *pipeline.PackageInfo
}

func NewProcessPotentialUpdate(req *pipeline.Request) (pipeline.Handler, error) {
	info, err := req.PackageInfo()
	if err != nil {
		return nil, err
	}
	return &ProcessPotentialUpdate{req: req, info: info}, nil
}

func (h *ProcessPotentialUpdate) ExecuteForAdd(ctx context.Context) error {
	id := h.info.Manifest.Identity
	installed, err := h.installedFamily(id.FamilyName())
	if err != nil {
		return err
	}

	var superseded []string
	for _, other := range installed {
		v, err := manifest.ParseVersion(other.Version)
		if err != nil {
			h.req.Logger().Warn("skipping installed package with unparsable version", "installed", other.String(), "error", err)
			continue
		}
		if !v.LessThan(id.ParsedVersion()) {
			return pipeline.Update.New("package %s is already installed at version %s; cannot install %s",
				id.FamilyName(), other.Version, id.Version)
		}
		superseded = append(superseded, other.String())
	}

	for _, name := range superseded {
		h.req.Logger().Info("removing superseded version", "superseded", name)
		resp, err := h.req.Remove(ctx, name)
		if err != nil {
			return fmt.Errorf("remove superseded package %s: %w", name, err)
		}
		if resp.Status != pipeline.StatusSucceeded {
			return pipeline.Update.New("superseded package %s was not removed", name)
		}
	}
	if len(superseded) > 0 {
		h.req.Response().Set(KeySuperseded, superseded)
	}
	h.req.Response().Set(KeyInstallStarted, true)
	return nil
}

func (h *ProcessPotentialUpdate) ExecuteForRemove(_ context.Context) error { return nil }

// installedFamily returns the installed packages whose family matches.
func (h *ProcessPotentialUpdate) installedFamily(family string) ([]manifest.FullNameParts, error) {
	dir := h.req.Paths().PackagesDir()
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("list packages in %s: %w", dir, err)
	}

	var out []manifest.FullNameParts
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		parts, err := manifest.ParseFullName(entry.Name())
		if err != nil {
			continue
		}
		if strings.EqualFold(parts.FamilyName(), family) {
			out = append(out, parts)
		}
	}
	return out, nil
}
