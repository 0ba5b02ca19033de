package handlers

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/joomcode/errorx"

	"github.com/peitaosu/msix-packaging/pkg/container"
	"github.com/peitaosu/msix-packaging/pkg/manifest"
	"github.com/peitaosu/msix-packaging/pkg/pipeline"
)

// PopulatePackageInfo opens the package a request works on and attaches its
// metadata. An add reads the package file; a remove or find reads the
// manifest kept in the install directory.
type PopulatePackageInfo struct {
	req *pipeline.Request
}

func NewPopulatePackageInfo(req *pipeline.Request) (pipeline.Handler, error) {
	return &PopulatePackageInfo{req: req}, nil
}

func (h *PopulatePackageInfo) ExecuteForAdd(_ context.Context) error {
	path := h.req.PackageFilePath()
	pkg, err := container.OpenPackage(path, h.req.Validation())
	if err != nil {
		return err
	}
	m, err := manifest.FromStorage(pkg)
	if err != nil {
		_ = pkg.Close()
		return errorx.Decorate(err, "package %s", path)
	}

	fullName := m.Identity.FullName()
	info := &pipeline.PackageInfo{
		Manifest:    m,
		FullName:    fullName,
		DisplayName: m.DisplayName(),
		Directory:   h.req.Paths().PackageDirectory(fullName),
		Source:      pkg,
	}
	if err := h.req.SetPackageInfo(info); err != nil {
		_ = pkg.Close()
		return err
	}
	h.req.Logger().Info("package opened", "path", path, "version", m.Identity.Version)
	return nil
}

func (h *PopulatePackageInfo) ExecuteForRemove(_ context.Context) error {
	fullName := h.req.PackageFullName()
	if fullName == "." || fullName == ".." || filepath.Base(fullName) != fullName || strings.ContainsAny(fullName, `/\`) {
		return pipeline.NotFound.New("no installed package named %q", fullName)
	}

	dir := h.req.Paths().PackageDirectory(fullName)
	d, err := container.OpenDir(dir)
	if err != nil {
		if container.IsNotFound(err) {
			return pipeline.NotFound.Wrap(err, "package %s is not installed", fullName)
		}
		return err
	}
	m, err := manifest.FromStorage(d)
	if err != nil {
		return errorx.Decorate(err, "installed package %s", fullName)
	}
	if got := m.Identity.FullName(); !strings.EqualFold(got, fullName) {
		return manifest.InvalidManifest.New("install directory %s holds package %s", dir, got)
	}

	return h.req.SetPackageInfo(&pipeline.PackageInfo{
		Manifest:    m,
		FullName:    m.Identity.FullName(),
		DisplayName: m.DisplayName(),
		Directory:   dir,
		Source:      d,
	})
}
