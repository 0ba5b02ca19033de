package handlers

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/peitaosu/msix-packaging/pkg/container"
	"github.com/peitaosu/msix-packaging/pkg/pipeline"
)

// Extractor copies the package payload into the install directory. The
// manifest is kept alongside the payload so the package can be found and
// removed later; the other footprint entries are dropped.
type Extractor struct {
	req  *pipeline.Request
	info *pipeline.PackageInfo
}

func NewExtractor(req *pipeline.Request) (pipeline.Handler, error) {
	info, err := req.PackageInfo()
	if err != nil {
		return nil, err
	}
	return &Extractor{req: req, info: info}, nil
}

func (h *Extractor) ExecuteForAdd(_ context.Context) error {
	if h.info.Source == nil {
		return fmt.Errorf("extract %s: package source is closed", h.info.FullName)
	}
	dst, err := container.CreateDir(h.info.Directory)
	if err != nil {
		return err
	}

	var files int
	var bytes int64
	for _, name := range h.info.Source.Names() {
		if container.IsFootprint(name) && !strings.EqualFold(name, container.ManifestName) {
			continue
		}
		n, err := container.CopyEntry(dst, h.info.Source, name)
		if err != nil {
			return fmt.Errorf("extract %s: %w", name, err)
		}
		files++
		bytes += n
	}
	if err := dst.Commit(); err != nil {
		return err
	}
	h.req.Response().Set(KeyFilesExtracted, files)
	h.req.Logger().Info("payload extracted", "directory", h.info.Directory, "files", files, "bytes", bytes)
	return nil
}

func (h *Extractor) ExecuteForRemove(_ context.Context) error {
	if err := os.RemoveAll(h.info.Directory); err != nil {
		return fmt.Errorf("remove install directory %s: %w", h.info.Directory, err)
	}
	h.req.Logger().Info("install directory removed", "directory", h.info.Directory)
	return nil
}
