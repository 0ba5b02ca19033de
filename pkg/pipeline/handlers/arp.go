package handlers

import (
	"context"
	"os"

	"github.com/peitaosu/msix-packaging/pkg/pipeline"
	"github.com/peitaosu/msix-packaging/pkg/registry"
)

// AddRemovePrograms registers the package in the uninstall list.
type AddRemovePrograms struct {
	req  *pipeline.Request
	info *pipeline.PackageInfo
	key  string
}

func NewAddRemovePrograms(req *pipeline.Request) (pipeline.Handler, error) {
	info, err := req.PackageInfo()
	if err != nil {
		return nil, err
	}
	return &AddRemovePrograms{
		req:  req,
		info: info,
		key:  registry.Join(registry.UninstallRoot, info.FullName),
	}, nil
}

func (h *AddRemovePrograms) ExecuteForAdd(_ context.Context) error {
	m := h.info.Manifest
	publisher := m.Properties.PublisherDisplayName
	if publisher == "" {
		publisher = m.Identity.Publisher
	}
	values := [][2]string{
		{"DisplayName", h.info.DisplayName},
		{"DisplayVersion", m.Identity.Version},
		{"Publisher", publisher},
		{"InstallLocation", h.info.Directory},
		{"UninstallString", commandLine(managerPath(), "remove", h.info.FullName)},
		{ownerValue, h.info.FullName},
	}
	if m.Properties.Logo != "" {
		values = append(values, [2]string{"DisplayIcon", h.req.Paths().ExecutablePath(m.Properties.Logo, h.info.FullName)})
	}

	return updateHive(h.req, func(hive *registry.Hive) error {
		if err := hive.CreateKey(h.key); err != nil {
			return err
		}
		for _, v := range values {
			if err := hive.SetValue(h.key, v[0], v[1]); err != nil {
				return err
			}
		}
		return nil
	})
}

func (h *AddRemovePrograms) ExecuteForRemove(_ context.Context) error {
	return updateHive(h.req, func(hive *registry.Hive) error {
		deleteOwnedKey(hive, h.key, h.info.FullName)
		return nil
	})
}

// managerPath is the program recorded as the uninstaller.
func managerPath() string {
	if exe, err := os.Executable(); err == nil {
		return exe
	}
	return "msixmgr"
}
