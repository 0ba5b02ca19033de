package handlers

import (
	"context"
	"strings"

	"github.com/peitaosu/msix-packaging/pkg/manifest"
	"github.com/peitaosu/msix-packaging/pkg/pipeline"
	"github.com/peitaosu/msix-packaging/pkg/registry"
)

// Protocol registers URL scheme handlers under the classes root.
type Protocol struct {
	req      *pipeline.Request
	fullName string
	keys     []ownedKey
}

func NewProtocol(req *pipeline.Request) (pipeline.Handler, error) {
	info, err := req.PackageInfo()
	if err != nil {
		return nil, err
	}
	h := &Protocol{req: req, fullName: info.FullName}
	for _, ext := range info.Manifest.ExtensionsOf(manifest.CategoryProtocol) {
		p := ext.Protocol
		if p == nil || p.Name == "" || strings.ContainsAny(p.Name, `\/`) {
			return nil, manifest.InvalidManifest.New("protocol extension of application %q has no valid name", ext.ApplicationID)
		}
		if ext.Executable == "" {
			return nil, manifest.InvalidManifest.New("protocol %s has no executable", p.Name)
		}
		display := p.DisplayName
		if display == "" || strings.HasPrefix(display, "ms-resource:") {
			display = p.Name
		}
		args := p.Parameters
		if args == "" {
			args = `"%1"`
		}

		k := ownedKey{key: registry.Join(registry.ClassesRoot, p.Name)}
		k.set("", "", "URL:"+display)
		k.set("", "URL Protocol", "")
		k.set(`shell\open\command`, "", commandLine(req.Paths().ExecutablePath(ext.Executable, info.FullName), args))
		h.keys = append(h.keys, k)
	}
	return h, nil
}

func (h *Protocol) ExecuteForAdd(_ context.Context) error {
	if err := writeOwnedKeys(h.req, h.fullName, h.keys); err != nil {
		return err
	}
	h.req.Logger().Info("protocols registered", "count", len(h.keys))
	return nil
}

func (h *Protocol) ExecuteForRemove(_ context.Context) error {
	return deleteOwnedKeys(h.req, h.fullName, h.keys)
}
