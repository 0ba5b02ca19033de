package handlers

import (
	"context"
	"strings"

	"github.com/peitaosu/msix-packaging/pkg/manifest"
	"github.com/peitaosu/msix-packaging/pkg/pipeline"
	"github.com/peitaosu/msix-packaging/pkg/registry"
)

// FileTypeAssociation registers a ProgID per association and links the
// associated extensions to it. Extension keys are shared with other
// packages, so only the values pointing at the package ProgID are removed.
type FileTypeAssociation struct {
	req      *pipeline.Request
	fullName string
	progIDs  []ownedKey
	links    []typeLink
}

type typeLink struct {
	key    string // classes key of the extension, e.g. ...\Classes\.txt
	progID string
}

func NewFileTypeAssociation(req *pipeline.Request) (pipeline.Handler, error) {
	info, err := req.PackageInfo()
	if err != nil {
		return nil, err
	}
	h := &FileTypeAssociation{req: req, fullName: info.FullName}
	family := info.Manifest.Identity.FamilyName()
	for _, ext := range info.Manifest.ExtensionsOf(manifest.CategoryFileTypeAssociation) {
		fta := ext.FileTypeAssociation
		if fta == nil || fta.Name == "" || strings.ContainsAny(fta.Name, `\/`) {
			return nil, manifest.InvalidManifest.New("fileTypeAssociation extension of application %q has no valid name", ext.ApplicationID)
		}
		if ext.Executable == "" {
			return nil, manifest.InvalidManifest.New("file type association %s has no executable", fta.Name)
		}

		progID := family + "." + fta.Name
		display := fta.DisplayName
		if display == "" || strings.HasPrefix(display, "ms-resource:") {
			display = fta.Name
		}
		k := ownedKey{key: registry.Join(registry.ClassesRoot, progID)}
		k.set("", "", display)
		k.set(`shell\open\command`, "", commandLine(req.Paths().ExecutablePath(ext.Executable, info.FullName), `"%1"`))
		h.progIDs = append(h.progIDs, k)

		for _, ft := range fta.FileTypes {
			if !strings.HasPrefix(ft, ".") || len(ft) < 2 || strings.ContainsAny(ft, `\/`) {
				return nil, manifest.InvalidManifest.New("file type association %s has invalid file type %q", fta.Name, ft)
			}
			h.links = append(h.links, typeLink{key: registry.Join(registry.ClassesRoot, ft), progID: progID})
		}
	}
	return h, nil
}

func (h *FileTypeAssociation) ExecuteForAdd(_ context.Context) error {
	if err := writeOwnedKeys(h.req, h.fullName, h.progIDs); err != nil {
		return err
	}
	if len(h.links) == 0 {
		return nil
	}
	var types []string
	err := updateHive(h.req, func(hive *registry.Hive) error {
		for _, l := range h.links {
			if err := hive.SetValue(registry.Join(l.key, "OpenWithProgids"), l.progID, ""); err != nil {
				return err
			}
			if current, ok := hive.Value(l.key, ""); !ok || current == "" {
				if err := hive.SetValue(l.key, "", l.progID); err != nil {
					return err
				}
			}
			types = append(types, l.key[strings.LastIndex(l.key, `\`)+1:])
		}
		return nil
	})
	if err != nil {
		return err
	}
	h.req.Response().Set(KeyRegisteredTypes, types)
	return nil
}

func (h *FileTypeAssociation) ExecuteForRemove(_ context.Context) error {
	if len(h.links) > 0 {
		err := updateHive(h.req, func(hive *registry.Hive) error {
			for _, l := range h.links {
				withProgids := registry.Join(l.key, "OpenWithProgids")
				hive.DeleteValue(withProgids, l.progID)
				if current, ok := hive.Value(l.key, ""); ok && strings.EqualFold(current, l.progID) {
					hive.DeleteValue(l.key, "")
				}
				if emptyKey(hive, withProgids) {
					hive.DeleteKey(withProgids)
				}
				if emptyKey(hive, l.key) {
					hive.DeleteKey(l.key)
				}
			}
			return nil
		})
		if err != nil {
			return err
		}
	}
	return deleteOwnedKeys(h.req, h.fullName, h.progIDs)
}

func emptyKey(h *registry.Hive, key string) bool {
	return h.KeyExists(key) && h.ValueCount(key) == 0 && len(h.SubKeys(key)) == 0
}
