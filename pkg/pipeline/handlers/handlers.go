// Package handlers implements the install and remove steps of an MSIX
// package against the host emulation in pkg/platform and pkg/registry.
package handlers

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/joomcode/errorx"

	"github.com/peitaosu/msix-packaging/pkg/pipeline"
	"github.com/peitaosu/msix-packaging/pkg/registry"
)

// Handler names as they appear in the routing tables.
const (
	PopulatePackageInfoName    = pipeline.PopulateHandler
	ProcessPotentialUpdateName pipeline.HandlerName = "ProcessPotentialUpdate"
	ExtractorName              pipeline.HandlerName = "Extractor"
	StartMenuLinkName          pipeline.HandlerName = "StartMenuLink"
	AddRemoveProgramsName      pipeline.HandlerName = "AddRemovePrograms"
	ProtocolName               pipeline.HandlerName = "Protocol"
	ComInterfaceName           pipeline.HandlerName = "ComInterface"
	ComServerName              pipeline.HandlerName = "ComServer"
	FileTypeAssociationName    pipeline.HandlerName = "FileTypeAssociation"
	StartupTaskName            pipeline.HandlerName = "StartupTask"
	InstallCompleteName        pipeline.HandlerName = "InstallComplete"
	ErrorHandlerName           pipeline.HandlerName = "ErrorHandler"
)

// Response keys written by the handlers.
const (
	// KeyInstallStarted is set once the install location belongs to the
	// running request; rollback only runs after that point.
	KeyInstallStarted  = "install_started"
	KeyInstalled       = "installed"
	KeyRolledBack      = "rolled_back"
	KeyFilesExtracted  = "files_extracted"
	KeySuperseded      = "superseded"
	KeyShortcuts       = "shortcuts"
	KeyStartupTasks    = "startup_tasks"
	KeyRegisteredTypes = "file_types"
)

// ownerValue marks registry keys with the full name of the package that
// created them, so removal never deletes keys another package owns.
const ownerValue = "MsixPackage"

// updateHive opens the registry, applies fn and saves the result.
func updateHive(req *pipeline.Request, fn func(h *registry.Hive) error) error {
	h, err := registry.Open(req.Paths().RegistryFile())
	if err != nil {
		return err
	}
	if err := fn(h); err != nil {
		return err
	}
	return h.Save()
}

// deleteOwnedKey removes key only when fullName owns it.
func deleteOwnedKey(h *registry.Hive, key, fullName string) bool {
	if owner, ok := h.Value(key, ownerValue); !ok || !strings.EqualFold(owner, fullName) {
		return false
	}
	return h.DeleteKey(key)
}

// claimKey marks key as owned by fullName. A key another package owns is
// left alone and reported.
func claimKey(h *registry.Hive, key, fullName string) error {
	if owner, ok := h.Value(key, ownerValue); ok && !strings.EqualFold(owner, fullName) {
		return errorx.IllegalState.New("registry key %s is owned by package %s", key, owner)
	}
	return h.SetValue(key, ownerValue, fullName)
}

// ownedKey is a registry key a package owns together with the values
// written at it or below it.
type ownedKey struct {
	key    string
	values []keyValue
}

type keyValue struct {
	sub  string // relative to the owned key, "" for the key itself
	name string
	data string
}

func (k *ownedKey) set(sub, name, data string) {
	k.values = append(k.values, keyValue{sub: sub, name: name, data: data})
}

// writeOwnedKeys claims every key for fullName, then writes its values.
func writeOwnedKeys(req *pipeline.Request, fullName string, keys []ownedKey) error {
	if len(keys) == 0 {
		return nil
	}
	return updateHive(req, func(h *registry.Hive) error {
		for _, k := range keys {
			if err := claimKey(h, k.key, fullName); err != nil {
				return err
			}
		}
		for _, k := range keys {
			for _, v := range k.values {
				if err := h.SetValue(registry.Join(k.key, v.sub), v.name, v.data); err != nil {
					return err
				}
			}
		}
		return nil
	})
}

// deleteOwnedKeys removes the keys fullName owns and leaves the rest.
func deleteOwnedKeys(req *pipeline.Request, fullName string, keys []ownedKey) error {
	if len(keys) == 0 {
		return nil
	}
	return updateHive(req, func(h *registry.Hive) error {
		for _, k := range keys {
			if !deleteOwnedKey(h, k.key, fullName) {
				req.Logger().Debug("registry key not owned, kept", "key", k.key)
			}
		}
		return nil
	})
}

// canonicalGUID validates a COM identifier and returns it in registry form.
func canonicalGUID(raw string) (string, error) {
	u, err := uuid.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("invalid GUID %q: %w", raw, err)
	}
	return "{" + strings.ToUpper(u.String()) + "}", nil
}

// commandLine quotes an executable and appends arguments.
func commandLine(executable string, args ...string) string {
	parts := []string{`"` + executable + `"`}
	for _, a := range args {
		if a != "" {
			parts = append(parts, a)
		}
	}
	return strings.Join(parts, " ")
}
