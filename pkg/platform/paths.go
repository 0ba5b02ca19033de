// Package platform maps the well-known host locations an installation
// touches onto a single root directory.
package platform

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Paths resolves host locations under Root.
type Paths struct {
	Root string
}

// NewPaths returns the mappings for root, made absolute.
func NewPaths(root string) (Paths, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return Paths{}, fmt.Errorf("resolve root %s: %w", root, err)
	}
	return Paths{Root: abs}, nil
}

// PackagesDir holds one directory per installed package.
func (p Paths) PackagesDir() string { return filepath.Join(p.Root, "Packages") }

// PackageDirectory is the install directory of one package.
func (p Paths) PackageDirectory(fullName string) string {
	return filepath.Join(p.PackagesDir(), fullName)
}

// StartMenuDir holds application shortcuts.
func (p Paths) StartMenuDir() string { return filepath.Join(p.Root, "StartMenu", "Programs") }

// TasksDir holds scheduled task definitions.
func (p Paths) TasksDir() string { return filepath.Join(p.Root, "Tasks", "MsixCore") }

// RegistryFile is the registry hive.
func (p Paths) RegistryFile() string { return filepath.Join(p.Root, "registry.yaml") }

// LockFile serializes install and remove operations across processes.
func (p Paths) LockFile() string { return filepath.Join(p.Root, "msixcore.lock") }

// ExecutablePath maps a package relative executable, as written in the
// manifest, to its location inside the package install directory.
func (p Paths) ExecutablePath(executable, fullName string) string {
	rel := strings.ReplaceAll(executable, `\`, "/")
	return filepath.Join(p.PackageDirectory(fullName), filepath.FromSlash(rel))
}

// Ensure creates every directory the handlers write into.
func (p Paths) Ensure() error {
	for _, dir := range []string{p.Root, p.PackagesDir(), p.StartMenuDir(), p.TasksDir()} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	return nil
}
