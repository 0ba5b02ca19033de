package handlers

import (
	"context"
	"path/filepath"
	"strings"

	"github.com/peitaosu/msix-packaging/pkg/pipeline"
)

const shortcutTemplate = `[Desktop Entry]
Type=Application
Name={{.Name}}
Exec="{{.Exec}}"
Path={{.Dir}}
{{- if .Comment}}
Comment={{.Comment}}
{{- end}}
X-Msix-Package={{.Package}}
X-Msix-Application={{.AppID}}
`

// StartMenuLink creates one start menu shortcut per application.
type StartMenuLink struct {
	req       *pipeline.Request
	info      *pipeline.PackageInfo
	shortcuts []shortcut
}

type shortcut struct {
	path string
	data map[string]any
}

func NewStartMenuLink(req *pipeline.Request) (pipeline.Handler, error) {
	info, err := req.PackageInfo()
	if err != nil {
		return nil, err
	}
	h := &StartMenuLink{req: req, info: info}

	paths := req.Paths()
	seen := make(map[string]bool)
	for _, app := range info.Manifest.Applications {
		if app.Executable == "" {
			continue
		}
		name := app.DisplayName
		if name == "" || strings.HasPrefix(name, "ms-resource:") {
			name = info.DisplayName
		}
		name = fileName(name)
		if seen[strings.ToLower(name)] {
			name = fileName(name + " " + app.ID)
		}
		seen[strings.ToLower(name)] = true

		h.shortcuts = append(h.shortcuts, shortcut{
			path: filepath.Join(paths.StartMenuDir(), name+".desktop"),
			data: map[string]any{
				"Name":    name,
				"Exec":    paths.ExecutablePath(app.Executable, info.FullName),
				"Dir":     info.Directory,
				"Comment": app.Description,
				"Package": info.FullName,
				"AppID":   app.ID,
			},
		})
	}
	return h, nil
}

func (h *StartMenuLink) ExecuteForAdd(_ context.Context) error {
	var created []string
	for _, s := range h.shortcuts {
		content, err := renderTemplate(shortcutTemplate, s.data)
		if err != nil {
			return err
		}
		if err := writeFile(s.path, []byte(content)); err != nil {
			return err
		}
		created = append(created, s.path)
	}
	h.req.Response().Set(KeyShortcuts, created)
	h.req.Logger().Info("start menu shortcuts created", "count", len(created))
	return nil
}

func (h *StartMenuLink) ExecuteForRemove(_ context.Context) error {
	for _, s := range h.shortcuts {
		if err := removeFile(s.path); err != nil {
			return err
		}
	}
	return nil
}
