// Package manifest parses AppxManifest.xml into the package identity,
// properties, applications and categorized extensions the install handlers
// consume.
package manifest

import (
	"bytes"
	"encoding/xml"
	"io"
	"strings"

	"github.com/joomcode/errorx"

	"github.com/peitaosu/msix-packaging/pkg/container"
)

// FoundationNamespace is the required namespace of the Package element.
const FoundationNamespace = "http://schemas.microsoft.com/appx/manifest/foundation/windows10"

const resourcePrefix = "ms-resource:"

// Manifest is a parsed package manifest.
type Manifest struct {
	Identity     Identity
	Properties   Properties
	Applications []Application

	// Extensions holds every recognized extension, package level first,
	// then per application in document order.
	Extensions []Extension
}

// Properties are the descriptive package properties.
type Properties struct {
	DisplayName          string
	PublisherDisplayName string
	Description          string
	Logo                 string
}

// Application is one Application element.
type Application struct {
	ID          string
	Executable  string
	EntryPoint  string
	DisplayName string
	Description string
	Extensions  []Extension
}

// DisplayName returns the package display name, falling back to the
// identity name when the declared one is a resource reference.
func (m *Manifest) DisplayName() string {
	name := m.Properties.DisplayName
	if name == "" || strings.HasPrefix(name, resourcePrefix) {
		return m.Identity.Name
	}
	return name
}

// ExtensionsOf returns the extensions of one category.
func (m *Manifest) ExtensionsOf(c Category) []Extension {
	var out []Extension
	for _, ext := range m.Extensions {
		if ext.Category == c {
			out = append(out, ext)
		}
	}
	return out
}

// Parse decodes and validates a manifest document.
func Parse(r io.Reader) (*Manifest, error) {
	var doc xmlPackage
	dec := xml.NewDecoder(r)
	if err := dec.Decode(&doc); err != nil {
		return nil, InvalidManifest.Wrap(err, "malformed manifest document")
	}
	if doc.XMLName.Local != "Package" || doc.XMLName.Space != FoundationNamespace {
		return nil, InvalidManifest.New("root element {%s}%s is not a foundation Package", doc.XMLName.Space, doc.XMLName.Local)
	}
	if doc.Identity == nil {
		return nil, InvalidManifest.New("manifest has no Identity element")
	}

	id, err := newIdentity(doc.Identity.Name, doc.Identity.Publisher, doc.Identity.Version,
		doc.Identity.ProcessorArchitecture, doc.Identity.ResourceID)
	if err != nil {
		return nil, err
	}

	m := &Manifest{
		Identity: id,
		Properties: Properties{
			DisplayName:          strings.TrimSpace(doc.Properties.DisplayName),
			PublisherDisplayName: strings.TrimSpace(doc.Properties.PublisherDisplayName),
			Description:          strings.TrimSpace(doc.Properties.Description),
			Logo:                 strings.TrimSpace(doc.Properties.Logo),
		},
	}

	m.Extensions = appendExtensions(m.Extensions, doc.Extensions, nil)
	for _, xa := range doc.Applications {
		if xa.ID == "" {
			return nil, missingAttribute("Application", "Id")
		}
		app := Application{
			ID:          xa.ID,
			Executable:  xa.Executable,
			EntryPoint:  xa.EntryPoint,
			DisplayName: xa.VisualElements.DisplayName,
			Description: xa.VisualElements.Description,
		}
		app.Extensions = appendExtensions(nil, xa.Extensions, &app)
		m.Extensions = append(m.Extensions, app.Extensions...)
		m.Applications = append(m.Applications, app)
	}
	return m, nil
}

// FromStorage reads and parses the manifest entry of a package container.
func FromStorage(s container.Storage) (*Manifest, error) {
	data, err := container.ReadEntry(s, container.ManifestName)
	if err != nil {
		if container.IsNotFound(err) {
			return nil, InvalidManifest.Wrap(err, "package has no %s", container.ManifestName)
		}
		return nil, errorx.Decorate(err, "read manifest")
	}
	return Parse(bytes.NewReader(data))
}
