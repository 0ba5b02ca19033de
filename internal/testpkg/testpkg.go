// Package testpkg builds small MSIX packages for tests.
package testpkg

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"text/template"

	"github.com/peitaosu/msix-packaging/pkg/container"
)

// Publisher hashes to the publisher id 8wekyb3d8bbwe.
const Publisher = "CN=Microsoft Corporation, O=Microsoft Corporation, L=Redmond, S=Washington, C=US"

// PublisherID is the publisher id of Publisher.
const PublisherID = "8wekyb3d8bbwe"

// Options describe the package to build. Zero fields take the defaults of
// App1 1.0.0.0 x64 with one application and a startup task.
type Options struct {
	Name        string
	Version     string
	Arch        string
	DisplayName string
	// Extensions are raw Extension elements added to the application.
	Extensions []string
	// Files are payload entries by name.
	Files map[string]string
	// NoSignature leaves out AppxSignature.p7x.
	NoSignature bool
	// Manifest replaces the generated manifest when set.
	Manifest string
}

// StartupTaskExtension is a startup task running app.exe.
const StartupTaskExtension = `<uap5:Extension Category="windows.startupTask" Executable="app.exe">
          <uap5:StartupTask TaskId="AppStartup" Enabled="true" DisplayName="App at logon"/>
        </uap5:Extension>`

// ProtocolExtension registers the appone: scheme.
const ProtocolExtension = `<uap:Extension Category="windows.protocol">
          <uap:Protocol Name="AppOne"><uap:DisplayName>App One link</uap:DisplayName></uap:Protocol>
        </uap:Extension>`

// FileTypeExtension associates .one files.
const FileTypeExtension = `<uap:Extension Category="windows.fileTypeAssociation">
          <uap:FileTypeAssociation Name="appone.doc">
            <uap:SupportedFileTypes><uap:FileType>.one</uap:FileType></uap:SupportedFileTypes>
          </uap:FileTypeAssociation>
        </uap:Extension>`

// ComServerExtension registers one out-of-process class.
const ComServerExtension = `<com:Extension Category="windows.comServer">
          <com:ComServer>
            <com:ExeServer Executable="app.exe" Arguments="-Embedding" DisplayName="Server">
              <com:Class Id="{11111111-2222-3333-4444-555555555555}" DisplayName="Widget"/>
            </com:ExeServer>
          </com:ComServer>
        </com:Extension>`

// ComInterfaceExtension registers one proxy stub and two interfaces.
const ComInterfaceExtension = `<com:Extension Category="windows.comInterface">
          <com:ComInterface>
            <com:ProxyStub Id="{AAAAAAAA-0000-0000-0000-000000000001}" DisplayName="Stub" Path="stub.dll"/>
            <com:Interface Id="{BBBBBBBB-0000-0000-0000-000000000002}" ProxyStubClsid="{AAAAAAAA-0000-0000-0000-000000000001}"/>
            <com:Interface Id="{CCCCCCCC-0000-0000-0000-000000000003}" UseUniversalMarshaler="true"/>
          </com:ComInterface>
        </com:Extension>`

var manifestTemplate = template.Must(template.New("manifest").Parse(`<?xml version="1.0" encoding="utf-8"?>
<Package xmlns="http://schemas.microsoft.com/appx/manifest/foundation/windows10"
         xmlns:uap="http://schemas.microsoft.com/appx/manifest/uap/windows10"
         xmlns:uap5="http://schemas.microsoft.com/appx/manifest/uap/windows10/5"
         xmlns:com="http://schemas.microsoft.com/appx/manifest/com/windows10">
  <Identity Name="{{.Name}}" Publisher="{{.Publisher}}" Version="{{.Version}}" ProcessorArchitecture="{{.Arch}}"/>
  <Properties>
    <DisplayName>{{.DisplayName}}</DisplayName>
    <PublisherDisplayName>Contoso</PublisherDisplayName>
    <Logo>Assets\logo.png</Logo>
  </Properties>
  <Applications>
    <Application Id="App" Executable="app.exe" EntryPoint="Windows.FullTrustApplication">
      <uap:VisualElements DisplayName="{{.DisplayName}}" Description="Test application"/>
      <Extensions>
{{- range .Extensions}}
        {{.}}
{{- end}}
      </Extensions>
    </Application>
  </Applications>
</Package>
`))

// Manifest renders the manifest described by o.
func Manifest(o Options) string {
	o = o.withDefaults()
	var buf bytes.Buffer
	data := map[string]any{
		"Name":        o.Name,
		"Publisher":   Publisher,
		"Version":     o.Version,
		"Arch":        o.Arch,
		"DisplayName": o.DisplayName,
		"Extensions":  o.Extensions,
	}
	if err := manifestTemplate.Execute(&buf, data); err != nil {
		panic(err)
	}
	return buf.String()
}

// FullName is the package full name o produces.
func FullName(o Options) string {
	o = o.withDefaults()
	return o.Name + "_" + o.Version + "_" + o.Arch + "__" + PublisherID
}

// Build writes the package into dir and returns its path.
func Build(t testing.TB, dir string, o Options) string {
	t.Helper()
	o = o.withDefaults()

	entries := map[string]string{
		container.ManifestName:     o.Manifest,
		container.BlockMapName:     `<BlockMap xmlns="http://schemas.microsoft.com/appx/2010/blockmap" HashMethod="http://www.w3.org/2001/04/xmlenc#sha256"/>`,
		container.ContentTypesName: `<Types xmlns="http://schemas.openxmlformats.org/package/2006/content-types"/>`,
	}
	if entries[container.ManifestName] == "" {
		entries[container.ManifestName] = Manifest(o)
	}
	if !o.NoSignature {
		entries[container.SignatureName] = "PKCX"
	}
	for name, content := range o.Files {
		entries[name] = content
	}

	var buf bytes.Buffer
	z := container.NewZip(&buf)
	for name, content := range entries {
		if err := container.WriteEntry(z, name, []byte(content)); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := z.Commit(); err != nil {
		t.Fatalf("commit package: %v", err)
	}

	path := filepath.Join(dir, FullName(o)+".msix")
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		t.Fatalf("write package: %v", err)
	}
	return path
}

func (o Options) withDefaults() Options {
	if o.Name == "" {
		o.Name = "App1"
	}
	if o.Version == "" {
		o.Version = "1.0.0.0"
	}
	if o.Arch == "" {
		o.Arch = "x64"
	}
	if o.DisplayName == "" {
		o.DisplayName = "App One"
	}
	if o.Extensions == nil {
		o.Extensions = []string{StartupTaskExtension}
	}
	if o.Files == nil {
		o.Files = map[string]string{"app.exe": "MZ app", "Assets/logo.png": "png"}
	}
	return o
}
