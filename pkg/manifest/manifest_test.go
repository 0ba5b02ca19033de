package manifest_test

import (
	"bytes"
	"strings"
	"testing"

	"github.com/klauspost/compress/zip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/peitaosu/msix-packaging/pkg/container"
	"github.com/peitaosu/msix-packaging/pkg/manifest"
)

const microsoftPublisher = "CN=Microsoft Corporation, O=Microsoft Corporation, L=Redmond, S=Washington, C=US"

const fullManifest = `<?xml version="1.0" encoding="utf-8"?>
<Package xmlns="http://schemas.microsoft.com/appx/manifest/foundation/windows10"
         xmlns:uap="http://schemas.microsoft.com/appx/manifest/uap/windows10"
         xmlns:uap5="http://schemas.microsoft.com/appx/manifest/uap/windows10/5"
         xmlns:com="http://schemas.microsoft.com/appx/manifest/com/windows10"
         xmlns:future="http://example.com/future">
  <Identity Name="App1" Publisher="` + microsoftPublisher + `" Version="1.2.3.4" ProcessorArchitecture="X64"/>
  <Properties>
    <DisplayName>App One</DisplayName>
    <PublisherDisplayName>Contoso</PublisherDisplayName>
    <Logo>Assets\logo.png</Logo>
  </Properties>
  <Applications>
    <Application Id="App" Executable="app.exe" EntryPoint="Windows.FullTrustApplication">
      <uap:VisualElements DisplayName="App One" Description="First app"/>
      <Extensions>
        <future:Extension Category="windows.somethingNew">
          <future:Thing Value="1"/>
        </future:Extension>
        <uap5:Extension Category="windows.startupTask" Executable="bin\start.exe">
          <uap5:StartupTask TaskId="StartOnLogon" Enabled="true" DisplayName="App One at logon"/>
        </uap5:Extension>
        <uap:Extension Category="windows.protocol">
          <uap:Protocol Name="AppOne">
            <uap:DisplayName>App One link</uap:DisplayName>
          </uap:Protocol>
        </uap:Extension>
        <uap:Extension Category="windows.fileTypeAssociation">
          <uap:FileTypeAssociation Name="appone.doc">
            <uap:SupportedFileTypes>
              <uap:FileType>.ONE</uap:FileType>
              <uap:FileType>.one2</uap:FileType>
            </uap:SupportedFileTypes>
          </uap:FileTypeAssociation>
        </uap:Extension>
        <com:Extension Category="windows.comServer">
          <com:ComServer>
            <com:ExeServer Executable="server.exe" DisplayName="Server">
              <com:Class Id="{11111111-2222-3333-4444-555555555555}" DisplayName="Widget"/>
            </com:ExeServer>
          </com:ComServer>
        </com:Extension>
      </Extensions>
    </Application>
  </Applications>
  <Extensions>
    <com:Extension Category="windows.comInterface">
      <com:ComInterface>
        <com:ProxyStub Id="{AAAAAAAA-0000-0000-0000-000000000001}" DisplayName="Stub" Path="stub.dll"/>
        <com:Interface Id="{BBBBBBBB-0000-0000-0000-000000000002}" ProxyStubClsid="{AAAAAAAA-0000-0000-0000-000000000001}"/>
        <com:Interface Id="{CCCCCCCC-0000-0000-0000-000000000003}" UseUniversalMarshaler="true"/>
      </com:ComInterface>
    </com:Extension>
  </Extensions>
</Package>`

func TestParseFullManifest(t *testing.T) {
	req := require.New(t)
	m, err := manifest.Parse(strings.NewReader(fullManifest))
	req.NoError(err)

	req.Equal("App1", m.Identity.Name)
	req.Equal("x64", m.Identity.ProcessorArchitecture)
	req.Equal("8wekyb3d8bbwe", m.Identity.PublisherID())
	req.Equal("App1_1.2.3.4_x64__8wekyb3d8bbwe", m.Identity.FullName())
	req.Equal("App1_8wekyb3d8bbwe", m.Identity.FamilyName())
	req.Equal("App One", m.DisplayName())
	req.Equal(`Assets\logo.png`, m.Properties.Logo)

	req.Len(m.Applications, 1)
	app := m.Applications[0]
	req.Equal("App", app.ID)
	req.Equal("app.exe", app.Executable)
	req.Equal("First app", app.Description)

	// Package level extensions come first; the unknown category is dropped.
	cats := make([]manifest.Category, 0, len(m.Extensions))
	for _, ext := range m.Extensions {
		cats = append(cats, ext.Category)
	}
	req.Equal([]manifest.Category{
		manifest.CategoryComInterface,
		manifest.CategoryStartupTask,
		manifest.CategoryProtocol,
		manifest.CategoryFileTypeAssociation,
		manifest.CategoryComServer,
	}, cats)

	startup := m.ExtensionsOf(manifest.CategoryStartupTask)
	req.Len(startup, 1)
	req.Equal(`bin\start.exe`, startup[0].Executable)
	req.Equal("App", startup[0].ApplicationID)
	req.NotNil(startup[0].StartupTask)
	req.Equal("StartOnLogon", startup[0].StartupTask.TaskID)
	req.True(startup[0].StartupTask.Enabled)

	proto := m.ExtensionsOf(manifest.CategoryProtocol)[0]
	req.Equal("appone", proto.Protocol.Name)
	req.Equal("App One link", proto.Protocol.DisplayName)
	req.Equal("app.exe", proto.Executable)

	fta := m.ExtensionsOf(manifest.CategoryFileTypeAssociation)[0].FileTypeAssociation
	req.Equal([]string{".one", ".one2"}, fta.FileTypes)

	cs := m.ExtensionsOf(manifest.CategoryComServer)[0].ComServer
	req.Len(cs.ExeServers, 1)
	req.Equal("{11111111-2222-3333-4444-555555555555}", cs.ExeServers[0].Classes[0].ID)

	ci := m.ExtensionsOf(manifest.CategoryComInterface)[0]
	req.Empty(ci.ApplicationID)
	req.Len(ci.ComInterface.Interfaces, 2)
	req.False(ci.ComInterface.Interfaces[0].UseUniversalMarshaler)
	req.True(ci.ComInterface.Interfaces[1].UseUniversalMarshaler)
	req.Equal("stub.dll", ci.ComInterface.ProxyStubs[0].Path)
}

func TestUnknownCategoryDoesNotStopParsing(t *testing.T) {
	doc := `<Package xmlns="` + manifest.FoundationNamespace + `">
  <Identity Name="A" Publisher="CN=A" Version="1.0.0.0"/>
  <Extensions>
    <Extension Category="windows.unheardOf"/>
    <Extension/>
    <Extension Category="windows.protocol"><Protocol Name="a-proto"/></Extension>
  </Extensions>
</Package>`
	m, err := manifest.Parse(strings.NewReader(doc))
	require.NoError(t, err)
	require.Len(t, m.Extensions, 1)
	assert.Equal(t, "a-proto", m.Extensions[0].Protocol.Name)
	assert.Equal(t, "neutral", m.Identity.ProcessorArchitecture)
	assert.Equal(t, "A", m.DisplayName())
}

func TestParseRejectsInvalidManifests(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{name: "not xml", doc: "<<<"},
		{name: "wrong namespace", doc: `<Package xmlns="urn:other"><Identity Name="A" Publisher="CN=A" Version="1.0.0.0"/></Package>`},
		{name: "wrong root", doc: `<Bundle xmlns="` + manifest.FoundationNamespace + `"/>`},
		{name: "no identity", doc: `<Package xmlns="` + manifest.FoundationNamespace + `"/>`},
		{name: "no name", doc: `<Package xmlns="` + manifest.FoundationNamespace + `"><Identity Publisher="CN=A" Version="1.0.0.0"/></Package>`},
		{name: "no publisher", doc: `<Package xmlns="` + manifest.FoundationNamespace + `"><Identity Name="A" Version="1.0.0.0"/></Package>`},
		{name: "no version", doc: `<Package xmlns="` + manifest.FoundationNamespace + `"><Identity Name="A" Publisher="CN=A"/></Package>`},
		{name: "three part version", doc: `<Package xmlns="` + manifest.FoundationNamespace + `"><Identity Name="A" Publisher="CN=A" Version="1.0.0"/></Package>`},
		{name: "prerelease version", doc: `<Package xmlns="` + manifest.FoundationNamespace + `"><Identity Name="A" Publisher="CN=A" Version="1.0.0.0-beta"/></Package>`},
		{name: "bad arch", doc: `<Package xmlns="` + manifest.FoundationNamespace + `"><Identity Name="A" Publisher="CN=A" Version="1.0.0.0" ProcessorArchitecture="sparc"/></Package>`},
		{name: "underscore in name", doc: `<Package xmlns="` + manifest.FoundationNamespace + `"><Identity Name="A_B" Publisher="CN=A" Version="1.0.0.0"/></Package>`},
		{name: "application without id", doc: `<Package xmlns="` + manifest.FoundationNamespace + `"><Identity Name="A" Publisher="CN=A" Version="1.0.0.0"/><Applications><Application/></Applications></Package>`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := manifest.Parse(strings.NewReader(tt.doc))
			require.Error(t, err)
			assert.True(t, manifest.IsManifestError(err), "want manifest error, got %v", err)
		})
	}
}

func TestResourceDisplayNameFallsBackToIdentity(t *testing.T) {
	doc := `<Package xmlns="` + manifest.FoundationNamespace + `">
  <Identity Name="Res" Publisher="CN=R" Version="2.0.0.0"/>
  <Properties><DisplayName>ms-resource:AppName</DisplayName></Properties>
</Package>`
	m, err := manifest.Parse(strings.NewReader(doc))
	require.NoError(t, err)
	assert.Equal(t, "Res", m.DisplayName())
}

func TestFromStorage(t *testing.T) {
	req := require.New(t)

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	w, err := zw.Create(container.ManifestName)
	req.NoError(err)
	_, err = w.Write([]byte(fullManifest))
	req.NoError(err)
	req.NoError(zw.Close())

	z, err := container.OpenZip(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	req.NoError(err)
	m, err := manifest.FromStorage(z)
	req.NoError(err)
	req.Equal("App1", m.Identity.Name)

	empty := container.NewZip(nil)
	_, err = manifest.FromStorage(empty)
	req.Error(err)
	req.True(manifest.IsManifestError(err))
}

func TestVersionOrdering(t *testing.T) {
	older, err := manifest.ParseVersion("1.0.0.9")
	require.NoError(t, err)
	newer, err := manifest.ParseVersion("1.0.1.0")
	require.NoError(t, err)
	assert.True(t, older.LessThan(newer))

	_, err = manifest.ParseVersion("1.0.0.70000")
	assert.True(t, manifest.IsManifestError(err))
}

func TestParseFullName(t *testing.T) {
	parts, err := manifest.ParseFullName("App1_1.2.3.4_x64__8wekyb3d8bbwe")
	require.NoError(t, err)
	assert.Equal(t, "App1", parts.Name)
	assert.Equal(t, "1.2.3.4", parts.Version)
	assert.Empty(t, parts.ResourceID)
	assert.Equal(t, "App1_8wekyb3d8bbwe", parts.FamilyName())
	assert.Equal(t, "App1_1.2.3.4_x64__8wekyb3d8bbwe", parts.String())

	for _, bad := range []string{"", "App1", "App1_1.0.0.0_x64_8wekyb3d8bbwe", "_1.0.0.0_x64__pub"} {
		_, err := manifest.ParseFullName(bad)
		assert.Error(t, err, bad)
	}
}
