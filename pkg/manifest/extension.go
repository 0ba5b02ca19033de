package manifest

import "strings"

// Category is the Category attribute of an Extension element.
type Category string

const (
	CategoryStartupTask         Category = "windows.startupTask"
	CategoryProtocol            Category = "windows.protocol"
	CategoryFileTypeAssociation Category = "windows.fileTypeAssociation"
	CategoryComServer           Category = "windows.comServer"
	CategoryComInterface        Category = "windows.comInterface"
)

var knownCategories = map[Category]bool{
	CategoryStartupTask:         true,
	CategoryProtocol:            true,
	CategoryFileTypeAssociation: true,
	CategoryComServer:           true,
	CategoryComInterface:        true,
}

// Extension is one recognized extension. Exactly one payload field matching
// Category is set when the element carried it; handlers decide whether a
// missing payload is an error.
type Extension struct {
	Category Category

	// ApplicationID is empty for package level extensions.
	ApplicationID string
	// Executable is the extension's own Executable attribute, or the
	// owning application's when the extension does not set one.
	Executable string
	EntryPoint string

	StartupTask         *StartupTask
	Protocol            *Protocol
	FileTypeAssociation *FileTypeAssociation
	ComServer           *ComServer
	ComInterface        *ComInterface
}

type StartupTask struct {
	TaskID      string
	Enabled     bool
	DisplayName string
}

type Protocol struct {
	Name        string
	DisplayName string
	Parameters  string
}

type FileTypeAssociation struct {
	Name        string
	DisplayName string
	FileTypes   []string
}

type ComServer struct {
	ExeServers []ExeServer
}

type ExeServer struct {
	Executable  string
	Arguments   string
	DisplayName string
	Classes     []ComClass
}

type ComClass struct {
	ID          string
	DisplayName string
}

type ComInterface struct {
	ProxyStubs []ProxyStub
	Interfaces []Interface
}

type ProxyStub struct {
	ID          string
	DisplayName string
	Path        string
}

type Interface struct {
	ID                    string
	ProxyStubClsid        string
	UseUniversalMarshaler bool
}

func appendExtensions(dst []Extension, raw []xmlExtension, app *Application) []Extension {
	for _, x := range raw {
		cat := Category(strings.TrimSpace(x.Category))
		if !knownCategories[cat] {
			continue
		}
		ext := Extension{Category: cat, Executable: x.Executable, EntryPoint: x.EntryPoint}
		if app != nil {
			ext.ApplicationID = app.ID
			if ext.Executable == "" {
				ext.Executable = app.Executable
			}
			if ext.EntryPoint == "" {
				ext.EntryPoint = app.EntryPoint
			}
		}

		switch cat {
		case CategoryStartupTask:
			if x.StartupTask != nil {
				ext.StartupTask = &StartupTask{
					TaskID:      x.StartupTask.TaskID,
					Enabled:     x.StartupTask.Enabled != "false",
					DisplayName: x.StartupTask.DisplayName,
				}
			}
		case CategoryProtocol:
			if x.Protocol != nil {
				ext.Protocol = &Protocol{
					Name:        strings.ToLower(x.Protocol.Name),
					DisplayName: strings.TrimSpace(x.Protocol.DisplayName),
					Parameters:  x.Protocol.Parameters,
				}
			}
		case CategoryFileTypeAssociation:
			if x.FileTypeAssociation != nil {
				fta := &FileTypeAssociation{
					Name:        strings.ToLower(x.FileTypeAssociation.Name),
					DisplayName: strings.TrimSpace(x.FileTypeAssociation.DisplayName),
				}
				for _, ft := range x.FileTypeAssociation.FileTypes {
					if ft = strings.ToLower(strings.TrimSpace(ft)); ft != "" {
						fta.FileTypes = append(fta.FileTypes, ft)
					}
				}
				ext.FileTypeAssociation = fta
			}
		case CategoryComServer:
			if x.ComServer != nil {
				cs := &ComServer{}
				for _, es := range x.ComServer.ExeServers {
					server := ExeServer{Executable: es.Executable, Arguments: es.Arguments, DisplayName: es.DisplayName}
					for _, c := range es.Classes {
						server.Classes = append(server.Classes, ComClass{ID: c.ID, DisplayName: c.DisplayName})
					}
					cs.ExeServers = append(cs.ExeServers, server)
				}
				ext.ComServer = cs
			}
		case CategoryComInterface:
			if x.ComInterface != nil {
				ci := &ComInterface{}
				for _, ps := range x.ComInterface.ProxyStubs {
					ci.ProxyStubs = append(ci.ProxyStubs, ProxyStub{ID: ps.ID, DisplayName: ps.DisplayName, Path: ps.Path})
				}
				for _, i := range x.ComInterface.Interfaces {
					ci.Interfaces = append(ci.Interfaces, Interface{
						ID:                    i.ID,
						ProxyStubClsid:        i.ProxyStubClsid,
						UseUniversalMarshaler: i.UseUniversalMarshaler == "true",
					})
				}
				ext.ComInterface = ci
			}
		}
		dst = append(dst, ext)
	}
	return dst
}
