package manifest

import "encoding/xml"

// Element tags carry no namespace so that the uap, uap3, uap5, desktop and
// com variants of an element all decode into the same field.

type xmlPackage struct {
	XMLName      xml.Name         `xml:"Package"`
	Identity     *xmlIdentity     `xml:"Identity"`
	Properties   xmlProperties    `xml:"Properties"`
	Applications []xmlApplication `xml:"Applications>Application"`
	Extensions   []xmlExtension   `xml:"Extensions>Extension"`
}

type xmlIdentity struct {
	Name                  string `xml:"Name,attr"`
	Publisher             string `xml:"Publisher,attr"`
	Version               string `xml:"Version,attr"`
	ProcessorArchitecture string `xml:"ProcessorArchitecture,attr"`
	ResourceID            string `xml:"ResourceId,attr"`
}

type xmlProperties struct {
	DisplayName          string `xml:"DisplayName"`
	PublisherDisplayName string `xml:"PublisherDisplayName"`
	Description          string `xml:"Description"`
	Logo                 string `xml:"Logo"`
}

type xmlApplication struct {
	ID             string            `xml:"Id,attr"`
	Executable     string            `xml:"Executable,attr"`
	EntryPoint     string            `xml:"EntryPoint,attr"`
	VisualElements xmlVisualElements `xml:"VisualElements"`
	Extensions     []xmlExtension    `xml:"Extensions>Extension"`
}

type xmlVisualElements struct {
	DisplayName string `xml:"DisplayName,attr"`
	Description string `xml:"Description,attr"`
}

type xmlExtension struct {
	Category   string `xml:"Category,attr"`
	Executable string `xml:"Executable,attr"`
	EntryPoint string `xml:"EntryPoint,attr"`

	StartupTask         *xmlStartupTask         `xml:"StartupTask"`
	Protocol            *xmlProtocol            `xml:"Protocol"`
	FileTypeAssociation *xmlFileTypeAssociation `xml:"FileTypeAssociation"`
	ComServer           *xmlComServer           `xml:"ComServer"`
	ComInterface        *xmlComInterface        `xml:"ComInterface"`
}

type xmlStartupTask struct {
	TaskID      string `xml:"TaskId,attr"`
	Enabled     string `xml:"Enabled,attr"`
	DisplayName string `xml:"DisplayName,attr"`
}

type xmlProtocol struct {
	Name        string `xml:"Name,attr"`
	Parameters  string `xml:"Parameters,attr"`
	DisplayName string `xml:"DisplayName"`
}

type xmlFileTypeAssociation struct {
	Name        string   `xml:"Name,attr"`
	DisplayName string   `xml:"DisplayName"`
	FileTypes   []string `xml:"SupportedFileTypes>FileType"`
}

type xmlComServer struct {
	ExeServers []xmlExeServer `xml:"ExeServer"`
}

type xmlExeServer struct {
	Executable  string        `xml:"Executable,attr"`
	Arguments   string        `xml:"Arguments,attr"`
	DisplayName string        `xml:"DisplayName,attr"`
	Classes     []xmlComClass `xml:"Class"`
}

type xmlComClass struct {
	ID          string `xml:"Id,attr"`
	DisplayName string `xml:"DisplayName,attr"`
}

type xmlComInterface struct {
	ProxyStubs []xmlProxyStub `xml:"ProxyStub"`
	Interfaces []xmlInterface `xml:"Interface"`
}

type xmlProxyStub struct {
	ID          string `xml:"Id,attr"`
	DisplayName string `xml:"DisplayName,attr"`
	Path        string `xml:"Path,attr"`
}

type xmlInterface struct {
	ID                    string `xml:"Id,attr"`
	ProxyStubClsid        string `xml:"ProxyStubClsid,attr"`
	UseUniversalMarshaler string `xml:"UseUniversalMarshaler,attr"`
}
