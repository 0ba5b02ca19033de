package handlers

import (
	"github.com/peitaosu/msix-packaging/pkg/pipeline"
	"github.com/peitaosu/msix-packaging/pkg/platform"
)

// AddTable routes an install: each step hands over to the next, and any
// failure goes to ErrorHandler.
func AddTable() *pipeline.Table {
	step := func(name pipeline.HandlerName, create pipeline.Constructor, next pipeline.HandlerName) pipeline.Entry {
		return pipeline.Entry{Name: name, Route: pipeline.Route{Create: create, Next: next, OnError: ErrorHandlerName}}
	}
	return pipeline.MustTable(pipeline.FamilyAdd, PopulatePackageInfoName,
		step(PopulatePackageInfoName, NewPopulatePackageInfo, ProcessPotentialUpdateName),
		step(ProcessPotentialUpdateName, NewProcessPotentialUpdate, ExtractorName),
		step(ExtractorName, NewExtractor, StartMenuLinkName),
		step(StartMenuLinkName, NewStartMenuLink, AddRemoveProgramsName),
		step(AddRemoveProgramsName, NewAddRemovePrograms, ProtocolName),
		step(ProtocolName, NewProtocol, ComInterfaceName),
		step(ComInterfaceName, NewComInterface, ComServerName),
		step(ComServerName, NewComServer, FileTypeAssociationName),
		step(FileTypeAssociationName, NewFileTypeAssociation, StartupTaskName),
		step(StartupTaskName, NewStartupTask, InstallCompleteName),
		step(InstallCompleteName, NewInstallComplete, ""),
		pipeline.Entry{Name: ErrorHandlerName, Route: pipeline.Route{Create: NewErrorHandler}},
	)
}

// RemoveTable routes an uninstall. Integrations go first, the install
// directory last.
func RemoveTable() *pipeline.Table {
	step := func(name pipeline.HandlerName, create pipeline.Constructor, next pipeline.HandlerName) pipeline.Entry {
		return pipeline.Entry{Name: name, Route: pipeline.Route{Create: create, Next: next}}
	}
	return pipeline.MustTable(pipeline.FamilyRemove, StartMenuLinkName,
		step(StartMenuLinkName, NewStartMenuLink, AddRemoveProgramsName),
		step(AddRemoveProgramsName, NewAddRemovePrograms, ProtocolName),
		step(ProtocolName, NewProtocol, ComInterfaceName),
		step(ComInterfaceName, NewComInterface, ComServerName),
		step(ComServerName, NewComServer, FileTypeAssociationName),
		step(FileTypeAssociationName, NewFileTypeAssociation, StartupTaskName),
		step(StartupTaskName, NewStartupTask, ExtractorName),
		step(ExtractorName, NewExtractor, ""),
	)
}

// NewEngine returns an engine wired with the default tables.
func NewEngine(paths platform.Paths) (*pipeline.Engine, error) {
	return pipeline.NewEngine(AddTable(), RemoveTable(), NewPopulatePackageInfo, paths)
}
