package handlers

import (
	"context"

	"github.com/peitaosu/msix-packaging/pkg/manifest"
	"github.com/peitaosu/msix-packaging/pkg/pipeline"
	"github.com/peitaosu/msix-packaging/pkg/registry"
)

// universalMarshaler is the proxy/stub CLSID of the type library marshaler.
const universalMarshaler = "{00020424-0000-0000-C000-000000000046}"

// ComServer registers out-of-process COM classes.
type ComServer struct {
	req      *pipeline.Request
	fullName string
	keys     []ownedKey
}

func NewComServer(req *pipeline.Request) (pipeline.Handler, error) {
	info, err := req.PackageInfo()
	if err != nil {
		return nil, err
	}
	h := &ComServer{req: req, fullName: info.FullName}
	for _, ext := range info.Manifest.ExtensionsOf(manifest.CategoryComServer) {
		if ext.ComServer == nil {
			return nil, manifest.InvalidManifest.New("comServer extension of application %q has no ComServer element", ext.ApplicationID)
		}
		for _, server := range ext.ComServer.ExeServers {
			if server.Executable == "" {
				return nil, manifest.InvalidManifest.New("ExeServer of application %q has no executable", ext.ApplicationID)
			}
			command := commandLine(req.Paths().ExecutablePath(server.Executable, info.FullName), server.Arguments)
			for _, class := range server.Classes {
				clsid, err := canonicalGUID(class.ID)
				if err != nil {
					return nil, manifest.InvalidManifest.Wrap(err, "ExeServer class")
				}
				name := class.DisplayName
				if name == "" {
					name = server.DisplayName
				}
				k := ownedKey{key: registry.Join(registry.ClassesRoot, "CLSID", clsid)}
				k.set("", "", name)
				k.set("LocalServer32", "", command)
				h.keys = append(h.keys, k)
			}
		}
	}
	return h, nil
}

func (h *ComServer) ExecuteForAdd(_ context.Context) error {
	if err := writeOwnedKeys(h.req, h.fullName, h.keys); err != nil {
		return err
	}
	h.req.Logger().Info("com classes registered", "count", len(h.keys))
	return nil
}

func (h *ComServer) ExecuteForRemove(_ context.Context) error {
	return deleteOwnedKeys(h.req, h.fullName, h.keys)
}

// ComInterface registers COM interfaces and their proxy/stub classes.
type ComInterface struct {
	req      *pipeline.Request
	fullName string
	keys     []ownedKey
}

func NewComInterface(req *pipeline.Request) (pipeline.Handler, error) {
	info, err := req.PackageInfo()
	if err != nil {
		return nil, err
	}
	h := &ComInterface{req: req, fullName: info.FullName}
	for _, ext := range info.Manifest.ExtensionsOf(manifest.CategoryComInterface) {
		ci := ext.ComInterface
		if ci == nil {
			return nil, manifest.InvalidManifest.New("comInterface extension of application %q has no ComInterface element", ext.ApplicationID)
		}
		for _, ps := range ci.ProxyStubs {
			clsid, err := canonicalGUID(ps.ID)
			if err != nil {
				return nil, manifest.InvalidManifest.Wrap(err, "ProxyStub")
			}
			if ps.Path == "" {
				return nil, manifest.InvalidManifest.New("ProxyStub %s has no path", clsid)
			}
			k := ownedKey{key: registry.Join(registry.ClassesRoot, "CLSID", clsid)}
			k.set("", "", ps.DisplayName)
			k.set("InprocServer32", "", req.Paths().ExecutablePath(ps.Path, info.FullName))
			h.keys = append(h.keys, k)
		}
		for _, iface := range ci.Interfaces {
			iid, err := canonicalGUID(iface.ID)
			if err != nil {
				return nil, manifest.InvalidManifest.Wrap(err, "Interface")
			}
			stub := universalMarshaler
			if !iface.UseUniversalMarshaler {
				if stub, err = canonicalGUID(iface.ProxyStubClsid); err != nil {
					return nil, manifest.InvalidManifest.Wrap(err, "Interface %s proxy stub", iid)
				}
			}
			k := ownedKey{key: registry.Join(registry.ClassesRoot, "Interface", iid)}
			k.set("ProxyStubClsid32", "", stub)
			h.keys = append(h.keys, k)
		}
	}
	return h, nil
}

func (h *ComInterface) ExecuteForAdd(_ context.Context) error {
	if err := writeOwnedKeys(h.req, h.fullName, h.keys); err != nil {
		return err
	}
	h.req.Logger().Info("com interfaces registered", "count", len(h.keys))
	return nil
}

func (h *ComInterface) ExecuteForRemove(_ context.Context) error {
	return deleteOwnedKeys(h.req, h.fullName, h.keys)
}
