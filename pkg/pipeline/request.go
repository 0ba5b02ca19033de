package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/joomcode/errorx"

	"github.com/peitaosu/msix-packaging/pkg/container"
	"github.com/peitaosu/msix-packaging/pkg/manifest"
	"github.com/peitaosu/msix-packaging/pkg/platform"
)

// Operation is the kind of work a request performs.
type Operation int

const (
	OperationAdd Operation = iota + 1
	OperationRemove
	OperationFindPackage
	OperationFindAllPackages
)

func (o Operation) String() string {
	switch o {
	case OperationAdd:
		return "add"
	case OperationRemove:
		return "remove"
	case OperationFindPackage:
		return "find"
	case OperationFindAllPackages:
		return "list"
	default:
		return fmt.Sprintf("operation(%d)", int(o))
	}
}

// Options describe one request.
type Options struct {
	Operation Operation
	// PackageFilePath is the package to install (Add).
	PackageFilePath string
	// PackageFullName names an installed package (Remove, FindPackage).
	PackageFullName string
	Validation      container.Validation
}

// PackageInfo is the metadata of the package a request works on.
type PackageInfo struct {
	Manifest    *manifest.Manifest
	FullName    string
	DisplayName string
	// Directory is the install directory of the package.
	Directory string
	// Source is the opened package content: the package file for an add,
	// the install directory for a remove. The request closes it.
	Source container.Storage
}

// Request is the state shared by the handlers of one operation.
type Request struct {
	id      string
	opts    Options
	engine  *Engine
	logger  *slog.Logger
	info    *PackageInfo
	resp    *Response
	closers []func() error
}

// NewRequest checks opts and returns a request bound to e.
func (e *Engine) NewRequest(opts Options) (*Request, error) {
	switch opts.Operation {
	case OperationAdd:
		if opts.PackageFilePath == "" {
			return nil, errorx.IllegalArgument.New("add requires a package file path")
		}
	case OperationRemove, OperationFindPackage:
		if opts.PackageFullName == "" {
			return nil, errorx.IllegalArgument.New("%s requires a package full name", opts.Operation)
		}
	case OperationFindAllPackages:
	default:
		return nil, UnsupportedOperation.New("unsupported operation %s", opts.Operation)
	}

	id := uuid.NewString()
	return &Request{
		id:     id,
		opts:   opts,
		engine: e,
		logger: slog.Default().With("request_id", id, "op", opts.Operation.String()),
		resp:   newResponse(id, opts.Operation),
	}, nil
}

func (r *Request) ID() string                       { return r.id }
func (r *Request) Operation() Operation             { return r.opts.Operation }
func (r *Request) PackageFilePath() string          { return r.opts.PackageFilePath }
func (r *Request) PackageFullName() string          { return r.opts.PackageFullName }
func (r *Request) Validation() container.Validation { return r.opts.Validation }
func (r *Request) Paths() platform.Paths            { return r.engine.paths }
func (r *Request) Logger() *slog.Logger             { return r.logger }
func (r *Request) Response() *Response              { return r.resp }

// SetPackageInfo attaches the package metadata. It can be set only once.
func (r *Request) SetPackageInfo(info *PackageInfo) error {
	if info == nil {
		return errorx.IllegalArgument.New("nil package info")
	}
	if r.info != nil {
		return errorx.IllegalState.New("package info already set to %s", r.info.FullName)
	}
	r.info = info
	r.logger = r.logger.With("package", info.FullName)
	return nil
}

// PackageInfo returns the metadata, failing when it has not been populated
// yet.
func (r *Request) PackageInfo() (*PackageInfo, error) {
	if r.info == nil {
		return nil, errorx.IllegalState.New("package info is not populated")
	}
	return r.info, nil
}

// HasPackageInfo reports whether the metadata has been populated.
func (r *Request) HasPackageInfo() bool { return r.info != nil }

// OnClose registers a release function run by Close, last registered first.
func (r *Request) OnClose(fn func() error) {
	r.closers = append(r.closers, fn)
}

// Close releases the package source and everything registered with
// OnClose. It is safe to call more than once.
func (r *Request) Close() error {
	var firstErr error
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	r.closers = nil
	if r.info != nil && r.info.Source != nil {
		if err := r.info.Source.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		r.info.Source = nil
	}
	return firstErr
}

// Rollback undoes a partial installation by walking the remove table for
// this request. Without package info there is nothing to undo.
func (r *Request) Rollback(ctx context.Context) error {
	if r.info == nil {
		r.logger.Warn("rollback skipped: package info not populated")
		return nil
	}
	return r.engine.walkBestEffort(ctx, r, r.engine.remove, PhaseRollback)
}

// Remove runs a complete remove operation for another installed package,
// such as a version superseded by this install.
func (r *Request) Remove(ctx context.Context, fullName string) (*Response, error) {
	child, err := r.engine.NewRequest(Options{
		Operation:       OperationRemove,
		PackageFullName: fullName,
		Validation:      r.opts.Validation,
	})
	if err != nil {
		return nil, err
	}
	child.logger = child.logger.With("parent_request_id", r.id)
	return r.engine.Run(ctx, child)
}
