package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sort"

	"github.com/joomcode/errorx"

	"github.com/peitaosu/msix-packaging/pkg/manifest"
	"github.com/peitaosu/msix-packaging/pkg/platform"
)

// Response keys filled by the query operations.
const (
	KeyFound           = "found"
	KeyPackageFullName = "package_full_name"
	KeyDisplayName     = "display_name"
	KeyDirectory       = "directory"
	KeyPackages        = "packages"
)

// PopulateHandler names the metadata handler in traces and step records.
const PopulateHandler HandlerName = "PopulatePackageInfo"

// Engine walks the add and remove routing tables.
type Engine struct {
	add      *Table
	remove   *Table
	populate Constructor
	paths    platform.Paths
}

// NewEngine creates an Engine. populate builds the metadata handler that a
// remove or find runs before anything else; the add table is expected to
// start with it.
func NewEngine(add, remove *Table, populate Constructor, paths platform.Paths) (*Engine, error) {
	if add == nil || add.Family() != FamilyAdd {
		return nil, errorx.IllegalArgument.New("engine needs an add family table")
	}
	if remove == nil || remove.Family() != FamilyRemove {
		return nil, errorx.IllegalArgument.New("engine needs a remove family table")
	}
	if populate == nil {
		return nil, errorx.IllegalArgument.New("engine needs a metadata handler constructor")
	}
	return &Engine{add: add, remove: remove, populate: populate, paths: paths}, nil
}

func (e *Engine) AddTable() *Table    { return e.add }
func (e *Engine) RemoveTable() *Table { return e.remove }

// Run performs the request and closes it. The returned error is the
// response's consolidated failure, if any.
func (e *Engine) Run(ctx context.Context, req *Request) (*Response, error) {
	defer func() {
		if err := req.Close(); err != nil {
			req.logger.Warn("release request resources", "error", err)
		}
	}()

	var err error
	switch req.Operation() {
	case OperationAdd:
		err = e.runAdd(ctx, req)
	case OperationRemove:
		err = e.runRemove(ctx, req)
	case OperationFindPackage:
		err = e.runFind(ctx, req)
	case OperationFindAllPackages:
		err = e.runFindAll(req)
	default:
		err = UnsupportedOperation.New("unsupported operation %s", req.Operation())
	}

	resp := req.resp
	if err != nil {
		resp.fail(err)
	} else if resp.Status == StatusPending {
		resp.Status = StatusSucceeded
	}
	req.logger.Info("operation finished", "status", resp.Status)
	return resp, resp.Err()
}

// runAdd walks the add table. A failing handler hands over to its error
// route; only a failure with no route left ends the walk early.
func (e *Engine) runAdd(ctx context.Context, req *Request) error {
	resp := req.resp
	budget := e.add.Len()
	current := e.add.Start()

	for steps := 0; current != ""; steps++ {
		if steps >= budget {
			return Routing.New("add walk exceeded %d steps at handler %q: routing cycle", budget, current).
				WithProperty(handlerProperty, current)
		}
		route, ok := e.add.Route(current)
		if !ok {
			return NotFound.New("add table has no row for handler %q", current).
				WithProperty(handlerProperty, current)
		}

		req.logger.Info("executing handler", "handler", current, "phase", PhaseAdd)
		err := e.execute(ctx, req, current, route.Create, PhaseAdd)
		if err == nil {
			resp.record(current, PhaseAdd, OutcomeOK, nil)
			current = route.Next
			continue
		}

		resp.record(current, PhaseAdd, OutcomeFailed, err)
		resp.fail(err)
		if route.OnError == "" {
			req.logger.Error("handler failed with no error route", "handler", current, "error", err)
			return resp.Err()
		}
		req.logger.Error("handler failed", "handler", current, "next", route.OnError, "error", err)
		current = route.OnError
	}
	return resp.Err()
}

// runRemove populates the metadata, which is fatal on failure, then walks
// the remove table best effort.
func (e *Engine) runRemove(ctx context.Context, req *Request) error {
	req.logger.Info("executing handler", "handler", PopulateHandler, "phase", PhaseRemove)
	if err := e.execute(ctx, req, PopulateHandler, e.populate, PhaseRemove); err != nil {
		req.resp.record(PopulateHandler, PhaseRemove, OutcomeFailed, err)
		return err
	}
	req.resp.record(PopulateHandler, PhaseRemove, OutcomeOK, nil)
	return e.walkBestEffort(ctx, req, e.remove, PhaseRemove)
}

// walkBestEffort follows success edges only; handler failures are logged
// and recorded as warnings. Only table defects stop it.
func (e *Engine) walkBestEffort(ctx context.Context, req *Request, t *Table, phase Phase) error {
	budget := t.Len()
	current := t.Start()

	for steps := 0; current != ""; steps++ {
		if steps >= budget {
			return Routing.New("%s walk exceeded %d steps at handler %q: routing cycle", t.Family(), budget, current).
				WithProperty(handlerProperty, current)
		}
		route, ok := t.Route(current)
		if !ok {
			return NotFound.New("%s table has no row for handler %q", t.Family(), current).
				WithProperty(handlerProperty, current)
		}

		req.logger.Info("executing handler", "handler", current, "phase", phase)
		if err := e.execute(ctx, req, current, route.Create, PhaseRemove); err != nil {
			req.logger.Warn("handler failed, continuing", "handler", current, "phase", phase, "error", err)
			req.resp.record(current, phase, OutcomeWarning, err)
		} else {
			req.resp.record(current, phase, OutcomeOK, nil)
		}
		current = route.Next
	}
	return nil
}

// runFind reports whether an installed package exists. A missing package
// or an unreadable manifest is a normal not-found outcome.
func (e *Engine) runFind(ctx context.Context, req *Request) error {
	resp := req.resp
	req.logger.Info("executing handler", "handler", PopulateHandler, "phase", PhaseRemove)

	h, err := e.populate(req)
	if err == nil {
		err = h.ExecuteForRemove(ctx)
	}
	if err != nil {
		if IsNotFound(err) || manifest.IsManifestError(err) {
			req.logger.Info("package not found", "package", req.PackageFullName(), "reason", err)
			resp.record(PopulateHandler, PhaseRemove, OutcomeFailed, err)
			resp.Set(KeyFound, false)
			return nil
		}
		return HandlerExecution.Wrap(err, "look up package %s", req.PackageFullName()).
			WithProperty(handlerProperty, PopulateHandler)
	}

	info, err := req.PackageInfo()
	if err != nil {
		return err
	}
	resp.record(PopulateHandler, PhaseRemove, OutcomeOK, nil)
	resp.Set(KeyFound, true)
	resp.Set(KeyPackageFullName, info.FullName)
	resp.Set(KeyDisplayName, info.DisplayName)
	resp.Set(KeyDirectory, info.Directory)
	return nil
}

// runFindAll lists the installed packages without touching any handler.
func (e *Engine) runFindAll(req *Request) error {
	dir := e.paths.PackagesDir()
	entries, err := os.ReadDir(dir)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("list packages in %s: %w", dir, err)
	}

	names := []string{}
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	req.resp.Set(KeyPackages, names)
	req.logger.Info("packages listed", "count", len(names))
	return nil
}

// execute constructs and runs one handler. Construction failures count as
// execution failures.
func (e *Engine) execute(ctx context.Context, req *Request, name HandlerName, create Constructor, phase Phase) error {
	if create == nil {
		return HandlerConstruction.New("handler %q has no constructor", name).WithProperty(handlerProperty, name)
	}
	h, err := create(req)
	if err != nil {
		return HandlerConstruction.Wrap(err, "construct %s", name).WithProperty(handlerProperty, name)
	}

	switch phase {
	case PhaseAdd:
		err = h.ExecuteForAdd(ctx)
	default:
		err = h.ExecuteForRemove(ctx)
	}
	if err != nil {
		return HandlerExecution.Wrap(err, "%s (%s)", name, phase).WithProperty(handlerProperty, name)
	}
	return nil
}
