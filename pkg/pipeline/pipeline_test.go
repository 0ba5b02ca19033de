package pipeline_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/peitaosu/msix-packaging/pkg/manifest"
	"github.com/peitaosu/msix-packaging/pkg/pipeline"
	"github.com/peitaosu/msix-packaging/pkg/platform"
)

// ─── stubs ────────────────────────────────────────────────────────────────────

// stubHandler fails whichever phase it was given an error for.
type stubHandler struct {
	addErr    error
	removeErr error
	onAdd     func(ctx context.Context) error
}

func (h *stubHandler) ExecuteForAdd(ctx context.Context) error {
	if h.onAdd != nil {
		return h.onAdd(ctx)
	}
	return h.addErr
}

func (h *stubHandler) ExecuteForRemove(_ context.Context) error { return h.removeErr }

func okHandler() pipeline.Constructor {
	return func(*pipeline.Request) (pipeline.Handler, error) { return &stubHandler{}, nil }
}

func failingHandler(err error) pipeline.Constructor {
	return func(*pipeline.Request) (pipeline.Handler, error) {
		return &stubHandler{addErr: err, removeErr: err}, nil
	}
}

func unconstructible(err error) pipeline.Constructor {
	return func(*pipeline.Request) (pipeline.Handler, error) { return nil, err }
}

// needsInfo fails construction unless the metadata is already populated.
func needsInfo() pipeline.Constructor {
	return func(req *pipeline.Request) (pipeline.Handler, error) {
		if _, err := req.PackageInfo(); err != nil {
			return nil, err
		}
		return &stubHandler{}, nil
	}
}

// populateHandler attaches metadata named after the request.
type populateHandler struct {
	req *pipeline.Request
	err error
}

func (h *populateHandler) populate() error {
	if h.err != nil {
		return h.err
	}
	name := h.req.PackageFullName()
	if name == "" {
		name = "Pkg_1.0.0.0_x64__8wekyb3d8bbwe"
	}
	return h.req.SetPackageInfo(&pipeline.PackageInfo{
		FullName:    name,
		DisplayName: "Pkg",
		Directory:   filepath.Join(h.req.Paths().PackagesDir(), name),
	})
}

func (h *populateHandler) ExecuteForAdd(context.Context) error    { return h.populate() }
func (h *populateHandler) ExecuteForRemove(context.Context) error { return h.populate() }

func populate(err error) pipeline.Constructor {
	return func(req *pipeline.Request) (pipeline.Handler, error) {
		return &populateHandler{req: req, err: err}, nil
	}
}

type row struct {
	name   pipeline.HandlerName
	create pipeline.Constructor
}

const errorHandler pipeline.HandlerName = "ErrorHandler"

// addChain builds PopulatePackageInfo -> rows... with every row routing
// failures to an ErrorHandler built from errCreate.
func addChain(t *testing.T, pop pipeline.Constructor, errCreate pipeline.Constructor, rows ...row) *pipeline.Table {
	t.Helper()
	all := append([]row{{pipeline.PopulateHandler, pop}}, rows...)
	var entries []pipeline.Entry
	for i, r := range all {
		var next pipeline.HandlerName
		if i+1 < len(all) {
			next = all[i+1].name
		}
		entries = append(entries, pipeline.Entry{Name: r.name, Route: pipeline.Route{Create: r.create, Next: next, OnError: errorHandler}})
	}
	entries = append(entries, pipeline.Entry{Name: errorHandler, Route: pipeline.Route{Create: errCreate}})
	tbl, err := pipeline.NewTable(pipeline.FamilyAdd, pipeline.PopulateHandler, entries...)
	if err != nil {
		t.Fatalf("NewTable(add): %v", err)
	}
	return tbl
}

func removeChain(t *testing.T, rows ...row) *pipeline.Table {
	t.Helper()
	var entries []pipeline.Entry
	for i, r := range rows {
		var next pipeline.HandlerName
		if i+1 < len(rows) {
			next = rows[i+1].name
		}
		entries = append(entries, pipeline.Entry{Name: r.name, Route: pipeline.Route{Create: r.create, Next: next}})
	}
	tbl, err := pipeline.NewTable(pipeline.FamilyRemove, rows[0].name, entries...)
	if err != nil {
		t.Fatalf("NewTable(remove): %v", err)
	}
	return tbl
}

func defaultRemove(t *testing.T) *pipeline.Table {
	return removeChain(t, row{"Cleanup", okHandler()})
}

func newEngine(t *testing.T, add, remove *pipeline.Table, pop pipeline.Constructor) *pipeline.Engine {
	t.Helper()
	e, err := pipeline.NewEngine(add, remove, pop, platform.Paths{Root: t.TempDir()})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	return e
}

func run(t *testing.T, e *pipeline.Engine, opts pipeline.Options) (*pipeline.Response, error) {
	t.Helper()
	req, err := e.NewRequest(opts)
	if err != nil {
		t.Fatalf("NewRequest: %v", err)
	}
	return e.Run(context.Background(), req)
}

func addOpts() pipeline.Options {
	return pipeline.Options{Operation: pipeline.OperationAdd, PackageFilePath: "pkg.msix"}
}

func names(ns ...pipeline.HandlerName) []pipeline.HandlerName { return ns }

// ─── add pipeline ─────────────────────────────────────────────────────────────

func TestAdd_AllSucceed(t *testing.T) {
	add := addChain(t, populate(nil), okHandler(),
		row{"A", needsInfo()}, row{"B", okHandler()}, row{"C", okHandler()})
	e := newEngine(t, add, defaultRemove(t), populate(nil))

	resp, err := run(t, e, addOpts())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if resp.Status != pipeline.StatusSucceeded {
		t.Errorf("status = %s, want succeeded", resp.Status)
	}
	want := names(pipeline.PopulateHandler, "A", "B", "C")
	if got := resp.Visited(pipeline.PhaseAdd); !reflect.DeepEqual(got, want) {
		t.Errorf("visited = %v, want %v", got, want)
	}
	if resp.RequestID == "" {
		t.Error("response has no request id")
	}
}

func TestAdd_FailureRoutesToErrorHandler(t *testing.T) {
	handlers := []pipeline.HandlerName{"A", "B", "C", "D"}
	for k := range handlers {
		t.Run(string(handlers[k]), func(t *testing.T) {
			boom := fmt.Errorf("handler %s failed", handlers[k])
			var rows []row
			for i, n := range handlers {
				c := okHandler()
				if i == k {
					c = failingHandler(boom)
				}
				rows = append(rows, row{n, c})
			}
			e := newEngine(t, addChain(t, populate(nil), okHandler(), rows...), defaultRemove(t), populate(nil))

			resp, err := run(t, e, addOpts())
			if err == nil {
				t.Fatal("expected consolidated failure")
			}
			if resp.Err() != err {
				t.Errorf("Run error %v differs from response error %v", err, resp.Err())
			}
			if resp.Status != pipeline.StatusFailed {
				t.Errorf("status = %s, want failed", resp.Status)
			}
			if got, ok := pipeline.FailedHandler(err); !ok || got != handlers[k] {
				t.Errorf("failed handler = %q (%v), want %q", got, ok, handlers[k])
			}

			want := append(names(pipeline.PopulateHandler), handlers[:k+1]...)
			want = append(want, errorHandler)
			if got := resp.Visited(pipeline.PhaseAdd); !reflect.DeepEqual(got, want) {
				t.Errorf("visited = %v, want %v", got, want)
			}
		})
	}
}

func TestAdd_ConstructionFailureIsAFailure(t *testing.T) {
	add := addChain(t, populate(nil), okHandler(),
		row{"A", unconstructible(errors.New("bad extension data"))}, row{"B", okHandler()})
	e := newEngine(t, add, defaultRemove(t), populate(nil))

	resp, err := run(t, e, addOpts())
	if err == nil {
		t.Fatal("expected failure")
	}
	want := names(pipeline.PopulateHandler, "A", errorHandler)
	if got := resp.Visited(pipeline.PhaseAdd); !reflect.DeepEqual(got, want) {
		t.Errorf("visited = %v, want %v", got, want)
	}
	if resp.Steps[1].Outcome != pipeline.OutcomeFailed {
		t.Errorf("step outcome = %s, want failed", resp.Steps[1].Outcome)
	}
}

func TestAdd_ErrorHandlerFailureEndsWalk(t *testing.T) {
	add := addChain(t, populate(nil), failingHandler(errors.New("cleanup failed")),
		row{"A", failingHandler(errors.New("first"))}, row{"B", okHandler()})
	e := newEngine(t, add, defaultRemove(t), populate(nil))

	resp, err := run(t, e, addOpts())
	if err == nil {
		t.Fatal("expected hard failure")
	}
	if name, _ := pipeline.FailedHandler(err); name != "A" {
		t.Errorf("consolidated failure names %q, want the first failure A", name)
	}
	want := names(pipeline.PopulateHandler, "A", errorHandler)
	if got := resp.Visited(pipeline.PhaseAdd); !reflect.DeepEqual(got, want) {
		t.Errorf("visited = %v, want %v", got, want)
	}
}

func TestAdd_PopulateRunsBeforeConsumers(t *testing.T) {
	// A consumer placed before population fails construction.
	entries := []pipeline.Entry{
		{Name: "Consumer", Route: pipeline.Route{Create: needsInfo(), Next: pipeline.PopulateHandler, OnError: errorHandler}},
		{Name: pipeline.PopulateHandler, Route: pipeline.Route{Create: populate(nil), OnError: errorHandler}},
		{Name: errorHandler, Route: pipeline.Route{Create: okHandler()}},
	}
	add, err := pipeline.NewTable(pipeline.FamilyAdd, "Consumer", entries...)
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}
	e := newEngine(t, add, defaultRemove(t), populate(nil))

	resp, err := run(t, e, addOpts())
	if err == nil {
		t.Fatal("expected construction failure of the consumer")
	}
	if got := resp.Visited(pipeline.PhaseAdd); !reflect.DeepEqual(got, names("Consumer", errorHandler)) {
		t.Errorf("visited = %v", got)
	}
}

func TestAdd_ErrorHandlerRollsBack(t *testing.T) {
	rollback := func(req *pipeline.Request) (pipeline.Handler, error) {
		return &stubHandler{onAdd: req.Rollback}, nil
	}
	add := addChain(t, populate(nil), rollback,
		row{"A", okHandler()}, row{"B", failingHandler(errors.New("disk full"))})
	remove := removeChain(t, row{"UndoA", failingHandler(errors.New("nothing to undo"))}, row{"UndoB", okHandler()})
	e := newEngine(t, add, remove, populate(nil))

	resp, err := run(t, e, addOpts())
	if err == nil {
		t.Fatal("expected failure")
	}
	if got := resp.Visited(pipeline.PhaseRollback); !reflect.DeepEqual(got, names("UndoA", "UndoB")) {
		t.Errorf("rollback visited = %v", got)
	}
	for _, s := range resp.Steps {
		if s.Handler == errorHandler && s.Outcome != pipeline.OutcomeOK {
			t.Errorf("error handler outcome = %s, want ok", s.Outcome)
		}
	}
}

func TestAdd_RollbackWithoutInfoIsNoop(t *testing.T) {
	rollback := func(req *pipeline.Request) (pipeline.Handler, error) {
		return &stubHandler{onAdd: req.Rollback}, nil
	}
	add := addChain(t, populate(errors.New("corrupt package")), rollback)
	e := newEngine(t, add, removeChain(t, row{"Undo", okHandler()}), populate(nil))

	resp, err := run(t, e, addOpts())
	if err == nil {
		t.Fatal("expected failure")
	}
	if got := resp.Visited(pipeline.PhaseRollback); len(got) != 0 {
		t.Errorf("rollback ran without metadata: %v", got)
	}
}

func TestAdd_ChildRemove(t *testing.T) {
	var child *pipeline.Response
	superseder := func(req *pipeline.Request) (pipeline.Handler, error) {
		return &stubHandler{onAdd: func(ctx context.Context) error {
			resp, err := req.Remove(ctx, "Old_0.9.0.0_x64__8wekyb3d8bbwe")
			child = resp
			return err
		}}, nil
	}
	add := addChain(t, populate(nil), okHandler(), row{"Supersede", superseder})
	e := newEngine(t, add, defaultRemove(t), populate(nil))

	resp, err := run(t, e, addOpts())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if child == nil || child.Status != pipeline.StatusSucceeded {
		t.Fatalf("child remove = %+v", child)
	}
	if child.RequestID == resp.RequestID {
		t.Error("child request reused the parent id")
	}
	if got := child.Visited(pipeline.PhaseRemove); !reflect.DeepEqual(got, names(pipeline.PopulateHandler, "Cleanup")) {
		t.Errorf("child visited = %v", got)
	}
}

// ─── remove pipeline ──────────────────────────────────────────────────────────

func TestRemove_BestEffortVisitsEveryHandler(t *testing.T) {
	handlers := []pipeline.HandlerName{"R1", "R2", "R3", "R4"}
	for k := range handlers {
		for _, kind := range []string{"execute", "construct"} {
			t.Run(fmt.Sprintf("%s/%s", handlers[k], kind), func(t *testing.T) {
				var rows []row
				for i, n := range handlers {
					c := okHandler()
					if i == k {
						if kind == "execute" {
							c = failingHandler(errors.New("locked"))
						} else {
							c = unconstructible(errors.New("bad data"))
						}
					}
					rows = append(rows, row{n, c})
				}
				add := addChain(t, populate(nil), okHandler())
				e := newEngine(t, add, removeChain(t, rows...), populate(nil))

				resp, err := run(t, e, pipeline.Options{Operation: pipeline.OperationRemove, PackageFullName: "Pkg_1.0.0.0_x64__abc"})
				if err != nil {
					t.Fatalf("Run: %v", err)
				}
				if resp.Status != pipeline.StatusSucceeded {
					t.Errorf("status = %s, want succeeded", resp.Status)
				}
				want := append(names(pipeline.PopulateHandler), handlers...)
				if got := resp.Visited(pipeline.PhaseRemove); !reflect.DeepEqual(got, want) {
					t.Errorf("visited = %v, want %v", got, want)
				}
				if got := resp.Steps[k+1].Outcome; got != pipeline.OutcomeWarning {
					t.Errorf("failing step outcome = %s, want warning", got)
				}
			})
		}
	}
}

func TestRemove_PopulateFailureIsFatal(t *testing.T) {
	notInstalled := pipeline.NotFound.New("package not installed")
	add := addChain(t, populate(nil), okHandler())
	remove := removeChain(t, row{"R1", okHandler()}, row{"R2", okHandler()})
	e := newEngine(t, add, remove, populate(notInstalled))

	resp, err := run(t, e, pipeline.Options{Operation: pipeline.OperationRemove, PackageFullName: "Missing_1.0.0.0_x64__abc"})
	if err == nil {
		t.Fatal("expected fatal error")
	}
	if resp.Status != pipeline.StatusFailed {
		t.Errorf("status = %s, want failed", resp.Status)
	}
	if got := resp.Visited(pipeline.PhaseRemove); !reflect.DeepEqual(got, names(pipeline.PopulateHandler)) {
		t.Errorf("visited = %v, want only the populate step", got)
	}
}

// ─── queries ──────────────────────────────────────────────────────────────────

func TestFindPackage(t *testing.T) {
	tests := []struct {
		name      string
		popErr    error
		wantFound bool
		wantErr   bool
	}{
		{name: "found"},
		{name: "not installed", popErr: pipeline.NotFound.New("no such package")},
		{name: "manifest without identity", popErr: manifest.InvalidManifest.New("Identity is missing required attribute Name")},
		{name: "io failure", popErr: errors.New("permission denied"), wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			add := addChain(t, populate(nil), okHandler())
			e := newEngine(t, add, defaultRemove(t), populate(tt.popErr))

			full := "App1_1.0.0.0_x64__8wekyb3d8bbwe"
			resp, err := run(t, e, pipeline.Options{Operation: pipeline.OperationFindPackage, PackageFullName: full})
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			if resp.Status != pipeline.StatusSucceeded {
				t.Errorf("status = %s", resp.Status)
			}
			found := tt.popErr == nil
			if resp.GetBool(pipeline.KeyFound) != found {
				t.Errorf("found = %v, want %v", resp.GetBool(pipeline.KeyFound), found)
			}
			if found && resp.GetString(pipeline.KeyPackageFullName) != full {
				t.Errorf("full name = %q", resp.GetString(pipeline.KeyPackageFullName))
			}
		})
	}
}

func TestFindAllPackages(t *testing.T) {
	root := t.TempDir()
	paths := platform.Paths{Root: root}
	e, err := pipeline.NewEngine(addChain(t, populate(nil), okHandler()), defaultRemove(t), populate(nil), paths)
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}

	resp, err := run(t, e, pipeline.Options{Operation: pipeline.OperationFindAllPackages})
	if err != nil {
		t.Fatalf("Run on empty root: %v", err)
	}
	if got, _ := resp.Get(pipeline.KeyPackages); len(got.([]string)) != 0 {
		t.Errorf("packages = %v, want none", got)
	}

	for _, dir := range []string{"B_1.0.0.0_x64__abc", "A_1.0.0.0_x64__abc"} {
		if err := os.MkdirAll(filepath.Join(paths.PackagesDir(), dir), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.WriteFile(filepath.Join(paths.PackagesDir(), "stray.txt"), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	resp, err = run(t, e, pipeline.Options{Operation: pipeline.OperationFindAllPackages})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	got, _ := resp.Get(pipeline.KeyPackages)
	want := []string{"A_1.0.0.0_x64__abc", "B_1.0.0.0_x64__abc"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("packages = %v, want %v", got, want)
	}
	if len(resp.Steps) != 0 {
		t.Errorf("listing dispatched handlers: %v", resp.Steps)
	}
}

// ─── requests ─────────────────────────────────────────────────────────────────

func TestNewRequest_Validation(t *testing.T) {
	e := newEngine(t, addChain(t, populate(nil), okHandler()), defaultRemove(t), populate(nil))
	bad := []pipeline.Options{
		{Operation: pipeline.OperationAdd},
		{Operation: pipeline.OperationRemove},
		{Operation: pipeline.OperationFindPackage},
		{Operation: pipeline.Operation(42), PackageFullName: "x"},
	}
	for _, opts := range bad {
		if _, err := e.NewRequest(opts); err == nil {
			t.Errorf("NewRequest(%+v) succeeded, want error", opts)
		}
	}
}

func TestRequest_PackageInfoSetOnce(t *testing.T) {
	e := newEngine(t, addChain(t, populate(nil), okHandler()), defaultRemove(t), populate(nil))
	req, err := e.NewRequest(addOpts())
	if err != nil {
		t.Fatal(err)
	}
	if req.HasPackageInfo() {
		t.Fatal("fresh request has package info")
	}
	if _, err := req.PackageInfo(); err == nil {
		t.Error("PackageInfo before population should fail")
	}
	if err := req.SetPackageInfo(&pipeline.PackageInfo{FullName: "a"}); err != nil {
		t.Fatal(err)
	}
	if err := req.SetPackageInfo(&pipeline.PackageInfo{FullName: "b"}); err == nil {
		t.Error("second SetPackageInfo should fail")
	}

	closed := 0
	req.OnClose(func() error { closed++; return nil })
	if err := req.Close(); err != nil {
		t.Fatal(err)
	}
	if err := req.Close(); err != nil {
		t.Fatal(err)
	}
	if closed != 1 {
		t.Errorf("close hook ran %d times, want 1", closed)
	}
}

func TestResponse_WriteJSON(t *testing.T) {
	e := newEngine(t, addChain(t, populate(nil), okHandler(), row{"A", okHandler()}), defaultRemove(t), populate(nil))
	resp, err := run(t, e, addOpts())
	if err != nil {
		t.Fatal(err)
	}
	resp.Set("installed", true)

	out := filepath.Join(t.TempDir(), "out.json")
	if err := resp.WriteJSON(out); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	data, err := os.ReadFile(out)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{`"status": "succeeded"`, `"operation": "add"`, `"handler": "A"`, `"installed": true`} {
		if !strings.Contains(string(data), want) {
			t.Errorf("output missing %s:\n%s", want, data)
		}
	}
}
