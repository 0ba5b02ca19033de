package pipeline

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dominikbraun/graph"
)

// LintError describes a structural problem in a routing table.
type LintError struct {
	Handler HandlerName
	Message string
}

func (e LintError) Error() string {
	if e.Handler != "" {
		return fmt.Sprintf("handler %q: %s", e.Handler, e.Message)
	}
	return e.Message
}

// Validate checks a routing table for structural correctness.
// Returns all discovered errors (not just the first).
func Validate(family Family, start HandlerName, entries []Entry) []LintError {
	var errs []LintError

	if family != FamilyAdd && family != FamilyRemove {
		errs = append(errs, LintError{Message: fmt.Sprintf("unknown table family %q", family)})
	}

	rows := make(map[HandlerName]Route, len(entries))
	for _, e := range entries {
		if e.Name == "" {
			errs = append(errs, LintError{Message: "row with empty handler name"})
			continue
		}
		if _, dup := rows[e.Name]; dup {
			errs = append(errs, LintError{Handler: e.Name, Message: "declared more than once"})
			continue
		}
		if e.Create == nil {
			errs = append(errs, LintError{Handler: e.Name, Message: "has no constructor"})
		}
		rows[e.Name] = e.Route
	}

	if start == "" {
		errs = append(errs, LintError{Message: "table must declare a start handler"})
	} else if _, ok := rows[start]; !ok {
		errs = append(errs, LintError{Handler: start, Message: "start handler has no row"})
	}

	errorTargets := map[HandlerName]bool{}
	terminals := 0
	for _, e := range entries {
		r := rows[e.Name]
		if r.Next == "" && r.OnError == "" {
			terminals++
		}
		for _, target := range []HandlerName{r.Next, r.OnError} {
			if target == "" {
				continue
			}
			if _, ok := rows[target]; !ok {
				errs = append(errs, LintError{Handler: e.Name, Message: fmt.Sprintf("routes to unknown handler %q", target)})
			}
		}
		if r.OnError != "" {
			if family == FamilyRemove {
				errs = append(errs, LintError{Handler: e.Name, Message: "remove table rows cannot route failures"})
			}
			errorTargets[r.OnError] = true
		}
	}
	if len(rows) > 0 && terminals == 0 {
		errs = append(errs, LintError{Message: "table has no terminal handler"})
	}

	// In the add family every handler needs somewhere to send its failure,
	// except the error handlers themselves.
	if family == FamilyAdd {
		for _, e := range entries {
			if rows[e.Name].OnError == "" && !errorTargets[e.Name] {
				errs = append(errs, LintError{Handler: e.Name, Message: "has no error route"})
			}
		}
	}

	g, graphErrs := buildGraph(rows, entries)
	errs = append(errs, graphErrs...)

	if _, ok := rows[start]; ok {
		reachable := map[HandlerName]bool{}
		_ = graph.BFS(g, string(start), func(name string) bool {
			reachable[HandlerName(name)] = true
			return false
		})
		for _, e := range entries {
			if !reachable[e.Name] {
				errs = append(errs, LintError{Handler: e.Name, Message: "not reachable from start"})
			}
		}
	}

	return errs
}

// buildGraph loads the rows into a cycle-preventing directed graph. Every
// edge that would close a cycle is reported.
func buildGraph(rows map[HandlerName]Route, entries []Entry) (graph.Graph[string, string], []LintError) {
	g := graph.New(graph.StringHash, graph.Directed(), graph.PreventCycles())
	var errs []LintError

	for _, e := range entries {
		_ = g.AddVertex(string(e.Name))
	}
	for _, e := range entries {
		r := rows[e.Name]
		for _, target := range []HandlerName{r.Next, r.OnError} {
			if target == "" {
				continue
			}
			if _, ok := rows[target]; !ok {
				continue
			}
			err := g.AddEdge(string(e.Name), string(target))
			switch {
			case err == nil, errors.Is(err, graph.ErrEdgeAlreadyExists):
			case errors.Is(err, graph.ErrEdgeCreatesCycle):
				errs = append(errs, LintError{Handler: e.Name, Message: fmt.Sprintf("route to %q creates a cycle", target)})
			default:
				errs = append(errs, LintError{Handler: e.Name, Message: fmt.Sprintf("route to %q: %v", target, err)})
			}
		}
	}
	return g, errs
}

// ValidateErr calls Validate and returns nil if there are no errors, or a
// Routing error listing all lint errors.
func ValidateErr(family Family, start HandlerName, entries []Entry) error {
	errs := Validate(family, start, entries)
	if len(errs) == 0 {
		return nil
	}
	msgs := make([]string, len(errs))
	for i, e := range errs {
		msgs[i] = e.Error()
	}
	return Routing.New("%s table validation failed:\n  %s", family, strings.Join(msgs, "\n  "))
}
