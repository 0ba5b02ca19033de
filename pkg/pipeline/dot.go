package pipeline

import (
	"fmt"
	"strings"

	gographviz "github.com/awalterschulze/gographviz"
)

// DOT renders the table as a Graphviz digraph. Success edges are solid,
// error routes dashed.
func (t *Table) DOT() (string, error) {
	g := gographviz.NewGraph()
	name := string(t.family)
	if err := g.SetName(name); err != nil {
		return "", fmt.Errorf("dot graph name: %w", err)
	}
	if err := g.SetDir(true); err != nil {
		return "", fmt.Errorf("dot graph direction: %w", err)
	}
	if err := g.AddAttr(name, "rankdir", "LR"); err != nil {
		return "", fmt.Errorf("dot graph attribute: %w", err)
	}

	for _, n := range t.Names() {
		attrs := map[string]string{"shape": "box"}
		if n == t.start {
			attrs["style"] = "bold"
		}
		r := t.routes[n]
		if r.Next == "" && r.OnError == "" {
			attrs["shape"] = "doubleoctagon"
		}
		if err := g.AddNode(name, dotQuote(string(n)), attrs); err != nil {
			return "", fmt.Errorf("dot node %q: %w", n, err)
		}
	}

	for _, n := range t.Names() {
		r := t.routes[n]
		if r.Next != "" {
			if err := g.AddEdge(dotQuote(string(n)), dotQuote(string(r.Next)), true, nil); err != nil {
				return "", fmt.Errorf("dot edge %q→%q: %w", n, r.Next, err)
			}
		}
		if r.OnError != "" {
			attrs := map[string]string{"style": "dashed", "color": "red", "label": dotQuote("on error")}
			if err := g.AddEdge(dotQuote(string(n)), dotQuote(string(r.OnError)), true, attrs); err != nil {
				return "", fmt.Errorf("dot edge %q→%q: %w", n, r.OnError, err)
			}
		}
	}
	return g.String(), nil
}

// dotQuote returns the value as a DOT-safe ID, quoting if necessary.
func dotQuote(s string) string {
	needsQuote := s == "" ||
		strings.ContainsAny(s, " \t\n\\\"{}[]<>=;,.-")
	if needsQuote {
		escaped := strings.ReplaceAll(s, `\`, `\\`)
		escaped = strings.ReplaceAll(escaped, `"`, `\"`)
		return `"` + escaped + `"`
	}
	return s
}
