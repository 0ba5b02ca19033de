package pipeline

// Family selects which of the two routing tables a walk uses.
type Family string

const (
	FamilyAdd    Family = "add"
	FamilyRemove Family = "remove"
)

// Route is the table row of one handler. An empty successor is the
// terminal sentinel.
type Route struct {
	Create Constructor
	// Next is taken when the handler succeeds. In the remove family it is
	// taken regardless of the outcome.
	Next HandlerName
	// OnError is taken when the handler fails. Add family only.
	OnError HandlerName
}

// Entry is one row handed to NewTable.
type Entry struct {
	Name HandlerName
	Route
}

// Table is a validated, immutable routing table.
type Table struct {
	family Family
	start  HandlerName
	routes map[HandlerName]Route
	order  []HandlerName
}

// NewTable validates the rows and freezes them into a Table.
func NewTable(family Family, start HandlerName, entries ...Entry) (*Table, error) {
	if err := ValidateErr(family, start, entries); err != nil {
		return nil, err
	}
	return newTable(family, start, entries), nil
}

// MustTable is NewTable for tables fixed at compile time.
func MustTable(family Family, start HandlerName, entries ...Entry) *Table {
	t, err := NewTable(family, start, entries...)
	if err != nil {
		panic(err)
	}
	return t
}

func newTable(family Family, start HandlerName, entries []Entry) *Table {
	t := &Table{
		family: family,
		start:  start,
		routes: make(map[HandlerName]Route, len(entries)),
	}
	for _, e := range entries {
		t.routes[e.Name] = e.Route
		t.order = append(t.order, e.Name)
	}
	return t
}

func (t *Table) Family() Family     { return t.family }
func (t *Table) Start() HandlerName { return t.start }
func (t *Table) Len() int           { return len(t.order) }

// Route looks up the row of name.
func (t *Table) Route(name HandlerName) (Route, bool) {
	r, ok := t.routes[name]
	return r, ok
}

// Names returns handler names in BFS order from the start, success edges
// before error edges; rows not reachable from the start follow in
// declaration order.
func (t *Table) Names() []HandlerName {
	visited := map[HandlerName]bool{}
	var order []HandlerName

	queue := []HandlerName{t.start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if visited[cur] {
			continue
		}
		r, ok := t.routes[cur]
		if !ok {
			continue
		}
		visited[cur] = true
		order = append(order, cur)
		for _, next := range []HandlerName{r.Next, r.OnError} {
			if next != "" && !visited[next] {
				queue = append(queue, next)
			}
		}
	}

	for _, name := range t.order {
		if !visited[name] {
			order = append(order, name)
		}
	}
	return order
}
