package pipeline

import "context"

// HandlerName identifies a handler inside a routing table.
type HandlerName string

// Handler is one unit of install or remove work.
// Implementations live in the handlers sub-package; this interface is defined
// here so that Engine can use it without creating an import cycle.
type Handler interface {
	// ExecuteForAdd performs the handler's part of an installation.
	ExecuteForAdd(ctx context.Context) error
	// ExecuteForRemove undoes it. It must tolerate state that was never
	// created, since removal also runs as rollback of a partial install.
	ExecuteForRemove(ctx context.Context) error
}

// Constructor builds a handler for one request. Returning an error counts
// as a failure of the handler.
type Constructor func(req *Request) (Handler, error)
