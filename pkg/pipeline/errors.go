package pipeline

import "github.com/joomcode/errorx"

var (
	ErrorsNamespace = errorx.NewNamespace("pipeline")

	HandlerConstruction  = ErrorsNamespace.NewType("handler_construction")
	HandlerExecution     = ErrorsNamespace.NewType("handler_execution")
	NotFound             = ErrorsNamespace.NewType("not_found", errorx.NotFound())
	UnsupportedOperation = ErrorsNamespace.NewType("unsupported_operation")
	Routing              = ErrorsNamespace.NewType("routing")
	Update               = ErrorsNamespace.NewType("update")

	handlerProperty = errorx.RegisterPrintableProperty("handler")
)

// IsNotFound reports whether err carries the not-found trait, whichever
// package raised it.
func IsNotFound(err error) bool {
	return err != nil && errorx.HasTrait(err, errorx.NotFound())
}

// FailedHandler returns the handler recorded on a construction or execution
// error.
func FailedHandler(err error) (HandlerName, bool) {
	e := errorx.Cast(err)
	if e == nil {
		return "", false
	}
	v, ok := e.Property(handlerProperty)
	if !ok {
		return "", false
	}
	name, ok := v.(HandlerName)
	return name, ok
}
