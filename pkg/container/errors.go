package container

import "github.com/joomcode/errorx"

var (
	ErrorsNamespace = errorx.NewNamespace("container")
	FormatError     = ErrorsNamespace.NewType("format_error")
	EntryNotFound   = ErrorsNamespace.NewType("entry_not_found", errorx.NotFound())

	nameProperty = errorx.RegisterPrintableProperty("name")
	pathProperty = errorx.RegisterPrintableProperty("path")
)

func newNotFound(name string) error {
	return EntryNotFound.New("entry %q not found", name).
		WithProperty(nameProperty, name)
}

// IsNotFound reports whether err signals a missing entry or storage.
func IsNotFound(err error) bool {
	return err != nil && errorx.HasTrait(err, errorx.NotFound())
}

// IsFormatError reports whether err signals a structurally invalid container.
func IsFormatError(err error) bool {
	return err != nil && errorx.IsOfType(err, FormatError)
}
