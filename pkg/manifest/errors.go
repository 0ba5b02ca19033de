package manifest

import "github.com/joomcode/errorx"

var (
	ErrorsNamespace = errorx.NewNamespace("manifest")
	InvalidManifest = ErrorsNamespace.NewType("invalid_manifest")

	attributeProperty = errorx.RegisterPrintableProperty("attribute")
)

// IsManifestError reports whether err signals a missing or invalid manifest.
func IsManifestError(err error) bool {
	return err != nil && errorx.IsOfType(err, InvalidManifest)
}

func missingAttribute(element, attr string) error {
	return InvalidManifest.New("%s is missing required attribute %s", element, attr).
		WithProperty(attributeProperty, element+"@"+attr)
}
