package container

import (
	"fmt"
	"strings"

	"github.com/joomcode/errorx"
)

// Footprint entries of a package. They describe the package and are not
// part of its payload.
const (
	ManifestName      = "AppxManifest.xml"
	BlockMapName      = "AppxBlockMap.xml"
	SignatureName     = "AppxSignature.p7x"
	ContentTypesName  = "[Content_Types].xml"
	CodeIntegrityName = "AppxMetadata/CodeIntegrity.cat"
)

// IsFootprint reports whether name is a footprint entry.
func IsFootprint(name string) bool {
	switch foldName(name) {
	case foldName(ManifestName), foldName(BlockMapName), foldName(SignatureName),
		foldName(ContentTypesName), foldName(CodeIntegrityName):
		return true
	}
	return false
}

// Validation is the strictness applied when a package is opened.
type Validation int

const (
	// ValidateFull requires every footprint entry, signature included.
	ValidateFull Validation = iota
	// ValidateSkipSignature does not require a signature entry.
	ValidateSkipSignature
	// ValidateAllowUnknownOrigin requires the signature entry but accepts
	// any signer. Signer trust is not evaluated here.
	ValidateAllowUnknownOrigin
)

var validationNames = map[Validation]string{
	ValidateFull:               "full",
	ValidateSkipSignature:      "skip-signature",
	ValidateAllowUnknownOrigin: "allow-unknown-origin",
}

func (v Validation) String() string {
	if s, ok := validationNames[v]; ok {
		return s
	}
	return fmt.Sprintf("validation(%d)", int(v))
}

// ParseValidation parses the textual form produced by String.
func ParseValidation(s string) (Validation, error) {
	want := strings.ToLower(strings.TrimSpace(s))
	if want == "" {
		return ValidateFull, nil
	}
	for v, name := range validationNames {
		if name == want {
			return v, nil
		}
	}
	return ValidateFull, errorx.IllegalArgument.New("unknown validation policy %q", s)
}

func (v Validation) requiredEntries() []string {
	required := []string{ManifestName, BlockMapName, ContentTypesName}
	if v != ValidateSkipSignature {
		required = append(required, SignatureName)
	}
	return required
}

// ValidatePackage checks that s carries the footprint entries v requires.
func ValidatePackage(s Storage, v Validation) error {
	present := make(map[string]bool)
	for _, name := range s.Names() {
		present[foldName(name)] = true
	}
	var missing []string
	for _, name := range v.requiredEntries() {
		if !present[foldName(name)] {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return FormatError.New("package is missing %s (validation %s)", strings.Join(missing, ", "), v)
	}
	return nil
}

// OpenPackage opens a package file and validates its footprint. The
// returned Zip must be closed by the caller.
func OpenPackage(path string, v Validation) (*Zip, error) {
	z, err := OpenZipFile(path)
	if err != nil {
		return nil, err
	}
	if err := ValidatePackage(z, v); err != nil {
		_ = z.Close()
		return nil, errorx.Decorate(err, "package %s", path)
	}
	return z, nil
}
