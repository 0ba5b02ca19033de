package manifest

import (
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/hashicorp/go-version"
	"github.com/joomcode/errorx"
	"golang.org/x/text/encoding/unicode"
)

// Architectures accepted in Identity@ProcessorArchitecture.
var architectures = map[string]bool{
	"x86": true, "x64": true, "arm": true, "arm64": true, "neutral": true, "x86a64": true,
}

const publisherIDAlphabet = "0123456789abcdefghjkmnpqrstvwxyz"

// Identity is the package identity declared by the manifest.
type Identity struct {
	Name                  string
	Publisher             string
	Version               string
	ProcessorArchitecture string
	ResourceID            string

	version     *version.Version
	publisherID string
}

func newIdentity(name, publisher, ver, arch, resourceID string) (Identity, error) {
	if name == "" {
		return Identity{}, missingAttribute("Identity", "Name")
	}
	if publisher == "" {
		return Identity{}, missingAttribute("Identity", "Publisher")
	}
	if ver == "" {
		return Identity{}, missingAttribute("Identity", "Version")
	}
	if strings.Contains(name, "_") {
		return Identity{}, InvalidManifest.New("identity name %q must not contain '_'", name)
	}

	parsed, err := ParseVersion(ver)
	if err != nil {
		return Identity{}, err
	}

	arch = strings.ToLower(arch)
	if arch == "" {
		arch = "neutral"
	}
	if !architectures[arch] {
		return Identity{}, InvalidManifest.New("unsupported processor architecture %q", arch)
	}

	pid, err := PublisherID(publisher)
	if err != nil {
		return Identity{}, err
	}

	return Identity{
		Name:                  name,
		Publisher:             publisher,
		Version:               ver,
		ProcessorArchitecture: arch,
		ResourceID:            resourceID,
		version:               parsed,
		publisherID:           pid,
	}, nil
}

// ParseVersion parses a four-part package version such as 1.0.0.0.
func ParseVersion(s string) (*version.Version, error) {
	if strings.Count(s, ".") != 3 {
		return nil, InvalidManifest.New("version %q must have four parts", s)
	}
	v, err := version.NewVersion(s)
	if err != nil {
		return nil, InvalidManifest.Wrap(err, "invalid version %q", s)
	}
	if v.Prerelease() != "" || v.Metadata() != "" || strings.HasPrefix(s, "v") {
		return nil, InvalidManifest.New("version %q must be numeric", s)
	}
	for _, seg := range v.Segments64() {
		if seg > 0xffff {
			return nil, InvalidManifest.New("version %q has a part above 65535", s)
		}
	}
	return v, nil
}

// ParsedVersion returns the version for ordering comparisons.
func (id Identity) ParsedVersion() *version.Version { return id.version }

// PublisherID returns the 13 character publisher hash.
func (id Identity) PublisherID() string { return id.publisherID }

// FullName returns Name_Version_Architecture_ResourceId_PublisherId.
func (id Identity) FullName() string {
	return strings.Join([]string{id.Name, id.Version, id.ProcessorArchitecture, id.ResourceID, id.publisherID}, "_")
}

// FamilyName returns Name_PublisherId.
func (id Identity) FamilyName() string {
	return id.Name + "_" + id.publisherID
}

// PublisherID hashes a publisher distinguished name the way package family
// names do: SHA-256 over its UTF-16LE form, first 64 bits, padded with one
// zero bit to 65 bits, in lowercase Crockford base32.
func PublisherID(publisher string) (string, error) {
	raw, err := unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM).NewEncoder().Bytes([]byte(publisher))
	if err != nil {
		return "", errorx.Decorate(InvalidManifest.Wrap(err, "encode publisher"), "publisher %q", publisher)
	}
	sum := sha256.Sum256(raw)
	bits := binary.BigEndian.Uint64(sum[:8])

	out := make([]byte, 13)
	for i := 0; i < 12; i++ {
		out[i] = publisherIDAlphabet[(bits>>(59-5*i))&0x1f]
	}
	out[12] = publisherIDAlphabet[(bits&0x0f)<<1]
	return string(out), nil
}

// FullNameParts is a package full name split into its fields.
type FullNameParts struct {
	Name                  string
	Version               string
	ProcessorArchitecture string
	ResourceID            string
	PublisherID           string
}

// FamilyName returns Name_PublisherId.
func (p FullNameParts) FamilyName() string { return p.Name + "_" + p.PublisherID }

// ParseFullName splits a package full name.
func ParseFullName(fullName string) (FullNameParts, error) {
	fields := strings.Split(fullName, "_")
	if len(fields) != 5 {
		return FullNameParts{}, errorx.IllegalArgument.New("malformed package full name %q", fullName)
	}
	for i, f := range fields {
		if f == "" && i != 3 {
			return FullNameParts{}, errorx.IllegalArgument.New("malformed package full name %q", fullName)
		}
	}
	return FullNameParts{
		Name:                  fields[0],
		Version:               fields[1],
		ProcessorArchitecture: fields[2],
		ResourceID:            fields[3],
		PublisherID:           fields[4],
	}, nil
}

func (p FullNameParts) String() string {
	return fmt.Sprintf("%s_%s_%s_%s_%s", p.Name, p.Version, p.ProcessorArchitecture, p.ResourceID, p.PublisherID)
}
