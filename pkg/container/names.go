package container

import (
	"net/url"
	"strings"
)

// NormalizeName converts a name stored in an archive to its logical form:
// "/" separators, percent escapes decoded, no leading slash. Names handed
// to Open and Remove are already logical and are never decoded again.
func NormalizeName(raw string) (string, error) {
	decoded, err := url.PathUnescape(strings.ReplaceAll(raw, `\`, "/"))
	if err != nil {
		return "", FormatError.Wrap(err, "undecodable entry name %q", raw).
			WithProperty(nameProperty, raw)
	}
	return strings.TrimLeft(decoded, "/"), nil
}

// logicalName cleans a caller-supplied logical name. A literal "%" stays
// as it is.
func logicalName(name string) string {
	return strings.TrimLeft(strings.ReplaceAll(name, `\`, "/"), "/")
}

// foldName is the identity key of an entry name inside a zip container.
// Part names of a package compare case-insensitively.
func foldName(name string) string {
	return strings.ToLower(name)
}

// encodeName percent-encodes the bytes a part name cannot carry literally.
func encodeName(name string) string {
	var sb strings.Builder
	for i := 0; i < len(name); i++ {
		c := name[i]
		if isPartNameByte(c) {
			sb.WriteByte(c)
			continue
		}
		sb.WriteByte('%')
		sb.WriteByte("0123456789ABCDEF"[c>>4])
		sb.WriteByte("0123456789ABCDEF"[c&0x0f])
	}
	return sb.String()
}

func isPartNameByte(c byte) bool {
	switch {
	case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		return true
	}
	return strings.IndexByte("-._~!$&'()*+,;=:@[]/", c) >= 0
}
