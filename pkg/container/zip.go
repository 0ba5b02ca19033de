package container

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/joomcode/errorx"
	"github.com/klauspost/compress/zip"
)

type zipEntry struct {
	name     string
	file     *zip.File
	buf      *buffer
	modified time.Time
}

// Zip is a Storage over a zip archive. Entries are decompressed into
// memory on first open; writes stay in memory until Commit.
type Zip struct {
	entries map[string]*zipEntry
	order   []string
	out     io.Writer
	closer  io.Closer
	dirty   bool
	written bool
}

// resetter is an output that can drop a previously committed archive.
// *bytes.Buffer is one.
type resetter interface {
	Reset()
}

// truncater is a file-like output; *os.File is one.
type truncater interface {
	io.Seeker
	Truncate(size int64) error
}

// ZipOption configures a Zip.
type ZipOption func(*Zip)

// WithOutput makes Commit write the complete archive to w whenever there
// are uncommitted changes. A second commit replaces the first one, so w must
// be a *bytes.Buffer, an *os.File or anything else with Reset or with Seek
// and Truncate; a plain io.Writer accepts only one commit.
func WithOutput(w io.Writer) ZipOption {
	return func(z *Zip) { z.out = w }
}

// OpenZip reads the archive structure from r. Any structural defect fails
// here rather than on a later operation.
func OpenZip(r io.ReaderAt, size int64, opts ...ZipOption) (*Zip, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil {
		return nil, FormatError.Wrap(err, "invalid zip archive")
	}

	z := &Zip{entries: make(map[string]*zipEntry, len(zr.File))}
	for _, opt := range opts {
		opt(z)
	}

	for _, f := range zr.File {
		if strings.HasSuffix(f.Name, "/") {
			continue
		}
		name, err := NormalizeName(f.Name)
		if err != nil {
			return nil, err
		}
		if name == "" {
			return nil, FormatError.New("empty entry name in central directory")
		}
		offset, err := f.DataOffset()
		if err != nil {
			return nil, FormatError.Wrap(err, "bad local header for entry %q", name).
				WithProperty(nameProperty, name)
		}
		if offset < 0 || uint64(offset)+f.CompressedSize64 > uint64(size) {
			return nil, FormatError.New("entry %q extends beyond the end of the archive", name).
				WithProperty(nameProperty, name)
		}
		key := foldName(name)
		if prev, ok := z.entries[key]; ok {
			return nil, FormatError.New("duplicate entry %q (already present as %q)", name, prev.name).
				WithProperty(nameProperty, name)
		}
		z.entries[key] = &zipEntry{name: name, file: f, modified: f.Modified}
		z.order = append(z.order, key)
	}
	return z, nil
}

// OpenZipFile opens the archive at path. Close releases the file.
func OpenZipFile(path string, opts ...ZipOption) (*Zip, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, EntryNotFound.Wrap(err, "package file not found: %s", path).
				WithProperty(pathProperty, path)
		}
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	z, err := OpenZip(f, info.Size(), opts...)
	if err != nil {
		_ = f.Close()
		return nil, errorx.Decorate(err, "package %s", path)
	}
	z.closer = f
	return z, nil
}

// NewZip returns an empty archive that Commit writes to w.
func NewZip(w io.Writer) *Zip {
	return &Zip{entries: make(map[string]*zipEntry), out: w}
}

func (z *Zip) PathSeparator() string { return "/" }

func (z *Zip) Names() []string {
	names := make([]string, 0, len(z.order))
	for _, key := range z.order {
		names = append(names, z.entries[key].name)
	}
	return names
}

func (z *Zip) Open(name string, mode Mode) (Stream, error) {
	logical := logicalName(name)
	if logical == "" {
		return nil, errorx.IllegalArgument.New("empty entry name")
	}
	key := foldName(logical)
	e, ok := z.entries[key]

	switch mode {
	case ModeRead, ModeReadUpdate:
		if !ok {
			return nil, newNotFound(logical)
		}
		if err := z.load(e); err != nil {
			return nil, err
		}
	case ModeWrite:
		if !ok {
			e = &zipEntry{name: logical, buf: &buffer{}}
			z.entries[key] = e
			z.order = append(z.order, key)
		} else if e.buf == nil {
			e.buf = &buffer{}
		} else {
			e.buf.data = e.buf.data[:0]
		}
		z.touch(e)
	default:
		return nil, errorx.IllegalArgument.New("unsupported open mode %s", mode)
	}

	return newMemStream(e.buf, mode, func() { z.touch(e) }), nil
}

func (z *Zip) Remove(name string) error {
	key := foldName(logicalName(name))
	if _, ok := z.entries[key]; !ok {
		return nil
	}
	delete(z.entries, key)
	for i, k := range z.order {
		if k == key {
			z.order = append(z.order[:i], z.order[i+1:]...)
			break
		}
	}
	z.dirty = true
	return nil
}

// Commit writes the whole archive to the output configured with
// WithOutput. Without an output, changes live only as long as z.
func (z *Zip) Commit() error {
	if !z.dirty || z.out == nil {
		return nil
	}
	if z.written {
		if err := z.rewind(); err != nil {
			return err
		}
	}
	for _, key := range z.order {
		if err := z.load(z.entries[key]); err != nil {
			return err
		}
	}

	zw := zip.NewWriter(z.out)
	for _, key := range z.order {
		e := z.entries[key]
		w, err := zw.CreateHeader(&zip.FileHeader{
			Name:     encodeName(e.name),
			Method:   zip.Deflate,
			Modified: e.modified,
		})
		if err != nil {
			return fmt.Errorf("commit entry %q: %w", e.name, err)
		}
		if _, err := w.Write(e.buf.data); err != nil {
			return fmt.Errorf("commit entry %q: %w", e.name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("commit archive: %w", err)
	}
	z.dirty = false
	z.written = true
	return nil
}

// rewind empties the output before a repeated commit.
func (z *Zip) rewind() error {
	switch out := z.out.(type) {
	case resetter:
		out.Reset()
	case truncater:
		if _, err := out.Seek(0, io.SeekStart); err != nil {
			return fmt.Errorf("rewind archive output: %w", err)
		}
		if err := out.Truncate(0); err != nil {
			return fmt.Errorf("truncate archive output: %w", err)
		}
	default:
		return errorx.IllegalState.New("archive output %T already holds a commit and cannot be rewritten", z.out)
	}
	return nil
}

func (z *Zip) Close() error {
	if z.closer == nil {
		return nil
	}
	err := z.closer.Close()
	z.closer = nil
	return err
}

// Size returns the uncompressed length of an entry.
func (z *Zip) Size(name string) (int64, error) {
	logical := logicalName(name)
	e, ok := z.entries[foldName(logical)]
	if !ok {
		return 0, newNotFound(logical)
	}
	if e.buf != nil {
		return int64(len(e.buf.data)), nil
	}
	return int64(e.file.UncompressedSize64), nil
}

func (z *Zip) touch(e *zipEntry) {
	e.modified = time.Now()
	z.dirty = true
}

func (z *Zip) load(e *zipEntry) error {
	if e.buf != nil {
		return nil
	}
	if e.file == nil {
		e.buf = &buffer{}
		return nil
	}
	rc, err := e.file.Open()
	if err != nil {
		return FormatError.Wrap(err, "open entry %q", e.name).WithProperty(nameProperty, e.name)
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return FormatError.Wrap(err, "read entry %q", e.name).WithProperty(nameProperty, e.name)
	}
	e.buf = &buffer{data: data}
	return nil
}
