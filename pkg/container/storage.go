// Package container exposes package archives and installed package
// directories as storage objects: flat sets of named entries that can be
// listed, opened as seekable streams, removed and committed.
package container

import (
	"fmt"
	"io"
)

// Mode selects how an entry is opened.
type Mode int

const (
	// ModeRead opens an existing entry for reading.
	ModeRead Mode = iota
	// ModeWrite creates the entry if needed and truncates it.
	ModeWrite
	// ModeReadUpdate opens an existing entry for reading and writing
	// without truncating it.
	ModeReadUpdate
)

func (m Mode) String() string {
	switch m {
	case ModeRead:
		return "read"
	case ModeWrite:
		return "write"
	case ModeReadUpdate:
		return "read-update"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Stream is an open entry.
type Stream interface {
	io.Reader
	io.Writer
	io.Seeker
	io.Closer
}

// Storage is a set of named entries.
//
// Entry names use "/" as separator regardless of the backing store.
type Storage interface {
	// PathSeparator returns the separator used in entry names.
	PathSeparator() string

	// Names lists every entry currently present.
	Names() []string

	// Open opens an entry. Opening a missing entry with ModeRead or
	// ModeReadUpdate returns an error for which IsNotFound reports true;
	// ModeWrite creates it empty.
	Open(name string, mode Mode) (Stream, error)

	// Remove deletes an entry. Removing a missing entry is a no-op.
	Remove(name string) error

	// Commit persists buffered writes. Stores without buffering treat it
	// as a no-op; callers still invoke it after their last write.
	Commit() error

	// Close releases the resources backing the storage.
	Close() error
}

// ReadEntry returns the whole content of an entry.
func ReadEntry(s Storage, name string) ([]byte, error) {
	st, err := s.Open(name, ModeRead)
	if err != nil {
		return nil, err
	}
	defer st.Close()

	data, err := io.ReadAll(st)
	if err != nil {
		return nil, fmt.Errorf("read entry %q: %w", name, err)
	}
	return data, nil
}

// WriteEntry replaces the content of an entry, creating it if needed.
func WriteEntry(s Storage, name string, data []byte) error {
	st, err := s.Open(name, ModeWrite)
	if err != nil {
		return err
	}
	_, writeErr := st.Write(data)
	closeErr := st.Close()
	if writeErr != nil {
		return fmt.Errorf("write entry %q: %w", name, writeErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close entry %q: %w", name, closeErr)
	}
	return nil
}

// CopyEntry streams one entry from src into dst under the same name.
func CopyEntry(dst, src Storage, name string) (int64, error) {
	in, err := src.Open(name, ModeRead)
	if err != nil {
		return 0, err
	}
	defer in.Close()

	out, err := dst.Open(name, ModeWrite)
	if err != nil {
		return 0, err
	}
	n, copyErr := io.Copy(out, in)
	closeErr := out.Close()
	if copyErr != nil {
		return n, fmt.Errorf("copy entry %q: %w", name, copyErr)
	}
	if closeErr != nil {
		return n, fmt.Errorf("close entry %q: %w", name, closeErr)
	}
	return n, nil
}
