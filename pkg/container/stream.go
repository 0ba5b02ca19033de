package container

import (
	"io"
	"os"

	"github.com/joomcode/errorx"
)

// maxEntrySize bounds an in-memory entry, and with it every write offset.
const maxEntrySize int64 = 4 << 30

// buffer is the shared backing store of one zip entry. Every stream opened
// on the entry reads and writes the same buffer.
type buffer struct {
	data []byte
}

type memStream struct {
	buf     *buffer
	off     int64
	mode    Mode
	closed  bool
	onWrite func()
}

func newMemStream(buf *buffer, mode Mode, onWrite func()) *memStream {
	return &memStream{buf: buf, mode: mode, onWrite: onWrite}
}

func (s *memStream) Read(p []byte) (int, error) {
	if s.closed {
		return 0, os.ErrClosed
	}
	if s.off >= int64(len(s.buf.data)) {
		return 0, io.EOF
	}
	n := copy(p, s.buf.data[s.off:])
	s.off += int64(n)
	return n, nil
}

func (s *memStream) Write(p []byte) (int, error) {
	if s.closed {
		return 0, os.ErrClosed
	}
	if s.mode == ModeRead {
		return 0, errorx.IllegalState.New("stream opened read-only")
	}
	if int64(len(p)) > maxEntrySize-s.off {
		return 0, errorx.IllegalArgument.New("write of %d bytes at offset %d exceeds the %d byte entry limit", len(p), s.off, maxEntrySize)
	}
	end := s.off + int64(len(p))
	if end > int64(len(s.buf.data)) {
		grown := make([]byte, end)
		copy(grown, s.buf.data)
		s.buf.data = grown
	}
	copy(s.buf.data[s.off:end], p)
	s.off = end
	if s.onWrite != nil && len(p) > 0 {
		s.onWrite()
	}
	return len(p), nil
}

func (s *memStream) Seek(offset int64, whence int) (int64, error) {
	if s.closed {
		return 0, os.ErrClosed
	}
	var base int64
	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		base = s.off
	case io.SeekEnd:
		base = int64(len(s.buf.data))
	default:
		return 0, errorx.IllegalArgument.New("invalid whence %d", whence)
	}
	pos := base + offset
	if pos < 0 {
		return 0, errorx.IllegalArgument.New("negative seek position %d", pos)
	}
	s.off = pos
	return pos, nil
}

func (s *memStream) Close() error {
	s.closed = true
	return nil
}
