package artifact

import (
	"bytes"
	"io"
	"os"
)

// spoolThreshold is the size at which a spool moves from memory to a
// backing temp file, so concurrent packaging calls do not each pin large
// memory regions.
const spoolThreshold = 4 << 20

// spool is a write-then-read buffer that stays in memory up to
// spoolThreshold bytes and spills to a temp file beyond it. Close releases
// the temp file; it must be called on every exit path.
type spool struct {
	buf    bytes.Buffer
	reader *bytes.Reader
	file   *os.File
	size   int64
}

func (s *spool) Write(p []byte) (int, error) {
	if s.file == nil && s.size+int64(len(p)) > spoolThreshold {
		if err := s.spill(); err != nil {
			return 0, err
		}
	}
	var n int
	var err error
	if s.file != nil {
		n, err = s.file.Write(p)
	} else {
		n, err = s.buf.Write(p)
	}
	s.size += int64(n)
	return n, err
}

func (s *spool) spill() error {
	f, err := os.CreateTemp("", "peak-artifact-*")
	if err != nil {
		return err
	}
	if _, err := f.Write(s.buf.Bytes()); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return err
	}
	s.buf.Reset()
	s.file = f
	return nil
}

// Size returns the number of bytes written so far.
func (s *spool) Size() int64 {
	return s.size
}

func (s *spool) Read(p []byte) (int, error) {
	if s.file != nil {
		return s.file.Read(p)
	}
	if s.reader == nil {
		s.reader = bytes.NewReader(s.buf.Bytes())
	}
	return s.reader.Read(p)
}

func (s *spool) Seek(offset int64, whence int) (int64, error) {
	if s.file != nil {
		return s.file.Seek(offset, whence)
	}
	if s.reader == nil {
		s.reader = bytes.NewReader(s.buf.Bytes())
	}
	return s.reader.Seek(offset, whence)
}

// Close releases the backing temp file, if any.
func (s *spool) Close() error {
	if s.file == nil {
		s.buf.Reset()
		s.reader = nil
		return nil
	}
	name := s.file.Name()
	err := s.file.Close()
	if rmErr := os.Remove(name); err == nil {
		err = rmErr
	}
	s.file = nil
	return err
}

var _ io.ReadSeeker = (*spool)(nil)
