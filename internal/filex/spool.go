// Package filex buffers uploaded file bodies so they can be re-read.
package filex

import (
	"bytes"
	"fmt"
	"io"
	"os"
)

// Spooled is a rewindable copy of a stream. Small bodies stay in memory,
// larger ones are written to a temporary file that Close removes.
type Spooled struct {
	io.ReadSeeker
	size int64
	file *os.File
}

// Size returns the number of bytes spooled.
func (s *Spooled) Size() int64 { return s.size }

// OnDisk reports whether the body was written to a temporary file.
func (s *Spooled) OnDisk() bool { return s.file != nil }

// Close releases the temporary file, if any.
func (s *Spooled) Close() error {
	if s.file == nil {
		return nil
	}
	name := s.file.Name()
	cerr := s.file.Close()
	if err := os.Remove(name); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove %s: %w", name, err)
	}
	return cerr
}

// Spool copies r. Up to memLimit bytes are kept in memory; anything larger
// goes to a temporary file in dir (os.TempDir when dir is empty).
func Spool(r io.Reader, memLimit int64, dir string) (*Spooled, error) {
	var buf bytes.Buffer
	n, err := io.CopyN(&buf, r, memLimit+1)
	if err != nil && err != io.EOF {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if n <= memLimit {
		return &Spooled{ReadSeeker: bytes.NewReader(buf.Bytes()), size: n}, nil
	}

	f, err := os.CreateTemp(dir, "filecatalog-upload-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	s := &Spooled{ReadSeeker: f, file: f}

	written, err := io.Copy(f, io.MultiReader(&buf, r))
	if err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("write %s: %w", f.Name(), err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		_ = s.Close()
		return nil, fmt.Errorf("rewind %s: %w", f.Name(), err)
	}
	s.size = written
	return s, nil
}
