package stream

import (
	"fmt"
	"os"
	"path/filepath"
)

// Sink is an output file that becomes visible only on Commit. Bytes are
// written to a temporary file in the target directory and renamed into
// place atomically, so an aborted run never leaves a partially written
// output behind.
type Sink struct {
	f         *os.File
	path      string
	committed bool
}

// CreateSink opens a sink for the given target path.
func CreateSink(path string) (*Sink, error) {
	dir := filepath.Dir(path)
	f, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return nil, fmt.Errorf("stream: creating temp output: %w", err)
	}
	return &Sink{f: f, path: path}, nil
}

func (s *Sink) Write(p []byte) (int, error) {
	return s.f.Write(p)
}

// Commit flushes the sink and renames it over the target path.
func (s *Sink) Commit() error {
	if err := s.f.Sync(); err != nil {
		s.f.Close()
		return err
	}
	if err := s.f.Close(); err != nil {
		return err
	}
	if err := os.Rename(s.f.Name(), s.path); err != nil {
		return fmt.Errorf("stream: finalizing output: %w", err)
	}
	s.committed = true
	return nil
}

// Close discards the sink if it was not committed.
func (s *Sink) Close() error {
	if s.committed {
		return nil
	}
	s.f.Close()
	return os.Remove(s.f.Name())
}
