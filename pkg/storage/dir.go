package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"bitslicer/internal/models"
)

// ResultsFilename holds one "<seq>\t<char>" line per decoded frame
const ResultsFilename = "results.tsv"

// DirSink writes each frame to <dir>/<seq>.png
type DirSink struct {
	dir string

	mu      sync.Mutex
	results *os.File
}

// NewDirSink creates dir if needed and returns a sink writing into it
func NewDirSink(dir string) (*DirSink, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(filepath.Join(dir, ResultsFilename), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return nil, err
	}
	return &DirSink{
		dir:     dir,
		results: f,
	}, nil
}

// FramePath returns the file a frame with sequence number seq is written to
func (s *DirSink) FramePath(seq int) string {
	return filepath.Join(s.dir, strconv.Itoa(seq)+".png")
}

func (s *DirSink) Store(ctx context.Context, f models.Frame) error {
	return os.WriteFile(s.FramePath(f.Seq), f.Data, 0644)
}

func (s *DirSink) Record(ctx context.Context, seq int, char rune) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintf(s.results, "%d\t%c\n", seq, char)
	return err
}

func (s *DirSink) Close() error {
	return s.results.Close()
}
