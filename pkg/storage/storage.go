/*
Package storage persists frames received by the relay.

A Sink stores every frame before it is decoded and records the decoded
character afterwards. DirSink writes one PNG file per frame, SQLiteSink
keeps frames in a SQLite database, optionally zstd-compressed, and Discard
drops everything.
*/
package storage

import (
	"context"
	"fmt"

	"bitslicer/internal/models"
)

// Sink receives frames and their decoded characters
type Sink interface {
	Store(ctx context.Context, f models.Frame) error
	Record(ctx context.Context, seq int, char rune) error
	Close() error
}

// Open returns the sink for driver ("none", "dir" or "sqlite"). The path is a
// directory for "dir" and a database file for "sqlite".
func Open(driver, path string, compress bool) (Sink, error) {
	switch driver {
	case "none", "":
		return Discard, nil
	case "dir":
		return NewDirSink(path)
	case "sqlite":
		return NewSQLiteSink(path, compress)
	}
	return nil, fmt.Errorf("storage: unknown driver %q", driver)
}

type discard struct{}

func (discard) Store(context.Context, models.Frame) error { return nil }
func (discard) Record(context.Context, int, rune) error   { return nil }
func (discard) Close() error                              { return nil }

// Discard is a Sink that drops everything
var Discard Sink = discard{}
