package storage

import (
	"context"
	"crypto/sha1"
	"database/sql"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/klauspost/compress/zstd"
	_ "github.com/mattn/go-sqlite3"

	"bitslicer/internal/models"
)

// ErrNotFound is returned by Load when no frame has the requested sequence
var ErrNotFound = errors.New("storage: frame not found")

// SQLiteSink stores frames in a SQLite database. Every sink instance is a
// new session; sequence numbers are unique within a session.
type SQLiteSink struct {
	db      *sql.DB
	session int64

	enc *zstd.Encoder
	dec *zstd.Decoder
}

// NewSQLiteSink opens (creating if necessary) the database in file. When
// compress is set frames are stored zstd-compressed.
func NewSQLiteSink(file string, compress bool) (*SQLiteSink, error) {
	db, err := sql.Open("sqlite3", fmt.Sprintf("%s?_foreign_keys=on", file))
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)

	if _, err = db.Exec("CREATE TABLE IF NOT EXISTS session (id INTEGER PRIMARY KEY AUTOINCREMENT NOT NULL, started_at TIMESTAMP NOT NULL)"); err != nil {
		db.Close()
		return nil, err
	}

	if _, err = db.Exec("CREATE TABLE IF NOT EXISTS frame (id INTEGER PRIMARY KEY NOT NULL, session_id INTEGER NOT NULL, seq INTEGER NOT NULL, sha1 TEXT NOT NULL, size INTEGER NOT NULL, compressed INTEGER NOT NULL, data BLOB NOT NULL, received_at TIMESTAMP NOT NULL, decoded TEXT, UNIQUE(session_id, seq), FOREIGN KEY(session_id) REFERENCES session(id))"); err != nil {
		db.Close()
		return nil, err
	}

	result, err := db.Exec("INSERT INTO session (started_at) VALUES (?)", time.Now().UTC())
	if err != nil {
		db.Close()
		return nil, err
	}

	s := &SQLiteSink{db: db}
	if s.session, err = result.LastInsertId(); err != nil {
		db.Close()
		return nil, err
	}

	s.dec, err = zstd.NewReader(nil, zstd.WithDecoderConcurrency(1), zstd.WithDecoderLowmem(true))
	if err != nil {
		db.Close()
		return nil, err
	}

	if compress {
		s.enc, err = zstd.NewWriter(nil,
			zstd.WithEncoderConcurrency(1),
			zstd.WithEncoderLevel(zstd.SpeedBetterCompression),
			zstd.WithLowerEncoderMem(true),
		)
		if err != nil {
			s.dec.Close()
			db.Close()
			return nil, err
		}
	}

	return s, nil
}

// Session returns the identifier frames of this sink are stored under
func (s *SQLiteSink) Session() int64 {
	return s.session
}

func (s *SQLiteSink) Store(ctx context.Context, f models.Frame) error {
	data := f.Data
	compressed := s.enc != nil
	if compressed {
		data = s.enc.EncodeAll(f.Data, nil)
	}

	receivedAt := f.ReceivedAt
	if receivedAt.IsZero() {
		receivedAt = time.Now()
	}

	_, err := s.db.ExecContext(ctx,
		"INSERT INTO frame (session_id, seq, sha1, size, compressed, data, received_at) VALUES (?, ?, ?, ?, ?, ?, ?)",
		s.session, f.Seq, fmt.Sprintf("%X", sha1.Sum(f.Data)), len(f.Data), compressed, data, receivedAt.UTC())
	return err
}

func (s *SQLiteSink) Record(ctx context.Context, seq int, char rune) error {
	result, err := s.db.ExecContext(ctx, "UPDATE frame SET decoded = ? WHERE session_id = ? AND seq = ?", string(char), s.session, seq)
	if err != nil {
		return err
	}
	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("%w: seq %d", ErrNotFound, seq)
	}
	return nil
}

// Load returns a frame stored by this sink together with its decoded
// character, or 0 if none was recorded.
func (s *SQLiteSink) Load(ctx context.Context, seq int) (models.Frame, rune, error) {
	var (
		data       []byte
		compressed bool
		receivedAt time.Time
		decoded    sql.NullString
	)

	switch err := s.db.QueryRowContext(ctx, "SELECT data, compressed, received_at, decoded FROM frame WHERE session_id = ? AND seq = ?", s.session, seq).Scan(&data, &compressed, &receivedAt, &decoded); err {
	case sql.ErrNoRows:
		return models.Frame{}, 0, fmt.Errorf("%w: seq %d", ErrNotFound, seq)
	case nil:
	default:
		return models.Frame{}, 0, err
	}

	if compressed {
		var err error
		if data, err = s.dec.DecodeAll(data, nil); err != nil {
			return models.Frame{}, 0, fmt.Errorf("zstd decode: %w", err)
		}
	}

	var char rune
	if decoded.Valid {
		char, _ = utf8.DecodeRuneInString(decoded.String)
	}

	return models.Frame{Seq: seq, Data: data, ReceivedAt: receivedAt}, char, nil
}

// Count returns the number of frames stored in this session
func (s *SQLiteSink) Count(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM frame WHERE session_id = ?", s.session).Scan(&n)
	return n, err
}

func (s *SQLiteSink) Close() error {
	if s.enc != nil {
		s.enc.Close()
	}
	s.dec.Close()
	return s.db.Close()
}
