// Package walog defines the write-ahead log contract the buffer pool
// depends on for flush-time durability (spec §4.G/§6) and a minimal
// file-backed implementation. The exact envelope of a log record is opaque
// to the storage kernel beyond LogWrite/Force; the log file format itself
// is out of scope per spec §1. Grounded on the teacher's pkg/log/wal
// (buffered append-only writer, LSN-tracked, Force syncs to durable
// storage).
package walog

import (
	"bufio"
	"encoding/binary"
	"os"
	"sync"

	"coursedb/internal/dberr"
	"coursedb/internal/primitives"
)

// LogFile is the append-only redo/undo log the buffer pool writes a record
// to before flushing a dirty page, per spec §4.E's log-then-write
// ordering.
type LogFile interface {
	LogWrite(tid primitives.TransactionID, before, after []byte) error
	Force() error
}

// FileLogFile is a minimal durable LogFile: each record is
// (tid int64, beforeLen uint32, afterLen uint32, before bytes, after
// bytes), appended to a buffered writer and fsynced on Force.
type FileLogFile struct {
	mu     sync.Mutex
	f      *os.File
	w      *bufio.Writer
}

// OpenFileLogFile opens (creating if absent) the log file at path.
func OpenFileLogFile(path string) (*FileLogFile, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, dberr.Wrap(err, dberr.CodeDbException, "Open", "LogFile")
	}
	return &FileLogFile{f: f, w: bufio.NewWriter(f)}, nil
}

// LogWrite appends one (tid, before, after) record to the buffered log.
func (l *FileLogFile) LogWrite(tid primitives.TransactionID, before, after []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var hdr [8 + 4 + 4]byte
	binary.BigEndian.PutUint64(hdr[0:8], uint64(tid.ID()))
	binary.BigEndian.PutUint32(hdr[8:12], uint32(len(before)))
	binary.BigEndian.PutUint32(hdr[12:16], uint32(len(after)))

	if _, err := l.w.Write(hdr[:]); err != nil {
		return dberr.Wrap(err, dberr.CodeDbException, "LogWrite", "LogFile")
	}
	if _, err := l.w.Write(before); err != nil {
		return dberr.Wrap(err, dberr.CodeDbException, "LogWrite", "LogFile")
	}
	if _, err := l.w.Write(after); err != nil {
		return dberr.Wrap(err, dberr.CodeDbException, "LogWrite", "LogFile")
	}
	return nil
}

// Force flushes the buffered writer and fsyncs the underlying file,
// guaranteeing every previously written record is durable.
func (l *FileLogFile) Force() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.w.Flush(); err != nil {
		return dberr.Wrap(err, dberr.CodeDbException, "Force", "LogFile")
	}
	if err := l.f.Sync(); err != nil {
		return dberr.Wrap(err, dberr.CodeDbException, "Force", "LogFile")
	}
	return nil
}

// Close flushes and closes the underlying file.
func (l *FileLogFile) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.w.Flush(); err != nil {
		return err
	}
	return l.f.Close()
}
