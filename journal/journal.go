// Package journal is the durable, append-only record of every raw message received from the
// push feed. Each message is one newline-terminated line, flushed to disk before Append
// returns. At startup the file is replayed from the beginning to rebuild in-memory state.
package journal

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"iter"
	"os"
	"path/filepath"
	"sync"
)

const (
	// DefaultDir is the directory the journal lives in, relative to the working directory.
	DefaultDir = "MergeTracker"
	// FileName is the journal file inside the directory.
	FileName = "SocketDump.json"

	// MaxLineBytes is the longest line replay can read back, newline included. Producers
	// must not hand Append anything longer.
	MaxLineBytes = 4 << 20
)

// ErrClosed is returned by Append after Close.
var ErrClosed = errors.New("journal: closed")

// Journal appends raw messages to a single file.
type Journal struct {
	mu      sync.Mutex
	f       *os.File
	path    string
	existed bool
	closed  bool
}

// Open creates dir if needed and opens dir/SocketDump.json for appending. An existing file is
// never truncated.
func Open(dir string) (*Journal, error) {
	if dir == "" {
		dir = DefaultDir
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}
	path := filepath.Join(dir, FileName)
	existed := true
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		existed = false
	} else if err != nil {
		return nil, fmt.Errorf("stat journal: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open journal: %w", err)
	}
	return &Journal{f: f, path: path, existed: existed}, nil
}

// Existed reports whether the file was already present when Open was called, i.e. whether
// there is anything to replay.
func (j *Journal) Existed() bool { return j.existed }

// Path returns the on-disk location of the journal.
func (j *Journal) Path() string { return j.path }

// Append writes raw as one line and fsyncs before returning.
func (j *Journal) Append(raw []byte) error {
	line := oneLine(raw)
	buf := make([]byte, 0, len(line)+1)
	buf = append(buf, line...)
	buf = append(buf, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return ErrClosed
	}
	if _, err := j.f.Write(buf); err != nil {
		return fmt.Errorf("journal write: %w", err)
	}
	if err := j.f.Sync(); err != nil {
		return fmt.Errorf("journal sync: %w", err)
	}
	return nil
}

// Sync flushes the file to stable storage.
func (j *Journal) Sync() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	return j.f.Sync()
}

// Close syncs and closes the file. It is safe to call more than once.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	j.closed = true
	syncErr := j.f.Sync()
	closeErr := j.f.Close()
	return errors.Join(syncErr, closeErr)
}

// OpenForReplay returns the journal's lines in write order. Every range over the sequence
// reopens the file from the start, so it can be iterated more than once. Blank lines are
// skipped. A read error is yielded once and ends the sequence.
func (j *Journal) OpenForReplay() iter.Seq2[string, error] {
	return ReadFile(j.path)
}

// ReadFile is OpenForReplay for a journal that is not open for writing, e.g. a copy taken
// for offline inspection.
func ReadFile(path string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		f, err := os.Open(path)
		if err != nil {
			yield("", fmt.Errorf("open journal for replay: %w", err))
			return
		}
		defer f.Close()

		sc := bufio.NewScanner(f)
		sc.Buffer(make([]byte, 0, 64*1024), MaxLineBytes)
		for sc.Scan() {
			line := bytes.TrimSpace(sc.Bytes())
			if len(line) == 0 {
				continue
			}
			if !yield(string(line), nil) {
				return
			}
		}
		if err := sc.Err(); err != nil {
			yield("", fmt.Errorf("read journal: %w", err))
		}
	}
}

// oneLine makes sure a message occupies exactly one line. Pretty-printed JSON is compacted;
// anything else has its line breaks replaced with spaces.
func oneLine(raw []byte) []byte {
	raw = bytes.TrimRight(raw, "\r\n")
	if !bytes.ContainsAny(raw, "\r\n") {
		return raw
	}
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err == nil {
		return buf.Bytes()
	}
	out := bytes.ReplaceAll(raw, []byte("\r\n"), []byte(" "))
	out = bytes.ReplaceAll(out, []byte("\n"), []byte(" "))
	return bytes.ReplaceAll(out, []byte("\r"), []byte(" "))
}
