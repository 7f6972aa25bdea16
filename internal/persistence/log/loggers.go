package log

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"

	"agentworld.ai/internal/sim/world"
)

const hourLayout = "2006-01-02-15"

// Journal appends values as JSON lines to zstd files under dir, one file per
// UTC hour named <prefix>-YYYY-MM-DD-HH.jsonl.zst. Reopening an hour appends
// a new zstd frame to the same file.
type Journal[T any] struct {
	dir    string
	prefix string
	now    func() time.Time

	mu      sync.Mutex
	seg     *segment
	entries uint64
}

type segment struct {
	hour string
	path string
	file *os.File
	zw   *zstd.Encoder
	buf  *bufio.Writer
}

func NewJournal[T any](dir, prefix string) *Journal[T] {
	return &Journal[T]{dir: dir, prefix: prefix, now: time.Now}
}

func (j *Journal[T]) Append(v T) error {
	line, err := json.Marshal(v)
	if err != nil {
		return err
	}
	line = append(line, '\n')

	j.mu.Lock()
	defer j.mu.Unlock()
	if hour := j.now().UTC().Format(hourLayout); j.seg == nil || j.seg.hour != hour {
		if err := j.roll(hour); err != nil {
			return err
		}
	}
	if _, err := j.seg.buf.Write(line); err != nil {
		return err
	}
	j.entries++
	return j.seg.buf.Flush()
}

// roll closes the open hour file, if any, and opens the one for hour.
func (j *Journal[T]) roll(hour string) error {
	if j.seg != nil {
		err := j.seg.close()
		j.seg = nil
		if err != nil {
			return err
		}
	}
	seg, err := openSegment(filepath.Join(j.dir, fmt.Sprintf("%s-%s.jsonl.zst", j.prefix, hour)), hour)
	if err != nil {
		return err
	}
	j.seg = seg
	return nil
}

func (j *Journal[T]) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.seg == nil {
		return nil
	}
	err := j.seg.close()
	j.seg = nil
	return err
}

// Path returns the file currently written to, or "" when none is open.
func (j *Journal[T]) Path() string {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.seg == nil {
		return ""
	}
	return j.seg.path
}

// Entries counts the values appended since the journal was created.
func (j *Journal[T]) Entries() uint64 {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.entries
}

func openSegment(path, hour string) (*segment, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	zw, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	return &segment{hour: hour, path: path, file: f, zw: zw, buf: bufio.NewWriterSize(zw, 128*1024)}, nil
}

func (s *segment) close() error {
	err := s.buf.Flush()
	if cerr := s.zw.Close(); err == nil {
		err = cerr
	}
	if cerr := s.file.Close(); err == nil {
		err = cerr
	}
	return err
}

// TickLogger journals one entry per tick under <world>/ticks.
type TickLogger struct {
	*Journal[world.TickLogEntry]
}

func NewTickLogger(worldDir string) *TickLogger {
	return &TickLogger{NewJournal[world.TickLogEntry](filepath.Join(worldDir, "ticks"), "ticks")}
}

func (l *TickLogger) WriteTick(e world.TickLogEntry) error { return l.Append(e) }

// EventLogger journals one entry per routed user event under <world>/events.
type EventLogger struct {
	*Journal[world.EventLogEntry]
}

func NewEventLogger(worldDir string) *EventLogger {
	return &EventLogger{NewJournal[world.EventLogEntry](filepath.Join(worldDir, "events"), "events")}
}

func (l *EventLogger) WriteEvent(e world.EventLogEntry) error { return l.Append(e) }
