// Package ledger accumulates weighted analysis diagnostics ("badness").
//
// Every component reports problems by recording a severity event here and
// returning a best-effort result; nothing is thrown across component
// boundaries. Only a fatal record aborts the owning file's analysis, which
// callers observe through ErrFatal.
package ledger

import (
	"errors"
	"fmt"
	"log/slog"
)

// Level is the severity of a record.
type Level int

const (
	LevelInfo Level = iota
	LevelWarning
	LevelError
	LevelFatal
)

func (l Level) String() string {
	switch l {
	case LevelInfo:
		return "info"
	case LevelWarning:
		return "warning"
	case LevelError:
		return "error"
	case LevelFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Badness returns the weight a level contributes to the running total.
// Fatal has no finite weight; it aborts the file instead.
func (l Level) Badness() int {
	switch l {
	case LevelWarning:
		return 1
	case LevelError:
		return 5
	default:
		return 0
	}
}

// ErrFatal is returned by Fatal so callers can unwind one file's analysis.
var ErrFatal = errors.New("fatal analysis error")

// Pos is an optional source position attached to a record.
type Pos struct {
	Line uint
	Col  uint
}

// Record is one diagnostic event.
type Record struct {
	Level   Level
	File    string
	Pos     Pos
	Message string
	Badness int
}

// Sink receives each record at the moment it is recorded. The sink owns all
// I/O concerns (formatting, path abbreviation, stream selection).
type Sink interface {
	Emit(r Record)
}

// SlogSink emits records through log/slog.
type SlogSink struct {
	Logger *slog.Logger
}

func (s SlogSink) Emit(r Record) {
	logger := s.Logger
	if logger == nil {
		logger = slog.Default()
	}
	attrs := []any{"file", r.File}
	if r.Pos.Line > 0 {
		attrs = append(attrs, "line", r.Pos.Line, "col", r.Pos.Col)
	}
	switch r.Level {
	case LevelInfo:
		logger.Debug(r.Message, attrs...)
	case LevelWarning:
		logger.Warn(r.Message, attrs...)
	default:
		logger.Error(r.Message, attrs...)
	}
}

// Ledger accumulates records and per-file badness for one analysis run.
// It is owned exclusively by a single run and needs no locking.
type Ledger struct {
	sink        Sink
	records     []Record
	fileBadness map[string]int
	currentFile string
	strict      bool
}

// New creates a Ledger emitting to sink (SlogSink when nil).
func New(sink Sink) *Ledger {
	if sink == nil {
		sink = SlogSink{}
	}
	return &Ledger{
		sink:        sink,
		fileBadness: make(map[string]int),
	}
}

// SetStrict promotes error records to fatal.
func (l *Ledger) SetStrict(strict bool) { l.strict = strict }

// EnterFile sets the file attributed to subsequent records. It returns a
// restore func for use with defer.
func (l *Ledger) EnterFile(path string) func() {
	prev := l.currentFile
	l.currentFile = path
	return func() { l.currentFile = prev }
}

// CurrentFile returns the file records are currently attributed to.
func (l *Ledger) CurrentFile() string { return l.currentFile }

func (l *Ledger) record(level Level, msg string, pos Pos) Record {
	r := Record{
		Level:   level,
		File:    l.currentFile,
		Pos:     pos,
		Message: msg,
		Badness: level.Badness(),
	}
	l.records = append(l.records, r)
	l.fileBadness[r.File] += r.Badness
	l.sink.Emit(r)
	return r
}

// Info records an approximation note. Never blocks, weight 0.
func (l *Ledger) Info(msg string, pos Pos) {
	l.record(LevelInfo, msg, pos)
}

// Warning records a degraded-but-produced result, weight 1.
func (l *Ledger) Warning(msg string, pos Pos) {
	l.record(LevelWarning, msg, pos)
}

// Error records a result with degraded fidelity, weight 5. In strict mode
// it escalates to fatal and returns ErrFatal; otherwise it returns nil.
func (l *Ledger) Error(msg string, pos Pos) error {
	if l.strict {
		return l.Fatal(msg, pos)
	}
	l.record(LevelError, msg, pos)
	return nil
}

// Fatal records an unrecoverable problem for the current file and returns
// ErrFatal; the caller must stop analysing that file.
func (l *Ledger) Fatal(msg string, pos Pos) error {
	l.record(LevelFatal, msg, pos)
	return fmt.Errorf("%w: %s", ErrFatal, msg)
}

// Records returns every recorded event, in recording order.
func (l *Ledger) Records() []Record { return l.records }

// Total returns the accumulated badness for one file.
func (l *Ledger) Total(file string) int { return l.fileBadness[file] }

// GrandTotal returns the accumulated badness across all files.
func (l *Ledger) GrandTotal() int {
	total := 0
	for _, b := range l.fileBadness {
		total += b
	}
	return total
}

// HasFatal reports whether any fatal record was made for file.
func (l *Ledger) HasFatal(file string) bool {
	for _, r := range l.records {
		if r.Level == LevelFatal && r.File == file {
			return true
		}
	}
	return false
}

// WithinThreshold evaluates the final tally against the configured
// threshold. A threshold of 0 means unlimited; strict mode tolerates no
// badness at all. Checked after a file's analysis completes, never
// per-event.
func (l *Ledger) WithinThreshold(threshold int, strict bool) bool {
	total := l.GrandTotal()
	if strict {
		return total <= 0
	}
	if threshold == 0 {
		return true
	}
	return total <= threshold
}
