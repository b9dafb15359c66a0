package sessionlog

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/multiformats/go-multihash"
)

// Outcome is the recorded result of a single attempt.
type Outcome string

const (
	OutcomeFailed  Outcome = "FAILED"
	OutcomeSuccess Outcome = "SUCCESS"
)

const (
	// TimestampLayout is the layout of the per-attempt timestamp.
	TimestampLayout = "2006-01-02 15:04:05"

	headerLayout = "2006-01-02 15:04:05.000000"
	headerPrefix = "Brute Force Attack Simulation - Started: "
)

// Rule is the separator used under the header and in console banners.
var Rule = strings.Repeat("=", 60)

// ErrMalformedLine is returned by ParseLine for lines that are not records.
var ErrMalformedLine = errors.New("malformed session log line")

// Record is one attempt as written to the session log.
type Record struct {
	Timestamp time.Time
	Username  string
	Outcome   Outcome
}

// Line renders the record in the session log format.
func (r Record) Line() string {
	return fmt.Sprintf("%s - Username: %s, Status: %s",
		r.Timestamp.Format(TimestampLayout), r.Username, r.Outcome)
}

// ParseLine is the inverse of Record.Line. Timestamps are parsed in the
// local time zone since that is how they were written.
func ParseLine(line string) (Record, error) {
	ts, rest, ok := strings.Cut(line, " - Username: ")
	if !ok {
		return Record{}, ErrMalformedLine
	}
	user, status, ok := strings.Cut(rest, ", Status: ")
	if !ok {
		return Record{}, ErrMalformedLine
	}

	when, err := time.ParseInLocation(TimestampLayout, ts, time.Local)
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrMalformedLine, err)
	}

	outcome := Outcome(status)
	if outcome != OutcomeFailed && outcome != OutcomeSuccess {
		return Record{}, fmt.Errorf("%w: unknown status %q", ErrMalformedLine, status)
	}

	return Record{Timestamp: when, Username: user, Outcome: outcome}, nil
}

// Log is the plain-text artifact for a single run. Only one process is
// expected to write it.
type Log struct {
	path string
}

// New returns a Log bound to path. Nothing is touched on disk until Reset.
func New(path string) *Log {
	return &Log{path: path}
}

// Path returns the file the log writes to.
func (l *Log) Path() string {
	return l.path
}

// Reset truncates the file and writes the two-line header.
func (l *Log) Reset(started time.Time) error {
	header := headerPrefix + started.Format(headerLayout) + "\n" + Rule + "\n"
	if err := os.WriteFile(l.path, []byte(header), 0o644); err != nil {
		return fmt.Errorf("reset session log: %w", err)
	}
	return nil
}

// Append writes a single record line. The file is opened and closed on
// every call so each attempt is on disk before the next one starts.
func (l *Log) Append(rec Record) error {
	f, err := os.OpenFile(l.path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0o644)
	if err != nil {
		return fmt.Errorf("open session log: %w", err)
	}

	if _, err := f.WriteString(rec.Line() + "\n"); err != nil {
		f.Close()
		return fmt.Errorf("append session log: %w", err)
	}

	return f.Close()
}

// Digest returns a base58 sha2-256 multihash of the current file contents.
func (l *Log) Digest() (string, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return "", fmt.Errorf("read session log: %w", err)
	}

	mh, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return "", fmt.Errorf("compute multihash: %w", err)
	}

	return mh.B58String(), nil
}

// ReadRecords parses every record line in the file at path, skipping the
// header.
func ReadRecords(path string) ([]Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var records []Record
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := scanner.Text()
		if lineNo <= 2 || line == "" {
			continue
		}
		rec, err := ParseLine(line)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, lineNo, err)
		}
		records = append(records, rec)
	}

	return records, scanner.Err()
}
