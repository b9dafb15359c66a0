package recorder

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"

	"github.com/saworbit/brutesim/pkg/sessionlog"
)

const (
	PrefixSession = "sess:"
	PrefixAttempt = "att:"
)

const compressionMagic = "BSZ1"

// ErrSessionNotFound is returned when a session id has no metadata.
var ErrSessionNotFound = errors.New("session not found")

// SessionMeta summarizes one run in the journal.
type SessionMeta struct {
	ID       string `json:"id"`
	Started  int64  `json:"started"` // Nanoseconds
	Finished int64  `json:"finished,omitempty"`
	Attempts int    `json:"attempts"`
	Failed   int    `json:"failed"`
	LogPath  string `json:"log_path"`
}

// StartedAt returns the session start as a time.Time.
func (m SessionMeta) StartedAt() time.Time {
	return time.Unix(0, m.Started)
}

// attemptEntry is the stored form of a sessionlog.Record.
type attemptEntry struct {
	Seq       int    `json:"seq"`
	Timestamp int64  `json:"ts"` // Nanoseconds
	Username  string `json:"user"`
	Outcome   string `json:"outcome"`
}

// Journal keeps a history of runs in Pebble. Unlike the session log it
// is not truncated between runs.
type Journal struct {
	db *pebble.DB
}

// Open opens (or creates) a journal in dir.
func Open(dir string) (*Journal, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create journal dir: %w", err)
	}
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble: %w", err)
	}
	return &Journal{db: db}, nil
}

// OpenReadOnly opens an existing journal without taking write ownership.
func OpenReadOnly(dir string) (*Journal, error) {
	db, err := pebble.Open(dir, &pebble.Options{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("open pebble: %w", err)
	}
	return &Journal{db: db}, nil
}

// Close flushes and closes the underlying database.
func (j *Journal) Close() error {
	if j == nil || j.db == nil {
		return nil
	}
	return j.db.Close()
}

// Session appends the attempts of a single run.
type Session struct {
	db   *pebble.DB
	meta SessionMeta
	seq  int
}

// BeginSession registers a new run and returns a writer for its attempts.
func (j *Journal) BeginSession(started time.Time, logPath string) (*Session, error) {
	if j == nil || j.db == nil {
		return nil, fmt.Errorf("pebble database is not initialized")
	}

	s := &Session{
		db: j.db,
		meta: SessionMeta{
			ID:      fmt.Sprintf("%020d-%s", started.UnixNano(), uuid.NewString()),
			Started: started.UnixNano(),
			LogPath: logPath,
		},
	}

	payload, err := encodeValue(s.meta)
	if err != nil {
		return nil, err
	}
	if err := j.db.Set(sessionKey(s.meta.ID), payload, pebble.Sync); err != nil {
		return nil, fmt.Errorf("write session: %w", err)
	}

	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.meta.ID
}

// Append stores one attempt and updates the session counters in the same
// batch, so an interrupted run still has consistent metadata.
func (s *Session) Append(rec sessionlog.Record) error {
	s.seq++
	s.meta.Attempts++
	if rec.Outcome != sessionlog.OutcomeSuccess {
		s.meta.Failed++
	}

	entry := attemptEntry{
		Seq:       s.seq,
		Timestamp: rec.Timestamp.UnixNano(),
		Username:  rec.Username,
		Outcome:   string(rec.Outcome),
	}

	entryBytes, err := encodeValue(entry)
	if err != nil {
		return err
	}
	metaBytes, err := encodeValue(s.meta)
	if err != nil {
		return err
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	if err := batch.Set(attemptKey(s.meta.ID, s.seq), entryBytes, pebble.NoSync); err != nil {
		return fmt.Errorf("write journal entry: %w", err)
	}
	if err := batch.Set(sessionKey(s.meta.ID), metaBytes, pebble.NoSync); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	if err := batch.Commit(pebble.NoSync); err != nil {
		return fmt.Errorf("commit journal entry: %w", err)
	}

	return nil
}

// Finish stamps the end time on the session. A zero time means now.
func (s *Session) Finish(finished time.Time) error {
	if finished.IsZero() {
		finished = time.Now()
	}
	s.meta.Finished = finished.UnixNano()
	payload, err := encodeValue(s.meta)
	if err != nil {
		return err
	}
	if err := s.db.Set(sessionKey(s.meta.ID), payload, pebble.Sync); err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

// Sessions lists every run, oldest first.
func (j *Journal) Sessions() ([]SessionMeta, error) {
	iter, err := newPrefixIter(j.db, PrefixSession)
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var sessions []SessionMeta
	for iter.First(); iter.Valid(); iter.Next() {
		var meta SessionMeta
		if err := decodeValue(iter.Value(), &meta); err != nil {
			return nil, fmt.Errorf("decode session %s: %w", iter.Key(), err)
		}
		sessions = append(sessions, meta)
	}

	return sessions, iter.Error()
}

// Session looks up a run by full id or by a unique id prefix. "latest"
// selects the most recent run.
func (j *Journal) Session(id string) (SessionMeta, error) {
	sessions, err := j.Sessions()
	if err != nil {
		return SessionMeta{}, err
	}
	if len(sessions) == 0 {
		return SessionMeta{}, ErrSessionNotFound
	}
	if id == "latest" {
		return sessions[len(sessions)-1], nil
	}

	var match []SessionMeta
	for _, meta := range sessions {
		if meta.ID == id {
			return meta, nil
		}
		if strings.HasPrefix(meta.ID, id) {
			match = append(match, meta)
		}
	}
	switch len(match) {
	case 0:
		return SessionMeta{}, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	case 1:
		return match[0], nil
	default:
		return SessionMeta{}, fmt.Errorf("session prefix %q is ambiguous (%d matches)", id, len(match))
	}
}

// Records returns the attempts of a run in the order they were made.
func (j *Journal) Records(id string) ([]sessionlog.Record, error) {
	iter, err := newPrefixIter(j.db, PrefixAttempt+id+":")
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var records []sessionlog.Record
	for iter.First(); iter.Valid(); iter.Next() {
		var entry attemptEntry
		if err := decodeValue(iter.Value(), &entry); err != nil {
			return nil, fmt.Errorf("decode attempt %s: %w", iter.Key(), err)
		}
		records = append(records, sessionlog.Record{
			Timestamp: time.Unix(0, entry.Timestamp),
			Username:  entry.Username,
			Outcome:   sessionlog.Outcome(entry.Outcome),
		})
	}

	return records, iter.Error()
}

func sessionKey(id string) []byte {
	return []byte(PrefixSession + id)
}

func attemptKey(id string, seq int) []byte {
	return []byte(fmt.Sprintf("%s%s:%010d", PrefixAttempt, id, seq))
}

func newPrefixIter(db *pebble.DB, prefix string) (*pebble.Iterator, error) {
	upper := append([]byte(prefix), 0xff)
	return db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefix),
		UpperBound: upper,
	})
}

func encodeValue(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal journal value: %w", err)
	}
	enc, err := getZstdEncoder()
	if err != nil {
		return nil, err
	}
	return append([]byte(compressionMagic), enc.EncodeAll(raw, nil)...), nil
}

func decodeValue(data []byte, v any) error {
	raw := data
	if len(data) >= len(compressionMagic) && bytes.Equal(data[:len(compressionMagic)], []byte(compressionMagic)) {
		dec, err := getZstdDecoder()
		if err != nil {
			return err
		}
		raw, err = dec.DecodeAll(data[len(compressionMagic):], nil)
		if err != nil {
			return fmt.Errorf("decompress journal value: %w", err)
		}
	}
	return json.Unmarshal(raw, v)
}

var (
	zstdEncoderOnce sync.Once
	zstdDecoderOnce sync.Once
	zstdEncoder     *zstd.Encoder
	zstdDecoder     *zstd.Decoder
	zstdEncoderErr  error
	zstdDecoderErr  error
)

func getZstdEncoder() (*zstd.Encoder, error) {
	zstdEncoderOnce.Do(func() {
		zstdEncoder, zstdEncoderErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	})
	return zstdEncoder, zstdEncoderErr
}

func getZstdDecoder() (*zstd.Decoder, error) {
	zstdDecoderOnce.Do(func() {
		zstdDecoder, zstdDecoderErr = zstd.NewReader(nil)
	})
	return zstdDecoder, zstdDecoderErr
}
