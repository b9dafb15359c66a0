package sessionlog

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordLine(t *testing.T) {
	rec := Record{
		Timestamp: time.Date(2025, 3, 4, 5, 6, 7, 0, time.Local),
		Username:  "admin",
		Outcome:   OutcomeFailed,
	}

	assert.Equal(t, "2025-03-04 05:06:07 - Username: admin, Status: FAILED", rec.Line())
}

func TestParseLineRoundTrip(t *testing.T) {
	rec := Record{
		Timestamp: time.Date(2025, 12, 31, 23, 59, 59, 0, time.Local),
		Username:  "test123",
		Outcome:   OutcomeSuccess,
	}

	got, err := ParseLine(rec.Line())
	require.NoError(t, err)
	assert.True(t, rec.Timestamp.Equal(got.Timestamp))
	assert.Equal(t, rec.Username, got.Username)
	assert.Equal(t, rec.Outcome, got.Outcome)
}

func TestParseLineRejectsGarbage(t *testing.T) {
	for _, line := range []string{
		"",
		Rule,
		"Brute Force Attack Simulation - Started: 2025-01-01 00:00:00.000000",
		"2025-01-01 00:00:00 - Username: root, Status: MAYBE",
		"yesterday - Username: root, Status: FAILED",
	} {
		_, err := ParseLine(line)
		assert.Truef(t, errors.Is(err, ErrMalformedLine), "line %q: got %v", line, err)
	}
}

func TestResetWritesHeader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "attack_log.txt")
	log := New(path)

	started := time.Date(2025, 1, 2, 3, 4, 5, 600000000, time.Local)
	require.NoError(t, log.Reset(started))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "Brute Force Attack Simulation - Started: 2025-01-02 03:04:05.600000", lines[0])
	assert.Equal(t, strings.Repeat("=", 60), lines[1])
}

func TestAppendAndReadRecords(t *testing.T) {
	path := filepath.Join(t.TempDir(), "attack_log.txt")
	log := New(path)
	require.NoError(t, log.Reset(time.Now()))

	now := time.Now().Truncate(time.Second)
	for _, name := range []string{"root", "guest", "demo"} {
		require.NoError(t, log.Append(Record{Timestamp: now, Username: name, Outcome: OutcomeFailed}))
	}

	records, err := ReadRecords(path)
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "guest", records[1].Username)
	for _, rec := range records {
		assert.Equal(t, OutcomeFailed, rec.Outcome)
	}
}

func TestResetTruncatesPreviousRun(t *testing.T) {
	path := filepath.Join(t.TempDir(), "attack_log.txt")
	log := New(path)

	require.NoError(t, log.Reset(time.Now()))
	require.NoError(t, log.Append(Record{Timestamp: time.Now(), Username: "first-run", Outcome: OutcomeFailed}))

	require.NoError(t, log.Reset(time.Now()))
	records, err := ReadRecords(path)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestDigestTracksContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "attack_log.txt")
	log := New(path)
	started := time.Date(2025, 1, 1, 0, 0, 0, 0, time.Local)
	require.NoError(t, log.Reset(started))

	first, err := log.Digest()
	require.NoError(t, err)
	assert.NotEmpty(t, first)

	again, err := log.Digest()
	require.NoError(t, err)
	assert.Equal(t, first, again)

	require.NoError(t, log.Append(Record{Timestamp: started, Username: "root", Outcome: OutcomeFailed}))
	changed, err := log.Digest()
	require.NoError(t, err)
	assert.NotEqual(t, first, changed)
}

func TestDigestMissingFile(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing.txt")).Digest()
	assert.Error(t, err)
}
