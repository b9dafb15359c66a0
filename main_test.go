package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saworbit/brutesim/pkg/config"
	"github.com/saworbit/brutesim/pkg/driver"
	"github.com/saworbit/brutesim/pkg/sessionlog"
)

type scriptedPrompter struct {
	answer string
	err    error
	asked  string
}

func (p *scriptedPrompter) Prompt(text string) (string, error) {
	p.asked = text
	return p.answer, p.err
}

func (p *scriptedPrompter) Close() error { return nil }

func TestPromptAttempts(t *testing.T) {
	tests := []struct {
		name       string
		answer     string
		err        error
		want       int
		wantNotice bool
	}{
		{"empty input uses default", "", nil, 20, false},
		{"whitespace uses default", "   \n", nil, 20, false},
		{"number", "7\n", nil, 7, false},
		{"padded number", "  12 \n", nil, 12, false},
		{"zero is passed through", "0\n", nil, 0, false},
		{"negative is passed through", "-4\n", nil, -4, false},
		{"non numeric falls back", "lots\n", nil, 20, true},
		{"float falls back", "2.5\n", nil, 20, true},
		{"ctrl-c falls back", "", errPromptAborted, 20, true},
		{"eof uses default", "", io.EOF, 20, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			p := &scriptedPrompter{answer: tt.answer, err: tt.err}

			got, err := promptAttempts(p, &out, 20)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, "Enter number of login attempts to simulate (default 20, press Enter): ", p.asked)
			assert.Equal(t, tt.wantNotice, strings.Contains(out.String(), "Using default: 20 attempts"))
		})
	}
}

func TestPromptAttemptsReadError(t *testing.T) {
	p := &scriptedPrompter{err: errors.New("tty gone")}
	_, err := promptAttempts(p, io.Discard, 20)
	assert.ErrorContains(t, err, "tty gone")
}

func TestPlainPrompter(t *testing.T) {
	var out bytes.Buffer
	p := &plainPrompter{r: bufio.NewReader(strings.NewReader("15")), w: &out}

	line, err := p.Prompt("count? ")
	require.NoError(t, err)
	assert.Equal(t, "15", line)
	assert.Equal(t, "count? ", out.String())

	_, err = p.Prompt("again? ")
	assert.ErrorIs(t, err, io.EOF)
}

func TestPlainPrompterInterruptAborts(t *testing.T) {
	pr, pw := io.Pipe()
	defer pw.Close()

	interrupt := make(chan os.Signal, 1)
	p := &plainPrompter{r: bufio.NewReader(pr), w: io.Discard, interrupt: interrupt}
	interrupt <- os.Interrupt

	var out bytes.Buffer
	n, err := promptAttempts(p, &out, 20)
	require.NoError(t, err)
	assert.Equal(t, 20, n)
	assert.Contains(t, out.String(), "Using default: 20 attempts")
}

type fakeAuth struct {
	calls int
}

func (f *fakeAuth) Attempt(context.Context, string, string) (bool, error) {
	f.calls++
	return false, errors.New("su: Authentication failure")
}

func testApp(in string) (*app, *bytes.Buffer, *fakeAuth, *[]time.Duration) {
	out := &bytes.Buffer{}
	auth := &fakeAuth{}
	var sleeps []time.Duration
	a := &app{
		in:     strings.NewReader(in),
		out:    out,
		errOut: io.Discard,
		newAuth: func(*config.SimConfig, *log.Logger) (driver.Authenticator, error) {
			return auth, nil
		},
		sleep: func(_ context.Context, d time.Duration) error {
			sleeps = append(sleeps, d)
			return nil
		},
	}
	return a, out, auth, &sleeps
}

func execute(a *app, args ...string) error {
	root := newRootCmd(a)
	root.SetArgs(args)
	return root.Execute()
}

var progressLine = regexp.MustCompile(`(?m)^\[(\d+)/(\d+)\] Failed login attempts: (\d+) \| Latest: (\S+)$`)

func TestSimulateFiveAttemptsZeroDelay(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "attack_log.txt")
	a, out, auth, sleeps := testApp("")

	err := execute(a, "simulate", "--attempts", "5", "--delay-min", "0", "--delay-max", "0",
		"--start-delay", "0", "--log-file", logPath, "--seed", "7")
	require.NoError(t, err)
	assert.Equal(t, 5, auth.calls)

	data, err := os.ReadFile(logPath)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
	require.Len(t, lines, 7)
	for _, line := range lines[2:] {
		assert.True(t, strings.HasSuffix(line, ", Status: FAILED"), line)
	}

	matches := progressLine.FindAllStringSubmatch(out.String(), -1)
	require.Len(t, matches, 1)
	assert.Equal(t, []string{"5", "5", "5"}, matches[0][1:4])
	assert.Contains(t, config.DefaultUsernames(), matches[0][4])

	assert.Contains(t, out.String(), "ATTACK SIMULATION COMPLETE")
	assert.Contains(t, out.String(), "Failed attempts: 5")
	assert.Contains(t, out.String(), "Rule IDs to look for: 5503, 5710, or similar")
	assert.NotContains(t, out.String(), "Enter number of login attempts")

	// start delay plus four inter-attempt pauses
	assert.Equal(t, []time.Duration{0, 0, 0, 0, 0}, *sleeps)
}

func TestSimulatePromptNonNumericUsesDefault(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "attack_log.txt")
	a, out, auth, _ := testApp("many\n")

	err := execute(a, "simulate", "--delay-min", "0", "--delay-max", "0", "--start-delay", "0", "--log-file", logPath)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Using default: 20 attempts")
	assert.Equal(t, 20, auth.calls)

	records, err := sessionlog.ReadRecords(logPath)
	require.NoError(t, err)
	assert.Len(t, records, 20)

	assert.Len(t, progressLine.FindAllString(out.String(), -1), 4)
}

func TestSimulatePromptEmptyUsesDefault(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "attack_log.txt")
	a, out, auth, _ := testApp("\n")

	err := execute(a, "simulate", "--delay-min", "0", "--delay-max", "0", "--start-delay", "0", "--log-file", logPath)
	require.NoError(t, err)
	assert.NotContains(t, out.String(), "Using default")
	assert.Equal(t, 20, auth.calls)
}

func TestSimulateRejectsNonPositiveCount(t *testing.T) {
	for _, input := range []string{"0\n", "-3\n"} {
		logPath := filepath.Join(t.TempDir(), "attack_log.txt")
		a, out, auth, _ := testApp(input)

		err := execute(a, "simulate", "--start-delay", "0", "--log-file", logPath)
		assert.ErrorIs(t, err, driver.ErrInvalidAttemptCount)
		assert.Contains(t, out.String(), "Error: Number of attempts must be at least 1")
		assert.Zero(t, auth.calls)

		_, statErr := os.Stat(logPath)
		assert.True(t, os.IsNotExist(statErr))
	}
}

func TestSimulateRejectsZeroAttemptsFlag(t *testing.T) {
	a, out, _, _ := testApp("")
	err := execute(a, "simulate", "--attempts", "0", "--log-file", filepath.Join(t.TempDir(), "log.txt"))
	assert.ErrorIs(t, err, driver.ErrInvalidAttemptCount)
	assert.Contains(t, out.String(), "Error: Number of attempts must be at least 1")
}

func TestSimulateRejectsInvalidConfig(t *testing.T) {
	a, _, auth, _ := testApp("")
	err := execute(a, "simulate", "--attempts", "3", "--delay-min", "5", "--delay-max", "1",
		"--log-file", filepath.Join(t.TempDir(), "log.txt"))
	assert.ErrorContains(t, err, "invalid configuration")
	assert.Zero(t, auth.calls)
}

func TestSimulateSingleAttemptNoPause(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "attack_log.txt")
	a, _, _, sleeps := testApp("")

	err := execute(a, "simulate", "-n", "1", "--start-delay", "0", "--log-file", logPath)
	require.NoError(t, err)

	// only the (zero) start countdown
	assert.Equal(t, []time.Duration{0}, *sleeps)

	records, err := sessionlog.ReadRecords(logPath)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestSimulateJournalAndHistory(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "attack_log.txt")
	journalDir := filepath.Join(dir, "journal")

	for _, n := range []string{"3", "2"} {
		a, _, _, _ := testApp("")
		err := execute(a, "simulate", "-n", n, "--delay-min", "0", "--delay-max", "0", "--start-delay", "0",
			"--log-file", logPath, "--journal-dir", journalDir)
		require.NoError(t, err)
	}

	// the session log holds only the last run
	records, err := sessionlog.ReadRecords(logPath)
	require.NoError(t, err)
	assert.Len(t, records, 2)

	a, out, _, _ := testApp("")
	require.NoError(t, execute(a, "history", "--journal-dir", journalDir))
	listing := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, listing, 2)
	assert.Contains(t, listing[0], "attempts=3 failed=3")
	assert.Contains(t, listing[1], "attempts=2 failed=2")

	a, out, _, _ = testApp("")
	require.NoError(t, execute(a, "history", "--journal-dir", journalDir, "--session", "latest"))
	assert.Equal(t, 2, strings.Count(out.String(), "Status: FAILED"))
	assert.Contains(t, out.String(), "Total attempts: 2, Failed attempts: 2")
}

func TestSimulateDriverSetupFailureLeavesNoSession(t *testing.T) {
	dir := t.TempDir()
	journalDir := filepath.Join(dir, "journal")

	a, _, _, _ := testApp("")
	a.newAuth = func(*config.SimConfig, *log.Logger) (driver.Authenticator, error) {
		return nil, nil
	}
	err := execute(a, "simulate", "-n", "2", "--start-delay", "0", "--log-file", filepath.Join(dir, "attack_log.txt"),
		"--journal-dir", journalDir)
	assert.ErrorContains(t, err, "authenticator is required")

	_, statErr := os.Stat(journalDir)
	assert.True(t, os.IsNotExist(statErr), "journal must not be opened before the driver exists")
}

func TestHistoryRequiresJournalDir(t *testing.T) {
	t.Setenv("BRUTESIM_JOURNAL_DIR", "")
	a, _, _, _ := testApp("")
	assert.ErrorContains(t, execute(a, "history"), "journal-dir is required")
}

func TestSimulateWatchesAuthLog(t *testing.T) {
	dir := t.TempDir()
	authLog := filepath.Join(dir, "auth.log")
	require.NoError(t, os.WriteFile(authLog, []byte("boot\n"), 0o644))

	out := &bytes.Buffer{}
	a := &app{
		in:     strings.NewReader(""),
		out:    out,
		errOut: io.Discard,
		newAuth: func(*config.SimConfig, *log.Logger) (driver.Authenticator, error) {
			return driver.AuthenticatorFunc(func(_ context.Context, user, _ string) (bool, error) {
				f, err := os.OpenFile(authLog, os.O_APPEND|os.O_WRONLY, 0o644)
				if err != nil {
					return false, err
				}
				defer f.Close()
				_, err = f.WriteString("su: FAILED SU (to " + user + ")\n")
				return false, err
			}), nil
		},
		sleep: func(context.Context, time.Duration) error { return nil },
	}

	err := execute(a, "simulate", "-n", "4", "--start-delay", "0", "--log-file", filepath.Join(dir, "attack_log.txt"),
		"--watch-auth-log", authLog)
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Auth log lines observed: 4")
}

func TestFormatSeconds(t *testing.T) {
	assert.Equal(t, "3 seconds", formatSeconds(3*time.Second))
	assert.Equal(t, "1 second", formatSeconds(time.Second))
	assert.Equal(t, "1.5 seconds", formatSeconds(1500*time.Millisecond))
}
