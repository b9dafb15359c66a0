package driver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand/v2"
	"time"

	"github.com/saworbit/brutesim/internal/metrics"
	"github.com/saworbit/brutesim/pkg/sessionlog"
)

// ErrInvalidAttemptCount is returned when fewer than one attempt is requested.
var ErrInvalidAttemptCount = errors.New("number of attempts must be at least 1")

// Authenticator performs one login attempt. A non-nil error is treated the
// same as an ordinary rejection.
type Authenticator interface {
	Attempt(ctx context.Context, username, password string) (bool, error)
}

// AuthenticatorFunc adapts a function to Authenticator.
type AuthenticatorFunc func(ctx context.Context, username, password string) (bool, error)

// Attempt calls f.
func (f AuthenticatorFunc) Attempt(ctx context.Context, username, password string) (bool, error) {
	return f(ctx, username, password)
}

// RecordSink receives every record after it has been written to the
// session log.
type RecordSink interface {
	Append(rec sessionlog.Record) error
}

// Progress is reported every Options.ProgressEvery attempts and after the
// last one.
type Progress struct {
	Index    int
	Total    int
	Failed   int
	Username string
}

// Summary describes a finished (or interrupted) run.
type Summary struct {
	Attempts  int
	Failed    int
	Succeeded int
	Started   time.Time
	Finished  time.Time
	LogPath   string
}

// Options configures a Driver. Zero values fall back to defaults.
type Options struct {
	Usernames     []string
	DelayMin      time.Duration
	DelayMax      time.Duration
	ProgressEvery int
	TrustOutcome  bool

	Rand       *rand.Rand
	Sleep      func(ctx context.Context, d time.Duration) error
	Now        func() time.Time
	OnProgress func(Progress)
	Sink       RecordSink
	Logger     *log.Logger
}

// Driver runs a sequence of deliberately failing login attempts.
type Driver struct {
	auth Authenticator
	log  *sessionlog.Log
	opts Options
}

// New creates a driver that attempts logins through auth and records them
// to sessionLog.
func New(auth Authenticator, sessionLog *sessionlog.Log, opts Options) (*Driver, error) {
	if auth == nil {
		return nil, fmt.Errorf("authenticator is required")
	}
	if sessionLog == nil {
		return nil, fmt.Errorf("session log is required")
	}
	if len(opts.Usernames) == 0 {
		return nil, fmt.Errorf("at least one candidate username is required")
	}
	if opts.DelayMin < 0 || opts.DelayMax < opts.DelayMin {
		return nil, fmt.Errorf("invalid delay range %s..%s", opts.DelayMin, opts.DelayMax)
	}

	if opts.ProgressEvery <= 0 {
		opts.ProgressEvery = 5
	}
	if opts.Rand == nil {
		opts.Rand = NewRand(0)
	}
	if opts.Sleep == nil {
		opts.Sleep = Sleep
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}
	opts.Usernames = append([]string(nil), opts.Usernames...)

	return &Driver{auth: auth, log: sessionLog, opts: opts}, nil
}

// NewRand returns a deterministic source for a non-zero seed and a
// time-seeded one otherwise.
func NewRand(seed int64) *rand.Rand {
	s := uint64(seed)
	if seed == 0 {
		s = uint64(time.Now().UnixNano())
	}
	return rand.New(rand.NewPCG(s, s>>1))
}

// Password returns the credential used for attempt i. It never matches a
// real account password.
func Password(i int) string {
	return fmt.Sprintf("wrongpass%d", i)
}

// SetSink sets where records are forwarded after the session log. It must
// not be called while Run is in progress.
func (d *Driver) SetSink(sink RecordSink) {
	d.opts.Sink = sink
}

// Run performs attempts attempts. The session log is reset first; records
// are appended as each attempt completes. A cancelled context stops the run
// after the attempt in flight is recorded, or during the pause, and is
// returned together with the partial summary.
func (d *Driver) Run(ctx context.Context, attempts int) (Summary, error) {
	if attempts < 1 {
		return Summary{}, ErrInvalidAttemptCount
	}

	summary := Summary{Started: d.opts.Now(), LogPath: d.log.Path()}
	if err := d.log.Reset(summary.Started); err != nil {
		summary.Finished = d.opts.Now()
		return summary, err
	}

	logger := d.opts.Logger
	logger.Printf("[driver] starting %d attempts against %d candidate usernames", attempts, len(d.opts.Usernames))

	for i := 1; i <= attempts; i++ {
		if err := ctx.Err(); err != nil {
			summary.Finished = d.opts.Now()
			return summary, err
		}

		username := d.pickUsername()
		ts := d.opts.Now()

		began := time.Now()
		success := d.attempt(ctx, username, Password(i))
		elapsed := time.Since(began)

		outcome := sessionlog.OutcomeFailed
		if success {
			outcome = sessionlog.OutcomeSuccess
			summary.Succeeded++
		} else {
			summary.Failed++
		}
		summary.Attempts++

		rec := sessionlog.Record{Timestamp: ts, Username: username, Outcome: outcome}
		if err := d.log.Append(rec); err != nil {
			summary.Finished = d.opts.Now()
			return summary, err
		}
		if d.opts.Sink != nil {
			if err := d.opts.Sink.Append(rec); err != nil {
				summary.Finished = d.opts.Now()
				return summary, fmt.Errorf("journal attempt: %w", err)
			}
		}
		metrics.ObserveAttempt(elapsed, string(outcome))

		if d.opts.OnProgress != nil && (i%d.opts.ProgressEvery == 0 || i == attempts) {
			d.opts.OnProgress(Progress{Index: i, Total: attempts, Failed: summary.Failed, Username: username})
		}

		// An interrupt during the call itself ends the run here, including
		// on the last attempt where no pause follows.
		if err := ctx.Err(); err != nil {
			summary.Finished = d.opts.Now()
			return summary, err
		}

		if i < attempts {
			delay := d.nextDelay()
			metrics.ObserveDelay(delay)
			if err := d.opts.Sleep(ctx, delay); err != nil {
				summary.Finished = d.opts.Now()
				return summary, err
			}
		}
	}

	summary.Finished = d.opts.Now()
	logger.Printf("[driver] finished: %d attempts, %d failed", summary.Attempts, summary.Failed)
	return summary, nil
}

// attempt calls the authenticator and reduces its answer to a success flag.
// Errors of any kind count as a failed login.
func (d *Driver) attempt(ctx context.Context, username, password string) bool {
	ok, err := d.auth.Attempt(ctx, username, password)
	if err != nil {
		d.opts.Logger.Printf("[driver] attempt for %s ended with error (recorded as failed): %v", username, err)
		return false
	}
	if !d.opts.TrustOutcome {
		return false
	}
	return ok
}

func (d *Driver) pickUsername() string {
	return d.opts.Usernames[d.opts.Rand.IntN(len(d.opts.Usernames))]
}

// nextDelay draws uniformly from [DelayMin, DelayMax].
func (d *Driver) nextDelay() time.Duration {
	span := d.opts.DelayMax - d.opts.DelayMin
	if span <= 0 {
		return d.opts.DelayMin
	}
	return d.opts.DelayMin + time.Duration(d.opts.Rand.Float64()*float64(span))
}

// Sleep pauses for d or until ctx is done, whichever comes first.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
