package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// DefaultAttempts is used when the operator gives no usable attempt count.
const DefaultAttempts = 20

// UserPlaceholder is replaced with the sampled username in AuthCommand.
const UserPlaceholder = "{user}"

// SimConfig holds configuration for a brute-force simulation run
type SimConfig struct {
	// Attempts is the number of login attempts to generate
	Attempts int

	// DelayMin and DelayMax bound the randomized pause between attempts
	DelayMin time.Duration
	DelayMax time.Duration

	// LogFile is the session log path, truncated at the start of every run
	LogFile string

	// AttemptTimeout bounds a single call to the authentication command
	AttemptTimeout time.Duration

	// StartDelay is the countdown before the first attempt (0 disables)
	StartDelay time.Duration

	// ProgressEvery controls how often a progress line is printed
	ProgressEvery int

	// Usernames is the candidate set sampled uniformly per attempt
	Usernames []string

	// AuthCommand is the argv template for the authentication command
	AuthCommand string

	// TrustOutcome records the command's real result instead of FAILED
	TrustOutcome bool

	// Seed seeds username and delay sampling; 0 means time-seeded
	Seed int64

	// MetricsAddr enables the Prometheus endpoint when non-empty
	MetricsAddr string

	// JournalDir enables the Pebble run history when non-empty
	JournalDir string

	// WatchAuthLog enables counting lines appended to a system auth log
	WatchAuthLog string
}

// fileConfig mirrors SimConfig for TOML decoding. Durations are strings
// ("1.5s") and pointers distinguish "unset" from zero values.
type fileConfig struct {
	Attempts       *int     `toml:"attempts"`
	DelayMin       string   `toml:"delay_min"`
	DelayMax       string   `toml:"delay_max"`
	LogFile        string   `toml:"log_file"`
	AttemptTimeout string   `toml:"attempt_timeout"`
	StartDelay     string   `toml:"start_delay"`
	ProgressEvery  *int     `toml:"progress_every"`
	Usernames      []string `toml:"usernames"`
	AuthCommand    string   `toml:"auth_command"`
	TrustOutcome   *bool    `toml:"trust_outcome"`
	Seed           *int64   `toml:"seed"`
	MetricsAddr    string   `toml:"metrics_addr"`
	JournalDir     string   `toml:"journal_dir"`
	WatchAuthLog   string   `toml:"watch_auth_log"`
}

// DefaultUsernames returns the built-in candidate usernames.
func DefaultUsernames() []string {
	return []string{
		"admin", "root", "user", "test", "administrator",
		"guest", "demo", "admin123", "password", "test123",
	}
}

// DefaultConfig returns the default configuration
func DefaultConfig() *SimConfig {
	return &SimConfig{
		Attempts:       DefaultAttempts,
		DelayMin:       1 * time.Second,
		DelayMax:       2 * time.Second,
		LogFile:        "attack_log.txt",
		AttemptTimeout: 2 * time.Second,
		StartDelay:     3 * time.Second,
		ProgressEvery:  5,
		Usernames:      DefaultUsernames(),
		AuthCommand:    "sudo su - " + UserPlaceholder + " -c exit",
	}
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() *SimConfig {
	cfg := DefaultConfig()
	cfg.applyEnv()
	return cfg
}

// Load builds a config from defaults, an optional TOML file and the
// environment, in that order of precedence (environment wins).
func Load(path string) (*SimConfig, error) {
	cfg := DefaultConfig()
	if path != "" {
		if err := cfg.MergeFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()
	return cfg, nil
}

// MergeFile overlays the values set in a TOML file onto c.
func (c *SimConfig) MergeFile(path string) error {
	var fc fileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return fmt.Errorf("decode config %s: %w", path, err)
	}

	if fc.Attempts != nil {
		c.Attempts = *fc.Attempts
	}
	if fc.ProgressEvery != nil {
		c.ProgressEvery = *fc.ProgressEvery
	}
	if fc.TrustOutcome != nil {
		c.TrustOutcome = *fc.TrustOutcome
	}
	if fc.Seed != nil {
		c.Seed = *fc.Seed
	}
	if len(fc.Usernames) > 0 {
		c.Usernames = append([]string(nil), fc.Usernames...)
	}
	if fc.LogFile != "" {
		c.LogFile = fc.LogFile
	}
	if fc.AuthCommand != "" {
		c.AuthCommand = fc.AuthCommand
	}
	if fc.MetricsAddr != "" {
		c.MetricsAddr = fc.MetricsAddr
	}
	if fc.JournalDir != "" {
		c.JournalDir = fc.JournalDir
	}
	if fc.WatchAuthLog != "" {
		c.WatchAuthLog = fc.WatchAuthLog
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"delay_min", fc.DelayMin, &c.DelayMin},
		{"delay_max", fc.DelayMax, &c.DelayMax},
		{"attempt_timeout", fc.AttemptTimeout, &c.AttemptTimeout},
		{"start_delay", fc.StartDelay, &c.StartDelay},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		v, err := ParseDelay(d.raw)
		if err != nil {
			return fmt.Errorf("config %s: %w", d.key, err)
		}
		*d.dst = v
	}

	return nil
}

func (c *SimConfig) applyEnv() {
	if v := os.Getenv("BRUTESIM_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Attempts = n
		}
	}
	if v := os.Getenv("BRUTESIM_DELAY_MIN"); v != "" {
		if d, err := ParseDelay(v); err == nil {
			c.DelayMin = d
		}
	}
	if v := os.Getenv("BRUTESIM_DELAY_MAX"); v != "" {
		if d, err := ParseDelay(v); err == nil {
			c.DelayMax = d
		}
	}
	if v := os.Getenv("BRUTESIM_LOG_FILE"); v != "" {
		c.LogFile = v
	}
	if v := os.Getenv("BRUTESIM_ATTEMPT_TIMEOUT"); v != "" {
		if d, err := ParseDelay(v); err == nil {
			c.AttemptTimeout = d
		}
	}
	if v := os.Getenv("BRUTESIM_START_DELAY"); v != "" {
		if d, err := ParseDelay(v); err == nil {
			c.StartDelay = d
		}
	}
	if v := os.Getenv("BRUTESIM_PROGRESS_EVERY"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.ProgressEvery = n
		}
	}
	if v := os.Getenv("BRUTESIM_USERNAMES"); v != "" {
		if names := splitList(v); len(names) > 0 {
			c.Usernames = names
		}
	}
	if v := os.Getenv("BRUTESIM_AUTH_COMMAND"); v != "" {
		c.AuthCommand = v
	}
	if v := os.Getenv("BRUTESIM_TRUST_OUTCOME"); v != "" {
		c.TrustOutcome = v == "1" || v == "true" || v == "TRUE"
	}
	if v := os.Getenv("BRUTESIM_SEED"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Seed = n
		}
	}
	if v := os.Getenv("BRUTESIM_METRICS_ADDR"); v != "" {
		c.MetricsAddr = v
	}
	if v := os.Getenv("BRUTESIM_JOURNAL_DIR"); v != "" {
		c.JournalDir = v
	}
	if v := os.Getenv("BRUTESIM_WATCH_AUTH_LOG"); v != "" {
		c.WatchAuthLog = v
	}
}

// Validate checks if the configuration is valid
func (c *SimConfig) Validate() error {
	if c.Attempts < 1 {
		return fmt.Errorf("attempts must be at least 1, got: %d", c.Attempts)
	}

	if c.DelayMin < 0 || c.DelayMax < 0 {
		return fmt.Errorf("delays must not be negative, got: %s..%s", c.DelayMin, c.DelayMax)
	}

	if c.DelayMax < c.DelayMin {
		return fmt.Errorf("delay max %s is below delay min %s", c.DelayMax, c.DelayMin)
	}

	if c.LogFile == "" {
		return fmt.Errorf("log file path is required")
	}

	if c.AttemptTimeout <= 0 {
		return fmt.Errorf("attempt timeout must be positive, got: %s", c.AttemptTimeout)
	}

	if c.StartDelay < 0 {
		return fmt.Errorf("start delay must not be negative, got: %s", c.StartDelay)
	}

	if c.ProgressEvery <= 0 {
		return fmt.Errorf("progress interval must be positive, got: %d", c.ProgressEvery)
	}

	if len(c.Usernames) == 0 {
		return fmt.Errorf("at least one candidate username is required")
	}
	for _, name := range c.Usernames {
		if strings.TrimSpace(name) == "" {
			return fmt.Errorf("candidate usernames must not be blank")
		}
	}

	if len(strings.Fields(c.AuthCommand)) == 0 {
		return fmt.Errorf("auth command is required")
	}
	if !strings.Contains(c.AuthCommand, UserPlaceholder) {
		return fmt.Errorf("auth command %q must contain %s", c.AuthCommand, UserPlaceholder)
	}

	return nil
}

// ParseDelay accepts either a Go duration ("1.5s", "250ms") or a bare
// number of seconds ("2", "0.5").
func ParseDelay(raw string) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if d, err := time.ParseDuration(raw); err == nil {
		return d, nil
	}
	secs, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid delay %q", raw)
	}
	return time.Duration(secs * float64(time.Second)), nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
