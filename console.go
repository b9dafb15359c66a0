package main

import (
	"fmt"
	"io"
	"time"

	"github.com/saworbit/brutesim/pkg/driver"
	"github.com/saworbit/brutesim/pkg/sessionlog"
)

const bannerTime = "2006-01-02 15:04:05"

func printIntro(w io.Writer) {
	fmt.Fprintf(w, "\n%s\n", sessionlog.Rule)
	fmt.Fprintln(w, "Wazuh SOC Lab - Brute Force Attack Simulator")
	fmt.Fprintln(w, sessionlog.Rule)
	fmt.Fprintln(w, "\nThis tool will simulate a brute-force attack by generating")
	fmt.Fprintln(w, "multiple failed authentication attempts. These will appear in")
	fmt.Fprintln(w, "/var/log/auth.log, which Wazuh monitors for security events.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "⚠️  NOTE: You may need to enter your sudo password")
	fmt.Fprintln(w, "   (This is needed to generate authentication attempts)")
	fmt.Fprintln(w)
}

func printCountdown(w io.Writer, delay time.Duration) {
	if delay <= 0 {
		return
	}
	fmt.Fprintf(w, "\n⚠️  Starting simulation in %s...\n", formatSeconds(delay))
	fmt.Fprintln(w, "   Make sure your Wazuh Dashboard is open in your browser!")
}

func printStartBanner(w io.Writer, attempts int, started time.Time) {
	fmt.Fprintf(w, "\n%s\n", sessionlog.Rule)
	fmt.Fprintln(w, "BRUTE FORCE ATTACK SIMULATOR")
	fmt.Fprintln(w, sessionlog.Rule)
	fmt.Fprintf(w, "Attempts: %d\n", attempts)
	fmt.Fprintf(w, "Starting at: %s\n", started.Format(bannerTime))
	fmt.Fprintln(w, "This will generate failed login attempts in /var/log/auth.log")
	fmt.Fprintln(w, "Wazuh will detect these and generate security alerts!")
	fmt.Fprintf(w, "%s\n\n", sessionlog.Rule)
}

func printProgress(w io.Writer, p driver.Progress) {
	fmt.Fprintf(w, "[%d/%d] Failed login attempts: %d | Latest: %s\n", p.Index, p.Total, p.Failed, p.Username)
}

// printSummary writes the completion banner. authLines < 0 means the auth
// log was not watched.
func printSummary(w io.Writer, s driver.Summary, authLines int) {
	fmt.Fprintf(w, "\n%s\n", sessionlog.Rule)
	fmt.Fprintln(w, "ATTACK SIMULATION COMPLETE")
	fmt.Fprintln(w, sessionlog.Rule)
	fmt.Fprintf(w, "Total attempts: %d\n", s.Attempts)
	fmt.Fprintf(w, "Failed attempts: %d\n", s.Failed)
	if s.Succeeded > 0 {
		fmt.Fprintf(w, "Successful attempts: %d\n", s.Succeeded)
	}
	fmt.Fprintf(w, "Attack log saved to: %s\n", s.LogPath)
	if authLines >= 0 {
		fmt.Fprintf(w, "Auth log lines observed: %d\n", authLines)
	}
	fmt.Fprintln(w, "\n✅ Now check your Wazuh Dashboard!")
	fmt.Fprintln(w, "   Go to: Security events or Alerts section")
	fmt.Fprintln(w, "   Look for alerts about failed authentication attempts")
	fmt.Fprintln(w, "   Rule IDs to look for: 5503, 5710, or similar")
	fmt.Fprintf(w, "%s\n\n", sessionlog.Rule)
}

func printInterrupted(w io.Writer, s driver.Summary) {
	fmt.Fprintf(w, "\nSimulation interrupted after %d attempts (%d failed)\n", s.Attempts, s.Failed)
	fmt.Fprintf(w, "Partial attack log saved to: %s\n", s.LogPath)
}

func formatSeconds(d time.Duration) string {
	secs := d.Seconds()
	if secs == 1 {
		return "1 second"
	}
	if secs == float64(int64(secs)) {
		return fmt.Sprintf("%d seconds", int64(secs))
	}
	return fmt.Sprintf("%.1f seconds", secs)
}
