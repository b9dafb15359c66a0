// Command fakesu stands in for `su` in lab setups without sudo. It reads a
// password from stdin, appends PAM-style failure lines to a log file and
// always exits 1. Use it with:
//
//	brutesim simulate --auth-command "fakesu {user}" --watch-auth-log fake_auth.log
package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"time"
)

func main() {
	path := os.Getenv("FAKESU_LOG")
	if path == "" {
		path = "fake_auth.log"
	}
	os.Exit(run(os.Args[1:], os.Stdin, os.Stderr, path))
}

func run(args []string, stdin io.Reader, stderr io.Writer, logPath string) int {
	if len(args) < 1 {
		fmt.Fprintln(stderr, "usage: fakesu <user>")
		return 2
	}
	user := args[0]

	// Drain the password so the caller never blocks on a full pipe.
	_, _ = bufio.NewReader(stdin).ReadString('\n')

	f, err := os.OpenFile(logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return 1
	}
	defer f.Close()

	host, _ := os.Hostname()
	now := time.Now().Format(time.Stamp)
	fmt.Fprintf(f, "%s %s su: pam_unix(su-l:auth): authentication failure; logname= uid=%d euid=%d tty= ruser= rhost=  user=%s\n",
		now, host, os.Getuid(), os.Geteuid(), user)
	fmt.Fprintf(f, "%s %s su: FAILED SU (to %s) on none\n", now, host, user)

	fmt.Fprintln(stderr, "su: Authentication failure")
	return 1
}
