package authn

import (
	"context"
	"fmt"
	"io"
	"log"
	"os/exec"
	"strings"
	"time"
)

// UserPlaceholder in an argv template is replaced with the target username.
const UserPlaceholder = "{user}"

// CommandAuthenticator tries to switch identity by running an external
// command and feeding the password on stdin. The default template is
// "sudo su - {user} -c exit", which leaves an authentication failure in the
// system auth log for every wrong password.
type CommandAuthenticator struct {
	argv    []string
	timeout time.Duration
	logger  *log.Logger
}

// NewCommandAuthenticator parses template into an argv and bounds each call
// by timeout.
func NewCommandAuthenticator(template string, timeout time.Duration, logger *log.Logger) (*CommandAuthenticator, error) {
	argv := strings.Fields(template)
	if len(argv) == 0 {
		return nil, fmt.Errorf("auth command is empty")
	}
	if !strings.Contains(template, UserPlaceholder) {
		return nil, fmt.Errorf("auth command %q must contain %s", template, UserPlaceholder)
	}
	if timeout <= 0 {
		return nil, fmt.Errorf("attempt timeout must be positive")
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	return &CommandAuthenticator{argv: argv, timeout: timeout, logger: logger}, nil
}

// Args returns the argv used for username.
func (a *CommandAuthenticator) Args(username string) []string {
	args := make([]string, len(a.argv))
	for i, arg := range a.argv {
		args[i] = strings.ReplaceAll(arg, UserPlaceholder, username)
	}
	return args
}

// Attempt runs the command once. It reports success only when the command
// exits zero within the timeout; timeouts, start failures and non-zero exits
// are returned as errors.
func (a *CommandAuthenticator) Attempt(ctx context.Context, username, password string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	args := a.Args(username)
	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	cmd.Stdin = strings.NewReader(password + "\n")
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	cmd.WaitDelay = a.timeout

	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		a.logger.Printf("[authn] %s timed out after %s", args[0], a.timeout)
		return false, fmt.Errorf("attempt for %s timed out: %w", username, ctx.Err())
	}
	if err != nil {
		return false, fmt.Errorf("attempt for %s: %w", username, err)
	}

	return true, nil
}
