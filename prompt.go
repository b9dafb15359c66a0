package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/peterh/liner"
	"golang.org/x/term"
)

// errPromptAborted is returned by a prompter when the operator hits Ctrl-C.
var errPromptAborted = errors.New("prompt aborted")

type prompter interface {
	Prompt(text string) (string, error)
	Close() error
}

// newPrompter uses liner on an interactive terminal so Ctrl-C at the
// prompt comes back as errPromptAborted instead of killing the process.
// Otherwise SIGINT is trapped until Close and aborts a pending read.
func newPrompter(in io.Reader, out io.Writer) prompter {
	if f, ok := in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		state := liner.NewLiner()
		state.SetCtrlCAborts(true)
		return &linerPrompter{state: state}
	}

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)
	return &plainPrompter{r: bufio.NewReader(in), w: out, interrupt: interrupt}
}

type linerPrompter struct {
	state *liner.State
}

func (p *linerPrompter) Prompt(text string) (string, error) {
	s, err := p.state.Prompt(text)
	if errors.Is(err, liner.ErrPromptAborted) {
		return "", errPromptAborted
	}
	return s, err
}

func (p *linerPrompter) Close() error {
	return p.state.Close()
}

type plainPrompter struct {
	r         *bufio.Reader
	w         io.Writer
	interrupt chan os.Signal
}

type readResult struct {
	line string
	err  error
}

// Prompt reads one line. After an interrupt the reader is abandoned and the
// prompter must not be used again.
func (p *plainPrompter) Prompt(text string) (string, error) {
	fmt.Fprint(p.w, text)

	done := make(chan readResult, 1)
	go func() {
		line, err := p.r.ReadString('\n')
		done <- readResult{line: line, err: err}
	}()

	select {
	case res := <-done:
		if res.err != nil && !(errors.Is(res.err, io.EOF) && res.line != "") {
			return "", res.err
		}
		return res.line, nil
	case <-p.interrupt:
		return "", errPromptAborted
	}
}

func (p *plainPrompter) Close() error {
	if p.interrupt != nil {
		signal.Stop(p.interrupt)
	}
	return nil
}

// promptAttempts asks for the number of attempts. Empty input and EOF give
// def; input that is not a number or an aborted prompt print a notice and
// give def. The caller validates the range.
func promptAttempts(p prompter, out io.Writer, def int) (int, error) {
	text := fmt.Sprintf("Enter number of login attempts to simulate (default %d, press Enter): ", def)
	raw, err := p.Prompt(text)
	switch {
	case errors.Is(err, errPromptAborted):
		fmt.Fprintf(out, "\nUsing default: %d attempts\n", def)
		return def, nil
	case errors.Is(err, io.EOF):
		return def, nil
	case err != nil:
		return 0, fmt.Errorf("read attempt count: %w", err)
	}

	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}

	n, err := strconv.Atoi(raw)
	if err != nil {
		fmt.Fprintf(out, "\nUsing default: %d attempts\n", def)
		return def, nil
	}
	return n, nil
}
