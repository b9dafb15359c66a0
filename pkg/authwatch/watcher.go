package authwatch

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/saworbit/brutesim/internal/metrics"
)

// Watcher counts lines appended to a log file, typically /var/log/auth.log,
// from the moment it starts. It lets the operator confirm that attempts
// actually reached the source the monitoring pipeline reads.
type Watcher struct {
	path   string
	logger *log.Logger

	mu     sync.Mutex
	offset int64
	lines  int

	fsw  *fsnotify.Watcher
	done chan struct{}
}

// Start begins watching path. Lines already in the file are not counted.
// The watcher stops when ctx is done or Stop is called.
func Start(ctx context.Context, path string, logger *log.Logger) (*Watcher, error) {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat auth log: %w", err)
	}
	if err := ensureReadable(path, info); err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory so rotation (rename + create) is observed.
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}

	w := &Watcher{
		path:   filepath.Clean(path),
		logger: logger,
		offset: info.Size(),
		fsw:    fsw,
		done:   make(chan struct{}),
	}

	go w.loop(ctx)
	logger.Printf("[authwatch] watching %s from offset %d", path, info.Size())
	return w, nil
}

func (w *Watcher) loop(ctx context.Context) {
	defer close(w.done)
	for {
		select {
		case <-ctx.Done():
			return
		case evt, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(evt.Name) != w.path {
				continue
			}
			switch {
			case evt.Op&fsnotify.Write != 0:
				w.scan()
			case evt.Op&fsnotify.Create != 0:
				// Rotated: the new file starts empty.
				w.mu.Lock()
				w.offset = 0
				w.mu.Unlock()
				w.scan()
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			w.logger.Printf("[authwatch] watcher error: %v", err)
		}
	}
}

// scan counts newline characters between the last offset and EOF.
func (w *Watcher) scan() {
	w.mu.Lock()
	defer w.mu.Unlock()

	f, err := os.Open(w.path)
	if err != nil {
		return
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return
	}
	if info.Size() < w.offset {
		w.offset = 0
	}
	if _, err := f.Seek(w.offset, io.SeekStart); err != nil {
		return
	}

	data, err := io.ReadAll(f)
	if err != nil {
		w.logger.Printf("[authwatch] read %s: %v", w.path, err)
		return
	}

	// Only complete lines are counted; a trailing partial line is picked
	// up by the next scan.
	last := bytes.LastIndexByte(data, '\n')
	if last < 0 {
		return
	}
	n := bytes.Count(data[:last+1], []byte{'\n'})
	w.offset += int64(last + 1)
	w.lines += n
	metrics.AddAuthLogLines(n)
}

// Lines returns how many lines have been appended since Start.
func (w *Watcher) Lines() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lines
}

// Stop performs a final scan, stops watching and returns the line count.
func (w *Watcher) Stop() int {
	w.scan()
	w.fsw.Close()
	<-w.done
	return w.Lines()
}
