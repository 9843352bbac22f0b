package watcher

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// pidPattern is the launch signal written by the game launcher.
var pidPattern = regexp.MustCompile(`adding PID (\d+) as a tracked process`)

// Tailer follows an append-only log file by byte offset. Each Drain reads
// only newly appended complete lines and reports extracted PIDs; the offset
// advances only after a successful read, so lines are neither reprocessed nor
// skipped. Drain runs only on the watch goroutine (once at startup, then per
// change notification).
type Tailer struct {
	path   string
	onPID  func(int32)
	log    zerolog.Logger
	offset int64
}

func NewTailer(path string, onPID func(int32), log zerolog.Logger) *Tailer {
	return &Tailer{path: path, onPID: onPID, log: log}
}

// Drain reads newly appended bytes and emits a PID per matching line. A line
// without a trailing newline is left for the next drain.
func (t *Tailer) Drain() {
	f, err := os.Open(t.path)
	if err != nil {
		return
	}
	defer f.Close()
	if _, err := f.Seek(t.offset, io.SeekStart); err != nil {
		return
	}
	data, err := io.ReadAll(f)
	if err != nil || len(data) == 0 {
		return
	}
	end := bytes.LastIndexByte(data, '\n')
	if end < 0 {
		return
	}
	chunk := data[:end+1]
	t.offset += int64(end + 1)

	for _, line := range bytes.Split(chunk, []byte{'\n'}) {
		m := pidPattern.FindSubmatch(line)
		if m == nil {
			continue
		}
		pid, err := strconv.Atoi(string(m[1]))
		if err != nil || pid <= 0 {
			continue
		}
		t.onPID(int32(pid))
	}
}

// Watch starts a goroutine that drains existing content and then follows
// directory change notifications for the log file until ctx is canceled.
func (t *Tailer) Watch(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	if err := fsw.Add(filepath.Dir(t.path)); err != nil {
		_ = fsw.Close()
		return err
	}

	go func() {
		defer fsw.Close()
		t.Drain()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-fsw.Events:
				if !ok {
					return
				}
				if ev.Name != t.path {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				t.Drain()
			case err, ok := <-fsw.Errors:
				if !ok {
					return
				}
				t.log.Warn().Err(err).Msg("log watch error")
			}
		}
	}()
	return nil
}
