package eventlog

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/fsnotify/fsnotify"
)

// Follow replays every row already in the CSV log at path and then calls fn
// for each row appended later, until ctx is cancelled or fn returns an
// error. Partial lines are held back until their newline arrives.
func Follow(ctx context.Context, path string, fn func(Event) error) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory so a log created after we start is still seen.
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return fmt.Errorf("watch %s: %w", filepath.Dir(path), err)
	}

	t := &tailer{path: path, fn: fn}
	if err := t.drain(); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != filepath.Clean(path) {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
				if err := t.drain(); err != nil {
					return err
				}
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watcher: %w", err)
		}
	}
}

type tailer struct {
	path    string
	offset  int64
	partial string
	fn      func(Event) error
}

// drain reads from the last offset to EOF and emits complete rows.
func (t *tailer) drain() error {
	f, err := os.Open(t.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	if info.Size() < t.offset {
		// Truncated or replaced; start over.
		t.offset, t.partial = 0, ""
	}
	if _, err := f.Seek(t.offset, io.SeekStart); err != nil {
		return err
	}

	r := bufio.NewReader(f)
	for {
		line, err := r.ReadString('\n')
		t.offset += int64(len(line))
		if err == io.EOF {
			t.partial += line
			return nil
		}
		if err != nil {
			return err
		}
		full := t.partial + line
		t.partial = ""
		if err := t.emit(full); err != nil {
			return err
		}
	}
}

func (t *tailer) emit(line string) error {
	if strings.TrimSpace(line) == "" {
		return nil
	}
	row, err := csv.NewReader(strings.NewReader(line)).Read()
	if err != nil {
		return fmt.Errorf("parse row %q: %w", strings.TrimSpace(line), err)
	}
	if isHeader(row) {
		return nil
	}
	e, err := ParseRow(row)
	if err != nil {
		return fmt.Errorf("parse row %q: %w", strings.TrimSpace(line), err)
	}
	return t.fn(e)
}
