package eventlog

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// CSVSink appends events to a CSV file. The file is opened in append mode so
// a restarted session continues the same history, and the header is written
// only when the file is new or empty.
type CSVSink struct {
	mu   sync.Mutex
	path string
	f    *os.File
	w    *csv.Writer
}

// OpenCSV opens (or creates) the log at path.
func OpenCSV(path string) (*CSVSink, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("stat log: %w", err)
	}

	s := &CSVSink{path: path, f: f, w: csv.NewWriter(f)}
	if info.Size() == 0 {
		if err := s.writeRow(Header); err != nil {
			f.Close()
			return nil, fmt.Errorf("write header: %w", err)
		}
	}
	return s, nil
}

// Path returns the log file path.
func (s *CSVSink) Path() string {
	return s.path
}

// Append writes one row, flushes it, and syncs the file so a concurrent
// reader sees the complete line.
func (s *CSVSink) Append(_ context.Context, e Event) error {
	if err := s.writeRow(e.Row()); err != nil {
		return fmt.Errorf("append to %s: %w", s.path, err)
	}
	return nil
}

func (s *CSVSink) writeRow(row []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return os.ErrClosed
	}
	if err := s.w.Write(row); err != nil {
		return err
	}
	s.w.Flush()
	if err := s.w.Error(); err != nil {
		return err
	}
	return s.f.Sync()
}

// Close flushes and closes the file. It is safe to call more than once.
func (s *CSVSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.f == nil {
		return nil
	}
	s.w.Flush()
	err := s.f.Close()
	s.f = nil
	return err
}

// ReadCSV loads every data row of a log, skipping header rows.
func ReadCSV(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	rows, err := r.ReadAll()
	if err != nil {
		return nil, err
	}

	var events []Event
	for _, row := range rows {
		if isHeader(row) {
			continue
		}
		e, err := ParseRow(row)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		events = append(events, e)
	}
	return events, nil
}

func isHeader(row []string) bool {
	return len(row) > 0 && row[0] == Header[0]
}
