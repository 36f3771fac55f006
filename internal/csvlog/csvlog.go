// Package csvlog persists the tick log: one CSV row per tick holding the
// elapsed time in seconds followed by one temperature per zone.
package csvlog

import (
	"encoding/csv"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"time"
)

// FileName returns the log file name for a run started at start.
func FileName(start time.Time) string {
	return "plot_data_" + start.Format("20060102-150405") + ".csv"
}

// Writer appends rows to a run's CSV file. Each row is flushed as it is
// written so a crash loses at most the row in progress.
type Writer struct {
	f    *os.File
	w    *csv.Writer
	path string
	rows int
}

// Create opens a new log file under dir, creating dir if needed.
func Create(dir string, start time.Time) (*Writer, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}
	path := filepath.Join(dir, FileName(start))
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	return &Writer{f: f, w: csv.NewWriter(f), path: path}, nil
}

// Path is the file being written.
func (w *Writer) Path() string {
	return w.path
}

// Rows is the number of rows written so far.
func (w *Writer) Rows() int {
	return w.rows
}

// Append writes one row. A NaN temperature is written as an empty field:
// the zone has no stored sample yet.
func (w *Writer) Append(elapsed time.Duration, temps []float64) error {
	rec := make([]string, 0, len(temps)+1)
	rec = append(rec, formatFloat(elapsed.Seconds()))
	for _, t := range temps {
		if math.IsNaN(t) {
			rec = append(rec, "")
			continue
		}
		rec = append(rec, formatFloat(t))
	}

	if err := w.w.Write(rec); err != nil {
		return fmt.Errorf("write log row: %w", err)
	}
	w.w.Flush()
	if err := w.w.Error(); err != nil {
		return fmt.Errorf("flush log row: %w", err)
	}
	w.rows++
	return nil
}

// Close flushes and closes the file.
func (w *Writer) Close() error {
	w.w.Flush()
	if err := w.w.Error(); err != nil {
		w.f.Close()
		return fmt.Errorf("flush log: %w", err)
	}
	return w.f.Close()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
