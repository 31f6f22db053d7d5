// internal/kernel/recorder.go

package kernel

import (
	"encoding/csv"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// CSVRecorder writes every non-tick event to a CSV file.
type CSVRecorder struct {
	mu        sync.Mutex
	csvFile   *os.File
	csvWriter *csv.Writer
}

// NewCSVRecorder creates path and writes the header row.
func NewCSVRecorder(path string) (*CSVRecorder, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create trace %s: %w", path, err)
	}
	w := csv.NewWriter(f)

	// write header
	if err := w.Write([]string{"timestamp", "tick", "event", "task_id", "object"}); err != nil {
		f.Close()
		return nil, err
	}
	w.Flush()
	return &CSVRecorder{csvFile: f, csvWriter: w}, nil
}

func (r *CSVRecorder) Trace(ev StatusEvent) {
	// ticks occur periodically, skip them for the brevity of output
	if ev.Kind == StatusTick {
		return
	}
	rec := []string{
		ev.Time.Format(time.RFC3339Nano),
		strconv.FormatUint(ev.Tick, 10),
		ev.Kind.String(),
		strconv.FormatUint(uint64(ev.TaskID), 10),
		strconv.FormatUint(uint64(ev.Object), 10),
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.csvWriter == nil {
		return
	}
	r.csvWriter.Write(rec)
	r.csvWriter.Flush()
}

// Close flushes and closes the file. Later events are dropped.
func (r *CSVRecorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.csvWriter == nil {
		return nil
	}
	r.csvWriter.Flush()
	err := r.csvWriter.Error()
	if cerr := r.csvFile.Close(); err == nil {
		err = cerr
	}
	r.csvWriter = nil
	return err
}

// LogTracer prints non-tick events as debug lines.
type LogTracer struct {
	Log zerolog.Logger
}

func (l LogTracer) Trace(ev StatusEvent) {
	if ev.Kind == StatusTick {
		return
	}

	// an auxiliary function to center the event kind in the output
	center := func(str string, width int) string {
		spaces := (width - len(str)) / 2
		return strings.Repeat(" ", spaces) + str + strings.Repeat(" ", width-(spaces+len(str)))
	}

	l.Log.Debug().
		Uint64("tick", ev.Tick).
		Uint32("task", uint32(ev.TaskID)).
		Uint32("object", ev.Object).
		Msgf("[%s]", center(ev.Kind.String(), 10))
}
