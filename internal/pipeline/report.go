package pipeline

import (
	"fmt"
	"io"
	"log"
)

// Reporter receives progress and log lines from a run. Implementations
// must be safe for concurrent use when workers > 1.
type Reporter interface {
	// Progress is called after every processed file.
	Progress(category string, processed, total int)
	Infof(format string, v ...any)
	Errorf(format string, v ...any)
}

// LogReporter writes to a *log.Logger. Info and progress lines are only
// written when verbose is set; errors always are.
type LogReporter struct {
	l       *log.Logger
	verbose bool
}

// NewLogReporter prefixes every line with the run id.
func NewLogReporter(w io.Writer, verbose bool, runID string) *LogReporter {
	prefix := ""
	if runID != "" {
		prefix = "run=" + shortID(runID) + " "
	}
	return &LogReporter{l: log.New(w, prefix, log.LstdFlags|log.Lmsgprefix), verbose: verbose}
}

func (r *LogReporter) Progress(category string, processed, total int) {
	if r.verbose {
		r.l.Printf("INFO %s - %d/%d done.", category, processed, total)
	}
}

func (r *LogReporter) Infof(format string, v ...any) {
	if r.verbose {
		r.l.Printf("INFO "+format, v...)
	}
}

func (r *LogReporter) Errorf(format string, v ...any) {
	r.l.Printf("ERROR %s", fmt.Sprintf(format, v...))
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

type discardReporter struct{}

func (discardReporter) Progress(string, int, int) {}
func (discardReporter) Infof(string, ...any)      {}
func (discardReporter) Errorf(string, ...any)     {}
