// Package report formats the console output of a run: buffer dumps and the
// per-worker lifetime summary.
package report

import (
	"fmt"
	"io"
	"time"

	"github.com/valyala/bytebufferpool"

	"github.com/srediag/regionshm/pkg/worker"
)

// Resolution is the precision of reported durations.
const Resolution = 10 * time.Millisecond

// Line is one worker in the lifetime summary.
type Line struct {
	Index    int
	PID      int
	Op       worker.Op
	Expected time.Duration
	Actual   time.Duration
	Reason   string
}

// String formats the line for the console.
func (l Line) String() string {
	reason := l.Reason
	if reason == "" {
		reason = "running"
	}
	return fmt.Sprintf("Worker %d (PID %d) - %s [%c]: expected %s, actual %s (%s)",
		l.Index, l.PID, l.Op, l.Op.Code(), l.Expected, l.Actual.Round(Resolution), reason)
}

// Summarize returns the expected and actual lifetime of every worker. Actual
// is zero for a worker without both timestamps.
func Summarize(cfgs []worker.Config) []Line {
	lines := make([]Line, len(cfgs))
	for i, c := range cfgs {
		lines[i] = Line{
			Index:    c.Index,
			PID:      c.PID,
			Op:       c.Op,
			Expected: c.Lifetime,
			Actual:   c.ActualDuration(),
			Reason:   c.EndReason,
		}
	}
	return lines
}

// WriteSummary writes the lifetime summary of cfgs to w.
func WriteSummary(w io.Writer, cfgs []worker.Config) error {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	_, _ = buf.WriteString("\n--- Worker lifetime summary ---\n")
	for _, l := range Summarize(cfgs) {
		_, _ = buf.WriteString(l.String())
		_ = buf.WriteByte('\n')
	}
	_, err := w.Write(buf.B)
	return err
}

// WriteDump writes a titled buffer dump to w.
func WriteDump(w io.Writer, title string, rows []string) error {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	_, _ = fmt.Fprintf(buf, "\n\t\t----%s----\n\n", title)
	for _, row := range rows {
		_, _ = buf.WriteString(row)
		_ = buf.WriteByte('\n')
	}
	_ = buf.WriteByte('\n')
	_, err := w.Write(buf.B)
	return err
}
