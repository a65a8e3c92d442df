package progress

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/schollz/progressbar/v3"

	"github.com/silkyclouds/Autokong/internal/models"
)

// StatusLine is a single-line indicator of what the backend is running.
type StatusLine struct {
	out        io.Writer
	isTerminal bool

	mu   sync.Mutex
	bar  *progressbar.ProgressBar
	last string
}

// NewStatusLine creates a status line writing to out. On a terminal it is a
// spinner whose description follows the current job; otherwise a line is
// printed each time the description changes.
func NewStatusLine(out io.Writer, isTerminal bool) *StatusLine {
	s := &StatusLine{out: out, isTerminal: isTerminal}
	if isTerminal {
		s.bar = progressbar.NewOptions(-1,
			progressbar.OptionSetWriter(out),
			progressbar.OptionSetDescription("connecting"),
			progressbar.OptionSpinnerType(14),
			progressbar.OptionSetWidth(30),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionSetRenderBlankState(true),
			progressbar.OptionClearOnFinish(),
		)
	}
	return s
}

// Show displays job.
func (s *StatusLine) Show(job models.CurrentJob) {
	s.mu.Lock()
	defer s.mu.Unlock()

	desc := DescribeJob(job)
	if s.bar != nil {
		s.bar.Describe(desc)
		_ = s.bar.Add(1)
		s.last = desc
		return
	}
	if desc != s.last {
		s.last = desc
		fmt.Fprintf(s.out, "[%s] %s\n", time.Now().Format("15:04:05"), desc)
	}
}

// Println prints a line without corrupting the indicator.
func (s *StatusLine) Println(line string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bar != nil {
		_ = s.bar.Clear()
	}
	fmt.Fprintln(s.out, line)
}

// Last returns the most recent description.
func (s *StatusLine) Last() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Close removes the indicator.
func (s *StatusLine) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.bar != nil {
		_ = s.bar.Finish()
	}
}

// DescribeJob summarizes a current-job sample.
func DescribeJob(job models.CurrentJob) string {
	if job.Idle() {
		return "idle"
	}
	if job.Progress == nil {
		return "running " + job.JobID
	}
	return fmt.Sprintf("running %s: %s", job.JobID, StepLabel(job.Progress))
}
