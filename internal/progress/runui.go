// Package progress renders live run progress in the terminal: a step bar
// for a monitored run and a one-line status indicator for the backend's
// current job.
package progress

import (
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/silkyclouds/Autokong/internal/models"
)

// RunUI shows a monitored run's step progress. On a terminal the bar is
// drawn by mpb and log lines are written above it; otherwise each step
// change is printed as a plain line.
type RunUI struct {
	progress   *mpb.Progress
	out        io.Writer
	isTerminal bool

	mu       sync.Mutex
	bar      *mpb.Bar
	total    int
	lastLine string

	// labelMu guards label alone; the bar's decorator reads it while mu may
	// be held around bar operations.
	labelMu sync.Mutex
	label   string
}

// NewRunUI creates a run UI writing to out.
func NewRunUI(out io.Writer, isTerminal bool) *RunUI {
	var p *mpb.Progress
	if isTerminal {
		p = mpb.New(
			mpb.WithOutput(out),
			mpb.WithRefreshRate(300*time.Millisecond),
			mpb.WithWidth(80),
		)
	} else {
		p = mpb.New(mpb.WithOutput(io.Discard))
	}
	return &RunUI{progress: p, out: out, isTerminal: isTerminal}
}

// Writer returns a writer whose lines appear above the bar.
func (u *RunUI) Writer() io.Writer {
	if u.isTerminal {
		return u.progress
	}
	return u.out
}

// IsTerminal reports whether the bar is drawn.
func (u *RunUI) IsTerminal() bool {
	return u.isTerminal
}

// Update moves the bar to p. A nil p leaves the bar as it is.
func (u *RunUI) Update(p *models.Progress) {
	if p == nil {
		return
	}
	label := StepLabel(p)
	u.labelMu.Lock()
	u.label = label
	u.labelMu.Unlock()

	u.mu.Lock()
	defer u.mu.Unlock()

	if !u.isTerminal {
		if label != u.lastLine {
			u.lastLine = label
			fmt.Fprintf(u.out, "[%s] %s\n", time.Now().Format("15:04:05"), label)
		}
		return
	}

	if p.Total <= 0 {
		return
	}
	if u.bar == nil || p.Total != u.total {
		if u.bar != nil {
			u.bar.Abort(true)
		}
		u.total = p.Total
		u.bar = u.newBar(int64(p.Total))
	}
	u.bar.SetCurrent(int64(p.Step()))
}

// newBar creates a bar sized for total steps. Reaching the last step does
// not complete it; Finish does.
func (u *RunUI) newBar(total int64) *mpb.Bar {
	bar := u.progress.New(0,
		mpb.BarStyle().
			Lbound("[").
			Filler("█").
			Tip("█").
			Padding("░").
			Rbound("]"),
		mpb.PrependDecorators(
			decor.Any(func(s decor.Statistics) string {
				u.labelMu.Lock()
				defer u.labelMu.Unlock()
				return u.label
			}, decor.WCSyncSpaceR),
		),
		mpb.AppendDecorators(
			decor.CountersNoUnit("%d / %d", decor.WCSyncSpace),
			decor.Name("  "),
			decor.Percentage(decor.WCSyncSpace),
			decor.Name("  "),
			decor.Elapsed(decor.ET_STYLE_GO, decor.WCSyncSpace),
		),
		mpb.BarRemoveOnComplete(),
	)
	bar.SetTotal(total, false)
	return bar
}

// Finish completes or aborts the bar and waits for the last redraw. The UI
// cannot be reused afterwards.
func (u *RunUI) Finish(ok bool) {
	u.mu.Lock()
	bar := u.bar
	u.mu.Unlock()

	if bar != nil && !bar.Completed() {
		if ok {
			bar.SetTotal(-1, true)
		} else {
			bar.Abort(false)
		}
	}
	u.progress.Wait()
}

// StepLabel describes where a run is, e.g. "Step 2/4: Bandcamp" while the
// backend reports current=1.
func StepLabel(p *models.Progress) string {
	if p == nil {
		return ""
	}
	label := p.StepLabel
	if label == "" {
		label = p.StepID.Label()
	}
	s := fmt.Sprintf("Step %d/%d: %s", p.Step(), p.Total, label)
	if p.ContainerName != "" {
		s += " (" + p.ContainerName + ")"
	}
	return s
}
