package cli

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/silkyclouds/Autokong/internal/models"
	"github.com/silkyclouds/Autokong/internal/progress"
)

// newLines returns the lines of next that were not already shown from prev.
// Both are tails of a growing log, so the longest suffix of prev that is a
// prefix of next is what they share.
func newLines(prev, next []string) []string {
	n := len(prev)
	if len(next) < n {
		n = len(next)
	}
	for k := n; k > 0; k-- {
		if equalLines(prev[len(prev)-k:], next[:k]) {
			return next[k:]
		}
	}
	return next
}

func equalLines(a, b []string) bool {
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func formatDuration(seconds int) string {
	if seconds <= 0 {
		return "-"
	}
	return (time.Duration(seconds) * time.Second).String()
}

func formatTimestamp(s string) string {
	t, ok := models.ParseTimestamp(s)
	if !ok {
		if s == "" {
			return "-"
		}
		return s
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func writeSummary(w *textWriter, view *models.RunView) {
	if view == nil {
		return
	}
	w.Println()
	if view.Summary == nil {
		w.Printf("Job %s: %s\n", view.JobID, view.Status)
		if view.LastError != "" {
			w.Printf("  Monitoring stopped: %s\n", view.LastError)
		}
		return
	}

	s := view.Summary
	if s.Status == models.StatusNoFolders {
		w.Printf("Job %s: no folders to process\n", view.JobID)
		return
	}
	w.Printf("Job %s finished: %s\n", view.JobID, s.Status)
	if len(s.StepsRun) > 0 {
		w.Printf("  Steps run: %s\n", strings.Join(s.StepsRun, ", "))
	}
	w.Printf("  Duration:  %s\n", formatDuration(s.DurationSeconds))
	if s.Error != "" {
		w.Printf("  Error:     %s\n", s.Error)
	}
	writeViewAudit(w, view)
}

func writeViewAudit(w *textWriter, view *models.RunView) {
	if !view.AuditEnabled || !view.Status.AuditEligible() {
		return
	}
	if view.Audit == nil {
		if view.AuditFetched {
			w.Println()
			w.Println("Audit: not available")
		}
		return
	}
	w.Println()
	writeAudit(w, view.Audit)
}

func writeAudit(w *textWriter, a *models.AuditResult) {
	w.Println("Audit:")
	w.Printf("  Files deleted:     %d\n", a.FilesDeleted)
	w.Printf("  Files renamed:     %d\n", a.FilesRenamed)
	w.Printf("  Albums with holes: %d\n", len(a.AlbumsWithHoles))
	for _, h := range a.AlbumsWithHoles {
		missing := make([]string, len(h.MissingTracks))
		for i, n := range h.MissingTracks {
			missing[i] = fmt.Sprint(n)
		}
		w.Printf("    %s - %s (%d tracks, missing %s)\n", h.Artist, h.Album, h.TotalTracks, orDash(strings.Join(missing, ", ")))
	}
	if a.Error != "" {
		w.Printf("  Error: %s\n", a.Error)
	}
}

func writeJobStatus(w *textWriter, st *models.JobStatusResponse) {
	w.Printf("Job:      %s\n", st.JobID)
	w.Printf("Status:   %s\n", st.Status)
	w.Printf("Started:  %s\n", formatTimestamp(st.StartedAt))
	if st.Status.IsTerminal() {
		w.Printf("Finished: %s\n", formatTimestamp(st.FinishedAt))
	}
	if st.Scope != "" {
		w.Printf("Scope:    %s\n", st.Scope)
	}
	if st.Progress != nil {
		w.Printf("Progress: %s\n", progress.StepLabel(st.Progress))
		if st.Progress.Folder != "" {
			w.Printf("Folder:   %s\n", st.Progress.Folder)
		}
	}
	if st.Status.IsTerminal() {
		s := st.RunSummary()
		if len(s.StepsRun) > 0 {
			w.Printf("Steps:    %s\n", strings.Join(s.StepsRun, ", "))
		}
		w.Printf("Duration: %s\n", formatDuration(s.DurationSeconds))
		if s.Error != "" {
			w.Printf("Error:    %s\n", s.Error)
		}
	}
	if len(st.LogTail) > 0 {
		w.Println()
		w.Println("Recent log:")
		for _, line := range st.LogTail {
			w.Printf("  %s\n", line)
		}
	}
}

func writeHistory(w *textWriter, entries []models.HistoryEntry) {
	if len(entries) == 0 {
		w.Println("No runs yet.")
		return
	}
	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, []string{
			e.ID,
			formatTimestamp(e.StartedAt),
			string(e.Status),
			orDash(e.Scope),
			formatDuration(e.Duration()),
		})
	}
	w.Table([]string{"JOB", "STARTED", "STATUS", "SCOPE", "DURATION"}, rows)
}

func writeSchedule(w *textWriter, s *models.Schedule, localNext time.Time) {
	w.Printf("Enabled:  %t\n", s.Enabled)
	w.Printf("Cron:     %s\n", orDash(s.Cron))
	w.Printf("Preset:   %s\n", orDash(s.Preset))
	w.Printf("Steps:    %s\n", orDash(strings.Join(s.Steps, ", ")))
	scope := ""
	if s.Scope != nil {
		scope = *s.Scope
	}
	w.Printf("Scope:    %s\n", orDash(scope))
	switch {
	case s.NextRun != nil && *s.NextRun != "":
		w.Printf("Next run: %s\n", formatTimestamp(*s.NextRun))
	case !localNext.IsZero():
		w.Printf("Next run: %s (local estimate)\n", localNext.Local().Format("2006-01-02 15:04:05"))
	}
}

func writeHealth(w *textWriter, h *models.Health) {
	state := "ok"
	if !h.OK {
		state = "FAILING"
	}
	w.Printf("Backend: %s\n", state)
	names := make([]string, 0, len(h.Checks))
	for name := range h.Checks {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		mark := "✓"
		if !h.Checks[name] {
			mark = "✗"
		}
		w.Printf("  %s %s\n", mark, name)
	}
}
