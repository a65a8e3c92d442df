package tui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/silkyclouds/Autokong/internal/events"
	"github.com/silkyclouds/Autokong/internal/models"
	"github.com/silkyclouds/Autokong/internal/monitor"
)

func newTestModel(deps Deps) model {
	return newModel(context.Background(), deps, make(chan events.Event))
}

func update(t *testing.T, m model, msg tea.Msg) (model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	nm, ok := next.(model)
	if !ok {
		t.Fatalf("Update returned %T, want model", next)
	}
	return nm, cmd
}

func TestDashboardShowsCurrentJob(t *testing.T) {
	m := newTestModel(Deps{})
	if !strings.Contains(m.View(), "backend idle") {
		t.Fatalf("expected idle header, got:\n%s", m.View())
	}

	job := models.CurrentJob{JobID: "j1", Progress: &models.Progress{Current: 0, Total: 2, StepID: models.StepRename}}
	m, _ = update(t, m, eventMsg{ev: &events.CurrentJobEvent{Job: job}})
	if !strings.Contains(m.View(), "running j1: Step 1/2: Rename files") {
		t.Errorf("expected running header, got:\n%s", m.View())
	}

	m, _ = update(t, m, eventMsg{ev: &events.CurrentJobEvent{}})
	if !strings.Contains(m.View(), "backend idle") {
		t.Errorf("expected idle after empty sample, got:\n%s", m.View())
	}
}

func TestDashboardIgnoresOtherGenerations(t *testing.T) {
	m := newTestModel(Deps{})
	m.gen = 2

	stale := models.NewRunView("old", false)
	m, _ = update(t, m, eventMsg{ev: &events.RunViewEvent{Generation: 1, View: stale}})
	if m.view != nil {
		t.Fatalf("stale generation should be ignored, got view for %s", m.view.JobID)
	}

	v := models.NewRunView("new", true)
	v.OrchestratorLog = []string{"starting musicbrainz"}
	v.ContainerLog = []string{"beets: 12 albums"}
	m, _ = update(t, m, eventMsg{ev: &events.RunViewEvent{Generation: 2, View: v}})
	if m.view == nil || m.view.JobID != "new" {
		t.Fatalf("expected view for job new, got %+v", m.view)
	}
	out := m.View()
	for _, want := range []string{"Job new", "starting musicbrainz", "beets: 12 albums"} {
		if !strings.Contains(out, want) {
			t.Errorf("view missing %q:\n%s", want, out)
		}
	}
}

func TestDashboardFinishedRun(t *testing.T) {
	m := newTestModel(Deps{})
	m.gen = 1

	v := models.NewRunView("j9", true)
	v.Status = models.StatusOK
	v.Running = false
	v.Summary = &models.RunSummary{Status: models.StatusOK, StepsRun: []string{"rename:/music/a"}, DurationSeconds: 75}
	v.Audit = &models.AuditResult{FilesDeleted: 2, FilesRenamed: 5, AlbumsWithHoles: []models.AlbumHole{{Artist: "a", Album: "b"}}}
	v.AuditFetched = true
	m, _ = update(t, m, eventMsg{ev: &events.RunViewEvent{Generation: 1, View: v}})
	m, _ = update(t, m, eventMsg{ev: &events.RunStateEvent{Generation: 1, JobID: "j9", State: events.StateFinished, Status: models.StatusOK}})

	out := m.View()
	for _, want := range []string{"1m15s", "Audit: 2 deleted, 5 renamed, 1 album(s) with holes", "job j9 finished: ok"} {
		if !strings.Contains(out, want) {
			t.Errorf("view missing %q:\n%s", want, out)
		}
	}
}

func TestDashboardHistory(t *testing.T) {
	m := newTestModel(Deps{})
	if !strings.Contains(m.View(), "no runs yet") {
		t.Fatalf("expected empty history, got:\n%s", m.View())
	}

	entries := []models.HistoryEntry{
		{ID: "abc", StartedAt: "2024-01-15T03:00:00Z", Status: models.StatusOK, Scope: "daily"},
		{ID: "def", StartedAt: "2024-01-14T03:00:00Z", Status: models.StatusError, Scope: "monthly"},
	}
	m, _ = update(t, m, eventMsg{ev: &events.HistoryRefreshedEvent{Entries: entries}})
	out := m.View()
	if !strings.Contains(out, "abc") || !strings.Contains(out, "def") {
		t.Errorf("history rows missing:\n%s", out)
	}

	// A failed refresh without entries keeps the previous list
	m, _ = update(t, m, eventMsg{ev: &events.HistoryRefreshedEvent{Err: errors.New("backend down")}})
	out = m.View()
	if !strings.Contains(out, "abc") || !strings.Contains(out, "backend down") {
		t.Errorf("expected previous rows and error:\n%s", out)
	}
}

func TestDashboardQuit(t *testing.T) {
	m := newTestModel(Deps{})
	_, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}})
	if cmd == nil {
		t.Fatal("expected quit command")
	}
	if _, ok := cmd().(tea.QuitMsg); !ok {
		t.Error("expected tea.QuitMsg")
	}
}

func TestDashboardLaunch(t *testing.T) {
	m := newTestModel(Deps{})
	if _, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'l'}}); cmd != nil {
		t.Error("launch without a launcher should do nothing")
	}

	calls := 0
	m = newTestModel(Deps{Launch: func(ctx context.Context) (*monitor.Run, error) {
		calls++
		return nil, errors.New("no folders")
	}})
	m, cmd := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'l'}})
	if cmd == nil || !m.launching {
		t.Fatal("expected launch command")
	}

	// A second press while launching is ignored
	if _, again := update(t, m, tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'l'}}); again != nil {
		t.Error("expected no second launch")
	}

	m, _ = update(t, m, cmd())
	if calls != 1 {
		t.Errorf("expected 1 launch call, got %d", calls)
	}
	if m.launching || !strings.Contains(m.statusMessage, "launch failed: no folders") {
		t.Errorf("unexpected state after failed launch: launching=%v status=%q", m.launching, m.statusMessage)
	}
}

func TestDashboardTabSwitchesFocus(t *testing.T) {
	m := newTestModel(Deps{})
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	if m.focus != focusContainer {
		t.Errorf("expected container focus")
	}
	m, _ = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
	if m.focus != focusOrchestrator {
		t.Errorf("expected orchestrator focus")
	}
}
