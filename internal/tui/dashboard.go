// Package tui implements the interactive dashboard: the backend's current
// job, the monitored run with both log panes, and the run history.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/silkyclouds/Autokong/internal/constants"
	"github.com/silkyclouds/Autokong/internal/events"
	"github.com/silkyclouds/Autokong/internal/models"
	"github.com/silkyclouds/Autokong/internal/monitor"
	runui "github.com/silkyclouds/Autokong/internal/progress"
)

// historyRows is how many history entries the dashboard shows.
const historyRows = 8

// Deps are the monitor components the dashboard drives. Poller, History
// and Watcher are started by Run; Monitor is closed when it returns.
type Deps struct {
	Monitor *monitor.RunMonitor
	Poller  *monitor.CurrentJobPoller
	History *monitor.HistoryList
	Watcher *monitor.HistoryWatcher
	Bus     *events.EventBus

	// Launch starts a run with the saved defaults. Nil disables launching.
	Launch func(ctx context.Context) (*monitor.Run, error)

	// Initial is a run already being monitored, e.g. from --job.
	Initial *monitor.Run
}

type focusPane int

const (
	focusOrchestrator focusPane = iota
	focusContainer
)

type eventMsg struct{ ev events.Event }

type busClosedMsg struct{}

type launchedMsg struct {
	run *monitor.Run
	err error
}

type model struct {
	ctx  context.Context
	deps Deps
	evs  <-chan events.Event

	width  int
	height int

	current       models.CurrentJob
	history       []models.HistoryEntry
	historyErr    error
	view          *models.RunView
	gen           uint64
	launching     bool
	statusMessage string

	spinner      spinner.Model
	bar          progress.Model
	orchestrator viewport.Model
	container    viewport.Model
	focus        focusPane
}

// Run shows the dashboard until the user quits or ctx is cancelled.
func Run(ctx context.Context, deps Deps) error {
	if deps.Bus == nil {
		return errors.New("dashboard needs an event bus")
	}
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	m := newModel(ctx, deps, deps.Bus.SubscribeAll())

	if deps.Poller != nil {
		go deps.Poller.Run(ctx)
	}
	if deps.Watcher != nil {
		go deps.Watcher.Run(ctx)
	}
	if deps.Monitor != nil {
		defer deps.Monitor.Close()
	}

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

func newModel(ctx context.Context, deps Deps, evs <-chan events.Event) model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = runningStyle

	m := model{
		ctx:          ctx,
		deps:         deps,
		evs:          evs,
		spinner:      sp,
		bar:          progress.New(progress.WithDefaultGradient(), progress.WithWidth(40), progress.WithoutPercentage()),
		orchestrator: viewport.New(40, constants.DashboardLogLines),
		container:    viewport.New(40, constants.DashboardLogLines),
		width:        84,
	}
	if deps.Initial != nil {
		m.gen = deps.Initial.Generation
		if deps.Monitor != nil {
			m.setView(deps.Monitor.View())
		}
	}
	return m
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, waitForEvent(m.evs), m.refreshHistoryCmd())
}

func waitForEvent(ch <-chan events.Event) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-ch
		if !ok {
			return busClosedMsg{}
		}
		return eventMsg{ev: ev}
	}
}

func (m model) refreshHistoryCmd() tea.Cmd {
	if m.deps.History == nil {
		return nil
	}
	list, ctx := m.deps.History, m.ctx
	return func() tea.Msg {
		// The list publishes the result on the bus
		_, _ = list.Refresh(ctx)
		return nil
	}
}

func (m model) launchCmd() tea.Cmd {
	launch, ctx := m.deps.Launch, m.ctx
	return func() tea.Msg {
		run, err := launch(ctx)
		return launchedMsg{run: run, err: err}
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case eventMsg:
		m.handleEvent(msg.ev)
		return m, waitForEvent(m.evs)

	case busClosedMsg:
		return m, tea.Quit

	case launchedMsg:
		m.launching = false
		if msg.err != nil {
			m.statusMessage = "launch failed: " + msg.err.Error()
			return m, nil
		}
		m.gen = msg.run.Generation
		if m.deps.Monitor != nil {
			m.setView(m.deps.Monitor.View())
		}
		m.statusMessage = "launched job " + msg.run.Handle.JobID
		return m, nil

	case tea.KeyMsg:
		return m.updateKeys(msg)
	}
	return m, nil
}

func (m *model) handleEvent(ev events.Event) {
	switch e := ev.(type) {
	case *events.RunViewEvent:
		if e.Generation == m.gen {
			m.setView(e.View)
		}
	case *events.RunStateEvent:
		if e.Generation != m.gen {
			return
		}
		switch e.State {
		case events.StateFinished:
			m.statusMessage = fmt.Sprintf("job %s finished: %s", e.JobID, e.Status)
		case events.StateFailed:
			m.statusMessage = fmt.Sprintf("monitoring of job %s stopped: %v", e.JobID, e.Err)
		}
	case *events.CurrentJobEvent:
		m.current = e.Job
	case *events.HistoryRefreshedEvent:
		m.historyErr = e.Err
		if e.Entries != nil || e.Err == nil {
			m.history = e.Entries
		}
	}
}

func (m model) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit

	case "l":
		if m.deps.Launch == nil || m.launching || (m.view != nil && m.view.Running) {
			return m, nil
		}
		m.launching = true
		m.statusMessage = "launching..."
		return m, m.launchCmd()

	case "a":
		if m.deps.Monitor == nil || m.current.Idle() || (m.view != nil && m.view.JobID == m.current.JobID && m.view.Running) {
			return m, nil
		}
		run := m.deps.Monitor.Attach(m.current.JobID, false)
		m.gen = run.Generation
		m.setView(m.deps.Monitor.View())
		m.statusMessage = "following job " + m.current.JobID
		return m, nil

	case "r":
		m.statusMessage = "refreshing history..."
		return m, m.refreshHistoryCmd()

	case "tab":
		if m.focus == focusOrchestrator {
			m.focus = focusContainer
		} else {
			m.focus = focusOrchestrator
		}
		return m, nil
	}

	var cmd tea.Cmd
	if m.focus == focusOrchestrator {
		m.orchestrator, cmd = m.orchestrator.Update(msg)
	} else {
		m.container, cmd = m.container.Update(msg)
	}
	return m, cmd
}

// setView installs a new snapshot and keeps the log panes pinned to the
// bottom unless the user scrolled up.
func (m *model) setView(v *models.RunView) {
	if v == nil {
		return
	}
	m.view = v
	setLines(&m.orchestrator, v.OrchestratorLog)
	setLines(&m.container, v.ContainerLog)
}

func setLines(vp *viewport.Model, lines []string) {
	follow := vp.AtBottom()
	vp.SetContent(strings.Join(lines, "\n"))
	if follow {
		vp.GotoBottom()
	}
}

func (m *model) resize() {
	paneWidth := (m.width - 8) / 2
	if paneWidth < 20 {
		paneWidth = 20
	}
	m.orchestrator.Width = paneWidth
	m.container.Width = paneWidth
	m.bar.Width = paneWidth
}

func (m model) View() string {
	sections := []string{
		m.headerView(),
		m.runView(),
		m.historyView(),
		m.footerView(),
	}
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m model) headerView() string {
	title := titleStyle.Render("autokong")
	if m.current.Idle() {
		return title + "  " + mutedStyle.Render("backend idle")
	}
	status := m.spinner.View() + " " + runningStyle.Render(runui.DescribeJob(m.current))
	if m.current.Progress != nil {
		status += "  " + m.bar.ViewAs(m.current.Progress.Fraction())
	}
	return title + "  " + status
}

func (m model) runView() string {
	if m.view == nil {
		return panelStyle.Render(mutedStyle.Render("No run monitored. Press l to launch, a to follow the running job."))
	}
	v := m.view

	var b strings.Builder
	fmt.Fprintf(&b, "Job %s  %s", v.JobID, statusStyle(v.Status).Render(string(v.Status)))
	if v.Running {
		b.WriteString("  " + m.spinner.View())
	}
	b.WriteString("\n")
	if v.Progress != nil {
		fmt.Fprintf(&b, "%s  %s\n", m.bar.ViewAs(v.Progress.Fraction()), runui.StepLabel(v.Progress))
	}
	if v.Summary != nil {
		fmt.Fprintf(&b, "Steps: %s  Duration: %s\n", orDash(strings.Join(v.Summary.StepsRun, ", ")), formatDuration(v.Summary.DurationSeconds))
		if v.Summary.Error != "" {
			b.WriteString(errorStyle.Render("Error: "+v.Summary.Error) + "\n")
		}
	}
	if v.Audit != nil {
		fmt.Fprintf(&b, "Audit: %d deleted, %d renamed, %d album(s) with holes\n",
			v.Audit.FilesDeleted, v.Audit.FilesRenamed, len(v.Audit.AlbumsWithHoles))
	} else if v.AuditEnabled && v.AuditFetched {
		b.WriteString(mutedStyle.Render("Audit: not available") + "\n")
	}
	if v.LastError != "" {
		b.WriteString(errorStyle.Render("Monitoring stopped: "+v.LastError) + "\n")
	}

	orch, cont := panelStyle, panelStyle
	if m.focus == focusOrchestrator {
		orch = focusStyle
	} else {
		cont = focusStyle
	}
	panes := lipgloss.JoinHorizontal(lipgloss.Top,
		orch.Render(titleStyle.Render("Orchestrator")+"\n"+m.orchestrator.View()),
		cont.Render(titleStyle.Render("Container")+"\n"+m.container.View()),
	)
	return lipgloss.JoinVertical(lipgloss.Left, panelStyle.Render(strings.TrimRight(b.String(), "\n")), panes)
}

func (m model) historyView() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("History"))
	if m.historyErr != nil {
		b.WriteString("  " + errorStyle.Render(m.historyErr.Error()))
	}
	b.WriteString("\n")
	if len(m.history) == 0 {
		b.WriteString(mutedStyle.Render("no runs yet"))
		return panelStyle.Render(b.String())
	}
	for i, e := range m.history {
		if i == historyRows {
			break
		}
		started := e.StartedAt
		if t, ok := models.ParseTimestamp(e.StartedAt); ok {
			started = t.Local().Format("01-02 15:04")
		}
		fmt.Fprintf(&b, "%-12s %s  %-9s %-8s %s\n",
			truncate(e.ID, 12), started, statusStyle(e.Status).Render(string(e.Status)), orDash(e.Scope), formatDuration(e.Duration()))
	}
	return panelStyle.Render(strings.TrimRight(b.String(), "\n"))
}

func (m model) footerView() string {
	help := "l launch · a follow running job · r refresh history · tab switch log · ↑/↓ scroll · q quit"
	if m.statusMessage == "" {
		return mutedStyle.Render(help)
	}
	return m.statusMessage + "\n" + mutedStyle.Render(help)
}

func formatDuration(seconds int) string {
	if seconds <= 0 {
		return "-"
	}
	return (time.Duration(seconds) * time.Second).String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
