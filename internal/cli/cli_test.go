package cli

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/silkyclouds/Autokong/internal/events"
	"github.com/silkyclouds/Autokong/internal/models"
	"github.com/silkyclouds/Autokong/internal/monitor"
	"github.com/silkyclouds/Autokong/internal/testutil"
)

// isolateEnv keeps the user's environment out of the command under test.
func isolateEnv(t *testing.T) {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("USERPROFILE", home)
	t.Setenv("AUTOKONG_URL", "")
	t.Setenv("AUTOKONG_API_TOKEN", "")
	t.Setenv("AUTOKONG_CONSOLE_CONFIG", "")
}

// writeConfig writes a console config pointing at url with fast polling,
// no retries and a cache inside the test directory.
func writeConfig(t *testing.T, url string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "console.ini")
	content := fmt.Sprintf(`[autokong]
base_url = %s

[monitor]
run_poll_interval_ms = 100
transient_retries = 0

[cache]
path = %s
`, url, filepath.Join(dir, "history.db"))
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

// execute runs the full command tree with args and returns what it printed.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := NewRootCmd()
	AddCommands(root)
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetIn(strings.NewReader(""))
	root.SetArgs(args)
	err := root.Execute()
	return stdout.String(), stderr.String(), err
}

func TestRootCommand(t *testing.T) {
	root := NewRootCmd()
	AddCommands(root)

	if root.Use != "autokong" {
		t.Errorf("Expected Use='autokong', got '%s'", root.Use)
	}

	for _, name := range []string{"run", "attach", "watch", "dashboard", "job", "history", "preview", "schedule", "health", "config", "version", "completion"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil || cmd == nil || cmd.Name() != name {
			t.Errorf("command %q not registered", name)
			continue
		}
		if cmd.Short == "" {
			t.Errorf("command %q has no short description", name)
		}
	}

	for _, flag := range []string{"config", "url", "verbose", "debug", "output"} {
		if root.PersistentFlags().Lookup(flag) == nil {
			t.Errorf("persistent flag --%s missing", flag)
		}
	}
}

func TestRunCommandFlags(t *testing.T) {
	cmd := newRunCmd()
	for _, flag := range []string{"scope", "step", "folder", "audit", "no-audit", "detach", "yes"} {
		if cmd.Flags().Lookup(flag) == nil {
			t.Errorf("run flag --%s missing", flag)
		}
	}
	if cmd.Flags().ShorthandLookup("y") == nil {
		t.Error("expected -y shorthand for --yes")
	}
}

func TestOutputFormatValidation(t *testing.T) {
	isolateEnv(t)
	if _, _, err := execute(t, "--output", "xml", "version"); err == nil {
		t.Fatal("expected error for unknown output format")
	}
}

func TestVersionCommand_JSON(t *testing.T) {
	isolateEnv(t)
	out, _, err := execute(t, "-o", "json", "version")
	if err != nil {
		t.Fatalf("version failed: %v", err)
	}
	var info map[string]string
	if err := json.Unmarshal([]byte(out), &info); err != nil {
		t.Fatalf("version output is not JSON: %v\n%s", err, out)
	}
	if info["version"] == "" || info["user_agent"] == "" {
		t.Errorf("incomplete version info: %v", info)
	}
}

func TestNewLines(t *testing.T) {
	tests := []struct {
		name string
		prev []string
		next []string
		want []string
	}{
		{"first fetch", nil, []string{"a", "b"}, []string{"a", "b"}},
		{"appended", []string{"a", "b"}, []string{"a", "b", "c"}, []string{"c"}},
		{"unchanged", []string{"a", "b"}, []string{"a", "b"}, []string{}},
		{"tail window moved", []string{"a", "b", "c"}, []string{"b", "c", "d", "e"}, []string{"d", "e"}},
		{"no overlap", []string{"a", "b"}, []string{"x", "y"}, []string{"x", "y"}},
		{"repeated lines", []string{"x", "x"}, []string{"x", "x", "x"}, []string{"x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := newLines(tt.prev, tt.next)
			if len(got) != len(tt.want) {
				t.Fatalf("newLines(%v, %v) = %v, want %v", tt.prev, tt.next, got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("newLines(%v, %v) = %v, want %v", tt.prev, tt.next, got, tt.want)
					break
				}
			}
		})
	}
}

func TestPromptConfirm(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"y\n", true},
		{"YES\n", true},
		{"n\n", false},
		{"\n", false},
		{"maybe\ny\n", true},
	}

	for _, tt := range tests {
		var out bytes.Buffer
		got, err := promptConfirm(strings.NewReader(tt.input), &out, "Launch?")
		if err != nil {
			t.Errorf("promptConfirm(%q) error: %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("promptConfirm(%q) = %v, want %v", tt.input, got, tt.want)
		}
		if !strings.Contains(out.String(), "Launch? [y/N]: ") {
			t.Errorf("prompt not shown for %q: %q", tt.input, out.String())
		}
	}

	if _, err := promptConfirm(strings.NewReader(""), &bytes.Buffer{}, "Launch?"); err == nil {
		t.Error("expected error on closed input")
	}
}

func TestNextRun(t *testing.T) {
	now := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	reported := "2024-01-16T03:00:00Z"

	tests := []struct {
		name  string
		sched models.Schedule
		want  time.Time
	}{
		{"disabled", models.Schedule{Enabled: false, Cron: "0 3 * * *"}, time.Time{}},
		{"backend reports next run", models.Schedule{Enabled: true, Cron: "0 3 * * *", NextRun: &reported}, time.Time{}},
		{"invalid cron", models.Schedule{Enabled: true, Cron: "not a cron"}, time.Time{}},
		{"estimated", models.Schedule{Enabled: true, Cron: "0 3 * * *"}, time.Date(2024, 1, 16, 3, 0, 0, 0, time.UTC)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := nextRun(&tt.sched, now)
			if !got.Equal(tt.want) {
				t.Errorf("nextRun() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDescribeHistoryRefresh(t *testing.T) {
	ok := describeHistoryRefresh(&events.HistoryRefreshedEvent{Entries: []models.HistoryEntry{
		{ID: "a", Status: models.StatusOK, Scope: "daily"},
		{ID: "b", Status: models.StatusError},
	}})
	if ok != "Run a finished: ok (daily, -)" {
		t.Errorf("unexpected description %q", ok)
	}
	failed := describeHistoryRefresh(&events.HistoryRefreshedEvent{Err: errors.New("boom")})
	if !strings.Contains(failed, "boom") {
		t.Errorf("expected error in %q", failed)
	}
}

func TestWriteSummary(t *testing.T) {
	view := models.NewRunView("j1", true)
	view.Status = models.StatusOK
	view.Summary = &models.RunSummary{Status: models.StatusOK, StepsRun: []string{"rename:/music/a"}, DurationSeconds: 90}
	view.AuditFetched = true

	var buf bytes.Buffer
	w := &textWriter{w: &buf}
	writeSummary(w, view)
	out := buf.String()

	for _, want := range []string{"Job j1 finished: ok", "rename:/music/a", "1m30s", "Audit: not available"} {
		if !strings.Contains(out, want) {
			t.Errorf("summary missing %q:\n%s", want, out)
		}
	}
}

func TestWriteSummary_NoFolders(t *testing.T) {
	view := models.NewRunView("j2", false)
	view.Status = models.StatusNoFolders
	view.Summary = &models.RunSummary{Status: models.StatusNoFolders}

	var buf bytes.Buffer
	writeSummary(&textWriter{w: &buf}, view)
	if !strings.Contains(buf.String(), "no folders to process") {
		t.Errorf("unexpected summary:\n%s", buf.String())
	}
}

func TestWriteHistory(t *testing.T) {
	var buf bytes.Buffer
	writeHistory(&textWriter{w: &buf}, nil)
	if !strings.Contains(buf.String(), "No runs yet.") {
		t.Errorf("expected empty message, got %q", buf.String())
	}

	buf.Reset()
	writeHistory(&textWriter{w: &buf}, []models.HistoryEntry{{ID: "abc", Status: models.StatusError, Scope: "monthly"}})
	out := buf.String()
	for _, want := range []string{"JOB", "STATUS", "abc", "error", "monthly"} {
		if !strings.Contains(out, want) {
			t.Errorf("history table missing %q:\n%s", want, out)
		}
	}
}

func TestHealthCommand(t *testing.T) {
	isolateEnv(t)
	backend := testutil.NewBackend()
	defer backend.Close()

	out, _, err := execute(t, "--config", writeConfig(t, backend.URL()), "health")
	if err != nil {
		t.Fatalf("health failed: %v", err)
	}
	if !strings.Contains(out, "Backend: ok") || !strings.Contains(out, "✓ host_root") {
		t.Errorf("unexpected output:\n%s", out)
	}

	backend.Script(testutil.HealthKey, testutil.JSON(models.Health{OK: false, Checks: map[string]bool{"host_root": false}}))
	out, _, err = execute(t, "--config", writeConfig(t, backend.URL()), "health")
	if err == nil {
		t.Fatal("expected error for failing checks")
	}
	if !strings.Contains(out, "✗ host_root") {
		t.Errorf("unexpected output:\n%s", out)
	}
}

func TestPreviewCommand(t *testing.T) {
	isolateEnv(t)
	backend := testutil.NewBackend()
	defer backend.Close()
	backend.Script(testutil.PreviewKey("monthly"), testutil.JSON(models.PreviewResponse{
		Scope:   "monthly",
		Folders: []string{"/music/2024-01", "/music/2024-02"},
	}))

	out, _, err := execute(t, "--config", writeConfig(t, backend.URL()), "preview", "--scope", "monthly")
	if err != nil {
		t.Fatalf("preview failed: %v", err)
	}
	if !strings.Contains(out, "2 folder(s) in scope monthly") || !strings.Contains(out, "/music/2024-02") {
		t.Errorf("unexpected output:\n%s", out)
	}

	if _, _, err := execute(t, "--config", writeConfig(t, backend.URL()), "preview", "--scope", "weekly"); err == nil {
		t.Error("expected error for unknown scope")
	}
}

func TestRunCommand_Detach(t *testing.T) {
	isolateEnv(t)
	backend := testutil.NewBackend()
	defer backend.Close()

	out, _, err := execute(t, "--config", writeConfig(t, backend.URL()),
		"run", "--detach", "--yes", "--step", "rename", "--folder", "/music/a", "--folder", "/music/a")
	if err != nil {
		t.Fatalf("run failed: %v", err)
	}
	if !strings.Contains(out, "Started job job-1") {
		t.Errorf("unexpected output:\n%s", out)
	}

	reqs := backend.RunRequests()
	if len(reqs) != 1 {
		t.Fatalf("expected 1 run request, got %d", len(reqs))
	}
	if len(reqs[0].Folders) != 1 || reqs[0].Folders[0] != "/music/a" {
		t.Errorf("expected deduplicated folders, got %v", reqs[0].Folders)
	}
	if len(reqs[0].Steps) != 1 || reqs[0].Steps[0] != "rename" {
		t.Errorf("unexpected steps: %v", reqs[0].Steps)
	}
	if len(backend.SettingsSaves()) != 1 {
		t.Errorf("expected the run config to be saved as defaults, got %d saves", len(backend.SettingsSaves()))
	}
}

func TestRunCommand_NoFolders(t *testing.T) {
	isolateEnv(t)
	backend := testutil.NewBackend()
	defer backend.Close()

	_, _, err := execute(t, "--config", writeConfig(t, backend.URL()), "run", "--yes")
	if !errors.Is(err, monitor.ErrNoFolders) {
		t.Fatalf("expected ErrNoFolders, got %v", err)
	}
	if n := backend.Calls(testutil.RunKey); n != 0 {
		t.Errorf("nothing should be launched, got %d run calls", n)
	}
}

func TestRunCommand_FollowsToCompletion(t *testing.T) {
	isolateEnv(t)
	backend := testutil.NewBackend()
	defer backend.Close()
	backend.ScriptJob("job-1",
		testutil.Running(0, 1, models.StepRename),
		testutil.Finished(models.StatusOK, "rename:/music/a"),
	)

	out, _, err := execute(t, "--config", writeConfig(t, backend.URL()),
		"run", "--yes", "--step", "rename", "--folder", "/music/a")
	if err != nil {
		t.Fatalf("run failed: %v\n%s", err, out)
	}
	for _, want := range []string{"Following job job-1", "Job job-1 finished: ok", "rename:/music/a"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestRunCommand_FinishedWithError(t *testing.T) {
	isolateEnv(t)
	backend := testutil.NewBackend()
	defer backend.Close()
	backend.ScriptJob("job-1", testutil.Finished(models.StatusError))

	_, _, err := execute(t, "--config", writeConfig(t, backend.URL()),
		"run", "--yes", "--step", "rename", "--folder", "/music/a")
	if err == nil || !strings.Contains(err.Error(), "finished with status error") {
		t.Fatalf("expected error status, got %v", err)
	}
}

func TestJobStatusCommand_NotFound(t *testing.T) {
	isolateEnv(t)
	backend := testutil.NewBackend()
	defer backend.Close()

	_, _, err := execute(t, "--config", writeConfig(t, backend.URL()), "job", "status", "missing")
	if err == nil || !strings.Contains(err.Error(), "job missing not found") {
		t.Fatalf("expected not found error, got %v", err)
	}
}

func TestHistoryList_FallsBackToCache(t *testing.T) {
	isolateEnv(t)
	backend := testutil.NewBackend()
	defer backend.Close()
	backend.Script(testutil.HistoryKey,
		testutil.JSON([]models.HistoryEntry{
			{ID: "abc", StartedAt: "2024-01-15T03:00:00Z", Status: models.StatusOK, Scope: "daily"},
		}),
		testutil.Status(http.StatusInternalServerError),
	)
	cfgPath := writeConfig(t, backend.URL())

	out, _, err := execute(t, "--config", cfgPath, "history", "list")
	if err != nil {
		t.Fatalf("history list failed: %v", err)
	}
	if !strings.Contains(out, "abc") {
		t.Fatalf("expected entry abc:\n%s", out)
	}

	out, errOut, err := execute(t, "--config", cfgPath, "history", "list")
	if err != nil {
		t.Fatalf("history list should fall back to the cache: %v", err)
	}
	if !strings.Contains(out, "abc") {
		t.Errorf("expected cached entry abc:\n%s", out)
	}
	if !strings.Contains(errOut, "showing cached history") {
		t.Errorf("expected cache notice on stderr, got %q", errOut)
	}
}

func TestScheduleSet(t *testing.T) {
	isolateEnv(t)
	backend := testutil.NewBackend()
	defer backend.Close()
	cfgPath := writeConfig(t, backend.URL())

	if _, _, err := execute(t, "--config", cfgPath, "schedule", "set"); err == nil {
		t.Error("expected error when nothing changes")
	}
	if _, _, err := execute(t, "--config", cfgPath, "schedule", "set", "--cron", "every day"); err == nil {
		t.Error("expected error for invalid cron")
	}
	if n := len(backend.ScheduleSaves()); n != 0 {
		t.Fatalf("invalid input must not reach the backend, got %d saves", n)
	}

	out, _, err := execute(t, "--config", cfgPath, "schedule", "set", "--enabled", "--cron", "30 2 * * *")
	if err != nil {
		t.Fatalf("schedule set failed: %v", err)
	}
	if !strings.Contains(out, "30 2 * * *") || !strings.Contains(out, "(local estimate)") {
		t.Errorf("unexpected output:\n%s", out)
	}

	saves := backend.ScheduleSaves()
	if len(saves) != 1 {
		t.Fatalf("expected 1 save, got %d", len(saves))
	}
	if saves[0].Enabled == nil || !*saves[0].Enabled || saves[0].Preset != nil {
		t.Errorf("expected only enabled and cron to be sent, got %+v", saves[0])
	}
}
