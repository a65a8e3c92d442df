package models

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestRunStatus_IsTerminal(t *testing.T) {
	tests := []struct {
		status RunStatus
		want   bool
	}{
		{StatusRunning, false},
		{"", false},
		{StatusOK, true},
		{StatusError, true},
		{StatusNoFolders, true},
		{"cancelled", true},
	}
	for _, tt := range tests {
		if got := tt.status.IsTerminal(); got != tt.want {
			t.Errorf("%q.IsTerminal() = %v, want %v", tt.status, got, tt.want)
		}
	}
}

func TestRunStatus_AuditEligible(t *testing.T) {
	if !StatusOK.AuditEligible() || !StatusError.AuditEligible() {
		t.Error("ok and error should be audit eligible")
	}
	if StatusNoFolders.AuditEligible() || StatusRunning.AuditEligible() {
		t.Error("no_folders and running must not be audit eligible")
	}
}

func TestNormalizeSteps(t *testing.T) {
	got := NormalizeSteps([]StepID{"rename", "bogus", "musicbrainz", "rename", " ", "plex_scans"})
	want := []StepID{"musicbrainz", "rename", "plex_scans", "bogus"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("NormalizeSteps = %v, want %v", got, want)
	}
}

func TestStepLabel(t *testing.T) {
	if StepMusicBrainz.Label() != "MusicBrainz / Fix songs" {
		t.Errorf("unexpected label %q", StepMusicBrainz.Label())
	}
	if StepID("custom").Label() != "custom" {
		t.Error("unknown step should fall back to its id")
	}
}

func TestAuditReport_Result(t *testing.T) {
	raw := `{
		"summary": {"files_deleted_count": 3, "files_renamed_or_moved_count": 7, "tags_changed_count": 1},
		"albums_with_holes": [
			{"artist": "Boards of Canada", "album": "Geogaddi", "before_count": 23, "after_count": 21, "missing_tracks": [4, 9]},
			{"artist": null, "album": "Untitled", "before_count": 5, "after_count": 4}
		]
	}`

	var report AuditReport
	if err := json.Unmarshal([]byte(raw), &report); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	res := report.Result()
	if res.FilesDeleted != 3 {
		t.Errorf("FilesDeleted = %d, want 3", res.FilesDeleted)
	}
	if res.FilesRenamed != 7 {
		t.Errorf("FilesRenamed = %d, want 7", res.FilesRenamed)
	}
	if len(res.AlbumsWithHoles) != 2 {
		t.Fatalf("expected 2 albums, got %d", len(res.AlbumsWithHoles))
	}
	first := res.AlbumsWithHoles[0]
	if first.TotalTracks != 21 || !reflect.DeepEqual(first.MissingTracks, []int{4, 9}) {
		t.Errorf("unexpected first album mapping: %+v", first)
	}
	second := res.AlbumsWithHoles[1]
	if second.Artist != "" || second.TotalTracks != 4 {
		t.Errorf("unexpected second album mapping: %+v", second)
	}
	if second.MissingTracks == nil || len(second.MissingTracks) != 0 {
		t.Errorf("missing missing_tracks should map to an empty list, got %#v", second.MissingTracks)
	}
}

func TestAuditReport_ResultMissingCounters(t *testing.T) {
	var report AuditReport
	if err := json.Unmarshal([]byte(`{"error": "snapshot failed"}`), &report); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	res := report.Result()
	if res.FilesDeleted != 0 || res.FilesRenamed != 0 {
		t.Errorf("missing counters should be zero, got %+v", res)
	}
	if res.AlbumsWithHoles == nil {
		t.Error("albums list should be empty, not nil")
	}
	if res.Error != "snapshot failed" {
		t.Errorf("expected error to carry through, got %q", res.Error)
	}

	var nilReport *AuditReport
	if nilReport.Result() == nil {
		t.Error("nil report should still map to an empty result")
	}
}

func TestAuditResult_CloneIsDeep(t *testing.T) {
	orig := &AuditResult{AlbumsWithHoles: []AlbumHole{{Artist: "a", MissingTracks: []int{1}}}}
	c := orig.Clone()
	c.AlbumsWithHoles[0].MissingTracks[0] = 99
	c.AlbumsWithHoles[0].Artist = "b"
	if orig.AlbumsWithHoles[0].MissingTracks[0] != 1 || orig.AlbumsWithHoles[0].Artist != "a" {
		t.Error("clone shares memory with the original")
	}
}

func TestJobStatusResponse_RunSummary(t *testing.T) {
	raw := `{
		"job_id": "j1", "status": "error", "scope": "daily",
		"steps_run": ["musicbrainz:/music/a"],
		"summary": {"status": "error", "steps_run": ["musicbrainz:/music/a", "rename:/music/a"], "duration_seconds": 41.6, "error": "boom"}
	}`
	var resp JobStatusResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	s := resp.RunSummary()
	if s.Status != StatusError {
		t.Errorf("Status = %s, want error", s.Status)
	}
	if s.DurationSeconds != 42 {
		t.Errorf("DurationSeconds = %d, want 42", s.DurationSeconds)
	}
	if len(s.StepsRun) != 2 || s.Error != "boom" {
		t.Errorf("unexpected summary %+v", s)
	}
}

func TestCurrentJobResponse_ID(t *testing.T) {
	var idle CurrentJobResponse
	if err := json.Unmarshal([]byte(`{"job_id": null}`), &idle); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if idle.ID() != "" {
		t.Errorf("expected empty id, got %q", idle.ID())
	}

	var busy CurrentJobResponse
	raw := `{"job_id": "abc", "started_at": "2024-01-17T03:00:00.123456Z",
		"progress": {"current": 1, "total": 4, "step_id": "rename", "step_label": "Rename files", "container_name": null, "folder": "/music/x"}}`
	if err := json.Unmarshal([]byte(raw), &busy); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if busy.ID() != "abc" {
		t.Errorf("expected abc, got %q", busy.ID())
	}
	if busy.Progress == nil || busy.Progress.Fraction() != 0.5 || busy.Progress.ContainerName != "" {
		t.Errorf("unexpected progress %+v", busy.Progress)
	}
}

func TestParseTimestamp(t *testing.T) {
	for _, s := range []string{"2024-01-17T03:00:00Z", "2024-01-17T03:00:00.123456Z", "2024-01-17T03:00:00"} {
		if _, ok := ParseTimestamp(s); !ok {
			t.Errorf("failed to parse %q", s)
		}
	}
	if _, ok := ParseTimestamp("yesterday"); ok {
		t.Error("expected failure for garbage input")
	}
}

func TestHistoryEntry_Duration(t *testing.T) {
	h := HistoryEntry{StartedAt: "2024-01-17T03:00:00Z", FinishedAt: "2024-01-17T03:02:30Z"}
	if d := h.Duration(); d != 150 {
		t.Errorf("Duration = %d, want 150", d)
	}
	h.Summary = &SummaryPayload{DurationSeconds: 12.2}
	if d := h.Duration(); d != 12 {
		t.Errorf("summary duration should win, got %d", d)
	}
}

func TestProgress_StepAndFraction(t *testing.T) {
	tests := []struct {
		name     string
		p        *Progress
		step     int
		fraction float64
	}{
		{"nil", nil, 0, 0},
		{"first step", &Progress{Current: 0, Total: 4}, 1, 0.25},
		{"middle step", &Progress{Current: 1, Total: 4}, 2, 0.5},
		{"last step", &Progress{Current: 3, Total: 4}, 4, 1},
		{"index past total", &Progress{Current: 7, Total: 4}, 4, 1},
		{"unknown total", &Progress{Current: 2}, 3, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.p.Step(); got != tt.step {
				t.Errorf("Step() = %d, want %d", got, tt.step)
			}
			if got := tt.p.Fraction(); got != tt.fraction {
				t.Errorf("Fraction() = %v, want %v", got, tt.fraction)
			}
		})
	}
}
