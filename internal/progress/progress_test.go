package progress

import (
	"bytes"
	"strings"
	"testing"

	"github.com/silkyclouds/Autokong/internal/models"
)

func TestStepLabel(t *testing.T) {
	tests := []struct {
		name string
		p    *models.Progress
		want string
	}{
		{"nil", nil, ""},
		{"first step", &models.Progress{Current: 0, Total: 3, StepID: models.StepMusicBrainz}, "Step 1/3: MusicBrainz / Fix songs"},
		{"last step", &models.Progress{Current: 2, Total: 3, StepID: models.StepRename}, "Step 3/3: Rename files"},
		{"backend label", &models.Progress{Current: 1, Total: 4, StepID: models.StepBandcamp, StepLabel: "Bandcamp tagging"}, "Step 2/4: Bandcamp tagging"},
		{"container", &models.Progress{Current: 0, Total: 1, StepID: models.StepMusicBrainz, ContainerName: "beets"}, "Step 1/1: MusicBrainz / Fix songs (beets)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StepLabel(tt.p); got != tt.want {
				t.Errorf("StepLabel() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDescribeJob(t *testing.T) {
	if got := DescribeJob(models.CurrentJob{}); got != "idle" {
		t.Errorf("expected idle, got %q", got)
	}
	if got := DescribeJob(models.CurrentJob{JobID: "j1"}); got != "running j1" {
		t.Errorf("unexpected description %q", got)
	}
	job := models.CurrentJob{JobID: "j1", Progress: &models.Progress{Current: 1, Total: 3, StepID: models.StepRename}}
	if got := DescribeJob(job); got != "running j1: Step 2/3: Rename files" {
		t.Errorf("unexpected description %q", got)
	}
}

func TestRunUI_PlainOutputPrintsStepChanges(t *testing.T) {
	var buf bytes.Buffer
	ui := NewRunUI(&buf, false)

	ui.Update(nil)
	ui.Update(&models.Progress{Current: 0, Total: 2, StepID: models.StepMusicBrainz})
	ui.Update(&models.Progress{Current: 0, Total: 2, StepID: models.StepMusicBrainz})
	ui.Update(&models.Progress{Current: 1, Total: 2, StepID: models.StepRename})
	ui.Finish(true)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), buf.String())
	}
	if !strings.HasSuffix(lines[0], "Step 1/2: MusicBrainz / Fix songs") {
		t.Errorf("unexpected first line %q", lines[0])
	}
	if !strings.HasSuffix(lines[1], "Step 2/2: Rename files") {
		t.Errorf("unexpected second line %q", lines[1])
	}
	if ui.Writer() != &buf {
		t.Error("plain writer should be the output itself")
	}
}

func TestStatusLine_PlainOutputDeduplicates(t *testing.T) {
	var buf bytes.Buffer
	s := NewStatusLine(&buf, false)

	s.Show(models.CurrentJob{})
	s.Show(models.CurrentJob{})
	s.Show(models.CurrentJob{JobID: "j1"})
	s.Println("history refreshed")
	s.Show(models.CurrentJob{})
	s.Close()

	out := buf.String()
	if strings.Count(out, "idle") != 2 {
		t.Errorf("expected idle printed twice, got %q", out)
	}
	if !strings.Contains(out, "running j1") || !strings.Contains(out, "history refreshed\n") {
		t.Errorf("missing lines in %q", out)
	}
	if s.Last() != "idle" {
		t.Errorf("Last() = %q", s.Last())
	}
}
