// Package models defines the run, job and report types shared by the
// console's API client, monitor and renderers.
package models

import (
	"math"
	"sort"
	"strings"
	"time"
)

// RunStatus is the backend's status for a job.
type RunStatus string

const (
	StatusRunning   RunStatus = "running"
	StatusOK        RunStatus = "ok"
	StatusError     RunStatus = "error"
	StatusNoFolders RunStatus = "no_folders"
)

// IsTerminal reports whether the job has finished. Anything other than
// "running" is terminal, including statuses this client does not know.
func (s RunStatus) IsTerminal() bool {
	return s != StatusRunning && s != ""
}

// AuditEligible reports whether a finished job may have an audit report.
func (s RunStatus) AuditEligible() bool {
	return s == StatusOK || s == StatusError
}

// Scope selects which folders a run considers.
type Scope string

const (
	ScopeDaily   Scope = "daily"
	ScopeMonthly Scope = "monthly"
	ScopeAllDays Scope = "all_days"
)

// Scopes lists every valid scope in display order.
var Scopes = []Scope{ScopeDaily, ScopeMonthly, ScopeAllDays}

// Valid reports whether s is a known scope.
func (s Scope) Valid() bool {
	for _, v := range Scopes {
		if s == v {
			return true
		}
	}
	return false
}

// StepID identifies one pipeline step.
type StepID string

const (
	StepMusicBrainz      StepID = "musicbrainz"
	StepBandcamp         StepID = "bandcamp"
	StepDeleteDuplicates StepID = "delete_duplicates"
	StepRename           StepID = "rename"
	StepAutocleanEmpty   StepID = "autoclean_empty"
	StepPlexScans        StepID = "plex_scans"
	StepPlexTrash        StepID = "plex_trash"
)

// StepInfo describes a step in the catalog.
type StepInfo struct {
	ID    StepID `json:"id" yaml:"id"`
	Label string `json:"label" yaml:"label"`
}

// StepCatalog is the ordered list of steps the backend knows how to run.
var StepCatalog = []StepInfo{
	{StepMusicBrainz, "MusicBrainz / Fix songs"},
	{StepBandcamp, "Bandcamp"},
	{StepDeleteDuplicates, "Delete duplicates"},
	{StepRename, "Rename files"},
	{StepAutocleanEmpty, "Auto-clean empty folders"},
	{StepPlexScans, "Plex scans"},
	{StepPlexTrash, "Plex trash"},
}

// Valid reports whether id is in the step catalog.
func (id StepID) Valid() bool {
	_, ok := stepIndex(id)
	return ok
}

// Label returns the human readable step name, or the id itself if unknown.
func (id StepID) Label() string {
	if i, ok := stepIndex(id); ok {
		return StepCatalog[i].Label
	}
	return string(id)
}

func stepIndex(id StepID) (int, bool) {
	for i, s := range StepCatalog {
		if s.ID == id {
			return i, true
		}
	}
	return -1, false
}

// NormalizeSteps drops duplicates and returns the steps in catalog order.
// Unknown ids are kept at the end so validation can report them.
func NormalizeSteps(steps []StepID) []StepID {
	seen := make(map[StepID]bool, len(steps))
	out := make([]StepID, 0, len(steps))
	for _, s := range steps {
		s = StepID(strings.TrimSpace(string(s)))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, okA := stepIndex(out[i])
		b, okB := stepIndex(out[j])
		if !okA || !okB {
			return okA && !okB
		}
		return a < b
	})
	return out
}

// StepStrings converts step ids to their wire form.
func StepStrings(steps []StepID) []string {
	out := make([]string, len(steps))
	for i, s := range steps {
		out[i] = string(s)
	}
	return out
}

// ParseSteps converts wire step names to step ids.
func ParseSteps(names []string) []StepID {
	out := make([]StepID, 0, len(names))
	for _, n := range names {
		out = append(out, StepID(n))
	}
	return out
}

// Progress is the backend's view of where a running job is. It is replaced
// wholesale on every poll. Current is the 0-based index of the step in
// progress; use Step for display.
type Progress struct {
	Current       int    `json:"current"`
	Total         int    `json:"total"`
	StepID        StepID `json:"step_id"`
	StepLabel     string `json:"step_label"`
	ContainerName string `json:"container_name,omitempty"`
	Folder        string `json:"folder,omitempty"`
}

// Step returns the 1-based number of the step in progress, capped at Total.
func (p *Progress) Step() int {
	if p == nil {
		return 0
	}
	n := p.Current + 1
	if n < 1 {
		n = 1
	}
	if p.Total > 0 && n > p.Total {
		n = p.Total
	}
	return n
}

// Fraction returns Step/Total clamped to [0, 1]. The last step reads as full.
func (p *Progress) Fraction() float64 {
	if p == nil || p.Total <= 0 {
		return 0
	}
	return math.Max(0, math.Min(1, float64(p.Step())/float64(p.Total)))
}

// Clone returns a copy of p, or nil.
func (p *Progress) Clone() *Progress {
	if p == nil {
		return nil
	}
	c := *p
	return &c
}

// RunConfig is what the user chose before launching a run.
type RunConfig struct {
	Scope        Scope    `json:"scope" validate:"required,oneof=daily monthly all_days"`
	Steps        []StepID `json:"steps" validate:"required,min=1,dive,oneof=musicbrainz bandcamp delete_duplicates rename autoclean_empty plex_scans plex_trash"`
	Folders      []string `json:"folders" validate:"required,min=1,dive,required"`
	AuditEnabled bool     `json:"audit_enabled"`
}

// JobHandle identifies a started job.
type JobHandle struct {
	JobID     string    `json:"job_id"`
	StartedAt time.Time `json:"started_at"`
}

// RunSummary is the outcome of a finished job.
type RunSummary struct {
	Status          RunStatus `json:"status" yaml:"status"`
	StepsRun        []string  `json:"steps_run" yaml:"steps_run"`
	DurationSeconds int       `json:"duration_seconds" yaml:"duration_seconds"`
	Error           string    `json:"error,omitempty" yaml:"error,omitempty"`
}

// Clone returns a deep copy of s, or nil.
func (s *RunSummary) Clone() *RunSummary {
	if s == nil {
		return nil
	}
	c := *s
	c.StepsRun = append([]string(nil), s.StepsRun...)
	return &c
}

// AlbumHole is an album that lost tracks during a run.
type AlbumHole struct {
	Artist        string `json:"artist" yaml:"artist"`
	Album         string `json:"album" yaml:"album"`
	TotalTracks   int    `json:"total_tracks" yaml:"total_tracks"`
	MissingTracks []int  `json:"missing_tracks" yaml:"missing_tracks"`
}

// AuditResult is the client view of a post-run audit.
type AuditResult struct {
	FilesDeleted    int         `json:"files_deleted" yaml:"files_deleted"`
	FilesRenamed    int         `json:"files_renamed" yaml:"files_renamed"`
	AlbumsWithHoles []AlbumHole `json:"albums_with_holes" yaml:"albums_with_holes"`
	Error           string      `json:"error,omitempty" yaml:"error,omitempty"`
}

// Clone returns a deep copy of a, or nil.
func (a *AuditResult) Clone() *AuditResult {
	if a == nil {
		return nil
	}
	c := *a
	c.AlbumsWithHoles = make([]AlbumHole, len(a.AlbumsWithHoles))
	for i, h := range a.AlbumsWithHoles {
		h.MissingTracks = append([]int{}, h.MissingTracks...)
		c.AlbumsWithHoles[i] = h
	}
	return &c
}

// ParseTimestamp parses the backend's ISO-8601 timestamps. The backend
// writes UTC with a trailing "Z" and optional microseconds.
func ParseTimestamp(s string) (time.Time, bool) {
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999", "2006-01-02T15:04:05"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
