package models

import "math"

// StartRunRequest is the body of POST /api/run.
type StartRunRequest struct {
	Steps       []string `json:"steps"`
	Scope       string   `json:"scope"`
	EnableAudit bool     `json:"enable_audit"`
	Folders     []string `json:"folders"`
}

// NewStartRunRequest builds the request body for cfg.
func NewStartRunRequest(cfg RunConfig) StartRunRequest {
	return StartRunRequest{
		Steps:       StepStrings(cfg.Steps),
		Scope:       string(cfg.Scope),
		EnableAudit: cfg.AuditEnabled,
		Folders:     append([]string{}, cfg.Folders...),
	}
}

// StartRunResponse is returned by POST /api/run.
type StartRunResponse struct {
	JobID     string `json:"job_id"`
	StartedAt string `json:"started_at"`
}

// Handle converts the response to a JobHandle.
func (r StartRunResponse) Handle() JobHandle {
	t, _ := ParseTimestamp(r.StartedAt)
	return JobHandle{JobID: r.JobID, StartedAt: t}
}

// CurrentJobResponse is returned by GET /api/job/current. JobID is nil when
// nothing is running.
type CurrentJobResponse struct {
	JobID     *string   `json:"job_id"`
	StartedAt string    `json:"started_at,omitempty"`
	Progress  *Progress `json:"progress,omitempty"`
}

// ID returns the running job id, or "".
func (r *CurrentJobResponse) ID() string {
	if r == nil || r.JobID == nil {
		return ""
	}
	return *r.JobID
}

// SummaryPayload is the summary object stored by the backend for a finished job.
type SummaryPayload struct {
	Status          RunStatus `json:"status"`
	StepsRun        []string  `json:"steps_run"`
	DurationSeconds float64   `json:"duration_seconds"`
	Error           *string   `json:"error,omitempty"`
}

// JobStatusResponse is returned by GET /api/job/{id}. Running jobs carry
// progress and a log tail; finished jobs carry the stored summary.
type JobStatusResponse struct {
	JobID      string          `json:"job_id"`
	Status     RunStatus       `json:"status"`
	StartedAt  string          `json:"started_at,omitempty"`
	FinishedAt string          `json:"finished_at,omitempty"`
	Scope      string          `json:"scope,omitempty"`
	StepsRun   []string        `json:"steps_run,omitempty"`
	Summary    *SummaryPayload `json:"summary,omitempty"`
	Progress   *Progress       `json:"progress,omitempty"`
	LogTail    []string        `json:"log_tail,omitempty"`
}

// RunSummary builds the client summary from a finished job's status payload.
func (r *JobStatusResponse) RunSummary() *RunSummary {
	s := &RunSummary{Status: r.Status, StepsRun: append([]string{}, r.StepsRun...)}
	if r.Summary != nil {
		if len(r.Summary.StepsRun) > 0 {
			s.StepsRun = append([]string{}, r.Summary.StepsRun...)
		}
		s.DurationSeconds = int(math.Round(r.Summary.DurationSeconds))
		if r.Summary.Error != nil {
			s.Error = *r.Summary.Error
		}
		if s.Status == "" {
			s.Status = r.Summary.Status
		}
	}
	return s
}

// LogResponse is returned by GET /api/job/{id}/log.
type LogResponse struct {
	JobID  string   `json:"job_id"`
	Status string   `json:"status"`
	Lines  []string `json:"lines"`
}

// ContainerLogResponse is returned by GET /api/job/{id}/container-log.
type ContainerLogResponse struct {
	JobID string   `json:"job_id"`
	Lines []string `json:"lines"`
}

// AuditReport is the raw report returned by GET /api/job/{id}/audit.
type AuditReport struct {
	Summary         *AuditSummary `json:"summary,omitempty"`
	AlbumsWithHoles []AuditAlbum  `json:"albums_with_holes"`
	Error           string        `json:"error,omitempty"`
}

// AuditSummary holds the report's counters.
type AuditSummary struct {
	FilesDeletedCount        int `json:"files_deleted_count"`
	FilesAddedCount          int `json:"files_added_count"`
	FilesRenamedOrMovedCount int `json:"files_renamed_or_moved_count"`
	TagsChangedCount         int `json:"tags_changed_count"`
	AlbumsWithHolesCount     int `json:"albums_with_holes_count"`
}

// AuditAlbum is one album-with-holes entry as the backend writes it.
type AuditAlbum struct {
	Artist        string `json:"artist"`
	Album         string `json:"album"`
	BeforeCount   int    `json:"before_count"`
	AfterCount    int    `json:"after_count"`
	MissingTracks []int  `json:"missing_tracks"`
}

// Result maps the backend report onto the client's AuditResult. Missing
// counters become 0 and missing track lists become empty.
func (r *AuditReport) Result() *AuditResult {
	res := &AuditResult{AlbumsWithHoles: []AlbumHole{}}
	if r == nil {
		return res
	}
	if r.Summary != nil {
		res.FilesDeleted = r.Summary.FilesDeletedCount
		res.FilesRenamed = r.Summary.FilesRenamedOrMovedCount
	}
	for _, a := range r.AlbumsWithHoles {
		missing := a.MissingTracks
		if missing == nil {
			missing = []int{}
		}
		res.AlbumsWithHoles = append(res.AlbumsWithHoles, AlbumHole{
			Artist:        a.Artist,
			Album:         a.Album,
			TotalTracks:   a.AfterCount,
			MissingTracks: append([]int{}, missing...),
		})
	}
	res.Error = r.Error
	return res
}

// HistoryEntry is one row of GET /api/history.
type HistoryEntry struct {
	ID         string          `json:"id" yaml:"id"`
	StartedAt  string          `json:"started_at" yaml:"started_at"`
	FinishedAt string          `json:"finished_at,omitempty" yaml:"finished_at,omitempty"`
	Status     RunStatus       `json:"status" yaml:"status"`
	Scope      string          `json:"scope" yaml:"scope"`
	Summary    *SummaryPayload `json:"summary,omitempty" yaml:"summary,omitempty"`
}

// Duration returns the run's duration in whole seconds, or 0 if unknown.
func (h HistoryEntry) Duration() int {
	if h.Summary != nil && h.Summary.DurationSeconds > 0 {
		return int(math.Round(h.Summary.DurationSeconds))
	}
	start, ok1 := ParseTimestamp(h.StartedAt)
	end, ok2 := ParseTimestamp(h.FinishedAt)
	if ok1 && ok2 && end.After(start) {
		return int(end.Sub(start).Seconds())
	}
	return 0
}

// PreviewResponse is returned by GET /api/preview.
type PreviewResponse struct {
	Scope   string   `json:"scope" yaml:"scope"`
	Count   int      `json:"count" yaml:"count"`
	Folders []string `json:"folders" yaml:"folders"`
	Error   string   `json:"error,omitempty" yaml:"error,omitempty"`
}

// Settings is the subset of GET /api/config the console uses.
type Settings struct {
	StepsEnabled []string  `json:"steps_enabled" yaml:"steps_enabled"`
	Scope        string    `json:"scope" yaml:"scope"`
	AuditEnabled bool      `json:"audit_enabled" yaml:"audit_enabled"`
	Schedule     *Schedule `json:"schedule,omitempty" yaml:"schedule,omitempty"`
}

// SettingsUpdate is the body of POST /api/config. The backend only updates
// keys that are present.
type SettingsUpdate struct {
	StepsEnabled []string `json:"steps_enabled"`
	Scope        string   `json:"scope"`
	AuditEnabled bool     `json:"audit_enabled"`
}

// NewSettingsUpdate builds the defaults persisted before a launch.
func NewSettingsUpdate(cfg RunConfig) SettingsUpdate {
	return SettingsUpdate{
		StepsEnabled: StepStrings(cfg.Steps),
		Scope:        string(cfg.Scope),
		AuditEnabled: cfg.AuditEnabled,
	}
}

// Schedule is returned by GET /api/schedule.
type Schedule struct {
	Enabled bool     `json:"enabled" yaml:"enabled"`
	Cron    string   `json:"cron" yaml:"cron"`
	Preset  string   `json:"preset" yaml:"preset"`
	Steps   []string `json:"steps" yaml:"steps"`
	Scope   *string  `json:"scope" yaml:"scope"`
	NextRun *string  `json:"next_run,omitempty" yaml:"next_run,omitempty"`
}

// ScheduleUpdate is the body of POST /api/schedule. Nil fields keep the
// stored value.
type ScheduleUpdate struct {
	Enabled *bool    `json:"enabled,omitempty"`
	Cron    *string  `json:"cron,omitempty"`
	Preset  *string  `json:"preset,omitempty"`
	Steps   []string `json:"steps,omitempty"`
	Scope   *string  `json:"scope,omitempty"`
}

// Health is returned by GET /api/health.
type Health struct {
	OK     bool            `json:"ok" yaml:"ok"`
	Checks map[string]bool `json:"checks,omitempty" yaml:"checks,omitempty"`
}
