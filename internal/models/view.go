package models

// RunView is the merged, client-side picture of one monitored run.
// Values handed out by the monitor are snapshots; mutating them has no
// effect on the monitor.
type RunView struct {
	JobID           string       `json:"job_id" yaml:"job_id"`
	Status          RunStatus    `json:"status" yaml:"status"`
	Running         bool         `json:"running" yaml:"running"`
	AuditEnabled    bool         `json:"audit_enabled" yaml:"audit_enabled"`
	Progress        *Progress    `json:"progress,omitempty" yaml:"progress,omitempty"`
	OrchestratorLog []string     `json:"orchestrator_log" yaml:"orchestrator_log"`
	ContainerLog    []string     `json:"container_log" yaml:"container_log"`
	Summary         *RunSummary  `json:"summary,omitempty" yaml:"summary,omitempty"`
	Audit           *AuditResult `json:"audit,omitempty" yaml:"audit,omitempty"`
	AuditFetched    bool         `json:"audit_fetched" yaml:"audit_fetched"`
	LastError       string       `json:"last_error,omitempty" yaml:"last_error,omitempty"`
}

// NewRunView returns the empty view a run starts from.
func NewRunView(jobID string, auditEnabled bool) *RunView {
	return &RunView{
		JobID:           jobID,
		Status:          StatusRunning,
		Running:         true,
		AuditEnabled:    auditEnabled,
		OrchestratorLog: []string{},
		ContainerLog:    []string{},
	}
}

// Clone returns a deep copy of v, or nil.
func (v *RunView) Clone() *RunView {
	if v == nil {
		return nil
	}
	c := *v
	c.Progress = v.Progress.Clone()
	c.OrchestratorLog = append([]string{}, v.OrchestratorLog...)
	c.ContainerLog = append([]string{}, v.ContainerLog...)
	c.Summary = v.Summary.Clone()
	c.Audit = v.Audit.Clone()
	return &c
}

// Finished reports whether the backend has reported a terminal status.
func (v *RunView) Finished() bool {
	return v != nil && v.Status.IsTerminal()
}

// CurrentJob is one sample of "what is the backend running right now".
// JobID is empty when nothing is running or the backend could not be reached.
type CurrentJob struct {
	JobID     string    `json:"job_id,omitempty" yaml:"job_id,omitempty"`
	StartedAt string    `json:"started_at,omitempty" yaml:"started_at,omitempty"`
	Progress  *Progress `json:"progress,omitempty" yaml:"progress,omitempty"`
}

// Idle reports whether no job is running.
func (c CurrentJob) Idle() bool {
	return c.JobID == ""
}

// CurrentJob converts the wire response to a sample.
func (r *CurrentJobResponse) CurrentJob() CurrentJob {
	if r == nil || r.ID() == "" {
		return CurrentJob{}
	}
	return CurrentJob{JobID: r.ID(), StartedAt: r.StartedAt, Progress: r.Progress.Clone()}
}
