// Package testutil provides a scriptable fake autokong backend for tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/silkyclouds/Autokong/internal/models"
)

// Reply is one scripted backend response.
type Reply struct {
	Code  int           // HTTP status; 0 means 200
	Body  interface{}   // JSON-encoded when non-nil
	Delay time.Duration // sleep before answering
	Wait  <-chan struct{}
}

// JSON returns a 200 reply with body v.
func JSON(v interface{}) Reply {
	return Reply{Body: v}
}

// Status returns a reply with the given status code and a backend-style error body.
func Status(code int) Reply {
	return Reply{Code: code, Body: map[string]string{"error": http.StatusText(code)}}
}

// Blocked returns a reply that is held until release is closed or the
// request is cancelled, then answers with v.
func Blocked(release <-chan struct{}, v interface{}) Reply {
	return Reply{Body: v, Wait: release}
}

// Route keys used with Script and Calls.
func StatusKey(jobID string) string       { return "status/" + jobID }
func LogKey(jobID string) string          { return "log/" + jobID }
func ContainerLogKey(jobID string) string { return "container-log/" + jobID }
func AuditKey(jobID string) string        { return "audit/" + jobID }
func PreviewKey(scope string) string      { return "preview/" + scope }

const (
	CurrentKey      = "current"
	RunKey          = "run"
	HistoryKey      = "history"
	ConfigKey       = "config"
	ConfigSaveKey   = "config-save"
	ScheduleKey     = "schedule"
	ScheduleSaveKey = "schedule-save"
	HealthKey       = "health"
)

// Backend is an httptest server speaking the autokong REST API. Each route
// key plays its scripted replies in order and repeats the last one.
type Backend struct {
	Server *httptest.Server

	mu            sync.Mutex
	scripts       map[string][]Reply
	calls         map[string]int
	runRequests   []models.StartRunRequest
	settingsSaves []models.SettingsUpdate
	scheduleSaves []models.ScheduleUpdate
	settings      models.Settings
	schedule      models.Schedule
	headers       []http.Header
}

// NewBackend starts a fake backend. Call Close when done.
func NewBackend() *Backend {
	b := &Backend{
		scripts: make(map[string][]Reply),
		calls:   make(map[string]int),
		settings: models.Settings{
			StepsEnabled: []string{"musicbrainz", "bandcamp", "delete_duplicates", "rename"},
			Scope:        "daily",
		},
		schedule: models.Schedule{Cron: "0 3 * * *", Preset: "nightly"},
	}
	b.Server = httptest.NewServer(b.router())
	return b
}

// URL returns the server's base URL.
func (b *Backend) URL() string {
	return b.Server.URL
}

// Close shuts the server down.
func (b *Backend) Close() {
	b.Server.Close()
}

// Script appends replies for a route key.
func (b *Backend) Script(key string, replies ...Reply) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.scripts[key] = append(b.scripts[key], replies...)
}

// ScriptJob scripts the status route of jobID with the given status documents.
func (b *Backend) ScriptJob(jobID string, statuses ...models.JobStatusResponse) {
	replies := make([]Reply, len(statuses))
	for i, s := range statuses {
		if s.JobID == "" {
			s.JobID = jobID
		}
		replies[i] = JSON(s)
	}
	b.Script(StatusKey(jobID), replies...)
}

// Calls returns how many requests hit a route key.
func (b *Backend) Calls(key string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[key]
}

// RunRequests returns every POST /api/run body received.
func (b *Backend) RunRequests() []models.StartRunRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]models.StartRunRequest(nil), b.runRequests...)
}

// SettingsSaves returns every POST /api/config body received.
func (b *Backend) SettingsSaves() []models.SettingsUpdate {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]models.SettingsUpdate(nil), b.settingsSaves...)
}

// ScheduleSaves returns every POST /api/schedule body received.
func (b *Backend) ScheduleSaves() []models.ScheduleUpdate {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]models.ScheduleUpdate(nil), b.scheduleSaves...)
}

// Headers returns the request headers seen so far.
func (b *Backend) Headers() []http.Header {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]http.Header(nil), b.headers...)
}

// SetSettings replaces the stored settings.
func (b *Backend) SetSettings(s models.Settings) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.settings = s
}

// next records a call and pops the next scripted reply. ok is false when
// nothing is scripted for key.
func (b *Backend) next(key string, r *http.Request) (Reply, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.calls[key]++
	b.headers = append(b.headers, r.Header.Clone())
	q := b.scripts[key]
	if len(q) == 0 {
		return Reply{}, false
	}
	reply := q[0]
	if len(q) > 1 {
		b.scripts[key] = q[1:]
	}
	return reply, true
}

func (b *Backend) serve(w http.ResponseWriter, r *http.Request, key string, fallback func() Reply) {
	reply, ok := b.next(key, r)
	if !ok {
		reply = fallback()
	}
	if reply.Wait != nil {
		select {
		case <-reply.Wait:
		case <-r.Context().Done():
			return
		}
	}
	if reply.Delay > 0 {
		select {
		case <-time.After(reply.Delay):
		case <-r.Context().Done():
			return
		}
	}
	writeJSON(w, reply.Code, reply.Body)
}

func writeJSON(w http.ResponseWriter, code int, body interface{}) {
	if code == 0 {
		code = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

func notFound() Reply {
	return Status(http.StatusNotFound)
}

func (b *Backend) router() http.Handler {
	r := chi.NewRouter()

	r.Get("/api/job/current", func(w http.ResponseWriter, req *http.Request) {
		b.serve(w, req, CurrentKey, func() Reply {
			return JSON(models.CurrentJobResponse{})
		})
	})
	r.Get("/api/job/{id}", func(w http.ResponseWriter, req *http.Request) {
		b.serve(w, req, StatusKey(chi.URLParam(req, "id")), notFound)
	})
	r.Get("/api/job/{id}/log", func(w http.ResponseWriter, req *http.Request) {
		id := chi.URLParam(req, "id")
		b.serve(w, req, LogKey(id), func() Reply {
			return JSON(models.LogResponse{JobID: id, Status: "running", Lines: []string{}})
		})
	})
	r.Get("/api/job/{id}/container-log", func(w http.ResponseWriter, req *http.Request) {
		id := chi.URLParam(req, "id")
		b.serve(w, req, ContainerLogKey(id), func() Reply {
			return JSON(models.ContainerLogResponse{JobID: id, Lines: []string{}})
		})
	})
	r.Get("/api/job/{id}/audit", func(w http.ResponseWriter, req *http.Request) {
		b.serve(w, req, AuditKey(chi.URLParam(req, "id")), notFound)
	})

	r.Post("/api/run", func(w http.ResponseWriter, req *http.Request) {
		var body models.StartRunRequest
		_ = json.NewDecoder(req.Body).Decode(&body)
		b.mu.Lock()
		b.runRequests = append(b.runRequests, body)
		n := len(b.runRequests)
		b.mu.Unlock()
		b.serve(w, req, RunKey, func() Reply {
			return JSON(models.StartRunResponse{
				JobID:     fmt.Sprintf("job-%d", n),
				StartedAt: time.Now().UTC().Format(time.RFC3339Nano),
			})
		})
	})

	r.Get("/api/history", func(w http.ResponseWriter, req *http.Request) {
		b.serve(w, req, HistoryKey, func() Reply {
			return JSON([]models.HistoryEntry{})
		})
	})

	r.Get("/api/preview", func(w http.ResponseWriter, req *http.Request) {
		scope := req.URL.Query().Get("scope")
		if scope == "" {
			scope = "daily"
		}
		b.serve(w, req, PreviewKey(scope), func() Reply {
			return JSON(models.PreviewResponse{Scope: scope, Folders: []string{}})
		})
	})

	r.Get("/api/config", func(w http.ResponseWriter, req *http.Request) {
		b.serve(w, req, ConfigKey, func() Reply {
			b.mu.Lock()
			defer b.mu.Unlock()
			return JSON(b.settings)
		})
	})
	r.Post("/api/config", func(w http.ResponseWriter, req *http.Request) {
		var body models.SettingsUpdate
		_ = json.NewDecoder(req.Body).Decode(&body)
		b.mu.Lock()
		b.settingsSaves = append(b.settingsSaves, body)
		b.mu.Unlock()
		b.serve(w, req, ConfigSaveKey, func() Reply {
			b.mu.Lock()
			defer b.mu.Unlock()
			b.settings.StepsEnabled = body.StepsEnabled
			b.settings.Scope = body.Scope
			b.settings.AuditEnabled = body.AuditEnabled
			return JSON(b.settings)
		})
	})

	r.Get("/api/schedule", func(w http.ResponseWriter, req *http.Request) {
		b.serve(w, req, ScheduleKey, func() Reply {
			b.mu.Lock()
			defer b.mu.Unlock()
			return JSON(b.schedule)
		})
	})
	r.Post("/api/schedule", func(w http.ResponseWriter, req *http.Request) {
		var body models.ScheduleUpdate
		_ = json.NewDecoder(req.Body).Decode(&body)
		b.mu.Lock()
		b.scheduleSaves = append(b.scheduleSaves, body)
		b.mu.Unlock()
		b.serve(w, req, ScheduleSaveKey, func() Reply {
			b.mu.Lock()
			defer b.mu.Unlock()
			if body.Enabled != nil {
				b.schedule.Enabled = *body.Enabled
			}
			if body.Cron != nil {
				b.schedule.Cron = *body.Cron
			}
			if body.Preset != nil {
				b.schedule.Preset = *body.Preset
			}
			if body.Steps != nil {
				b.schedule.Steps = body.Steps
			}
			if body.Scope != nil {
				b.schedule.Scope = body.Scope
			}
			return JSON(b.schedule)
		})
	})

	r.Get("/api/health", func(w http.ResponseWriter, req *http.Request) {
		b.serve(w, req, HealthKey, func() Reply {
			return JSON(models.Health{OK: true, Checks: map[string]bool{"host_root": true}})
		})
	})

	return r
}

// Running returns a status document for a job that is still running. current
// is the 0-based step index, as the backend reports it.
func Running(current, total int, step models.StepID) models.JobStatusResponse {
	return models.JobStatusResponse{
		Status: models.StatusRunning,
		Progress: &models.Progress{
			Current:   current,
			Total:     total,
			StepID:    step,
			StepLabel: step.Label(),
		},
	}
}

// Finished returns a status document for a job that ended with status.
func Finished(status models.RunStatus, steps ...string) models.JobStatusResponse {
	return models.JobStatusResponse{
		Status:   status,
		StepsRun: steps,
		Summary: &models.SummaryPayload{
			Status:          status,
			StepsRun:        steps,
			DurationSeconds: 12,
		},
	}
}
