package monitor

import (
	"context"
	"fmt"
	"sync"

	"github.com/silkyclouds/Autokong/internal/constants"
	"github.com/silkyclouds/Autokong/internal/events"
	"github.com/silkyclouds/Autokong/internal/logging"
	"github.com/silkyclouds/Autokong/internal/models"
)

// HistoryCache keeps the last known history for offline use.
type HistoryCache interface {
	SaveHistory(ctx context.Context, entries []models.HistoryEntry) error
	LoadHistory(ctx context.Context, limit int) ([]models.HistoryEntry, error)
}

// HistoryList is the run history as last fetched from the backend.
type HistoryList struct {
	api    HistoryAPI
	cache  HistoryCache
	opts   Options
	logger *logging.Logger
	bus    *events.EventBus

	mu        sync.RWMutex
	entries   []models.HistoryEntry
	fromCache bool
	refreshes int
}

// NewHistoryList creates a history list. cache may be nil.
func NewHistoryList(api HistoryAPI, cache HistoryCache, opts Options) *HistoryList {
	opts = opts.withDefaults()
	return &HistoryList{
		api:    api,
		cache:  cache,
		opts:   opts,
		logger: opts.Logger.Child("history"),
		bus:    opts.Bus,
	}
}

// Refresh reloads the list from the backend. When the backend cannot be
// reached and a cache is configured, the cached list is used instead and
// the fetch error is still returned.
func (h *HistoryList) Refresh(ctx context.Context) ([]models.HistoryEntry, error) {
	reqCtx, cancel := context.WithTimeout(ctx, h.opts.RequestTimeout)
	entries, err := h.api.History(reqCtx)
	cancel()

	fromCache := false
	if err != nil {
		err = fmt.Errorf("failed to load history: %w", err)
		if h.cache == nil {
			h.bus.PublishHistory(nil, err)
			return nil, err
		}
		cached, cerr := h.cache.LoadHistory(ctx, constants.HistoryListLimit)
		if cerr != nil {
			h.logger.Debug().Err(cerr).Msg("History cache unavailable")
			h.bus.PublishHistory(nil, err)
			return nil, err
		}
		entries = cached
		fromCache = true
	} else if h.cache != nil {
		if cerr := h.cache.SaveHistory(ctx, entries); cerr != nil {
			h.logger.Warn().Err(cerr).Msg("Failed to cache history")
		}
	}

	if len(entries) > constants.HistoryListLimit {
		entries = entries[:constants.HistoryListLimit]
	}

	h.mu.Lock()
	h.entries = append([]models.HistoryEntry(nil), entries...)
	h.fromCache = fromCache
	h.refreshes++
	h.mu.Unlock()

	h.bus.PublishHistory(h.Entries(), err)
	return h.Entries(), err
}

// Entries returns a copy of the current list.
func (h *HistoryList) Entries() []models.HistoryEntry {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return append([]models.HistoryEntry(nil), h.entries...)
}

// FromCache reports whether the current list came from the local cache.
func (h *HistoryList) FromCache() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.fromCache
}

// Refreshes returns how many times the list was reloaded.
func (h *HistoryList) Refreshes() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.refreshes
}

// CurrentJobSource exposes the latest global poller sample.
type CurrentJobSource interface {
	Latest() models.CurrentJob
}

// HistoryWatcher refreshes the history list once each time the backend goes
// from running a job to running none. It samples the global poller on its
// own, coarser interval and remembers only the previous sample.
type HistoryWatcher struct {
	source  CurrentJobSource
	refresh func(ctx context.Context) error
	opts    Options
	logger  *logging.Logger

	mu       sync.Mutex
	previous string
	fired    int
}

// NewHistoryWatcher creates a watcher that calls list.Refresh on each
// running-to-idle edge.
func NewHistoryWatcher(source CurrentJobSource, list *HistoryList, opts Options) *HistoryWatcher {
	return NewHistoryWatcherFunc(source, func(ctx context.Context) error {
		_, err := list.Refresh(ctx)
		return err
	}, opts)
}

// NewHistoryWatcherFunc creates a watcher with a custom refresh action.
func NewHistoryWatcherFunc(source CurrentJobSource, refresh func(ctx context.Context) error, opts Options) *HistoryWatcher {
	opts = opts.withDefaults()
	return &HistoryWatcher{
		source:  source,
		refresh: refresh,
		opts:    opts,
		logger:  opts.Logger.Child("history-watch"),
	}
}

// Run samples every HistoryWatchInterval until ctx is done.
func (w *HistoryWatcher) Run(ctx context.Context) {
	for {
		if !sleep(ctx, w.opts.HistoryWatchInterval) {
			return
		}
		w.Check(ctx)
	}
}

// Check samples the source once and refreshes on a running-to-idle edge.
// It reports whether a refresh was triggered.
func (w *HistoryWatcher) Check(ctx context.Context) bool {
	if !w.Observe(w.source.Latest().JobID) {
		return false
	}
	if err := w.refresh(ctx); err != nil {
		w.logger.Debug().Err(err).Msg("History refresh after run end failed")
	}
	return true
}

// Observe records current as the latest job id and reports whether the
// transition from the previous one is a running-to-idle edge.
func (w *HistoryWatcher) Observe(current string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	edge := w.previous != "" && current == ""
	w.previous = current
	if edge {
		w.fired++
	}
	return edge
}

// Fired returns how many edges were detected.
func (w *HistoryWatcher) Fired() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fired
}
