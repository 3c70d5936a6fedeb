package consent

import (
	"fmt"
	"log/slog"
	"sync"
)

// CookieJar reads and writes browser cookies by name.
type CookieJar interface {
	Get(name string) (string, bool)
	Set(name, value string) error
}

// Reconciler keeps the persisted consent cookie in step with the live
// consent groups.
type Reconciler struct {
	jar    CookieJar
	group  string
	logger *slog.Logger

	mu      sync.Mutex
	pending string // value of our own last write, until its change notification arrives
}

// NewReconciler creates a Reconciler for the tracker in group.
func NewReconciler(jar CookieJar, group string, logger *slog.Logger) *Reconciler {
	if group == "" {
		group = DefaultGroup
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{jar: jar, group: group, logger: logger}
}

// SyncBack copies the live selection into the persisted blob when the blob
// exists but holds no value for the tracker yet. It reports whether a write
// happened. A missing blob is left alone: the visitor has not chosen anything.
func (r *Reconciler) SyncBack(liveAccepted bool) (bool, error) {
	raw, _ := r.jar.Get(PersistedCookieName)
	blob, ok := ParsePersisted(raw)
	if !ok {
		return false, nil
	}
	if _, found := blob.Lookup(r.group, TrackerCookieName); found {
		return false, nil
	}

	blob.Set(r.group, TrackerCookieName, liveAccepted)
	encoded, err := blob.Encode()
	if err != nil {
		return false, fmt.Errorf("encode consent cookie: %w", err)
	}
	if encoded == raw {
		return false, nil
	}

	r.mu.Lock()
	r.pending = encoded
	r.mu.Unlock()

	if err := r.jar.Set(PersistedCookieName, encoded); err != nil {
		r.mu.Lock()
		r.pending = ""
		r.mu.Unlock()
		return false, fmt.Errorf("write consent cookie: %w", err)
	}

	r.logger.Debug("persisted live consent selection", "group", r.group, "accepted", liveAccepted)
	return true, nil
}

// OnPersistedChange handles a change notification for the consent cookie.
// It returns false when the change is the echo of our own SyncBack write and
// must not trigger anything. Otherwise it runs SyncBack and returns true.
func (r *Reconciler) OnPersistedChange(raw string, liveAccepted bool) bool {
	r.mu.Lock()
	if r.pending != "" && raw == r.pending {
		r.pending = ""
		r.mu.Unlock()
		return false
	}
	r.pending = ""
	r.mu.Unlock()

	if _, err := r.SyncBack(liveAccepted); err != nil {
		r.logger.Warn("consent write-back failed", "error", err)
	}
	return true
}

// Resolve evaluates the gate against the current jar contents.
func (r *Reconciler) Resolve(liveAccepted, optOut bool) bool {
	raw, _ := r.jar.Get(PersistedCookieName)
	return Resolve(r.group, raw, liveAccepted, optOut)
}
