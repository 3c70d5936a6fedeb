package handler

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"uptain-sync/internal/aggregate"
	"uptain-sync/internal/consent"
	"uptain-sync/internal/dom"
	"uptain-sync/internal/model"
	"uptain-sync/internal/revenue"
	"uptain-sync/internal/scriptsync"
	"uptain-sync/internal/shopapi"
	"uptain-sync/internal/storefront"
)

// LiveDelay lets a burst of state changes settle before a pass runs.
const LiveDelay = 10 * time.Millisecond

// Live is one long-running storefront session: a state store, an in-memory
// document and the controller keeping the document's script element in sync.
// Revenue is computed once per session and survives reconfiguration.
type Live struct {
	store *storefront.Store
	doc   *dom.MemoryDocument
	ctrl  *scriptsync.Controller

	shop    *shopapi.Client
	session string
	revenue aggregate.RevenueSource
	logger  *slog.Logger

	mu     sync.Mutex
	policy consent.Policy
	jar    requestJar
	seen   string // persisted cookie as last sent by the client
	rec    *consent.Reconciler
	groups []consent.CookieGroup
	events []string
	syncs  int

	unwatch func()
}

// NewLive starts a live session. shop may be nil; session binds shop
// fetches to a storefront customer session.
func NewLive(rt Runtime, shop *shopapi.Client, session string, logger *slog.Logger) *Live {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Live{
		store:   storefront.NewStore(aggregate.State{}),
		doc:     dom.NewMemoryDocument(),
		shop:    shop,
		session: session,
		logger:  logger,
		policy:  rt.Policy,
		jar:     requestJar{},
	}
	if shop != nil && session != "" {
		l.revenue = revenue.NewCalculator(shop.ForSession(session), revenue.WithLogger(logger))
	}
	l.rec = consent.NewReconciler(liveJar{l}, groupName(rt.Policy), logger)

	l.ctrl = scriptsync.New(scriptsync.Config{
		Settings:  rt.Script,
		Document:  l.doc,
		State:     l.store,
		Builder:   l.builder(rt),
		Consent:   l.gate(),
		Publisher: scriptsync.PublisherFunc(l.publish),
		Scheduler: scriptsync.DelayScheduler{Delay: LiveDelay},
		Logger:    logger,
	})
	l.unwatch = l.ctrl.Watch(l.store)
	return l
}

func (l *Live) builder(rt Runtime) *aggregate.Builder {
	return newBuilder(rt, l.shop, l.session, l.revenue, l.logger, aggregate.WithWishlistSink(l.store.CacheWishlist))
}

// liveJar exposes the session's cookies to the reconciler under the session lock.
type liveJar struct{ live *Live }

func (j liveJar) Get(name string) (string, bool) {
	j.live.mu.Lock()
	defer j.live.mu.Unlock()
	return j.live.jar.Get(name)
}

func (j liveJar) Set(name, value string) error {
	j.live.mu.Lock()
	defer j.live.mu.Unlock()
	return j.live.jar.Set(name, value)
}

// gate reads the session's consent under lock on every call.
func (l *Live) gate() *liveGate {
	return &liveGate{live: l}
}

type liveGate struct{ live *Live }

func (g *liveGate) Allowed() bool {
	l := g.live
	l.mu.Lock()
	groups := append([]consent.CookieGroup(nil), l.groups...)
	gate := consent.Gate{
		Policy: l.policy,
		Jar:    requestJar{consent.PersistedCookieName: l.jar[consent.PersistedCookieName]},
		Groups: func() []consent.CookieGroup { return groups },
	}
	l.mu.Unlock()
	return gate.Allowed()
}

func (l *Live) publish(event string) {
	l.mu.Lock()
	l.events = append(l.events, event)
	l.mu.Unlock()
}

// Reconfigure applies new settings to the running session.
func (l *Live) Reconfigure(rt Runtime) {
	l.mu.Lock()
	if groupName(rt.Policy) != groupName(l.policy) {
		l.rec = consent.NewReconciler(liveJar{l}, groupName(rt.Policy), l.logger)
	}
	l.policy = rt.Policy
	l.mu.Unlock()
	l.ctrl.Reconfigure(rt.Script, l.builder(rt), nil)
}

// SetState replaces the storefront state and, when given, the consent input.
// A changed persisted cookie is reconciled against the live selection; the
// echo of the session's own write-back is ignored.
func (l *Live) SetState(st aggregate.State, in *ConsentInput) {
	if in != nil {
		l.mu.Lock()
		changed := in.Cookie != "" && in.Cookie != l.seen
		if in.Cookie != "" {
			l.jar[consent.PersistedCookieName] = in.Cookie
			l.seen = in.Cookie
		}
		group := groupName(l.policy)
		l.groups = append([]consent.CookieGroup(nil), in.Groups...)
		if in.Accepted != nil {
			l.groups = withGroupFlag(l.groups, group, *in.Accepted)
		}
		accepted := consent.GroupAccepted(l.groups, group)
		rec := l.rec
		l.mu.Unlock()

		if changed && rec.OnPersistedChange(in.Cookie, accepted) {
			l.mu.Lock()
			l.syncs++
			l.mu.Unlock()
			l.ctrl.Trigger()
		}
	}
	l.store.Update(func(s *aggregate.State) { *s = st })
}

// PersistedConsent returns the session's persisted consent cookie.
func (l *Live) PersistedConsent() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.jar[consent.PersistedCookieName]
}

// Event applies a storefront event. Route and product events update the
// store before the controller reacts.
func (l *Live) Event(ev LiveEvent) {
	switch ev.Kind {
	case scriptsync.EventRouteChange:
		if ev.Path != "" {
			l.store.SetRoute(ev.Path, ev.RouteParams, ev.Query)
		}
	case scriptsync.EventProductLoaded:
		if ev.Product != nil {
			l.store.SetProduct(ev.Product)
		}
	case scriptsync.EventAddToCart:
		if ev.Cart != nil {
			l.store.SetCart(ev.Cart)
		}
	}
	l.ctrl.HandleEvent(scriptsync.Event{Kind: ev.Kind, Path: ev.Path})
}

// Snapshot returns the rendered element, the sync state and the events
// published so far.
func (l *Live) Snapshot() LiveScript {
	l.mu.Lock()
	events := append([]string{}, l.events...)
	syncs := l.syncs
	cookie := l.jar[consent.PersistedCookieName]
	l.mu.Unlock()
	return LiveScript{
		SyncState:    l.ctrl.State().String(),
		HTML:         l.doc.RenderScript(scriptsync.ScriptID),
		Mutations:    l.doc.Mutations(),
		Events:       events,
		Consent:      cookie,
		ConsentSyncs: syncs,
	}
}

// Close stops the session.
func (l *Live) Close() {
	l.unwatch()
	l.ctrl.Close()
}

// LiveEvent is the body of POST /live/events.
type LiveEvent struct {
	Kind        scriptsync.EventKind `json:"kind"`
	Path        string               `json:"path,omitempty"`
	RouteParams map[string]string    `json:"routeParams,omitempty"`
	Query       map[string]string    `json:"query,omitempty"`
	Product     *model.Product       `json:"product,omitempty"`
	Cart        *model.Cart          `json:"cart,omitempty"`
}

// LiveScript is returned by GET /live/script.
type LiveScript struct {
	SyncState    string   `json:"sync_state"`
	HTML         string   `json:"html"`
	Mutations    int      `json:"mutations"`
	Events       []string `json:"events"`
	Consent      string   `json:"consent,omitempty"`       // persisted consent cookie
	ConsentSyncs int      `json:"consent_syncs,omitempty"` // reconciled cookie changes
}

// handleLiveState replaces the live storefront state.
// PUT /live/state
func (h *Handler) handleLiveState(w http.ResponseWriter, r *http.Request) {
	var req PreviewRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, err)
		return
	}
	h.live.SetState(req.State, req.Consent)
	w.WriteHeader(http.StatusAccepted)
}

// handleLiveEvent feeds a storefront event to the live session.
// POST /live/events
func (h *Handler) handleLiveEvent(w http.ResponseWriter, r *http.Request) {
	var ev LiveEvent
	if err := decodeJSON(w, r, &ev); err != nil {
		h.writeError(w, err)
		return
	}
	if _, ok := scriptsync.ParseEventKind(string(ev.Kind)); !ok {
		h.writeError(w, model.NewValidationError("kind", "unknown event "+string(ev.Kind)))
		return
	}
	h.live.Event(ev)
	w.WriteHeader(http.StatusAccepted)
}

// handleLiveScript renders the live session's script element.
// GET /live/script
func (h *Handler) handleLiveScript(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.live.Snapshot())
}
