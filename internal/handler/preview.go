package handler

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"uptain-sync/internal/aggregate"
	"uptain-sync/internal/consent"
	"uptain-sync/internal/dom"
	"uptain-sync/internal/middleware"
	"uptain-sync/internal/model"
	"uptain-sync/internal/poll"
	"uptain-sync/internal/scriptsync"
	"uptain-sync/internal/shopapi"
)

// SessionHeader carries a storefront session token on preview requests.
const SessionHeader = "X-Shop-Session"

// Preview runs skip the product wait: the request carries all state up front.
var previewBudget = poll.Budget{Interval: time.Millisecond, MaxAttempts: 1}

// PreviewRequest is the body of POST /snapshot and POST /script.
type PreviewRequest struct {
	State   aggregate.State `json:"state"`
	Consent *ConsentInput   `json:"consent,omitempty"`
	Session string          `json:"session,omitempty"`

	// Previous, when set on /script, is synced first so the response shows
	// the delta from Previous to State.
	Previous *aggregate.State `json:"previous,omitempty"`
}

// ConsentInput describes the visitor's consent for a preview.
type ConsentInput struct {
	Accepted *bool                 `json:"accepted,omitempty"` // live flag of the tracker's group
	Cookie   string                `json:"cookie,omitempty"`   // persisted consent cookie value
	Groups   []consent.CookieGroup `json:"groups,omitempty"`
}

// SnapshotResponse is returned by POST /snapshot.
type SnapshotResponse struct {
	Configured   bool            `json:"configured"`
	Allowed      bool            `json:"allowed"`
	ConsentState string          `json:"consent_state"`
	Page         string          `json:"page,omitempty"`
	Snapshot     *model.Snapshot `json:"snapshot"`
	Attributes   []Attribute     `json:"attributes"`
}

// Attribute is one data-* attribute as it would be rendered on the element.
type Attribute struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// ScriptResponse is returned by POST /script.
type ScriptResponse struct {
	SyncState string   `json:"sync_state"`
	HTML      string   `json:"html"`
	Mutations int      `json:"mutations"`
	Events    []string `json:"events"`
}

// handleSnapshot builds the snapshot for a storefront state.
// POST /snapshot
func (h *Handler) handleSnapshot(w http.ResponseWriter, r *http.Request) {
	var req PreviewRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	rt := h.runtime()
	resp := h.buildSnapshot(r.Context(), rt, &req, h.gateFor(r, rt.Policy, req.Consent), sessionOf(r, req.Session))

	h.logger.InfoContext(r.Context(), "snapshot preview",
		slog.String("page", resp.Page),
		slog.Bool("allowed", resp.Allowed),
		slog.Int("attributes", len(resp.Attributes)),
	)
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) buildSnapshot(ctx context.Context, rt Runtime, req *PreviewRequest, gate *consent.Gate, session string) *SnapshotResponse {
	resp := &SnapshotResponse{
		Configured:   rt.Script.Enabled && rt.Settings.Configured(),
		Allowed:      gate.Allowed(),
		ConsentState: gate.State().String(),
		Attributes:   []Attribute{},
	}

	snap := h.newBuilder(rt, session).Build(ctx, &req.State)
	if snap == nil {
		return resp
	}
	resp.Snapshot = snap
	resp.Page, _ = snap.Get(model.KeyPage)
	for _, f := range snap.Fields() {
		if f.Value != "" || model.AlwaysPresent(f.Key) {
			resp.Attributes = append(resp.Attributes, Attribute{Name: scriptsync.AttributePrefix + f.Key, Value: f.Value})
		}
	}
	return resp
}

// handleScript runs the script controller against an empty document.
// POST /script
func (h *Handler) handleScript(w http.ResponseWriter, r *http.Request) {
	var req PreviewRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeError(w, err)
		return
	}

	rt := h.runtime()
	resp := h.runScript(r.Context(), rt, &req, h.gateFor(r, rt.Policy, req.Consent), sessionOf(r, req.Session))
	h.writeJSON(w, http.StatusOK, resp)
}

func (h *Handler) runScript(ctx context.Context, rt Runtime, req *PreviewRequest, gate *consent.Gate, session string) *ScriptResponse {
	doc := dom.NewMemoryDocument()

	var mu sync.Mutex
	current := req.State
	if req.Previous != nil {
		current = *req.Previous
	}
	events := []string{}

	ctrl := scriptsync.New(scriptsync.Config{
		Settings: rt.Script,
		Document: doc,
		State: scriptsync.StateSourceFunc(func() aggregate.State {
			mu.Lock()
			defer mu.Unlock()
			return current.Clone()
		}),
		Builder: h.newBuilder(rt, session),
		Consent: gate,
		Publisher: scriptsync.PublisherFunc(func(event string) {
			mu.Lock()
			events = append(events, event)
			mu.Unlock()
		}),
		Logger:      h.logger,
		ProductWait: previewBudget,
		ProductPoll: previewBudget,
	})

	ctrl.EnsureScript(ctx)
	mutations := doc.Mutations()
	if req.Previous != nil {
		mu.Lock()
		current = req.State
		mu.Unlock()
		ctrl.Resync(ctx)
		mutations = doc.Mutations() - mutations
	}
	ctrl.Close()

	mu.Lock()
	defer mu.Unlock()
	return &ScriptResponse{
		SyncState: ctrl.State().String(),
		HTML:      doc.RenderScript(scriptsync.ScriptID),
		Mutations: mutations,
		Events:    events,
	}
}

// gateFor builds the consent gate for a request. The body wins over the
// Tracking-Consent header; the persisted cookie falls back to the request cookie.
func (h *Handler) gateFor(r *http.Request, policy consent.Policy, in *ConsentInput) *consent.Gate {
	jar := requestJar{}
	if c, err := r.Cookie(consent.PersistedCookieName); err == nil {
		jar[consent.PersistedCookieName] = c.Value
	}

	var groups []consent.CookieGroup
	switch {
	case in != nil:
		if in.Cookie != "" {
			jar[consent.PersistedCookieName] = in.Cookie
		}
		groups = in.Groups
		if in.Accepted != nil {
			groups = withGroupFlag(groups, groupName(policy), *in.Accepted)
		}
	default:
		if hdr := middleware.GetConsentHeader(r.Context()); hdr != nil {
			if hdr.Persisted != "" {
				jar[consent.PersistedCookieName] = hdr.Persisted
			}
			groups = []consent.CookieGroup{{Name: hdr.Group, Accepted: hdr.Accepted}}
			policy.Group = hdr.Group
			policy.OptOut = hdr.OptOut
		}
	}

	return &consent.Gate{
		Policy: policy,
		Jar:    jar,
		Groups: func() []consent.CookieGroup { return groups },
	}
}

// withGroupFlag returns groups with the named group's flag set, adding the group if missing.
func withGroupFlag(groups []consent.CookieGroup, name string, accepted bool) []consent.CookieGroup {
	out := append([]consent.CookieGroup(nil), groups...)
	for i := range out {
		if out[i].Name == name {
			out[i].Accepted = accepted
			return out
		}
	}
	return append(out, consent.CookieGroup{Name: name, Accepted: accepted})
}

func groupName(p consent.Policy) string {
	if p.Group == "" {
		return consent.DefaultGroup
	}
	return p.Group
}

// sessionOf picks the storefront session: body, then header, then cookie.
func sessionOf(r *http.Request, body string) string {
	if body != "" {
		return body
	}
	if s := r.Header.Get(SessionHeader); s != "" {
		return s
	}
	if c, err := r.Cookie(shopapi.SessionCookie); err == nil {
		return c.Value
	}
	return ""
}

// requestJar is a cookie jar scoped to one request.
type requestJar map[string]string

func (j requestJar) Get(name string) (string, bool) {
	v, ok := j[name]
	return v, ok
}

func (j requestJar) Set(name, value string) error {
	j[name] = value
	return nil
}
