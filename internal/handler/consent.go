package handler

import (
	"log/slog"
	"net/http"
	"net/url"

	"uptain-sync/internal/consent"
	"uptain-sync/internal/middleware"
	"uptain-sync/internal/model"
)

// ResolveConsentRequest is the body of POST /consent/resolve.
type ResolveConsentRequest struct {
	Group    string                `json:"group,omitempty"` // defaults to the configured group
	Accepted *bool                 `json:"accepted,omitempty"`
	OptOut   *bool                 `json:"optout,omitempty"` // defaults to the configured policy
	Cookie   string                `json:"cookie,omitempty"`
	Groups   []consent.CookieGroup `json:"groups,omitempty"`
}

// ResolveConsentResponse reports the gate decision and the reconciled state.
type ResolveConsentResponse struct {
	Group      string                `json:"group"`
	State      string                `json:"state"`
	Allowed    bool                  `json:"allowed"`
	Registered bool                  `json:"registered"`       // tracker cookie added to the group
	Groups     []consent.CookieGroup `json:"groups,omitempty"` // groups after registration
	Cookie     string                `json:"cookie,omitempty"` // persisted cookie after write-back
	WroteBack  bool                  `json:"wrote_back"`
}

// handleResolveConsent evaluates tracker consent. Input comes from the JSON
// body or, for an empty body, from the Tracking-Consent header.
// POST /consent/resolve
func (h *Handler) handleResolveConsent(w http.ResponseWriter, r *http.Request) {
	var req ResolveConsentRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &req); err != nil {
			h.writeError(w, err)
			return
		}
	} else if hdr := middleware.GetConsentHeader(r.Context()); hdr != nil {
		req = ResolveConsentRequest{
			Group:    hdr.Group,
			Accepted: &hdr.Accepted,
			OptOut:   &hdr.OptOut,
			Cookie:   hdr.Persisted,
		}
	} else {
		h.writeError(w, model.NewValidationError("body", "consent body or "+consent.HeaderName+" header required"))
		return
	}

	if req.Cookie == "" {
		if c, err := r.Cookie(consent.PersistedCookieName); err == nil {
			req.Cookie = c.Value
		}
	}

	resp, err := h.resolveConsent(h.runtime().Policy, &req)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if resp.WroteBack {
		http.SetCookie(w, &http.Cookie{Name: consent.PersistedCookieName, Value: url.QueryEscape(resp.Cookie), Path: "/"})
	}

	h.logger.InfoContext(r.Context(), "consent resolved",
		slog.String("group", resp.Group),
		slog.String("state", resp.State),
		slog.Bool("allowed", resp.Allowed),
	)
	h.writeJSON(w, http.StatusOK, resp)
}

// resolveConsent registers the tracker cookie, syncs the live selection back
// into the persisted cookie and evaluates the gate.
func (h *Handler) resolveConsent(policy consent.Policy, req *ResolveConsentRequest) (*ResolveConsentResponse, error) {
	group := req.Group
	if group == "" {
		group = groupName(policy)
	}
	optOut := policy.OptOut
	if req.OptOut != nil {
		optOut = *req.OptOut
	}

	groups := append([]consent.CookieGroup(nil), req.Groups...)
	registered := consent.Register(groups, group, optOut)

	live := consent.GroupAccepted(groups, group)
	if req.Accepted != nil {
		live = *req.Accepted
	}

	jar := requestJar{}
	if req.Cookie != "" {
		jar[consent.PersistedCookieName] = req.Cookie
	}
	rec := consent.NewReconciler(jar, group, h.logger)
	wrote, err := rec.SyncBack(live)
	if err != nil {
		return nil, model.NewInternalError(err)
	}

	raw, _ := jar.Get(consent.PersistedCookieName)
	state := consent.Evaluate(group, raw, live)
	return &ResolveConsentResponse{
		Group:      group,
		State:      state.String(),
		Allowed:    state.Allows(optOut),
		Registered: registered,
		Groups:     groups,
		Cookie:     raw,
		WroteBack:  wrote,
	}, nil
}
