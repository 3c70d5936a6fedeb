// Package consent decides whether the tracking script may run.
//
// Two sources of truth exist and can disagree: the live consent groups held by
// the cookie bar, and the persisted consent cookie written when the visitor last
// saved a choice. A value persisted for the tracker wins over the live group flag.
package consent

import (
	"encoding/json"
	"net/url"
	"strings"
)

// Names used by the storefront cookie bar.
const (
	// TrackerCookieName identifies the tracker inside a consent group.
	TrackerCookieName = "CookieBar.uptain.cookies.uptain.name"

	// DefaultGroup is the consent group the tracker joins when none is configured.
	DefaultGroup = "CookieBar.marketing.label"

	// PersistedCookieName is the browser cookie holding the saved consent JSON.
	PersistedCookieName = "consent-cookie"
)

// State is the consent state of the tracker within one consent group.
type State int

const (
	NoConsentRecorded State = iota
	OptedIn
	OptedOut
)

func (s State) String() string {
	switch s {
	case OptedIn:
		return "opted_in"
	case OptedOut:
		return "opted_out"
	default:
		return "no_consent_recorded"
	}
}

// Allows maps the state to a gate decision. With no recorded choice the
// policy default applies: opt-out policy tracks until the visitor objects.
func (s State) Allows(optOut bool) bool {
	switch s {
	case OptedIn:
		return true
	case OptedOut:
		return false
	default:
		return optOut
	}
}

// Evaluate derives the tracker's state in group from the persisted consent
// blob and the live group flag.
//
//  1. A boolean stored for the tracker under group is authoritative.
//  2. Any other parseable blob means the visitor chose something; the live flag decides.
//  3. No blob, or a malformed one, means no choice was recorded.
func Evaluate(group, persistedRaw string, groupAccepted bool) State {
	blob, ok := ParsePersisted(persistedRaw)
	if !ok {
		return NoConsentRecorded
	}
	if v, found := blob.Lookup(group, TrackerCookieName); found {
		return stateOf(v)
	}
	return stateOf(groupAccepted)
}

// Resolve reports whether the tracker may run.
func Resolve(group, persistedRaw string, groupAccepted, optOut bool) bool {
	return Evaluate(group, persistedRaw, groupAccepted).Allows(optOut)
}

func stateOf(accepted bool) State {
	if accepted {
		return OptedIn
	}
	return OptedOut
}

// Persisted is the decoded consent cookie:
//
//	{"groups": {"<group>": {"<cookie>": true}}}
//
// Unknown fields are kept so a write-back does not drop them.
type Persisted struct {
	raw map[string]any
}

// ParsePersisted decodes a consent cookie value. URL-encoded values are
// accepted. Empty or malformed input reports false.
func ParsePersisted(raw string) (*Persisted, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, false
	}

	if m, ok := decodeObject(raw); ok {
		return &Persisted{raw: m}, true
	}
	if unescaped, err := url.QueryUnescape(raw); err == nil && unescaped != raw {
		if m, ok := decodeObject(unescaped); ok {
			return &Persisted{raw: m}, true
		}
	}
	return nil, false
}

func decodeObject(s string) (map[string]any, bool) {
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil || m == nil {
		return nil, false
	}
	return m, true
}

// Lookup returns the boolean stored for cookie under group.
// Non-boolean values count as absent.
func (p *Persisted) Lookup(group, cookie string) (bool, bool) {
	g := p.group(group)
	if g == nil {
		return false, false
	}
	v, ok := g[cookie].(bool)
	return v, ok
}

// Set stores value for cookie under group, creating the group when missing.
func (p *Persisted) Set(group, cookie string, value bool) {
	groups, _ := p.raw["groups"].(map[string]any)
	if groups == nil {
		groups = make(map[string]any)
		p.raw["groups"] = groups
	}
	g, _ := groups[group].(map[string]any)
	if g == nil {
		g = make(map[string]any)
		groups[group] = g
	}
	g[cookie] = value
}

// Encode renders the blob as JSON.
func (p *Persisted) Encode() (string, error) {
	b, err := json.Marshal(p.raw)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (p *Persisted) group(name string) map[string]any {
	if p == nil {
		return nil
	}
	groups, _ := p.raw["groups"].(map[string]any)
	if groups == nil {
		return nil
	}
	g, _ := groups[name].(map[string]any)
	return g
}
