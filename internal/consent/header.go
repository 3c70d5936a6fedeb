package consent

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dunglas/httpsfv"
)

// HeaderName carries a consent snapshot on preview requests.
const HeaderName = "Tracking-Consent"

// Header is the decoded Tracking-Consent header.
type Header struct {
	Group     string
	Accepted  bool
	OptOut    bool
	Persisted string // raw consent cookie value, may be empty
}

// ParseHeader parses a Tracking-Consent header (RFC 8941 Dictionary).
//
// Example:
//
//	accepted=?1, optout=?0, group="CookieBar.marketing.label", cookie="{...}"
//
// Bare keys are true. Unknown keys are ignored.
func ParseHeader(value string) (*Header, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, errors.New("empty Tracking-Consent header")
	}

	dict, err := httpsfv.UnmarshalDictionary([]string{value})
	if err != nil {
		return nil, fmt.Errorf("invalid Tracking-Consent header: %w", err)
	}

	h := &Header{Group: DefaultGroup}
	if h.Accepted, err = dictBool(dict, "accepted"); err != nil {
		return nil, err
	}
	if h.OptOut, err = dictBool(dict, "optout"); err != nil {
		return nil, err
	}
	if s, ok, err := dictString(dict, "group"); err != nil {
		return nil, err
	} else if ok && s != "" {
		h.Group = s
	}
	if s, ok, err := dictString(dict, "cookie"); err != nil {
		return nil, err
	} else if ok {
		h.Persisted = s
	}
	return h, nil
}

// Resolve applies the header's values to Resolve.
func (h *Header) Resolve() bool {
	return Resolve(h.Group, h.Persisted, h.Accepted, h.OptOut)
}

func dictItem(dict *httpsfv.Dictionary, key string) (httpsfv.Item, bool, error) {
	member, ok := dict.Get(key)
	if !ok {
		return httpsfv.Item{}, false, nil
	}
	item, ok := member.(httpsfv.Item)
	if !ok {
		return httpsfv.Item{}, false, fmt.Errorf("%s value must be an item", key)
	}
	return item, true, nil
}

func dictBool(dict *httpsfv.Dictionary, key string) (bool, error) {
	item, ok, err := dictItem(dict, key)
	if err != nil || !ok {
		return false, err
	}
	b, ok := item.Value.(bool)
	if !ok {
		return false, fmt.Errorf("%s value must be a boolean", key)
	}
	return b, nil
}

func dictString(dict *httpsfv.Dictionary, key string) (string, bool, error) {
	item, ok, err := dictItem(dict, key)
	if err != nil || !ok {
		return "", false, err
	}
	s, ok := item.Value.(string)
	if !ok {
		return "", false, fmt.Errorf("%s value must be a string", key)
	}
	return s, true, nil
}
