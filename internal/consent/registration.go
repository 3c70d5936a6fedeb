package consent

import "strings"

// CookieGroup is a consent group shown by the cookie bar.
type CookieGroup struct {
	Name     string   `json:"name"`
	Accepted bool     `json:"accepted"`
	Cookies  []Cookie `json:"cookies,omitempty"`
}

// Cookie is a single cookie entry inside a consent group.
type Cookie struct {
	Name          string `json:"name"`
	Provider      string `json:"Provider,omitempty"`
	Status        string `json:"Status,omitempty"`
	PrivacyPolicy string `json:"PrivacyPolicy,omitempty"`
	Lifespan      string `json:"Lifespan,omitempty"`
	Accepted      bool   `json:"accepted"`
}

// TrackerCookie returns the cookie-bar entry describing the tracker.
// Opt-out registration starts unaccepted.
func TrackerCookie(optOut bool) Cookie {
	status := "CookieBar.uptain.cookies.uptain.status"
	if optOut {
		status += ".optOut"
	}
	return Cookie{
		Name:          TrackerCookieName,
		Provider:      "CookieBar.uptain.cookies.uptain.provider",
		Status:        status,
		PrivacyPolicy: "/PrivacyPolicy",
		Lifespan:      "CookieBar.uptain.cookies.uptain.lifespan",
		Accepted:      !optOut,
	}
}

// Register adds the tracker cookie to the group named groupName unless it is
// already there. It reports whether the groups were changed.
func Register(groups []CookieGroup, groupName string, optOut bool) bool {
	for i := range groups {
		if groups[i].Name != groupName {
			continue
		}
		for _, c := range groups[i].Cookies {
			if c.Name == TrackerCookieName {
				return false
			}
		}
		groups[i].Cookies = append(groups[i].Cookies, TrackerCookie(optOut))
		return true
	}
	return false
}

// GroupAccepted returns the live acceptance flag of the group named
// groupName. When no group has that name, the first group listing a
// tracker cookie is used instead.
func GroupAccepted(groups []CookieGroup, groupName string) bool {
	for _, g := range groups {
		if g.Name == groupName {
			return g.Accepted
		}
	}
	for _, g := range groups {
		for _, c := range g.Cookies {
			if strings.Contains(strings.ToLower(c.Name), "uptain") {
				return g.Accepted
			}
		}
	}
	return false
}
