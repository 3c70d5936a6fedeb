package consent

import "testing"

func TestRegister(t *testing.T) {
	groups := []CookieGroup{
		{Name: "CookieBar.essentials.label", Accepted: true},
		{Name: group},
	}

	if !Register(groups, group, true) {
		t.Fatal("Register() = false, want true")
	}
	if Register(groups, group, true) {
		t.Error("second Register() = true, want false")
	}

	cookies := groups[1].Cookies
	if len(cookies) != 1 {
		t.Fatalf("cookies = %d, want 1", len(cookies))
	}
	if cookies[0].Accepted {
		t.Error("opt-out registration must start unaccepted")
	}
	if cookies[0].Status != "CookieBar.uptain.cookies.uptain.status.optOut" {
		t.Errorf("Status = %q", cookies[0].Status)
	}
	if len(groups[0].Cookies) != 0 {
		t.Error("cookie registered in the wrong group")
	}
}

func TestRegister_UnknownGroup(t *testing.T) {
	groups := []CookieGroup{{Name: "a"}}
	if Register(groups, "missing", false) {
		t.Error("Register() = true for a missing group")
	}
}

func TestGroupAccepted(t *testing.T) {
	groups := []CookieGroup{
		{Name: "CookieBar.essentials.label", Accepted: true},
		{Name: "custom", Accepted: true, Cookies: []Cookie{TrackerCookie(false)}},
		{Name: group, Accepted: false},
	}

	if GroupAccepted(groups, group) {
		t.Error("GroupAccepted(named group) = true, want false")
	}
	if !GroupAccepted(groups, "renamed") {
		t.Error("GroupAccepted should fall back to the group holding the tracker cookie")
	}
	if GroupAccepted(nil, group) {
		t.Error("GroupAccepted(nil) = true")
	}
}

func TestGate_Allowed(t *testing.T) {
	tests := []struct {
		name   string
		policy Policy
		cookie string
		groups []CookieGroup
		want   bool
	}{
		{"not blocking", Policy{BlockInitially: false}, "", nil, true},
		{"blocking, no choice, opt-in", Policy{BlockInitially: true}, "", nil, false},
		{"blocking, no choice, opt-out", Policy{BlockInitially: true, OptOut: true}, "", nil, true},
		{
			"blocking, choice made, group accepted",
			Policy{BlockInitially: true},
			`{"groups":{}}`,
			[]CookieGroup{{Name: group, Accepted: true}},
			true,
		},
		{
			"blocking, persisted refusal",
			Policy{BlockInitially: true, Group: group},
			persisted("false"),
			[]CookieGroup{{Name: group, Accepted: true}},
			false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			jar := newMemoryJar()
			if tt.cookie != "" {
				jar.values[PersistedCookieName] = tt.cookie
			}
			groups := tt.groups
			g := &Gate{Policy: tt.policy, Jar: jar, Groups: func() []CookieGroup { return groups }}
			if got := g.Allowed(); got != tt.want {
				t.Errorf("Allowed() = %v, want %v", got, tt.want)
			}
		})
	}
}
