package consent

// Policy holds the consent-related tracker settings.
type Policy struct {
	Group          string
	OptOut         bool
	BlockInitially bool
}

// Gate answers whether the tracker may run right now.
type Gate struct {
	Policy Policy
	Jar    CookieJar

	// Groups returns the live consent groups. Nil means none are loaded.
	Groups func() []CookieGroup
}

// Allowed reports whether consent permits the tracker. Without
// BlockInitially the tracker is never held back by consent.
func (g *Gate) Allowed() bool {
	if !g.Policy.BlockInitially {
		return true
	}
	return g.State().Allows(g.Policy.OptOut)
}

// State evaluates the tracker's consent state from the jar and live groups.
func (g *Gate) State() State {
	group := g.group()

	var live []CookieGroup
	if g.Groups != nil {
		live = g.Groups()
	}

	var raw string
	if g.Jar != nil {
		raw, _ = g.Jar.Get(PersistedCookieName)
	}
	return Evaluate(group, raw, GroupAccepted(live, group))
}

func (g *Gate) group() string {
	if g.Policy.Group == "" {
		return DefaultGroup
	}
	return g.Policy.Group
}
