package navigation

// Signals are the environment readings a navigation plans its sources from.
type Signals struct {
	Cookie    bool
	Online    bool
	FirstLoad bool
	// CacheAvailable reports whether a Cache Store exists.
	CacheAvailable bool
	UnderTest      bool
	// DisableCaching restricts the plan to the authenticated source.
	DisableCaching bool
}

// Plan says which sources a navigation queries and what to fall back to
// when the Cache Store misses.
type Plan struct {
	Auth  bool
	CDN   bool
	Cache bool

	PureOnMiss     bool
	PageDataOnMiss bool
	OfflineOnMiss  bool
}

// Queryable reports whether any network source is planned.
func (p Plan) Queryable() bool {
	return p.Auth || p.CDN
}

// PlanSources decides the sources for one navigation.
func PlanSources(s Signals) Plan {
	if s.UnderTest || s.DisableCaching {
		return Plan{Auth: true}
	}

	var p Plan
	p.Cache = s.CacheAvailable
	switch {
	case s.FirstLoad && s.Cookie:
		p.Auth = s.Online
		p.PageDataOnMiss = true
	case s.FirstLoad:
		p.CDN = s.Online
		p.PageDataOnMiss = true
	case s.Cookie:
		p.Auth = s.Online
		p.PureOnMiss = true
		p.OfflineOnMiss = !s.Online
	default:
		p.CDN = s.Online
		p.OfflineOnMiss = !s.Online
	}
	return p
}
