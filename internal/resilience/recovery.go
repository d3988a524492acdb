package resilience

import (
	"slices"
	"strings"
)

// EffectType tags a recovery [Effect].
type EffectType string

const (
	EffectNavigate     EffectType = "navigate"
	EffectReload       EffectType = "reload"
	EffectOpenExternal EffectType = "open_external"
	EffectGoBack       EffectType = "go_back"
)

// Effect is an abstract recovery action. The resolver never performs it;
// a UI layer interprets Type and acts on Target.
type Effect struct {
	Type   EffectType `json:"type"`
	Target string     `json:"target,omitempty"` // Path for navigate, URL for open_external
}

func Navigate(path string) Effect { return Effect{Type: EffectNavigate, Target: path} }
func Reload() Effect { return Effect{Type: EffectReload} }
func OpenExternal(url string) Effect { return Effect{Type: EffectOpenExternal, Target: url} }
func GoBack() Effect { return Effect{Type: EffectGoBack} }

func (e Effect) String() string {
	if e.Target == "" {
		return string(e.Type)
	}
	return string(e.Type) + "(" + e.Target + ")"
}

// Action pairs a display label with its effect.
type Action struct {
	Label  string `json:"label"`
	Effect Effect `json:"effect"`
}

// Recommendation is the suggested way out of a failure. Secondary may be nil.
type Recommendation struct {
	Primary   Action  `json:"primary"`
	Secondary *Action `json:"secondary,omitempty"`
}

// Actions returns the primary action followed by the secondary one, if any.
func (r Recommendation) Actions() []Action {
	if r.Secondary == nil {
		return []Action{r.Primary}
	}
	return []Action{r.Primary, *r.Secondary}
}

// ResolverConfig tunes the recovery table.
type ResolverConfig struct {
	HomePath             string
	ReconnectPaths       map[string]string // Keyed by extension name
	DefaultReconnectPath string
	ScopeSubCodes        []string // Sub-codes that mean the granted scopes are insufficient
	PaidTierSubCodes     []string // Sub-codes that mean a paid subscription is required
	PaidTierURL          string
}

// DefaultResolverConfig returns the table used by the command line.
func DefaultResolverConfig() ResolverConfig {
	return ResolverConfig{
		HomePath:             "/",
		ReconnectPaths:       map[string]string{},
		DefaultReconnectPath: "/auth",
		ScopeSubCodes:        []string{"insufficient_client_scope"},
		PaidTierSubCodes:     []string{"premium_required"},
		PaidTierURL:          "https://www.spotify.com/premium/",
	}
}

// Resolver maps records onto recovery recommendations. It is stateless after construction.
type Resolver struct {
	cfg ResolverConfig
}

func NewResolver(cfg ResolverConfig) *Resolver {
	if cfg.HomePath == "" {
		cfg.HomePath = "/"
	}
	if cfg.DefaultReconnectPath == "" {
		cfg.DefaultReconnectPath = cfg.HomePath
	}
	return &Resolver{cfg: cfg}
}

// Resolve picks the first matching row:
//
//	authentication or insufficient scope  reconnect, then reload
//	paid tier required                    open info link, then go back
//	retryable                             reload, then home
//	anything else                         home, then reload
func (r *Resolver) Resolve(rec *Record) Recommendation {
	if rec == nil {
		return Recommendation{Primary: Action{Label: "Go home", Effect: Navigate(r.cfg.HomePath)}}
	}

	switch {
	case rec.kind == KindAuthentication || r.matches(r.cfg.ScopeSubCodes, rec):
		return recommend(
			Action{Label: "Reconnect account", Effect: Navigate(r.reconnectPath(rec.extension))},
			Action{Label: "Try again", Effect: Reload()},
		)
	case r.matches(r.cfg.PaidTierSubCodes, rec):
		return recommend(
			Action{Label: "Learn about upgrading", Effect: OpenExternal(r.cfg.PaidTierURL)},
			Action{Label: "Go back", Effect: GoBack()},
		)
	case rec.retryable:
		return recommend(
			Action{Label: "Try again", Effect: Reload()},
			Action{Label: "Go home", Effect: Navigate(r.cfg.HomePath)},
		)
	default:
		return recommend(
			Action{Label: "Go home", Effect: Navigate(r.cfg.HomePath)},
			Action{Label: "Try again", Effect: Reload()},
		)
	}
}

// matches checks the sub-code first and falls back to the upstream code for records without an extension.
func (r *Resolver) matches(set []string, rec *Record) bool {
	for _, c := range []string{rec.subCode, rec.code} {
		if c != "" && slices.ContainsFunc(set, func(s string) bool { return strings.EqualFold(s, c) }) {
			return true
		}
	}
	return false
}

func (r *Resolver) reconnectPath(extension string) string {
	if p, ok := r.cfg.ReconnectPaths[extension]; ok && p != "" {
		return p
	}
	return r.cfg.DefaultReconnectPath
}

func recommend(primary, secondary Action) Recommendation {
	return Recommendation{Primary: primary, Secondary: &secondary}
}
