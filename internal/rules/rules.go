// Package rules implements C5: the validation rule registry. A Rule
// inspects a license and a caller-supplied Params and returns a typed
// Status; the Registry dispatches the built-in per-variant rule group and
// any extension rules the caller has registered.
package rules

import (
	"time"

	"github.com/clk-66/licensecore/internal/license"
)

// Status is the outcome of a single rule or of an entire Validate call.
type Status string

const (
	Valid    Status = "Valid"
	Invalid  Status = "Invalid"
	Expired  Status = "Expired"
	Revoked  Status = "Revoked"
)

// Result is what a Rule, Group, or Registry returns.
type Result struct {
	Status  Status
	License *license.License
	Err     error
}

func ok(l *license.License) Result { return Result{Status: Valid, License: l} }

func fail(status Status, l *license.License, err error) Result {
	return Result{Status: status, License: l, Err: err}
}

// Params carries the identity/context values a rule may need. Callers
// derive these from the license variant when not supplied explicitly
// (see manager.DeriveParams).
type Params struct {
	UserName              string
	LicenseKey            string
	HardwareId            string
	MaxActiveUsersCount   int
	SubscriptionStartDate time.Time
	SubscriptionDuration  time.Duration
	TrialPeriod           time.Duration
	Now                   time.Time // if zero, rules use time.Now()
}

func (p Params) now() time.Time {
	if p.Now.IsZero() {
		return time.Now()
	}
	return p.Now
}

// Rule is the extension point (§9: a capability interface, not reflection).
type Rule interface {
	Validate(l *license.License, params Params) Result
}

// RuleFunc adapts a plain function to Rule.
type RuleFunc func(l *license.License, params Params) Result

func (f RuleFunc) Validate(l *license.License, params Params) Result { return f(l, params) }

// Group is an ordered list of rules that all must pass. BuiltIn rules run
// only when the registry's built-in validation is enabled; User rules
// always run, so that disabling built-in validation still lets an
// application enforce its own policy.
type Group struct {
	BuiltIn []Rule
	User    []Rule
}

func (g *Group) AddUserRule(r Rule) { g.User = append(g.User, r) }

// Validate runs BuiltIn (if enabled) then User, short-circuiting on the
// first non-Valid result.
func (g *Group) Validate(l *license.License, params Params, builtInEnabled bool) Result {
	if builtInEnabled {
		for _, r := range g.BuiltIn {
			res := r.Validate(l, params)
			if res.Status != Valid {
				return res
			}
		}
	}
	for _, r := range g.User {
		res := r.Validate(l, params)
		if res.Status != Valid {
			return res
		}
	}
	return ok(l)
}

// Registry holds an ordered list of global rules (applied to every license
// regardless of variant) and a per-variant Group.
type Registry struct {
	Global                   []Rule
	Groups                   map[license.Type]*Group
	BuiltInValidationEnabled bool
}

// NewRegistry returns a Registry pre-populated with the built-in per-variant
// rule groups from §4.5, with built-in validation enabled and no global or
// user rules registered.
func NewRegistry(hw HardwareValidator) *Registry {
	r := &Registry{
		BuiltInValidationEnabled: true,
		Groups:                   map[license.Type]*Group{},
	}
	r.Groups[license.Standard] = &Group{BuiltIn: []Rule{standardRule{}}}
	r.Groups[license.Trial] = &Group{BuiltIn: []Rule{trialRule{}}}
	r.Groups[license.NodeLocked] = &Group{BuiltIn: []Rule{nodeLockedRule{hw: hw}}}
	r.Groups[license.Subscription] = &Group{BuiltIn: []Rule{subscriptionRule{}}}
	r.Groups[license.Floating] = &Group{BuiltIn: []Rule{floatingRule{}}}
	r.Groups[license.Concurrent] = &Group{BuiltIn: []Rule{floatingRule{}}} // same checks as Floating
	return r
}

// AddGlobalRule registers a rule that runs for every license variant,
// before the variant-specific group.
func (r *Registry) AddGlobalRule(rule Rule) { r.Global = append(r.Global, rule) }

// AddRule registers an extension (user) rule for a specific variant.
func (r *Registry) AddRule(t license.Type, rule Rule) {
	g, ok := r.Groups[t]
	if !ok {
		g = &Group{}
		r.Groups[t] = g
	}
	g.AddUserRule(rule)
}

// Validate succeeds iff every global rule and the variant-specific group
// return Valid. Failure short-circuits and surfaces the first non-Valid
// status with its error (§4.5).
func (r *Registry) Validate(l *license.License, params Params) Result {
	for _, g := range r.Global {
		res := g.Validate(l, params)
		if res.Status != Valid {
			return res
		}
	}

	group, exists := r.Groups[l.Type]
	if !exists {
		return ok(l)
	}
	return group.Validate(l, params, r.BuiltInValidationEnabled)
}

// HardwareValidator is the subset of hardware.Identifier the NodeLocked
// rule needs; kept narrow here to avoid a hard dependency on the hardware
// package's concrete types.
type HardwareValidator interface {
	Validate(candidate string) (bool, error)
}
