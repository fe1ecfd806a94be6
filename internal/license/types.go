// Package license models the sum type over the six license variants (C3):
// a single concrete License struct carrying every variant's fields plus a
// Type discriminator, dispatched on exhaustively by the rules, activation,
// and codec packages. See DESIGN.md for why a flattened struct was chosen
// over a Go interface-per-variant sum type.
package license

import (
	"time"

	"github.com/google/uuid"
)

// Type discriminates the six license variants. It is also the wire
// "Type" field the serializer port (C3) reads to dispatch deserialization.
type Type string

const (
	Standard     Type = "Standard"
	Trial        Type = "Trial"
	NodeLocked   Type = "NodeLocked"
	Subscription Type = "Subscription"
	Floating     Type = "Floating"
	Concurrent   Type = "Concurrent"
)

// Valid reports whether t is one of the six recognised variants.
func (t Type) Valid() bool {
	switch t {
	case Standard, Trial, NodeLocked, Subscription, Floating, Concurrent:
		return true
	default:
		return false
	}
}

// License is the tagged sum over BaseLicense plus every variant's extra
// fields (§3). Fields irrelevant to the current Type are left at their zero
// value; constructors (New*) only ever populate the fields their variant
// owns, and the serializer omits zero-valued variant fields on the wire,
// except SubscriptionStartDate: omitempty has no effect on a time.Time, so
// its zero value is written out.
type License struct {
	// BaseLicense common attributes.
	LicenseID      string            `json:"LicenseId"`
	LicenseKey     string            `json:"LicenseKey"`
	Type           Type              `json:"Type"`
	IssuedOn       time.Time         `json:"IssuedOn"`
	ExpirationDate *time.Time        `json:"ExpirationDate,omitempty"`
	Issuer         string            `json:"Issuer"`
	Features       map[string]Feature `json:"Features"`

	// Standard
	UserName string `json:"UserName,omitempty"`

	// NodeLocked
	HardwareID string `json:"HardwareId,omitempty"`

	// Subscription
	SubscriptionStartDate time.Time     `json:"SubscriptionStartDate,omitempty"`
	SubscriptionDuration  time.Duration `json:"SubscriptionDuration,omitempty"`

	// Trial
	TrialPeriod time.Duration `json:"TrialPeriod,omitempty"`

	// Floating / Concurrent
	MaxActiveUsersCount int `json:"MaxActiveUsersCount,omitempty"`
}

func newBase(t Type, issuer string) License {
	return License{
		LicenseID:  uuid.NewString(),
		LicenseKey: uuid.NewString(),
		Type:       t,
		IssuedOn:   time.Now().UTC(),
		Issuer:     issuer,
		Features:   map[string]Feature{},
	}
}

// NewStandard builds a Standard license. expiration may be nil.
func NewStandard(userName, issuer string, expiration *time.Time) *License {
	l := newBase(Standard, issuer)
	l.UserName = userName
	l.ExpirationDate = expiration
	return &l
}

// NewTrial builds a Trial license. Invariant 4 (§3): ExpirationDate is
// always derived as IssuedOn + trialPeriod and cannot be overridden by a
// caller — there is deliberately no expiration parameter here.
func NewTrial(trialPeriod time.Duration, issuer string) *License {
	l := newBase(Trial, issuer)
	l.TrialPeriod = trialPeriod
	exp := l.IssuedOn.Add(trialPeriod)
	l.ExpirationDate = &exp
	return &l
}

// NewNodeLocked builds a NodeLocked license bound to hardwareID.
func NewNodeLocked(hardwareID, issuer string, expiration *time.Time) *License {
	l := newBase(NodeLocked, issuer)
	l.HardwareID = hardwareID
	l.ExpirationDate = expiration
	return &l
}

// NewSubscription builds a Subscription license. Invariant 5 (§3):
// ExpirationDate is always start + duration.
func NewSubscription(userName string, start time.Time, duration time.Duration, issuer string) *License {
	l := newBase(Subscription, issuer)
	l.UserName = userName
	l.SubscriptionStartDate = start
	l.SubscriptionDuration = duration
	exp := start.Add(duration)
	l.ExpirationDate = &exp
	return &l
}

// NewFloating builds a Floating (seat-counted, no heartbeat) license.
func NewFloating(userName string, max int, issuer string, expiration *time.Time) *License {
	l := newBase(Floating, issuer)
	l.UserName = userName
	l.MaxActiveUsersCount = max
	l.ExpirationDate = expiration
	return &l
}

// NewConcurrent builds a Concurrent (seat-counted, heartbeat-reclaimed)
// license. Per the Open Question resolution in §9/DESIGN.md, Type is always
// set to Concurrent regardless of any base license passed by a caller.
func NewConcurrent(userName string, max int, issuer string, expiration *time.Time) *License {
	l := newBase(Concurrent, issuer)
	l.Type = Concurrent
	l.UserName = userName
	l.MaxActiveUsersCount = max
	l.ExpirationDate = expiration
	return &l
}

// Clone returns a deep-enough copy of l — a new Features map and a new
// ExpirationDate pointer — so that callers can freely mutate the result
// without aliasing the original.
func (l *License) Clone() *License {
	if l == nil {
		return nil
	}
	clone := *l
	if l.ExpirationDate != nil {
		exp := *l.ExpirationDate
		clone.ExpirationDate = &exp
	}
	clone.Features = make(map[string]Feature, len(l.Features))
	for k, v := range l.Features {
		clone.Features[k] = v
	}
	return &clone
}
