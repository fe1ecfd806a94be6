// Package activation implements C8: the server-side activation engine that
// generates, validates, activates, revokes, renews, and heartbeats
// licenses, enforcing the seat caps of Concurrent/Floating licenses and
// reclaiming seats from silent clients.
package activation

import (
	"context"
	"crypto/rsa"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/clk-66/licensecore/internal/codec"
	"github.com/clk-66/licensecore/internal/errs"
	"github.com/clk-66/licensecore/internal/hardware"
	"github.com/clk-66/licensecore/internal/license"
	"github.com/clk-66/licensecore/internal/store"
)

const (
	// DefaultReclaimInterval is how often the reclamation task sweeps for
	// stale activations (§4.7).
	DefaultReclaimInterval = 5 * time.Minute

	// DefaultReclaimTimeout is how long a machine may go without a
	// heartbeat before its activation is reclaimed (§4.7). Must exceed the
	// client's heartbeat interval (default 5 minutes, §4.6) — see
	// NewEngine.
	DefaultReclaimTimeout = 10 * time.Minute
)

// Cache is an optional read-through cache in front of store.FindLicenseByKey,
// used on the hot validate/heartbeat path. A nil Cache disables caching
// entirely; the store remains authoritative either way.
type Cache interface {
	Get(ctx context.Context, key string) (*store.LicenseRow, bool)
	Set(ctx context.Context, key string, row *store.LicenseRow)
	Invalidate(ctx context.Context, key string)
}

// EventKind tags the activation lifecycle events EventSink receives.
type EventKind string

const (
	EventActivated   EventKind = "activated"
	EventRevoked     EventKind = "revoked"
	EventRenewed     EventKind = "renewed"
	EventReclaimed   EventKind = "reclaimed"
	EventHeartbeat   EventKind = "heartbeat"
)

// Event is published to an optional EventSink (e.g. the admin WebSocket
// feed in internal/feed) whenever the engine mutates license/activation
// state. This is additive observability, not part of the core protocol.
type Event struct {
	Kind      EventKind
	LicenseID string
	MachineID string
	At        time.Time
}

// EventSink receives Engine lifecycle events. Publish must not block.
type EventSink interface {
	Publish(Event)
}

type noopSink struct{}

func (noopSink) Publish(Event) {}

// Engine is C8. It owns no secrets of its own beyond the RSA keypair it
// re-encodes envelopes with; everything else is delegated to Store (C9).
type Engine struct {
	store  store.Store
	codec  *codec.Codec
	priv   *rsa.PrivateKey
	pub    *rsa.PublicKey
	hw     hardware.Identifier
	cache  Cache
	sink   EventSink

	reclaimInterval time.Duration
	reclaimTimeout  time.Duration
	heartbeatTTL    time.Duration // the client's configured interval, for the invariant check

	stopReclaim chan struct{}
	reclaimDone chan struct{}
}

// Option configures an Engine at construction.
type Option func(*Engine)

func WithCache(c Cache) Option                   { return func(e *Engine) { e.cache = c } }
func WithEventSink(s EventSink) Option           { return func(e *Engine) { e.sink = s } }
func WithHardwareIdentifier(h hardware.Identifier) Option { return func(e *Engine) { e.hw = h } }
func WithReclaimInterval(d time.Duration) Option { return func(e *Engine) { e.reclaimInterval = d } }
func WithReclaimTimeout(d time.Duration) Option  { return func(e *Engine) { e.reclaimTimeout = d } }
func WithHeartbeatTTL(d time.Duration) Option    { return func(e *Engine) { e.heartbeatTTL = d } }
func WithSerializer(s license.Serializer) Option {
	return func(e *Engine) { e.codec = codec.New(s) }
}

// NewEngine constructs an Engine. The reclamation timeout must exceed the
// heartbeat TTL (§5): "the server's reclamation timeout MUST exceed the
// client's heartbeat interval to avoid false reclamation."
func NewEngine(st store.Store, priv *rsa.PrivateKey, pub *rsa.PublicKey, opts ...Option) (*Engine, error) {
	e := &Engine{
		store:           st,
		codec:           codec.New(nil),
		priv:            priv,
		pub:             pub,
		hw:              hardware.Default{},
		sink:            noopSink{},
		reclaimInterval: DefaultReclaimInterval,
		reclaimTimeout:  DefaultReclaimTimeout,
		heartbeatTTL:    5 * time.Minute,
		stopReclaim:     make(chan struct{}),
		reclaimDone:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.reclaimTimeout <= e.heartbeatTTL {
		return nil, fmt.Errorf("%w: reclaim timeout (%s) must exceed heartbeat TTL (%s)",
			errs.ErrBadRequest, e.reclaimTimeout, e.heartbeatTTL)
	}

	return e, nil
}

func (e *Engine) publish(kind EventKind, licenseID, machineID string) {
	e.sink.Publish(Event{Kind: kind, LicenseID: licenseID, MachineID: machineID, At: time.Now().UTC()})
}

// EncodeRow re-signs row's current state into a fresh envelope, the same
// way Generate and Renew do internally. httpapi's activate endpoint uses
// this to answer with an envelope; the revoke endpoint answers 204 No
// Content and returns no envelope.
func (e *Engine) EncodeRow(row *store.LicenseRow) ([]byte, error) {
	return e.codec.Encode(row.ToLicense(), e.priv)
}

// newID returns a fresh UUID string — the single place Engine mints ids, so
// tests can reason about id generation uniformly.
func newID() string { return uuid.NewString() }
