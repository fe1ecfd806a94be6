// Package manager implements C6: the client-side license manager. It loads
// and saves license envelopes, dispatches offline validation through
// internal/rules, talks to the server's online surface for Online-mode
// loads and Concurrent-license heartbeats, and publishes the current
// license into internal/feature for the rest of the process to query.
//
// The source keeps "current license", the heartbeat timer, and the
// serializer/hardware/built-in-validation switches as process globals; per
// §9's design note this package instead owns them on a constructed Manager
// value passed by reference. A caller wanting the global-singleton shape
// can simply hold one package-level *Manager.
package manager

import (
	"context"
	"crypto/rsa"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/clk-66/licensecore/internal/codec"
	"github.com/clk-66/licensecore/internal/errs"
	"github.com/clk-66/licensecore/internal/feature"
	"github.com/clk-66/licensecore/internal/hardware"
	"github.com/clk-66/licensecore/internal/license"
	"github.com/clk-66/licensecore/internal/rules"
)

// DefaultHeartbeatInterval is §4.6's default heartbeat period.
const DefaultHeartbeatInterval = 5 * time.Minute

// Mode selects offline (local rule validation only) or online (also calls
// the server's /validate surface) loading, per §4.6.
type Mode string

const (
	Offline Mode = "Offline"
	Online  Mode = "Online"
)

// LoadResult is what Load returns — callers check Status rather than
// relying on exceptions for control flow (§7).
type LoadResult struct {
	Status  rules.Status
	License *license.License
	Err     error
}

// Manager is C6. The zero value is not usable; construct with New.
type Manager struct {
	mu sync.Mutex

	codec      *codec.Codec
	serializer license.Serializer
	hw         hardware.Identifier
	registry   *rules.Registry
	features   *feature.Manager
	server     *ServerClient

	priv *rsa.PrivateKey
	pub  *rsa.PublicKey

	builtInValidationEnabled bool
	heartbeatInterval        time.Duration

	current   *license.License
	heartbeat *heartbeatTask
}

// Option configures a Manager at construction, before any Load/Save call.
type Option func(*Manager)

func WithKeys(priv *rsa.PrivateKey, pub *rsa.PublicKey) Option {
	return func(m *Manager) { m.priv, m.pub = priv, pub }
}

func WithSerializer(s license.Serializer) Option {
	return func(m *Manager) {
		m.serializer = s
		m.codec = codec.New(s)
	}
}

func WithHardwareIdentifier(h hardware.Identifier) Option {
	return func(m *Manager) { m.hw = h }
}

func WithBuiltInValidation(enabled bool) Option {
	return func(m *Manager) { m.builtInValidationEnabled = enabled }
}

// WithHeartbeatInterval sets the client heartbeat period (§4.6). Must be
// >= 0; a zero interval disables the heartbeat task entirely.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(m *Manager) { m.heartbeatInterval = d }
}

// WithServerEndpoint sets the base URL for online validate/heartbeat/
// disconnect requests. A trailing slash is trimmed per §4.6.
func WithServerEndpoint(endpoint string, httpTimeout time.Duration) Option {
	return func(m *Manager) {
		m.server = NewServerClient(strings.TrimRight(endpoint, "/"), httpTimeout)
	}
}

// WithJWTSecret configures the HS256 secret the Manager signs outbound
// online-validation nonces with (ADDED, see DESIGN.md).
func WithJWTSecret(secret string) Option {
	return func(m *Manager) {
		if m.server != nil {
			m.server.jwtSecret = secret
		}
	}
}

// New constructs a Manager. hw defaults to hardware.Default{}, serializer to
// license.JSONSerializer{}, and heartbeatInterval to DefaultHeartbeatInterval.
func New(opts ...Option) *Manager {
	m := &Manager{
		serializer:               license.JSONSerializer{},
		hw:                       hardware.Default{},
		builtInValidationEnabled: true,
		heartbeatInterval:        DefaultHeartbeatInterval,
		features:                 feature.New(),
	}
	m.codec = codec.New(m.serializer)
	for _, opt := range opts {
		opt(m)
	}
	m.registry = rules.NewRegistry(m.hw)
	m.registry.BuiltInValidationEnabled = m.builtInValidationEnabled
	return m
}

// Features returns the feature manager (C7) this Manager publishes into.
func (m *Manager) Features() *feature.Manager { return m.features }

// Registry returns the validation rule registry (C5), for callers that
// want to add global or per-variant user rules before the first Load.
func (m *Manager) Registry() *rules.Registry { return m.registry }

// Current returns the currently loaded license, or nil.
func (m *Manager) Current() *license.License {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Save encodes l and, if path is non-empty, writes the envelope to it.
// privOverride, if non-nil, is used instead of the Manager's configured key.
func (m *Manager) Save(l *license.License, path string, privOverride *rsa.PrivateKey) ([]byte, error) {
	priv := m.priv
	if privOverride != nil {
		priv = privOverride
	}
	if priv == nil {
		return nil, fmt.Errorf("%w: no private key configured", errs.ErrKeyManagement)
	}

	data, err := m.codec.Encode(l, priv)
	if err != nil {
		return nil, err
	}

	if path != "" {
		if err := os.WriteFile(path, data, 0600); err != nil {
			return nil, fmt.Errorf("%w: write license file: %v", errs.ErrKeyManagement, err)
		}
	}
	return data, nil
}

// Load reads bytes from path (if source is empty) or uses source directly,
// decodes the envelope, and validates it per mode (§4.6).
func (m *Manager) Load(ctx context.Context, source []byte, path string, mode Mode, params *rules.Params) LoadResult {
	data := source
	if len(data) == 0 && path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return LoadResult{Status: rules.Invalid, Err: fmt.Errorf("%w: read license file: %v", errs.ErrInvalidLicenseFormat, err)}
		}
		data = b
	}

	l, err := m.codec.Decode(data, m.pub)
	if err != nil {
		return LoadResult{Status: rules.Invalid, Err: err}
	}

	var p rules.Params
	if params != nil {
		p = *params
	} else {
		p = DeriveParams(l)
	}

	var result LoadResult
	switch mode {
	case Online:
		result = m.loadOnline(ctx, l, data, p)
	default:
		result = m.loadOffline(l, p)
	}

	if result.Status == rules.Valid {
		m.publish(ctx, l)
	}
	return result
}

func (m *Manager) loadOffline(l *license.License, p rules.Params) LoadResult {
	res := m.registry.Validate(l, p)
	return LoadResult{Status: res.Status, License: l, Err: res.Err}
}

func (m *Manager) loadOnline(ctx context.Context, l *license.License, envelope []byte, p rules.Params) LoadResult {
	if m.server == nil {
		return LoadResult{Status: rules.Invalid, License: l, Err: fmt.Errorf("%w: no server endpoint configured", errs.ErrHeartbeat)}
	}
	if err := m.server.Validate(ctx, l.LicenseKey, p, envelope); err != nil {
		return LoadResult{Status: rules.Invalid, License: l, Err: err}
	}
	return LoadResult{Status: rules.Valid, License: l}
}

// publish installs l as current, pushes it to the feature manager, and —
// for Concurrent licenses only — starts the heartbeat task if one is not
// already running (§4.6). Re-entering Load never creates a second timer.
func (m *Manager) publish(ctx context.Context, l *license.License) {
	m.mu.Lock()
	m.current = l
	m.mu.Unlock()

	m.features.Publish(l)

	if l.Type == license.Concurrent && m.heartbeatInterval > 0 && m.server != nil {
		m.mu.Lock()
		if m.heartbeat == nil {
			m.heartbeat = startHeartbeat(m.server, l.LicenseKey, hardwareIDOf(m, l), m.heartbeatInterval)
		}
		m.mu.Unlock()
	}
}

func hardwareIDOf(m *Manager, l *license.License) string {
	if l.HardwareID != "" {
		return l.HardwareID
	}
	id, err := m.hw.Get()
	if err != nil {
		slog.Warn("manager: derive hardware id for heartbeat", "err", err)
		return ""
	}
	return id
}

// Close stops and releases the heartbeat task (if any), disconnects a
// Concurrent current license from the server, and clears the current
// license slot (§4.6).
func (m *Manager) Close(ctx context.Context) error {
	m.mu.Lock()
	hb := m.heartbeat
	m.heartbeat = nil
	cur := m.current
	m.current = nil
	m.mu.Unlock()

	if hb != nil {
		hb.stop()
	}

	if cur != nil && cur.Type == license.Concurrent && m.server != nil {
		hwID := hardwareIDOf(m, cur)
		if err := m.server.Disconnect(ctx, cur.LicenseKey, hwID); err != nil {
			return fmt.Errorf("%w: %v", errs.ErrHeartbeat, err)
		}
	}
	return nil
}

// DeriveParams derives rules.Params from a license's own fields per §4.6,
// used whenever a caller omits explicit params to Load.
func DeriveParams(l *license.License) rules.Params {
	return rules.Params{
		UserName:              l.UserName,
		LicenseKey:            l.LicenseKey,
		HardwareId:            l.HardwareID,
		MaxActiveUsersCount:   l.MaxActiveUsersCount,
		SubscriptionStartDate: l.SubscriptionStartDate,
		SubscriptionDuration:  l.SubscriptionDuration,
		TrialPeriod:           l.TrialPeriod,
	}
}
