package httpapi

import (
	"errors"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// nonceClaims mirrors internal/manager's outbound claims shape.
type nonceClaims struct {
	Nonce string `json:"nonce"`
	jwt.RegisteredClaims
}

var errReplayedNonce = errors.New("httpapi: validation nonce already used or invalid")

// checkNonce verifies the HS256 signature on token and rejects a nonce
// that has already been consumed, closing the replay window SPEC_FULL.md's
// domain-stack wiring opened this JWT for. An empty jwtSecret disables
// verification: checkNonce then accepts any token without recording it.
func (h *handlers) checkNonce(token string) error {
	if h.jwtSecret == "" {
		return nil
	}

	parsed, err := jwt.ParseWithClaims(token, &nonceClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errReplayedNonce
		}
		return []byte(h.jwtSecret), nil
	})
	if err != nil || !parsed.Valid {
		return errReplayedNonce
	}
	claims, ok := parsed.Claims.(*nonceClaims)
	if !ok || claims.Nonce == "" {
		return errReplayedNonce
	}

	if !h.nonces.claim(claims.Nonce) {
		return errReplayedNonce
	}
	return nil
}

// nonceSet tracks recently consumed nonces with a bounded TTL so the map
// doesn't grow without bound. Sized for a licensing server's validate
// traffic, not a high-throughput API.
type nonceSet struct {
	mu   sync.Mutex
	seen map[string]time.Time
	ttl  time.Duration
}

func newNonceSet(ttl time.Duration) *nonceSet {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &nonceSet{seen: make(map[string]time.Time), ttl: ttl}
}

// claim reports whether nonce was not already seen, recording it if so.
// Entries older than ttl are swept opportunistically on each call.
func (s *nonceSet) claim(nonce string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for n, at := range s.seen {
		if now.Sub(at) > s.ttl {
			delete(s.seen, n)
		}
	}

	if _, ok := s.seen[nonce]; ok {
		return false
	}
	s.seen[nonce] = now
	return true
}
