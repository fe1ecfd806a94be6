// Package hardware implements C4: the machine-fingerprint port consumed by
// NodeLocked validation and by the activation engine. The default
// implementation composes host name, OS, user name, and a stable set of MAC
// addresses, excluding wireless and virtual/container pseudo-interfaces —
// grounded in the teacher's own machineFingerprint (a hash of hostname plus
// a stable local value), generalized here to the full §4.4 recipe.
package hardware

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
	"os"
	"os/user"
	"runtime"
	"sort"
	"strings"
)

// Identifier is the capability interface implementations of §4.4 satisfy.
type Identifier interface {
	// Get returns this machine's fingerprint string. Deterministic on
	// unchanged hardware and idempotent across process restarts.
	Get() (string, error)

	// Validate reports whether candidate matches this machine's fingerprint.
	Validate(candidate string) (bool, error)
}

// Default is the built-in Identifier: hostname + OS + user name + a sorted,
// filtered set of MAC addresses, SHA-256'd into a stable hex string.
type Default struct{}

var excludedInterfacePrefixes = []string{"wl", "wlan", "docker", "veth", "br-", "lo"}

func (Default) Get() (string, error) {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown-host"
	}

	userName := "unknown-user"
	if u, err := user.Current(); err == nil {
		userName = u.Username
	}

	macs, err := stableMACAddresses()
	if err != nil {
		return "", fmt.Errorf("hardware: enumerate interfaces: %w", err)
	}

	parts := strings.Join([]string{
		hostname,
		userName,
		runtime.GOOS,
		strings.Join(macs, ","),
	}, "|")

	sum := sha256.Sum256([]byte(parts))
	return hex.EncodeToString(sum[:]), nil
}

func (d Default) Validate(candidate string) (bool, error) {
	id, err := d.Get()
	if err != nil {
		return false, err
	}
	return id == candidate, nil
}

// stableMACAddresses returns the hardware addresses of non-loopback,
// non-wireless, non-virtual interfaces, sorted for determinism.
func stableMACAddresses() ([]string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	var macs []string
	for _, iface := range ifaces {
		if iface.HardwareAddr == nil || len(iface.HardwareAddr) == 0 {
			continue
		}
		if isExcludedInterface(iface.Name) {
			continue
		}
		macs = append(macs, iface.HardwareAddr.String())
	}

	sort.Strings(macs)
	return macs, nil
}

func isExcludedInterface(name string) bool {
	lower := strings.ToLower(name)
	for _, prefix := range excludedInterfacePrefixes {
		if strings.HasPrefix(lower, prefix) {
			return true
		}
	}
	return false
}

// Static is a fixed Identifier useful for tests and for NodeLocked licenses
// generated for a specific, already-known hardware id (e.g. server-side
// generation where the client's fingerprint was submitted out of band).
type Static string

func (s Static) Get() (string, error) { return string(s), nil }
func (s Static) Validate(candidate string) (bool, error) {
	return string(s) == candidate, nil
}
