// Package codec composes the binary envelope (C2, internal/envelope) with
// the license serializer port (C3, internal/license) into the single
// authoritative encode/decode pair used by both the client manager and the
// server activation engine. The source computed this split twice, once per
// caller, with slightly differing bodies (§9's open question); this
// package exists so there is exactly one implementation to trust.
package codec

import (
	"crypto/rsa"

	"github.com/clk-66/licensecore/internal/envelope"
	"github.com/clk-66/licensecore/internal/license"
)

// Codec encodes/decodes *license.License values to and from the §6.1 binary
// envelope, using a pluggable license.Serializer for the payload text.
type Codec struct {
	Serializer license.Serializer
}

// New returns a Codec using serializer, or license.JSONSerializer{} if nil.
func New(serializer license.Serializer) *Codec {
	if serializer == nil {
		serializer = license.JSONSerializer{}
	}
	return &Codec{Serializer: serializer}
}

// Encode serializes l, then signs and encrypts it into an envelope (§4.2).
func (c *Codec) Encode(l *license.License, priv *rsa.PrivateKey) ([]byte, error) {
	payload, err := c.Serializer.Serialize(l)
	if err != nil {
		return nil, err
	}
	return envelope.Encode([]byte(payload), priv)
}

// Decode verifies and decrypts an envelope, then deserializes the payload
// back into a *license.License, re-tagged to its variant by the
// serializer's Type discriminator dispatch.
func (c *Codec) Decode(data []byte, pub *rsa.PublicKey) (*license.License, error) {
	payload, err := envelope.Decode(data, pub)
	if err != nil {
		return nil, err
	}
	return c.Serializer.Deserialize(string(payload))
}
