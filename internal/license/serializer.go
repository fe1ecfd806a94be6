package license

import (
	"encoding/json"
	"fmt"

	"github.com/clk-66/licensecore/internal/errs"
)

// Serializer is the pluggable text-serializer port (C3). Implementations
// must preserve every variant-specific field and reject unknown Type
// discriminators with errs.ErrInvalidLicenseFormat.
type Serializer interface {
	Serialize(l *License) (string, error)
	Deserialize(s string) (*License, error)
}

// JSONSerializer is the default Serializer. Field order is pinned by the
// declared struct field order in License (encoding/json preserves it), and
// time.Time's default MarshalJSON emits RFC 3339, so two implementations of
// this package serializing the same License produce byte-identical output.
type JSONSerializer struct{}

func (JSONSerializer) Serialize(l *License) (string, error) {
	b, err := json.Marshal(l)
	if err != nil {
		return "", fmt.Errorf("%w: serialize license: %v", errs.ErrInvalidLicenseFormat, err)
	}
	return string(b), nil
}

func (JSONSerializer) Deserialize(s string) (*License, error) {
	var l License
	if err := json.Unmarshal([]byte(s), &l); err != nil {
		return nil, fmt.Errorf("%w: deserialize license: %v", errs.ErrInvalidLicenseFormat, err)
	}
	if !l.Type.Valid() {
		return nil, fmt.Errorf("%w: unknown license type %q", errs.ErrInvalidLicenseFormat, l.Type)
	}
	if l.Features == nil {
		l.Features = map[string]Feature{}
	}
	return &l, nil
}
