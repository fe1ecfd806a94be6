package license

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"

	"github.com/clk-66/licensecore/internal/errs"
)

// FeatureKind tags the six Feature payload shapes (§3).
type FeatureKind string

const (
	FeatureBoolean   FeatureKind = "Boolean"
	FeatureInteger   FeatureKind = "Integer"
	FeatureFloat     FeatureKind = "Float"
	FeatureString    FeatureKind = "String"
	FeatureDateTime  FeatureKind = "DateTime"
	FeatureByteArray FeatureKind = "ByteArray"
)

// Feature is the tagged union over Boolean/Integer/Float/String/DateTime/
// ByteArray. Only the field matching Kind is meaningful; the rest are zero.
type Feature struct {
	Kind  FeatureKind
	Bool  bool
	Int   int32
	Float float32
	Str   string
	Time  time.Time
	Bytes []byte
}

func BoolFeature(v bool) Feature          { return Feature{Kind: FeatureBoolean, Bool: v} }
func IntFeature(v int32) Feature          { return Feature{Kind: FeatureInteger, Int: v} }
func FloatFeature(v float32) Feature      { return Feature{Kind: FeatureFloat, Float: v} }
func StringFeature(v string) Feature      { return Feature{Kind: FeatureString, Str: v} }
func DateTimeFeature(v time.Time) Feature { return Feature{Kind: FeatureDateTime, Time: v} }
func ByteArrayFeature(v []byte) Feature   { return Feature{Kind: FeatureByteArray, Bytes: v} }

// Enabled implements §3's per-type enablement rule: Boolean=true;
// Integer≠0; Float≠0; String non-empty; DateTime≠default; ByteArray non-empty.
func (f Feature) Enabled() bool {
	switch f.Kind {
	case FeatureBoolean:
		return f.Bool
	case FeatureInteger:
		return f.Int != 0
	case FeatureFloat:
		return f.Float != 0
	case FeatureString:
		return f.Str != ""
	case FeatureDateTime:
		return !f.Time.IsZero()
	case FeatureByteArray:
		return len(f.Bytes) > 0
	default:
		return false
	}
}

// wireFeature is the on-wire shape: {"Type": "...", "Data": "<base64>"}.
// Data always carries a base64-encoded representation of the payload so
// that ByteArray and the other kinds share one encoding path.
type wireFeature struct {
	Type FeatureKind `json:"Type"`
	Data string      `json:"Data"`
}

func (f Feature) MarshalJSON() ([]byte, error) {
	var raw []byte
	switch f.Kind {
	case FeatureBoolean:
		if f.Bool {
			raw = []byte{1}
		} else {
			raw = []byte{0}
		}
	case FeatureInteger:
		raw = []byte(fmt.Sprintf("%d", f.Int))
	case FeatureFloat:
		raw = []byte(fmt.Sprintf("%g", f.Float))
	case FeatureString:
		raw = []byte(f.Str)
	case FeatureDateTime:
		ts, err := f.Time.MarshalBinary()
		if err != nil {
			return nil, err
		}
		raw = ts
	case FeatureByteArray:
		raw = f.Bytes
	default:
		return nil, fmt.Errorf("%w: unknown feature kind %q", errs.ErrInvalidLicenseFormat, f.Kind)
	}

	return json.Marshal(wireFeature{
		Type: f.Kind,
		Data: base64.StdEncoding.EncodeToString(raw),
	})
}

func (f *Feature) UnmarshalJSON(b []byte) error {
	var w wireFeature
	if err := json.Unmarshal(b, &w); err != nil {
		return fmt.Errorf("%w: %v", errs.ErrInvalidLicenseFormat, err)
	}

	raw, err := base64.StdEncoding.DecodeString(w.Data)
	if err != nil {
		return fmt.Errorf("%w: feature data not base64: %v", errs.ErrInvalidLicenseFormat, err)
	}

	switch w.Type {
	case FeatureBoolean:
		f.Kind = FeatureBoolean
		f.Bool = len(raw) > 0 && raw[0] != 0
	case FeatureInteger:
		var v int32
		if _, err := fmt.Sscanf(string(raw), "%d", &v); err != nil {
			return fmt.Errorf("%w: bad integer feature: %v", errs.ErrInvalidLicenseFormat, err)
		}
		f.Kind = FeatureInteger
		f.Int = v
	case FeatureFloat:
		var v float32
		if _, err := fmt.Sscanf(string(raw), "%g", &v); err != nil {
			return fmt.Errorf("%w: bad float feature: %v", errs.ErrInvalidLicenseFormat, err)
		}
		f.Kind = FeatureFloat
		f.Float = v
	case FeatureString:
		f.Kind = FeatureString
		f.Str = string(raw)
	case FeatureDateTime:
		var t time.Time
		if err := t.UnmarshalBinary(raw); err != nil {
			return fmt.Errorf("%w: bad datetime feature: %v", errs.ErrInvalidLicenseFormat, err)
		}
		f.Kind = FeatureDateTime
		f.Time = t
	case FeatureByteArray:
		f.Kind = FeatureByteArray
		f.Bytes = raw
	default:
		return fmt.Errorf("%w: unknown feature type %q", errs.ErrInvalidLicenseFormat, w.Type)
	}

	return nil
}
