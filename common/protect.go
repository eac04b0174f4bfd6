package common

import (
	"crypto/subtle"
	"encoding"
	"encoding/json"
	"fmt"
)

// ProtectedString holds a secret configuration value, like the reload secret.
// It hides its value when printed or marshalled to JSON, so the Config can be
// logged as a whole.
type ProtectedString struct {
	value *string
}

var protectedMessage = "<protected>"

func NewProtectedString(val string) ProtectedString {
	return ProtectedString{value: &val}
}

// Reveal returns the secret value, or "" if it was never set.
func (p ProtectedString) Reveal() string {
	if p.value == nil {
		return ""
	}
	return *p.value
}

// IsSet reports whether a non-empty value was configured.
func (p ProtectedString) IsSet() bool {
	return p.Reveal() != ""
}

// Equal compares candidate against the secret in constant time.
func (p ProtectedString) Equal(candidate string) bool {
	return subtle.ConstantTimeCompare([]byte(p.Reveal()), []byte(candidate)) == 1
}

// String returns the string representation of the type. Override it to avoid
// logging the secret value.
func (p ProtectedString) String() string {
	if !p.IsSet() {
		return ""
	}
	return protectedMessage
}

var _ fmt.Stringer = ProtectedString{}

// MarshalJSON returns the JSON representation of the type. Many loggers will
// log JSON representation of types. Override it to avoid logging the secret
// value.
func (p ProtectedString) MarshalJSON() ([]byte, error) {
	return json.Marshal(p.String())
}

var _ json.Marshaler = ProtectedString{}

// UnmarshalText can unmarshal a textual representation of a ProtectedString.
// Needed for use with the envconfig library:
// https://github.com/kelseyhightower/envconfig
func (p *ProtectedString) UnmarshalText(text []byte) error {
	val := string(text)
	p.value = &val
	return nil
}

var _ encoding.TextUnmarshaler = (*ProtectedString)(nil)
