package service

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/cuemby/burrow/pkg/failures"
)

// Properties maps semantic configuration knobs to string values
type Properties map[string]string

// Payloads maps message kinds to their simulated size in bytes. The size
// drives network cost only; it is orthogonal to message semantics.
type Payloads map[string]int64

// defaultControlMessageSize is used whenever a service's payload map omits a
// key. Overridden by the default-control-message-size runtime flag.
var defaultControlMessageSize int64 = 1024

// SetDefaultControlMessageSize overrides the fallback payload size
func SetDefaultControlMessageSize(bytes int64) {
	defaultControlMessageSize = bytes
}

// DefaultControlMessageSize returns the current fallback payload size
func DefaultControlMessageSize() int64 {
	return defaultControlMessageSize
}

// mergedProperties returns defaults overlaid with overrides
func mergedProperties(defaults, overrides Properties) Properties {
	out := make(Properties, len(defaults)+len(overrides))
	for k, v := range defaults {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}

func mergedPayloads(defaults, overrides Payloads) Payloads {
	out := make(Payloads, len(defaults)+len(overrides))
	for k, v := range defaults {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}

// Property returns the raw value of a property, or "" if unset
func (p Properties) Property(name string) string {
	return p[name]
}

// Bool parses a boolean property; unset returns the fallback
func (p Properties) Bool(name string, fallback bool) (bool, error) {
	v, ok := p[name]
	if !ok || v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, &failures.InvalidArgument{Message: fmt.Sprintf("property %s: %q is not a boolean", name, v)}
	}
	return b, nil
}

// Float parses a float property; unset returns the fallback
func (p Properties) Float(name string, fallback float64) (float64, error) {
	v, ok := p[name]
	if !ok || v == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, &failures.InvalidArgument{Message: fmt.Sprintf("property %s: %q is not a number", name, v)}
	}
	return f, nil
}

// Bytes parses a byte-count property. The value "infinity" parses to
// math.MaxInt64; unset returns the fallback.
func (p Properties) Bytes(name string, fallback int64) (int64, error) {
	v, ok := p[name]
	if !ok || v == "" {
		return fallback, nil
	}
	if strings.EqualFold(v, "infinity") {
		return math.MaxInt64, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0, &failures.InvalidArgument{Message: fmt.Sprintf("property %s: %q is not a byte count", name, v)}
	}
	return n, nil
}

// Size returns the payload size for a message kind, falling back to the
// default control message size
func (p Payloads) Size(kind string) int64 {
	if v, ok := p[kind]; ok {
		return v
	}
	return defaultControlMessageSize
}
