// Package classification provides the ordered data-classification scale used
// to label data assets and datastore ceilings in threat models.
//
// The scale is a fixed, ordered enumeration. Comparing two levels answers
// "may data at level A be stored somewhere with ceiling B" type questions.
package classification

import "strings"

// Level represents a data classification level.
type Level int

// Levels in ascending sensitivity. Unknown sorts below Public on purpose:
// unclassified data must never satisfy a ceiling check.
const (
	Unknown Level = iota
	Public
	Restricted
	Sensitive
	Secret
	TopSecret
)

// AllLevels returns all classification levels in ascending order.
func AllLevels() []Level {
	return []Level{Unknown, Public, Restricted, Sensitive, Secret, TopSecret}
}

// String returns the canonical name of the level.
func (l Level) String() string {
	switch l {
	case Public:
		return "PUBLIC"
	case Restricted:
		return "RESTRICTED"
	case Sensitive:
		return "SENSITIVE"
	case Secret:
		return "SECRET"
	case TopSecret:
		return "TOP_SECRET"
	default:
		return "UNKNOWN"
	}
}

// IsValid reports whether the level is a member of the enumeration.
func (l Level) IsValid() bool {
	return l >= Unknown && l <= TopSecret
}

// Exceeds reports whether this level is strictly more sensitive than other.
func (l Level) Exceeds(other Level) bool {
	return l > other
}

// AtMost reports whether this level is allowed under the given ceiling.
func (l Level) AtMost(ceiling Level) bool {
	return l <= ceiling
}

// FromString parses a classification name. It accepts the canonical
// upper-case names as well as lower/mixed case and surrounding whitespace.
func FromString(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "PUBLIC":
		return Public
	case "RESTRICTED":
		return Restricted
	case "SENSITIVE":
		return Sensitive
	case "SECRET":
		return Secret
	case "TOP_SECRET", "TOPSECRET", "TOP SECRET":
		return TopSecret
	default:
		return Unknown
	}
}

// MarshalText implements encoding.TextMarshaler.
func (l Level) MarshalText() ([]byte, error) {
	return []byte(l.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (l *Level) UnmarshalText(text []byte) error {
	*l = FromString(string(text))
	return nil
}

// Max returns the more sensitive of two levels.
func Max(a, b Level) Level {
	if a > b {
		return a
	}
	return b
}
