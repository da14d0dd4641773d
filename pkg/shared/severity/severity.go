// Package severity provides unified severity level definitions and mappings
// for threat findings across the SDK and report consumers.
package severity

import "strings"

// Level represents a severity level for threat findings.
type Level string

const (
	// Critical - the threat is directly exploitable against the modeled
	// system as declared; fix the design before shipping.
	Critical Level = "critical"

	// High - serious weakness in the declared architecture that should be
	// addressed urgently.
	High Level = "high"

	// Medium - moderate risk, address in the normal development cycle.
	Medium Level = "medium"

	// Low - minor issue, address when convenient.
	Low Level = "low"

	// Info - informational finding, no direct security impact.
	Info Level = "info"

	// Unknown - severity could not be determined.
	Unknown Level = "unknown"
)

// AllLevels returns all severity levels in order of priority (highest first).
func AllLevels() []Level {
	return []Level{Critical, High, Medium, Low, Info, Unknown}
}

// String returns the string representation of the severity level.
func (l Level) String() string {
	return string(l)
}

// Priority returns the numeric priority of the severity level.
// Higher numbers = higher priority.
func (l Level) Priority() int {
	switch l {
	case Critical:
		return 5
	case High:
		return 4
	case Medium:
		return 3
	case Low:
		return 2
	case Info:
		return 1
	default:
		return 0
	}
}

// IsHigherThan returns true if this severity is higher than the other.
func (l Level) IsHigherThan(other Level) bool {
	return l.Priority() > other.Priority()
}

// IsAtLeast returns true if this severity is at least as high as the other.
func (l Level) IsAtLeast(other Level) bool {
	return l.Priority() >= other.Priority()
}

// FromString normalizes various severity string formats to a standard Level.
// Handles the formats found in common threat catalogs:
//   - CAPEC-style catalogs: Very High, High, Medium, Low, Very Low
//   - SARIF style: error, warning, note
func FromString(s string) Level {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "CRITICAL", "CRIT", "VERY HIGH":
		return Critical
	case "HIGH", "ERROR", "SEVERE":
		return High
	case "MEDIUM", "MODERATE", "WARNING", "WARN", "MED":
		return Medium
	case "LOW", "VERY LOW":
		return Low
	case "INFO", "INFORMATIONAL", "NOTE", "NONE":
		return Info
	default:
		return Unknown
	}
}

// Compare returns:
//
//	-1 if a < b (a is lower severity)
//	 0 if a == b
//	+1 if a > b (a is higher severity)
func Compare(a, b Level) int {
	pa, pb := a.Priority(), b.Priority()
	switch {
	case pa < pb:
		return -1
	case pa > pb:
		return 1
	default:
		return 0
	}
}

// Max returns the higher severity of two levels.
func Max(a, b Level) Level {
	if a.IsHigherThan(b) {
		return a
	}
	return b
}

// Min returns the lower severity of two levels.
func Min(a, b Level) Level {
	if a.IsHigherThan(b) {
		return b
	}
	return a
}

// CountBySeverity counts findings by severity level.
type CountBySeverity struct {
	Critical int `json:"critical"`
	High     int `json:"high"`
	Medium   int `json:"medium"`
	Low      int `json:"low"`
	Info     int `json:"info"`
	Unknown  int `json:"unknown"`
	Total    int `json:"total"`
}

// Increment increases the count for the given severity.
func (c *CountBySeverity) Increment(level Level) {
	c.Total++
	switch level {
	case Critical:
		c.Critical++
	case High:
		c.High++
	case Medium:
		c.Medium++
	case Low:
		c.Low++
	case Info:
		c.Info++
	default:
		c.Unknown++
	}
}

// HighestSeverity returns the highest severity level that has a non-zero count.
func (c *CountBySeverity) HighestSeverity() Level {
	if c.Critical > 0 {
		return Critical
	}
	if c.High > 0 {
		return High
	}
	if c.Medium > 0 {
		return Medium
	}
	if c.Low > 0 {
		return Low
	}
	if c.Info > 0 {
		return Info
	}
	return Unknown
}
