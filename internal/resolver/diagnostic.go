package resolver

import "strings"

// Severity ranks a diagnostic's importance.
type Severity uint8

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	}
	return "unknown"
}

// ParseSeverity maps a config string to a Severity. Unknown strings come
// back as (0, false).
func ParseSeverity(s string) (Severity, bool) {
	switch strings.ToLower(s) {
	case "info":
		return SeverityInfo, true
	case "warning", "warn":
		return SeverityWarning, true
	case "error":
		return SeverityError, true
	}
	return 0, false
}

// Diagnostic is one finding produced by a rule. StartByte/EndByte locate it
// in the file's current content.
type Diagnostic struct {
	Rule      string
	Severity  Severity
	Message   string
	StartByte uint32
	EndByte   uint32
}
