package codec

import (
	"fmt"
	"strings"
)

// Severity is the record category carried on the wire as uint32.
// Values are single bits so collectors can filter with masks.
type Severity uint32

const (
	SeverityPrint         Severity = 0x00000001
	SeverityError         Severity = 0x00000002
	SeverityWarning       Severity = 0x00000004
	SeverityDebug         Severity = 0x00000008
	SeverityInfo          Severity = 0x00000010
	SeverityCritical      Severity = 0x00000020
	SeverityScriptInfo    Severity = 0x00000040
	SeverityScriptError   Severity = 0x00000080
	SeverityScriptDebug   Severity = 0x00000100
	SeverityScriptWarning Severity = 0x00000200
	SeverityScriptNormal  Severity = 0x00000400
)

var severityNames = map[Severity]string{
	SeverityPrint:         "PRINT",
	SeverityError:         "ERROR",
	SeverityWarning:       "WARNING",
	SeverityDebug:         "DEBUG",
	SeverityInfo:          "INFO",
	SeverityCritical:      "CRITICAL",
	SeverityScriptInfo:    "S_INFO",
	SeverityScriptError:   "S_ERROR",
	SeverityScriptDebug:   "S_DEBUG",
	SeverityScriptWarning: "S_WARN",
	SeverityScriptNormal:  "S_NORM",
}

// String returns the short uppercase name used in local output.
func (s Severity) String() string {
	if name, ok := severityNames[s]; ok {
		return name
	}
	return fmt.Sprintf("SEVERITY(%#x)", uint32(s))
}

// IsScript reports whether the record originated from the embedded script layer.
func (s Severity) IsScript() bool {
	return s&(SeverityScriptInfo|SeverityScriptError|SeverityScriptDebug|SeverityScriptWarning|SeverityScriptNormal) != 0
}

// ParseSeverity converts a severity name (case-insensitive) to its value.
func ParseSeverity(name string) (Severity, error) {
	upper := strings.ToUpper(strings.TrimSpace(name))
	switch upper {
	case "WARN":
		return SeverityWarning, nil
	case "FATAL":
		return SeverityCritical, nil
	}
	for sev, n := range severityNames {
		if n == upper {
			return sev, nil
		}
	}
	return 0, fmt.Errorf("codec: unknown severity '%s'", name)
}
