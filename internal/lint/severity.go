package lint

import (
	"regexp"
	"strings"
	"sync"

	"go.lsp.dev/protocol"

	"eslintls/internal/settings"
)

// mapSeverity converts the engine's numeric severity: 1 is a warning, 2 an
// error, anything else is treated as an error.
func mapSeverity(engineSeverity int) protocol.DiagnosticSeverity {
	switch engineSeverity {
	case 1:
		return protocol.DiagnosticSeverityWarning
	case 2:
		return protocol.DiagnosticSeverityError
	default:
		return protocol.DiagnosticSeverityError
	}
}

// overrideSeverity applies the user's rule customizations to the mapped
// severity. drop is true when the rule is turned off for reporting; the
// caller may still record its fix.
func overrideSeverity(base protocol.DiagnosticSeverity, ruleID string, customizations []settings.RuleCustomization) (severity protocol.DiagnosticSeverity, drop bool) {
	severity = base
	for _, c := range customizations {
		if !ruleMatches(c.Rule, ruleID) {
			continue
		}
		switch c.Severity {
		case "off":
			return severity, true
		case "error":
			severity = protocol.DiagnosticSeverityError
		case "warn":
			severity = protocol.DiagnosticSeverityWarning
		case "info":
			severity = protocol.DiagnosticSeverityInformation
		case "downgrade":
			severity = downgrade(severity)
		case "upgrade":
			severity = upgrade(severity)
		case "default":
			severity = base
		}
	}
	return severity, false
}

func downgrade(s protocol.DiagnosticSeverity) protocol.DiagnosticSeverity {
	switch s {
	case protocol.DiagnosticSeverityError:
		return protocol.DiagnosticSeverityWarning
	case protocol.DiagnosticSeverityWarning:
		return protocol.DiagnosticSeverityInformation
	default:
		return protocol.DiagnosticSeverityHint
	}
}

func upgrade(s protocol.DiagnosticSeverity) protocol.DiagnosticSeverity {
	switch s {
	case protocol.DiagnosticSeverityHint:
		return protocol.DiagnosticSeverityInformation
	case protocol.DiagnosticSeverityInformation:
		return protocol.DiagnosticSeverityWarning
	default:
		return protocol.DiagnosticSeverityError
	}
}

var (
	patternMu    sync.Mutex
	patternCache = map[string]*regexp.Regexp{}
)

// RuleMatches matches a rule pattern against a rule id. "*" is the only
// wildcard; everything else is literal.
func RuleMatches(pattern, ruleID string) bool {
	return ruleMatches(pattern, ruleID)
}

func ruleMatches(pattern, ruleID string) bool {
	if pattern == ruleID {
		return true
	}
	if !strings.Contains(pattern, "*") {
		return false
	}
	patternMu.Lock()
	re, ok := patternCache[pattern]
	if !ok {
		parts := strings.Split(pattern, "*")
		for i, part := range parts {
			parts[i] = regexp.QuoteMeta(part)
		}
		var err error
		re, err = regexp.Compile("^" + strings.Join(parts, ".*") + "$")
		if err != nil {
			re = nil
		}
		patternCache[pattern] = re
	}
	patternMu.Unlock()
	return re != nil && re.MatchString(ruleID)
}
