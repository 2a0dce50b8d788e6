// Package alert defines the alert value types shared by the failure
// detector and the dispatcher.
package alert

import "time"

// Type categorizes an alert. Alerts of the same type are aggregated
// together by the dispatcher's debounce buckets.
type Type string

const (
	TypeJobFailure       Type = "job_failure"
	TypeRepeatedFailures Type = "repeated_failures"
	TypeRateLimit        Type = "rate_limit"
	TypeWorkerDown       Type = "worker_down"
)

// ParseType converts a string to a Type.
func ParseType(s string) (Type, bool) {
	switch s {
	case "job_failure", "JOB_FAILURE":
		return TypeJobFailure, true
	case "repeated_failures", "REPEATED_FAILURES":
		return TypeRepeatedFailures, true
	case "rate_limit", "RATE_LIMIT":
		return TypeRateLimit, true
	case "worker_down", "WORKER_DOWN":
		return TypeWorkerDown, true
	default:
		return "", false
	}
}

// Severity represents the severity level of an alert.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// severityRanks orders severities from least to most urgent.
var severityRanks = map[Severity]int{
	SeverityLow:      0,
	SeverityMedium:   1,
	SeverityHigh:     2,
	SeverityCritical: 3,
}

// Rank returns the ordering of a severity. Unknown severities rank
// below low so they never displace a real level.
func (s Severity) Rank() int {
	if r, ok := severityRanks[s]; ok {
		return r
	}
	return -1
}

// ParseSeverity converts a string to Severity.
func ParseSeverity(s string) (Severity, bool) {
	switch s {
	case "low", "LOW":
		return SeverityLow, true
	case "medium", "MEDIUM":
		return SeverityMedium, true
	case "high", "HIGH":
		return SeverityHigh, true
	case "critical", "CRITICAL":
		return SeverityCritical, true
	default:
		return "", false
	}
}

// Alert is a single alert event. It is a value object: construct it
// once and never mutate it afterwards.
type Alert struct {
	Type      Type              `json:"type"`
	Severity  Severity          `json:"severity"`
	Source    string            `json:"source"`
	Timestamp time.Time         `json:"timestamp"`
	Message   string            `json:"message"`
	Context   map[string]string `json:"context,omitempty"`
}

// New constructs an alert at the given time.
func New(typ Type, severity Severity, source, message string, at time.Time) *Alert {
	return &Alert{
		Type:      typ,
		Severity:  severity,
		Source:    source,
		Timestamp: at,
		Message:   message,
	}
}

// WithContext returns a copy of the alert with the given context map.
// The map is copied so the alert stays immutable against caller edits.
func (a *Alert) WithContext(ctx map[string]string) *Alert {
	dup := *a
	if len(ctx) > 0 {
		dup.Context = make(map[string]string, len(ctx))
		for k, v := range ctx {
			dup.Context[k] = v
		}
	}
	return &dup
}

// MaxSeverity returns the highest severity among the given alerts,
// or SeverityLow for an empty batch.
func MaxSeverity(alerts []*Alert) Severity {
	max := SeverityLow
	for _, a := range alerts {
		if a.Severity.Rank() > max.Rank() {
			max = a.Severity
		}
	}
	return max
}
