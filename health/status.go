// Package health tracks the health of running computations and serves it
// over HTTP.
package health

import (
	"regexp"
	"strings"
	"time"

	"github.com/c360/streamcompute/errors"
)

// States reported in Status.Status.
const (
	StateHealthy   = "healthy"
	StateDegraded  = "degraded"
	StateUnhealthy = "unhealthy"
)

var (
	urlRegex        = regexp.MustCompile(`(https?|nats|wss?|redis)://[^\s]+`)
	ipAddrRegex     = regexp.MustCompile(`\b\d{1,3}\.\d{1,3}\.\d{1,3}\.\d{1,3}(:\d{2,5})?\b`)
	credentialRegex = regexp.MustCompile(`(?i)(password|token|secret|credential)[^a-zA-Z]*[:=][^,\s}]+`)
)

// Status is the health of one computation, or of the whole process when
// SubStatuses is set.
type Status struct {
	Component   string    `json:"component"`
	Healthy     bool      `json:"healthy"`
	Status      string    `json:"status"`
	Message     string    `json:"message,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
	SubStatuses []Status  `json:"sub_statuses,omitempty"`
	Activity    *Activity `json:"activity,omitempty"`
}

// Activity is what a runner reports along with its state.
type Activity struct {
	Processed    int64     `json:"processed"`
	Errors       int       `json:"errors"`
	LastBatch    time.Time `json:"last_batch,omitempty"`
	LowWatermark int64     `json:"low_watermark"`
}

func newStatus(component, state, message string) Status {
	return Status{
		Component: component,
		Healthy:   state == StateHealthy,
		Status:    state,
		Message:   message,
		Timestamp: time.Now(),
	}
}

// NewHealthy returns a healthy status.
func NewHealthy(component, message string) Status {
	return newStatus(component, StateHealthy, message)
}

// NewDegraded returns a degraded status.
func NewDegraded(component, message string) Status {
	return newStatus(component, StateDegraded, message)
}

// NewUnhealthy returns an unhealthy status.
func NewUnhealthy(component, message string) Status {
	return newStatus(component, StateUnhealthy, message)
}

// FromError maps the outcome of a batch to a status: no error is healthy,
// a transient error is degraded and anything else is unhealthy. The error
// text is sanitized before it is exposed.
func FromError(component string, err error) Status {
	switch {
	case err == nil:
		return NewHealthy(component, "")
	case errors.IsTransient(err):
		return NewDegraded(component, sanitizeMessage(err.Error()))
	default:
		return NewUnhealthy(component, sanitizeMessage(err.Error()))
	}
}

// WithActivity returns a copy of s carrying a.
func (s Status) WithActivity(a Activity) Status {
	s.Activity = &a
	return s
}

// IsDegraded reports a degraded state.
func (s Status) IsDegraded() bool { return s.Status == StateDegraded }

// IsUnhealthy reports an unhealthy state.
func (s Status) IsUnhealthy() bool { return s.Status == StateUnhealthy }

// Aggregate is unhealthy if any sub-status is, degraded if any is degraded
// and healthy otherwise.
func Aggregate(component string, subStatuses []Status) Status {
	state := StateHealthy
	for _, sub := range subStatuses {
		if sub.IsUnhealthy() {
			state = StateUnhealthy
			break
		}
		if sub.IsDegraded() {
			state = StateDegraded
		}
	}
	status := newStatus(component, state, "")
	status.SubStatuses = append([]Status(nil), subStatuses...)
	return status
}

// sanitizeMessage strips endpoints and credentials from error text.
func sanitizeMessage(msg string) string {
	msg = urlRegex.ReplaceAllString(msg, "[URL]")
	msg = ipAddrRegex.ReplaceAllString(msg, "[IP]")
	lower := strings.ToLower(msg)
	if strings.Contains(lower, "password") || strings.Contains(lower, "token") ||
		strings.Contains(lower, "secret") || strings.Contains(lower, "credential") {
		msg = credentialRegex.ReplaceAllString(msg, "[REDACTED]")
	}
	return msg
}
