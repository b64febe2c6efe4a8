package browser

import "errors"

// ErrSessionExpired signals that the profile's login session is gone and no
// automated recovery path remains. Workers must stop claiming files for this
// profile and hand the problem to an operator.
var ErrSessionExpired = errors.New("session expired")

// EventLog receives operator-facing incidents. The store implements it; a
// nil-safe no-op is used when persistence is disabled.
type EventLog interface {
	LogCriticalEvent(profileName, eventType, message string, requiresAction bool, meta map[string]any)
}

type nopEventLog struct{}

func (nopEventLog) LogCriticalEvent(string, string, string, bool, map[string]any) {}

// NopEventLog discards all events.
var NopEventLog EventLog = nopEventLog{}
