// Package tz converts between a user's wall-clock time and UTC instants.
//
// Conversions go through the IANA zone database (time.LoadLocation), never
// fixed offsets, so they stay correct across DST transitions.
package tz

import (
	"errors"
	"strings"
	"sync"
	"time"
)

// ErrInvalidTimezone is returned when a zone name cannot be resolved.
// Callers fall back to their configured default zone.
var ErrInvalidTimezone = errors.New("invalid timezone")

// Resolver resolves user-supplied zone names and converts wall-clock times.
// All methods are safe for concurrent use and side-effect free.
type Resolver struct {
	def *time.Location

	mu    sync.RWMutex
	cache map[string]*time.Location
}

// NewResolver builds a resolver with the given default zone.
// An empty or unresolvable defaultZone means UTC; callers that need to
// reject a bad default validate it with Lookup first.
func NewResolver(defaultZone string) *Resolver {
	r := &Resolver{def: time.UTC, cache: map[string]*time.Location{}}
	if loc, err := r.Lookup(defaultZone); err == nil {
		r.def = loc
	}
	return r
}

// Default returns the configured fallback zone.
func (r *Resolver) Default() *time.Location { return r.def }

// Lookup resolves a zone name to a location.
//
// Resolution order: colloquial alias table ("eastern", "pacific", city
// names), then the raw IANA id, then "America/<Name>" and "US/<Name>"
// prefix retries for bare city-ish inputs.
func (r *Resolver) Lookup(tzid string) (*time.Location, error) {
	key := strings.ToLower(strings.TrimSpace(tzid))
	if key == "" {
		return nil, ErrInvalidTimezone
	}

	r.mu.RLock()
	loc, ok := r.cache[key]
	r.mu.RUnlock()
	if ok {
		return loc, nil
	}

	loc = r.resolve(key, tzid)
	if loc == nil {
		return nil, ErrInvalidTimezone
	}

	r.mu.Lock()
	r.cache[key] = loc
	r.mu.Unlock()
	return loc, nil
}

func (r *Resolver) resolve(key, raw string) *time.Location {
	if canonical, ok := zoneAliases[key]; ok {
		if loc, err := time.LoadLocation(canonical); err == nil {
			return loc
		}
	}
	if loc, err := time.LoadLocation(strings.TrimSpace(raw)); err == nil {
		return loc
	}
	// Bare names like "chicago" or "eastern" that missed the alias table:
	// try the common IANA prefixes before giving up.
	title := titleWord(key)
	for _, prefix := range []string{"America/", "US/"} {
		if loc, err := time.LoadLocation(prefix + title); err == nil {
			return loc
		}
	}
	return nil
}

// LookupOrDefault resolves tzid, reporting via ok whether the input was
// recognized. Unrecognized input yields the default zone.
func (r *Resolver) LookupOrDefault(tzid string) (loc *time.Location, ok bool) {
	loc, err := r.Lookup(tzid)
	if err != nil {
		return r.def, false
	}
	return loc, true
}

// ToUTC interprets the wall-clock fields of local in the given zone and
// returns the corresponding UTC instant.
func (r *Resolver) ToUTC(local time.Time, tzid string) (time.Time, error) {
	loc, err := r.Lookup(tzid)
	if err != nil {
		return time.Time{}, err
	}
	return time.Date(local.Year(), local.Month(), local.Day(),
		local.Hour(), local.Minute(), local.Second(), local.Nanosecond(), loc).UTC(), nil
}

// ToLocal returns the wall-clock representation of a UTC instant in the
// given zone. An unrecognized zone renders in the default zone rather
// than failing; a reminder with a stale tzid must still display.
func (r *Resolver) ToLocal(instant time.Time, tzid string) time.Time {
	loc, _ := r.LookupOrDefault(tzid)
	return instant.In(loc)
}

func titleWord(s string) string {
	if s == "" {
		return s
	}
	parts := strings.Split(s, " ")
	for i, p := range parts {
		if p == "" {
			continue
		}
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, "_")
}
