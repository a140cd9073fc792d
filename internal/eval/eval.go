// Package eval holds the pure policy decisions of the idle-timeout monitor.
package eval

import (
	"fmt"
	"strings"
	"time"
)

// NormalizeRoute reduces a console location to its route identifier:
// "/#/Students?tab=fees" and "students/" both become "students".
func NormalizeRoute(route string) string {
	r := strings.TrimSpace(route)
	if i := strings.IndexByte(r, '?'); i >= 0 {
		r = r[:i]
	}
	r = strings.TrimLeft(r, "/#")
	r = strings.TrimRight(r, "/")
	return strings.ToLower(r)
}

// IsExcluded reports whether route is one of the excluded routes.
func IsExcluded(route string, excluded []string) bool {
	r := NormalizeRoute(route)
	for _, ex := range excluded {
		if NormalizeRoute(ex) == r {
			return true
		}
	}
	return false
}

// Eligible reports whether a monitor should be armed for these inputs.
func Eligible(sessionActive bool, route string, excluded []string) bool {
	return sessionActive && !IsExcluded(route, excluded)
}

// Deadlines returns the warning and expiry instants for a countdown starting at from.
func Deadlines(from time.Time, total, lead time.Duration) (warnAt, expireAt time.Time) {
	return from.Add(total - lead), from.Add(total)
}

// Remaining returns the time left until expireAt, never negative.
func Remaining(expireAt, now time.Time) time.Duration {
	if expireAt.IsZero() || !now.Before(expireAt) {
		return 0
	}
	return expireAt.Sub(now)
}

// FormatRemaining formats a duration into a human readable string,
// rounding up to the next whole minute.
func FormatRemaining(d time.Duration) string {
	if d <= 0 {
		return "less than a minute"
	}
	d = d.Round(time.Second)
	if rem := d % time.Minute; rem != 0 {
		d += time.Minute - rem
	}
	hours := int(d.Hours())
	minutes := int(d.Minutes()) % 60

	if hours > 0 {
		return fmt.Sprintf("%d hour(s) %d minute(s)", hours, minutes)
	}
	return fmt.Sprintf("%d minute(s)", minutes)
}

// WarningMessage is the question shown to the user before expiry.
func WarningMessage(remaining time.Duration) string {
	return fmt.Sprintf("Your session will expire in %s due to inactivity. Do you want to stay signed in?",
		FormatRemaining(remaining))
}

// ExpiredMessage is shown when the session has been ended for inactivity.
const ExpiredMessage = "Your session has expired due to inactivity. Please log in again."
