package domain

import "time"

// EligibilityState is derived from the sale date on every read. It is never
// stored: storing it would reintroduce the stale-cache bug class this design
// exists to avoid.
type EligibilityState string

const (
	// StateRestricted: recent records, unlockable only by verified
	// professionals on a qualifying tier.
	StateRestricted EligibilityState = "RESTRICTED"
	// StateActionable: unlockable by any user with a verified contact channel.
	StateActionable EligibilityState = "ACTIONABLE"
	// StateExpired: terminally not unlockable.
	StateExpired EligibilityState = "EXPIRED"
	// StateUnknown: record data too incomplete to place on the timeline.
	StateUnknown EligibilityState = "UNKNOWN"
)

// DeriveState places an asset on the RESTRICTED -> ACTIONABLE -> EXPIRED
// timeline by elapsed time since the sale date.
func DeriveState(saleDate *time.Time, now time.Time, restrictedWindowDays, expiryDays int) EligibilityState {
	if saleDate == nil || saleDate.IsZero() {
		return StateUnknown
	}
	elapsed := now.Sub(*saleDate)
	if elapsed < 0 {
		return StateUnknown
	}
	days := int(elapsed.Hours() / 24)
	switch {
	case days < restrictedWindowDays:
		return StateRestricted
	case days < expiryDays:
		return StateActionable
	default:
		return StateExpired
	}
}
