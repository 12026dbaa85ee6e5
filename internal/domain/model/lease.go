package model

import "time"

// Lease is a time-bounded exclusive execution right over a repository's
// mutating actions. At most one unexpired lease exists per repo id; a crashed
// holder's lease self-expires instead of deadlocking the repository.
type Lease struct {
	RepoID      string
	HolderToken string
	AcquiredAt  time.Time
	ExpiresAt   time.Time
}

// Expired reports whether the lease has lapsed at the given instant.
func (l Lease) Expired(now time.Time) bool {
	return !now.Before(l.ExpiresAt)
}
