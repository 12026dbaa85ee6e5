package model

import "time"

// PollCursor is the per-repository poll state: conditional-request ETags,
// the merged-PR watermark, and the remote rate budget snapshot. It is
// updated after every poll attempt regardless of outcome.
type PollCursor struct {
	RepoID        string
	OpenETag      string
	ClosedETag    string
	LastMergedAt  time.Time // watermark; zero until the first merged PR is seen
	LastPollAt    time.Time
	RateRemaining int
	RateResetAt   time.Time
}
