package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"
)

// DeliveryRecord remembers one processed webhook delivery or poll
// observation. The (RepoID, DeliveryID) pair is processed at most once;
// a retransmission replays the cached Outcome without re-executing side
// effects.
type DeliveryRecord struct {
	RepoID      string
	DeliveryID  string
	Fingerprint string
	Outcome     string // JSON-encoded outcome returned verbatim on replay
	ProcessedAt time.Time
}

// Fingerprint derives a stable identity from the semantically relevant
// fields of an event. It doubles as the delivery id when the transport
// does not provide one.
func Fingerprint(eventType, action string, prNumber int, headSHA string) string {
	sum := sha256.Sum256(fmt.Appendf(nil, "%s|%s|%d|%s", eventType, action, prNumber, headSHA))
	return hex.EncodeToString(sum[:])
}

// MergeDedupKey is the shared ledger key for a merged PR. Webhook-detected
// and poll-detected merges both use it, so a repo configured with both
// trigger sources never double-integrates.
func MergeDedupKey(prNumber int) string {
	return fmt.Sprintf("pr-%d-merged", prNumber)
}

// ReviewDedupKey is the ledger key for a Reviewer dispatch on a PR head
// commit. A new head SHA yields a new key, so each push gets one review.
func ReviewDedupKey(prNumber int, headSHA string) string {
	return fmt.Sprintf("pr-%d-%s", prNumber, headSHA)
}
