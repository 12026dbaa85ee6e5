package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFingerprint(t *testing.T) {
	a := Fingerprint("pull_request", "closed", 7, "abc123")
	b := Fingerprint("pull_request", "closed", 7, "abc123")
	assert.Equal(t, a, b)
	assert.Len(t, a, 64)

	assert.NotEqual(t, a, Fingerprint("pull_request", "opened", 7, "abc123"))
	assert.NotEqual(t, a, Fingerprint("pull_request", "closed", 8, "abc123"))
	assert.NotEqual(t, a, Fingerprint("pull_request", "closed", 7, "def456"))
}

func TestMergeDedupKey(t *testing.T) {
	assert.Equal(t, "pr-7-merged", MergeDedupKey(7))
	assert.Equal(t, "pr-1234-merged", MergeDedupKey(1234))
}

func TestReviewDedupKey(t *testing.T) {
	assert.Equal(t, "pr-7-abc123", ReviewDedupKey(7, "abc123"))
	// A new head commit must produce a new key.
	assert.NotEqual(t, ReviewDedupKey(7, "abc123"), ReviewDedupKey(7, "def456"))
}
