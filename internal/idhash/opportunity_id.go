package idhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ComputeOpportunityID computes a deterministic opportunity id using SHA256.
// Formula: SHA256(token|buy_venue|sell_venue|time_bucket)
// Returns hex-encoded hash (64 characters).
//
// timeBucket is the detection timestamp truncated to the scan window, so
// re-detections of the same route within one window collapse to one id and
// the store's duplicate-key rejection drops them.
func ComputeOpportunityID(
	tokenSymbol string,
	buyVenue string,
	sellVenue string,
	timeBucket int64,
) string {
	data := fmt.Sprintf("%s|%s|%s|%d",
		tokenSymbol,
		buyVenue,
		sellVenue,
		timeBucket,
	)

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// BucketMillis truncates a millisecond timestamp to the start of its
// window. A non-positive window returns the timestamp unchanged.
func BucketMillis(ts, windowMs int64) int64 {
	if windowMs <= 0 {
		return ts
	}
	return ts - ts%windowMs
}
