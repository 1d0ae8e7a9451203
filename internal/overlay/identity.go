package overlay

import (
	"fmt"

	"github.com/ecodiatate/roam-bundle-engine/internal/codec"
)

// StableID builds an event's identity: the upstream identifier when one
// exists, otherwise a hash of (source, feed, title prefix, representative
// timestamp, geometry signature) so re-polling unchanged upstream data
// yields the same id.
func StableID(source, feed, upstreamID, titlePrefix, representativeTimestamp, geometrySignature string) string {
	if upstreamID != "" {
		return source + ":" + feed + ":" + upstreamID
	}
	tp := titlePrefix
	if len(tp) > 48 {
		tp = tp[:48]
	}
	payload := fmt.Sprintf("%s|%s|%s|%s|%s", source, feed, tp, representativeTimestamp, geometrySignature)
	sum := codec.ContentHash([]byte(payload))
	suffixLen := 20
	if len(sum) < suffixLen {
		suffixLen = len(sum)
	}
	return source + ":" + feed + ":h" + sum[:suffixLen]
}
