// Package speech implements segmented text-to-speech playback with
// persistent caching: message text is split into word-bounded segments,
// each segment is resolved to a decoded PCM buffer (cache first, synthesis
// service second) and played back seamlessly with seek and rate control.
package speech

import (
	"fmt"
	"strconv"
	"strings"
)

// keySeparator joins a message id and a segment index into a cache key.
const keySeparator = "_part_"

// SegmentKey returns the composite cache key for one segment of a message.
func SegmentKey(messageID string, index int) string {
	return fmt.Sprintf("%s%s%d", messageID, keySeparator, index)
}

// ParseSegmentKey splits a composite segment key back into its message id
// and segment index. The separator is matched from the right so message ids
// containing "_part_" still round-trip.
func ParseSegmentKey(key string) (messageID string, index int, err error) {
	at := strings.LastIndex(key, keySeparator)
	if at < 0 {
		return "", 0, fmt.Errorf("malformed segment key %q", key)
	}
	index, err = strconv.Atoi(key[at+len(keySeparator):])
	if err != nil || index < 0 {
		return "", 0, fmt.Errorf("malformed segment index in key %q", key)
	}
	return key[:at], index, nil
}
