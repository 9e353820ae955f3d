package speech

import "strings"

// DefaultWordsPerSegment bounds segment length when a message has no pinned
// words-per-segment value of its own.
const DefaultWordsPerSegment = 20

// Split partitions text into an ordered list of segments of at most maxWords
// whitespace-separated words each. It is pure and deterministic: identical
// input always yields the identical segmentation, so a segment's index is a
// stable identity as long as maxWords stays pinned for the message.
//
// Text containing at least one word never yields an empty result; text with
// fewer words than maxWords yields a single segment. A non-positive maxWords
// falls back to DefaultWordsPerSegment.
func Split(text string, maxWords int) []string {
	if maxWords <= 0 {
		maxWords = DefaultWordsPerSegment
	}

	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}

	segments := make([]string, 0, (len(words)+maxWords-1)/maxWords)
	for start := 0; start < len(words); start += maxWords {
		end := start + maxWords
		if end > len(words) {
			end = len(words)
		}
		segments = append(segments, strings.Join(words[start:end], " "))
	}
	return segments
}
