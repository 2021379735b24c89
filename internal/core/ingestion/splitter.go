package ingestion

import (
	"strings"
)

// SplitText breaks source text into overlap-free segments of roughly
// targetTokens each. Lines are accumulated until the estimate crosses the
// target; a single line longer than the target is hard-split so no segment
// grows unbounded. Segment order follows source order.
func SplitText(text string, targetTokens int) []string {
	if targetTokens <= 0 {
		targetTokens = 400
	}
	maxChars := targetTokens * 4

	var (
		segments []string
		buf      []string
		tokSum   int
	)

	flush := func() {
		if tokSum == 0 {
			return
		}
		segments = append(segments, strings.Join(buf, "\n"))
		buf = buf[:0]
		tokSum = 0
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		// Oversized lines are split on their own so a single run-on
		// paragraph can't blow past the segment bound.
		for len([]rune(line)) > maxChars {
			flush()
			runes := []rune(line)
			segments = append(segments, string(runes[:maxChars]))
			line = string(runes[maxChars:])
		}
		if line == "" {
			continue
		}

		buf = append(buf, line)
		tokSum += approxTokens(line)
		if tokSum >= targetTokens {
			flush()
		}
	}
	flush()

	return segments
}

// approxTokens is a cheap token estimator (~4 chars ≈ 1 token).
func approxTokens(s string) int {
	n := len([]rune(s))
	if n <= 0 {
		return 0
	}
	return (n + 3) / 4
}
