package ingestion

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitText_ShortTextSingleSegment(t *testing.T) {
	segments := SplitText("hello world", 100)
	require.Len(t, segments, 1)
	assert.Equal(t, "hello world", segments[0])
}

func TestSplitText_EmptyText(t *testing.T) {
	assert.Empty(t, SplitText("", 100))
	assert.Empty(t, SplitText("\n\n   \n", 100))
}

func TestSplitText_PreservesSourceOrder(t *testing.T) {
	lines := []string{
		strings.Repeat("a", 40),
		strings.Repeat("b", 40),
		strings.Repeat("c", 40),
		strings.Repeat("d", 40),
	}
	segments := SplitText(strings.Join(lines, "\n"), 20)

	joined := strings.Join(segments, "\n")
	assert.Equal(t, strings.Join(lines, "\n"), joined, "segments concatenate back to the source")
	for i := 1; i < len(segments); i++ {
		assert.Less(t, segments[i-1], segments[i])
	}
}

func TestSplitText_NoOverlap(t *testing.T) {
	text := strings.Repeat("word ", 500)
	segments := SplitText(text, 50)
	require.Greater(t, len(segments), 1)

	total := 0
	for _, s := range segments {
		total += len([]rune(s))
	}
	// Overlap would make the sum exceed the source length.
	assert.LessOrEqual(t, total, len([]rune(text)))
}

func TestSplitText_HardSplitsOversizedLine(t *testing.T) {
	line := strings.Repeat("x", 1000)
	segments := SplitText(line, 50) // 200 char bound

	require.Equal(t, 5, len(segments))
	for _, s := range segments {
		assert.LessOrEqual(t, len([]rune(s)), 200)
	}
	assert.Equal(t, line, strings.Join(segments, ""))
}

func TestSplitText_DeterministicForSameInput(t *testing.T) {
	text := strings.Repeat("menu item and price\n", 100)
	a := SplitText(text, 60)
	b := SplitText(text, 60)
	assert.Equal(t, a, b)
}
