package db

import (
	"context"
	"fmt"
)

// WriteChunked splits items into groups of at most maxOpsPerCommit and calls
// commit once per group, in order. Each commit is atomic on its own; a
// cancelled write leaves a well-defined prefix of groups applied rather than
// a torn write. Reusable for any bulk-write path with a per-commit ceiling.
func WriteChunked[T any](ctx context.Context, items []T, maxOpsPerCommit int, commit func(context.Context, []T) error) error {
	if maxOpsPerCommit <= 0 {
		return fmt.Errorf("maxOpsPerCommit must be positive, got %d", maxOpsPerCommit)
	}
	for start := 0; start < len(items); start += maxOpsPerCommit {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := start + maxOpsPerCommit
		if end > len(items) {
			end = len(items)
		}
		if err := commit(ctx, items[start:end]); err != nil {
			return fmt.Errorf("commit batch [%d:%d]: %w", start, end, err)
		}
	}
	return nil
}
