package pagination

import (
	"context"
	"fmt"
)

// MaxPages bounds how many provider pages Drain will request.
const MaxPages = 50

// Page is one page returned by a provider list call.
type Page[T any] struct {
	Items      []T
	HasMore    bool
	NextCursor string
}

// PageFunc fetches the page that starts after cursor. The first call receives "".
type PageFunc[T any] func(ctx context.Context, cursor string) (Page[T], error)

// Drain follows cursors until the provider reports no more data, returns an
// empty page, or MaxPages calls have been made.
func Drain[T any](ctx context.Context, fetch PageFunc[T]) ([]T, error) {
	var (
		out    []T
		cursor string
	)
	for page := 1; page <= MaxPages; page++ {
		if err := ctx.Err(); err != nil {
			return out, err
		}
		res, err := fetch(ctx, cursor)
		if err != nil {
			return out, fmt.Errorf("fetch page %d: %w", page, err)
		}
		if len(res.Items) == 0 {
			break
		}
		out = append(out, res.Items...)
		if !res.HasMore || res.NextCursor == "" {
			break
		}
		cursor = res.NextCursor
	}
	return out, nil
}
