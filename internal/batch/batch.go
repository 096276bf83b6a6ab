// Package batch splits bulk writes into fixed-size pages so one bad page
// cannot take down the rest of a flush.
package batch

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"
)

// DefaultPageSize is used when a caller passes a non-positive page size
const DefaultPageSize = 1000

// Report summarizes a paged write
type Report struct {
	Pages       int `json:"pages"`
	FailedPages int `json:"failed_pages"`
	Written     int `json:"written"`
	Failed      int `json:"failed"`

	errs []error
}

// Add records the outcome of one page of n rows
func (r *Report) Add(n int, err error) {
	r.Pages++
	if err != nil {
		r.FailedPages++
		r.Failed += n
		r.errs = append(r.errs, fmt.Errorf("page %d: %w", r.Pages, err))
		return
	}
	r.Written += n
}

// Err joins every page failure, or returns nil when all pages succeeded
func (r *Report) Err() error {
	return errors.Join(r.errs...)
}

// Complete reports whether every page was written and none was cut short
func (r *Report) Complete() bool {
	return len(r.errs) == 0
}

// Pages splits items into consecutive pages of at most size elements
func Pages[T any](items []T, size int) [][]T {
	if size <= 0 {
		size = DefaultPageSize
	}
	pages := make([][]T, 0, (len(items)+size-1)/size)
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		pages = append(pages, items[start:end])
	}
	return pages
}

// Write hands items to fn one page at a time. A failed page is logged and
// recorded and the remaining pages are still attempted. Writing stops early
// only when ctx is cancelled.
func Write[T any](ctx context.Context, kind string, items []T, size int, fn func(ctx context.Context, page []T) error) Report {
	var report Report

	for _, page := range Pages(items, size) {
		if err := ctx.Err(); err != nil {
			report.errs = append(report.errs, fmt.Errorf("%s flush interrupted: %w", kind, err))
			break
		}

		err := fn(ctx, page)
		report.Add(len(page), err)
		if err != nil {
			log.Error().
				Err(err).
				Str("kind", kind).
				Int("page", report.Pages).
				Int("rows", len(page)).
				Msg("Failed to write page, continuing with next page")
		}
	}

	return report
}
