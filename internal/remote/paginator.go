package remote

import (
	"context"
	"fmt"
)

// Iterator is a cursor over the pages of a remote list.
type Iterator interface {
	// Valid reports whether the cursor points at a page that may exist.
	Valid() bool

	// Current returns the items of the page under the cursor.
	Current(ctx context.Context) ([]Item, error)

	// Next advances the cursor by one page.
	Next()
}

// PageFetcher fetches one page (1-based) of at most size items and reports
// the total number of pages.
type PageFetcher func(ctx context.Context, page, size int) (items []Item, totalPages int, err error)

// Paginator fetches pages lazily and caches every page it fetched for its
// own lifetime.
type Paginator struct {
	fetch    PageFetcher
	pageSize int
	position int
	total    int
	known    bool
	pages    map[int][]Item
}

var _ Iterator = (*Paginator)(nil)

// NewPaginator returns a paginator positioned at page 1. The total page
// count is unknown until the first fetch.
func NewPaginator(fetch PageFetcher, pageSize int) *Paginator {
	return &Paginator{
		fetch:    fetch,
		pageSize: pageSize,
		position: 1,
		pages:    make(map[int][]Item),
	}
}

// Current returns the page under the cursor, fetching it on first access.
func (p *Paginator) Current(ctx context.Context) ([]Item, error) {
	if items, ok := p.pages[p.position]; ok {
		return items, nil
	}
	items, total, err := p.fetch(ctx, p.position, p.pageSize)
	if err != nil {
		return nil, fmt.Errorf("fetch page %d: %w", p.position, err)
	}
	p.pages[p.position] = items
	p.total = total
	p.known = true
	return items, nil
}

// Next advances the cursor by one page.
func (p *Paginator) Next() {
	p.position++
}

// Valid reports whether the cursor position can hold a page.
func (p *Paginator) Valid() bool {
	return p.validAt(p.position)
}

func (p *Paginator) validAt(page int) bool {
	if page < 1 {
		return false
	}
	if p.known && page > p.total {
		return false
	}
	return true
}

// Move jumps to a page. The cursor is left unchanged on ErrInvalidPage.
func (p *Paginator) Move(page int) error {
	if !p.validAt(page) {
		return fmt.Errorf("%w: %d", ErrInvalidPage, page)
	}
	p.position = page
	return nil
}

// TotalPages returns the total page count and whether it is known yet.
func (p *Paginator) TotalPages() (int, bool) {
	return p.total, p.known
}

// Position returns the page under the cursor.
func (p *Paginator) Position() int {
	return p.position
}

// PageSize returns the page size passed to every fetch.
func (p *Paginator) PageSize() int {
	return p.pageSize
}

// Slice is a single-page iterator over items already in memory.
type Slice struct {
	items []Item
	done  bool
}

var _ Iterator = (*Slice)(nil)

// NewSlice wraps items as a one-page iterator.
func NewSlice(items []Item) *Slice {
	return &Slice{items: items}
}

func (s *Slice) Valid() bool { return !s.done }

func (s *Slice) Current(context.Context) ([]Item, error) { return s.items, nil }

func (s *Slice) Next() { s.done = true }

// Walk calls fn for every item of every page, in page then item order.
// It stops at the first error from a fetch or from fn.
func Walk(ctx context.Context, it Iterator, fn func(Item) error) error {
	if it == nil {
		return nil
	}
	for ; it.Valid(); it.Next() {
		if err := ctx.Err(); err != nil {
			return err
		}
		items, err := it.Current(ctx)
		if err != nil {
			return err
		}
		for _, item := range items {
			if err := fn(item); err != nil {
				return err
			}
		}
	}
	return nil
}

// ListFetcher lists a single page for Paged.
type ListFetcher func(ctx context.Context, opts ListOptions) (items []Item, totalPages int, err error)

// Paged builds the iterator a backend returns from List. When opts asks for
// pagination it returns a Paginator whose fetches call list for one page
// with Paginate cleared, so a page fetch never builds another iterator.
// Otherwise it lists once and wraps the result in a Slice.
func Paged(ctx context.Context, opts ListOptions, defaultSize int, list ListFetcher) (Iterator, error) {
	size := opts.Limit
	if size <= 0 {
		size = defaultSize
	}
	if !opts.Paginate {
		items, _, err := list(ctx, opts)
		if err != nil {
			return nil, err
		}
		return NewSlice(items), nil
	}
	return NewPaginator(func(ctx context.Context, page, size int) ([]Item, int, error) {
		pageOpts := opts
		pageOpts.Paginate = false
		pageOpts.Page = page
		pageOpts.Limit = size
		return list(ctx, pageOpts)
	}, size), nil
}
