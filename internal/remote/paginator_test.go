package remote

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

// pagedSource serves n pages of m items and counts fetches per page.
type pagedSource struct {
	pages, perPage int
	fetches        map[int]int
}

func newPagedSource(pages, perPage int) *pagedSource {
	return &pagedSource{pages: pages, perPage: perPage, fetches: make(map[int]int)}
}

func (s *pagedSource) fetch(_ context.Context, page, size int) ([]Item, int, error) {
	s.fetches[page]++
	if page > s.pages {
		return nil, s.pages, nil
	}
	items := make([]Item, s.perPage)
	for i := range items {
		items[i] = Item{"id": fmt.Sprintf("%d-%d", page, i)}
	}
	return items, s.pages, nil
}

func TestPaginator_FlattensPagesInOrder(t *testing.T) {
	cases := []struct{ pages, perPage int }{
		{0, 3},
		{1, 1},
		{1, 5},
		{3, 2},
		{5, 4},
	}
	for _, tc := range cases {
		t.Run(fmt.Sprintf("%dx%d", tc.pages, tc.perPage), func(t *testing.T) {
			src := newPagedSource(tc.pages, tc.perPage)
			p := NewPaginator(src.fetch, tc.perPage)

			var got []string
			err := Walk(context.Background(), p, func(it Item) error {
				got = append(got, it["id"].(string))
				return nil
			})
			if err != nil {
				t.Fatalf("Walk() error = %v", err)
			}

			if len(got) != tc.pages*tc.perPage {
				t.Fatalf("got %d items, want %d", len(got), tc.pages*tc.perPage)
			}
			i := 0
			for page := 1; page <= tc.pages; page++ {
				for item := 0; item < tc.perPage; item++ {
					want := fmt.Sprintf("%d-%d", page, item)
					if got[i] != want {
						t.Fatalf("item %d = %s, want %s", i, got[i], want)
					}
					i++
				}
			}
			for page, n := range src.fetches {
				if n != 1 {
					t.Errorf("page %d fetched %d times, want once", page, n)
				}
			}
		})
	}
}

func TestPaginator_ValidBeforeAndAfterFirstFetch(t *testing.T) {
	src := newPagedSource(2, 1)
	p := NewPaginator(src.fetch, 1)

	if _, known := p.TotalPages(); known {
		t.Fatal("total should be unknown before the first fetch")
	}
	// Unknown total: any positive position is valid
	if err := p.Move(10); err != nil {
		t.Fatalf("Move(10) before fetch error = %v", err)
	}
	if err := p.Move(1); err != nil {
		t.Fatal(err)
	}

	if _, err := p.Current(context.Background()); err != nil {
		t.Fatal(err)
	}
	total, known := p.TotalPages()
	if !known || total != 2 {
		t.Errorf("TotalPages() = %d, %v; want 2, true", total, known)
	}

	err := p.Move(3)
	if !errors.Is(err, ErrInvalidPage) {
		t.Errorf("Move(3) error = %v, want ErrInvalidPage", err)
	}
	if p.Position() != 1 {
		t.Errorf("Position() = %d after failed Move, want 1", p.Position())
	}
	if err := p.Move(0); !errors.Is(err, ErrInvalidPage) {
		t.Errorf("Move(0) error = %v, want ErrInvalidPage", err)
	}
}

func TestPaginator_CachesPages(t *testing.T) {
	src := newPagedSource(3, 2)
	p := NewPaginator(src.fetch, 2)
	ctx := context.Background()

	p.Current(ctx)
	p.Current(ctx)
	p.Move(3)
	p.Current(ctx)
	p.Move(1)
	p.Current(ctx)

	if src.fetches[1] != 1 || src.fetches[3] != 1 || src.fetches[2] != 0 {
		t.Errorf("fetches = %v, want pages 1 and 3 once each", src.fetches)
	}
}

func TestPaginator_FetchError(t *testing.T) {
	boom := errors.New("remote down")
	p := NewPaginator(func(context.Context, int, int) ([]Item, int, error) {
		return nil, 0, boom
	}, 10)

	err := Walk(context.Background(), p, func(Item) error { return nil })
	if !errors.Is(err, boom) {
		t.Errorf("Walk() error = %v, want wrapped fetch error", err)
	}
	if _, known := p.TotalPages(); known {
		t.Error("a failed fetch must not make the total known")
	}
}

func TestWalk_SliceAndNil(t *testing.T) {
	n := 0
	count := func(Item) error { n++; return nil }

	if err := Walk(context.Background(), nil, count); err != nil || n != 0 {
		t.Fatalf("Walk(nil) = %v, %d items", err, n)
	}
	if err := Walk(context.Background(), NewSlice([]Item{{}, {}, {}}), count); err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Errorf("Walk(slice) visited %d items, want 3", n)
	}
}

func TestWalk_StopsOnCallbackError(t *testing.T) {
	stop := errors.New("stop")
	seen := 0
	err := Walk(context.Background(), NewSlice([]Item{{}, {}}), func(Item) error {
		seen++
		return stop
	})
	if !errors.Is(err, stop) || seen != 1 {
		t.Errorf("Walk() = %v after %d items", err, seen)
	}
}

func TestPaged_PageFetchesClearPaginate(t *testing.T) {
	var calls []ListOptions
	list := func(_ context.Context, o ListOptions) ([]Item, int, error) {
		calls = append(calls, o)
		return []Item{{"page": o.Page}}, 2, nil
	}

	// Paginated: every fetch is a single-page call
	it, err := Paged(context.Background(), ListOptions{Paginate: true}, 25, list)
	if err != nil {
		t.Fatal(err)
	}
	p, ok := it.(*Paginator)
	if !ok {
		t.Fatalf("Paged() = %T, want *Paginator", it)
	}
	if p.PageSize() != 25 {
		t.Errorf("PageSize() = %d, want default 25", p.PageSize())
	}
	Walk(context.Background(), it, func(Item) error { return nil })
	if len(calls) != 2 {
		t.Fatalf("got %d fetches, want 2", len(calls))
	}
	for i, c := range calls {
		if c.Paginate || c.Page != i+1 || c.Limit != 25 {
			t.Errorf("fetch %d options = %+v", i, c)
		}
	}

	// Not paginated: one call wrapped in a slice
	calls = nil
	it, _ = Paged(context.Background(), ListOptions{Limit: 5}, 25, list)
	if _, ok := it.(*Slice); !ok {
		t.Errorf("Paged() = %T, want *Slice", it)
	}
	if len(calls) != 1 || calls[0].Page != 0 {
		t.Errorf("calls = %+v", calls)
	}
}
