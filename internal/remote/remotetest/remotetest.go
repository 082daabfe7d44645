// Package remotetest provides an in-memory remote client for tests.
package remotetest

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/hyperengineering/syncbridge/internal/remote"
	"github.com/hyperengineering/syncbridge/internal/types"
)

// Client is an in-memory remote.Client. Items are kept in insertion order
// and filtered on ChangedField when a window is given.
type Client struct {
	IDField      string
	ChangedField string
	Paging       bool
	PageSize     int

	// ListErr, when set, is returned by List.
	ListErr error

	// OnList, when set, runs at the start of every List call.
	OnList func()

	mu       sync.Mutex
	items    []remote.Item
	nextID   int
	Lists    []types.Filters
	Fetches  []int
	Creates  []map[string]any
	Updates  map[string]map[string]any
	GetCalls []string
}

var _ remote.Client = (*Client)(nil)

// New returns an empty client keyed on idField.
func New(idField, changedField string) *Client {
	return &Client{
		IDField:      idField,
		ChangedField: changedField,
		PageSize:     2,
		Updates:      make(map[string]map[string]any),
	}
}

// Add appends remote items.
func (c *Client) Add(items ...remote.Item) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = append(c.items, items...)
}

func (c *Client) SupportsPaging() bool { return c.Paging }

func (c *Client) List(ctx context.Context, filters types.Filters, opts remote.ListOptions) (remote.Iterator, error) {
	if c.OnList != nil {
		c.OnList()
	}
	c.mu.Lock()
	c.Lists = append(c.Lists, filters)
	err := c.ListErr
	c.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if !c.Paging {
		opts.Paginate = false
	}
	return remote.Paged(ctx, opts, c.PageSize, func(_ context.Context, o remote.ListOptions) ([]remote.Item, int, error) {
		return c.page(filters, o)
	})
}

func (c *Client) page(filters types.Filters, o remote.ListOptions) ([]remote.Item, int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var matched []remote.Item
	for _, it := range c.items {
		if c.inWindow(it, filters) {
			matched = append(matched, it)
		}
	}
	if o.Page == 0 {
		return matched, 1, nil
	}
	c.Fetches = append(c.Fetches, o.Page)

	size := o.Limit
	total := (len(matched) + size - 1) / size
	start := (o.Page - 1) * size
	if start >= len(matched) {
		return nil, total, nil
	}
	end := start + size
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], total, nil
}

func (c *Client) inWindow(it remote.Item, f types.Filters) bool {
	if f.ChangedStart == nil && f.ChangedEnd == nil {
		return true
	}
	changed, err := strconv.ParseInt(fmt.Sprint(it[c.ChangedField]), 10, 64)
	if err != nil {
		return true
	}
	if f.ChangedStart != nil && changed < *f.ChangedStart {
		return false
	}
	if f.ChangedEnd != nil && changed > *f.ChangedEnd {
		return false
	}
	return true
}

func (c *Client) Get(_ context.Context, id string) (remote.Item, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.GetCalls = append(c.GetCalls, id)
	for _, it := range c.items {
		if types.IDString(it[c.IDField]) == id {
			return it, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", remote.ErrNotFound, id)
}

func (c *Client) Create(_ context.Context, fields map[string]any) (remote.Item, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Creates = append(c.Creates, fields)
	c.nextID++
	item := remote.Item{}
	for k, v := range fields {
		item[k] = v
	}
	item[c.IDField] = "r" + strconv.Itoa(c.nextID)
	c.items = append(c.items, item)
	return item, nil
}

func (c *Client) Update(_ context.Context, id string, fields map[string]any) (remote.Item, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Updates[id] = fields
	for _, it := range c.items {
		if types.IDString(it[c.IDField]) == id {
			for k, v := range fields {
				it[k] = v
			}
			return it, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", remote.ErrNotFound, id)
}

// IDs returns the IDs of every stored item, sorted.
func (c *Client) IDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.items))
	for _, it := range c.items {
		out = append(out, types.IDString(it[c.IDField]))
	}
	sort.Strings(out)
	return out
}
