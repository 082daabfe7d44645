// Package rest is a remote client backend for JSON-over-HTTP resources.
//
// A binding of type "rest" is configured through its options:
//
//	base_url          required, e.g. https://crm.example.com/api
//	path              collection path, e.g. /users
//	items_key         response key holding the item list; empty for a bare array
//	total_pages_key   response key holding the page count; optional
//	page_param        query parameter for the page number (default "page")
//	limit_param       query parameter for the page size (default "limit")
//	changed_start_param, changed_end_param
//	                  query parameters for the changed window
//	                  (defaults "changed_start", "changed_end")
//	update_method     HTTP method for updates (default PUT)
//	headers           map of static request headers
//	paging            false disables pagination (default true)
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hyperengineering/syncbridge/internal/remote"
	"github.com/hyperengineering/syncbridge/internal/types"
)

// BindingType is the binding type served by this backend.
const BindingType = "rest"

// DefaultPageSize is used when a list call gives no limit.
const DefaultPageSize = 50

// Options configures a Client.
type Options struct {
	BaseURL           string
	Path              string
	ItemsKey          string
	TotalPagesKey     string
	PageParam         string
	LimitParam        string
	ChangedStartParam string
	ChangedEndParam   string
	UpdateMethod      string
	Headers           map[string]string
	Paging            bool
}

// Client talks to one REST collection.
type Client struct {
	opts Options
	http *http.Client
}

var _ remote.Client = (*Client)(nil)

// New creates a client. A nil httpClient uses one with a 30s timeout.
func New(opts Options, httpClient *http.Client) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, fmt.Errorf("rest: base_url is required")
	}
	if _, err := url.Parse(opts.BaseURL); err != nil {
		return nil, fmt.Errorf("rest: invalid base_url: %w", err)
	}
	if opts.PageParam == "" {
		opts.PageParam = "page"
	}
	if opts.LimitParam == "" {
		opts.LimitParam = "limit"
	}
	if opts.ChangedStartParam == "" {
		opts.ChangedStartParam = "changed_start"
	}
	if opts.ChangedEndParam == "" {
		opts.ChangedEndParam = "changed_end"
	}
	if opts.UpdateMethod == "" {
		opts.UpdateMethod = http.MethodPut
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Client{opts: opts, http: httpClient}, nil
}

// Factory returns a remote.Factory building clients from binding options.
func Factory(httpClient *http.Client) remote.Factory {
	return func(_ *types.Sync, b types.ClientBinding) (any, error) {
		opts, err := ParseOptions(b.Options)
		if err != nil {
			return nil, err
		}
		return New(opts, httpClient)
	}
}

// ParseOptions reads Options from a binding's option map.
func ParseOptions(m map[string]any) (Options, error) {
	opts := Options{Paging: true}
	str := func(key string) string {
		if v, ok := m[key]; ok {
			return fmt.Sprint(v)
		}
		return ""
	}
	opts.BaseURL = strings.TrimRight(str("base_url"), "/")
	opts.Path = str("path")
	opts.ItemsKey = str("items_key")
	opts.TotalPagesKey = str("total_pages_key")
	opts.PageParam = str("page_param")
	opts.LimitParam = str("limit_param")
	opts.ChangedStartParam = str("changed_start_param")
	opts.ChangedEndParam = str("changed_end_param")
	opts.UpdateMethod = strings.ToUpper(str("update_method"))

	if v, ok := m["paging"]; ok {
		b, ok := v.(bool)
		if !ok {
			return opts, fmt.Errorf("rest: paging must be a boolean")
		}
		opts.Paging = b
	}
	if v, ok := m["headers"]; ok {
		hm, ok := v.(map[string]any)
		if !ok {
			return opts, fmt.Errorf("rest: headers must be a map")
		}
		opts.Headers = make(map[string]string, len(hm))
		for k, hv := range hm {
			opts.Headers[k] = fmt.Sprint(hv)
		}
	}
	return opts, nil
}

func (c *Client) SupportsPaging() bool {
	return c.opts.Paging
}

// List lists the collection, one page per request when paginating.
func (c *Client) List(ctx context.Context, filters types.Filters, opts remote.ListOptions) (remote.Iterator, error) {
	if !c.opts.Paging {
		opts.Paginate = false
	}
	return remote.Paged(ctx, opts, DefaultPageSize, func(ctx context.Context, o remote.ListOptions) ([]remote.Item, int, error) {
		return c.listPage(ctx, filters, o)
	})
}

func (c *Client) listPage(ctx context.Context, filters types.Filters, o remote.ListOptions) ([]remote.Item, int, error) {
	q := url.Values{}
	if filters.ChangedStart != nil {
		q.Set(c.opts.ChangedStartParam, strconv.FormatInt(*filters.ChangedStart, 10))
	}
	if filters.ChangedEnd != nil {
		q.Set(c.opts.ChangedEndParam, strconv.FormatInt(*filters.ChangedEnd, 10))
	}
	for k, v := range filters.Extra {
		q.Set(k, fmt.Sprint(v))
	}
	for k, v := range o.Parameters {
		q.Set(k, fmt.Sprint(v))
	}
	if o.Page > 0 {
		q.Set(c.opts.PageParam, strconv.Itoa(o.Page))
	}
	if o.Limit > 0 {
		q.Set(c.opts.LimitParam, strconv.Itoa(o.Limit))
	}

	var body any
	if err := c.do(ctx, http.MethodGet, c.collectionURL(q), nil, &body); err != nil {
		return nil, 0, err
	}

	items, total, err := c.decodeList(body)
	if err != nil {
		return nil, 0, err
	}
	if total < 0 {
		total = inferTotal(o.Page, o.Limit, len(items))
	}
	return items, total, nil
}

// inferTotal guesses the page count when the response does not carry one:
// a full page means there may be another.
func inferTotal(page, limit, n int) int {
	if page <= 0 {
		return 1
	}
	if limit > 0 && n >= limit {
		return page + 1
	}
	return page
}

// decodeList extracts items and, when reported, the page count. A total of
// -1 means the response did not report one.
func (c *Client) decodeList(body any) ([]remote.Item, int, error) {
	total := -1
	raw := body
	if c.opts.ItemsKey != "" {
		obj, ok := body.(map[string]any)
		if !ok {
			return nil, 0, fmt.Errorf("rest: list response is not an object")
		}
		raw = obj[c.opts.ItemsKey]
		if c.opts.TotalPagesKey != "" {
			if v, ok := obj[c.opts.TotalPagesKey]; ok {
				n, err := strconv.Atoi(types.IDString(v))
				if err != nil {
					return nil, 0, fmt.Errorf("rest: %s is not a number: %v", c.opts.TotalPagesKey, v)
				}
				total = n
			}
		}
	}
	if raw == nil {
		return nil, total, nil
	}
	list, ok := raw.([]any)
	if !ok {
		return nil, 0, fmt.Errorf("rest: list response items are not an array")
	}
	items := make([]remote.Item, 0, len(list))
	for i, v := range list {
		item, ok := v.(map[string]any)
		if !ok {
			return nil, 0, fmt.Errorf("rest: list item %d is not an object", i)
		}
		items = append(items, item)
	}
	return items, total, nil
}

// Get fetches one entity.
func (c *Client) Get(ctx context.Context, id string) (remote.Item, error) {
	var item remote.Item
	if err := c.do(ctx, http.MethodGet, c.entityURL(id), nil, &item); err != nil {
		return nil, err
	}
	return item, nil
}

// Create posts a new entity to the collection.
func (c *Client) Create(ctx context.Context, fields map[string]any) (remote.Item, error) {
	var item remote.Item
	if err := c.do(ctx, http.MethodPost, c.collectionURL(nil), fields, &item); err != nil {
		return nil, err
	}
	return item, nil
}

// Update sends fields to an existing entity.
func (c *Client) Update(ctx context.Context, id string, fields map[string]any) (remote.Item, error) {
	var item remote.Item
	if err := c.do(ctx, c.opts.UpdateMethod, c.entityURL(id), fields, &item); err != nil {
		return nil, err
	}
	return item, nil
}

func (c *Client) collectionURL(q url.Values) string {
	u := c.opts.BaseURL + c.opts.Path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

func (c *Client) entityURL(id string) string {
	return c.opts.BaseURL + strings.TrimRight(c.opts.Path, "/") + "/" + url.PathEscape(id)
}

// do sends a JSON request and decodes a JSON response into out.
func (c *Client) do(ctx context.Context, method, u string, in, out any) error {
	var reqBody io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("rest: encode request: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return fmt.Errorf("rest: build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range c.opts.Headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: rest: %s %s: %w", remote.ErrRemote, method, u, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound && method == http.MethodGet && out != nil {
		if _, isItem := out.(*remote.Item); isItem {
			return fmt.Errorf("%w: %s", remote.ErrNotFound, u)
		}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%w: rest: %s %s: status %d: %s", remote.ErrRemote, method, u, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}

	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		if err == io.EOF {
			return nil
		}
		return fmt.Errorf("rest: decode response: %w", err)
	}
	return nil
}
