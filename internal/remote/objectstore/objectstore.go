// Package objectstore is a remote client backend that keeps remote entities
// as JSON objects in an S3-compatible bucket, one object per entity:
//
//	<prefix><id>.json
//
// A binding of type "objectstore" takes the options bucket (required) and
// prefix. Endpoint and credentials come from the service configuration.
// The changed window filters on each object's last-modified time.
package objectstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/oklog/ulid/v2"

	"github.com/hyperengineering/syncbridge/internal/config"
	"github.com/hyperengineering/syncbridge/internal/remote"
	"github.com/hyperengineering/syncbridge/internal/types"
)

// BindingType is the binding type served by this backend.
const BindingType = "objectstore"

// DefaultPageSize is used when a list call gives no limit.
const DefaultPageSize = 100

// ErrNotConfigured is returned when no object store endpoint is configured.
var ErrNotConfigured = errors.New("object store not configured")

// objectInfo is the part of a listed object the backend needs.
type objectInfo struct {
	Key          string
	LastModified time.Time
}

// bucketClient defines the minimal bucket operations used by Client.
// This interface enables testing with an in-memory bucket.
type bucketClient interface {
	ListObjects(ctx context.Context, bucket, prefix string) ([]objectInfo, error)
	GetObject(ctx context.Context, bucket, key string) ([]byte, error)
	PutObject(ctx context.Context, bucket, key string, data []byte) error
}

// errNoSuchKey is returned by bucketClient.GetObject for a missing key.
var errNoSuchKey = errors.New("no such key")

// minioBucket wraps *minio.Client to satisfy bucketClient.
type minioBucket struct {
	client *minio.Client
}

func (m *minioBucket) ListObjects(ctx context.Context, bucket, prefix string) ([]objectInfo, error) {
	var out []objectInfo
	for obj := range m.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		out = append(out, objectInfo{Key: obj.Key, LastModified: obj.LastModified})
	}
	return out, nil
}

func (m *minioBucket) GetObject(ctx context.Context, bucket, key string) ([]byte, error) {
	obj, err := m.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, errNoSuchKey
		}
		return nil, err
	}
	return data, nil
}

func (m *minioBucket) PutObject(ctx context.Context, bucket, key string, data []byte) error {
	_, err := m.client.PutObject(ctx, bucket, key, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	return err
}

// Client stores the remote entities of one synchronization in a bucket.
type Client struct {
	bucket       bucketClient
	bucketName   string
	prefix       string
	idField      string
	changedField string
	changedFmt   string
	now          func() time.Time
}

var _ remote.Client = (*Client)(nil)

// Factory returns a remote.Factory connecting to the configured endpoint.
// The MinIO client is created once and shared by every binding.
func Factory(cfg config.ObjectStoreConfig) (remote.Factory, error) {
	if cfg.Endpoint == "" {
		return func(*types.Sync, types.ClientBinding) (any, error) {
			return nil, ErrNotConfigured
		}, nil
	}
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("create S3 client: %w", err)
	}
	bc := &minioBucket{client: mc}
	return func(s *types.Sync, b types.ClientBinding) (any, error) {
		return newClient(bc, s, b)
	}, nil
}

func newClient(bc bucketClient, s *types.Sync, b types.ClientBinding) (*Client, error) {
	bucket, _ := b.Options["bucket"].(string)
	if bucket == "" {
		return nil, fmt.Errorf("objectstore: bucket option is required")
	}
	prefix, _ := b.Options["prefix"].(string)
	return &Client{
		bucket:       bc,
		bucketName:   bucket,
		prefix:       prefix,
		idField:      s.RemoteResource.IDField,
		changedField: s.RemoteResource.ChangedField.Name,
		changedFmt:   s.RemoteResource.ChangedField.Format,
		now:          time.Now,
	}, nil
}

func (c *Client) SupportsPaging() bool {
	return true
}

// List returns the entities whose objects changed inside the window,
// ordered by key.
func (c *Client) List(ctx context.Context, filters types.Filters, opts remote.ListOptions) (remote.Iterator, error) {
	keys, err := c.matchingKeys(ctx, filters)
	if err != nil {
		return nil, err
	}
	return remote.Paged(ctx, opts, DefaultPageSize, func(ctx context.Context, o remote.ListOptions) ([]remote.Item, int, error) {
		page := keys
		total := 1
		if o.Page > 0 {
			total = (len(keys) + o.Limit - 1) / o.Limit
			start := (o.Page - 1) * o.Limit
			if start > len(keys) {
				start = len(keys)
			}
			end := start + o.Limit
			if end > len(keys) {
				end = len(keys)
			}
			page = keys[start:end]
		}
		items := make([]remote.Item, 0, len(page))
		for _, k := range page {
			item, err := c.read(ctx, k)
			if err != nil {
				return nil, 0, err
			}
			items = append(items, item)
		}
		return items, total, nil
	})
}

func (c *Client) matchingKeys(ctx context.Context, f types.Filters) ([]string, error) {
	objects, err := c.bucket.ListObjects(ctx, c.bucketName, c.prefix)
	if err != nil {
		return nil, fmt.Errorf("%w: objectstore: list %s/%s: %w", remote.ErrRemote, c.bucketName, c.prefix, err)
	}
	var keys []string
	for _, o := range objects {
		if !strings.HasSuffix(o.Key, ".json") {
			continue
		}
		changed := o.LastModified.Unix()
		if f.ChangedStart != nil && changed < *f.ChangedStart {
			continue
		}
		if f.ChangedEnd != nil && changed > *f.ChangedEnd {
			continue
		}
		keys = append(keys, o.Key)
	}
	sort.Strings(keys)
	return keys, nil
}

// Get reads one entity.
func (c *Client) Get(ctx context.Context, id string) (remote.Item, error) {
	return c.read(ctx, c.key(id))
}

// Create writes a new entity. The ID field is kept when present and
// generated otherwise.
func (c *Client) Create(ctx context.Context, fields map[string]any) (remote.Item, error) {
	item := make(remote.Item, len(fields)+2)
	for k, v := range fields {
		item[k] = v
	}
	id := types.IDString(item[c.idField])
	if id == "" {
		id = ulid.Make().String()
		item[c.idField] = id
	}
	return c.write(ctx, id, item)
}

// Update merges fields into an existing entity.
func (c *Client) Update(ctx context.Context, id string, fields map[string]any) (remote.Item, error) {
	item, err := c.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	for k, v := range fields {
		item[k] = v
	}
	item[c.idField] = id
	return c.write(ctx, id, item)
}

func (c *Client) key(id string) string {
	return c.prefix + id + ".json"
}

func (c *Client) read(ctx context.Context, key string) (remote.Item, error) {
	data, err := c.bucket.GetObject(ctx, c.bucketName, key)
	if errors.Is(err, errNoSuchKey) {
		return nil, fmt.Errorf("%w: %s", remote.ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: objectstore: get %s: %w", remote.ErrRemote, key, err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var item remote.Item
	if err := dec.Decode(&item); err != nil {
		return nil, fmt.Errorf("objectstore: decode %s: %w", key, err)
	}
	return item, nil
}

// write stamps the changed field and stores the entity.
func (c *Client) write(ctx context.Context, id string, item remote.Item) (remote.Item, error) {
	now := c.now().UTC()
	if c.changedField != "" {
		if c.changedFmt == types.ChangedFormatString {
			item[c.changedField] = now.Format(time.RFC3339)
		} else {
			item[c.changedField] = now.Unix()
		}
	}
	data, err := json.Marshal(item)
	if err != nil {
		return nil, fmt.Errorf("objectstore: encode %s: %w", id, err)
	}
	if err := c.bucket.PutObject(ctx, c.bucketName, c.key(id), data); err != nil {
		return nil, fmt.Errorf("%w: objectstore: put %s: %w", remote.ErrRemote, id, err)
	}
	return item, nil
}
