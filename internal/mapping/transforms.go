package mapping

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/hyperengineering/syncbridge/internal/types"
)

// ImportTransform imports one mapped field from a remote entity onto a
// local entity.
type ImportTransform func(ctx context.Context, remote map[string]any, local types.Entity, field types.FieldMapping) error

// ExportTransform computes the remote value of one mapped field. remoteID is
// empty when the export creates a new remote entity.
type ExportTransform func(ctx context.Context, local types.Entity, remoteID string, field types.FieldMapping) (any, error)

// Transforms is a registry of named field transforms. Definitions reference
// transforms by name and are checked against the registry when loaded.
type Transforms struct {
	mu      sync.RWMutex
	imports map[string]ImportTransform
	exports map[string]ExportTransform
}

// NewTransforms returns a registry holding the built-in transforms.
func NewTransforms() *Transforms {
	t := &Transforms{
		imports: make(map[string]ImportTransform),
		exports: make(map[string]ExportTransform),
	}
	t.RegisterImport("datetime", importDatetime)
	t.RegisterExport("datetime", exportDatetime)
	t.RegisterImport("split_comma", importSplitComma)
	t.RegisterExport("join_comma", exportJoinComma)
	return t
}

// RegisterImport registers an import transform, replacing any with the same name.
func (t *Transforms) RegisterImport(name string, fn ImportTransform) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.imports[name] = fn
}

// RegisterExport registers an export transform, replacing any with the same name.
func (t *Transforms) RegisterExport(name string, fn ExportTransform) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.exports[name] = fn
}

func (t *Transforms) HasImportTransform(name string) bool {
	_, ok := t.importTransform(name)
	return ok
}

func (t *Transforms) HasExportTransform(name string) bool {
	_, ok := t.exportTransform(name)
	return ok
}

// Names returns the registered import and export transform names, sorted.
func (t *Transforms) Names() (imports, exports []string) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	for n := range t.imports {
		imports = append(imports, n)
	}
	for n := range t.exports {
		exports = append(exports, n)
	}
	sort.Strings(imports)
	sort.Strings(exports)
	return imports, exports
}

func (t *Transforms) importTransform(name string) (ImportTransform, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	fn, ok := t.imports[name]
	return fn, ok
}

func (t *Transforms) exportTransform(name string) (ExportTransform, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	fn, ok := t.exports[name]
	return fn, ok
}

// importDatetime parses a remote datetime string into a Unix timestamp.
func importDatetime(_ context.Context, remote map[string]any, local types.Entity, f types.FieldMapping) error {
	v, ok := remote[f.RemoteName]
	if !ok {
		return nil
	}
	if v == nil {
		return local.Set(f.MachineName, nil)
	}
	ts, err := ParseDatetime(fmt.Sprint(v))
	if err != nil {
		return err
	}
	return local.Set(f.MachineName, ts)
}

// exportDatetime formats a Unix timestamp field as RFC 3339 in UTC.
func exportDatetime(_ context.Context, local types.Entity, _ string, f types.FieldMapping) (any, error) {
	fv, err := local.Get(f.MachineName)
	if err != nil {
		return nil, err
	}
	if fv.IsEmpty() || fv.First() == nil {
		return nil, nil
	}
	ts, err := ParseTimestamp(fv.First())
	if err != nil {
		return nil, err
	}
	return FormatDatetime(ts), nil
}

// importSplitComma splits a comma separated remote string into items.
func importSplitComma(_ context.Context, remote map[string]any, local types.Entity, f types.FieldMapping) error {
	v, ok := remote[f.RemoteName]
	if !ok {
		return nil
	}
	s, _ := v.(string)
	var items []any
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			items = append(items, part)
		}
	}
	if len(items) == 0 {
		return local.Set(f.MachineName, nil)
	}
	return local.Set(f.MachineName, items)
}

// exportJoinComma joins the items of a field with commas.
func exportJoinComma(_ context.Context, local types.Entity, _ string, f types.FieldMapping) (any, error) {
	fv, err := local.Get(f.MachineName)
	if err != nil {
		return nil, err
	}
	parts := make([]string, 0, len(fv.Items))
	for _, item := range fv.Items {
		parts = append(parts, fmt.Sprint(item))
	}
	return strings.Join(parts, ","), nil
}
