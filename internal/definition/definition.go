// Package definition loads synchronization definitions from YAML and serves
// them by ID. Definitions are validated once at load time, including every
// transform callback they reference, and are read-only afterwards.
package definition

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hyperengineering/syncbridge/internal/types"
)

var (
	// ErrUnknownSync is returned for a synchronization ID that was never loaded.
	ErrUnknownSync = errors.New("unknown synchronization")

	// ErrInvalidDefinition wraps every load-time validation failure.
	ErrInvalidDefinition = errors.New("invalid synchronization definition")
)

// TransformChecker reports whether named field transforms exist.
type TransformChecker interface {
	HasImportTransform(name string) bool
	HasExportTransform(name string) bool
}

// Registry holds loaded synchronization definitions keyed by ID.
type Registry struct {
	syncs map[string]*types.Sync
}

// NewRegistry validates the definitions and indexes them by ID.
// A nil checker skips transform validation.
func NewRegistry(checker TransformChecker, syncs ...*types.Sync) (*Registry, error) {
	r := &Registry{syncs: make(map[string]*types.Sync, len(syncs))}
	for _, s := range syncs {
		applyDefaults(s)
		if err := Validate(s, checker); err != nil {
			return nil, err
		}
		if _, dup := r.syncs[s.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate id %q", ErrInvalidDefinition, s.ID)
		}
		r.syncs[s.ID] = s
	}
	return r, nil
}

// Load reads definitions from a YAML file or a directory of YAML files.
func Load(path string, checker TransformChecker) (*Registry, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat definitions path: %w", err)
	}

	files := []string{path}
	if info.IsDir() {
		files, err = yamlFiles(path)
		if err != nil {
			return nil, err
		}
	}

	var all []*types.Sync
	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return nil, fmt.Errorf("reading definitions file: %w", err)
		}
		syncs, err := Parse(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", f, err)
		}
		all = append(all, syncs...)
	}
	return NewRegistry(checker, all...)
}

// yamlFiles lists *.yaml and *.yml files in dir, sorted by name.
func yamlFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("reading definitions directory: %w", err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if ext == ".yaml" || ext == ".yml" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// document is one YAML document: either a single definition or a list
// under "syncs".
type document struct {
	types.Sync `yaml:",inline"`
	Syncs      []*types.Sync `yaml:"syncs"`
}

// Parse decodes one or more YAML documents into definitions.
func Parse(data []byte) ([]*types.Sync, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	var out []*types.Sync
	for {
		var doc document
		err := dec.Decode(&doc)
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parsing definitions: %w", err)
		}
		if len(doc.Syncs) > 0 {
			out = append(out, doc.Syncs...)
			continue
		}
		if doc.ID != "" {
			s := doc.Sync
			out = append(out, &s)
		}
	}
	return out, nil
}

// applyDefaults fills unset optional settings in place.
func applyDefaults(s *types.Sync) {
	if s.Operations == nil {
		s.Operations = make(map[types.Operation]types.OperationSettings)
	}
	if s.RemoteResource.ChangedField.Format == "" {
		s.RemoteResource.ChangedField.Format = types.ChangedFormatTimestamp
	}
	for i := range s.FieldMapping {
		s.FieldMapping[i] = s.FieldMapping[i].WithDefaults()
	}
}

// Validate checks a definition for configuration errors.
func Validate(s *types.Sync, checker TransformChecker) error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s: %s", ErrInvalidDefinition, s.ID, fmt.Sprintf(format, args...))
	}

	if s.ID == "" {
		return fmt.Errorf("%w: id is required", ErrInvalidDefinition)
	}
	if s.LocalEntity.Type == "" {
		return invalid("local_entity.type is required")
	}
	if s.LocalEntity.RemoteIDField == "" {
		return invalid("local_entity.remote_id_field is required")
	}
	if s.LocalEntity.RemoteChangedField == "" {
		return invalid("local_entity.remote_changed_field is required")
	}
	if s.RemoteResource.IDField == "" {
		return invalid("remote_resource.id_field is required")
	}
	if s.RemoteResource.ChangedField.Name == "" {
		return invalid("remote_resource.changed_field.name is required")
	}
	switch s.RemoteResource.ChangedField.Format {
	case types.ChangedFormatTimestamp, types.ChangedFormatString:
	default:
		return invalid("unsupported changed_field.format %q", s.RemoteResource.ChangedField.Format)
	}

	for op, settings := range s.Operations {
		if !op.Valid() {
			return invalid("unknown operation %q", op)
		}
		if settings.State.MaxInterval < 0 {
			return invalid("%s: state.max_interval must not be negative", op)
		}
	}

	for i, f := range s.FieldMapping {
		if f.MachineName == "" && f.Import.Callback == "" && f.Export.Callback == "" {
			return invalid("field_mapping[%d]: machine_name or a callback is required", i)
		}
		if checker == nil {
			continue
		}
		if f.Import.Callback != "" && !checker.HasImportTransform(f.Import.Callback) {
			return invalid("field_mapping[%d]: unknown import callback %q", i, f.Import.Callback)
		}
		if f.Export.Callback != "" && !checker.HasExportTransform(f.Export.Callback) {
			return invalid("field_mapping[%d]: unknown export callback %q", i, f.Export.Callback)
		}
	}
	return nil
}

// Get returns the definition with the given ID. The result must not be
// modified.
func (r *Registry) Get(id string) (*types.Sync, error) {
	s, ok := r.syncs[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownSync, id)
	}
	return s, nil
}

// List returns every definition sorted by ID.
func (r *Registry) List() []*types.Sync {
	out := make([]*types.Sync, 0, len(r.syncs))
	for _, s := range r.syncs {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
