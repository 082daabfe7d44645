package main

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/hyperengineering/syncbridge/internal/config"
	"github.com/hyperengineering/syncbridge/internal/definition"
	"github.com/hyperengineering/syncbridge/internal/mapping"
	"github.com/hyperengineering/syncbridge/internal/plugin"
	"github.com/hyperengineering/syncbridge/internal/remote"
	"github.com/hyperengineering/syncbridge/internal/remote/objectstore"
	"github.com/hyperengineering/syncbridge/internal/remote/rest"
	"github.com/hyperengineering/syncbridge/internal/state"
	"github.com/hyperengineering/syncbridge/internal/store"
	"github.com/hyperengineering/syncbridge/internal/syncer"
)

// remoteTimeout bounds each request to a REST remote.
const remoteTimeout = 30 * time.Second

// app holds the wired sync core shared by the server and the CLI commands.
type app struct {
	cfg         *config.Config
	store       *store.SQLiteStore
	definitions *definition.Registry
	state       *state.Manager
	importer    *syncer.Importer
	exporter    *syncer.Exporter
}

// newApp builds the sync core from configuration: entity schema and store,
// definitions, remote backends, event bus and plugins.
func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	schema, err := schemaFromConfig(cfg.EntityTypes)
	if err != nil {
		return nil, err
	}

	transforms := mapping.NewTransforms()
	defs, err := definition.Load(cfg.Definitions.Path, transforms)
	if err != nil {
		return nil, fmt.Errorf("load definitions: %w", err)
	}
	slog.Info("definitions loaded", "path", cfg.Definitions.Path, "count", len(defs.List()))

	db, err := store.NewSQLiteStore(cfg.Database.Path, schema)
	if err != nil {
		return nil, err
	}
	slog.Info("store initialized", "path", cfg.Database.Path)

	resolver := remote.NewResolver(defs)
	resolver.RegisterBackend(rest.BindingType, rest.Factory(&http.Client{Timeout: remoteTimeout}))
	objectFactory, err := objectstore.Factory(cfg.ObjectStore)
	if err != nil {
		db.Close()
		return nil, err
	}
	resolver.RegisterBackend(objectstore.BindingType, objectFactory)

	deps := syncer.NewDeps(defs, resolver, db, transforms, logger)
	stateMgr := state.NewManager(db, defs)

	host := plugin.Host{
		State:      stateMgr,
		Entities:   db,
		Transforms: transforms,
		Logger:     logger,
	}
	if err := plugin.Attach(deps.Bus, host, cfg.Plugins...); err != nil {
		db.Close()
		return nil, err
	}
	slog.Info("plugins attached", "plugins", cfg.Plugins, "backends", resolver.Backends())

	return &app{
		cfg:         cfg,
		store:       db,
		definitions: defs,
		state:       stateMgr,
		importer:    syncer.NewImporter(deps),
		exporter:    syncer.NewExporter(deps),
	}, nil
}

// Close releases the database.
func (a *app) Close() error {
	return a.store.Close()
}

// schemaFromConfig converts configured entity types into the store schema.
func schemaFromConfig(decls []config.EntityType) (*store.Schema, error) {
	schemas := make([]store.TypeSchema, 0, len(decls))
	for _, et := range decls {
		ts := store.TypeSchema{Type: et.Type, Bundles: et.Bundles}
		for _, f := range et.Fields {
			ts.Fields = append(ts.Fields, store.FieldSchema{Name: f.Name, Multiple: f.Multiple})
		}
		schemas = append(schemas, ts)
	}
	schema, err := store.NewSchema(schemas...)
	if err != nil {
		return nil, fmt.Errorf("entity schema: %w", err)
	}
	return schema, nil
}
