package main

import (
	"github.com/hyperengineering/syncbridge/internal/managed"
	"github.com/hyperengineering/syncbridge/internal/plugin"
	"github.com/hyperengineering/syncbridge/internal/plugin/writeback"
)

// initPlugins registers all built-in sync plugins.
// Which of them run is decided by the plugins list in configuration.
func initPlugins() {
	plugin.Register(managed.New())
	plugin.Register(writeback.New())
}
