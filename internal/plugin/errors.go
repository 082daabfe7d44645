package plugin

import "errors"

var (
	// ErrUnknownPlugin indicates configuration enables an unregistered plugin.
	ErrUnknownPlugin = errors.New("unknown plugin")

	// ErrMissingService indicates the host lacks a service the plugin needs.
	ErrMissingService = errors.New("missing host service")
)
