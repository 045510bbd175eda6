// Package modules contains the dependency modules assembled by the
// composition root.
package modules

import (
	"context"

	"koinonia.app/notifier/internal/api/handlers"
	"koinonia.app/notifier/internal/domain"
)

// Module represents a domain-specific dependency unit in the composition root.
type Module interface {
	// Name returns a stable module identifier for logging/debugging.
	Name() string

	// Shutdown performs module-local graceful cleanup.
	Shutdown(context.Context) error
}

// ServerDepsContributor injects module-owned dependencies into the HTTP server deps.
type ServerDepsContributor interface {
	ContributeServerDeps(*handlers.ServerDeps)
}

// EventHandlerRegistrar subscribes module handlers to document-created events.
type EventHandlerRegistrar interface {
	RegisterEventHandlers(*domain.EntityDispatcher)
}
