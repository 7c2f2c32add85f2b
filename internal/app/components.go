package app

import (
	"context"

	"github.com/stacklok/view-exporter/internal/dispatch"
	"github.com/stacklok/view-exporter/internal/listener"
	"github.com/stacklok/view-exporter/internal/mirror"
	"github.com/stacklok/view-exporter/internal/resource"
	"github.com/stacklok/view-exporter/internal/status"
)

// Session is the store connection owned by the listener for the lifetime of Run
type Session interface {
	listener.Session

	// Close terminates the connection
	Close(ctx context.Context) error
}

// SessionFactory opens the store session used by Run
type SessionFactory func(ctx context.Context) (Session, error)

// AppComponents groups all application components
//
//nolint:revive // This name is fine
type AppComponents struct {
	// Registry holds every exportable resource
	Registry resource.Registry

	// Tracker records per-resource fetch status for the status API
	Tracker *status.Tracker

	// Queue hands artifact paths from the listener to the consumer
	Queue *dispatch.Queue

	// Consumer mirrors artifacts taken from the queue
	Consumer *mirror.Consumer
}
