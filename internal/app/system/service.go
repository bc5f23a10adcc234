// Package system provides the lifecycle contract every long-running
// coordinator component implements, and the Manager that starts/stops them
// deterministically.
package system

import "context"

// Service represents a lifecycle-managed component: the HTTP API, the Tick
// Scheduler (which also drains the event bus), the coordinator host report.
type Service interface {
	Name() string
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Descriptor is presentation metadata for a running service, surfaced at
// GET /system/status.
type Descriptor struct {
	Name  string
	Layer string
	Notes string
}

// DescriptorProvider optionally advertises a Descriptor.
type DescriptorProvider interface {
	Descriptor() Descriptor
}
