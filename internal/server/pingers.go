package server

import (
	"context"
	"fmt"
)

// pingable is satisfied by the stores that can probe their backend:
// *rag.QdrantStore and *store.SQLiteStore.
type pingable interface {
	Ping(ctx context.Context) error
}

// dependencyPinger adapts a pingable dependency to the Pinger interface.
type dependencyPinger struct {
	// name identifies the dependency in readiness responses.
	name string
	// target is the dependency to probe.
	target pingable
}

// NewPinger returns a Pinger that probes target under the given name.
func NewPinger(name string, target pingable) Pinger {
	return &dependencyPinger{name: name, target: target}
}

// Name returns the dependency label used in readiness responses.
func (p *dependencyPinger) Name() string { return p.name }

// Ping probes the dependency.
func (p *dependencyPinger) Ping(ctx context.Context) error {
	if err := p.target.Ping(ctx); err != nil {
		return fmt.Errorf("%s unreachable: %w", p.name, err)
	}
	return nil
}
