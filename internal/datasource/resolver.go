package datasource

import (
	"context"
	"strings"

	dbconnector "reportengine-backend"
)

// Resolver turns a data source reference into a live connection config.
type Resolver interface {
	ResolveByRef(ctx context.Context, sourceRef string) (dbconnector.ConnectionConfig, error)
}

type Store interface {
	GetDataSource(ctx context.Context, sourceRef string) (dbconnector.ConnectionConfig, error)
}

type resolver struct {
	store Store
}

// NewResolver accepts a nil store; resolution then fails with
// ErrNotConfigured instead of panicking.
func NewResolver(store Store) Resolver {
	return &resolver{store: store}
}

func (r *resolver) ResolveByRef(ctx context.Context, sourceRef string) (dbconnector.ConnectionConfig, error) {
	if strings.TrimSpace(sourceRef) == "" {
		return dbconnector.ConnectionConfig{}, ErrInvalidInput
	}
	if r.store == nil {
		return dbconnector.ConnectionConfig{}, ErrNotConfigured
	}
	return r.store.GetDataSource(ctx, sourceRef)
}
