// Package registry opens connectors from database URLs.
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/stokaro/schemapush/connector"
	"github.com/stokaro/schemapush/connector/mysql"
	"github.com/stokaro/schemapush/connector/postgres"
	"github.com/stokaro/schemapush/connector/sqlite"
	"github.com/stokaro/schemapush/dbschema"
)

// Factory creates a connector on an open connection.
type Factory func(db *dbschema.DatabaseConnection) (connector.Connector, error)

// Registry maps dialects to connector factories.
type Registry struct {
	factories map[connector.Dialect]Factory
	mu        sync.RWMutex
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{factories: make(map[connector.Dialect]Factory)}
}

// Default returns a registry with the PostgreSQL, MySQL and SQLite connectors.
func Default() *Registry {
	r := New()
	_ = r.Register(connector.Postgres, func(db *dbschema.DatabaseConnection) (connector.Connector, error) {
		return postgres.New(db)
	})
	_ = r.Register(connector.MySQL, func(db *dbschema.DatabaseConnection) (connector.Connector, error) {
		return mysql.New(db)
	})
	_ = r.Register(connector.SQLite, func(db *dbschema.DatabaseConnection) (connector.Connector, error) {
		return sqlite.New(db)
	})
	return r
}

// Register adds the factory for a dialect.
func (r *Registry) Register(d connector.Dialect, f Factory) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[d]; exists {
		return fmt.Errorf("connector factory already registered for dialect %q", d)
	}
	r.factories[d] = f
	return nil
}

// Dialects returns the registered dialects in alphabetical order.
func (r *Registry) Dialects() []connector.Dialect {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]connector.Dialect, 0, len(r.factories))
	for d := range r.factories {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// New creates the connector for an open connection. The connection is not
// closed when no factory matches its dialect.
func (r *Registry) New(db *dbschema.DatabaseConnection) (connector.Connector, error) {
	d := db.Info().Dialect
	r.mu.RLock()
	f, ok := r.factories[d]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no connector registered for dialect %q", d)
	}
	conn, err := f(db)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s connector: %w", d, err)
	}
	return conn, nil
}

// Open connects to dbURL and creates its connector. Closing the connector
// closes the connection.
func (r *Registry) Open(ctx context.Context, dbURL string) (connector.Connector, error) {
	db, err := dbschema.Connect(ctx, dbURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	conn, err := r.New(db)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return conn, nil
}
