// Package backend opens the store selected by configuration.
package backend

import (
	"context"
	"fmt"

	"spendwise/internal/config"
	"spendwise/internal/ports"
)

// Type names a store implementation.
type Type string

const (
	SQLite Type = "sqlite"
	Memory Type = "memory"
)

func (t Type) String() string { return string(t) }

func (t Type) IsValid() bool {
	return t == SQLite || t == Memory
}

// Config selects and locates the store.
type Config struct {
	Type         Type
	SQLiteDBPath string
}

// FromAppConfig extracts the store settings from the application config.
func FromAppConfig(cfg *config.Config) (Config, error) {
	if cfg == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}
	c := Config{Type: Type(cfg.DataBackend), SQLiteDBPath: cfg.SQLiteDBPath}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %q (want %s or %s)", c.Type, SQLite, Memory)
	}
	if c.Type == SQLite && c.SQLiteDBPath == "" {
		return fmt.Errorf("SQLite database path is required for sqlite backend")
	}
	return nil
}

// Result is an opened store together with its lifecycle hooks.
type Result struct {
	Store ports.Store
	// Ping reports whether the store is reachable. Nil for stores that
	// always are.
	Ping func(ctx context.Context) error
	// Close releases the store. Nil when there is nothing to release.
	Close func() error
}

// Shutdown closes the store if it holds resources.
func (r *Result) Shutdown() error {
	if r == nil || r.Close == nil {
		return nil
	}
	return r.Close()
}
