package backend

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spendwise/internal/config"
	"spendwise/internal/core"
)

func TestFromAppConfig(t *testing.T) {
	_, err := FromAppConfig(nil)
	assert.Error(t, err)

	_, err = FromAppConfig(&config.Config{DataBackend: "sheets"})
	assert.ErrorContains(t, err, `"sheets"`)

	_, err = FromAppConfig(&config.Config{DataBackend: "sqlite"})
	assert.Error(t, err, "sqlite needs a path")

	cfg, err := FromAppConfig(&config.Config{DataBackend: "sqlite", SQLiteDBPath: "x.db"})
	require.NoError(t, err)
	assert.Equal(t, SQLite, cfg.Type)
	assert.Equal(t, "x.db", cfg.SQLiteDBPath)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	for _, cfg := range []Config{
		{Type: Memory},
		{Type: SQLite, SQLiteDBPath: filepath.Join(t.TempDir(), "spendwise.db")},
	} {
		t.Run(cfg.Type.String(), func(t *testing.T) {
			res, err := Open(ctx, cfg, nil)
			require.NoError(t, err)
			defer res.Shutdown()

			if cfg.Type == SQLite {
				require.NotNil(t, res.Ping)
				assert.NoError(t, res.Ping(ctx))
			} else {
				assert.Nil(t, res.Ping)
			}

			u := core.User{ID: "u1", Username: "alice", CreatedAt: time.Now().UTC()}
			require.NoError(t, res.Store.CreateUser(ctx, u))
			got, err := res.Store.GetUserByUsername(ctx, "alice")
			require.NoError(t, err)
			assert.Equal(t, "u1", got.ID)
		})
	}
}

func TestOpenRejectsInvalidConfig(t *testing.T) {
	_, err := Open(context.Background(), Config{Type: "postgres"}, nil)
	assert.Error(t, err)
}

func TestResultShutdownWithoutClose(t *testing.T) {
	var r *Result
	assert.NoError(t, r.Shutdown())
	assert.NoError(t, (&Result{}).Shutdown())
}
