package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newPingableMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func TestNewConnectionManager_InvalidPrimary(t *testing.T) {
	_, err := NewConnectionManager(ConnectionConfig{
		PrimaryURL: "postgres://invalid-host-that-does-not-exist:5432/db?sslmode=disable&connect_timeout=1",
		MaxConns:   5,
		MinConns:   1,
		Timeout:    time.Second,
	}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open primary")
}

func TestConnectionManager_Replica(t *testing.T) {
	primary, _ := newPingableMock(t)

	t.Run("falls back to primary", func(t *testing.T) {
		cm := NewConnectionManagerFromDB(primary)
		assert.Same(t, primary, cm.Replica())
		assert.Same(t, primary, cm.Primary())
	})

	t.Run("round robin", func(t *testing.T) {
		r1, _ := newPingableMock(t)
		r2, _ := newPingableMock(t)
		cm := NewConnectionManagerFromDB(primary, r1, r2)

		seen := map[*sql.DB]int{}
		for i := 0; i < 10; i++ {
			seen[cm.Replica()]++
		}
		assert.Equal(t, 5, seen[r1])
		assert.Equal(t, 5, seen[r2])
		assert.Zero(t, seen[primary])
	})
}

func TestConnectionManager_HealthCheck(t *testing.T) {
	ctx := context.Background()

	t.Run("primary down", func(t *testing.T) {
		primary, mock := newPingableMock(t)
		mock.ExpectPing().WillReturnError(errors.New("connection refused"))

		err := NewConnectionManagerFromDB(primary).HealthCheck(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "primary unhealthy")
	})

	t.Run("one replica down is tolerated", func(t *testing.T) {
		primary, pm := newPingableMock(t)
		r1, m1 := newPingableMock(t)
		r2, m2 := newPingableMock(t)
		pm.ExpectPing()
		m1.ExpectPing().WillReturnError(errors.New("down"))
		m2.ExpectPing()

		assert.NoError(t, NewConnectionManagerFromDB(primary, r1, r2).HealthCheck(ctx))
	})

	t.Run("all replicas down", func(t *testing.T) {
		primary, pm := newPingableMock(t)
		r1, m1 := newPingableMock(t)
		pm.ExpectPing()
		m1.ExpectPing().WillReturnError(errors.New("down"))

		err := NewConnectionManagerFromDB(primary, r1).HealthCheck(ctx)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "replica-0")
	})
}

func TestConnectionManager_RemoveUnhealthyReplicas(t *testing.T) {
	primary, _ := newPingableMock(t)
	r1, m1 := newPingableMock(t)
	r2, m2 := newPingableMock(t)
	m1.ExpectPing().WillReturnError(errors.New("down"))
	m1.ExpectClose()
	m2.ExpectPing()

	cm := NewConnectionManagerFromDB(primary, r1, r2)
	assert.Equal(t, 1, cm.RemoveUnhealthyReplicas(context.Background()))
	assert.Same(t, r2, cm.Replica())
	assert.Len(t, cm.Stats().Replicas, 1)
}

func TestMigrate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	for range migrations {
		mock.ExpectExec("CREATE").WillReturnResult(sqlmock.NewResult(0, 0))
	}

	require.NoError(t, Migrate(context.Background(), db))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMigrate_Error(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS billing_profile").WillReturnError(errors.New("permission denied"))

	err = Migrate(context.Background(), db)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "migration 0")
}
