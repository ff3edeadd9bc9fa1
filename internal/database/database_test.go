package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"filescdn/internal/config"
)

func TestBuildPostgresDSN(t *testing.T) {
	base := config.DatabaseConfig{Host: "db", Port: "5432", User: "filescdn", Name: "files"}

	tests := []struct {
		name    string
		mutate  func(*config.DatabaseConfig)
		want    string
		wantErr bool
	}{
		{name: "minimal", mutate: func(*config.DatabaseConfig) {}, want: "postgres://filescdn@db:5432/files"},
		{
			name:   "password and sslmode",
			mutate: func(c *config.DatabaseConfig) { c.Password = "s3cret"; c.SSLMode = "verify-full" },
			want:   "postgres://filescdn:s3cret@db:5432/files?sslmode=verify-full",
		},
		{
			name:   "password is escaped",
			mutate: func(c *config.DatabaseConfig) { c.Password = "p@ss/word" },
			want:   "postgres://filescdn:p%40ss%2Fword@db:5432/files",
		},
		{name: "no host", mutate: func(c *config.DatabaseConfig) { c.Host = "" }, wantErr: true},
		{name: "no port", mutate: func(c *config.DatabaseConfig) { c.Port = "" }, wantErr: true},
		{name: "no user", mutate: func(c *config.DatabaseConfig) { c.User = "" }, wantErr: true},
		{name: "no database", mutate: func(c *config.DatabaseConfig) { c.Name = "" }, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := base
			tt.mutate(&c)
			got, err := BuildPostgresDSN(c)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// withOpen swaps sqlOpen for the duration of the test.
func withOpen(t *testing.T, open func(driverName, dsn string) (*sql.DB, error)) {
	orig := sqlOpen
	sqlOpen = open
	t.Cleanup(func() { sqlOpen = orig })
}

func TestNewPostgres(t *testing.T) {
	conf := config.DatabaseConfig{
		Host:               "db",
		Port:               "5432",
		User:               "filescdn",
		Password:           "s3cret",
		Name:               "files",
		MaxOpenConns:       8,
		MaxIdleConns:       2,
		ConnMaxLifetimeSec: 300,
	}

	t.Run("pool settings applied", func(t *testing.T) {
		db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer db.Close()

		var gotDSN string
		withOpen(t, func(_, dsn string) (*sql.DB, error) {
			gotDSN = dsn
			return db, nil
		})
		mock.ExpectPing()

		got, err := NewPostgres(context.Background(), conf)
		require.NoError(t, err)
		assert.Same(t, db, got)
		assert.Equal(t, "postgres://filescdn:s3cret@db:5432/files", gotDSN)
		assert.Equal(t, 8, got.Stats().MaxOpenConnections)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("open fails", func(t *testing.T) {
		withOpen(t, func(string, string) (*sql.DB, error) {
			return nil, errors.New("driver missing")
		})

		got, err := NewPostgres(context.Background(), conf)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "sql open: driver missing")
		assert.Nil(t, got)
	})

	t.Run("unreachable server", func(t *testing.T) {
		// closed by NewPostgres on ping failure
		db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
		require.NoError(t, err)
		withOpen(t, func(string, string) (*sql.DB, error) { return db, nil })
		mock.ExpectPing().WillReturnError(errors.New("connection refused"))

		got, err := NewPostgres(context.Background(), conf)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "db ping: connection refused")
		assert.Nil(t, got)
		assert.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("incomplete config never opens", func(t *testing.T) {
		withOpen(t, func(string, string) (*sql.DB, error) {
			t.Fatal("sqlOpen must not be called")
			return nil, nil
		})

		got, err := NewPostgres(context.Background(), config.DatabaseConfig{Host: "db"})
		assert.Error(t, err)
		assert.Nil(t, got)
	})
}
