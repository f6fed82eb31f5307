package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kiranshivaraju/labelscan/internal/store"
	"github.com/kiranshivaraju/labelscan/pkg/models"
)

// setupTestDB spins up a Postgres container, runs migrations, and returns a pool.
func setupTestDB(t *testing.T) (*pgxpool.Pool, string) {
	t.Helper()
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("labelscan_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second)),
	)
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, pgContainer.Terminate(ctx))
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	require.NoError(t, store.RunMigrations(connStr))

	pool, err := pgxpool.New(ctx, connStr)
	require.NoError(t, err)
	t.Cleanup(func() { pool.Close() })

	return pool, connStr
}

func newUser(email string) *models.User {
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &models.User{
		ID:           uuid.New(),
		Email:        email,
		PasswordHash: "bcrypt-hash-here",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

func TestStore_Users(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test")
	}
	pool, connStr := setupTestDB(t)
	s := store.NewPostgresStore(pool)
	ctx := context.Background()

	t.Run("ping", func(t *testing.T) {
		require.NoError(t, s.Ping(ctx))
	})

	t.Run("migrations are idempotent", func(t *testing.T) {
		require.NoError(t, store.RunMigrations(connStr))
	})

	t.Run("create and get", func(t *testing.T) {
		u := newUser("ada@example.com")
		require.NoError(t, s.CreateUser(ctx, u))

		byID, err := s.GetUserByID(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, u.Email, byID.Email)
		assert.Equal(t, u.PasswordHash, byID.PasswordHash)
		assert.True(t, u.CreatedAt.Equal(byID.CreatedAt))

		byEmail, err := s.GetUserByEmail(ctx, "  ADA@Example.com ")
		require.NoError(t, err)
		assert.Equal(t, u.ID, byEmail.ID)
	})

	t.Run("duplicate email differing in case", func(t *testing.T) {
		require.NoError(t, s.CreateUser(ctx, newUser("grace@example.com")))

		err := s.CreateUser(ctx, newUser("Grace@Example.com"))
		assert.ErrorIs(t, err, store.ErrDuplicateKey)
	})

	t.Run("not found", func(t *testing.T) {
		_, err := s.GetUserByID(ctx, uuid.New())
		assert.ErrorIs(t, err, store.ErrNotFound)

		_, err = s.GetUserByEmail(ctx, "nobody@example.com")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})
}
