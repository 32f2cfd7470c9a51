package helpers

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/NuvoWindows/window-quote-whatsapp-bot/internal/storage"
)

// DatabaseURL returns DATABASE_URL, or a URL built from the POSTGRES_*
// variables when it is unset.
func DatabaseURL() string {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url
	}

	host := getenvDefault("POSTGRES_HOST", "localhost")
	port := getenvDefault("POSTGRES_PORT", "5432")
	user := getenvDefault("POSTGRES_USER", "postgres")
	password := getenvDefault("POSTGRES_PASSWORD", "postgres")
	dbname := getenvDefault("POSTGRES_DB", "window_quotes_test")

	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=prefer",
		user, password, host, port, dbname)
}

// GetTestDatabasePool creates a database connection pool for testing
func GetTestDatabasePool(ctx context.Context) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(DatabaseURL())
	if err != nil {
		return nil, fmt.Errorf("failed to parse database URL: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return pool, nil
}

// TestDatabase is a migrated Postgres conversation store for one test.
type TestDatabase struct {
	Pool  *pgxpool.Pool
	Store *storage.PostgresStore

	prefix string
	ctx    context.Context
}

// NewTestDatabase connects and migrates, skipping the test when no
// database is reachable. Rows written under UserID are removed on cleanup.
func NewTestDatabase(t *testing.T, opts ...storage.Option) *TestDatabase {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := GetTestDatabasePool(ctx)
	if err != nil {
		t.Skipf("postgres not available: %v", err)
	}

	store := storage.NewPostgresStore(pool, opts...)
	if err := store.Migrate(ctx); err != nil {
		pool.Close()
		t.Fatalf("Failed to migrate test database: %v", err)
	}

	db := &TestDatabase{
		Pool:   pool,
		Store:  store,
		prefix: "it-" + uuid.NewString()[:8] + "-",
		ctx:    context.Background(),
	}
	t.Cleanup(func() {
		db.cleanup(t)
		pool.Close()
	})
	return db
}

// UserID returns a user ID unique to this test database.
func (db *TestDatabase) UserID(name string) string {
	return db.prefix + name
}

// ConversationCount returns how many conversations this test wrote.
func (db *TestDatabase) ConversationCount(t *testing.T) int {
	t.Helper()
	var count int
	err := db.Pool.QueryRow(db.ctx,
		"SELECT COUNT(*) FROM conversation_specs WHERE user_id LIKE $1", db.prefix+"%",
	).Scan(&count)
	if err != nil {
		t.Fatalf("Failed to count conversations: %v", err)
	}
	return count
}

// SetLastActivity backdates a conversation.
func (db *TestDatabase) SetLastActivity(t *testing.T, userID string, at time.Time) {
	t.Helper()
	_, err := db.Pool.Exec(db.ctx,
		"UPDATE conversation_specs SET last_activity_at = $2 WHERE user_id = $1", userID, at)
	if err != nil {
		t.Fatalf("Failed to set last activity: %v", err)
	}
}

func (db *TestDatabase) cleanup(t *testing.T) {
	_, err := db.Pool.Exec(db.ctx, "DELETE FROM conversation_specs WHERE user_id LIKE $1", db.prefix+"%")
	if err != nil {
		t.Logf("Warning: Failed to cleanup conversations: %v", err)
	}
}

func getenvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
