package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/NuvoWindows/window-quote-whatsapp-bot/internal/specification"
)

// PostgresSchema creates the conversation table.
const PostgresSchema = `
CREATE TABLE IF NOT EXISTS conversation_specs (
  user_id TEXT PRIMARY KEY,
  specification JSONB NOT NULL DEFAULT '{}'::jsonb,
  pending_clarification JSONB,
  last_activity_at TIMESTAMPTZ,
  updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE INDEX IF NOT EXISTS idx_conversation_specs_last_activity ON conversation_specs (last_activity_at);
`

// PostgresStore keeps conversations in PostgreSQL.
type PostgresStore struct {
	pool   *pgxpool.Pool
	tracer trace.Tracer
	now    func() time.Time
}

// NewPostgresStore wraps an existing pool. Call Migrate before first use.
func NewPostgresStore(pool *pgxpool.Pool, opts ...Option) *PostgresStore {
	o := buildOptions(opts)
	return &PostgresStore{
		pool:   pool,
		tracer: otel.Tracer("postgres-store"),
		now:    o.now,
	}
}

// ConnectPostgres opens a pool against databaseURL, retrying while the
// database comes up.
func ConnectPostgres(ctx context.Context, databaseURL string, attempts int) (*pgxpool.Pool, error) {
	if attempts < 1 {
		attempts = 1
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		pool, err := pgxpool.New(ctx, databaseURL)
		if err == nil {
			if err = pool.Ping(ctx); err == nil {
				return pool, nil
			}
			pool.Close()
		}
		lastErr = err
		if i < attempts-1 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(2 * time.Second):
			}
		}
	}
	return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", attempts, lastErr)
}

// Migrate creates the conversation table if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, PostgresSchema); err != nil {
		return fmt.Errorf("failed to migrate conversation_specs: %w", err)
	}
	return nil
}

func (s *PostgresStore) span(ctx context.Context, op, userID string) (context.Context, trace.Span) {
	return s.tracer.Start(ctx, "postgres_store."+op,
		trace.WithAttributes(
			attribute.String("db.system", "postgresql"),
			attribute.String("user.id", userID),
		))
}

func (s *PostgresStore) GetPartialSpecification(ctx context.Context, userID string) (specification.Specification, error) {
	id, err := normalizeUserID(userID)
	if err != nil {
		return nil, err
	}
	ctx, span := s.span(ctx, "get_specification", id)
	defer span.End()

	var raw []byte
	err = s.pool.QueryRow(ctx,
		`SELECT specification FROM conversation_specs WHERE user_id = $1`, id,
	).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get specification: %w", err)
	}
	return decodeSpecification(raw)
}

func (s *PostgresStore) SavePartialSpecification(ctx context.Context, userID string, spec specification.Specification) error {
	id, err := normalizeUserID(userID)
	if err != nil {
		return err
	}
	ctx, span := s.span(ctx, "save_specification", id)
	defer span.End()

	raw, err := encodeSpecification(spec)
	if err != nil {
		return err
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO conversation_specs (user_id, specification, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id)
		DO UPDATE SET specification = EXCLUDED.specification, updated_at = EXCLUDED.updated_at`,
		id, raw, s.now().UTC(),
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to save specification: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetLastActivityTime(ctx context.Context, userID string) (time.Time, error) {
	id, err := normalizeUserID(userID)
	if err != nil {
		return time.Time{}, err
	}
	ctx, span := s.span(ctx, "get_last_activity", id)
	defer span.End()

	var last *time.Time
	err = s.pool.QueryRow(ctx,
		`SELECT last_activity_at FROM conversation_specs WHERE user_id = $1`, id,
	).Scan(&last)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, ErrNotFound
	}
	if err != nil {
		span.RecordError(err)
		return time.Time{}, fmt.Errorf("failed to get last activity: %w", err)
	}
	if last == nil {
		return time.Time{}, ErrNotFound
	}
	return last.UTC(), nil
}

func (s *PostgresStore) UpdateLastActivity(ctx context.Context, userID string) error {
	id, err := normalizeUserID(userID)
	if err != nil {
		return err
	}
	ctx, span := s.span(ctx, "update_last_activity", id)
	defer span.End()

	now := s.now().UTC()
	_, err = s.pool.Exec(ctx, `
		INSERT INTO conversation_specs (user_id, last_activity_at, updated_at)
		VALUES ($1, $2, $2)
		ON CONFLICT (user_id)
		DO UPDATE SET last_activity_at = EXCLUDED.last_activity_at, updated_at = EXCLUDED.updated_at`,
		id, now,
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to update last activity: %w", err)
	}
	return nil
}

func (s *PostgresStore) ClearPartialSpecification(ctx context.Context, userID string) error {
	id, err := normalizeUserID(userID)
	if err != nil {
		return err
	}
	ctx, span := s.span(ctx, "clear_specification", id)
	defer span.End()

	if _, err := s.pool.Exec(ctx, `DELETE FROM conversation_specs WHERE user_id = $1`, id); err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to clear conversation: %w", err)
	}
	return nil
}

func (s *PostgresStore) SetPendingClarification(ctx context.Context, userID string, payload []byte) error {
	id, err := normalizeUserID(userID)
	if err != nil {
		return err
	}
	ctx, span := s.span(ctx, "set_pending", id)
	defer span.End()

	_, err = s.pool.Exec(ctx, `
		INSERT INTO conversation_specs (user_id, pending_clarification, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id)
		DO UPDATE SET pending_clarification = EXCLUDED.pending_clarification, updated_at = EXCLUDED.updated_at`,
		id, payload, s.now().UTC(),
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to set pending clarification: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetPendingClarification(ctx context.Context, userID string) ([]byte, error) {
	id, err := normalizeUserID(userID)
	if err != nil {
		return nil, err
	}
	ctx, span := s.span(ctx, "get_pending", id)
	defer span.End()

	var payload []byte
	err = s.pool.QueryRow(ctx,
		`SELECT pending_clarification FROM conversation_specs WHERE user_id = $1`, id,
	).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("failed to get pending clarification: %w", err)
	}
	return payload, nil
}

func (s *PostgresStore) ClearPendingClarification(ctx context.Context, userID string) error {
	id, err := normalizeUserID(userID)
	if err != nil {
		return err
	}
	ctx, span := s.span(ctx, "clear_pending", id)
	defer span.End()

	_, err = s.pool.Exec(ctx, `
		UPDATE conversation_specs SET pending_clarification = NULL, updated_at = $2
		WHERE user_id = $1`,
		id, s.now().UTC(),
	)
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("failed to clear pending clarification: %w", err)
	}
	return nil
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the pool.
func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func encodeSpecification(spec specification.Specification) ([]byte, error) {
	if spec == nil {
		spec = specification.Specification{}
	}
	raw, err := json.Marshal(spec)
	if err != nil {
		return nil, fmt.Errorf("failed to encode specification: %w", err)
	}
	return raw, nil
}

func decodeSpecification(raw []byte) (specification.Specification, error) {
	spec := specification.Specification{}
	if len(raw) == 0 {
		return spec, nil
	}
	if err := json.Unmarshal(raw, &spec); err != nil {
		return nil, fmt.Errorf("failed to decode specification: %w", err)
	}
	return spec.Normalized(), nil
}
