// Package postgres journals run checkpoints in PostgreSQL through pgx.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/agentflow/agentflow/internal/core/checkpoint"
	"github.com/agentflow/agentflow/pkg/serialization"
)

// ErrNoPool is returned by operations on a saver without a connection pool
var ErrNoPool = errors.New("postgres pool is not configured")

const columns = "id, pipeline_id, run_id, generation, phase, step, state, format, metadata, tags, timestamp, version"

// CheckpointSaver implements checkpoint.Saver interface for PostgreSQL
type CheckpointSaver struct {
	pool       *pgxpool.Pool
	serializer *serialization.Serializer
	tableName  string
}

// Connect opens a pool for dsn and prepares the table
func Connect(ctx context.Context, dsn string, serializer *serialization.Serializer) (*CheckpointSaver, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	s := NewCheckpointSaver(pool, serializer)
	if err := s.CreateTables(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// NewCheckpointSaver creates a new PostgreSQL checkpoint saver
func NewCheckpointSaver(pool *pgxpool.Pool, serializer *serialization.Serializer) *CheckpointSaver {
	if serializer == nil {
		serializer = serialization.DefaultSerializer()
	}
	return &CheckpointSaver{
		pool:       pool,
		serializer: serializer,
		tableName:  "checkpoints",
	}
}

// WithTableName overrides the table name. Names other than letters, digits
// and underscores are ignored.
func (s *CheckpointSaver) WithTableName(name string) *CheckpointSaver {
	if name != "" && strings.Trim(name, "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789_") == "" {
		s.tableName = name
	}
	return s
}

// Save stores a checkpoint in PostgreSQL
func (s *CheckpointSaver) Save(ctx context.Context, cp *checkpoint.Checkpoint) error {
	if cp == nil {
		return checkpoint.ErrInvalidCheckpointID
	}
	if err := cp.Validate(); err != nil {
		return err
	}
	if s.pool == nil {
		return ErrNoPool
	}

	data, err := s.serializer.Serialize(cp.State)
	if err != nil {
		return fmt.Errorf("failed to serialize checkpoint state: %w", err)
	}
	metadataJSON, err := json.Marshal(cp.Metadata)
	if err != nil {
		return fmt.Errorf("failed to serialize metadata: %w", err)
	}
	tags := cp.Metadata.Tags
	if tags == nil {
		tags = []string{}
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (%s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			generation = EXCLUDED.generation,
			phase = EXCLUDED.phase,
			step = EXCLUDED.step,
			state = EXCLUDED.state,
			format = EXCLUDED.format,
			metadata = EXCLUDED.metadata,
			tags = EXCLUDED.tags,
			timestamp = EXCLUDED.timestamp
	`, s.tableName, columns)

	_, err = s.pool.Exec(ctx, query,
		cp.ID, cp.PipelineID, cp.RunID, int64(cp.Generation), cp.Phase, cp.Metadata.Step,
		data, s.serializer.Format(), metadataJSON, tags, cp.Timestamp, cp.Version)
	if err != nil {
		return fmt.Errorf("%w: %v", checkpoint.ErrSaveFailed, err)
	}
	return nil
}

// Load retrieves a checkpoint by ID
func (s *CheckpointSaver) Load(ctx context.Context, id string) (*checkpoint.Checkpoint, error) {
	if id == "" {
		return nil, checkpoint.ErrInvalidCheckpointID
	}
	if s.pool == nil {
		return nil, ErrNoPool
	}

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = $1`, columns, s.tableName)
	cp, err := s.scan(s.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, checkpoint.ErrCheckpointNotFound
		}
		return nil, err
	}
	return cp, nil
}

// List retrieves checkpoints newest first
func (s *CheckpointSaver) List(ctx context.Context, filter checkpoint.Filter) ([]*checkpoint.Checkpoint, error) {
	if err := filter.Validate(); err != nil {
		return nil, err
	}
	if s.pool == nil {
		return nil, ErrNoPool
	}
	query, args := s.buildListQuery(filter)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list checkpoints: %w", err)
	}
	defer rows.Close()

	var checkpoints []*checkpoint.Checkpoint
	for rows.Next() {
		cp, err := s.scan(rows)
		if err != nil {
			return nil, err
		}
		checkpoints = append(checkpoints, cp)
	}
	return checkpoints, rows.Err()
}

func (s *CheckpointSaver) scan(row pgx.Row) (*checkpoint.Checkpoint, error) {
	var (
		cp           checkpoint.Checkpoint
		generation   int64
		step         int
		data         []byte
		format       string
		metadataJSON []byte
		tags         []string
	)
	err := row.Scan(&cp.ID, &cp.PipelineID, &cp.RunID, &generation, &cp.Phase, &step,
		&data, &format, &metadataJSON, &tags, &cp.Timestamp, &cp.Version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", checkpoint.ErrLoadFailed, err)
	}
	if format != s.serializer.Format() {
		return nil, fmt.Errorf("%w: %s stored as %s, reading %s", checkpoint.ErrLoadFailed, cp.ID, format, s.serializer.Format())
	}
	cp.Generation = uint64(generation)
	cp.Timestamp = cp.Timestamp.UTC()

	cp.State = make(map[string]interface{})
	if err := s.serializer.Deserialize(data, &cp.State); err != nil {
		return nil, fmt.Errorf("failed to deserialize checkpoint state: %w", err)
	}
	if err := json.Unmarshal(metadataJSON, &cp.Metadata); err != nil {
		return nil, fmt.Errorf("failed to deserialize metadata: %w", err)
	}
	if len(tags) > 0 {
		cp.Metadata.Tags = tags
	}
	return &cp, nil
}

// Delete removes a checkpoint by ID
func (s *CheckpointSaver) Delete(ctx context.Context, id string) error {
	if id == "" {
		return checkpoint.ErrInvalidCheckpointID
	}
	if s.pool == nil {
		return ErrNoPool
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE id = $1", s.tableName)
	result, err := s.pool.Exec(ctx, query, id)
	if err != nil {
		return fmt.Errorf("%w: %v", checkpoint.ErrDeleteFailed, err)
	}
	if result.RowsAffected() == 0 {
		return checkpoint.ErrCheckpointNotFound
	}
	return nil
}

// CreateTables creates the journal table and its indexes
func (s *CheckpointSaver) CreateTables(ctx context.Context) error {
	if s.pool == nil {
		return ErrNoPool
	}
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			id VARCHAR(255) PRIMARY KEY,
			pipeline_id VARCHAR(255) NOT NULL,
			run_id VARCHAR(255) NOT NULL,
			generation BIGINT NOT NULL,
			phase VARCHAR(32) NOT NULL,
			step INTEGER NOT NULL,
			state BYTEA NOT NULL,
			format VARCHAR(64) NOT NULL,
			metadata JSONB,
			tags TEXT[] NOT NULL DEFAULT '{}',
			timestamp TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			version VARCHAR(50) NOT NULL DEFAULT '1'
		);

		CREATE INDEX IF NOT EXISTS idx_%[1]s_pipeline_id ON %[1]s (pipeline_id);
		CREATE INDEX IF NOT EXISTS idx_%[1]s_run_id ON %[1]s (run_id, step);
		CREATE INDEX IF NOT EXISTS idx_%[1]s_timestamp ON %[1]s (timestamp);
		CREATE INDEX IF NOT EXISTS idx_%[1]s_tags ON %[1]s USING GIN (tags);
	`, s.tableName)

	if _, err := s.pool.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}

// buildListQuery constructs the SQL query for listing checkpoints
func (s *CheckpointSaver) buildListQuery(filter checkpoint.Filter) (string, []interface{}) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE 1=1", columns, s.tableName)
	args := make([]interface{}, 0)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if filter.PipelineID != "" {
		query += " AND pipeline_id = " + arg(filter.PipelineID)
	}
	if filter.RunID != "" {
		query += " AND run_id = " + arg(filter.RunID)
	}
	if filter.Phase != "" {
		query += " AND phase = " + arg(filter.Phase)
	}
	if filter.Since != nil {
		query += " AND timestamp >= " + arg(*filter.Since)
	}
	if filter.Before != nil {
		query += " AND timestamp < " + arg(*filter.Before)
	}
	if len(filter.Tags) > 0 {
		query += " AND tags @> " + arg(filter.Tags)
	}

	query += " ORDER BY timestamp DESC, step DESC"

	if filter.Limit > 0 {
		query += " LIMIT " + arg(filter.Limit)
	}
	if filter.Offset > 0 {
		query += " OFFSET " + arg(filter.Offset)
	}
	return query, args
}

// Close closes the database connection pool
func (s *CheckpointSaver) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}
