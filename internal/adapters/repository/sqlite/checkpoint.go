// Package sqlite journals run checkpoints in SQLite through the pure-Go
// modernc.org/sqlite driver.
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/agentflow/agentflow/internal/core/checkpoint"
	"github.com/agentflow/agentflow/pkg/serialization"
)

const columns = "id, pipeline_id, run_id, generation, phase, step, state, format, metadata, timestamp, version"

// CheckpointSaver implements checkpoint.Saver for SQLite
type CheckpointSaver struct {
	db         *sql.DB
	serializer *serialization.Serializer
	tableName  string
}

// Open opens (or creates) the database at path and prepares the table.
// ":memory:" keeps the journal in process memory.
func Open(ctx context.Context, path string, serializer *serialization.Serializer) (*CheckpointSaver, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	// one connection keeps an in-memory database shared and serialises writers
	db.SetMaxOpenConns(1)
	s := NewCheckpointSaver(db, serializer)
	if err := s.CreateTables(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewCheckpointSaver creates a new SQLite checkpoint saver
func NewCheckpointSaver(db *sql.DB, serializer *serialization.Serializer) *CheckpointSaver {
	if serializer == nil {
		serializer = serialization.DefaultSerializer()
	}
	return &CheckpointSaver{
		db:         db,
		serializer: serializer,
		tableName:  "checkpoints",
	}
}

// WithTableName allows overriding the default table name with validation.
// Only alphanumeric and underscore are permitted to prevent SQL injection via identifiers.
func (s *CheckpointSaver) WithTableName(name string) *CheckpointSaver {
	if isSafeIdent(name) {
		s.tableName = name
	}
	return s
}

func isSafeIdent(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' {
			continue
		}
		return false
	}
	return true
}

// Save stores a checkpoint, replacing any previous one with the same ID
func (s *CheckpointSaver) Save(ctx context.Context, cp *checkpoint.Checkpoint) error {
	if cp == nil {
		return checkpoint.ErrInvalidCheckpointID
	}
	if err := cp.Validate(); err != nil {
		return err
	}

	data, err := s.serializer.Serialize(cp.State)
	if err != nil {
		return fmt.Errorf("failed to serialize checkpoint state: %w", err)
	}
	metadataJSON, err := json.Marshal(cp.Metadata)
	if err != nil {
		return fmt.Errorf("failed to serialize metadata: %w", err)
	}

	query := fmt.Sprintf(`INSERT OR REPLACE INTO %s (%s) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, s.tableName, columns)
	_, err = s.db.ExecContext(ctx, query,
		cp.ID, cp.PipelineID, cp.RunID, int64(cp.Generation), cp.Phase, cp.Metadata.Step,
		data, s.serializer.Format(), string(metadataJSON), cp.Timestamp.UnixNano(), cp.Version)
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

	query := fmt.Sprintf(`SELECT %s FROM %s WHERE id = ?`, columns, s.tableName)
	cp, err := s.scan(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
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
	query, args := s.buildListQuery(filter)

	rows, err := s.db.QueryContext(ctx, query, args...)
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

type scanner interface {
	Scan(dest ...any) error
}

func (s *CheckpointSaver) scan(row scanner) (*checkpoint.Checkpoint, error) {
	var (
		cp           checkpoint.Checkpoint
		generation   int64
		step         int
		data         []byte
		format       string
		metadataJSON string
		timestamp    int64
	)
	err := row.Scan(&cp.ID, &cp.PipelineID, &cp.RunID, &generation, &cp.Phase, &step,
		&data, &format, &metadataJSON, &timestamp, &cp.Version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", checkpoint.ErrLoadFailed, err)
	}
	if format != s.serializer.Format() {
		return nil, fmt.Errorf("%w: %s stored as %s, reading %s", checkpoint.ErrLoadFailed, cp.ID, format, s.serializer.Format())
	}
	cp.Generation = uint64(generation)
	cp.Timestamp = time.Unix(0, timestamp).UTC()

	cp.State = make(map[string]interface{})
	if err := s.serializer.Deserialize(data, &cp.State); err != nil {
		return nil, fmt.Errorf("failed to deserialize checkpoint state: %w", err)
	}
	if err := json.Unmarshal([]byte(metadataJSON), &cp.Metadata); err != nil {
		return nil, fmt.Errorf("failed to deserialize metadata: %w", err)
	}
	return &cp, nil
}

// Delete removes a checkpoint by ID
func (s *CheckpointSaver) Delete(ctx context.Context, id string) error {
	if id == "" {
		return checkpoint.ErrInvalidCheckpointID
	}

	query := fmt.Sprintf("DELETE FROM %s WHERE id = ?", s.tableName)
	result, err := s.db.ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("%w: %v", checkpoint.ErrDeleteFailed, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return checkpoint.ErrCheckpointNotFound
	}
	return nil
}

// CreateTables creates the journal table and its indexes
func (s *CheckpointSaver) CreateTables(ctx context.Context) error {
	t := s.tableName
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %[1]s (
			id TEXT PRIMARY KEY,
			pipeline_id TEXT NOT NULL,
			run_id TEXT NOT NULL,
			generation INTEGER NOT NULL,
			phase TEXT NOT NULL,
			step INTEGER NOT NULL,
			state BLOB NOT NULL,
			format TEXT NOT NULL,
			metadata TEXT NOT NULL,
			timestamp INTEGER NOT NULL,
			version TEXT NOT NULL DEFAULT '1'
		);
		CREATE INDEX IF NOT EXISTS idx_%[1]s_pipeline_id ON %[1]s (pipeline_id);
		CREATE INDEX IF NOT EXISTS idx_%[1]s_run_id ON %[1]s (run_id, step);
		CREATE INDEX IF NOT EXISTS idx_%[1]s_timestamp ON %[1]s (timestamp);
	`, t)

	if _, err := s.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("failed to create tables: %w", err)
	}
	return nil
}

// buildListQuery constructs the SQL query for listing checkpoints
func (s *CheckpointSaver) buildListQuery(filter checkpoint.Filter) (string, []interface{}) {
	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s WHERE 1=1", columns, s.tableName)
	args := make([]interface{}, 0)

	if filter.PipelineID != "" {
		b.WriteString(" AND pipeline_id = ?")
		args = append(args, filter.PipelineID)
	}
	if filter.RunID != "" {
		b.WriteString(" AND run_id = ?")
		args = append(args, filter.RunID)
	}
	if filter.Phase != "" {
		b.WriteString(" AND phase = ?")
		args = append(args, filter.Phase)
	}
	if filter.Since != nil {
		b.WriteString(" AND timestamp >= ?")
		args = append(args, filter.Since.UnixNano())
	}
	if filter.Before != nil {
		b.WriteString(" AND timestamp < ?")
		args = append(args, filter.Before.UnixNano())
	}
	for _, tag := range filter.Tags {
		b.WriteString(" AND EXISTS (SELECT 1 FROM json_each(metadata, '$.tags') WHERE value = ?)")
		args = append(args, tag)
	}

	b.WriteString(" ORDER BY timestamp DESC, step DESC")

	// SQLite needs a LIMIT for OFFSET; -1 means unbounded
	if filter.Limit > 0 || filter.Offset > 0 {
		limit := filter.Limit
		if limit == 0 {
			limit = -1
		}
		b.WriteString(" LIMIT ?")
		args = append(args, limit)
	}
	if filter.Offset > 0 {
		b.WriteString(" OFFSET ?")
		args = append(args, filter.Offset)
	}

	return b.String(), args
}

// Close closes the database connection
func (s *CheckpointSaver) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}
