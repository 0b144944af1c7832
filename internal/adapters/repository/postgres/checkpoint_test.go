package postgres

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentflow/agentflow/internal/core/checkpoint"
	"github.com/agentflow/agentflow/pkg/serialization"
)

func TestPostgresCheckpointSaver(t *testing.T) {
	dsn := os.Getenv("AGENTFLOW_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("Integration test requires PostgreSQL database (set AGENTFLOW_TEST_POSTGRES_DSN)")
	}
	ctx := context.Background()

	table := "checkpoints_" + uuid.NewString()[:8]
	saver, err := Connect(ctx, dsn, serialization.DefaultSerializer())
	require.NoError(t, err)
	saver.WithTableName(table)
	require.NoError(t, saver.CreateTables(ctx))
	t.Cleanup(func() {
		_, _ = saver.pool.Exec(ctx, "DROP TABLE IF EXISTS "+table)
		saver.Close()
	})

	base := time.Now().UTC().Truncate(time.Millisecond)
	for step := 1; step <= 3; step++ {
		cp := &checkpoint.Checkpoint{
			ID:         "run-1-" + string(rune('0'+step)),
			PipelineID: "claim-pipeline",
			RunID:      "run-1",
			Generation: 1,
			Phase:      "running",
			State:      map[string]interface{}{"step": step},
			Metadata:   checkpoint.Metadata{Step: step, Source: "node_completed"},
			Timestamp:  base.Add(time.Duration(step) * time.Second),
			Version:    checkpoint.SchemaVersion,
		}
		if step == 3 {
			cp.Metadata.Tags = []string{"final"}
		}
		require.NoError(t, saver.Save(ctx, cp))
	}

	loaded, err := saver.Load(ctx, "run-1-2")
	require.NoError(t, err)
	assert.EqualValues(t, 2, loaded.State["step"])

	list, err := saver.List(ctx, checkpoint.Filter{RunID: "run-1"})
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "run-1-3", list[0].ID)

	tagged, err := saver.List(ctx, checkpoint.Filter{Tags: []string{"final"}})
	require.NoError(t, err)
	assert.Len(t, tagged, 1)

	require.NoError(t, saver.Delete(ctx, "run-1-1"))
	_, err = saver.Load(ctx, "run-1-1")
	assert.ErrorIs(t, err, checkpoint.ErrCheckpointNotFound)
}

func TestPostgresCheckpointSaver_Errors(t *testing.T) {
	ctx := context.Background()
	saver := NewCheckpointSaver(nil, nil)

	assert.Equal(t, checkpoint.ErrInvalidCheckpointID, saver.Save(ctx, nil))
	_, err := saver.Load(ctx, "")
	assert.Equal(t, checkpoint.ErrInvalidCheckpointID, err)
	assert.Equal(t, checkpoint.ErrInvalidCheckpointID, saver.Delete(ctx, ""))

	valid := &checkpoint.Checkpoint{ID: "c", PipelineID: "p", RunID: "r", State: map[string]interface{}{}}
	assert.ErrorIs(t, saver.Save(ctx, valid), ErrNoPool)
	_, err = saver.Load(ctx, "c")
	assert.ErrorIs(t, err, ErrNoPool)
	_, err = saver.List(ctx, checkpoint.Filter{})
	assert.ErrorIs(t, err, ErrNoPool)
	assert.ErrorIs(t, saver.CreateTables(ctx), ErrNoPool)
}

func TestPostgresCheckpointSaver_BuildListQuery(t *testing.T) {
	saver := NewCheckpointSaver(nil, nil).WithTableName("journal")
	since := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	query, args := saver.buildListQuery(checkpoint.Filter{
		RunID:  "run-1",
		Since:  &since,
		Tags:   []string{"final"},
		Limit:  5,
		Offset: 10,
	})
	assert.Contains(t, query, "FROM journal WHERE 1=1 AND run_id = $1 AND timestamp >= $2 AND tags @> $3")
	assert.Contains(t, query, "ORDER BY timestamp DESC, step DESC LIMIT $4 OFFSET $5")
	assert.Equal(t, []interface{}{"run-1", since, []string{"final"}, 5, 10}, args)

	saver.WithTableName("x; DROP")
	assert.Equal(t, "journal", saver.tableName)
}
