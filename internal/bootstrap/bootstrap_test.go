package bootstrap

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/agentflow/agentflow/internal/config"
	"github.com/agentflow/agentflow/internal/core/checkpoint"
	"github.com/agentflow/agentflow/internal/core/graph"
	"github.com/agentflow/agentflow/pkg/prebuilt"
)

const claimsYAML = "../../pkg/validation/testdata/claims.yaml"

func TestCatalog(t *testing.T) {
	ctx := context.Background()

	t.Run("defaults to classic", func(t *testing.T) {
		repo, name, err := Catalog(ctx, config.PipelineConfig{})
		require.NoError(t, err)
		assert.Equal(t, prebuilt.Classic, name)
		names, err := repo.List(ctx)
		require.NoError(t, err)
		assert.Equal(t, []string{prebuilt.Classic, prebuilt.FileInput, prebuilt.Layered}, names)
	})

	t.Run("unknown name", func(t *testing.T) {
		_, _, err := Catalog(ctx, config.PipelineConfig{Name: "missing"})
		assert.ErrorIs(t, err, graph.ErrGraphNotFound)
	})

	t.Run("definition file wins", func(t *testing.T) {
		repo, name, err := Catalog(ctx, config.PipelineConfig{Name: prebuilt.FileInput, File: claimsYAML})
		require.NoError(t, err)
		assert.Equal(t, "claims", name)
		p, err := repo.Get(ctx, name)
		require.NoError(t, err)
		assert.Equal(t, "mini-claims", p.Graph.ID)
	})
}

func TestPipelineNameFromFile(t *testing.T) {
	tests := map[string]string{
		"claims.yaml":            "claims",
		"defs/My Claims.yaml":    "my-claims",
		"/tmp/flow__v2.json":     "flow-v2",
		"Weird--Name!.yml":       "weird-name",
		"-leading and trailing-": "leading-and-trailing",
	}
	for in, want := range tests {
		assert.Equal(t, want, PipelineNameFromFile(in), in)
	}
}

func TestOpenJournal(t *testing.T) {
	ctx := context.Background()
	logger := zap.NewNop()

	t.Run("disabled", func(t *testing.T) {
		cfg := config.Default()
		cfg.Journal.Backend = config.JournalNone
		j, err := OpenJournal(ctx, cfg, logger)
		require.NoError(t, err)
		assert.Nil(t, j.Saver)
		assert.NoError(t, j.Close())
	})

	for _, backend := range []string{config.JournalMemory, config.JournalSQLite} {
		t.Run(backend, func(t *testing.T) {
			cfg := config.Default()
			cfg.Journal.Backend = backend
			cfg.Journal.SQLitePath = filepath.Join(t.TempDir(), "journal.db")
			j, err := OpenJournal(ctx, cfg, logger)
			require.NoError(t, err)
			defer j.Close()

			cp := &checkpoint.Checkpoint{
				ID:         "cp-1",
				PipelineID: "claim-pipeline",
				RunID:      "run-1",
				Generation: 1,
				Phase:      "running",
				State:      map[string]interface{}{"processed": 3},
			}
			require.NoError(t, j.Saver.Save(ctx, cp))
			got, err := j.Saver.Load(ctx, "cp-1")
			require.NoError(t, err)
			assert.Equal(t, "run-1", got.RunID)
			assert.EqualValues(t, 3, got.State["processed"])
		})
	}
}

func TestNilJournalClose(t *testing.T) {
	var j *Journal
	assert.NoError(t, j.Close())
}
