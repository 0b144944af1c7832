// Package bootstrap turns a loaded Config into the pieces both binaries
// share: the logger, the journal backend and the catalog of pipelines.
package bootstrap

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	graphrepo "github.com/agentflow/agentflow/internal/adapters/repository/graph"
	"github.com/agentflow/agentflow/internal/adapters/repository/memory"
	"github.com/agentflow/agentflow/internal/adapters/repository/postgres"
	"github.com/agentflow/agentflow/internal/adapters/repository/sqlite"
	"github.com/agentflow/agentflow/internal/config"
	"github.com/agentflow/agentflow/internal/core/checkpoint"
	"github.com/agentflow/agentflow/internal/logging"
	"github.com/agentflow/agentflow/pkg/prebuilt"
	"github.com/agentflow/agentflow/pkg/validation"
)

// Journal is an open checkpoint backend. Saver is nil when journaling is
// disabled.
type Journal struct {
	Saver   checkpoint.Saver
	Backend string
	close   func() error
}

// Close releases the backend
func (j *Journal) Close() error {
	if j == nil || j.close == nil {
		return nil
	}
	return j.close()
}

// Logger builds the process logger from cfg
func Logger(cfg config.LogConfig) (*zap.Logger, error) {
	return logging.New(cfg.Level, cfg.Format)
}

// OpenJournal opens the configured checkpoint backend
func OpenJournal(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*Journal, error) {
	backend := cfg.Journal.Backend
	if backend == config.JournalNone {
		return &Journal{Backend: backend}, nil
	}
	ser, err := cfg.Serializer()
	if err != nil {
		return nil, err
	}

	j := &Journal{Backend: backend}
	switch backend {
	case config.JournalMemory:
		saver := memory.NewInMemorySaver(memory.InMemoryConfig{
			DefaultTTL:     cfg.Journal.TTL,
			MaxMemoryBytes: cfg.Journal.MaxBytes,
			Serializer:     ser,
		})
		j.Saver, j.close = saver, saver.Close
	case config.JournalSQLite:
		saver, err := sqlite.Open(ctx, cfg.Journal.SQLitePath, ser)
		if err != nil {
			return nil, err
		}
		j.Saver, j.close = saver, saver.Close
	case config.JournalPostgres:
		saver, err := postgres.Connect(ctx, cfg.Journal.PostgresDSN, ser)
		if err != nil {
			return nil, err
		}
		j.Saver = saver
		j.close = func() error {
			saver.Close()
			return nil
		}
	default:
		return nil, fmt.Errorf("unknown journal backend %q", backend)
	}

	logger.Info("journal opened",
		zap.String("backend", backend),
		zap.String("format", ser.Format()),
	)
	return j, nil
}

// Catalog seeds a pipeline repository with the prebuilt pipelines and, when
// cfg names a definition file, the pipeline it defines. It returns the name
// runs should default to.
func Catalog(ctx context.Context, cfg config.PipelineConfig) (*graphrepo.InMemoryGraphRepository, string, error) {
	repo, err := graphrepo.Seed(ctx, prebuilt.DefaultRegistry)
	if err != nil {
		return nil, "", err
	}
	name := cfg.Name
	if name == "" {
		name = prebuilt.Classic
	}
	if cfg.File == "" {
		if _, err := repo.Get(ctx, name); err != nil {
			return nil, "", err
		}
		return repo, name, nil
	}

	p, err := LoadPipeline(cfg.File)
	if err != nil {
		return nil, "", err
	}
	name = PipelineNameFromFile(cfg.File)
	if err := repo.Save(ctx, name, p); err != nil {
		return nil, "", err
	}
	return repo, name, nil
}

// LoadPipeline reads a YAML or JSON pipeline definition
func LoadPipeline(path string) (*prebuilt.Pipeline, error) {
	def, err := validation.LoadPipelineFile(path)
	if err != nil {
		return nil, err
	}
	return def.Pipeline()
}

// PipelineNameFromFile derives a selectable name from a definition path:
// "defs/My Claims.yaml" becomes "my-claims".
func PipelineNameFromFile(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	var b strings.Builder
	dash := false
	for _, r := range strings.ToLower(base) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
			dash = false
		case b.Len() > 0 && !dash:
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
