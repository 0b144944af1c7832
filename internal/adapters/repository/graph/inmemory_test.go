package graphrepo

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coregraph "github.com/agentflow/agentflow/internal/core/graph"
	"github.com/agentflow/agentflow/internal/core/sequencer"
	"github.com/agentflow/agentflow/pkg/prebuilt"
)

func line(t *testing.T) *prebuilt.Pipeline {
	t.Helper()
	g := coregraph.New("line", "Line")
	require.NoError(t, g.AddNode(coregraph.NewNode("in", "In", coregraph.CategoryInput)))
	require.NoError(t, g.AddNode(coregraph.NewNode("out", "Out", coregraph.CategoryTerminal)))
	require.NoError(t, g.Connect("in", "out"))
	g.Start = []string{"in"}
	g.Terminal = "out"
	return &prebuilt.Pipeline{Graph: g, Timing: sequencer.DefaultTiming(), Offsets: map[string]float64{"in": 0.1}}
}

func TestInMemoryGraphRepository_Get_NotFound(t *testing.T) {
	repo := NewInMemoryGraphRepository()

	p, err := repo.Get(context.Background(), "does-not-exist")
	assert.Nil(t, p)
	assert.ErrorIs(t, err, coregraph.ErrGraphNotFound)
	assert.ErrorIs(t, repo.Delete(context.Background(), "does-not-exist"), coregraph.ErrGraphNotFound)
}

func TestInMemoryGraphRepository_SaveAndGet(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryGraphRepository()
	p := line(t)

	require.NoError(t, repo.Save(ctx, "line", p))

	loaded, err := repo.Get(ctx, "line")
	require.NoError(t, err)
	assert.Equal(t, "line", loaded.Graph.ID)
	assert.Equal(t, 0.1, loaded.Offsets["in"])

	// stored copies are isolated from the caller
	p.Graph.Node("in").Label = "changed"
	loaded.Offsets["in"] = 0.9
	again, err := repo.Get(ctx, "line")
	require.NoError(t, err)
	assert.Equal(t, "In", again.Graph.Node("in").Label)
	assert.Equal(t, 0.1, again.Offsets["in"])
}

func TestInMemoryGraphRepository_SaveRejectsInvalid(t *testing.T) {
	ctx := context.Background()
	repo := NewInMemoryGraphRepository()

	assert.Error(t, repo.Save(ctx, "Bad Name", line(t)))
	assert.Error(t, repo.Save(ctx, "nil", nil))

	dead := line(t)
	require.NoError(t, dead.Graph.AddNode(coregraph.NewNode("sink", "Sink", coregraph.CategoryUtility)))
	require.NoError(t, dead.Graph.Connect("in", "sink"))
	assert.ErrorIs(t, repo.Save(ctx, "dead", dead), coregraph.ErrDeadEnd)

	slow := line(t)
	slow.Timing.TickInterval = 0
	assert.ErrorIs(t, repo.Save(ctx, "slow", slow), sequencer.ErrInvalidTiming)

	names, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestSeed(t *testing.T) {
	ctx := context.Background()
	repo, err := Seed(ctx, prebuilt.DefaultRegistry)
	require.NoError(t, err)

	names, err := repo.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{prebuilt.Classic, prebuilt.FileInput, prebuilt.Layered}, names)

	p, err := repo.Get(ctx, prebuilt.FileInput)
	require.NoError(t, err)
	assert.True(t, p.Graph.RequiresFile())

	require.NoError(t, repo.Delete(ctx, prebuilt.FileInput))
	names, _ = repo.List(ctx)
	assert.Equal(t, []string{prebuilt.Classic}, names)
}
