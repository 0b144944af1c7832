package layout

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentflow/agentflow/internal/core/graph"
)

// fan builds in -> {e1..e5} -> agg -> out.
func fan(t *testing.T) *graph.Graph {
	t.Helper()
	g := graph.New("fan", "Fan")
	require.NoError(t, g.AddNode(graph.NewNode("in", "In", graph.CategoryInput)))
	require.NoError(t, g.AddNode(graph.NewNode("agg", "Agg", graph.CategoryAggregate)))
	require.NoError(t, g.AddNode(graph.NewNode("out", "Out", graph.CategoryTerminal)))
	for _, id := range []string{"e1", "e2", "e3", "e4", "e5"} {
		require.NoError(t, g.AddNode(graph.NewNode(id, id, graph.CategoryExtractor)))
		require.NoError(t, g.Connect("in", id))
		require.NoError(t, g.Connect(id, "agg"))
	}
	require.NoError(t, g.Connect("agg", "out"))
	g.Start = []string{"in"}
	g.Terminal = "out"
	return g
}

func engine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	e, err := NewEngine(fan(t), cfg)
	require.NoError(t, err)
	return e
}

func TestEngine_EmptyCanvas(t *testing.T) {
	e := engine(t, DefaultConfig())
	assert.Empty(t, e.ComputePositions(0, 600))
	assert.Empty(t, e.ComputePositions(800, 0))
	assert.Empty(t, e.ComputePositions(-1, -1))
}

func TestEngine_ColumnsSpreadEvenly(t *testing.T) {
	e := engine(t, DefaultConfig())
	pos := e.ComputePositions(1000, 1200)
	require.Len(t, pos, 8)

	// usable width 1000 - 2*50 - 160 = 740 over 3 gaps
	assert.InDelta(t, 50, pos["in"].X, 1e-9)
	assert.InDelta(t, 50+740.0/3, pos["e1"].X, 1e-9)
	assert.InDelta(t, 50+2*740.0/3, pos["agg"].X, 1e-9)
	assert.InDelta(t, 790, pos["out"].X, 1e-9)

	// a single node sits on the vertical centre
	assert.InDelta(t, 600-40, pos["in"].Y, 1e-9)
	// five nodes on rows of 1200/6
	assert.InDelta(t, 200-40, pos["e1"].Y, 1e-9)
	assert.InDelta(t, 1000-40, pos["e5"].Y, 1e-9)
}

func TestEngine_MinSpacingOnEveryCanvas(t *testing.T) {
	cfg := DefaultConfig()
	e := engine(t, cfg)
	sizes := [][2]float64{{1, 1}, {320, 90}, {640, 300}, {800, 480}, {1280, 720}, {1920, 1080}, {4000, 4000}}
	for _, size := range sizes {
		pos := e.ComputePositions(size[0], size[1])
		require.Len(t, pos, 8, "size %v", size)
		for _, col := range e.Columns() {
			for j := 1; j < len(col); j++ {
				gap := pos[col[j]].Y - pos[col[j-1]].Y - cfg.NodeHeight
				assert.GreaterOrEqual(t, gap, cfg.MinSpacing-1e-9, "size %v between %s and %s", size, col[j-1], col[j])
			}
		}
	}
}

func TestEngine_CompressedColumnIsCentred(t *testing.T) {
	cfg := DefaultConfig()
	e := engine(t, cfg)
	pos := e.ComputePositions(1000, 300)

	pitch := cfg.NodeHeight + cfg.MinSpacing
	top := pos["e1"].Y
	bottom := pos["e5"].Y + cfg.NodeHeight
	assert.InDelta(t, 4*pitch, pos["e5"].Y-top, 1e-9)
	assert.InDelta(t, 150, (top+bottom)/2, 1e-9)
}

func TestEngine_Offsets(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Offsets = map[string]float64{"in": -0.5}
	e := engine(t, cfg)
	pos := e.ComputePositions(1000, 800)
	assert.InDelta(t, 400-40-200, pos["in"].Y, 1e-9)
}

func TestEngine_SingleColumn(t *testing.T) {
	g := graph.New("solo", "Solo")
	require.NoError(t, g.AddNode(graph.NewNode("a", "A", graph.CategoryInput).InColumn(0)))
	require.NoError(t, g.AddNode(graph.NewNode("b", "B", graph.CategoryTerminal).InColumn(0)))
	require.NoError(t, g.Connect("a", "b"))
	g.Start = []string{"a"}
	g.Terminal = "b"
	e, err := NewEngine(g, DefaultConfig())
	require.NoError(t, err)

	pos := e.ComputePositions(400, 600)
	assert.InDelta(t, 120, pos["a"].X, 1e-9)
	assert.InDelta(t, 120, pos["b"].X, 1e-9)
	assert.Less(t, pos["a"].Y, pos["b"].Y)
}

func TestMemo_Positions(t *testing.T) {
	e := engine(t, DefaultConfig())
	m := NewMemo(e)

	first := m.Positions(1280, 720)
	first["in"] = Point{}
	second := m.Positions(1280, 720)
	if diff := cmp.Diff(e.ComputePositions(1280, 720), second); diff != "" {
		t.Fatalf("memoized positions differ (-want +got):\n%s", diff)
	}
	assert.NotEqual(t, first["in"], second["in"], "callers get their own copy")
	assert.Empty(t, m.Positions(0, 0))
}
