package graph

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rohankatakam/repograph/internal/entity"
	"github.com/rohankatakam/repograph/internal/models"
)

func TestClassifyRisk(t *testing.T) {
	tests := []struct {
		name     string
		affected int
		depth    int
		want     RiskLevel
	}{
		{name: "nothing affected", affected: 0, depth: 0, want: RiskLow},
		{name: "many shallow", affected: 12, depth: 2, want: RiskHigh},
		{name: "few deep", affected: 3, depth: 5, want: RiskHigh},
		{name: "few shallow", affected: 2, depth: 1, want: RiskLow},
		{name: "medium count", affected: 6, depth: 1, want: RiskMedium},
		{name: "medium depth", affected: 1, depth: 3, want: RiskMedium},
		{name: "count boundary", affected: 10, depth: 2, want: RiskMedium},
		{name: "depth boundary", affected: 5, depth: 4, want: RiskMedium},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ClassifyRisk(tt.affected, tt.depth))
		})
	}
}

func TestTraceImpact_Chain(t *testing.T) {
	// c calls b calls a
	incoming := map[string][]string{"a": {"b"}, "b": {"c"}}

	trace := TraceImpact(incoming, []string{"a"}, DefaultImpactLimits())
	assert.Equal(t, map[string]int{"b": 1, "c": 2}, trace.Depths)
	assert.Equal(t, [][]string{{"c", "b", "a"}}, trace.Chains)
	assert.Equal(t, 2, trace.MaxDepth)
	assert.False(t, trace.Truncated)
}

func TestTraceImpact_Cycle(t *testing.T) {
	incoming := map[string][]string{"a": {"b"}, "b": {"a"}}

	trace := TraceImpact(incoming, []string{"a"}, DefaultImpactLimits())
	assert.Equal(t, map[string]int{"b": 1}, trace.Depths)
	assert.Equal(t, [][]string{{"b", "a"}}, trace.Chains)
	assert.False(t, trace.Truncated)
}

func TestTraceImpact_MinimalDepth(t *testing.T) {
	// d reaches a directly and through b
	incoming := map[string][]string{"a": {"b", "d"}, "b": {"d"}}

	trace := TraceImpact(incoming, []string{"a"}, DefaultImpactLimits())
	assert.Equal(t, 1, trace.Depths["d"])
	assert.Len(t, trace.Chains, 2)
}

func TestTraceImpact_MaxDepthFollowsLongestChain(t *testing.T) {
	// a calls t directly and through b -> c -> d -> e
	incoming := map[string][]string{
		"t": {"a", "e"},
		"e": {"d"},
		"d": {"c"},
		"c": {"b"},
		"b": {"a"},
	}

	trace := TraceImpact(incoming, []string{"t"}, DefaultImpactLimits())
	assert.Equal(t, 1, trace.Depths["a"], "affected depth stays minimal")
	assert.Equal(t, 4, trace.Depths["b"])
	assert.Equal(t, 5, trace.MaxDepth)
	assert.Contains(t, trace.Chains, []string{"a", "b", "c", "d", "e", "t"})
	assert.Contains(t, trace.Chains, []string{"a", "t"})
	assert.False(t, trace.Truncated)
	assert.Equal(t, RiskHigh, ClassifyRisk(len(trace.Depths), trace.MaxDepth))
}

func TestTraceImpact_Bounds(t *testing.T) {
	t.Run("depth", func(t *testing.T) {
		incoming := map[string][]string{}
		for i := 0; i < 10; i++ {
			incoming[fmt.Sprintf("n%d", i)] = []string{fmt.Sprintf("n%d", i+1)}
		}
		trace := TraceImpact(incoming, []string{"n0"}, ImpactLimits{MaxDepth: 3})
		assert.True(t, trace.Truncated)
		assert.Equal(t, "max_depth", trace.Limit)
		assert.Equal(t, 3, trace.MaxDepth)
		assert.Len(t, trace.Depths, 3)
	})

	t.Run("fan out", func(t *testing.T) {
		var callers []string
		for i := 0; i < 30; i++ {
			callers = append(callers, fmt.Sprintf("c%02d", i))
		}
		trace := TraceImpact(map[string][]string{"t": callers}, []string{"t"}, ImpactLimits{MaxFanOut: 5})
		assert.True(t, trace.Truncated)
		assert.Len(t, trace.Depths, 5)
	})

	t.Run("chains", func(t *testing.T) {
		var callers []string
		for i := 0; i < 10; i++ {
			callers = append(callers, fmt.Sprintf("c%d", i))
		}
		trace := TraceImpact(map[string][]string{"t": callers}, []string{"t"}, ImpactLimits{MaxChains: 4})
		assert.True(t, trace.Truncated)
		assert.Len(t, trace.Chains, 4)
		assert.Len(t, trace.Depths, 10)
	})

	t.Run("dense graph terminates", func(t *testing.T) {
		incoming := map[string][]string{}
		ids := make([]string, 12)
		for i := range ids {
			ids[i] = fmt.Sprintf("n%02d", i)
		}
		for _, id := range ids {
			for _, other := range ids {
				if other != id {
					incoming[id] = append(incoming[id], other)
				}
			}
		}
		trace := TraceImpact(incoming, []string{"n00"}, DefaultImpactLimits())
		assert.True(t, trace.Truncated)
		assert.Len(t, trace.Depths, 11)
	})
}

func TestRefactoringImpact(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)
	seedRepo(t, store, "r1")
	b := NewBuilder(store, testLogger(), 0.5)

	fn := func(name string, line int) *models.Node {
		n, _, err := b.UpsertNode(ctx, "r1", models.NodeCodeElement, name, models.Properties{
			entity.PropFilePath: "src/app.ts", entity.PropElementType: "function", entity.PropLineNumber: fmt.Sprint(line),
		})
		require.NoError(t, err)
		return n
	}
	target := fn("saveUser", 40)
	mid := fn("register", 20)
	top := fn("handler", 1)
	unrelated := fn("formatDate", 60)

	_, _, err := b.UpsertEdge(ctx, "r1", mid.ID, target.ID, models.EdgeCalls, 0.9, "saveUser() call")
	require.NoError(t, err)
	_, _, err = b.UpsertEdge(ctx, "r1", top.ID, mid.ID, models.EdgeCalls, 0.9, "register() call")
	require.NoError(t, err)
	_, _, err = b.UpsertEdge(ctx, "r1", target.ID, unrelated.ID, models.EdgeCalls, 0.9, "formatDate() call")
	require.NoError(t, err)

	q := NewQueryEngine(store, testLogger())

	report, err := q.RefactoringImpact(ctx, "r1", []string{target.ID, "missing"}, ImpactLimits{})
	require.NoError(t, err)
	require.Len(t, report.AffectedNodes, 2)
	assert.Equal(t, mid.ID, report.AffectedNodes[0].Node.ID)
	assert.Equal(t, 1, report.AffectedNodes[0].Depth)
	assert.Equal(t, top.ID, report.AffectedNodes[1].Node.ID)
	assert.Equal(t, 2, report.AffectedNodes[1].Depth)
	assert.Equal(t, [][]string{{top.ID, mid.ID, target.ID}}, report.CallChains)
	assert.Equal(t, 2, report.MaxDepth)
	assert.Equal(t, RiskLow, report.RiskLevel)
	assert.False(t, report.Truncated)
	assert.Equal(t, []string{"missing"}, report.UnknownTargets)

	leaf, err := q.RefactoringImpact(ctx, "r1", []string{top.ID}, ImpactLimits{})
	require.NoError(t, err)
	assert.Empty(t, leaf.AffectedNodes)
	assert.Empty(t, leaf.CallChains)
	assert.Equal(t, RiskLow, leaf.RiskLevel)
}
