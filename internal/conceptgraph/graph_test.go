package conceptgraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 固态电池 → 锂电池 → 新能源; 华为汽车 → {华为概念, 汽车}; 汽车 → 新能源.
func testGraph() *Graph {
	return New(map[string][]string{
		"固态电池": {"锂电池"},
		"锂电池":  {"新能源"},
		"华为汽车": {"华为概念", "汽车"},
		"汽车":   {"新能源"},
		"新能源":  {},
		"华为概念": {},
	})
}

func TestAncestorChainOrder(t *testing.T) {
	g := testGraph()

	assert.Equal(t, []string{"锂电池", "新能源"}, g.AncestorChain("固态电池"))
	// Direct parents come before any grandparent.
	assert.Equal(t, []string{"华为概念", "汽车", "新能源"}, g.AncestorChain("华为汽车"))
	assert.Empty(t, g.AncestorChain("新能源"))
	assert.Empty(t, g.AncestorChain("不存在"))
}

func TestChainExcludesSelf(t *testing.T) {
	g := testGraph()
	for _, name := range g.allConcepts() {
		assert.NotContains(t, g.AncestorChain(name), name, name)
	}
}

func TestDescendantsMirrorsChains(t *testing.T) {
	g := testGraph()

	assert.Equal(t, []string{"固态电池", "汽车", "锂电池"}, g.Descendants("新能源"))

	// p in chain(c) iff c in descendants(p), for every pair.
	for _, c := range g.allConcepts() {
		for _, p := range g.allConcepts() {
			inChain := g.IsAncestor(p, c)
			assert.Equal(t, inChain, g.HasDescendant(p, c), "%s / %s", p, c)
		}
	}
}

func TestRelated(t *testing.T) {
	g := testGraph()

	assert.ElementsMatch(t, []string{"新能源", "固态电池"}, g.Related("锂电池"))
	assert.ElementsMatch(t, []string{"固态电池", "汽车", "锂电池"}, g.Related("新能源"))
	assert.Nil(t, g.Related("不存在"))
}

func TestLowestCommonAncestor(t *testing.T) {
	g := testGraph()

	lca, ok := g.LowestCommonAncestor([]string{"固态电池", "汽车"})
	require.True(t, ok)
	assert.Equal(t, "新能源", lca)

	// A concept is its own ancestor.
	lca, ok = g.LowestCommonAncestor([]string{"固态电池", "锂电池"})
	require.True(t, ok)
	assert.Equal(t, "锂电池", lca)

	lca, ok = g.LowestCommonAncestor([]string{"华为汽车"})
	require.True(t, ok)
	assert.Equal(t, "华为汽车", lca)

	_, ok = g.LowestCommonAncestor([]string{"华为概念", "锂电池"})
	assert.False(t, ok)

	_, ok = g.LowestCommonAncestor(nil)
	assert.False(t, ok)
}

func TestCycleSafety(t *testing.T) {
	g := New(map[string][]string{
		"a": {"b"},
		"b": {"c"},
		"c": {"a"},
		"d": {"a"},
	})

	// Chains stay finite even when the parent edges loop back.
	assert.Equal(t, []string{"b", "c", "a"}, g.AncestorChain("a"))
	assert.Equal(t, []string{"a", "b", "c"}, g.AncestorChain("d"))

	cycles := g.Cycles()
	require.Len(t, cycles, 1)
	assert.Len(t, cycles[0], 3)
}

func TestDAGHasNoCycles(t *testing.T) {
	assert.Empty(t, testGraph().Cycles())
}

func TestDedupKeepsFirstOccurrence(t *testing.T) {
	// Diamond: 猪肉 → {农业, 食品} → 消费.
	g := New(map[string][]string{
		"猪肉": {"农业", "食品"},
		"农业": {"消费"},
		"食品": {"消费"},
		"消费": {},
	})
	assert.Equal(t, []string{"农业", "食品", "消费"}, g.AncestorChain("猪肉"))
}
