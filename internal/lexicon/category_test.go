package lexicon

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMergeWithItselfIsNoop(t *testing.T) {
	l := New()
	tellAll(l, "alpha")
	c := l.CategoryOf(0)
	before := l.Stats()

	assert.Equal(t, c, l.Merge(c, c))
	assert.True(t, l.Live(c))
	assert.Equal(t, before, l.Stats())
}

func TestMergeUnionsMembersAndRewiresLinks(t *testing.T) {
	l := New()
	tellAll(l, "a", "b", "c", "d")
	ca, cb, cc, cd := l.CategoryOf(0), l.CategoryOf(1), l.CategoryOf(2), l.CategoryOf(3)

	require.True(t, l.link(ca, cc, preLinks))
	require.True(t, l.link(cb, cc, preLinks))
	require.True(t, l.link(ca, cb, postLinks))
	require.True(t, l.link(cb, cd, postLinks))

	merged := l.Merge(ca, cb)

	assert.False(t, l.Live(ca))
	assert.False(t, l.Live(cb))
	got := l.Category(merged)
	assert.ElementsMatch(t, []InstanceID{0, 1}, got.Instances)
	assert.Equal(t, []CategoryID{cc}, got.Pre, "duplicate edges collapse")
	assert.Equal(t, []CategoryID{cd}, got.Post, "the edge between the inputs is dropped")
	assert.Equal(t, []CategoryID{merged}, l.Category(cc).Pre)
	assert.Equal(t, []CategoryID{merged}, l.Category(cd).Post)
	assert.Equal(t, merged, l.CategoryOf(0))
	assert.Equal(t, merged, l.CategoryOf(1))
	assert.Equal(t, 3, l.Stats().Categories)
	requireInvariants(t, l)
}

func TestLinkIsSymmetricAndIgnoresSelf(t *testing.T) {
	l := New()
	tellAll(l, "x", "y")
	cx, cy := l.CategoryOf(0), l.CategoryOf(1)

	assert.False(t, l.link(cx, cx, preLinks))
	assert.True(t, l.link(cx, cy, preLinks))
	assert.False(t, l.link(cy, cx, preLinks), "already linked from the other side")
	assert.True(t, l.ArePrecocategories(cy, cx))
	assert.False(t, l.ArePostcocategories(cx, cy))
	assert.True(t, l.ArePostcocategories(cx, cx), "identity is always related")

	assert.True(t, l.unlink(cy, cx, preLinks))
	assert.False(t, l.ArePrecocategories(cx, cy))
	requireInvariants(t, l)
}

func TestCocategorizeRatioThreshold(t *testing.T) {
	l := New()
	// Different lengths keep learning from merging anything.
	tellAll(l, "p a1", "k p a2", "k k p b1", "k k k v b2")
	const (
		p1, a1 InstanceID = 0, 1
		a2     InstanceID = 4
		b1     InstanceID = 8
		v, b2  InstanceID = 12, 13
	)
	require.Equal(t, 14, l.Stats().Instances)

	catA := l.Merge(l.CategoryOf(a1), l.CategoryOf(a2))
	catB := l.Merge(l.CategoryOf(b1), l.CategoryOf(b2))

	params := DefaultParams()
	params.CocategorizeRatio = 0.4
	params.BackwardEdgeDistance = 0
	params.BackwardWordDistance = 0

	// Two of four pairs share a preceding "p"; round(4*0.4)+1 = 3 are needed.
	out := l.Cocategorize(catA, catB, params)
	assert.Equal(t, Unchanged, out.Pre)
	assert.False(t, l.ArePrecocategories(catA, catB))

	// Linking "p" with "v" makes the third pair coincide.
	require.True(t, l.link(l.CategoryOf(p1), l.CategoryOf(v), preLinks))
	out = l.Cocategorize(catA, catB, params)
	assert.Equal(t, Linked, out.Pre)
	assert.True(t, l.ArePrecocategories(catA, catB))
	assert.True(t, l.ArePrecocategories(catB, catA))

	// Evidence going away retracts the link again.
	require.True(t, l.unlink(l.CategoryOf(p1), l.CategoryOf(v), preLinks))
	out = l.Cocategorize(catA, catB, params)
	assert.Equal(t, Unlinked, out.Pre)
	assert.False(t, l.ArePrecocategories(catA, catB))
	requireInvariants(t, l)
}

func TestCocategorizeSameCategoryIsNoop(t *testing.T) {
	l := New()
	tellAll(l, "solo word")
	c := l.CategoryOf(0)
	assert.Equal(t, Outcome{}, l.Cocategorize(c, c, DefaultParams()))
	assert.Empty(t, l.Category(c).Pre)
	assert.Empty(t, l.Category(c).Post)
}

func TestCocategorizeHugeRatioNeverLinks(t *testing.T) {
	for _, ratio := range []float64{1, 1e300, math.Inf(1), math.NaN()} {
		l := New()
		tellAll(l, "a x b", "c y d")
		params := DefaultParams()
		params.CocategorizeRatio = ratio

		out := l.Cocategorize(l.CategoryOf(1), l.CategoryOf(4), params)
		assert.Equal(t, Unchanged, out.Pre, "ratio %v", ratio)
		assert.Equal(t, Unchanged, out.Post, "ratio %v", ratio)
	}
}

func TestCoincidencesNeeded(t *testing.T) {
	tests := []struct {
		total int
		ratio float64
		want  int
	}{
		{4, 0.4, 3},
		{4, 0, 1},
		{0, 0.4, 1},
		{10, 0.25, 4},
		{4, 1, 5},
		{4, 1e300, 5},
		{4, math.Inf(1), 5},
		{4, math.NaN(), 5},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, coincidencesNeeded(tt.total, tt.ratio), "total %d ratio %v", tt.total, tt.ratio)
	}
}

func TestValidateRejectsNonFiniteRatio(t *testing.T) {
	for _, ratio := range []float64{math.Inf(1), math.Inf(-1), math.NaN(), -0.1} {
		p := DefaultParams()
		p.CocategorizeRatio = ratio
		assert.Error(t, p.Validate(), "ratio %v", ratio)
	}
	p := DefaultParams()
	p.CocategorizeRatio = 1e300
	assert.NoError(t, p.Validate(), "finite ratios past 1 only make linking impossible")
}
