package lexicon

import (
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var corpus = []string{
	"i like cats",
	"i like dogs",
	"you like birds",
	"the cat sat on the mat",
	"the dog sat on the rug",
	"a bird sang in the tree",
	"cats and dogs and birds",
}

func vocabulary(lines []string) map[string]bool {
	v := make(map[string]bool)
	for _, line := range lines {
		for _, w := range strings.Fields(line) {
			v[w] = true
		}
	}
	return v
}

func TestRespondOnEmptyLexicon(t *testing.T) {
	l := New()
	rng := rand.New(rand.NewPCG(1, 1))
	_, ok := l.Respond(rng, l.Source("console"), DefaultParams())
	assert.False(t, ok)
}

func TestRespondUsesOnlyCorpusWords(t *testing.T) {
	vocab := vocabulary(corpus)
	p := DefaultParams()
	p.CocategorizeMagnitude = 64
	p.TravelDistance = 2

	for seed := uint64(1); seed <= 25; seed++ {
		l := New()
		tellAll(l, corpus...)
		rng := rand.New(rand.NewPCG(seed, seed*31))
		for range 5 {
			l.Think(rng, p)
		}

		u, ok := l.Respond(rng, l.Source("elsewhere"), p)
		require.True(t, ok, "seed %d", seed)
		require.NotEmpty(t, u.Instances, "seed %d", seed)
		require.Less(t, u.Seed, len(u.Instances))

		words := strings.Fields(u.Text)
		assert.Len(t, words, len(u.Instances))
		for _, w := range words {
			assert.True(t, vocab[w], "seed %d produced unknown word %q", seed, w)
		}
		for _, w := range strings.Fields(u.Drifted) {
			assert.True(t, vocab[w], "seed %d drifted into unknown word %q", seed, w)
		}
		assert.Len(t, strings.Fields(u.Drifted), len(words), "drift substitutes, never inserts")
	}
}

func TestRespondWithoutStructureRepeatsMessage(t *testing.T) {
	l := New()
	tellAll(l, "hello there world")
	rng := rand.New(rand.NewPCG(5, 6))

	u, ok := l.Respond(rng, l.Source("elsewhere"), DefaultParams())
	require.True(t, ok)
	assert.Equal(t, "hello there world", u.Text)
	assert.Equal(t, u.Text, u.Drifted, "zero travel leaves the text alone")
}

func TestRespondContinuesActiveConversation(t *testing.T) {
	l := New()
	tellAll(l, corpus...)
	src := l.Source("console")
	me := l.Author(src, "me")
	last := l.Tell(src, me, "tell me about the cat")

	rng := rand.New(rand.NewPCG(9, 9))
	for range 10 {
		u, ok := l.Respond(rng, src, DefaultParams())
		require.True(t, ok)
		seed := l.Instance(u.Instances[u.Seed])
		assert.Equal(t, last, seed.Message, "the walk starts in the latest message")
	}
}

func TestRespondToEmptyLastMessage(t *testing.T) {
	l := New()
	src := l.Source("console")
	l.Tell(src, l.Author(src, "me"), "")

	rng := rand.New(rand.NewPCG(2, 3))
	u, ok := l.Respond(rng, src, DefaultParams())
	assert.True(t, ok)
	assert.Empty(t, u.Text)
	assert.Empty(t, u.Instances)
}

func TestRespondFallsBackPastEmptyLastMessage(t *testing.T) {
	l := New()
	src := l.Source("console")
	me := l.Author(src, "me")
	l.Tell(src, me, "hello there world")
	l.Tell(src, me, "")

	rng := rand.New(rand.NewPCG(2, 3))
	for range 10 {
		u, ok := l.Respond(rng, src, DefaultParams())
		require.True(t, ok)
		assert.Equal(t, "hello there world", u.Text)
	}
}

func TestDriftKeepsSeedWord(t *testing.T) {
	p := DefaultParams()
	p.CocategorizeMagnitude = 64
	p.TravelDistance = 3

	drifted := 0
	for seed := uint64(1); seed <= 25; seed++ {
		l := New()
		tellAll(l, corpus...)
		// "i"/"i"/"you" and "cats"/"dogs"/"birds" from the first three lines.
		l.Merge(l.Merge(l.CategoryOf(0), l.CategoryOf(3)), l.CategoryOf(6))
		l.Merge(l.Merge(l.CategoryOf(2), l.CategoryOf(5)), l.CategoryOf(8))
		rng := rand.New(rand.NewPCG(seed, seed+7))
		for range 10 {
			l.Think(rng, p)
		}

		u, ok := l.Respond(rng, l.Source("elsewhere"), p)
		require.True(t, ok)
		seedWord := l.Word(l.Instance(u.Instances[u.Seed]).Word).Name

		text, moved := strings.Fields(u.Text), strings.Fields(u.Drifted)
		require.Len(t, moved, len(text))
		assert.Equal(t, seedWord, moved[u.Seed], "seed %d", seed)
		assert.Equal(t, seedWord, text[u.Seed], "seed %d", seed)
		if u.Text != u.Drifted {
			drifted++
		}
	}
	assert.Positive(t, drifted, "some utterance should drift away from its walk")
}

func TestInitiateStartsNewConversation(t *testing.T) {
	l := New()
	tellAll(l, corpus...)
	src := l.Source("test")
	before, ok := l.ActiveConversation(src)
	require.True(t, ok)

	rng := rand.New(rand.NewPCG(4, 4))
	u, ok := l.Initiate(rng, src, DefaultParams())
	require.True(t, ok)
	assert.NotEmpty(t, u.Text)

	after, ok := l.ActiveConversation(src)
	require.True(t, ok)
	assert.NotEqual(t, before, after)
	assert.Empty(t, l.Conversation(after).Messages)
}

func TestRespondIsReproducibleWithSeed(t *testing.T) {
	p := DefaultParams()
	p.CocategorizeMagnitude = 32
	p.TravelDistance = 1

	run := func() Utterance {
		l := New()
		tellAll(l, corpus...)
		rng := rand.New(rand.NewPCG(42, 43))
		for range 10 {
			l.Think(rng, p)
		}
		u, ok := l.Initiate(rng, l.Source("test"), p)
		require.True(t, ok)
		return u
	}
	assert.Equal(t, run(), run())
}

func TestRespondStopsAtMaxWalk(t *testing.T) {
	l := New()
	tellAll(l, "a b c d e f g h")
	p := DefaultParams()
	p.MaxWalk = 2

	rng := rand.New(rand.NewPCG(8, 8))
	for range 10 {
		u, ok := l.Respond(rng, l.Source("elsewhere"), p)
		require.True(t, ok)
		assert.LessOrEqual(t, len(u.Instances), 5)
		assert.LessOrEqual(t, u.Seed, 2)
	}
}
