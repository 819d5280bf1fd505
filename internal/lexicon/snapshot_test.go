package lexicon

import (
	"math/rand/v2"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func learnedLexicon(t *testing.T) *Lexicon {
	t.Helper()
	l := New()
	tellAll(l, corpus...)
	src := l.Source("console")
	me := l.Author(src, "me")
	l.Tell(src, me, "the cat likes the dog")
	l.SwitchConversation(src)
	l.Tell(src, me, "")

	rng := rand.New(rand.NewPCG(17, 71))
	p := DefaultParams()
	p.CocategorizeMagnitude = 128
	for range 10 {
		l.Think(rng, p)
	}
	return l
}

func TestSnapshotRoundTrip(t *testing.T) {
	l := learnedLexicon(t)
	snap := l.Snapshot()

	restored, err := Restore(snap)
	require.NoError(t, err)
	requireInvariants(t, restored)

	if diff := cmp.Diff(snap, restored.Snapshot()); diff != "" {
		t.Fatalf("snapshot changed across restore (-want +got):\n%s", diff)
	}
	assert.Equal(t, l.Stats(), restored.Stats())

	// Both continue identically from the same seed.
	p := DefaultParams()
	a, okA := l.Respond(rand.New(rand.NewPCG(1, 2)), l.Source("console"), p)
	b, okB := restored.Respond(rand.New(rand.NewPCG(1, 2)), restored.Source("console"), p)
	require.Equal(t, okA, okB)
	assert.Equal(t, a.Text, b.Text)
	assert.Equal(t, a.Drifted, b.Drifted)
}

func TestRestoreRejectsCorruption(t *testing.T) {
	cases := map[string]func(s *Snapshot){
		"dangling author": func(s *Snapshot) { s.Messages[0].Author = 999 },
		"misplaced word":  func(s *Snapshot) { s.Words[0].ID = 5 },
		"orphan instance": func(s *Snapshot) {
			s.Categories[0].Instances = s.Categories[0].Instances[1:]
		},
		"shared instance": func(s *Snapshot) {
			s.Categories[1].Instances = append(s.Categories[1].Instances, s.Categories[0].Instances[0])
		},
		"one-sided link": func(s *Snapshot) {
			s.Categories[0].Pre = append(s.Categories[0].Pre, int64(len(s.Categories)-1))
		},
		"self link": func(s *Snapshot) { s.Categories[0].Post = []int64{0} },
		"foreign active conversation": func(s *Snapshot) {
			s.Active = append(s.Active, ActiveRecord{Source: 0, Conversation: int64(len(s.Conversations) - 1)})
		},
	}
	for name, corrupt := range cases {
		t.Run(name, func(t *testing.T) {
			l := New()
			tellAll(l, "one two", "three four")
			l.Tell(l.Source("other"), l.Author(l.Source("other"), "x"), "five")
			snap := l.Snapshot()
			corrupt(snap)

			_, err := Restore(snap)
			assert.ErrorIs(t, err, ErrCorruptSnapshot)
		})
	}
}

func TestRestoreEmptySnapshot(t *testing.T) {
	l, err := Restore(&Snapshot{})
	require.NoError(t, err)
	assert.Zero(t, l.Len())
	assert.Equal(t, Stats{}, l.Stats())
}

func TestShowCategoriesListsSharedOnly(t *testing.T) {
	l := New()
	tellAll(l, "i like cats", "i like dogs", "solo")

	lines := l.ShowCategories()
	require.NotEmpty(t, lines)
	assert.Regexp(t, `^Category \d+:$`, lines[0])
	assert.Contains(t, lines, "\tcats ~ i like cats")
	assert.Contains(t, lines, "\tdogs ~ i like dogs")
	for _, line := range lines {
		assert.NotContains(t, line, "solo")
	}
}

func TestFindRelation(t *testing.T) {
	l := New()
	tellAll(l, "i like cats", "i like dogs", "we eat fish")

	lines, err := l.FindRelation("cats", "dogs")
	require.NoError(t, err)
	assert.Regexp(t, `^Category \d+:$`, lines[0])
	assert.Contains(t, lines, "\tdogs ~ i like dogs")

	lines, err = l.FindRelation("cats", "fish")
	require.NoError(t, err)
	assert.Equal(t, []string{`No relation between "cats" and "fish"`}, lines)

	_, err = l.FindRelation("cats", "zebra")
	assert.ErrorIs(t, err, ErrUnknownWord)
	assert.Contains(t, err.Error(), `"zebra"`)

	_, err = l.FindRelation("yak", "zebra")
	assert.ErrorIs(t, err, ErrUnknownWord)
	assert.Contains(t, err.Error(), "neither")
}

func TestFindRelationThroughCocategory(t *testing.T) {
	l := New()
	tellAll(l, "red", "blue")
	require.True(t, l.link(l.CategoryOf(0), l.CategoryOf(1), postLinks))

	lines, err := l.FindRelation("red", "blue")
	require.NoError(t, err)
	assert.Regexp(t, `^Post-Cocategory \d+ of \d+:$`, lines[0])
	assert.Equal(t, "\tblue ~ blue", lines[1])
}

func TestStatsCountsLinksOnce(t *testing.T) {
	l := New()
	tellAll(l, "a", "b", "c")
	l.link(l.CategoryOf(0), l.CategoryOf(1), preLinks)
	l.link(l.CategoryOf(1), l.CategoryOf(2), postLinks)
	l.link(l.CategoryOf(0), l.CategoryOf(2), postLinks)

	s := l.Stats()
	assert.Equal(t, 1, s.PreLinks)
	assert.Equal(t, 2, s.PostLinks)
	assert.Equal(t, 3, s.Categories)
	assert.Equal(t, 0, s.Shared)
	assert.Equal(t, 3, s.Messages)
	assert.Equal(t, 1, s.Sources)
}
