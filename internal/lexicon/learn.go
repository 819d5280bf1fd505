package lexicon

import "math/rand/v2"

// MismatchKind classifies how two messages differ.
type MismatchKind int

const (
	// MismatchNone means the messages are not comparable or nowhere differ.
	MismatchNone MismatchKind = iota
	MismatchOne
	MismatchMultiple
)

// Mismatch compares two messages of equal length position by position. A
// position differs when both its word and its category differ. For exactly
// one such position the pair of instances there is returned.
func (l *Lexicon) Mismatch(a, b MessageID) (MismatchKind, [2]InstanceID) {
	ma, mb := l.messages[a].Instances, l.messages[b].Instances
	if a == b || len(ma) != len(mb) {
		return MismatchNone, [2]InstanceID{}
	}

	kind := MismatchNone
	var pair [2]InstanceID
	for i := range ma {
		x, y := l.instances[ma[i]], l.instances[mb[i]]
		if x.Word == y.Word || x.Category == y.Category {
			continue
		}
		if kind == MismatchOne {
			return MismatchMultiple, [2]InstanceID{}
		}
		kind = MismatchOne
		pair = [2]InstanceID{ma[i], mb[i]}
	}
	return kind, pair
}

// Learn merges the categories behind every single-word difference between
// message m and the messages sharing a word with it. It is skipped when m was
// already learned since the last message arrived. Returns the number of merges.
func (l *Lexicon) Learn(m MessageID) int {
	if l.messages[m].learnedAt == len(l.messages) {
		return 0
	}

	var pairs [][2]InstanceID
	seen := map[MessageID]struct{}{m: {}}
	for _, ins := range l.messages[m].Instances {
		for _, other := range l.words[l.instances[ins].Word].Instances {
			om := l.instances[other].Message
			if _, ok := seen[om]; ok {
				continue
			}
			seen[om] = struct{}{}
			if kind, pair := l.Mismatch(m, om); kind == MismatchOne {
				pairs = append(pairs, pair)
			}
		}
	}

	merges := 0
	for _, pair := range pairs {
		a, b := l.instances[pair[0]].Category, l.instances[pair[1]].Category
		if a != b {
			l.Merge(a, b)
			merges++
		}
	}

	l.messages[m].learnedAt = len(l.messages)
	return merges
}

// ThinkReport summarizes one think step.
type ThinkReport struct {
	Merges   int
	Attempts int
	Linked   int
	Unlinked int
}

// Think relearns a random message and then tests CocategorizeMagnitude random
// category pairs. It does nothing on an empty lexicon.
func (l *Lexicon) Think(rng *rand.Rand, p Params) ThinkReport {
	if len(l.messages) == 0 {
		return ThinkReport{}
	}
	var r ThinkReport
	r.Merges = l.Learn(MessageID(rng.IntN(len(l.messages))))

	for range p.CocategorizeMagnitude {
		a, okA := l.randomCategory(rng)
		b, okB := l.randomCategory(rng)
		if !okA || !okB {
			continue
		}
		r.Attempts++
		out := l.Cocategorize(a, b, p)
		for _, c := range [2]Change{out.Pre, out.Post} {
			switch c {
			case Linked:
				r.Linked++
			case Unlinked:
				r.Unlinked++
			}
		}
	}
	return r
}

// randomCategory picks a random message, then a random instance in it.
func (l *Lexicon) randomCategory(rng *rand.Rand) (CategoryID, bool) {
	msg := l.messages[rng.IntN(len(l.messages))].Instances
	if len(msg) == 0 {
		return 0, false
	}
	return l.instances[msg[rng.IntN(len(msg))]].Category, true
}
