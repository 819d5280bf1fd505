package lexicon

import (
	"math/rand/v2"
	"slices"
)

// Utterance is one generated reply.
type Utterance struct {
	// Text is the walked instance sequence rendered as words.
	Text string
	// Drifted is Text after TravelDistance extra hops at every non-seed position.
	Drifted string
	// Instances is the walked sequence; Instances[Seed] is where the walk began.
	Instances []InstanceID
	Seed      int
}

// Respond generates an utterance for source. The walk is seeded from the last
// message of the source's active conversation when it has any words, otherwise
// from a random message. ok is false only when nothing has been told yet.
func (l *Lexicon) Respond(rng *rand.Rand, source SourceID, p Params) (Utterance, bool) {
	if len(l.messages) == 0 {
		return Utterance{}, false
	}

	candidates := l.messages[rng.IntN(len(l.messages))].Instances
	if conv, ok := l.active[source]; ok {
		if msgs := l.conversations[conv].Messages; len(msgs) > 0 {
			if last := l.messages[msgs[len(msgs)-1]].Instances; len(last) > 0 {
				candidates = last
			}
		}
	}
	if len(candidates) == 0 {
		return Utterance{}, true
	}
	seed := candidates[rng.IntN(len(candidates))]

	forward := []InstanceID{seed}
	for range p.MaxWalk {
		next, ok := l.Neighbor(forward[len(forward)-1], Forward)
		if !ok {
			break
		}
		forward = append(forward, l.chooseForward(rng, l.instances[next].Category))
	}

	var backward []InstanceID
	cur := seed
	for range p.MaxWalk {
		prev, ok := l.Neighbor(cur, Backward)
		if !ok {
			break
		}
		cur = l.chooseBackward(rng, l.instances[prev].Category)
		backward = append(backward, cur)
	}
	slices.Reverse(backward)

	walk := append(backward, forward...)
	origin := len(backward)

	drifted := make([]InstanceID, len(walk))
	for i, ins := range walk {
		if i != origin {
			for range p.TravelDistance {
				c := l.instances[ins].Category
				if rng.IntN(2) == 0 {
					ins = l.chooseBackward(rng, c)
				} else {
					ins = l.chooseForward(rng, c)
				}
			}
		}
		drifted[i] = ins
	}

	return Utterance{
		Text:      l.render(walk),
		Drifted:   l.render(drifted),
		Instances: walk,
		Seed:      origin,
	}, true
}

// Initiate switches source to a new conversation and responds in it.
func (l *Lexicon) Initiate(rng *rand.Rand, source SourceID, p Params) (Utterance, bool) {
	l.SwitchConversation(source)
	return l.Respond(rng, source, p)
}

func (l *Lexicon) chooseForward(rng *rand.Rand, c CategoryID) InstanceID {
	return l.choose(rng, c, l.cat(c).Pre)
}

func (l *Lexicon) chooseBackward(rng *rand.Rand, c CategoryID) InstanceID {
	return l.choose(rng, c, l.cat(c).Post)
}

// choose draws uniformly over the members of c and of every linked category,
// so larger categories are proportionally more likely.
func (l *Lexicon) choose(rng *rand.Rand, c CategoryID, linked []CategoryID) InstanceID {
	own := l.cat(c).Instances
	count := len(own)
	for _, id := range linked {
		count += len(l.cat(id).Instances)
	}

	i := rng.IntN(count)
	if i < len(own) {
		return own[i]
	}
	i -= len(own)
	for _, id := range linked {
		members := l.cat(id).Instances
		if i < len(members) {
			return members[i]
		}
		i -= len(members)
	}
	panic("lexicon: weighted choice fell outside every linked category")
}
