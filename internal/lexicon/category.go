package lexicon

import (
	"math"
	"slices"
)

// Change describes what a cocategorize call did to one adjacency relation.
type Change int

const (
	Unchanged Change = iota
	Linked
	Unlinked
)

// Outcome reports the effect of one Cocategorize call.
type Outcome struct {
	Pre  Change
	Post Change
}

// Merge folds categories a and b into a new category and returns it. Both
// inputs are retired; their cocategory links move onto the result with
// duplicates and self links dropped. Merging a category with itself does nothing.
func (l *Lexicon) Merge(a, b CategoryID) CategoryID {
	if a == b {
		return a
	}
	ca, cb := l.cat(a), l.cat(b)

	c := CategoryID(len(l.categories))
	merged := &Category{
		Instances: make([]InstanceID, 0, len(ca.Instances)+len(cb.Instances)),
	}
	merged.Instances = append(merged.Instances, ca.Instances...)
	merged.Instances = append(merged.Instances, cb.Instances...)
	for _, ins := range merged.Instances {
		l.instances[ins].Category = c
	}
	l.categories = append(l.categories, merged)

	for _, old := range [2]CategoryID{a, b} {
		oc := l.categories[old]
		for _, n := range oc.Pre {
			l.categories[n].Pre, _ = removeID(l.categories[n].Pre, old)
			if n != a && n != b {
				l.link(c, n, preLinks)
			}
		}
		for _, n := range oc.Post {
			l.categories[n].Post, _ = removeID(l.categories[n].Post, old)
			if n != a && n != b {
				l.link(c, n, postLinks)
			}
		}
		l.categories[old] = nil
	}
	l.live--
	return c
}

// Cocategorize re-decides whether a and b are pre- and postcocategories by
// counting coincidences over every pair of their instances. A relation is
// linked when the count reaches round(total*ratio)+1 and unlinked otherwise.
func (l *Lexicon) Cocategorize(a, b CategoryID, p Params) Outcome {
	if a == b {
		return Outcome{}
	}
	ca, cb := l.cat(a), l.cat(b)

	total := len(ca.Instances) * len(cb.Instances)
	needed := coincidencesNeeded(total, p.CocategorizeRatio)

	var pre, post int
	for _, x := range ca.Instances {
		for _, y := range cb.Instances {
			if l.Coincide(x, y, Backward, p.BackwardEdgeDistance, p.BackwardWordDistance) {
				pre++
			}
			if l.Coincide(x, y, Forward, p.ForwardEdgeDistance, p.ForwardWordDistance) {
				post++
			}
		}
	}

	return Outcome{
		Pre:  l.setLink(a, b, preLinks, pre >= needed),
		Post: l.setLink(a, b, postLinks, post >= needed),
	}
}

// coincidencesNeeded is round(total*ratio)+1, capped at total+1 so a ratio
// past 1 or a non-finite one can never be met.
func coincidencesNeeded(total int, ratio float64) int {
	r := math.Floor(float64(total)*ratio + 0.5)
	if !(r < float64(total)) {
		return total + 1
	}
	return int(r) + 1
}

// ArePrecocategories is true for identical or pre-linked categories.
func (l *Lexicon) ArePrecocategories(a, b CategoryID) bool {
	if a == b {
		return true
	}
	return containsID(l.cat(a).Pre, b)
}

// ArePostcocategories is true for identical or post-linked categories.
func (l *Lexicon) ArePostcocategories(a, b CategoryID) bool {
	if a == b {
		return true
	}
	return containsID(l.cat(a).Post, b)
}

// ═══════════════════════════════════════════════════════════════════════════════
// ADJACENCY
// ═══════════════════════════════════════════════════════════════════════════════

type relation func(*Category) *[]CategoryID

func preLinks(c *Category) *[]CategoryID  { return &c.Pre }
func postLinks(c *Category) *[]CategoryID { return &c.Post }

func (l *Lexicon) setLink(a, b CategoryID, rel relation, want bool) Change {
	if want {
		if l.link(a, b, rel) {
			return Linked
		}
		return Unchanged
	}
	if l.unlink(a, b, rel) {
		return Unlinked
	}
	return Unchanged
}

// link adds the symmetric edge a<->b and reports whether it was new.
func (l *Lexicon) link(a, b CategoryID, rel relation) bool {
	if a == b {
		return false
	}
	ea := rel(l.cat(a))
	var added bool
	if *ea, added = insertID(*ea, b); !added {
		return false
	}
	eb := rel(l.cat(b))
	*eb, _ = insertID(*eb, a)
	return true
}

func (l *Lexicon) unlink(a, b CategoryID, rel relation) bool {
	ea := rel(l.cat(a))
	var removed bool
	if *ea, removed = removeID(*ea, b); !removed {
		return false
	}
	eb := rel(l.cat(b))
	*eb, _ = removeID(*eb, a)
	return true
}

func insertID(s []CategoryID, id CategoryID) ([]CategoryID, bool) {
	i, found := slices.BinarySearch(s, id)
	if found {
		return s, false
	}
	return slices.Insert(s, i, id), true
}

func removeID(s []CategoryID, id CategoryID) ([]CategoryID, bool) {
	i, found := slices.BinarySearch(s, id)
	if !found {
		return s, false
	}
	return slices.Delete(s, i, i+1), true
}

func containsID(s []CategoryID, id CategoryID) bool {
	_, found := slices.BinarySearch(s, id)
	return found
}
