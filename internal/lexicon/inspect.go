package lexicon

import (
	"errors"
	"fmt"
)

// ErrUnknownWord is returned when an inspected word was never told.
var ErrUnknownWord = errors.New("word couldn't be found")

// ShowCategories lists every live category with more than one member,
// including the members of its cocategories, one line per entry.
func (l *Lexicon) ShowCategories() []string {
	var lines []string
	for id, c := range l.categories {
		if c == nil || len(c.Instances) < 2 {
			continue
		}
		lines = append(lines, fmt.Sprintf("Category %d:", id))
		for _, pre := range c.Pre {
			lines = append(lines, "\tPre-Cocategory:")
			lines = l.appendMembers(lines, "\t\t", pre)
		}
		for _, post := range c.Post {
			lines = append(lines, "\tPost-Cocategory:")
			lines = l.appendMembers(lines, "\t\t", post)
		}
		lines = l.appendMembers(lines, "\t", CategoryID(id))
	}
	return lines
}

// FindRelation reports every category holding an instance of a that also
// holds b, directly or through a cocategory link.
func (l *Lexicon) FindRelation(a, b string) ([]string, error) {
	wa, okA := l.wordIndex[a]
	wb, okB := l.wordIndex[b]
	switch {
	case !okA && !okB:
		return nil, fmt.Errorf("%w: neither %q nor %q", ErrUnknownWord, a, b)
	case !okA:
		return nil, fmt.Errorf("%w: %q", ErrUnknownWord, a)
	case !okB:
		return nil, fmt.Errorf("%w: %q", ErrUnknownWord, b)
	}

	var lines []string
	seen := make(map[CategoryID]bool)
	report := func(header string, c CategoryID) {
		if seen[c] || !l.holds(c, wb) {
			return
		}
		seen[c] = true
		lines = append(lines, header)
		lines = l.appendMembers(lines, "\t", c)
	}
	for _, ins := range l.words[wa].Instances {
		c := l.instances[ins].Category
		report(fmt.Sprintf("Category %d:", c), c)
		for _, pre := range l.cat(c).Pre {
			report(fmt.Sprintf("Pre-Cocategory %d of %d:", pre, c), pre)
		}
		for _, post := range l.cat(c).Post {
			report(fmt.Sprintf("Post-Cocategory %d of %d:", post, c), post)
		}
	}
	if len(lines) == 0 {
		lines = append(lines, fmt.Sprintf("No relation between %q and %q", a, b))
	}
	return lines, nil
}

func (l *Lexicon) holds(c CategoryID, w WordID) bool {
	for _, ins := range l.cat(c).Instances {
		if l.instances[ins].Word == w {
			return true
		}
	}
	return false
}

func (l *Lexicon) appendMembers(lines []string, indent string, c CategoryID) []string {
	for _, ins := range l.cat(c).Instances {
		i := l.instances[ins]
		lines = append(lines, fmt.Sprintf("%s%s ~ %s", indent, l.words[i.Word].Name, l.MessageText(i.Message)))
	}
	return lines
}

// Stats counts the nodes in a lexicon.
type Stats struct {
	Words         int
	Sources       int
	Authors       int
	Conversations int
	Messages      int
	Instances     int
	Categories    int
	Shared        int // categories with more than one member
	PreLinks      int
	PostLinks     int
}

// Stats walks the arenas. Links are counted once per symmetric pair.
func (l *Lexicon) Stats() Stats {
	s := Stats{
		Words:         len(l.words),
		Sources:       len(l.sources),
		Authors:       len(l.authors),
		Conversations: len(l.conversations),
		Messages:      len(l.messages),
		Instances:     len(l.instances),
		Categories:    l.live,
	}
	for _, c := range l.categories {
		if c == nil {
			continue
		}
		if len(c.Instances) > 1 {
			s.Shared++
		}
		s.PreLinks += len(c.Pre)
		s.PostLinks += len(c.Post)
	}
	s.PreLinks /= 2
	s.PostLinks /= 2
	return s
}
