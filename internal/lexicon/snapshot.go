package lexicon

import (
	"cmp"
	"errors"
	"fmt"
	"slices"
)

// Snapshot is the whole graph with every reference replaced by an integer
// surrogate. Within each slice a record's ID equals its position. Category IDs
// are renumbered densely, so they differ from the live lexicon's.
type Snapshot struct {
	Words         []WordRecord
	Sources       []SourceRecord
	Authors       []AuthorRecord
	Conversations []ConversationRecord
	Messages      []MessageRecord
	Instances     []InstanceRecord
	Categories    []CategoryRecord
	Active        []ActiveRecord
}

type WordRecord struct {
	ID   int64
	Name string
}

type SourceRecord struct {
	ID       int64
	Name     string
	Messages int64
}

type AuthorRecord struct {
	ID     int64
	Source int64
	Name   string
}

type ConversationRecord struct {
	ID     int64
	Source int64
}

type MessageRecord struct {
	ID           int64
	Author       int64
	Conversation int64
	Index        int64
	LearnedAt    int64
}

type InstanceRecord struct {
	ID      int64
	Word    int64
	Message int64
	Index   int64
}

// CategoryRecord keeps member order, which generation depends on.
type CategoryRecord struct {
	ID        int64
	Instances []int64
	Pre       []int64
	Post      []int64
}

type ActiveRecord struct {
	Source       int64
	Conversation int64
}

// ErrCorruptSnapshot wraps every validation failure in Restore.
var ErrCorruptSnapshot = errors.New("corrupt snapshot")

// Snapshot captures the lexicon.
func (l *Lexicon) Snapshot() *Snapshot {
	s := &Snapshot{}
	for i, w := range l.words {
		s.Words = append(s.Words, WordRecord{ID: int64(i), Name: w.Name})
	}
	for i, src := range l.sources {
		s.Sources = append(s.Sources, SourceRecord{ID: int64(i), Name: src.Name, Messages: int64(src.Messages)})
	}
	for i, a := range l.authors {
		s.Authors = append(s.Authors, AuthorRecord{ID: int64(i), Source: int64(a.Source), Name: a.Name})
	}
	for i, c := range l.conversations {
		s.Conversations = append(s.Conversations, ConversationRecord{ID: int64(i), Source: int64(c.Source)})
	}
	for i, m := range l.messages {
		s.Messages = append(s.Messages, MessageRecord{
			ID:           int64(i),
			Author:       int64(m.Author),
			Conversation: int64(m.Conversation),
			Index:        int64(m.Index),
			LearnedAt:    int64(m.learnedAt),
		})
	}
	for i, ins := range l.instances {
		s.Instances = append(s.Instances, InstanceRecord{
			ID:      int64(i),
			Word:    int64(ins.Word),
			Message: int64(ins.Message),
			Index:   int64(ins.Index),
		})
	}

	dense := make(map[CategoryID]int64, l.live)
	for id, c := range l.categories {
		if c != nil {
			dense[CategoryID(id)] = int64(len(dense))
		}
	}
	for id, c := range l.categories {
		if c == nil {
			continue
		}
		rec := CategoryRecord{ID: dense[CategoryID(id)]}
		for _, ins := range c.Instances {
			rec.Instances = append(rec.Instances, int64(ins))
		}
		for _, n := range c.Pre {
			rec.Pre = append(rec.Pre, dense[n])
		}
		for _, n := range c.Post {
			rec.Post = append(rec.Post, dense[n])
		}
		s.Categories = append(s.Categories, rec)
	}

	for src, conv := range l.active {
		s.Active = append(s.Active, ActiveRecord{Source: int64(src), Conversation: int64(conv)})
	}
	slices.SortFunc(s.Active, func(a, b ActiveRecord) int { return cmp.Compare(a.Source, b.Source) })
	return s
}

// Restore rebuilds a lexicon from s, checking every reference and the
// category invariants on the way.
func Restore(s *Snapshot) (*Lexicon, error) {
	l := New()
	corrupt := func(format string, args ...any) error {
		return fmt.Errorf("%w: %s", ErrCorruptSnapshot, fmt.Sprintf(format, args...))
	}
	inRange := func(id int64, n int) bool { return id >= 0 && id < int64(n) }

	for i, w := range s.Words {
		if w.ID != int64(i) {
			return nil, corrupt("word %d stored at position %d", w.ID, i)
		}
		if _, dup := l.wordIndex[w.Name]; dup {
			return nil, corrupt("word %q stored twice", w.Name)
		}
		l.wordIndex[w.Name] = WordID(i)
		l.words = append(l.words, Word{Name: w.Name})
	}

	for i, src := range s.Sources {
		if src.ID != int64(i) {
			return nil, corrupt("source %d stored at position %d", src.ID, i)
		}
		if _, dup := l.sourceIndex[src.Name]; dup {
			return nil, corrupt("source %q stored twice", src.Name)
		}
		l.sourceIndex[src.Name] = SourceID(i)
		l.sources = append(l.sources, Source{
			Name:     src.Name,
			Messages: int(src.Messages),
			Authors:  make(map[string]AuthorID),
		})
	}

	for i, a := range s.Authors {
		if a.ID != int64(i) || !inRange(a.Source, len(l.sources)) {
			return nil, corrupt("author %d at position %d has source %d", a.ID, i, a.Source)
		}
		authors := l.sources[a.Source].Authors
		if _, dup := authors[a.Name]; dup {
			return nil, corrupt("author %q stored twice in source %d", a.Name, a.Source)
		}
		authors[a.Name] = AuthorID(i)
		l.authors = append(l.authors, Author{Source: SourceID(a.Source), Name: a.Name})
	}

	for i, c := range s.Conversations {
		if c.ID != int64(i) || !inRange(c.Source, len(l.sources)) {
			return nil, corrupt("conversation %d at position %d has source %d", c.ID, i, c.Source)
		}
		l.conversations = append(l.conversations, Conversation{Source: SourceID(c.Source)})
	}

	for i, m := range s.Messages {
		if m.ID != int64(i) || !inRange(m.Author, len(l.authors)) || !inRange(m.Conversation, len(l.conversations)) {
			return nil, corrupt("message %d at position %d has dangling references", m.ID, i)
		}
		conv := &l.conversations[m.Conversation]
		if m.Index != int64(len(conv.Messages)) {
			return nil, corrupt("message %d has index %d in conversation %d", m.ID, m.Index, m.Conversation)
		}
		conv.Messages = append(conv.Messages, MessageID(i))
		l.messages = append(l.messages, Message{
			Author:       AuthorID(m.Author),
			Conversation: ConversationID(m.Conversation),
			Index:        int(m.Index),
			learnedAt:    int(m.LearnedAt),
		})
	}

	for i, ins := range s.Instances {
		if ins.ID != int64(i) || !inRange(ins.Word, len(l.words)) || !inRange(ins.Message, len(l.messages)) {
			return nil, corrupt("instance %d at position %d has dangling references", ins.ID, i)
		}
		msg := &l.messages[ins.Message]
		if ins.Index != int64(len(msg.Instances)) {
			return nil, corrupt("instance %d has index %d in message %d", ins.ID, ins.Index, ins.Message)
		}
		msg.Instances = append(msg.Instances, InstanceID(i))
		l.words[ins.Word].Instances = append(l.words[ins.Word].Instances, InstanceID(i))
		l.instances = append(l.instances, Instance{
			Word:     WordID(ins.Word),
			Category: -1,
			Message:  MessageID(ins.Message),
			Index:    int(ins.Index),
		})
	}

	for i, c := range s.Categories {
		if c.ID != int64(i) {
			return nil, corrupt("category %d stored at position %d", c.ID, i)
		}
		if len(c.Instances) == 0 {
			return nil, corrupt("category %d is empty", c.ID)
		}
		cat := &Category{}
		for _, ins := range c.Instances {
			if !inRange(ins, len(l.instances)) || l.instances[ins].Category != -1 {
				return nil, corrupt("category %d claims instance %d", c.ID, ins)
			}
			l.instances[ins].Category = CategoryID(i)
			cat.Instances = append(cat.Instances, InstanceID(ins))
		}
		l.categories = append(l.categories, cat)
	}
	l.live = len(l.categories)
	for i, ins := range l.instances {
		if ins.Category == -1 {
			return nil, corrupt("instance %d belongs to no category", i)
		}
	}

	for i, c := range s.Categories {
		for _, edges := range []struct {
			ids []int64
			rel relation
		}{{c.Pre, preLinks}, {c.Post, postLinks}} {
			for _, n := range edges.ids {
				if !inRange(n, len(l.categories)) || n == int64(i) {
					return nil, corrupt("category %d links to %d", i, n)
				}
				l.link(CategoryID(i), CategoryID(n), edges.rel)
			}
		}
	}
	for i, c := range s.Categories {
		if len(l.categories[i].Pre) != len(c.Pre) || len(l.categories[i].Post) != len(c.Post) {
			return nil, corrupt("category %d has asymmetric or repeated links", i)
		}
	}

	for _, a := range s.Active {
		if !inRange(a.Source, len(l.sources)) || !inRange(a.Conversation, len(l.conversations)) {
			return nil, corrupt("active conversation %d for source %d", a.Conversation, a.Source)
		}
		if l.conversations[a.Conversation].Source != SourceID(a.Source) {
			return nil, corrupt("conversation %d is not in source %d", a.Conversation, a.Source)
		}
		l.active[SourceID(a.Source)] = ConversationID(a.Conversation)
	}
	return l, nil
}
