// Package lexicon holds the word/category graph that seifmios learns from.
// Every node lives in a typed arena owned by a Lexicon and is addressed by its
// integer ID. Nothing here is safe for concurrent use; a single owner
// (see internal/session) serializes all access.
package lexicon

import (
	"fmt"
	"strings"
)

// ═══════════════════════════════════════════════════════════════════════════════
// IDENTIFIERS
// ═══════════════════════════════════════════════════════════════════════════════

type (
	WordID         int
	SourceID       int
	AuthorID       int
	ConversationID int
	MessageID      int
	InstanceID     int
	CategoryID     int
)

// ═══════════════════════════════════════════════════════════════════════════════
// NODES
// ═══════════════════════════════════════════════════════════════════════════════

// Word is a unique literal and every place it occurs.
type Word struct {
	Name      string
	Instances []InstanceID
}

// Source is a venue such as an IRC channel or "console".
type Source struct {
	Name     string
	Messages int
	Authors  map[string]AuthorID
}

// Author is scoped to one Source.
type Author struct {
	Source SourceID
	Name   string
}

// Conversation is an ordered run of messages in one Source.
type Conversation struct {
	Source   SourceID
	Messages []MessageID
}

// Message is immutable once told, apart from learnedAt.
type Message struct {
	Author       AuthorID
	Conversation ConversationID
	Index        int // position within the conversation
	Instances    []InstanceID

	learnedAt int // len(messages) when last learned
}

// Instance is one occurrence of a word at a position in a message.
type Instance struct {
	Word     WordID
	Category CategoryID
	Message  MessageID
	Index    int
}

// Category is a set of mutually substitutable instances. Pre and Post are
// kept sorted and symmetric: B is in A.Pre iff A is in B.Pre.
type Category struct {
	Instances []InstanceID
	Pre       []CategoryID
	Post      []CategoryID
}

// ═══════════════════════════════════════════════════════════════════════════════
// LEXICON
// ═══════════════════════════════════════════════════════════════════════════════

// Lexicon owns every arena. Retired categories leave a nil slot behind.
type Lexicon struct {
	words         []Word
	wordIndex     map[string]WordID
	sources       []Source
	sourceIndex   map[string]SourceID
	authors       []Author
	conversations []Conversation
	active        map[SourceID]ConversationID
	messages      []Message
	instances     []Instance
	categories    []*Category
	live          int
}

// New returns an empty lexicon.
func New() *Lexicon {
	return &Lexicon{
		wordIndex:   make(map[string]WordID),
		sourceIndex: make(map[string]SourceID),
		active:      make(map[SourceID]ConversationID),
	}
}

// Source returns the source with the given name, creating it on first use.
func (l *Lexicon) Source(name string) SourceID {
	if id, ok := l.sourceIndex[name]; ok {
		return id
	}
	id := SourceID(len(l.sources))
	l.sources = append(l.sources, Source{Name: name, Authors: make(map[string]AuthorID)})
	l.sourceIndex[name] = id
	return id
}

// Author returns the author called name within source, creating it on first use.
func (l *Lexicon) Author(source SourceID, name string) AuthorID {
	src := &l.sources[source]
	if id, ok := src.Authors[name]; ok {
		return id
	}
	id := AuthorID(len(l.authors))
	l.authors = append(l.authors, Author{Source: source, Name: name})
	src.Authors[name] = id
	return id
}

// Tell stores text as a new message in the active conversation of source and
// learns from it immediately. Tokens are split on ASCII space; empty tokens are
// dropped, so empty text produces a message without instances.
func (l *Lexicon) Tell(source SourceID, author AuthorID, text string) MessageID {
	conv, ok := l.active[source]
	if !ok {
		conv = l.newConversation(source)
		l.active[source] = conv
	}

	id := MessageID(len(l.messages))
	l.messages = append(l.messages, Message{
		Author:       author,
		Conversation: conv,
		Index:        len(l.conversations[conv].Messages),
	})
	l.conversations[conv].Messages = append(l.conversations[conv].Messages, id)

	for _, token := range strings.Split(text, " ") {
		if token == "" {
			continue
		}
		word := l.word(token)
		ins := InstanceID(len(l.instances))
		cat := CategoryID(len(l.categories))
		l.instances = append(l.instances, Instance{
			Word:     word,
			Category: cat,
			Message:  id,
			Index:    len(l.messages[id].Instances),
		})
		l.categories = append(l.categories, &Category{Instances: []InstanceID{ins}})
		l.live++
		l.messages[id].Instances = append(l.messages[id].Instances, ins)
		l.words[word].Instances = append(l.words[word].Instances, ins)
	}

	l.sources[source].Messages++
	l.Learn(id)
	return id
}

// SwitchConversation starts a fresh active conversation for source. The
// previous one is kept but no longer receives messages.
func (l *Lexicon) SwitchConversation(source SourceID) ConversationID {
	conv := l.newConversation(source)
	l.active[source] = conv
	return conv
}

func (l *Lexicon) newConversation(source SourceID) ConversationID {
	id := ConversationID(len(l.conversations))
	l.conversations = append(l.conversations, Conversation{Source: source})
	return id
}

func (l *Lexicon) word(name string) WordID {
	if id, ok := l.wordIndex[name]; ok {
		return id
	}
	id := WordID(len(l.words))
	l.words = append(l.words, Word{Name: name})
	l.wordIndex[name] = id
	return id
}

// ═══════════════════════════════════════════════════════════════════════════════
// ACCESSORS
// ═══════════════════════════════════════════════════════════════════════════════
// Returned values share their slices with the lexicon and must not be modified.

// Len returns the number of messages told so far.
func (l *Lexicon) Len() int { return len(l.messages) }

// LiveCategories counts categories that have not been merged away.
func (l *Lexicon) LiveCategories() int { return l.live }

func (l *Lexicon) Word(id WordID) Word                         { return l.words[id] }
func (l *Lexicon) SourceByID(id SourceID) Source               { return l.sources[id] }
func (l *Lexicon) AuthorByID(id AuthorID) Author               { return l.authors[id] }
func (l *Lexicon) Conversation(id ConversationID) Conversation { return l.conversations[id] }
func (l *Lexicon) Message(id MessageID) Message                { return l.messages[id] }
func (l *Lexicon) Instance(id InstanceID) Instance             { return l.instances[id] }

// LookupWord finds a word by its literal.
func (l *Lexicon) LookupWord(name string) (WordID, bool) {
	id, ok := l.wordIndex[name]
	return id, ok
}

// ActiveConversation reports the conversation currently receiving messages for source.
func (l *Lexicon) ActiveConversation(source SourceID) (ConversationID, bool) {
	id, ok := l.active[source]
	return id, ok
}

// Category returns a live category. Asking for a retired one is a bug in the caller.
func (l *Lexicon) Category(id CategoryID) Category {
	return *l.cat(id)
}

// CategoryOf returns the category an instance currently belongs to.
func (l *Lexicon) CategoryOf(id InstanceID) CategoryID {
	return l.instances[id].Category
}

// Live reports whether id names a category that has not been merged away.
func (l *Lexicon) Live(id CategoryID) bool {
	return int(id) >= 0 && int(id) < len(l.categories) && l.categories[id] != nil
}

// MessageText renders a message as its words joined by spaces.
func (l *Lexicon) MessageText(id MessageID) string {
	return l.render(l.messages[id].Instances)
}

func (l *Lexicon) render(instances []InstanceID) string {
	var sb strings.Builder
	for i, ins := range instances {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(l.words[l.instances[ins].Word].Name)
	}
	return sb.String()
}

func (l *Lexicon) cat(id CategoryID) *Category {
	c := l.categories[id]
	if c == nil {
		panic(fmt.Sprintf("lexicon: category %d was retired by a merge", id))
	}
	return c
}
