// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package inputctx

import (
	"path/filepath"
	"sync"

	"github.com/google/uuid"

	"github.com/jeranaias/rigrun-chatlink/internal/text"
	"github.com/jeranaias/rigrun-chatlink/internal/util"
)

// =============================================================================
// ENTRY
// =============================================================================

// Entry is one pinned context item. Entries are immutable once added;
// replacing the payload produces a new Entry with the same ID.
type Entry struct {
	ID     string
	Title  string
	Source string // absolute path for file-backed entries, "" otherwise

	content  text.TextContent
	estimate func(string) int

	tokensOnce sync.Once
	tokens     int
}

// Payload returns the resolved text of the entry, if any.
func (e *Entry) Payload() (text.TextContent, bool) {
	return e.content, e.content != nil
}

// Tokens returns the estimated token count of the payload. It is computed on
// first use and cached for the life of the entry.
func (e *Entry) Tokens() int {
	e.tokensOnce.Do(func() {
		if e.content != nil {
			e.tokens = e.estimate(e.content.Content())
		}
	})
	return e.tokens
}

// String returns the entry title.
func (e *Entry) String() string {
	return e.Title
}

// =============================================================================
// CHANGE NOTIFICATIONS
// =============================================================================

// ChangeKind identifies what happened to the store.
type ChangeKind int

const (
	EntryAdded ChangeKind = iota
	EntryRemoved
	EntryReplaced
	Cleared
)

// String returns the change name.
func (k ChangeKind) String() string {
	switch k {
	case EntryAdded:
		return "added"
	case EntryRemoved:
		return "removed"
	case EntryReplaced:
		return "replaced"
	case Cleared:
		return "cleared"
	default:
		return "unknown"
	}
}

// Change describes one mutation. Entry is nil for Cleared.
type Change struct {
	Kind  ChangeKind
	Entry *Entry
}

type subscriber struct {
	id int
	fn func(Change)
}

// =============================================================================
// STORE
// =============================================================================

// Option configures a Store.
type Option func(*Store)

// WithTokenEstimator replaces the default four-characters-per-token estimate.
func WithTokenEstimator(fn func(string) int) Option {
	return func(s *Store) {
		if fn != nil {
			s.estimate = fn
		}
	}
}

// WithMaxFileSize limits the size of files added with AddFile.
func WithMaxFileSize(n int64) Option {
	return func(s *Store) { s.maxFileSize = n }
}

// Store is the ordered list of pinned context entries.
// It is safe for concurrent use. Subscribers are called synchronously after
// the mutation, outside the store lock, in subscription order.
type Store struct {
	mu          sync.RWMutex
	entries     []*Entry
	subscribers []subscriber
	nextSubID   int

	estimate    func(string) int
	maxFileSize int64
}

// NewStore creates an empty store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		estimate:    util.EstimateTokens,
		maxFileSize: text.DefaultMaxFileSize,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Add pins content under title and returns the new entry.
// A nil content produces an unresolved entry that merges as nothing.
func (s *Store) Add(title string, content text.TextContent) *Entry {
	return s.add(s.newEntry(uuid.NewString(), title, "", content))
}

// AddFragment pins a fragment, titled by its String method when it has one.
func (s *Store) AddFragment(content text.TextContent) *Entry {
	title := util.FirstLine(content.Content())
	if st, ok := content.(interface{ String() string }); ok {
		title = st.String()
	}
	return s.Add(util.TruncateWidth(title, 60), content)
}

// AddFile pins the whole file at path. Adding a file that is already pinned
// returns the existing entry.
func (s *Store) AddFile(path string) (*Entry, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	if e := s.FindBySource(abs); e != nil {
		return e, nil
	}

	frag, ok, err := text.FromFile(abs, s.maxFileSize)
	if err != nil {
		return nil, err
	}
	var content text.TextContent
	if ok {
		content = frag
	}
	return s.add(s.newEntry(uuid.NewString(), text.Title(abs, 0, 0), abs, content)), nil
}

// Remove unpins the entry with id. It reports whether an entry was removed.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	idx := s.indexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return false
	}
	removed := s.entries[idx]
	s.entries = append(s.entries[:idx:idx], s.entries[idx+1:]...)
	subs := s.subscribersLocked()
	s.mu.Unlock()

	notify(subs, Change{Kind: EntryRemoved, Entry: removed})
	return true
}

// Replace swaps the payload of the entry with id, keeping its position.
// The token count is recomputed lazily for the new payload.
func (s *Store) Replace(id string, content text.TextContent) bool {
	s.mu.Lock()
	idx := s.indexLocked(id)
	if idx < 0 {
		s.mu.Unlock()
		return false
	}
	old := s.entries[idx]
	updated := s.newEntry(old.ID, old.Title, old.Source, content)
	s.entries[idx] = updated
	subs := s.subscribersLocked()
	s.mu.Unlock()

	notify(subs, Change{Kind: EntryReplaced, Entry: updated})
	return true
}

// Clear unpins everything. Clearing an empty store does not notify.
func (s *Store) Clear() {
	s.mu.Lock()
	if len(s.entries) == 0 {
		s.mu.Unlock()
		return
	}
	s.entries = nil
	subs := s.subscribersLocked()
	s.mu.Unlock()

	notify(subs, Change{Kind: Cleared})
}

// Restore puts entries back ahead of anything pinned since, skipping those
// still present. It returns how many were restored.
func (s *Store) Restore(entries []*Entry) int {
	s.mu.Lock()
	var back []*Entry
	for _, e := range entries {
		if e != nil && s.indexLocked(e.ID) < 0 {
			back = append(back, e)
		}
	}
	if len(back) == 0 {
		s.mu.Unlock()
		return 0
	}
	s.entries = append(back, s.entries...)
	subs := s.subscribersLocked()
	s.mu.Unlock()

	for _, e := range back {
		notify(subs, Change{Kind: EntryAdded, Entry: e})
	}
	return len(back)
}

// Entries returns a snapshot of the entries in pin order.
func (s *Store) Entries() []*Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Entry, len(s.entries))
	copy(out, s.entries)
	return out
}

// Get returns the entry with id, or nil.
func (s *Store) Get(id string) *Entry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if idx := s.indexLocked(id); idx >= 0 {
		return s.entries[idx]
	}
	return nil
}

// FindBySource returns the entry backed by the file at path, or nil.
func (s *Store) FindBySource(path string) *Entry {
	if path == "" {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.entries {
		if e.Source == path {
			return e
		}
	}
	return nil
}

// Len returns the number of pinned entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// IsEmpty reports whether nothing is pinned.
func (s *Store) IsEmpty() bool {
	return s.Len() == 0
}

// TokenCount sums the estimated tokens of all entries.
func (s *Store) TokenCount() int {
	total := 0
	for _, e := range s.Entries() {
		total += e.Tokens()
	}
	return total
}

// Subscribe registers fn for change notifications and returns a function
// that removes it.
func (s *Store) Subscribe(fn func(Change)) (unsubscribe func()) {
	s.mu.Lock()
	s.nextSubID++
	id := s.nextSubID
	s.subscribers = append(s.subscribers, subscriber{id: id, fn: fn})
	s.mu.Unlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, sub := range s.subscribers {
			if sub.id == id {
				s.subscribers = append(s.subscribers[:i:i], s.subscribers[i+1:]...)
				return
			}
		}
	}
}

func (s *Store) newEntry(id, title, source string, content text.TextContent) *Entry {
	return &Entry{ID: id, Title: title, Source: source, content: content, estimate: s.estimate}
}

func (s *Store) add(e *Entry) *Entry {
	s.mu.Lock()
	s.entries = append(s.entries, e)
	subs := s.subscribersLocked()
	s.mu.Unlock()

	notify(subs, Change{Kind: EntryAdded, Entry: e})
	return e
}

func (s *Store) indexLocked(id string) int {
	for i, e := range s.entries {
		if e.ID == id {
			return i
		}
	}
	return -1
}

func (s *Store) subscribersLocked() []subscriber {
	out := make([]subscriber, len(s.subscribers))
	copy(out, s.subscribers)
	return out
}

func notify(subs []subscriber, c Change) {
	for _, sub := range subs {
		sub.fn(c)
	}
}
