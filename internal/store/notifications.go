package store

import (
	"errors"
	"fmt"
	"slices"

	"github.com/nhle/homenotify/internal/model"
)

// ErrNotFound is returned when an operation names an id the store does
// not hold.
var ErrNotFound = errors.New("notification not found")

// Filter selects which records List returns.
type Filter int

const (
	FilterAll Filter = iota
	FilterUnread
)

// String returns the filter's display name.
func (f Filter) String() string {
	if f == FilterUnread {
		return "unread"
	}
	return "all"
}

// entry is a stored record plus its absence bookkeeping for ReplaceAll.
type entry struct {
	rec    model.Notification
	misses int
}

// NotificationStore is the authoritative, deduplicated notification list
// shown to the user. It is not safe for concurrent use; callers serialize
// access through a single goroutine.
type NotificationStore struct {
	byID       map[string]*entry
	tombstones map[string]struct{}
	maxMisses  int
}

// NewNotificationStore creates an empty store. removalAfterMisses is the
// number of consecutive full sets a record must be absent from before
// ReplaceAll drops it; values below 1 are treated as 1.
func NewNotificationStore(removalAfterMisses int) *NotificationStore {
	if removalAfterMisses < 1 {
		removalAfterMisses = 1
	}
	return &NotificationStore{
		byID:       make(map[string]*entry),
		tombstones: make(map[string]struct{}),
		maxMisses:  removalAfterMisses,
	}
}

// SetRemovalAfterMisses changes the ReplaceAll removal threshold.
func (s *NotificationStore) SetRemovalAfterMisses(n int) {
	if n < 1 {
		n = 1
	}
	s.maxMisses = n
}

// MergeOne inserts rec, or overwrites the stored record with the same id.
// A stored read status is never regressed to unread by a merge. It reports
// whether rec introduced a previously unknown id.
func (s *NotificationStore) MergeOne(rec model.Notification) (bool, error) {
	if err := rec.Validate(); err != nil {
		return false, err
	}
	if _, dead := s.tombstones[rec.ID]; dead {
		return false, nil
	}

	e, ok := s.byID[rec.ID]
	if !ok {
		s.byID[rec.ID] = &entry{rec: rec}
		return true, nil
	}

	if e.rec.Status == model.StatusRead && rec.Status != model.StatusRead {
		rec.Status = model.StatusRead
	}
	e.rec = rec
	e.misses = 0
	return false, nil
}

// ReplaceAll merges an authoritative full set. Every valid record goes
// through MergeOne; local records missing from the set are dropped once
// they have been missing from enough consecutive full sets. It returns the
// ids that were new and the ids that were dropped. Invalid records are
// skipped and counted in skipped.
func (s *NotificationStore) ReplaceAll(records []model.Notification) (added, removed []string, skipped int) {
	seen := make(map[string]struct{}, len(records))
	for _, rec := range records {
		isNew, err := s.MergeOne(rec)
		if err != nil {
			skipped++
			continue
		}
		seen[rec.ID] = struct{}{}
		if isNew {
			added = append(added, rec.ID)
		}
	}

	for id, e := range s.byID {
		if _, ok := seen[id]; ok {
			continue
		}
		e.misses++
		if e.misses >= s.maxMisses {
			delete(s.byID, id)
			removed = append(removed, id)
		}
	}

	// The server has forgotten these ids too; stop shielding them.
	for id := range s.tombstones {
		if _, ok := seen[id]; !ok {
			delete(s.tombstones, id)
		}
	}

	slices.Sort(added)
	slices.Sort(removed)
	return added, removed, skipped
}

// SetStatus changes the read state of a stored record. This is the only
// way a read record becomes unread again.
func (s *NotificationStore) SetStatus(id string, status model.Status) error {
	e, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("set status %s: %w", id, ErrNotFound)
	}
	e.rec.Status = status
	return nil
}

// Remove deletes a record after the backend confirmed the deletion. It is a
// no-op if the id is absent.
func (s *NotificationStore) Remove(id string) {
	if _, ok := s.byID[id]; !ok {
		return
	}
	delete(s.byID, id)
	s.tombstones[id] = struct{}{}
}

// Get returns the stored record for id.
func (s *NotificationStore) Get(id string) (model.Notification, bool) {
	e, ok := s.byID[id]
	if !ok {
		return model.Notification{}, false
	}
	return e.rec, true
}

// Len returns the number of stored records.
func (s *NotificationStore) Len() int {
	return len(s.byID)
}

// UnreadCount returns how many stored records are unread.
func (s *NotificationStore) UnreadCount() int {
	n := 0
	for _, e := range s.byID {
		if e.rec.IsUnread() {
			n++
		}
	}
	return n
}

// HasUnread reports whether any stored record is unread.
func (s *NotificationStore) HasUnread() bool {
	for _, e := range s.byID {
		if e.rec.IsUnread() {
			return true
		}
	}
	return false
}

// Clear drops every record and tombstone.
func (s *NotificationStore) Clear() {
	clear(s.byID)
	clear(s.tombstones)
}

// Sorted returns a copy of the records matching filter, newest first.
func (s *NotificationStore) Sorted(filter Filter) []model.Notification {
	out := make([]model.Notification, 0, len(s.byID))
	for _, e := range s.byID {
		if filter == FilterUnread && !e.rec.IsUnread() {
			continue
		}
		out = append(out, e.rec)
	}
	slices.SortFunc(out, model.NewerFirst)
	return out
}
