package store

import (
	"fmt"
	"time"

	"github.com/nhle/homenotify/internal/model"
)

// Group keys for the fixed recency buckets. Month buckets use "2006-01".
const (
	GroupToday      = "today"
	GroupLast7Days  = "last-7-days"
	GroupLast4Weeks = "last-4-weeks"
)

// Group is one display bucket of notifications.
type Group struct {
	Key   string
	Label string
	Items []model.Notification
}

// bucketFor assigns t to a group relative to now. Both are compared in
// now's location so "today" means the viewer's calendar day.
func bucketFor(t, now time.Time) (key, label string) {
	t = t.In(now.Location())

	ty, tm, td := t.Date()
	ny, nm, nd := now.Date()
	if (ty == ny && tm == nm && td == nd) || t.After(now) {
		return GroupToday, "Today"
	}
	if !t.Before(now.AddDate(0, 0, -7)) {
		return GroupLast7Days, "Last 7 days"
	}
	if !t.Before(now.AddDate(0, 0, -28)) {
		return GroupLast4Weeks, "Last 4 weeks"
	}
	return fmt.Sprintf("%04d-%02d", ty, int(tm)), "In " + t.Format("January 2006")
}

// GroupByRecency buckets records that are already sorted newest first.
// Buckets come out in recency order and items keep their order.
func GroupByRecency(records []model.Notification, now time.Time) []Group {
	var groups []Group
	index := make(map[string]int)

	for _, rec := range records {
		key, label := bucketFor(rec.CreatedAt, now)
		i, ok := index[key]
		if !ok {
			i = len(groups)
			index[key] = i
			groups = append(groups, Group{Key: key, Label: label})
		}
		groups[i].Items = append(groups[i].Items, rec)
	}

	return groups
}

// List returns the records matching filter, sorted newest first and
// grouped for display relative to now.
func (s *NotificationStore) List(filter Filter, now time.Time) []Group {
	return GroupByRecency(s.Sorted(filter), now)
}
