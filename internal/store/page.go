package store

import (
	"fmt"
	"time"

	"github.com/nhle/homenotify/internal/model"
)

// Row is one line of the flattened display list: either a group header or
// a notification.
type Row struct {
	Header string
	Item   *model.Notification
}

// IsHeader reports whether the row is a group header.
func (r Row) IsHeader() bool {
	return r.Item == nil
}

// DisplayRows flattens groups into header and item rows.
func DisplayRows(groups []Group) []Row {
	var rows []Row
	for _, g := range groups {
		rows = append(rows, Row{Header: g.Label})
		for i := range g.Items {
			rows = append(rows, Row{Item: &g.Items[i]})
		}
	}
	return rows
}

// Paginate returns the rows visible after pages "load more" steps of
// pageSize rows, and whether more rows remain.
func Paginate(rows []Row, pages, pageSize int) ([]Row, bool) {
	if pages < 1 {
		pages = 1
	}
	if pageSize < 1 {
		return rows, false
	}
	limit := pages * pageSize
	if limit >= len(rows) {
		return rows, false
	}
	return rows[:limit], true
}

// RelativeTime renders t relative to now the way the list shows it:
// seconds, minutes or hours ago for today, days ago within a week, and an
// absolute timestamp otherwise.
func RelativeTime(t, now time.Time) string {
	t = t.In(now.Location())
	diff := now.Sub(t)
	if diff < 0 {
		diff = 0
	}

	key, _ := bucketFor(t, now)
	switch key {
	case GroupToday:
		switch {
		case diff < time.Minute:
			return fmt.Sprintf("%ds ago", int(diff/time.Second))
		case diff < time.Hour:
			return fmt.Sprintf("%dm ago", int(diff/time.Minute))
		default:
			return fmt.Sprintf("%dh ago", int(diff/time.Hour))
		}
	case GroupLast7Days:
		days := int(diff / (24 * time.Hour))
		if days < 1 {
			days = 1
		}
		return fmt.Sprintf("%dd ago", days)
	}
	return t.Format("02/01/2006 15:04")
}
