package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nhle/homenotify/internal/model"
)

func at(id string, t time.Time) model.Notification {
	return model.Notification{ID: id, CreatedAt: t, Status: model.StatusUnread}
}

func TestBucketBoundaries(t *testing.T) {
	late := time.Date(2026, 3, 14, 23, 59, 30, 0, time.UTC)
	early := time.Date(2026, 3, 14, 0, 30, 0, 0, time.UTC)

	tests := []struct {
		name string
		t    time.Time
		now  time.Time
		want string
	}{
		{"same day 23h59m back", late.Add(-23*time.Hour - 59*time.Minute), late, GroupToday},
		{"previous day 23h59m back", early.Add(-23*time.Hour - 59*time.Minute), early, GroupLast7Days},
		{"eight days back", late.AddDate(0, 0, -8), late, GroupLast4Weeks},
		{"exactly seven days back", late.AddDate(0, 0, -7), late, GroupLast7Days},
		{"exactly 28 days back", late.AddDate(0, 0, -28), late, GroupLast4Weeks},
		{"two months back", late.AddDate(0, -2, 0), late, "2026-01"},
		{"future skew", late.Add(time.Hour), late, GroupToday},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			key, _ := bucketFor(tc.t, tc.now)
			assert.Equal(t, tc.want, key)
		})
	}
}

func TestGroupByRecencyOrder(t *testing.T) {
	now := time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)
	s := NewNotificationStore(2)
	for _, r := range []model.Notification{
		at("old-jan", time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)),
		at("today-1", now.Add(-time.Hour)),
		at("week", now.AddDate(0, 0, -3)),
		at("today-2", now.Add(-2*time.Hour)),
		at("month", now.AddDate(0, 0, -20)),
		at("old-dec", time.Date(2025, 12, 24, 9, 0, 0, 0, time.UTC)),
	} {
		_, err := s.MergeOne(r)
		require.NoError(t, err)
	}

	groups := s.List(FilterAll, now)
	require.Len(t, groups, 5)

	var keys []string
	for _, g := range groups {
		keys = append(keys, g.Key)
	}
	assert.Equal(t, []string{GroupToday, GroupLast7Days, GroupLast4Weeks, "2026-01", "2025-12"}, keys)
	assert.Equal(t, []string{"today-1", "today-2"}, ids(groups[0].Items))
	assert.Equal(t, "In January 2026", groups[3].Label)
}

func TestListUnreadFilter(t *testing.T) {
	now := time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)
	s := NewNotificationStore(2)
	_, _ = s.MergeOne(at("a", now.Add(-time.Minute)))
	read := at("b", now.Add(-2*time.Minute))
	read.Status = model.StatusRead
	_, _ = s.MergeOne(read)

	groups := s.List(FilterUnread, now)
	require.Len(t, groups, 1)
	assert.Equal(t, []string{"a"}, ids(groups[0].Items))
}

func TestPaginate(t *testing.T) {
	now := time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)
	var records []model.Notification
	for i := 0; i < 12; i++ {
		records = append(records, at(string(rune('a'+i)), now.Add(-time.Duration(i)*time.Minute)))
	}
	rows := DisplayRows(GroupByRecency(records, now))
	require.Len(t, rows, 13)
	assert.True(t, rows[0].IsHeader())
	assert.Equal(t, "Today", rows[0].Header)

	page, more := Paginate(rows, 1, 10)
	assert.Len(t, page, 10)
	assert.True(t, more)

	page, more = Paginate(rows, 2, 10)
	assert.Len(t, page, 13)
	assert.False(t, more)
}

func TestRelativeTime(t *testing.T) {
	now := time.Date(2026, 3, 14, 18, 0, 0, 0, time.UTC)

	assert.Equal(t, "30s ago", RelativeTime(now.Add(-30*time.Second), now))
	assert.Equal(t, "5m ago", RelativeTime(now.Add(-5*time.Minute), now))
	assert.Equal(t, "3h ago", RelativeTime(now.Add(-3*time.Hour), now))
	assert.Equal(t, "2d ago", RelativeTime(now.AddDate(0, 0, -2), now))
	assert.Equal(t, "1d ago", RelativeTime(now.Add(-19*time.Hour), now))
	assert.Equal(t, "04/03/2026 18:00", RelativeTime(now.AddDate(0, 0, -10), now))
}
