package model

import (
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	assert.Equal(t, KindWarning, ParseKind(" Warning "))
	assert.Equal(t, KindSuccess, ParseKind("success"))
	assert.Equal(t, KindError, ParseKind("ERROR"))
	assert.Equal(t, KindInfo, ParseKind("doorbell"))
	assert.Equal(t, KindInfo, ParseKind(""))
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus("READ")
	require.NoError(t, err)
	assert.Equal(t, StatusRead, s)

	_, err = ParseStatus("archived")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	now := time.Now()

	assert.NoError(t, Notification{ID: "1", CreatedAt: now}.Validate())
	assert.True(t, errors.Is(Notification{ID: "  ", CreatedAt: now}.Validate(), ErrMalformed))
	assert.True(t, errors.Is(Notification{ID: "1"}.Validate(), ErrMalformed))
}

func TestIsUnreadTreatsUnknownAsUnread(t *testing.T) {
	assert.True(t, Notification{Status: StatusUnread}.IsUnread())
	assert.True(t, Notification{}.IsUnread())
	assert.False(t, Notification{Status: StatusRead}.IsUnread())
}

func TestNewerFirst(t *testing.T) {
	t0 := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	list := []Notification{
		{ID: "b", CreatedAt: t0},
		{ID: "c", CreatedAt: t0.Add(time.Hour)},
		{ID: "a", CreatedAt: t0},
	}
	slices.SortFunc(list, NewerFirst)

	var ids []string
	for _, n := range list {
		ids = append(ids, n.ID)
	}
	assert.Equal(t, []string{"c", "a", "b"}, ids)
}
