package fakeapi

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/homenotify/internal/model"
)

type sample struct {
	header      string
	description string
	kind        model.Kind
}

var samples = []sample{
	{"Front door unlocked", "The front door lock was opened with the keypad.", model.KindInfo},
	{"Water leak detected", "The sensor under the kitchen sink reports moisture.", model.KindError},
	{"Living room lights on", "Lights have been on for 6 hours with no motion.", model.KindWarning},
	{"Thermostat updated", "Target temperature set to 21°C.", model.KindSuccess},
	{"Garage door closed", "The garage door closed on schedule.", model.KindSuccess},
	{"Battery low", "The hallway motion sensor battery is at 8%.", model.KindWarning},
	{"Camera offline", "The backyard camera stopped responding.", model.KindError},
	{"Firmware available", "A firmware update is available for the hub.", model.KindInfo},
}

// Seed fills the server with sample records spread across the display
// groups relative to now.
func (s *Server) Seed(now time.Time) {
	offsets := []time.Duration{
		5 * time.Minute,
		3 * time.Hour,
		26 * time.Hour,
		4 * 24 * time.Hour,
		10 * 24 * time.Hour,
		20 * 24 * time.Hour,
		45 * 24 * time.Hour,
		90 * 24 * time.Hour,
	}
	for i, off := range offsets {
		sm := samples[i%len(samples)]
		status := model.StatusRead
		if i < 3 {
			status = model.StatusUnread
		}
		created := now.Add(-off).UTC()
		s.Add(model.Notification{
			ID:          fmt.Sprintf("seed-%d", i+1),
			Header:      sm.header,
			Description: sm.description,
			Kind:        sm.kind,
			Status:      status,
			CreatedAt:   created,
			UpdatedAt:   created,
		})
	}
}

// NewSample returns a fresh unread record created at now. seq picks the
// sample text.
func NewSample(seq int, now time.Time) model.Notification {
	sm := samples[seq%len(samples)]
	return model.Notification{
		ID:          uuid.NewString(),
		Header:      sm.header,
		Description: sm.description,
		Kind:        sm.kind,
		Status:      model.StatusUnread,
		CreatedAt:   now.UTC(),
		UpdatedAt:   now.UTC(),
	}
}
