package tool

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/konsul-ai/reply-engine/internal/calendar"
	"github.com/konsul-ai/reply-engine/internal/model"
)

type fakeCalendar struct {
	availability *calendar.Availability
	event        *calendar.Event
	lastRequest  calendar.EventRequest
}

func (f *fakeCalendar) ListAvailableSlots(ctx context.Context, integ *model.CalendarIntegration, date string) (*calendar.Availability, error) {
	return f.availability, nil
}

func (f *fakeCalendar) CreateEvent(ctx context.Context, integ *model.CalendarIntegration, req calendar.EventRequest) (*calendar.Event, error) {
	f.lastRequest = req
	return f.event, nil
}

func testIntegration() *model.CalendarIntegration {
	return &model.CalendarIntegration{Enabled: true, CalendarID: "primary", Timezone: "Europe/Madrid"}
}

func TestCheckAvailabilityRequiresDate(t *testing.T) {
	tool := NewCheckAvailability(&fakeCalendar{}, testIntegration())

	_, err := tool.Handler(context.Background(), json.RawMessage(`{}`))
	assert.Error(t, err)
}

func TestCheckAvailabilityReturnsSlots(t *testing.T) {
	slotStart := time.Date(2026, 9, 1, 9, 0, 0, 0, time.UTC)
	fake := &fakeCalendar{availability: &calendar.Availability{
		Date: "2026-09-01",
		Free: []calendar.Slot{{Start: slotStart, End: slotStart.Add(time.Hour)}},
	}}
	tool := NewCheckAvailability(fake, testIntegration())

	raw, err := tool.Handler(context.Background(), json.RawMessage(`{"date":"2026-09-01"}`))
	require.NoError(t, err)

	result := raw.(map[string]any)
	assert.Equal(t, true, result["success"])
	assert.Equal(t, fake.availability, result["availability"])
}

func TestScheduleEventValidatesTimes(t *testing.T) {
	tool := NewScheduleEvent(&fakeCalendar{}, testIntegration())

	tests := []struct {
		name string
		args string
	}{
		{"bad start", `{"summary":"Cita","start":"mañana","end":"2026-09-01T10:00:00Z"}`},
		{"bad end", `{"summary":"Cita","start":"2026-09-01T09:00:00Z","end":"luego"}`},
		{"end before start", `{"summary":"Cita","start":"2026-09-01T10:00:00Z","end":"2026-09-01T09:00:00Z"}`},
		{"end equals start", `{"summary":"Cita","start":"2026-09-01T09:00:00Z","end":"2026-09-01T09:00:00Z"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tool.Handler(context.Background(), json.RawMessage(tt.args))
			assert.Error(t, err)
		})
	}
}

func TestScheduleEventCreates(t *testing.T) {
	fake := &fakeCalendar{event: &calendar.Event{ID: "evt-1", HTMLLink: "https://calendar/evt-1"}}
	tool := NewScheduleEvent(fake, testIntegration())

	raw, err := tool.Handler(context.Background(), json.RawMessage(
		`{"summary":"Demo","description":"Demo del producto","start":"2026-09-01T09:00:00Z","end":"2026-09-01T09:30:00Z","attendee_email":"ana@example.com"}`))
	require.NoError(t, err)

	assert.Equal(t, "Demo", fake.lastRequest.Summary)
	assert.Equal(t, "ana@example.com", fake.lastRequest.AttendeeEmail)

	result := raw.(map[string]any)
	assert.Equal(t, true, result["success"])
	assert.Equal(t, fake.event, result["event"])
}
