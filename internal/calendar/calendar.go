// Package calendar wraps the Google Calendar API behind the two operations
// the tool handlers need. The orchestrator treats both as opaque,
// potentially-failing remote calls.
package calendar

import (
	"context"
	"fmt"
	"time"

	gcal "google.golang.org/api/calendar/v3"
	"google.golang.org/api/option"

	"github.com/konsul-ai/reply-engine/internal/model"
)

// Slot is one time interval.
type Slot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Availability describes a day's busy and free intervals.
type Availability struct {
	Date string `json:"date"`
	Busy []Slot `json:"busy"`
	Free []Slot `json:"free"`
}

// EventRequest describes an event to create.
type EventRequest struct {
	Summary       string
	Description   string
	Start         time.Time
	End           time.Time
	AttendeeEmail string
}

// Event is the created calendar event.
type Event struct {
	ID       string    `json:"id"`
	HTMLLink string    `json:"html_link,omitempty"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
}

// Client is the calendar collaborator contract.
type Client interface {
	ListAvailableSlots(ctx context.Context, integ *model.CalendarIntegration, date string) (*Availability, error)
	CreateEvent(ctx context.Context, integ *model.CalendarIntegration, req EventRequest) (*Event, error)
}

// Availability is computed within business hours.
const (
	businessOpenHour  = 9
	businessCloseHour = 18
)

// GoogleClient implements Client against the Google Calendar API.
type GoogleClient struct {
	svc *gcal.Service
}

// NewGoogleClient creates a calendar client from a service-account
// credentials file.
func NewGoogleClient(ctx context.Context, credentialsFile string) (*GoogleClient, error) {
	svc, err := gcal.NewService(ctx, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("calendar: create service: %w", err)
	}
	return &GoogleClient{svc: svc}, nil
}

// ListAvailableSlots queries free/busy for one day (date in YYYY-MM-DD, in
// the integration's timezone) and derives hourly free slots within business
// hours.
func (c *GoogleClient) ListAvailableSlots(ctx context.Context, integ *model.CalendarIntegration, date string) (*Availability, error) {
	loc, err := integrationLocation(integ)
	if err != nil {
		return nil, err
	}

	day, err := time.ParseInLocation("2006-01-02", date, loc)
	if err != nil {
		return nil, fmt.Errorf("calendar: invalid date %q: %w", date, err)
	}

	open := day.Add(businessOpenHour * time.Hour)
	close := day.Add(businessCloseHour * time.Hour)

	resp, err := c.svc.Freebusy.Query(&gcal.FreeBusyRequest{
		TimeMin: open.Format(time.RFC3339),
		TimeMax: close.Format(time.RFC3339),
		Items:   []*gcal.FreeBusyRequestItem{{Id: integ.CalendarID}},
	}).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("calendar: freebusy query: %w", err)
	}

	var busy []Slot
	if cal, ok := resp.Calendars[integ.CalendarID]; ok {
		for _, p := range cal.Busy {
			start, err1 := time.Parse(time.RFC3339, p.Start)
			end, err2 := time.Parse(time.RFC3339, p.End)
			if err1 != nil || err2 != nil {
				continue
			}
			busy = append(busy, Slot{Start: start.In(loc), End: end.In(loc)})
		}
	}

	return &Availability{
		Date: date,
		Busy: busy,
		Free: freeSlots(open, close, busy),
	}, nil
}

// freeSlots splits [open, close) into hourly slots and drops those
// overlapping a busy interval.
func freeSlots(open, close time.Time, busy []Slot) []Slot {
	var free []Slot
	for start := open; start.Before(close); start = start.Add(time.Hour) {
		end := start.Add(time.Hour)
		overlaps := false
		for _, b := range busy {
			if start.Before(b.End) && b.Start.Before(end) {
				overlaps = true
				break
			}
		}
		if !overlaps {
			free = append(free, Slot{Start: start, End: end})
		}
	}
	return free
}

// CreateEvent inserts an event into the integration's calendar.
func (c *GoogleClient) CreateEvent(ctx context.Context, integ *model.CalendarIntegration, req EventRequest) (*Event, error) {
	loc, err := integrationLocation(integ)
	if err != nil {
		return nil, err
	}

	event := &gcal.Event{
		Summary:     req.Summary,
		Description: req.Description,
		Start: &gcal.EventDateTime{
			DateTime: req.Start.In(loc).Format(time.RFC3339),
			TimeZone: loc.String(),
		},
		End: &gcal.EventDateTime{
			DateTime: req.End.In(loc).Format(time.RFC3339),
			TimeZone: loc.String(),
		},
	}
	if req.AttendeeEmail != "" {
		event.Attendees = []*gcal.EventAttendee{{Email: req.AttendeeEmail}}
	}

	created, err := c.svc.Events.Insert(integ.CalendarID, event).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("calendar: insert event: %w", err)
	}

	return &Event{
		ID:       created.Id,
		HTMLLink: created.HtmlLink,
		Start:    req.Start,
		End:      req.End,
	}, nil
}

func integrationLocation(integ *model.CalendarIntegration) (*time.Location, error) {
	tz := integ.Timezone
	if tz == "" {
		tz = "UTC"
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("calendar: invalid timezone %q: %w", tz, err)
	}
	return loc, nil
}
