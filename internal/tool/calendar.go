package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/sashabaranov/go-openai/jsonschema"

	"github.com/konsul-ai/reply-engine/internal/calendar"
	"github.com/konsul-ai/reply-engine/internal/model"
)

// Calendar tool names are part of the model-facing contract.
const (
	CheckAvailabilityName = "revisar_disponibilidad"
	ScheduleEventName     = "agendar_cita"
)

type checkAvailabilityArgs struct {
	Date string `json:"date"`
}

// NewCheckAvailability builds the availability tool for an agent with an
// enabled calendar integration.
func NewCheckAvailability(cal calendar.Client, integ *model.CalendarIntegration) Tool {
	return Tool{
		Name:        CheckAvailabilityName,
		Description: "Consulta los horarios disponibles del calendario para una fecha concreta.",
		Parameters: jsonschema.Definition{
			Type: jsonschema.Object,
			Properties: map[string]jsonschema.Definition{
				"date": {
					Type:        jsonschema.String,
					Description: "Fecha a consultar en formato YYYY-MM-DD.",
				},
			},
			Required: []string{"date"},
		},
		Handler: func(ctx context.Context, raw json.RawMessage) (any, error) {
			var args checkAvailabilityArgs
			if err := json.Unmarshal(raw, &args); err != nil {
				return nil, fmt.Errorf("invalid arguments: %w", err)
			}
			if args.Date == "" {
				return nil, errors.New("date is required")
			}

			availability, err := cal.ListAvailableSlots(ctx, integ, args.Date)
			if err != nil {
				return nil, err
			}
			return map[string]any{
				"success":      true,
				"availability": availability,
			}, nil
		},
	}
}

type scheduleEventArgs struct {
	Summary       string `json:"summary"`
	Description   string `json:"description,omitempty"`
	Start         string `json:"start"`
	End           string `json:"end"`
	AttendeeEmail string `json:"attendee_email,omitempty"`
}

// NewScheduleEvent builds the event-creation tool.
func NewScheduleEvent(cal calendar.Client, integ *model.CalendarIntegration) Tool {
	return Tool{
		Name:        ScheduleEventName,
		Description: "Crea una cita en el calendario con los datos acordados con el usuario.",
		Parameters: jsonschema.Definition{
			Type: jsonschema.Object,
			Properties: map[string]jsonschema.Definition{
				"summary": {
					Type:        jsonschema.String,
					Description: "Título de la cita.",
				},
				"description": {
					Type:        jsonschema.String,
					Description: "Descripción opcional de la cita.",
				},
				"start": {
					Type:        jsonschema.String,
					Description: "Inicio de la cita en formato RFC3339.",
				},
				"end": {
					Type:        jsonschema.String,
					Description: "Fin de la cita en formato RFC3339.",
				},
				"attendee_email": {
					Type:        jsonschema.String,
					Description: "Email opcional del asistente a invitar.",
				},
			},
			Required: []string{"summary", "start", "end"},
		},
		Handler: func(ctx context.Context, raw json.RawMessage) (any, error) {
			var args scheduleEventArgs
			if err := json.Unmarshal(raw, &args); err != nil {
				return nil, fmt.Errorf("invalid arguments: %w", err)
			}

			start, err := time.Parse(time.RFC3339, args.Start)
			if err != nil {
				return nil, fmt.Errorf("invalid start %q: %w", args.Start, err)
			}
			end, err := time.Parse(time.RFC3339, args.End)
			if err != nil {
				return nil, fmt.Errorf("invalid end %q: %w", args.End, err)
			}
			if !end.After(start) {
				return nil, errors.New("end must be after start")
			}

			event, err := cal.CreateEvent(ctx, integ, calendar.EventRequest{
				Summary:       args.Summary,
				Description:   args.Description,
				Start:         start,
				End:           end,
				AttendeeEmail: args.AttendeeEmail,
			})
			if err != nil {
				return nil, err
			}
			return map[string]any{
				"success": true,
				"event":   event,
			}, nil
		},
	}
}
