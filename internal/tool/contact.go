package tool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/sashabaranov/go-openai/jsonschema"

	"github.com/konsul-ai/reply-engine/internal/model"
	"github.com/konsul-ai/reply-engine/internal/store"
)

// UpdateContactName is the name of the contact-field extraction tool. It is
// referenced by the field-collection block of the system prompt; renaming it
// breaks the model-facing contract.
const UpdateContactName = "update_contact"

// ErrNoLinkedContact is returned when the conversation has no contact to
// write to. The registry converts it into a structured failure payload.
var ErrNoLinkedContact = errors.New("conversation has no linked contact")

type updateContactArgs struct {
	Updates map[string]any `json:"updates"`
}

type updateContactResult struct {
	Success bool     `json:"success"`
	Updated []string `json:"updated,omitempty"`
	Ignored []string `json:"ignored,omitempty"`
}

// NewUpdateContact builds the update_contact tool for one reply turn. The
// conversation must already carry a linked contact when the handler runs;
// otherwise the call fails with a structured error and the turn continues.
//
// Only keys matching one of the agent's custom field definitions are written;
// unrecognized keys and invalid SELECT values are dropped and reported back
// to the model.
func NewUpdateContact(contacts store.ContactStore, agent *model.Agent, conv *model.Conversation) Tool {
	return Tool{
		Name:        UpdateContactName,
		Description: "Guarda datos del contacto cuando el usuario los proporcione. Usa las claves definidas en las instrucciones.",
		Parameters: jsonschema.Definition{
			Type: jsonschema.Object,
			Properties: map[string]jsonschema.Definition{
				"updates": {
					Type:                 jsonschema.Object,
					Description:          "Pares clave-valor con los datos del contacto a guardar.",
					AdditionalProperties: true,
				},
			},
			Required: []string{"updates"},
		},
		Handler: func(ctx context.Context, raw json.RawMessage) (any, error) {
			if conv == nil || conv.ContactID == nil {
				return nil, ErrNoLinkedContact
			}

			var args updateContactArgs
			if err := json.Unmarshal(raw, &args); err != nil {
				return nil, fmt.Errorf("invalid arguments: %w", err)
			}
			if len(args.Updates) == 0 {
				return nil, errors.New("no updates provided")
			}

			accepted, ignored := validateUpdates(agent, args.Updates)
			if len(accepted) == 0 {
				return nil, fmt.Errorf("no recognized fields in update: %s", strings.Join(ignored, ", "))
			}

			if err := contacts.UpdateContactData(ctx, *conv.ContactID, accepted); err != nil {
				return nil, err
			}

			result := updateContactResult{Success: true, Ignored: ignored}
			for k := range accepted {
				result.Updated = append(result.Updated, k)
			}
			// Map iteration order would otherwise leak into the payload
			// the model sees.
			sort.Strings(result.Updated)
			sort.Strings(result.Ignored)
			return result, nil
		},
	}
}

// validateUpdates keeps only keys with a matching field definition. SELECT
// values are snapped case-insensitively to their canonical option; values
// matching no option are dropped.
func validateUpdates(agent *model.Agent, updates map[string]any) (map[string]any, []string) {
	accepted := make(map[string]any)
	var ignored []string

	for key, value := range updates {
		def, ok := agent.FieldByKey(key)
		if !ok {
			ignored = append(ignored, key)
			continue
		}

		if def.Type == model.FieldSelect {
			text, isString := value.(string)
			if !isString {
				ignored = append(ignored, key)
				continue
			}
			option, matched := snapToOption(text, def.Options)
			if !matched {
				ignored = append(ignored, key)
				continue
			}
			accepted[key] = option
			continue
		}

		accepted[key] = value
	}

	return accepted, ignored
}

func snapToOption(value string, options []string) (string, bool) {
	trimmed := strings.TrimSpace(value)
	for _, opt := range options {
		if strings.EqualFold(trimmed, opt) {
			return opt, true
		}
	}
	return "", false
}
