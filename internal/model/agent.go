// Package model defines data structures for the reply orchestration engine.
package model

import (
	"time"
)

// ProviderFamily identifies which LLM provider adapter serves an agent.
// It is an explicit field on Agent rather than something inferred from the
// model string.
type ProviderFamily string

const (
	ProviderOpenAI    ProviderFamily = "openai"
	ProviderGemini    ProviderFamily = "gemini"
	ProviderAnthropic ProviderFamily = "anthropic"
)

// CommunicationStyle controls the register the agent speaks in.
type CommunicationStyle string

const (
	StyleFormal CommunicationStyle = "FORMAL"
	StyleNormal CommunicationStyle = "NORMAL"
	StyleCasual CommunicationStyle = "CASUAL"
)

// JobType selects the framing boilerplate for the system prompt.
type JobType string

const (
	JobSupport  JobType = "SUPPORT"
	JobSales    JobType = "SALES"
	JobPersonal JobType = "PERSONAL"
)

// Agent is the configuration for one conversational persona. It is read once
// at the start of a reply turn and treated as immutable for its duration.
type Agent struct {
	ID          string         `json:"id"`
	WorkspaceID string         `json:"workspace_id"`
	Name        string         `json:"name"`
	Provider    ProviderFamily `json:"provider"`
	Model       string         `json:"model"`
	Temperature float64        `json:"temperature"`

	Personality string             `json:"personality"`
	Style       CommunicationStyle `json:"style"`

	JobType        JobType `json:"job_type"`
	JobCompany     string  `json:"job_company,omitempty"`
	JobWebsite     string  `json:"job_website,omitempty"`
	JobDescription string  `json:"job_description,omitempty"`

	AllowEmojis       bool `json:"allow_emojis"`
	SignMessages      bool `json:"sign_messages"`
	RestrictTopics    bool `json:"restrict_topics"`
	SplitLongMessages bool `json:"split_long_messages"`
	AllowReminders    bool `json:"allow_reminders"`
	SmartRetrieval    bool `json:"smart_retrieval"`
	TransferToHuman   bool `json:"transfer_to_human"`

	Timezone string `json:"timezone"`

	CustomFields []CustomFieldDefinition `json:"custom_fields,omitempty"`
	Calendar     *CalendarIntegration    `json:"calendar,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FieldType is the value type of a custom contact field.
type FieldType string

const (
	FieldText    FieldType = "TEXT"
	FieldNumber  FieldType = "NUMBER"
	FieldBoolean FieldType = "BOOLEAN"
	FieldDate    FieldType = "DATE"
	FieldSelect  FieldType = "SELECT"
)

// CustomFieldDefinition is a named, typed slot the agent tries to fill on a
// Contact. Key is part of the model-facing tool contract: renaming it breaks
// in-flight extraction, so it is stable once created.
type CustomFieldDefinition struct {
	Key         string    `json:"key"`
	Label       string    `json:"label"`
	Type        FieldType `json:"type"`
	Description string    `json:"description,omitempty"`
	Options     []string  `json:"options,omitempty"` // SELECT only, ordered
}

// CalendarIntegration holds the stored configuration for an agent's Google
// Calendar connection. The orchestrator treats calendar operations as opaque,
// potentially-failing remote calls.
type CalendarIntegration struct {
	Enabled    bool   `json:"enabled"`
	CalendarID string `json:"calendar_id"`
	Timezone   string `json:"timezone,omitempty"`
}

// FieldByKey returns the custom field definition with the given key.
func (a *Agent) FieldByKey(key string) (CustomFieldDefinition, bool) {
	for _, f := range a.CustomFields {
		if f.Key == key {
			return f, true
		}
	}
	return CustomFieldDefinition{}, false
}

// CalendarEnabled reports whether the agent has a usable calendar integration.
func (a *Agent) CalendarEnabled() bool {
	return a.Calendar != nil && a.Calendar.Enabled && a.Calendar.CalendarID != ""
}
