// Package trigger turns inbound events into pipeline runs.
package trigger

import (
	"encoding/json"
	"fmt"
)

// Kind classifies an inbound event.
type Kind string

const (
	KindScheduled Kind = "scheduled"
	KindSingle    Kind = "single"
	KindBatch     Kind = "batch"
	KindAction    Kind = "action"
	KindRecords   Kind = "records"
	KindAll       Kind = "all"
)

const (
	ActionStatus   = "status"
	ActionValidate = "validate"
)

type Event struct {
	Source        string            `json:"source,omitempty"`
	DetailType    string            `json:"detail-type,omitempty"`
	Type          string            `json:"type,omitempty"`
	SeriesID      string            `json:"series_id,omitempty"`
	SeriesIDs     []string          `json:"series_ids,omitempty"`
	CustomPrompt  string            `json:"custom_prompt,omitempty"`
	CustomPrompts map[string]string `json:"custom_prompts,omitempty"`
	AutoPublish   *bool             `json:"auto_publish,omitempty"`
	Action        string            `json:"action,omitempty"`
	Records       []Record          `json:"Records,omitempty"`

	present map[string]bool
}

type Record struct {
	Sns *Notification `json:"Sns,omitempty"`
}

type Notification struct {
	Message string `json:"Message"`
}

// ParseEvent decodes a JSON event, remembering which keys were present.
func ParseEvent(data []byte) (Event, error) {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(data, &keys); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}

	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}

	ev.present = make(map[string]bool, len(keys))
	for k := range keys {
		ev.present[k] = true
	}
	return ev, nil
}

func (e Event) has(key string) bool {
	if e.present == nil {
		switch key {
		case "series_id":
			return e.SeriesID != ""
		case "series_ids":
			return e.SeriesIDs != nil
		case "action":
			return e.Action != ""
		}
		return false
	}
	return e.present[key]
}

// Kind applies the precedence scheduled, manual, records, all.
func (e Event) Kind() Kind {
	switch {
	case e.Source == "aws.events" && e.DetailType == "Scheduled Event", e.Type == "schedule":
		return KindScheduled
	case e.has("series_id"):
		return KindSingle
	case e.has("series_ids"):
		return KindBatch
	case e.has("action"):
		return KindAction
	case len(e.Records) > 0 && e.Records[0].Sns != nil:
		return KindRecords
	}
	return KindAll
}

// Publish reports the auto_publish flag, defaulting to true.
func (e Event) Publish() bool {
	if e.AutoPublish == nil {
		return true
	}
	return *e.AutoPublish
}

// RecordSeriesID extracts series_id from a record's message, using fallback
// when the message is not JSON or carries no id.
func RecordSeriesID(r Record, fallback string) string {
	if r.Sns == nil {
		return fallback
	}

	var msg struct {
		SeriesID string `json:"series_id"`
	}
	if err := json.Unmarshal([]byte(r.Sns.Message), &msg); err != nil || msg.SeriesID == "" {
		return fallback
	}
	return msg.SeriesID
}
