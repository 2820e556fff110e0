// Package cloudevents implements the CloudEvents v1.0 JSON envelope the relay
// publishes for every classified CoT message, plus the handler outcome errors
// that decide between ack, retry and dead letter.
package cloudevents

import (
	"encoding/json"
	"fmt"
	"maps"
	"time"

	idspkg "github.com/drblury/cotflow/internal/runtime/ids"
	"github.com/drblury/cotflow/internal/runtime/jsoncodec"
)

// SpecVersion is the CloudEvents specification version implemented.
const SpecVersion = "1.0"

// ContentTypeJSON is the data content type of relay events.
const ContentTypeJSON = "application/json"

// Event is a CloudEvents v1.0 event in structured JSON mode. Extensions are
// flattened into the top-level object when encoded.
type Event struct {
	SpecVersion     string
	Type            string
	Source          string
	ID              string
	Time            time.Time
	DataContentType string
	Subject         string
	Data            json.RawMessage
	Extensions      map[string]string
}

// New returns an event with a ULID id and the current time.
func New(eventType, source string) Event {
	return Event{
		SpecVersion: SpecVersion,
		Type:        eventType,
		Source:      source,
		ID:          idspkg.CreateULID(),
		Time:        time.Now().UTC(),
	}
}

func (e Event) WithSubject(subject string) Event {
	e.Subject = subject
	return e
}

func (e Event) WithTime(t time.Time) Event {
	e.Time = t.UTC()
	return e
}

// WithExtension returns a copy of e with the extension attribute set.
func (e Event) WithExtension(key, value string) Event {
	ext := make(map[string]string, len(e.Extensions)+1)
	maps.Copy(ext, e.Extensions)
	ext[key] = value
	e.Extensions = ext
	return e
}

// WithJSONData encodes v as the event data.
func (e Event) WithJSONData(v any) (Event, error) {
	data, err := jsoncodec.Marshal(v)
	if err != nil {
		return e, fmt.Errorf("encode event data: %w", err)
	}
	e.Data = data
	e.DataContentType = ContentTypeJSON
	return e, nil
}

// DecodeData decodes the event data into v.
func (e Event) DecodeData(v any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("event %s carries no data", e.ID)
	}
	return jsoncodec.Unmarshal(e.Data, v)
}

// Extension returns the extension value for key, or "" when absent.
func (e Event) Extension(key string) string {
	return e.Extensions[key]
}

// Validate checks the required attributes and the extension naming rules.
func (e Event) Validate() error {
	if e.SpecVersion != SpecVersion {
		return fmt.Errorf("specversion must be %q, got %q", SpecVersion, e.SpecVersion)
	}
	if e.Type == "" {
		return fmt.Errorf("type is required")
	}
	if e.Source == "" {
		return fmt.Errorf("source is required")
	}
	if e.ID == "" {
		return fmt.Errorf("id is required")
	}
	for key := range e.Extensions {
		if !validExtensionName(key) {
			return fmt.Errorf("invalid extension name %q", key)
		}
		if _, reserved := knownAttrs[key]; reserved {
			return fmt.Errorf("extension %q shadows a context attribute", key)
		}
	}
	return nil
}

// Clone returns a copy that shares no maps or slices with e.
func (e Event) Clone() Event {
	cloned := e
	if e.Data != nil {
		cloned.Data = append(json.RawMessage(nil), e.Data...)
	}
	if e.Extensions != nil {
		cloned.Extensions = maps.Clone(e.Extensions)
	}
	return cloned
}

var knownAttrs = map[string]struct{}{
	"specversion":     {},
	"type":            {},
	"source":          {},
	"id":              {},
	"time":            {},
	"datacontenttype": {},
	"subject":         {},
	"data":            {},
}

// validExtensionName reports whether name is 1-20 lowercase letters or digits.
func validExtensionName(name string) bool {
	if name == "" || len(name) > 20 {
		return false
	}
	for _, r := range name {
		if (r < 'a' || r > 'z') && (r < '0' || r > '9') {
			return false
		}
	}
	return true
}

func (e Event) MarshalJSON() ([]byte, error) {
	m := make(map[string]any, 8+len(e.Extensions))
	for k, v := range e.Extensions {
		m[k] = v
	}

	m["specversion"] = e.SpecVersion
	m["type"] = e.Type
	m["source"] = e.Source
	m["id"] = e.ID
	if !e.Time.IsZero() {
		m["time"] = e.Time.Format(time.RFC3339Nano)
	}
	if e.DataContentType != "" {
		m["datacontenttype"] = e.DataContentType
	}
	if e.Subject != "" {
		m["subject"] = e.Subject
	}
	if len(e.Data) > 0 {
		m["data"] = e.Data
	}

	return jsoncodec.Marshal(m)
}

func (e *Event) UnmarshalJSON(data []byte) error {
	var m map[string]json.RawMessage
	if err := jsoncodec.Unmarshal(data, &m); err != nil {
		return err
	}

	out := Event{}
	for key, raw := range m {
		if key == "data" {
			out.Data = append(json.RawMessage(nil), raw...)
			continue
		}

		var value string
		if err := jsoncodec.Unmarshal(raw, &value); err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}

		switch key {
		case "specversion":
			out.SpecVersion = value
		case "type":
			out.Type = value
		case "source":
			out.Source = value
		case "id":
			out.ID = value
		case "time":
			t, err := time.Parse(time.RFC3339Nano, value)
			if err != nil {
				return fmt.Errorf("invalid time: %w", err)
			}
			out.Time = t.UTC()
		case "datacontenttype":
			out.DataContentType = value
		case "subject":
			out.Subject = value
		default:
			if out.Extensions == nil {
				out.Extensions = make(map[string]string)
			}
			out.Extensions[key] = value
		}
	}

	*e = out
	return nil
}
