package cot

import (
	"encoding/xml"
	"time"
)

// TimeLayout is the wire format for every CoT timestamp: RFC3339 with a
// millisecond fraction. Values are converted to UTC before formatting, so the
// zone always renders as a literal "Z".
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// FormatTime renders t in the CoT wire format.
func FormatTime(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// ParseTime accepts any RFC3339 timestamp, whatever its offset or fraction
// length, and returns it in UTC truncated to whole milliseconds.
func ParseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC().Truncate(time.Millisecond), nil
}

// Timestamp carries the envelope's timestamp convention into consumer detail
// schemas. Use it for any attribute that holds a CoT time:
//
//	type Link struct {
//		ProductionTime cot.Timestamp `xml:"production_time,attr"`
//	}
type Timestamp struct {
	time.Time
}

// NewTimestamp wraps t after normalizing it the way ParseTime does.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t.UTC().Truncate(time.Millisecond)}
}

// MarshalXMLAttr implements xml.MarshalerAttr.
func (t Timestamp) MarshalXMLAttr(name xml.Name) (xml.Attr, error) {
	return xml.Attr{Name: name, Value: FormatTime(t.Time)}, nil
}

// UnmarshalXMLAttr implements xml.UnmarshalerAttr.
func (t *Timestamp) UnmarshalXMLAttr(attr xml.Attr) error {
	parsed, err := ParseTime(attr.Value)
	if err != nil {
		return &MalformedTimestampError{Attribute: attr.Name.Local, Value: attr.Value, Err: err}
	}
	t.Time = parsed
	return nil
}

// String returns the wire form.
func (t Timestamp) String() string {
	return FormatTime(t.Time)
}
