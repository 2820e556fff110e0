// Package cot models and transcodes Cursor-on-Target event messages.
//
// A CoT message is a fixed envelope (identity, timing, position) wrapping a
// schema-less <detail> region. The envelope is decoded into typed fields; the
// detail region is either captured verbatim as an ordered list of fragments
// (Message, produced by Parse) or decoded straight into a consumer supplied
// type (Decode[D]) when the shape is known up front.
package cot

import (
	"encoding/xml"
	"strings"
	"time"
)

// Wire names shared by the envelope codec and consumer detail schemas.
const (
	ElementEvent  = "event"
	ElementPoint  = "point"
	ElementDetail = "detail"

	AttrVersion = "version"
	AttrUID     = "uid"
	AttrType    = "type"
	AttrTime    = "time"
	AttrStart   = "start"
	AttrStale   = "stale"
	AttrHow     = "how"

	AttrLat = "lat"
	AttrLon = "lon"
	AttrCE  = "ce"
	AttrHAE = "hae"
	AttrLE  = "le"
)

// Version is the protocol version stamped on new events.
const Version = "2.0"

// DefaultStaleAfter is the validity window given to events built by NewEvent.
const DefaultStaleAfter = 24 * time.Hour

// Event is a CoT message whose detail region is represented by D.
//
// Stale is expected to be no earlier than Start. That is a producer contract
// and is not checked here.
type Event[D any] struct {
	Version string
	UID     string
	Type    string
	Time    time.Time
	Start   time.Time
	Stale   time.Time
	// How is the optional provenance code. Empty means absent and is not
	// written on encode.
	How    string
	Detail D
	Point  Point
}

// NoDetail discards the detail region. It is the detail type of Base.
type NoDetail struct{}

// Base is an envelope-only event.
type Base = Event[NoDetail]

// Message is an event whose detail region is kept as raw fragments.
type Message = Event[RawDetail]

// NewEvent builds an outbound event stamped at now with the default validity
// window and the north pole as position.
func NewEvent[D any](uid, cotType string, detail D, now time.Time) Event[D] {
	now = now.UTC().Truncate(time.Millisecond)
	return Event[D]{
		Version: Version,
		UID:     uid,
		Type:    cotType,
		Time:    now,
		Start:   now,
		Stale:   now.Add(DefaultStaleAfter),
		Detail:  detail,
		Point:   NorthPole(),
	}
}

// FromBase copies the envelope of an already decoded event into a Message.
// The detail list starts empty; it is never derived from a typed struct.
func FromBase[D any](evt Event[D]) Message {
	return Message{
		Version: evt.Version,
		UID:     evt.UID,
		Type:    evt.Type,
		Time:    evt.Time,
		Start:   evt.Start,
		Stale:   evt.Stale,
		How:     evt.How,
		Detail:  RawDetail{},
		Point:   evt.Point,
	}
}

// Decode reads a full document into an Event whose detail is decoded as D.
func Decode[D any](text string) (Event[D], error) {
	var evt Event[D]
	dec := xml.NewDecoder(strings.NewReader(text))
	if err := dec.Decode(&evt); err != nil {
		return Event[D]{}, wrapDecodeError(dec, err)
	}
	return evt, nil
}

// Encode renders evt as XML. It cannot fail for Base or Message values; a
// consumer detail type may still reject marshaling.
func Encode[D any](evt Event[D]) (string, error) {
	var sb strings.Builder
	enc := xml.NewEncoder(&sb)
	if err := enc.Encode(evt); err != nil {
		return "", err
	}
	if err := enc.Close(); err != nil {
		return "", err
	}
	return sb.String(), nil
}

// MarshalXML implements xml.Marshaler.
func (e Event[D]) MarshalXML(enc *xml.Encoder, start xml.StartElement) error {
	start = xml.StartElement{Name: xml.Name{Local: ElementEvent}, Attr: e.attrs()}
	if err := enc.EncodeToken(start); err != nil {
		return err
	}
	if err := enc.EncodeElement(e.Detail, xml.StartElement{Name: xml.Name{Local: ElementDetail}}); err != nil {
		return err
	}
	if err := enc.EncodeElement(e.Point, xml.StartElement{Name: xml.Name{Local: ElementPoint}}); err != nil {
		return err
	}
	return enc.EncodeToken(start.End())
}

func (e Event[D]) attrs() []xml.Attr {
	attrs := []xml.Attr{
		{Name: xml.Name{Local: AttrVersion}, Value: e.Version},
		{Name: xml.Name{Local: AttrUID}, Value: e.UID},
		{Name: xml.Name{Local: AttrType}, Value: e.Type},
		{Name: xml.Name{Local: AttrTime}, Value: FormatTime(e.Time)},
		{Name: xml.Name{Local: AttrStart}, Value: FormatTime(e.Start)},
		{Name: xml.Name{Local: AttrStale}, Value: FormatTime(e.Stale)},
	}
	if e.How != "" {
		attrs = append(attrs, xml.Attr{Name: xml.Name{Local: AttrHow}, Value: e.How})
	}
	return attrs
}

// UnmarshalXML implements xml.Unmarshaler. Unknown attributes (qos, access,
// opex, ...) and unknown child elements are ignored.
func (e *Event[D]) UnmarshalXML(dec *xml.Decoder, start xml.StartElement) error {
	if start.Name.Local != ElementEvent {
		return &MissingFieldError{Element: ElementEvent}
	}

	attrs := attrMap(start.Attr)
	var err error
	if e.Version, err = requireAttr(attrs, ElementEvent, AttrVersion); err != nil {
		return err
	}
	if e.UID, err = requireAttr(attrs, ElementEvent, AttrUID); err != nil {
		return err
	}
	if e.Type, err = requireAttr(attrs, ElementEvent, AttrType); err != nil {
		return err
	}
	if e.Time, err = requireTimeAttr(attrs, AttrTime); err != nil {
		return err
	}
	if e.Start, err = requireTimeAttr(attrs, AttrStart); err != nil {
		return err
	}
	if e.Stale, err = requireTimeAttr(attrs, AttrStale); err != nil {
		return err
	}
	e.How = attrs[AttrHow]

	var body struct {
		Detail *D     `xml:"detail"`
		Point  *Point `xml:"point"`
	}
	if err := dec.DecodeElement(&body, &start); err != nil {
		return err
	}
	if body.Point == nil {
		return &MissingFieldError{Element: ElementPoint}
	}
	if body.Detail == nil {
		return &MissingFieldError{Element: ElementDetail}
	}
	e.Point = *body.Point
	e.Detail = *body.Detail
	return nil
}

func attrMap(attrs []xml.Attr) map[string]string {
	m := make(map[string]string, len(attrs))
	for _, a := range attrs {
		if a.Name.Space != "" && a.Name.Space != "xmlns" {
			continue
		}
		m[a.Name.Local] = a.Value
	}
	return m
}

func requireAttr(attrs map[string]string, element, name string) (string, error) {
	v, ok := attrs[name]
	if !ok {
		return "", &MissingFieldError{Element: element, Attribute: name}
	}
	return v, nil
}

func requireTimeAttr(attrs map[string]string, name string) (time.Time, error) {
	raw, err := requireAttr(attrs, ElementEvent, name)
	if err != nil {
		return time.Time{}, err
	}
	t, err := ParseTime(raw)
	if err != nil {
		return time.Time{}, &MalformedTimestampError{Attribute: name, Value: raw, Err: err}
	}
	return t, nil
}
