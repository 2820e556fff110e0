// Package tak provides typed detail schemas for TAK (Team Awareness Kit)
// messages, decoded with cot.Decode.
package tak

import (
	"encoding/xml"
	"time"

	"github.com/google/uuid"

	"github.com/drblury/cotflow/internal/cot"
)

// DefaultMarkerType is the CoT type given to markers built by NewMarker.
const DefaultMarkerType = "a-o-G"

// Unknown is the placeholder TAK clients show for unset text values.
const Unknown = "???"

// MarkerDetail is the <detail> region of a TAK marker. Many of the elements
// are optional in practice even though the ATAK schemas do not say so.
type MarkerDetail struct {
	Status            Status            `xml:"status"`
	Link              *Link             `xml:"link,omitempty"`
	Contact           Contact           `xml:"contact"`
	Remarks           *Remarks          `xml:"remarks,omitempty"`
	Color             *Color            `xml:"color,omitempty"`
	PrecisionLocation PrecisionLocation `xml:"precisionlocation"`
	UserIcon          *UserIcon         `xml:"usericon,omitempty"`
}

// Marker is a TAK marker event.
type Marker = cot.Event[MarkerDetail]

// Status reports whether the marker is ready for display.
type Status struct {
	Readiness bool `xml:"readiness,attr"`
}

// Link points at the producer or parent of a marker.
type Link struct {
	UID            string        `xml:"uid,attr"`
	ProductionTime cot.Timestamp `xml:"production_time,attr"`
	Type           string        `xml:"type,attr"`
	ParentCallsign string        `xml:"parent_callsign,attr"`
	Relation       string        `xml:"relation,attr"`
}

// Contact identifies the marker by callsign and optional reach-back details.
type Contact struct {
	Callsign     string  `xml:"callsign,attr"`
	EmailAddress *string `xml:"emailAddress,omitempty"`
	Endpoint     *string `xml:"endpoint,omitempty"`
	Phone        *uint32 `xml:"phone,omitempty"`
	XMPPUsername *string `xml:"xmppUsername,omitempty"`
}

// Remarks is free text. Producers attach arbitrary attributes to it, which
// are kept as-is.
type Remarks struct {
	Attrs []xml.Attr `xml:",any,attr"`
	Text  string     `xml:",chardata"`
}

// Color is a signed 32-bit ARGB value.
type Color struct {
	ARGB int32 `xml:"argb,attr"`
}

// PrecisionLocation names where the altitude and position came from.
type PrecisionLocation struct {
	AltSrc        string  `xml:"altsrc,attr"`
	GeoPointSrc   *string `xml:"geopointsrc,attr,omitempty"`
	PreciseImage  *string `xml:"PRECISE_IMAGE_FILE,attr,omitempty"`
	PreciseImageX *string `xml:"PRECISE_IMAGE_FILE_X,attr,omitempty"`
	PreciseImageY *string `xml:"PRECISE_IMAGE_FILE_Y,attr,omitempty"`
}

// UserIcon is the icon set path TAK clients draw the marker with.
type UserIcon struct {
	IconSetPath string `xml:"iconsetpath,attr"`
}

// NewMarker returns a marker that puts a dot on a TAK map: a random uid, a
// one day validity window and placeholder contact and altitude source.
// Callers are expected to at least set Point.
func NewMarker(now time.Time) Marker {
	return cot.NewEvent(uuid.NewString(), DefaultMarkerType, DefaultMarkerDetail(), now)
}

// DefaultMarkerDetail is the minimal detail TAK clients accept for a marker.
func DefaultMarkerDetail() MarkerDetail {
	return MarkerDetail{
		Status:            Status{Readiness: true},
		Contact:           Contact{Callsign: Unknown},
		PrecisionLocation: PrecisionLocation{AltSrc: Unknown},
	}
}

// DecodeMarker decodes a complete marker document.
func DecodeMarker(text string) (Marker, error) {
	return cot.Decode[MarkerDetail](text)
}
