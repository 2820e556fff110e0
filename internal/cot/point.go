package cot

import (
	"encoding/xml"
	"strconv"
)

// UnknownError is the ce/le value that marks an error estimate as unknown.
const UnknownError = 9999999.0

// Point is the WGS-84 position of an event. CE and LE are circular and linear
// error in metres; HAE is height above ellipsoid in metres.
type Point struct {
	Lat float64
	Lon float64
	CE  float32
	HAE float32
	LE  float32
}

// NorthPole is the placeholder position used when the real one is unknown.
func NorthPole() Point {
	return Point{Lat: 90, Lon: 0, CE: UnknownError, HAE: 0, LE: UnknownError}
}

// MarshalXML implements xml.Marshaler.
func (p Point) MarshalXML(enc *xml.Encoder, start xml.StartElement) error {
	start.Name = xml.Name{Local: ElementPoint}
	start.Attr = []xml.Attr{
		{Name: xml.Name{Local: AttrLat}, Value: strconv.FormatFloat(p.Lat, 'f', -1, 64)},
		{Name: xml.Name{Local: AttrLon}, Value: strconv.FormatFloat(p.Lon, 'f', -1, 64)},
		{Name: xml.Name{Local: AttrCE}, Value: strconv.FormatFloat(float64(p.CE), 'f', -1, 32)},
		{Name: xml.Name{Local: AttrHAE}, Value: strconv.FormatFloat(float64(p.HAE), 'f', -1, 32)},
		{Name: xml.Name{Local: AttrLE}, Value: strconv.FormatFloat(float64(p.LE), 'f', -1, 32)},
	}
	if err := enc.EncodeToken(start); err != nil {
		return err
	}
	return enc.EncodeToken(start.End())
}

// UnmarshalXML implements xml.Unmarshaler. All five attributes are required.
func (p *Point) UnmarshalXML(dec *xml.Decoder, start xml.StartElement) error {
	attrs := attrMap(start.Attr)

	var err error
	if p.Lat, err = floatAttr(attrs, AttrLat, 64); err != nil {
		return err
	}
	if p.Lon, err = floatAttr(attrs, AttrLon, 64); err != nil {
		return err
	}
	var v float64
	if v, err = floatAttr(attrs, AttrCE, 32); err != nil {
		return err
	}
	p.CE = float32(v)
	if v, err = floatAttr(attrs, AttrHAE, 32); err != nil {
		return err
	}
	p.HAE = float32(v)
	if v, err = floatAttr(attrs, AttrLE, 32); err != nil {
		return err
	}
	p.LE = float32(v)

	return dec.Skip()
}

func floatAttr(attrs map[string]string, name string, bitSize int) (float64, error) {
	raw, err := requireAttr(attrs, ElementPoint, name)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(raw, bitSize)
	if err != nil {
		return 0, &InvalidValueError{Element: ElementPoint, Attribute: name, Value: raw, Err: err}
	}
	return v, nil
}
