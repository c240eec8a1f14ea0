package cot

import (
	"encoding/xml"
	"fmt"
	"time"
)

const (
	// Version is the CoT schema version carried on every event.
	Version = "2.0"
	// HowMachineGPS marks positions derived by a machine from GPS.
	HowMachineGPS = "m-g"
	// RemarksSource names the upstream feed in detail/remarks.
	RemarksSource = "airplanes.live"
	// UnknownError is the ce/le sentinel for unbounded accuracy.
	UnknownError = "9999999.0"

	// TimeLayout is UTC with microsecond precision and a literal Z.
	TimeLayout = "2006-01-02T15:04:05.000000Z"
)

// Timestamp is a CoT time attribute.
type Timestamp time.Time

// MarshalXMLAttr writes the timestamp in TimeLayout.
func (t Timestamp) MarshalXMLAttr(name xml.Name) (xml.Attr, error) {
	return xml.Attr{Name: name, Value: time.Time(t).UTC().Format(TimeLayout)}, nil
}

// UnmarshalXMLAttr parses a TimeLayout value.
func (t *Timestamp) UnmarshalXMLAttr(attr xml.Attr) error {
	parsed, err := time.Parse(TimeLayout, attr.Value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", attr.Name.Local, err)
	}
	*t = Timestamp(parsed)
	return nil
}

// Time returns the underlying time.
func (t Timestamp) Time() time.Time { return time.Time(t) }

// Event is a CoT event for one aircraft track. Field order drives attribute
// and element order on the wire.
type Event struct {
	XMLName xml.Name  `xml:"event"`
	Version string    `xml:"version,attr"`
	UID     string    `xml:"uid,attr"`
	Time    Timestamp `xml:"time,attr"`
	Start   Timestamp `xml:"start,attr"`
	Stale   Timestamp `xml:"stale,attr"`
	Type    Type      `xml:"type,attr"`
	How     string    `xml:"how,attr"`
	Detail  Detail    `xml:"detail"`
	Point   Point     `xml:"point"`
}

type Detail struct {
	Contact Contact `xml:"contact"`
	Remarks Remarks `xml:"remarks"`
	Track   Track   `xml:"track"`
}

type Contact struct {
	Callsign string `xml:"callsign,attr"`
	Type     string `xml:"type,attr"`
}

type Remarks struct {
	Source string `xml:"source,attr"`
	Text   string `xml:",chardata"`
}

// Track carries speed in m/s and course in degrees.
type Track struct {
	Speed  string `xml:"speed,attr"`
	Course string `xml:"course,attr"`
}

// Point carries WGS-84 lat/lon and height above ellipsoid in meters.
type Point struct {
	Lat string `xml:"lat,attr"`
	Lon string `xml:"lon,attr"`
	Hae string `xml:"hae,attr"`
	CE  string `xml:"ce,attr"`
	LE  string `xml:"le,attr"`
}

// Marshal serializes the event as a standalone XML document without a
// declaration or trailing delimiter.
func (e *Event) Marshal() ([]byte, error) {
	out, err := xml.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("marshal cot event %s: %w", e.UID, err)
	}
	return out, nil
}

// Unmarshal parses a single CoT event document.
func Unmarshal(data []byte) (*Event, error) {
	var e Event
	if err := xml.Unmarshal(data, &e); err != nil {
		return nil, fmt.Errorf("unmarshal cot event: %w", err)
	}
	return &e, nil
}
