package models

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/buger/jsonparser"
)

// StandardQNH is the ISA sea level pressure in hectopascals.
const StandardQNH = 1013.25

// militaryFlag is bit 0 of the dbFlags field.
const militaryFlag = 1

// ErrNotObject is returned when a record or the feed payload is not a JSON object.
var ErrNotObject = errors.New("json value is not an object")

// FeedResponse models the payload returned by the airplanes.live point query.
type FeedResponse struct {
	Aircraft []Aircraft
	// HasAircraft is false when the payload carried no "ac" list at all.
	HasAircraft bool
	Message     string
	Now         int64
	Total       int
}

// Field is one raw key/value pair of a record in feed order.
type Field struct {
	Key   string
	Value string
}

// Number is a numeric feed value together with its textual form.
type Number struct {
	Value float64
	Text  string
	Valid bool
}

// Altitude is a barometric altitude in feet. Ground is set when the feed
// reported the aircraft on the ground instead of a number.
type Altitude struct {
	Feet   float64
	Ground bool
}

// Aircraft is a single surveillance record from the "ac" list.
type Aircraft struct {
	Hex            string
	Category       string
	DBFlags        int64
	Registration   string
	TypeDesignator string
	Lat            Number
	Lon            Number
	GroundSpeedKt  float64
	Track          Number
	AltBaro        Altitude
	NavQNH         *float64

	// Fields holds every key of the record, including the ones above.
	Fields []Field
}

// Military reports whether bit 0 of dbFlags is set.
func (a Aircraft) Military() bool {
	return a.DBFlags&militaryFlag != 0
}

// QNH returns the pressure setting, defaulting to StandardQNH.
func (a Aircraft) QNH() float64 {
	if a.NavQNH == nil {
		return StandardQNH
	}
	return *a.NavQNH
}

// ParseFeed decodes a point query payload. A payload without an "ac" key (or
// with a null one) yields no aircraft and no error.
func ParseFeed(data []byte) (FeedResponse, error) {
	var resp FeedResponse

	_, dt, _, err := jsonparser.Get(data)
	if err != nil {
		return resp, fmt.Errorf("decode payload: %w", err)
	}
	if dt != jsonparser.Object {
		return resp, fmt.Errorf("decode payload: %w", ErrNotObject)
	}

	if msg, err := jsonparser.GetString(data, "msg"); err == nil {
		resp.Message = msg
	}
	if now, err := jsonparser.GetFloat(data, "now"); err == nil {
		resp.Now = int64(now)
	}
	if total, err := jsonparser.GetInt(data, "total"); err == nil {
		resp.Total = int(total)
	}

	list, dt, _, err := jsonparser.Get(data, "ac")
	if errors.Is(err, jsonparser.KeyPathNotFoundError) || dt == jsonparser.Null {
		return resp, nil
	}
	if err != nil {
		return resp, fmt.Errorf("decode ac: %w", err)
	}
	if dt != jsonparser.Array {
		return resp, fmt.Errorf("decode ac: unexpected %s", dt)
	}

	resp.HasAircraft = true
	var parseErr error
	_, err = jsonparser.ArrayEach(list, func(value []byte, dt jsonparser.ValueType, _ int, _ error) {
		if parseErr != nil {
			return
		}
		if dt != jsonparser.Object {
			parseErr = fmt.Errorf("decode aircraft %d: %w", len(resp.Aircraft), ErrNotObject)
			return
		}
		ac, err := ParseAircraft(value)
		if err != nil {
			parseErr = fmt.Errorf("decode aircraft %d: %w", len(resp.Aircraft), err)
			return
		}
		resp.Aircraft = append(resp.Aircraft, ac)
	})
	if err != nil {
		return resp, fmt.Errorf("decode ac: %w", err)
	}
	if parseErr != nil {
		return resp, parseErr
	}
	return resp, nil
}

// ParseAircraft decodes one record, keeping the raw fields in document order.
func ParseAircraft(data []byte) (Aircraft, error) {
	ac := Aircraft{
		Track: Number{Text: "0"},
	}

	index := make(map[string]int)
	err := jsonparser.ObjectEach(data, func(key, value []byte, dt jsonparser.ValueType, _ int) error {
		k := string(key)
		rendered := renderValue(value, dt)
		if i, ok := index[k]; ok {
			ac.Fields[i].Value = rendered
		} else {
			index[k] = len(ac.Fields)
			ac.Fields = append(ac.Fields, Field{Key: k, Value: rendered})
		}

		switch k {
		case "hex":
			ac.Hex = textValue(rendered, dt)
		case "category":
			ac.Category = textValue(rendered, dt)
		case "r":
			ac.Registration = textValue(rendered, dt)
		case "t":
			ac.TypeDesignator = textValue(rendered, dt)
		case "dbFlags":
			if f, ok := numericValue(value, dt); ok {
				ac.DBFlags = int64(f)
			}
		case "lat":
			ac.Lat = numberValue(value, dt, rendered)
		case "lon":
			ac.Lon = numberValue(value, dt, rendered)
		case "track":
			ac.Track = numberValue(value, dt, rendered)
		case "gs":
			if f, ok := numericValue(value, dt); ok {
				ac.GroundSpeedKt = f
			}
		case "alt_baro":
			if f, ok := numericValue(value, dt); ok {
				ac.AltBaro = Altitude{Feet: f}
			} else {
				ac.AltBaro = Altitude{Ground: true}
			}
		case "nav_qnh":
			if f, ok := numericValue(value, dt); ok {
				ac.NavQNH = &f
			}
		}
		return nil
	})
	if err != nil {
		return Aircraft{}, err
	}
	return ac, nil
}

func textValue(rendered string, dt jsonparser.ValueType) string {
	if dt == jsonparser.Null {
		return ""
	}
	return rendered
}

// numericValue accepts JSON numbers and numeric strings.
func numericValue(value []byte, dt jsonparser.ValueType) (float64, bool) {
	var s string
	switch dt {
	case jsonparser.Number:
		s = string(value)
	case jsonparser.String:
		parsed, err := jsonparser.ParseString(value)
		if err != nil {
			return 0, false
		}
		s = strings.TrimSpace(parsed)
	default:
		return 0, false
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func numberValue(value []byte, dt jsonparser.ValueType, rendered string) Number {
	f, ok := numericValue(value, dt)
	return Number{Value: f, Text: rendered, Valid: ok}
}
