package cot

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/charliejllewellyn/airplanes.live-takserver-script/services/relay/internal/models"
)

// knotsToMetersPerSecond converts ground speed.
const knotsToMetersPerSecond = 0.514444

// Builder turns aircraft records into CoT events.
type Builder struct {
	stale time.Duration
	now   func() time.Time
}

// Option customizes a Builder.
type Option func(*Builder)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(b *Builder) {
		if now != nil {
			b.now = now
		}
	}
}

// NewBuilder returns a Builder whose events go stale after stale.
func NewBuilder(stale time.Duration, opts ...Option) *Builder {
	b := &Builder{stale: stale, now: time.Now}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// StaleInterval reports the configured stale interval.
func (b *Builder) StaleInterval() time.Duration { return b.stale }

// TrackUID derives the event uid from the ICAO hex address. The same hex
// always yields the same uid so consumers can correlate updates.
func TrackUID(hex string) string {
	return uuid.NewMD5(uuid.NameSpaceDNS, []byte(hex)).String()
}

// Build assembles the event for ac. It returns false when the record has no
// emitter category.
func (b *Builder) Build(ac models.Aircraft) (*Event, bool) {
	cotType, ok := Classify(ac.Category, ac.Military())
	if !ok {
		return nil, false
	}

	now := b.now().UTC()
	hae := CorrectedAltitudeMeters(ac.AltBaro, ac.NavQNH)

	return &Event{
		Version: Version,
		UID:     TrackUID(ac.Hex),
		Time:    Timestamp(now),
		Start:   Timestamp(now),
		Stale:   Timestamp(now.Add(b.stale)),
		Type:    cotType,
		How:     HowMachineGPS,
		Detail: Detail{
			Contact: Contact{
				Callsign: ac.Hex + "_" + ac.Registration,
				Type:     ac.TypeDesignator,
			},
			Remarks: Remarks{
				Source: RemarksSource,
				Text:   remarks(ac.Fields),
			},
			Track: Track{
				Speed:  models.FormatFloat(ac.GroundSpeedKt * knotsToMetersPerSecond),
				Course: ac.Track.Text,
			},
		},
		Point: Point{
			Lat: ac.Lat.Text,
			Lon: ac.Lon.Text,
			Hae: models.FormatFloat(hae),
			CE:  UnknownError,
			LE:  UnknownError,
		},
	}, true
}

func remarks(fields []models.Field) string {
	var b strings.Builder
	for _, f := range fields {
		b.WriteString(f.Key)
		b.WriteString(":")
		b.WriteString(f.Value)
		b.WriteString(", ")
	}
	return b.String()
}
