package cot

import "github.com/charliejllewellyn/airplanes.live-takserver-script/services/relay/internal/models"

const (
	feetToMeters = 0.3048
	// hPaPer1000ft is the standard pressure lapse near sea level.
	hPaPer1000ft = 30.0
)

// CorrectedAltitudeMeters converts a barometric altitude to meters after
// applying the QNH correction. A nil qnh means standard pressure and a
// ground report counts as zero feet. Results below the datum stay negative.
func CorrectedAltitudeMeters(alt models.Altitude, qnh *float64) float64 {
	feet := alt.Feet
	if alt.Ground {
		feet = 0
	}

	setting := models.StandardQNH
	if qnh != nil {
		setting = *qnh
	}

	pressureAltitude := feet + 1000*(models.StandardQNH-setting)/hPaPer1000ft
	return pressureAltitude * feetToMeters
}
