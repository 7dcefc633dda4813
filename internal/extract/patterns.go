package extract

import (
	"regexp"
	"strconv"
	"strings"
)

// VitalKind identifies which vital sign a match describes.
type VitalKind string

const (
	VitalBloodPressure    VitalKind = "blood_pressure"
	VitalHeartRate        VitalKind = "heart_rate"
	VitalTemperature      VitalKind = "temperature"
	VitalRespiratoryRate  VitalKind = "respiratory_rate"
	VitalOxygenSaturation VitalKind = "oxygen_saturation"
)

// vitalPattern recognizes one vital sign. value turns the submatches into the
// normalized reported value; returning false drops the match. A trailing group
// named "tail" bounds the number without being part of the reported span, so
// units written flush against the digits (120/80mmHg, 88bpm) still match.
type vitalPattern struct {
	Kind    VitalKind
	Pattern *regexp.Regexp
	value   func(groups []string) (string, bool)
}

// defaultVitalPatterns returns the built-in vital sign patterns.
func defaultVitalPatterns() []vitalPattern {
	return []vitalPattern{
		// Labeled blood pressure
		// Matches: BP 150/95, bp: 120 / 80, Blood pressure 130/85, BP 120/80mmHg
		{
			Kind:    VitalBloodPressure,
			Pattern: regexp.MustCompile(`(?i)\b(?:bp|blood pressure)\s*[:=]?\s*(\d{2,3})\s*/\s*(\d{2,3})(?P<tail>\D|$)`),
			value:   bloodPressure,
		},
		// Standalone ratio, kept only when it reads as a plausible pressure
		// Matches: 140/90 but not 12/05 or 80/120
		{
			Kind:    VitalBloodPressure,
			Pattern: regexp.MustCompile(`\b(\d{2,3})/(\d{2,3})(?P<tail>\D|$)`),
			value:   plausibleBloodPressure,
		},
		// Matches: HR 88, heart rate: 72, pulse 101, HR 88bpm
		{
			Kind:    VitalHeartRate,
			Pattern: regexp.MustCompile(`(?i)\b(?:hr|heart rate|pulse)\s*[:=]?\s*(\d{2,3})(?P<tail>\D|$)`),
			value:   firstGroup,
		},
		// Labeled temperature with optional unit
		// Matches: Temp 98.6, temperature: 38.5 C, temp 101.2F
		{
			Kind:    VitalTemperature,
			Pattern: regexp.MustCompile(`(?i)\btemp(?:erature)?\s*[:=]?\s*(\d{2,3}(?:\.\d+)?)\s*°?\s*([cf])?\b`),
			value:   temperature,
		},
		// Fahrenheit reading without a label, within body temperature range
		// Matches: 101.2F, 99 °F
		{
			Kind:    VitalTemperature,
			Pattern: regexp.MustCompile(`(?i)\b(\d{2,3}(?:\.\d+)?)\s*°?\s*(f)\b`),
			value:   plausibleFahrenheit,
		},
		{
			Kind:    VitalTemperature,
			Pattern: regexp.MustCompile(`(?i)\bfever\b`),
			value:   func([]string) (string, bool) { return "fever", true },
		},
		// Matches: RR 18, resp rate 22, respiratory rate: 16, RR 18/min
		{
			Kind:    VitalRespiratoryRate,
			Pattern: regexp.MustCompile(`(?i)\b(?:rr|resp(?:iratory)? rate)\s*[:=]?\s*(\d{1,2})(?P<tail>\D|$)`),
			value:   firstGroup,
		},
		// Matches: SpO2 95%, O2 sat 88%, saturation: 97 %
		{
			Kind:    VitalOxygenSaturation,
			Pattern: regexp.MustCompile(`(?i)\b(?:spo2|o2 sat(?:uration)?|sat(?:uration)?)\s*[:=]?\s*(\d{2,3})\s*%`),
			value:   percent,
		},
	}
}

func firstGroup(g []string) (string, bool) {
	return g[1], true
}

func percent(g []string) (string, bool) {
	return g[1] + "%", true
}

func bloodPressure(g []string) (string, bool) {
	return g[1] + "/" + g[2], true
}

func plausibleBloodPressure(g []string) (string, bool) {
	sys, err1 := strconv.Atoi(g[1])
	dia, err2 := strconv.Atoi(g[2])
	if err1 != nil || err2 != nil {
		return "", false
	}
	if sys < 60 || sys > 300 || dia < 30 || dia > 200 || sys <= dia {
		return "", false
	}
	return bloodPressure(g)
}

func temperature(g []string) (string, bool) {
	if len(g) > 2 && g[2] != "" {
		return g[1] + strings.ToUpper(g[2]), true
	}
	return g[1], true
}

func plausibleFahrenheit(g []string) (string, bool) {
	t, err := strconv.ParseFloat(g[1], 64)
	if err != nil || t < 90 || t > 110 {
		return "", false
	}
	return temperature(g)
}

// vocabularyPattern compiles a case-insensitive literal matcher for a vocabulary term.
func vocabularyPattern(term string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)` + regexp.QuoteMeta(term))
}
