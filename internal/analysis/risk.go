package analysis

import (
	"strconv"
	"strings"

	"medagent/internal/extract"
)

// riskRule flags a risk factor from the extracted fields and pairs it with a recommendation.
type riskRule struct {
	factor         string
	recommendation string
	applies        func(extract.Fields) bool
}

var riskRules = []riskRule{
	{
		factor:         "Elevated blood pressure",
		recommendation: "Recheck blood pressure and review antihypertensive therapy",
		applies: func(f extract.Fields) bool {
			return hasCondition(f, "hypertension") || anyVital(f, extract.VitalBloodPressure, elevatedPressure)
		},
	},
	{
		factor:         "Diabetes",
		recommendation: "Order HbA1c and review glycemic control",
		applies: func(f extract.Fields) bool {
			return hasCondition(f, "diabetes")
		},
	},
	{
		factor:         "Tachycardia",
		recommendation: "Obtain ECG to evaluate elevated heart rate",
		applies: func(f extract.Fields) bool {
			return anyVital(f, extract.VitalHeartRate, func(v string) bool { return atLeast(v, 101) })
		},
	},
	{
		factor:         "Fever",
		recommendation: "Evaluate for infectious source",
		applies: func(f extract.Fields) bool {
			return anyVital(f, extract.VitalTemperature, febrile)
		},
	},
	{
		factor:         "Low oxygen saturation",
		recommendation: "Assess respiratory status and consider supplemental oxygen",
		applies: func(f extract.Fields) bool {
			return anyVital(f, extract.VitalOxygenSaturation, func(v string) bool {
				n, err := strconv.Atoi(strings.TrimSuffix(v, "%"))
				return err == nil && n < 95
			})
		},
	},
	{
		factor:         "Chest pain",
		recommendation: "Rule out acute coronary syndrome",
		applies: func(f extract.Fields) bool {
			return hasCondition(f, "chest pain")
		},
	},
}

// assessRisk applies the rules in order. Both slices are empty, never nil, when no rule applies.
func assessRisk(f extract.Fields) (factors, recommendations []string) {
	factors, recommendations = []string{}, []string{}
	for _, r := range riskRules {
		if r.applies(f) {
			factors = append(factors, r.factor)
			recommendations = append(recommendations, r.recommendation)
		}
	}
	return factors, recommendations
}

func hasCondition(f extract.Fields, term string) bool {
	for _, c := range f.Conditions {
		if strings.Contains(c.Value, term) {
			return true
		}
	}
	return false
}

func anyVital(f extract.Fields, kind extract.VitalKind, pred func(string) bool) bool {
	for _, v := range f.VitalSigns {
		if v.Kind == kind && pred(v.Value) {
			return true
		}
	}
	return false
}

// elevatedPressure reports stage 2 hypertension readings (140/90 and above).
func elevatedPressure(v string) bool {
	sys, dia, ok := strings.Cut(v, "/")
	if !ok {
		return false
	}
	return atLeast(sys, 140) || atLeast(dia, 90)
}

func atLeast(v string, min int) bool {
	n, err := strconv.Atoi(v)
	return err == nil && n >= min
}

// febrile accepts "fever" or a reading of at least 100.4F / 38C. Unitless readings
// above 50 are taken as Fahrenheit.
func febrile(v string) bool {
	if v == "fever" {
		return true
	}
	unit := ""
	switch {
	case strings.HasSuffix(v, "F"), strings.HasSuffix(v, "C"):
		unit = v[len(v)-1:]
		v = v[:len(v)-1]
	}
	t, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return false
	}
	if unit == "C" || (unit == "" && t < 50) {
		return t >= 38
	}
	return t >= 100.4
}
