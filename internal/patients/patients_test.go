package patients

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medagent/internal/core"
)

func TestSample(t *testing.T) {
	d := Sample()
	assert.Equal(t, []string{"patient_001", "patient_002"}, d.IDs())

	p, ok := d.Get("patient_001")
	require.True(t, ok)
	assert.Equal(t, 45, p.Demographics.Age)
	assert.Equal(t, "MRN001", p.Demographics.MedicalRecordNumber)
	assert.Equal(t, "150/95", p.VitalSigns.BloodPressure)
	assert.Equal(t, []string{"Type 2 Diabetes", "Hypertension"}, p.Conditions)
	require.Len(t, p.Medications, 2)
	assert.Equal(t, Medication{Name: "Metformin", Dosage: "500mg", Frequency: "BID"}, p.Medications[1])
}

func TestSummary(t *testing.T) {
	d := Sample()
	fixed := time.Date(2024, 2, 1, 9, 30, 0, 0, time.UTC)
	d.now = func() time.Time { return fixed }

	s, err := d.Summary("patient_002")
	require.NoError(t, err)
	assert.Equal(t, &Summary{
		PatientID:         "patient_002",
		SummaryGenerated:  fixed,
		Demographics:      Demographics{Age: 32, Gender: "female", MedicalRecordNumber: "MRN002"},
		CurrentConditions: []string{"Hypothyroidism"},
		ActiveMedications: 1,
		LastVisit:         "2024-01-10",
		VitalSignsLastRecorded: VitalSigns{
			BloodPressure:    "120/80",
			HeartRate:        72,
			Temperature:      "98.2F",
			RespiratoryRate:  14,
			OxygenSaturation: "99%",
		},
	}, s)

	// the summary does not alias directory state
	s.CurrentConditions[0] = "changed"
	again, _ := d.Summary("patient_002")
	assert.Equal(t, "Hypothyroidism", again.CurrentConditions[0])
}

func TestSummary_UnknownPatient(t *testing.T) {
	_, err := Sample().Summary("patient_999")

	var toolErr *core.ToolError
	require.True(t, errors.As(err, &toolErr))
	assert.Equal(t, core.ErrorTypeNotFound, toolErr.Type)
	assert.Equal(t, "Patient patient_999 not found", toolErr.Message)
	assert.Equal(t, []string{"patient_001", "patient_002"}, toolErr.Details["available_patients"])
}

func TestLoad_Errors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"malformed", "patients: ["},
		{"missing id", "patients:\n  - last_visit: x\n"},
		{"duplicate id", "patients:\n  - id: a\n  - id: a\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load([]byte(tt.data))
			require.Error(t, err)
		})
	}
}

func TestLoad_Empty(t *testing.T) {
	d, err := Load([]byte("patients: []"))
	require.NoError(t, err)
	assert.Empty(t, d.IDs())
}
