// Package patients serves the read-only demonstration patient directory.
package patients

import (
	_ "embed"
	"errors"
	"fmt"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"medagent/internal/core"
)

//go:embed patients.yaml
var sampleData []byte

// Demographics holds the identifying attributes of a patient.
type Demographics struct {
	Age                 int    `yaml:"age" json:"age"`
	Gender              string `yaml:"gender" json:"gender"`
	MedicalRecordNumber string `yaml:"medical_record_number" json:"medical_record_number"`
}

// VitalSigns are the last recorded vitals. Values keep the units they were recorded with.
type VitalSigns struct {
	BloodPressure    string `yaml:"blood_pressure" json:"blood_pressure"`
	HeartRate        int    `yaml:"heart_rate" json:"heart_rate"`
	Temperature      string `yaml:"temperature" json:"temperature"`
	RespiratoryRate  int    `yaml:"respiratory_rate" json:"respiratory_rate"`
	OxygenSaturation string `yaml:"oxygen_saturation" json:"oxygen_saturation"`
}

// Medication is an active prescription.
type Medication struct {
	Name      string `yaml:"name" json:"name"`
	Dosage    string `yaml:"dosage" json:"dosage"`
	Frequency string `yaml:"frequency" json:"frequency"`
}

// Patient is one directory record.
type Patient struct {
	ID           string       `yaml:"id" json:"patient_id"`
	Demographics Demographics `yaml:"demographics" json:"demographics"`
	VitalSigns   VitalSigns   `yaml:"vital_signs" json:"vital_signs"`
	Medications  []Medication `yaml:"medications" json:"medications"`
	Conditions   []string     `yaml:"conditions" json:"conditions"`
	LastVisit    string       `yaml:"last_visit" json:"last_visit"`
	Notes        string       `yaml:"notes" json:"notes"`
}

// Summary is the condensed view returned by get_patient_summary.
type Summary struct {
	PatientID              string       `json:"patient_id"`
	SummaryGenerated       time.Time    `json:"summary_generated"`
	Demographics           Demographics `json:"demographics"`
	CurrentConditions      []string     `json:"current_conditions"`
	ActiveMedications      int          `json:"active_medications"`
	LastVisit              string       `json:"last_visit"`
	VitalSignsLastRecorded VitalSigns   `json:"vital_signs_last_recorded"`
}

// Directory is an immutable, in-memory patient directory. It is safe for concurrent use.
type Directory struct {
	patients map[string]Patient
	ids      []string
	now      func() time.Time
}

// Load parses a YAML directory document.
func Load(data []byte) (*Directory, error) {
	var doc struct {
		Patients []Patient `yaml:"patients"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse patient directory: %w", err)
	}

	d := &Directory{
		patients: make(map[string]Patient, len(doc.Patients)),
		now:      time.Now,
	}
	for _, p := range doc.Patients {
		if p.ID == "" {
			return nil, errors.New("patient record without id")
		}
		if _, dup := d.patients[p.ID]; dup {
			return nil, fmt.Errorf("duplicate patient id %q", p.ID)
		}
		d.patients[p.ID] = p
		d.ids = append(d.ids, p.ID)
	}
	slices.Sort(d.ids)
	return d, nil
}

// Sample returns the embedded demonstration directory.
func Sample() *Directory {
	d, err := Load(sampleData)
	if err != nil {
		panic(fmt.Sprintf("embedded patient directory is invalid: %v", err))
	}
	return d
}

// IDs returns the known patient ids in sorted order.
func (d *Directory) IDs() []string {
	return slices.Clone(d.ids)
}

// Get returns the patient record for id.
func (d *Directory) Get(id string) (Patient, bool) {
	p, ok := d.patients[id]
	return p, ok
}

// Summary builds the summary for id. Unknown ids yield a not-found error whose details
// list the available patients.
func (d *Directory) Summary(id string) (*Summary, error) {
	p, ok := d.patients[id]
	if !ok {
		return nil, core.NewNotFoundError(fmt.Sprintf("Patient %s not found", id)).
			WithDetails(map[string]any{"available_patients": d.IDs()})
	}
	return &Summary{
		PatientID:              p.ID,
		SummaryGenerated:       d.now().UTC(),
		Demographics:           p.Demographics,
		CurrentConditions:      slices.Clone(p.Conditions),
		ActiveMedications:      len(p.Medications),
		LastVisit:              p.LastVisit,
		VitalSignsLastRecorded: p.VitalSigns,
	}, nil
}
