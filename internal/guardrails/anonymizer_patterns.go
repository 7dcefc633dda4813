package guardrails

import (
	"regexp"

	"medagent/config"
)

// PIIType represents the type of PII detected.
type PIIType string

const (
	PIITypeEmail         PIIType = "EMAIL"
	PIITypePhone         PIIType = "PHONE"
	PIITypeSSN           PIIType = "SSN"
	PIITypeCreditCard    PIIType = "CC"
	PIITypeIPAddress     PIIType = "IP"
	PIITypeMedicalRecord PIIType = "MRN"
)

// PIIPattern defines a regex pattern for detecting PII.
type PIIPattern struct {
	Type    PIIType
	Pattern *regexp.Regexp
}

// defaultPatterns returns the built-in detectors. Card numbers are matched before
// phone numbers so a card is never split into a phone token.
func defaultPatterns() []PIIPattern {
	return []PIIPattern{
		{
			Type:    PIITypeEmail,
			Pattern: regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`),
		},
		// 1234567890123456, 1234-5678-9012-3456, 1234 5678 9012 3456
		{
			Type:    PIITypeCreditCard,
			Pattern: regexp.MustCompile(`\b\d{4}[\s\-]?\d{4}[\s\-]?\d{4}[\s\-]?\d{4}\b`),
		},
		// MRN: 123456, MRN#A-99812, medical record number 55512
		{
			Type:    PIITypeMedicalRecord,
			Pattern: regexp.MustCompile(`(?i)\b(?:MRN|medical record (?:number|no\.?))[\s:#]*[A-Z0-9][A-Z0-9\-]{3,}\b`),
		},
		// 123-45-6789, 123 45 6789, 123456789
		{
			Type:    PIITypeSSN,
			Pattern: regexp.MustCompile(`\b\d{3}[\s\-]?\d{2}[\s\-]?\d{4}\b`),
		},
		// (123) 456-7890, 123-456-7890, 123.456.7890, +1 123 456 7890
		{
			Type:    PIITypePhone,
			Pattern: regexp.MustCompile(`(?:\+1[\s.-]?)?\(?\b\d{3}\)?[\s.\-]?\d{3}[\s.\-]?\d{4}\b`),
		},
		{
			Type:    PIITypeIPAddress,
			Pattern: regexp.MustCompile(`\b(?:(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\.){3}(?:25[0-5]|2[0-4][0-9]|[01]?[0-9][0-9]?)\b`),
		},
	}
}

// enabledPatterns returns the detectors switched on in cfg, in matching order.
func enabledPatterns(cfg config.DetectorConfig) []PIIPattern {
	enabled := map[PIIType]bool{
		PIITypeEmail:         cfg.Email,
		PIITypePhone:         cfg.Phone,
		PIITypeSSN:           cfg.SSN,
		PIITypeCreditCard:    cfg.CreditCard,
		PIITypeIPAddress:     cfg.IPAddress,
		PIITypeMedicalRecord: cfg.MedicalRecord,
	}

	var patterns []PIIPattern
	for _, p := range defaultPatterns() {
		if enabled[p.Type] {
			patterns = append(patterns, p)
		}
	}
	return patterns
}
