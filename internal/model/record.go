package model

import "time"

// Well-known field names shared by the contract, the extractor prompt, and
// the merger's duplicate check.
const (
	FieldSupplierName    = "supplier_name"
	FieldProductCode     = "product_code"
	FieldDescription     = "description"
	FieldStartupVoltage  = "startup_voltage"
	FieldFirmwareVersion = "firmware_version"
	FieldValidFrom       = "valid_from"
	FieldValidTo         = "valid_to"
)

// CandidateRecord is the raw output of document extraction: field values as
// the collaborator produced them, plus low-confidence extras. Transient; it
// is consumed by validation and never persisted directly.
type CandidateRecord struct {
	SourceFile  string         `json:"source_file"`
	ExtractedAt time.Time      `json:"extracted_at"`
	Fields      map[string]any `json:"fields"`
	Extras      map[string]any `json:"extras,omitempty"`
}

// ValidatedRecord is a CandidateRecord that passed the field contract: all
// required fields present and typed, dates normalized to UTC, and
// ValidFrom strictly before ValidTo.
type ValidatedRecord struct {
	SourceFile  string
	ExtractedAt time.Time
	Fields      map[string]any
	Extras      map[string]any
	ValidFrom   time.Time
	ValidTo     time.Time
}

// StringField returns the named field as a trimmed-as-extracted string, or
// "" when absent or not a string.
func (r *ValidatedRecord) StringField(name string) string {
	s, _ := r.Fields[name].(string)
	return s
}
