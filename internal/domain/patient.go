package domain

import "github.com/Criser2013/adt-records/internal/conditions"

// Sheet column headers for the identity/base fields, in column order.
// Column names double as the record field names on the wire, so renaming
// one is a breaking change for every previously written file.
const (
	ColDocumentID      = "Document ID"
	ColFullName        = "Full Name"
	ColSex             = "Sex"
	ColPhone           = "Phone"
	ColBirthDate       = "Birth Date"
	ColCreatedAt       = "Created At"
	ColOtherConditions = "Other Conditions"
)

// PatientRecord is one row of the shared patients table.
// All values are spreadsheet scalars; dates are pre-formatted strings
// (BirthDate "2006-01-02", CreatedAt "2006-01-02 15:04:05").
type PatientRecord struct {
	// Identity document number. Unique across the table.
	DocumentID string `json:"document_id"`

	FullName string `json:"full_name"`
	Sex      string `json:"sex"` // "F" / "M"
	Phone    string `json:"phone"`

	BirthDate string `json:"birth_date"`
	CreatedAt string `json:"created_at"`

	// One-hot presence flags over conditions.Vocabulary().
	Conditions map[string]int `json:"conditions"`

	// Set when the patient reported a condition outside the vocabulary.
	OtherConditions bool `json:"other_conditions"`
}

// Columns returns the full sheet schema: base fields, then one column per
// vocabulary condition, then the other-conditions flag.
func Columns() []string {
	base := []string{ColDocumentID, ColFullName, ColSex, ColPhone, ColBirthDate, ColCreatedAt}
	cols := make([]string, 0, len(base)+len(conditions.Vocabulary())+1)
	cols = append(cols, base...)
	cols = append(cols, conditions.Vocabulary()...)
	cols = append(cols, ColOtherConditions)
	return cols
}

// Equal reports field-wise equality, including every vocabulary flag.
// A missing flag and an explicit 0 compare equal.
func (p PatientRecord) Equal(o PatientRecord) bool {
	if p.DocumentID != o.DocumentID || p.FullName != o.FullName ||
		p.Sex != o.Sex || p.Phone != o.Phone ||
		p.BirthDate != o.BirthDate || p.CreatedAt != o.CreatedAt ||
		p.OtherConditions != o.OtherConditions {
		return false
	}
	for _, name := range conditions.Vocabulary() {
		if p.Conditions[name] != o.Conditions[name] {
			return false
		}
	}
	return true
}

// Clone returns a deep copy; the flags map is not shared.
func (p PatientRecord) Clone() PatientRecord {
	out := p
	out.Conditions = make(map[string]int, len(p.Conditions))
	for k, v := range p.Conditions {
		out.Conditions[k] = v
	}
	return out
}
