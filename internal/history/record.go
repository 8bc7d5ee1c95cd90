// Package history turns prescriptions into time-stamped patient history
// records and ranks them as evidence for symptom correlation.
package history

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"github.com/efebarandurmaz/medrag/internal/vector"
)

// RecordType tags prescription-derived records.
const RecordType = "prescription"

// Payload keys of a stored record.
const (
	KeyRecordID  = "record_id"
	KeyPatientID = "patient_id"
	KeyDate      = "date"
	KeyDateTS    = "date_ts"
	KeyIsChronic = "is_chronic"
	KeyType      = "type"
	KeyDiagnosis = "diagnosis"
	KeyMedicines = "medicines"
	KeyRawText   = "raw_text"
)

// Record is one clinical event for one patient. Records are immutable once
// stored.
type Record struct {
	ID        string   `json:"id"`
	PatientID string   `json:"patient_id"`
	Content   string   `json:"content"`
	Date      string   `json:"date"`
	DateTS    *float64 `json:"date_ts,omitempty"`
	IsChronic bool     `json:"is_chronic"`
	Type      string   `json:"type"`
	Diagnosis []string `json:"diagnosis"`
	Medicines []string `json:"medicines"`
	RawText   string   `json:"raw_text"`
}

// Payload returns the vector store payload for r. Content travels separately.
func (r Record) Payload() map[string]any {
	p := map[string]any{
		KeyRecordID:  r.ID,
		KeyPatientID: r.PatientID,
		KeyDate:      r.Date,
		KeyIsChronic: r.IsChronic,
		KeyType:      r.Type,
		KeyDiagnosis: append([]string{}, r.Diagnosis...),
		KeyMedicines: append([]string{}, r.Medicines...),
		KeyRawText:   r.RawText,
	}
	if r.DateTS != nil {
		p[KeyDateTS] = *r.DateTS
	}
	return p
}

// RecordFromResult rebuilds a record from a stored point. Missing fields
// default to their zero values.
func RecordFromResult(res vector.SearchResult) Record {
	p := res.Payload
	r := Record{
		ID:        vector.String(p[KeyRecordID]),
		PatientID: vector.String(p[KeyPatientID]),
		Content:   res.Content,
		Date:      vector.String(p[KeyDate]),
		IsChronic: vector.Bool(p[KeyIsChronic]),
		Type:      vector.String(p[KeyType]),
		Diagnosis: vector.Strings(p[KeyDiagnosis]),
		Medicines: vector.Strings(p[KeyMedicines]),
		RawText:   vector.String(p[KeyRawText]),
	}
	if r.ID == "" {
		r.ID = res.ID
	}
	if ts, ok := vector.Float(p[KeyDateTS]); ok {
		r.DateTS = &ts
	}
	if r.Diagnosis == nil {
		r.Diagnosis = []string{}
	}
	if r.Medicines == nil {
		r.Medicines = []string{}
	}
	return r
}

// Key identifies r for deduplication: its record id, or a digest of its
// content when it carries none.
func (r Record) Key() string {
	if r.ID != "" {
		return r.ID
	}
	h := sha256.New()
	for _, part := range []string{r.PatientID, r.Date, r.Content, r.RawText} {
		h.Write([]byte(part))
		h.Write([]byte{0})
	}
	return "digest:" + hex.EncodeToString(h.Sum(nil))
}

// ScoredItem is a retrieved record with its ranking score for one query.
type ScoredItem struct {
	Record
	Similarity float64 `json:"similarity"`
	RankScore  float64 `json:"rank_score"`
}

// Extraction is the structured form of a prescription.
type Extraction struct {
	Diagnosis   []string `json:"diagnosis"`
	Medicines   []string `json:"medicines"`
	IsChronic   bool     `json:"is_chronic"`
	Date        *string  `json:"date"`
	DoctorNotes *string  `json:"doctor_notes"`
	RawText     string   `json:"raw_text"`
}

// Digest is the human-readable summary stored as a record's content.
func (e *Extraction) Digest() string {
	diagnoses := "unknown"
	if len(e.Diagnosis) > 0 {
		diagnoses = strings.Join(e.Diagnosis, ", ")
	}
	medicines := "unspecified"
	if len(e.Medicines) > 0 {
		medicines = strings.Join(e.Medicines, ", ")
	}
	notes := ""
	if e.DoctorNotes != nil {
		notes = strings.TrimSpace(*e.DoctorNotes)
	}
	parts := []string{"Diagnoses: " + diagnoses, "Medicines: " + medicines}
	if notes != "" {
		parts = append(parts, notes)
	}
	return strings.Join(parts, "; ")
}
