package history

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

const dateLayout = "2006-01-02"

var datetimeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
}

// Builder turns an extraction into a storable Record.
type Builder struct {
	now   func() time.Time
	newID func() string
}

// BuilderOption configures a Builder.
type BuilderOption func(*Builder)

// WithClock sets the clock used for records without a usable date.
func WithClock(now func() time.Time) BuilderOption {
	return func(b *Builder) { b.now = now }
}

// WithIDGenerator sets the record id generator.
func WithIDGenerator(newID func() string) BuilderOption {
	return func(b *Builder) { b.newID = newID }
}

// NewBuilder creates a Builder using time.Now and random UUIDs by default.
func NewBuilder(opts ...BuilderOption) *Builder {
	b := &Builder{now: time.Now, newID: uuid.NewString}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Build resolves the event date once and freezes date_ts. rawText is the
// original input and always wins over the extraction's copy.
func (b *Builder) Build(patientID string, ex *Extraction, rawText string) (Record, error) {
	patientID = strings.TrimSpace(patientID)
	if patientID == "" {
		return Record{}, NewInputError("patient_id", "must not be empty")
	}
	if ex == nil {
		ex = &Extraction{}
	}

	date, ts := b.resolveDate(ex.Date)
	return Record{
		ID:        b.newID(),
		PatientID: patientID,
		Content:   ex.Digest(),
		Date:      date,
		DateTS:    &ts,
		IsChronic: ex.IsChronic,
		Type:      RecordType,
		Diagnosis: nonNil(ex.Diagnosis),
		Medicines: nonNil(ex.Medicines),
		RawText:   rawText,
	}, nil
}

func (b *Builder) resolveDate(raw *string) (string, float64) {
	if raw != nil {
		s := strings.TrimSpace(*raw)
		if t, err := time.Parse(dateLayout, s); err == nil {
			return s, float64(t.Unix())
		}
		for _, layout := range datetimeLayouts {
			if t, err := time.Parse(layout, s); err == nil {
				return t.Format(dateLayout), float64(t.Unix())
			}
		}
	}
	now := b.now().UTC()
	return now.Format(dateLayout), float64(now.Unix())
}

func nonNil(s []string) []string {
	out := make([]string, len(s))
	copy(out, s)
	return out
}
