package history

import (
	"errors"
	"testing"
	"time"
)

func strPtr(s string) *string { return &s }

func testBuilder() *Builder {
	return NewBuilder(WithClock(clock), WithIDGenerator(func() string { return "rec-1" }))
}

func TestBuildDateRoundTrip(t *testing.T) {
	rec, err := testBuilder().Build("p1", &Extraction{Date: strPtr("2024-03-01")}, "raw")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Date != "2024-03-01" {
		t.Errorf("date = %q, want 2024-03-01", rec.Date)
	}
	want := float64(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC).Unix())
	if rec.DateTS == nil || *rec.DateTS != want {
		t.Errorf("date_ts = %v, want %v", rec.DateTS, want)
	}
}

func TestBuildDatetimeKeepsLocalDate(t *testing.T) {
	rec, err := testBuilder().Build("p1", &Extraction{Date: strPtr("2024-03-01T23:30:00+05:00")}, "raw")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Date != "2024-03-01" {
		t.Errorf("date = %q, want 2024-03-01", rec.Date)
	}
	want := float64(time.Date(2024, 3, 1, 18, 30, 0, 0, time.UTC).Unix())
	if *rec.DateTS != want {
		t.Errorf("date_ts = %v, want %v", *rec.DateTS, want)
	}
}

func TestBuildDateFallsBackToNow(t *testing.T) {
	for _, d := range []*string{nil, strPtr(""), strPtr("last tuesday"), strPtr("03/01/2024")} {
		rec, err := testBuilder().Build("p1", &Extraction{Date: d}, "raw")
		if err != nil {
			t.Fatal(err)
		}
		if rec.Date != "2025-06-01" {
			t.Errorf("date %v: got %q, want 2025-06-01", d, rec.Date)
		}
		if *rec.DateTS != float64(fixedNow.Unix()) {
			t.Errorf("date %v: ts = %v", d, *rec.DateTS)
		}
	}
}

func TestBuildDigest(t *testing.T) {
	tests := []struct {
		name string
		ex   Extraction
		want string
	}{
		{
			"full",
			Extraction{Diagnosis: []string{"Asthma", "Rhinitis"}, Medicines: []string{"Salbutamol"}, DoctorNotes: strPtr("Review in 2 weeks")},
			"Diagnoses: Asthma, Rhinitis; Medicines: Salbutamol; Review in 2 weeks",
		},
		{
			"sentinels",
			Extraction{},
			"Diagnoses: unknown; Medicines: unspecified",
		},
		{
			"blank notes",
			Extraction{Diagnosis: []string{"Flu"}, DoctorNotes: strPtr("  ")},
			"Diagnoses: Flu; Medicines: unspecified",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := testBuilder().Build("p1", &tt.ex, "raw")
			if err != nil {
				t.Fatal(err)
			}
			if rec.Content != tt.want {
				t.Errorf("content = %q, want %q", rec.Content, tt.want)
			}
		})
	}
}

func TestBuildFields(t *testing.T) {
	ex := &Extraction{Diagnosis: []string{"Asthma"}, IsChronic: true, RawText: "model copy"}
	rec, err := testBuilder().Build(" p1 ", ex, "true input")
	if err != nil {
		t.Fatal(err)
	}
	if rec.ID != "rec-1" || rec.PatientID != "p1" || rec.Type != RecordType {
		t.Errorf("rec = %+v", rec)
	}
	if !rec.IsChronic || rec.RawText != "true input" {
		t.Errorf("rec = %+v", rec)
	}
	if rec.Medicines == nil || len(rec.Medicines) != 0 {
		t.Errorf("medicines = %#v, want empty", rec.Medicines)
	}
	ex.Diagnosis[0] = "mutated"
	if rec.Diagnosis[0] != "Asthma" {
		t.Error("record shares diagnosis slice with extraction")
	}
}

func TestBuildRequiresPatient(t *testing.T) {
	_, err := testBuilder().Build("  ", &Extraction{}, "raw")
	var ie *InputError
	if !errors.As(err, &ie) || ie.Field != "patient_id" {
		t.Fatalf("err = %v", err)
	}
}

func TestBuildDefaultIDs(t *testing.T) {
	b := NewBuilder()
	r1, _ := b.Build("p1", nil, "x")
	r2, _ := b.Build("p1", nil, "x")
	if r1.ID == "" || r1.ID == r2.ID {
		t.Errorf("ids = %q, %q", r1.ID, r2.ID)
	}
}
