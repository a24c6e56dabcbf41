package models

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

// TestParseLine covers decoding and rejection of station file lines
func TestParseLine(t *testing.T) {
	tests := []struct {
		name       string
		line       string
		wantErr    bool
		wantReason RejectReason
		want       ParsedRecord
	}{
		{
			name: "valid record",
			line: "19850101\t-22\t-128\t94",
			want: ParsedRecord{Date: NewDate(1985, time.January, 1), MaxTemp: -22, MinTemp: -128, Precipitation: 94},
		},
		{
			name: "padded fields and trailing newline",
			line: "20140630\t  305 \t 172\t0\r\n",
			want: ParsedRecord{Date: NewDate(2014, time.June, 30), MaxTemp: 305, MinTemp: 172, Precipitation: 0},
		},
		{
			name: "zero is a value, not missing",
			line: "19860110\t0\t0\t0",
			want: ParsedRecord{Date: NewDate(1986, time.January, 10)},
		},
		{
			name:       "date with dashes",
			line:       "1985-01-01\t-22\t-128\t94",
			wantErr:    true,
			wantReason: MalformedDate,
		},
		{
			name:       "impossible calendar date",
			line:       "19850230\t-22\t-128\t94",
			wantErr:    true,
			wantReason: MalformedDate,
		},
		{
			name:       "non numeric temperature",
			line:       "19850101\tabc\t-128\t94",
			wantErr:    true,
			wantReason: MalformedNumber,
		},
		{
			name:       "decimal precipitation",
			line:       "19850101\t-22\t-128\t9.4",
			wantErr:    true,
			wantReason: MalformedNumber,
		},
		{
			name:       "missing field",
			line:       "19850101\t-22\t-128",
			wantErr:    true,
			wantReason: WrongFieldCount,
		},
		{
			name:       "extra field",
			line:       "19850101\t-22\t-128\t94\t1",
			wantErr:    true,
			wantReason: WrongFieldCount,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := ParseLine(tt.line)

			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseLine() error = %v, wantErr %v", err, tt.wantErr)
			}

			if tt.wantErr {
				var pe *ParseError
				if !errors.As(err, &pe) {
					t.Fatalf("error %T is not a *ParseError", err)
				}
				if pe.Reason != tt.wantReason {
					t.Errorf("Reason = %v, want %v", pe.Reason, tt.wantReason)
				}
				if !errors.Is(err, ErrMalformedLine) {
					t.Error("ParseError should match ErrMalformedLine")
				}
				return
			}

			if !rec.Date.Equal(tt.want.Date.Time) {
				t.Errorf("Date = %v, want %v", rec.Date, tt.want.Date)
			}
			if rec.MaxTemp != tt.want.MaxTemp || rec.MinTemp != tt.want.MinTemp || rec.Precipitation != tt.want.Precipitation {
				t.Errorf("values = (%d, %d, %d), want (%d, %d, %d)",
					rec.MaxTemp, rec.MinTemp, rec.Precipitation,
					tt.want.MaxTemp, tt.want.MinTemp, tt.want.Precipitation)
			}
		})
	}
}

func TestHasSentinel(t *testing.T) {
	tests := []struct {
		line string
		want bool
	}{
		{"19850102\t-9999\t-217\t0", true},
		{"19850102\t-122\t-217\t-9999", true},
		{"-9999\t-122\t-217\t0", true},
		{"19850102\t-9999", true},
		{"19850102\t-99990\t-217\t0", false},
		{"19850102\t-122\t-217\t0", false},
	}

	for _, tt := range tests {
		if got := HasSentinel(SplitFields(tt.line)); got != tt.want {
			t.Errorf("HasSentinel(%q) = %v, want %v", tt.line, got, tt.want)
		}
	}
}

func TestParsedRecord_ToObservation(t *testing.T) {
	rec, err := ParseLine("19850101\t-22\t-128\t94")
	if err != nil {
		t.Fatalf("ParseLine() error = %v", err)
	}

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	obs := rec.ToObservation(&Station{ID: 7, Name: "STATION_A"}, now)

	if obs.StationID != 7 || obs.StationName != "STATION_A" {
		t.Errorf("station = (%d, %q), want (7, STATION_A)", obs.StationID, obs.StationName)
	}
	if obs.Date == nil || obs.Date.String() != "1985-01-01" {
		t.Errorf("Date = %v, want 1985-01-01", obs.Date)
	}
	if *obs.MaxTemp != -22 || *obs.MinTemp != -128 || *obs.Precipitation != 94 {
		t.Errorf("values = (%d, %d, %d)", *obs.MaxTemp, *obs.MinTemp, *obs.Precipitation)
	}
	if !obs.CreatedAt.Equal(now) {
		t.Errorf("CreatedAt = %v, want %v", obs.CreatedAt, now)
	}

	// The record must not share memory with the observation
	rec.MaxTemp = 0
	if *obs.MaxTemp != -22 {
		t.Error("observation aliases the parsed record")
	}
}

func TestNewStation(t *testing.T) {
	if _, err := NewStation("   "); err == nil {
		t.Error("NewStation() with blank name should fail")
	}

	s, err := NewStation(" USC00110072 ")
	if err != nil {
		t.Fatalf("NewStation() error = %v", err)
	}
	if s.Name != "USC00110072" {
		t.Errorf("Name = %q, want USC00110072", s.Name)
	}
}

func TestDate_Scan(t *testing.T) {
	tests := []struct {
		name    string
		src     interface{}
		want    string
		wantErr bool
	}{
		{name: "time value", src: time.Date(1985, 1, 3, 0, 0, 0, 0, time.UTC), want: "1985-01-03"},
		{name: "text", src: "1985-01-03", want: "1985-01-03"},
		{name: "bytes with time part", src: []byte("1985-01-03T00:00:00Z"), want: "1985-01-03"},
		{name: "garbage", src: "yesterday", wantErr: true},
		{name: "unsupported type", src: int64(19850103), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var d Date
			err := d.Scan(tt.src)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Scan() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && d.String() != tt.want {
				t.Errorf("Scan() = %v, want %v", d, tt.want)
			}
		})
	}
}

func TestDate_JSON(t *testing.T) {
	d := NewDate(1986, time.January, 17)
	data, err := json.Marshal(d)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(data) != `"1986-01-17"` {
		t.Errorf("Marshal() = %s", data)
	}

	var back Date
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if !back.Equal(d.Time) {
		t.Errorf("Unmarshal() = %v, want %v", back, d)
	}
}

func TestIngestError(t *testing.T) {
	cause := errors.New("permission denied")
	err := NewIngestError(KindIOFailure, "wx/USC00110072.txt", 0, cause)

	if !errors.Is(err, ErrIOFailure) {
		t.Error("IngestError should match ErrIOFailure")
	}
	if errors.Is(err, ErrStoreFailure) {
		t.Error("IngestError should not match ErrStoreFailure")
	}
	if !errors.Is(err, cause) {
		t.Error("IngestError should unwrap to its cause")
	}
	if KindOf(err) != KindIOFailure {
		t.Errorf("KindOf() = %v, want %v", KindOf(err), KindIOFailure)
	}
	if err.IsTransient() {
		t.Error("IO failures are not transient")
	}
	if !NewIngestError(KindStoreFailure, "f", 0, cause).IsTransient() {
		t.Error("store failures are transient")
	}

	_, perr := ParseLine("bad")
	if KindOf(perr) != KindMalformedLine {
		t.Errorf("KindOf(parse error) = %v, want %v", KindOf(perr), KindMalformedLine)
	}
}

func TestValidationError(t *testing.T) {
	err := &ValidationError{
		Field:   "name",
		Value:   "",
		Message: "station name must not be empty",
	}

	if err.Error() != "station name must not be empty" {
		t.Errorf("Error() = %v", err.Error())
	}

	if err.IsTransient() {
		t.Error("ValidationError should not be transient")
	}
}
