package models

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// RejectReason classifies why a line could not be decoded
type RejectReason string

const (
	MalformedDate   RejectReason = "MalformedDate"
	MalformedNumber RejectReason = "MalformedNumber"
	WrongFieldCount RejectReason = "WrongFieldCount"
)

const fieldCount = 4

// ParsedRecord is a decoded station file line.
// Values are kept in their raw integer units.
type ParsedRecord struct {
	Date          Date
	MaxTemp       int
	MinTemp       int
	Precipitation int
}

// ParseError describes a rejected line
type ParseError struct {
	Reason RejectReason
	Field  string
	Value  string
}

func (e *ParseError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("%s: %q", e.Reason, e.Value)
	}
	return fmt.Sprintf("%s in %s: %q", e.Reason, e.Field, e.Value)
}

// IsTransient returns false, a bad line stays bad
func (e *ParseError) IsTransient() bool {
	return false
}

// Is reports ParseError as a malformed line for errors.Is
func (e *ParseError) Is(target error) bool {
	return target == ErrMalformedLine
}

// SplitFields splits a raw line on tabs and trims every token
func SplitFields(line string) []string {
	parts := strings.Split(strings.TrimSpace(line), "\t")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}

// HasSentinel reports whether any field carries the missing value marker
func HasSentinel(fields []string) bool {
	for _, f := range fields {
		if f == SentinelValue {
			return true
		}
	}
	return false
}

// ParseFields decodes already split tokens in the order
// date, max_temp, min_temp, precipitation.
func ParseFields(fields []string) (*ParsedRecord, error) {
	if len(fields) != fieldCount {
		return nil, &ParseError{
			Reason: WrongFieldCount,
			Value:  strings.Join(fields, "\t"),
		}
	}

	date, err := time.Parse(rawDateLayout, fields[0])
	if err != nil {
		return nil, &ParseError{Reason: MalformedDate, Field: "date", Value: fields[0]}
	}

	names := [...]string{"max_temp", "min_temp", "precipitation"}
	var values [3]int
	for i, name := range names {
		v, err := strconv.Atoi(fields[i+1])
		if err != nil {
			return nil, &ParseError{Reason: MalformedNumber, Field: name, Value: fields[i+1]}
		}
		values[i] = v
	}

	return &ParsedRecord{
		Date:          Date{date},
		MaxTemp:       values[0],
		MinTemp:       values[1],
		Precipitation: values[2],
	}, nil
}

// ParseLine splits and decodes one line. Sentinel handling is left to the
// caller so it can be applied before any parse error is reported.
func ParseLine(line string) (*ParsedRecord, error) {
	return ParseFields(SplitFields(line))
}

// ToObservation converts a parsed record into an unsaved observation
func (r *ParsedRecord) ToObservation(station *Station, now time.Time) *Observation {
	date := r.Date
	maxTemp, minTemp, precip := r.MaxTemp, r.MinTemp, r.Precipitation
	return &Observation{
		StationID:     station.ID,
		StationName:   station.Name,
		Date:          &date,
		MaxTemp:       &maxTemp,
		MinTemp:       &minTemp,
		Precipitation: &precip,
		CreatedAt:     now,
	}
}
