package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

const (
	// SentinelValue marks a missing reading in station files
	SentinelValue = "-9999"

	// TempScale converts stored tenths of a degree to degrees
	TempScale = 10

	// PrecipScale converts stored hundredths to whole units
	PrecipScale = 100

	dateLayout    = "2006-01-02"
	rawDateLayout = "20060102"
)

// Station represents a weather monitoring station
type Station struct {
	ID        int64     `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// NewStation validates the station name and returns an unsaved station
func NewStation(name string) (*Station, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, &ValidationError{
			Field:   "name",
			Value:   name,
			Message: "station name must not be empty",
		}
	}
	return &Station{Name: name}, nil
}

// Observation is one station's reading for one calendar day.
// Temperatures are tenths of a degree, precipitation hundredths of a unit.
// NULL columns are represented as nil pointers.
type Observation struct {
	ID            int64     `json:"id" db:"id"`
	StationID     int64     `json:"-" db:"station_id"`
	StationName   string    `json:"station" db:"station_name"`
	Date          *Date     `json:"date" db:"date"`
	MaxTemp       *int      `json:"max_temp" db:"max_temp"`
	MinTemp       *int      `json:"min_temp" db:"min_temp"`
	Precipitation *int      `json:"precipitation" db:"precipitation"`
	CreatedAt     time.Time `json:"-" db:"created_at"`
}

// YearlyStats is the per-station yearly aggregate derived from observations
type YearlyStats struct {
	ID                 int64     `json:"id" db:"id"`
	StationID          int64     `json:"-" db:"station_id"`
	StationName        string    `json:"station" db:"station_name"`
	Year               int       `json:"year" db:"year"`
	AvgMaxTemp         float64   `json:"avg_max_temp" db:"avg_max_temp"`
	AvgMinTemp         float64   `json:"avg_min_temp" db:"avg_min_temp"`
	TotalPrecipitation float64   `json:"total_precipitation" db:"total_precipitation"`
	ObservationCount   int       `json:"-" db:"observation_count"`
	CreatedAt          time.Time `json:"-" db:"created_at"`
	UpdatedAt          time.Time `json:"-" db:"updated_at"`
}

// Date is a calendar date without time of day, always at midnight UTC.
// It is stored as YYYY-MM-DD so it works against both DATE and TEXT columns.
type Date struct {
	time.Time
}

// NewDate builds a Date from its components
func NewDate(year int, month time.Month, day int) Date {
	return Date{time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// ParseDate parses an ISO YYYY-MM-DD date
func ParseDate(s string) (Date, error) {
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return Date{}, err
	}
	return Date{t}, nil
}

// String returns the ISO representation
func (d Date) String() string {
	return d.Format(dateLayout)
}

// MarshalJSON encodes the date as "YYYY-MM-DD"
func (d Date) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

// UnmarshalJSON decodes "YYYY-MM-DD"
func (d *Date) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseDate(s)
	if err != nil {
		return err
	}
	*d = parsed
	return nil
}

// Value implements driver.Valuer
func (d Date) Value() (driver.Value, error) {
	return d.String(), nil
}

// Scan implements sql.Scanner for DATE, TEXT and timestamp columns
func (d *Date) Scan(src interface{}) error {
	switch v := src.(type) {
	case time.Time:
		y, m, day := v.Date()
		*d = NewDate(y, m, day)
		return nil
	case string:
		return d.scanString(v)
	case []byte:
		return d.scanString(string(v))
	default:
		return fmt.Errorf("cannot scan %T into Date", src)
	}
}

func (d *Date) scanString(s string) error {
	if len(s) < len(dateLayout) {
		return fmt.Errorf("invalid date %q", s)
	}
	parsed, err := ParseDate(s[:len(dateLayout)])
	if err != nil {
		return fmt.Errorf("invalid date %q: %w", s, err)
	}
	*d = parsed
	return nil
}

// ValidationError represents a data validation error
type ValidationError struct {
	Field   string
	Value   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// IsTransient returns false as validation errors are permanent
func (e *ValidationError) IsTransient() bool {
	return false
}
