// Package models provides data model definitions for the resistance-test core.
package models

import (
	"strings"
	"time"
)

// DateLayout is the calendar-day format used by test dates.
const DateLayout = "2006-01-02"

// ReservedIDPrefix marks ids in the records partition that are internal
// bookkeeping entries rather than real tests. They are excluded from
// listings and from eviction.
const ReservedIDPrefix = "__"

// Record represents one resistance test on a shrimp batch.
//
// Optional numeric fields are pointers without omitempty: an unset value
// marshals as an explicit JSON null, which the remote client converts to
// its null marker on write and back to absent on read. That round trip is
// what keeps "not yet entered" distinct from "entered as zero".
type Record struct {
	ID                string   `json:"id"`
	LotNumber         string   `json:"lotNumber"`
	Date              string   `json:"date"` // calendar day, YYYY-MM-DD
	Completed         bool     `json:"completed"`
	Samples           []Sample `json:"samples"`
	UpdatedAt         int64    `json:"updatedAt"` // unix milliseconds
	Provider          string   `json:"provider,omitempty"`
	Responsible       string   `json:"responsible,omitempty"`
	CertificationType string   `json:"certificationType,omitempty"`
	ResidualRaw       *float64 `json:"residualRaw"`
	ResidualCooked    *float64 `json:"residualCooked"`
	Observations      string   `json:"observations,omitempty"`
}

// Sample represents one timed observation within a Record.
type Sample struct {
	ID          string `json:"id"`
	TimeSlot    int    `json:"timeSlot"` // hours from test start
	RawUnits    *int   `json:"rawUnits"`
	CookedUnits *int   `json:"cookedUnits"`
	PhotoURL    string `json:"photoUrl,omitempty"`
}

// IsComplete reports whether a sample has both counts entered and a photo
// attached. A count of zero is a valid entry; only nil means "not entered".
func (s *Sample) IsComplete() bool {
	return s.RawUnits != nil && s.CookedUnits != nil && s.PhotoURL != ""
}

// DateTime parses the record's calendar day.
func (r *Record) DateTime() (time.Time, error) {
	return time.Parse(DateLayout, r.Date)
}

// UpdatedAtTime returns UpdatedAt as time.Time.
func (r *Record) UpdatedAtTime() time.Time {
	return time.UnixMilli(r.UpdatedAt)
}

// Touch refreshes the last-modified timestamp.
func (r *Record) Touch() {
	r.UpdatedAt = time.Now().UnixMilli()
}

// IsData reports whether this entry is a real test record: non-reserved id,
// non-empty lot number and a parseable date. The records partition is also
// used ad hoc for internal bookkeeping entries, which fail this check and
// are excluded from listings.
func (r *Record) IsData() bool {
	if strings.HasPrefix(r.ID, ReservedIDPrefix) {
		return false
	}
	if r.LotNumber == "" {
		return false
	}
	_, err := r.DateTime()
	return err == nil
}

// CompletedSamples counts samples with both counts and a photo present.
func (r *Record) CompletedSamples() int {
	n := 0
	for i := range r.Samples {
		if r.Samples[i].IsComplete() {
			n++
		}
	}
	return n
}
