// Package oodi provides a client for the legacy student registry API.
package oodi

import (
	"fmt"
	"strconv"
	"time"

	"github.com/edusync/moodlebridge/internal/registry"
)

// courseUnitRealisation is the wire representation of a course offering.
type courseUnitRealisation struct {
	AutomaticEnabled bool      `json:"automatic_enabled"`
	CourseID         int64     `json:"course_id"`
	EndDate          oodiTime  `json:"end_date"`
	Name             string    `json:"realisation_name"`
	Published        bool      `json:"published"`
	Students         []student `json:"students"`
	Teachers         []teacher `json:"teachers"`
}

// student is the wire representation of a student enrollment.
type student struct {
	Approved      bool   `json:"approved"`
	StatusCode    int    `json:"enrollment_status_code"`
	StudentNumber string `json:"student_number"`
}

// teacher is the wire representation of a teacher row.
type teacher struct {
	EmployeeNumber string `json:"teacher_id"`
}

// courseChange is the wire representation of a change feed entry.
type courseChange struct {
	ChangedAt oodiTime `json:"last_changed"`
	CourseID  int64    `json:"course_id"`
}

// response is the envelope wrapping every API payload.
type response[T any] struct {
	Data   *T  `json:"data"`
	Status int `json:"status"`
}

// oodiTime handles the registry's timestamp format, which predates RFC 3339
// strictness (no colon in the zone offset, millisecond precision).
type oodiTime struct {
	time.Time
}

const oodiTimeLayout = "2006-01-02T15:04:05.000-0700"

// UnmarshalJSON parses a registry timestamp, accepting RFC 3339 as well.
func (t *oodiTime) UnmarshalJSON(data []byte) error {
	s, err := strconv.Unquote(string(data))
	if err != nil {
		return fmt.Errorf("unquoting timestamp: %w", err)
	}
	if s == "" || s == "null" {
		t.Time = time.Time{}
		return nil
	}

	for _, layout := range []string{oodiTimeLayout, time.RFC3339} {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return fmt.Errorf("unrecognised timestamp %q", s)
}

// toRegistry converts a wire realisation into the shared registry snapshot.
func (c courseUnitRealisation) toRegistry() registry.CourseUnitRealisation {
	out := registry.CourseUnitRealisation{
		AutomaticEnabled: c.AutomaticEnabled,
		EndDate:          c.EndDate.Time,
		Name:             c.Name,
		Origin:           registry.OriginOodi,
		Published:        c.Published,
		RealisationID:    strconv.FormatInt(c.CourseID, 10),
	}

	for _, s := range c.Students {
		out.Students = append(out.Students, registry.Student{
			Approved:      s.Approved,
			StatusCode:    s.StatusCode,
			StudentNumber: s.StudentNumber,
		})
	}
	for _, t := range c.Teachers {
		out.Teachers = append(out.Teachers, registry.Teacher{
			EmployeeNumber: t.EmployeeNumber,
		})
	}

	return out
}
