// Package registry defines the source-registry course model shared by the
// Oodi and Sisu clients and consumed by the synchronization pipeline.
package registry

import (
	"time"
	"unicode"
)

// Origin identifies which source registry a course realisation comes from.
type Origin string

const (
	// OriginOodi is the legacy registry with numeric realisation ids.
	OriginOodi Origin = "oodi"

	// OriginSisu is the newer registry with non-numeric realisation ids.
	OriginSisu Origin = "sisu"
)

// CourseChange records that a course realisation changed in the source
// registry at a given time.
type CourseChange struct {
	// ChangedAt is when the realisation last changed.
	ChangedAt time.Time

	// RealisationID is the changed course realisation identifier.
	RealisationID string
}

// CourseUnitRealisation is the authoritative snapshot of one course offering
// in the source registry.
type CourseUnitRealisation struct {
	// AutomaticEnabled indicates the registry approves enrollments
	// automatically based on their status code.
	AutomaticEnabled bool

	// EndDate is when the course offering ends.
	EndDate time.Time

	// Name is the course display name.
	Name string

	// Origin identifies the registry the snapshot came from.
	Origin Origin

	// Published indicates the realisation is visible in the registry.
	Published bool

	// RealisationID is the unique key of this course offering.
	RealisationID string

	// Students is the source roster of student enrollments.
	Students []Student

	// Teachers is the source roster of teachers.
	Teachers []Teacher
}

// Student is one student enrollment row in the source roster.
type Student struct {
	// Approved indicates the registry explicitly approved the enrollment.
	Approved bool

	// StatusCode is the registry's numeric enrollment status code.
	StatusCode int

	// StudentNumber is the registry's student identifier.
	StudentNumber string
}

// Teacher is one teacher row in the source roster.
type Teacher struct {
	// EmployeeNumber is the registry's employee identifier.
	EmployeeNumber string
}

// IsOodiID reports whether a realisation id belongs to the legacy registry.
// Legacy ids are purely numeric; Sisu ids contain non-digit characters.
func IsOodiID(realisationID string) bool {
	if realisationID == "" {
		return false
	}
	for _, r := range realisationID {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
