package sync

import (
	"context"
	"time"

	"github.com/edusync/moodlebridge/internal/moodle"
	"github.com/edusync/moodlebridge/internal/registry"
)

// MoodleClient defines the Moodle operations required by the pipeline.
type MoodleClient interface {
	// AssignRole assigns a role to a user within a course context.
	AssignRole(ctx context.Context, courseID int64, userID int64, roleID int64) error

	// EnrollUser enrols a user into a course with the given role.
	EnrollUser(ctx context.Context, courseID int64, userID int64, roleID int64) error

	// FindUserByUsername resolves a username to the Moodle user id, or 0.
	FindUserByUsername(ctx context.Context, username string) (int64, error)

	// GetCourses fetches courses by their Moodle-internal ids.
	GetCourses(ctx context.Context, courseIDs []int64) ([]moodle.Course, error)

	// GetEnrolledUsers fetches the current enrollment roster of a course.
	GetEnrolledUsers(ctx context.Context, courseID int64) ([]moodle.EnrolledUser, error)

	// UnassignRole removes a role from a user within a course context.
	UnassignRole(ctx context.Context, courseID int64, userID int64, roleID int64) error

	// UnenrollUser removes a user's manual enrolment from a course.
	UnenrollUser(ctx context.Context, courseID int64, userID int64) error
}

// SourceRegistry defines the legacy registry operations required by the pipeline.
type SourceRegistry interface {
	// GetCourseChanges fetches realisations changed after the given time.
	GetCourseChanges(ctx context.Context, after time.Time) ([]registry.CourseChange, error)

	// GetCourseUnitRealisation fetches one course realisation, or nil.
	GetCourseUnitRealisation(ctx context.Context, realisationID string) (*registry.CourseUnitRealisation, error)
}

// SisuRegistry defines the Sisu registry operations required by the pipeline.
type SisuRegistry interface {
	// GetCourseUnitRealisations fetches course realisations in bulk by id.
	GetCourseUnitRealisations(ctx context.Context, realisationIDs []string) ([]registry.CourseUnitRealisation, error)
}

// IdentityDirectory defines the identity directory operations required by the
// pipeline.
type IdentityDirectory interface {
	// StudentUsername resolves a student number to a username, or "".
	StudentUsername(ctx context.Context, studentNumber string) (string, error)

	// TeacherUsername resolves an employee number to a username, or "".
	TeacherUsername(ctx context.Context, employeeNumber string) (string, error)
}
