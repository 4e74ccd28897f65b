package sync

import (
	"github.com/edusync/moodlebridge/internal/moodle"
	"github.com/edusync/moodlebridge/internal/registry"
	"github.com/edusync/moodlebridge/internal/storage"
)

// Item is the ephemeral unit of work for one course within one run. Items are
// values: phase transitions return an updated copy, so the parallel
// enrichment fan-out never shares mutable state between workers.
type Item struct {
	// Course is the course registry record being synchronized.
	Course storage.Course

	// EnrichmentStatus is the enrichment phase state.
	EnrichmentStatus EnrichmentStatus

	// EnrollmentsFetched distinguishes an attached empty roster from a
	// roster that was never fetched.
	EnrollmentsFetched bool

	// Message is the human-readable outcome.
	Message string

	// MoodleCourse is the target course snapshot, attached by enrichment.
	MoodleCourse *moodle.Course

	// MoodleEnrollments is the current target roster, attached by enrichment.
	MoodleEnrollments []moodle.EnrolledUser

	// ProcessingStatus is the processing phase state.
	ProcessingStatus ProcessingStatus

	// Removed marks a course that should no longer be synchronized (gone or
	// ended in the source registry). No audit row is written for it.
	Removed bool

	// Source is the authoritative course snapshot, attached by enrichment.
	Source *registry.CourseUnitRealisation

	// Type is the run type the item belongs to.
	Type Type

	// Unlock marks an item whose lock was released by this run.
	Unlock bool

	// Users are the per-person outcomes, filled by processing.
	Users []UserItem
}

// NewItem wraps a course into a fresh in-progress item.
func NewItem(course storage.Course, runType Type) Item {
	return Item{
		Course:           course,
		EnrichmentStatus: EnrichmentInProgress,
		ProcessingStatus: ProcessingInProgress,
		Type:             runType,
	}
}

// CompleteEnrichment returns the item with a terminal enrichment status.
// A terminal status short-circuits the remaining enrichers.
func (i Item) CompleteEnrichment(status EnrichmentStatus, message string) Item {
	i.EnrichmentStatus = status
	if message != "" {
		i.Message = message
	}
	return i
}

// CompleteProcessing returns the item with a terminal processing status.
func (i Item) CompleteProcessing(status ProcessingStatus, message string) Item {
	i.ProcessingStatus = status
	if message != "" {
		i.Message = message
	}
	return i
}

// MarkRemoved returns the item flagged for removal from synchronization.
func (i Item) MarkRemoved() Item {
	i.Removed = true
	return i
}

// MarkUnlock returns the item flagged as force-unlocked by this run.
func (i Item) MarkUnlock() Item {
	i.Unlock = true
	return i
}

// WithUsers returns the item carrying the per-person outcomes.
func (i Item) WithUsers(users []UserItem) Item {
	i.Users = users
	return i
}

// Succeeded reports whether both phases completed successfully.
func (i Item) Succeeded() bool {
	return i.EnrichmentStatus == EnrichmentSuccess && i.ProcessingStatus == ProcessingSuccess
}

// StudentItems returns the user outcomes for students.
func (i Item) StudentItems() []UserItem {
	return i.usersWithRole(RoleStudent)
}

// TeacherItems returns the user outcomes for teachers.
func (i Item) TeacherItems() []UserItem {
	return i.usersWithRole(RoleTeacher)
}

func (i Item) usersWithRole(role Role) []UserItem {
	var out []UserItem
	for _, u := range i.Users {
		if u.Role == role {
			out = append(out, u)
		}
	}
	return out
}
