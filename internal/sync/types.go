// Package sync implements the course enrollment synchronization pipeline:
// loading candidate courses, enriching them with source registry and Moodle
// state, reconciling enrollment deltas and recording auditable outcomes.
package sync

// Type identifies which kind of synchronization run to execute.
type Type string

const (
	// TypeFull processes every previously imported course.
	TypeFull Type = "FULL"

	// TypeIncremental processes courses changed in the source registry since
	// the last successful incremental run.
	TypeIncremental Type = "INCREMENTAL"

	// TypeUnlock processes courses whose sync locks are released by the run.
	TypeUnlock Type = "UNLOCK"
)

// EnrichmentStatus is the terminal (or in-flight) state of the enrichment
// phase for one item.
type EnrichmentStatus string

const (
	// EnrichmentInProgress is the initial enrichment state.
	EnrichmentInProgress EnrichmentStatus = "IN_PROGRESS"

	// EnrichmentSuccess means the item carries everything processing needs.
	EnrichmentSuccess EnrichmentStatus = "SUCCESS"

	// EnrichmentLocked means the course has an active sync lock.
	EnrichmentLocked EnrichmentStatus = "LOCKED"

	// EnrichmentCourseNotFound means the source registry has no such course.
	EnrichmentCourseNotFound EnrichmentStatus = "COURSE_NOT_FOUND"

	// EnrichmentCourseEnded means the course offering has ended.
	EnrichmentCourseEnded EnrichmentStatus = "COURSE_ENDED"

	// EnrichmentCourseNotPublic means the registry marks the course unpublished.
	EnrichmentCourseNotPublic EnrichmentStatus = "COURSE_NOT_PUBLIC"

	// EnrichmentMoodleCourseNotFound means Moodle has no course with the
	// tracked id.
	EnrichmentMoodleCourseNotFound EnrichmentStatus = "MOODLE_COURSE_NOT_FOUND"

	// EnrichmentError means an enricher failed unexpectedly.
	EnrichmentError EnrichmentStatus = "ERROR"
)

// ProcessingStatus is the terminal (or in-flight) state of the processing
// phase for one item.
type ProcessingStatus string

const (
	// ProcessingInProgress is the initial processing state. Items whose
	// enrichment did not succeed stay here.
	ProcessingInProgress ProcessingStatus = "IN_PROGRESS"

	// ProcessingSuccess means every user outcome completed or was
	// legitimately absent from Moodle.
	ProcessingSuccess ProcessingStatus = "SUCCESS"

	// ProcessingEnrollmentFailures means at least one user outcome failed.
	ProcessingEnrollmentFailures ProcessingStatus = "ENROLLMENT_FAILURES"
)

// UserStatus is the terminal state of one user's synchronization.
type UserStatus string

const (
	// UserCompleted means every action for the user succeeded.
	UserCompleted UserStatus = "COMPLETED"

	// UserUsernameNotFound means the identity directory has no username for
	// the person. No Moodle mutation is attempted.
	UserUsernameNotFound UserStatus = "USERNAME_NOT_FOUND"

	// UserMoodleUserNotFound means Moodle has no account for the username.
	// Tolerated as a non-fatal partial state.
	UserMoodleUserNotFound UserStatus = "MOODLE_USER_NOT_FOUND"

	// UserError means resolution or an action failed.
	UserError UserStatus = "ERROR"
)

// Role is the role a person should hold in the Moodle course.
type Role string

const (
	// RoleStudent is an approved student enrollment.
	RoleStudent Role = "student"

	// RoleTeacher is a teacher enrollment.
	RoleTeacher Role = "teacher"

	// RoleNone means the person must not be enrolled.
	RoleNone Role = ""
)

// ActionType identifies one Moodle mutation.
type ActionType string

const (
	// ActionEnroll enrols a user with a role.
	ActionEnroll ActionType = "ENROLL"

	// ActionUnenroll removes a user's enrolment.
	ActionUnenroll ActionType = "UNENROLL"

	// ActionRoleChange corrects the role of an already-enrolled user.
	ActionRoleChange ActionType = "ROLE_CHANGE"
)

// ActionStatus is the outcome of one executed action.
type ActionStatus string

const (
	// ActionCompleted means Moodle accepted the mutation.
	ActionCompleted ActionStatus = "COMPLETED"

	// ActionError means Moodle rejected the mutation.
	ActionError ActionStatus = "ERROR"
)

// Action is one Moodle mutation taken (or attempted) for a user.
type Action struct {
	// Message carries the rejection reason when Status is ActionError.
	Message string `json:"message,omitempty"`

	// RoleID is the Moodle role involved, when relevant.
	RoleID int64 `json:"role_id,omitempty"`

	// Status is the action outcome.
	Status ActionStatus `json:"status"`

	// Type is the mutation kind.
	Type ActionType `json:"type"`
}

// UserItem is the synchronization outcome for one person on one course.
type UserItem struct {
	// Actions are the Moodle mutations taken, in execution order.
	Actions []Action `json:"actions,omitempty"`

	// Message carries failure detail.
	Message string `json:"message,omitempty"`

	// MoodleUserID is the resolved Moodle user id, or 0.
	MoodleUserID int64 `json:"moodle_user_id,omitempty"`

	// PersonID is the source identifier: student number for students,
	// employee number for teachers, empty for roster-only users.
	PersonID string `json:"person_id,omitempty"`

	// Role is the role the person should hold.
	Role Role `json:"role"`

	// Status is the user's terminal state.
	Status UserStatus `json:"status"`

	// Username is the resolved Moodle username, when known.
	Username string `json:"username,omitempty"`
}

// Completed reports whether the user's outcome counts towards item success.
// Absence from Moodle is tolerated; everything else must have completed.
func (u UserItem) Completed() bool {
	return u.Status == UserCompleted || u.Status == UserMoodleUserNotFound
}
