package sync

import (
	"context"
	"time"

	"github.com/edusync/moodlebridge/internal/storage"
)

// CourseStore defines the course registry operations required by the pipeline.
type CourseStore interface {
	// CompletedCourses returns all previously imported courses.
	CompletedCourses(ctx context.Context) ([]storage.Course, error)

	// FindByRealisationID returns the course for a realisation id, or nil.
	FindByRealisationID(ctx context.Context, realisationID string) (*storage.Course, error)

	// ForceFailStuckImports force-fails imports in progress since before the
	// cutoff and returns them.
	ForceFailStuckImports(ctx context.Context, cutoff time.Time) ([]storage.Course, error)

	// UpdateImportStatus transitions a course to the given import state.
	UpdateImportStatus(ctx context.Context, realisationID string, status storage.ImportStatus) error
}

// LockStore defines the sync lock operations required by the pipeline.
type LockStore interface {
	// GetAndReleaseAllActiveLocks returns every active lock, releasing each.
	GetAndReleaseAllActiveLocks(ctx context.Context) ([]storage.Lock, error)

	// IsLocked reports whether the course has an active lock.
	IsLocked(ctx context.Context, realisationID string) (bool, error)
}

// RunTracker defines the job run operations required by the pipeline.
type RunTracker interface {
	// Begin records the start of a run and returns its id.
	Begin(ctx context.Context, runType string) (string, error)

	// Complete records the outcome of a run.
	Complete(ctx context.Context, runID string, runType string, status storage.RunStatus, message string) error

	// FindLatestCompleted returns the most recently completed run of a type,
	// or nil.
	FindLatestCompleted(ctx context.Context, runType string) (*storage.JobRun, error)

	// FindLatestSuccessful returns the most recent successful run of a type,
	// or nil.
	FindLatestSuccessful(ctx context.Context, runType string) (*storage.JobRun, error)

	// MarkInterrupted flips lingering STARTED runs to INTERRUPTED.
	MarkInterrupted(ctx context.Context) ([]storage.JobRun, error)
}

// StatusRecorder defines the enrollment audit operations required by the
// pipeline.
type StatusRecorder interface {
	// Record appends a new enrollment status row.
	Record(ctx context.Context, record storage.EnrollmentStatusRecord) error
}

// Notifier delivers operator notifications about locked courses.
type Notifier interface {
	// NotifyLockedCourses reports the realisation ids skipped because locked.
	NotifyLockedCourses(ctx context.Context, realisationIDs []string) error
}
