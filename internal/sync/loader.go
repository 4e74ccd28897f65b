package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/edusync/moodlebridge/internal/storage"
)

// incrementalFallback is how far back an incremental run reaches when no
// incremental run has ever succeeded.
const incrementalFallback = 24 * time.Hour

// Loader produces the candidate course list for one run. A loader failure
// aborts the whole run: a partial list would silently skip courses.
type Loader interface {
	// Load returns the courses to process this run.
	Load(ctx context.Context) ([]storage.Course, error)
}

// FullLoader loads every previously imported course.
type FullLoader struct {
	// Courses is the course registry.
	Courses CourseStore
}

// Load returns all completed and completed-failed courses.
func (l *FullLoader) Load(ctx context.Context) ([]storage.Course, error) {
	courses, err := l.Courses.CompletedCourses(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading completed courses: %w", err)
	}
	return courses, nil
}

// IncrementalLoader loads courses whose realisation changed in the legacy
// registry since the last successful incremental run. The legacy change feed
// is the only change-detection source, so Sisu-origin courses are picked up
// by full runs only.
type IncrementalLoader struct {
	// Courses is the course registry.
	Courses CourseStore

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time

	// Oodi is the legacy registry change feed.
	Oodi SourceRegistry

	// Runs is the job run tracker.
	Runs RunTracker
}

// Load returns the locally known, non-in-progress courses among the
// realisations changed since the last successful incremental run, or since
// 24 hours ago when none exists.
func (l *IncrementalLoader) Load(ctx context.Context) ([]storage.Course, error) {
	now := l.Now
	if now == nil {
		now = time.Now
	}

	since := now().Add(-incrementalFallback)
	latest, err := l.Runs.FindLatestSuccessful(ctx, string(TypeIncremental))
	if err != nil {
		return nil, fmt.Errorf("finding last successful incremental run: %w", err)
	}
	if latest != nil && !latest.CompletedAt.IsZero() {
		since = latest.CompletedAt
	}

	changes, err := l.Oodi.GetCourseChanges(ctx, since)
	if err != nil {
		return nil, fmt.Errorf("loading course changes: %w", err)
	}

	var courses []storage.Course
	seen := make(map[string]bool, len(changes))
	for _, change := range changes {
		if seen[change.RealisationID] {
			continue
		}
		seen[change.RealisationID] = true

		course, err := l.Courses.FindByRealisationID(ctx, change.RealisationID)
		if err != nil {
			return nil, fmt.Errorf("finding course %s: %w", change.RealisationID, err)
		}
		if course == nil || course.ImportStatus == storage.ImportStatusInProgress {
			continue
		}
		courses = append(courses, *course)
	}

	return courses, nil
}

// UnlockLoader loads courses under an active sync lock and atomically clears
// those locks, so each locked course is returned exactly once.
type UnlockLoader struct {
	// Courses is the course registry.
	Courses CourseStore

	// Locks is the sync lock store.
	Locks LockStore
}

// Load releases all active locks and returns their courses.
func (l *UnlockLoader) Load(ctx context.Context) ([]storage.Course, error) {
	released, err := l.Locks.GetAndReleaseAllActiveLocks(ctx)
	if err != nil {
		return nil, fmt.Errorf("releasing active locks: %w", err)
	}

	var courses []storage.Course
	for _, lock := range released {
		course, err := l.Courses.FindByRealisationID(ctx, lock.RealisationID)
		if err != nil {
			return nil, fmt.Errorf("finding course %s: %w", lock.RealisationID, err)
		}
		if course == nil {
			continue
		}
		courses = append(courses, *course)
	}

	return courses, nil
}

// NewLoader returns the loader strategy for a run type.
func NewLoader(runType Type, courses CourseStore, locks LockStore, runs RunTracker, oodi SourceRegistry) (Loader, error) {
	switch runType {
	case TypeFull:
		return &FullLoader{Courses: courses}, nil
	case TypeIncremental:
		return &IncrementalLoader{Courses: courses, Oodi: oodi, Runs: runs}, nil
	case TypeUnlock:
		return &UnlockLoader{Courses: courses, Locks: locks}, nil
	default:
		return nil, errors.New("unknown synchronization type")
	}
}
