package sync

import (
	"context"
	"time"

	"github.com/edusync/moodlebridge/internal/moodle"
	"github.com/edusync/moodlebridge/internal/registry"
	"github.com/edusync/moodlebridge/internal/storage"
)

type mockMoodleClient struct {
	assignRoleFunc       func(ctx context.Context, courseID int64, userID int64, roleID int64) error
	enrollUserFunc       func(ctx context.Context, courseID int64, userID int64, roleID int64) error
	findUserFunc         func(ctx context.Context, username string) (int64, error)
	getCoursesFunc       func(ctx context.Context, courseIDs []int64) ([]moodle.Course, error)
	getEnrolledUsersFunc func(ctx context.Context, courseID int64) ([]moodle.EnrolledUser, error)
	unassignRoleFunc     func(ctx context.Context, courseID int64, userID int64, roleID int64) error
	unenrollUserFunc     func(ctx context.Context, courseID int64, userID int64) error
}

func (m *mockMoodleClient) AssignRole(ctx context.Context, courseID int64, userID int64, roleID int64) error {
	if m.assignRoleFunc != nil {
		return m.assignRoleFunc(ctx, courseID, userID, roleID)
	}
	return nil
}

func (m *mockMoodleClient) EnrollUser(ctx context.Context, courseID int64, userID int64, roleID int64) error {
	if m.enrollUserFunc != nil {
		return m.enrollUserFunc(ctx, courseID, userID, roleID)
	}
	return nil
}

func (m *mockMoodleClient) FindUserByUsername(ctx context.Context, username string) (int64, error) {
	if m.findUserFunc != nil {
		return m.findUserFunc(ctx, username)
	}
	return 0, nil
}

func (m *mockMoodleClient) GetCourses(ctx context.Context, courseIDs []int64) ([]moodle.Course, error) {
	if m.getCoursesFunc != nil {
		return m.getCoursesFunc(ctx, courseIDs)
	}
	return nil, nil
}

func (m *mockMoodleClient) GetEnrolledUsers(ctx context.Context, courseID int64) ([]moodle.EnrolledUser, error) {
	if m.getEnrolledUsersFunc != nil {
		return m.getEnrolledUsersFunc(ctx, courseID)
	}
	return nil, nil
}

func (m *mockMoodleClient) UnassignRole(ctx context.Context, courseID int64, userID int64, roleID int64) error {
	if m.unassignRoleFunc != nil {
		return m.unassignRoleFunc(ctx, courseID, userID, roleID)
	}
	return nil
}

func (m *mockMoodleClient) UnenrollUser(ctx context.Context, courseID int64, userID int64) error {
	if m.unenrollUserFunc != nil {
		return m.unenrollUserFunc(ctx, courseID, userID)
	}
	return nil
}

type mockSourceRegistry struct {
	getCourseChangesFunc func(ctx context.Context, after time.Time) ([]registry.CourseChange, error)
	getRealisationFunc   func(ctx context.Context, realisationID string) (*registry.CourseUnitRealisation, error)
}

func (m *mockSourceRegistry) GetCourseChanges(ctx context.Context, after time.Time) ([]registry.CourseChange, error) {
	if m.getCourseChangesFunc != nil {
		return m.getCourseChangesFunc(ctx, after)
	}
	return nil, nil
}

func (m *mockSourceRegistry) GetCourseUnitRealisation(ctx context.Context, realisationID string) (*registry.CourseUnitRealisation, error) {
	if m.getRealisationFunc != nil {
		return m.getRealisationFunc(ctx, realisationID)
	}
	return nil, nil
}

type mockSisuRegistry struct {
	getRealisationsFunc func(ctx context.Context, realisationIDs []string) ([]registry.CourseUnitRealisation, error)
}

func (m *mockSisuRegistry) GetCourseUnitRealisations(ctx context.Context, realisationIDs []string) ([]registry.CourseUnitRealisation, error) {
	if m.getRealisationsFunc != nil {
		return m.getRealisationsFunc(ctx, realisationIDs)
	}
	return nil, nil
}

type mockDirectory struct {
	studentUsernameFunc func(ctx context.Context, studentNumber string) (string, error)
	teacherUsernameFunc func(ctx context.Context, employeeNumber string) (string, error)
}

func (m *mockDirectory) StudentUsername(ctx context.Context, studentNumber string) (string, error) {
	if m.studentUsernameFunc != nil {
		return m.studentUsernameFunc(ctx, studentNumber)
	}
	return "", nil
}

func (m *mockDirectory) TeacherUsername(ctx context.Context, employeeNumber string) (string, error) {
	if m.teacherUsernameFunc != nil {
		return m.teacherUsernameFunc(ctx, employeeNumber)
	}
	return "", nil
}

type mockCourseStore struct {
	completedCoursesFunc      func(ctx context.Context) ([]storage.Course, error)
	findByRealisationIDFunc   func(ctx context.Context, realisationID string) (*storage.Course, error)
	forceFailStuckImportsFunc func(ctx context.Context, cutoff time.Time) ([]storage.Course, error)
	updateImportStatusFunc    func(ctx context.Context, realisationID string, status storage.ImportStatus) error
}

func (m *mockCourseStore) CompletedCourses(ctx context.Context) ([]storage.Course, error) {
	if m.completedCoursesFunc != nil {
		return m.completedCoursesFunc(ctx)
	}
	return nil, nil
}

func (m *mockCourseStore) FindByRealisationID(ctx context.Context, realisationID string) (*storage.Course, error) {
	if m.findByRealisationIDFunc != nil {
		return m.findByRealisationIDFunc(ctx, realisationID)
	}
	return nil, nil
}

func (m *mockCourseStore) ForceFailStuckImports(ctx context.Context, cutoff time.Time) ([]storage.Course, error) {
	if m.forceFailStuckImportsFunc != nil {
		return m.forceFailStuckImportsFunc(ctx, cutoff)
	}
	return nil, nil
}

func (m *mockCourseStore) UpdateImportStatus(ctx context.Context, realisationID string, status storage.ImportStatus) error {
	if m.updateImportStatusFunc != nil {
		return m.updateImportStatusFunc(ctx, realisationID, status)
	}
	return nil
}

type mockLockStore struct {
	getAndReleaseFunc func(ctx context.Context) ([]storage.Lock, error)
	isLockedFunc      func(ctx context.Context, realisationID string) (bool, error)
}

func (m *mockLockStore) GetAndReleaseAllActiveLocks(ctx context.Context) ([]storage.Lock, error) {
	if m.getAndReleaseFunc != nil {
		return m.getAndReleaseFunc(ctx)
	}
	return nil, nil
}

func (m *mockLockStore) IsLocked(ctx context.Context, realisationID string) (bool, error) {
	if m.isLockedFunc != nil {
		return m.isLockedFunc(ctx, realisationID)
	}
	return false, nil
}

type mockRunTracker struct {
	beginFunc                func(ctx context.Context, runType string) (string, error)
	completeFunc             func(ctx context.Context, runID string, runType string, status storage.RunStatus, message string) error
	findLatestCompletedFunc  func(ctx context.Context, runType string) (*storage.JobRun, error)
	findLatestSuccessfulFunc func(ctx context.Context, runType string) (*storage.JobRun, error)
	markInterruptedFunc      func(ctx context.Context) ([]storage.JobRun, error)
}

func (m *mockRunTracker) Begin(ctx context.Context, runType string) (string, error) {
	if m.beginFunc != nil {
		return m.beginFunc(ctx, runType)
	}
	return "run-1", nil
}

func (m *mockRunTracker) Complete(ctx context.Context, runID string, runType string, status storage.RunStatus, message string) error {
	if m.completeFunc != nil {
		return m.completeFunc(ctx, runID, runType, status, message)
	}
	return nil
}

func (m *mockRunTracker) FindLatestCompleted(ctx context.Context, runType string) (*storage.JobRun, error) {
	if m.findLatestCompletedFunc != nil {
		return m.findLatestCompletedFunc(ctx, runType)
	}
	return nil, nil
}

func (m *mockRunTracker) FindLatestSuccessful(ctx context.Context, runType string) (*storage.JobRun, error) {
	if m.findLatestSuccessfulFunc != nil {
		return m.findLatestSuccessfulFunc(ctx, runType)
	}
	return nil, nil
}

func (m *mockRunTracker) MarkInterrupted(ctx context.Context) ([]storage.JobRun, error) {
	if m.markInterruptedFunc != nil {
		return m.markInterruptedFunc(ctx)
	}
	return nil, nil
}

type mockStatusRecorder struct {
	recordFunc func(ctx context.Context, record storage.EnrollmentStatusRecord) error
}

func (m *mockStatusRecorder) Record(ctx context.Context, record storage.EnrollmentStatusRecord) error {
	if m.recordFunc != nil {
		return m.recordFunc(ctx, record)
	}
	return nil
}

type mockNotifier struct {
	notifyLockedCoursesFunc func(ctx context.Context, realisationIDs []string) error
}

func (m *mockNotifier) NotifyLockedCourses(ctx context.Context, realisationIDs []string) error {
	if m.notifyLockedCoursesFunc != nil {
		return m.notifyLockedCoursesFunc(ctx, realisationIDs)
	}
	return nil
}
