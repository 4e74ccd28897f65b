package sync

import (
	"context"
	"log/slog"

	"github.com/edusync/moodlebridge/internal/moodle"
)

// dryRunClient wraps a MoodleClient and logs write operations instead of
// executing them. Reads pass through unchanged so the diff is real.
type dryRunClient struct {
	client MoodleClient
	logger *slog.Logger
}

// NewDryRunClient wraps a Moodle client so that no mutation reaches Moodle.
func NewDryRunClient(client MoodleClient, logger *slog.Logger) MoodleClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &dryRunClient{client: client, logger: logger}
}

// AssignRole logs the role assignment that would happen.
func (d *dryRunClient) AssignRole(_ context.Context, courseID int64, userID int64, roleID int64) error {
	d.logger.Info("[DRY-RUN] would assign role",
		"course_id", courseID,
		"user_id", userID,
		"role_id", roleID)
	return nil
}

// EnrollUser logs the enrolment that would happen.
func (d *dryRunClient) EnrollUser(_ context.Context, courseID int64, userID int64, roleID int64) error {
	d.logger.Info("[DRY-RUN] would enroll user",
		"course_id", courseID,
		"user_id", userID,
		"role_id", roleID)
	return nil
}

// FindUserByUsername passes through to the real client.
func (d *dryRunClient) FindUserByUsername(ctx context.Context, username string) (int64, error) {
	return d.client.FindUserByUsername(ctx, username)
}

// GetCourses passes through to the real client.
func (d *dryRunClient) GetCourses(ctx context.Context, courseIDs []int64) ([]moodle.Course, error) {
	return d.client.GetCourses(ctx, courseIDs)
}

// GetEnrolledUsers passes through to the real client.
func (d *dryRunClient) GetEnrolledUsers(ctx context.Context, courseID int64) ([]moodle.EnrolledUser, error) {
	return d.client.GetEnrolledUsers(ctx, courseID)
}

// UnassignRole logs the role removal that would happen.
func (d *dryRunClient) UnassignRole(_ context.Context, courseID int64, userID int64, roleID int64) error {
	d.logger.Info("[DRY-RUN] would unassign role",
		"course_id", courseID,
		"user_id", userID,
		"role_id", roleID)
	return nil
}

// UnenrollUser logs the unenrolment that would happen.
func (d *dryRunClient) UnenrollUser(_ context.Context, courseID int64, userID int64) error {
	d.logger.Info("[DRY-RUN] would unenroll user",
		"course_id", courseID,
		"user_id", userID)
	return nil
}
