package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/edusync/moodlebridge/internal/moodle"
	"github.com/edusync/moodlebridge/internal/registry"
)

// ProcessorConfig holds the required configuration for creating a Processor.
type ProcessorConfig struct {
	// ApprovalStatusCodes are the enrollment status codes counted as approved
	// when a course has automatic approval enabled.
	ApprovalStatusCodes []int

	// Directory resolves student and employee numbers to usernames.
	Directory IdentityDirectory

	// Logger is the structured logger for the processor.
	Logger *slog.Logger

	// Moodle is the target LMS client.
	Moodle MoodleClient

	// StudentRoleID is the Moodle role id for students.
	StudentRoleID int64

	// TeacherIDPrefix is prefixed to employee numbers for directory lookups.
	TeacherIDPrefix string

	// TeacherRoleID is the Moodle role id for teachers.
	TeacherRoleID int64

	// UsernameSuffix is appended to directory usernames to form Moodle
	// usernames.
	UsernameSuffix string
}

// validate checks that all required ProcessorConfig fields are set.
func (c *ProcessorConfig) validate() error {
	var errs []error
	if c.Directory == nil {
		errs = append(errs, errors.New("identity directory is required"))
	}
	if c.Moodle == nil {
		errs = append(errs, errors.New("moodle client is required"))
	}
	if c.StudentRoleID == 0 {
		errs = append(errs, errors.New("student role id is required"))
	}
	if c.TeacherRoleID == 0 {
		errs = append(errs, errors.New("teacher role id is required"))
	}
	return errors.Join(errs...)
}

// Processor computes and executes the minimal set of enrollment actions for
// one enriched item, classifying the outcome per user. The diff is computed
// against the current Moodle roster, so an unchanged state yields no actions.
type Processor struct {
	approvalCodes   map[int]bool
	directory       IdentityDirectory
	logger          *slog.Logger
	moodle          MoodleClient
	studentRoleID   int64
	teacherIDPrefix string
	teacherRoleID   int64
	usernameSuffix  string
}

// NewProcessor creates a new reconciliation processor.
func NewProcessor(cfg ProcessorConfig) (*Processor, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	approvalCodes := make(map[int]bool, len(cfg.ApprovalStatusCodes))
	for _, code := range cfg.ApprovalStatusCodes {
		approvalCodes[code] = true
	}

	return &Processor{
		approvalCodes:   approvalCodes,
		directory:       cfg.Directory,
		logger:          logger,
		moodle:          cfg.Moodle,
		studentRoleID:   cfg.StudentRoleID,
		teacherIDPrefix: cfg.TeacherIDPrefix,
		teacherRoleID:   cfg.TeacherRoleID,
		usernameSuffix:  cfg.UsernameSuffix,
	}, nil
}

// Process reconciles one enriched item against Moodle. Items whose enrichment
// did not succeed pass through untouched.
func (p *Processor) Process(ctx context.Context, item Item) Item {
	if item.EnrichmentStatus != EnrichmentSuccess || item.Source == nil {
		return item
	}

	roster := make(map[int64]moodle.EnrolledUser, len(item.MoodleEnrollments))
	for _, u := range item.MoodleEnrollments {
		roster[u.ID] = u
	}

	claimed := make(map[int64]bool)
	var users []UserItem

	for _, teacher := range item.Source.Teachers {
		user := p.processTeacher(ctx, item, roster, teacher)
		if user.MoodleUserID != 0 {
			claimed[user.MoodleUserID] = true
		}
		users = append(users, user)
	}

	for _, student := range item.Source.Students {
		user := p.processStudent(ctx, item, roster, student)
		if user.MoodleUserID != 0 {
			claimed[user.MoodleUserID] = true
		}
		users = append(users, user)
	}

	// Users still enrolled in Moodle with a managed role but absent from the
	// source roster must be unenrolled.
	for _, enrolled := range item.MoodleEnrollments {
		if claimed[enrolled.ID] || !p.hasManagedRole(enrolled) {
			continue
		}
		users = append(users, p.unenrollLeftover(ctx, item, enrolled))
	}

	item = item.WithUsers(users)

	failures := 0
	for _, u := range users {
		if !u.Completed() {
			failures++
		}
	}

	if failures > 0 {
		return item.CompleteProcessing(ProcessingEnrollmentFailures,
			fmt.Sprintf("%d of %d user enrollments failed", failures, len(users)))
	}
	return item.CompleteProcessing(ProcessingSuccess, "")
}

// processTeacher reconciles one teacher: always enrolled with the teacher role.
func (p *Processor) processTeacher(
	ctx context.Context,
	item Item,
	roster map[int64]moodle.EnrolledUser,
	teacher registry.Teacher,
) UserItem {
	user := UserItem{PersonID: teacher.EmployeeNumber, Role: RoleTeacher}

	username, err := p.directory.TeacherUsername(ctx, p.teacherIDPrefix+teacher.EmployeeNumber)
	if err != nil {
		return p.failResolution(user, err)
	}
	if username == "" {
		user.Status = UserUsernameNotFound
		return user
	}

	return p.reconcileUser(ctx, item, roster, user, username, p.teacherRoleID, true)
}

// processStudent reconciles one student. Approved students end up enrolled
// with the student role; non-approved students end up not enrolled.
func (p *Processor) processStudent(
	ctx context.Context,
	item Item,
	roster map[int64]moodle.EnrolledUser,
	student registry.Student,
) UserItem {
	user := UserItem{PersonID: student.StudentNumber, Role: RoleStudent}

	username, err := p.directory.StudentUsername(ctx, student.StudentNumber)
	if err != nil {
		return p.failResolution(user, err)
	}
	if username == "" {
		user.Status = UserUsernameNotFound
		return user
	}

	approved := p.approved(item, student)
	return p.reconcileUser(ctx, item, roster, user, username, p.studentRoleID, approved)
}

// approved applies the enrollment approval rule: an explicit approved flag,
// or a whitelisted status code when the course auto-approves.
func (p *Processor) approved(item Item, student registry.Student) bool {
	if student.Approved {
		return true
	}
	return item.Source.AutomaticEnabled && p.approvalCodes[student.StatusCode]
}

// reconcileUser resolves the Moodle account and diffs desired against current
// state, executing whatever action the diff demands.
func (p *Processor) reconcileUser(
	ctx context.Context,
	item Item,
	roster map[int64]moodle.EnrolledUser,
	user UserItem,
	username string,
	roleID int64,
	shouldEnroll bool,
) UserItem {
	user.Username = username + p.usernameSuffix

	moodleUserID, err := p.moodle.FindUserByUsername(ctx, user.Username)
	if err != nil {
		return p.failResolution(user, err)
	}
	if moodleUserID == 0 {
		user.Status = UserMoodleUserNotFound
		return user
	}
	user.MoodleUserID = moodleUserID

	current, enrolled := roster[moodleUserID]

	switch {
	case shouldEnroll && !enrolled:
		user = p.execute(ctx, item, user, Action{Type: ActionEnroll, RoleID: roleID})

	case shouldEnroll && enrolled && !current.HasRole(roleID):
		user = p.executeRoleChange(ctx, item, user, current, roleID)

	case !shouldEnroll && enrolled:
		user = p.execute(ctx, item, user, Action{Type: ActionUnenroll})
	}
	// Already in the desired state: no action.

	if user.Status == "" {
		user.Status = UserCompleted
	}
	return user
}

// unenrollLeftover removes a Moodle enrollment that no longer has a source
// roster entry behind it.
func (p *Processor) unenrollLeftover(ctx context.Context, item Item, enrolled moodle.EnrolledUser) UserItem {
	user := UserItem{
		MoodleUserID: enrolled.ID,
		Role:         RoleNone,
		Username:     enrolled.Username,
	}

	user = p.execute(ctx, item, user, Action{Type: ActionUnenroll})
	if user.Status == "" {
		user.Status = UserCompleted
	}
	return user
}

// executeRoleChange corrects the role of an already-enrolled user. The stale
// managed role is unassigned before the desired one is assigned, so the user
// never holds both at once.
func (p *Processor) executeRoleChange(
	ctx context.Context,
	item Item,
	user UserItem,
	current moodle.EnrolledUser,
	roleID int64,
) UserItem {
	for _, stale := range []int64{p.studentRoleID, p.teacherRoleID} {
		if stale == roleID || !current.HasRole(stale) {
			continue
		}
		if err := p.moodle.UnassignRole(ctx, item.Course.CourseID, user.MoodleUserID, stale); err != nil {
			return p.recordAction(user, Action{Type: ActionRoleChange, RoleID: stale}, err)
		}
	}

	err := p.moodle.AssignRole(ctx, item.Course.CourseID, user.MoodleUserID, roleID)
	return p.recordAction(user, Action{Type: ActionRoleChange, RoleID: roleID}, err)
}

// execute runs one action against Moodle and records its outcome.
func (p *Processor) execute(ctx context.Context, item Item, user UserItem, action Action) UserItem {
	var err error
	switch action.Type {
	case ActionEnroll:
		err = p.moodle.EnrollUser(ctx, item.Course.CourseID, user.MoodleUserID, action.RoleID)
	case ActionUnenroll:
		err = p.moodle.UnenrollUser(ctx, item.Course.CourseID, user.MoodleUserID)
	default:
		err = fmt.Errorf("unknown action type %q", action.Type)
	}

	return p.recordAction(user, action, err)
}

// recordAction appends the action outcome to the user item. A failed action
// fails the user but never aborts the remaining roster.
func (p *Processor) recordAction(user UserItem, action Action, err error) UserItem {
	if err != nil {
		action.Status = ActionError
		action.Message = err.Error()
		user.Actions = append(user.Actions, action)
		user.Status = UserError
		user.Message = err.Error()

		p.logger.Error("enrollment action failed",
			"action", action.Type,
			"username", user.Username,
			"error", err)
		return user
	}

	action.Status = ActionCompleted
	user.Actions = append(user.Actions, action)
	return user
}

// failResolution classifies a directory or Moodle lookup failure.
func (p *Processor) failResolution(user UserItem, err error) UserItem {
	user.Status = UserError
	user.Message = err.Error()
	return user
}

// hasManagedRole reports whether the enrolled user holds a role this service
// manages. Users enrolled through other means (admins, manually added
// assistants) are left alone.
func (p *Processor) hasManagedRole(enrolled moodle.EnrolledUser) bool {
	return enrolled.HasRole(p.studentRoleID) || enrolled.HasRole(p.teacherRoleID)
}
