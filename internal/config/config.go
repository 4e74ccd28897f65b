// Package config provides configuration loading from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	// EnvApprovalStatusCodes is the comma-separated list of enrollment status
	// codes treated as approved when a course has automatic approval.
	EnvApprovalStatusCodes = "APPROVAL_STATUS_CODES"

	// EnvDryRun disables writes to Moodle when set to "true".
	EnvDryRun = "DRY_RUN"

	// EnvDynamoDBCoursesTable is the DynamoDB table for the course registry.
	EnvDynamoDBCoursesTable = "DYNAMODB_COURSES_TABLE"

	// EnvDynamoDBEnrollmentsTable is the DynamoDB table for enrollment audit rows.
	EnvDynamoDBEnrollmentsTable = "DYNAMODB_ENROLLMENTS_TABLE"

	// EnvDynamoDBJobRunsTable is the DynamoDB table for job run records.
	EnvDynamoDBJobRunsTable = "DYNAMODB_JOB_RUNS_TABLE"

	// EnvDynamoDBLocksTable is the DynamoDB table for sync locks.
	EnvDynamoDBLocksTable = "DYNAMODB_LOCKS_TABLE"

	// EnvHealthWindow is the window within which a completed run must exist
	// for the health check to report healthy (default: 3h).
	EnvHealthWindow = "HEALTH_WINDOW"

	// EnvHTTPTimeout is the timeout applied to each external HTTP call.
	EnvHTTPTimeout = "HTTP_TIMEOUT"

	// EnvIAMBaseURL is the base URL for the identity directory API.
	EnvIAMBaseURL = "IAM_BASE_URL"

	// EnvMoodleBaseURL is the base URL for the Moodle instance.
	EnvMoodleBaseURL = "MOODLE_BASE_URL"

	// EnvMoodleStudentRoleID is the Moodle role id assigned to students.
	EnvMoodleStudentRoleID = "MOODLE_STUDENT_ROLE_ID"

	// EnvMoodleTeacherRoleID is the Moodle role id assigned to teachers.
	EnvMoodleTeacherRoleID = "MOODLE_TEACHER_ROLE_ID"

	// EnvMoodleTokenSecretARN is the Secrets Manager ARN for the Moodle token.
	EnvMoodleTokenSecretARN = "MOODLE_TOKEN_SECRET_ARN"

	// EnvMoodleUsernameSuffix is appended to directory usernames to form
	// Moodle usernames.
	EnvMoodleUsernameSuffix = "MOODLE_USERNAME_SUFFIX"

	// EnvNotificationRecipients is the comma-separated recipient list for
	// lock notification emails.
	EnvNotificationRecipients = "NOTIFICATION_RECIPIENTS"

	// EnvNotificationSender is the sender address for notification emails.
	EnvNotificationSender = "NOTIFICATION_SENDER"

	// EnvOodiBaseURL is the base URL for the legacy registry API.
	EnvOodiBaseURL = "OODI_BASE_URL"

	// EnvSisuAPIKeySecretARN is the Secrets Manager ARN for the Sisu API key.
	EnvSisuAPIKeySecretARN = "SISU_API_KEY_SECRET_ARN"

	// EnvSisuBaseURL is the base URL for the Sisu registry API.
	EnvSisuBaseURL = "SISU_BASE_URL"

	// EnvSSMApprovalCodesParameter is the SSM parameter overriding the
	// approval status code list at runtime.
	EnvSSMApprovalCodesParameter = "SSM_APPROVAL_CODES_PARAMETER"

	// EnvSSMRecipientsParameter is the SSM parameter overriding the
	// notification recipient list at runtime.
	EnvSSMRecipientsParameter = "SSM_RECIPIENTS_PARAMETER"

	// EnvStuckImportTimeout is how long a course import may stay in progress
	// before the cleanup sweep force-fails it (default: 2h).
	EnvStuckImportTimeout = "STUCK_IMPORT_TIMEOUT"

	// EnvTeacherIDPrefix is the numeric marker prefixed to employee numbers
	// before identity directory lookups.
	EnvTeacherIDPrefix = "TEACHER_ID_PREFIX"

	// EnvWorkerCount is the number of concurrent enrichment workers.
	EnvWorkerCount = "WORKER_COUNT"
)

// DynamoDB holds AWS DynamoDB table configuration.
type DynamoDB struct {
	// CoursesTable is the course registry table.
	CoursesTable string

	// EnrollmentsTable is the enrollment audit table.
	EnrollmentsTable string

	// JobRunsTable is the job run table.
	JobRunsTable string

	// LocksTable is the sync lock table.
	LocksTable string
}

// IAM holds identity directory API configuration.
type IAM struct {
	// BaseURL is the base URL for API requests.
	BaseURL string
}

// Moodle holds Moodle web service configuration.
type Moodle struct {
	// BaseURL is the base URL of the Moodle instance.
	BaseURL string

	// StudentRoleID is the Moodle role id for students.
	StudentRoleID int64

	// TeacherRoleID is the Moodle role id for teachers.
	TeacherRoleID int64

	// TokenSecretARN is the Secrets Manager ARN storing the web service token.
	TokenSecretARN string

	// UsernameSuffix is appended to directory usernames to form Moodle
	// usernames.
	UsernameSuffix string
}

// Notification holds lock notification email configuration.
type Notification struct {
	// Recipients is the default recipient list.
	Recipients []string

	// Sender is the sender address.
	Sender string
}

// Registry holds source registry API configuration.
type Registry struct {
	// OodiBaseURL is the base URL for the legacy registry API.
	OodiBaseURL string

	// SisuAPIKeySecretARN is the Secrets Manager ARN storing the Sisu API key.
	SisuAPIKeySecretARN string

	// SisuBaseURL is the base URL for the Sisu registry API.
	SisuBaseURL string
}

// SSM holds AWS Systems Manager Parameter Store configuration.
type SSM struct {
	// ApprovalCodesParameter optionally overrides the approval status codes.
	ApprovalCodesParameter string

	// RecipientsParameter optionally overrides the notification recipients.
	RecipientsParameter string
}

// Sync holds pipeline tuning configuration.
type Sync struct {
	// ApprovalStatusCodes are the enrollment status codes counted as approved
	// under automatic approval.
	ApprovalStatusCodes []int

	// DryRun disables writes to Moodle.
	DryRun bool

	// HealthWindow is the freshness window for the health check.
	HealthWindow time.Duration

	// HTTPTimeout bounds each external HTTP call.
	HTTPTimeout time.Duration

	// StuckImportTimeout is the in-progress import age after which the
	// cleanup sweep force-fails the import.
	StuckImportTimeout time.Duration

	// TeacherIDPrefix is prefixed to employee numbers for directory lookups.
	TeacherIDPrefix string

	// WorkerCount is the enrichment worker pool size.
	WorkerCount int
}

// Settings holds all configuration for the application.
type Settings struct {
	// DynamoDB contains AWS DynamoDB settings.
	DynamoDB DynamoDB

	// IAM contains identity directory API settings.
	IAM IAM

	// Moodle contains Moodle web service settings.
	Moodle Moodle

	// Notification contains lock notification settings.
	Notification Notification

	// Registry contains source registry API settings.
	Registry Registry

	// SSM contains AWS Systems Manager Parameter Store settings.
	SSM SSM

	// Sync contains pipeline tuning settings.
	Sync Sync
}

func (s *Settings) validate() error {
	var errs []error

	if s.DynamoDB.CoursesTable == "" {
		errs = append(errs, requiredError(EnvDynamoDBCoursesTable))
	}
	if s.DynamoDB.EnrollmentsTable == "" {
		errs = append(errs, requiredError(EnvDynamoDBEnrollmentsTable))
	}
	if s.DynamoDB.JobRunsTable == "" {
		errs = append(errs, requiredError(EnvDynamoDBJobRunsTable))
	}
	if s.DynamoDB.LocksTable == "" {
		errs = append(errs, requiredError(EnvDynamoDBLocksTable))
	}
	if s.IAM.BaseURL == "" {
		errs = append(errs, requiredError(EnvIAMBaseURL))
	}
	if s.Moodle.BaseURL == "" {
		errs = append(errs, requiredError(EnvMoodleBaseURL))
	}
	if s.Moodle.TokenSecretARN == "" {
		errs = append(errs, requiredError(EnvMoodleTokenSecretARN))
	}
	if s.Registry.OodiBaseURL == "" {
		errs = append(errs, requiredError(EnvOodiBaseURL))
	}
	if s.Registry.SisuBaseURL == "" {
		errs = append(errs, requiredError(EnvSisuBaseURL))
	}

	return errors.Join(errs...)
}

// Load reads configuration from environment variables.
func Load() (*Settings, error) {
	approvalCodes, err := parseIntList(envOrDefault(EnvApprovalStatusCodes, "3"))
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", EnvApprovalStatusCodes, err)
	}

	studentRole, err := parseInt64(envOrDefault(EnvMoodleStudentRoleID, "5"))
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", EnvMoodleStudentRoleID, err)
	}

	teacherRole, err := parseInt64(envOrDefault(EnvMoodleTeacherRoleID, "3"))
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", EnvMoodleTeacherRoleID, err)
	}

	workerCount, err := strconv.Atoi(envOrDefault(EnvWorkerCount, "5"))
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", EnvWorkerCount, err)
	}

	healthWindow, err := parseDuration(EnvHealthWindow, 3*time.Hour)
	if err != nil {
		return nil, err
	}

	httpTimeout, err := parseDuration(EnvHTTPTimeout, 30*time.Second)
	if err != nil {
		return nil, err
	}

	stuckTimeout, err := parseDuration(EnvStuckImportTimeout, 2*time.Hour)
	if err != nil {
		return nil, err
	}

	cfg := &Settings{
		DynamoDB: DynamoDB{
			CoursesTable:     strings.TrimSpace(os.Getenv(EnvDynamoDBCoursesTable)),
			EnrollmentsTable: strings.TrimSpace(os.Getenv(EnvDynamoDBEnrollmentsTable)),
			JobRunsTable:     strings.TrimSpace(os.Getenv(EnvDynamoDBJobRunsTable)),
			LocksTable:       strings.TrimSpace(os.Getenv(EnvDynamoDBLocksTable)),
		},
		IAM: IAM{
			BaseURL: strings.TrimSpace(os.Getenv(EnvIAMBaseURL)),
		},
		Moodle: Moodle{
			BaseURL:        strings.TrimSpace(os.Getenv(EnvMoodleBaseURL)),
			StudentRoleID:  studentRole,
			TeacherRoleID:  teacherRole,
			TokenSecretARN: strings.TrimSpace(os.Getenv(EnvMoodleTokenSecretARN)),
			UsernameSuffix: strings.TrimSpace(os.Getenv(EnvMoodleUsernameSuffix)),
		},
		Notification: Notification{
			Recipients: splitList(os.Getenv(EnvNotificationRecipients)),
			Sender:     strings.TrimSpace(os.Getenv(EnvNotificationSender)),
		},
		Registry: Registry{
			OodiBaseURL:         strings.TrimSpace(os.Getenv(EnvOodiBaseURL)),
			SisuAPIKeySecretARN: strings.TrimSpace(os.Getenv(EnvSisuAPIKeySecretARN)),
			SisuBaseURL:         strings.TrimSpace(os.Getenv(EnvSisuBaseURL)),
		},
		SSM: SSM{
			ApprovalCodesParameter: strings.TrimSpace(os.Getenv(EnvSSMApprovalCodesParameter)),
			RecipientsParameter:    strings.TrimSpace(os.Getenv(EnvSSMRecipientsParameter)),
		},
		Sync: Sync{
			ApprovalStatusCodes: approvalCodes,
			DryRun:              os.Getenv(EnvDryRun) == "true",
			HealthWindow:        healthWindow,
			HTTPTimeout:         httpTimeout,
			StuckImportTimeout:  stuckTimeout,
			TeacherIDPrefix:     envOrDefault(EnvTeacherIDPrefix, "9"),
			WorkerCount:         workerCount,
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// envOrDefault returns the environment variable value or a default if unset.
func envOrDefault(key string, defaultValue string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return defaultValue
}

// parseDuration reads a duration environment variable with a default.
func parseDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return defaultValue, nil
	}

	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return d, nil
}

// parseInt64 parses a base-10 int64.
func parseInt64(v string) (int64, error) {
	return strconv.ParseInt(v, 10, 64)
}

// parseIntList parses a comma-separated list of integers.
func parseIntList(v string) ([]int, error) {
	var out []int
	for _, part := range splitList(v) {
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q: %w", part, err)
		}
		out = append(out, n)
	}
	return out, nil
}

// requiredError formats an error for a missing required environment variable.
func requiredError(envVar string) error {
	return fmt.Errorf("%s is required", envVar)
}

// splitList splits a comma-separated list, trimming whitespace and dropping
// empty entries.
func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
