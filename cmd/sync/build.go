package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/ssm"

	"github.com/edusync/moodlebridge/internal/config"
	"github.com/edusync/moodlebridge/internal/iam"
	"github.com/edusync/moodlebridge/internal/moodle"
	"github.com/edusync/moodlebridge/internal/notify"
	"github.com/edusync/moodlebridge/internal/oodi"
	"github.com/edusync/moodlebridge/internal/sisu"
	"github.com/edusync/moodlebridge/internal/storage"
	"github.com/edusync/moodlebridge/internal/sync"
)

// DynamoDB GSIs created by the deployment, keyed per table.
const (
	courseStatusIndex     = "import-status-index"
	enrollmentCourseIndex = "course-created-index"
	lockActiveIndex       = "active-locks-index"
	runStatusIndex        = "status-index"
	runTypeIndex          = "type-completed-index"
)

// buildService wires configuration, AWS clients, external API clients and
// stores into a ready synchronization service.
func buildService(ctx context.Context, logger *slog.Logger) (*sync.Service, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading configuration: %w", err)
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("loading AWS configuration: %w", err)
	}

	dynamoClient := dynamodb.NewFromConfig(awsCfg)

	courses, err := storage.NewCourseRegistry(dynamoClient, cfg.DynamoDB.CoursesTable, courseStatusIndex)
	if err != nil {
		return nil, fmt.Errorf("creating course registry: %w", err)
	}

	locks, err := storage.NewLockStore(dynamoClient, cfg.DynamoDB.LocksTable, lockActiveIndex)
	if err != nil {
		return nil, fmt.Errorf("creating lock store: %w", err)
	}

	runs, err := storage.NewJobRunStore(dynamoClient, cfg.DynamoDB.JobRunsTable, runTypeIndex, runStatusIndex)
	if err != nil {
		return nil, fmt.Errorf("creating job run store: %w", err)
	}

	statuses, err := storage.NewEnrollmentStatusStore(dynamoClient, cfg.DynamoDB.EnrollmentsTable, enrollmentCourseIndex)
	if err != nil {
		return nil, fmt.Errorf("creating enrollment status store: %w", err)
	}

	secrets, err := storage.NewSecretStore(secretsmanager.NewFromConfig(awsCfg))
	if err != nil {
		return nil, fmt.Errorf("creating secret store: %w", err)
	}

	params, err := storage.NewRuntimeParams(ssm.NewFromConfig(awsCfg), cfg.SSM.ApprovalCodesParameter, cfg.SSM.RecipientsParameter)
	if err != nil {
		return nil, fmt.Errorf("creating runtime parameter store: %w", err)
	}

	moodleToken, err := storage.NewSecretToken(secrets, cfg.Moodle.TokenSecretARN)
	if err != nil {
		return nil, fmt.Errorf("creating moodle token source: %w", err)
	}

	var moodleClient sync.MoodleClient
	moodleClient, err = moodle.NewClient(cfg.Moodle.BaseURL, moodleToken, cfg.Sync.HTTPTimeout)
	if err != nil {
		return nil, fmt.Errorf("creating moodle client: %w", err)
	}
	if cfg.Sync.DryRun {
		logger.Info("dry run enabled, moodle writes disabled")
		moodleClient = sync.NewDryRunClient(moodleClient, logger)
	}

	oodiClient, err := oodi.NewClient(cfg.Registry.OodiBaseURL, cfg.Sync.HTTPTimeout)
	if err != nil {
		return nil, fmt.Errorf("creating oodi client: %w", err)
	}

	var sisuAPIKey string
	if cfg.Registry.SisuAPIKeySecretARN != "" {
		sisuAPIKey, err = secrets.Value(ctx, cfg.Registry.SisuAPIKeySecretARN)
		if err != nil {
			return nil, fmt.Errorf("getting sisu API key: %w", err)
		}
	}
	sisuClient, err := sisu.NewClient(cfg.Registry.SisuBaseURL, sisuAPIKey, cfg.Sync.HTTPTimeout)
	if err != nil {
		return nil, fmt.Errorf("creating sisu client: %w", err)
	}

	directory, err := iam.NewClient(cfg.IAM.BaseURL, cfg.Sync.HTTPTimeout)
	if err != nil {
		return nil, fmt.Errorf("creating iam client: %w", err)
	}

	approvalCodes, err := params.ApprovalStatusCodes(ctx, cfg.Sync.ApprovalStatusCodes)
	if err != nil {
		return nil, fmt.Errorf("getting approval status codes: %w", err)
	}

	enricher, err := sync.NewEnricher(sync.EnricherConfig{
		Locks:       locks,
		Logger:      logger,
		Moodle:      moodleClient,
		Oodi:        oodiClient,
		Sisu:        sisuClient,
		WorkerCount: cfg.Sync.WorkerCount,
	})
	if err != nil {
		return nil, fmt.Errorf("creating enricher: %w", err)
	}

	processor, err := sync.NewProcessor(sync.ProcessorConfig{
		ApprovalStatusCodes: approvalCodes,
		Directory:           directory,
		Logger:              logger,
		Moodle:              moodleClient,
		StudentRoleID:       cfg.Moodle.StudentRoleID,
		TeacherIDPrefix:     cfg.Sync.TeacherIDPrefix,
		TeacherRoleID:       cfg.Moodle.TeacherRoleID,
		UsernameSuffix:      cfg.Moodle.UsernameSuffix,
	})
	if err != nil {
		return nil, fmt.Errorf("creating processor: %w", err)
	}

	notifier, err := buildNotifier(ctx, awsCfg, cfg, params, logger)
	if err != nil {
		return nil, err
	}

	svc, err := sync.New(sync.Config{
		Courses:            courses,
		Enricher:           enricher,
		HealthWindow:       cfg.Sync.HealthWindow,
		Locks:              locks,
		Logger:             logger,
		Notifier:           notifier,
		Oodi:               oodiClient,
		Processor:          processor,
		Runs:               runs,
		Statuses:           statuses,
		StuckImportTimeout: cfg.Sync.StuckImportTimeout,
	})
	if err != nil {
		return nil, fmt.Errorf("creating sync service: %w", err)
	}

	return svc, nil
}

// buildNotifier assembles the SES lock notifier, or nil when notification is
// not configured.
func buildNotifier(
	ctx context.Context,
	awsCfg aws.Config,
	cfg *config.Settings,
	params *storage.RuntimeParams,
	logger *slog.Logger,
) (sync.Notifier, error) {
	recipients, err := params.NotificationRecipients(ctx, cfg.Notification.Recipients)
	if err != nil {
		return nil, fmt.Errorf("getting notification recipients: %w", err)
	}

	if len(recipients) == 0 || cfg.Notification.Sender == "" {
		logger.Info("lock notifications disabled, no recipients or sender configured")
		return nil, nil
	}

	notifier, err := notify.NewEmailNotifier(notify.Config{
		Client:     sesv2.NewFromConfig(awsCfg),
		Recipients: recipients,
		Sender:     cfg.Notification.Sender,
	})
	if err != nil {
		return nil, fmt.Errorf("creating email notifier: %w", err)
	}

	return notifier, nil
}
