package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/edusync/moodlebridge/internal/storage"
)

// ItemOutcome is the per-course line of a run summary.
type ItemOutcome struct {
	// CourseID is the Moodle-internal course id.
	CourseID int64

	// EnrichmentStatus is the item's terminal enrichment state.
	EnrichmentStatus EnrichmentStatus

	// Message is the item's human-readable outcome.
	Message string

	// ProcessingStatus is the item's terminal processing state.
	ProcessingStatus ProcessingStatus

	// RealisationID is the course's source registry key.
	RealisationID string

	// Users are the per-person outcomes.
	Users []UserItem
}

// Summary is the aggregated outcome of one synchronization run.
type Summary struct {
	// Elapsed is the wall-clock duration of the run.
	Elapsed time.Duration

	// Failed counts items that did not fully succeed.
	Failed int

	// Items are the per-course outcomes.
	Items []ItemOutcome

	// Locked lists realisation ids skipped because of an active lock.
	Locked []string

	// RunID is the job run identifier.
	RunID string

	// Skipped counts items removed from synchronization (course gone or
	// ended in the source registry).
	Skipped int

	// Started is when the run started.
	Started time.Time

	// Succeeded counts items that fully succeeded.
	Succeeded int

	// Type is the synchronization type of the run.
	Type Type
}

// Health describes the freshness of the latest completed run, for external
// monitoring to alert on stale synchronization.
type Health struct {
	// Healthy indicates a run completed within the configured window.
	Healthy bool

	// LatestCompleted is when the newest run of any type completed.
	LatestCompleted time.Time

	// LatestStatus is the status of that run.
	LatestStatus storage.RunStatus

	// LatestType is the type of that run.
	LatestType Type
}

// Config holds the required configuration for creating a Service.
type Config struct {
	// Courses is the course registry.
	Courses CourseStore

	// Enricher is the enrichment pipeline.
	Enricher *Enricher

	// HealthWindow is the freshness window for the health check.
	HealthWindow time.Duration

	// Locks is the sync lock store.
	Locks LockStore

	// Logger is the structured logger for the service.
	Logger *slog.Logger

	// Notifier delivers lock notifications. Optional.
	Notifier Notifier

	// Oodi is the legacy registry client, used by the incremental loader.
	Oodi SourceRegistry

	// Processor is the reconciliation engine.
	Processor *Processor

	// Runs is the job run tracker.
	Runs RunTracker

	// Statuses is the enrollment audit store.
	Statuses StatusRecorder

	// StuckImportTimeout is the in-progress import age after which the
	// startup sweep force-fails the import.
	StuckImportTimeout time.Duration
}

// validate checks that all required Config fields are set.
func (c *Config) validate() error {
	var errs []error
	if c.Courses == nil {
		errs = append(errs, errors.New("course store is required"))
	}
	if c.Enricher == nil {
		errs = append(errs, errors.New("enricher is required"))
	}
	if c.Locks == nil {
		errs = append(errs, errors.New("lock store is required"))
	}
	if c.Oodi == nil {
		errs = append(errs, errors.New("oodi client is required"))
	}
	if c.Processor == nil {
		errs = append(errs, errors.New("processor is required"))
	}
	if c.Runs == nil {
		errs = append(errs, errors.New("run tracker is required"))
	}
	if c.Statuses == nil {
		errs = append(errs, errors.New("status recorder is required"))
	}
	return errors.Join(errs...)
}

// Service orchestrates synchronization runs: load, enrich, process, persist,
// report. One failed course never aborts a run; only a loader failure does.
type Service struct {
	courses            CourseStore
	enricher           *Enricher
	healthWindow       time.Duration
	locks              LockStore
	logger             *slog.Logger
	notifier           Notifier
	oodi               SourceRegistry
	processor          *Processor
	runs               RunTracker
	statuses           StatusRecorder
	stuckImportTimeout time.Duration
}

// New creates a new synchronization orchestration service.
func New(cfg Config) (*Service, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	healthWindow := cfg.HealthWindow
	if healthWindow <= 0 {
		healthWindow = 3 * time.Hour
	}

	stuckTimeout := cfg.StuckImportTimeout
	if stuckTimeout <= 0 {
		stuckTimeout = 2 * time.Hour
	}

	return &Service{
		courses:            cfg.Courses,
		enricher:           cfg.Enricher,
		healthWindow:       healthWindow,
		locks:              cfg.Locks,
		logger:             logger,
		notifier:           cfg.Notifier,
		oodi:               cfg.Oodi,
		processor:          cfg.Processor,
		runs:               cfg.Runs,
		statuses:           cfg.Statuses,
		stuckImportTimeout: stuckTimeout,
	}, nil
}

// Startup performs the crash-recovery sweeps: lingering STARTED job runs are
// marked INTERRUPTED and imports stuck in progress past the timeout are
// force-failed. Called once at process start, before any run.
func (s *Service) Startup(ctx context.Context) error {
	interrupted, err := s.runs.MarkInterrupted(ctx)
	if err != nil {
		return fmt.Errorf("marking interrupted runs: %w", err)
	}
	for _, run := range interrupted {
		s.logger.Warn("marked lingering run as interrupted",
			"run_id", run.RunID,
			"type", run.Type,
			"started_at", run.StartedAt)
	}

	cutoff := time.Now().Add(-s.stuckImportTimeout)
	failed, err := s.courses.ForceFailStuckImports(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("force-failing stuck imports: %w", err)
	}
	for _, course := range failed {
		s.logger.Warn("force-failed stuck course import",
			"realisation_id", course.RealisationID,
			"created_at", course.CreatedAt)
	}

	return nil
}

// Synchronize executes one full synchronization run of the given type and
// returns its summary.
func (s *Service) Synchronize(ctx context.Context, runType Type) (*Summary, error) {
	started := time.Now()

	runID, err := s.runs.Begin(ctx, string(runType))
	if err != nil {
		return nil, fmt.Errorf("beginning job run: %w", err)
	}

	s.logger.Info("starting synchronization run",
		"run_id", runID,
		"type", runType)

	loader, err := NewLoader(runType, s.courses, s.locks, s.runs, s.oodi)
	if err != nil {
		return nil, s.abortRun(ctx, runID, runType, err)
	}

	courses, err := loader.Load(ctx)
	if err != nil {
		return nil, s.abortRun(ctx, runID, runType, err)
	}

	s.logger.Info("loaded candidate courses", "count", len(courses))

	items := make([]Item, len(courses))
	for i, course := range courses {
		items[i] = NewItem(course, runType)
	}

	items = s.enricher.EnrichAll(ctx, items)

	for i, item := range items {
		items[i] = s.processor.Process(ctx, item)
	}

	summary := s.summarize(runID, runType, started, items)

	s.persistOutcomes(ctx, items)

	status := storage.RunStatusCompletedSuccess
	if summary.Failed > 0 {
		status = storage.RunStatusCompletedFailure
	}
	message := fmt.Sprintf("%d succeeded, %d failed, %d skipped of %d courses",
		summary.Succeeded, summary.Failed, summary.Skipped, len(items))

	if err := s.runs.Complete(ctx, runID, string(runType), status, message); err != nil {
		return summary, fmt.Errorf("completing job run: %w", err)
	}

	s.notifyLocked(ctx, summary)
	s.logRunComplete(summary, status)

	return summary, nil
}

// Health returns the freshness of the latest completed scheduled run.
func (s *Service) Health(ctx context.Context) (*Health, error) {
	health := &Health{}

	for _, runType := range []Type{TypeFull, TypeIncremental} {
		run, err := s.runs.FindLatestCompleted(ctx, string(runType))
		if err != nil {
			return nil, fmt.Errorf("finding latest completed run: %w", err)
		}
		if run == nil || !run.CompletedAt.After(health.LatestCompleted) {
			continue
		}
		health.LatestCompleted = run.CompletedAt
		health.LatestStatus = run.Status
		health.LatestType = Type(run.Type)
	}

	health.Healthy = !health.LatestCompleted.IsZero() &&
		time.Since(health.LatestCompleted) <= s.healthWindow

	return health, nil
}

// abortRun records a run-level failure. Loading failures abort the whole run:
// a partial course list would silently skip courses.
func (s *Service) abortRun(ctx context.Context, runID string, runType Type, cause error) error {
	s.logger.Error("synchronization run aborted",
		"run_id", runID,
		"type", runType,
		"error", cause)

	message := fmt.Sprintf("aborted: %v", cause)
	if err := s.runs.Complete(ctx, runID, string(runType), storage.RunStatusCompletedFailure, message); err != nil {
		s.logger.Error("failed to record aborted run", "run_id", runID, "error", err)
	}

	return fmt.Errorf("synchronization run %s aborted: %w", runID, cause)
}

// persistOutcomes writes one audit row per processed, non-removed item and
// flips recovered completed-failed courses back to completed.
func (s *Service) persistOutcomes(ctx context.Context, items []Item) {
	for _, item := range items {
		if item.Removed || item.EnrichmentStatus != EnrichmentSuccess {
			continue
		}

		record := storage.EnrollmentStatusRecord{
			CourseID:        item.Course.CourseID,
			RealisationID:   item.Course.RealisationID,
			StudentStatuses: marshalUsers(item.StudentItems()),
			TeacherStatuses: marshalUsers(item.TeacherItems()),
		}
		if err := s.statuses.Record(ctx, record); err != nil {
			s.logger.Error("failed to record enrollment status",
				"realisation_id", item.Course.RealisationID,
				"error", err)
		}

		if item.Succeeded() && item.Course.ImportStatus == storage.ImportStatusCompletedFailed {
			err := s.courses.UpdateImportStatus(ctx, item.Course.RealisationID, storage.ImportStatusCompleted)
			if err != nil {
				s.logger.Error("failed to recover completed-failed course",
					"realisation_id", item.Course.RealisationID,
					"error", err)
			}
		}
	}
}

// summarize aggregates the per-item outcomes of a run.
func (s *Service) summarize(runID string, runType Type, started time.Time, items []Item) *Summary {
	summary := &Summary{
		Elapsed: time.Since(started),
		RunID:   runID,
		Started: started,
		Type:    runType,
	}

	for _, item := range items {
		switch {
		case item.Removed:
			summary.Skipped++
		case item.Succeeded():
			summary.Succeeded++
		default:
			summary.Failed++
		}
		if item.EnrichmentStatus == EnrichmentLocked {
			summary.Locked = append(summary.Locked, item.Course.RealisationID)
		}

		summary.Items = append(summary.Items, ItemOutcome{
			CourseID:         item.Course.CourseID,
			EnrichmentStatus: item.EnrichmentStatus,
			Message:          item.Message,
			ProcessingStatus: item.ProcessingStatus,
			RealisationID:    item.Course.RealisationID,
			Users:            item.Users,
		})
	}

	return summary
}

// notifyLocked reports skipped locked courses to operators.
func (s *Service) notifyLocked(ctx context.Context, summary *Summary) {
	if s.notifier == nil || len(summary.Locked) == 0 {
		return
	}

	if err := s.notifier.NotifyLockedCourses(ctx, summary.Locked); err != nil {
		s.logger.Error("failed to send lock notification",
			"locked_count", len(summary.Locked),
			"error", err)
	}
}

// logRunComplete logs the final run summary.
func (s *Service) logRunComplete(summary *Summary, status storage.RunStatus) {
	s.logger.Info("synchronization run completed",
		"run_id", summary.RunID,
		"type", summary.Type,
		"status", status,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"skipped", summary.Skipped,
		"locked", len(summary.Locked),
		"elapsed", summary.Elapsed)
}

// marshalUsers serializes user outcomes for the audit row.
func marshalUsers(users []UserItem) string {
	if len(users) == 0 {
		return "[]"
	}

	data, err := json.Marshal(users)
	if err != nil {
		return "[]"
	}
	return string(data)
}
