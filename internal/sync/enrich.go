package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/edusync/moodlebridge/internal/registry"
)

// enricherStep is one stage of the enrichment chain. Steps run in ascending
// priority order and are skipped once the item is terminal.
type enricherStep struct {
	// name identifies the step in error messages and logs.
	name string

	// priority orders the step within the chain.
	priority int

	// run advances the item, or fails it.
	run func(ctx context.Context, item Item, pre *prefetch) (Item, error)
}

// prefetch carries the bulk-fetched Sisu realisations for one batch. The
// per-item source step then only does a local map lookup.
type prefetch struct {
	// courses maps realisation id to the prefetched snapshot.
	courses map[string]registry.CourseUnitRealisation

	// err is the bulk fetch failure, charged to each Sisu item individually.
	err error
}

// EnricherConfig holds the required configuration for creating an Enricher.
type EnricherConfig struct {
	// Locks checks courses for active sync locks.
	Locks LockStore

	// Logger is the structured logger for the enricher.
	Logger *slog.Logger

	// Moodle is the target LMS client.
	Moodle MoodleClient

	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time

	// Oodi is the legacy source registry client.
	Oodi SourceRegistry

	// Sisu is the Sisu source registry client.
	Sisu SisuRegistry

	// SisuEndGrace is how long past its end date a Sisu course keeps syncing.
	SisuEndGrace time.Duration

	// WorkerCount bounds the enrichment fan-out.
	WorkerCount int
}

// validate checks that all required EnricherConfig fields are set.
func (c *EnricherConfig) validate() error {
	var errs []error
	if c.Locks == nil {
		errs = append(errs, errors.New("lock store is required"))
	}
	if c.Moodle == nil {
		errs = append(errs, errors.New("moodle client is required"))
	}
	if c.Oodi == nil {
		errs = append(errs, errors.New("oodi client is required"))
	}
	if c.Sisu == nil {
		errs = append(errs, errors.New("sisu client is required"))
	}
	return errors.Join(errs...)
}

// Enricher decorates items with everything processing needs, or terminates
// them early with a typed reason. One failing course never aborts the batch:
// step errors and panics convert to an item-level ERROR status.
type Enricher struct {
	logger       *slog.Logger
	now          func() time.Time
	sisu         SisuRegistry
	sisuEndGrace time.Duration
	steps        []enricherStep
	workerCount  int
}

// NewEnricher creates a new enrichment pipeline.
func NewEnricher(cfg EnricherConfig) (*Enricher, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	now := cfg.Now
	if now == nil {
		now = time.Now
	}

	grace := cfg.SisuEndGrace
	if grace <= 0 {
		grace = 365 * 24 * time.Hour
	}

	workerCount := cfg.WorkerCount
	if workerCount <= 0 {
		workerCount = 5
	}

	e := &Enricher{
		logger:       logger,
		now:          now,
		sisu:         cfg.Sisu,
		sisuEndGrace: grace,
		workerCount:  workerCount,
	}

	e.steps = []enricherStep{
		{name: "lock-status", priority: 0, run: e.lockStep(cfg.Locks)},
		{name: "source-course", priority: 1, run: e.sourceCourseStep(cfg.Oodi)},
		{name: "moodle-course", priority: 10, run: e.moodleCourseStep(cfg.Moodle)},
		{name: "moodle-enrollments", priority: 20, run: e.moodleEnrollmentsStep(cfg.Moodle)},
		{name: "completion", priority: 30, run: completionStep},
	}
	sort.SliceStable(e.steps, func(a, b int) bool {
		return e.steps[a].priority < e.steps[b].priority
	})

	return e, nil
}

// EnrichAll enriches every item in parallel on the bounded worker pool and
// blocks until all results are collected. No partial results flow forward.
func (e *Enricher) EnrichAll(ctx context.Context, items []Item) []Item {
	pre := e.prefetchSisu(ctx, items)

	tasks := make([]func() Item, len(items))
	for i := range items {
		item := items[i]
		tasks[i] = func() Item {
			return e.enrichItem(ctx, item, pre)
		}
	}

	return runParallel(e.workerCount, tasks)
}

// enrichItem runs the step chain for one item.
func (e *Enricher) enrichItem(ctx context.Context, item Item, pre *prefetch) Item {
	for _, step := range e.steps {
		if item.EnrichmentStatus != EnrichmentInProgress {
			break
		}
		item = e.runStep(ctx, step, item, pre)
	}
	return item
}

// runStep executes one step, converting errors and panics into an item-level
// ERROR status instead of letting them abort the batch.
func (e *Enricher) runStep(ctx context.Context, step enricherStep, item Item, pre *prefetch) (out Item) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("enricher panicked",
				"step", step.name,
				"realisation_id", item.Course.RealisationID,
				"panic", r)
			out = item.CompleteEnrichment(EnrichmentError, fmt.Sprintf("%s: panic: %v", step.name, r))
		}
	}()

	next, err := step.run(ctx, item, pre)
	if err != nil {
		e.logger.Error("enricher failed",
			"step", step.name,
			"realisation_id", item.Course.RealisationID,
			"error", err)
		return item.CompleteEnrichment(EnrichmentError, fmt.Sprintf("%s: %v", step.name, err))
	}

	return next
}

// prefetchSisu bulk-fetches all Sisu realisations in the batch in one query
// to amortize round-trips. A fetch failure is charged per item later, so the
// legacy-side items in the batch are unaffected.
func (e *Enricher) prefetchSisu(ctx context.Context, items []Item) *prefetch {
	var ids []string
	for _, item := range items {
		if !registry.IsOodiID(item.Course.RealisationID) {
			ids = append(ids, item.Course.RealisationID)
		}
	}

	pre := &prefetch{courses: make(map[string]registry.CourseUnitRealisation, len(ids))}
	if len(ids) == 0 {
		return pre
	}

	curs, err := e.sisu.GetCourseUnitRealisations(ctx, ids)
	if err != nil {
		pre.err = err
		return pre
	}

	for _, cur := range curs {
		pre.courses[cur.RealisationID] = cur
	}
	return pre
}

// lockStep terminates locked items, except in UNLOCK runs where the lock was
// already released by the loader and the item is flagged for forced unlock.
func (e *Enricher) lockStep(locks LockStore) func(context.Context, Item, *prefetch) (Item, error) {
	return func(ctx context.Context, item Item, _ *prefetch) (Item, error) {
		if item.Type == TypeUnlock {
			return item.MarkUnlock(), nil
		}

		locked, err := locks.IsLocked(ctx, item.Course.RealisationID)
		if err != nil {
			return item, err
		}
		if locked {
			return item.CompleteEnrichment(EnrichmentLocked, "course has an active sync lock"), nil
		}
		return item, nil
	}
}

// sourceCourseStep attaches the authoritative course snapshot, or terminates
// the item when the course is gone, ended or unpublished.
func (e *Enricher) sourceCourseStep(oodi SourceRegistry) func(context.Context, Item, *prefetch) (Item, error) {
	return func(ctx context.Context, item Item, pre *prefetch) (Item, error) {
		realisationID := item.Course.RealisationID

		var cur *registry.CourseUnitRealisation
		if registry.IsOodiID(realisationID) {
			fetched, err := oodi.GetCourseUnitRealisation(ctx, realisationID)
			if err != nil {
				return item, err
			}
			cur = fetched
		} else {
			if pre.err != nil {
				return item, pre.err
			}
			if prefetched, ok := pre.courses[realisationID]; ok {
				cur = &prefetched
			}
		}

		if cur == nil {
			return item.MarkRemoved().CompleteEnrichment(EnrichmentCourseNotFound,
				"course not found in source registry"), nil
		}

		if e.courseEnded(*cur) {
			return item.MarkRemoved().CompleteEnrichment(EnrichmentCourseEnded,
				fmt.Sprintf("course ended %s", cur.EndDate.Format("2006-01-02"))), nil
		}

		if !cur.Published {
			return item.CompleteEnrichment(EnrichmentCourseNotPublic,
				"course is not published in source registry"), nil
		}

		item.Source = cur
		return item, nil
	}
}

// courseEnded applies the per-registry end-date rule: legacy courses end the
// moment their end date passes, Sisu courses keep syncing for the grace
// period after it.
func (e *Enricher) courseEnded(cur registry.CourseUnitRealisation) bool {
	if cur.EndDate.IsZero() {
		return false
	}

	cutoff := cur.EndDate
	if cur.Origin == registry.OriginSisu {
		cutoff = cutoff.Add(e.sisuEndGrace)
	}
	return cutoff.Before(e.now())
}

// moodleCourseStep attaches the target course snapshot, or terminates the
// item when Moodle no longer has the course.
func (e *Enricher) moodleCourseStep(client MoodleClient) func(context.Context, Item, *prefetch) (Item, error) {
	return func(ctx context.Context, item Item, _ *prefetch) (Item, error) {
		courses, err := client.GetCourses(ctx, []int64{item.Course.CourseID})
		if err != nil {
			return item, err
		}

		for i := range courses {
			if courses[i].ID == item.Course.CourseID {
				item.MoodleCourse = &courses[i]
				return item, nil
			}
		}

		return item.CompleteEnrichment(EnrichmentMoodleCourseNotFound,
			"course not found in moodle"), nil
	}
}

// moodleEnrollmentsStep attaches the current target roster. An empty roster
// is valid; this step never terminates the item.
func (e *Enricher) moodleEnrollmentsStep(client MoodleClient) func(context.Context, Item, *prefetch) (Item, error) {
	return func(ctx context.Context, item Item, _ *prefetch) (Item, error) {
		roster, err := client.GetEnrolledUsers(ctx, item.Course.CourseID)
		if err != nil {
			return item, err
		}

		item.MoodleEnrollments = roster
		item.EnrollmentsFetched = true
		return item, nil
	}
}

// completionStep marks an item that survived every earlier step.
func completionStep(_ context.Context, item Item, _ *prefetch) (Item, error) {
	return item.CompleteEnrichment(EnrichmentSuccess, ""), nil
}
