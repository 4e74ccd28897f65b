package sync

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/edusync/moodlebridge/internal/moodle"
	"github.com/edusync/moodlebridge/internal/registry"
	"github.com/edusync/moodlebridge/internal/storage"
)

var enrichNow = time.Date(2024, time.September, 1, 12, 0, 0, 0, time.UTC)

func publishedRealisation(realisationID string, origin registry.Origin) *registry.CourseUnitRealisation {
	return &registry.CourseUnitRealisation{
		EndDate:       enrichNow.Add(30 * 24 * time.Hour),
		Name:          "Introduction to Algorithms",
		Origin:        origin,
		Published:     true,
		RealisationID: realisationID,
	}
}

func testEnricher(t *testing.T, cfg EnricherConfig) *Enricher {
	t.Helper()

	if cfg.Locks == nil {
		cfg.Locks = &mockLockStore{}
	}
	if cfg.Moodle == nil {
		cfg.Moodle = &mockMoodleClient{
			getCoursesFunc: func(_ context.Context, courseIDs []int64) ([]moodle.Course, error) {
				courses := make([]moodle.Course, len(courseIDs))
				for i, id := range courseIDs {
					courses[i] = moodle.Course{ID: id}
				}
				return courses, nil
			},
		}
	}
	if cfg.Oodi == nil {
		cfg.Oodi = &mockSourceRegistry{
			getRealisationFunc: func(_ context.Context, realisationID string) (*registry.CourseUnitRealisation, error) {
				return publishedRealisation(realisationID, registry.OriginOodi), nil
			},
		}
	}
	if cfg.Sisu == nil {
		cfg.Sisu = &mockSisuRegistry{}
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return enrichNow }
	}

	enricher, err := NewEnricher(cfg)
	require.NoError(t, err)
	return enricher
}

func TestNewEnricher(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		cfg     EnricherConfig
		wantErr string
	}{
		"valid": {
			cfg: EnricherConfig{
				Locks:  &mockLockStore{},
				Moodle: &mockMoodleClient{},
				Oodi:   &mockSourceRegistry{},
				Sisu:   &mockSisuRegistry{},
			},
		},
		"missing lock store": {
			cfg: EnricherConfig{
				Moodle: &mockMoodleClient{},
				Oodi:   &mockSourceRegistry{},
				Sisu:   &mockSisuRegistry{},
			},
			wantErr: "lock store is required",
		},
		"missing moodle client": {
			cfg: EnricherConfig{
				Locks: &mockLockStore{},
				Oodi:  &mockSourceRegistry{},
				Sisu:  &mockSisuRegistry{},
			},
			wantErr: "moodle client is required",
		},
		"missing oodi client": {
			cfg: EnricherConfig{
				Locks:  &mockLockStore{},
				Moodle: &mockMoodleClient{},
				Sisu:   &mockSisuRegistry{},
			},
			wantErr: "oodi client is required",
		},
		"missing sisu client": {
			cfg: EnricherConfig{
				Locks:  &mockLockStore{},
				Moodle: &mockMoodleClient{},
				Oodi:   &mockSourceRegistry{},
			},
			wantErr: "sisu client is required",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			enricher, err := NewEnricher(tc.cfg)

			if tc.wantErr != "" {
				require.ErrorContains(t, err, tc.wantErr)
				require.Nil(t, enricher)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, enricher)
		})
	}
}

func TestEnricher_EnrichAll(t *testing.T) {
	t.Parallel()

	course := storage.Course{CourseID: 4242, RealisationID: "102374742"}

	t.Run("fully enriches a legacy course", func(t *testing.T) {
		t.Parallel()

		enricher := testEnricher(t, EnricherConfig{
			Moodle: &mockMoodleClient{
				getCoursesFunc: func(_ context.Context, courseIDs []int64) ([]moodle.Course, error) {
					require.Equal(t, []int64{4242}, courseIDs)
					return []moodle.Course{{ID: 4242, ShortName: "TKT-1"}}, nil
				},
				getEnrolledUsersFunc: func(_ context.Context, courseID int64) ([]moodle.EnrolledUser, error) {
					require.Equal(t, int64(4242), courseID)
					return []moodle.EnrolledUser{{ID: 7, Username: "mmeika"}}, nil
				},
			},
		})

		items := enricher.EnrichAll(context.Background(), []Item{NewItem(course, TypeFull)})

		require.Len(t, items, 1)
		got := items[0]
		require.Equal(t, EnrichmentSuccess, got.EnrichmentStatus)
		require.NotNil(t, got.Source)
		require.Equal(t, "102374742", got.Source.RealisationID)
		require.NotNil(t, got.MoodleCourse)
		require.Equal(t, "TKT-1", got.MoodleCourse.ShortName)
		require.True(t, got.EnrollmentsFetched)
		require.Len(t, got.MoodleEnrollments, 1)
		require.False(t, got.Removed)
	})

	t.Run("terminates a locked course", func(t *testing.T) {
		t.Parallel()

		var sourceCalls atomic.Int64
		enricher := testEnricher(t, EnricherConfig{
			Locks: &mockLockStore{
				isLockedFunc: func(_ context.Context, realisationID string) (bool, error) {
					require.Equal(t, "102374742", realisationID)
					return true, nil
				},
			},
			Oodi: &mockSourceRegistry{
				getRealisationFunc: func(_ context.Context, _ string) (*registry.CourseUnitRealisation, error) {
					sourceCalls.Add(1)
					return nil, nil
				},
			},
		})

		items := enricher.EnrichAll(context.Background(), []Item{NewItem(course, TypeFull)})

		require.Equal(t, EnrichmentLocked, items[0].EnrichmentStatus)
		require.Equal(t, "course has an active sync lock", items[0].Message)
		require.Zero(t, sourceCalls.Load(), "a locked item must not reach later steps")
	})

	t.Run("flags forced unlock without checking the lock", func(t *testing.T) {
		t.Parallel()

		var lockChecks atomic.Int64
		enricher := testEnricher(t, EnricherConfig{
			Locks: &mockLockStore{
				isLockedFunc: func(_ context.Context, _ string) (bool, error) {
					lockChecks.Add(1)
					return true, nil
				},
			},
		})

		items := enricher.EnrichAll(context.Background(), []Item{NewItem(course, TypeUnlock)})

		require.Zero(t, lockChecks.Load(), "unlock runs must not consult the lock store")
		require.True(t, items[0].Unlock)
		require.Equal(t, EnrichmentSuccess, items[0].EnrichmentStatus)
	})

	t.Run("removes a course missing from the source registry", func(t *testing.T) {
		t.Parallel()

		enricher := testEnricher(t, EnricherConfig{
			Oodi: &mockSourceRegistry{
				getRealisationFunc: func(_ context.Context, _ string) (*registry.CourseUnitRealisation, error) {
					return nil, nil
				},
			},
		})

		items := enricher.EnrichAll(context.Background(), []Item{NewItem(course, TypeFull)})

		require.Equal(t, EnrichmentCourseNotFound, items[0].EnrichmentStatus)
		require.Equal(t, "course not found in source registry", items[0].Message)
		require.True(t, items[0].Removed)
	})

	t.Run("removes an ended legacy course", func(t *testing.T) {
		t.Parallel()

		enricher := testEnricher(t, EnricherConfig{
			Oodi: &mockSourceRegistry{
				getRealisationFunc: func(_ context.Context, realisationID string) (*registry.CourseUnitRealisation, error) {
					cur := publishedRealisation(realisationID, registry.OriginOodi)
					cur.EndDate = time.Date(2024, time.May, 31, 0, 0, 0, 0, time.UTC)
					return cur, nil
				},
			},
		})

		items := enricher.EnrichAll(context.Background(), []Item{NewItem(course, TypeFull)})

		require.Equal(t, EnrichmentCourseEnded, items[0].EnrichmentStatus)
		require.Equal(t, "course ended 2024-05-31", items[0].Message)
		require.True(t, items[0].Removed)
	})

	t.Run("keeps an ended sisu course within the grace period", func(t *testing.T) {
		t.Parallel()

		sisuCourse := storage.Course{CourseID: 4243, RealisationID: "hy-cur-1001"}
		enricher := testEnricher(t, EnricherConfig{
			Sisu: &mockSisuRegistry{
				getRealisationsFunc: func(_ context.Context, _ []string) ([]registry.CourseUnitRealisation, error) {
					cur := publishedRealisation("hy-cur-1001", registry.OriginSisu)
					cur.EndDate = enrichNow.Add(-100 * 24 * time.Hour)
					return []registry.CourseUnitRealisation{*cur}, nil
				},
			},
		})

		items := enricher.EnrichAll(context.Background(), []Item{NewItem(sisuCourse, TypeFull)})

		require.Equal(t, EnrichmentSuccess, items[0].EnrichmentStatus)
		require.False(t, items[0].Removed)
	})

	t.Run("removes a sisu course ended past the grace period", func(t *testing.T) {
		t.Parallel()

		sisuCourse := storage.Course{CourseID: 4243, RealisationID: "hy-cur-1001"}
		enricher := testEnricher(t, EnricherConfig{
			Sisu: &mockSisuRegistry{
				getRealisationsFunc: func(_ context.Context, _ []string) ([]registry.CourseUnitRealisation, error) {
					cur := publishedRealisation("hy-cur-1001", registry.OriginSisu)
					cur.EndDate = enrichNow.Add(-400 * 24 * time.Hour)
					return []registry.CourseUnitRealisation{*cur}, nil
				},
			},
		})

		items := enricher.EnrichAll(context.Background(), []Item{NewItem(sisuCourse, TypeFull)})

		require.Equal(t, EnrichmentCourseEnded, items[0].EnrichmentStatus)
		require.True(t, items[0].Removed)
	})

	t.Run("terminates an unpublished course without removing it", func(t *testing.T) {
		t.Parallel()

		enricher := testEnricher(t, EnricherConfig{
			Oodi: &mockSourceRegistry{
				getRealisationFunc: func(_ context.Context, realisationID string) (*registry.CourseUnitRealisation, error) {
					cur := publishedRealisation(realisationID, registry.OriginOodi)
					cur.Published = false
					return cur, nil
				},
			},
		})

		items := enricher.EnrichAll(context.Background(), []Item{NewItem(course, TypeFull)})

		require.Equal(t, EnrichmentCourseNotPublic, items[0].EnrichmentStatus)
		require.False(t, items[0].Removed)
	})

	t.Run("terminates when moodle no longer has the course", func(t *testing.T) {
		t.Parallel()

		enricher := testEnricher(t, EnricherConfig{
			Moodle: &mockMoodleClient{
				getCoursesFunc: func(_ context.Context, _ []int64) ([]moodle.Course, error) {
					return nil, nil
				},
			},
		})

		items := enricher.EnrichAll(context.Background(), []Item{NewItem(course, TypeFull)})

		require.Equal(t, EnrichmentMoodleCourseNotFound, items[0].EnrichmentStatus)
		require.Equal(t, "course not found in moodle", items[0].Message)
	})

	t.Run("converts a step error into an item error", func(t *testing.T) {
		t.Parallel()

		enricher := testEnricher(t, EnricherConfig{
			Oodi: &mockSourceRegistry{
				getRealisationFunc: func(_ context.Context, _ string) (*registry.CourseUnitRealisation, error) {
					return nil, errors.New("connection refused")
				},
			},
		})

		items := enricher.EnrichAll(context.Background(), []Item{NewItem(course, TypeFull)})

		require.Equal(t, EnrichmentError, items[0].EnrichmentStatus)
		require.Equal(t, "source-course: connection refused", items[0].Message)
	})

	t.Run("converts a step panic into an item error", func(t *testing.T) {
		t.Parallel()

		enricher := testEnricher(t, EnricherConfig{
			Moodle: &mockMoodleClient{
				getCoursesFunc: func(_ context.Context, _ []int64) ([]moodle.Course, error) {
					panic("nil dereference")
				},
			},
		})

		items := enricher.EnrichAll(context.Background(), []Item{NewItem(course, TypeFull)})

		require.Equal(t, EnrichmentError, items[0].EnrichmentStatus)
		require.Equal(t, "moodle-course: panic: nil dereference", items[0].Message)
	})

	t.Run("charges a sisu bulk failure only to sisu items", func(t *testing.T) {
		t.Parallel()

		oodiItem := NewItem(storage.Course{CourseID: 1, RealisationID: "102374742"}, TypeFull)
		sisuItem := NewItem(storage.Course{CourseID: 2, RealisationID: "hy-cur-1001"}, TypeFull)

		enricher := testEnricher(t, EnricherConfig{
			Sisu: &mockSisuRegistry{
				getRealisationsFunc: func(_ context.Context, realisationIDs []string) ([]registry.CourseUnitRealisation, error) {
					require.Equal(t, []string{"hy-cur-1001"}, realisationIDs)
					return nil, errors.New("sisu unavailable")
				},
			},
		})

		items := enricher.EnrichAll(context.Background(), []Item{oodiItem, sisuItem})

		require.Equal(t, EnrichmentSuccess, items[0].EnrichmentStatus)
		require.Equal(t, EnrichmentError, items[1].EnrichmentStatus)
		require.Equal(t, "source-course: sisu unavailable", items[1].Message)
	})

	t.Run("bulk-fetches sisu realisations once per batch", func(t *testing.T) {
		t.Parallel()

		var bulkCalls atomic.Int64
		enricher := testEnricher(t, EnricherConfig{
			Sisu: &mockSisuRegistry{
				getRealisationsFunc: func(_ context.Context, realisationIDs []string) ([]registry.CourseUnitRealisation, error) {
					bulkCalls.Add(1)
					curs := make([]registry.CourseUnitRealisation, len(realisationIDs))
					for i, id := range realisationIDs {
						curs[i] = *publishedRealisation(id, registry.OriginSisu)
					}
					return curs, nil
				},
			},
		})

		items := enricher.EnrichAll(context.Background(), []Item{
			NewItem(storage.Course{CourseID: 1, RealisationID: "hy-cur-1001"}, TypeFull),
			NewItem(storage.Course{CourseID: 2, RealisationID: "hy-cur-1002"}, TypeFull),
			NewItem(storage.Course{CourseID: 3, RealisationID: "hy-cur-1003"}, TypeFull),
		})

		require.Equal(t, int64(1), bulkCalls.Load())
		for _, item := range items {
			require.Equal(t, EnrichmentSuccess, item.EnrichmentStatus)
		}
	})
}
