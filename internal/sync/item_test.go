package sync

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/edusync/moodlebridge/internal/storage"
)

func TestItem_Succeeded(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		enrichment EnrichmentStatus
		processing ProcessingStatus
		want       bool
	}{
		"both succeeded":      {enrichment: EnrichmentSuccess, processing: ProcessingSuccess, want: true},
		"enrichment failed":   {enrichment: EnrichmentError, processing: ProcessingSuccess, want: false},
		"processing failed":   {enrichment: EnrichmentSuccess, processing: ProcessingEnrollmentFailures, want: false},
		"still in progress":   {enrichment: EnrichmentInProgress, processing: ProcessingInProgress, want: false},
		"locked before start": {enrichment: EnrichmentLocked, processing: ProcessingInProgress, want: false},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			item := NewItem(storage.Course{RealisationID: "102374742"}, TypeFull)
			item.EnrichmentStatus = tc.enrichment
			item.ProcessingStatus = tc.processing

			require.Equal(t, tc.want, item.Succeeded())
		})
	}
}

func TestItem_Transitions(t *testing.T) {
	t.Parallel()

	original := NewItem(storage.Course{RealisationID: "102374742"}, TypeFull)

	updated := original.
		CompleteEnrichment(EnrichmentCourseEnded, "course ended 2024-05-31").
		MarkRemoved()

	require.Equal(t, EnrichmentCourseEnded, updated.EnrichmentStatus)
	require.Equal(t, "course ended 2024-05-31", updated.Message)
	require.True(t, updated.Removed)

	// Transitions return copies; the original item is untouched.
	require.Equal(t, EnrichmentInProgress, original.EnrichmentStatus)
	require.Empty(t, original.Message)
	require.False(t, original.Removed)
}

func TestItem_RoleSplit(t *testing.T) {
	t.Parallel()

	item := NewItem(storage.Course{RealisationID: "102374742"}, TypeFull).WithUsers([]UserItem{
		{PersonID: "014123456", Role: RoleStudent, Status: UserCompleted},
		{PersonID: "000456", Role: RoleTeacher, Status: UserCompleted},
		{Role: RoleNone, Status: UserCompleted, Username: "leftover"},
	})

	students := item.StudentItems()
	require.Len(t, students, 1)
	require.Equal(t, "014123456", students[0].PersonID)

	teachers := item.TeacherItems()
	require.Len(t, teachers, 1)
	require.Equal(t, "000456", teachers[0].PersonID)
}

func TestUserItem_Completed(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		status UserStatus
		want   bool
	}{
		"completed":           {status: UserCompleted, want: true},
		"missing moodle user": {status: UserMoodleUserNotFound, want: true},
		"missing username":    {status: UserUsernameNotFound, want: false},
		"failed":              {status: UserError, want: false},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			require.Equal(t, tc.want, UserItem{Status: tc.status}.Completed())
		})
	}
}
