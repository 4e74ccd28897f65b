package oodi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/edusync/moodlebridge/internal/registry"
)

func TestNewClient(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		baseURL string
		errMsg  string
		wantErr bool
	}{
		"valid inputs": {
			baseURL: "https://oodi.example.edu/api",
		},
		"empty base URL": {
			baseURL: "",
			wantErr: true,
			errMsg:  "base URL is required",
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			client, err := NewClient(tc.baseURL, time.Second)

			if tc.wantErr {
				require.Error(t, err)
				require.Contains(t, err.Error(), tc.errMsg)
				require.Nil(t, client)
			} else {
				require.NoError(t, err)
				require.NotNil(t, client)
			}
		})
	}
}

func TestClient_GetCourseUnitRealisation(t *testing.T) {
	t.Parallel()

	t.Run("returns realisation", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/courseunitrealisations/102374742", r.URL.Path)
			require.Equal(t, "true", r.URL.Query().Get("include_approved_status"))

			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{
				"status": 200,
				"data": {
					"course_id": 102374742,
					"realisation_name": "Introduction to Algorithms",
					"published": true,
					"automatic_enabled": true,
					"end_date": "2024-12-20T00:00:00.000+0200",
					"students": [
						{"student_number": "014729887", "enrollment_status_code": 3, "approved": true}
					],
					"teachers": [
						{"teacher_id": "000456"}
					]
				}
			}`))
		}))
		defer server.Close()

		client, err := NewClient(server.URL, time.Second)
		require.NoError(t, err)

		cur, err := client.GetCourseUnitRealisation(context.Background(), "102374742")
		require.NoError(t, err)
		require.NotNil(t, cur)
		require.Equal(t, "102374742", cur.RealisationID)
		require.Equal(t, "Introduction to Algorithms", cur.Name)
		require.Equal(t, registry.OriginOodi, cur.Origin)
		require.True(t, cur.Published)
		require.True(t, cur.AutomaticEnabled)
		require.Equal(t, 2024, cur.EndDate.Year())
		require.Len(t, cur.Students, 1)
		require.Equal(t, "014729887", cur.Students[0].StudentNumber)
		require.Equal(t, 3, cur.Students[0].StatusCode)
		require.True(t, cur.Students[0].Approved)
		require.Len(t, cur.Teachers, 1)
		require.Equal(t, "000456", cur.Teachers[0].EmployeeNumber)
	})

	t.Run("returns nil when absent", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"status": 200, "data": null}`))
		}))
		defer server.Close()

		client, err := NewClient(server.URL, time.Second)
		require.NoError(t, err)

		cur, err := client.GetCourseUnitRealisation(context.Background(), "102374742")
		require.NoError(t, err)
		require.Nil(t, cur)
	})

	t.Run("rejects non-numeric id", func(t *testing.T) {
		t.Parallel()

		client, err := NewClient("https://oodi.example.edu/api", time.Second)
		require.NoError(t, err)

		cur, err := client.GetCourseUnitRealisation(context.Background(), "hy-cur-1001")
		require.Error(t, err)
		require.Contains(t, err.Error(), "not numeric")
		require.Nil(t, cur)
	})

	t.Run("server error", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			http.Error(w, "boom", http.StatusInternalServerError)
		}))
		defer server.Close()

		client, err := NewClient(server.URL, time.Second)
		require.NoError(t, err)

		cur, err := client.GetCourseUnitRealisation(context.Background(), "102374742")
		require.Error(t, err)
		require.Contains(t, err.Error(), "unexpected status 500")
		require.Nil(t, cur)
	})
}

func TestClient_GetCourseChanges(t *testing.T) {
	t.Parallel()

	t.Run("returns changes", func(t *testing.T) {
		t.Parallel()

		after := time.Date(2024, 9, 1, 6, 30, 0, 0, time.UTC)

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/courseunitrealisations/changes/ids/2024-09-01T06:30:00", r.URL.Path)

			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{
				"status": 200,
				"data": [
					{"course_id": 102374742, "last_changed": "2024-09-01T08:15:00.000+0300"},
					{"course_id": 136394381, "last_changed": "2024-09-01T09:00:00.000+0300"}
				]
			}`))
		}))
		defer server.Close()

		client, err := NewClient(server.URL, time.Second)
		require.NoError(t, err)

		changes, err := client.GetCourseChanges(context.Background(), after)
		require.NoError(t, err)
		require.Len(t, changes, 2)
		require.Equal(t, "102374742", changes[0].RealisationID)
		require.Equal(t, "136394381", changes[1].RealisationID)
		require.False(t, changes[0].ChangedAt.IsZero())
	})

	t.Run("returns empty when no changes", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"status": 200, "data": []}`))
		}))
		defer server.Close()

		client, err := NewClient(server.URL, time.Second)
		require.NoError(t, err)

		changes, err := client.GetCourseChanges(context.Background(), time.Now())
		require.NoError(t, err)
		require.Empty(t, changes)
	})
}

func TestOodiTime_UnmarshalJSON(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		input    string
		wantErr  bool
		wantZero bool
		wantYear int
	}{
		"registry layout": {
			input:    `"2024-12-20T00:00:00.000+0200"`,
			wantYear: 2024,
		},
		"rfc3339 fallback": {
			input:    `"2024-12-20T00:00:00+02:00"`,
			wantYear: 2024,
		},
		"empty string": {
			input:    `""`,
			wantZero: true,
		},
		"unrecognised": {
			input:   `"20.12.2024"`,
			wantErr: true,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			var ts oodiTime
			err := ts.UnmarshalJSON([]byte(tc.input))

			if tc.wantErr {
				require.Error(t, err)
				return
			}

			require.NoError(t, err)
			if tc.wantZero {
				require.True(t, ts.IsZero())
			} else {
				require.Equal(t, tc.wantYear, ts.Year())
			}
		})
	}
}
