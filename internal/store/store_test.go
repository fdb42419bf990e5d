package store

import (
	"context"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spigell/placement-engine/internal/placement"
)

// runContract exercises behaviour every Store implementation must share.
func runContract(t *testing.T, newStore func(t *testing.T) Store) {
	ctx := context.Background()

	seed := func(t *testing.T, s Store) (placement.Student, placement.JobPosting) {
		t.Helper()
		student, err := s.UpsertStudent(ctx, placement.Student{ID: uuid.NewString(), Name: "Ada", Email: "ada@example.com"})
		require.NoError(t, err)
		job, err := s.CreateJob(ctx, placement.JobPosting{
			Title:          "Backend Engineer",
			RequiredSkills: []string{"Python", "SQL", "Kubernetes"},
			RecruiterID:    "rec-1",
		})
		require.NoError(t, err)
		return *student, *job
	}

	upsert := func(student placement.Student, job placement.JobPosting, score int, matched, missing []string) ApplicationUpsert {
		return ApplicationUpsert{
			StudentID: student.ID,
			JobID:     job.ID,
			Assessment: placement.MatchAssessment{
				MatchPercentage: score,
				MatchedSkills:   matched,
				MissingSkills:   missing,
				Reasoning:       "r",
			},
		}
	}

	t.Run("job and student round trip", func(t *testing.T) {
		s := newStore(t)
		student, job := seed(t, s)

		gotJob, err := s.GetJob(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"Python", "SQL", "Kubernetes"}, gotJob.RequiredSkills)
		assert.False(t, gotJob.CreatedAt.IsZero())

		updated, err := s.SetStudentResumeURL(ctx, student.ID, "file:///resumes/x.pdf")
		require.NoError(t, err)
		assert.Equal(t, "file:///resumes/x.pdf", updated.ResumeURL)

		again, err := s.UpsertStudent(ctx, placement.Student{ID: student.ID, Name: "Ada L", Email: "ada@example.com"})
		require.NoError(t, err)
		assert.Equal(t, "Ada L", again.Name)
		assert.Equal(t, "file:///resumes/x.pdf", again.ResumeURL, "upsert keeps the resume url")

		_, err = s.GetJob(ctx, uuid.NewString())
		assert.ErrorIs(t, err, placement.ErrNotFound)
		_, err = s.GetStudent(ctx, uuid.NewString())
		assert.ErrorIs(t, err, placement.ErrNotFound)
		_, err = s.SetStudentResumeURL(ctx, uuid.NewString(), "x")
		assert.ErrorIs(t, err, placement.ErrNotFound)
	})

	t.Run("upsert is idempotent on the natural key", func(t *testing.T) {
		s := newStore(t)
		student, job := seed(t, s)

		first, err := s.UpsertApplication(ctx, upsert(student, job, 40, []string{"SQL"}, []string{"Python", "Kubernetes"}))
		require.NoError(t, err)
		assert.Equal(t, placement.StatusPending, first.Status)

		second, err := s.UpsertApplication(ctx, upsert(student, job, 67, []string{"Python", "SQL"}, []string{"Kubernetes"}))
		require.NoError(t, err)
		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, 67, second.ResumeScore)
		assert.Equal(t, []string{"Python", "SQL"}, second.MatchedSkills)
		assert.Equal(t, []string{"Kubernetes"}, second.MissingSkills)

		apps, err := s.ListApplications(ctx, ApplicationFilter{JobID: job.ID})
		require.NoError(t, err)
		require.Len(t, apps, 1)

		byKey, err := s.GetApplicationByKey(ctx, student.ID, job.ID)
		require.NoError(t, err)
		assert.Equal(t, first.ID, byKey.ID)
	})

	t.Run("upsert requires existing student and job", func(t *testing.T) {
		s := newStore(t)
		student, job := seed(t, s)

		_, err := s.UpsertApplication(ctx, upsert(student, placement.JobPosting{ID: uuid.NewString()}, 1, nil, nil))
		assert.ErrorIs(t, err, placement.ErrNotFound)
		_, err = s.UpsertApplication(ctx, upsert(placement.Student{ID: uuid.NewString()}, job, 1, nil, nil))
		assert.ErrorIs(t, err, placement.ErrNotFound)
	})

	t.Run("status change compares and swaps", func(t *testing.T) {
		s := newStore(t)
		student, job := seed(t, s)
		app, err := s.UpsertApplication(ctx, upsert(student, job, 67, []string{"Python"}, []string{"Kubernetes"}))
		require.NoError(t, err)

		msg := "Learn Kubernetes"
		rejected, err := s.SetApplicationStatus(ctx, app.ID, placement.StatusPending, placement.StatusRejected, StatusFields{
			AIFeedback:             &msg,
			FeedbackRecommendation: "Kubernetes basics",
			FeedbackResourceLink:   "https://kubernetes.io/docs/",
		})
		require.NoError(t, err)
		assert.Equal(t, placement.StatusRejected, rejected.Status)
		require.NotNil(t, rejected.AIFeedback)
		assert.Equal(t, msg, *rejected.AIFeedback)
		assert.NotNil(t, rejected.DecidedAt)

		_, err = s.SetApplicationStatus(ctx, app.ID, placement.StatusPending, placement.StatusAccepted, StatusFields{})
		require.ErrorIs(t, err, placement.ErrConflict)
		current := placement.CurrentOf(err)
		require.NotNil(t, current)
		assert.Equal(t, placement.StatusRejected, current.Status)

		_, err = s.UpsertApplication(ctx, upsert(student, job, 99, nil, nil))
		require.ErrorIs(t, err, placement.ErrConflict)
		stored, err := s.GetApplication(ctx, app.ID)
		require.NoError(t, err)
		assert.Equal(t, 67, stored.ResumeScore, "terminal application must not be rescored")

		_, err = s.SetApplicationStatus(ctx, uuid.NewString(), placement.StatusPending, placement.StatusAccepted, StatusFields{})
		assert.ErrorIs(t, err, placement.ErrNotFound)

		_, err = s.SetApplicationStatus(ctx, app.ID, placement.StatusRejected, placement.StatusPending, StatusFields{})
		assert.ErrorIs(t, err, placement.ErrValidation)
	})

	t.Run("concurrent transitions have one winner", func(t *testing.T) {
		s := newStore(t)
		student, job := seed(t, s)
		app, err := s.UpsertApplication(ctx, upsert(student, job, 50, nil, nil))
		require.NoError(t, err)

		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			wins      int
			conflicts int
		)
		for _, next := range []placement.Status{placement.StatusAccepted, placement.StatusRejected, placement.StatusAccepted, placement.StatusRejected} {
			wg.Add(1)
			go func(next placement.Status) {
				defer wg.Done()
				var fields StatusFields
				if next == placement.StatusRejected {
					msg := "m"
					fields.AIFeedback = &msg
				}
				_, err := s.SetApplicationStatus(ctx, app.ID, placement.StatusPending, next, fields)
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					wins++
				case placement.KindOf(err) == placement.KindConflict:
					conflicts++
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}(next)
		}
		wg.Wait()

		assert.Equal(t, 1, wins)
		assert.Equal(t, 3, conflicts)
	})

	t.Run("list filters and orders by score", func(t *testing.T) {
		s := newStore(t)
		_, job := seed(t, s)

		for i, score := range []int{30, 90, 60} {
			student, err := s.UpsertStudent(ctx, placement.Student{ID: uuid.NewString(), Name: "s"})
			require.NoError(t, err)
			app, err := s.UpsertApplication(ctx, upsert(*student, job, score, nil, nil))
			require.NoError(t, err)
			if i == 0 {
				_, err = s.SetApplicationStatus(ctx, app.ID, placement.StatusPending, placement.StatusAccepted, StatusFields{})
				require.NoError(t, err)
			}
		}

		all, err := s.ListApplications(ctx, ApplicationFilter{JobID: job.ID})
		require.NoError(t, err)
		require.Len(t, all, 3)
		assert.Equal(t, []int{90, 60, 30}, []int{all[0].ResumeScore, all[1].ResumeScore, all[2].ResumeScore})

		pending, err := s.ListApplications(ctx, ApplicationFilter{JobID: job.ID, Status: placement.StatusPending})
		require.NoError(t, err)
		assert.Len(t, pending, 2)

		mine, err := s.ListApplications(ctx, ApplicationFilter{StudentID: all[0].StudentID})
		require.NoError(t, err)
		require.Len(t, mine, 1)
		assert.Equal(t, all[0].ID, mine[0].ID)
	})
}

func TestMemoryStore(t *testing.T) {
	runContract(t, func(t *testing.T) Store { return NewMemory() })
}

func TestMemoryCounts(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()

	student, err := s.UpsertStudent(ctx, placement.Student{Name: "a"})
	require.NoError(t, err)
	assert.NotEmpty(t, student.ID)
	job, err := s.CreateJob(ctx, placement.JobPosting{Title: "t"})
	require.NoError(t, err)
	_, err = s.UpsertApplication(ctx, ApplicationUpsert{StudentID: student.ID, JobID: job.ID})
	require.NoError(t, err)

	counts, err := s.CountApplicationsByStatus(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[placement.Status]int{placement.StatusPending: 1}, counts)

	n, err := s.CountStudents(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	n, err = s.CountJobs(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = s.CreateJob(ctx, placement.JobPosting{ID: job.ID, Title: "dup"})
	assert.ErrorIs(t, err, placement.ErrConflict)
}

func TestMemoryReturnsCopies(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	student, err := s.UpsertStudent(ctx, placement.Student{Name: "a"})
	require.NoError(t, err)
	job, err := s.CreateJob(ctx, placement.JobPosting{Title: "t", RequiredSkills: []string{"Go"}})
	require.NoError(t, err)

	job.RequiredSkills[0] = "mutated"
	stored, err := s.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, "Go", stored.RequiredSkills[0])

	app, err := s.UpsertApplication(ctx, ApplicationUpsert{
		StudentID:  student.ID,
		JobID:      job.ID,
		Assessment: placement.MatchAssessment{MatchedSkills: []string{"Go"}},
	})
	require.NoError(t, err)
	app.MatchedSkills[0] = "mutated"

	again, err := s.GetApplication(ctx, app.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"Go"}, again.MatchedSkills)
}

// TestPostgresStore runs against a real database when PLACEMENT_TEST_DATABASE_URL is set.
func TestPostgresStore(t *testing.T) {
	url := os.Getenv("PLACEMENT_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("PLACEMENT_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := NewPostgresPool(ctx, url, 4)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	pg := NewPostgres(pool)
	require.NoError(t, pg.Migrate(ctx))
	require.NoError(t, pg.Migrate(ctx), "migrations are idempotent")

	runContract(t, func(t *testing.T) Store { return pg })
}
