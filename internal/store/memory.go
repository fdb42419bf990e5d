package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/spigell/placement-engine/internal/placement"
)

// Memory is a process-local Store. Every read and write copies values.
type Memory struct {
	mu           sync.Mutex
	jobs         map[string]placement.JobPosting
	students     map[string]placement.Student
	applications map[string]*placement.Application
	byKey        map[appKey]string
	now          func() time.Time
}

type appKey struct{ studentID, jobID string }

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		jobs:         make(map[string]placement.JobPosting),
		students:     make(map[string]placement.Student),
		applications: make(map[string]*placement.Application),
		byKey:        make(map[appKey]string),
		now:          func() time.Time { return time.Now().UTC() },
	}
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) CreateJob(_ context.Context, job placement.JobPosting) (*placement.JobPosting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if _, ok := m.jobs[job.ID]; ok {
		return nil, placement.Errorf(placement.KindConflict, "store.create_job", "job %s already exists", job.ID)
	}
	job.RequiredSkills = append(make([]string, 0, len(job.RequiredSkills)), job.RequiredSkills...)
	job.CreatedAt = m.now()
	m.jobs[job.ID] = job
	return copyJob(job), nil
}

func (m *Memory) GetJob(_ context.Context, jobID string) (*placement.JobPosting, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, ok := m.jobs[jobID]
	if !ok {
		return nil, placement.Errorf(placement.KindNotFound, "store.get_job", "job %s not found", jobID)
	}
	return copyJob(job), nil
}

func (m *Memory) UpsertStudent(_ context.Context, student placement.Student) (*placement.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if student.ID == "" {
		student.ID = uuid.NewString()
	}
	if existing, ok := m.students[student.ID]; ok {
		existing.Name = student.Name
		existing.Email = student.Email
		m.students[student.ID] = existing
		return &existing, nil
	}
	student.CreatedAt = m.now()
	m.students[student.ID] = student
	return &student, nil
}

func (m *Memory) GetStudent(_ context.Context, studentID string) (*placement.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	student, ok := m.students[studentID]
	if !ok {
		return nil, placement.Errorf(placement.KindNotFound, "store.get_student", "student %s not found", studentID)
	}
	return &student, nil
}

func (m *Memory) SetStudentResumeURL(_ context.Context, studentID, resumeURL string) (*placement.Student, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	student, ok := m.students[studentID]
	if !ok {
		return nil, placement.Errorf(placement.KindNotFound, "store.set_resume_url", "student %s not found", studentID)
	}
	student.ResumeURL = resumeURL
	m.students[studentID] = student
	return &student, nil
}

func (m *Memory) UpsertApplication(_ context.Context, in ApplicationUpsert) (*placement.Application, error) {
	const op = "store.upsert_application"

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.students[in.StudentID]; !ok {
		return nil, placement.Errorf(placement.KindNotFound, op, "student %s not found", in.StudentID)
	}
	if _, ok := m.jobs[in.JobID]; !ok {
		return nil, placement.Errorf(placement.KindNotFound, op, "job %s not found", in.JobID)
	}

	now := m.now()
	key := appKey{studentID: in.StudentID, jobID: in.JobID}

	if id, ok := m.byKey[key]; ok {
		app := m.applications[id]
		if app.Status != placement.StatusPending {
			return nil, placement.Conflict(op, app, "application %s is already %s", app.ID, app.Status)
		}
		applyAssessment(app, in)
		app.UpdatedAt = now
		return app.Clone(), nil
	}

	app := &placement.Application{
		ID:        uuid.NewString(),
		StudentID: in.StudentID,
		JobID:     in.JobID,
		Status:    placement.StatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
	applyAssessment(app, in)
	m.applications[app.ID] = app
	m.byKey[key] = app.ID
	return app.Clone(), nil
}

func applyAssessment(app *placement.Application, in ApplicationUpsert) {
	app.ResumeScore = in.Assessment.MatchPercentage
	app.MatchedSkills = append(make([]string, 0, len(in.Assessment.MatchedSkills)), in.Assessment.MatchedSkills...)
	app.MissingSkills = append(make([]string, 0, len(in.Assessment.MissingSkills)), in.Assessment.MissingSkills...)
	app.Reasoning = in.Assessment.Reasoning
	if in.ResumeURL != "" {
		app.ResumeURL = in.ResumeURL
	}
}

func (m *Memory) GetApplication(_ context.Context, id string) (*placement.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	app, ok := m.applications[id]
	if !ok {
		return nil, placement.Errorf(placement.KindNotFound, "store.get_application", "application %s not found", id)
	}
	return app.Clone(), nil
}

func (m *Memory) GetApplicationByKey(_ context.Context, studentID, jobID string) (*placement.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byKey[appKey{studentID: studentID, jobID: jobID}]
	if !ok {
		return nil, placement.Errorf(placement.KindNotFound, "store.get_application", "no application for student %s and job %s", studentID, jobID)
	}
	return m.applications[id].Clone(), nil
}

func (m *Memory) SetApplicationStatus(_ context.Context, id string, expected, next placement.Status, fields StatusFields) (*placement.Application, error) {
	const op = "store.set_status"

	if err := checkTransition(op, expected, next); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	app, ok := m.applications[id]
	if !ok {
		return nil, placement.Errorf(placement.KindNotFound, op, "application %s not found", id)
	}
	if app.Status != expected {
		return nil, placement.Conflict(op, app, "application %s is %s, expected %s", id, app.Status, expected)
	}

	now := m.now()
	app.Status = next
	if fields.AIFeedback != nil {
		fb := *fields.AIFeedback
		app.AIFeedback = &fb
	} else {
		app.AIFeedback = nil
	}
	app.FeedbackRecommendation = fields.FeedbackRecommendation
	app.FeedbackResourceLink = fields.FeedbackResourceLink
	app.UpdatedAt = now
	if next.IsTerminal() {
		app.DecidedAt = &now
	} else {
		app.DecidedAt = nil
	}
	return app.Clone(), nil
}

func (m *Memory) ListApplications(_ context.Context, filter ApplicationFilter) ([]*placement.Application, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]*placement.Application, 0)
	for _, app := range m.applications {
		if filter.JobID != "" && app.JobID != filter.JobID {
			continue
		}
		if filter.StudentID != "" && app.StudentID != filter.StudentID {
			continue
		}
		if filter.Status != "" && app.Status != filter.Status {
			continue
		}
		out = append(out, app.Clone())
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].ResumeScore != out[j].ResumeScore {
			return out[i].ResumeScore > out[j].ResumeScore
		}
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) CountApplicationsByStatus(context.Context) (map[placement.Status]int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	counts := make(map[placement.Status]int, 3)
	for _, app := range m.applications {
		counts[app.Status]++
	}
	return counts, nil
}

func (m *Memory) CountStudents(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.students), nil
}

func (m *Memory) CountJobs(context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.jobs), nil
}

func copyJob(job placement.JobPosting) *placement.JobPosting {
	job.RequiredSkills = append(make([]string, 0, len(job.RequiredSkills)), job.RequiredSkills...)
	return &job
}
