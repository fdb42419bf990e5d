// Package lifecycle owns the application state machine and orchestrates
// scoring, feedback, persistence and notifications around it.
package lifecycle

import (
	"context"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/spigell/placement-engine/internal/events"
	"github.com/spigell/placement-engine/internal/logger"
	"github.com/spigell/placement-engine/internal/placement"
	"github.com/spigell/placement-engine/internal/store"
)

// Scorer assesses resume text against a job.
type Scorer interface {
	Score(ctx context.Context, resumeText string, job placement.JobPosting) (*placement.MatchAssessment, error)
}

// FeedbackWriter drafts rejection feedback.
type FeedbackWriter interface {
	Generate(ctx context.Context, missingSkills []string, jobTitle string) (*placement.Feedback, error)
}

// Extractor turns an uploaded document into text.
type Extractor interface {
	Extract(ctx context.Context, data []byte, declaredMIME string) (string, error)
}

// Documents stores uploaded resumes.
type Documents interface {
	Save(ctx context.Context, ownerID, filename string, data []byte) (string, error)
	Open(ctx context.Context, reference string) ([]byte, error)
	Remove(ctx context.Context, reference string) error
}

// Deps are the collaborators of a Manager. Publisher and Logger are optional.
type Deps struct {
	Store     store.Store
	Scorer    Scorer
	Feedback  FeedbackWriter
	Extractor Extractor
	Documents Documents
	Publisher events.Publisher
	Logger    *zap.Logger
}

type Manager struct {
	store     store.Store
	scorer    Scorer
	feedback  FeedbackWriter
	extractor Extractor
	documents Documents
	publisher events.Publisher
	logger    *zap.Logger
	validate  *validator.Validate
}

func NewManager(d Deps) (*Manager, error) {
	switch {
	case d.Store == nil:
		return nil, errors.New("lifecycle manager requires a store")
	case d.Scorer == nil:
		return nil, errors.New("lifecycle manager requires a scorer")
	case d.Feedback == nil:
		return nil, errors.New("lifecycle manager requires a feedback writer")
	case d.Extractor == nil:
		return nil, errors.New("lifecycle manager requires an extractor")
	case d.Documents == nil:
		return nil, errors.New("lifecycle manager requires document storage")
	}

	publisher := d.Publisher
	if publisher == nil {
		publisher = events.Nop{}
	}

	return &Manager{
		store:     d.Store,
		scorer:    d.Scorer,
		feedback:  d.Feedback,
		extractor: d.Extractor,
		documents: d.Documents,
		publisher: publisher,
		logger:    logger.OrNop(d.Logger),
		validate:  validator.New(),
	}, nil
}

// ScoreRequest asks for a student's resume to be scored against a job.
// When ResumeText is empty the student's stored resume is extracted.
type ScoreRequest struct {
	StudentID  string `json:"studentId" validate:"required"`
	JobID      string `json:"jobId" validate:"required"`
	ResumeText string `json:"resumeText"`
	ResumeURL  string `json:"resumeUrl"`
}

type ScoreResult struct {
	Assessment  *placement.MatchAssessment `json:"assessment"`
	Application *placement.Application     `json:"application"`
}

// ScoreResume scores and records the (student, job) application as pending.
// Re-scoring a pending application overwrites it; a decided one conflicts.
func (m *Manager) ScoreResume(ctx context.Context, req ScoreRequest) (*ScoreResult, error) {
	const op = "lifecycle.score"

	if err := m.check(op, req); err != nil {
		return nil, err
	}

	log := m.logger.With(zap.String(logger.FieldStudentID, req.StudentID), zap.String(logger.FieldJobID, req.JobID))

	job, err := m.store.GetJob(ctx, req.JobID)
	if err != nil {
		return nil, err
	}
	student, err := m.store.GetStudent(ctx, req.StudentID)
	if err != nil {
		return nil, err
	}

	// Fail before the judge call when the application is already decided.
	if existing, err := m.store.GetApplicationByKey(ctx, req.StudentID, req.JobID); err == nil && existing.Status.IsTerminal() {
		return nil, placement.Conflict(op, existing, "application %s is already %s", existing.ID, existing.Status)
	} else if err != nil && !errors.Is(err, placement.ErrNotFound) {
		return nil, err
	}

	resumeURL := strings.TrimSpace(req.ResumeURL)
	if resumeURL == "" {
		resumeURL = student.ResumeURL
	}

	text := req.ResumeText
	if strings.TrimSpace(text) == "" {
		if text, err = m.storedResumeText(ctx, op, student); err != nil {
			return nil, err
		}
	}

	assessment, err := m.scorer.Score(ctx, text, *job)
	if err != nil {
		log.Warn("scoring failed", logger.ErrorFields(err)...)
		return nil, err
	}

	app, err := m.store.UpsertApplication(ctx, store.ApplicationUpsert{
		StudentID:  req.StudentID,
		JobID:      req.JobID,
		Assessment: *assessment,
		ResumeURL:  resumeURL,
	})
	if err != nil {
		log.Warn("application not recorded", logger.ErrorFields(err)...)
		return nil, err
	}

	log.Info("application scored", append(logger.ApplicationFields(app), zap.Int("score", app.ResumeScore))...)
	m.publish(ctx, events.ForApplication(events.ApplicationScored, app, ""))

	return &ScoreResult{Assessment: assessment, Application: app}, nil
}

func (m *Manager) storedResumeText(ctx context.Context, op string, student *placement.Student) (string, error) {
	if student.ResumeURL == "" {
		return "", placement.Errorf(placement.KindValidation, op, "resume text is empty and student %s has no stored resume", student.ID)
	}
	data, err := m.documents.Open(ctx, student.ResumeURL)
	if err != nil {
		return "", err
	}
	return m.extractor.Extract(ctx, data, "")
}

// Accept moves a pending application to accepted.
func (m *Manager) Accept(ctx context.Context, applicationID string) (*placement.Application, error) {
	app, err := m.store.SetApplicationStatus(ctx, applicationID, placement.StatusPending, placement.StatusAccepted, store.StatusFields{})
	if err != nil {
		m.logger.Warn("accept failed", append(idFields(applicationID), logger.ErrorFields(err)...)...)
		return nil, err
	}

	m.logger.Info("application accepted", logger.ApplicationFields(app)...)
	m.publish(ctx, events.ForApplication(events.ApplicationAccepted, app, placement.StatusPending))
	return app, nil
}

type RejectResult struct {
	Feedback    *placement.Feedback    `json:"feedback"`
	Application *placement.Application `json:"application"`
}

// Reject generates feedback and then moves a pending application to
// rejected, writing the feedback in the same conditional update. If feedback
// cannot be produced nothing is written.
func (m *Manager) Reject(ctx context.Context, applicationID string) (*RejectResult, error) {
	const op = "lifecycle.reject"

	app, err := m.store.GetApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if app.Status != placement.StatusPending {
		return nil, placement.Conflict(op, app, "application %s is already %s", app.ID, app.Status)
	}

	log := logger.WithFields(m.logger, logger.ApplicationFields(app)...)

	job, err := m.store.GetJob(ctx, app.JobID)
	if err != nil {
		return nil, err
	}

	fb, err := m.feedback.Generate(ctx, app.MissingSkills, job.Title)
	if err != nil {
		log.Warn("feedback generation failed, application left pending", logger.ErrorFields(err)...)
		return nil, err
	}

	message := fb.Message
	updated, err := m.store.SetApplicationStatus(ctx, app.ID, placement.StatusPending, placement.StatusRejected, store.StatusFields{
		AIFeedback:             &message,
		FeedbackRecommendation: fb.Recommendation,
		FeedbackResourceLink:   fb.ResourceLink,
	})
	if err != nil {
		log.Warn("reject failed", logger.ErrorFields(err)...)
		return nil, err
	}

	log.Info("application rejected", zap.String("resource_link", fb.ResourceLink))
	m.publish(ctx, events.ForApplication(events.ApplicationRejected, updated, placement.StatusPending))

	return &RejectResult{Feedback: fb, Application: updated}, nil
}

// Ping checks the store.
func (m *Manager) Ping(ctx context.Context) error {
	return m.store.Ping(ctx)
}

func (m *Manager) Get(ctx context.Context, applicationID string) (*placement.Application, error) {
	return m.store.GetApplication(ctx, applicationID)
}

// ListForJob returns a job's applications, best score first. An empty
// status lists all of them.
func (m *Manager) ListForJob(ctx context.Context, jobID string, status placement.Status) ([]*placement.Application, error) {
	if _, err := m.store.GetJob(ctx, jobID); err != nil {
		return nil, err
	}
	return m.store.ListApplications(ctx, store.ApplicationFilter{JobID: jobID, Status: status})
}

func (m *Manager) ListForStudent(ctx context.Context, studentID string) ([]*placement.Application, error) {
	if _, err := m.store.GetStudent(ctx, studentID); err != nil {
		return nil, err
	}
	return m.store.ListApplications(ctx, store.ApplicationFilter{StudentID: studentID})
}

// Stats summarises the placement pipeline.
func (m *Manager) Stats(ctx context.Context) (*placement.Stats, error) {
	counts, err := m.store.CountApplicationsByStatus(ctx)
	if err != nil {
		return nil, err
	}
	students, err := m.store.CountStudents(ctx)
	if err != nil {
		return nil, err
	}
	jobs, err := m.store.CountJobs(ctx)
	if err != nil {
		return nil, err
	}

	stats := &placement.Stats{
		Students: students,
		Jobs:     jobs,
		ByStatus: map[placement.Status]int{
			placement.StatusPending:  0,
			placement.StatusAccepted: 0,
			placement.StatusRejected: 0,
		},
	}
	for status, n := range counts {
		stats.ByStatus[status] += n
		stats.Applications += n
	}
	return stats, nil
}

func (m *Manager) publish(ctx context.Context, event events.Event) {
	if err := m.publisher.Publish(ctx, event); err != nil {
		m.logger.Warn("publish event failed",
			zap.String("event", string(event.Type)),
			zap.String(logger.FieldApplicationID, event.ApplicationID),
			zap.Error(err),
		)
	}
}

func (m *Manager) check(op string, v any) error {
	if err := m.validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fe.Field()+" "+fe.Tag())
			}
			return placement.Errorf(placement.KindValidation, op, "invalid request: %s", strings.Join(fields, ", "))
		}
		return placement.Errorf(placement.KindValidation, op, "invalid request: %w", err)
	}
	return nil
}

func idFields(applicationID string) []zap.Field {
	return []zap.Field{zap.String(logger.FieldApplicationID, applicationID)}
}
