package lifecycle

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/spigell/placement-engine/internal/logger"
	"github.com/spigell/placement-engine/internal/placement"
)

// NewJob is a recruiter's job posting request.
type NewJob struct {
	Title          string   `json:"title" validate:"required"`
	Description    string   `json:"description"`
	RequiredSkills []string `json:"requiredSkills" validate:"dive,required"`
	RecruiterID    string   `json:"recruiterId"`
}

func (m *Manager) CreateJob(ctx context.Context, in NewJob) (*placement.JobPosting, error) {
	in.Title = strings.TrimSpace(in.Title)
	if err := m.check("lifecycle.create_job", in); err != nil {
		return nil, err
	}

	job, err := m.store.CreateJob(ctx, placement.JobPosting{
		Title:          in.Title,
		Description:    strings.TrimSpace(in.Description),
		RequiredSkills: placement.JobPosting{RequiredSkills: in.RequiredSkills}.Skills(),
		RecruiterID:    in.RecruiterID,
	})
	if err != nil {
		return nil, err
	}

	m.logger.Info("job created", zap.String(logger.FieldJobID, job.ID), zap.Strings("required_skills", job.RequiredSkills))
	return job, nil
}

func (m *Manager) GetJob(ctx context.Context, jobID string) (*placement.JobPosting, error) {
	return m.store.GetJob(ctx, jobID)
}

// NewStudent registers or renames a student. ID is generated when empty.
type NewStudent struct {
	ID    string `json:"id"`
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"omitempty,email"`
}

func (m *Manager) RegisterStudent(ctx context.Context, in NewStudent) (*placement.Student, error) {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.TrimSpace(in.Email)
	if err := m.check("lifecycle.register_student", in); err != nil {
		return nil, err
	}

	return m.store.UpsertStudent(ctx, placement.Student{
		ID:    strings.TrimSpace(in.ID),
		Name:  in.Name,
		Email: in.Email,
	})
}

func (m *Manager) GetStudent(ctx context.Context, studentID string) (*placement.Student, error) {
	return m.store.GetStudent(ctx, studentID)
}

// ResumeUpload is the outcome of attaching a resume document.
type ResumeUpload struct {
	ResumeText string `json:"resumeText"`
	ResumeURL  string `json:"resumeUrl"`
}

// AttachResume extracts the document, stores it and records its reference
// on the student. Nothing is kept when extraction or the student update fails.
func (m *Manager) AttachResume(ctx context.Context, studentID, filename, declaredMIME string, data []byte) (*ResumeUpload, error) {
	if _, err := m.store.GetStudent(ctx, studentID); err != nil {
		return nil, err
	}

	log := m.logger.With(zap.String(logger.FieldStudentID, studentID))

	text, err := m.extractor.Extract(ctx, data, declaredMIME)
	if err != nil {
		log.Warn("resume extraction failed", logger.ErrorFields(err)...)
		return nil, err
	}

	ref, err := m.documents.Save(ctx, studentID, filename, data)
	if err != nil {
		return nil, err
	}

	if _, err := m.store.SetStudentResumeURL(ctx, studentID, ref); err != nil {
		if rmErr := m.documents.Remove(context.WithoutCancel(ctx), ref); rmErr != nil {
			log.Warn("orphaned resume not removed", zap.String("resume_url", ref), zap.Error(rmErr))
		}
		return nil, err
	}

	log.Info("resume attached", zap.String("resume_url", ref), zap.Int("bytes", len(data)))
	return &ResumeUpload{ResumeText: text, ResumeURL: ref}, nil
}
