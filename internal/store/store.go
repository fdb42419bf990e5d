// Package store persists jobs, students and applications.
//
// Writes that depend on the current state of an application are expressed as
// single conditional statements: the natural-key upsert only overwrites a
// pending row and status changes compare the expected status.
package store

import (
	"context"

	"github.com/spigell/placement-engine/internal/placement"
)

// Store is the persistence collaborator of the lifecycle manager.
type Store interface {
	Ping(ctx context.Context) error

	CreateJob(ctx context.Context, job placement.JobPosting) (*placement.JobPosting, error)
	GetJob(ctx context.Context, jobID string) (*placement.JobPosting, error)

	UpsertStudent(ctx context.Context, student placement.Student) (*placement.Student, error)
	GetStudent(ctx context.Context, studentID string) (*placement.Student, error)
	SetStudentResumeURL(ctx context.Context, studentID, resumeURL string) (*placement.Student, error)

	// UpsertApplication creates the (student, job) application or overwrites
	// the assessment of a pending one. A terminal row yields a conflict.
	UpsertApplication(ctx context.Context, in ApplicationUpsert) (*placement.Application, error)
	GetApplication(ctx context.Context, id string) (*placement.Application, error)
	GetApplicationByKey(ctx context.Context, studentID, jobID string) (*placement.Application, error)
	// SetApplicationStatus moves id from expected to next and writes fields
	// in the same statement.
	SetApplicationStatus(ctx context.Context, id string, expected, next placement.Status, fields StatusFields) (*placement.Application, error)
	ListApplications(ctx context.Context, filter ApplicationFilter) ([]*placement.Application, error)

	CountApplicationsByStatus(ctx context.Context) (map[placement.Status]int, error)
	CountStudents(ctx context.Context) (int, error)
	CountJobs(ctx context.Context) (int, error)
}

// ApplicationUpsert is the scored state written by the natural-key upsert.
type ApplicationUpsert struct {
	StudentID  string
	JobID      string
	Assessment placement.MatchAssessment
	// ResumeURL is kept from the existing row when empty.
	ResumeURL string
}

// StatusFields are written together with a status change.
type StatusFields struct {
	AIFeedback             *string
	FeedbackRecommendation string
	FeedbackResourceLink   string
}

// ApplicationFilter narrows ListApplications; empty fields match everything.
type ApplicationFilter struct {
	JobID     string
	StudentID string
	Status    placement.Status
}

func checkTransition(op string, expected, next placement.Status) error {
	if !placement.CanTransition(expected, next) {
		return placement.Errorf(placement.KindValidation, op, "transition %s -> %s is not allowed", expected, next)
	}
	return nil
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
